package counts

import (
	"charspan/internal/model"
	"charspan/internal/order"
)

// Tally classifies every (taxon, character) cell against its span and
// returns per-character counts and their column-wise totals.
//
// Row n is placed by the value stored in pi at index n, matching how spans
// are expressed in order positions.
func Tally(x model.Matrix, ord order.Index, spans []model.Span) ([]model.Counts, model.Counts) {
	out := make([]model.Counts, x.Characters)
	return out, fill(out, x, ord, spans)
}

// Into recomputes st.Counts and st.Totals, reusing the counts backing array.
func Into(st *model.State) {
	m := st.Characters()
	if cap(st.Counts) < m {
		st.Counts = make([]model.Counts, m)
	}
	st.Counts = st.Counts[:m]
	st.Totals = fill(st.Counts, st.Matrix, st.Order, st.Spans)
}

func fill(out []model.Counts, x model.Matrix, ord order.Index, spans []model.Span) model.Counts {
	var totals model.Counts
	for m := range out {
		var c model.Counts
		span := spans[m]
		for n := 0; n < x.Taxa; n++ {
			present := x.Present(n, m)
			switch inWindow := span.Contains(ord.At(n)); {
			case inWindow && present:
				c.TruePos++
			case inWindow:
				c.FalseNeg++
			case present:
				c.FalsePos++
			default:
				c.TrueNeg++
			}
		}
		out[m] = c
		totals = totals.Add(c)
	}
	return totals
}
