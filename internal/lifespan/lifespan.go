package lifespan

import (
	"log/slog"

	"charspan/internal/diag"
	"charspan/internal/model"
	"charspan/internal/order"
)

// Estimate returns, for every character, the tightest window of order
// positions bounding all observed presences under ord. Interior absences do
// not split the window. A column with no presence gets [0, N) with Empty set,
// and an empty_column event is emitted on hook.
func Estimate(x model.Matrix, ord order.Index, hook diag.Hook) []model.Span {
	spans := make([]model.Span, x.Characters)
	fill(spans, x, ord, hook)
	return spans
}

// Into recomputes st.Spans against st.Order, reusing its backing array.
func Into(st *model.State, hook diag.Hook) {
	m := st.Characters()
	if cap(st.Spans) < m {
		st.Spans = make([]model.Span, m)
	}
	st.Spans = st.Spans[:m]
	fill(st.Spans, st.Matrix, st.Order, hook)
}

func fill(spans []model.Span, x model.Matrix, ord order.Index, hook diag.Hook) {
	if hook == nil {
		hook = diag.Nop()
	}
	for m := range spans {
		spans[m] = estimateOne(x, ord, m)
		if spans[m].Empty {
			hook.Emit(diag.NewEvent(diag.EventEmptyColumn, slog.Int("character", m)))
		}
	}
}

func estimateOne(x model.Matrix, ord order.Index, m int) model.Span {
	start, ok := firstPresent(x, ord, m)
	if !ok {
		return model.Span{Start: 0, End: x.Taxa, Empty: true}
	}
	return model.Span{Start: start, End: lastPresent(x, ord, m, start) + 1}
}

func firstPresent(x model.Matrix, ord order.Index, m int) (int, bool) {
	for n := 0; n < x.Taxa; n++ {
		if x.Present(ord.At(n), m) {
			return n, true
		}
	}
	return 0, false
}

// lastPresent scans backward down to floor-1; the position at floor is known
// to be present, so the scan always stops at or above it.
func lastPresent(x model.Matrix, ord order.Index, m, floor int) int {
	n := x.Taxa - 1
	for n >= floor-1 && n >= 0 && !x.Present(ord.At(n), m) {
		n--
	}
	return n
}
