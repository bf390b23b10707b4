package lifespan

import (
	"testing"

	"pgregory.net/rapid"

	"charspan/internal/diag"
	"charspan/internal/model"
	"charspan/internal/order"
)

func mustMatrix(t testing.TB, rows [][]uint8) model.Matrix {
	t.Helper()
	taxa := len(rows)
	characters := 0
	if taxa > 0 {
		characters = len(rows[0])
	}
	cells := make([]uint8, 0, taxa*characters)
	for _, row := range rows {
		cells = append(cells, row...)
	}
	x, err := model.NewMatrix(taxa, characters, cells, make([]uint8, taxa))
	if err != nil {
		t.Fatalf("new matrix: %v", err)
	}
	return x
}

func TestEstimateTrailingAbsence(t *testing.T) {
	x := mustMatrix(t, [][]uint8{{1}, {1}, {0}})
	spans := Estimate(x, order.NewIdentity(3), nil)
	if spans[0] != (model.Span{Start: 0, End: 2}) {
		t.Fatalf("unexpected span %+v", spans[0])
	}
}

func TestEstimateInteriorAbsenceDoesNotSplit(t *testing.T) {
	x := mustMatrix(t, [][]uint8{{0}, {1}, {0}, {0}, {1}, {0}})
	spans := Estimate(x, order.NewIdentity(6), nil)
	if spans[0] != (model.Span{Start: 1, End: 5}) {
		t.Fatalf("unexpected span %+v", spans[0])
	}
}

func TestEstimateSinglePresence(t *testing.T) {
	x := mustMatrix(t, [][]uint8{{0}, {0}, {1}})
	spans := Estimate(x, order.NewIdentity(3), nil)
	if spans[0] != (model.Span{Start: 2, End: 3}) {
		t.Fatalf("unexpected span %+v", spans[0])
	}
}

func TestEstimateFollowsOrder(t *testing.T) {
	// taxon 2 is first in order, taxon 0 last.
	x := mustMatrix(t, [][]uint8{{1}, {0}, {1}})
	ord, err := order.FromPermutation([]int{2, 1, 0})
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	spans := Estimate(x, ord, nil)
	if spans[0] != (model.Span{Start: 0, End: 3}) {
		t.Fatalf("unexpected span %+v", spans[0])
	}

	ord, err = order.FromPermutation([]int{1, 0, 2})
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	spans = Estimate(x, ord, nil)
	if spans[0] != (model.Span{Start: 1, End: 3}) {
		t.Fatalf("unexpected span %+v", spans[0])
	}
}

func TestEstimateEmptyColumnEmitsEvent(t *testing.T) {
	x := mustMatrix(t, [][]uint8{{1, 0}, {0, 0}, {1, 0}, {0, 0}})
	var rec diag.Recorder
	spans := Estimate(x, order.NewIdentity(4), &rec)

	if spans[1] != (model.Span{Start: 0, End: 4, Empty: true}) {
		t.Fatalf("unexpected empty span %+v", spans[1])
	}
	events := rec.Named(diag.EventEmptyColumn)
	if len(events) != 1 {
		t.Fatalf("expected one empty column event, got %d", len(events))
	}
	if m, ok := events[0].Int("character"); !ok || m != 1 {
		t.Fatalf("expected character=1, got %d (%v)", m, ok)
	}
}

func TestIntoReusesStateSpans(t *testing.T) {
	x := mustMatrix(t, [][]uint8{{0, 1}, {1, 1}})
	st := model.NewState(x)
	Into(st, nil)
	if len(st.Spans) != 2 || st.Spans[0] != (model.Span{Start: 1, End: 2}) || st.Spans[1] != (model.Span{Start: 0, End: 2}) {
		t.Fatalf("unexpected spans %+v", st.Spans)
	}
	first := &st.Spans[0]
	Into(st, nil)
	if first != &st.Spans[0] {
		t.Fatal("expected spans backing array to be reused")
	}
}

func TestSpanBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		taxa := rapid.IntRange(0, 12).Draw(t, "taxa")
		characters := rapid.IntRange(0, 6).Draw(t, "characters")
		cells := rapid.SliceOfN(rapid.Uint8Range(0, 1), taxa*characters, taxa*characters).Draw(t, "cells")
		x, err := model.NewMatrix(taxa, characters, cells, make([]uint8, taxa))
		if err != nil {
			t.Fatalf("new matrix: %v", err)
		}
		ident := make([]int, taxa)
		for i := range ident {
			ident[i] = i
		}
		ord, err := order.FromPermutation(rapid.Permutation(ident).Draw(t, "pi"))
		if err != nil {
			t.Fatalf("order: %v", err)
		}

		for m, s := range Estimate(x, ord, nil) {
			if s.Start < 0 || s.Start > s.End || s.End > taxa {
				t.Fatalf("span %d out of bounds: %+v", m, s)
			}
			present := 0
			for n := 0; n < taxa; n++ {
				if x.Present(ord.At(n), m) {
					present++
					if !s.Contains(n) {
						t.Fatalf("presence at position %d outside span %+v", n, s)
					}
				}
			}
			if s.Empty != (present == 0) {
				t.Fatalf("empty flag %v with %d presences", s.Empty, present)
			}
			if !s.Empty && (!x.Present(ord.At(s.Start), m) || !x.Present(ord.At(s.End-1), m)) {
				t.Fatalf("span %+v is not tight", s)
			}
		}
	})
}
