package model

import "testing"

func TestNewMatrixCountsHardSites(t *testing.T) {
	x, err := NewMatrix(3, 2, []uint8{1, 0, 0, 1, 1, 1}, []uint8{1, 0, 1})
	if err != nil {
		t.Fatalf("new matrix: %v", err)
	}
	if x.HardCount() != 2 {
		t.Fatalf("expected 2 hard sites, got %d", x.HardCount())
	}
	if !x.Present(1, 1) || x.Present(1, 0) {
		t.Fatalf("unexpected cell layout")
	}
	if x.Cells() != 6 {
		t.Fatalf("expected 6 cells, got %d", x.Cells())
	}
}

func TestNewMatrixRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name  string
		cells []uint8
		hard  []uint8
	}{
		{name: "short cells", cells: []uint8{1}, hard: []uint8{0, 0}},
		{name: "short hard", cells: []uint8{1, 0}, hard: []uint8{0}},
		{name: "non binary", cells: []uint8{1, 2}, hard: []uint8{0, 0}},
		{name: "non binary hard", cells: []uint8{1, 0}, hard: []uint8{0, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewMatrix(2, 1, tc.cells, tc.hard); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMatrixCloneIsIndependent(t *testing.T) {
	cells := []uint8{1, 0}
	x, err := NewMatrix(2, 1, cells, []uint8{0, 0})
	if err != nil {
		t.Fatalf("new matrix: %v", err)
	}
	y := x.Clone()
	cells[0] = 0
	if !y.Present(0, 0) {
		t.Fatal("clone shares cells with original")
	}
}

func TestSpanContainsIsHalfOpen(t *testing.T) {
	s := Span{Start: 1, End: 3}
	for pos, want := range map[int]bool{0: false, 1: true, 2: true, 3: false} {
		if s.Contains(pos) != want {
			t.Fatalf("contains(%d) = %v", pos, !want)
		}
	}
}

func TestCountsAdd(t *testing.T) {
	got := Counts{TrueNeg: 1, TruePos: 2}.Add(Counts{FalseNeg: 3, FalsePos: 4, TruePos: 1})
	if got != (Counts{TrueNeg: 1, TruePos: 3, FalseNeg: 3, FalsePos: 4}) || got.Total() != 11 {
		t.Fatalf("unexpected sum %+v", got)
	}
}
