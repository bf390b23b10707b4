package likelihood

import (
	"errors"
	"math"
	"testing"

	"pgregory.net/rapid"

	"charspan/internal/errmodel"
	"charspan/internal/model"
)

func TestEvaluateWorkedExample(t *testing.T) {
	counts := []model.Counts{{TrueNeg: 1, TruePos: 2}}
	p := errmodel.Defaults(1)
	got, err := Evaluate(counts, p.C, p.D)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := math.Log(1-0.01) + 2*math.Log(1-0.3)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestEvaluateErrorTerms(t *testing.T) {
	counts := []model.Counts{{FalseNeg: 3, FalsePos: 2}}
	c, d := []float64{math.Log(0.05)}, []float64{math.Log(0.2)}
	got, err := Evaluate(counts, c, d)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := 3*math.Log(0.2) + 2*math.Log(0.05)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestEvaluateEmpty(t *testing.T) {
	got, err := Evaluate(nil, nil, nil)
	if err != nil || got != 0 {
		t.Fatalf("expected 0, nil; got %v, %v", got, err)
	}
}

func TestEvaluateRejectsOutOfDomain(t *testing.T) {
	counts := []model.Counts{{TrueNeg: 1}, {TruePos: 1}}
	cases := []struct {
		name string
		c, d []float64
	}{
		{name: "zero c", c: []float64{-1, 0}, d: []float64{-1, -1}},
		{name: "positive d", c: []float64{-1, -1}, d: []float64{0.5, -1}},
		{name: "nan", c: []float64{math.NaN(), -1}, d: []float64{-1, -1}},
		{name: "neg inf", c: []float64{-1, -1}, d: []float64{-1, math.Inf(-1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Evaluate(counts, tc.c, tc.d)
			var de *errmodel.DomainError
			if !errors.As(err, &de) {
				t.Fatalf("expected DomainError, got %v", err)
			}
		})
	}
}

func TestEvaluateLengthMismatch(t *testing.T) {
	if _, err := Evaluate([]model.Counts{{}}, []float64{-1, -1}, []float64{-1}); err == nil {
		t.Fatal("expected length error")
	}
}

func TestIntoLeavesStateOnError(t *testing.T) {
	st := &model.State{Counts: []model.Counts{{TrueNeg: 1}}, C: []float64{0}, D: []float64{-1}, LogLike: -3}
	if err := Into(st); !errors.Is(err, errmodel.ErrDomain) {
		t.Fatalf("expected ErrDomain, got %v", err)
	}
	if st.LogLike != -3 {
		t.Fatalf("loglike mutated to %v", st.LogLike)
	}
	st.C[0] = math.Log(0.5)
	if err := Into(st); err != nil {
		t.Fatalf("into: %v", err)
	}
	if math.Abs(st.LogLike-math.Log(0.5)) > 1e-12 {
		t.Fatalf("unexpected loglike %v", st.LogLike)
	}
}

func TestLog1mexpPrecision(t *testing.T) {
	for _, x := range []float64{-1e-10, -0.1, -0.7, -1, -30} {
		want := math.Log(1 - math.Exp(x))
		got := log1mexp(x)
		if math.Abs(got-want) > 1e-6*math.Max(1, math.Abs(want)) {
			t.Fatalf("log1mexp(%v) = %v want %v", x, got, want)
		}
	}
}

func drawModel(t *rapid.T) ([]model.Counts, []float64, []float64) {
	m := rapid.IntRange(0, 8).Draw(t, "m")
	counts := make([]model.Counts, m)
	c := make([]float64, m)
	d := make([]float64, m)
	for i := 0; i < m; i++ {
		counts[i] = model.Counts{
			TrueNeg:  rapid.IntRange(0, 50).Draw(t, "tr0"),
			TruePos:  rapid.IntRange(0, 50).Draw(t, "tr1"),
			FalseNeg: rapid.IntRange(0, 50).Draw(t, "fa0"),
			FalsePos: rapid.IntRange(0, 50).Draw(t, "fa1"),
		}
		c[i] = -rapid.Float64Range(1e-6, 20).Draw(t, "c")
		d[i] = -rapid.Float64Range(1e-6, 20).Draw(t, "d")
	}
	return counts, c, d
}

func TestLogLikeIsNonPositive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		counts, c, d := drawModel(t)
		ll, err := Evaluate(counts, c, d)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if ll > 0 {
			t.Fatalf("loglike %v > 0", ll)
		}
	})
}

func TestLogLikeInvariantToCharacterOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		counts, c, d := drawModel(t)
		idx := make([]int, len(counts))
		for i := range idx {
			idx[i] = i
		}
		perm := rapid.Permutation(idx).Draw(t, "perm")
		pc := make([]model.Counts, len(counts))
		pcc := make([]float64, len(counts))
		pd := make([]float64, len(counts))
		for i, j := range perm {
			pc[i], pcc[i], pd[i] = counts[j], c[j], d[j]
		}

		a, err := Evaluate(counts, c, d)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		b, err := Evaluate(pc, pcc, pd)
		if err != nil {
			t.Fatalf("evaluate permuted: %v", err)
		}
		if math.Abs(a-b) > 1e-9*math.Max(1, math.Abs(a)) {
			t.Fatalf("permuted loglike %v != %v", b, a)
		}
	})
}
