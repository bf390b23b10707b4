package likelihood

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"charspan/internal/errmodel"
	"charspan/internal/model"
)

// Evaluate returns the total log-likelihood of counts under the per-character
// error model:
//
//	tr0*ln(1-e^c) + fa0*d + fa1*c + tr1*ln(1-e^d)
//
// Every c and d must be finite and strictly negative; otherwise a
// *errmodel.DomainError is returned and no value is computed.
func Evaluate(counts []model.Counts, c, d []float64) (float64, error) {
	terms, err := Terms(counts, c, d)
	if err != nil {
		return 0, err
	}
	return floats.Sum(terms), nil
}

// Terms returns the per-character contributions.
func Terms(counts []model.Counts, c, d []float64) ([]float64, error) {
	if len(c) != len(counts) || len(d) != len(counts) {
		return nil, fmt.Errorf("parameter length mismatch: counts=%d c=%d d=%d", len(counts), len(c), len(d))
	}
	if err := errmodel.Check(c, d); err != nil {
		return nil, err
	}
	terms := make([]float64, len(counts))
	for m, k := range counts {
		terms[m] = Term(k, c[m], d[m])
	}
	return terms, nil
}

// Term assumes c and d are already in domain.
func Term(k model.Counts, c, d float64) float64 {
	return float64(k.TrueNeg)*log1mexp(c) +
		float64(k.FalseNeg)*d +
		float64(k.FalsePos)*c +
		float64(k.TruePos)*log1mexp(d)
}

// Into evaluates st and stores the result in st.LogLike. On error st is left
// unchanged.
func Into(st *model.State) error {
	ll, err := Evaluate(st.Counts, st.C, st.D)
	if err != nil {
		return err
	}
	st.LogLike = ll
	return nil
}

// log1mexp computes ln(1 - e^x) for x < 0.
func log1mexp(x float64) float64 {
	if x > -math.Ln2 {
		return math.Log(-math.Expm1(x))
	}
	return math.Log1p(-math.Exp(x))
}
