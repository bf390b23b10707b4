package errmodel

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultFalsePositiveRate = 0.01
	DefaultFalseNegativeRate = 0.3
)

var ErrDomain = errors.New("log-probability parameter out of domain")

// DomainError names a parameter outside (-Inf, 0). Character is -1 for
// rate-level errors that do not belong to one character.
type DomainError struct {
	Character int
	Param     string
	Value     float64
}

func (e *DomainError) Error() string {
	if e.Character < 0 {
		return fmt.Sprintf("%s=%g: %v", e.Param, e.Value, ErrDomain)
	}
	return fmt.Sprintf("character %d: %s=%g: %v", e.Character, e.Param, e.Value, ErrDomain)
}

func (e *DomainError) Unwrap() error {
	return ErrDomain
}

// Params holds per-character natural-log error probabilities. C is the
// false-positive rate applied outside a span, D the false-negative rate
// applied inside it.
type Params struct {
	C []float64
	D []float64
}

// Defaults sets c = ln(0.01) and d = ln(0.3) for every character.
func Defaults(characters int) Params {
	p, _ := FromRates(characters, DefaultFalsePositiveRate, DefaultFalseNegativeRate)
	return p
}

func FromRates(characters int, falsePositive, falseNegative float64) (Params, error) {
	if !(falsePositive > 0 && falsePositive < 1) {
		return Params{}, &DomainError{Character: -1, Param: "false_positive_rate", Value: falsePositive}
	}
	if !(falseNegative > 0 && falseNegative < 1) {
		return Params{}, &DomainError{Character: -1, Param: "false_negative_rate", Value: falseNegative}
	}
	c, d := math.Log(falsePositive), math.Log(falseNegative)
	p := Params{C: make([]float64, characters), D: make([]float64, characters)}
	for m := 0; m < characters; m++ {
		p.C[m] = c
		p.D[m] = d
	}
	return p, nil
}

// Valid reports whether v is a usable log probability: finite and < 0.
func Valid(v float64) bool {
	return v < 0 && !math.IsInf(v, -1)
}

// Check returns the first out-of-domain parameter.
func Check(c, d []float64) error {
	if len(c) != len(d) {
		return fmt.Errorf("parameter length mismatch: c=%d d=%d", len(c), len(d))
	}
	for m := range c {
		if !Valid(c[m]) {
			return &DomainError{Character: m, Param: "c", Value: c[m]}
		}
		if !Valid(d[m]) {
			return &DomainError{Character: m, Param: "d", Value: d[m]}
		}
	}
	return nil
}

func (p Params) Clone() Params {
	return Params{C: append([]float64(nil), p.C...), D: append([]float64(nil), p.D...)}
}
