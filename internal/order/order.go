package order

import (
	"errors"
	"fmt"
	"math/rand"
)

var ErrNotPermutation = errors.New("order is not a permutation")

// Index holds the taxon ordering pi (position -> taxon) and its inverse rank
// vector (taxon -> position).
type Index struct {
	pi   []int
	rank []int
}

func NewIdentity(n int) Index {
	pi := make([]int, n)
	for i := range pi {
		pi[i] = i
	}
	return Index{pi: pi, rank: Inverse(pi)}
}

// FromPermutation copies pi and computes its inverse.
func FromPermutation(pi []int) (Index, error) {
	if err := Validate(pi); err != nil {
		return Index{}, err
	}
	owned := append([]int(nil), pi...)
	return Index{pi: owned, rank: Inverse(owned)}, nil
}

// Shuffle returns a uniformly random ordering of n taxa.
func Shuffle(rng *rand.Rand, n int) (Index, error) {
	if rng == nil {
		return Index{}, fmt.Errorf("random source is required")
	}
	return FromPermutation(rng.Perm(n))
}

func Validate(pi []int) error {
	seen := make([]bool, len(pi))
	for i, v := range pi {
		if v < 0 || v >= len(pi) {
			return fmt.Errorf("%w: value %d at %d out of range [0,%d)", ErrNotPermutation, v, i, len(pi))
		}
		if seen[v] {
			return fmt.Errorf("%w: value %d repeated at %d", ErrNotPermutation, v, i)
		}
		seen[v] = true
	}
	return nil
}

// Inverse assumes pi is a valid permutation.
func Inverse(pi []int) []int {
	rank := make([]int, len(pi))
	for pos, taxon := range pi {
		rank[taxon] = pos
	}
	return rank
}

func (x Index) Len() int {
	return len(x.pi)
}

// At returns the value stored in pi at index i.
func (x Index) At(i int) int {
	return x.pi[i]
}

// RankOf returns the order position of taxon.
func (x Index) RankOf(taxon int) int {
	return x.rank[taxon]
}

func (x Index) Permutation() []int {
	return append([]int(nil), x.pi...)
}

func (x Index) Ranks() []int {
	return append([]int(nil), x.rank...)
}
