package order

import (
	"errors"
	"math/rand"
	"testing"

	"pgregory.net/rapid"
)

func TestNewIdentity(t *testing.T) {
	idx := NewIdentity(5)
	if idx.Len() != 5 {
		t.Fatalf("expected len 5, got %d", idx.Len())
	}
	for i := 0; i < 5; i++ {
		if idx.At(i) != i || idx.RankOf(i) != i {
			t.Fatalf("expected identity at %d, got pi=%d rank=%d", i, idx.At(i), idx.RankOf(i))
		}
	}
}

func TestFromPermutationComputesInverse(t *testing.T) {
	idx, err := FromPermutation([]int{2, 0, 3, 1})
	if err != nil {
		t.Fatalf("from permutation: %v", err)
	}
	want := []int{1, 3, 0, 2}
	for taxon, pos := range want {
		if idx.RankOf(taxon) != pos {
			t.Fatalf("rank of taxon %d: got %d want %d", taxon, idx.RankOf(taxon), pos)
		}
	}
}

func TestFromPermutationCopiesInput(t *testing.T) {
	pi := []int{1, 0}
	idx, err := FromPermutation(pi)
	if err != nil {
		t.Fatalf("from permutation: %v", err)
	}
	pi[0] = 0
	if idx.At(0) != 1 {
		t.Fatalf("index aliased caller slice")
	}
}

func TestFromPermutationRejectsInvalid(t *testing.T) {
	cases := map[string][]int{
		"repeat":   {0, 0, 1},
		"negative": {0, -1, 1},
		"range":    {0, 1, 3},
	}
	for name, pi := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromPermutation(pi); !errors.Is(err, ErrNotPermutation) {
				t.Fatalf("expected ErrNotPermutation, got %v", err)
			}
		})
	}
}

func TestShuffleRequiresRandomSource(t *testing.T) {
	if _, err := Shuffle(nil, 3); err == nil {
		t.Fatal("expected error for nil rng")
	}
}

func TestShuffleDeterministicWithSeed(t *testing.T) {
	a, err := Shuffle(rand.New(rand.NewSource(11)), 16)
	if err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	b, err := Shuffle(rand.New(rand.NewSource(11)), 16)
	if err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	for i := 0; i < 16; i++ {
		if a.At(i) != b.At(i) {
			t.Fatalf("expected equal orders for equal seeds at %d", i)
		}
	}
}

func TestRankIsInverseOfPermutation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 64).Draw(t, "n")
		pi := rapid.Permutation(identity(n)).Draw(t, "pi")
		idx, err := FromPermutation(pi)
		if err != nil {
			t.Fatalf("from permutation: %v", err)
		}
		for pos := 0; pos < n; pos++ {
			if idx.RankOf(idx.At(pos)) != pos {
				t.Fatalf("rank[pi[%d]] = %d", pos, idx.RankOf(idx.At(pos)))
			}
		}
	})
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
