package model

import (
	"fmt"

	"charspan/internal/order"
)

// VersionedRecord captures schema evolution for report records.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
}

// Matrix is the immutable presence/absence observation matrix together with
// the per-taxon hard-site flags.
type Matrix struct {
	Taxa       int
	Characters int
	cells      []uint8
	hard       []uint8
	hardCount  int
}

// NewMatrix takes ownership of cells (row-major, Taxa*Characters) and hard.
func NewMatrix(taxa, characters int, cells, hard []uint8) (Matrix, error) {
	if taxa < 0 || characters < 0 {
		return Matrix{}, fmt.Errorf("invalid matrix shape %dx%d", taxa, characters)
	}
	if len(cells) != taxa*characters {
		return Matrix{}, fmt.Errorf("matrix has %d cells, want %d", len(cells), taxa*characters)
	}
	if len(hard) != taxa {
		return Matrix{}, fmt.Errorf("hard-site vector has %d entries, want %d", len(hard), taxa)
	}
	count := 0
	for i, v := range cells {
		if v > 1 {
			return Matrix{}, fmt.Errorf("cell %d is %d, want 0 or 1", i, v)
		}
	}
	for i, v := range hard {
		if v > 1 {
			return Matrix{}, fmt.Errorf("hard flag %d is %d, want 0 or 1", i, v)
		}
		count += int(v)
	}
	return Matrix{Taxa: taxa, Characters: characters, cells: cells, hard: hard, hardCount: count}, nil
}

// At returns X[taxon][character].
func (x Matrix) At(taxon, character int) uint8 {
	return x.cells[taxon*x.Characters+character]
}

// Present reports whether taxon was observed with character.
func (x Matrix) Present(taxon, character int) bool {
	return x.At(taxon, character) == 1
}

// Hard returns 1 when taxon is flagged as a hard site, 0 otherwise.
func (x Matrix) Hard(taxon int) uint8 {
	return x.hard[taxon]
}

// HardCount is the number of taxa flagged as hard sites.
func (x Matrix) HardCount() int {
	return x.hardCount
}

// Cells is the number of observations, Taxa*Characters.
func (x Matrix) Cells() int {
	return x.Taxa * x.Characters
}

// Clone returns a deep copy that shares no memory with x.
func (x Matrix) Clone() Matrix {
	x.cells = append([]uint8(nil), x.cells...)
	x.hard = append([]uint8(nil), x.hard...)
	return x
}

// Span is the half-open window [Start, End) of order positions over which a
// character is hypothesized present. Empty marks a column with no presences
// under the current order; its bounds are then [0, N).
type Span struct {
	Start int  `json:"start"`
	End   int  `json:"end"`
	Empty bool `json:"empty,omitempty"`
}

// Contains reports whether position lies in [Start, End).
func (s Span) Contains(position int) bool {
	return s.Start <= position && position < s.End
}

// Counts tallies how observations of one character agree with its span.
type Counts struct {
	TrueNeg  int `json:"tr0"`
	TruePos  int `json:"tr1"`
	FalseNeg int `json:"fa0"`
	FalsePos int `json:"fa1"`
}

// Total is the number of observations tallied.
func (c Counts) Total() int {
	return c.TrueNeg + c.TruePos + c.FalseNeg + c.FalsePos
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		TrueNeg:  c.TrueNeg + o.TrueNeg,
		TruePos:  c.TruePos + o.TruePos,
		FalseNeg: c.FalseNeg + o.FalseNeg,
		FalsePos: c.FalsePos + o.FalsePos,
	}
}

// State is the caller-owned model aggregate. One instance per sampling chain;
// stages read from and write into it in pipeline order.
type State struct {
	Matrix Matrix
	Order  order.Index

	Spans []Span

	// C and D are per-character natural-log probabilities.
	C []float64
	D []float64

	Counts  []Counts
	Totals  Counts
	LogLike float64
}

// NewState wraps matrix with the identity order. Spans, parameters and
// counts are left for the pipeline to fill.
func NewState(matrix Matrix) *State {
	return &State{
		Matrix: matrix,
		Order:  order.NewIdentity(matrix.Taxa),
	}
}

// Taxa is N, the number of matrix rows.
func (s *State) Taxa() int {
	return s.Matrix.Taxa
}

// Characters is M, the number of matrix columns.
func (s *State) Characters() int {
	return s.Matrix.Characters
}
