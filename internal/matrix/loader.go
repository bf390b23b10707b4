package matrix

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"charspan/internal/model"
)

// HardMarker flags a taxon row as a hard site when it follows the last cell.
const HardMarker = "*"

const maxLineBytes = 64 << 20

// FormatError reports malformed matrix input. Line is 1-based.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("matrix format: line %d: %s", e.Line, e.Reason)
}

func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

func LoadFile(path string) (model.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Matrix{}, err
	}
	defer f.Close()

	x, err := Load(f)
	if err != nil {
		return model.Matrix{}, fmt.Errorf("load %s: %w", path, err)
	}
	return x, nil
}

// Load parses a header line "N M" followed by N rows of M 0/1 tokens, each
// optionally followed by the hard marker.
func Load(r io.Reader) (model.Matrix, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		line++
		return scanner.Text(), true
	}

	header, ok := next()
	if !ok {
		if err := scanner.Err(); err != nil {
			return model.Matrix{}, err
		}
		return model.Matrix{}, &FormatError{Line: 1, Reason: "missing header"}
	}
	taxa, characters, err := parseHeader(header)
	if err != nil {
		return model.Matrix{}, &FormatError{Line: line, Reason: err.Error()}
	}

	var cells, hard []uint8
	for n := 0; n < taxa; n++ {
		text, ok := next()
		if !ok {
			if err := scanner.Err(); err != nil {
				return model.Matrix{}, err
			}
			return model.Matrix{}, &FormatError{Line: line + 1, Reason: fmt.Sprintf("expected %d rows, got %d", taxa, n)}
		}
		var isHard bool
		cells, isHard, err = parseRow(text, characters, cells)
		if err != nil {
			return model.Matrix{}, &FormatError{Line: line, Reason: err.Error()}
		}
		if isHard {
			hard = append(hard, 1)
		} else {
			hard = append(hard, 0)
		}
	}

	return model.NewMatrix(taxa, characters, cells, hard)
}

func parseHeader(text string) (int, int, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("header must hold two integers, got %d fields", len(fields))
	}
	taxa, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("taxon count: %w", err)
	}
	characters, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("character count: %w", err)
	}
	if taxa < 0 || characters < 0 {
		return 0, 0, fmt.Errorf("negative dimensions %d %d", taxa, characters)
	}
	if characters > 0 && taxa > math.MaxInt/characters {
		return 0, 0, fmt.Errorf("dimensions %d x %d overflow", taxa, characters)
	}
	return taxa, characters, nil
}

// parseRow appends the leading characters tokens of text to cells and
// reports whether the token after the last cell is the hard marker. Further
// tokens are ignored.
func parseRow(text string, characters int, cells []uint8) ([]uint8, bool, error) {
	fields := strings.Fields(text)
	if len(fields) < characters {
		return cells, false, fmt.Errorf("expected %d cells, got %d", characters, len(fields))
	}
	for m := 0; m < characters; m++ {
		switch fields[m] {
		case "0":
			cells = append(cells, 0)
		case "1":
			cells = append(cells, 1)
		default:
			return cells, false, fmt.Errorf("cell %d: %q is not 0 or 1", m, fields[m])
		}
	}
	return cells, len(fields) > characters && fields[characters] == HardMarker, nil
}

// Fingerprint is a hex blake3 digest over shape, cells and hard flags.
func Fingerprint(x model.Matrix) string {
	h := blake3.New()
	var dims [16]byte
	binary.LittleEndian.PutUint64(dims[:8], uint64(x.Taxa))
	binary.LittleEndian.PutUint64(dims[8:], uint64(x.Characters))
	_, _ = h.Write(dims[:])

	row := make([]byte, x.Characters+1)
	for n := 0; n < x.Taxa; n++ {
		for m := 0; m < x.Characters; m++ {
			row[m] = x.At(n, m)
		}
		row[x.Characters] = x.Hard(n)
		_, _ = h.Write(row)
	}
	return hex.EncodeToString(h.Sum(nil))
}
