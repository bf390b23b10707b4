package order

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Read parses whitespace-separated taxon indices, position by position.
func Read(r io.Reader) ([]int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	pi := make([]int, 0, 64)
	for scanner.Scan() {
		v, err := strconv.Atoi(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("order position %d: %w", len(pi), err)
		}
		pi = append(pi, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pi, nil
}

func ReadFile(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pi, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read order %s: %w", path, err)
	}
	return pi, nil
}
