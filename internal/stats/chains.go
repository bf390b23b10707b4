package stats

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ChainResult is the score of one independently ordered chain.
type ChainResult struct {
	Chain        int     `json:"chain"`
	Seed         int64   `json:"seed"`
	LogLike      float64 `json:"loglike"`
	EmptyColumns int     `json:"empty_columns"`
	Order        []int   `json:"order,omitempty"`
}

type ChainsReport struct {
	RunID       string        `json:"run_id"`
	Fingerprint string        `json:"fingerprint"`
	Chains      int           `json:"chains"`
	Mean        float64       `json:"mean"`
	Std         float64       `json:"std"`
	Max         float64       `json:"max"`
	Min         float64       `json:"min"`
	BestChain   int           `json:"best_chain"`
	Results     []ChainResult `json:"results"`
}

// SummarizeChains aggregates chain scores; results are expected indexed by
// chain number.
func SummarizeChains(runID, fingerprint string, results []ChainResult) (ChainsReport, error) {
	if len(results) == 0 {
		return ChainsReport{}, fmt.Errorf("no chain results")
	}
	values := make([]float64, len(results))
	for i, r := range results {
		values[i] = r.LogLike
	}
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}
	return ChainsReport{
		RunID:       runID,
		Fingerprint: fingerprint,
		Chains:      len(results),
		Mean:        mean,
		Std:         std,
		Max:         floats.Max(values),
		Min:         floats.Min(values),
		BestChain:   results[floats.MaxIdx(values)].Chain,
		Results:     results,
	}, nil
}

func WriteChainsReport(baseDir string, report ChainsReport) (string, error) {
	if err := ValidateRunID(report.RunID); err != nil {
		return "", err
	}
	runDir := filepath.Join(baseDir, report.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(runDir, "chains.json")
	return path, writeJSON(path, report)
}

func ReadChainsReport(baseDir, runID string) (ChainsReport, bool, error) {
	var report ChainsReport
	ok, err := readJSON(filepath.Join(baseDir, runID, "chains.json"), &report)
	return report, ok, err
}
