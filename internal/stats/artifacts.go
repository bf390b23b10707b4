package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"charspan/internal/model"
)

const (
	runIndexFile         = "run_index.json"
	CurrentSchemaVersion = 1

	RunKindScore  = "score"
	RunKindChains = "chains"
)

// artifactFiles are the files a run directory may hold; export copies the
// ones present.
var artifactFiles = []string{"config.json", "summary.json", "order.json", "lifespans.csv", "chains.json"}

var lifespansHeader = []string{"character", "start", "end", "empty", "tr0", "tr1", "fa0", "fa1", "c", "d"}

type RunConfig struct {
	RunID             string  `json:"run_id"`
	Input             string  `json:"input"`
	OrderPath         string  `json:"order_path,omitempty"`
	Fingerprint       string  `json:"fingerprint"`
	Taxa              int     `json:"taxa"`
	Characters        int     `json:"characters"`
	HardSites         int     `json:"hard_sites"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	FalseNegativeRate float64 `json:"false_negative_rate"`
	CreatedAtUTC      string  `json:"created_at_utc"`
}

type Summary struct {
	model.VersionedRecord
	RunID        string       `json:"run_id"`
	LogLike      float64      `json:"loglike"`
	Totals       model.Counts `json:"totals"`
	Cells        int          `json:"cells"`
	EmptyColumns []int        `json:"empty_columns"`
}

// LifespanRow is one character of the lifespans report.
type LifespanRow struct {
	Character int
	Span      model.Span
	Counts    model.Counts
	C         float64
	D         float64
}

type RunArtifacts struct {
	Config    RunConfig
	Summary   Summary
	Order     []int
	Lifespans []LifespanRow
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Kind         string  `json:"kind,omitempty"`
	Input        string  `json:"input"`
	Fingerprint  string  `json:"fingerprint"`
	Taxa         int     `json:"taxa"`
	Characters   int     `json:"characters"`
	LogLike      float64 `json:"loglike"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// FromState captures the report view of a scored state.
func FromState(cfg RunConfig, st *model.State) RunArtifacts {
	rows := make([]LifespanRow, st.Characters())
	empty := make([]int, 0)
	for m := range rows {
		rows[m] = LifespanRow{Character: m, Span: st.Spans[m], Counts: st.Counts[m], C: st.C[m], D: st.D[m]}
		if st.Spans[m].Empty {
			empty = append(empty, m)
		}
	}
	cfg.Taxa = st.Taxa()
	cfg.Characters = st.Characters()
	cfg.HardSites = st.Matrix.HardCount()
	return RunArtifacts{
		Config: cfg,
		Summary: Summary{
			VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion},
			RunID:           cfg.RunID,
			LogLike:         st.LogLike,
			Totals:          st.Totals,
			Cells:           st.Matrix.Cells(),
			EmptyColumns:    empty,
		},
		Order:     st.Order.Permutation(),
		Lifespans: rows,
	}
}

// ValidateRunID rejects ids that could not name a directory directly under
// the runs directory.
func ValidateRunID(runID string) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || strings.Contains(runID, "..") {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return nil
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if err := ValidateRunID(artifacts.Config.RunID); err != nil {
		return "", err
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "order.json"), artifacts.Order); err != nil {
		return "", err
	}
	if err := writeLifespans(filepath.Join(runDir, "lifespans.csv"), artifacts.Lifespans); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if err := ValidateRunID(entry.RunID); err != nil {
		return err
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if err := ValidateRunID(runID); err != nil {
		return "", err
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	copied := 0
	for _, file := range artifactFiles {
		srcFile := filepath.Join(src, file)
		if _, err := os.Stat(srcFile); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(srcFile, filepath.Join(dst, file)); err != nil {
			return "", err
		}
		copied++
	}
	if copied == 0 {
		return "", fmt.Errorf("run %s has no artifacts", runID)
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func ReadSummary(baseDir, runID string) (Summary, bool, error) {
	var summary Summary
	ok, err := readJSON(filepath.Join(baseDir, runID, "summary.json"), &summary)
	if err != nil || !ok {
		return Summary{}, ok, err
	}
	if summary.SchemaVersion != CurrentSchemaVersion {
		return Summary{}, false, fmt.Errorf("summary %s: schema version %d, want %d", runID, summary.SchemaVersion, CurrentSchemaVersion)
	}
	return summary, true, nil
}

func ReadLifespans(baseDir, runID string) ([]LifespanRow, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, "lifespans.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []LifespanRow{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != len(lifespansHeader) {
		return nil, false, fmt.Errorf("lifespans header must have %d columns", len(lifespansHeader))
	}

	rows := make([]LifespanRow, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		row, err := parseLifespanRow(record)
		if err != nil {
			return nil, false, fmt.Errorf("lifespans row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}

func writeLifespans(path string, rows []LifespanRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(lifespansHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			strconv.Itoa(row.Character),
			strconv.Itoa(row.Span.Start),
			strconv.Itoa(row.Span.End),
			strconv.FormatBool(row.Span.Empty),
			strconv.Itoa(row.Counts.TrueNeg),
			strconv.Itoa(row.Counts.TruePos),
			strconv.Itoa(row.Counts.FalseNeg),
			strconv.Itoa(row.Counts.FalsePos),
			strconv.FormatFloat(row.C, 'g', -1, 64),
			strconv.FormatFloat(row.D, 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseLifespanRow(record []string) (LifespanRow, error) {
	if len(record) != len(lifespansHeader) {
		return LifespanRow{}, fmt.Errorf("expected %d columns, got %d", len(lifespansHeader), len(record))
	}
	ints := make([]int, 0, 7)
	for _, i := range []int{0, 1, 2, 4, 5, 6, 7} {
		v, err := strconv.Atoi(record[i])
		if err != nil {
			return LifespanRow{}, fmt.Errorf("%s: %w", lifespansHeader[i], err)
		}
		ints = append(ints, v)
	}
	empty, err := strconv.ParseBool(record[3])
	if err != nil {
		return LifespanRow{}, fmt.Errorf("empty: %w", err)
	}
	c, err := strconv.ParseFloat(record[8], 64)
	if err != nil {
		return LifespanRow{}, fmt.Errorf("c: %w", err)
	}
	d, err := strconv.ParseFloat(record[9], 64)
	if err != nil {
		return LifespanRow{}, fmt.Errorf("d: %w", err)
	}
	return LifespanRow{
		Character: ints[0],
		Span:      model.Span{Start: ints[1], End: ints[2], Empty: empty},
		Counts:    model.Counts{TrueNeg: ints[3], TruePos: ints[4], FalseNeg: ints[5], FalsePos: ints[6]},
		C:         c,
		D:         d,
	}, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
