package charspan

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"charspan/internal/diag"
	"charspan/internal/engine"
	"charspan/internal/errmodel"
	"charspan/internal/matrix"
	"charspan/internal/model"
	"charspan/internal/order"
	"charspan/internal/stats"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
)

type Options struct {
	RunsDir        string
	ExportsDir     string
	Logger         *diag.Logger
	Metrics        *diag.Metrics
	TracerProvider trace.TracerProvider
	Hook           diag.Hook
}

type Client struct {
	runsDir    string
	exportsDir string
	logger     *diag.Logger
	metrics    *diag.Metrics
	tracer     trace.TracerProvider
	hook       diag.Hook
	now        func() time.Time
}

type ScoreRequest struct {
	Input             string
	OrderPath         string
	RunID             string
	FalsePositiveRate float64
	FalseNegativeRate float64
	// SkipArtifacts scores without writing a run directory.
	SkipArtifacts bool
}

type ScoreSummary struct {
	RunID        string
	ArtifactsDir string
	Fingerprint  string
	Taxa         int
	Characters   int
	HardSites    int
	LogLike      float64
	Totals       model.Counts
	EmptyColumns []int
	Lifespans    []LifespanItem
}

type LifespanItem struct {
	Character int          `json:"character"`
	Start     int          `json:"start"`
	End       int          `json:"end"`
	Empty     bool         `json:"empty"`
	Counts    model.Counts `json:"counts"`
	C         float64      `json:"c"`
	D         float64      `json:"d"`
}

type ChainsRequest struct {
	Input             string
	RunID             string
	Chains            int
	Workers           int
	Seed              int64
	FalsePositiveRate float64
	FalseNegativeRate float64
	KeepOrders        bool
}

type ChainsSummary struct {
	RunID      string
	ReportPath string
	Report     stats.ChainsReport
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string  `json:"run_id"`
	Kind         string  `json:"kind"`
	CreatedAtUTC string  `json:"created_at_utc"`
	Input        string  `json:"input"`
	Fingerprint  string  `json:"fingerprint"`
	Taxa         int     `json:"taxa"`
	Characters   int     `json:"characters"`
	LogLike      float64 `json:"loglike"`
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) *Client {
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = diag.NoopLogger()
	}
	return &Client{
		runsDir:    runsDir,
		exportsDir: exportsDir,
		logger:     logger,
		metrics:    opts.Metrics,
		tracer:     opts.TracerProvider,
		hook:       opts.Hook,
		now:        time.Now,
	}
}

func (c *Client) engine(logger *diag.Logger, fp, fn float64) *engine.Engine {
	opts := []engine.Option{engine.WithLogger(logger), engine.WithHook(c.hook)}
	if c.metrics != nil {
		opts = append(opts, engine.WithMetrics(c.metrics))
	}
	if c.tracer != nil {
		opts = append(opts, engine.WithTracerProvider(c.tracer))
	}
	if fp != 0 || fn != 0 {
		opts = append(opts, engine.WithRates(rateOrDefault(fp, errmodel.DefaultFalsePositiveRate), rateOrDefault(fn, errmodel.DefaultFalseNegativeRate)))
	}
	return engine.New(opts...)
}

// Score builds the model from the input matrix, optionally installs an order
// from OrderPath, and records run artifacts.
func (c *Client) Score(ctx context.Context, req ScoreRequest) (ScoreSummary, error) {
	if strings.TrimSpace(req.Input) == "" {
		return ScoreSummary{}, errors.New("input matrix path is required")
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if !req.SkipArtifacts {
		if err := stats.ValidateRunID(req.RunID); err != nil {
			return ScoreSummary{}, err
		}
	}
	logger := c.logger.WithRun(req.RunID)
	eng := c.engine(logger, req.FalsePositiveRate, req.FalseNegativeRate)

	f, err := os.Open(req.Input)
	if err != nil {
		return ScoreSummary{}, err
	}
	defer f.Close()

	st, err := eng.Build(ctx, f)
	if err != nil {
		return ScoreSummary{}, fmt.Errorf("%s: %w", req.Input, err)
	}
	if req.OrderPath != "" {
		pi, err := order.ReadFile(req.OrderPath)
		if err != nil {
			return ScoreSummary{}, err
		}
		if err := eng.SetOrder(ctx, st, pi); err != nil {
			return ScoreSummary{}, fmt.Errorf("apply order %s: %w", req.OrderPath, err)
		}
	}

	cfg := stats.RunConfig{
		RunID:             req.RunID,
		Input:             req.Input,
		OrderPath:         req.OrderPath,
		Fingerprint:       matrix.Fingerprint(st.Matrix),
		FalsePositiveRate: rateOrDefault(req.FalsePositiveRate, errmodel.DefaultFalsePositiveRate),
		FalseNegativeRate: rateOrDefault(req.FalseNegativeRate, errmodel.DefaultFalseNegativeRate),
		CreatedAtUTC:      c.now().UTC().Format(time.RFC3339Nano),
	}
	artifacts := stats.FromState(cfg, st)
	summary := ScoreSummary{
		RunID:        req.RunID,
		Fingerprint:  cfg.Fingerprint,
		Taxa:         st.Taxa(),
		Characters:   st.Characters(),
		HardSites:    st.Matrix.HardCount(),
		LogLike:      st.LogLike,
		Totals:       st.Totals,
		EmptyColumns: artifacts.Summary.EmptyColumns,
		Lifespans:    lifespanItems(artifacts.Lifespans),
	}
	if req.SkipArtifacts {
		return summary, nil
	}

	runDir, err := stats.WriteRunArtifacts(c.runsDir, artifacts)
	if err != nil {
		return ScoreSummary{}, err
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:        req.RunID,
		Kind:         stats.RunKindScore,
		Input:        req.Input,
		Fingerprint:  cfg.Fingerprint,
		Taxa:         summary.Taxa,
		Characters:   summary.Characters,
		LogLike:      summary.LogLike,
		CreatedAtUTC: cfg.CreatedAtUTC,
	}); err != nil {
		return ScoreSummary{}, err
	}
	summary.ArtifactsDir = runDir
	logger.Info("run scored", "loglike", summary.LogLike, "dir", runDir)
	return summary, nil
}

// Chains scores independent random orders of one matrix in parallel. Every
// chain owns its own state; only the engine's hooks are shared.
func (c *Client) Chains(ctx context.Context, req ChainsRequest) (ChainsSummary, error) {
	if strings.TrimSpace(req.Input) == "" {
		return ChainsSummary{}, errors.New("input matrix path is required")
	}
	if req.Chains <= 0 {
		return ChainsSummary{}, errors.New("chains must be > 0")
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if err := stats.ValidateRunID(req.RunID); err != nil {
		return ChainsSummary{}, err
	}
	logger := c.logger.WithRun(req.RunID)

	x, err := matrix.LoadFile(req.Input)
	if err != nil {
		return ChainsSummary{}, err
	}
	eng := c.engine(logger, req.FalsePositiveRate, req.FalseNegativeRate)

	results := make([]stats.ChainResult, req.Chains)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(req.Workers)
	for i := 0; i < req.Chains; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seed := req.Seed + int64(i)
			ord, err := order.Shuffle(rand.New(rand.NewSource(seed)), x.Taxa)
			if err != nil {
				return err
			}
			st, err := eng.NewOrderedState(gctx, x, ord.Permutation())
			if err != nil {
				return fmt.Errorf("chain %d: %w", i, err)
			}
			empty := 0
			for _, s := range st.Spans {
				if s.Empty {
					empty++
				}
			}
			results[i] = stats.ChainResult{Chain: i, Seed: seed, LogLike: st.LogLike, EmptyColumns: empty}
			if req.KeepOrders {
				results[i].Order = st.Order.Permutation()
			}
			logger.WithChain(i).Debug("chain scored", "loglike", st.LogLike)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ChainsSummary{}, err
	}

	report, err := stats.SummarizeChains(req.RunID, matrix.Fingerprint(x), results)
	if err != nil {
		return ChainsSummary{}, err
	}
	path, err := stats.WriteChainsReport(c.runsDir, report)
	if err != nil {
		return ChainsSummary{}, err
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:        req.RunID,
		Kind:         stats.RunKindChains,
		Input:        req.Input,
		Fingerprint:  report.Fingerprint,
		Taxa:         x.Taxa,
		Characters:   x.Characters,
		LogLike:      report.Max,
		CreatedAtUTC: c.now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return ChainsSummary{}, err
	}
	logger.Info("chains scored", "chains", report.Chains, "best", report.Max)
	return ChainsSummary{RunID: req.RunID, ReportPath: path, Report: report}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			Kind:         runKind(e.Kind),
			CreatedAtUTC: e.CreatedAtUTC,
			Input:        e.Input,
			Fingerprint:  e.Fingerprint,
			Taxa:         e.Taxa,
			Characters:   e.Characters,
			LogLike:      e.LogLike,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.runsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func lifespanItems(rows []stats.LifespanRow) []LifespanItem {
	out := make([]LifespanItem, len(rows))
	for i, r := range rows {
		out[i] = LifespanItem{
			Character: r.Character,
			Start:     r.Span.Start,
			End:       r.Span.End,
			Empty:     r.Span.Empty,
			Counts:    r.Counts,
			C:         r.C,
			D:         r.D,
		}
	}
	return out
}

// runKind maps index entries written before runs carried a kind to score.
func runKind(kind string) string {
	if kind == "" {
		return stats.RunKindScore
	}
	return kind
}

func rateOrDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
