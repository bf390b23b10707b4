package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"charspan/internal/diag"
	"charspan/pkg/charspan"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "score":
		return runScore(ctx, args[1:], stdout, stderr)
	case "lifespans":
		return runLifespans(ctx, args[1:], stdout, stderr)
	case "chains":
		return runChains(ctx, args[1:], stdout, stderr)
	case "runs":
		return runRuns(ctx, args[1:], stdout)
	case "export":
		return runExport(ctx, args[1:], stdout)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type scoreFlags struct {
	fs         *flag.FlagSet
	configPath *string
	settings   scoreSettings
	jsonOut    *bool
	trace      *bool
	metricsOut *string
}

func newScoreFlags(name string) *scoreFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	f := &scoreFlags{fs: fs}
	f.configPath = fs.String("config", "", "optional YAML/JSON run config")
	fs.StringVar(&f.settings.Input, "input", "", "presence/absence matrix file")
	fs.StringVar(&f.settings.Order, "order", "", "optional taxon order file")
	fs.StringVar(&f.settings.RunsDir, "runs-dir", runsDir, "run artifacts directory")
	fs.StringVar(&f.settings.RunID, "run-id", "", "run id (generated when empty)")
	fs.Float64Var(&f.settings.FalsePositiveRate, "fp-rate", 0, "initial false-positive rate (default 0.01)")
	fs.Float64Var(&f.settings.FalseNegativeRate, "fn-rate", 0, "initial false-negative rate (default 0.3)")
	fs.StringVar(&f.settings.LogLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.StringVar(&f.settings.LogFormat, "log-format", "text", "log format: text|json")
	f.jsonOut = fs.Bool("json", false, "emit result as JSON")
	f.trace = fs.Bool("trace", false, "export pipeline spans to stderr")
	f.metricsOut = fs.String("metrics-out", "", "write prometheus textfile metrics to this path")
	return f
}

func (f *scoreFlags) resolve(args []string) (scoreSettings, error) {
	if err := f.fs.Parse(args); err != nil {
		return scoreSettings{}, err
	}
	cfg := fileConfig{}
	if *f.configPath != "" {
		loaded, err := loadFileConfig(*f.configPath)
		if err != nil {
			return scoreSettings{}, err
		}
		cfg = loaded
	}
	settings := merge(cfg, f.fs, f.settings)
	if settings.Input == "" {
		return scoreSettings{}, errors.New("--input is required")
	}
	return settings, nil
}

// observability wires the logger, metrics and tracing shared by a command.
type observability struct {
	logger  *diag.Logger
	metrics *diag.Metrics
	tracing *diag.Tracing
}

func newObservability(level, format string, trace bool, stderr io.Writer) (*observability, error) {
	lvl, err := diag.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	var logger *diag.Logger
	switch format {
	case "", "text":
		logger = diag.NewTextLogger(stderr, lvl)
	case "json":
		logger = diag.NewJSONLogger(stderr, lvl)
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
	tracing, err := diag.NewTracing(trace, stderr)
	if err != nil {
		return nil, err
	}
	return &observability{logger: logger, metrics: diag.NewMetrics(), tracing: tracing}, nil
}

func (o *observability) client(runs string) *charspan.Client {
	return charspan.New(charspan.Options{
		RunsDir:        runs,
		ExportsDir:     exportsDir,
		Logger:         o.logger,
		Metrics:        o.metrics,
		TracerProvider: o.tracing.Provider,
	})
}

func (o *observability) close(ctx context.Context, metricsOut string) error {
	if err := o.tracing.Shutdown(ctx); err != nil {
		return err
	}
	if metricsOut != "" {
		return o.metrics.WriteTextfile(metricsOut)
	}
	return nil
}

func runScore(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := newScoreFlags("score")
	settings, err := flags.resolve(args)
	if err != nil {
		return err
	}
	obs, err := newObservability(settings.LogLevel, settings.LogFormat, *flags.trace, stderr)
	if err != nil {
		return err
	}

	summary, err := obs.client(settings.RunsDir).Score(ctx, charspan.ScoreRequest{
		Input:             settings.Input,
		OrderPath:         settings.Order,
		RunID:             settings.RunID,
		FalsePositiveRate: settings.FalsePositiveRate,
		FalseNegativeRate: settings.FalseNegativeRate,
	})
	if closeErr := obs.close(ctx, *flags.metricsOut); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	if *flags.jsonOut {
		return writeJSON(stdout, map[string]any{
			"run_id":        summary.RunID,
			"artifacts_dir": summary.ArtifactsDir,
			"fingerprint":   summary.Fingerprint,
			"taxa":          summary.Taxa,
			"characters":    summary.Characters,
			"hard_sites":    summary.HardSites,
			"loglike":       summary.LogLike,
			"totals":        summary.Totals,
			"empty_columns": summary.EmptyColumns,
		})
	}
	fmt.Fprintf(stdout, "run completed run_id=%s taxa=%d characters=%d hard_sites=%d cells=%s\n",
		summary.RunID, summary.Taxa, summary.Characters, summary.HardSites,
		humanize.Comma(int64(summary.Taxa*summary.Characters)))
	fmt.Fprintf(stdout, "counts tr0=%d tr1=%d fa0=%d fa1=%d empty_columns=%d\n",
		summary.Totals.TrueNeg, summary.Totals.TruePos, summary.Totals.FalseNeg, summary.Totals.FalsePos, len(summary.EmptyColumns))
	fmt.Fprintf(stdout, "loglike=%.6f\n", summary.LogLike)
	fmt.Fprintf(stdout, "artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runLifespans(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := newScoreFlags("lifespans")
	settings, err := flags.resolve(args)
	if err != nil {
		return err
	}
	obs, err := newObservability(settings.LogLevel, settings.LogFormat, *flags.trace, stderr)
	if err != nil {
		return err
	}

	summary, err := obs.client(settings.RunsDir).Score(ctx, charspan.ScoreRequest{
		Input:             settings.Input,
		OrderPath:         settings.Order,
		RunID:             settings.RunID,
		FalsePositiveRate: settings.FalsePositiveRate,
		FalseNegativeRate: settings.FalseNegativeRate,
		SkipArtifacts:     true,
	})
	if closeErr := obs.close(ctx, *flags.metricsOut); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	if *flags.jsonOut {
		return writeJSON(stdout, summary.Lifespans)
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "character\tstart\tend\tempty\ttr0\ttr1\tfa0\tfa1")
	for _, l := range summary.Lifespans {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%t\t%d\t%d\t%d\t%d\n",
			l.Character, l.Start, l.End, l.Empty, l.Counts.TrueNeg, l.Counts.TruePos, l.Counts.FalseNeg, l.Counts.FalsePos)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "loglike=%.6f\n", summary.LogLike)
	return nil
}

func runChains(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("chains", flag.ContinueOnError)
	input := fs.String("input", "", "presence/absence matrix file")
	chains := fs.Int("chains", 8, "independent random orders to score")
	workers := fs.Int("workers", 4, "parallel chain workers")
	seed := fs.Int64("seed", 1, "base random seed; chain i uses seed+i")
	runID := fs.String("run-id", "", "run id (generated when empty)")
	runs := fs.String("runs-dir", runsDir, "run artifacts directory")
	keepOrders := fs.Bool("keep-orders", false, "store each chain's order in the report")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	logFormat := fs.String("log-format", "text", "log format: text|json")
	trace := fs.Bool("trace", false, "export pipeline spans to stderr")
	metricsOut := fs.String("metrics-out", "", "write prometheus textfile metrics to this path")
	jsonOut := fs.Bool("json", false, "emit report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("--input is required")
	}
	if *chains <= 0 {
		return errors.New("chains must be > 0")
	}
	if *workers <= 0 {
		return errors.New("workers must be > 0")
	}
	obs, err := newObservability(*logLevel, *logFormat, *trace, stderr)
	if err != nil {
		return err
	}

	summary, err := obs.client(*runs).Chains(ctx, charspan.ChainsRequest{
		Input:      *input,
		RunID:      *runID,
		Chains:     *chains,
		Workers:    *workers,
		Seed:       *seed,
		KeepOrders: *keepOrders,
	})
	if closeErr := obs.close(ctx, *metricsOut); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(stdout, summary.Report)
	}
	r := summary.Report
	fmt.Fprintf(stdout, "chains run_id=%s chains=%d best_chain=%d\n", summary.RunID, r.Chains, r.BestChain)
	fmt.Fprintf(stdout, "loglike mean=%.6f std=%.6f max=%.6f min=%.6f\n", r.Mean, r.Std, r.Max, r.Min)
	fmt.Fprintf(stdout, "report=%s\n", summary.ReportPath)
	return nil
}

func runRuns(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	runs := fs.String("runs-dir", runsDir, "run artifacts directory")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	items, err := charspan.New(charspan.Options{RunsDir: *runs}).Runs(ctx, charspan.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(stdout, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(stdout, "run_id=%s kind=%s created_at=%s input=%s taxa=%d characters=%d loglike=%.6f\n",
			item.RunID, item.Kind, item.CreatedAtUTC, item.Input, item.Taxa, item.Characters, item.LogLike)
	}
	return nil
}

func runExport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id to export")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", exportsDir, "export output directory")
	runs := fs.String("runs-dir", runsDir, "run artifacts directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	exported, err := charspan.New(charspan.Options{RunsDir: *runs, ExportsDir: *outDir}).Export(ctx, charspan.ExportRequest{
		RunID:  *runID,
		Latest: *latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: charspanctl <score|lifespans|chains|runs|export> [flags]", msg)
}
