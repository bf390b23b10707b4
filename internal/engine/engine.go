package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"charspan/internal/counts"
	"charspan/internal/diag"
	"charspan/internal/errmodel"
	"charspan/internal/lifespan"
	"charspan/internal/likelihood"
	"charspan/internal/matrix"
	"charspan/internal/model"
	"charspan/internal/order"
)

const tracerName = "charspan/engine"

// Engine runs the construction and scoring pipeline over caller-owned
// states. It holds no model state itself, so one Engine may serve many
// independent chains.
type Engine struct {
	hook    diag.Hook
	logger  *diag.Logger
	metrics *diag.Metrics
	tracer  trace.Tracer
	params  func(characters int) (errmodel.Params, error)
}

type Option func(*Engine)

// WithHook adds a diagnostics hook alongside the logger and metrics hooks.
func WithHook(h diag.Hook) Option {
	return func(e *Engine) { e.hook = h }
}

func WithLogger(l *diag.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *diag.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// WithRates replaces the default initial error rates.
func WithRates(falsePositive, falseNegative float64) Option {
	return func(e *Engine) {
		e.params = func(characters int) (errmodel.Params, error) {
			return errmodel.FromRates(characters, falsePositive, falseNegative)
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		logger: diag.NoopLogger(),
		tracer: otel.Tracer(tracerName),
		params: func(characters int) (errmodel.Params, error) {
			return errmodel.Defaults(characters), nil
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	hooks := []diag.Hook{e.hook, diag.LogHook{Logger: e.logger}}
	if e.metrics != nil {
		hooks = append(hooks, e.metrics)
	}
	e.hook = diag.Multi(hooks...)
	return e
}

// Build loads the matrix from r and runs the full pipeline on a new state.
func (e *Engine) Build(ctx context.Context, r io.Reader) (*model.State, error) {
	ctx, span := e.tracer.Start(ctx, "build")
	defer span.End()

	_, loadSpan := e.tracer.Start(ctx, "load_matrix")
	x, err := matrix.Load(r)
	if err != nil {
		recordError(loadSpan, err)
		loadSpan.End()
		recordError(span, err)
		return nil, fmt.Errorf("build model: %w", err)
	}
	loadSpan.SetAttributes(
		attribute.Int("taxa", x.Taxa),
		attribute.Int("characters", x.Characters),
		attribute.Int("hard_sites", x.HardCount()),
	)
	loadSpan.End()

	st, err := e.NewState(ctx, x)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return st, nil
}

// NewState builds an independent state over a private copy of x with the
// identity order and initial parameters, then scores it.
func (e *Engine) NewState(ctx context.Context, x model.Matrix) (*model.State, error) {
	return e.newState(ctx, x, order.NewIdentity(x.Taxa))
}

// NewOrderedState is NewState with pi installed before the first scoring.
func (e *Engine) NewOrderedState(ctx context.Context, x model.Matrix, pi []int) (*model.State, error) {
	ord, err := checkedOrder(pi, x.Taxa)
	if err != nil {
		return nil, err
	}
	return e.newState(ctx, x, ord)
}

func (e *Engine) newState(ctx context.Context, x model.Matrix, ord order.Index) (*model.State, error) {
	st := model.NewState(x.Clone())
	st.Order = ord
	params, err := e.params(x.Characters)
	if err != nil {
		return nil, fmt.Errorf("initial parameters: %w", err)
	}
	st.C, st.D = params.C, params.D
	if err := e.Rescore(ctx, st); err != nil {
		return nil, err
	}
	e.logger.Debug("model built",
		slog.Int("taxa", st.Taxa()),
		slog.Int("characters", st.Characters()),
		slog.Int("hard_sites", st.Matrix.HardCount()),
		slog.Float64("loglike", st.LogLike),
	)
	return st, nil
}

// Rescore recomputes spans, counts and the log-likelihood of st against its
// current order and parameters. On a domain error the spans and counts are
// updated but LogLike keeps its previous value.
func (e *Engine) Rescore(ctx context.Context, st *model.State) error {
	ctx, span := e.tracer.Start(ctx, "rescore")
	defer span.End()

	_, s := e.tracer.Start(ctx, "estimate_lifespans")
	lifespan.Into(st, e.hook)
	empty := 0
	for _, sp := range st.Spans {
		if sp.Empty {
			empty++
		}
	}
	s.SetAttributes(attribute.Int("empty_columns", empty))
	s.End()
	e.hook.Emit(diag.NewEvent(diag.EventSpans, slog.Int("characters", len(st.Spans)), slog.Int("empty", empty)))

	_, s = e.tracer.Start(ctx, "accumulate_counts")
	counts.Into(st)
	s.End()

	_, s = e.tracer.Start(ctx, "evaluate_likelihood")
	err := e.evaluate(st)
	if err != nil {
		recordError(s, err)
		s.End()
		recordError(span, err)
		return err
	}
	s.SetAttributes(attribute.Float64("loglike", st.LogLike))
	s.End()

	if e.metrics != nil {
		e.metrics.LogLike.Set(st.LogLike)
	}
	e.hook.Emit(diag.NewEvent(diag.EventStateRescored, slog.Float64("loglike", st.LogLike)))
	return nil
}

// SetOrder installs pi as the order of st and rescores. An invalid pi
// leaves st untouched.
func (e *Engine) SetOrder(ctx context.Context, st *model.State, pi []int) error {
	ord, err := checkedOrder(pi, st.Taxa())
	if err != nil {
		return err
	}
	st.Order = ord
	return e.Rescore(ctx, st)
}

// ScoreParams evaluates candidate parameters against the current counts of
// st without modifying it.
func (e *Engine) ScoreParams(st *model.State, c, d []float64) (float64, error) {
	e.countEvaluation()
	ll, err := likelihood.Evaluate(st.Counts, c, d)
	if err != nil {
		e.reportDomainError(err)
		return 0, err
	}
	return ll, nil
}

// ApplyParams commits c and d to st only when they evaluate cleanly.
func (e *Engine) ApplyParams(st *model.State, c, d []float64) error {
	ll, err := e.ScoreParams(st, c, d)
	if err != nil {
		return err
	}
	st.C = append(st.C[:0], c...)
	st.D = append(st.D[:0], d...)
	st.LogLike = ll
	if e.metrics != nil {
		e.metrics.LogLike.Set(ll)
	}
	return nil
}

func (e *Engine) evaluate(st *model.State) error {
	e.countEvaluation()
	if err := likelihood.Into(st); err != nil {
		e.reportDomainError(err)
		return err
	}
	return nil
}

func (e *Engine) countEvaluation() {
	if e.metrics != nil {
		e.metrics.Evaluations.Inc()
	}
}

func (e *Engine) reportDomainError(err error) {
	var de *errmodel.DomainError
	if !errors.As(err, &de) {
		return
	}
	if e.metrics != nil {
		e.metrics.DomainErrors.Inc()
	}
	e.hook.Emit(diag.NewEvent(diag.EventDomainError,
		slog.Int("character", de.Character),
		slog.String("param", de.Param),
		slog.Float64("value", de.Value),
	))
}

func checkedOrder(pi []int, taxa int) (order.Index, error) {
	if len(pi) != taxa {
		return order.Index{}, fmt.Errorf("%w: length %d, want %d", order.ErrNotPermutation, len(pi), taxa)
	}
	return order.FromPermutation(pi)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
