// Package engine evaluates candidate pools against user criteria and selects
// the optimal one with a reasoning trace.
//
// The pipeline is filter, annotate, safety, score, rank, trace. Every stage
// runs in its own span and reports its candidate count. Advise adds a discover
// stage after the filter that keeps only the top_n highest-APY candidates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/truptisatsangi/robo-defi-advisor/internal/detached"
	"github.com/truptisatsangi/robo-defi-advisor/internal/fetch"
	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
	"github.com/truptisatsangi/robo-defi-advisor/internal/otel"
	"github.com/truptisatsangi/robo-defi-advisor/internal/risk"
	"github.com/truptisatsangi/robo-defi-advisor/internal/scoring"
	"github.com/truptisatsangi/robo-defi-advisor/internal/trace"
	"github.com/truptisatsangi/robo-defi-advisor/internal/validation"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	// ErrNilGateway is returned by New when no fact gateway is supplied
	ErrNilGateway = errors.New("engine: fact gateway is required")

	// ErrNoCatalog is reported by Advise when the engine has no catalog
	ErrNoCatalog = errors.New("engine: no catalog configured")

	// ErrEmptyCatalog is reported when there are no pools to evaluate
	ErrEmptyCatalog = errors.New("no pools available to evaluate")

	// ErrNoCandidates is reported when no pool survives the filters
	ErrNoCandidates = errors.New("no pools match the criteria")

	// ErrInvalidCriteria wraps criteria validation failures
	ErrInvalidCriteria = errors.New("invalid criteria")
)

// Options holds the engine's dependencies
type Options struct {
	// Gateway answers risk fact queries; required
	Gateway fetch.FactGateway

	// Catalog lists pools for Advise; optional
	Catalog fetch.Catalog

	// Filter configures the allow-list, tiers and safest TVL floor; zero value means defaults
	Filter validation.FilterOptions

	// Runner persists risk scores in the background; nil disables persistence
	Runner *detached.Runner

	// DefaultTopN replaces a missing top_n before model.DefaultTopN applies
	DefaultTopN int

	MaxConcurrency int
	Metrics        *Metrics
	Tracer         oteltrace.Tracer
	Clock          func() time.Time
}

// Engine is safe for concurrent use; it holds no per-request state
type Engine struct {
	catalog     fetch.Catalog
	filter      validation.FilterOptions
	defaultTopN int

	annotator *risk.Annotator
	builder   *trace.Builder
	metrics   *Metrics
	tracer    oteltrace.Tracer
	now       func() time.Time
}

// New creates an engine
func New(opts Options) (*Engine, error) {
	if opts.Gateway == nil {
		return nil, ErrNilGateway
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer()
	}
	defaults := validation.DefaultFilterOptions()
	if len(opts.Filter.Registry.Trusted) == 0 {
		opts.Filter.Registry = defaults.Registry
	}
	if opts.Filter.SafestMinTVL <= 0 {
		opts.Filter.SafestMinTVL = defaults.SafestMinTVL
	}

	return &Engine{
		catalog:     opts.Catalog,
		filter:      opts.Filter,
		defaultTopN: opts.DefaultTopN,
		annotator: risk.NewAnnotator(risk.Options{
			Gateway:        opts.Gateway,
			Registry:       opts.Filter.Registry,
			Runner:         opts.Runner,
			MaxConcurrency: opts.MaxConcurrency,
			Clock:          opts.Clock,
		}),
		builder: trace.NewBuilder(opts.Clock),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		now:     opts.Clock,
	}, nil
}

// Advise lists the catalog and evaluates its pools. Only the top_n
// highest-APY pools that pass the filter go on to risk analysis.
func (e *Engine) Advise(ctx context.Context, criteria model.Criteria) model.Decision {
	if e.catalog == nil {
		return e.fail(ctx, e.withDefaults(criteria).Normalize(), OutcomeError, ErrNoCatalog)
	}

	ctx, span := e.tracer.Start(ctx, "catalog.ListPools")
	pools := e.catalog.ListPools(ctx)
	span.SetAttributes(attribute.Int("pools", len(pools)))
	span.End()

	e.metrics.ObserveStage("catalog", len(pools))
	return e.run(ctx, criteria, pools, true)
}

// Evaluate runs the decision pipeline over pools. Data-driven failures, such
// as nothing left after filtering, produce a Decision with Success false, no
// optimal pool, an empty trace and an error message. Panics are recovered and
// reported the same way.
func (e *Engine) Evaluate(ctx context.Context, criteria model.Criteria, pools []model.Pool) model.Decision {
	return e.run(ctx, criteria, pools, false)
}

// run is the shared pipeline; discover shortlists the filtered pools by APY
func (e *Engine) run(ctx context.Context, criteria model.Criteria, pools []model.Pool, discover bool) (decision model.Decision) {
	start := e.now()
	outcome := OutcomeError

	ctx, span := e.tracer.Start(ctx, "engine.Evaluate")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger(ctx).WithField("panic", r).Errorf("Evaluation panicked\n%s", debug.Stack())
			outcome = OutcomeError
			decision = e.fail(ctx, criteria, outcome, fmt.Errorf("internal error: %v", r))
		}
		e.metrics.ObserveDecision(outcome, e.now().Sub(start))
	}()

	applied := criteria.AppliedKeys()
	criteria = e.withDefaults(criteria).Normalize()
	if err := criteria.Validate(); err != nil {
		outcome = OutcomeInvalidCriteria
		return e.fail(ctx, criteria, outcome, fmt.Errorf("%w: %v", ErrInvalidCriteria, err))
	}
	if len(pools) == 0 {
		outcome = OutcomeEmptyCatalog
		return e.fail(ctx, criteria, outcome, ErrEmptyCatalog)
	}

	stats := trace.Stats{CatalogSize: len(pools), Applied: applied}

	_, filterSpan := e.tracer.Start(ctx, "stage.filter")
	candidates := validation.FilterCandidates(pools, criteria, e.filter)
	stats.Filtered = len(candidates)
	e.endStage(filterSpan, "filter", stats.Filtered)
	if len(candidates) == 0 {
		outcome = OutcomeNoCandidates
		return e.fail(ctx, criteria, outcome, fmt.Errorf("%w: 0 of %d pools passed filtering", ErrNoCandidates, len(pools)))
	}

	if discover {
		_, discoverSpan := e.tracer.Start(ctx, "stage.discover")
		candidates = scoring.TopByAPY(candidates, criteria.TopN)
		stats.Shortlisted = len(candidates)
		e.endStage(discoverSpan, "discover", stats.Shortlisted)
	}

	annotateCtx, annotateSpan := e.tracer.Start(ctx, "stage.annotate")
	annotated := e.annotator.AnnotateAll(annotateCtx, candidates)
	e.endStage(annotateSpan, "annotate", len(annotated))

	_, safetySpan := e.tracer.Start(ctx, "stage.safety")
	safe := validation.ApplySafety(annotated, criteria.Preference)
	stats.Safe = len(safe)
	e.endStage(safetySpan, "safety", stats.Safe)
	if len(safe) == 0 {
		outcome = OutcomeNoCandidates
		return e.fail(ctx, criteria, outcome, fmt.Errorf("%w: all %d candidates were excluded by the safety filter", ErrNoCandidates, len(annotated)))
	}

	_, scoreSpan := e.tracer.Start(ctx, "stage.score")
	scored := scoring.ScoreAll(safe, criteria.Preference)
	e.endStage(scoreSpan, "score", len(scored))

	_, rankSpan := e.tracer.Start(ctx, "stage.rank")
	optimal, ordered, err := scoring.Rank(scored)
	e.endStage(rankSpan, "rank", len(ordered))
	if err != nil {
		outcome = OutcomeNoCandidates
		return e.fail(ctx, criteria, outcome, err)
	}

	_, traceSpan := e.tracer.Start(ctx, "stage.trace")
	steps := e.builder.Build(criteria, stats, ordered, optimal)
	traceSpan.End()

	outcome = OutcomeSuccess
	logger(ctx).WithFields(logrus.Fields{
		"pool":       optimal.ID,
		"protocol":   optimal.Protocol,
		"score":      optimal.TotalScore,
		"preference": criteria.Preference,
		"candidates": len(ordered),
	}).Info("Optimal pool selected")

	return model.Decision{
		Success:        true,
		OptimalPool:    &optimal,
		Alternatives:   scoring.Alternatives(ordered, criteria.TopN),
		AllCandidates:  ordered,
		ReasoningTrace: steps,
		Criteria:       criteria,
		Timestamp:      e.now(),
	}
}

func (e *Engine) withDefaults(c model.Criteria) model.Criteria {
	if c.TopN <= 0 && e.defaultTopN > 0 {
		c.TopN = e.defaultTopN
	}
	return c
}

func (e *Engine) endStage(span oteltrace.Span, stage string, n int) {
	span.SetAttributes(attribute.Int("candidates", n))
	span.End()
	e.metrics.ObserveStage(stage, n)
}

func (e *Engine) fail(ctx context.Context, criteria model.Criteria, outcome string, err error) model.Decision {
	otel.RecordError(ctx, err)
	logger(ctx).WithFields(logrus.Fields{
		"outcome": outcome,
		"error":   err,
	}).Warn("No pool selected")
	return model.FailedDecision(criteria, err, e.now())
}
