package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/truptisatsangi/robo-defi-advisor/internal/detached"
	"github.com/truptisatsangi/robo-defi-advisor/internal/fetch"
	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
	"github.com/truptisatsangi/robo-defi-advisor/internal/types"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrency bounds how many pools are annotated at once
const DefaultMaxConcurrency = 8

// Options configures an Annotator
type Options struct {
	Gateway  fetch.FactGateway
	Registry types.ProtocolRegistry

	// Runner persists computed scores; nil disables persistence
	Runner *detached.Runner

	MaxConcurrency int
	Clock          func() time.Time
}

// Annotator attaches a risk assessment to every pool
type Annotator struct {
	gateway        fetch.FactGateway
	registry       types.ProtocolRegistry
	runner         *detached.Runner
	maxConcurrency int
	now            func() time.Time
}

// NewAnnotator creates an annotator. The gateway is required.
func NewAnnotator(opts Options) *Annotator {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Annotator{
		gateway:        opts.Gateway,
		registry:       opts.Registry,
		runner:         opts.Runner,
		maxConcurrency: opts.MaxConcurrency,
		now:            opts.Clock,
	}
}

// Annotate fetches the pool's facts concurrently and assesses it. Missing
// facts lower the confidence but never block the assessment.
func (a *Annotator) Annotate(ctx context.Context, p model.Pool) model.AnnotatedPool {
	facts := DecodeFacts(a.fetchFacts(ctx, p.ID))
	assessment := Assess(p, facts, a.registry)

	log := logrus.WithFields(logrus.Fields{
		"pool":       p.ID,
		"protocol":   p.Protocol,
		"risk_score": assessment.RiskScore,
		"risk_level": assessment.RiskLevel,
		"facts":      facts.Available,
	})
	if assessment.Neutral {
		log.Warn("Risk facts unavailable, using neutral assessment")
	} else {
		log.Debug("Pool annotated")
		a.persist(ctx, p.ID, assessment.RiskScore)
	}

	return model.AnnotatedPool{Pool: p, Risk: assessment}
}

// AnnotateAll annotates pools concurrently; the output order matches the input order
func (a *Annotator) AnnotateAll(ctx context.Context, pools []model.Pool) []model.AnnotatedPool {
	out := make([]model.AnnotatedPool, len(pools))

	var (
		g    errgroup.Group
		trap panicTrap
	)
	g.SetLimit(a.maxConcurrency)
	for i, p := range pools {
		i, p := i, p
		g.Go(trap.guard(func() {
			out[i] = a.Annotate(ctx, p)
		}))
	}
	_ = g.Wait()
	trap.rethrow()

	return out
}

// fetchFacts queries the five risk facts and the previous score in parallel,
// joined by position
func (a *Annotator) fetchFacts(ctx context.Context, poolID string) []model.Fact {
	queries := fetch.RiskQueries(poolID)
	all := append(queries[:], fetch.PreviousScoreQuery(poolID))

	results := make([]model.Fact, len(all))
	var (
		g    errgroup.Group
		trap panicTrap
	)
	for i, q := range all {
		i, q := i, q
		g.Go(trap.guard(func() {
			results[i] = a.gateway.Query(ctx, q)
		}))
	}
	_ = g.Wait()
	trap.rethrow()

	return results
}

// persist writes the score and analysis time back to the fact store without
// holding up the response
func (a *Annotator) persist(ctx context.Context, poolID string, score float64) {
	if a.runner == nil {
		return
	}
	at := a.now()
	a.runner.Go(ctx, "persist_risk:"+poolID, func(ctx context.Context) error {
		var errs []error
		if !a.gateway.Assert(ctx, fetch.RiskScoreAssertion(poolID, score)) {
			errs = append(errs, fmt.Errorf("risk score for %s not accepted", poolID))
		}
		if !a.gateway.Assert(ctx, fetch.RiskTimestampAssertion(poolID, at)) {
			errs = append(errs, fmt.Errorf("analysis timestamp for %s not accepted", poolID))
		}
		return errors.Join(errs...)
	})
}

// panicTrap keeps the first panic raised by a worker so it can be re-raised on
// the goroutine that waits for the group
type panicTrap struct {
	once  sync.Once
	value interface{}
}

func (t *panicTrap) guard(fn func()) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				t.once.Do(func() { t.value = r })
			}
		}()
		fn()
		return nil
	}
}

// rethrow must only be called after the group has been waited on
func (t *panicTrap) rethrow() {
	if t.value != nil {
		panic(t.value)
	}
}
