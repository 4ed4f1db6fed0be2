package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/truptisatsangi/robo-defi-advisor/internal/detached"
	"github.com/truptisatsangi/robo-defi-advisor/internal/fetch"
	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
	"github.com/truptisatsangi/robo-defi-advisor/internal/trace"
	"github.com/truptisatsangi/robo-defi-advisor/internal/types"
	"github.com/truptisatsangi/robo-defi-advisor/internal/validation"
)

// stubGateway answers every query through answer; a nil answer means the
// store knows nothing. Assertions are recorded.
type stubGateway struct {
	mu       sync.Mutex
	answer   func(fact string) (string, bool)
	down     bool
	asserted []string
}

func (g *stubGateway) Query(_ context.Context, fact string) model.Fact {
	if g.down {
		return model.UnknownFact()
	}
	if g.answer != nil {
		if raw, ok := g.answer(fact); ok {
			return model.Fact{Result: gjson.Parse(raw), Confidence: 0.9, Available: true}
		}
	}
	return model.Fact{Result: gjson.Parse("null"), Available: true}
}

func (g *stubGateway) Assert(_ context.Context, fact string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.asserted = append(g.asserted, fact)
	return true
}

func (g *stubGateway) assertions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.asserted...)
}

// countingGateway counts queries and knows nothing
type countingGateway struct {
	stubGateway
	queries atomic.Int64
}

func (g *countingGateway) Query(ctx context.Context, fact string) model.Fact {
	g.queries.Add(1)
	return g.stubGateway.Query(ctx, fact)
}

type panickingGateway struct{ stubGateway }

func (*panickingGateway) Query(context.Context, string) model.Fact {
	panic("boom")
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts Options) (*Engine, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	opts.Metrics = m
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return fixedNow }
	}
	e, err := New(opts)
	require.NoError(t, err)
	return e, m
}

func catalog() []model.Pool {
	return []model.Pool{
		model.NewPool("u1", "Uniswap V3", "ethereum", "ETH/USDC", 150_000_000, 12),
		model.NewPool("a1", "Aave V3", "ethereum", "USDC", 80_000_000, 6),
		model.NewPool("f1", "Unknown Farm", "ethereum", "FARM/ETH", 90_000_000, 40),
		model.NewPool("c1", "Compound V3", "ethereum", "USDC", 20_000_000, 4),
	}
}

func TestNew_RequiresGateway(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNilGateway)
}

func TestEvaluate_FullPipeline(t *testing.T) {
	gw := &stubGateway{}
	runner := detached.NewRunner()
	e, m := newTestEngine(t, Options{Gateway: gw, Runner: runner})

	criteria := model.Criteria{MinTVL: model.Float(1_000_000), TopN: 2}
	d := e.Evaluate(context.Background(), criteria, catalog())
	runner.Wait()

	require.True(t, d.Success, d.Error)
	require.NotNil(t, d.OptimalPool)
	assert.Empty(t, d.Error)
	assert.Equal(t, fixedNow, d.Timestamp)
	assert.Equal(t, model.PreferenceMedium, d.Criteria.Preference)

	require.Len(t, d.AllCandidates, 3, "untrusted protocol is filtered out")
	for i, p := range d.AllCandidates {
		assert.Equal(t, i+1, p.Ranking)
		assert.NotEqual(t, "f1", p.ID)
		if i > 0 {
			assert.GreaterOrEqual(t, d.AllCandidates[i-1].TotalScore, p.TotalScore)
		}
	}
	assert.Equal(t, d.AllCandidates[0].ID, d.OptimalPool.ID)
	require.Len(t, d.Alternatives, 1, "optimal plus alternatives is capped at top_n")
	assert.Equal(t, d.AllCandidates[1].ID, d.Alternatives[0].ID)

	require.Len(t, d.ReasoningTrace, 4)
	assert.Equal(t, 4, d.ReasoningTrace[0].Input.(trace.FilterInput).TotalPools)
	assert.Equal(t, 3, d.ReasoningTrace[0].Output.(trace.FilterOutput).FilteredPools)
	assert.Equal(t, trace.ActionJustify, d.ReasoningTrace[3].Action)

	// Two assertions per annotated pool
	assert.Len(t, gw.assertions(), 6)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.stageCandidates.WithLabelValues("filter")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.stageCandidates.WithLabelValues("rank")))
}

func TestEvaluate_EmptyCatalog(t *testing.T) {
	e, m := newTestEngine(t, Options{Gateway: &stubGateway{}})

	d := e.Evaluate(context.Background(), model.Criteria{Preference: model.PreferenceSafest}, nil)

	assert.False(t, d.Success)
	assert.Nil(t, d.OptimalPool)
	assert.Empty(t, d.ReasoningTrace)
	assert.NotNil(t, d.ReasoningTrace)
	assert.Empty(t, d.Alternatives)
	assert.Equal(t, ErrEmptyCatalog.Error(), d.Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues(OutcomeEmptyCatalog)))
}

func TestEvaluate_NoCandidates(t *testing.T) {
	e, m := newTestEngine(t, Options{Gateway: &stubGateway{}})

	d := e.Evaluate(context.Background(), model.Criteria{MinAPY: model.Float(90)}, catalog())

	assert.False(t, d.Success)
	assert.Nil(t, d.OptimalPool)
	assert.Contains(t, d.Error, ErrNoCandidates.Error())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues(OutcomeNoCandidates)))
}

func TestEvaluate_SafestDropsVeryHighRisk(t *testing.T) {
	gw := &stubGateway{answer: func(fact string) (string, bool) {
		if strings.HasPrefix(fact, "last_exploit(s1,") {
			return `"2024-02-01T00:00:00Z"`, true
		}
		return "", false
	}}
	e, _ := newTestEngine(t, Options{
		Gateway: gw,
		Filter: validation.FilterOptions{
			Registry:     types.ProtocolRegistry{Trusted: []string{"uniswap", "sketchy"}, Tier1: []string{"uniswap"}},
			SafestMinTVL: 1,
		},
	})

	pools := []model.Pool{
		// tvl 0 + unknown tier 10 + apy 0 + exploit 0 = 10, very_high
		model.NewPool("s1", "Sketchy Finance", "ethereum", "SKY/ETH", 50_000, 80),
		model.NewPool("u1", "Uniswap V3", "ethereum", "ETH/USDC", 150_000_000, 4),
	}
	d := e.Evaluate(context.Background(), model.Criteria{Preference: model.PreferenceSafest}, pools)

	require.True(t, d.Success, d.Error)
	assert.Equal(t, "u1", d.OptimalPool.ID)
	require.Len(t, d.AllCandidates, 1)
	out := d.ReasoningTrace[0].Output.(trace.FilterOutput)
	assert.Equal(t, 2, out.FilteredPools)
	assert.Equal(t, 1, out.SafePools)
}

func TestEvaluate_InvalidPreference(t *testing.T) {
	e, m := newTestEngine(t, Options{Gateway: &stubGateway{}})

	d := e.Evaluate(context.Background(), model.Criteria{Preference: "aggressive"}, catalog())

	assert.False(t, d.Success)
	assert.Contains(t, d.Error, ErrInvalidCriteria.Error())
	assert.Contains(t, d.Error, "aggressive")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues(OutcomeInvalidCriteria)))
}

func TestEvaluate_PreferenceIsCaseInsensitive(t *testing.T) {
	e, _ := newTestEngine(t, Options{Gateway: &stubGateway{}})

	d := e.Evaluate(context.Background(), model.Criteria{Preference: "SAFEST"}, catalog())

	require.True(t, d.Success, d.Error)
	assert.Equal(t, model.PreferenceSafest, d.Criteria.Preference)
}

func TestEvaluate_GatewayDownUsesNeutralRisk(t *testing.T) {
	runner := detached.NewRunner()
	e, _ := newTestEngine(t, Options{Gateway: &stubGateway{down: true}, Runner: runner})

	d := e.Evaluate(context.Background(), model.Criteria{}, catalog())
	runner.Wait()

	require.True(t, d.Success, d.Error)
	for _, p := range d.AllCandidates {
		assert.True(t, p.Risk.Neutral)
		assert.Equal(t, model.RiskMedium, p.Risk.RiskLevel)
	}
	started, _ := runner.Stats()
	assert.Zero(t, started, "neutral assessments are not persisted")
}

func TestEvaluate_RecoversPanic(t *testing.T) {
	e, m := newTestEngine(t, Options{Gateway: &panickingGateway{}})

	var d model.Decision
	require.NotPanics(t, func() {
		d = e.Evaluate(context.Background(), model.Criteria{}, catalog())
	})

	assert.False(t, d.Success)
	assert.Nil(t, d.OptimalPool)
	assert.Empty(t, d.ReasoningTrace)
	assert.Contains(t, d.Error, "boom")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues(OutcomeError)))
}

func TestAdvise(t *testing.T) {
	t.Run("uses the catalog", func(t *testing.T) {
		e, m := newTestEngine(t, Options{Gateway: &stubGateway{}, Catalog: fetch.NewStaticCatalog(catalog())})

		d := e.Advise(context.Background(), model.Criteria{Preference: model.PreferenceHighestYield})

		require.True(t, d.Success, d.Error)
		assert.Len(t, d.AllCandidates, 3)
		assert.Equal(t, 4.0, testutil.ToFloat64(m.stageCandidates.WithLabelValues("catalog")))
	})

	t.Run("without a catalog", func(t *testing.T) {
		e, _ := newTestEngine(t, Options{Gateway: &stubGateway{}})

		d := e.Advise(context.Background(), model.Criteria{})

		assert.False(t, d.Success)
		assert.Equal(t, ErrNoCatalog.Error(), d.Error)
	})
}

func TestAdvise_AnalysesOnlyTopNByAPY(t *testing.T) {
	pools := make([]model.Pool, 500)
	for i := range pools {
		pools[i] = model.NewPool(fmt.Sprintf("u%03d", i), "Uniswap V3", "ethereum", "ETH/USDC", 150_000_000, float64(i%100)+1)
	}
	// Two clear leaders on APY
	pools[137].APY = model.Float(250)
	pools[402].APY = model.Float(300)

	gw := &countingGateway{}
	e, m := newTestEngine(t, Options{Gateway: gw, Catalog: fetch.NewStaticCatalog(pools)})

	d := e.Advise(context.Background(), model.Criteria{TopN: 2})

	require.True(t, d.Success, d.Error)
	require.Len(t, d.AllCandidates, 2)
	assert.ElementsMatch(t, []string{"u402", "u137"}, []string{d.AllCandidates[0].ID, d.AllCandidates[1].ID})
	assert.Equal(t, int64(12), gw.queries.Load(), "six fact queries per shortlisted pool")

	out := d.ReasoningTrace[0].Output.(trace.FilterOutput)
	assert.Equal(t, 500, d.ReasoningTrace[0].Input.(trace.FilterInput).TotalPools)
	assert.Equal(t, 500, out.FilteredPools)
	assert.Equal(t, 2, out.ShortlistedPools)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageCandidates.WithLabelValues("discover")))
}

func TestEvaluate_DoesNotShortlist(t *testing.T) {
	gw := &countingGateway{}
	e, _ := newTestEngine(t, Options{Gateway: gw})

	d := e.Evaluate(context.Background(), model.Criteria{TopN: 1}, catalog())

	require.True(t, d.Success, d.Error)
	assert.Len(t, d.AllCandidates, 3)
	assert.Empty(t, d.Alternatives)
	assert.Zero(t, d.ReasoningTrace[0].Output.(trace.FilterOutput).ShortlistedPools)
}

func TestEvaluate_ReportsSuppliedCriteriaOnly(t *testing.T) {
	e, _ := newTestEngine(t, Options{Gateway: &stubGateway{}, DefaultTopN: 3})

	tests := []struct {
		name     string
		criteria model.Criteria
		want     []string
	}{
		{"nothing supplied", model.Criteria{}, []string{}},
		{"only min_tvl", model.Criteria{MinTVL: model.Float(1)}, []string{"min_tvl"}},
		{"preference and top_n", model.Criteria{Preference: "safest", TopN: 2}, []string{"preference", "top_n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Evaluate(context.Background(), tt.criteria, catalog())

			require.True(t, d.Success, d.Error)
			assert.Equal(t, tt.want, d.ReasoningTrace[0].Output.(trace.FilterOutput).FiltersApplied)
		})
	}

	d := e.Evaluate(context.Background(), model.Criteria{}, catalog())
	assert.Equal(t, model.PreferenceMedium, d.Criteria.Preference, "defaults still resolve")
	assert.Equal(t, 3, d.Criteria.TopN, "engine default top_n")
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "req-1", logger(ctx).Data["request_id"])
	assert.Empty(t, RequestID(context.Background()))
}

var _ fetch.FactGateway = (*stubGateway)(nil)
