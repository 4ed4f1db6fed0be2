// Package trace builds the human-auditable reasoning trail of a decision.
package trace

import (
	"fmt"
	"strings"
	"time"

	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
)

// Agent is the logical stage name recorded on every step
const Agent = "DecisionAgent"

// Step actions, in trace order. Consumers index into the trace by position.
const (
	ActionFilter  = "filter_pools"
	ActionScore   = "score_pools"
	ActionSelect  = "select_optimal"
	ActionJustify = "justify_selection"
)

// topScoresShown is how many ranked pools step 2 lists
const topScoresShown = 3

// Stats carries the pool counts seen by the filtering stages
type Stats struct {
	CatalogSize int
	Filtered    int

	// Shortlisted is how many of the filtered pools were kept for risk
	// analysis; 0 means all of them
	Shortlisted int

	Safe int

	// Applied lists the criteria keys the caller supplied, before defaults
	Applied []string
}

// analysed is the number of pools that went on to risk analysis
func (s Stats) analysed() int {
	if s.Shortlisted > 0 && s.Shortlisted < s.Filtered {
		return s.Shortlisted
	}
	return s.Filtered
}

// FilterInput is the input of the filter step
type FilterInput struct {
	TotalPools int            `json:"totalPools"`
	Criteria   model.Criteria `json:"criteria"`
}

// FilterOutput is the output of the filter step
type FilterOutput struct {
	FilteredPools    int      `json:"filteredPools"`
	ShortlistedPools int      `json:"shortlistedPools,omitempty"`
	SafePools        int      `json:"safePools"`
	FiltersApplied   []string `json:"filtersApplied"`
}

// PoolScore pairs a pool id with its total score
type PoolScore struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// ScoreInput is the input of the scoring step
type ScoreInput struct {
	PoolsToScore int `json:"poolsToScore"`
}

// ScoreOutput is the output of the scoring step
type ScoreOutput struct {
	ScoringFactors []string    `json:"scoringFactors"`
	TopScores      []PoolScore `json:"topScores"`
}

// SelectInput is the input of the selection step
type SelectInput struct {
	CandidatePools int `json:"candidatePools"`
}

// SelectedPool summarises the optimal pool
type SelectedPool struct {
	ID        string  `json:"id"`
	Protocol  string  `json:"protocol"`
	Score     float64 `json:"score"`
	APY       float64 `json:"apy"`
	RiskScore float64 `json:"riskScore"`
}

// SelectOutput is the output of the selection step
type SelectOutput struct {
	SelectedPool SelectedPool `json:"selectedPool"`
}

// JustifyInput is the input of the justification step
type JustifyInput struct {
	SelectedPool string `json:"selectedPool"`
}

// Justification lists the properties the selection rests on
type Justification struct {
	APYAdvantage        float64         `json:"apyAdvantage"`
	RiskAssessment      model.RiskLevel `json:"riskAssessment"`
	LiquidityStrength   float64         `json:"liquidityStrength"`
	ProtocolReliability string          `json:"protocolReliability"`
}

// JustifyOutput is the output of the justification step
type JustifyOutput struct {
	Justification Justification `json:"justification"`
}

// ScoringFactors names the composite score components, in order
var ScoringFactors = []string{"apyScore", "riskScore", "liquidityScore", "protocolBonus"}

// Builder creates reasoning traces; each step is stamped when it is built
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a trace builder using the given clock, or time.Now when nil
func NewBuilder(clock func() time.Time) *Builder {
	if clock == nil {
		clock = time.Now
	}
	return &Builder{now: clock}
}

// Build returns exactly four steps: filter, score, select and justify.
// ranked must be ordered by ranking and optimal must be its first element.
func (b *Builder) Build(criteria model.Criteria, stats Stats, ranked []model.ScoredPool, optimal model.ScoredPool) []model.ReasoningStep {
	steps := make([]model.ReasoningStep, 0, 4)

	applied := stats.Applied
	if applied == nil {
		applied = []string{}
	}
	filterReason := fmt.Sprintf("Filtered %d pools down to %d candidates", stats.CatalogSize, stats.Filtered)
	if len(applied) > 0 {
		filterReason += " using criteria: " + strings.Join(applied, ", ")
	}
	shortlisted := 0
	if n := stats.analysed(); n < stats.Filtered {
		shortlisted = n
		filterReason += fmt.Sprintf("; kept the %d highest-APY candidates", n)
	}
	if stats.Safe != stats.analysed() {
		filterReason += fmt.Sprintf("; %d remained after the safety filter", stats.Safe)
	}
	steps = append(steps, b.step(1, ActionFilter,
		FilterInput{TotalPools: stats.CatalogSize, Criteria: criteria},
		FilterOutput{FilteredPools: stats.Filtered, ShortlistedPools: shortlisted, SafePools: stats.Safe, FiltersApplied: applied},
		filterReason,
	))

	top := make([]PoolScore, 0, topScoresShown)
	for i := 0; i < len(ranked) && i < topScoresShown; i++ {
		top = append(top, PoolScore{ID: ranked[i].ID, Score: ranked[i].TotalScore})
	}
	steps = append(steps, b.step(2, ActionScore,
		ScoreInput{PoolsToScore: len(ranked)},
		ScoreOutput{ScoringFactors: ScoringFactors, TopScores: top},
		fmt.Sprintf("Scored pools on APY (up to 40), risk (up to 30), liquidity (up to 20) and protocol (up to 10), adjusted for the %s preference", criteria.Preference),
	))

	steps = append(steps, b.step(3, ActionSelect,
		SelectInput{CandidatePools: len(ranked)},
		SelectOutput{SelectedPool: SelectedPool{
			ID:        optimal.ID,
			Protocol:  optimal.Protocol,
			Score:     optimal.TotalScore,
			APY:       optimal.APYValue(),
			RiskScore: optimal.Risk.RiskScore,
		}},
		fmt.Sprintf("Selected %s with highest composite score (%.2f)", optimal.ID, optimal.TotalScore),
	))

	steps = append(steps, b.step(4, ActionJustify,
		JustifyInput{SelectedPool: optimal.ID},
		JustifyOutput{Justification: Justification{
			APYAdvantage:        optimal.APYValue(),
			RiskAssessment:      optimal.Risk.RiskLevel,
			LiquidityStrength:   optimal.TVLValue(),
			ProtocolReliability: optimal.Protocol,
		}},
		fmt.Sprintf("Pool selected due to %s APY, %s risk and liquidity of %s on %s",
			model.FormatPercent(optimal.APYValue()),
			strings.ReplaceAll(string(optimal.Risk.RiskLevel), "_", " "),
			model.FormatUSD(optimal.TVLValue()),
			optimal.Protocol,
		),
	))

	return steps
}

func (b *Builder) step(n int, action string, input, output interface{}, reasoning string) model.ReasoningStep {
	return model.ReasoningStep{
		Step:      n,
		Agent:     Agent,
		Action:    action,
		Input:     input,
		Output:    output,
		Reasoning: reasoning,
		Timestamp: b.now(),
	}
}
