// Package model defines the core data structures for the decision engine.
package model

import (
	"time"

	"github.com/tidwall/gjson"
)

// Pool represents a single liquidity or lending pool returned by the catalog.
// It is treated as immutable once fetched; every stage reads it by value.
type Pool struct {
	// ID is opaque and unique within one discovery run
	ID string `json:"id"`

	// Protocol is the display name of the protocol, e.g. "Uniswap V3"
	Protocol string `json:"protocol"`

	// Chain is the network the pool lives on
	Chain string `json:"chain"`

	Symbol  string `json:"symbol"`
	Project string `json:"project"`

	// TVL is the Total Value Locked in USD. Nil means the source did not report it.
	TVL *float64 `json:"tvl"`

	// APY is the Annual Percentage Yield in percent (8.5 means 8.5%).
	// Nil means the source did not report it; zero or negative means no yield.
	APY *float64 `json:"apy"`

	URL string `json:"url,omitempty"`
}

// NewPool creates a pool with both metrics present
func NewPool(id, protocol, chain, symbol string, tvl, apy float64) Pool {
	return Pool{
		ID:       id,
		Protocol: protocol,
		Chain:    chain,
		Symbol:   symbol,
		Project:  protocol,
		TVL:      Float(tvl),
		APY:      Float(apy),
	}
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// HasMetrics reports whether both TVL and APY are present
func (p Pool) HasMetrics() bool {
	return p.TVL != nil && p.APY != nil
}

// TVLValue returns the TVL or 0 when missing
func (p Pool) TVLValue() float64 {
	if p.TVL == nil {
		return 0
	}
	return *p.TVL
}

// APYValue returns the APY or 0 when missing
func (p Pool) APYValue() float64 {
	if p.APY == nil {
		return 0
	}
	return *p.APY
}

// Fact is a single answer from the risk fact gateway.
type Fact struct {
	// Result holds the raw JSON value of the answer; it does not exist when unknown
	Result gjson.Result

	// Confidence in [0,1]; 0 when the fact is unknown
	Confidence float64

	// Available is false when the gateway could not be reached at all
	// (timeout, transport error, non-2xx, open circuit)
	Available bool
}

// UnknownFact is returned for any fetch-layer failure
func UnknownFact() Fact {
	return Fact{}
}

// Known reports whether the gateway answered with a non-null result
func (f Fact) Known() bool {
	return f.Available && f.Result.Exists() && f.Result.Type != gjson.Null
}

// RiskFacts holds the per-pool facts fetched for one evaluation.
type RiskFacts struct {
	ContractVerified    *bool      `json:"contractVerified"`
	AuditLink           *string    `json:"auditLink"`
	HolderConcentration *float64   `json:"holderConcentration"`
	LiquidityScore      *float64   `json:"liquidityScore"`
	ExploitHistory      *time.Time `json:"exploitHistory"`

	// PreviousRiskScore is the last score persisted for the pool, informational only
	PreviousRiskScore *float64 `json:"previousRiskScore,omitempty"`

	// Confidences in the order above: contract, audit, concentration, liquidity, exploit
	Confidences [5]float64 `json:"confidences"`

	// Available counts how many of the five facts the gateway could be asked about
	Available int `json:"available"`
}

// RiskLevel is the discrete band of a risk score. Higher scores are safer.
type RiskLevel string

// Risk levels, safest first
const (
	RiskVeryLow  RiskLevel = "very_low"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// Numeric maps the level onto the 0-100 scale used by the composite scorer.
// Unknown levels map to medium.
func (l RiskLevel) Numeric() float64 {
	switch l {
	case RiskVeryLow:
		return 10
	case RiskLow:
		return 30
	case RiskHigh:
		return 70
	case RiskVeryHigh:
		return 90
	default:
		return 50
	}
}

// RiskAssessment is derived from a pool and its facts.
type RiskAssessment struct {
	RiskScore       float64   `json:"riskScore"`
	RiskLevel       RiskLevel `json:"riskLevel"`
	Reasoning       string    `json:"reasoning"`
	Recommendations []string  `json:"recommendations"`
	Confidence      float64   `json:"confidence"`
	Facts           RiskFacts `json:"factors"`

	// Neutral is set when no fact could be fetched and the default was substituted
	Neutral bool `json:"neutral,omitempty"`
}

// NeutralAssessment is substituted when the fact layer failed completely
func NeutralAssessment() RiskAssessment {
	return RiskAssessment{
		RiskScore:       50,
		RiskLevel:       RiskMedium,
		Reasoning:       "Risk facts unavailable; neutral assessment applied",
		Recommendations: []string{},
		Neutral:         true,
	}
}

// AnnotatedPool is a pool with its risk assessment attached.
type AnnotatedPool struct {
	Pool
	Risk RiskAssessment `json:"riskData"`
}

// ScoreFactors holds the individually bounded components of the composite score.
type ScoreFactors struct {
	APYScore       float64 `json:"apyScore"`
	RiskScore      float64 `json:"riskScore"`
	LiquidityScore float64 `json:"liquidityScore"`
	ProtocolBonus  float64 `json:"protocolBonus"`
}

// Base returns the unadjusted sum of the factors
func (f ScoreFactors) Base() float64 {
	return f.APYScore + f.RiskScore + f.LiquidityScore + f.ProtocolBonus
}

// ScoredPool is the final per-pool output of the engine.
type ScoredPool struct {
	AnnotatedPool
	ScoreFactors ScoreFactors `json:"scoreFactors"`
	TotalScore   float64      `json:"totalScore"`

	// Ranking is 1-based and assigned after sorting; 0 means not ranked yet
	Ranking int `json:"ranking"`
}
