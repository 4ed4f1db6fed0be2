// Package risk turns pool metrics and risk facts into a risk assessment.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
	"github.com/truptisatsangi/robo-defi-advisor/internal/types"
)

// Band maxima; the score is the sum of the four bands
const (
	MaxTVLBand      = 30.0
	MaxProtocolBand = 35.0
	MaxAPYBand      = 20.0
	MaxExploitBand  = 15.0

	MaxScore = 100.0

	// MaxRecommendations caps the recommendation list
	MaxRecommendations = 4
)

// TVLBand scores liquidity depth
func TVLBand(tvl float64) float64 {
	switch {
	case tvl > 100_000_000:
		return 30
	case tvl > 50_000_000:
		return 25
	case tvl > 10_000_000:
		return 20
	case tvl > 5_000_000:
		return 15
	case tvl > 1_000_000:
		return 10
	case tvl > 100_000:
		return 5
	default:
		return 0
	}
}

// ProtocolBand scores protocol reputation
func ProtocolBand(tier types.ProtocolTier) float64 {
	switch tier {
	case types.TierOne:
		return 35
	case types.TierTwo:
		return 25
	default:
		return 10
	}
}

// APYBand scores yield sustainability. Very high APY is treated as a risk signal.
func APYBand(apy float64) float64 {
	switch {
	case apy < 5:
		return 20
	case apy < 10:
		return 15
	case apy < 20:
		return 10
	case apy < 50:
		return 5
	default:
		return 0
	}
}

// ExploitBand rewards the absence of a known exploit
func ExploitBand(facts model.RiskFacts) float64 {
	if facts.ExploitHistory == nil {
		return MaxExploitBand
	}
	return 0
}

// LevelFor bands a risk score; higher scores are safer
func LevelFor(score float64) model.RiskLevel {
	switch {
	case score >= 80:
		return model.RiskVeryLow
	case score >= 60:
		return model.RiskLow
	case score >= 40:
		return model.RiskMedium
	case score >= 20:
		return model.RiskHigh
	default:
		return model.RiskVeryHigh
	}
}

// Confidence is the mean of the five fact confidences
func Confidence(facts model.RiskFacts) float64 {
	var sum float64
	for _, c := range facts.Confidences {
		sum += c
	}
	return sum / float64(len(facts.Confidences))
}

// Assess computes the risk assessment of a pool from its metrics and facts.
// When none of the facts could be fetched the neutral assessment is returned.
func Assess(p model.Pool, facts model.RiskFacts, registry types.ProtocolRegistry) model.RiskAssessment {
	if facts.Available == 0 {
		neutral := model.NeutralAssessment()
		neutral.Facts = facts
		return neutral
	}

	tier := registry.Tier(p.Protocol)
	tvl, apy := p.TVLValue(), p.APYValue()

	score := math.Min(MaxScore, TVLBand(tvl)+ProtocolBand(tier)+APYBand(apy)+ExploitBand(facts))
	level := LevelFor(score)

	return model.RiskAssessment{
		RiskScore:       score,
		RiskLevel:       level,
		Reasoning:       reasoning(p, tier, facts),
		Recommendations: recommendations(level, tvl, apy, tier, facts),
		Confidence:      Confidence(facts),
		Facts:           facts,
	}
}

func flag(ok bool) string {
	if ok {
		return "✓"
	}
	return "⚠"
}

// reasoning composes one clause per contributing band
func reasoning(p model.Pool, tier types.ProtocolTier, facts model.RiskFacts) string {
	tvl, apy := p.TVLValue(), p.APYValue()

	var tvlClause string
	if tvl > 1_000_000 {
		tvlClause = fmt.Sprintf("%s TVL of %s provides solid liquidity", flag(true), model.FormatUSD(tvl))
	} else {
		tvlClause = fmt.Sprintf("%s TVL of %s is thin", flag(false), model.FormatUSD(tvl))
	}

	var protocolClause string
	switch tier {
	case types.TierOne:
		protocolClause = fmt.Sprintf("%s %s is a tier-1 protocol", flag(true), p.Protocol)
	case types.TierTwo:
		protocolClause = fmt.Sprintf("%s %s is an established tier-2 protocol", flag(true), p.Protocol)
	default:
		protocolClause = fmt.Sprintf("%s %s has no established reputation", flag(false), p.Protocol)
	}

	var apyClause string
	if apy < 20 {
		apyClause = fmt.Sprintf("%s APY of %s looks sustainable", flag(true), model.FormatPercent(apy))
	} else {
		apyClause = fmt.Sprintf("%s APY of %s may not be sustainable", flag(false), model.FormatPercent(apy))
	}

	var exploitClause string
	if facts.ExploitHistory == nil {
		exploitClause = flag(true) + " no known exploits"
	} else if facts.ExploitHistory.IsZero() {
		exploitClause = flag(false) + " exploit on record"
	} else {
		exploitClause = fmt.Sprintf("%s exploit on record (%s)", flag(false), facts.ExploitHistory.UTC().Format("2006-01-02"))
	}

	return strings.Join([]string{tvlClause, protocolClause, apyClause, exploitClause}, "; ")
}

// recommendations are ordered by risk level, TVL, APY, protocol tier and
// exploit record, then capped
func recommendations(level model.RiskLevel, tvl, apy float64, tier types.ProtocolTier, facts model.RiskFacts) []string {
	recs := make([]string, 0, MaxRecommendations)

	switch level {
	case model.RiskHigh, model.RiskVeryHigh:
		recs = append(recs, "🚨 High risk pool - consider safer alternatives")
	case model.RiskLow, model.RiskVeryLow:
		recs = append(recs, "✅ Low risk pool - suitable for conservative investments")
	default:
		recs = append(recs, "⚖️ Moderate risk - size the position accordingly")
	}

	if tvl < 1_000_000 {
		recs = append(recs, "💧 Low liquidity (TVL below $1M) - expect slippage on exit")
	}

	switch {
	case apy >= 50:
		recs = append(recs, "📉 APY above 50% is unlikely to be sustainable")
	case apy >= 20:
		recs = append(recs, "📈 Elevated APY - verify where the yield comes from")
	}

	switch tier {
	case types.TierUnknown:
		recs = append(recs, "🔍 Unrecognised protocol - review audits before depositing")
	case types.TierTwo:
		recs = append(recs, "🔍 Tier-2 protocol - confirm recent audits")
	}

	if facts.ExploitHistory != nil {
		recs = append(recs, "⚠️ Exploit on record - review the post-mortem and remediation")
	}

	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	return recs
}
