// Package scoring computes composite pool scores and ranks the candidates.
package scoring

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
)

// Factor caps
const (
	MaxAPYScore       = 40.0
	MaxRiskScore      = 30.0
	MaxLiquidityScore = 20.0

	FlagshipBonus = 10.0
	DefaultBonus  = 5.0
)

// flagshipProtocol earns the full protocol bonus; the match is exact
const flagshipProtocol = "Uniswap V3"

// Factors computes the individually bounded score components for a pool
func Factors(p model.AnnotatedPool) model.ScoreFactors {
	return model.ScoreFactors{
		APYScore:       apyScore(p.APYValue()),
		RiskScore:      riskScore(p.Risk.RiskLevel),
		LiquidityScore: liquidityScore(p.TVLValue()),
		ProtocolBonus:  protocolBonus(p.Protocol),
	}
}

// apyScore rewards yield linearly up to the cap; zero or negative APY earns nothing
func apyScore(apy float64) float64 {
	if apy <= 0 || math.IsNaN(apy) {
		return 0
	}
	return math.Min(MaxAPYScore, apy*2)
}

// riskScore maps the banded risk level onto 0-30; safer levels score higher
func riskScore(level model.RiskLevel) float64 {
	return math.Max(0, MaxRiskScore-level.Numeric()*0.3)
}

// liquidityScore grows slowly with TVL: tvl^0.1 / 2, capped
func liquidityScore(tvl float64) float64 {
	if tvl <= 0 || math.IsNaN(tvl) {
		return 0
	}
	return math.Min(MaxLiquidityScore, math.Pow(tvl, 0.1)/2)
}

func protocolBonus(protocol string) float64 {
	if protocol == flagshipProtocol {
		return FlagshipBonus
	}
	return DefaultBonus
}

// Adjust applies the preference adjustment to the base score. The individual
// factors are never adjusted.
func Adjust(base float64, level model.RiskLevel, apy float64, pref model.Preference) float64 {
	switch pref {
	case model.PreferenceSafest:
		switch level {
		case model.RiskVeryLow:
			return base + 50
		case model.RiskLow:
			return base + 25
		case model.RiskHigh:
			return base - 20
		case model.RiskVeryHigh:
			return base - 40
		}
		return base
	case model.PreferenceHighestYield:
		bonus := 0.0
		if apy > 15 {
			bonus = 20
		}
		return base*1.2 + bonus
	default:
		return base
	}
}

// exactDigits is enough fractional digits to expand any score-sized float
// without creating or hiding a rounding tie
const exactDigits = 40

// Round2 rounds the exact binary value of v to two decimals, ties to even.
// 2.675 is stored as 2.67499999... and so rounds to 2.67.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	d, err := decimal.NewFromString(strconv.FormatFloat(v, 'f', exactDigits, 64))
	if err != nil {
		return v
	}
	return d.RoundBank(2).InexactFloat64()
}

// Score computes the composite score of one annotated pool. It is a pure
// function of the pool, its risk assessment and the preference.
func Score(p model.AnnotatedPool, pref model.Preference) model.ScoredPool {
	factors := Factors(p)
	adjusted := Adjust(factors.Base(), p.Risk.RiskLevel, p.APYValue(), pref)

	return model.ScoredPool{
		AnnotatedPool: p,
		ScoreFactors:  factors,
		TotalScore:    Round2(adjusted),
	}
}

// ScoreAll scores every pool, preserving input order
func ScoreAll(pools []model.AnnotatedPool, pref model.Preference) []model.ScoredPool {
	scored := make([]model.ScoredPool, len(pools))
	for i, p := range pools {
		scored[i] = Score(p, pref)
	}
	return scored
}
