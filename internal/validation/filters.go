// Package validation provides the candidate and safety filters applied to pools.
package validation

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
	"github.com/truptisatsangi/robo-defi-advisor/internal/types"
)

// DefaultSafestMinTVL is the TVL floor required when the user asks for the safest pool
const DefaultSafestMinTVL = 10_000_000

// FilterOptions holds configuration for the candidate filter
type FilterOptions struct {
	// Registry provides the trusted-protocol allow-list
	Registry types.ProtocolRegistry

	// SafestMinTVL defines the extra TVL floor for the safest preference
	SafestMinTVL float64
}

// DefaultFilterOptions returns the built-in allow-list and thresholds
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		Registry:     types.DefaultProtocolRegistry(),
		SafestMinTVL: DefaultSafestMinTVL,
	}
}

// FilterCandidates reduces the catalog to pools satisfying the hard criteria.
// The allow-list is applied before any numeric threshold. The input is not modified
// and an empty, non-nil slice is returned when nothing qualifies.
func FilterCandidates(pools []model.Pool, criteria model.Criteria, opts FilterOptions) []model.Pool {
	valid := make([]model.Pool, 0, len(pools))
	for _, p := range pools {
		if reason := rejectReason(p, criteria, opts); reason != "" {
			logrus.WithFields(logrus.Fields{
				"pool":     p.ID,
				"protocol": p.Protocol,
				"reason":   reason,
			}).Debug("Filtered pool")
			continue
		}
		valid = append(valid, p)
	}

	logrus.WithFields(logrus.Fields{
		"total":      len(pools),
		"candidates": len(valid),
		"preference": criteria.Preference,
	}).Debug("Candidate filtering complete")

	return valid
}

// rejectReason returns why a pool fails the criteria, or "" when it passes
func rejectReason(p model.Pool, c model.Criteria, opts FilterOptions) string {
	// Allow-list is a hard gate ahead of the numeric thresholds
	if !opts.Registry.IsTrusted(p.Protocol) {
		return "untrusted protocol"
	}

	// Pools without metrics cannot be evaluated
	if !p.HasMetrics() {
		return "missing tvl or apy"
	}

	tvl, apy := *p.TVL, *p.APY

	minTVL, minAPY := 0.0, 0.0
	if c.MinTVL != nil {
		minTVL = *c.MinTVL
	}
	if c.MinAPY != nil {
		minAPY = *c.MinAPY
	}

	if tvl < minTVL {
		return "tvl below minimum"
	}
	if apy < minAPY {
		return "apy below minimum"
	}
	if c.MaxAPY != nil && apy > *c.MaxAPY {
		return "apy above maximum"
	}

	if c.Preference == model.PreferenceSafest && tvl < opts.SafestMinTVL {
		return "tvl below safest threshold"
	}

	if c.Protocol != "" && !strings.EqualFold(strings.TrimSpace(p.Protocol), strings.TrimSpace(c.Protocol)) {
		return "protocol mismatch"
	}
	if c.Symbol != "" && !strings.Contains(strings.ToUpper(p.Symbol), strings.ToUpper(c.Symbol)) {
		return "symbol mismatch"
	}

	return ""
}

// ApplySafety drops pools rated very_high risk when the user asks for the safest pool.
// It is a no-op for every other preference. Contract verification and audit facts are
// informational only and are not used here.
func ApplySafety(pools []model.AnnotatedPool, preference model.Preference) []model.AnnotatedPool {
	if preference != model.PreferenceSafest {
		return pools
	}

	safe := make([]model.AnnotatedPool, 0, len(pools))
	for _, p := range pools {
		if p.Risk.RiskLevel == model.RiskVeryHigh {
			logrus.WithFields(logrus.Fields{
				"pool":       p.ID,
				"risk_score": p.Risk.RiskScore,
			}).Info("Excluded very high risk pool")
			continue
		}
		safe = append(safe, p)
	}
	return safe
}
