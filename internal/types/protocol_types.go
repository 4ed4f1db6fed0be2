// Package types contains shared type definitions used across multiple packages
package types

import "strings"

// ProtocolTier represents the reputation tier of a protocol
type ProtocolTier int

// Reputation tiers, best first
const (
	TierOne ProtocolTier = iota + 1
	TierTwo
	TierUnknown
)

// String returns the tier name used in logs and reasoning text
func (t ProtocolTier) String() string {
	switch t {
	case TierOne:
		return "tier-1"
	case TierTwo:
		return "tier-2"
	default:
		return "unknown"
	}
}

// ProtocolRegistry holds the trusted-protocol allow-list and the reputation tiers.
// All names are matched as lower-case substrings of the pool's protocol.
type ProtocolRegistry struct {
	Trusted []string `json:"trusted"`
	Tier1   []string `json:"tier1"`
	Tier2   []string `json:"tier2"`
}

// DefaultProtocolRegistry returns the built-in allow-list and tiers
func DefaultProtocolRegistry() ProtocolRegistry {
	return ProtocolRegistry{
		Trusted: []string{"uniswap", "compound", "aave", "curve", "pancakeswap", "balancer", "pendle", "venus"},
		Tier1:   []string{"uniswap", "aave", "compound", "curve"},
		Tier2:   []string{"balancer", "pendle", "venus", "pancakeswap"},
	}
}

// IsTrusted reports whether the protocol matches an allow-list entry
func (r ProtocolRegistry) IsTrusted(protocol string) bool {
	return matchesAny(protocol, r.Trusted)
}

// Tier returns the reputation tier of the protocol; tier-1 is checked first
func (r ProtocolRegistry) Tier(protocol string) ProtocolTier {
	if matchesAny(protocol, r.Tier1) {
		return TierOne
	}
	if matchesAny(protocol, r.Tier2) {
		return TierTwo
	}
	return TierUnknown
}

func matchesAny(protocol string, names []string) bool {
	p := strings.ToLower(protocol)
	if p == "" {
		return false
	}
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n != "" && strings.Contains(p, n) {
			return true
		}
	}
	return false
}
