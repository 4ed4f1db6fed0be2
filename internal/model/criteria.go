package model

import (
	"fmt"
	"strings"
	"time"
)

// Preference selects how the composite score is adjusted.
type Preference string

// Supported preferences
const (
	PreferenceSafest       Preference = "safest"
	PreferenceHighestYield Preference = "highest_yield"
	PreferenceMedium       Preference = "medium"
)

// DefaultTopN caps the result set when the caller does not
const DefaultTopN = 5

// Criteria are the structured user requirements.
type Criteria struct {
	MinTVL     *float64   `json:"min_tvl,omitempty"`
	MinAPY     *float64   `json:"min_apy,omitempty"`
	MaxAPY     *float64   `json:"max_apy,omitempty"`
	Preference Preference `json:"preference,omitempty"`
	TopN       int        `json:"top_n,omitempty"`

	// Protocol restricts candidates to one protocol (case-insensitive)
	Protocol string `json:"protocol,omitempty"`

	// Symbol restricts candidates to pools whose symbol contains it
	Symbol string `json:"symbol,omitempty"`
}

// Normalize resolves defaults: empty preference becomes medium and TopN defaults to DefaultTopN
func (c Criteria) Normalize() Criteria {
	c.Preference = Preference(strings.ToLower(strings.TrimSpace(string(c.Preference))))
	if c.Preference == "" {
		c.Preference = PreferenceMedium
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	return c
}

// Validate checks the criteria for values the engine cannot act on
func (c Criteria) Validate() error {
	switch c.Preference {
	case PreferenceSafest, PreferenceHighestYield, PreferenceMedium, "":
	default:
		return fmt.Errorf("unsupported preference %q", c.Preference)
	}
	if c.MinAPY != nil && c.MaxAPY != nil && *c.MaxAPY < *c.MinAPY {
		return fmt.Errorf("max_apy %.2f is below min_apy %.2f", *c.MaxAPY, *c.MinAPY)
	}
	if c.MinTVL != nil && *c.MinTVL < 0 {
		return fmt.Errorf("negative min_tvl: %f", *c.MinTVL)
	}
	return nil
}

// AppliedKeys lists the criteria keys that were set, in a fixed order
func (c Criteria) AppliedKeys() []string {
	keys := make([]string, 0, 7)
	if c.MinTVL != nil {
		keys = append(keys, "min_tvl")
	}
	if c.MinAPY != nil {
		keys = append(keys, "min_apy")
	}
	if c.MaxAPY != nil {
		keys = append(keys, "max_apy")
	}
	if c.Protocol != "" {
		keys = append(keys, "protocol")
	}
	if c.Symbol != "" {
		keys = append(keys, "symbol")
	}
	if c.Preference != "" {
		keys = append(keys, "preference")
	}
	if c.TopN > 0 {
		keys = append(keys, "top_n")
	}
	return keys
}

// ReasoningStep is one numbered entry of the audit trail.
type ReasoningStep struct {
	Step      int         `json:"step"`
	Agent     string      `json:"agent"`
	Action    string      `json:"action"`
	Input     interface{} `json:"input"`
	Output    interface{} `json:"output"`
	Reasoning string      `json:"reasoning"`
	Timestamp time.Time   `json:"timestamp"`
}

// Decision is the engine's response to one advisory request.
type Decision struct {
	Success        bool            `json:"success"`
	OptimalPool    *ScoredPool     `json:"optimalPool"`
	Alternatives   []ScoredPool    `json:"alternatives"`
	AllCandidates  []ScoredPool    `json:"allCandidates"`
	ReasoningTrace []ReasoningStep `json:"reasoningTrace"`
	Criteria       Criteria        `json:"criteria"`
	Timestamp      time.Time       `json:"timestamp"`
	Error          string          `json:"error,omitempty"`
}

// FailedDecision builds the structured failure response: no optimal pool, empty trace
func FailedDecision(criteria Criteria, err error, now time.Time) Decision {
	return Decision{
		Success:        false,
		OptimalPool:    nil,
		Alternatives:   []ScoredPool{},
		AllCandidates:  []ScoredPool{},
		ReasoningTrace: []ReasoningStep{},
		Criteria:       criteria,
		Timestamp:      now,
		Error:          err.Error(),
	}
}
