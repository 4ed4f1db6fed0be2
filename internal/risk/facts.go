package risk

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
)

// Positions of the facts in a fetch result
const (
	factContract = iota
	factAudit
	factConcentration
	factLiquidity
	factExploit
	factPreviousScore

	riskFactCount = factExploit + 1
)

// DecodeFacts converts raw gateway answers into typed risk facts. The first
// five entries are the risk facts in query order; an optional sixth entry is
// the previously persisted score. Facts the store did not know stay nil.
func DecodeFacts(raw []model.Fact) model.RiskFacts {
	var facts model.RiskFacts

	for i := 0; i < riskFactCount && i < len(raw); i++ {
		facts.Confidences[i] = raw[i].Confidence
		if raw[i].Available {
			facts.Available++
		}
	}

	at := func(i int) (gjson.Result, bool) {
		if i >= len(raw) || !raw[i].Known() {
			return gjson.Result{}, false
		}
		return raw[i].Result, true
	}

	if r, ok := at(factContract); ok {
		v := r.Bool()
		facts.ContractVerified = &v
	}
	if r, ok := at(factAudit); ok {
		if link := strings.TrimSpace(r.String()); link != "" {
			facts.AuditLink = &link
		}
	}
	if r, ok := at(factConcentration); ok {
		facts.HolderConcentration = number(r)
	}
	if r, ok := at(factLiquidity); ok {
		facts.LiquidityScore = number(r)
	}
	if r, ok := at(factExploit); ok && r.Type != gjson.False {
		t := timestamp(r)
		facts.ExploitHistory = &t
	}
	if r, ok := at(factPreviousScore); ok {
		facts.PreviousRiskScore = number(r)
	}

	return facts
}

func number(r gjson.Result) *float64 {
	switch r.Type {
	case gjson.Number:
		v := r.Float()
		return &v
	case gjson.String:
		if v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64); err == nil {
			return &v
		}
	}
	return nil
}

// timestamp reads unix seconds or RFC 3339. A record that cannot be parsed
// still counts as an exploit and yields the zero time.
func timestamp(r gjson.Result) time.Time {
	switch r.Type {
	case gjson.Number:
		return time.Unix(r.Int(), 0).UTC()
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	return time.Time{}
}
