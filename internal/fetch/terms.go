package fetch

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PoolKey identifies a pool across catalog sources. Pool ids that are hex
// addresses are normalised to their EIP-55 checksum form so that the same
// address reported with different casing is recognised as one pool. Fact
// terms use the pool id exactly as the catalog reported it.
func PoolKey(poolID string) string {
	if common.IsHexAddress(poolID) {
		return common.HexToAddress(poolID).Hex()
	}
	return poolID
}

// RiskQueries returns the five risk fact queries of a pool in join order:
// contract, audit, concentration, liquidity, exploit
func RiskQueries(poolID string) [5]string {
	return [5]string{
		fmt.Sprintf("contract_verified(%s, Status)", poolID),
		fmt.Sprintf("audit_link(%s, Link)", poolID),
		fmt.Sprintf("holder_concentration(%s, Conc)", poolID),
		fmt.Sprintf("liquidity_score(%s, Score)", poolID),
		fmt.Sprintf("last_exploit(%s, Timestamp)", poolID),
	}
}

// PreviousScoreQuery asks for the last persisted risk score
func PreviousScoreQuery(poolID string) string {
	return fmt.Sprintf("risk_score(%s, Score)", poolID)
}

// RiskScoreAssertion persists a computed risk score
func RiskScoreAssertion(poolID string, score float64) string {
	return fmt.Sprintf("risk_score(%s, %s)", poolID, strconv.FormatFloat(score, 'f', -1, 64))
}

// RiskTimestampAssertion records when the pool was last analysed
func RiskTimestampAssertion(poolID string, at time.Time) string {
	return fmt.Sprintf("risk_analysis_timestamp(%s, %d)", poolID, at.Unix())
}
