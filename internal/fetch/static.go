package fetch

import (
	"context"

	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
)

// StaticCatalog serves a fixed pool set, for offline use and tests
type StaticCatalog struct {
	pools []model.Pool
}

// NewStaticCatalog creates a catalog over the given pools; nil selects DefaultStaticPools
func NewStaticCatalog(pools []model.Pool) *StaticCatalog {
	if pools == nil {
		pools = DefaultStaticPools()
	}
	return &StaticCatalog{pools: pools}
}

// ListPools returns a copy of the configured pools
func (c *StaticCatalog) ListPools(context.Context) []model.Pool {
	out := make([]model.Pool, len(c.pools))
	copy(out, c.pools)
	return out
}

// DefaultStaticPools is a small mainnet pool set used when the live catalog is disabled
func DefaultStaticPools() []model.Pool {
	uni := model.NewPool("0x1234567890abcdef", "Uniswap V3", "ethereum", "ETH/USDC", 2_500_000, 8.5)
	uni.Project = "Uniswap"
	uni.URL = "https://app.uniswap.org/pools/0x1234567890abcdef"

	aave := model.NewPool("0xabcdef1234567890", "Aave V3", "ethereum", "USDC", 1_800_000, 6.2)
	aave.Project = "Aave"
	aave.URL = "https://app.aave.com/reserve-overview/USDC"

	comp := model.NewPool("0x9876543210fedcba", "Compound V3", "ethereum", "USDT", 3_200_000, 7.8)
	comp.Project = "Compound"
	comp.URL = "https://app.compound.finance/markets/USDT"

	return []model.Pool{uni, aave, comp}
}
