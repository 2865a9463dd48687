package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// PriceSnapshot records pool totals and derived prices at one point in time.
// Keyed by (market, timestamp) and immutable once written.
type PriceSnapshot struct {
	MarketID    string          `json:"market_id"`
	Timestamp   uint64          `json:"timestamp"`
	TotalPoolA  *big.Int        `json:"total_pool_a"`
	TotalPoolB  *big.Int        `json:"total_pool_b"`
	PriceA      decimal.Decimal `json:"price_a"`
	PriceB      decimal.Decimal `json:"price_b"`
	BlockNumber uint64          `json:"block_number"`
}
