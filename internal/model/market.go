package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Market is a two-option prediction market. Pools and prices move on every
// bet; resolution fields are written at most once.
type Market struct {
	ID                  string          `json:"id"`
	Creator             string          `json:"creator"`
	Question            string          `json:"question"`
	OptionA             string          `json:"option_a"`
	OptionB             string          `json:"option_b"`
	Category            string          `json:"category"`
	LogoURLA            string          `json:"logo_url_a"`
	LogoURLB            string          `json:"logo_url_b"`
	EndTime             uint64          `json:"end_time"`
	OracleMatchID       uint64          `json:"oracle_match_id"`
	TotalPoolA          *big.Int        `json:"total_pool_a"`
	TotalPoolB          *big.Int        `json:"total_pool_b"`
	CurrentPriceA       decimal.Decimal `json:"current_price_a"`
	CurrentPriceB       decimal.Decimal `json:"current_price_b"`
	Outcome             MarketOutcome   `json:"outcome"`
	ResolvedBy          string          `json:"resolved_by"`
	ResolutionDetails   string          `json:"resolution_details"`
	ResolutionTimestamp uint64          `json:"resolution_timestamp"`
	CreatedAt           uint64          `json:"created_at"`
}

// PoolBySide returns the pool the given side stakes into.
func (m *Market) PoolBySide(side Side) *big.Int {
	if side == SideA {
		return m.TotalPoolA
	}
	return m.TotalPoolB
}

// Resolved reports whether the market outcome has been set.
func (m *Market) Resolved() bool {
	return m.Outcome != MarketUnresolved
}
