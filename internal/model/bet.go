package model

import "math/big"

// BetKey identifies a position. A user may hold an independent position on
// each side of the same market.
type BetKey struct {
	MarketID string `json:"market_id"`
	User     string `json:"user"`
	Side     Side   `json:"side"`
}

// Bet is a single staked position. Outcome transitions exactly once away from
// BetUnresolved; Winnings is set exactly once when the payout is attributed.
type Bet struct {
	MarketID  string     `json:"market_id"`
	User      string     `json:"user"`
	Side      Side       `json:"side"`
	Amount    *big.Int   `json:"amount"`
	Timestamp uint64     `json:"timestamp"`
	Claimed   bool       `json:"claimed"`
	Winnings  *big.Int   `json:"winnings,omitempty"`
	Outcome   BetOutcome `json:"outcome"`
}

// Key returns the composite key for this position.
func (b *Bet) Key() BetKey {
	return BetKey{MarketID: b.MarketID, User: b.User, Side: b.Side}
}
