package model

import (
	"fmt"
	"math/big"
)

// EventMeta carries chain position and timing shared by every decoded event.
type EventMeta struct {
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Timestamp   uint64 `json:"timestamp"`
}

// Meta returns the embedded metadata.
func (m EventMeta) Meta() EventMeta { return m }

// Ref identifies the event's log position for dedupe and operator logs.
func (m EventMeta) Ref() string {
	return fmt.Sprintf("%d:%s:%d", m.BlockNumber, m.TxHash, m.LogIndex)
}

// Event is a decoded PogPredict contract event.
type Event interface {
	Name() string
	Meta() EventMeta
}

// MarketCreated announces a new market with zero pools.
type MarketCreated struct {
	EventMeta
	MarketID      string `json:"market_id"`
	Question      string `json:"question"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	Category      string `json:"category"`
	LogoURLA      string `json:"logo_url_a"`
	LogoURLB      string `json:"logo_url_b"`
	EndTime       uint64 `json:"end_time"`
	OracleMatchID uint64 `json:"oracle_match_id"`
	Creator       string `json:"creator"`
}

func (MarketCreated) Name() string { return "MarketCreated" }

// OptionBought is a stake placed on one side of a market.
type OptionBought struct {
	EventMeta
	User     string   `json:"user"`
	MarketID string   `json:"market_id"`
	Side     Side     `json:"side"`
	Amount   *big.Int `json:"amount"`
}

func (OptionBought) Name() string { return "OptionBought" }

// MarketResolved settles a market to option A or B.
type MarketResolved struct {
	EventMeta
	MarketID   string        `json:"market_id"`
	Outcome    MarketOutcome `json:"outcome"`
	Source     uint8         `json:"source"`
	Details    string        `json:"details"`
	ResolvedBy string        `json:"resolved_by"`
}

func (MarketResolved) Name() string { return "MarketResolved" }

// MarketRefunded voids a market and makes its stakes reclaimable.
type MarketRefunded struct {
	EventMeta
	MarketID   string `json:"market_id"`
	Reason     string `json:"reason"`
	ResolvedBy string `json:"resolved_by"`
}

func (MarketRefunded) Name() string { return "MarketRefunded" }

// UserWon reports a winning position's gross payout.
type UserWon struct {
	EventMeta
	User     string   `json:"user"`
	MarketID string   `json:"market_id"`
	Amount   *big.Int `json:"amount"`
}

func (UserWon) Name() string { return "UserWon" }

// UserLost reports a losing position's staked amount.
type UserLost struct {
	EventMeta
	User     string   `json:"user"`
	MarketID string   `json:"market_id"`
	Amount   *big.Int `json:"amount"`
}

func (UserLost) Name() string { return "UserLost" }

// WinningsClaimed confirms a payout transfer for a winning position.
type WinningsClaimed struct {
	EventMeta
	User     string   `json:"user"`
	MarketID string   `json:"market_id"`
	Payout   *big.Int `json:"payout"`
}

func (WinningsClaimed) Name() string { return "WinningsClaimed" }

// RefundClaimed confirms a stake returned from a refunded market.
type RefundClaimed struct {
	EventMeta
	MarketID string   `json:"market_id"`
	User     string   `json:"user"`
	Amount   *big.Int `json:"amount"`
}

func (RefundClaimed) Name() string { return "RefundClaimed" }
