package model

import "strings"

// MarketOutcome is the settled result of a market.
type MarketOutcome uint8

const (
	MarketUnresolved MarketOutcome = 0
	MarketOptionA    MarketOutcome = 1
	MarketOptionB    MarketOutcome = 2
)

// BetOutcome is the classification of a single position. It transitions
// exactly once away from BetUnresolved.
type BetOutcome uint8

const (
	BetUnresolved BetOutcome = 0
	BetWon        BetOutcome = 1
	BetLost       BetOutcome = 2
	BetRefundable BetOutcome = 3
)

// Side is one of the two market options a position is staked on.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// SideFromBool maps the contract's isOptionA flag to a Side.
func SideFromBool(isOptionA bool) Side {
	if isOptionA {
		return SideA
	}
	return SideB
}

// Wins reports whether a position on this side wins under the given outcome.
func (s Side) Wins(outcome MarketOutcome) bool {
	return (s == SideA && outcome == MarketOptionA) || (s == SideB && outcome == MarketOptionB)
}

// NormalizeAddress lower-cases a wallet address for use as an aggregate key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}
