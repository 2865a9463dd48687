package model

import "math/big"

// MonthlyStat is a per-period rollup of a user's counters, keyed by
// (address, yearMonth). Created lazily on the first event in the period.
type MonthlyStat struct {
	User      string   `json:"user"`
	YearMonth string   `json:"year_month"`
	Bets      uint64   `json:"bets"`
	Wins      uint64   `json:"wins"`
	Losses    uint64   `json:"losses"`
	Staked    *big.Int `json:"staked"`
	Winnings  *big.Int `json:"winnings"`
	Lost      *big.Int `json:"lost"`
}

// NewMonthlyStat returns a zeroed rollup for a user and period.
func NewMonthlyStat(user, yearMonth string) *MonthlyStat {
	return &MonthlyStat{
		User:      user,
		YearMonth: yearMonth,
		Staked:    big.NewInt(0),
		Winnings:  big.NewInt(0),
		Lost:      big.NewInt(0),
	}
}
