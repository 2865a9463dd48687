package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// User holds lifetime statistics for one wallet address. Created on the first
// event referencing the address, never deleted.
type User struct {
	Address             string          `json:"address"`
	TotalBets           uint64          `json:"total_bets"`
	Wins                uint64          `json:"wins"`
	Losses              uint64          `json:"losses"`
	TotalStaked         *big.Int        `json:"total_staked"`
	TotalWinnings       *big.Int        `json:"total_winnings"`
	TotalLost           *big.Int        `json:"total_lost"`
	LastActiveTimestamp uint64          `json:"last_active_timestamp"`
	CurrentStreak       uint64          `json:"current_streak"`
	BestStreak          uint64          `json:"best_streak"`
	LargestWin          *big.Int        `json:"largest_win"`
	LargestLoss         *big.Int        `json:"largest_loss"`
	TotalROI            decimal.Decimal `json:"total_roi"`
}

// NewUser returns a zeroed user record for a normalized address.
func NewUser(address string) *User {
	return &User{
		Address:       address,
		TotalStaked:   big.NewInt(0),
		TotalWinnings: big.NewInt(0),
		TotalLost:     big.NewInt(0),
		LargestWin:    big.NewInt(0),
		LargestLoss:   big.NewInt(0),
		TotalROI:      decimal.Zero,
	}
}
