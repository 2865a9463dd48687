package model

import "math/big"

// GlobalStat is the singleton running totals record.
type GlobalStat struct {
	TotalUsers          uint64   `json:"total_users"`
	TotalMarkets        uint64   `json:"total_markets"`
	TotalBets           uint64   `json:"total_bets"`
	TotalVolumeStaked   *big.Int `json:"total_volume_staked"`
	TotalWinnings       *big.Int `json:"total_winnings"`
	LastUpdateTimestamp uint64   `json:"last_update_timestamp"`
}

// NewGlobalStat returns a zeroed global record.
func NewGlobalStat() *GlobalStat {
	return &GlobalStat{
		TotalVolumeStaked: big.NewInt(0),
		TotalWinnings:     big.NewInt(0),
	}
}
