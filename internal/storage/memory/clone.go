package memory

import (
	"math/big"

	"predictScope/internal/model"
)

func copyBig(value *big.Int) *big.Int {
	if value == nil {
		return nil
	}
	return new(big.Int).Set(value)
}

func cloneUser(user *model.User) *model.User {
	out := *user
	out.TotalStaked = copyBig(user.TotalStaked)
	out.TotalWinnings = copyBig(user.TotalWinnings)
	out.TotalLost = copyBig(user.TotalLost)
	out.LargestWin = copyBig(user.LargestWin)
	out.LargestLoss = copyBig(user.LargestLoss)
	return &out
}

func cloneMarket(market *model.Market) *model.Market {
	out := *market
	out.TotalPoolA = copyBig(market.TotalPoolA)
	out.TotalPoolB = copyBig(market.TotalPoolB)
	return &out
}

func cloneBet(bet *model.Bet) *model.Bet {
	out := *bet
	out.Amount = copyBig(bet.Amount)
	out.Winnings = copyBig(bet.Winnings)
	return &out
}

func cloneSnapshot(snapshot *model.PriceSnapshot) *model.PriceSnapshot {
	out := *snapshot
	out.TotalPoolA = copyBig(snapshot.TotalPoolA)
	out.TotalPoolB = copyBig(snapshot.TotalPoolB)
	return &out
}

func cloneMonthly(stat *model.MonthlyStat) *model.MonthlyStat {
	out := *stat
	out.Staked = copyBig(stat.Staked)
	out.Winnings = copyBig(stat.Winnings)
	out.Lost = copyBig(stat.Lost)
	return &out
}

func cloneGlobal(global *model.GlobalStat) *model.GlobalStat {
	out := *global
	out.TotalVolumeStaked = copyBig(global.TotalVolumeStaked)
	out.TotalWinnings = copyBig(global.TotalWinnings)
	return &out
}
