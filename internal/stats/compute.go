package stats

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

var basisPoints = big.NewInt(10000)

// derivePrices converts pool totals into display percentages. Empty markets
// report 50/50.
func derivePrices(poolA, poolB *big.Int) (decimal.Decimal, decimal.Decimal) {
	total := new(big.Int).Add(poolA, poolB)
	if total.Sign() == 0 {
		half := decimal.NewFromInt(50)
		return half, half
	}

	totalDec := decimal.NewFromBigInt(total, 0)
	priceA := decimal.NewFromBigInt(poolA, 0).Mul(decimal.NewFromInt(100)).Div(totalDec)
	priceB := decimal.NewFromInt(100).Sub(priceA)
	return priceA, priceB
}

// computeROI returns (winnings - lost) / staked as a percentage with
// basis-point precision, truncated the way the contract-side integer math
// truncates. Zero stake reports zero.
func computeROI(winnings, lost, staked *big.Int) decimal.Decimal {
	if staked == nil || staked.Sign() == 0 {
		return decimal.Zero
	}
	diff := new(big.Int).Sub(winnings, lost)
	bps := new(big.Int).Quo(new(big.Int).Mul(diff, basisPoints), staked)
	return decimal.NewFromBigInt(bps, -2)
}

// yearMonth buckets a unix timestamp into a "YYYY-MM" rollup key.
func yearMonth(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format("2006-01")
}

func maxBig(a, b *big.Int) *big.Int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func maxUint64(a, b uint64) uint64 {
	if a >= b {
		return a
	}
	return b
}
