package staking

import "github.com/shopspring/decimal"

// SecondsPerYear is the 365-day year rewards are annualised over.
const SecondsPerYear = 31_536_000

// apyDenominator converts whole-percent APY into a fraction.
const apyDenominator = 100

var rewardDenominator = decimal.NewFromInt(apyDenominator * SecondsPerYear)

// PendingRewards returns the simple-interest reward owed on staked for the
// seconds between from and to, truncated to the smallest token unit:
//
//	staked * apy * (to - from) / (100 * SecondsPerYear)
//
// A non-positive interval accrues nothing.
func PendingRewards(staked decimal.Decimal, apy uint64, from, to int64) decimal.Decimal {
	elapsed := to - from
	if elapsed <= 0 || apy == 0 || !staked.IsPositive() {
		return decimal.Zero
	}

	numerator := staked.
		Mul(decimal.NewFromUint64(apy)).
		Mul(decimal.NewFromInt(elapsed))
	quotient, _ := numerator.QuoRem(rewardDenominator, 0)
	return quotient
}
