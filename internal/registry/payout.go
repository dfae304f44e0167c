package registry

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest stake total a side or account may reach (2^128-1).
var MaxAmount = decimal.NewFromBigInt(
	new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)), 0)

// Payout computes what a winning staker receives:
//
//	w + floor(w * L / W)
//
// where w is the staker's winning-side stake, W the winning-side total and L
// the losing-side total. The truncated remainder stays in escrow as dust.
//
// Unbacked outcome: when W is zero nobody staked the winning side, so the
// staker gets back exactly w (necessarily zero) and nothing is divided.
func Payout(w, winningTotal, losingTotal decimal.Decimal) decimal.Decimal {
	if w.Sign() <= 0 {
		return decimal.Zero
	}
	if winningTotal.Sign() <= 0 {
		return w
	}
	share, _ := w.Mul(losingTotal).QuoRem(winningTotal, 0)
	return w.Add(share)
}

// validAmount reports whether a is a positive integer no larger than MaxAmount.
func validAmount(a decimal.Decimal) bool {
	return a.Sign() > 0 && a.IsInteger() && a.LessThanOrEqual(MaxAmount)
}
