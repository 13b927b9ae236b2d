package aggregate

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"
)

const ratioScale = 18

func formatTokenAmount(value *uint256.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.Dec()
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(value.ToBig(), denom)
	return rat.FloatString(int(decimals))
}

func computeFeeRates(fee0, fee1, reserve0, reserve1 *uint256.Int) (*string, *string) {
	var feeRate0 *string
	var feeRate1 *string

	if rate := computeRate(fee0, reserve0); rate != nil {
		val := rate.FloatString(ratioScale)
		feeRate0 = &val
	}
	if rate := computeRate(fee1, reserve1); rate != nil {
		val := rate.FloatString(ratioScale)
		feeRate1 = &val
	}
	return feeRate0, feeRate1
}

func computeRate(fee, reserve *uint256.Int) *big.Rat {
	if fee == nil || fee.IsZero() || reserve == nil || reserve.IsZero() {
		return nil
	}
	return new(big.Rat).SetFrac(fee.ToBig(), reserve.ToBig())
}

// computeAPR annualises the window's fee yield on total value locked. Both
// reserves of a constant-product pair carry equal value, so the yield is
// the mean of the per-side fee rates.
func computeAPR(fee0, fee1, reserve0, reserve1 *uint256.Int, windowSeconds uint64) *string {
	if windowSeconds == 0 || reserve0 == nil || reserve1 == nil || reserve0.IsZero() || reserve1.IsZero() {
		return nil
	}
	total := new(big.Rat)
	if rate := computeRate(fee0, reserve0); rate != nil {
		total.Add(total, rate)
	}
	if rate := computeRate(fee1, reserve1); rate != nil {
		total.Add(total, rate)
	}
	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	window := big.NewRat(int64(windowSeconds)*2, 1)
	apr := new(big.Rat).Mul(total, yearSeconds)
	apr.Quo(apr, window)
	val := apr.FloatString(ratioScale)
	return &val
}
