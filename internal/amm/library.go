package amm

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"blxProtocol/internal/mathx"
)

const (
	// SwapFeeBps is the LP fee taken from every swap input.
	SwapFeeBps = 30
	// MinimumLiquidity is burned on the first mint of every pair.
	MinimumLiquidity = 1000
)

var (
	ErrInsufficientInputAmount  = errors.New("amm: insufficient input amount")
	ErrInsufficientOutputAmount = errors.New("amm: insufficient output amount")
	ErrInsufficientAmount       = errors.New("amm: insufficient amount")
	ErrInsufficientLiquidity    = errors.New("amm: insufficient liquidity")
	ErrInvalidPath              = errors.New("amm: invalid path")
)

// Hop is the reserve view of one pair oriented along a swap path.
type Hop struct {
	ReserveIn  *uint256.Int
	ReserveOut *uint256.Int
}

// Quote returns the amount of B equivalent to amountA at the reserve ratio.
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if amountA.IsZero() {
		return nil, ErrInsufficientAmount
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	return mathx.MulDiv(amountA, reserveB, reserveA)
}

// GetAmountOut returns the maximum output for amountIn after the swap fee.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	amountInWithFee, err := mathx.Mul(amountIn, mathx.U(mathx.BpsDenominator-SwapFeeBps))
	if err != nil {
		return nil, err
	}
	scaledReserve, err := mathx.Mul(reserveIn, mathx.U(mathx.BpsDenominator))
	if err != nil {
		return nil, err
	}
	denominator, err := mathx.Add(scaledReserve, amountInWithFee)
	if err != nil {
		return nil, err
	}
	return mathx.MulDiv(amountInWithFee, reserveOut, denominator)
}

// GetAmountIn returns the minimum input that yields amountOut after the fee.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	numerator, err := mathx.Mul(reserveIn, amountOut)
	if err != nil {
		return nil, err
	}
	remaining := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator, err := mathx.Mul(remaining, mathx.U(mathx.BpsDenominator-SwapFeeBps))
	if err != nil {
		return nil, err
	}
	amountIn, err := mathx.MulDiv(numerator, mathx.U(mathx.BpsDenominator), denominator)
	if err != nil {
		return nil, err
	}
	return mathx.Add(amountIn, mathx.U(1))
}

// GetAmountsOut chains GetAmountOut across hops. The result has one more
// entry than hops; the first is amountIn.
func GetAmountsOut(amountIn *uint256.Int, hops []Hop) ([]*uint256.Int, error) {
	if len(hops) == 0 {
		return nil, ErrInvalidPath
	}
	amounts := make([]*uint256.Int, len(hops)+1)
	amounts[0] = amountIn.Clone()
	for i, hop := range hops {
		out, err := GetAmountOut(amounts[i], hop.ReserveIn, hop.ReserveOut)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

// GetAmountsIn walks hops backwards from amountOut. The last entry is
// amountOut.
func GetAmountsIn(amountOut *uint256.Int, hops []Hop) ([]*uint256.Int, error) {
	if len(hops) == 0 {
		return nil, ErrInvalidPath
	}
	amounts := make([]*uint256.Int, len(hops)+1)
	amounts[len(hops)] = amountOut.Clone()
	for i := len(hops) - 1; i >= 0; i-- {
		in, err := GetAmountIn(amounts[i+1], hops[i].ReserveIn, hops[i].ReserveOut)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		amounts[i] = in
	}
	return amounts, nil
}
