// Package mathx provides overflow-checked fixed-width arithmetic over
// 256-bit unsigned integers. Every monetary value in the protocol is a
// *uint256.Int; helpers here never mutate their arguments.
package mathx

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

const (
	// BpsDenominator is the basis-point scale (1 bps = 1/10000).
	BpsDenominator = 10_000
	// SecondsPerYear is the annualisation period used for reward accrual.
	SecondsPerYear = 365 * 24 * 60 * 60
)

var (
	ErrOverflow       = errors.New("mathx: arithmetic overflow")
	ErrUnderflow      = errors.New("mathx: arithmetic underflow")
	ErrDivisionByZero = errors.New("mathx: division by zero")
)

// Wad is 1e18, the fixed-point unit used for exchange rates and prices.
var Wad = uint256.NewInt(1_000_000_000_000_000_000)

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// U wraps a uint64.
func U(v uint64) *uint256.Int { return uint256.NewInt(v) }

// Add returns x+y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Sub returns x-y and fails instead of wrapping below zero.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s", ErrUnderflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Mul returns x*y.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// MulDiv returns floor(x*y/d) using a 512-bit intermediate product.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s / %s", ErrOverflow, x.Dec(), y.Dec(), d.Dec())
	}
	return z, nil
}

// MulDivUp returns ceil(x*y/d).
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return z, nil
	}
	return Add(z, U(1))
}

// Min returns a copy of the smaller operand.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x.Clone()
	}
	return y.Clone()
}

// Max returns a copy of the larger operand.
func Max(x, y *uint256.Int) *uint256.Int {
	if x.Gt(y) {
		return x.Clone()
	}
	return y.Clone()
}

// Sqrt returns floor(sqrt(x)).
func Sqrt(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(x)
}

// Bps returns floor(amount*bps/10000). Used for payouts.
func Bps(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	return MulDiv(amount, U(bps), U(BpsDenominator))
}

// BpsUp returns ceil(amount*bps/10000). Used for fees so rounding dust
// stays with the protocol.
func BpsUp(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	return MulDivUp(amount, U(bps), U(BpsDenominator))
}

// SplitFee splits amount into (net, fee) with the fee rounded up.
func SplitFee(amount *uint256.Int, feeBps uint64) (*uint256.Int, *uint256.Int, error) {
	if feeBps > BpsDenominator {
		return nil, nil, fmt.Errorf("%w: fee %d bps", ErrOverflow, feeBps)
	}
	fee, err := BpsUp(amount, feeBps)
	if err != nil {
		return nil, nil, err
	}
	net, err := Sub(amount, fee)
	if err != nil {
		return nil, nil, err
	}
	return net, fee, nil
}

// Accrue returns floor(principal * rateBps * multiplierBps * elapsed / (year * 10000 * 10000)),
// the annualised reward for a principal held for elapsed seconds.
func Accrue(principal *uint256.Int, rateBps, multiplierBps, elapsed uint64) (*uint256.Int, error) {
	if principal.IsZero() || rateBps == 0 || multiplierBps == 0 || elapsed == 0 {
		return Zero(), nil
	}
	weighted, err := Mul(principal, U(rateBps))
	if err != nil {
		return nil, err
	}
	weighted, err = Mul(weighted, U(multiplierBps))
	if err != nil {
		return nil, err
	}
	denom := new(uint256.Int).Mul(U(SecondsPerYear), U(BpsDenominator*BpsDenominator))
	return MulDiv(weighted, U(elapsed), denom)
}

// ParseAmount parses integer amounts written as plain digits or with a
// decimal exponent ("1000e18", "1.5e18"). The value must be integral.
func ParseAmount(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(strings.ReplaceAll(input, "_", ""))
	if input == "" {
		return nil, fmt.Errorf("empty amount")
	}
	rat, ok := new(big.Rat).SetString(input)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", input)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", input)
	}
	if !rat.IsInt() {
		return nil, fmt.Errorf("amount is not integral: %s", input)
	}
	value, overflow := uint256.FromBig(rat.Num())
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrOverflow, input)
	}
	return value, nil
}

// MustAmount is ParseAmount for literals known to be valid.
func MustAmount(input string) *uint256.Int {
	value, err := ParseAmount(input)
	if err != nil {
		panic(err)
	}
	return value
}
