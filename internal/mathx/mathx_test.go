package mathx

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestCheckedOperations(t *testing.T) {
	max := new(uint256.Int).SetAllOne()

	_, err := Add(max, U(1))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Sub(U(1), U(2))
	require.ErrorIs(t, err, ErrUnderflow)

	_, err = Mul(max, U(2))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = MulDiv(U(1), U(1), Zero())
	require.ErrorIs(t, err, ErrDivisionByZero)

	// The intermediate product exceeds 256 bits but the quotient fits.
	got, err := MulDiv(max, U(4), U(8))
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Rsh(max, 1), got)
}

func TestMulDivRounding(t *testing.T) {
	down, err := MulDiv(U(10), U(3), U(4))
	require.NoError(t, err)
	require.Equal(t, uint64(7), down.Uint64())

	up, err := MulDivUp(U(10), U(3), U(4))
	require.NoError(t, err)
	require.Equal(t, uint64(8), up.Uint64())

	exact, err := MulDivUp(U(10), U(2), U(4))
	require.NoError(t, err)
	require.Equal(t, uint64(5), exact.Uint64())
}

func TestSplitFeeRoundsFeeUp(t *testing.T) {
	net, fee, err := SplitFee(U(1001), 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(101), fee.Uint64())
	require.Equal(t, uint64(900), net.Uint64())

	net, fee, err = SplitFee(MustAmount("1000e18"), 1000)
	require.NoError(t, err)
	require.Equal(t, MustAmount("100e18"), fee)
	require.Equal(t, MustAmount("900e18"), net)
}

func TestAccrue(t *testing.T) {
	// 1000 tokens at 5% with a 2x multiplier for 30 days.
	got, err := Accrue(MustAmount("1000e18"), 500, 20_000, 30*24*60*60)
	require.NoError(t, err)
	want := MustAmount("8219178082191780821")
	require.Equal(t, want, got)

	zero, err := Accrue(MustAmount("1000e18"), 500, 20_000, 0)
	require.NoError(t, err)
	require.True(t, zero.IsZero())
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"1000":     "1000",
		"1000e18":  "1000000000000000000000",
		"1.5e18":   "1500000000000000000",
		"1_000e3":  "1000000",
		" 42 ":     "42",
	}
	for input, want := range cases {
		got, err := ParseAmount(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got.Dec(), input)
	}

	for _, input := range []string{"", "abc", "-1", "1.5", "1e100"} {
		_, err := ParseAmount(input)
		require.Error(t, err, input)
	}
}

func TestSqrt(t *testing.T) {
	product, err := Mul(MustAmount("1000e18"), MustAmount("10e18"))
	require.NoError(t, err)
	require.Equal(t, MustAmount("100e18"), Sqrt(product))
	require.Equal(t, uint64(3), Sqrt(U(15)).Uint64())
}
