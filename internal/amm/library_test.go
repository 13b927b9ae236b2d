package amm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"blxProtocol/internal/mathx"
)

func TestGetAmountOutAndIn(t *testing.T) {
	r0 := mathx.MustAmount("1000e18")
	r1 := mathx.MustAmount("10e18")

	out, err := GetAmountOut(mathx.MustAmount("10e18"), r0, r1)
	require.NoError(t, err)
	require.Equal(t, "98715803439706129", out.Dec())

	in, err := GetAmountIn(out, r0, r1)
	require.NoError(t, err)
	require.Equal(t, "9999999999999999910", in.Dec())

	_, err = GetAmountOut(mathx.Zero(), r0, r1)
	require.ErrorIs(t, err, ErrInsufficientInputAmount)
	_, err = GetAmountIn(r1, r0, r1)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	_, err = GetAmountOut(mathx.U(1), mathx.Zero(), r1)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestQuote(t *testing.T) {
	q, err := Quote(mathx.MustAmount("100e18"), mathx.MustAmount("1000e18"), mathx.MustAmount("10e18"))
	require.NoError(t, err)
	require.Equal(t, mathx.MustAmount("1e18"), q)

	_, err = Quote(mathx.Zero(), mathx.U(1), mathx.U(1))
	require.ErrorIs(t, err, ErrInsufficientAmount)
}

func TestAmountsAcrossHops(t *testing.T) {
	hops := []Hop{
		{ReserveIn: mathx.MustAmount("1000e18"), ReserveOut: mathx.MustAmount("10e18")},
		{ReserveIn: mathx.MustAmount("10e18"), ReserveOut: mathx.MustAmount("500e18")},
	}
	amounts, err := GetAmountsOut(mathx.MustAmount("10e18"), hops)
	require.NoError(t, err)
	require.Len(t, amounts, 3)
	require.Equal(t, "98715803439706129", amounts[1].Dec())

	back, err := GetAmountsIn(amounts[2], hops)
	require.NoError(t, err)
	require.False(t, back[2].Lt(amounts[2]))
	require.False(t, back[0].Gt(amounts[0]))

	_, err = GetAmountsOut(mathx.U(1), nil)
	require.ErrorIs(t, err, ErrInvalidPath)
}
