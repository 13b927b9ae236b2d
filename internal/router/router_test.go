package router

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"blxProtocol/internal/access"
	"blxProtocol/internal/amm"
	"blxProtocol/internal/ledger"
	"blxProtocol/internal/mathx"
	"blxProtocol/internal/protocol"
)

var (
	admin = common.HexToAddress("0xad")
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

type env struct {
	factory *amm.Factory
	router  *Router
	a, b, c *ledger.MemoryToken
	native  *ledger.MemoryToken
	wrapped *ledger.WrappedNative
}

func newEnv(t *testing.T) *env {
	t.Helper()
	reg := access.NewRegistry()
	reg.Grant(access.RoleOracleAdmin, admin)
	e := &env{
		a:      ledger.NewMemoryToken(common.HexToAddress("0xa1"), "AAA", 18),
		b:      ledger.NewMemoryToken(common.HexToAddress("0xb2"), "BBB", 18),
		c:      ledger.NewMemoryToken(common.HexToAddress("0xc3"), "CCC", 18),
		native: ledger.NewMemoryToken(common.HexToAddress("0xee"), "ETH", 18),
	}
	e.wrapped = ledger.NewWrappedNative(common.HexToAddress("0xe0"), e.native)
	e.factory = amm.NewFactory(common.HexToAddress("0xfac"), reg)
	e.router = New(common.HexToAddress("0x4047e4"), e.factory, e.wrapped, nil)

	for _, account := range []common.Address{alice, bob} {
		for _, token := range []*ledger.MemoryToken{e.a, e.b, e.c, e.native} {
			require.NoError(t, token.Mint(account, mathx.MustAmount("1000000e18")))
			require.NoError(t, token.Approve(account, e.router.Address(), ledger.Unlimited()))
		}
	}
	return e
}

func (e *env) seed(t *testing.T, x, y ledger.Token, amountX, amountY string) *amm.Pair {
	t.Helper()
	_, _, _, err := e.router.AddLiquidity(protocol.NewCall(alice, 10), x, y,
		mathx.MustAmount(amountX), mathx.MustAmount(amountY), mathx.Zero(), mathx.Zero(), alice, 100)
	require.NoError(t, err)
	pair, err := e.factory.GetPair(x.Address(), y.Address())
	require.NoError(t, err)
	return pair
}

func TestAddLiquidityCreatesPair(t *testing.T) {
	e := newEnv(t)
	amountA, amountB, liquidity, err := e.router.AddLiquidity(protocol.NewCall(alice, 10), e.a, e.b,
		mathx.MustAmount("1000e18"), mathx.MustAmount("10e18"), mathx.Zero(), mathx.Zero(), alice, 10)
	require.NoError(t, err)
	require.Equal(t, mathx.MustAmount("1000e18"), amountA)
	require.Equal(t, mathx.MustAmount("10e18"), amountB)
	require.Equal(t, "99999999999999999000", liquidity.Dec())
	require.Equal(t, mathx.MustAmount("999000e18"), e.a.BalanceOf(alice))
}

func TestAddLiquidityAtRatio(t *testing.T) {
	e := newEnv(t)
	pair := e.seed(t, e.a, e.b, "1000e18", "10e18")

	amountA, amountB, liquidity, err := e.router.AddLiquidity(protocol.NewCall(bob, 11), e.a, e.b,
		mathx.MustAmount("100e18"), mathx.MustAmount("5e18"), mathx.Zero(), mathx.Zero(), bob, 20)
	require.NoError(t, err)
	require.Equal(t, mathx.MustAmount("100e18"), amountA)
	require.Equal(t, mathx.MustAmount("1e18"), amountB)
	require.Equal(t, mathx.MustAmount("10e18"), liquidity)
	require.Equal(t, mathx.MustAmount("10e18"), pair.LPToken().BalanceOf(bob))

	// B side binds: 0.5e18 B only needs 50e18 A.
	amountA, amountB, _, err = e.router.AddLiquidity(protocol.NewCall(bob, 12), e.a, e.b,
		mathx.MustAmount("100e18"), mathx.MustAmount("0.5e18"), mathx.Zero(), mathx.Zero(), bob, 20)
	require.NoError(t, err)
	require.Equal(t, mathx.MustAmount("50e18"), amountA)
	require.Equal(t, mathx.MustAmount("0.5e18"), amountB)
}

func TestAddLiquiditySlippageLeavesStateUnchanged(t *testing.T) {
	e := newEnv(t)
	pair := e.seed(t, e.a, e.b, "1000e18", "10e18")
	before := e.b.BalanceOf(bob)

	_, _, _, err := e.router.AddLiquidity(protocol.NewCall(bob, 11), e.a, e.b,
		mathx.MustAmount("100e18"), mathx.MustAmount("5e18"), mathx.Zero(), mathx.MustAmount("2e18"), bob, 20)
	require.ErrorIs(t, err, ErrInsufficientAmount)
	require.Equal(t, before, e.b.BalanceOf(bob))
	r0, r1, _ := pair.GetReserves()
	require.Equal(t, mathx.MustAmount("1000e18"), r0)
	require.Equal(t, mathx.MustAmount("10e18"), r1)
}

func TestExpiredDeadlineFailsBeforeTransfer(t *testing.T) {
	e := newEnv(t)
	_, _, _, err := e.router.AddLiquidity(protocol.NewCall(alice, 101), e.a, e.b,
		mathx.MustAmount("1000e18"), mathx.MustAmount("10e18"), mathx.Zero(), mathx.Zero(), alice, 100)
	require.ErrorIs(t, err, protocol.ErrExpired)
	require.Empty(t, e.factory.AllPairs())

	_, err = e.router.SwapExactTokensForTokens(protocol.NewCall(bob, 101), mathx.U(1), mathx.Zero(),
		[]common.Address{e.a.Address(), e.b.Address()}, bob, 100)
	require.ErrorIs(t, err, protocol.ErrExpired)
}

func TestSwapExactTokensMultiHop(t *testing.T) {
	e := newEnv(t)
	e.seed(t, e.a, e.b, "1000e18", "10e18")
	e.seed(t, e.b, e.c, "10e18", "500e18")
	path := []common.Address{e.a.Address(), e.b.Address(), e.c.Address()}
	amountIn := mathx.MustAmount("10e18")

	quoted, err := e.router.GetAmountsOut(amountIn, path)
	require.NoError(t, err)

	_, err = e.router.SwapExactTokensForTokens(protocol.NewCall(bob, 11), amountIn,
		new(uint256.Int).AddUint64(quoted[2], 1), path, bob, 20)
	require.ErrorIs(t, err, ErrInsufficientOutputAmount)
	require.Equal(t, mathx.MustAmount("1000000e18"), e.a.BalanceOf(bob))

	amounts, err := e.router.SwapExactTokensForTokens(protocol.NewCall(bob, 11), amountIn, quoted[2], path, bob, 20)
	require.NoError(t, err)
	require.Equal(t, quoted, amounts)
	require.Equal(t, new(uint256.Int).Add(mathx.MustAmount("1000000e18"), amounts[2]), e.c.BalanceOf(bob))
	require.Equal(t, mathx.MustAmount("1000000e18"), e.b.BalanceOf(bob))
	require.True(t, e.b.BalanceOf(e.router.Address()).IsZero())
}

func TestSwapTokensForExactTokens(t *testing.T) {
	e := newEnv(t)
	e.seed(t, e.a, e.b, "1000e18", "10e18")
	path := []common.Address{e.a.Address(), e.b.Address()}
	want := mathx.MustAmount("0.1e18")

	quoted, err := e.router.GetAmountsIn(want, path)
	require.NoError(t, err)
	_, err = e.router.SwapTokensForExactTokens(protocol.NewCall(bob, 11), want,
		new(uint256.Int).SubUint64(quoted[0], 1), path, bob, 20)
	require.ErrorIs(t, err, ErrExcessiveInputAmount)

	amounts, err := e.router.SwapTokensForExactTokens(protocol.NewCall(bob, 11), want, quoted[0], path, bob, 20)
	require.NoError(t, err)
	require.Equal(t, want, amounts[1])
	require.Equal(t, new(uint256.Int).Add(mathx.MustAmount("1000000e18"), want), e.b.BalanceOf(bob))
}

func TestInvalidPaths(t *testing.T) {
	e := newEnv(t)
	e.seed(t, e.a, e.b, "1000e18", "10e18")
	call := protocol.NewCall(bob, 11)
	one := mathx.MustAmount("1e18")

	_, err := e.router.SwapExactTokensForTokens(call, one, mathx.Zero(), []common.Address{e.a.Address()}, bob, 20)
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = e.router.SwapExactTokensForTokens(call, one, mathx.Zero(), []common.Address{e.a.Address(), e.b.Address(), e.a.Address()}, bob, 20)
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = e.router.SwapExactTokensForTokens(call, one, mathx.Zero(), []common.Address{e.a.Address(), e.c.Address()}, bob, 20)
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = e.router.SwapExactETHForTokens(call, one, mathx.Zero(), []common.Address{e.a.Address(), e.b.Address()}, bob, 20)
	require.ErrorIs(t, err, ErrInvalidPath)
}

type partialPrices map[common.Address]*uint256.Int

func (p partialPrices) GetPrice(_ context.Context, token common.Address, _ uint64) (*uint256.Int, error) {
	if price, ok := p[token]; ok {
		return price, nil
	}
	return nil, errors.New("no price")
}

func TestFailingLaterHopMovesNothing(t *testing.T) {
	e := newEnv(t)
	first := e.seed(t, e.a, e.b, "1000e18", "10e18")
	e.seed(t, e.b, e.c, "10e18", "500e18")
	prices := partialPrices{
		e.a.Address(): mathx.U(1_000_000),
		e.b.Address(): mathx.U(100_000_000),
	}
	require.NoError(t, e.factory.SetPriceOracle(protocol.NewCall(admin, 11), prices))

	path := []common.Address{e.a.Address(), e.b.Address(), e.c.Address()}
	_, err := e.router.SwapExactTokensForTokens(protocol.NewCall(bob, 11), mathx.MustAmount("1e18"), mathx.Zero(), path, bob, 20)
	require.ErrorContains(t, err, "hop 1")

	require.Equal(t, mathx.MustAmount("1000000e18"), e.a.BalanceOf(bob))
	r0, r1, _ := first.GetReserves()
	require.Equal(t, mathx.MustAmount("1000e18"), r0)
	require.Equal(t, mathx.MustAmount("10e18"), r1)
}

func TestRemoveLiquidity(t *testing.T) {
	e := newEnv(t)
	pair := e.seed(t, e.a, e.b, "1000e18", "10e18")
	lp := pair.LPToken()
	require.NoError(t, lp.Approve(alice, e.router.Address(), ledger.Unlimited()))
	shares := mathx.MustAmount("10e18")

	_, _, err := e.router.RemoveLiquidity(protocol.NewCall(alice, 11), e.b.Address(), e.a.Address(),
		shares, mathx.MustAmount("2e18"), mathx.Zero(), alice, 20)
	require.ErrorIs(t, err, ErrInsufficientAmount)

	amountB, amountA, err := e.router.RemoveLiquidity(protocol.NewCall(alice, 11), e.b.Address(), e.a.Address(),
		shares, mathx.MustAmount("1e18"), mathx.MustAmount("100e18"), alice, 20)
	require.NoError(t, err)
	require.Equal(t, mathx.MustAmount("1e18"), amountB)
	require.Equal(t, mathx.MustAmount("100e18"), amountA)
	require.Equal(t, "89999999999999999000", lp.BalanceOf(alice).Dec())
}

func TestNativeEntryPoints(t *testing.T) {
	e := newEnv(t)
	call := protocol.NewCall(alice, 10)
	amountToken, amountETH, liquidity, err := e.router.AddLiquidityETH(call, e.a,
		mathx.MustAmount("10e18"), mathx.MustAmount("1000e18"), mathx.Zero(), mathx.Zero(), alice, 20)
	require.NoError(t, err)
	require.Equal(t, mathx.MustAmount("1000e18"), amountToken)
	require.Equal(t, mathx.MustAmount("10e18"), amountETH)
	require.Equal(t, mathx.MustAmount("999990e18"), e.native.BalanceOf(alice))
	require.Equal(t, mathx.MustAmount("10e18"), e.native.BalanceOf(e.wrapped.Address()))

	toToken := []common.Address{e.wrapped.Address(), e.a.Address()}
	amounts, err := e.router.SwapExactETHForTokens(protocol.NewCall(bob, 11), mathx.MustAmount("0.1e18"), mathx.Zero(), toToken, bob, 20)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Add(mathx.MustAmount("1000000e18"), amounts[1]), e.a.BalanceOf(bob))
	require.Equal(t, mathx.MustAmount("999999.9e18"), e.native.BalanceOf(bob))

	toNative := []common.Address{e.a.Address(), e.wrapped.Address()}
	nativeBefore := e.native.BalanceOf(bob)
	amounts, err = e.router.SwapExactTokensForETH(protocol.NewCall(bob, 12), mathx.MustAmount("5e18"), mathx.Zero(), toNative, bob, 20)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Add(nativeBefore, amounts[1]), e.native.BalanceOf(bob))
	require.True(t, e.wrapped.BalanceOf(e.router.Address()).IsZero())

	nativeBefore = e.native.BalanceOf(bob)
	amounts, err = e.router.SwapETHForExactTokens(protocol.NewCall(bob, 13), mathx.MustAmount("1e18"), mathx.MustAmount("1e18"), toToken, bob, 20)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Sub(nativeBefore, amounts[0]), e.native.BalanceOf(bob))

	nativeBefore = e.native.BalanceOf(bob)
	amounts, err = e.router.SwapTokensForExactETH(protocol.NewCall(bob, 14), mathx.MustAmount("0.01e18"), mathx.MustAmount("10e18"), toNative, bob, 20)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Add(nativeBefore, mathx.MustAmount("0.01e18")), e.native.BalanceOf(bob))
	require.Len(t, amounts, 2)

	pair, err := e.factory.GetPair(e.a.Address(), e.wrapped.Address())
	require.NoError(t, err)
	require.NoError(t, pair.LPToken().Approve(alice, e.router.Address(), ledger.Unlimited()))
	nativeBefore = e.native.BalanceOf(alice)
	tokenOut, ethOut, err := e.router.RemoveLiquidityETH(protocol.NewCall(alice, 15), e.a.Address(),
		liquidity, mathx.Zero(), mathx.Zero(), alice, 20)
	require.NoError(t, err)
	require.False(t, tokenOut.IsZero())
	require.Equal(t, new(uint256.Int).Add(nativeBefore, ethOut), e.native.BalanceOf(alice))
}
