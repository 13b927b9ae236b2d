package amm

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"blxProtocol/internal/access"
	"blxProtocol/internal/events"
	"blxProtocol/internal/ledger"
	"blxProtocol/internal/mathx"
	"blxProtocol/internal/protocol"
)

var (
	admin    = common.HexToAddress("0xad")
	alice    = common.HexToAddress("0xa11ce")
	bob      = common.HexToAddress("0xb0b")
	feeTo    = common.HexToAddress("0xfee")
	tokenKey = common.HexToAddress("0xa1")
	baseKey  = common.HexToAddress("0xb2")
)

type fixture struct {
	factory *Factory
	pair    *Pair
	token   *ledger.MemoryToken
	base    *ledger.MemoryToken
	log     *events.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := access.NewRegistry()
	reg.Grant(access.RoleFeeAdmin, admin)
	reg.Grant(access.RoleOracleAdmin, admin)
	log := events.NewLog()
	factory := NewFactory(common.HexToAddress("0xfac"), reg, WithEmitter(log))
	token := ledger.NewMemoryToken(tokenKey, "TKN", 18)
	base := ledger.NewMemoryToken(baseKey, "BLX", 18)
	for _, account := range []common.Address{alice, bob} {
		require.NoError(t, token.Mint(account, mathx.MustAmount("1000000e18")))
		require.NoError(t, base.Mint(account, mathx.MustAmount("1000000e18")))
	}
	pair, err := factory.CreatePair(protocol.NewCall(alice, 1), base, token)
	require.NoError(t, err)
	return &fixture{factory: factory, pair: pair, token: token, base: base, log: log}
}

func (f *fixture) addLiquidity(t *testing.T, who common.Address, amountToken, amountBase string, now uint64) *uint256.Int {
	t.Helper()
	require.NoError(t, f.token.Transfer(who, f.pair.Address(), mathx.MustAmount(amountToken)))
	require.NoError(t, f.base.Transfer(who, f.pair.Address(), mathx.MustAmount(amountBase)))
	liquidity, err := f.pair.Mint(protocol.NewCall(who, now), who)
	require.NoError(t, err)
	return liquidity
}

type fakePrices map[common.Address]*uint256.Int

func (f fakePrices) GetPrice(_ context.Context, token common.Address, _ uint64) (*uint256.Int, error) {
	price, ok := f[token]
	if !ok {
		return nil, errors.New("no price")
	}
	return price, nil
}

func TestCreatePairSortsAndInitializes(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, tokenKey, f.pair.Token0().Address())
	require.Equal(t, baseKey, f.pair.Token1().Address())
	require.Equal(t, StateInitialized, f.pair.State())

	again, err := f.factory.GetPair(baseKey, tokenKey)
	require.NoError(t, err)
	require.Same(t, f.pair, again)

	_, err = f.factory.CreatePair(protocol.NewCall(bob, 2), f.token, f.base)
	require.ErrorIs(t, err, ErrPairExists)
	_, err = f.factory.CreatePair(protocol.NewCall(bob, 2), f.token, f.token)
	require.ErrorIs(t, err, ErrIdenticalAddresses)

	err = f.pair.Initialize(protocol.NewCall(f.factory.Address(), 3), f.token, f.base)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	err = f.pair.Initialize(protocol.NewCall(bob, 3), f.token, f.base)
	require.ErrorIs(t, err, access.ErrUnauthorized)
	require.Len(t, f.log.Filter(events.TypePairCreated), 1)
}

func TestFirstMintBurnsMinimumLiquidity(t *testing.T) {
	f := newFixture(t)
	liquidity := f.addLiquidity(t, alice, "1000e18", "10e18", 10)

	require.Equal(t, "99999999999999999000", liquidity.Dec())
	r0, r1, updated := f.pair.GetReserves()
	require.Equal(t, mathx.MustAmount("1000e18"), r0)
	require.Equal(t, mathx.MustAmount("10e18"), r1)
	require.Equal(t, uint64(10), updated)
	require.Equal(t, StateActive, f.pair.State())
	require.Equal(t, uint64(MinimumLiquidity), f.pair.LPToken().BalanceOf(common.Address{}).Uint64())
	require.Equal(t, mathx.MustAmount("100e18"), f.pair.LPToken().TotalSupply())
}

func TestMintRejectsDust(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.token.Transfer(alice, f.pair.Address(), mathx.U(1000)))
	require.NoError(t, f.base.Transfer(alice, f.pair.Address(), mathx.U(10)))
	_, err := f.pair.Mint(protocol.NewCall(alice, 10), alice)
	require.ErrorIs(t, err, ErrInsufficientLiquidityMinted)
	require.Equal(t, StateInitialized, f.pair.State())
}

func TestMintProportional(t *testing.T) {
	f := newFixture(t)
	f.addLiquidity(t, alice, "1000e18", "10e18", 10)
	liquidity := f.addLiquidity(t, bob, "100e18", "2e18", 11)
	// token side is binding: 100/1000 of supply.
	require.Equal(t, mathx.MustAmount("10e18"), liquidity)
}

func TestBurnReturnsProportionalReserves(t *testing.T) {
	f := newFixture(t)
	liquidity := f.addLiquidity(t, alice, "1000e18", "10e18", 10)
	tokenBefore := f.token.BalanceOf(alice)

	require.NoError(t, f.pair.LPToken().Transfer(alice, f.pair.Address(), liquidity))
	amount0, amount1, err := f.pair.Burn(protocol.NewCall(alice, 20), alice)
	require.NoError(t, err)
	require.Equal(t, "999999999999999990000", amount0.Dec())
	require.Equal(t, "9999999999999999900", amount1.Dec())
	require.Equal(t, new(uint256.Int).Add(tokenBefore, amount0), f.token.BalanceOf(alice))

	r0, r1, _ := f.pair.GetReserves()
	require.Equal(t, "10000", r0.Dec())
	require.Equal(t, "100", r1.Dec())

	_, _, err = f.pair.Burn(protocol.NewCall(alice, 21), alice)
	require.ErrorIs(t, err, ErrInsufficientLiquidityBurned)
}

func TestSwapExactInput(t *testing.T) {
	f := newFixture(t)
	f.addLiquidity(t, alice, "1000e18", "10e18", 10)
	r0, r1, _ := f.pair.GetReserves()
	kBefore := new(uint256.Int).Mul(r0, r1)

	amountIn := mathx.MustAmount("10e18")
	out, err := GetAmountOut(amountIn, r0, r1)
	require.NoError(t, err)
	require.Equal(t, "98715803439706129", out.Dec())

	baseBefore := f.base.BalanceOf(bob)
	require.NoError(t, f.token.Transfer(bob, f.pair.Address(), amountIn))
	require.NoError(t, f.pair.Swap(protocol.NewCall(bob, 11), mathx.Zero(), out, bob, nil))

	require.Equal(t, new(uint256.Int).Add(baseBefore, out), f.base.BalanceOf(bob))
	a0, a1, _ := f.pair.GetReserves()
	require.Equal(t, mathx.MustAmount("1010e18"), a0)
	require.True(t, new(uint256.Int).Mul(a0, a1).Gt(kBefore))
	require.Len(t, f.log.Filter(events.TypeSwap), 1)
}

func TestSwapRejectsKViolation(t *testing.T) {
	f := newFixture(t)
	f.addLiquidity(t, alice, "1000e18", "10e18", 10)
	amountIn := mathx.MustAmount("10e18")
	require.NoError(t, f.token.Transfer(bob, f.pair.Address(), amountIn))

	greedy := mathx.MustAmount("98715803439706130")
	err := f.pair.Swap(protocol.NewCall(bob, 11), mathx.Zero(), greedy, bob, nil)
	require.ErrorIs(t, err, ErrKInvariant)

	r0, r1, _ := f.pair.GetReserves()
	require.Equal(t, mathx.MustAmount("1000e18"), r0)
	require.Equal(t, mathx.MustAmount("10e18"), r1)
	require.Equal(t, mathx.MustAmount("1000000e18"), f.base.BalanceOf(bob))
}

func TestSwapGuards(t *testing.T) {
	f := newFixture(t)
	call := protocol.NewCall(bob, 11)
	require.ErrorIs(t, f.pair.Swap(call, mathx.Zero(), mathx.U(1), bob, nil), ErrInsufficientLiquidity)

	f.addLiquidity(t, alice, "1000e18", "10e18", 10)
	require.ErrorIs(t, f.pair.Swap(call, mathx.Zero(), mathx.U(1), bob, []byte{1}), ErrFlashSwapUnsupported)
	require.ErrorIs(t, f.pair.Swap(call, mathx.Zero(), mathx.Zero(), bob, nil), ErrInsufficientOutputAmount)
	require.ErrorIs(t, f.pair.Swap(call, mathx.Zero(), mathx.MustAmount("10e18"), bob, nil), ErrInsufficientLiquidity)
	require.ErrorIs(t, f.pair.Swap(call, mathx.Zero(), mathx.U(1), baseKey, nil), ErrInvalidTo)
	require.ErrorIs(t, f.pair.Swap(call, mathx.Zero(), mathx.U(1), bob, nil), ErrInsufficientInputAmount)
}

func TestNestedCallIsRejected(t *testing.T) {
	f := newFixture(t)
	f.addLiquidity(t, alice, "1000e18", "10e18", 10)
	require.NoError(t, f.pair.guard.Enter())
	_, err := f.pair.Mint(protocol.NewCall(alice, 11), alice)
	require.ErrorIs(t, err, protocol.ErrReentrant)
	require.ErrorIs(t, f.pair.Sync(protocol.NewCall(alice, 11)), protocol.ErrReentrant)
	f.pair.guard.Exit()
	require.NoError(t, f.pair.Sync(protocol.NewCall(alice, 11)))
}

func TestKInvariantHoldsAcrossRandomSwaps(t *testing.T) {
	f := newFixture(t)
	f.addLiquidity(t, alice, "1000e18", "10e18", 10)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		r0, r1, _ := f.pair.GetReserves()
		kBefore := new(uint256.Int).Mul(r0, r1)
		zeroForOne := rng.Intn(2) == 0
		amountIn := new(uint256.Int).Mul(mathx.U(uint64(rng.Int63n(1_000_000)+1)), mathx.U(1_000_000_000_000))

		var err error
		if zeroForOne {
			out, qerr := GetAmountOut(amountIn, r0, r1)
			require.NoError(t, qerr)
			if out.IsZero() {
				continue
			}
			require.NoError(t, f.token.Transfer(bob, f.pair.Address(), amountIn))
			err = f.pair.Swap(protocol.NewCall(bob, uint64(20+i)), mathx.Zero(), out, bob, nil)
		} else {
			out, qerr := GetAmountOut(amountIn, r1, r0)
			require.NoError(t, qerr)
			if out.IsZero() {
				continue
			}
			require.NoError(t, f.base.Transfer(bob, f.pair.Address(), amountIn))
			err = f.pair.Swap(protocol.NewCall(bob, uint64(20+i)), out, mathx.Zero(), bob, nil)
		}
		require.NoError(t, err)

		a0, a1, _ := f.pair.GetReserves()
		kAfter := new(uint256.Int).Mul(a0, a1)
		require.Truef(t, kAfter.Gt(kBefore), "swap %d: K %s -> %s", i, kBefore.Dec(), kAfter.Dec())
	}
}

func TestOracleBoundsSwap(t *testing.T) {
	f := newFixture(t)
	f.addLiquidity(t, alice, "1000e18", "10e18", 10)
	prices := fakePrices{
		tokenKey: mathx.U(1_000_000),
		baseKey:  mathx.U(100_000_000),
	}
	require.ErrorIs(t, f.factory.SetPriceOracle(protocol.NewCall(bob, 10), prices), access.ErrUnauthorized)
	require.NoError(t, f.factory.SetPriceOracle(protocol.NewCall(admin, 10), prices))

	r0, r1, _ := f.pair.GetReserves()
	small := mathx.MustAmount("10e18")
	out, err := GetAmountOut(small, r0, r1)
	require.NoError(t, err)
	require.NoError(t, f.token.Transfer(bob, f.pair.Address(), small))
	require.NoError(t, f.pair.Swap(protocol.NewCall(bob, 11), mathx.Zero(), out, bob, nil))

	r0, r1, _ = f.pair.GetReserves()
	large := mathx.MustAmount("100e18")
	out, err = GetAmountOut(large, r0, r1)
	require.NoError(t, err)
	require.NoError(t, f.token.Transfer(bob, f.pair.Address(), large))
	err = f.pair.Swap(protocol.NewCall(bob, 12), mathx.Zero(), out, bob, nil)
	require.ErrorIs(t, err, ErrPriceOutsideBounds)
	a0, a1, _ := f.pair.GetReserves()
	require.Equal(t, r0, a0)
	require.Equal(t, r1, a1)

	// A missing price fails closed.
	delete(prices, baseKey)
	require.NoError(t, f.pair.Skim(protocol.NewCall(bob, 13), bob))
	require.NoError(t, f.token.Transfer(bob, f.pair.Address(), mathx.MustAmount("1e18")))
	err = f.pair.Swap(protocol.NewCall(bob, 13), mathx.Zero(), mathx.U(1), bob, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrKInvariant)
}

func TestProtocolFeeOnKGrowth(t *testing.T) {
	f := newFixture(t)
	call := protocol.NewCall(admin, 5)
	require.ErrorIs(t, f.factory.SetProtocolFee(call, 31), ErrFeeTooHigh)
	require.ErrorIs(t, f.factory.SetProtocolFee(call.As(bob), 5), access.ErrUnauthorized)
	require.NoError(t, f.factory.SetProtocolFee(call, 5))
	require.NoError(t, f.factory.SetFeeReceiver(call, feeTo))

	f.addLiquidity(t, alice, "1000e18", "10e18", 10)
	require.Equal(t, mathx.MustAmount("10000e36"), f.pair.KLast())

	amountIn := mathx.MustAmount("10e18")
	require.NoError(t, f.token.Transfer(bob, f.pair.Address(), amountIn))
	require.NoError(t, f.pair.Swap(protocol.NewCall(bob, 11), mathx.Zero(), mathx.MustAmount("98715803439706129"), bob, nil))
	require.True(t, f.pair.LPToken().BalanceOf(feeTo).IsZero())

	require.NoError(t, f.pair.LPToken().Transfer(alice, f.pair.Address(), mathx.MustAmount("1e18")))
	_, _, err := f.pair.Burn(protocol.NewCall(alice, 12), alice)
	require.NoError(t, err)
	require.Equal(t, "247527203253286", f.pair.LPToken().BalanceOf(feeTo).Dec())
}

func TestSkimAndSync(t *testing.T) {
	f := newFixture(t)
	f.addLiquidity(t, alice, "1000e18", "10e18", 10)
	require.NoError(t, f.base.Transfer(bob, f.pair.Address(), mathx.MustAmount("1e18")))

	before := f.base.BalanceOf(alice)
	require.NoError(t, f.pair.Skim(protocol.NewCall(alice, 11), alice))
	require.Equal(t, new(uint256.Int).Add(before, mathx.MustAmount("1e18")), f.base.BalanceOf(alice))

	require.NoError(t, f.base.Transfer(bob, f.pair.Address(), mathx.MustAmount("2e18")))
	require.NoError(t, f.pair.Sync(protocol.NewCall(alice, 12)))
	_, r1, _ := f.pair.GetReserves()
	require.Equal(t, mathx.MustAmount("12e18"), r1)
}

func TestPreviewSwapMatchesSwap(t *testing.T) {
	f := newFixture(t)
	f.addLiquidity(t, alice, "1000e18", "10e18", 10)
	call := protocol.NewCall(bob, 11)
	in := mathx.MustAmount("10e18")
	require.NoError(t, f.pair.PreviewSwap(call, in, mathx.Zero(), mathx.Zero(), mathx.MustAmount("98715803439706129")))
	require.ErrorIs(t, f.pair.PreviewSwap(call, in, mathx.Zero(), mathx.Zero(), mathx.MustAmount("98715803439706130")), ErrKInvariant)
}
