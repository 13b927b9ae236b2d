package vault

import (
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

const start = 1_700_000_000

var (
	admin          = common.HexToAddress("0xad")
	keeper         = common.HexToAddress("0x4ee9")
	alice          = common.HexToAddress("0xa11ce")
	bob            = common.HexToAddress("0xb0b")
	controllerAddr = common.HexToAddress("0xc0")
)

func at(who common.Address, ts uint64) protocol.Call { return protocol.NewCall(who, ts) }

func newAsset(t *testing.T) *ledger.MemoryToken {
	t.Helper()
	asset := ledger.NewMemoryToken(common.HexToAddress("0xb1"), "BLX", 18)
	for _, account := range []common.Address{alice, bob} {
		require.NoError(t, asset.Mint(account, mathx.MustAmount("1000000e18")))
	}
	return asset
}

func newVault(t *testing.T, asset *ledger.MemoryToken, address common.Address, rateBps uint64, opts ...Option) *Vault {
	t.Helper()
	reg := access.NewRegistry()
	reg.Grant(access.RoleVaultAdmin, admin)
	v, err := New(address, "vault-"+address.Hex()[38:], asset, controllerAddr, rateBps, reg, opts...)
	require.NoError(t, err)
	for _, account := range []common.Address{alice, bob} {
		require.NoError(t, asset.Approve(account, v.Address(), ledger.Unlimited()))
	}
	return v
}

// fund mints amount into v and attributes it as yield.
func fund(t *testing.T, asset *ledger.MemoryToken, v *Vault, amount *uint256.Int, ts uint64) {
	t.Helper()
	require.NoError(t, asset.Mint(v.Address(), amount))
	require.NoError(t, v.RecordYield(at(controllerAddr, ts), amount))
}

func TestTierFor(t *testing.T) {
	tiers := DefaultTiers()
	cases := []struct {
		lock uint64
		want string
	}{
		{0, "NO_LOCK"},
		{29 * day, "NO_LOCK"},
		{30 * day, "30_DAYS"},
		{89 * day, "30_DAYS"},
		{90 * day, "90_DAYS"},
		{200 * day, "180_DAYS"},
		{365 * day, "365_DAYS"},
		{1000 * day, "365_DAYS"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, TierFor(tiers, tc.lock).Name, "lock %d", tc.lock)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	asset := newAsset(t)
	_, err := New(common.HexToAddress("0x7a"), "v", asset, common.Address{}, 100, nil)
	require.ErrorIs(t, err, protocol.ErrZeroAddress)

	_, err = New(common.HexToAddress("0x7a"), "v", asset, controllerAddr, MaxYieldRateBps+1, nil)
	require.ErrorIs(t, err, ErrRateTooHigh)

	_, err = New(common.HexToAddress("0x7a"), "v", asset, controllerAddr, 100, nil,
		WithTiers([]LockTier{{Name: "LOCKED", Duration: day, MultiplierBps: 10_000}}))
	require.Error(t, err)
}

func TestDepositAndPendingRewards(t *testing.T) {
	asset := newAsset(t)
	log := events.NewLog()
	v := newVault(t, asset, common.HexToAddress("0x7a"), 1_000, WithEmitter(log))

	require.NoError(t, v.Deposit(at(alice, start), mathx.MustAmount("1000e18"), 365*day))
	require.Equal(t, mathx.MustAmount("1000e18"), v.TotalDeposited())
	require.Equal(t, mathx.MustAmount("1000e18"), asset.BalanceOf(v.Address()))

	d, ok := v.GetUserDeposit(alice)
	require.True(t, ok)
	require.Equal(t, uint64(start+365*day), d.LockEnd)
	require.Equal(t, uint64(20_000), d.LockMultiplierBps)

	pending, err := v.CalculatePendingRewards(alice, start+30*day)
	require.NoError(t, err)
	// 1000 * 10% * 2x * 30/365
	require.Equal(t, "16438356164383561643", pending.Dec())

	again, err := v.CalculatePendingRewards(alice, start+30*day)
	require.NoError(t, err)
	require.Equal(t, pending, again)

	none, err := v.CalculatePendingRewards(bob, start+30*day)
	require.NoError(t, err)
	require.True(t, none.IsZero())

	deposits := log.Filter(events.TypeVaultDeposit)
	require.Len(t, deposits, 1)
	require.Equal(t, "1000000000000000000000", deposits[0].Attributes["amount"])
}

func TestDepositRejectsWithoutFunds(t *testing.T) {
	asset := newAsset(t)
	v := newVault(t, asset, common.HexToAddress("0x7a"), 1_000)
	poor := common.HexToAddress("0x9009")

	err := v.Deposit(at(poor, start), mathx.MustAmount("1e18"), 0)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	_, ok := v.GetUserDeposit(poor)
	require.False(t, ok)
	require.True(t, v.TotalDeposited().IsZero())

	require.ErrorIs(t, v.Deposit(at(alice, start), new(uint256.Int), 0), protocol.ErrZeroAmount)
}

func TestLockNeverShortens(t *testing.T) {
	asset := newAsset(t)
	v := newVault(t, asset, common.HexToAddress("0x7a"), 1_000)

	require.NoError(t, v.Deposit(at(alice, start), mathx.MustAmount("100e18"), 365*day))
	require.NoError(t, v.Deposit(at(alice, start+10*day), mathx.MustAmount("50e18"), 0))

	d, _ := v.GetUserDeposit(alice)
	require.Equal(t, uint64(start+365*day), d.LockEnd)
	require.Equal(t, uint64(20_000), d.LockMultiplierBps)
	require.Equal(t, mathx.MustAmount("150e18"), d.Amount)
	// Rewards for the first ten days were settled before the merge.
	require.False(t, d.Accrued.IsZero())
	require.Equal(t, uint64(start+10*day), d.LastCompound)
}

func TestLockExtends(t *testing.T) {
	asset := newAsset(t)
	v := newVault(t, asset, common.HexToAddress("0x7a"), 1_000)

	require.NoError(t, v.Deposit(at(alice, start), mathx.MustAmount("100e18"), 30*day))
	require.NoError(t, v.Deposit(at(alice, start+10*day), mathx.MustAmount("100e18"), 90*day))

	d, _ := v.GetUserDeposit(alice)
	require.Equal(t, uint64(start+100*day), d.LockEnd)
	require.Equal(t, uint64(12_500), d.LockMultiplierBps)
}

func TestWithdrawRespectsLock(t *testing.T) {
	asset := newAsset(t)
	v := newVault(t, asset, common.HexToAddress("0x7a"), 1_000)
	require.NoError(t, v.Deposit(at(alice, start), mathx.MustAmount("100e18"), 30*day))
	before := asset.BalanceOf(alice)

	err := v.Withdraw(at(alice, start+29*day), mathx.MustAmount("10e18"))
	require.ErrorIs(t, err, ErrFundsLocked)
	require.Equal(t, mathx.MustAmount("100e18"), v.TotalDeposited())

	err = v.Withdraw(at(alice, start+30*day), mathx.MustAmount("101e18"))
	require.ErrorIs(t, err, ErrInsufficientDeposit)

	require.NoError(t, v.Withdraw(at(alice, start+30*day), mathx.MustAmount("40e18")))
	require.Equal(t, mathx.MustAmount("60e18"), v.TotalDeposited())
	require.Equal(t, new(uint256.Int).Add(before, mathx.MustAmount("40e18")), asset.BalanceOf(alice))

	err = v.Withdraw(at(bob, start+30*day), mathx.MustAmount("1e18"))
	require.ErrorIs(t, err, ErrInsufficientDeposit)
}

func TestCompoundRewards(t *testing.T) {
	asset := newAsset(t)
	log := events.NewLog()
	v := newVault(t, asset, common.HexToAddress("0x7a"), 1_000, WithEmitter(log))
	require.NoError(t, v.Deposit(at(alice, start), mathx.MustAmount("1000e18"), 365*day))

	_, err := v.CompoundRewards(at(alice, start+30*day))
	require.ErrorIs(t, err, ErrInsufficientYield)
	d, _ := v.GetUserDeposit(alice)
	require.Equal(t, mathx.MustAmount("1000e18"), d.Amount)
	require.Equal(t, uint64(start), d.LastCompound)

	fund(t, asset, v, mathx.MustAmount("20e18"), start+30*day)
	rewards, err := v.CompoundRewards(at(alice, start+30*day))
	require.NoError(t, err)
	require.Equal(t, "16438356164383561643", rewards.Dec())

	d, _ = v.GetUserDeposit(alice)
	require.Equal(t, new(uint256.Int).Add(mathx.MustAmount("1000e18"), rewards), d.Amount)
	require.True(t, d.Accrued.IsZero())
	require.Equal(t, uint64(start+30*day), d.LastCompound)
	require.Equal(t, d.Amount, v.TotalDeposited())
	require.Equal(t, new(uint256.Int).Sub(mathx.MustAmount("20e18"), rewards), v.YieldReserve())

	pending, err := v.CalculatePendingRewards(alice, start+30*day)
	require.NoError(t, err)
	require.True(t, pending.IsZero())

	owed := new(uint256.Int).Add(v.TotalDeposited(), v.YieldReserve())
	require.Equal(t, owed, asset.BalanceOf(v.Address()))
	require.Len(t, log.Filter(events.TypeVaultCompound), 1)
	require.Len(t, log.Filter(events.TypeYieldGenerated), 1)
}

func TestCompoundWithoutDepositIsNoop(t *testing.T) {
	asset := newAsset(t)
	v := newVault(t, asset, common.HexToAddress("0x7a"), 1_000)
	rewards, err := v.CompoundRewards(at(bob, start))
	require.NoError(t, err)
	require.True(t, rewards.IsZero())
}

func TestRecordYieldChecks(t *testing.T) {
	asset := newAsset(t)
	v := newVault(t, asset, common.HexToAddress("0x7a"), 1_000)

	err := v.RecordYield(at(alice, start), mathx.MustAmount("1e18"))
	require.ErrorIs(t, err, access.ErrUnauthorized)

	err = v.RecordYield(at(controllerAddr, start), mathx.MustAmount("1e18"))
	require.ErrorIs(t, err, ErrUnbackedYield)
	require.True(t, v.YieldReserve().IsZero())
}

func TestSetYieldRate(t *testing.T) {
	asset := newAsset(t)
	v := newVault(t, asset, common.HexToAddress("0x7a"), 1_000)

	require.ErrorIs(t, v.SetYieldRate(at(alice, start), 500), access.ErrUnauthorized)
	require.ErrorIs(t, v.SetYieldRate(at(admin, start), MaxYieldRateBps+1), ErrRateTooHigh)
	require.NoError(t, v.SetYieldRate(at(admin, start), 500))
	require.Equal(t, uint64(500), v.YieldRate())
}

func TestSetYieldRateSettlesAtOldRate(t *testing.T) {
	asset := newAsset(t)
	v := newVault(t, asset, common.HexToAddress("0x7a"), 1_000)
	require.NoError(t, v.Deposit(at(alice, start), mathx.MustAmount("1000e18"), 0))

	require.NoError(t, v.SetYieldRate(at(admin, start+day), 500))
	d, ok := v.GetUserDeposit(alice)
	require.True(t, ok)
	require.Equal(t, "273972602739726027", d.Accrued.Dec())
	require.Equal(t, uint64(start+day), d.LastCompound)

	// The second day earns at the new rate only.
	pending, err := v.CalculatePendingRewards(alice, start+2*day)
	require.NoError(t, err)
	require.Equal(t, "410958904109589040", pending.Dec())
}

func TestVaultRejectsNestedCall(t *testing.T) {
	asset := newAsset(t)
	v := newVault(t, asset, common.HexToAddress("0x7a"), 1_000)
	require.NoError(t, v.guard.Enter())
	defer v.guard.Exit()
	err := v.Deposit(at(alice, start), mathx.MustAmount("1e18"), 0)
	require.ErrorIs(t, err, protocol.ErrReentrant)
}
