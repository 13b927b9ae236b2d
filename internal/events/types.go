package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	TypeLiquidityMinted     = "pair.mint"
	TypeLiquidityBurned     = "pair.burn"
	TypeSwap                = "pair.swap"
	TypeSync                = "pair.sync"
	TypePairCreated         = "factory.pairCreated"
	TypeStake               = "stake.staked"
	TypeUnstake             = "stake.unstaked"
	TypeRewardsClaimed      = "stake.rewardsClaimed"
	TypeExchangeRateUpdated = "stake.exchangeRateUpdated"
	TypeLockTierAdded       = "stake.lockTierAdded"
	TypeVaultDeposit        = "vault.deposit"
	TypeVaultWithdraw       = "vault.withdraw"
	TypeVaultCompound       = "vault.compound"
	TypeYieldGenerated      = "vault.yieldGenerated"
	TypeGlobalCompound      = "controller.globalCompound"
	TypeOraclePriceSet      = "oracle.priceSet"
	TypeOracleFeedSet       = "oracle.feedSet"
)

type LiquidityMinted struct {
	Sender    common.Address
	To        common.Address
	Amount0   *uint256.Int
	Amount1   *uint256.Int
	Liquidity *uint256.Int
}

func (LiquidityMinted) EventType() string { return TypeLiquidityMinted }

func (e LiquidityMinted) Attributes() map[string]string {
	return map[string]string{
		"sender":    e.Sender.Hex(),
		"to":        e.To.Hex(),
		"amount0":   formatAmount(e.Amount0),
		"amount1":   formatAmount(e.Amount1),
		"liquidity": formatAmount(e.Liquidity),
	}
}

type LiquidityBurned struct {
	Sender    common.Address
	To        common.Address
	Amount0   *uint256.Int
	Amount1   *uint256.Int
	Liquidity *uint256.Int
}

func (LiquidityBurned) EventType() string { return TypeLiquidityBurned }

func (e LiquidityBurned) Attributes() map[string]string {
	return map[string]string{
		"sender":    e.Sender.Hex(),
		"to":        e.To.Hex(),
		"amount0":   formatAmount(e.Amount0),
		"amount1":   formatAmount(e.Amount1),
		"liquidity": formatAmount(e.Liquidity),
	}
}

// Swap carries the gross in/out amounts on both sides of a pair.
type Swap struct {
	Sender     common.Address
	To         common.Address
	Amount0In  *uint256.Int
	Amount1In  *uint256.Int
	Amount0Out *uint256.Int
	Amount1Out *uint256.Int
	FeeBps     uint64
}

func (Swap) EventType() string { return TypeSwap }

func (e Swap) Attributes() map[string]string {
	return map[string]string{
		"sender":     e.Sender.Hex(),
		"to":         e.To.Hex(),
		"amount0In":  formatAmount(e.Amount0In),
		"amount1In":  formatAmount(e.Amount1In),
		"amount0Out": formatAmount(e.Amount0Out),
		"amount1Out": formatAmount(e.Amount1Out),
		"feeBps":     strconv.FormatUint(e.FeeBps, 10),
	}
}

type Sync struct {
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
}

func (Sync) EventType() string { return TypeSync }

func (e Sync) Attributes() map[string]string {
	return map[string]string{
		"reserve0": formatAmount(e.Reserve0),
		"reserve1": formatAmount(e.Reserve1),
	}
}

type PairCreated struct {
	Token0 common.Address
	Token1 common.Address
	Pair   common.Address
	Index  int
}

func (PairCreated) EventType() string { return TypePairCreated }

func (e PairCreated) Attributes() map[string]string {
	return map[string]string{
		"token0": e.Token0.Hex(),
		"token1": e.Token1.Hex(),
		"pair":   e.Pair.Hex(),
		"index":  strconv.Itoa(e.Index),
	}
}

type Staked struct {
	Account common.Address
	Amount  *uint256.Int
	Shares  *uint256.Int
	Tier    int
	LockEnd uint64
}

func (Staked) EventType() string { return TypeStake }

func (e Staked) Attributes() map[string]string {
	return map[string]string{
		"account": e.Account.Hex(),
		"amount":  formatAmount(e.Amount),
		"shares":  formatAmount(e.Shares),
		"tier":    strconv.Itoa(e.Tier),
		"lockEnd": strconv.FormatUint(e.LockEnd, 10),
	}
}

type Unstaked struct {
	Account common.Address
	Shares  *uint256.Int
	Amount  *uint256.Int
	Fee     *uint256.Int
	Early   bool
}

func (Unstaked) EventType() string { return TypeUnstake }

func (e Unstaked) Attributes() map[string]string {
	return map[string]string{
		"account": e.Account.Hex(),
		"shares":  formatAmount(e.Shares),
		"amount":  formatAmount(e.Amount),
		"fee":     formatAmount(e.Fee),
		"early":   strconv.FormatBool(e.Early),
	}
}

type RewardsClaimed struct {
	Account common.Address
	Amount  *uint256.Int
	Fee     *uint256.Int
}

func (RewardsClaimed) EventType() string { return TypeRewardsClaimed }

func (e RewardsClaimed) Attributes() map[string]string {
	return map[string]string{
		"account": e.Account.Hex(),
		"amount":  formatAmount(e.Amount),
		"fee":     formatAmount(e.Fee),
	}
}

type ExchangeRateUpdated struct {
	OldRate *uint256.Int
	NewRate *uint256.Int
	Rewards *uint256.Int
}

func (ExchangeRateUpdated) EventType() string { return TypeExchangeRateUpdated }

func (e ExchangeRateUpdated) Attributes() map[string]string {
	return map[string]string{
		"oldRate": formatAmount(e.OldRate),
		"newRate": formatAmount(e.NewRate),
		"rewards": formatAmount(e.Rewards),
	}
}

type LockTierAdded struct {
	Index         int
	Duration      uint64
	MultiplierBps uint64
	EarlyFeeBps   uint64
}

func (LockTierAdded) EventType() string { return TypeLockTierAdded }

func (e LockTierAdded) Attributes() map[string]string {
	return map[string]string{
		"index":         strconv.Itoa(e.Index),
		"duration":      strconv.FormatUint(e.Duration, 10),
		"multiplierBps": strconv.FormatUint(e.MultiplierBps, 10),
		"earlyFeeBps":   strconv.FormatUint(e.EarlyFeeBps, 10),
	}
}

type VaultDeposit struct {
	Account       common.Address
	Amount        *uint256.Int
	LockEnd       uint64
	MultiplierBps uint64
}

func (VaultDeposit) EventType() string { return TypeVaultDeposit }

func (e VaultDeposit) Attributes() map[string]string {
	return map[string]string{
		"account":       e.Account.Hex(),
		"amount":        formatAmount(e.Amount),
		"lockEnd":       strconv.FormatUint(e.LockEnd, 10),
		"multiplierBps": strconv.FormatUint(e.MultiplierBps, 10),
	}
}

type VaultWithdraw struct {
	Account common.Address
	Amount  *uint256.Int
}

func (VaultWithdraw) EventType() string { return TypeVaultWithdraw }

func (e VaultWithdraw) Attributes() map[string]string {
	return map[string]string{
		"account": e.Account.Hex(),
		"amount":  formatAmount(e.Amount),
	}
}

type VaultCompound struct {
	Account   common.Address
	Rewards   *uint256.Int
	NewAmount *uint256.Int
}

func (VaultCompound) EventType() string { return TypeVaultCompound }

func (e VaultCompound) Attributes() map[string]string {
	return map[string]string{
		"account":   e.Account.Hex(),
		"rewards":   formatAmount(e.Rewards),
		"newAmount": formatAmount(e.NewAmount),
	}
}

type YieldGenerated struct {
	Vault  common.Address
	Amount *uint256.Int
}

func (YieldGenerated) EventType() string { return TypeYieldGenerated }

func (e YieldGenerated) Attributes() map[string]string {
	return map[string]string{
		"vault":  e.Vault.Hex(),
		"amount": formatAmount(e.Amount),
	}
}

type GlobalCompound struct {
	Vaults int
	Total  *uint256.Int
}

func (GlobalCompound) EventType() string { return TypeGlobalCompound }

func (e GlobalCompound) Attributes() map[string]string {
	return map[string]string{
		"vaults": strconv.Itoa(e.Vaults),
		"total":  formatAmount(e.Total),
	}
}

type OraclePriceSet struct {
	Token common.Address
	Price *uint256.Int
}

func (OraclePriceSet) EventType() string { return TypeOraclePriceSet }

func (e OraclePriceSet) Attributes() map[string]string {
	return map[string]string{
		"token": e.Token.Hex(),
		"price": formatAmount(e.Price),
	}
}

type OracleFeedSet struct {
	Token common.Address
	Feed  common.Address
}

func (OracleFeedSet) EventType() string { return TypeOracleFeedSet }

func (e OracleFeedSet) Attributes() map[string]string {
	return map[string]string{
		"token": e.Token.Hex(),
		"feed":  e.Feed.Hex(),
	}
}
