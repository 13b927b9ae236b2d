// Package staking implements the liquid staking hub. Stakers deposit the
// base token and receive share tokens whose redemption value grows with a
// monotonically non-decreasing exchange rate. Separately, every stake
// accrues tier rewards at rewardRate times its lock tier multiplier, paid
// out by ClaimRewards. Both streams are funded from the hub's reward
// reserve.
package staking

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"blxProtocol/internal/access"
	"blxProtocol/internal/events"
	"blxProtocol/internal/ledger"
	"blxProtocol/internal/mathx"
	"blxProtocol/internal/metrics"
	"blxProtocol/internal/protocol"
)

const (
	// MaxRewardRateBps caps the annual base reward rate at 100%.
	MaxRewardRateBps = 10_000
	// MaxProtocolFeeBps caps the fee taken from claimed rewards at 20%.
	MaxProtocolFeeBps = 2_000
)

var (
	ErrInvalidTier               = errors.New("staking: invalid lock tier")
	ErrRateTooHigh               = errors.New("staking: reward rate too high")
	ErrFeeTooHigh                = errors.New("staking: fee too high")
	ErrAmountTooSmall            = errors.New("staking: amount too small")
	ErrInsufficientRewardReserve = errors.New("staking: insufficient reward reserve")
)

// rewardDenominator turns amount * multiplierBps * (rateBps * seconds)
// into an annualised amount.
var rewardDenominator = new(uint256.Int).Mul(
	uint256.NewInt(mathx.SecondsPerYear),
	uint256.NewInt(mathx.BpsDenominator*mathx.BpsDenominator),
)

// UserStake is one account's position. Amount is base-token principal.
type UserStake struct {
	Amount         *uint256.Int
	TierIndex      int
	LockEnd        uint64
	LastRewardTime uint64
	// Accrued holds tier rewards settled but not yet claimed.
	Accrued *uint256.Int

	rateIndex *uint256.Int
}

func (s *UserStake) clone() *UserStake {
	return &UserStake{
		Amount:         s.Amount.Clone(),
		TierIndex:      s.TierIndex,
		LockEnd:        s.LockEnd,
		LastRewardTime: s.LastRewardTime,
		Accrued:        s.Accrued.Clone(),
		rateIndex:      s.rateIndex.Clone(),
	}
}

// StakingInfo is the view returned by GetUserStakingInfo.
type StakingInfo struct {
	Amount         *uint256.Int
	Shares         *uint256.Int
	Value          *uint256.Int
	TierIndex      int
	Tier           LockTier
	LockEnd        uint64
	Locked         bool
	LastRewardTime uint64
	PendingRewards *uint256.Int
}

// Config holds the hub's initial parameters.
type Config struct {
	RewardRateBps  uint64
	ProtocolFeeBps uint64
	FeeCollector   common.Address
	Tiers          []LockTier
}

func DefaultConfig(feeCollector common.Address) Config {
	return Config{
		RewardRateBps:  500,
		ProtocolFeeBps: 0,
		FeeCollector:   feeCollector,
		Tiers:          DefaultTiers(),
	}
}

type Hub struct {
	mu    sync.RWMutex
	guard protocol.Guard

	address common.Address
	base    ledger.Token
	shares  *ledger.MemoryToken

	exchangeRate   *uint256.Int
	pooled         *uint256.Int
	totalStaked    *uint256.Int
	rewardReserve  *uint256.Int
	rateIndex      *uint256.Int
	lastRateUpdate uint64

	rewardRateBps  uint64
	protocolFeeBps uint64
	feeCollector   common.Address
	tiers          []LockTier
	stakes         map[common.Address]*UserStake

	auth    access.Authorizer
	emitter events.Emitter
	logger  *zap.Logger
	metrics *metrics.ProtocolMetrics
}

type Option func(*Hub)

func WithEmitter(e events.Emitter) Option { return func(h *Hub) { h.emitter = e } }

func WithMetrics(m *metrics.ProtocolMetrics) Option { return func(h *Hub) { h.metrics = m } }

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// New builds a hub staking base. The share token is created and owned by
// the hub. now seeds the accrual clock.
func New(address common.Address, base ledger.Token, cfg Config, auth access.Authorizer, now uint64, opts ...Option) (*Hub, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: base token", protocol.ErrZeroAddress)
	}
	if err := protocol.RequireAddress(cfg.FeeCollector, "fee collector"); err != nil {
		return nil, err
	}
	if cfg.RewardRateBps > MaxRewardRateBps {
		return nil, fmt.Errorf("%w: %d bps", ErrRateTooHigh, cfg.RewardRateBps)
	}
	if cfg.ProtocolFeeBps > MaxProtocolFeeBps {
		return nil, fmt.Errorf("%w: %d bps", ErrFeeTooHigh, cfg.ProtocolFeeBps)
	}
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	for i, tier := range tiers {
		if err := tier.validate(); err != nil {
			return nil, fmt.Errorf("tier %d: %w", i, err)
		}
	}

	h := &Hub{
		address:        address,
		base:           base,
		shares:         ledger.NewMemoryToken(protocol.DeriveAddress("shares", address.Hex()), "st"+base.Symbol(), base.Decimals()),
		exchangeRate:   mathx.Wad.Clone(),
		pooled:         new(uint256.Int),
		totalStaked:    new(uint256.Int),
		rewardReserve:  new(uint256.Int),
		rateIndex:      new(uint256.Int),
		lastRateUpdate: now,
		rewardRateBps:  cfg.RewardRateBps,
		protocolFeeBps: cfg.ProtocolFeeBps,
		feeCollector:   cfg.FeeCollector,
		tiers:          append([]LockTier(nil), tiers...),
		stakes:         make(map[common.Address]*UserStake),
		auth:           auth,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.metrics.SetExchangeRate(h.exchangeRate)
	return h, nil
}

func (h *Hub) Address() common.Address { return h.address }

// ShareToken is the derivative token minted to stakers.
func (h *Hub) ShareToken() ledger.Token { return h.shares }

func (h *Hub) enter() (func(), error) {
	if err := h.guard.Enter(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	return func() {
		h.mu.Unlock()
		h.guard.Exit()
	}, nil
}

// Stake pulls amount of the base token from the caller and mints shares at
// the current exchange rate. Repeat stakes merge into one position whose
// lock never shortens.
func (h *Hub) Stake(call protocol.Call, amount *uint256.Int, tierIndex int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, protocol.ErrZeroAmount
	}
	release, err := h.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if tierIndex < 0 || tierIndex >= len(h.tiers) {
		return nil, fmt.Errorf("%w: index %d", ErrInvalidTier, tierIndex)
	}
	now := call.Timestamp
	a, err := h.planAccrual(now)
	if err != nil {
		return nil, err
	}
	minted, err := mathx.MulDiv(amount, mathx.Wad, a.rate)
	if err != nil {
		return nil, err
	}
	if minted.IsZero() {
		return nil, fmt.Errorf("%w: %s mints no shares", ErrAmountTooSmall, amount.Dec())
	}
	if err := h.checkFunds(call.Caller, amount); err != nil {
		return nil, err
	}

	stake := h.stakeLocked(call.Caller)
	next := stake.clone()
	if err := h.settleLocked(next, a.index, now); err != nil {
		return nil, err
	}
	next.Amount, err = mathx.Add(next.Amount, amount)
	if err != nil {
		return nil, err
	}
	mergeLock(next, h.tiers, stake.Amount.IsZero(), tierIndex, now)
	totalStaked, err := mathx.Add(h.totalStaked, amount)
	if err != nil {
		return nil, err
	}
	pooled, err := mathx.Add(a.pooled, amount)
	if err != nil {
		return nil, err
	}

	if err := h.base.TransferFrom(h.address, call.Caller, h.address, amount); err != nil {
		return nil, err
	}
	if err := h.shares.Mint(call.Caller, minted); err != nil {
		return nil, err
	}
	h.commitAccrual(a)
	h.stakes[call.Caller] = next
	h.totalStaked = totalStaked
	h.pooled = pooled

	h.logger.Debug("staked",
		zap.String("account", call.Caller.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("shares", minted.Dec()),
		zap.Int("tier", next.TierIndex),
		zap.Uint64("lockEnd", next.LockEnd),
	)
	h.metrics.SetTotalStaked(h.totalStaked)
	events.Publish(h.emitter, h.address, now, events.Staked{
		Account: call.Caller, Amount: amount.Clone(), Shares: minted, Tier: next.TierIndex, LockEnd: next.LockEnd,
	})
	return minted.Clone(), nil
}

// mergeLock applies tier to a position. The lock end is the later of the
// existing end and now+duration; the tier follows whichever lock ends
// later, and on a tie the higher multiplier wins.
func mergeLock(s *UserStake, tiers []LockTier, fresh bool, tierIndex int, now uint64) {
	end := now + tiers[tierIndex].Duration
	switch {
	case fresh || end > s.LockEnd:
		s.TierIndex = tierIndex
		s.LockEnd = end
	case end == s.LockEnd && tiers[tierIndex].MultiplierBps > tiers[s.TierIndex].MultiplierBps:
		s.TierIndex = tierIndex
	}
}

// Unstake burns shareAmount and pays out its base value. Before the lock
// ends the tier's early withdrawal fee goes to the fee collector.
func (h *Hub) Unstake(call protocol.Call, shareAmount *uint256.Int) (*uint256.Int, error) {
	if shareAmount == nil || shareAmount.IsZero() {
		return nil, protocol.ErrZeroAmount
	}
	release, err := h.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	now := call.Timestamp
	held := h.shares.BalanceOf(call.Caller)
	if held.Lt(shareAmount) {
		return nil, fmt.Errorf("%w: holds %s shares, wants %s", ledger.ErrInsufficientBalance, held.Dec(), shareAmount.Dec())
	}
	a, err := h.planAccrual(now)
	if err != nil {
		return nil, err
	}
	baseAmount, err := mathx.MulDiv(shareAmount, a.rate, mathx.Wad)
	if err != nil {
		return nil, err
	}
	if baseAmount.IsZero() {
		return nil, fmt.Errorf("%w: %s shares redeem nothing", ErrAmountTooSmall, shareAmount.Dec())
	}

	stake := h.stakeLocked(call.Caller)
	next := stake.clone()
	if err := h.settleLocked(next, a.index, now); err != nil {
		return nil, err
	}
	early := now < stake.LockEnd
	feeBps := uint64(0)
	if early {
		feeBps = h.tiers[stake.TierIndex].EarlyWithdrawalFeeBps
	}
	payout, fee, err := mathx.SplitFee(baseAmount, feeBps)
	if err != nil {
		return nil, err
	}

	principal := next.Amount.Clone()
	if shareAmount.Lt(held) {
		principal, err = mathx.MulDiv(next.Amount, shareAmount, held)
		if err != nil {
			return nil, err
		}
	}
	next.Amount = new(uint256.Int).Sub(next.Amount, principal)
	if next.Amount.IsZero() {
		next.LockEnd = 0
		next.TierIndex = 0
	}
	totalStaked := new(uint256.Int)
	if h.totalStaked.Gt(principal) {
		totalStaked.Sub(h.totalStaked, principal)
	}
	pooled, err := mathx.Sub(a.pooled, baseAmount)
	if err != nil {
		return nil, err
	}

	if err := h.shares.Burn(call.Caller, shareAmount); err != nil {
		return nil, err
	}
	if err := h.base.Transfer(h.address, call.Caller, payout); err != nil {
		return nil, err
	}
	if !fee.IsZero() {
		if err := h.base.Transfer(h.address, h.feeCollector, fee); err != nil {
			return nil, err
		}
	}
	h.commitAccrual(a)
	h.stakes[call.Caller] = next
	h.totalStaked = totalStaked
	h.pooled = pooled

	h.logger.Debug("unstaked",
		zap.String("account", call.Caller.Hex()),
		zap.String("shares", shareAmount.Dec()),
		zap.String("payout", payout.Dec()),
		zap.String("fee", fee.Dec()),
		zap.Bool("early", early),
	)
	h.metrics.SetTotalStaked(h.totalStaked)
	events.Publish(h.emitter, h.address, now, events.Unstaked{
		Account: call.Caller, Shares: shareAmount.Clone(), Amount: payout.Clone(), Fee: fee, Early: early,
	})
	return payout, nil
}

// ClaimRewards pays the caller's tier rewards, net of the protocol fee.
func (h *Hub) ClaimRewards(call protocol.Call) (*uint256.Int, error) {
	release, err := h.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	now := call.Timestamp
	a, err := h.planAccrual(now)
	if err != nil {
		return nil, err
	}
	stake, ok := h.stakes[call.Caller]
	if !ok {
		h.commitAccrual(a)
		return new(uint256.Int), nil
	}
	next := stake.clone()
	if err := h.settleLocked(next, a.index, now); err != nil {
		return nil, err
	}
	reward := next.Accrued
	if reward.IsZero() {
		h.commitAccrual(a)
		h.stakes[call.Caller] = next
		return new(uint256.Int), nil
	}
	if reward.Gt(a.reserve) {
		h.metrics.ObserveRejected("staking", "reserve")
		return nil, fmt.Errorf("%w: owed %s, reserve %s", ErrInsufficientRewardReserve, reward.Dec(), a.reserve.Dec())
	}
	net, fee, err := mathx.SplitFee(reward, h.protocolFeeBps)
	if err != nil {
		return nil, err
	}
	reserve := new(uint256.Int).Sub(a.reserve, reward)

	if err := h.base.Transfer(h.address, call.Caller, net); err != nil {
		return nil, err
	}
	if !fee.IsZero() {
		if err := h.base.Transfer(h.address, h.feeCollector, fee); err != nil {
			return nil, err
		}
	}
	h.commitAccrual(a)
	h.rewardReserve = reserve
	next.Accrued = new(uint256.Int)
	h.stakes[call.Caller] = next

	h.logger.Debug("rewards claimed", zap.String("account", call.Caller.Hex()), zap.String("net", net.Dec()), zap.String("fee", fee.Dec()))
	events.Publish(h.emitter, h.address, now, events.RewardsClaimed{Account: call.Caller, Amount: net.Clone(), Fee: fee})
	return net, nil
}

// UpdateRewardsAndExchangeRate accrues rewards up to the call time. It is
// idempotent for a given timestamp and ignores timestamps in the past.
func (h *Hub) UpdateRewardsAndExchangeRate(call protocol.Call) error {
	release, err := h.enter()
	if err != nil {
		return err
	}
	defer release()
	return h.accrueLocked(call.Timestamp)
}

// accrual is the hub state after compounding up to now. Entry points plan
// one, run every check against it and commit only once nothing can fail.
type accrual struct {
	now     uint64
	advance bool
	index   *uint256.Int
	rate    *uint256.Int
	pooled  *uint256.Int
	reserve *uint256.Int
	rewards *uint256.Int
}

// planAccrual advances the reward index and compounds the base reward rate
// on the pooled value into the exchange rate, limited by the reserve. The
// hub is not modified.
func (h *Hub) planAccrual(now uint64) (accrual, error) {
	a := accrual{
		now:     now,
		index:   h.rateIndex,
		rate:    h.exchangeRate,
		pooled:  h.pooled,
		reserve: h.rewardReserve,
		rewards: new(uint256.Int),
	}
	if now <= h.lastRateUpdate {
		return a, nil
	}
	elapsed := now - h.lastRateUpdate
	index, err := mathx.Add(h.rateIndex, new(uint256.Int).Mul(mathx.U(h.rewardRateBps), mathx.U(elapsed)))
	if err != nil {
		return accrual{}, err
	}
	increment, rewards, err := h.rateIncrement(elapsed)
	if err != nil {
		return accrual{}, err
	}
	a.advance = true
	a.index = index
	if increment.IsZero() {
		return a, nil
	}
	a.rate = new(uint256.Int).Add(h.exchangeRate, increment)
	a.pooled = new(uint256.Int).Add(h.pooled, rewards)
	a.reserve = new(uint256.Int).Sub(h.rewardReserve, rewards)
	a.rewards = rewards
	return a, nil
}

func (h *Hub) commitAccrual(a accrual) {
	if !a.advance {
		return
	}
	h.rateIndex = a.index
	h.lastRateUpdate = a.now
	if a.rewards.IsZero() {
		return
	}
	oldRate := h.exchangeRate
	h.exchangeRate = a.rate
	h.pooled = a.pooled
	h.rewardReserve = a.reserve

	h.metrics.SetExchangeRate(h.exchangeRate)
	events.Publish(h.emitter, h.address, a.now, events.ExchangeRateUpdated{
		OldRate: oldRate.Clone(), NewRate: h.exchangeRate.Clone(), Rewards: a.rewards.Clone(),
	})
}

func (h *Hub) accrueLocked(now uint64) error {
	a, err := h.planAccrual(now)
	if err != nil {
		return err
	}
	h.commitAccrual(a)
	return nil
}

// rateIncrement returns the exchange rate increase for elapsed seconds and
// the base tokens it moves from the reserve into the pool.
func (h *Hub) rateIncrement(elapsed uint64) (*uint256.Int, *uint256.Int, error) {
	zero := new(uint256.Int)
	supply := h.shares.TotalSupply()
	if supply.IsZero() || h.rewardReserve.IsZero() {
		return zero, zero, nil
	}
	rewards, err := mathx.Accrue(h.pooled, h.rewardRateBps, mathx.BpsDenominator, elapsed)
	if err != nil {
		return nil, nil, err
	}
	rewards = mathx.Min(rewards, h.rewardReserve)
	increment, err := mathx.MulDiv(rewards, mathx.Wad, supply)
	if err != nil {
		return nil, nil, err
	}
	if increment.IsZero() {
		return zero, zero, nil
	}
	// Only what the rounded increment actually backs leaves the reserve.
	backed, err := mathx.MulDivUp(increment, supply, mathx.Wad)
	if err != nil {
		return nil, nil, err
	}
	return increment, mathx.Min(backed, h.rewardReserve), nil
}

// settleLocked moves tier rewards earned up to index into Accrued.
func (h *Hub) settleLocked(s *UserStake, index *uint256.Int, now uint64) error {
	earned, err := h.earned(s, index)
	if err != nil {
		return err
	}
	s.Accrued, err = mathx.Add(s.Accrued, earned)
	if err != nil {
		return err
	}
	s.rateIndex = index.Clone()
	s.LastRewardTime = now
	return nil
}

func (h *Hub) earned(s *UserStake, index *uint256.Int) (*uint256.Int, error) {
	if s.Amount.IsZero() || !index.Gt(s.rateIndex) {
		return new(uint256.Int), nil
	}
	delta := new(uint256.Int).Sub(index, s.rateIndex)
	weighted, err := mathx.Mul(s.Amount, mathx.U(h.tiers[s.TierIndex].MultiplierBps))
	if err != nil {
		return nil, err
	}
	return mathx.MulDiv(weighted, delta, rewardDenominator)
}

func (h *Hub) stakeLocked(account common.Address) *UserStake {
	if s, ok := h.stakes[account]; ok {
		return s
	}
	return &UserStake{
		Amount:    new(uint256.Int),
		Accrued:   new(uint256.Int),
		rateIndex: h.rateIndex.Clone(),
	}
}

func (h *Hub) checkFunds(owner common.Address, amount *uint256.Int) error {
	if h.base.BalanceOf(owner).Lt(amount) {
		return fmt.Errorf("%w: %s holder %s wants %s", ledger.ErrInsufficientBalance, h.base.Symbol(), owner.Hex(), amount.Dec())
	}
	if h.base.Allowance(owner, h.address).Lt(amount) {
		return fmt.Errorf("%w: %s hub allowance below %s", ledger.ErrInsufficientAllowance, h.base.Symbol(), amount.Dec())
	}
	return nil
}
