// Package vault implements time-locked yield vaults and the controller
// that registers them and drives periodic yield generation.
package vault

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

const day = 24 * 60 * 60

// MaxYieldRateBps caps a vault's annual yield rate.
const MaxYieldRateBps = 10_000

var (
	ErrFundsLocked         = errors.New("vault: funds locked")
	ErrInsufficientYield   = errors.New("vault: insufficient yield reserve")
	ErrUnbackedYield       = errors.New("vault: yield not backed by balance")
	ErrRateTooHigh         = errors.New("vault: rate too high")
	ErrInsufficientDeposit = errors.New("vault: insufficient deposit")
)

// LockTier maps a minimum lock duration to a yield multiplier.
type LockTier struct {
	Name          string
	Duration      uint64
	MultiplierBps uint64
}

// DefaultTiers are the predefined lock tiers, ordered by duration.
func DefaultTiers() []LockTier {
	return []LockTier{
		{Name: "NO_LOCK", Duration: 0, MultiplierBps: 10_000},
		{Name: "30_DAYS", Duration: 30 * day, MultiplierBps: 11_000},
		{Name: "90_DAYS", Duration: 90 * day, MultiplierBps: 12_500},
		{Name: "180_DAYS", Duration: 180 * day, MultiplierBps: 15_000},
		{Name: "365_DAYS", Duration: 365 * day, MultiplierBps: 20_000},
	}
}

// TierFor returns the greatest tier whose duration does not exceed
// lockPeriod.
func TierFor(tiers []LockTier, lockPeriod uint64) LockTier {
	best := tiers[0]
	for _, tier := range tiers[1:] {
		if tier.Duration <= lockPeriod && tier.Duration >= best.Duration {
			best = tier
		}
	}
	return best
}

// UserDeposit is one account's position.
type UserDeposit struct {
	Amount            *uint256.Int
	LockEnd           uint64
	LockMultiplierBps uint64
	LastCompound      uint64
	// Accrued holds rewards settled on deposit or withdrawal and not yet
	// compounded.
	Accrued *uint256.Int
}

func (d *UserDeposit) clone() *UserDeposit {
	return &UserDeposit{
		Amount:            d.Amount.Clone(),
		LockEnd:           d.LockEnd,
		LockMultiplierBps: d.LockMultiplierBps,
		LastCompound:      d.LastCompound,
		Accrued:           d.Accrued.Clone(),
	}
}

type Vault struct {
	mu    sync.RWMutex
	guard protocol.Guard

	address    common.Address
	name       string
	asset      ledger.Token
	controller common.Address
	tiers      []LockTier

	yieldRateBps   uint64
	deposits       map[common.Address]*UserDeposit
	totalDeposited *uint256.Int
	yieldReserve   *uint256.Int

	auth    access.Authorizer
	emitter events.Emitter
	logger  *zap.Logger
	metrics *metrics.ProtocolMetrics
}

type Option func(*Vault)

func WithEmitter(e events.Emitter) Option { return func(v *Vault) { v.emitter = e } }

func WithMetrics(m *metrics.ProtocolMetrics) Option { return func(v *Vault) { v.metrics = m } }

func WithLogger(l *zap.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithTiers replaces the default lock tiers. The first tier must have a
// zero duration.
func WithTiers(tiers []LockTier) Option {
	return func(v *Vault) { v.tiers = append([]LockTier(nil), tiers...) }
}

// New builds a vault over asset whose yield is attributed by controller.
func New(address common.Address, name string, asset ledger.Token, controller common.Address, yieldRateBps uint64, auth access.Authorizer, opts ...Option) (*Vault, error) {
	if asset == nil {
		return nil, fmt.Errorf("%w: asset", protocol.ErrZeroAddress)
	}
	if err := protocol.RequireAddress(controller, "controller"); err != nil {
		return nil, err
	}
	if yieldRateBps > MaxYieldRateBps {
		return nil, fmt.Errorf("%w: %d bps", ErrRateTooHigh, yieldRateBps)
	}
	v := &Vault{
		address:        address,
		name:           name,
		asset:          asset,
		controller:     controller,
		tiers:          DefaultTiers(),
		yieldRateBps:   yieldRateBps,
		deposits:       make(map[common.Address]*UserDeposit),
		totalDeposited: new(uint256.Int),
		yieldReserve:   new(uint256.Int),
		auth:           auth,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if len(v.tiers) == 0 || v.tiers[0].Duration != 0 {
		return nil, errors.New("vault: first lock tier must be unlocked")
	}
	v.logger = v.logger.With(zap.String("vault", name))
	return v, nil
}

func (v *Vault) Address() common.Address    { return v.address }
func (v *Vault) Name() string               { return v.name }
func (v *Vault) Asset() ledger.Token        { return v.asset }
func (v *Vault) Controller() common.Address { return v.controller }

func (v *Vault) enter() (func(), error) {
	if err := v.guard.Enter(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	return func() {
		v.mu.Unlock()
		v.guard.Exit()
	}, nil
}

// Deposit pulls amount from the caller and locks it for at least the tier
// matching lockPeriod. An existing lock is only ever extended.
func (v *Vault) Deposit(call protocol.Call, amount *uint256.Int, lockPeriod uint64) error {
	if amount == nil || amount.IsZero() {
		return protocol.ErrZeroAmount
	}
	release, err := v.enter()
	if err != nil {
		return err
	}
	defer release()

	now := call.Timestamp
	tier := TierFor(v.tiers, lockPeriod)
	current := v.depositLocked(call.Caller)
	next := current.clone()
	if err := v.settleLocked(next, now); err != nil {
		return err
	}
	end := now + tier.Duration
	switch {
	case next.LockMultiplierBps == 0, end > next.LockEnd:
		next.LockEnd = end
		next.LockMultiplierBps = tier.MultiplierBps
	case end == next.LockEnd && tier.MultiplierBps > next.LockMultiplierBps:
		next.LockMultiplierBps = tier.MultiplierBps
	}
	if next.Amount, err = mathx.Add(next.Amount, amount); err != nil {
		return err
	}
	total, err := mathx.Add(v.totalDeposited, amount)
	if err != nil {
		return err
	}
	if v.asset.BalanceOf(call.Caller).Lt(amount) {
		return fmt.Errorf("%w: %s holder %s wants %s", ledger.ErrInsufficientBalance, v.asset.Symbol(), call.Caller.Hex(), amount.Dec())
	}
	if v.asset.Allowance(call.Caller, v.address).Lt(amount) {
		return fmt.Errorf("%w: %s vault allowance below %s", ledger.ErrInsufficientAllowance, v.asset.Symbol(), amount.Dec())
	}

	if err := v.asset.TransferFrom(v.address, call.Caller, v.address, amount); err != nil {
		return err
	}
	v.deposits[call.Caller] = next
	v.totalDeposited = total

	v.logger.Debug("deposit",
		zap.String("account", call.Caller.Hex()),
		zap.String("amount", amount.Dec()),
		zap.String("tier", tier.Name),
		zap.Uint64("lockEnd", next.LockEnd),
	)
	v.metrics.SetVaultDeposited(v.name, v.totalDeposited)
	events.Publish(v.emitter, v.address, now, events.VaultDeposit{
		Account: call.Caller, Amount: amount.Clone(), LockEnd: next.LockEnd, MultiplierBps: next.LockMultiplierBps,
	})
	return nil
}

// Withdraw returns amount of principal once the lock has ended.
func (v *Vault) Withdraw(call protocol.Call, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return protocol.ErrZeroAmount
	}
	release, err := v.enter()
	if err != nil {
		return err
	}
	defer release()

	now := call.Timestamp
	current, ok := v.deposits[call.Caller]
	if !ok || current.Amount.Lt(amount) {
		return fmt.Errorf("%w: wants %s", ErrInsufficientDeposit, amount.Dec())
	}
	if now < current.LockEnd {
		return fmt.Errorf("%w: until %d", ErrFundsLocked, current.LockEnd)
	}
	next := current.clone()
	if err := v.settleLocked(next, now); err != nil {
		return err
	}
	next.Amount = new(uint256.Int).Sub(next.Amount, amount)
	total, err := mathx.Sub(v.totalDeposited, amount)
	if err != nil {
		return err
	}

	if err := v.asset.Transfer(v.address, call.Caller, amount); err != nil {
		return err
	}
	v.deposits[call.Caller] = next
	v.totalDeposited = total

	v.logger.Debug("withdraw", zap.String("account", call.Caller.Hex()), zap.String("amount", amount.Dec()))
	v.metrics.SetVaultDeposited(v.name, v.totalDeposited)
	events.Publish(v.emitter, v.address, now, events.VaultWithdraw{Account: call.Caller, Amount: amount.Clone()})
	return nil
}

// CompoundRewards adds the caller's pending rewards to their principal.
func (v *Vault) CompoundRewards(call protocol.Call) (*uint256.Int, error) {
	release, err := v.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	now := call.Timestamp
	current, ok := v.deposits[call.Caller]
	if !ok {
		return new(uint256.Int), nil
	}
	next := current.clone()
	if err := v.settleLocked(next, now); err != nil {
		return nil, err
	}
	rewards := next.Accrued
	if rewards.IsZero() {
		v.deposits[call.Caller] = next
		return new(uint256.Int), nil
	}
	if rewards.Gt(v.yieldReserve) {
		v.metrics.ObserveRejected("vault", "yield")
		return nil, fmt.Errorf("%w: owed %s, reserve %s", ErrInsufficientYield, rewards.Dec(), v.yieldReserve.Dec())
	}
	total, err := mathx.Add(v.totalDeposited, rewards)
	if err != nil {
		return nil, err
	}
	next.Amount, err = mathx.Add(next.Amount, rewards)
	if err != nil {
		return nil, err
	}
	next.Accrued = new(uint256.Int)

	v.deposits[call.Caller] = next
	v.totalDeposited = total
	v.yieldReserve = new(uint256.Int).Sub(v.yieldReserve, rewards)

	v.logger.Debug("compound", zap.String("account", call.Caller.Hex()), zap.String("rewards", rewards.Dec()))
	v.metrics.ObserveCompound(v.name)
	v.metrics.SetVaultDeposited(v.name, v.totalDeposited)
	events.Publish(v.emitter, v.address, now, events.VaultCompound{
		Account: call.Caller, Rewards: rewards.Clone(), NewAmount: next.Amount.Clone(),
	})
	return rewards, nil
}

// RecordYield credits amount, already transferred to the vault, to the
// yield reserve. Only the controller may call it.
func (v *Vault) RecordYield(call protocol.Call, amount *uint256.Int) error {
	if call.Caller != v.controller {
		return fmt.Errorf("%w: only the controller records yield", access.ErrUnauthorized)
	}
	release, err := v.enter()
	if err != nil {
		return err
	}
	defer release()
	reserve, err := mathx.Add(v.yieldReserve, amount)
	if err != nil {
		return err
	}
	owed, err := mathx.Add(v.totalDeposited, reserve)
	if err != nil {
		return err
	}
	if v.asset.BalanceOf(v.address).Lt(owed) {
		return fmt.Errorf("%w: balance %s below %s", ErrUnbackedYield, v.asset.BalanceOf(v.address).Dec(), owed.Dec())
	}
	v.yieldReserve = reserve
	events.Publish(v.emitter, v.address, call.Timestamp, events.YieldGenerated{Vault: v.address, Amount: amount.Clone()})
	return nil
}

// SetYieldRate changes the base annual yield. Every position is settled at
// the old rate first.
func (v *Vault) SetYieldRate(call protocol.Call, bps uint64) error {
	if err := access.Require(v.auth, access.RoleVaultAdmin, call.Caller); err != nil {
		v.logger.Warn("set yield rate rejected", zap.String("caller", call.Caller.Hex()), zap.Error(err))
		return err
	}
	if bps > MaxYieldRateBps {
		return fmt.Errorf("%w: %d bps", ErrRateTooHigh, bps)
	}
	release, err := v.enter()
	if err != nil {
		return err
	}
	defer release()
	settled := make(map[common.Address]*UserDeposit, len(v.deposits))
	for account, d := range v.deposits {
		next := d.clone()
		if err := v.settleLocked(next, call.Timestamp); err != nil {
			return err
		}
		settled[account] = next
	}
	for account, next := range settled {
		v.deposits[account] = next
	}
	v.yieldRateBps = bps
	v.logger.Info("yield rate set", zap.String("vault", v.name), zap.Uint64("bps", bps))
	return nil
}

// CalculatePendingRewards returns user's uncompounded rewards at time now:
// amount * yieldRate * lockMultiplier * elapsed / year, plus rewards
// settled earlier.
func (v *Vault) CalculatePendingRewards(user common.Address, now uint64) (*uint256.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	d, ok := v.deposits[user]
	if !ok {
		return new(uint256.Int), nil
	}
	earned, err := v.earned(d, now)
	if err != nil {
		return nil, err
	}
	return mathx.Add(d.Accrued, earned)
}

func (v *Vault) earned(d *UserDeposit, now uint64) (*uint256.Int, error) {
	if now <= d.LastCompound {
		return new(uint256.Int), nil
	}
	return mathx.Accrue(d.Amount, v.yieldRateBps, d.LockMultiplierBps, now-d.LastCompound)
}

func (v *Vault) settleLocked(d *UserDeposit, now uint64) error {
	earned, err := v.earned(d, now)
	if err != nil {
		return err
	}
	if d.Accrued, err = mathx.Add(d.Accrued, earned); err != nil {
		return err
	}
	if now > d.LastCompound {
		d.LastCompound = now
	}
	return nil
}

func (v *Vault) depositLocked(account common.Address) *UserDeposit {
	if d, ok := v.deposits[account]; ok {
		return d
	}
	return &UserDeposit{Amount: new(uint256.Int), Accrued: new(uint256.Int)}
}

// GetUserDeposit returns a copy of user's position.
func (v *Vault) GetUserDeposit(user common.Address) (UserDeposit, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	d, ok := v.deposits[user]
	if !ok {
		return UserDeposit{Amount: new(uint256.Int), Accrued: new(uint256.Int)}, false
	}
	return *d.clone(), true
}

func (v *Vault) TotalDeposited() *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.totalDeposited.Clone()
}

func (v *Vault) YieldReserve() *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.yieldReserve.Clone()
}

func (v *Vault) YieldRate() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.yieldRateBps
}

func (v *Vault) LockTiers() []LockTier {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]LockTier(nil), v.tiers...)
}
