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

// DefaultCompoundFrequency is the minimum spacing of global compounds.
const DefaultCompoundFrequency = day

var (
	ErrVaultNotFound      = errors.New("vault: vault not found")
	ErrVaultExists        = errors.New("vault: vault already registered")
	ErrVaultInactive      = errors.New("vault: vault inactive")
	ErrTooEarlyToCompound = errors.New("vault: too early to compound")
	ErrAssetMismatch      = errors.New("vault: asset mismatch")
	ErrInvalidFrequency   = errors.New("vault: invalid compound frequency")
)

// Registration is the controller's bookkeeping record for one vault.
type Registration struct {
	Vault         common.Address
	Name          string
	Description   string
	RewardRateBps uint64
	Active        bool
	LastYield     uint64
}

type registered struct {
	Registration
	vault *Vault
}

// Controller owns the vault registry and mints yield into active vaults.
type Controller struct {
	mu    sync.RWMutex
	guard protocol.Guard

	address common.Address
	asset   ledger.Mintable

	vaults             map[common.Address]*registered
	order              []common.Address
	compoundFrequency  uint64
	lastGlobalCompound uint64

	auth    access.Authorizer
	emitter events.Emitter
	logger  *zap.Logger
	metrics *metrics.ProtocolMetrics
}

type ControllerOption func(*Controller)

func WithControllerEmitter(e events.Emitter) ControllerOption {
	return func(c *Controller) { c.emitter = e }
}

func WithControllerMetrics(m *metrics.ProtocolMetrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

func WithControllerLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController builds a controller that mints yield in asset.
func NewController(address common.Address, asset ledger.Mintable, auth access.Authorizer, opts ...ControllerOption) *Controller {
	c := &Controller{
		address:           address,
		asset:             asset,
		vaults:            make(map[common.Address]*registered),
		compoundFrequency: DefaultCompoundFrequency,
		auth:              auth,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Address() common.Address { return c.address }

func (c *Controller) authorize(call protocol.Call, role access.Role, action string) error {
	if err := access.Require(c.auth, role, call.Caller); err != nil {
		c.logger.Warn(action+" rejected", zap.String("caller", call.Caller.Hex()), zap.Error(err))
		return err
	}
	return nil
}

func (c *Controller) enter() (func(), error) {
	if err := c.guard.Enter(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	return func() {
		c.mu.Unlock()
		c.guard.Exit()
	}, nil
}

// AddVault registers v as active. Yield accrues from the call time.
func (c *Controller) AddVault(call protocol.Call, v *Vault, name, description string, rewardRateBps uint64) error {
	if err := c.authorize(call, access.RoleVaultAdmin, "add vault"); err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("%w: vault", protocol.ErrZeroAddress)
	}
	if v.Controller() != c.address {
		return fmt.Errorf("%w: vault %s reports controller %s", access.ErrUnauthorized, v.Address().Hex(), v.Controller().Hex())
	}
	if v.Asset().Address() != c.asset.Address() {
		return fmt.Errorf("%w: %s", ErrAssetMismatch, v.Asset().Symbol())
	}
	if rewardRateBps > MaxYieldRateBps {
		return fmt.Errorf("%w: %d bps", ErrRateTooHigh, rewardRateBps)
	}
	release, err := c.enter()
	if err != nil {
		return err
	}
	defer release()
	if _, ok := c.vaults[v.Address()]; ok {
		return fmt.Errorf("%w: %s", ErrVaultExists, v.Address().Hex())
	}
	c.vaults[v.Address()] = &registered{
		Registration: Registration{
			Vault:         v.Address(),
			Name:          name,
			Description:   description,
			RewardRateBps: rewardRateBps,
			Active:        true,
			LastYield:     call.Timestamp,
		},
		vault: v,
	}
	c.order = append(c.order, v.Address())
	c.logger.Info("vault added", zap.String("vault", v.Address().Hex()), zap.String("name", name), zap.Uint64("rewardRateBps", rewardRateBps))
	return nil
}

// UpdateVaultStatus activates or deactivates a vault. Reactivation restarts
// the yield clock so inactive time earns nothing.
func (c *Controller) UpdateVaultStatus(call protocol.Call, vault common.Address, active bool) error {
	if err := c.authorize(call, access.RoleVaultAdmin, "update vault status"); err != nil {
		return err
	}
	release, err := c.enter()
	if err != nil {
		return err
	}
	defer release()
	entry, err := c.lookupLocked(vault)
	if err != nil {
		return err
	}
	if active && !entry.Active {
		entry.LastYield = call.Timestamp
	}
	entry.Active = active
	c.logger.Info("vault status updated", zap.String("vault", vault.Hex()), zap.Bool("active", active))
	return nil
}

// UpdateVaultRewardRate changes a vault's generation rate. An active vault
// first generates its yield so far at the old rate.
func (c *Controller) UpdateVaultRewardRate(call protocol.Call, vault common.Address, bps uint64) error {
	if err := c.authorize(call, access.RoleVaultAdmin, "update vault reward rate"); err != nil {
		return err
	}
	if bps > MaxYieldRateBps {
		return fmt.Errorf("%w: %d bps", ErrRateTooHigh, bps)
	}
	release, err := c.enter()
	if err != nil {
		return err
	}
	defer release()
	entry, err := c.lookupLocked(vault)
	if err != nil {
		return err
	}
	// Yield up to now is generated at the old rate.
	if entry.Active {
		amount, err := c.yieldFor(entry, call.Timestamp)
		if err != nil {
			return err
		}
		if err := c.creditLocked(call, entry, amount); err != nil {
			return fmt.Errorf("%s: %w", entry.Name, err)
		}
	}
	entry.RewardRateBps = bps
	c.logger.Info("vault reward rate updated", zap.String("vault", vault.Hex()), zap.Uint64("bps", bps))
	return nil
}

func (c *Controller) SetCompoundFrequency(call protocol.Call, seconds uint64) error {
	if err := c.authorize(call, access.RoleVaultAdmin, "set compound frequency"); err != nil {
		return err
	}
	if seconds == 0 {
		return ErrInvalidFrequency
	}
	release, err := c.enter()
	if err != nil {
		return err
	}
	defer release()
	c.compoundFrequency = seconds
	return nil
}

// GenerateYield mints the yield a single active vault earned since its
// last generation.
func (c *Controller) GenerateYield(call protocol.Call, vault common.Address) (*uint256.Int, error) {
	if err := c.authorize(call, access.RoleKeeper, "generate yield"); err != nil {
		return nil, err
	}
	release, err := c.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	entry, err := c.lookupLocked(vault)
	if err != nil {
		return nil, err
	}
	if !entry.Active {
		return nil, fmt.Errorf("%w: %s", ErrVaultInactive, vault.Hex())
	}
	amount, err := c.yieldFor(entry, call.Timestamp)
	if err != nil {
		return nil, err
	}
	if err := c.creditLocked(call, entry, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// ExecuteGlobalCompound generates yield for every active vault, at most
// once per compound frequency.
func (c *Controller) ExecuteGlobalCompound(call protocol.Call) (*uint256.Int, error) {
	if err := c.authorize(call, access.RoleKeeper, "global compound"); err != nil {
		return nil, err
	}
	release, err := c.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	now := call.Timestamp
	if c.lastGlobalCompound != 0 && now < c.lastGlobalCompound+c.compoundFrequency {
		c.metrics.ObserveRejected("controller", "too_early")
		return nil, fmt.Errorf("%w: next at %d", ErrTooEarlyToCompound, c.lastGlobalCompound+c.compoundFrequency)
	}

	type credit struct {
		entry  *registered
		amount *uint256.Int
	}
	var credits []credit
	total := new(uint256.Int)
	for _, address := range c.order {
		entry := c.vaults[address]
		if !entry.Active {
			continue
		}
		if entry.vault.guard.Busy() {
			return nil, fmt.Errorf("%s: %w", entry.Name, protocol.ErrReentrant)
		}
		amount, err := c.yieldFor(entry, now)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name, err)
		}
		if total, err = mathx.Add(total, amount); err != nil {
			return nil, err
		}
		credits = append(credits, credit{entry, amount})
	}

	for _, cr := range credits {
		if err := c.creditLocked(call, cr.entry, cr.amount); err != nil {
			return nil, fmt.Errorf("%s: %w", cr.entry.Name, err)
		}
	}
	c.lastGlobalCompound = now

	c.logger.Info("global compound", zap.Int("vaults", len(credits)), zap.String("total", total.Dec()))
	c.metrics.ObserveGlobalCompound()
	events.Publish(c.emitter, c.address, now, events.GlobalCompound{Vaults: len(credits), Total: total.Clone()})
	return total, nil
}

// yieldFor is totalDeposited * rewardRate * elapsed / year / 10000.
func (c *Controller) yieldFor(entry *registered, now uint64) (*uint256.Int, error) {
	if now <= entry.LastYield {
		return new(uint256.Int), nil
	}
	return mathx.Accrue(entry.vault.TotalDeposited(), entry.RewardRateBps, mathx.BpsDenominator, now-entry.LastYield)
}

func (c *Controller) creditLocked(call protocol.Call, entry *registered, amount *uint256.Int) error {
	if !amount.IsZero() {
		if err := c.asset.Mint(entry.Vault, amount); err != nil {
			return err
		}
		if err := entry.vault.RecordYield(call.As(c.address), amount); err != nil {
			return err
		}
	}
	if call.Timestamp > entry.LastYield {
		entry.LastYield = call.Timestamp
	}
	c.logger.Debug("yield generated", zap.String("vault", entry.Name), zap.String("amount", amount.Dec()))
	return nil
}

func (c *Controller) lookupLocked(vault common.Address) (*registered, error) {
	entry, ok := c.vaults[vault]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, vault.Hex())
	}
	return entry, nil
}

// GetVault returns the registration of vault.
func (c *Controller) GetVault(vault common.Address) (Registration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, err := c.lookupLocked(vault)
	if err != nil {
		return Registration{}, err
	}
	return entry.Registration, nil
}

// Vaults returns every registration in insertion order.
func (c *Controller) Vaults() []Registration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Registration, 0, len(c.order))
	for _, address := range c.order {
		out = append(out, c.vaults[address].Registration)
	}
	return out
}

func (c *Controller) CompoundFrequency() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.compoundFrequency
}
