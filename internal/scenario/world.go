package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"blxProtocol/internal/access"
	"blxProtocol/internal/amm"
	"blxProtocol/internal/events"
	"blxProtocol/internal/ledger"
	"blxProtocol/internal/metrics"
	"blxProtocol/internal/model"
	"blxProtocol/internal/oracle"
	"blxProtocol/internal/protocol"
	"blxProtocol/internal/router"
	"blxProtocol/internal/staking"
	"blxProtocol/internal/vault"
)

// Deployer bootstraps the deployment and holds every role.
const Deployer = "deployer"

const defaultDeadline = 600

// World is a deployed protocol instance plus the named accounts acting on it.
type World struct {
	doc     *Document
	log     *events.Log
	logger  *zap.Logger
	metrics *metrics.ProtocolMetrics

	registry *access.Registry
	tokens   map[string]ledger.Token
	mintable map[string]ledger.Mintable
	native   *ledger.MemoryToken
	wrapped  *ledger.WrappedNative

	factory    *amm.Factory
	router     *router.Router
	oracle     *oracle.PriceOracle
	feeds      map[string]*oracle.StaticFeed
	hub        *staking.Hub
	controller *vault.Controller
	vaults     map[string]*vault.Vault
	vaultOrder []string
}

// Account resolves a name to an address. Hex addresses pass through.
func Account(name string) common.Address {
	if common.IsHexAddress(name) {
		return common.HexToAddress(name)
	}
	return protocol.DeriveAddress("account", name)
}

// TokenAddress is the deterministic address of a scenario token.
func TokenAddress(symbol string) common.Address {
	return protocol.DeriveAddress("token", symbol)
}

func componentAddress(name string) common.Address {
	return protocol.DeriveAddress("component", name)
}

// Build deploys everything the doc describes at doc.Start.
func Build(ctx context.Context, doc *Document, log *events.Log, m *metrics.ProtocolMetrics, logger *zap.Logger) (*World, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &World{
		doc:      doc,
		log:      log,
		logger:   logger,
		metrics:  m,
		registry: access.NewRegistry(),
		tokens:   make(map[string]ledger.Token),
		mintable: make(map[string]ledger.Mintable),
		feeds:    make(map[string]*oracle.StaticFeed),
		vaults:   make(map[string]*vault.Vault),
	}
	deployer := Account(Deployer)
	for _, role := range []access.Role{access.RoleOracleAdmin, access.RoleFeeAdmin, access.RoleStakingAdmin, access.RoleVaultAdmin, access.RoleKeeper} {
		w.registry.Grant(role, deployer)
	}
	for name, members := range doc.Roles {
		role, err := access.ParseRole(name)
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			w.registry.Grant(role, Account(member))
		}
	}

	for _, ts := range doc.Tokens {
		token := ledger.NewMemoryToken(TokenAddress(ts.Symbol), ts.Symbol, ts.Decimals)
		w.tokens[ts.Symbol] = token
		w.mintable[ts.Symbol] = token
	}
	if doc.Native != nil {
		decimals := doc.Native.Decimals
		if decimals == 0 {
			decimals = 18
		}
		w.native = ledger.NewMemoryToken(TokenAddress(doc.Native.Symbol), doc.Native.Symbol, decimals)
		w.wrapped = ledger.NewWrappedNative(TokenAddress("W"+doc.Native.Symbol), w.native)
		w.tokens[w.native.Symbol()] = w.native
		w.tokens[w.wrapped.Symbol()] = w.wrapped
	}

	call := protocol.Call{Context: ctx, Caller: deployer, Timestamp: doc.Start}
	w.factory = amm.NewFactory(componentAddress("factory"), w.registry,
		amm.WithEmitter(log), amm.WithMetrics(m), amm.WithLogger(logger.Named("amm")))
	w.router = router.New(componentAddress("router"), w.factory, w.wrapped, logger.Named("router"))
	if err := w.configureAMM(call); err != nil {
		return nil, err
	}
	if err := w.configureOracle(call); err != nil {
		return nil, err
	}
	if err := w.configureStaking(call); err != nil {
		return nil, err
	}
	if err := w.configureVaults(call); err != nil {
		return nil, err
	}
	if err := w.fundAccounts(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *World) configureAMM(call protocol.Call) error {
	cfg := w.doc.AMM
	if cfg.FeeReceiver != "" {
		if err := w.factory.SetFeeReceiver(call, Account(cfg.FeeReceiver)); err != nil {
			return fmt.Errorf("set fee receiver: %w", err)
		}
	}
	if cfg.ProtocolFeeBps > 0 {
		if err := w.factory.SetProtocolFee(call, cfg.ProtocolFeeBps); err != nil {
			return fmt.Errorf("set protocol fee: %w", err)
		}
	}
	if cfg.MaxDeviationBps > 0 {
		if err := w.factory.SetMaxPriceDeviation(call, cfg.MaxDeviationBps); err != nil {
			return fmt.Errorf("set max deviation: %w", err)
		}
	}
	return nil
}

func (w *World) configureOracle(call protocol.Call) error {
	w.oracle = oracle.NewPriceOracle(componentAddress("oracle"), w.registry, w.log, w.logger.Named("oracle"))
	cfg := w.doc.Oracle
	if cfg == nil {
		return nil
	}
	for _, symbol := range sortedKeys(cfg.Prices) {
		token, err := w.token(symbol)
		if err != nil {
			return err
		}
		price, err := cfg.Prices[symbol].Value()
		if err != nil {
			return fmt.Errorf("price %s: %w", symbol, err)
		}
		if err := w.oracle.SetCustomPrice(call, token.Address(), price.ToBig()); err != nil {
			return fmt.Errorf("set price %s: %w", symbol, err)
		}
	}
	for _, symbol := range sortedKeys(cfg.Feeds) {
		token, err := w.token(symbol)
		if err != nil {
			return err
		}
		fs := cfg.Feeds[symbol]
		feed := oracle.NewStaticFeed(fs.Decimals)
		if !fs.Answer.IsZero() {
			answer, err := fs.Answer.Signed()
			if err != nil {
				return fmt.Errorf("feed %s: %w", symbol, err)
			}
			feed.Push(answer, call.Timestamp)
		}
		if err := w.oracle.SetPriceFeed(call, token.Address(), protocol.DeriveAddress("feed", symbol), feed); err != nil {
			return fmt.Errorf("set feed %s: %w", symbol, err)
		}
		w.feeds[symbol] = feed
	}
	if cfg.Guard {
		if err := w.factory.SetPriceOracle(call, w.oracle); err != nil {
			return fmt.Errorf("attach oracle: %w", err)
		}
	}
	return nil
}

func (w *World) configureStaking(call protocol.Call) error {
	cfg := w.doc.Staking
	if cfg == nil {
		return nil
	}
	base, err := w.token(cfg.Token)
	if err != nil {
		return err
	}
	collector := Account(Deployer)
	if cfg.FeeCollector != "" {
		collector = Account(cfg.FeeCollector)
	}
	hubCfg := staking.DefaultConfig(collector)
	if cfg.RewardRateBps > 0 {
		hubCfg.RewardRateBps = cfg.RewardRateBps
	}
	hubCfg.ProtocolFeeBps = cfg.ProtocolFeeBps
	if len(cfg.Tiers) > 0 {
		hubCfg.Tiers = cfg.Tiers
	}
	hub, err := staking.New(componentAddress("staking"), base, hubCfg, w.registry, call.Timestamp,
		staking.WithEmitter(w.log), staking.WithMetrics(w.metrics), staking.WithLogger(w.logger.Named("staking")))
	if err != nil {
		return fmt.Errorf("deploy staking hub: %w", err)
	}
	w.hub = hub
	return nil
}

func (w *World) configureVaults(call protocol.Call) error {
	cfg := w.doc.Vaults
	if cfg == nil {
		return nil
	}
	asset, ok := w.mintable[cfg.Asset]
	if !ok {
		return fmt.Errorf("%w: vault asset %s is not mintable", ErrInvalidScenario, cfg.Asset)
	}
	controllerAddr := componentAddress("vault-controller")
	w.controller = vault.NewController(controllerAddr, asset, w.registry,
		vault.WithControllerEmitter(w.log), vault.WithControllerMetrics(w.metrics), vault.WithControllerLogger(w.logger.Named("controller")))
	if cfg.CompoundFrequency > 0 {
		if err := w.controller.SetCompoundFrequency(call, cfg.CompoundFrequency); err != nil {
			return fmt.Errorf("set compound frequency: %w", err)
		}
	}
	for _, vc := range cfg.Vaults {
		if _, ok := w.vaults[vc.Name]; ok {
			return fmt.Errorf("%w: duplicate vault %s", ErrInvalidScenario, vc.Name)
		}
		v, err := vault.New(protocol.DeriveAddress("vault", vc.Name), vc.Name, asset, controllerAddr, vc.YieldRateBps, w.registry,
			vault.WithEmitter(w.log), vault.WithMetrics(w.metrics), vault.WithLogger(w.logger.Named("vault")))
		if err != nil {
			return fmt.Errorf("deploy vault %s: %w", vc.Name, err)
		}
		rate := vc.RewardRateBps
		if rate == 0 {
			rate = vc.YieldRateBps
		}
		if err := w.controller.AddVault(call, v, vc.Name, vc.Description, rate); err != nil {
			return fmt.Errorf("register vault %s: %w", vc.Name, err)
		}
		w.vaults[vc.Name] = v
		w.vaultOrder = append(w.vaultOrder, vc.Name)
	}
	return nil
}

// fundAccounts mints balances and grants the router, hub and vaults
// unlimited allowances over every token an account may spend.
func (w *World) fundAccounts() error {
	spenders := []common.Address{w.router.Address()}
	if w.hub != nil {
		spenders = append(spenders, w.hub.Address())
	}
	for _, name := range w.vaultOrder {
		spenders = append(spenders, w.vaults[name].Address())
	}
	names := []string{Deployer}
	for _, account := range w.doc.Accounts {
		names = append(names, account.Name)
	}
	for _, name := range names {
		for _, token := range w.tokens {
			for _, spender := range spenders {
				if err := token.Approve(Account(name), spender, ledger.Unlimited()); err != nil {
					return fmt.Errorf("approve %s for %s: %w", token.Symbol(), name, err)
				}
			}
		}
	}
	for _, account := range w.doc.Accounts {
		holder := Account(account.Name)
		for _, symbol := range sortedKeys(account.Balances) {
			amount, err := account.Balances[symbol].Value()
			if err != nil {
				return err
			}
			if err := w.mint(symbol, holder, amount); err != nil {
				return fmt.Errorf("fund %s with %s: %w", account.Name, symbol, err)
			}
		}
	}
	return nil
}

// mint credits an account. Wrapped native balances are backed by minting
// the native amount first and wrapping it.
func (w *World) mint(symbol string, to common.Address, amount *uint256.Int) error {
	if w.wrapped != nil && symbol == w.wrapped.Symbol() {
		if err := w.native.Mint(to, amount); err != nil {
			return err
		}
		return w.wrapped.Deposit(to, amount)
	}
	token, ok := w.mintable[symbol]
	if !ok {
		if w.native != nil && symbol == w.native.Symbol() {
			return w.native.Mint(to, amount)
		}
		return fmt.Errorf("%w: unknown token %s", ErrInvalidScenario, symbol)
	}
	return token.Mint(to, amount)
}

func (w *World) token(symbol string) (ledger.Token, error) {
	token, ok := w.tokens[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token %s", ErrInvalidScenario, symbol)
	}
	return token, nil
}

func (w *World) path(symbols []string) ([]common.Address, error) {
	if len(symbols) < 2 {
		return nil, fmt.Errorf("%w: path needs at least two tokens", ErrInvalidScenario)
	}
	out := make([]common.Address, 0, len(symbols))
	for _, symbol := range symbols {
		token, err := w.token(symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, token.Address())
	}
	return out, nil
}

func (w *World) vault(name string) (*vault.Vault, error) {
	v, ok := w.vaults[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vault.ErrVaultNotFound, name)
	}
	return v, nil
}

// Balance returns an account's balance of a token symbol, or nil when the
// symbol is unknown.
func (w *World) Balance(account, symbol string) *uint256.Int {
	token, ok := w.tokens[symbol]
	if !ok {
		return nil
	}
	return token.BalanceOf(Account(account))
}

func (w *World) Factory() *amm.Factory           { return w.factory }
func (w *World) Router() *router.Router          { return w.router }
func (w *World) Oracle() *oracle.PriceOracle     { return w.oracle }
func (w *World) Hub() *staking.Hub               { return w.hub }
func (w *World) Controller() *vault.Controller   { return w.controller }
func (w *World) Vault(name string) *vault.Vault  { return w.vaults[name] }
func (w *World) Token(symbol string) ledger.Token { return w.tokens[symbol] }

// Tokens lists token metadata for downstream aggregation.
func (w *World) Tokens() []model.TokenMeta {
	out := make([]model.TokenMeta, 0, len(w.tokens))
	for _, symbol := range sortedKeys(w.tokens) {
		token := w.tokens[symbol]
		out = append(out, model.TokenMeta{Address: token.Address().Hex(), Symbol: token.Symbol(), Decimals: token.Decimals()})
	}
	return out
}

// Snapshot captures staking and vault state at now.
func (w *World) Snapshot(runID string, step int, now uint64) (model.ProtocolSnapshot, error) {
	snap := model.ProtocolSnapshot{RunID: runID, Step: step, Timestamp: now}
	if w.hub != nil {
		rate, err := w.hub.ExchangeRate(now)
		if err != nil {
			return snap, err
		}
		snap.ExchangeRate = rate.Dec()
		snap.TotalStaked = w.hub.TotalStaked().Dec()
		snap.RewardReserve = w.hub.RewardReserve().Dec()
	}
	for _, name := range w.vaultOrder {
		v := w.vaults[name]
		active := false
		if reg, err := w.controller.GetVault(v.Address()); err == nil {
			active = reg.Active
		}
		snap.Vaults = append(snap.Vaults, model.VaultSnapshot{
			Address:        v.Address().Hex(),
			Name:           name,
			Active:         active,
			TotalDeposited: v.TotalDeposited().Dec(),
			YieldReserve:   v.YieldReserve().Dec(),
		})
	}
	return snap, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func matchesError(err error, expect string) bool {
	return err != nil && strings.Contains(err.Error(), expect)
}
