package scenario

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"blxProtocol/internal/ledger"
	"blxProtocol/internal/protocol"
	"blxProtocol/internal/staking"
)

// Outcome is the flat result of one operation.
type Outcome map[string]string

type operation func(w *World, call protocol.Call, args *yaml.Node) (Outcome, error)

var operations map[string]operation

func init() {
	operations = map[string]operation{
		"mint":                     opMint,
		"create_pair":              opCreatePair,
		"add_liquidity":            opAddLiquidity,
		"add_liquidity_eth":        opAddLiquidityETH,
		"remove_liquidity":         opRemoveLiquidity,
		"remove_liquidity_eth":     opRemoveLiquidityETH,
		"swap_exact_in":            opSwapExactIn,
		"swap_exact_out":           opSwapExactOut,
		"swap_exact_eth_in":        opSwapExactETHIn,
		"swap_exact_out_eth":       opSwapExactOutETH,
		"swap_exact_in_eth":        opSwapExactInETH,
		"swap_eth_exact_out":       opSwapETHExactOut,
		"skim":                     opSkim,
		"sync":                     opSync,
		"set_price":                opSetPrice,
		"push_feed":                opPushFeed,
		"set_protocol_fee":         opSetProtocolFee,
		"set_max_deviation":        opSetMaxDeviation,
		"stake":                    opStake,
		"unstake":                  opUnstake,
		"claim_rewards":            opClaimRewards,
		"update_exchange_rate":     opUpdateExchangeRate,
		"fund_rewards":             opFundRewards,
		"add_lock_tier":            opAddLockTier,
		"set_reward_rate":          opSetRewardRate,
		"vault_deposit":            opVaultDeposit,
		"vault_withdraw":           opVaultWithdraw,
		"vault_compound":           opVaultCompound,
		"generate_yield":           opGenerateYield,
		"global_compound":          opGlobalCompound,
		"update_vault_status":      opUpdateVaultStatus,
		"update_vault_reward_rate": opUpdateVaultRewardRate,
		"set_compound_frequency":   opSetCompoundFrequency,
	}
}

func decodeArgs(args *yaml.Node, out interface{}) error {
	if args == nil || args.Kind == 0 {
		return nil
	}
	if err := args.Decode(out); err != nil {
		return fmt.Errorf("%w: args: %v", ErrInvalidScenario, err)
	}
	return nil
}

// deadline is relative to the step time; zero means the default window.
func deadline(call protocol.Call, offset int64) uint64 {
	if offset == 0 {
		return call.Timestamp + defaultDeadline
	}
	if offset < 0 {
		return call.Timestamp - uint64(-offset)
	}
	return call.Timestamp + uint64(offset)
}

// recipient defaults to the caller.
func recipient(call protocol.Call, name string) common.Address {
	if name == "" {
		return call.Caller
	}
	return Account(name)
}

func amounts(values []*uint256.Int) Outcome {
	out := Outcome{}
	for i, v := range values {
		out[fmt.Sprintf("amount%d", i)] = v.Dec()
	}
	return out
}

type mintArgs struct {
	Token  string `yaml:"token"`
	To     string `yaml:"to"`
	Amount Amount `yaml:"amount"`
}

// opMint is a faucet: it credits any account without authorization.
func opMint(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args mintArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	amount, err := args.Amount.Value()
	if err != nil {
		return nil, err
	}
	if err := w.mint(args.Token, recipient(call, args.To), amount); err != nil {
		return nil, err
	}
	return Outcome{"amount": amount.Dec()}, nil
}

type pairArgs struct {
	TokenA string `yaml:"token_a"`
	TokenB string `yaml:"token_b"`
	To     string `yaml:"to"`
}

func opCreatePair(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args pairArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	a, err := w.token(args.TokenA)
	if err != nil {
		return nil, err
	}
	b, err := w.token(args.TokenB)
	if err != nil {
		return nil, err
	}
	pair, err := w.factory.CreatePair(call, a, b)
	if err != nil {
		return nil, err
	}
	return Outcome{"pair": pair.Address().Hex()}, nil
}

type addLiquidityArgs struct {
	TokenA   string `yaml:"token_a"`
	TokenB   string `yaml:"token_b"`
	AmountA  Amount `yaml:"amount_a"`
	AmountB  Amount `yaml:"amount_b"`
	MinA     Amount `yaml:"min_a"`
	MinB     Amount `yaml:"min_b"`
	To       string `yaml:"to"`
	Deadline int64  `yaml:"deadline"`
}

func opAddLiquidity(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args addLiquidityArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	a, err := w.token(args.TokenA)
	if err != nil {
		return nil, err
	}
	b, err := w.token(args.TokenB)
	if err != nil {
		return nil, err
	}
	desiredA, desiredB, minA, minB, err := parseFour(args.AmountA, args.AmountB, args.MinA, args.MinB)
	if err != nil {
		return nil, err
	}
	amountA, amountB, liquidity, err := w.router.AddLiquidity(call, a, b, desiredA, desiredB, minA, minB,
		recipient(call, args.To), deadline(call, args.Deadline))
	if err != nil {
		return nil, err
	}
	return Outcome{"amount_a": amountA.Dec(), "amount_b": amountB.Dec(), "liquidity": liquidity.Dec()}, nil
}

type addLiquidityETHArgs struct {
	Token       string `yaml:"token"`
	AmountToken Amount `yaml:"amount_token"`
	AmountETH   Amount `yaml:"amount_eth"`
	MinToken    Amount `yaml:"min_token"`
	MinETH      Amount `yaml:"min_eth"`
	To          string `yaml:"to"`
	Deadline    int64  `yaml:"deadline"`
}

func opAddLiquidityETH(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args addLiquidityETHArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	token, err := w.token(args.Token)
	if err != nil {
		return nil, err
	}
	desiredToken, value, minToken, minETH, err := parseFour(args.AmountToken, args.AmountETH, args.MinToken, args.MinETH)
	if err != nil {
		return nil, err
	}
	amountToken, amountETH, liquidity, err := w.router.AddLiquidityETH(call, token, value, desiredToken, minToken, minETH,
		recipient(call, args.To), deadline(call, args.Deadline))
	if err != nil {
		return nil, err
	}
	return Outcome{"amount_token": amountToken.Dec(), "amount_eth": amountETH.Dec(), "liquidity": liquidity.Dec()}, nil
}

type removeLiquidityArgs struct {
	TokenA    string `yaml:"token_a"`
	TokenB    string `yaml:"token_b"`
	Liquidity Amount `yaml:"liquidity"`
	MinA      Amount `yaml:"min_a"`
	MinB      Amount `yaml:"min_b"`
	To        string `yaml:"to"`
	Deadline  int64  `yaml:"deadline"`
}

// lpAmount resolves "all" to the caller's LP balance and approves the
// router to pull it.
func (w *World) lpAmount(call protocol.Call, a, b common.Address, amount Amount) (*uint256.Int, error) {
	pair, err := w.factory.GetPair(a, b)
	if err != nil {
		return nil, err
	}
	lp := pair.LPToken()
	var liquidity *uint256.Int
	if amount.IsAll() {
		liquidity = lp.BalanceOf(call.Caller)
	} else if liquidity, err = amount.Value(); err != nil {
		return nil, err
	}
	if err := lp.Approve(call.Caller, w.router.Address(), ledger.Unlimited()); err != nil {
		return nil, err
	}
	return liquidity, nil
}

func opRemoveLiquidity(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args removeLiquidityArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	a, err := w.token(args.TokenA)
	if err != nil {
		return nil, err
	}
	b, err := w.token(args.TokenB)
	if err != nil {
		return nil, err
	}
	liquidity, err := w.lpAmount(call, a.Address(), b.Address(), args.Liquidity)
	if err != nil {
		return nil, err
	}
	minA, err := args.MinA.orZero()
	if err != nil {
		return nil, err
	}
	minB, err := args.MinB.orZero()
	if err != nil {
		return nil, err
	}
	amountA, amountB, err := w.router.RemoveLiquidity(call, a.Address(), b.Address(), liquidity, minA, minB,
		recipient(call, args.To), deadline(call, args.Deadline))
	if err != nil {
		return nil, err
	}
	return Outcome{"amount_a": amountA.Dec(), "amount_b": amountB.Dec(), "liquidity": liquidity.Dec()}, nil
}

type removeLiquidityETHArgs struct {
	Token     string `yaml:"token"`
	Liquidity Amount `yaml:"liquidity"`
	MinToken  Amount `yaml:"min_token"`
	MinETH    Amount `yaml:"min_eth"`
	To        string `yaml:"to"`
	Deadline  int64  `yaml:"deadline"`
}

func opRemoveLiquidityETH(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args removeLiquidityETHArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	if w.wrapped == nil {
		return nil, fmt.Errorf("%w: no native token", ErrInvalidScenario)
	}
	token, err := w.token(args.Token)
	if err != nil {
		return nil, err
	}
	liquidity, err := w.lpAmount(call, token.Address(), w.wrapped.Address(), args.Liquidity)
	if err != nil {
		return nil, err
	}
	minToken, err := args.MinToken.orZero()
	if err != nil {
		return nil, err
	}
	minETH, err := args.MinETH.orZero()
	if err != nil {
		return nil, err
	}
	amountToken, amountETH, err := w.router.RemoveLiquidityETH(call, token.Address(), liquidity, minToken, minETH,
		recipient(call, args.To), deadline(call, args.Deadline))
	if err != nil {
		return nil, err
	}
	return Outcome{"amount_token": amountToken.Dec(), "amount_eth": amountETH.Dec(), "liquidity": liquidity.Dec()}, nil
}

// swapArgs serves every swap variant. Exact-input swaps read Amount and
// Limit as (amountIn, minOut); exact-output swaps as (amountOut, maxIn).
type swapArgs struct {
	Path     []string `yaml:"path"`
	Amount   Amount   `yaml:"amount"`
	Limit    Amount   `yaml:"limit"`
	To       string   `yaml:"to"`
	Deadline int64    `yaml:"deadline"`
}

type swapFunc func(call protocol.Call, amount, limit *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error)

func runSwap(w *World, call protocol.Call, node *yaml.Node, pick func(w *World) swapFunc) (Outcome, error) {
	var args swapArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	path, err := w.path(args.Path)
	if err != nil {
		return nil, err
	}
	amount, err := args.Amount.Value()
	if err != nil {
		return nil, err
	}
	limit, err := args.Limit.orZero()
	if err != nil {
		return nil, err
	}
	out, err := pick(w)(call, amount, limit, path, recipient(call, args.To), deadline(call, args.Deadline))
	if err != nil {
		return nil, err
	}
	return amounts(out), nil
}

func opSwapExactIn(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	return runSwap(w, call, node, func(w *World) swapFunc { return w.router.SwapExactTokensForTokens })
}

func opSwapExactOut(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	return runSwap(w, call, node, func(w *World) swapFunc { return w.router.SwapTokensForExactTokens })
}

func opSwapExactETHIn(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	return runSwap(w, call, node, func(w *World) swapFunc { return w.router.SwapExactETHForTokens })
}

func opSwapExactOutETH(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	return runSwap(w, call, node, func(w *World) swapFunc { return w.router.SwapTokensForExactETH })
}

func opSwapExactInETH(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	return runSwap(w, call, node, func(w *World) swapFunc { return w.router.SwapExactTokensForETH })
}

// opSwapETHExactOut reads Amount as the exact output and Limit as the
// native value sent.
func opSwapETHExactOut(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	return runSwap(w, call, node, func(w *World) swapFunc {
		return func(call protocol.Call, amountOut, value *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
			return w.router.SwapETHForExactTokens(call, value, amountOut, path, to, deadline)
		}
	})
}

func opSkim(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args pairArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	path, err := w.path([]string{args.TokenA, args.TokenB})
	if err != nil {
		return nil, err
	}
	pair, err := w.factory.GetPair(path[0], path[1])
	if err != nil {
		return nil, err
	}
	return nil, pair.Skim(call, recipient(call, args.To))
}

func opSync(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args pairArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	path, err := w.path([]string{args.TokenA, args.TokenB})
	if err != nil {
		return nil, err
	}
	pair, err := w.factory.GetPair(path[0], path[1])
	if err != nil {
		return nil, err
	}
	if err := pair.Sync(call); err != nil {
		return nil, err
	}
	reserve0, reserve1, _ := pair.GetReserves()
	return Outcome{"reserve0": reserve0.Dec(), "reserve1": reserve1.Dec()}, nil
}

type priceArgs struct {
	Token string `yaml:"token"`
	Price Amount `yaml:"price"`
}

func opSetPrice(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args priceArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	token, err := w.token(args.Token)
	if err != nil {
		return nil, err
	}
	price, err := args.Price.Signed()
	if err != nil {
		return nil, err
	}
	return nil, w.oracle.SetCustomPrice(call, token.Address(), price)
}

type feedArgs struct {
	Token  string `yaml:"token"`
	Answer Amount `yaml:"answer"`
	// Age backdates the round's update time.
	Age uint64 `yaml:"age"`
}

// opPushFeed publishes a new round on a token's static feed.
func opPushFeed(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args feedArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	feed, ok := w.feeds[args.Token]
	if !ok {
		return nil, fmt.Errorf("%w: no feed for %s", ErrInvalidScenario, args.Token)
	}
	answer, err := args.Answer.Signed()
	if err != nil {
		return nil, err
	}
	if args.Age > call.Timestamp {
		return nil, fmt.Errorf("%w: feed age exceeds step time", ErrInvalidScenario)
	}
	feed.Push(answer, call.Timestamp-args.Age)
	return nil, nil
}

type bpsArgs struct {
	Bps uint64 `yaml:"bps"`
}

func opSetProtocolFee(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args bpsArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	return nil, w.factory.SetProtocolFee(call, args.Bps)
}

func opSetMaxDeviation(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args bpsArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	return nil, w.factory.SetMaxPriceDeviation(call, args.Bps)
}

func (w *World) requireHub() (*staking.Hub, error) {
	if w.hub == nil {
		return nil, fmt.Errorf("%w: staking is not configured", ErrInvalidScenario)
	}
	return w.hub, nil
}

type stakeArgs struct {
	Amount Amount `yaml:"amount"`
	Tier   int    `yaml:"tier"`
}

func opStake(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args stakeArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	hub, err := w.requireHub()
	if err != nil {
		return nil, err
	}
	amount, err := args.Amount.Value()
	if err != nil {
		return nil, err
	}
	shares, err := hub.Stake(call, amount, args.Tier)
	if err != nil {
		return nil, err
	}
	return Outcome{"shares": shares.Dec()}, nil
}

type unstakeArgs struct {
	Shares Amount `yaml:"shares"`
}

func opUnstake(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args unstakeArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	hub, err := w.requireHub()
	if err != nil {
		return nil, err
	}
	var shares *uint256.Int
	if args.Shares.IsAll() {
		shares = hub.ShareToken().BalanceOf(call.Caller)
	} else if shares, err = args.Shares.Value(); err != nil {
		return nil, err
	}
	payout, err := hub.Unstake(call, shares)
	if err != nil {
		return nil, err
	}
	return Outcome{"shares": shares.Dec(), "payout": payout.Dec()}, nil
}

func opClaimRewards(w *World, call protocol.Call, _ *yaml.Node) (Outcome, error) {
	hub, err := w.requireHub()
	if err != nil {
		return nil, err
	}
	reward, err := hub.ClaimRewards(call)
	if err != nil {
		return nil, err
	}
	return Outcome{"reward": reward.Dec()}, nil
}

func opUpdateExchangeRate(w *World, call protocol.Call, _ *yaml.Node) (Outcome, error) {
	hub, err := w.requireHub()
	if err != nil {
		return nil, err
	}
	if err := hub.UpdateRewardsAndExchangeRate(call); err != nil {
		return nil, err
	}
	rate, err := hub.ExchangeRate(call.Timestamp)
	if err != nil {
		return nil, err
	}
	return Outcome{"exchange_rate": rate.Dec()}, nil
}

type amountArgs struct {
	Amount Amount `yaml:"amount"`
}

func opFundRewards(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args amountArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	hub, err := w.requireHub()
	if err != nil {
		return nil, err
	}
	amount, err := args.Amount.Value()
	if err != nil {
		return nil, err
	}
	if err := hub.FundRewards(call, amount); err != nil {
		return nil, err
	}
	return Outcome{"reward_reserve": hub.RewardReserve().Dec()}, nil
}

func opAddLockTier(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var tier staking.LockTier
	if err := decodeArgs(node, &tier); err != nil {
		return nil, err
	}
	hub, err := w.requireHub()
	if err != nil {
		return nil, err
	}
	index, err := hub.AddLockTier(call, tier)
	if err != nil {
		return nil, err
	}
	return Outcome{"index": fmt.Sprint(index)}, nil
}

func opSetRewardRate(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args bpsArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	hub, err := w.requireHub()
	if err != nil {
		return nil, err
	}
	return nil, hub.SetRewardRate(call, args.Bps)
}

type vaultArgs struct {
	Vault  string `yaml:"vault"`
	Amount Amount `yaml:"amount"`
	Lock   uint64 `yaml:"lock"`
	Active bool   `yaml:"active"`
	Bps    uint64 `yaml:"bps"`
}

func opVaultDeposit(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args vaultArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	v, err := w.vault(args.Vault)
	if err != nil {
		return nil, err
	}
	amount, err := args.Amount.Value()
	if err != nil {
		return nil, err
	}
	if err := v.Deposit(call, amount, args.Lock); err != nil {
		return nil, err
	}
	deposit, _ := v.GetUserDeposit(call.Caller)
	return Outcome{"deposit": deposit.Amount.Dec(), "lock_end": fmt.Sprint(deposit.LockEnd)}, nil
}

func opVaultWithdraw(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args vaultArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	v, err := w.vault(args.Vault)
	if err != nil {
		return nil, err
	}
	var amount *uint256.Int
	if args.Amount.IsAll() {
		deposit, ok := v.GetUserDeposit(call.Caller)
		if !ok {
			amount = uint256.NewInt(0)
		} else {
			amount = deposit.Amount
		}
	} else if amount, err = args.Amount.Value(); err != nil {
		return nil, err
	}
	if err := v.Withdraw(call, amount); err != nil {
		return nil, err
	}
	return Outcome{"amount": amount.Dec()}, nil
}

func opVaultCompound(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args vaultArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	v, err := w.vault(args.Vault)
	if err != nil {
		return nil, err
	}
	reward, err := v.CompoundRewards(call)
	if err != nil {
		return nil, err
	}
	return Outcome{"reward": reward.Dec()}, nil
}

func opGenerateYield(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args vaultArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	v, err := w.vault(args.Vault)
	if err != nil {
		return nil, err
	}
	amount, err := w.controller.GenerateYield(call, v.Address())
	if err != nil {
		return nil, err
	}
	return Outcome{"yield": amount.Dec()}, nil
}

func opGlobalCompound(w *World, call protocol.Call, _ *yaml.Node) (Outcome, error) {
	if w.controller == nil {
		return nil, fmt.Errorf("%w: vaults are not configured", ErrInvalidScenario)
	}
	total, err := w.controller.ExecuteGlobalCompound(call)
	if err != nil {
		return nil, err
	}
	return Outcome{"total": total.Dec()}, nil
}

func opUpdateVaultStatus(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args vaultArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	v, err := w.vault(args.Vault)
	if err != nil {
		return nil, err
	}
	return nil, w.controller.UpdateVaultStatus(call, v.Address(), args.Active)
}

func opUpdateVaultRewardRate(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args vaultArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	v, err := w.vault(args.Vault)
	if err != nil {
		return nil, err
	}
	return nil, w.controller.UpdateVaultRewardRate(call, v.Address(), args.Bps)
}

type frequencyArgs struct {
	Seconds uint64 `yaml:"seconds"`
}

func opSetCompoundFrequency(w *World, call protocol.Call, node *yaml.Node) (Outcome, error) {
	var args frequencyArgs
	if err := decodeArgs(node, &args); err != nil {
		return nil, err
	}
	if w.controller == nil {
		return nil, fmt.Errorf("%w: vaults are not configured", ErrInvalidScenario)
	}
	return nil, w.controller.SetCompoundFrequency(call, args.Seconds)
}

func parseFour(a, b, c, d Amount) (*uint256.Int, *uint256.Int, *uint256.Int, *uint256.Int, error) {
	out := make([]*uint256.Int, 4)
	for i, amount := range []Amount{a, b, c, d} {
		v, err := amount.orZero()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		out[i] = v
	}
	return out[0], out[1], out[2], out[3], nil
}
