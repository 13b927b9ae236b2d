package router

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"blxProtocol/internal/amm"
	"blxProtocol/internal/ledger"
	"blxProtocol/internal/protocol"
)

type swapEnds struct {
	nativeIn  bool
	nativeOut bool
}

// run validates every hop, funds the first pair from the caller and
// executes the path.
func (r *Router) run(call protocol.Call, rt *route, amounts []*uint256.Int, ends swapEnds, to common.Address) error {
	if err := protocol.RequireAddress(to, "to"); err != nil {
		return err
	}
	if err := r.preflight(call, rt, amounts); err != nil {
		return err
	}
	first := rt.pairs[0].Address()
	if ends.nativeIn {
		if r.wrapped.Native().BalanceOf(call.Caller).Lt(amounts[0]) {
			return fmt.Errorf("%w: native balance below %s", ledger.ErrInsufficientBalance, amounts[0].Dec())
		}
		if err := r.wrapInto(call.Caller, first, amounts[0]); err != nil {
			return err
		}
	} else {
		token := rt.inputToken()
		if err := r.checkFunds(token, call.Caller, amounts[0]); err != nil {
			return err
		}
		if err := r.pull(token, call.Caller, first, amounts[0]); err != nil {
			return err
		}
	}

	recipient := to
	if ends.nativeOut {
		recipient = r.address
	}
	if err := r.execute(call, rt, amounts, recipient); err != nil {
		return err
	}
	if ends.nativeOut {
		return r.wrapped.Withdraw(r.address, to, amounts[len(amounts)-1])
	}
	return nil
}

func (r *Router) exactIn(call protocol.Call, amountIn, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64, ends swapEnds) ([]*uint256.Int, error) {
	release, err := r.begin(call, deadline)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := r.checkEnds(path, ends); err != nil {
		return nil, err
	}
	rt, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	amounts, err := amm.GetAmountsOut(amountIn, rt.hops)
	if err != nil {
		return nil, err
	}
	if out := amounts[len(amounts)-1]; out.Lt(amountOutMin) {
		return nil, fmt.Errorf("%w: %s below minimum %s", ErrInsufficientOutputAmount, out.Dec(), amountOutMin.Dec())
	}
	if err := r.run(call, rt, amounts, ends, to); err != nil {
		return nil, err
	}
	return amounts, nil
}

func (r *Router) exactOut(call protocol.Call, amountOut, amountInMax *uint256.Int, path []common.Address, to common.Address, deadline uint64, ends swapEnds) ([]*uint256.Int, error) {
	release, err := r.begin(call, deadline)
	if err != nil {
		return nil, err
	}
	defer release()
	if err := r.checkEnds(path, ends); err != nil {
		return nil, err
	}
	rt, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	amounts, err := amm.GetAmountsIn(amountOut, rt.hops)
	if err != nil {
		return nil, err
	}
	if amounts[0].Gt(amountInMax) {
		return nil, fmt.Errorf("%w: %s above maximum %s", ErrExcessiveInputAmount, amounts[0].Dec(), amountInMax.Dec())
	}
	if err := r.run(call, rt, amounts, ends, to); err != nil {
		return nil, err
	}
	return amounts, nil
}

func (r *Router) checkEnds(path []common.Address, ends swapEnds) error {
	if !ends.nativeIn && !ends.nativeOut {
		return nil
	}
	if err := r.requireWrapped(); err != nil {
		return err
	}
	if len(path) < 2 {
		return fmt.Errorf("%w: need at least two tokens", ErrInvalidPath)
	}
	if ends.nativeIn && path[0] != r.wrapped.Address() {
		return fmt.Errorf("%w: path must start with the wrapped native token", ErrInvalidPath)
	}
	if ends.nativeOut && path[len(path)-1] != r.wrapped.Address() {
		return fmt.Errorf("%w: path must end with the wrapped native token", ErrInvalidPath)
	}
	return nil
}

// SwapExactTokensForTokens sells exactly amountIn of path[0].
func (r *Router) SwapExactTokensForTokens(call protocol.Call, amountIn, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	return r.exactIn(call, amountIn, amountOutMin, path, to, deadline, swapEnds{})
}

// SwapTokensForExactTokens buys exactly amountOut of the last path token.
func (r *Router) SwapTokensForExactTokens(call protocol.Call, amountOut, amountInMax *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	return r.exactOut(call, amountOut, amountInMax, path, to, deadline, swapEnds{})
}

// SwapExactETHForTokens sells exactly value of native currency.
func (r *Router) SwapExactETHForTokens(call protocol.Call, value, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	return r.exactIn(call, value, amountOutMin, path, to, deadline, swapEnds{nativeIn: true})
}

// SwapTokensForExactETH buys exactly amountOut of native currency.
func (r *Router) SwapTokensForExactETH(call protocol.Call, amountOut, amountInMax *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	return r.exactOut(call, amountOut, amountInMax, path, to, deadline, swapEnds{nativeOut: true})
}

// SwapExactTokensForETH sells exactly amountIn for native currency.
func (r *Router) SwapExactTokensForETH(call protocol.Call, amountIn, amountOutMin *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	return r.exactIn(call, amountIn, amountOutMin, path, to, deadline, swapEnds{nativeOut: true})
}

// SwapETHForExactTokens buys exactly amountOut, spending at most value of
// native currency. Only the required input leaves the caller.
func (r *Router) SwapETHForExactTokens(call protocol.Call, value, amountOut *uint256.Int, path []common.Address, to common.Address, deadline uint64) ([]*uint256.Int, error) {
	return r.exactOut(call, amountOut, value, path, to, deadline, swapEnds{nativeIn: true})
}
