package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// WrappedNative is an ERC20 view of the native currency: depositing moves
// native units into the wrapper and mints the same amount of wrapped token.
type WrappedNative struct {
	*MemoryToken
	native Token
}

func NewWrappedNative(address common.Address, native Token) *WrappedNative {
	return &WrappedNative{
		MemoryToken: NewMemoryToken(address, "W"+native.Symbol(), native.Decimals()),
		native:      native,
	}
}

// Native returns the underlying native-currency ledger.
func (w *WrappedNative) Native() Token { return w.native }

// Deposit wraps amount of from's native balance.
func (w *WrappedNative) Deposit(from common.Address, amount *uint256.Int) error {
	if err := w.native.Transfer(from, w.Address(), amount); err != nil {
		return fmt.Errorf("wrap: %w", err)
	}
	return w.Mint(from, amount)
}

// Withdraw unwraps amount of from's wrapped balance back to native units
// sent to to.
func (w *WrappedNative) Withdraw(from, to common.Address, amount *uint256.Int) error {
	if err := w.Burn(from, amount); err != nil {
		return fmt.Errorf("unwrap: %w", err)
	}
	return w.native.Transfer(w.Address(), to, amount)
}
