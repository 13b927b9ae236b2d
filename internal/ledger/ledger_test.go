package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
	carol = common.HexToAddress("0xca401")
)

func TestTransferAndBalance(t *testing.T) {
	tok := NewMemoryToken(common.HexToAddress("0x70"), "TKN", 18)
	require.NoError(t, tok.Mint(alice, uint256.NewInt(100)))

	require.NoError(t, tok.Transfer(alice, bob, uint256.NewInt(40)))
	require.Equal(t, uint64(60), tok.BalanceOf(alice).Uint64())
	require.Equal(t, uint64(40), tok.BalanceOf(bob).Uint64())
	require.Equal(t, uint64(100), tok.TotalSupply().Uint64())

	err := tok.Transfer(bob, alice, uint256.NewInt(41))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, uint64(40), tok.BalanceOf(bob).Uint64())
}

func TestTransferFromAllowance(t *testing.T) {
	tok := NewMemoryToken(common.HexToAddress("0x70"), "TKN", 18)
	require.NoError(t, tok.Mint(alice, uint256.NewInt(100)))

	err := tok.TransferFrom(bob, alice, carol, uint256.NewInt(10))
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, tok.Approve(alice, bob, uint256.NewInt(30)))
	require.NoError(t, tok.TransferFrom(bob, alice, carol, uint256.NewInt(10)))
	require.Equal(t, uint64(20), tok.Allowance(alice, bob).Uint64())
	require.Equal(t, uint64(10), tok.BalanceOf(carol).Uint64())

	require.NoError(t, tok.Approve(alice, bob, Unlimited()))
	require.NoError(t, tok.TransferFrom(bob, alice, carol, uint256.NewInt(50)))
	require.True(t, tok.Allowance(alice, bob).Eq(Unlimited()))

	err = tok.TransferFrom(bob, alice, carol, uint256.NewInt(100))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, uint64(40), tok.BalanceOf(alice).Uint64())
}

func TestBurn(t *testing.T) {
	tok := NewMemoryToken(common.HexToAddress("0x70"), "TKN", 18)
	require.NoError(t, tok.Mint(alice, uint256.NewInt(5)))
	require.ErrorIs(t, tok.Burn(alice, uint256.NewInt(6)), ErrInsufficientBalance)
	require.NoError(t, tok.Burn(alice, uint256.NewInt(5)))
	require.True(t, tok.TotalSupply().IsZero())
}

func TestWrappedNative(t *testing.T) {
	eth := NewMemoryToken(common.Address{}, "ETH", 18)
	weth := NewWrappedNative(common.HexToAddress("0xee"), eth)
	require.NoError(t, eth.Mint(alice, uint256.NewInt(10)))

	require.NoError(t, weth.Deposit(alice, uint256.NewInt(7)))
	require.Equal(t, uint64(3), eth.BalanceOf(alice).Uint64())
	require.Equal(t, uint64(7), weth.BalanceOf(alice).Uint64())
	require.Equal(t, "WETH", weth.Symbol())

	require.NoError(t, weth.Withdraw(alice, bob, uint256.NewInt(2)))
	require.Equal(t, uint64(2), eth.BalanceOf(bob).Uint64())
	require.Equal(t, uint64(5), weth.BalanceOf(alice).Uint64())

	require.ErrorIs(t, weth.Deposit(alice, uint256.NewInt(4)), ErrInsufficientBalance)
}
