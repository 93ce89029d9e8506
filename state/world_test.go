package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	alice = common.HexToAddress("0x1111")
	bob   = common.HexToAddress("0x2222")
)

func TestTransfer(t *testing.T) {
	w := NewWorld(1)
	require.NoError(t, w.Mint(weth, alice, big.NewInt(100)))

	require.NoError(t, w.Transfer(weth, alice, bob, big.NewInt(40)))
	assert.Equal(t, int64(60), w.BalanceOf(weth, alice).Int64())
	assert.Equal(t, int64(40), w.BalanceOf(weth, bob).Int64())

	err := w.Transfer(weth, alice, bob, big.NewInt(61))
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)

	assert.ErrorIs(t, w.Transfer(weth, alice, bob, big.NewInt(-1)), types.ErrInvalidAmount)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	w := NewWorld(1)
	require.NoError(t, w.Mint(weth, alice, big.NewInt(100)))

	err := w.TransferFrom(weth, bob, alice, bob, big.NewInt(10))
	assert.ErrorIs(t, err, types.ErrInsufficientAllowance)

	require.NoError(t, w.Approve(weth, alice, bob, big.NewInt(30)))
	require.NoError(t, w.TransferFrom(weth, bob, alice, bob, big.NewInt(30)))
	assert.Equal(t, int64(0), w.Allowance(weth, alice, bob).Int64())
	assert.Equal(t, int64(30), w.BalanceOf(weth, bob).Int64())

	err = w.TransferFrom(weth, bob, alice, bob, big.NewInt(1))
	assert.ErrorIs(t, err, types.ErrInsufficientAllowance)
}

func TestSnapshotRevert(t *testing.T) {
	w := NewWorld(10)
	require.NoError(t, w.Mint(weth, alice, big.NewInt(100)))

	id := w.Snapshot()
	require.NoError(t, w.Transfer(weth, alice, bob, big.NewInt(25)))
	require.NoError(t, w.Approve(weth, bob, alice, big.NewInt(5)))
	w.AdvanceHeight(3)

	inner := w.Snapshot()
	require.NoError(t, w.Mint(weth, bob, big.NewInt(1000)))
	w.RevertToSnapshot(inner)
	assert.Equal(t, int64(25), w.BalanceOf(weth, bob).Int64())

	w.RevertToSnapshot(id)
	assert.Equal(t, int64(100), w.BalanceOf(weth, alice).Int64())
	assert.Equal(t, int64(0), w.BalanceOf(weth, bob).Int64())
	assert.Equal(t, int64(0), w.Allowance(weth, bob, alice).Int64())
	assert.Equal(t, uint64(10), w.Height())
}

func TestAtomic(t *testing.T) {
	w := NewWorld(1)
	require.NoError(t, w.Mint(weth, alice, big.NewInt(100)))

	boom := errors.New("boom")
	err := Atomic(w, func() error {
		if err := w.Transfer(weth, alice, bob, big.NewInt(50)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(100), w.BalanceOf(weth, alice).Int64())

	err = Atomic(w, func() error {
		return w.Transfer(weth, alice, bob, big.NewInt(50))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), w.BalanceOf(weth, bob).Int64())

	assert.Panics(t, func() {
		_ = Atomic(w, func() error {
			_ = w.Transfer(weth, alice, bob, big.NewInt(50))
			panic("unexpected")
		})
	})
	assert.Equal(t, int64(50), w.BalanceOf(weth, alice).Int64())
}
