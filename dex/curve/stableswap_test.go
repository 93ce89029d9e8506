package curve

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	usdt   = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	weth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	router = common.HexToAddress("0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7")
	pool   = common.HexToAddress("0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C8")
	trader = common.HexToAddress("0x1234")
)

func newPool(t *testing.T, balance0, balance1 int64) (*state.World, *StableSwap) {
	t.Helper()
	world := state.NewWorld(1)
	require.NoError(t, world.Mint(usdc, pool, big.NewInt(balance0)))
	require.NoError(t, world.Mint(usdt, pool, big.NewInt(balance1)))

	adapter, err := NewStableSwap(world, router, pool, usdc, usdt, DefaultAmplification, DefaultFeeBps)
	require.NoError(t, err)
	return world, adapter
}

func TestGetD(t *testing.T) {
	d, err := GetD([]*big.Int{big.NewInt(1000000), big.NewInt(1000000)}, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(2000000), d.Int64())

	d, err = GetD([]*big.Int{big.NewInt(0), big.NewInt(0)}, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.Int64())
}

func TestQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("BalancedPool", func(t *testing.T) {
		_, adapter := newPool(t, 1000000, 1000000)

		forward, err := adapter.Quote(ctx, usdc, usdt, big.NewInt(10000))
		require.NoError(t, err)
		backward, err := adapter.Quote(ctx, usdt, usdc, big.NewInt(10000))
		require.NoError(t, err)

		assert.Equal(t, int64(9996), forward.Int64())
		assert.Equal(t, forward, backward)
	})

	t.Run("ImbalancedPool", func(t *testing.T) {
		_, adapter := newPool(t, 1000000, 1100000)

		// The scarce coin is worth more, so selling it yields a premium
		forward, err := adapter.Quote(ctx, usdc, usdt, big.NewInt(10000))
		require.NoError(t, err)
		backward, err := adapter.Quote(ctx, usdt, usdc, big.NewInt(10000))
		require.NoError(t, err)

		assert.Equal(t, int64(10004), forward.Int64())
		assert.Equal(t, int64(9986), backward.Int64())
	})

	t.Run("FlatterThanConstantProduct", func(t *testing.T) {
		_, adapter := newPool(t, 1000000, 1000000)

		out, err := adapter.Quote(ctx, usdc, usdt, big.NewInt(10000))
		require.NoError(t, err)
		// x*y=k with the same fee returns 9897
		assert.Greater(t, out.Int64(), int64(9897))
	})

	t.Run("UnsupportedPair", func(t *testing.T) {
		_, adapter := newPool(t, 1000000, 1000000)
		_, err := adapter.Quote(ctx, usdc, weth, big.NewInt(10000))
		assert.ErrorIs(t, err, types.ErrUnsupportedPair)
	})

	t.Run("EmptyPool", func(t *testing.T) {
		_, adapter := newPool(t, 0, 0)
		out, err := adapter.Quote(ctx, usdc, usdt, big.NewInt(10000))
		require.NoError(t, err)
		assert.Equal(t, int64(0), out.Int64())
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	world, adapter := newPool(t, 1000000, 1000000)
	require.NoError(t, world.Mint(usdc, trader, big.NewInt(10000)))
	require.NoError(t, world.Approve(usdc, trader, router, big.NewInt(10000)))

	out, err := adapter.Execute(ctx, dex.SwapRequest{
		TokenIn:      usdc,
		TokenOut:     usdt,
		AmountIn:     big.NewInt(10000),
		MinAmountOut: big.NewInt(9990),
		Trader:       trader,
		Deadline:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9996), out.Int64())
	assert.Equal(t, int64(9996), world.BalanceOf(usdt, trader).Int64())
	assert.Equal(t, int64(1010000), world.BalanceOf(usdc, pool).Int64())

	_, err = adapter.Execute(ctx, dex.SwapRequest{
		TokenIn:      usdc,
		TokenOut:     usdt,
		AmountIn:     big.NewInt(10000),
		MinAmountOut: big.NewInt(10000),
		Trader:       trader,
		Deadline:     1,
	})
	assert.ErrorIs(t, err, types.ErrSlippageExceeded)
}

func TestNewStableSwapValidation(t *testing.T) {
	world := state.NewWorld(1)

	_, err := NewStableSwap(world, router, pool, usdc, usdc, DefaultAmplification, DefaultFeeBps)
	assert.Error(t, err)

	_, err = NewStableSwap(world, router, pool, usdc, usdt, 0, DefaultFeeBps)
	assert.Error(t, err)

	_, err = NewStableSwap(nil, router, pool, usdc, usdt, DefaultAmplification, DefaultFeeBps)
	assert.Error(t, err)
}
