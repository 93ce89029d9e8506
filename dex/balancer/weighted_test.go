package balancer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bal    = common.HexToAddress("0xba100000625a3754423978a60c9317c58a424e3D")
	weth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai    = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	router = common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8")
	pool   = common.HexToAddress("0x5c6Ee304399DBdB9C8Ef030aB642B10820DB8F56")
	trader = common.HexToAddress("0x1234")
)

func TestOutGivenIn(t *testing.T) {
	t.Run("EqualWeightsMatchConstantProduct", func(t *testing.T) {
		balanceIn := big.NewInt(1000000000)
		balanceOut := big.NewInt(2000000000)
		amountIn := big.NewInt(5000000)

		weighted := OutGivenIn(balanceIn, 50, balanceOut, 50, amountIn, DefaultFeeBps)
		constantProduct := uniswap.GetAmountOut(amountIn, balanceIn, balanceOut, DefaultFeeBps)

		assert.InDelta(t, constantProduct.Int64(), weighted.Int64(), 2)
		assert.True(t, weighted.Cmp(constantProduct) <= 0)
	})

	t.Run("HeavierInputWeightPaysMore", func(t *testing.T) {
		balanceIn := big.NewInt(1000000000)
		balanceOut := big.NewInt(1000000000)
		amountIn := big.NewInt(1000000)

		even := OutGivenIn(balanceIn, 50, balanceOut, 50, amountIn, 0)
		heavy := OutGivenIn(balanceIn, 80, balanceOut, 20, amountIn, 0)
		assert.Greater(t, heavy.Int64(), even.Int64())
	})

	t.Run("ZeroInput", func(t *testing.T) {
		out := OutGivenIn(big.NewInt(100), 1, big.NewInt(100), 1, big.NewInt(0), 0)
		assert.Equal(t, int64(0), out.Int64())
	})
}

func TestWeightedPool(t *testing.T) {
	ctx := context.Background()
	world := state.NewWorld(5)
	require.NoError(t, world.Mint(bal, pool, big.NewInt(8000000000)))
	require.NoError(t, world.Mint(weth, pool, big.NewInt(100000000)))

	adapter, err := NewWeightedPool(world, router, pool, bal, weth, 80, 20, DefaultFeeBps)
	require.NoError(t, err)
	assert.Equal(t, types.ModelWeightedPool, adapter.Model())

	_, err = adapter.Quote(ctx, bal, dai, big.NewInt(1000))
	assert.ErrorIs(t, err, types.ErrUnsupportedPair)

	_, err = adapter.Quote(ctx, weth, bal, big.NewInt(30000001))
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	quote, err := adapter.Quote(ctx, weth, bal, big.NewInt(1000000))
	require.NoError(t, err)
	assert.True(t, quote.Sign() > 0)

	require.NoError(t, world.Mint(weth, trader, big.NewInt(1000000)))
	require.NoError(t, world.Approve(weth, trader, router, big.NewInt(1000000)))

	out, err := adapter.Execute(ctx, dex.SwapRequest{
		TokenIn:      weth,
		TokenOut:     bal,
		AmountIn:     big.NewInt(1000000),
		MinAmountOut: quote,
		Trader:       trader,
		Deadline:     5,
	})
	require.NoError(t, err)
	assert.Equal(t, quote, out)
	assert.Equal(t, quote, world.BalanceOf(bal, trader))
	assert.Equal(t, int64(0), world.BalanceOf(weth, trader).Int64())
}
