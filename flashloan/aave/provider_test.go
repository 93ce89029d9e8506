package aave

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	borrower = common.HexToAddress("0xBBBB")
)

type approvingReceiver struct {
	world   *state.World
	approve bool
	calls   int
}

func (r *approvingReceiver) OnFlashLoan(ctx context.Context, asset common.Address, amount, fee *big.Int, initiator common.Address, data []byte) error {
	r.calls++
	if !r.approve {
		return nil
	}
	return r.world.Approve(asset, borrower, PoolAddress, new(big.Int).Add(amount, fee))
}

func TestAaveProvider(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	world := state.NewWorld(1)
	require.NoError(t, world.Mint(weth, PoolAddress, big.NewInt(1000000)))
	require.NoError(t, world.Mint(weth, borrower, big.NewInt(1000)))

	provider, err := NewAaveProvider(world, flashloan.ProviderConfig{
		MaxLoanPercentage: 75,
		MinLoanAmount:     big.NewInt(100),
		BaseFee:           DefaultPremiumBps,
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.Equal(t, PoolAddress, provider.Address())
	assert.Equal(t, flashloan.RepayByAllowance, provider.Repayment())
	assert.Equal(t, "aave", provider.String())

	t.Run("GetMaxLoanAmount", func(t *testing.T) {
		maxLoan, err := provider.GetMaxLoanAmount(ctx, weth)
		require.NoError(t, err)
		assert.Equal(t, int64(750000), maxLoan.Int64())
	})

	t.Run("GetLoanFee", func(t *testing.T) {
		fee, err := provider.GetLoanFee(ctx, weth, big.NewInt(100000))
		require.NoError(t, err)
		assert.Equal(t, int64(90), fee.Int64())

		_, err = provider.GetLoanFee(ctx, weth, nil)
		assert.ErrorIs(t, err, types.ErrInvalidAmount)
	})

	t.Run("FlashLoan", func(t *testing.T) {
		receiver := &approvingReceiver{world: world, approve: true}
		err := provider.FlashLoan(ctx, flashloan.FlashLoanParams{
			Receiver: receiver,
			Target:   borrower,
			Token:    weth,
			Amount:   big.NewInt(100000),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, receiver.calls)
		assert.Equal(t, int64(1000090), world.BalanceOf(weth, PoolAddress).Int64())
		assert.Equal(t, int64(910), world.BalanceOf(weth, borrower).Int64())
	})

	t.Run("RepaymentFailed", func(t *testing.T) {
		receiver := &approvingReceiver{world: world}
		err := provider.FlashLoan(ctx, flashloan.FlashLoanParams{
			Receiver: receiver,
			Target:   borrower,
			Token:    weth,
			Amount:   big.NewInt(100000),
		})
		assert.ErrorIs(t, err, types.ErrRepaymentFailed)
		assert.Equal(t, int64(910), world.BalanceOf(weth, borrower).Int64())
	})

	t.Run("Bounds", func(t *testing.T) {
		receiver := &approvingReceiver{world: world, approve: true}

		err := provider.FlashLoan(ctx, flashloan.FlashLoanParams{
			Receiver: receiver, Target: borrower, Token: weth, Amount: big.NewInt(99),
		})
		assert.ErrorIs(t, err, types.ErrInvalidAmount)

		err = provider.FlashLoan(ctx, flashloan.FlashLoanParams{
			Receiver: receiver, Target: borrower, Token: weth, Amount: big.NewInt(900000),
		})
		assert.ErrorIs(t, err, types.ErrNoLiquidity)
		assert.Equal(t, 0, receiver.calls)
	})
}
