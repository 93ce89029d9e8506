package flashloan

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
)

// Lend runs the lend, callback, reclaim sequence shared by all providers
// against the world. Nothing it or the receiver changed survives an error.
func Lend(ctx context.Context, world *state.World, lender common.Address, mode RepaymentMode, params FlashLoanParams, fee *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if params.Receiver == nil {
		return fmt.Errorf("receiver cannot be nil")
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: loan amount must be positive", types.ErrInvalidAmount)
	}

	return state.Atomic(world, func() error {
		before := world.BalanceOf(params.Token, lender)
		if before.Cmp(params.Amount) < 0 {
			return fmt.Errorf("%w: lender holds %v, requested %v", types.ErrNoLiquidity, before, params.Amount)
		}
		if err := world.Transfer(params.Token, lender, params.Target, params.Amount); err != nil {
			return fmt.Errorf("failed to transfer loan: %w", err)
		}

		if err := params.Receiver.OnFlashLoan(ctx, params.Token, params.Amount, fee, params.Initiator, params.Data); err != nil {
			return err
		}

		owed := new(big.Int).Add(params.Amount, fee)
		switch mode {
		case RepayByAllowance:
			if err := world.TransferFrom(params.Token, lender, params.Target, lender, owed); err != nil {
				return fmt.Errorf("%w: %v", types.ErrRepaymentFailed, err)
			}
		case RepayByTransfer:
			after := world.BalanceOf(params.Token, lender)
			if after.Cmp(new(big.Int).Add(before, fee)) < 0 {
				return fmt.Errorf("%w: lender balance %v, want at least %v",
					types.ErrRepaymentFailed, after, new(big.Int).Add(before, fee))
			}
		default:
			return fmt.Errorf("unknown repayment mode %d", mode)
		}
		return nil
	})
}

// MaxLoan applies the configured percentage and absolute caps to liquidity
func MaxLoan(config ProviderConfig, liquidity *big.Int) *big.Int {
	maxLoan := new(big.Int).Set(liquidity)
	if config.MaxLoanPercentage > 0 && config.MaxLoanPercentage < 100 {
		maxLoan.Mul(maxLoan, big.NewInt(int64(config.MaxLoanPercentage)))
		maxLoan.Div(maxLoan, big.NewInt(100))
	}
	if config.MaxLoanAmount != nil && maxLoan.Cmp(config.MaxLoanAmount) > 0 {
		maxLoan.Set(config.MaxLoanAmount)
	}
	return maxLoan
}
