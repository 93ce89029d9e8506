package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
)

// Adapter translates generic quote and swap requests into venue specific math
type Adapter interface {
	// Model returns the pricing model the adapter implements
	Model() types.PricingModel

	// Quote returns the output for an exact input without touching state
	Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)

	// Execute performs the swap, failing with ErrSlippageExceeded when the
	// realized output is below req.MinAmountOut
	Execute(ctx context.Context, req SwapRequest) (*big.Int, error)
}

// SwapRequest is an exact-input swap
type SwapRequest struct {
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Trader       common.Address
	Deadline     uint64
}

// Validate checks the request is well formed
func (r SwapRequest) Validate() error {
	if r.AmountIn == nil || r.AmountIn.Sign() <= 0 {
		return fmt.Errorf("%w: amount in must be positive", types.ErrInvalidAmount)
	}
	if r.MinAmountOut == nil || r.MinAmountOut.Sign() < 0 {
		return fmt.Errorf("%w: min amount out must not be negative", types.ErrInvalidAmount)
	}
	if r.TokenIn == r.TokenOut {
		return fmt.Errorf("%w: identical tokens", types.ErrUnsupportedPair)
	}
	return nil
}

// Settle enforces the deadline and the minimum output, pulls the input from
// the trader through the router allowance into the pool and pays the output
// from the pool back to the trader.
func Settle(world *state.World, router, pool common.Address, req SwapRequest, amountOut *big.Int) error {
	if height := world.Height(); height > req.Deadline {
		return fmt.Errorf("%w: height %d past deadline %d", types.ErrDeadlineExpired, height, req.Deadline)
	}
	if amountOut.Cmp(req.MinAmountOut) < 0 {
		return fmt.Errorf("%w: got %v, want at least %v", types.ErrSlippageExceeded, amountOut, req.MinAmountOut)
	}

	return state.Atomic(world, func() error {
		if err := world.TransferFrom(req.TokenIn, router, req.Trader, pool, req.AmountIn); err != nil {
			return fmt.Errorf("failed to pull swap input: %w", err)
		}
		if err := world.Transfer(req.TokenOut, pool, req.Trader, amountOut); err != nil {
			return fmt.Errorf("failed to pay swap output: %w", err)
		}
		return nil
	})
}
