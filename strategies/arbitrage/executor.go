package arbitrage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
	bigmath "github.com/michaelpento.lv/flasharb/utils/math"
	"go.uber.org/zap"
)

const (
	// DefaultMaxSlippageBps is the 2% bound between quoted and minimum output
	DefaultMaxSlippageBps = 200

	// DefaultDeadlineBuffer is the number of blocks a leg stays valid
	DefaultDeadlineBuffer = 2
)

// Executor performs single trade legs with a bounded slippage
type Executor struct {
	world          *state.World
	registry       *dex.Registry
	trader         common.Address
	maxSlippageBps uint64
	deadlineBuffer uint64
	logger         *zap.Logger
}

// NewExecutor creates an executor trading on behalf of trader
func NewExecutor(world *state.World, registry *dex.Registry, trader common.Address, maxSlippageBps, deadlineBuffer uint64, logger *zap.Logger) (*Executor, error) {
	if maxSlippageBps >= bigmath.BasisPoints {
		return nil, fmt.Errorf("max slippage %d bps out of range", maxSlippageBps)
	}
	return &Executor{
		world:          world,
		registry:       registry,
		trader:         trader,
		maxSlippageBps: maxSlippageBps,
		deadlineBuffer: deadlineBuffer,
		logger:         logger,
	}, nil
}

// Plan quotes a leg on an active venue and derives its minimum output and
// deadline
func (e *Executor) Plan(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, venueID string) (types.TradePlan, dex.Adapter, error) {
	_, adapter, err := e.registry.ResolveActive(venueID)
	if err != nil {
		return types.TradePlan{}, nil, err
	}

	expected, err := adapter.Quote(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return types.TradePlan{}, nil, fmt.Errorf("failed to quote on %s: %w", venueID, err)
	}

	return types.TradePlan{
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    new(big.Int).Set(amountIn),
		Venue:       venueID,
		ExpectedOut: expected,
		MinOut:      bigmath.LessBps(expected, e.maxSlippageBps),
		Deadline:    e.world.Height() + e.deadlineBuffer,
	}, adapter, nil
}

// ExecuteWithSlippage approves exactly amountIn to the venue router and
// swaps, failing with ErrSlippageExceeded when the venue pays less than the
// planned minimum
func (e *Executor) ExecuteWithSlippage(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, venueID string) (*big.Int, error) {
	plan, adapter, err := e.Plan(ctx, tokenIn, tokenOut, amountIn, venueID)
	if err != nil {
		return nil, err
	}
	venue, _, err := e.registry.Resolve(venueID)
	if err != nil {
		return nil, err
	}

	var amountOut *big.Int
	err = state.Atomic(e.world, func() error {
		if err := e.world.Approve(tokenIn, e.trader, venue.Router, plan.AmountIn); err != nil {
			return fmt.Errorf("failed to approve router: %w", err)
		}

		out, err := adapter.Execute(ctx, dex.SwapRequest{
			TokenIn:      plan.TokenIn,
			TokenOut:     plan.TokenOut,
			AmountIn:     plan.AmountIn,
			MinAmountOut: plan.MinOut,
			Trader:       e.trader,
			Deadline:     plan.Deadline,
		})
		if err != nil {
			return err
		}

		// Adapters pull the input through the allowance, so nothing may remain
		if left := e.world.Allowance(tokenIn, e.trader, venue.Router); left.Sign() != 0 {
			return fmt.Errorf("venue %s left %v of router allowance unspent", venueID, left)
		}
		amountOut = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Executed leg",
		zap.String("venue", venueID),
		zap.String("amount_in", plan.AmountIn.String()),
		zap.String("expected_out", plan.ExpectedOut.String()),
		zap.String("min_out", plan.MinOut.String()),
		zap.String("amount_out", amountOut.String()))
	return amountOut, nil
}
