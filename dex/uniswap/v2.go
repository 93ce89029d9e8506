package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
	bigmath "github.com/michaelpento.lv/flasharb/utils/math"
)

// DefaultFeeBps is the 0.3% Uniswap V2 swap fee
const DefaultFeeBps = 30

// UniswapV2 implements the constant-product Adapter for a single pair pool
type UniswapV2 struct {
	world  *state.World
	router common.Address
	pool   common.Address
	tokens [2]common.Address
	feeBps uint64
}

// NewUniswapV2 creates a constant-product adapter for the pool holding token0 and token1
func NewUniswapV2(world *state.World, router, pool, token0, token1 common.Address, feeBps uint64) (*UniswapV2, error) {
	if world == nil {
		return nil, fmt.Errorf("world cannot be nil")
	}
	if token0 == token1 {
		return nil, fmt.Errorf("pair tokens must differ")
	}
	if feeBps >= bigmath.BasisPoints {
		return nil, fmt.Errorf("fee %d bps out of range", feeBps)
	}

	return &UniswapV2{
		world:  world,
		router: router,
		pool:   pool,
		tokens: [2]common.Address{token0, token1},
		feeBps: feeBps,
	}, nil
}

// Model returns the constant-product tag
func (u *UniswapV2) Model() types.PricingModel {
	return types.ModelConstantProduct
}

// Pool returns the pair address the adapter trades against
func (u *UniswapV2) Pool() common.Address {
	return u.pool
}

// Quote returns the output for amountIn at the pool's current reserves
func (u *UniswapV2) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	reserveIn, reserveOut, err := u.reserves(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return GetAmountOut(amountIn, reserveIn, reserveOut, u.feeBps), nil
}

// Execute performs an exact-input swap against the pool
func (u *UniswapV2) Execute(ctx context.Context, req dex.SwapRequest) (*big.Int, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	amountOut, err := u.Quote(ctx, req.TokenIn, req.TokenOut, req.AmountIn)
	if err != nil {
		return nil, err
	}
	if amountOut.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero output", types.ErrNoLiquidity)
	}

	if err := dex.Settle(u.world, u.router, u.pool, req, amountOut); err != nil {
		return nil, err
	}
	return amountOut, nil
}

func (u *UniswapV2) reserves(tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error) {
	if !u.supports(tokenIn) || !u.supports(tokenOut) || tokenIn == tokenOut {
		return nil, nil, fmt.Errorf("%w: %s/%s on pool %s",
			types.ErrUnsupportedPair, tokenIn.Hex(), tokenOut.Hex(), u.pool.Hex())
	}
	return u.world.BalanceOf(tokenIn, u.pool), u.world.BalanceOf(tokenOut, u.pool), nil
}

func (u *UniswapV2) supports(token common.Address) bool {
	return token == u.tokens[0] || token == u.tokens[1]
}

// GetAmountOut calculates the output amount for a given input amount
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint64) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, new(big.Int).SetUint64(bigmath.BasisPoints-feeBps))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(
		new(big.Int).Mul(reserveIn, big.NewInt(bigmath.BasisPoints)),
		amountInWithFee,
	)

	return new(big.Int).Div(numerator, denominator)
}
