package balancer

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
	bigmath "github.com/michaelpento.lv/flasharb/utils/math"
)

const (
	// MaxInRatioBps caps a single swap at 30% of the input balance
	MaxInRatioBps = 3000

	// DefaultFeeBps is the 0.3% weighted pool swap fee
	DefaultFeeBps = 30
)

// WeightedPool implements the Adapter for a two-token weighted pool. Power
// math is carried out in float64, so quotes are accurate to roughly 15
// significant digits and always rounded down.
type WeightedPool struct {
	world   *state.World
	router  common.Address
	pool    common.Address
	tokens  [2]common.Address
	weights [2]uint64
	feeBps  uint64
}

// NewWeightedPool creates a weighted-pool adapter. Weights are relative, so
// 80/20, 8/2 and 0.8e18/0.2e18 describe the same pool.
func NewWeightedPool(world *state.World, router, pool, token0, token1 common.Address, weight0, weight1, feeBps uint64) (*WeightedPool, error) {
	if world == nil {
		return nil, fmt.Errorf("world cannot be nil")
	}
	if token0 == token1 {
		return nil, fmt.Errorf("pool tokens must differ")
	}
	if weight0 == 0 || weight1 == 0 {
		return nil, fmt.Errorf("weights must be positive")
	}
	if feeBps >= bigmath.BasisPoints {
		return nil, fmt.Errorf("fee %d bps out of range", feeBps)
	}

	return &WeightedPool{
		world:   world,
		router:  router,
		pool:    pool,
		tokens:  [2]common.Address{token0, token1},
		weights: [2]uint64{weight0, weight1},
		feeBps:  feeBps,
	}, nil
}

// Model returns the weighted-pool tag
func (w *WeightedPool) Model() types.PricingModel {
	return types.ModelWeightedPool
}

// Quote returns the out-given-in amount at the pool's current balances
func (w *WeightedPool) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	i, o, err := w.indices(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}

	balanceIn := w.world.BalanceOf(tokenIn, w.pool)
	balanceOut := w.world.BalanceOf(tokenOut, w.pool)
	if amountIn != nil && amountIn.Cmp(bigmath.BpsOf(balanceIn, MaxInRatioBps)) > 0 {
		return nil, fmt.Errorf("%w: %v exceeds max in ratio of %v", types.ErrInvalidAmount, amountIn, balanceIn)
	}
	return OutGivenIn(balanceIn, w.weights[i], balanceOut, w.weights[o], amountIn, w.feeBps), nil
}

// Execute performs an exact-input swap against the pool
func (w *WeightedPool) Execute(ctx context.Context, req dex.SwapRequest) (*big.Int, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	amountOut, err := w.Quote(ctx, req.TokenIn, req.TokenOut, req.AmountIn)
	if err != nil {
		return nil, err
	}
	if amountOut.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero output", types.ErrNoLiquidity)
	}

	if err := dex.Settle(w.world, w.router, w.pool, req, amountOut); err != nil {
		return nil, err
	}
	return amountOut, nil
}

func (w *WeightedPool) indices(tokenIn, tokenOut common.Address) (int, int, error) {
	switch {
	case tokenIn == w.tokens[0] && tokenOut == w.tokens[1]:
		return 0, 1, nil
	case tokenIn == w.tokens[1] && tokenOut == w.tokens[0]:
		return 1, 0, nil
	}
	return 0, 0, fmt.Errorf("%w: %s/%s on pool %s",
		types.ErrUnsupportedPair, tokenIn.Hex(), tokenOut.Hex(), w.pool.Hex())
}

// OutGivenIn computes
//
//	out = Bo * (1 - (Bi / (Bi + Ai*(1-fee)))^(Wi/Wo))
func OutGivenIn(balanceIn *big.Int, weightIn uint64, balanceOut *big.Int, weightOut uint64, amountIn *big.Int, feeBps uint64) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 || balanceIn.Sign() <= 0 || balanceOut.Sign() <= 0 {
		return big.NewInt(0)
	}

	adjustedIn := bigmath.LessBps(amountIn, feeBps)
	denominator := new(big.Int).Add(balanceIn, adjustedIn)

	base, _ := new(big.Float).Quo(new(big.Float).SetInt(balanceIn), new(big.Float).SetInt(denominator)).Float64()
	power := math.Pow(base, float64(weightIn)/float64(weightOut))
	if power >= 1 {
		return big.NewInt(0)
	}

	out, _ := new(big.Float).Mul(new(big.Float).SetInt(balanceOut), big.NewFloat(1-power)).Int(nil)
	// float rounding must never favour the trader
	if out.Sign() > 0 {
		out.Sub(out, big.NewInt(1))
	}
	return out
}
