package curve

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

const (
	// nCoins is the number of coins in a plain two-coin pool
	nCoins = 2

	// FeeDenominator is the precision of the pool fee
	FeeDenominator = 10000000000

	// DefaultAmplification matches the common A=100 stable pools
	DefaultAmplification = 100

	// DefaultFeeBps is the 0.04% stable pool fee
	DefaultFeeBps = 4

	maxIterations = 255
)

var (
	bigOne     = big.NewInt(1)
	bigFeeDen  = big.NewInt(FeeDenominator)
	feePerBips = big.NewInt(FeeDenominator / bigmath.BasisPoints)
)

// StableSwap implements the Adapter for a two-coin StableSwap pool. Both
// coins are assumed to share the same precision.
type StableSwap struct {
	world  *state.World
	router common.Address
	pool   common.Address
	coins  [nCoins]common.Address
	amp    *big.Int
	fee    *big.Int
}

// NewStableSwap creates a stable-swap adapter over the pool holding coin0 and coin1
func NewStableSwap(world *state.World, router, pool, coin0, coin1 common.Address, amp, feeBps uint64) (*StableSwap, error) {
	if world == nil {
		return nil, fmt.Errorf("world cannot be nil")
	}
	if coin0 == coin1 {
		return nil, fmt.Errorf("pool coins must differ")
	}
	if amp == 0 {
		return nil, fmt.Errorf("amplification must be positive")
	}
	if feeBps >= bigmath.BasisPoints {
		return nil, fmt.Errorf("fee %d bps out of range", feeBps)
	}

	return &StableSwap{
		world:  world,
		router: router,
		pool:   pool,
		coins:  [nCoins]common.Address{coin0, coin1},
		amp:    new(big.Int).SetUint64(amp),
		fee:    new(big.Int).Mul(new(big.Int).SetUint64(feeBps), feePerBips),
	}, nil
}

// Model returns the stable-swap tag
func (s *StableSwap) Model() types.PricingModel {
	return types.ModelStableSwap
}

// Quote returns get_dy for the current pool balances
func (s *StableSwap) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	i, j, err := s.indices(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	xp := s.balances()
	if xp[0].Sign() == 0 || xp[1].Sign() == 0 {
		return big.NewInt(0), nil
	}
	return GetDy(i, j, amountIn, xp, s.amp, s.fee)
}

// Execute performs an exact-input exchange against the pool
func (s *StableSwap) Execute(ctx context.Context, req dex.SwapRequest) (*big.Int, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	amountOut, err := s.Quote(ctx, req.TokenIn, req.TokenOut, req.AmountIn)
	if err != nil {
		return nil, err
	}
	if amountOut.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero output", types.ErrNoLiquidity)
	}

	if err := dex.Settle(s.world, s.router, s.pool, req, amountOut); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// indices resolves the coin positions of a directed pair
func (s *StableSwap) indices(tokenIn, tokenOut common.Address) (int, int, error) {
	i, j := -1, -1
	for k, coin := range s.coins {
		if coin == tokenIn {
			i = k
		}
		if coin == tokenOut {
			j = k
		}
	}
	if i < 0 || j < 0 || i == j {
		return 0, 0, fmt.Errorf("%w: %s/%s on pool %s",
			types.ErrUnsupportedPair, tokenIn.Hex(), tokenOut.Hex(), s.pool.Hex())
	}
	return i, j, nil
}

func (s *StableSwap) balances() []*big.Int {
	xp := make([]*big.Int, nCoins)
	for k, coin := range s.coins {
		xp[k] = s.world.BalanceOf(coin, s.pool)
	}
	return xp
}

// GetD computes the StableSwap invariant for balances xp
func GetD(xp []*big.Int, amp *big.Int) (*big.Int, error) {
	sum := new(big.Int)
	for _, x := range xp {
		sum.Add(sum, x)
	}
	if sum.Sign() == 0 {
		return big.NewInt(0), nil
	}

	n := big.NewInt(int64(len(xp)))
	ann := new(big.Int).Mul(amp, n)
	d := new(big.Int).Set(sum)

	for it := 0; it < maxIterations; it++ {
		dP := new(big.Int).Set(d)
		for _, x := range xp {
			dP.Mul(dP, d)
			dP.Div(dP, new(big.Int).Mul(x, n))
		}
		prev := new(big.Int).Set(d)

		// d = (Ann*S + D_P*N) * D / ((Ann-1)*D + (N+1)*D_P)
		num := new(big.Int).Mul(ann, sum)
		num.Add(num, new(big.Int).Mul(dP, n))
		num.Mul(num, d)

		den := new(big.Int).Mul(new(big.Int).Sub(ann, bigOne), d)
		den.Add(den, new(big.Int).Mul(new(big.Int).Add(n, bigOne), dP))
		d = num.Div(num, den)

		if new(big.Int).Abs(new(big.Int).Sub(d, prev)).Cmp(bigOne) <= 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("invariant did not converge")
}

// GetY computes the new balance of coin j when coin i is set to x
func GetY(i, j int, x *big.Int, xp []*big.Int, amp *big.Int) (*big.Int, error) {
	d, err := GetD(xp, amp)
	if err != nil {
		return nil, err
	}

	n := big.NewInt(int64(len(xp)))
	ann := new(big.Int).Mul(amp, n)
	c := new(big.Int).Set(d)
	sum := new(big.Int)

	for k := range xp {
		if k == j {
			continue
		}
		xk := xp[k]
		if k == i {
			xk = x
		}
		sum.Add(sum, xk)
		c.Mul(c, d)
		c.Div(c, new(big.Int).Mul(xk, n))
	}
	c.Mul(c, d)
	c.Div(c, new(big.Int).Mul(ann, n))
	b := new(big.Int).Add(sum, new(big.Int).Div(d, ann))

	y := new(big.Int).Set(d)
	for it := 0; it < maxIterations; it++ {
		prev := new(big.Int).Set(y)

		// y = (y*y + c) / (2*y + b - D)
		num := new(big.Int).Mul(y, y)
		num.Add(num, c)
		den := new(big.Int).Lsh(y, 1)
		den.Add(den, b)
		den.Sub(den, d)
		if den.Sign() <= 0 {
			return nil, fmt.Errorf("%w: degenerate pool balances", types.ErrNoLiquidity)
		}
		y = num.Div(num, den)

		if new(big.Int).Abs(new(big.Int).Sub(y, prev)).Cmp(bigOne) <= 0 {
			return y, nil
		}
	}
	return nil, fmt.Errorf("balance did not converge")
}

// GetDy returns the output of coin j for dx of coin i, net of the pool fee
// expressed in FeeDenominator units
func GetDy(i, j int, dx *big.Int, xp []*big.Int, amp, fee *big.Int) (*big.Int, error) {
	x := new(big.Int).Add(xp[i], dx)
	y, err := GetY(i, j, x, xp, amp)
	if err != nil {
		return nil, err
	}

	dy := new(big.Int).Sub(xp[j], y)
	dy.Sub(dy, bigOne)
	if dy.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	charged := new(big.Int).Mul(dy, fee)
	charged.Div(charged, bigFeeDen)
	return dy.Sub(dy, charged), nil
}
