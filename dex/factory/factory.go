package factory

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/dex/balancer"
	"github.com/michaelpento.lv/flasharb/dex/curve"
	"github.com/michaelpento.lv/flasharb/dex/sushiswap"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
)

// Params describes a venue and the pool parameters of its pricing model
type Params struct {
	Venue  types.Venue
	Tokens [2]common.Address
	FeeBps uint64

	// Stable-swap
	Amplification uint64

	// Weighted-pool
	Weights [2]uint64

	// Constant-product pools may be located by CREATE2 instead of by address
	Factory      common.Address
	InitCodeHash common.Hash
}

// NewAdapter builds the adapter matching the venue's pricing model tag. The
// returned venue carries the pool address actually used.
func NewAdapter(world *state.World, params Params) (types.Venue, dex.Adapter, error) {
	venue := params.Venue
	token0, token1 := params.Tokens[0], params.Tokens[1]

	switch venue.Model {
	case types.ModelConstantProduct:
		if venue.Pool == (common.Address{}) && params.Factory != (common.Address{}) {
			venue.Pool = sushiswap.PairFor(params.Factory, params.InitCodeHash, token0, token1)
		}
		if err := requirePool(venue); err != nil {
			return venue, nil, err
		}
		adapter, err := uniswap.NewUniswapV2(world, venue.Router, venue.Pool, token0, token1, params.FeeBps)
		if err != nil {
			return venue, nil, fmt.Errorf("venue %s: %w", venue.ID, err)
		}
		return venue, adapter, nil

	case types.ModelStableSwap:
		if err := requirePool(venue); err != nil {
			return venue, nil, err
		}
		amp := params.Amplification
		if amp == 0 {
			amp = curve.DefaultAmplification
		}
		adapter, err := curve.NewStableSwap(world, venue.Router, venue.Pool, token0, token1, amp, params.FeeBps)
		if err != nil {
			return venue, nil, fmt.Errorf("venue %s: %w", venue.ID, err)
		}
		return venue, adapter, nil

	case types.ModelWeightedPool:
		if err := requirePool(venue); err != nil {
			return venue, nil, err
		}
		weights := params.Weights
		if weights[0] == 0 && weights[1] == 0 {
			weights = [2]uint64{50, 50}
		}
		adapter, err := balancer.NewWeightedPool(world, venue.Router, venue.Pool, token0, token1,
			weights[0], weights[1], params.FeeBps)
		if err != nil {
			return venue, nil, fmt.Errorf("venue %s: %w", venue.ID, err)
		}
		return venue, adapter, nil
	}

	return venue, nil, fmt.Errorf("venue %s: unsupported pricing model %s", venue.ID, venue.Model)
}

func requirePool(venue types.Venue) error {
	if venue.Pool == (common.Address{}) {
		return fmt.Errorf("venue %s: pool address must be specified", venue.ID)
	}
	return nil
}
