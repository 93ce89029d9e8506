package risk

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/types"
)

// Limits configures the gate
type Limits struct {
	// MaxCostRate is the absolute ceiling on the network cost rate
	MaxCostRate *big.Int

	// TrustedRelay is the only origin allowed to submit attempts
	TrustedRelay common.Address

	// MinRelayCostRate and MaxRelayCostRate bound the cost rate accepted on
	// the trusted submission channel
	MinRelayCostRate *big.Int
	MaxRelayCostRate *big.Int
}

// Gate validates cost and origin before any capital is committed. It holds
// no mutable state.
type Gate struct {
	limits Limits
}

// NewGate creates a gate, rejecting inconsistent limits
func NewGate(limits Limits) (*Gate, error) {
	if limits.MaxCostRate == nil || limits.MaxCostRate.Sign() <= 0 {
		return nil, fmt.Errorf("max cost rate must be positive")
	}
	if limits.TrustedRelay == (common.Address{}) {
		return nil, fmt.Errorf("trusted relay must be specified")
	}
	if limits.MinRelayCostRate == nil {
		limits.MinRelayCostRate = big.NewInt(0)
	}
	if limits.MaxRelayCostRate == nil {
		limits.MaxRelayCostRate = new(big.Int).Set(limits.MaxCostRate)
	}
	if limits.MinRelayCostRate.Cmp(limits.MaxRelayCostRate) > 0 {
		return nil, fmt.Errorf("relay cost band [%v, %v] is empty", limits.MinRelayCostRate, limits.MaxRelayCostRate)
	}
	return &Gate{limits: limits}, nil
}

// Check runs the cost ceiling, origin and cost band checks in that order
func (g *Gate) Check(env types.ExecContext) error {
	rate := env.CostRate
	if rate == nil {
		rate = new(big.Int)
	}

	if rate.Cmp(g.limits.MaxCostRate) > 0 {
		return fmt.Errorf("%w: %v > %v", types.ErrCostTooHigh, rate, g.limits.MaxCostRate)
	}
	if env.Origin != g.limits.TrustedRelay {
		return fmt.Errorf("%w: %s", types.ErrUntrustedOrigin, env.Origin.Hex())
	}
	if rate.Cmp(g.limits.MinRelayCostRate) < 0 || rate.Cmp(g.limits.MaxRelayCostRate) > 0 {
		return fmt.Errorf("%w: %v not in [%v, %v]", types.ErrCostOutOfBand,
			rate, g.limits.MinRelayCostRate, g.limits.MaxRelayCostRate)
	}
	return nil
}

// MaxCostRate returns the configured ceiling
func (g *Gate) MaxCostRate() *big.Int {
	return new(big.Int).Set(g.limits.MaxCostRate)
}
