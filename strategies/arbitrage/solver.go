package arbitrage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
)

// SearchMode selects how the solver walks the input range
type SearchMode int

const (
	// SearchBisection moves toward the upper half whenever the midpoint
	// improves on the best profit seen, and toward the lower half otherwise
	SearchBisection SearchMode = iota

	// SearchTernary narrows a unimodal profit curve by comparing two
	// interior points, then scans the remaining few candidates
	SearchTernary
)

func (m SearchMode) String() string {
	switch m {
	case SearchBisection:
		return "bisection"
	case SearchTernary:
		return "ternary"
	}
	return "unknown"
}

// ParseSearchMode maps a config value onto a SearchMode
func ParseSearchMode(s string) (SearchMode, error) {
	switch s {
	case "", "bisection":
		return SearchBisection, nil
	case "ternary":
		return SearchTernary, nil
	}
	return SearchBisection, fmt.Errorf("unknown search mode %q", s)
}

var (
	one   = big.NewInt(1)
	two   = big.NewInt(2)
	three = big.NewInt(3)
)

// Solver sizes a round trip between two venues
type Solver struct {
	registry *dex.Registry
	quoter   Quoter
	mode     SearchMode
}

// NewSolver creates a solver quoting through quoter
func NewSolver(registry *dex.Registry, quoter Quoter, mode SearchMode) *Solver {
	return &Solver{
		registry: registry,
		quoter:   quoter,
		mode:     mode,
	}
}

// Simulate returns the round-trip output and profit of trading amount of
// token0 to token1 on source and back on target. Profit may be negative.
func (s *Solver) Simulate(ctx context.Context, token0, token1 common.Address, amount *big.Int, source, target string) (sourceOut, targetOut, profit *big.Int) {
	sourceOut = s.quoter.ExpectedOutput(ctx, source, token0, token1, amount)
	targetOut = s.quoter.ExpectedOutput(ctx, target, token1, token0, sourceOut)
	return sourceOut, targetOut, new(big.Int).Sub(targetOut, amount)
}

// OptimalTrade searches [0, maxAmount] for the most profitable input. It
// returns (0, 0) when no size is profitable. Both venues must be active.
func (s *Solver) OptimalTrade(ctx context.Context, token0, token1 common.Address, maxAmount *big.Int, source, target string) (*big.Int, *big.Int, error) {
	if _, _, err := s.registry.ResolveActive(source); err != nil {
		return nil, nil, err
	}
	if _, _, err := s.registry.ResolveActive(target); err != nil {
		return nil, nil, err
	}
	if maxAmount == nil || maxAmount.Sign() <= 0 {
		return new(big.Int), new(big.Int), nil
	}

	profitAt := func(amount *big.Int) *big.Int {
		_, _, profit := s.Simulate(ctx, token0, token1, amount, source, target)
		return profit
	}

	var amount, profit *big.Int
	switch s.mode {
	case SearchTernary:
		amount, profit = ternarySearch(maxAmount, profitAt)
	default:
		amount, profit = bisectionSearch(maxAmount, profitAt)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return amount, profit, nil
}

// bisectionSearch starts at 1 so that a midpoint of zero can never step the
// upper bound below the range
func bisectionSearch(maxAmount *big.Int, profitAt func(*big.Int) *big.Int) (*big.Int, *big.Int) {
	bestAmount, bestProfit := new(big.Int), new(big.Int)
	low := big.NewInt(1)
	high := new(big.Int).Set(maxAmount)

	for low.Cmp(high) < 0 {
		mid := new(big.Int).Add(low, high)
		mid.Rsh(mid, 1)

		if profit := profitAt(mid); profit.Cmp(bestProfit) > 0 {
			bestAmount, bestProfit = mid, profit
			low = new(big.Int).Add(mid, one)
		} else {
			high = new(big.Int).Sub(mid, one)
		}
	}

	// The converged bound itself is never a midpoint
	if low.Cmp(high) == 0 {
		if profit := profitAt(low); profit.Cmp(bestProfit) > 0 {
			bestAmount, bestProfit = low, profit
		}
	}
	return bestAmount, bestProfit
}

func ternarySearch(maxAmount *big.Int, profitAt func(*big.Int) *big.Int) (*big.Int, *big.Int) {
	low := new(big.Int)
	high := new(big.Int).Set(maxAmount)

	for new(big.Int).Sub(high, low).Cmp(two) > 0 {
		third := new(big.Int).Sub(high, low)
		third.Div(third, three)
		m1 := new(big.Int).Add(low, third)
		m2 := new(big.Int).Sub(high, third)

		if profitAt(m1).Cmp(profitAt(m2)) < 0 {
			low = m1.Add(m1, one)
		} else {
			high = m2.Sub(m2, one)
		}
	}

	bestAmount, bestProfit := new(big.Int), new(big.Int)
	for a := new(big.Int).Set(low); a.Cmp(high) <= 0; a.Add(a, one) {
		if profit := profitAt(a); profit.Cmp(bestProfit) > 0 {
			bestAmount, bestProfit = new(big.Int).Set(a), profit
		}
	}
	return bestAmount, bestProfit
}
