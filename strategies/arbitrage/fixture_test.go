package arbitrage

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/flashloan/aave"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/risk"
	"github.com/michaelpento.lv/flasharb/state"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	token0     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	token1     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	engineAddr = common.HexToAddress("0xE000000000000000000000000000000000000001")
	relay      = common.HexToAddress("0x5000000000000000000000000000000000000005")

	lenderLiquidity = big.NewInt(1000000000000)
	maxCostRate     = big.NewInt(100000000000)
	normalCostRate  = big.NewInt(30000000000)
)

// countingAdapter wraps a constant-product venue, counting Execute calls and
// optionally paying shortfallPct percent less than quoted
type countingAdapter struct {
	inner        *uniswap.UniswapV2
	world        *state.World
	router       common.Address
	pool         common.Address
	shortfallPct int64
	executes     int
	onExecute    func()
}

func (c *countingAdapter) Model() types.PricingModel { return c.inner.Model() }

func (c *countingAdapter) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	return c.inner.Quote(ctx, tokenIn, tokenOut, amountIn)
}

func (c *countingAdapter) Execute(ctx context.Context, req dex.SwapRequest) (*big.Int, error) {
	c.executes++
	if c.onExecute != nil {
		c.onExecute()
	}
	if c.shortfallPct == 0 {
		return c.inner.Execute(ctx, req)
	}

	quoted, err := c.inner.Quote(ctx, req.TokenIn, req.TokenOut, req.AmountIn)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(quoted, big.NewInt(100-c.shortfallPct))
	out.Div(out, big.NewInt(100))
	if err := dex.Settle(c.world, c.router, c.pool, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

type venueSpec struct {
	id           string
	reserve0     int64
	reserve1     int64
	shortfallPct int64
}

type fixture struct {
	world      *state.World
	registry   *dex.Registry
	aggregator *Aggregator
	loans      *flashloan.FlashLoanManager
	ledger     *ledger.ProfitLedger
	engine     *Engine
	adapters   map[string]*countingAdapter
	records    []types.ExecutionRecord
}

func newFixture(t *testing.T, venues ...venueSpec) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()

	f := &fixture{
		world:    state.NewWorld(100),
		adapters: make(map[string]*countingAdapter),
		ledger:   ledger.New(),
	}
	f.registry = dex.NewRegistry(logger)
	f.aggregator = NewAggregator(f.registry, logger)

	for i, v := range venues {
		pool := common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		router := common.BigToAddress(big.NewInt(int64(0x2000 + i)))
		require.NoError(t, f.world.Mint(token0, pool, big.NewInt(v.reserve0)))
		require.NoError(t, f.world.Mint(token1, pool, big.NewInt(v.reserve1)))

		inner, err := uniswap.NewUniswapV2(f.world, router, pool, token0, token1, 0)
		require.NoError(t, err)
		adapter := &countingAdapter{inner: inner, world: f.world, router: router, pool: pool, shortfallPct: v.shortfallPct}
		f.adapters[v.id] = adapter

		require.NoError(t, f.registry.Register(types.Venue{
			ID:     v.id,
			Router: router,
			Pool:   pool,
			Model:  types.ModelConstantProduct,
			Active: true,
		}, adapter))
	}

	require.NoError(t, f.world.Mint(token0, aave.PoolAddress, lenderLiquidity))
	provider, err := aave.NewAaveProvider(f.world, flashloan.ProviderConfig{BaseFee: aave.DefaultPremiumBps}, logger)
	require.NoError(t, err)
	f.loans = flashloan.NewFlashLoanManager(logger, reg)
	f.loans.AddProvider(provider)

	gate, err := risk.NewGate(risk.Limits{MaxCostRate: maxCostRate, TrustedRelay: relay})
	require.NoError(t, err)

	executor, err := NewExecutor(f.world, f.registry, engineAddr, DefaultMaxSlippageBps, DefaultDeadlineBuffer, logger)
	require.NoError(t, err)

	f.engine, err = NewEngine(EngineConfig{
		Address:  engineAddr,
		World:    f.world,
		Gate:     gate,
		Solver:   NewSolver(f.registry, f.aggregator, SearchBisection),
		Executor: executor,
		Loans:    f.loans,
		Ledger:   f.ledger,
		Sink:     func(r types.ExecutionRecord) { f.records = append(f.records, r) },
		Metrics:  metrics.NewStrategyMetrics(reg, "test"),
		Logger:   logger,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) executes() int {
	total := 0
	for _, a := range f.adapters {
		total += a.executes
	}
	return total
}

func trustedEnv(rate *big.Int) types.ExecContext {
	return types.ExecContext{Origin: relay, CostRate: rate}
}

// Token1 is cheaper on S than on T by roughly 2%
func scenarioA(t *testing.T) *fixture {
	return newFixture(t,
		venueSpec{id: "S", reserve0: 1000000, reserve1: 102000000},
		venueSpec{id: "T", reserve0: 1000000, reserve1: 100000000},
	)
}
