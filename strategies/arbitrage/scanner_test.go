package arbitrage

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/michaelpento.lv/flasharb/flashloan/aave"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type scannerFixture struct {
	*fixture
	scanner *Scanner
	oracle  *gas.StaticOracle
	metrics *metrics.ScannerMetrics
}

// Token1 is 5% cheaper on S than on T
func newScannerFixture(t *testing.T, config ScannerConfig) *scannerFixture {
	t.Helper()
	f := newFixture(t,
		venueSpec{id: "S", reserve0: 1000000000, reserve1: 105000000000},
		venueSpec{id: "T", reserve0: 1000000000, reserve1: 100000000000},
	)

	cache, err := NewQuoteCache(1024, time.Minute)
	require.NoError(t, err)
	m := metrics.NewScannerMetrics(prometheus.NewRegistry(), "test")
	oracle := gas.NewStaticOracle(big.NewInt(0))

	if config.Pairs == nil {
		config.Pairs = []ScanPair{{Token0: token0, Token1: token1, MaxAmount: big.NewInt(1000000)}}
	}
	quotes := NewCachedQuoter(f.aggregator, cache, nil, m)
	scanner := NewScanner(f.registry, quotes, f.aggregator, SearchBisection, f.loans, oracle, config, m, zaptest.NewLogger(t))

	return &scannerFixture{fixture: f, scanner: scanner, oracle: oracle, metrics: m}
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	s := newScannerFixture(t, ScannerConfig{})

	opps, err := s.scanner.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "S", opp.SourceVenue)
	assert.Equal(t, "T", opp.TargetVenue)
	assert.Equal(t, int64(999985), opp.AmountIn.Int64())
	assert.Equal(t, int64(47851), opp.ExpectedProfit.Int64())
	assert.Equal(t, int64(899), opp.LoanFee.Int64())
	assert.Equal(t, int64(46952), opp.NetProfit.Int64())
	assert.Equal(t, int64(104893533), opp.SourceOut.Int64())
	assert.Equal(t, int64(1047836), opp.TargetOut.Int64())
	assert.Equal(t, uint64(gas.ArbitrageGasLimit), opp.GasEstimate)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("unprofitable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.Candidates))
	assert.Equal(t, uint64(1), s.scanner.Stats().OpportunitiesFound)
	assert.Equal(t, 0, s.executes())
}

func TestScanThresholds(t *testing.T) {
	ctx := context.Background()

	t.Run("MinNetProfit", func(t *testing.T) {
		s := newScannerFixture(t, ScannerConfig{MinNetProfit: big.NewInt(46953)})
		opps, err := s.scanner.Scan(ctx)
		require.NoError(t, err)
		assert.Empty(t, opps)
		assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("below_threshold")))
	})

	t.Run("GasCostExceedsProfit", func(t *testing.T) {
		s := newScannerFixture(t, ScannerConfig{})
		s.oracle.Set(big.NewInt(1))
		opps, err := s.scanner.Scan(ctx)
		require.NoError(t, err)
		assert.Empty(t, opps)
	})

	t.Run("InactiveVenue", func(t *testing.T) {
		s := newScannerFixture(t, ScannerConfig{})
		require.NoError(t, s.registry.Toggle("T", false))
		opps, err := s.scanner.Scan(ctx)
		require.NoError(t, err)
		assert.Empty(t, opps)
		assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.Candidates))
	})

	t.Run("NoLender", func(t *testing.T) {
		s := newScannerFixture(t, ScannerConfig{
			Pairs: []ScanPair{{Token0: token0, Token1: token1, MaxAmount: big.NewInt(1000000)}},
		})
		require.NoError(t, s.world.SetBalance(token0, aave.PoolAddress, big.NewInt(10)))
		opps, err := s.scanner.Scan(ctx)
		require.NoError(t, err)
		assert.Empty(t, opps)
		assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("no_lender")))
	})
}

type failingOracle struct{}

func (failingOracle) CostRate(ctx context.Context) (*big.Int, error) {
	return nil, gas.ErrNoCostRate
}

func TestScanCostOracleError(t *testing.T) {
	s := newScannerFixture(t, ScannerConfig{})
	s.scanner.oracle = failingOracle{}

	_, err := s.scanner.Scan(context.Background())
	assert.ErrorIs(t, err, gas.ErrNoCostRate)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	s := newScannerFixture(t, ScannerConfig{})

	opps, err := s.scanner.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	require.NoError(t, s.scanner.Verify(ctx, opps[0]))

	// Deepen the token1 side of S by 5%, the cached quotes would not notice
	pool := s.adapters["S"].pool
	require.NoError(t, s.world.Mint(token1, pool, big.NewInt(5250000000)))

	err = s.scanner.Verify(ctx, opps[0])
	assert.ErrorIs(t, err, types.ErrPriceMoved)
}

func TestScanThenAttempt(t *testing.T) {
	ctx := context.Background()
	s := newScannerFixture(t, ScannerConfig{})

	opps, err := s.scanner.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	opp := opps[0]
	require.NoError(t, s.scanner.Verify(ctx, opp))

	record, err := s.engine.AttemptArbitrage(ctx, trustedEnv(normalCostRate), Request{
		Token0:      opp.Token0,
		Token1:      opp.Token1,
		MaxAmount:   big.NewInt(1000000),
		SourceVenue: opp.SourceVenue,
		TargetVenue: opp.TargetVenue,
		MinProfit:   big.NewInt(1),
	})
	s.scanner.RecordResult(record, err)
	require.NoError(t, err)
	assert.Equal(t, opp.AmountIn, record.Amount)
	assert.Equal(t, new(big.Int).Sub(opp.ExpectedProfit, opp.LoanFee), record.Profit)
	assert.Equal(t, opp.GasEstimate, record.CostUsed)

	s.scanner.RecordResult(nil, errors.New("reverted"))

	stats := s.scanner.Stats()
	assert.Equal(t, uint64(1), stats.TradesExecuted)
	assert.Equal(t, uint64(1), stats.FailedTrades)
	assert.Equal(t, record.Profit, stats.TotalProfit)
}
