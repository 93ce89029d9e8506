package arbitrage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingQuoter struct {
	calls int
	out   *big.Int
}

func (q *countingQuoter) ExpectedOutput(ctx context.Context, venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) *big.Int {
	q.calls++
	return new(big.Int).Set(q.out)
}

func TestAggregatorExpectedOutput(t *testing.T) {
	ctx := context.Background()
	f := scenarioA(t)

	out := f.aggregator.ExpectedOutput(ctx, "S", token0, token1, big.NewInt(969))
	assert.Equal(t, int64(98742), out.Int64())
	assert.Equal(t, out, f.aggregator.ExpectedOutput(ctx, "S", token0, token1, big.NewInt(969)))

	assert.Zero(t, f.aggregator.ExpectedOutput(ctx, "missing", token0, token1, big.NewInt(969)).Sign())
	assert.Zero(t, f.aggregator.ExpectedOutput(ctx, "S", token0, token1, big.NewInt(0)).Sign())
	assert.Zero(t, f.aggregator.ExpectedOutput(ctx, "S", token0, token1, nil).Sign())

	unknown := common.HexToAddress("0xDEAD")
	assert.Zero(t, f.aggregator.ExpectedOutput(ctx, "S", token0, unknown, big.NewInt(969)).Sign())

	// Inactive venues still quote
	require.NoError(t, f.registry.Toggle("S", false))
	assert.Equal(t, int64(98742), f.aggregator.ExpectedOutput(ctx, "S", token0, token1, big.NewInt(969)).Int64())
	assert.Equal(t, 0, f.executes())
}

func TestQuoteCache(t *testing.T) {
	cache, err := NewQuoteCache(2, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return now }

	amount := big.NewInt(1000)
	_, ok := cache.Get("S", token0, token1, amount)
	assert.False(t, ok)

	cache.Put("S", token0, token1, amount, big.NewInt(42))
	out, ok := cache.Get("S", token0, token1, amount)
	require.True(t, ok)
	assert.Equal(t, int64(42), out.Int64())

	// Returned values are copies
	out.SetInt64(7)
	out, _ = cache.Get("S", token0, token1, amount)
	assert.Equal(t, int64(42), out.Int64())

	_, ok = cache.Get("S", token1, token0, amount)
	assert.False(t, ok, "direction is part of the key")
	_, ok = cache.Get("S2", token0, token1, amount)
	assert.False(t, ok, "venue is part of the key")

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get("S", token0, token1, amount)
	assert.False(t, ok, "expired quotes are not served")

	cache.Put("S", token0, token1, amount, big.NewInt(42))
	cache.Purge()
	_, ok = cache.Get("S", token0, token1, amount)
	assert.False(t, ok)

	_, err = NewQuoteCache(0, time.Second)
	assert.Error(t, err)
}

func TestCachedQuoter(t *testing.T) {
	ctx := context.Background()
	cache, err := NewQuoteCache(16, time.Minute)
	require.NoError(t, err)
	m := metrics.NewScannerMetrics(prometheus.NewRegistry(), "test")

	inner := &countingQuoter{out: big.NewInt(5)}
	quoter := NewCachedQuoter(inner, cache, nil, m)

	for i := 0; i < 3; i++ {
		assert.Equal(t, int64(5), quoter.ExpectedOutput(ctx, "S", token0, token1, big.NewInt(10)).Int64())
	}
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))

	assert.Zero(t, quoter.ExpectedOutput(ctx, "S", token0, token1, big.NewInt(0)).Sign())
	assert.Equal(t, 1, inner.calls)

	quoter.Purge()
	quoter.ExpectedOutput(ctx, "S", token0, token1, big.NewInt(10))
	assert.Equal(t, 2, inner.calls)
}
