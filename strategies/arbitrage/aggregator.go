package arbitrage

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Quoter returns the expected output of an exact-input trade on a venue. A
// zero result means no price is available.
type Quoter interface {
	ExpectedOutput(ctx context.Context, venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) *big.Int
}

// Aggregator dispatches quotes to the registered venue adapters
type Aggregator struct {
	registry *dex.Registry
	logger   *zap.Logger
}

// NewAggregator creates a new quote aggregator
func NewAggregator(registry *dex.Registry, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		registry: registry,
		logger:   logger,
	}
}

// ExpectedOutput quotes amountIn on venue. Unknown venues and failing
// adapters yield zero.
func (a *Aggregator) ExpectedOutput(ctx context.Context, venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return new(big.Int)
	}

	_, adapter, err := a.registry.Resolve(venue)
	if err != nil || adapter == nil {
		return new(big.Int)
	}

	out, err := adapter.Quote(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		a.logger.Debug("Quote failed",
			zap.String("venue", venue),
			zap.String("token_in", tokenIn.Hex()),
			zap.String("token_out", tokenOut.Hex()),
			zap.Error(err))
		return new(big.Int)
	}
	if out == nil || out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}

// CachedQuoter serves quotes from a QuoteCache and paces the rest through
// an optional rate limiter
type CachedQuoter struct {
	inner   Quoter
	cache   *QuoteCache
	limiter *rate.Limiter
	metrics *metrics.ScannerMetrics
}

// NewCachedQuoter wraps inner. limiter and m may be nil.
func NewCachedQuoter(inner Quoter, cache *QuoteCache, limiter *rate.Limiter, m *metrics.ScannerMetrics) *CachedQuoter {
	return &CachedQuoter{
		inner:   inner,
		cache:   cache,
		limiter: limiter,
		metrics: m,
	}
}

// ExpectedOutput implements Quoter
func (q *CachedQuoter) ExpectedOutput(ctx context.Context, venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return new(big.Int)
	}

	if out, ok := q.cache.Get(venue, tokenIn, tokenOut, amountIn); ok {
		if q.metrics != nil {
			q.metrics.CacheHits.Inc()
		}
		return out
	}
	if q.metrics != nil {
		q.metrics.CacheMisses.Inc()
	}

	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return new(big.Int)
		}
	}

	out := q.inner.ExpectedOutput(ctx, venue, tokenIn, tokenOut, amountIn)
	q.cache.Put(venue, tokenIn, tokenOut, amountIn, out)
	return out
}

// Purge invalidates every cached quote
func (q *CachedQuoter) Purge() {
	q.cache.Purge()
}
