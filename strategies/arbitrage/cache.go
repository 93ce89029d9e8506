package arbitrage

import (
	"math/big"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultQuoteTTL bounds how long a cached quote is served
const DefaultQuoteTTL = 5 * time.Second

type cachedQuote struct {
	amountOut *big.Int
	expires   time.Time
}

// QuoteCache is a size-bounded LRU of venue quotes with a TTL
type QuoteCache struct {
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewQuoteCache creates a cache holding at most size quotes for ttl each
func NewQuoteCache(size int, ttl time.Duration) (*QuoteCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return &QuoteCache{cache: cache, ttl: ttl, now: time.Now}, nil
}

func quoteKey(venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(venue)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(tokenIn.Bytes())
	_, _ = d.Write(tokenOut.Bytes())
	_, _ = d.Write(amountIn.Bytes())
	return d.Sum64()
}

// Get returns a copy of a fresh cached quote
func (c *QuoteCache) Get(venue string, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, bool) {
	key := quoteKey(venue, tokenIn, tokenOut, amountIn)

	v, ok := c.cache.Get(key)
	if ok {
		q := v.(cachedQuote)
		if c.now().Before(q.expires) {
			return new(big.Int).Set(q.amountOut), true
		}
		c.cache.Remove(key)
	}
	return nil, false
}

// Put stores a quote
func (c *QuoteCache) Put(venue string, tokenIn, tokenOut common.Address, amountIn, amountOut *big.Int) {
	c.cache.Add(quoteKey(venue, tokenIn, tokenOut, amountIn), cachedQuote{
		amountOut: new(big.Int).Set(amountOut),
		expires:   c.now().Add(c.ttl),
	})
}

// Purge drops every cached quote
func (c *QuoteCache) Purge() {
	c.cache.Purge()
}
