package market

import (
	"context"
	"fmt"
	"time"

	"trading-bot/pkg/cache"
	"trading-bot/pkg/market"
)

// Source provides OHLCV candles ascending by open time.
type Source interface {
	Candles(ctx context.Context, coin, interval string, bars int) ([]market.Candle, error)
}

// CachedSource serves repeated requests for the same coin, interval and bar
// count from memory for a fraction of the interval.
type CachedSource struct {
	Source Source
	cache  *cache.ShardedCache[[]market.Candle]
	maxAge func(interval string) time.Duration
}

// NewCachedSource wraps src. Entries live for a quarter of the candle
// interval, capped at one minute.
func NewCachedSource(src Source) *CachedSource {
	return &CachedSource{
		Source: src,
		cache:  cache.New[[]market.Candle](),
		maxAge: defaultMaxAge,
	}
}

func defaultMaxAge(interval string) time.Duration {
	d, err := market.IntervalDuration(interval)
	if err != nil {
		return 0
	}
	return min(d/4, time.Minute)
}

// WithClock swaps the cache time source, for tests.
func (c *CachedSource) WithClock(now func() time.Time) *CachedSource {
	c.cache.WithClock(now)
	return c
}

func (c *CachedSource) Candles(ctx context.Context, coin, interval string, bars int) ([]market.Candle, error) {
	key := fmt.Sprintf("%s|%s|%d", coin, interval, bars)
	if v, ok := c.cache.GetFresh(key, c.maxAge(interval)); ok {
		return v, nil
	}
	candles, err := c.Source.Candles(ctx, coin, interval, bars)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, candles)
	return candles, nil
}

// Purge drops entries older than an hour.
func (c *CachedSource) Purge() int {
	return c.cache.Cleanup(time.Hour)
}
