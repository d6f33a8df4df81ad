package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"sui-buybot/agent/internal/models"
	"sui-buybot/shared/logger"
)

// MarketCache fronts the MarketDataProvider with a TTL cache. Concurrent
// lookups for the same token during a refresh are coalesced into one
// upstream call, and a failed refresh serves the stale entry rather than
// nothing.
type MarketCache struct {
	provider MarketDataProvider
	ttl      time.Duration
	log      *logger.Logger

	mu      sync.RWMutex
	entries map[string]models.TokenMarketInfo

	rateMu        sync.RWMutex
	rate          float64
	rateRefreshed time.Time

	group singleflight.Group

	// now is swapped out in tests.
	now func() time.Time
}

func NewMarketCache(provider MarketDataProvider, ttl time.Duration, log *logger.Logger) *MarketCache {
	return &MarketCache{
		provider: provider,
		ttl:      ttl,
		log:      log,
		entries:  map[string]models.TokenMarketInfo{},
		now:      time.Now,
	}
}

// Get returns market data for the token, refreshing from upstream when the
// cached entry is older than the TTL. When the refresh fails and a stale
// entry exists, the stale entry is returned. ErrDataUnavailable propagates
// only when there is nothing to serve at all.
func (c *MarketCache) Get(ctx context.Context, tokenAddress string) (models.TokenMarketInfo, error) {
	c.mu.RLock()
	cached, ok := c.entries[tokenAddress]
	c.mu.RUnlock()
	if ok && c.now().Sub(cached.LastRefreshed) < c.ttl {
		return cached, nil
	}

	result, err, _ := c.group.Do(tokenAddress, func() (interface{}, error) {
		// Re-check under the flight: another caller may have refreshed
		// while this one was queued behind the singleflight lock.
		c.mu.RLock()
		fresh, ok := c.entries[tokenAddress]
		c.mu.RUnlock()
		if ok && c.now().Sub(fresh.LastRefreshed) < c.ttl {
			return fresh, nil
		}

		info, err := c.provider.Fetch(ctx, tokenAddress)
		if err != nil {
			return models.TokenMarketInfo{}, err
		}
		info.LastRefreshed = c.now()
		c.mu.Lock()
		c.entries[tokenAddress] = info
		c.mu.Unlock()
		return info, nil
	})
	if err != nil {
		if ok {
			if !errors.Is(err, context.Canceled) {
				c.log.Warn("Market data refresh failed, serving stale entry",
					"token", tokenAddress, "age", c.now().Sub(cached.LastRefreshed).String(), "error", err)
			}
			return cached, nil
		}
		if errors.Is(err, ErrDataUnavailable) {
			return models.TokenMarketInfo{}, ErrDataUnavailable
		}
		return models.TokenMarketInfo{}, err
	}
	return result.(models.TokenMarketInfo), nil
}

// SuiUsdRate returns the cached SUI/USD rate, refreshing it on the same TTL
// as token entries. A failed refresh serves the last known rate.
func (c *MarketCache) SuiUsdRate(ctx context.Context) (float64, error) {
	c.rateMu.RLock()
	rate, refreshed := c.rate, c.rateRefreshed
	c.rateMu.RUnlock()
	if rate > 0 && c.now().Sub(refreshed) < c.ttl {
		return rate, nil
	}

	result, err, _ := c.group.Do("sui-usd-rate", func() (interface{}, error) {
		fresh, err := c.provider.FetchSuiUsdRate(ctx)
		if err != nil {
			return 0.0, err
		}
		c.rateMu.Lock()
		c.rate = fresh
		c.rateRefreshed = c.now()
		c.rateMu.Unlock()
		return fresh, nil
	})
	if err != nil {
		if rate > 0 {
			c.log.Warn("SUI/USD rate refresh failed, serving stale rate", "rate", rate, "error", err)
			return rate, nil
		}
		return 0, err
	}
	return result.(float64), nil
}
