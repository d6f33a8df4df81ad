package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sui-buybot/agent/internal/models"
	"sui-buybot/shared/logger"
)

// fakeProvider is a scriptable MarketDataProvider for cache tests.
type fakeProvider struct {
	mu         sync.Mutex
	fetchCalls int32
	rateCalls  int32
	info       models.TokenMarketInfo
	fetchErr   error
	rate       float64
	rateErr    error
	fetchDelay time.Duration
}

func (f *fakeProvider) Fetch(ctx context.Context, tokenAddress string) (models.TokenMarketInfo, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.fetchDelay > 0 {
		time.Sleep(f.fetchDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return models.TokenMarketInfo{}, f.fetchErr
	}
	info := f.info
	info.TokenAddress = tokenAddress
	return info, nil
}

func (f *fakeProvider) FetchSuiUsdRate(ctx context.Context) (float64, error) {
	atomic.AddInt32(&f.rateCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate, f.rateErr
}

func (f *fakeProvider) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.Config{Level: "error", Environment: "test"})
	require.NoError(t, err)
	return log
}

func TestMarketCacheServesFreshEntryWithoutRefetch(t *testing.T) {
	provider := &fakeProvider{info: models.TokenMarketInfo{Symbol: "MOON", Price: 0.5}}
	cache := NewMarketCache(provider, 5*time.Minute, testLogger(t))

	first, err := cache.Get(context.Background(), "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, "MOON", first.Symbol)

	second, err := cache.Get(context.Background(), "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.fetchCalls))
}

func TestMarketCacheRefreshesAfterTTL(t *testing.T) {
	provider := &fakeProvider{info: models.TokenMarketInfo{Symbol: "MOON", Price: 0.5}}
	cache := NewMarketCache(provider, 5*time.Minute, testLogger(t))

	current := time.Now()
	cache.now = func() time.Time { return current }

	_, err := cache.Get(context.Background(), "0xtoken")
	require.NoError(t, err)

	current = current.Add(6 * time.Minute)
	_, err = cache.Get(context.Background(), "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.fetchCalls))
}

func TestMarketCacheServesStaleOnRefreshFailure(t *testing.T) {
	provider := &fakeProvider{info: models.TokenMarketInfo{Symbol: "MOON", Price: 0.5}}
	cache := NewMarketCache(provider, 5*time.Minute, testLogger(t))

	current := time.Now()
	cache.now = func() time.Time { return current }

	fresh, err := cache.Get(context.Background(), "0xtoken")
	require.NoError(t, err)

	provider.setFetchErr(errors.New("upstream down"))
	current = current.Add(10 * time.Minute)

	stale, err := cache.Get(context.Background(), "0xtoken")
	require.NoError(t, err, "a stale price beats no price")
	assert.Equal(t, fresh, stale)
}

func TestMarketCachePropagatesUnavailableWhenEmpty(t *testing.T) {
	provider := &fakeProvider{fetchErr: ErrDataUnavailable}
	cache := NewMarketCache(provider, 5*time.Minute, testLogger(t))

	_, err := cache.Get(context.Background(), "0xunknown")
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestMarketCacheCoalescesConcurrentRefreshes(t *testing.T) {
	provider := &fakeProvider{
		info:       models.TokenMarketInfo{Symbol: "MOON", Price: 0.5},
		fetchDelay: 50 * time.Millisecond,
	}
	cache := NewMarketCache(provider, 5*time.Minute, testLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), "0xtoken")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.fetchCalls),
		"concurrent callers for one key share a single upstream call")
}

func TestSuiUsdRateServesStaleOnFailure(t *testing.T) {
	provider := &fakeProvider{rate: 1.2}
	cache := NewMarketCache(provider, 5*time.Minute, testLogger(t))

	current := time.Now()
	cache.now = func() time.Time { return current }

	rate, err := cache.SuiUsdRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.2, rate)

	provider.mu.Lock()
	provider.rateErr = errors.New("upstream down")
	provider.mu.Unlock()
	current = current.Add(10 * time.Minute)

	rate, err = cache.SuiUsdRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.2, rate)
}
