package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sui-buybot/agent/internal/models"
	"sui-buybot/shared/notifications"
)

type staticResolver struct {
	destinations []models.DestinationConfig
	err          error
}

func (r *staticResolver) Resolve(ctx context.Context, tokenAddress string) ([]models.DestinationConfig, error) {
	return r.destinations, r.err
}

// recordingTransport captures deliveries and can be scripted to fail per
// chat ID. onDeliver fires at the start of every Deliver call; a non-nil
// blockOn holds the delivery open until the channel closes.
type recordingTransport struct {
	mu         sync.Mutex
	delivered  map[int64]int
	broadcasts []string
	pinned     []string
	unpins     int
	failWith   map[int64]error
	failCount  map[int64]int
	pinErr     error
	onDeliver  func()
	blockOn    chan struct{}
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{
		delivered: map[int64]int{},
		failWith:  map[int64]error{},
		failCount: map[int64]int{},
	}
}

func (f *recordingTransport) Deliver(ctx context.Context, chatID int64, mediaFileID, message string) error {
	if f.onDeliver != nil {
		f.onDeliver()
	}
	if f.blockOn != nil {
		<-f.blockOn
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failWith[chatID]; ok {
		f.failCount[chatID]++
		return err
	}
	f.delivered[chatID]++
	return nil
}

func (f *recordingTransport) Broadcast(ctx context.Context, channel, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, message)
	return nil
}

func (f *recordingTransport) PinSummary(ctx context.Context, channel, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pinErr != nil {
		return f.pinErr
	}
	f.pinned = append(f.pinned, message)
	return nil
}

func (f *recordingTransport) UnpinPrevious(ctx context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpins++
	return nil
}

func (f *recordingTransport) deliveries(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered[chatID]
}

func (f *recordingTransport) broadcastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.broadcasts)
}

func newTestDispatcher(t *testing.T, resolver SubscriptionResolver, transport DeliveryTransport, boosts *BoostRegistry) *Dispatcher {
	t.Helper()
	if boosts == nil {
		boosts = NewBoostRegistry(nil, 10, testLogger(t))
	}
	d := NewDispatcher(resolver, transport, boosts, nil, nil, DispatcherOptions{
		TrendingChannel: "@trending",
		TrendingMinUSD:  200,
		WorkerPoolSize:  4,
		MaxAttempts:     3,
		RetryDelay:      time.Millisecond,
	}, testLogger(t))
	d.sleep = func(ctx context.Context, _ time.Duration) {}
	return d
}

func dest(chatID int64, minBuy float64, active bool) models.DestinationConfig {
	return models.DestinationConfig{
		ChatID:       chatID,
		TokenAddress: "0xtoken",
		TokenName:    "Moon Bag",
		TokenSymbol:  "MOON",
		MinBuyUSD:    minBuy,
		BuyStep:      10,
		Emoji:        "🌕",
		Active:       active,
	}
}

func TestDispatchAppliesMinBuyThreshold(t *testing.T) {
	transport := newRecordingTransport()
	resolver := &staticResolver{destinations: []models.DestinationConfig{
		dest(1, 10.00, true),
		dest(2, 5.00, true),
	}}
	d := newTestDispatcher(t, resolver, transport, nil)

	d.Dispatch(context.Background(), models.Buy{TokenAddress: "0xtoken", UsdAmount: 9.99, TxHash: "tx"})
	d.Drain()

	assert.Zero(t, transport.deliveries(1), "9.99 is below a 10.00 threshold")
	assert.Equal(t, 1, transport.deliveries(2))

	d.Dispatch(context.Background(), models.Buy{TokenAddress: "0xtoken", UsdAmount: 10.00, TxHash: "tx2"})
	d.Drain()
	assert.Equal(t, 1, transport.deliveries(1), "threshold is inclusive")
}

func TestDispatchSkipsInactiveDestinations(t *testing.T) {
	transport := newRecordingTransport()
	resolver := &staticResolver{destinations: []models.DestinationConfig{
		dest(1, 1, false),
		dest(2, 1, true),
	}}
	d := newTestDispatcher(t, resolver, transport, nil)

	d.Dispatch(context.Background(), models.Buy{TokenAddress: "0xtoken", UsdAmount: 50, TxHash: "tx"})
	d.Drain()

	assert.Zero(t, transport.deliveries(1), "inactive destinations never receive deliveries")
	assert.Equal(t, 1, transport.deliveries(2))
}

func TestDispatchTrendingQualification(t *testing.T) {
	transport := newRecordingTransport()
	d := newTestDispatcher(t, &staticResolver{}, transport, nil)

	d.Dispatch(context.Background(), models.Buy{TokenAddress: "0xtoken", UsdAmount: 199.99, TxHash: "tx1"})
	d.Drain()
	assert.Zero(t, transport.broadcastCount())

	d.Dispatch(context.Background(), models.Buy{TokenAddress: "0xtoken", UsdAmount: 200, TxHash: "tx2"})
	d.Drain()
	assert.Equal(t, 1, transport.broadcastCount())
}

func TestDispatchBoostBypassesTrendingFloor(t *testing.T) {
	transport := newRecordingTransport()
	boosts := NewBoostRegistry(nil, 10, testLogger(t))
	_, err := boosts.Activate(context.Background(), "0xtoken", time.Hour, 15, "0xowner")
	require.NoError(t, err)
	d := newTestDispatcher(t, &staticResolver{}, transport, boosts)

	d.Dispatch(context.Background(), models.Buy{TokenAddress: "0xtoken", UsdAmount: 1, TxHash: "tx"})
	d.Drain()

	assert.Equal(t, 1, transport.broadcastCount(),
		"a boosted token trends regardless of buy size")
}

func TestDispatchIsolatesDestinationFailures(t *testing.T) {
	transport := newRecordingTransport()
	transport.failWith[1] = &notifications.PermanentError{Err: errors.New("chat not found")}
	resolver := &staticResolver{destinations: []models.DestinationConfig{
		dest(1, 1, true),
		dest(2, 1, true),
		dest(3, 1, true),
	}}
	d := newTestDispatcher(t, resolver, transport, nil)

	d.Dispatch(context.Background(), models.Buy{TokenAddress: "0xtoken", UsdAmount: 50, TxHash: "tx"})
	d.Drain()

	assert.Equal(t, 1, transport.deliveries(2))
	assert.Equal(t, 1, transport.deliveries(3))
	transport.mu.Lock()
	assert.Equal(t, 1, transport.failCount[1], "permanent failures are not retried")
	transport.mu.Unlock()
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	transport := newRecordingTransport()
	transport.failWith[1] = &notifications.TransientError{Err: errors.New("flood wait")}
	resolver := &staticResolver{destinations: []models.DestinationConfig{dest(1, 1, true)}}
	d := newTestDispatcher(t, resolver, transport, nil)

	d.Dispatch(context.Background(), models.Buy{TokenAddress: "0xtoken", UsdAmount: 50, TxHash: "tx"})
	d.Drain()

	transport.mu.Lock()
	attempts := transport.failCount[1]
	transport.mu.Unlock()
	assert.Equal(t, 3, attempts, "transient failures retry up to the attempt cap")
}

func TestDispatchSurvivesResolverErrors(t *testing.T) {
	transport := newRecordingTransport()
	resolver := &staticResolver{err: errors.New("database down")}
	d := newTestDispatcher(t, resolver, transport, nil)

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), models.Buy{TokenAddress: "0xtoken", UsdAmount: 500, TxHash: "tx"})
		d.Drain()
	})
	assert.Equal(t, 1, transport.broadcastCount(),
		"trending still works when destination lookup fails")
}

func TestDispatchStuckDestinationDoesNotStallLaterBuys(t *testing.T) {
	transport := newRecordingTransport()
	transport.failWith[1] = &notifications.TransientError{Err: errors.New("flood wait")}
	resolver := &staticResolver{destinations: []models.DestinationConfig{
		dest(1, 1, true),
		dest(2, 1, true),
	}}
	d := newTestDispatcher(t, resolver, transport, nil)
	gate := make(chan struct{})
	d.sleep = func(ctx context.Context, _ time.Duration) {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	d.Dispatch(context.Background(), models.Buy{TokenAddress: "0xtoken", UsdAmount: 50, TxHash: "tx1"})
	d.Dispatch(context.Background(), models.Buy{TokenAddress: "0xtoken", UsdAmount: 50, TxHash: "tx2"})

	require.Eventually(t, func() bool { return transport.deliveries(2) == 2 },
		time.Second, 5*time.Millisecond,
		"a destination stuck in retry backoff must not delay other deliveries")

	close(gate)
	d.Drain()
}

func TestRunFinishesInFlightDeliveriesAfterIntakeStops(t *testing.T) {
	transport := newRecordingTransport()
	started := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	transport.onDeliver = func() { once.Do(func() { close(started) }) }
	transport.blockOn = gate

	resolver := &staticResolver{destinations: []models.DestinationConfig{dest(1, 1, true)}}
	d := newTestDispatcher(t, resolver, transport, nil)

	in := make(chan models.Buy, 1)
	in <- models.Buy{TokenAddress: "0xtoken", UsdAmount: 50, TxHash: "tx"}

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		d.Run(loopCtx, context.Background(), in, nil)
	}()

	<-started
	cancelLoop()
	<-loopDone

	close(gate)
	d.Drain()
	assert.Equal(t, 1, transport.deliveries(1),
		"a delivery already in flight completes after intake shuts down")
}
