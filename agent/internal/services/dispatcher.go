package services

import (
	"context"
	"sync"
	"time"

	"sui-buybot/agent/internal/format"
	"sui-buybot/agent/internal/models"
	"sui-buybot/shared/logger"
	"sui-buybot/shared/notifications"
)

// SubscriptionResolver returns the destinations tracking a token. An empty
// list is a valid answer, not an error.
type SubscriptionResolver interface {
	Resolve(ctx context.Context, tokenAddress string) ([]models.DestinationConfig, error)
}

// DeliveryTransport sends rendered messages to chats and manages the pinned
// trending summary.
type DeliveryTransport interface {
	Deliver(ctx context.Context, chatID int64, mediaFileID string, message string) error
	Broadcast(ctx context.Context, channel string, message string) error
	PinSummary(ctx context.Context, channel string, message string) error
	UnpinPrevious(ctx context.Context, channel string) error
}

// BuyAuditor records processed buys for the audit trail.
type BuyAuditor interface {
	Record(ctx context.Context, buy models.Buy) error
}

// FeedPublisher mirrors normalized buys onto an external feed.
type FeedPublisher interface {
	Publish(ctx context.Context, buy models.Buy) error
}

// DispatcherOptions are the delivery tunables.
type DispatcherOptions struct {
	TrendingChannel string
	TrendingMinUSD  float64
	WorkerPoolSize  int
	MaxAttempts     int
	RetryDelay      time.Duration
}

// Dispatcher fans one Buy out to every qualifying destination. Destinations
// are independent: a failure on one never blocks or cancels the others, and
// the fan-out runs through a bounded worker pool so a slow chat cannot
// serialize the rest.
type Dispatcher struct {
	resolver  SubscriptionResolver
	transport DeliveryTransport
	boosts    *BoostRegistry
	auditor   BuyAuditor
	feed      FeedPublisher
	opts      DispatcherOptions
	log       *logger.Logger

	workers  chan struct{}
	inflight sync.WaitGroup
	sleep    func(ctx context.Context, d time.Duration)
}

func NewDispatcher(resolver SubscriptionResolver, transport DeliveryTransport, boosts *BoostRegistry, auditor BuyAuditor, feed FeedPublisher, opts DispatcherOptions, log *logger.Logger) *Dispatcher {
	if opts.WorkerPoolSize <= 0 {
		opts.WorkerPoolSize = 10
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	return &Dispatcher{
		resolver:  resolver,
		transport: transport,
		boosts:    boosts,
		auditor:   auditor,
		feed:      feed,
		opts:      opts,
		log:       log,
		workers:   make(chan struct{}, opts.WorkerPoolSize),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Dispatch qualifies one buy and enqueues its deliveries onto the shared
// worker pool. It returns once everything is enqueued, so a destination
// stuck in retry backoff never delays the next buy; Drain waits for
// deliveries still in flight.
func (d *Dispatcher) Dispatch(ctx context.Context, buy models.Buy) {
	if d.auditor != nil {
		if err := d.auditor.Record(ctx, buy); err != nil {
			d.log.Warn("Buy audit insert failed", "txHash", buy.TxHash, "error", err)
		}
	}
	if d.feed != nil {
		if err := d.feed.Publish(ctx, buy); err != nil {
			d.log.Warn("Buy feed publish failed", "txHash", buy.TxHash, "error", err)
		}
	}

	destinations, err := d.resolver.Resolve(ctx, buy.TokenAddress)
	if err != nil {
		d.log.Error("Destination lookup failed", "token", buy.TokenAddress, "error", err)
		destinations = nil
	}

	boosted := d.boosts.IsBoostedNow(buy.TokenAddress)

	for _, dest := range destinations {
		if !dest.Active || buy.UsdAmount < dest.MinBuyUSD {
			continue
		}
		dest := dest
		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			d.withWorker(ctx, func() {
				message := format.Alert(buy, dest, d.opts.TrendingChannel)
				d.deliverWithRetry(ctx, dest, message, buy.TxHash)
			})
		}()
	}

	// Boosted tokens hit the trending channel regardless of buy size.
	if d.opts.TrendingChannel != "" && (buy.UsdAmount >= d.opts.TrendingMinUSD || boosted) {
		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			d.withWorker(ctx, func() {
				dest := models.DestinationConfig{
					TokenAddress: buy.TokenAddress,
					TokenName:    buy.Symbol,
					TokenSymbol:  buy.Symbol,
					Emoji:        "🔥",
					BuyStep:      d.opts.TrendingMinUSD / 10,
					Active:       true,
				}
				message := format.Alert(buy, dest, "")
				if err := d.transport.Broadcast(ctx, d.opts.TrendingChannel, message); err != nil {
					d.log.Warn("Trending broadcast failed",
						"channel", d.opts.TrendingChannel, "txHash", buy.TxHash, "error", err)
				}
			})
		}()
	}
}

// Drain blocks until every enqueued delivery has finished or given up.
func (d *Dispatcher) Drain() {
	d.inflight.Wait()
}

func (d *Dispatcher) withWorker(ctx context.Context, fn func()) {
	select {
	case d.workers <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-d.workers }()
	fn()
}

// deliverWithRetry attempts delivery up to MaxAttempts times for transient
// failures. Permanent failures stop immediately; the destination is simply
// skipped for this event.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, dest models.DestinationConfig, message, txHash string) {
	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		err := d.transport.Deliver(ctx, dest.ChatID, dest.MediaFileID, message)
		if err == nil {
			return
		}
		lastErr = err
		if notifications.IsPermanent(err) {
			d.log.Warn("Permanent delivery failure, skipping destination",
				"chatID", dest.ChatID, "txHash", txHash, "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if attempt < d.opts.MaxAttempts {
			delay := d.opts.RetryDelay
			if after := notifications.RetryAfter(err); after > delay {
				delay = after
			}
			d.sleep(ctx, delay)
		}
	}
	d.log.Warn("Delivery failed after retries, dropping for this destination",
		"chatID", dest.ChatID, "txHash", txHash, "attempts", d.opts.MaxAttempts, "error", lastErr)
}

// Run consumes normalized buys until the channel closes or ctx is
// cancelled. Each buy is first recorded into the rolling volume window,
// then fanned out. Deliveries run under deliverCtx, not ctx, so in-flight
// sends can finish during shutdown after intake has stopped.
func (d *Dispatcher) Run(ctx, deliverCtx context.Context, in <-chan models.Buy, window *Leaderboard) {
	for {
		select {
		case <-ctx.Done():
			return
		case buy, ok := <-in:
			if !ok {
				return
			}
			if window != nil {
				window.Record(buy)
			}
			d.Dispatch(deliverCtx, buy)
		}
	}
}
