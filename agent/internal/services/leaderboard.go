package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sui-buybot/agent/internal/format"
	"sui-buybot/agent/internal/models"
	"sui-buybot/shared/logger"
)

type volumeSample struct {
	usd float64
	at  time.Time
}

type tokenWindow struct {
	symbol    string
	marketCap float64
	price     float64
	samples   []volumeSample
}

// Leaderboard keeps a true sliding 30-minute volume window per token and
// periodically publishes a pinned ranking to the trending channel. Samples
// older than the window are pruned on every read, so the sums never grow
// without bound.
type Leaderboard struct {
	boosts    *BoostRegistry
	transport DeliveryTransport
	channel   string
	window    time.Duration
	topN      int
	log       *logger.Logger

	mu     sync.Mutex
	tokens map[string]*tokenWindow

	now func() time.Time
}

func NewLeaderboard(boosts *BoostRegistry, transport DeliveryTransport, channel string, window time.Duration, topN int, log *logger.Logger) *Leaderboard {
	if topN <= 0 {
		topN = 10
	}
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &Leaderboard{
		boosts:    boosts,
		transport: transport,
		channel:   channel,
		window:    window,
		topN:      topN,
		log:       log,
		tokens:    map[string]*tokenWindow{},
		now:       time.Now,
	}
}

// Record adds one buy's volume to the token's window.
func (l *Leaderboard) Record(buy models.Buy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tw, ok := l.tokens[buy.TokenAddress]
	if !ok {
		tw = &tokenWindow{}
		l.tokens[buy.TokenAddress] = tw
	}
	if buy.Symbol != "" {
		tw.symbol = buy.Symbol
	}
	// Last-writer-wins: the newest buy carries the freshest market data.
	if buy.MarketCap > 0 {
		tw.marketCap = buy.MarketCap
	}
	if buy.UnitPrice > 0 {
		tw.price = buy.UnitPrice
	}
	tw.samples = append(tw.samples, volumeSample{usd: buy.UsdAmount, at: buy.Timestamp})
}

// prune drops samples older than the window and removes empty tokens.
// Caller holds l.mu.
func (l *Leaderboard) prune(cutoff time.Time) {
	for token, tw := range l.tokens {
		kept := tw.samples[:0]
		for _, s := range tw.samples {
			if s.at.After(cutoff) {
				kept = append(kept, s)
			}
		}
		tw.samples = kept
		if len(tw.samples) == 0 {
			delete(l.tokens, token)
		}
	}
}

// Snapshot returns the current top-N ranking: windowed volume plus boost
// score, descending, ties broken by token address for determinism.
func (l *Leaderboard) Snapshot() []format.LeaderboardRow {
	now := l.now()

	l.mu.Lock()
	l.prune(now.Add(-l.window))
	rows := make([]format.LeaderboardRow, 0, len(l.tokens))
	for token, tw := range l.tokens {
		var volume float64
		for _, s := range tw.samples {
			volume += s.usd
		}
		rows = append(rows, format.LeaderboardRow{
			TokenAddress: token,
			Symbol:       tw.symbol,
			VolumeUSD:    volume,
			MarketCap:    tw.marketCap,
			Price:        tw.price,
		})
	}
	l.mu.Unlock()

	for i := range rows {
		rows[i].Score = rows[i].VolumeUSD + l.boosts.BoostScore(rows[i].TokenAddress)
		rows[i].Boosted = l.boosts.IsBoosted(rows[i].TokenAddress, now)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].TokenAddress < rows[j].TokenAddress
	})
	if len(rows) > l.topN {
		rows = rows[:l.topN]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// RunCycle renders and publishes one summary, replacing the previously
// pinned one. Publish failures are logged and never stop the next cycle.
func (l *Leaderboard) RunCycle(ctx context.Context) {
	rows := l.Snapshot()
	message := format.Leaderboard(rows)

	if err := l.transport.UnpinPrevious(ctx, l.channel); err != nil {
		l.log.Warn("Unpinning previous summary failed", "channel", l.channel, "error", err)
	}
	if err := l.transport.PinSummary(ctx, l.channel, message); err != nil {
		l.log.Error("Publishing leaderboard summary failed", "channel", l.channel, "error", err)
		return
	}
	l.log.Info("Leaderboard summary published", "channel", l.channel, "tokens", len(rows))
}

// cronLogger adapts the app logger to the scheduler's interface.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(keysAndValues, "error", err)...)
}

// Start schedules the aggregation cycle on the window interval and returns
// the running scheduler. Stop it via cron.Stop on shutdown. A panicking
// cycle is recovered and the next interval still fires.
func (l *Leaderboard) Start(ctx context.Context) (*cron.Cron, error) {
	scheduler := cron.New(cron.WithChain(cron.Recover(cronLogger{log: l.log})))
	_, err := scheduler.AddFunc("@every "+l.window.String(), func() { l.RunCycle(ctx) })
	if err != nil {
		return nil, err
	}
	scheduler.Start()
	return scheduler, nil
}
