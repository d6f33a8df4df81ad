package services

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"sui-buybot/agent/internal/events"
	"sui-buybot/shared/logger"
)

const (
	reconnectBase = 2 * time.Second
	reconnectCap  = 30 * time.Second
	readDeadline  = 90 * time.Second
	pingInterval  = 30 * time.Second
)

// Ingestor owns the websocket subscription to the Sui event stream. It
// reconnects with jittered exponential backoff, re-issues every subscription
// after a reconnect, and pushes decoded events onto a bounded channel. A
// full channel blocks the read loop rather than dropping events; duplicates
// caused by reconnect replay are handled downstream by tx-hash dedup.
type Ingestor struct {
	wssURL   string
	packages []string
	out      chan *events.RawEvent
	log      *logger.Logger
}

func NewIngestor(wssURL string, packages []string, queueCapacity int, log *logger.Logger) *Ingestor {
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}
	return &Ingestor{
		wssURL:   wssURL,
		packages: packages,
		out:      make(chan *events.RawEvent, queueCapacity),
		log:      log,
	}
}

// Events is the stream of decoded raw events. It stays open across Run
// restarts; consumers stop on their own context.
func (i *Ingestor) Events() <-chan *events.RawEvent {
	return i.out
}

// Run drives the connect/read/reconnect loop until the context is
// cancelled. Malformed frames are logged and skipped, never fatal. Run is
// restartable: a supervisor may call it again after a panic.
func (i *Ingestor) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if attempt > 0 {
			delay := backoffDelay(attempt)
			i.log.Info("Reconnecting to event stream", "attempt", attempt, "delay", delay.String())
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		attempt++

		conn, err := i.connect(ctx)
		if err != nil {
			i.log.Warn("Event stream connection failed", "url", i.wssURL, "error", err)
			continue
		}
		i.log.Info("Event stream connected", "url", i.wssURL, "packages", len(i.packages))
		attempt = 0

		i.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		attempt = 1
	}
}

// backoffDelay is exponential from the base with full jitter, capped.
func backoffDelay(attempt int) time.Duration {
	max := reconnectBase << uint(attempt-1)
	if max > reconnectCap || max <= 0 {
		max = reconnectCap
	}
	return time.Duration(rand.Int63n(int64(max)) + 1)
}

func (i *Ingestor) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, i.wssURL, nil)
	if err != nil {
		return nil, err
	}
	if err := i.subscribe(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// subscribe issues one sui_subscribeEvent per tracked launchpad package.
func (i *Ingestor) subscribe(conn *websocket.Conn) error {
	for n, pkg := range i.packages {
		// The Package filter matches every event the contract emits;
		// classification happens downstream in the normalizer.
		msg := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      n + 1,
			"method":  "sui_subscribeEvent",
			"params": []interface{}{
				map[string]interface{}{"Package": pkg},
			},
		}
		body, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return err
		}
	}
	return nil
}

func (i *Ingestor) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock the blocking read when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				i.log.Warn("Event stream read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		raw, err := events.ParseNotification(data)
		if err != nil {
			i.log.Warn("Dropping malformed event frame", "error", err)
			continue
		}
		if raw == nil {
			continue
		}

		select {
		case i.out <- raw:
		case <-ctx.Done():
			return
		}
	}
}
