package services

import (
	"context"
	"time"

	"sui-buybot/shared/logger"
)

// Supervise runs fn, restarting it if it panics or returns before the
// context is cancelled. Long-lived loops (ingestion, dispatch) run under a
// supervisor so one bad event cannot take the process down.
func Supervise(ctx context.Context, name string, log *logger.Logger, fn func(ctx context.Context)) {
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("Loop panicked, restarting", "loop", name, "panic", r)
				}
			}()
			fn(ctx)
		}()
		if ctx.Err() != nil {
			return
		}
		log.Warn("Loop exited unexpectedly, restarting", "loop", name)
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}
