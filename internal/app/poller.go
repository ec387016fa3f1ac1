package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/five82/haikuplus/internal/haiku"
	"github.com/five82/haikuplus/internal/state"
)

const (
	defaultPollInterval = 10 * time.Second
	maxBackoff          = 30 * time.Second
)

// StartPoller launches a background goroutine that refreshes the stream for
// the store's current mode. Consecutive failures back off exponentially up
// to maxBackoff. It returns immediately.
func StartPoller(ctx context.Context, store *state.Store, api haiku.API, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			refresh(ctx, store, api, logger)
			timer.Reset(calculateBackoff(store.Snapshot().ConsecutiveFailures, interval))
		}
	}()
}

// calculateBackoff doubles base for each consecutive failure, capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	backoff := base
	for i := 0; i < failures; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}

func refresh(ctx context.Context, store *state.Store, api haiku.API, logger *slog.Logger) {
	mode := store.Mode()
	stream, err := api.FetchStream(ctx, mode)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		store.Update(mode, nil, err)
		logger.Warn("stream poll failed", "mode", mode.String(), "error", err)
		return
	}
	store.Update(mode, stream, nil)
}
