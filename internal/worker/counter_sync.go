package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/osmanmakhtoom/url-shortener/internal/cache"
)

const (
	// maxRetries is the consecutive-failure budget of the sync loop.
	maxRetries = 3
	// retryDelay is the base pause after a failed cycle; it grows linearly
	// with the consecutive failure count.
	retryDelay = 5 * time.Second
)

// CounterCache is the slice of the cache client the sync worker needs.
type CounterCache interface {
	Keys(ctx context.Context, pattern string) ([]string, error)
	GetDel(ctx context.Context, key string) (string, error)
}

// URLStore merges drained counter deltas into the persisted visit count.
type URLStore interface {
	AddVisitCount(ctx context.Context, id int64, delta int64) error
}

// CounterSyncWorker periodically drains the visits:* counter keys and merges
// each delta into the persisted visit count. Per-key failures are logged and
// skipped so one bad key never aborts the rest of the cycle; whole-cycle
// failures escalate the backoff and halt the worker after maxRetries
// consecutive failures.
type CounterSyncWorker struct {
	cache    CounterCache
	resolver URLResolver
	urls     URLStore
	interval time.Duration
	logger   *slog.Logger
}

func NewCounterSyncWorker(
	counterCache CounterCache,
	resolver URLResolver,
	urls URLStore,
	interval time.Duration,
	logger *slog.Logger,
) *CounterSyncWorker {
	return &CounterSyncWorker{
		cache:    counterCache,
		resolver: resolver,
		urls:     urls,
		interval: interval,
		logger:   logger,
	}
}

// Run loops sleep-then-flush until ctx is canceled or the consecutive
// failure budget is spent. A successful flush resets the failure count.
// On cancellation one final bounded drain runs so counters already in the
// cache are not stranded until the next start.
func (w *CounterSyncWorker) Run(ctx context.Context) error {
	const op = "worker.CounterSyncWorker.Run"

	w.logger.Info("counter sync worker started",
		slog.Duration("interval", w.interval),
	)

	retries := 0
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := w.Flush(flushCtx); err != nil {
				w.logger.Error("final drain failed", slog.Any("err", err))
			}
			cancel()

			w.logger.Info("counter sync worker stopped")
			return nil
		case <-time.After(w.interval):
		}

		if err := w.Flush(ctx); err != nil {
			retries++
			w.logger.Error("sync cycle failed",
				slog.Int("attempt", retries),
				slog.Any("err", err),
			)

			if retries >= maxRetries {
				return fmt.Errorf("%s: consecutive failure budget exhausted: %w", op, err)
			}

			select {
			case <-time.After(retryDelay * time.Duration(retries)):
			case <-ctx.Done():
			}
			continue
		}

		retries = 0
	}
}

// Flush enumerates the visits:* keys and, for each, atomically drains the
// counter and merges the delta into the store. Draining and reading are one
// atomic operation, so an increment landing during the drain is counted in
// either the pre-drain or post-drain epoch but never lost. Malformed and
// non-positive values are skipped; counters for codes that no longer resolve
// are discarded.
func (w *CounterSyncWorker) Flush(ctx context.Context) error {
	const op = "worker.CounterSyncWorker.Flush"

	keys, err := w.cache.Keys(ctx, cache.VisitsPattern)
	if err != nil {
		return fmt.Errorf("%s: failed to list counter keys: %w", op, err)
	}
	if len(keys) == 0 {
		return nil
	}

	var synced, total int64
	for _, key := range keys {
		shortCode, ok := cache.ShortCodeFromVisitsKey(key)
		if !ok {
			continue
		}

		val, err := w.cache.GetDel(ctx, key)
		if err != nil {
			w.logger.Error("failed to drain counter",
				slog.String("key", key),
				slog.Any("err", err),
			)
			continue
		}
		if val == "" {
			continue
		}

		count, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			w.logger.Error("malformed counter value",
				slog.String("key", key),
				slog.String("value", val),
			)
			continue
		}
		if count <= 0 {
			continue
		}

		url, err := w.resolver.Resolve(ctx, shortCode)
		if err != nil {
			w.logger.Warn("url not found for counter, discarding",
				slog.String("short_code", shortCode),
				slog.Int64("count", count),
			)
			continue
		}

		if err := w.urls.AddVisitCount(ctx, url.ID, count); err != nil {
			w.logger.Error("failed to merge counter",
				slog.String("short_code", shortCode),
				slog.Int64("count", count),
				slog.Any("err", err),
			)
			continue
		}

		synced++
		total += count
	}

	if synced > 0 {
		w.logger.Info("sync cycle completed",
			slog.Int("keys", len(keys)),
			slog.Int64("synced", synced),
			slog.Int64("visits", total),
		)
	}

	return nil
}
