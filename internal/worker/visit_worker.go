package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/osmanmakhtoom/url-shortener/internal/models"
)

const (
	// batchSize is the buffer level that triggers a flush.
	batchSize = 200
	// maxBufferSize is the hard cap forcing a flush before more messages
	// are accepted.
	maxBufferSize = 1000
	// shutdownTimeout bounds the final flush so shutdown is never blocked
	// indefinitely by a hung dependency.
	shutdownTimeout = 10 * time.Second
)

// Consumer is the slice of the queue client the visit worker needs.
type Consumer interface {
	Connect(ctx context.Context) error
	Consume(ctx context.Context, queueName string, handler func(context.Context, []byte) error) error
}

// URLResolver resolves a short code to its URL.
type URLResolver interface {
	Resolve(ctx context.Context, shortCode string) (*models.URL, error)
}

// VisitStore persists visit records in bulk.
type VisitStore interface {
	CreateBatch(ctx context.Context, visits []models.Visit) error
}

// VisitWorker consumes visit messages from the queue, buffers them in memory
// and flushes them to the durable store as bulk inserts. A flush happens when
// the buffer reaches batchSize, when the periodic timer fires with a
// non-empty buffer, or when the buffer hits maxBufferSize. Delivery is
// at-least-once: a failed bulk insert pushes the whole snapshot back for the
// next cycle and may produce duplicates, which is acceptable for analytics.
type VisitWorker struct {
	consumer  Consumer
	resolver  URLResolver
	visits    VisitStore
	queueName string
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	buffer []models.VisitMessage
}

func NewVisitWorker(
	consumer Consumer,
	resolver URLResolver,
	visits VisitStore,
	queueName string,
	interval time.Duration,
	logger *slog.Logger,
) *VisitWorker {
	return &VisitWorker{
		consumer:  consumer,
		resolver:  resolver,
		visits:    visits,
		queueName: queueName,
		interval:  interval,
		logger:    logger,
	}
}

// Run connects to the queue and consumes visit messages until ctx is
// canceled, then flushes whatever is still buffered. A failed connection is
// fatal to the worker after the client's retry budget is spent.
func (w *VisitWorker) Run(ctx context.Context) error {
	const op = "worker.VisitWorker.Run"

	if err := w.consumer.Connect(ctx); err != nil {
		return fmt.Errorf("%s: failed to connect: %w", op, err)
	}

	w.logger.Info("visit worker started, listening for visit messages")

	tickerCtx, stopTicker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.periodicFlush(tickerCtx)
	}()

	err := w.consumer.Consume(ctx, w.queueName, w.HandleMessage)

	stopTicker()
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	w.Flush(flushCtx)

	if err != nil {
		return fmt.Errorf("%s: consumer stopped: %w", op, err)
	}

	w.logger.Info("visit worker stopped")
	return nil
}

// HandleMessage decodes and buffers one queued visit message. A message that
// fails to decode or validate is logged and discarded; it never aborts the
// consumer.
func (w *VisitWorker) HandleMessage(ctx context.Context, body []byte) error {
	var msg models.VisitMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Error("failed to decode visit message",
			slog.String("raw", string(body)),
			slog.Any("err", err),
		)
		return nil
	}

	if err := msg.Validate(); err != nil {
		w.logger.Error("invalid visit message",
			slog.String("raw", string(body)),
			slog.Any("err", err),
		)
		return nil
	}

	w.mu.Lock()
	if len(w.buffer) >= maxBufferSize {
		w.mu.Unlock()
		w.logger.Warn("buffer full, forcing flush")
		w.Flush(ctx)
		w.mu.Lock()
	}

	w.buffer = append(w.buffer, msg)
	full := len(w.buffer) >= batchSize
	w.mu.Unlock()

	if full {
		w.Flush(ctx)
	}

	return nil
}

func (w *VisitWorker) periodicFlush(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Flush(ctx)
		}
	}
}

// Flush snapshots the buffer and bulk-inserts the visits it resolves.
// Messages whose short code no longer resolves are counted and dropped. On
// insert failure the entire snapshot is pushed back onto the buffer.
func (w *VisitWorker) Flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return
	}
	snapshot := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	visits := make([]models.Visit, 0, len(snapshot))
	dropped := 0

	for _, msg := range snapshot {
		url, err := w.resolver.Resolve(ctx, msg.ShortCode)
		if err != nil {
			w.logger.Warn("url not found for visit message, dropping",
				slog.String("short_code", msg.ShortCode),
			)
			dropped++
			continue
		}

		visits = append(visits, models.Visit{
			URLID:     url.ID,
			IPAddress: msg.IP,
			VisitedAt: msg.Timestamp,
		})
	}

	if len(visits) == 0 {
		if dropped > 0 {
			w.logger.Warn("no valid visits to flush",
				slog.Int("dropped", dropped),
				slog.Int("total", len(snapshot)),
			)
		}
		return
	}

	if err := w.visits.CreateBatch(ctx, visits); err != nil {
		w.logger.Error("failed to flush visits, keeping batch for retry",
			slog.Int("count", len(visits)),
			slog.Any("err", err),
		)

		w.mu.Lock()
		// The snapshot goes back in front of anything buffered meanwhile,
		// so retried messages flush first on the next cycle.
		w.buffer = append(snapshot, w.buffer...)
		w.mu.Unlock()
		return
	}

	w.logger.Info("flushed visits",
		slog.Int("count", len(visits)),
		slog.Int("dropped", dropped),
		slog.Int("total", len(snapshot)),
	)
}

// Buffered reports the number of messages currently buffered.
func (w *VisitWorker) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}
