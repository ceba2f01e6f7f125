package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/osmanmakhtoom/url-shortener/internal/cache"
	"github.com/osmanmakhtoom/url-shortener/internal/models"
)

// VisitCounter is the slice of the cache client the visit service needs.
type VisitCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// Publisher sends a message to a named durable queue.
type Publisher interface {
	Publish(ctx context.Context, queueName string, v any) error
}

// VisitStore reads persisted visit detail records.
type VisitStore interface {
	CountByURL(ctx context.Context, urlID int64) (int64, error)
}

// VisitService records visits without ever blocking on the durable store.
// Each visit takes two independently fault-tolerant steps: an atomic cache
// increment and a queue publish. The increment feeds the counter sync worker
// and the message feeds the visit worker; the two reconcile independently.
type VisitService struct {
	counter   VisitCounter
	publisher Publisher
	visits    VisitStore
	queueName string
	logger    *slog.Logger
}

func NewVisitService(
	counter VisitCounter,
	publisher Publisher,
	visits VisitStore,
	queueName string,
	logger *slog.Logger,
) *VisitService {
	return &VisitService{
		counter:   counter,
		publisher: publisher,
		visits:    visits,
		queueName: queueName,
		logger:    logger,
	}
}

// Record notes that shortCode was visited. It is fire-and-forget: failures
// on either step are logged and swallowed. When the queue is unreachable the
// aggregate counter still reaches durable storage through the counter sync
// worker, while the per-visit detail record is dropped; that asymmetry is
// accepted, trading strict detail accuracy for throughput.
func (s *VisitService) Record(ctx context.Context, shortCode string, ip *string) {
	if _, err := s.counter.Incr(ctx, cache.VisitsKey(shortCode)); err != nil {
		s.logger.Warn("failed to increment visit counter",
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	}

	msg := models.VisitMessage{
		ShortCode: shortCode,
		IP:        ip,
		Timestamp: time.Now().UTC(),
	}

	if err := s.publisher.Publish(ctx, s.queueName, msg); err != nil {
		s.logger.Warn("failed to publish visit message, visit detail dropped",
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	}
}

// CountForURL returns the number of persisted visit records for a URL.
func (s *VisitService) CountForURL(ctx context.Context, urlID int64) (int64, error) {
	const op = "service.VisitService.CountForURL"

	count, err := s.visits.CountByURL(ctx, urlID)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to count visits: %w", op, err)
	}

	return count, nil
}
