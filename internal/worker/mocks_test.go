package worker

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/osmanmakhtoom/url-shortener/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockURLResolver struct {
	mock.Mock
}

func (m *MockURLResolver) Resolve(ctx context.Context, shortCode string) (*models.URL, error) {
	args := m.Called(ctx, shortCode)

	var url *models.URL
	if v, ok := args.Get(0).(*models.URL); ok {
		url = v
	}

	return url, args.Error(1)
}

type MockVisitStore struct {
	mock.Mock
}

func (m *MockVisitStore) CreateBatch(ctx context.Context, visits []models.Visit) error {
	args := m.Called(ctx, visits)
	return args.Error(0)
}

type MockCounterCache struct {
	mock.Mock
}

func (m *MockCounterCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	args := m.Called(ctx, pattern)

	var keys []string
	if v, ok := args.Get(0).([]string); ok {
		keys = v
	}

	return keys, args.Error(1)
}

func (m *MockCounterCache) GetDel(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

type MockURLStore struct {
	mock.Mock
}

func (m *MockURLStore) AddVisitCount(ctx context.Context, id, delta int64) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

// stubURLResolver resolves every short code to the same URL without the
// bookkeeping overhead of a recording mock.
type stubURLResolver struct {
	url *models.URL
}

func (s *stubURLResolver) Resolve(context.Context, string) (*models.URL, error) {
	return s.url, nil
}

// toggleVisitStore fails every insert while err is set and counts the rows
// it accepts once it is cleared.
type toggleVisitStore struct {
	err      error
	inserted int
}

func (s *toggleVisitStore) CreateBatch(_ context.Context, visits []models.Visit) error {
	if s.err != nil {
		return s.err
	}
	s.inserted += len(visits)
	return nil
}

// stubConsumer replays canned deliveries through the handler and returns.
type stubConsumer struct {
	deliveries [][]byte
	connectErr error
	consumeErr error
}

func (c *stubConsumer) Connect(_ context.Context) error {
	return c.connectErr
}

func (c *stubConsumer) Consume(ctx context.Context, _ string, handler func(context.Context, []byte) error) error {
	for _, d := range c.deliveries {
		if err := handler(ctx, d); err != nil {
			return err
		}
	}
	return c.consumeErr
}
