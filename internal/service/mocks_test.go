package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/osmanmakhtoom/url-shortener/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockURLRepository struct {
	mock.Mock
}

func (m *MockURLRepository) Create(ctx context.Context, shortCode, originalURL string) (*models.URL, error) {
	args := m.Called(ctx, shortCode, originalURL)

	var url *models.URL
	if v, ok := args.Get(0).(*models.URL); ok {
		url = v
	}

	return url, args.Error(1)
}

func (m *MockURLRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	args := m.Called(ctx, shortCode)

	var url *models.URL
	if v, ok := args.Get(0).(*models.URL); ok {
		url = v
	}

	return url, args.Error(1)
}

func (m *MockURLRepository) GetByOriginalURL(ctx context.Context, originalURL string) (*models.URL, error) {
	args := m.Called(ctx, originalURL)

	var url *models.URL
	if v, ok := args.Get(0).(*models.URL); ok {
		url = v
	}

	return url, args.Error(1)
}

func (m *MockURLRepository) SoftDelete(ctx context.Context, shortCode string) error {
	args := m.Called(ctx, shortCode)
	return args.Error(0)
}

func (m *MockURLRepository) Restore(ctx context.Context, shortCode string) (*models.URL, error) {
	args := m.Called(ctx, shortCode)

	var url *models.URL
	if v, ok := args.Get(0).(*models.URL); ok {
		url = v
	}

	return url, args.Error(1)
}

type MockLookupCache struct {
	mock.Mock
}

func (m *MockLookupCache) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockLookupCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

type MockVisitCounter struct {
	mock.Mock
}

func (m *MockVisitCounter) Incr(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, queueName string, v any) error {
	args := m.Called(ctx, queueName, v)
	return args.Error(0)
}

type MockVisitStore struct {
	mock.Mock
}

func (m *MockVisitStore) CountByURL(ctx context.Context, urlID int64) (int64, error) {
	args := m.Called(ctx, urlID)
	return args.Get(0).(int64), args.Error(1)
}

// recordingGenerator captures the length requested on each call so tests
// can assert how the collision retry loop grows the candidate length.
type recordingGenerator struct {
	lengths []int
	code    string
	err     error
}

func (g *recordingGenerator) Generate(length int) (string, error) {
	g.lengths = append(g.lengths, length)
	if g.err != nil {
		return "", g.err
	}
	return g.code, nil
}
