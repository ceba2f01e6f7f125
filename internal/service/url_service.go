package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/osmanmakhtoom/url-shortener/internal/cache"
	"github.com/osmanmakhtoom/url-shortener/internal/database"
	"github.com/osmanmakhtoom/url-shortener/internal/models"
	"github.com/osmanmakhtoom/url-shortener/internal/shortener"
)

var (
	// ErrMaxAttemptsExceeded is returned when the maximum number of attempts
	// for generating a unique short code is exceeded.
	ErrMaxAttemptsExceeded = errors.New("maximum attempts exceeded for generating short code")
	// ErrEmptyURL is returned when the original URL is empty after trimming.
	ErrEmptyURL = errors.New("url cannot be empty")
)

// URLRepository defines the interface for working with URLs at the business logic layer.
type URLRepository interface {
	// Create inserts a new shortened URL. Returns database.ErrShortCodeExists
	// when the candidate code collides with an existing non-deleted row.
	Create(ctx context.Context, shortCode, originalURL string) (*models.URL, error)

	// GetByShortCode retrieves a non-deleted URL by its short code.
	GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error)

	// GetByOriginalURL retrieves a non-deleted URL by its original URL.
	GetByOriginalURL(ctx context.Context, originalURL string) (*models.URL, error)

	// SoftDelete marks a URL as deleted without removing the row.
	SoftDelete(ctx context.Context, shortCode string) error

	// Restore clears the soft delete marker of a URL.
	Restore(ctx context.Context, shortCode string) (*models.URL, error)
}

// LookupCache is the slice of the cache client the URL service needs.
type LookupCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// URLService allocates short codes and resolves them back to URLs using a
// cache-aside lookup over the durable store.
type URLService struct {
	repo        URLRepository
	cache       LookupCache
	gen         shortener.Generator
	codeLength  int
	maxAttempts int
	cacheTTL    time.Duration
	logger      *slog.Logger
}

// NewURLService creates a new URLService. codeLength is the starting
// candidate length and maxAttempts bounds the collision retry loop.
func NewURLService(
	repo URLRepository,
	lookupCache LookupCache,
	gen shortener.Generator,
	codeLength, maxAttempts int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *URLService {
	return &URLService{
		repo:        repo,
		cache:       lookupCache,
		gen:         gen,
		codeLength:  codeLength,
		maxAttempts: maxAttempts,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// Shorten returns a shortened URL for originalURL, creating one if needed.
// Shortening the same URL twice returns the existing row. A collision on
// insert is retried with a fresh candidate, and the candidate length grows
// by one every second failed attempt to shrink the collision space.
func (s *URLService) Shorten(ctx context.Context, originalURL string) (*models.URL, error) {
	const op = "service.URLService.Shorten"

	originalURL = strings.TrimSpace(originalURL)
	if originalURL == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyURL)
	}

	existing, err := s.repo.GetByOriginalURL(ctx, originalURL)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, database.ErrURLNotFound) {
		return nil, fmt.Errorf("%s: failed to look up original url: %w", op, err)
	}

	length := s.codeLength
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.gen.Generate(length)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		url, err := s.repo.Create(ctx, code, originalURL)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				if attempt%2 == 0 {
					length++
				}
				continue
			}

			return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		if err := s.cache.Set(ctx, cache.ShortURLKey(code), originalURL, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache short code",
				slog.String("short_code", code),
				slog.Any("err", err),
			)
		}

		return url, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxAttemptsExceeded)
}

// Resolve returns the URL behind shortCode, or database.ErrURLNotFound.
//
// The cache entry only stores the raw URL string, so even on a cache hit the
// durable store is re-queried for the authoritative row; the cache warms
// repeated lookups and never short-circuits correctness. Resolve sits on the
// read hot path and fails soft: cache errors degrade to a miss and store
// errors degrade to not-found, never to a surfaced infrastructure error.
func (s *URLService) Resolve(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "service.URLService.Resolve"

	cached, err := s.cache.Get(ctx, cache.ShortURLKey(shortCode))
	if err != nil {
		s.logger.Warn("cache lookup failed, falling back to store",
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	} else if cached != "" {
		url, err := s.repo.GetByShortCode(ctx, shortCode)
		if err != nil {
			if !errors.Is(err, database.ErrURLNotFound) {
				s.logger.Error("store lookup failed",
					slog.String("short_code", shortCode),
					slog.Any("err", err),
				)
			}
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return url, nil
	}

	url, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		if !errors.Is(err, database.ErrURLNotFound) {
			s.logger.Error("store lookup failed",
				slog.String("short_code", shortCode),
				slog.Any("err", err),
			)
		}
		return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	if err := s.cache.Set(ctx, cache.ShortURLKey(shortCode), url.OriginalURL, s.cacheTTL); err != nil {
		s.logger.Warn("failed to repopulate cache",
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	}

	return url, nil
}

// Deactivate soft deletes the URL behind shortCode. The lookup cache entry
// is left in place; resolution re-verifies the store, so a stale entry can
// never resurrect a deleted code.
func (s *URLService) Deactivate(ctx context.Context, shortCode string) error {
	const op = "service.URLService.Deactivate"

	if err := s.repo.SoftDelete(ctx, shortCode); err != nil {
		return fmt.Errorf("%s: failed to deactivate url: %w", op, err)
	}

	return nil
}

// Restore clears the soft delete marker of the URL behind shortCode.
func (s *URLService) Restore(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "service.URLService.Restore"

	url, err := s.repo.Restore(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to restore url: %w", op, err)
	}

	return url, nil
}
