package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxPoolSize = 10

// Config holds the connection and retry parameters of the cache client.
// The defaults are part of the observable behavior contract.
type Config struct {
	URL            string
	RetryAttempts  int
	RetryDelay     time.Duration
	ConnectTimeout time.Duration
	SocketTimeout  time.Duration
}

// Client wraps a shared Redis connection with bounded retries on every
// operation. After exhausting the attempts an operation returns the zero
// value along with the last error; whether that error is swallowed or
// escalated is decided by the caller.
type Client struct {
	rdb    *redis.Client
	cfg    Config
	logger *slog.Logger
}

// New connects to Redis, verifying the connection with retry and
// linearly increasing delay between attempts.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	const op = "cache.New"

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse redis url: %w", op, err)
	}

	opts.DialTimeout = cfg.ConnectTimeout
	opts.ReadTimeout = cfg.SocketTimeout
	opts.WriteTimeout = cfg.SocketTimeout
	opts.PoolSize = maxPoolSize

	c := &Client{
		rdb:    redis.NewClient(opts),
		cfg:    cfg,
		logger: logger,
	}

	for attempt := 1; attempt <= cfg.RetryAttempts; attempt++ {
		err = c.rdb.Ping(ctx).Err()
		if err == nil {
			logger.Info("cache connection established")
			return c, nil
		}

		logger.Warn("cache connection attempt failed",
			slog.Int("attempt", attempt),
			slog.Any("err", err),
		)

		if attempt < cfg.RetryAttempts {
			select {
			case <-time.After(cfg.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
}

// Get returns the value of key. A missing key is not an error: it yields
// an empty string with a nil error.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	const op = "cache.Client.Get"

	var val string
	err := c.retry(ctx, op, func() error {
		var err error
		val, err = c.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			val = ""
			return nil
		}
		return err
	})

	return val, err
}

// Set stores value under key with the given TTL. A zero ttl stores the
// key without expiration.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	const op = "cache.Client.Set"

	return c.retry(ctx, op, func() error {
		return c.rdb.Set(ctx, key, value, ttl).Err()
	})
}

// Incr atomically increments the integer value of key, creating it at 1
// if absent, and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	const op = "cache.Client.Incr"

	var val int64
	err := c.retry(ctx, op, func() error {
		var err error
		val, err = c.rdb.Incr(ctx, key).Result()
		return err
	})

	return val, err
}

// GetDel atomically reads and removes key in a single operation, so a
// concurrent increment can never be lost between the read and the delete.
// A missing key yields an empty string with a nil error.
func (c *Client) GetDel(ctx context.Context, key string) (string, error) {
	const op = "cache.Client.GetDel"

	var val string
	err := c.retry(ctx, op, func() error {
		var err error
		val, err = c.rdb.GetDel(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			val = ""
			return nil
		}
		return err
	})

	return val, err
}

// Keys returns all keys matching pattern.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	const op = "cache.Client.Keys"

	var keys []string
	err := c.retry(ctx, op, func() error {
		var err error
		keys, err = c.rdb.Keys(ctx, pattern).Result()
		return err
	})

	return keys, err
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	const op = "cache.Client.Ping"

	return c.retry(ctx, op, func() error {
		return c.rdb.Ping(ctx).Err()
	})
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	var err error

	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		c.logger.Warn("cache operation failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Any("err", err),
		)

		if attempt < c.cfg.RetryAttempts {
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			}
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
