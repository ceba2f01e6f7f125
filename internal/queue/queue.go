package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const dialTimeout = 10 * time.Second

// Config holds the connection and retry parameters of the queue client.
// The defaults are part of the observable behavior contract.
type Config struct {
	URL           string
	MaxRetries    int
	RetryDelay    time.Duration
	PrefetchCount int
}

// Client wraps a shared RabbitMQ connection. Producers publish through a
// mutex-guarded channel; each consumer gets a dedicated channel with its
// own prefetch window.
type Client struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

// Connect establishes the connection with retry and linearly increasing
// delay between attempts. It is safe to call more than once; an already
// connected client is left untouched.
func (c *Client) Connect(ctx context.Context) error {
	const op = "queue.Client.Connect"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	var err error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		err = c.dial()
		if err == nil {
			c.logger.Info("queue connection established")
			return nil
		}

		c.logger.Error("queue connection attempt failed",
			slog.Int("attempt", attempt),
			slog.Any("err", err),
		)

		if attempt < c.cfg.MaxRetries {
			select {
			case <-time.After(c.cfg.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			}
		}
	}

	return fmt.Errorf("%s: failed to connect to queue: %w", op, err)
}

func (c *Client) dial() error {
	conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{
		Dial: amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close() //nolint:errcheck
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		conn.Close() //nolint:errcheck
		return fmt.Errorf("failed to set qos: %w", err)
	}

	c.conn = conn
	c.ch = ch

	return nil
}

// Publish sends v as a JSON message to the named durable queue.
func (c *Client) Publish(ctx context.Context, queueName string, v any) error {
	const op = "queue.Client.Publish"

	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal message: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil {
		return fmt.Errorf("%s: client is not connected", op)
	}

	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to declare queue: %w", op, err)
	}

	err = c.ch.PublishWithContext(ctx, "", q.Name, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("%s: failed to publish message: %w", op, err)
	}

	return nil
}

// Consume delivers messages from the named durable queue to handler, one at
// a time, acknowledging each after the handler returns. Handler errors are
// logged and the message is acknowledged anyway: a payload that cannot be
// processed is discarded, not redelivered forever. Consume blocks until ctx
// is canceled or the channel closes.
func (c *Client) Consume(ctx context.Context, queueName string, handler func(context.Context, []byte) error) error {
	const op = "queue.Client.Consume"

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("%s: client is not connected", op)
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%s: failed to open channel: %w", op, err)
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("%s: failed to set qos: %w", op, err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to declare queue: %w", op, err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to start consuming: %w", op, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%s: delivery channel closed", op)
			}

			if err := handler(ctx, msg.Body); err != nil {
				c.logger.Error("error processing message", slog.Any("err", err))
			}

			if err := msg.Ack(false); err != nil {
				c.logger.Error("failed to ack message", slog.Any("err", err))
			}
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.ch = nil

	return err
}
