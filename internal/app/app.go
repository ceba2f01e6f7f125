package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/osmanmakhtoom/url-shortener/internal/cache"
	"github.com/osmanmakhtoom/url-shortener/internal/config"
	dbpostgres "github.com/osmanmakhtoom/url-shortener/internal/database/postgres"
	"github.com/osmanmakhtoom/url-shortener/internal/queue"
	"github.com/osmanmakhtoom/url-shortener/internal/service"
	"github.com/osmanmakhtoom/url-shortener/internal/shortener"
	"github.com/osmanmakhtoom/url-shortener/internal/worker"
	"github.com/osmanmakhtoom/url-shortener/pkg/postgres"
	"golang.org/x/sync/errgroup"

	myhttp "github.com/osmanmakhtoom/url-shortener/internal/api/http"
)

// Run wires every component with explicit dependency injection and runs the
// HTTP server and the two background workers until ctx is canceled. Clients
// are owned here: constructed at startup, closed on the way out.
func Run(ctx context.Context, cfg *config.Config, logger *httplog.Logger) error {
	const op = "app.Run"

	db, err := postgres.New(
		ctx,
		cfg.Postgres.DSN(),
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := postgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	cacheClient, err := cache.New(ctx, cache.Config{
		URL:            cfg.Redis.URL,
		RetryAttempts:  cfg.Redis.RetryAttempts,
		RetryDelay:     cfg.Redis.RetryDelay,
		ConnectTimeout: cfg.Redis.ConnectTimeout,
		SocketTimeout:  cfg.Redis.SocketTimeout,
	}, logger.Logger)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to cache: %w", op, err)
	}
	defer cacheClient.Close()

	queueClient := queue.New(queue.Config{
		URL:           cfg.RabbitMQ.URL,
		MaxRetries:    cfg.RabbitMQ.MaxRetries,
		RetryDelay:    cfg.RabbitMQ.RetryDelay,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
	}, logger.Logger)
	defer queueClient.Close()

	// A dead queue at startup only degrades visit analytics; the redirect
	// path keeps working through the cache counter.
	if err := queueClient.Connect(ctx); err != nil {
		logger.Error("queue unavailable at startup, visit details degraded",
			slog.Any("err", err),
		)
	}

	urlRepo := dbpostgres.NewURLRepository(db)
	visitRepo := dbpostgres.NewVisitRepository(db)

	urlSvc := service.NewURLService(
		urlRepo,
		cacheClient,
		shortener.New(cfg.Shortener.Generator),
		cfg.Shortener.CodeLength,
		cfg.Shortener.MaxAttempts,
		cfg.Shortener.CacheTTL,
		logger.Logger,
	)
	visitSvc := service.NewVisitService(
		cacheClient,
		queueClient,
		visitRepo,
		cfg.RabbitMQ.Queue,
		logger.Logger,
	)

	visitWorker := worker.NewVisitWorker(
		queueClient,
		urlSvc,
		visitRepo,
		cfg.RabbitMQ.Queue,
		cfg.Workers.BatchInterval,
		logger.Logger,
	)
	syncWorker := worker.NewCounterSyncWorker(
		cacheClient,
		urlSvc,
		urlRepo,
		cfg.Workers.SyncInterval,
		logger.Logger,
	)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        myhttp.NewRouter(logger, urlSvc, visitSvc),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	// Worker-fatal conditions stop the failing worker, never the process.
	g.Go(func() error {
		if err := visitWorker.Run(ctx); err != nil {
			logger.Error("visit worker halted", slog.Any("err", err))
		}
		return nil
	})

	g.Go(func() error {
		if err := syncWorker.Run(ctx); err != nil {
			logger.Error("counter sync worker halted", slog.Any("err", err))
		}
		return nil
	})

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}
