// Package app wires configuration, infrastructure clients, the worker
// pool, the relay, and the HTTP server into one runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MohamedAljoke/mail-sender/internal/api"
	"github.com/MohamedAljoke/mail-sender/internal/backoff"
	"github.com/MohamedAljoke/mail-sender/internal/config"
	"github.com/MohamedAljoke/mail-sender/internal/health"
	"github.com/MohamedAljoke/mail-sender/internal/mailer"
	"github.com/MohamedAljoke/mail-sender/internal/middleware"
	"github.com/MohamedAljoke/mail-sender/internal/queue"
	"github.com/MohamedAljoke/mail-sender/internal/relay"
	"github.com/MohamedAljoke/mail-sender/internal/store"
	"github.com/MohamedAljoke/mail-sender/internal/worker"
)

// connectRetryInterval paces infrastructure connection attempts at
// startup. The service waits for its dependencies rather than crashing.
const connectRetryInterval = 2 * time.Second

// App owns every long-lived component of the service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	broker    queue.Broker
	store     store.Store
	sender    mailer.Sender
	scheduler *worker.Scheduler
	pool      *worker.Pool
	hub       *relay.Hub
	relay     *relay.Relay
	checker   *health.Checker
	server    *http.Server
}

// New constructs the full object graph. No connections are opened
// until Run.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	broker := queue.NewAMQPBroker(cfg.RabbitMQURL, logger,
		queue.WithPrefetch(cfg.Concurrency),
	)

	st, err := store.NewRedisStore(cfg.RedisURL, logger)
	if err != nil {
		return nil, err
	}

	sender := mailer.NewSMTPSender(mailer.Config{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		From: cfg.SMTPFrom,
	}, logger, mailer.WithErrorSimulation(cfg.SimulateErrors))

	scheduler := worker.NewScheduler(logger)
	retry := worker.NewRetryCoordinator(st, broker, scheduler, backoff.DefaultStrategy(), logger)

	processor := worker.NewProcessor(st, sender, retry, logger,
		worker.WithProcessingDelay(cfg.ProcessingDelay),
		worker.WithCompletionDelay(cfg.CompletionDelay),
		worker.WithMiddleware(
			middleware.Logging(logger),
			middleware.Metrics(),
			middleware.Recover(logger),
			middleware.Timeout(cfg.SendTimeout),
		),
	)

	pool := worker.NewPool(broker, processor, logger,
		worker.WithRateLimit(cfg.SendRate),
	)

	hub := relay.NewHub(logger)
	rly := relay.NewRelay(st, hub, backoff.NewConstant(time.Second), logger)

	checker := health.NewChecker(logger,
		health.WithCritical("queue", broker),
		health.WithCritical("store", st),
		health.WithNonCritical("smtp", sender),
		health.WithWorkerPool(pool),
	)

	apiServer := api.NewServer(st, broker, checker, hub, cfg.MaxRetries, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		broker:    broker,
		store:     st,
		sender:    sender,
		scheduler: scheduler,
		pool:      pool,
		hub:       hub,
		relay:     rly,
		checker:   checker,
		server:    server,
	}, nil
}

// connectInfrastructure blocks until the broker and store are reachable
// and the queue topology exists. The SMTP transport is probed but a
// failure only logs; mail outages are survivable.
func (a *App) connectInfrastructure(ctx context.Context) error {
	if err := a.sender.ValidateConfig(); err != nil {
		return err
	}

	strategy := backoff.NewConstant(connectRetryInterval)
	if err := queue.ConnectWithRetry(ctx, a.broker, strategy, a.logger); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	if err := a.broker.DeclareTopology(ctx); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err := a.store.Ping(ctx)
		if err == nil {
			break
		}
		a.logger.Error("store unreachable, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(strategy.Delay(attempt)):
		}
	}

	if err := a.sender.Ping(ctx); err != nil {
		a.logger.Warn("smtp transport unreachable at startup, continuing degraded",
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Run connects infrastructure, starts every component, and blocks
// until ctx is cancelled or a component fails, then shuts down in
// dependency order.
func (a *App) Run(ctx context.Context) error {
	if err := a.connectInfrastructure(ctx); err != nil {
		return err
	}

	if err := a.pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("relay: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	return g.Wait()
}

// shutdown stops components in order: stop accepting HTTP first, drain
// the pool, cancel pending retries, then close connections.
func (a *App) shutdown() {
	a.logger.Info("shutting down", slog.Duration("timeout", a.cfg.ShutdownTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown failed", slog.String("error", err.Error()))
	}
	if err := a.pool.Stop(ctx); err != nil {
		a.logger.Error("pool shutdown incomplete", slog.String("error", err.Error()))
	}
	a.scheduler.Stop()
	a.hub.Close()

	if err := a.broker.Close(); err != nil {
		a.logger.Error("broker close failed", slog.String("error", err.Error()))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("store close failed", slog.String("error", err.Error()))
	}
	a.logger.Info("shutdown complete")
}
