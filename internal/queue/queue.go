// Package queue provides the durable queue abstraction the worker
// consumes from: named queues for main work and a dead-letter sink,
// publish/consume primitives, and connection management. The core
// depends only on the Broker interface; the AMQP implementation is
// selected at startup by configuration, with an in-memory implementation
// for tests and local development.
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/MohamedAljoke/mail-sender/internal/backoff"
	"github.com/MohamedAljoke/mail-sender/internal/job"
)

// Queue names are part of the external contract, not incidental.
const (
	// MainQueue carries queued and retried jobs awaiting delivery.
	MainQueue = "email_tasks"
	// DeadLetterQueue is the terminal sink for exhausted-retry jobs.
	DeadLetterQueue = "email_tasks_failed"
)

// Handler processes one dequeued job. It is invoked synchronously per
// message; the broker acknowledges the message after the handler
// returns, so at most prefetch handlers run concurrently.
type Handler func(ctx context.Context, j *job.Job)

// Broker is the capability contract over a queue backend.
type Broker interface {
	// Connect establishes the broker connection. A single attempt;
	// callers that want to wait for the broker use ConnectWithRetry.
	Connect(ctx context.Context) error

	// DeclareTopology idempotently ensures the main and dead-letter
	// queues exist and are durable.
	DeclareTopology(ctx context.Context) error

	// Publish serializes the job onto the named queue as a persistent
	// message. Transient errors are surfaced to the caller, never
	// silently dropped.
	Publish(ctx context.Context, queueName string, j *job.Job) error

	// Consume starts a background pull loop on the main queue and
	// invokes handler per message. Malformed messages are logged and
	// dropped rather than blocking the queue. Consume returns once the
	// loop is started; it stops when ctx is cancelled.
	Consume(ctx context.Context, handler Handler) error

	// Ping is a lightweight connectivity check independent of message flow.
	Ping(ctx context.Context) error

	// Close releases the broker connection.
	Close() error
}

// ConnectWithRetry blocks until Connect succeeds or ctx is cancelled,
// waiting strategy.Delay between attempts. Long-running services wait
// for their dependencies rather than failing fast.
func ConnectWithRetry(ctx context.Context, b Broker, strategy backoff.Strategy, logger *slog.Logger) error {
	for attempt := 1; ; attempt++ {
		err := b.Connect(ctx)
		if err == nil {
			return nil
		}

		delay := strategy.Delay(attempt)
		logger.Error("broker connect failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
