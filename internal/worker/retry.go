package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MohamedAljoke/mail-sender/internal/backoff"
	"github.com/MohamedAljoke/mail-sender/internal/fault"
	"github.com/MohamedAljoke/mail-sender/internal/job"
	"github.com/MohamedAljoke/mail-sender/internal/queue"
	"github.com/MohamedAljoke/mail-sender/internal/store"
)

// RetryCoordinator decides the fate of a failed delivery: requeue with
// backoff while budget remains and the fault is retryable, otherwise
// mark the job failed and dead-letter it.
type RetryCoordinator struct {
	store     store.Store
	broker    queue.Broker
	scheduler *Scheduler
	strategy  backoff.Strategy
	logger    *slog.Logger
}

// NewRetryCoordinator wires a coordinator. A nil strategy falls back to
// the default quadratic policy.
func NewRetryCoordinator(st store.Store, br queue.Broker, sched *Scheduler, strategy backoff.Strategy, logger *slog.Logger) *RetryCoordinator {
	if strategy == nil {
		strategy = backoff.DefaultStrategy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryCoordinator{
		store:     st,
		broker:    br,
		scheduler: sched,
		strategy:  strategy,
		logger:    logger.With("component", "retry"),
	}
}

// HandleFailure routes a failed job. Non-retryable faults and exhausted
// budgets go terminal; everything else is requeued after backoff.
func (c *RetryCoordinator) HandleFailure(ctx context.Context, j *job.Job, cause error) {
	if !fault.Retryable(cause) {
		c.logger.Warn("fault not retryable, failing job",
			slog.String("job_id", j.ID),
			slog.String("kind", fault.KindOf(cause).String()),
			slog.String("error", cause.Error()),
		)
		c.fail(ctx, j, cause)
		return
	}
	if !j.ShouldRetry() {
		c.logger.Warn("retry budget exhausted, failing job",
			slog.String("job_id", j.ID),
			slog.Int("retry_count", j.RetryCount),
			slog.Int("max_retries", j.MaxRetries),
		)
		c.fail(ctx, j, cause)
		return
	}
	c.retry(ctx, j, cause)
}

// retry increments the counter, records the retrying status, and
// schedules the requeue after backoff.
func (c *RetryCoordinator) retry(ctx context.Context, j *job.Job, cause error) {
	j.IncrementRetry(cause.Error())

	if err := c.store.UpdateStatus(ctx, j.ID, job.StatusRetrying, cause.Error(), j.RetryCount); err != nil {
		// The queue copy still carries the bumped counter, so the
		// retry proceeds; the store catches up on the next write.
		c.logger.Error("failed to record retrying status",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}

	delay := c.strategy.Delay(j.RetryCount)
	c.logger.Info("scheduling retry",
		slog.String("job_id", j.ID),
		slog.Int("retry_count", j.RetryCount),
		slog.Int("max_retries", j.MaxRetries),
		slog.Duration("delay", delay),
	)

	requeue := *j
	err := c.scheduler.Schedule(delay, func(ctx context.Context) {
		if err := c.broker.Publish(ctx, queue.MainQueue, &requeue); err != nil {
			c.logger.Error("requeue failed after backoff, failing job",
				slog.String("job_id", requeue.ID),
				slog.String("error", err.Error()),
			)
			c.fail(ctx, &requeue, fmt.Errorf("requeue failed: %w", err))
		}
	})
	if err != nil {
		// Shutting down; the job stays in the store as retrying and
		// will be picked up when it is resubmitted or replayed.
		c.logger.Warn("scheduler rejected retry",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}

// fail marks the job terminally failed and publishes it to the
// dead-letter queue. A dead-letter publish failure is logged but does
// not undo the local failed status.
func (c *RetryCoordinator) fail(ctx context.Context, j *job.Job, cause error) {
	msg := fmt.Sprintf("Failed after %d retries: %v", j.RetryCount, cause)
	j.UpdateStatus(job.StatusFailed, msg, cause.Error())

	if err := c.store.UpdateStatus(ctx, j.ID, job.StatusFailed, msg, j.RetryCount); err != nil {
		c.logger.Error("failed to record failed status",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := c.broker.Publish(ctx, queue.DeadLetterQueue, j); err != nil {
		c.logger.Error("dead-letter publish failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	c.logger.Info("job dead-lettered",
		slog.String("job_id", j.ID),
		slog.Int("retry_count", j.RetryCount),
	)
}
