package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MohamedAljoke/mail-sender/internal/job"
	"github.com/MohamedAljoke/mail-sender/internal/mailer"
	"github.com/MohamedAljoke/mail-sender/internal/middleware"
	"github.com/MohamedAljoke/mail-sender/internal/store"
)

// Processor executes one delivery attempt for a dequeued job: guard,
// mark processing, send through the middleware chain, then mark
// completed or hand the failure to the retry coordinator.
type Processor struct {
	store  store.Store
	sender mailer.Sender
	retry  *RetryCoordinator
	chain  middleware.Middleware
	logger *slog.Logger

	processingDelay time.Duration
	completionDelay time.Duration
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProcessingDelay injects an artificial pause before sending,
// useful for observing status transitions in demos.
func WithProcessingDelay(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.processingDelay = d }
}

// WithCompletionDelay injects an artificial pause before the completed
// transition is recorded.
func WithCompletionDelay(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.completionDelay = d }
}

// WithMiddleware sets the delivery middleware chain.
func WithMiddleware(mws ...middleware.Middleware) ProcessorOption {
	return func(p *Processor) { p.chain = middleware.Chain(mws...) }
}

// NewProcessor wires a processor.
func NewProcessor(st store.Store, sender mailer.Sender, retry *RetryCoordinator, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		store:  st,
		sender: sender,
		retry:  retry,
		chain:  middleware.Chain(),
		logger: logger.With("component", "processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one dequeued job snapshot. The store holds the
// authoritative record; the snapshot is only trusted when the store has
// never seen the job.
func (p *Processor) Process(ctx context.Context, snapshot *job.Job) {
	j := p.materialize(ctx, snapshot)

	if !j.CanProcess() {
		// Duplicate delivery of a job another worker already finished,
		// or a terminal job republished by mistake. Drop it.
		p.logger.Warn("skipping job not in a processable state",
			slog.String("job_id", j.ID),
			slog.String("status", string(j.Status)),
		)
		return
	}

	if err := p.store.UpdateStatus(ctx, j.ID, job.StatusProcessing, "", 0); err != nil {
		p.logger.Error("failed to record processing status",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
	j.UpdateStatus(job.StatusProcessing, "Delivery attempt started", "")

	if !p.pause(ctx, p.processingDelay) {
		p.retry.HandleFailure(ctx, j, ctx.Err())
		return
	}

	err := p.chain(ctx, j, func(ctx context.Context) error {
		return p.sender.Send(ctx, j)
	})
	if err != nil {
		p.retry.HandleFailure(ctx, j, err)
		return
	}

	p.pause(ctx, p.completionDelay)

	if err := p.store.UpdateStatus(ctx, j.ID, job.StatusCompleted, "", 0); err != nil {
		p.logger.Error("failed to record completed status",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
	p.logger.Info("job completed",
		slog.String("job_id", j.ID),
		slog.String("to", j.To),
		slog.Int("retry_count", j.RetryCount),
	)
}

// materialize resolves the authoritative job record. A job missing from
// the store (expired TTL, store flushed) is re-seeded from the queue
// snapshot so processing can continue.
func (p *Processor) materialize(ctx context.Context, snapshot *job.Job) *job.Job {
	current, err := p.store.GetJob(ctx, snapshot.ID)
	switch {
	case err == nil:
		// The snapshot's retry counter may be ahead of the store when a
		// retrying status write was lost. Keep the larger counter.
		if snapshot.RetryCount > current.RetryCount {
			current.RetryCount = snapshot.RetryCount
		}
		return current
	case errors.Is(err, store.ErrNotFound):
		p.logger.Warn("job missing from store, re-seeding from queue snapshot",
			slog.String("job_id", snapshot.ID),
		)
		if err := p.store.StoreJob(ctx, snapshot, store.DefaultTTL); err != nil {
			p.logger.Error("failed to re-seed job",
				slog.String("job_id", snapshot.ID),
				slog.String("error", err.Error()),
			)
		}
		return snapshot
	default:
		p.logger.Error("store lookup failed, using queue snapshot",
			slog.String("job_id", snapshot.ID),
			slog.String("error", err.Error()),
		)
		return snapshot
	}
}

// pause sleeps for d unless the context is cancelled first. Returns
// false on cancellation.
func (p *Processor) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
