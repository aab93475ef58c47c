// Package worker consumes email jobs from the queue and drives them
// through delivery, retry, and dead-lettering.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/MohamedAljoke/mail-sender/internal/job"
	"github.com/MohamedAljoke/mail-sender/internal/queue"
)

// State is a point-in-time snapshot of pool counters for health
// reporting.
type State struct {
	WorkerID      string `json:"worker_id"`
	Running       bool   `json:"running"`
	JobsProcessed int64  `json:"jobs_processed"`
	JobsActive    int64  `json:"jobs_active"`
}

// Pool owns the consume loop: it receives jobs from the broker and
// hands each to the processor. Concurrency is bounded by the broker's
// prefetch; the pool optionally rate-limits delivery starts on top.
type Pool struct {
	broker    queue.Broker
	processor *Processor
	limiter   *rate.Limiter
	workerID  string
	logger    *slog.Logger

	running   atomic.Bool
	processed atomic.Int64
	active    atomic.Int64

	mu        sync.Mutex
	cancel    context.CancelFunc // stops message intake
	jobCtx    context.Context    // outlives intake; aborts deliveries
	jobCancel context.CancelFunc
	wg        sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithRateLimit caps delivery starts at n per second. Zero or negative
// disables rate limiting.
func WithRateLimit(n float64) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(n), 1)
		}
	}
}

// NewPool creates a pool consuming from broker into processor.
func NewPool(broker queue.Broker, processor *Processor, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		broker:    broker,
		processor: processor,
		workerID:  uuid.NewString(),
		logger:    logger.With("component", "pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() string { return p.workerID }

// Start begins consuming. It returns once the consume loop is running.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return nil
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	// Deliveries run on their own context so cancelling intake (a
	// shutdown signal, or Stop) does not abort a message that was
	// already consumed from the queue. Stop only cancels it once the
	// drain deadline has passed.
	p.jobCtx, p.jobCancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := p.broker.Consume(consumeCtx, p.handle); err != nil {
		cancel()
		p.jobCancel()
		return err
	}

	p.running.Store(true)
	p.logger.Info("worker pool started", slog.String("worker_id", p.workerID))
	return nil
}

// handle runs one delivery. Invoked by the broker per message, already
// bounded by prefetch. The broker's consume context is ignored here:
// once a message is in hand it must be driven to a store transition,
// so the delivery runs on the pool's job context instead.
func (p *Pool) handle(_ context.Context, j *job.Job) {
	if p.limiter != nil {
		if err := p.limiter.Wait(p.jobCtx); err != nil {
			p.logger.Warn("rate limiter wait aborted",
				slog.String("job_id", j.ID),
				slog.String("error", err.Error()),
			)
			return
		}
	}

	p.wg.Add(1)
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.processed.Add(1)
		p.wg.Done()
	}()

	p.processor.Process(p.jobCtx, j)
}

// Stop halts message intake, then waits for in-flight deliveries to
// drain. Only when the context deadline expires are the remaining
// deliveries aborted. Idempotent.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return nil
	}
	p.running.Store(false)
	cancel := p.cancel
	jobCancel := p.jobCancel
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID))
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		jobCancel()
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool drain timed out, aborting deliveries in flight",
			slog.Int64("jobs_active", p.active.Load()),
		)
		jobCancel()
		p.wg.Wait()
		return ctx.Err()
	}
}

// Snapshot reports current pool counters.
func (p *Pool) Snapshot() State {
	return State{
		WorkerID:      p.workerID,
		Running:       p.running.Load(),
		JobsProcessed: p.processed.Load(),
		JobsActive:    p.active.Load(),
	}
}
