package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/MohamedAljoke/mail-sender/internal/fault"
	"github.com/MohamedAljoke/mail-sender/internal/job"
)

// memoryQueueDepth is the per-queue buffer of the in-memory broker.
const memoryQueueDepth = 1024

// MemoryOption configures a MemoryBroker.
type MemoryOption func(*MemoryBroker)

// WithMemoryConcurrency bounds concurrent handler invocations,
// mirroring the AMQP prefetch semantics.
func WithMemoryConcurrency(n int) MemoryOption {
	return func(b *MemoryBroker) { b.concurrency = n }
}

// MemoryBroker implements Broker with in-process channels. It mirrors
// the AMQP broker's semantics (named queues, bounded concurrent
// consumption, malformed-message dropping) for tests and local runs
// without a broker.
type MemoryBroker struct {
	concurrency int
	logger      *slog.Logger

	mu        sync.Mutex
	queues    map[string]chan []byte
	connected bool
	closed    bool
}

// NewMemoryBroker creates an in-memory broker.
func NewMemoryBroker(logger *slog.Logger, opts ...MemoryOption) *MemoryBroker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &MemoryBroker{
		concurrency: 10,
		logger:      logger,
		queues:      make(map[string]chan []byte),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect marks the broker as connected.
func (b *MemoryBroker) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fault.Infra("broker is closed", nil)
	}
	b.connected = true
	return nil
}

// DeclareTopology ensures the main and dead-letter queues exist.
func (b *MemoryBroker) DeclareTopology(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return fault.Infra("broker not connected", nil)
	}
	for _, name := range []string{MainQueue, DeadLetterQueue} {
		if _, ok := b.queues[name]; !ok {
			b.queues[name] = make(chan []byte, memoryQueueDepth)
		}
	}
	return nil
}

// Publish serializes the job onto the named queue.
func (b *MemoryBroker) Publish(_ context.Context, queueName string, j *job.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(j)
	if err != nil {
		return fault.Infra("failed to marshal job", err)
	}

	b.mu.Lock()
	q, ok := b.queues[queueName]
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return fault.Infra("broker is closed", nil)
	}
	if !ok {
		return fault.Infra("queue "+queueName+" not declared", nil)
	}

	select {
	case q <- body:
		return nil
	default:
		return fault.Infra("queue "+queueName+" is full", nil)
	}
}

// Consume starts concurrency goroutines draining the main queue.
func (b *MemoryBroker) Consume(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	q, ok := b.queues[MainQueue]
	b.mu.Unlock()
	if !ok {
		return fault.Infra("queue "+MainQueue+" not declared", nil)
	}

	for range b.concurrency {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case body := <-q:
					b.handleMessage(ctx, body, handler)
				}
			}
		}()
	}
	return nil
}

// handleMessage mirrors the AMQP delivery path: drop malformed or
// invalid payloads, recover handler panics per message.
func (b *MemoryBroker) handleMessage(ctx context.Context, body []byte, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic in delivery handler",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	var j job.Job
	if err := json.Unmarshal(body, &j); err != nil {
		b.logger.Warn("dropping malformed message", slog.String("error", err.Error()))
		return
	}
	if err := j.Validate(); err != nil {
		b.logger.Warn("dropping invalid job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	handler(ctx, &j)
}

// Depth reports the number of messages waiting on the named queue.
// Test helper; the AMQP broker has no equivalent.
func (b *MemoryBroker) Depth(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queueName]
	if !ok {
		return 0
	}
	return len(q)
}

// Ping reports connectivity.
func (b *MemoryBroker) Ping(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || !b.connected {
		return fault.Infra("broker not connected", nil)
	}
	return nil
}

// Close marks the broker closed. Consumers stop via their context.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.connected = false
	return nil
}

// Compile-time interface check.
var _ Broker = (*MemoryBroker)(nil)
