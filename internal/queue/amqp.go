package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MohamedAljoke/mail-sender/internal/backoff"
	"github.com/MohamedAljoke/mail-sender/internal/fault"
	"github.com/MohamedAljoke/mail-sender/internal/job"
)

// AMQPOption configures an AMQPBroker.
type AMQPOption func(*AMQPBroker)

// WithPrefetch sets the consumer prefetch count, which bounds how many
// unacknowledged messages, and therefore concurrent handler
// invocations, are in flight at once.
func WithPrefetch(n int) AMQPOption {
	return func(b *AMQPBroker) { b.prefetch = n }
}

// WithReconnectStrategy sets the backoff used when the connection to
// the broker is lost mid-consume.
func WithReconnectStrategy(s backoff.Strategy) AMQPOption {
	return func(b *AMQPBroker) { b.reconnect = s }
}

// AMQPBroker implements Broker over RabbitMQ. A single connection and
// channel are shared across worker invocations; the mutex guards them
// through reconnects.
type AMQPBroker struct {
	url       string
	prefetch  int
	reconnect backoff.Strategy
	logger    *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPBroker creates an unconnected RabbitMQ broker.
func NewAMQPBroker(url string, logger *slog.Logger, opts ...AMQPOption) *AMQPBroker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &AMQPBroker{
		url:       url,
		prefetch:  10,
		reconnect: backoff.NewConstant(5 * time.Second),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect dials the broker and opens a channel with the configured prefetch.
func (b *AMQPBroker) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked()
}

func (b *AMQPBroker) connectLocked() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fault.Infra("failed to connect to RabbitMQ", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close() //nolint:errcheck // connection being discarded
		return fault.Infra("failed to open channel", err)
	}

	if err := ch.Qos(b.prefetch, 0, false); err != nil {
		conn.Close() //nolint:errcheck // connection being discarded
		return fault.Infra("failed to set prefetch", err)
	}

	b.conn = conn
	b.ch = ch
	return nil
}

// DeclareTopology declares the main and dead-letter queues, durable so
// they survive broker restarts. Safe to call repeatedly.
func (b *AMQPBroker) DeclareTopology(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ch == nil {
		return fault.Infra("channel not initialized", nil)
	}

	for _, name := range []string{MainQueue, DeadLetterQueue} {
		_, err := b.ch.QueueDeclare(
			name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fault.Infra(fmt.Sprintf("failed to declare queue %s", name), err)
		}
	}
	return nil
}

// Publish enqueues the job on the named queue as a persistent JSON message.
func (b *AMQPBroker) Publish(ctx context.Context, queueName string, j *job.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(j)
	if err != nil {
		return fault.Infra("failed to marshal job", err)
	}

	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	if ch == nil {
		return fault.Infra("channel not initialized", nil)
	}

	err = ch.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fault.Infra("failed to publish job", err)
	}
	return nil
}

// Consume starts the delivery loop on the main queue. Deliveries are
// handled on the consume goroutine pool implied by prefetch: each
// message is processed and then acknowledged, so at most prefetch jobs
// are in flight. Connection loss triggers reconnection with backoff.
func (b *AMQPBroker) Consume(ctx context.Context, handler Handler) error {
	deliveries, err := b.openConsumer()
	if err != nil {
		return err
	}

	go b.consumeLoop(ctx, deliveries, handler)
	return nil
}

func (b *AMQPBroker) openConsumer() (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ch == nil {
		return nil, fault.Infra("channel not initialized", nil)
	}

	deliveries, err := b.ch.Consume(
		MainQueue,
		"",    // consumer tag
		false, // manual ack: acknowledge after the handler returns
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fault.Infra("failed to register consumer", err)
	}
	return deliveries, nil
}

// consumeLoop drains deliveries until ctx is cancelled. Each message is
// handled on its own goroutine, bounded by a prefetch-sized semaphore
// (the broker-side prefetch caps unacked deliveries the same way). When
// the deliveries channel closes (connection or channel loss) the loop
// reconnects with backoff and resumes consuming.
func (b *AMQPBroker) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery, handler Handler) {
	sem := make(chan struct{}, b.prefetch)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				next, err := b.reestablish(ctx)
				if err != nil {
					return
				}
				deliveries = next
				continue
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(m amqp.Delivery) {
				defer func() { <-sem }()
				b.handleDelivery(ctx, m, handler)
			}(msg)
		}
	}
}

// reestablish reconnects, redeclares topology, and reopens the consumer,
// retrying with backoff until success or ctx cancellation.
func (b *AMQPBroker) reestablish(ctx context.Context) (<-chan amqp.Delivery, error) {
	b.logger.Warn("broker connection lost, reconnecting")

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.reconnect.Delay(attempt)):
		}

		b.mu.Lock()
		err := b.connectLocked()
		b.mu.Unlock()
		if err != nil {
			b.logger.Error("reconnect failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := b.DeclareTopology(ctx); err != nil {
			b.logger.Error("redeclare topology failed", slog.String("error", err.Error()))
			continue
		}

		deliveries, err := b.openConsumer()
		if err != nil {
			b.logger.Error("reopen consumer failed", slog.String("error", err.Error()))
			continue
		}

		b.logger.Info("broker reconnected", slog.Int("attempts", attempt))
		return deliveries, nil
	}
}

// handleDelivery decodes and dispatches one message. Malformed or
// invalid payloads are acked and dropped so they cannot wedge the
// queue; handler panics are caught per message.
func (b *AMQPBroker) handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic in delivery handler",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		if err := msg.Ack(false); err != nil {
			b.logger.Error("failed to ack message", slog.String("error", err.Error()))
		}
	}()

	if len(msg.Body) == 0 {
		b.logger.Warn("dropping empty message")
		return
	}

	var j job.Job
	if err := json.Unmarshal(msg.Body, &j); err != nil {
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

// Ping verifies connectivity by declaring a throwaway queue, exercising
// the channel independent of message flow.
func (b *AMQPBroker) Ping(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil || b.conn.IsClosed() {
		return fault.Infra("connection is closed", nil)
	}
	if b.ch == nil {
		return fault.Infra("channel not initialized", nil)
	}

	_, err := b.ch.QueueDeclare(
		"",    // server-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fault.Infra("broker ping failed", err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	if b.ch != nil {
		if err := b.ch.Close(); err != nil && firstErr == nil {
			firstErr = fault.Infra("failed to close channel", err)
		}
		b.ch = nil
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil && firstErr == nil {
			firstErr = fault.Infra("failed to close connection", err)
		}
		b.conn = nil
	}
	return firstErr
}

// Compile-time interface check.
var _ Broker = (*AMQPBroker)(nil)
