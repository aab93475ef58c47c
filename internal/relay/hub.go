// Package relay fans job status updates out to WebSocket clients. The
// hub subscribes once to the status store's pub/sub channel and
// broadcasts each update to every connected client; a slow client loses
// updates rather than stalling the rest.
package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MohamedAljoke/mail-sender/internal/job"
)

// DefaultBufferSize is the default per-client update buffer.
const DefaultBufferSize = 64

// client is one connected WebSocket subscriber.
type client struct {
	id string
	ch chan *job.StatusUpdate

	closed atomic.Bool
}

// C returns the read-only update channel.
func (c *client) C() <-chan *job.StatusUpdate { return c.ch }

// close shuts the channel exactly once.
func (c *client) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.ch)
	}
}

// Hub is the subscriber registry. Broadcast never blocks: a client
// whose buffer is full has the update dropped and counted.
type Hub struct {
	logger     *slog.Logger
	bufferSize int

	mu      sync.RWMutex
	clients map[string]*client

	totalSent    atomic.Int64
	totalDropped atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the per-client update buffer size.
func WithBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:     logger.With("component", "relay"),
		bufferSize: DefaultBufferSize,
		clients:    make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// register adds a client and returns it.
func (h *Hub) register() *client {
	c := &client{
		id: uuid.NewString(),
		ch: make(chan *job.StatusUpdate, h.bufferSize),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Debug("client subscribed", slog.String("client_id", c.id))
	return c
}

// unregister removes and closes a client. Idempotent.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.close()
	if ok {
		h.logger.Debug("client unsubscribed", slog.String("client_id", c.id))
	}
}

// Broadcast delivers the update to every connected client without
// blocking. Full buffers drop the update for that client only.
func (h *Hub) Broadcast(update *job.StatusUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.ch <- update:
			h.totalSent.Add(1)
		default:
			h.totalDropped.Add(1)
			h.logger.Warn("dropping update for slow client",
				slog.String("client_id", c.id),
				slog.String("job_id", update.JobID),
			)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats reports cumulative send and drop counters.
func (h *Hub) Stats() (sent, dropped int64) {
	return h.totalSent.Load(), h.totalDropped.Load()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
