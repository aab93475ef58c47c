package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/MohamedAljoke/mail-sender/internal/backoff"
	"github.com/MohamedAljoke/mail-sender/internal/store"
)

// Relay pumps status updates from the store's pub/sub channel into the
// hub. It owns the single upstream subscription; clients multiply on
// the hub side only.
type Relay struct {
	store    store.Store
	hub      *Hub
	strategy backoff.Strategy
	logger   *slog.Logger
}

// NewRelay wires a relay. A nil strategy falls back to a one-second
// constant reconnect interval.
func NewRelay(st store.Store, hub *Hub, strategy backoff.Strategy, logger *slog.Logger) *Relay {
	if strategy == nil {
		strategy = backoff.NewConstant(time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		store:    st,
		hub:      hub,
		strategy: strategy,
		logger:   logger.With("component", "relay"),
	}
}

// Run blocks pumping updates until ctx is cancelled. A dropped
// subscription is re-established after backoff; updates published
// during the gap are lost, which the live-view contract allows.
func (r *Relay) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := r.store.Subscribe(ctx, store.StatusChannel, r.hub.Broadcast)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := r.strategy.Delay(attempt)
		r.logger.Error("status subscription dropped, reconnecting",
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
