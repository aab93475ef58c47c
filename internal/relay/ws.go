package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ServeWS upgrades the HTTP request to a WebSocket and streams status
// updates to the client until it disconnects or the server shuts down.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	c := h.register()
	defer func() {
		h.unregister(c)
		conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader goroutine: drains client frames so control frames are
	// answered, and cancels on close or error.
	go func() {
		defer cancel()
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-c.C():
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				h.logger.Error("failed to marshal status update",
					slog.String("job_id", update.JobID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := wsutil.WriteServerText(conn, data); err != nil {
				h.logger.Debug("client write failed, disconnecting",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}
