// Package api exposes the HTTP surface: email submission, job status
// lookup, health and readiness probes, and the WebSocket status stream.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MohamedAljoke/mail-sender/internal/health"
	"github.com/MohamedAljoke/mail-sender/internal/job"
	"github.com/MohamedAljoke/mail-sender/internal/queue"
	"github.com/MohamedAljoke/mail-sender/internal/relay"
	"github.com/MohamedAljoke/mail-sender/internal/store"
)

// Server carries the API's dependencies.
type Server struct {
	store      store.Store
	broker     queue.Broker
	checker    *health.Checker
	hub        *relay.Hub
	logger     *slog.Logger
	maxRetries int
}

// NewServer wires the API server.
func NewServer(
	st store.Store,
	broker queue.Broker,
	checker *health.Checker,
	hub *relay.Hub,
	maxRetries int,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:      st,
		broker:     broker,
		checker:    checker,
		hub:        hub,
		logger:     logger.With("component", "api"),
		maxRetries: maxRetries,
	}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/email", s.handleSubmit)
		r.Get("/jobs/{id}", s.handleGetJob)
	})
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/ws", s.hub.ServeWS)

	return r
}

// submitRequest is the POST /api/email payload.
type submitRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// submitResponse acknowledges an accepted job.
type submitResponse struct {
	JobID  string     `json:"job_id"`
	Status job.Status `json:"status"`
}

// handleSubmit accepts an email request, stores the job record, then
// enqueues it. Store-then-publish: a job visible on the queue is always
// resolvable in the store.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	j := job.New(req.To, req.Subject, req.Body, s.maxRetries)
	if err := j.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if err := s.store.StoreJob(ctx, j, store.DefaultTTL); err != nil {
		s.logger.Error("failed to store job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		s.writeError(w, http.StatusServiceUnavailable, "status store unavailable")
		return
	}

	if err := s.broker.Publish(ctx, queue.MainQueue, j); err != nil {
		s.logger.Error("failed to enqueue job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		// The stored record must not claim the job is queued when it
		// never reached the queue.
		if uerr := s.store.UpdateStatus(ctx, j.ID, job.StatusFailed, "enqueue failed", 0); uerr != nil {
			s.logger.Error("failed to mark unqueued job failed",
				slog.String("job_id", j.ID),
				slog.String("error", uerr.Error()),
			)
		}
		s.writeError(w, http.StatusBadGateway, "queue unavailable")
		return
	}

	s.logger.Info("job accepted",
		slog.String("job_id", j.ID),
		slog.String("to", j.To),
	)
	s.writeJSON(w, http.StatusAccepted, submitResponse{JobID: j.ID, Status: j.Status})
}

// handleGetJob returns the authoritative job record.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	j, err := s.store.GetJob(r.Context(), id)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, j)
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "job not found or expired")
	default:
		s.logger.Error("job lookup failed",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
		s.writeError(w, http.StatusServiceUnavailable, "status store unavailable")
	}
}

// handleHealth reports the aggregate dependency status. Degraded still
// returns 200; only unhealthy maps to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.checker.CheckAll(r.Context())

	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, report)
}

// handleReady is the readiness probe: critical dependencies only.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.checker.Ready(r.Context()) {
		s.writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
