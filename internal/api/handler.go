package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/tierflow/internal/engine"
	"github.com/gyaneshwarpardhi/tierflow/internal/metrics"
	"github.com/gyaneshwarpardhi/tierflow/internal/patreon"
)

const (
	headerEvent     = "X-Patreon-Event"
	headerSignature = "X-Patreon-Signature"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng      *engine.Engine
	secret   string
	maxBytes int64
	logger   *slog.Logger
}

// Config wires the handler.
type Config struct {
	Engine        *engine.Engine
	WebhookSecret string
	MaxBodyBytes  int64
	Logger        *slog.Logger
}

// New creates the HTTP handler and registers all routes.
func New(cfg Config) http.Handler {
	h := &Handler{
		eng:      cfg.Engine,
		secret:   cfg.WebhookSecret,
		maxBytes: cfg.MaxBodyBytes,
		logger:   cfg.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.maxBytes <= 0 {
		h.maxBytes = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/webhooks/patreon", h.receiveWebhook)
	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// POST /webhooks/patreon — the single ingress for Patreon deliveries. The
// signature covers the exact raw bytes, so the body is read and verified
// before any JSON parsing.
func (h *Handler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	if !patreon.VerifySignature(body, r.Header.Get(headerSignature), h.secret) {
		metrics.SignatureFailures.Inc()
		h.logger.Warn("webhook rejected: bad signature", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	eventType := r.Header.Get(headerEvent)
	if eventType == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %s header", headerEvent))
		return
	}

	var payload patreon.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	metrics.WebhooksReceived.WithLabelValues(eventType).Inc()

	if err := h.eng.Route(r.Context(), patreon.EventType(eventType), payload); err != nil {
		h.logger.Error("event processing failed", "event_type", eventType, "err", err)
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// GET /health — liveness probe.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
