package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"gatekeeper/internal/csrf"
	"gatekeeper/internal/headers"
	"gatekeeper/internal/models"
	"gatekeeper/internal/stats"
	"gatekeeper/internal/version"
)

// Gate is the part of the gatekeeper the HTTP handlers use.
type Gate interface {
	IssueToken(sessionID string) (*models.CSRFTokenResponse, error)
	Tokens() *csrf.TokenStore
	ActiveCounters() int
	ActiveTokens() int
	DroppedEvents() int64
	Headers() *headers.Set
}

// StatsReader exposes decision totals kept in process memory.
type StatsReader interface {
	Total() stats.Counters
	ByClass() map[string]stats.Counters
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithStats reports the decision totals of reader on the health endpoints.
func WithStats(reader StatsReader) HandlerOption {
	return func(h *Handlers) {
		h.stats = reader
	}
}

// Handlers serves the gatekeeper's own endpoints.
type Handlers struct {
	gate      Gate
	session   csrf.SessionFunc
	version   version.Info
	stats     StatsReader
	startedAt time.Time
}

func NewHandlers(gate Gate, session csrf.SessionFunc, ver version.Info, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		gate:      gate,
		session:   session,
		version:   ver,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// IssueCSRFToken mints a synchronizer token bound to the caller's session.
// GET /csrf
func (h *Handlers) IssueCSRFToken(w http.ResponseWriter, r *http.Request) {
	sessionID := h.session(r)

	resp, err := h.gate.IssueToken(sessionID)
	if err != nil {
		slog.Error("Failed to issue CSRF token", "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to generate CSRF token")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// HealthCheck reports liveness, the size of the in-memory stores and, when
// configured, the decision totals.
// GET /health, GET /api/health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.Uptime = time.Since(h.startedAt).Round(time.Second).String()

	response.AddComponent("ratelimit", models.StatusHealthy, "Counter store is operational")
	response.AddComponentDetail("ratelimit", "active_counters", h.gate.ActiveCounters())

	response.AddComponent("csrf", models.StatusHealthy, "Token store is operational")
	response.AddComponentDetail("csrf", "active_tokens", h.gate.ActiveTokens())

	dropped := h.gate.DroppedEvents()
	switch {
	case dropped > 0:
		response.AddComponent("stats", models.StatusDegraded, "Decision events are being dropped")
		response.AddComponentDetail("stats", "dropped_events", dropped)
	case h.stats != nil:
		response.AddComponent("stats", models.StatusHealthy, "Decision stats are being recorded")
	}
	if h.stats != nil {
		response.AddComponentDetail("stats", "total", h.stats.Total())
		response.AddComponentDetail("stats", "by_class", h.stats.ByClass())
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// RequireToken wraps next so state-changing requests must carry a CSRF token.
func (h *Handlers) RequireToken(next http.Handler) http.Handler {
	return csrf.RequireToken(h.gate.Tokens(), h.session)(next)
}

func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message))
}
