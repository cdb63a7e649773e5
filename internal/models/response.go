// Package models - Gatekeeper response types.
// This file defines the terminal responses the gatekeeper sends instead of
// invoking a business handler, plus the small JSON payloads of its own endpoints.
//
// Response Design Principles:
// - Every rejection body is a JSON object with a single "error" field
// - No stack traces or internal state ever reach a response body
// - Headers are carried explicitly so tests can assert them without a writer
package models

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorResponse is the body of every terminal response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TerminalResponse replaces the business handler's response.
//
// Status is one of 429, 403 or 400. Headers always include
// Content-Type: application/json and, once the pipeline has stamped them,
// the security header set. Err identifies the rejection class and is not
// serialized.
type TerminalResponse struct {
	Status  int
	Headers http.Header
	Body    ErrorResponse
	Err     error
}

// NewTerminalResponse creates a JSON terminal response with the given status and message.
func NewTerminalResponse(status int, message string, err error) *TerminalResponse {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &TerminalResponse{
		Status:  status,
		Headers: h,
		Body:    ErrorResponse{Error: message},
		Err:     err,
	}
}

// Write sends the terminal response. Headers already present on w that the
// terminal response does not define are left untouched.
func (t *TerminalResponse) Write(w http.ResponseWriter) error {
	for name, values := range t.Headers {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.WriteHeader(t.Status)
	return json.NewEncoder(w).Encode(t.Body)
}

// CSRFTokenResponse is returned by GET /csrf.
type CSRFTokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"` // epoch milliseconds
}

// NewCSRFTokenResponse builds the token payload with the expiry in epoch milliseconds.
func NewCSRFTokenResponse(token string, expiresAt time.Time) *CSRFTokenResponse {
	return &CSRFTokenResponse{
		Token:   token,
		Expires: expiresAt.UnixMilli(),
	}
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{Error: message}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// AddComponentDetail attaches a detail value to an already registered component.
func (h *HealthCheckResponse) AddComponentDetail(name, key string, value interface{}) {
	c, ok := h.Components[name]
	if !ok {
		return
	}
	c.Details[key] = value
	h.Components[name] = c
}
