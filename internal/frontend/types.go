package frontend

import (
	"github.com/zjrosen/vibe/internal/monitor"
	"github.com/zjrosen/vibe/internal/sessions/application"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status   string                    `json:"status"`
	Durable  bool                      `json:"durable"`
	Sessions application.HealthSummary `json:"sessions"`
}

// SessionListResponse is returned by GET /api/sessions.
type SessionListResponse struct {
	Sessions []application.SessionStatus `json:"sessions"`
}

// RemoveResponse is returned by DELETE /api/sessions/{id}.
type RemoveResponse struct {
	Removed string `json:"removed"`
}

// AlertsResponse is returned by GET /api/monitor/alerts.
type AlertsResponse struct {
	Alerts []monitor.Alert `json:"alerts"`
}

// AnalyzeRequest is the body of POST /api/monitor/analyze.
type AnalyzeRequest struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// APIError is the body of every error response.
type APIError struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
