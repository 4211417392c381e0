// Package frontend provides the HTTP API for inspecting and managing workflow
// sessions.
package frontend

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zjrosen/vibe/internal/log"
	"github.com/zjrosen/vibe/internal/sessions/application"
	"github.com/zjrosen/vibe/internal/sessions/domain"
)

// maxBodySize caps request bodies (1MB).
const maxBodySize = 1024 * 1024

// Handler provides HTTP endpoints over the session service.
type Handler struct {
	svc *application.Service
}

// NewHandler creates a new Handler over svc.
func NewHandler(svc *application.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterAPIRoutes registers the API routes on the provided mux.
func (h *Handler) RegisterAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/sessions", h.ListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.DeleteSession)

	// Monitor endpoints
	mux.HandleFunc("GET /api/monitor/alerts", h.Alerts)
	mux.HandleFunc("GET /api/monitor/summary", h.Summary)
	mux.HandleFunc("POST /api/monitor/analyze", h.Analyze)
}

// Routes returns a mux with every API route registered, wrapped in request
// logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterAPIRoutes(mux)
	return logRequests(mux)
}

// Health reports liveness and session counts.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	out := h.svc.HealthSummary(r.Context())
	if !out.Success {
		h.writeOutcomeError(w, out.Error)
		return
	}
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Durable:  h.svc.Store().Durable(),
		Sessions: out.Data,
	})
}

// ListSessions returns every session ordered by creation time.
// GET /api/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	out := h.svc.ListSessions(r.Context())
	if !out.Success {
		h.writeOutcomeError(w, out.Error)
		return
	}
	h.writeJSON(w, http.StatusOK, SessionListResponse{Sessions: out.Data})
}

// GetSession returns one session.
// GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	out := h.svc.Status(r.Context(), r.PathValue("id"))
	if !out.Success {
		h.writeOutcomeError(w, out.Error)
		return
	}
	h.writeJSON(w, http.StatusOK, out.Data)
}

// DeleteSession removes one session.
// DELETE /api/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	out := h.svc.RemoveSession(r.Context(), r.PathValue("id"))
	if !out.Success {
		h.writeOutcomeError(w, out.Error)
		return
	}
	h.writeJSON(w, http.StatusOK, RemoveResponse{Removed: out.Data})
}

// Alerts runs the health checks and returns the alerts raised.
// GET /api/monitor/alerts
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	out := h.svc.CheckHealth(r.Context())
	if !out.Success {
		h.writeOutcomeError(w, out.Error)
		return
	}
	h.writeJSON(w, http.StatusOK, AlertsResponse{Alerts: out.Data})
}

// Summary returns the monitor status report.
// GET /api/monitor/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	out := h.svc.MonitorSummary(r.Context())
	if !out.Success {
		h.writeOutcomeError(w, out.Error)
		return
	}
	h.writeJSON(w, http.StatusOK, out.Data)
}

// Analyze checks an agent response for a forgotten workflow completion.
// POST /api/monitor/analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "session_id is required", "")
		return
	}
	if strings.TrimSpace(req.Response) == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "response is required", "")
		return
	}

	out := h.svc.AnalyzeResponse(r.Context(), req.SessionID, req.Response)
	if !out.Success {
		h.writeOutcomeError(w, out.Error)
		return
	}
	h.writeJSON(w, http.StatusOK, out.Data)
}

// writeJSON writes a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatHTTP, "Failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response in the standard APIError format.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, APIError{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

func (h *Handler) writeOutcomeError(w http.ResponseWriter, info *application.ErrorInfo) {
	if info == nil {
		h.writeError(w, http.StatusInternalServerError, string(domain.CategoryInternal), "Unknown error", "")
		return
	}
	h.writeJSON(w, statusFor(info.Category), APIError{
		Error:     info.Message,
		Code:      string(info.Category),
		Retryable: info.Retryable,
	})
}

// statusFor maps an error category onto an HTTP status.
func statusFor(c domain.ErrorCategory) int {
	switch c {
	case domain.CategoryNotFound:
		return http.StatusNotFound
	case domain.CategoryInvalidState:
		return http.StatusConflict
	case domain.CategoryStorage:
		return http.StatusServiceUnavailable
	case domain.CategoryMalformedRecord:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug(log.CatHTTP, "Request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}
