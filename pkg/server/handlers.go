package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"flowgate-hq/flowgate/pkg/action"
	"flowgate-hq/flowgate/pkg/audit"
	"flowgate-hq/flowgate/pkg/dispatch"
	"flowgate-hq/flowgate/pkg/telemetry/logging"
)

const (
	// defaultQueryLimit applies when GET /v1/audit names no limit.
	defaultQueryLimit = 50

	// maxQueryLimit caps a single audit page.
	maxQueryLimit = 500
)

// ActionsHandler accepts action submissions on POST /v1/actions and
// runs them through the dispatcher.
type ActionsHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewActionsHandler creates a new action submission handler.
func NewActionsHandler(d *dispatch.Dispatcher) *ActionsHandler {
	return &ActionsHandler{dispatcher: d}
}

// ServeHTTP implements http.Handler for action submission.
func (h *ActionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req action.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	// The engine identifies submissions; callers may supply their own id
	// for correlation but do not have to.
	if req.RequestID == "" {
		req.RequestID = logging.GetRequestID(r.Context())
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now()
	}

	result, err := h.dispatcher.Dispatch(r.Context(), &req)
	if err != nil {
		var vErr *action.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		slog.ErrorContext(r.Context(), "dispatch failed",
			"request_id", req.RequestID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch {
	case result.Pending != nil:
		writeJSON(w, http.StatusAccepted, result.Pending)
	case result.Denied != nil:
		writeJSON(w, denialStatus(result.Denied), result.Denied)
	default:
		writeJSON(w, http.StatusOK, result.Outcome)
	}
}

// denialStatus maps a denial to its HTTP status. Policy denials are
// forbidden; token handshake failures are conflicts since the request
// itself was well-formed.
func denialStatus(d *dispatch.Denial) int {
	if d.ErrorType == dispatch.ErrTypePolicyDenied {
		return http.StatusForbidden
	}
	return http.StatusConflict
}

// AuditHandler serves the audit trail on GET /v1/audit.
type AuditHandler struct {
	storage audit.Storage
}

// NewAuditHandler creates a new audit query handler.
func NewAuditHandler(storage audit.Storage) *AuditHandler {
	return &AuditHandler{storage: storage}
}

// auditResponse is the GET /v1/audit payload.
type auditResponse struct {
	Records []*audit.Record `json:"records"`
	Count   int64           `json:"count"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ServeHTTP implements http.Handler for audit queries.
func (h *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.storage.Query(r.Context(), query)
	if err != nil {
		slog.ErrorContext(r.Context(), "audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}

	count, err := h.storage.Count(r.Context(), query)
	if err != nil {
		slog.ErrorContext(r.Context(), "audit count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}

	writeJSON(w, http.StatusOK, &auditResponse{
		Records: records,
		Count:   count,
		Limit:   query.Limit,
		Offset:  query.Offset,
	})
}

// parseQuery builds an audit query from URL parameters.
func parseQuery(r *http.Request) (*audit.Query, error) {
	params := r.URL.Query()
	query := &audit.Query{
		RequestID:   params.Get("request_id"),
		ActionKind:  params.Get("action_kind"),
		Environment: params.Get("env"),
		Tier:        params.Get("tier"),
		Decision:    params.Get("decision"),
		Outcome:     params.Get("outcome"),
		Actor:       params.Get("actor"),
		Limit:       defaultQueryLimit,
	}

	if v := params.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, errors.New("start_time must be RFC 3339")
		}
		query.StartTime = &t
	}
	if v := params.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, errors.New("end_time must be RFC 3339")
		}
		query.EndTime = &t
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, errors.New("limit must be a positive integer")
		}
		if n > maxQueryLimit {
			n = maxQueryLimit
		}
		query.Limit = n
	}
	if v := params.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, errors.New("offset must be a non-negative integer")
		}
		query.Offset = n
	}

	return query, nil
}

// HealthHandler answers liveness probes on GET /healthz.
type HealthHandler struct{}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler for liveness checks.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}
