package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/2rkf/nekoi/middleware"
	"github.com/2rkf/nekoi/pkg/quota"
)

// Handler exposes the limiter as a decision service for callers that are
// not Go HTTP handlers themselves.
type Handler struct {
	limiter quota.Limiter
	logger  *slog.Logger
	onReset func(identity string)
}

// NewHandler creates a new API handler. onReset, if not nil, runs after an
// identity's counter was deleted.
func NewHandler(limiter quota.Limiter, logger *slog.Logger, onReset func(identity string)) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{limiter: limiter, logger: logger, onReset: onReset}
}

// CheckRequest is the body of POST /check.
type CheckRequest struct {
	Identity string `json:"identity"`           // Required: who is being counted
	Extended bool   `json:"extended,omitempty"` // Optional: use the 10x tier for this call
}

// StatusResponse describes a quota decision. Durations are whole seconds.
type StatusResponse struct {
	Identity   string `json:"identity,omitempty"`
	Allowed    bool   `json:"allowed"`
	Limit      int64  `json:"limit"`
	Remaining  int64  `json:"remaining"`
	ResetAfter int64  `json:"reset_after"`
	RetryAfter *int64 `json:"retry_after,omitempty"`
}

func newStatusResponse(identity string, st *quota.Status) StatusResponse {
	resp := StatusResponse{
		Identity:   identity,
		Allowed:    st.Allowed,
		Limit:      st.Limit,
		Remaining:  st.Remaining,
		ResetAfter: st.ResetAfterSeconds(),
	}
	if secs, ok := st.RetryAfterSeconds(); ok {
		resp.RetryAfter = &secs
	}
	return resp
}

// Check handles POST /check: counts one request and answers 200 or 429.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	if strings.TrimSpace(req.Identity) == "" {
		sendError(w, http.StatusBadRequest, "identity is required.")
		return
	}

	st, err := h.limiter.Check(r.Context(), req.Identity, req.Extended)
	if err != nil {
		h.storeError(w, r, "check", req.Identity, err)
		return
	}

	middleware.SetHeaders(w.Header(), st)
	code := http.StatusOK
	if !st.Allowed {
		secs, _ := st.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		code = http.StatusTooManyRequests
	}
	sendJSON(w, code, newStatusResponse(req.Identity, st))
}

// Usage handles GET /usage/{identity}: reports the window without counting.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	extended, _ := strconv.ParseBool(r.URL.Query().Get("extended"))

	st, err := h.limiter.Peek(r.Context(), identity, extended)
	if err != nil {
		h.storeError(w, r, "peek", identity, err)
		return
	}

	middleware.SetHeaders(w.Header(), st)
	sendJSON(w, http.StatusOK, newStatusResponse(identity, st))
}

// ResetUsage handles DELETE /usage/{identity}.
func (h *Handler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	if err := h.limiter.Reset(r.Context(), identity); err != nil {
		h.storeError(w, r, "reset", identity, err)
		return
	}
	if h.onReset != nil {
		h.onReset(identity)
	}

	sendJSON(w, http.StatusOK, middleware.Response{
		Message: "Usage reset.",
		Status:  http.StatusOK,
		Success: true,
	})
}

// Ping handles GET /api/ping by probing the counter store.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.limiter.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		sendError(w, http.StatusServiceUnavailable, "Pong, but the counter store is unreachable.")
		return
	}

	sendJSON(w, http.StatusOK, middleware.Response{
		Message: "Pong! Counter store is healthy.",
		Status:  http.StatusOK,
		Success: true,
	})
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, op, identity string, err error) {
	if errors.Is(err, quota.ErrUnsupported) {
		sendError(w, http.StatusNotImplemented, "The counter store does not support this operation.")
		return
	}

	h.logger.Error("quota store error",
		"op", op,
		"identity", identity,
		"request_id", RequestIDFromContext(r.Context()),
		"error", err)
	w.Header().Set("Retry-After", "1")
	sendError(w, http.StatusServiceUnavailable, "Rate limit service unavailable.")
}

func sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code int, message string) {
	sendJSON(w, code, middleware.Response{Message: message, Status: code})
}
