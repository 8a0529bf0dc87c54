package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gavault/internal/analytics"
	"gavault/internal/kv"
	"gavault/internal/refresh"
	"gavault/internal/usage"
	"gavault/internal/vault"
	"gavault/pkg/logging"
)

// Error codes returned in API error bodies.
const (
	CodeNotConnected   = "NOT_CONNECTED"
	CodeCorrupt        = "CORRUPT"
	CodeRefreshFailed  = "REFRESH_FAILED"
	CodeNoRefreshToken = "NO_REFRESH_TOKEN"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeForbidden      = "FORBIDDEN"
	CodeUnavailable    = "UNAVAILABLE"
	CodeInternal       = "INTERNAL"
)

// retryAfterSeconds is sent with every retryable failure.
const retryAfterSeconds = 5

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RateLimitedResponse is the body of a RATE_LIMITED error.
type RateLimitedResponse struct {
	Error      string    `json:"error"`
	Feature    string    `json:"feature"`
	Limit      int64     `json:"limit"`
	Current    int64     `json:"current"`
	ResetAt    time.Time `json:"resetAt"`
	UpgradeURL string    `json:"upgradeUrl,omitempty"`
}

// writeError maps err onto a status and an error body. Messages are fixed
// strings; err itself never reaches the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var limited *usage.RateLimitedError
	if errors.As(err, &limited) {
		writeJSON(w, http.StatusTooManyRequests, RateLimitedResponse{
			Error:      CodeRateLimited,
			Feature:    limited.Feature,
			Limit:      limited.Limit,
			Current:    limited.Current,
			ResetAt:    limited.ResetAt,
			UpgradeURL: s.upgradeURL,
		})
		return
	}

	switch {
	case errors.Is(err, refresh.ErrNotConnected), errors.Is(err, vault.ErrNoIdentity):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{CodeNotConnected, "connect Google Analytics first"})
	case errors.Is(err, vault.ErrCorrupt):
		writeJSON(w, http.StatusConflict, ErrorResponse{CodeCorrupt, "stored credential is unreadable; reconnect Google Analytics"})
	case errors.Is(err, refresh.ErrRefreshFailed), errors.Is(err, analytics.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{CodeRefreshFailed, "Google rejected the credential; reconnect Google Analytics"})
	case errors.Is(err, refresh.ErrNoRefreshToken):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{CodeNoRefreshToken, "credential expired without offline access; reconnect Google Analytics"})
	case errors.Is(err, analytics.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{CodeInvalidRequest, "the report request is invalid"})
	case errors.Is(err, analytics.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{CodeForbidden, "no access to this property"})
	case errors.Is(err, refresh.ErrTransient),
		errors.Is(err, kv.ErrUnavailable),
		errors.Is(err, analytics.ErrUpstream),
		errors.Is(err, context.DeadlineExceeded):
		logging.Warn("HTTP", "Retryable failure on %s: %v", r.URL.Path, err)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{CodeUnavailable, "temporarily unavailable; retry later"})
	case errors.Is(err, context.Canceled):
		// The client went away; nothing useful can be written.
		logging.Debug("HTTP", "Request to %s canceled", r.URL.Path)
	default:
		logging.Error("HTTP", err, "Request to %s failed", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{CodeInternal, "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("HTTP", "Failed to write response: %v", err)
	}
}
