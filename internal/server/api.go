package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"gavault/internal/analytics"
	"gavault/internal/identity"
	"gavault/internal/plan"
	"gavault/internal/refresh"
	"gavault/internal/usage"
)

// Connection states reported by /api/connection.
const (
	StateConnected    = "connected"
	StateNotConnected = "not_connected"
	StateCorrupt      = "corrupt"
)

// ConnectionResponse is the body of GET /api/connection.
type ConnectionResponse struct {
	State           string    `json:"state"`
	Kind            string    `json:"kind,omitempty"`
	Scope           string    `json:"scope,omitempty"`
	HasRefreshToken bool      `json:"hasRefreshToken"`
	ExpiresAt       time.Time `json:"expiresAt,omitzero"`
}

// FeatureUsage is one entry of GET /api/usage.
type FeatureUsage struct {
	usage.Usage
	Remaining int64 `json:"remaining"`
}

// UsageResponse is the body of GET /api/usage.
type UsageResponse struct {
	Tier        string            `json:"tier"`
	Consistency usage.Consistency `json:"consistency"`
	Features    []FeatureUsage    `json:"features"`
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, ConnectionResponse{State: StateNotConnected})
		return
	}

	st, err := s.vault.Inspect(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := ConnectionResponse{State: StateNotConnected, Kind: id.Kind()}
	switch {
	case st.Corrupt:
		resp.State = StateCorrupt
	case st.Present:
		resp.State = StateConnected
		resp.Scope = st.Scope
		resp.HasRefreshToken = st.HasRefreshToken
		resp.ExpiresAt = st.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		s.writeError(w, r, refresh.ErrNotConnected)
		return
	}
	if err := s.vault.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		s.writeError(w, r, refresh.ErrNotConnected)
		return
	}

	tier := s.tiers.Tier(r.Context(), id)
	resp := UsageResponse{
		Tier:        tier,
		Consistency: s.guard.Consistency(),
		Features:    []FeatureUsage{},
	}
	for _, feature := range s.plans.Features(tier) {
		u, err := s.guard.Peek(r.Context(), id, feature, s.plans.Limit(tier, feature))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Features = append(resp.Features, FeatureUsage{Usage: u, Remaining: u.Remaining()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	var accounts []analytics.Account
	s.guarded(w, r, plan.FeatureProperties, func(ctx context.Context, token string) error {
		var err error
		accounts, err = s.reporter.ListProperties(ctx, token)
		return err
	}, func() any {
		return map[string]any{"accounts": accounts}
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req analytics.ReportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{CodeInvalidRequest, "request body must be a report request"})
		return
	}
	// Reject bad requests before they cost quota.
	probe := req
	if _, err := probe.Normalize(); err != nil {
		s.writeError(w, r, err)
		return
	}

	var report *analytics.Report
	s.guarded(w, r, plan.FeatureQuery, func(ctx context.Context, token string) error {
		var err error
		report, err = s.reporter.RunReport(ctx, token, req)
		return err
	}, func() any {
		return report
	})
}

// guarded resolves a fresh access token, then runs fn under the usage guard
// for feature and writes body() on success.
func (s *Server) guarded(w http.ResponseWriter, r *http.Request, feature string,
	fn func(ctx context.Context, token string) error, body func() any) {
	ctx := r.Context()
	id, ok := identity.FromContext(ctx)
	if !ok {
		s.writeError(w, r, refresh.ErrNotConnected)
		return
	}

	token, err := s.tokens.AccessToken(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := s.plans.Limit(s.tiers.Tier(ctx, id), feature)
	err = s.guard.Wrap(ctx, id, feature, limit, func(ctx context.Context) error {
		return fn(ctx, token)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body())
}
