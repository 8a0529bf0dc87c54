package refresh

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProvider_Success(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "1//refresh", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.new","expires_in":3599,"scope":"https://www.googleapis.com/auth/analytics.readonly","token_type":"Bearer"}`))
	})

	p := NewHTTPProvider(srv.URL, "client-id", "client-secret", srv.Client())
	grant, err := p.Refresh(context.Background(), "1//refresh")
	require.NoError(t, err)
	assert.Equal(t, "ya29.new", grant.AccessToken)
	assert.Empty(t, grant.RefreshToken)
	assert.Equal(t, 3599*time.Second, grant.ExpiresIn)
	assert.Equal(t, "https://www.googleapis.com/auth/analytics.readonly", grant.Scope)
}

func TestHTTPProvider_Rotation(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"a","refresh_token":"1//rotated","expires_in":60}`))
	})

	grant, err := NewHTTPProvider(srv.URL, "id", "secret", srv.Client()).Refresh(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "1//rotated", grant.RefreshToken)
}

func TestHTTPProvider_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		rejected  bool
		transient bool
		code      string
	}{
		{name: "invalid grant", status: 400, body: `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`, rejected: true, code: "invalid_grant"},
		{name: "unauthorized client", status: 401, body: `{"error":"invalid_client"}`, rejected: true, code: "invalid_client"},
		{name: "rejection without body", status: 400, body: ``, rejected: true},
		{name: "server error", status: 500, body: `oops`, transient: true},
		{name: "unavailable", status: 503, body: ``, transient: true},
		{name: "missing access token", status: 200, body: `{"expires_in":3600}`, transient: true},
		{name: "missing expiry", status: 200, body: `{"access_token":"a"}`, transient: true},
		{name: "not json", status: 200, body: `<html>`, transient: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := NewHTTPProvider(srv.URL, "id", "secret", srv.Client()).Refresh(context.Background(), "r")
			require.Error(t, err)
			assert.Equal(t, tt.rejected, errorIsRefreshFailed(err))
			assert.Equal(t, tt.transient, errorIsTransient(err))
			if tt.rejected {
				var perr *ProviderError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tt.status, perr.StatusCode)
				assert.Equal(t, tt.code, perr.Code)
			}
			assert.NotContains(t, err.Error(), "revoked")
		})
	}
}

func TestHTTPProvider_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := srv.Client()
	client.Timeout = 50 * time.Millisecond

	_, err := NewHTTPProvider(srv.URL, "id", "secret", client).Refresh(context.Background(), "r")
	assert.ErrorIs(t, err, ErrTransient)
	assert.NotErrorIs(t, err, ErrRefreshFailed)
}

func TestNewHTTPProvider_Defaults(t *testing.T) {
	p := NewHTTPProvider("", "id", "secret", nil)
	assert.Equal(t, GoogleTokenURL, p.tokenURL)
	assert.Equal(t, DefaultTimeout, p.httpClient.Timeout)
}

func errorIsRefreshFailed(err error) bool {
	return errors.Is(err, ErrRefreshFailed)
}

func errorIsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
