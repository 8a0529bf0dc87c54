package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gavault/pkg/logging"
)

// GoogleTokenURL is Google's OAuth 2.0 token endpoint.
const GoogleTokenURL = "https://oauth2.googleapis.com/token"

const maxTokenResponseBytes = 1 << 20

// Grant is a successful refresh response.
type Grant struct {
	AccessToken string
	// RefreshToken is set only when the provider rotated it.
	RefreshToken string
	Scope        string
	ExpiresIn    time.Duration
}

// Provider exchanges a refresh token for a new access token.
type Provider interface {
	Refresh(ctx context.Context, refreshToken string) (*Grant, error)
}

// HTTPProvider calls an OAuth 2.0 token endpoint with the refresh_token
// grant.
type HTTPProvider struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider. A nil httpClient uses one with a
// 10 second timeout.
func NewHTTPProvider(tokenURL, clientID, clientSecret string, httpClient *http.Client) *HTTPProvider {
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPProvider{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Refresh implements Provider. 400 and 401 responses are returned as
// *ProviderError; everything else that fails wraps ErrTransient.
func (p *HTTPProvider) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", p.clientID)
	data.Set("client_secret", p.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: refresh request failed: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read refresh response: %v", ErrTransient, err)
	}

	var tr tokenResponse
	decodeErr := json.Unmarshal(body, &tr)

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		// The body may echo hints about the grant; keep it out of errors.
		logging.Debug("Refresh", "Token endpoint rejected refresh: status=%d error=%s", resp.StatusCode, tr.Error)
		return nil, &ProviderError{StatusCode: resp.StatusCode, Code: tr.Error, Description: tr.ErrorDescription}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: token endpoint returned status %d", ErrTransient, resp.StatusCode)
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: failed to parse refresh response: %v", ErrTransient, decodeErr)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh response has no access_token", ErrTransient)
	}
	if tr.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: refresh response has no expires_in", ErrTransient)
	}

	return &Grant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Scope:        tr.Scope,
		ExpiresIn:    time.Duration(tr.ExpiresIn) * time.Second,
	}, nil
}
