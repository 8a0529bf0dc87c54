package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"gavault/internal/vault"
	"gavault/pkg/logging"
)

// AnalyticsReadonlyScope is the Google Analytics read-only scope.
const AnalyticsReadonlyScope = "https://www.googleapis.com/auth/analytics.readonly"

// OAuth2Config is the subset of *oauth2.Config used by the Client.
type OAuth2Config interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

var _ OAuth2Config = (*oauth2.Config)(nil)

// Config configures the Google OAuth client.
type Config struct {
	ClientID     string
	ClientSecret RedactedToken
	// RedirectURL is the public URL of /auth/google/callback.
	RedirectURL string
	// Scopes defaults to AnalyticsReadonlyScope.
	Scopes []string
	// Endpoint defaults to google.Endpoint.
	Endpoint oauth2.Endpoint
}

// Client builds authorization URLs and exchanges codes with the provider.
type Client struct {
	config     OAuth2Config
	httpClient *http.Client
	clock      quartz.Clock
}

// NewClient creates a Client. httpClient is used for the code exchange and
// should carry an InstrumentedTransport; nil uses http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client, clock quartz.Clock) *Client {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{AnalyticsReadonlyScope}
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	return NewClientWithConfig(&oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret.Value(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint:     cfg.Endpoint,
	}, httpClient, clock)
}

// NewClientWithConfig wraps an existing OAuth2Config.
func NewClientWithConfig(config OAuth2Config, httpClient *http.Client, clock quartz.Clock) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Client{config: config, httpClient: httpClient, clock: clock}
}

// AuthCodeURL returns the consent URL. Offline access and forced consent
// make the provider return a refresh token every time. A non-empty verifier
// adds its S256 challenge.
func (c *Client) AuthCodeURL(state, verifier string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return c.config.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for a credential record. The expiry
// is derived from the provider's expires_in at the time of the response.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (vault.Record, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := c.config.Exchange(ctx, code, opts...)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return vault.Record{}, fmt.Errorf("provider rejected authorization code: %s", rerr.ErrorCode)
		}
		return vault.Record{}, fmt.Errorf("code exchange failed: %w", err)
	}
	if tok.AccessToken == "" {
		return vault.Record{}, errors.New("provider returned no access token")
	}

	now := c.clock.Now()
	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if tok.ExpiresIn <= 0 && !tok.Expiry.IsZero() {
		expiresIn = tok.Expiry.Sub(now)
	}

	scope, _ := tok.Extra("scope").(string)
	rec := vault.NewRecord(tok.AccessToken, tok.RefreshToken, scope, expiresIn, now)

	logging.Debug("OAuth", "Exchanged authorization code (expires_in=%s, refresh_token_present=%t)",
		expiresIn, tok.RefreshToken != "")
	return rec, nil
}
