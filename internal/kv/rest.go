package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds every store round trip when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps how much of a store response is read.
const maxResponseBytes = 1 << 20

// RESTConfig configures the REST backend.
type RESTConfig struct {
	// URL is the base URL of the REST endpoint.
	URL string
	// Token is sent as a bearer token on every request.
	Token string
	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// HTTPClient overrides the HTTP client (tests). Its Timeout is left as is.
	HTTPClient *http.Client
}

// REST talks to an Upstash-compatible REST key-value service. Every command
// is a POST of a JSON array such as ["SET","k","v","PX","60000"], answered
// by {"result": ...} or {"error": "..."}.
type REST struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var (
	_ Store   = (*REST)(nil)
	_ Counter = (*REST)(nil)
	_ Locker  = (*REST)(nil)
	_ Taker   = (*REST)(nil)
)

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// NewREST creates a REST client.
func NewREST(cfg RESTConfig) (*REST, error) {
	if cfg.URL == "" {
		return nil, errors.New("REST store URL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("REST store token is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &REST{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
	}, nil
}

// do executes one command and returns the raw result. A JSON null result is
// returned as nil.
func (c *REST) do(ctx context.Context, args ...string) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s command: %w", args[0], err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", args[0], err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request failed: %v", ErrUnavailable, args[0], err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s response: %v", ErrUnavailable, args[0], err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnavailable, args[0], resp.StatusCode)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("store rejected credentials for %s (status %d)", args[0], resp.StatusCode)
	}

	var out restResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s response (status %d): %w", args[0], resp.StatusCode, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("store error for %s: %s", args[0], out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", args[0], resp.StatusCode)
	}
	if len(out.Result) == 0 || string(out.Result) == "null" {
		return nil, nil
	}
	return out.Result, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("unexpected result %s: %w", string(raw), err)
	}
	return s, nil
}

func ttlArgs(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	return []string{"PX", strconv.FormatInt(ttl.Milliseconds(), 10)}
}

// Get implements Store.
func (c *REST) Get(ctx context.Context, key string) (string, error) {
	raw, err := c.do(ctx, "GET", key)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", ErrNotFound
	}
	return decodeString(raw)
}

// Set implements Store.
func (c *REST) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := append([]string{"SET", key, value}, ttlArgs(ttl)...)
	_, err := c.do(ctx, args...)
	return err
}

// Delete implements Store.
func (c *REST) Delete(ctx context.Context, key string) error {
	_, err := c.do(ctx, "DEL", key)
	return err
}

// Incr implements Counter. The key is first created with its TTL by a
// SET NX so that INCR never leaves a counter without expiry.
func (c *REST) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl > 0 {
		if _, err := c.SetNX(ctx, key, "0", ttl); err != nil {
			return 0, err
		}
	}

	raw, err := c.do(ctx, "INCR", key)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("unexpected INCR result %s: %w", string(raw), err)
	}
	return n, nil
}

// Decr implements Counter.
func (c *REST) Decr(ctx context.Context, key string) (int64, error) {
	raw, err := c.do(ctx, "DECR", key)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("unexpected DECR result %s: %w", string(raw), err)
	}
	return n, nil
}

// SetNX implements Locker.
func (c *REST) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	args := append([]string{"SET", key, value, "NX"}, ttlArgs(ttl)...)
	raw, err := c.do(ctx, args...)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// GetDel implements Taker.
func (c *REST) GetDel(ctx context.Context, key string) (string, error) {
	raw, err := c.do(ctx, "GETDEL", key)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", ErrNotFound
	}
	return decodeString(raw)
}
