package refresh

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when the identity has no credential record.
	ErrNotConnected = errors.New("not connected")

	// ErrRefreshFailed is returned when the provider rejects the refresh
	// token, typically because the grant was revoked. The stored record is
	// left untouched.
	ErrRefreshFailed = errors.New("token refresh rejected by provider")

	// ErrNoRefreshToken is returned when the access token is stale and the
	// record was issued without offline access.
	ErrNoRefreshToken = errors.New("credential has no refresh token")

	// ErrTransient marks timeouts, provider 5xx responses and store
	// failures. Callers may retry; the engine never retries internally.
	ErrTransient = errors.New("transient refresh failure")
)

// ProviderError is a rejection returned by the token endpoint (HTTP 400 or
// 401). It never carries token material.
type ProviderError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("token endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Code)
}

// Is lets errors.Is(err, ErrRefreshFailed) match provider rejections.
func (e *ProviderError) Is(target error) bool {
	return target == ErrRefreshFailed
}
