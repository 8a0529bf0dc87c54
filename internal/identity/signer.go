package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/golang-jwt/jwt/v5"
)

// MinSigningKeyLength is the minimum HMAC key size in bytes.
const MinSigningKeyLength = 32

// DefaultTokenTTL is the lifetime of plugin access tokens.
const DefaultTokenTTL = time.Hour

// ErrInvalidToken is returned for any plugin access token that fails
// verification.
var ErrInvalidToken = errors.New("invalid plugin access token")

// PluginClaims are the claims of a plugin access token. The subject is the
// plugin user id.
type PluginClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and verifies plugin access tokens (HS256).
type Signer struct {
	key      []byte
	audience string
	ttl      time.Duration
	clock    quartz.Clock
}

var _ BearerVerifier = (*Signer)(nil)

// NewSigner creates a Signer. audience is the plugin client id.
func NewSigner(key []byte, audience string, ttl time.Duration, clock quartz.Clock) (*Signer, error) {
	if len(key) < MinSigningKeyLength {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinSigningKeyLength, len(key))
	}
	if audience == "" {
		return nil, errors.New("signer audience is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Signer{key: key, audience: audience, ttl: ttl, clock: clock}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed token for the plugin user.
func (s *Signer) Issue(userID, scope string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}

	now := s.clock.Now()
	claims := PluginClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, audience and expiry and returns the plugin user
// id embedded at issuance.
func (s *Signer) Verify(token string) (string, error) {
	claims := &PluginClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.clock.Now() }),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
