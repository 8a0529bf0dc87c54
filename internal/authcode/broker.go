// Package authcode issues and redeems the short-lived, single-use
// authorization codes of the plugin OAuth flow.
//
// A code is 32 random bytes, base64url encoded. The store key is the
// SHA-256 of the code, so a dump of the store does not yield redeemable
// codes. Redemption deletes the code atomically when the store supports
// GETDEL. A redeemed code leaves a tombstone so that replays can be told
// apart in audit logs, while callers see the same error for unknown,
// expired and replayed codes.
package authcode

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"gavault/internal/identity"
	"gavault/internal/kv"
	"gavault/internal/metrics"
	"gavault/pkg/logging"
)

// DefaultTTL is the lifetime of an authorization code.
const DefaultTTL = 10 * time.Minute

const codeBytes = 32

// ErrNotFoundOrExpired is returned for any code that cannot be redeemed.
var ErrNotFoundOrExpired = errors.New("authorization code not found or expired")

// RedeemError is the redemption failure. Replayed is set when the code was
// already redeemed; it is for logging, not for the client response.
type RedeemError struct {
	Replayed bool
}

func (e *RedeemError) Error() string {
	return ErrNotFoundOrExpired.Error()
}

// Is makes every RedeemError match ErrNotFoundOrExpired.
func (e *RedeemError) Is(target error) bool {
	return target == ErrNotFoundOrExpired
}

// Grant is what a redeemed code was bound to.
type Grant struct {
	Identity identity.Identity
	Scope    string
	IssuedAt time.Time
}

type payload struct {
	Kind            string `json:"kind"`
	ID              string `json:"id"`
	Scope           string `json:"scope"`
	IssuedAtEpochMs int64  `json:"issuedAtEpochMs"`
}

// Options configures a Broker.
type Options struct {
	Store   kv.Store
	Keys    kv.Keys
	Clock   quartz.Clock
	Metrics *metrics.Metrics
	TTL     time.Duration
}

// Broker issues and redeems codes.
type Broker struct {
	store   kv.Store
	taker   kv.Taker
	keys    kv.Keys
	clock   quartz.Clock
	metrics *metrics.Metrics
	ttl     time.Duration
}

// New creates a Broker.
func New(opts Options) (*Broker, error) {
	if opts.Store == nil {
		return nil, errors.New("authcode store is required")
	}
	if opts.Keys == (kv.Keys{}) {
		opts.Keys = kv.NewKeys("")
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	b := &Broker{
		store:   opts.Store,
		keys:    opts.Keys,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		ttl:     opts.TTL,
	}
	if taker, ok := opts.Store.(kv.Taker); ok {
		b.taker = taker
	} else {
		logging.Warn("AuthCode", "Store does not support GETDEL; concurrent redemptions of one code may both succeed")
	}
	return b, nil
}

// TTL returns the code lifetime.
func (b *Broker) TTL() time.Duration {
	return b.ttl
}

// Issue creates a code bound to id and scope.
func (b *Broker) Issue(ctx context.Context, id identity.Identity, scope string) (string, error) {
	if id.IsZero() {
		return "", errors.New("identity is required")
	}

	raw := make([]byte, codeBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	code := base64.RawURLEncoding.EncodeToString(raw)

	data, err := json.Marshal(payload{
		Kind:            id.Kind(),
		ID:              id.ID(),
		Scope:           scope,
		IssuedAtEpochMs: b.clock.Now().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode code: %w", err)
	}

	if err := b.store.Set(ctx, b.keys.AuthCode(code), string(data), b.ttl); err != nil {
		return "", fmt.Errorf("failed to store code: %w", err)
	}

	logging.Debug("AuthCode", "Issued authorization code for %s", id)
	return code, nil
}

// Redeem consumes code and returns its grant. Failures caused by the code
// itself are *RedeemError (errors.Is ErrNotFoundOrExpired). Store failures
// are returned wrapped and are retryable.
func (b *Broker) Redeem(ctx context.Context, code string) (*Grant, error) {
	if code == "" {
		return nil, b.fail(&RedeemError{}, "empty code")
	}

	key := b.keys.AuthCode(code)
	value, err := b.take(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		replayed := b.wasRedeemed(ctx, code)
		reason := "unknown or expired code"
		if replayed {
			reason = "code already redeemed"
		}
		return nil, b.fail(&RedeemError{Replayed: replayed}, reason)
	}
	if err != nil {
		b.metrics.AuthCodeRedemptions.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("failed to redeem code: %w", err)
	}

	var p payload
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		return nil, b.fail(&RedeemError{}, "undecodable code payload")
	}
	id, ok := identity.Parse(p.Kind, p.ID)
	if !ok {
		return nil, b.fail(&RedeemError{}, "code bound to invalid identity")
	}

	issuedAt := time.UnixMilli(p.IssuedAtEpochMs)
	if b.clock.Now().Sub(issuedAt) >= b.ttl {
		return nil, b.fail(&RedeemError{}, "code past its lifetime")
	}

	if err := b.store.Set(ctx, b.keys.AuthCodeUsed(code), "1", b.ttl); err != nil {
		logging.Warn("AuthCode", "Failed to write redemption tombstone: %v", err)
	}

	b.metrics.AuthCodeRedemptions.WithLabelValues(metrics.ResultOK).Inc()
	logging.Audit(logging.AuditEvent{
		Action:   "authcode_redeem",
		Outcome:  "success",
		Identity: id.String(),
	})
	return &Grant{Identity: id, Scope: p.Scope, IssuedAt: issuedAt}, nil
}

// take reads and deletes key. Without GETDEL two concurrent callers can
// both read the value before either delete lands.
func (b *Broker) take(ctx context.Context, key string) (string, error) {
	if b.taker != nil {
		return b.taker.GetDel(ctx, key)
	}

	value, err := b.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if err := b.store.Delete(ctx, key); err != nil {
		return "", err
	}
	return value, nil
}

func (b *Broker) wasRedeemed(ctx context.Context, code string) bool {
	_, err := b.store.Get(ctx, b.keys.AuthCodeUsed(code))
	return err == nil
}

func (b *Broker) fail(err *RedeemError, reason string) error {
	result := metrics.ResultInvalid
	if err.Replayed {
		result = metrics.ResultReplayed
	}
	b.metrics.AuthCodeRedemptions.WithLabelValues(result).Inc()
	logging.Audit(logging.AuditEvent{
		Action:  "authcode_redeem",
		Outcome: "failure",
		Details: reason,
	})
	return err
}
