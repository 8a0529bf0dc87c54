// Package vault stores OAuth credential records per caller identity.
//
// Records are serialized to JSON, sealed by the cipher with a fresh nonce
// and written to the key-value store without TTL. Every call round-trips to
// the store; there is no cache in front of it. A ciphertext that cannot be
// opened is reported as ErrCorrupt, never as ErrNotFound, so that a key
// rotation incident is distinguishable from a user who never connected.
package vault

import (
	"context"
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

var (
	// ErrNotFound is returned when no record exists for the identity.
	ErrNotFound = errors.New("credential record not found")

	// ErrCorrupt is returned when a stored record cannot be decrypted or
	// decoded.
	ErrCorrupt = errors.New("credential record is corrupt")

	// ErrNoIdentity is returned for operations on the zero identity.
	ErrNoIdentity = errors.New("identity is required")
)

// Cipher seals and opens record payloads.
type Cipher interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// Options configures a Vault.
type Options struct {
	Store   kv.Store
	Keys    kv.Keys
	Cipher  Cipher
	Clock   quartz.Clock
	Metrics *metrics.Metrics
}

// Vault maps identities to credential records.
type Vault struct {
	store   kv.Store
	keys    kv.Keys
	cipher  Cipher
	clock   quartz.Clock
	metrics *metrics.Metrics
}

// New creates a Vault.
func New(opts Options) (*Vault, error) {
	if opts.Store == nil {
		return nil, errors.New("vault store is required")
	}
	if opts.Cipher == nil {
		return nil, errors.New("vault cipher is required")
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
	return &Vault{
		store:   opts.Store,
		keys:    opts.Keys,
		cipher:  opts.Cipher,
		clock:   opts.Clock,
		metrics: opts.Metrics,
	}, nil
}

// Key returns the storage key of id's record.
func (v *Vault) Key(id identity.Identity) string {
	return v.keys.Credential(id)
}

// Get returns the record for id.
func (v *Vault) Get(ctx context.Context, id identity.Identity) (*Record, error) {
	if id.IsZero() {
		return nil, ErrNoIdentity
	}

	ciphertext, err := v.store.Get(ctx, v.Key(id))
	if errors.Is(err, kv.ErrNotFound) {
		v.metrics.VaultReads.WithLabelValues(metrics.ResultNotFound).Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		v.metrics.VaultReads.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("failed to read credential record: %w", err)
	}

	rec, err := v.open(ciphertext)
	if err != nil {
		v.metrics.VaultReads.WithLabelValues(metrics.ResultCorrupt).Inc()
		logging.Error("Vault", err, "Credential record for %s cannot be opened; check the encryption key", id)
		logging.Audit(logging.AuditEvent{
			Action:   "credential_corrupt",
			Outcome:  "failure",
			Identity: id.String(),
		})
		return nil, err
	}

	v.metrics.VaultReads.WithLabelValues(metrics.ResultOK).Inc()
	return rec, nil
}

func (v *Vault) open(ciphertext string) (*Record, error) {
	plaintext, err := v.cipher.Decrypt(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	var rec Record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if rec.AccessToken == "" {
		return nil, fmt.Errorf("%w: record has no access token", ErrCorrupt)
	}
	return &rec, nil
}

// Put stores rec for id, stamping SavedAtEpochMs. The record has no TTL.
func (v *Vault) Put(ctx context.Context, id identity.Identity, rec Record) error {
	if id.IsZero() {
		return ErrNoIdentity
	}
	if rec.AccessToken == "" {
		return errors.New("record has no access token")
	}

	rec.SavedAtEpochMs = v.clock.Now().UnixMilli()

	plaintext, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode credential record: %w", err)
	}
	ciphertext, err := v.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential record: %w", err)
	}

	if err := v.store.Set(ctx, v.Key(id), ciphertext, 0); err != nil {
		return fmt.Errorf("failed to write credential record: %w", err)
	}

	logging.Debug("Vault", "Stored credential record for %s (expires %s, refresh token: %t)",
		id, rec.ExpiresAt().UTC().Format(time.RFC3339), rec.HasRefreshToken())
	return nil
}

// Delete removes id's record. Deleting a missing record succeeds.
func (v *Vault) Delete(ctx context.Context, id identity.Identity) error {
	if id.IsZero() {
		return ErrNoIdentity
	}
	if err := v.store.Delete(ctx, v.Key(id)); err != nil {
		return fmt.Errorf("failed to delete credential record: %w", err)
	}
	logging.Audit(logging.AuditEvent{
		Action:   "credential_delete",
		Outcome:  "success",
		Identity: id.String(),
	})
	return nil
}

// Status describes a stored record without exposing any secret.
type Status struct {
	Key               string    `json:"key"`
	Present           bool      `json:"present"`
	Corrupt           bool      `json:"corrupt"`
	CiphertextLength  int       `json:"ciphertextLength"`
	AccessTokenLength int       `json:"accessTokenLength,omitempty"`
	HasRefreshToken   bool      `json:"hasRefreshToken"`
	Scope             string    `json:"scope,omitempty"`
	ExpiresAt         time.Time `json:"expiresAt,omitzero"`
	SavedAt           time.Time `json:"savedAt,omitzero"`
}

// Inspect reports the redacted status of id's record. Only store failures
// are returned as errors; a corrupt record is reported in the Status.
func (v *Vault) Inspect(ctx context.Context, id identity.Identity) (Status, error) {
	if id.IsZero() {
		return Status{}, ErrNoIdentity
	}

	st := Status{Key: v.Key(id)}
	ciphertext, err := v.store.Get(ctx, st.Key)
	if errors.Is(err, kv.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to read credential record: %w", err)
	}

	st.Present = true
	st.CiphertextLength = len(ciphertext)

	rec, err := v.open(ciphertext)
	if err != nil {
		st.Corrupt = true
		return st, nil
	}

	st.AccessTokenLength = len(rec.AccessToken)
	st.HasRefreshToken = rec.HasRefreshToken()
	st.Scope = rec.Scope
	st.ExpiresAt = rec.ExpiresAt().UTC()
	st.SavedAt = rec.SavedAt().UTC()
	return st, nil
}
