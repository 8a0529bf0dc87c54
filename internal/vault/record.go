package vault

import (
	"time"
)

// Record is the OAuth credential material stored for one identity.
// ExpiresAtEpochMs is always derived from the provider's expires_in at
// issuance or refresh.
type Record struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken,omitempty"`
	Scope            string `json:"scope"`
	ExpiresAtEpochMs int64  `json:"expiresAtEpochMs"`
	SavedAtEpochMs   int64  `json:"savedAtEpochMs"`
}

// NewRecord builds a record from a provider response received at now.
func NewRecord(accessToken, refreshToken, scope string, expiresIn time.Duration, now time.Time) Record {
	return Record{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		Scope:            scope,
		ExpiresAtEpochMs: now.Add(expiresIn).UnixMilli(),
	}
}

// ExpiresAt returns the access token expiry.
func (r Record) ExpiresAt() time.Time {
	return time.UnixMilli(r.ExpiresAtEpochMs)
}

// SavedAt returns when the record was last written.
func (r Record) SavedAt() time.Time {
	return time.UnixMilli(r.SavedAtEpochMs)
}

// HasRefreshToken reports whether the record can be refreshed.
func (r Record) HasRefreshToken() bool {
	return r.RefreshToken != ""
}

// FreshAt reports whether the access token is still valid for more than
// margin at now.
func (r Record) FreshAt(now time.Time, margin time.Duration) bool {
	return r.ExpiresAt().After(now.Add(margin))
}
