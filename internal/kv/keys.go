package kv

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultKeyPrefix is prepended to every key when no prefix is configured.
const DefaultKeyPrefix = "gavault:"

// Namespaces. None of them is a prefix of another.
const (
	nsWebTokens    = "tokens:web:"
	nsPluginTokens = "tokens:plugin:"
	nsUsage        = "usage:"
	nsAuthCode     = "authcode:"
	nsAuthCodeUsed = "authcode-used:"
	nsRefreshLock  = "refreshlock:"
	nsOAuthState   = "oauthstate:"
	nsPlan         = "plan:"
)

// Subject is the part of a caller identity needed to build keys.
// identity.Identity satisfies it.
type Subject interface {
	Kind() string
	ID() string
}

// Keys builds storage keys under a common prefix.
type Keys struct {
	prefix string
}

// NewKeys returns a key builder. An empty prefix selects DefaultKeyPrefix.
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keys{prefix: prefix}
}

// Prefix returns the global key prefix.
func (k Keys) Prefix() string {
	return k.prefix
}

// Credential returns the key of the credential record for s. Web and plugin
// subjects live in separate namespaces. Unknown kinds panic because the
// identity union is closed.
func (k Keys) Credential(s Subject) string {
	switch s.Kind() {
	case "web":
		return k.prefix + nsWebTokens + s.ID()
	case "plugin":
		return k.prefix + nsPluginTokens + s.ID()
	default:
		panic("kv: unknown identity kind " + s.Kind())
	}
}

// Usage returns the counter key for (s, feature, period).
func (k Keys) Usage(s Subject, feature, period string) string {
	return k.prefix + nsUsage + s.Kind() + ":" + s.ID() + ":" + feature + ":" + period
}

// AuthCode returns the key of an authorization code. The code itself is
// hashed so a dump of the store does not expose redeemable codes.
func (k Keys) AuthCode(code string) string {
	return k.prefix + nsAuthCode + hashCode(code)
}

// AuthCodeUsed returns the tombstone key written after a code is redeemed.
func (k Keys) AuthCodeUsed(code string) string {
	return k.prefix + nsAuthCodeUsed + hashCode(code)
}

// RefreshLock returns the cross-process refresh lock key for s.
func (k Keys) RefreshLock(s Subject) string {
	return k.prefix + nsRefreshLock + s.Kind() + ":" + s.ID()
}

// OAuthState returns the key of a pending OAuth connect flow.
func (k Keys) OAuthState(state string) string {
	return k.prefix + nsOAuthState + state
}

// Plan returns the key holding the plan tier of s.
func (k Keys) Plan(s Subject) string {
	return k.prefix + nsPlan + s.Kind() + ":" + s.ID()
}

// Namespace reports which namespace a key belongs to, or "" when the key
// does not carry this builder's prefix. Used by diagnostics.
func (k Keys) Namespace(key string) string {
	if !strings.HasPrefix(key, k.prefix) {
		return ""
	}
	rest := strings.TrimPrefix(key, k.prefix)
	for _, ns := range []string{nsWebTokens, nsPluginTokens, nsUsage, nsAuthCodeUsed, nsAuthCode, nsRefreshLock, nsOAuthState, nsPlan} {
		if strings.HasPrefix(rest, ns) {
			return strings.TrimSuffix(ns, ":")
		}
	}
	return ""
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
