package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type subject struct {
	kind string
	id   string
}

func (s subject) Kind() string { return s.kind }
func (s subject) ID() string   { return s.id }

func TestKeys_DefaultPrefix(t *testing.T) {
	k := NewKeys("")
	assert.Equal(t, DefaultKeyPrefix, k.Prefix())
	assert.Equal(t, "gavault:tokens:web:abc", k.Credential(subject{"web", "abc"}))
}

func TestKeys_WebAndPluginAreDisjoint(t *testing.T) {
	k := NewKeys("app:")
	web := subject{"web", "same-id"}
	plugin := subject{"plugin", "same-id"}

	assert.NotEqual(t, k.Credential(web), k.Credential(plugin))
	assert.NotEqual(t, k.Usage(web, "query", "2026-10"), k.Usage(plugin, "query", "2026-10"))
	assert.NotEqual(t, k.RefreshLock(web), k.RefreshLock(plugin))
	assert.NotEqual(t, k.Plan(web), k.Plan(plugin))
}

func TestKeys_UsagePerFeatureAndPeriod(t *testing.T) {
	k := NewKeys("app:")
	s := subject{"web", "u1"}

	assert.Equal(t, "app:usage:web:u1:query:2026-10", k.Usage(s, "query", "2026-10"))
	assert.NotEqual(t, k.Usage(s, "query", "2026-10"), k.Usage(s, "query", "2026-11"))
	assert.NotEqual(t, k.Usage(s, "query", "2026-10"), k.Usage(s, "properties", "2026-10"))
}

func TestKeys_AuthCodeIsHashed(t *testing.T) {
	k := NewKeys("app:")
	key := k.AuthCode("secret-code")

	assert.NotContains(t, key, "secret-code")
	assert.Len(t, key, len("app:authcode:")+64)
	assert.NotEqual(t, key, k.AuthCodeUsed("secret-code"))
}

func TestKeys_UnknownKindPanics(t *testing.T) {
	k := NewKeys("")
	assert.Panics(t, func() {
		k.Credential(subject{"robot", "x"})
	})
}

func TestKeys_Namespace(t *testing.T) {
	k := NewKeys("app:")
	tests := []struct {
		key  string
		want string
	}{
		{k.Credential(subject{"web", "a"}), "tokens:web"},
		{k.Credential(subject{"plugin", "a"}), "tokens:plugin"},
		{k.Usage(subject{"web", "a"}, "q", "2026-01"), "usage"},
		{k.AuthCode("c"), "authcode"},
		{k.AuthCodeUsed("c"), "authcode-used"},
		{k.RefreshLock(subject{"web", "a"}), "refreshlock"},
		{k.OAuthState("s"), "oauthstate"},
		{k.Plan(subject{"web", "a"}), "plan"},
		{"other:tokens:web:a", ""},
		{"app:unknown", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, k.Namespace(tt.key))
		})
	}
}
