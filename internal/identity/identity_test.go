package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	w := Web("abc")
	assert.Equal(t, KindWeb, w.Kind())
	assert.Equal(t, "abc", w.ID())
	assert.True(t, w.IsWeb())
	assert.False(t, w.IsPlugin())

	p := Plugin("abc")
	assert.Equal(t, KindPlugin, p.Kind())
	assert.True(t, p.IsPlugin())

	assert.NotEqual(t, w, p)
	assert.True(t, Web("").IsZero())
	assert.True(t, Plugin("").IsZero())
	assert.True(t, Identity{}.IsZero())
}

func TestParse(t *testing.T) {
	tests := []struct {
		kind, id string
		want     Identity
		ok       bool
	}{
		{"web", "s1", Web("s1"), true},
		{"plugin", "u1", Plugin("u1"), true},
		{"web", "", Identity{}, false},
		{"admin", "x", Identity{}, false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.kind, tt.id)
		assert.Equal(t, tt.ok, ok, "%s/%s", tt.kind, tt.id)
		assert.Equal(t, tt.want, got)
	}
}

func TestString_Redacted(t *testing.T) {
	id := Web("0123456789abcdef-session")
	assert.Equal(t, "web:01234567...", id.String())
	assert.NotContains(t, id.String(), "session")
	assert.Equal(t, "none", Identity{}.String())
}
