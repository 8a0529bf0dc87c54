// Package identity resolves inbound requests to a caller identity.
//
// An Identity is either a web session (browser, identified by the raw value
// of the session cookie) or a plugin user (API caller, identified by the
// subject of a plugin access token). The zero Identity means "none".
// Identities are resolved once at the HTTP boundary and then passed
// explicitly to the vault, refresh engine and usage guard.
package identity

import (
	"gavault/pkg/logging"
)

// Identity kinds. They double as storage namespaces.
const (
	KindWeb    = "web"
	KindPlugin = "plugin"
)

// Identity is a closed union of web and plugin callers.
type Identity struct {
	kind string
	id   string
}

// Web returns a web-session identity. An empty session id yields none.
func Web(sessionID string) Identity {
	if sessionID == "" {
		return Identity{}
	}
	return Identity{kind: KindWeb, id: sessionID}
}

// Plugin returns a plugin-user identity. An empty user id yields none.
func Plugin(userID string) Identity {
	if userID == "" {
		return Identity{}
	}
	return Identity{kind: KindPlugin, id: userID}
}

// Parse rebuilds an identity from its kind and id, as stored in
// authorization codes and OAuth state.
func Parse(kind, id string) (Identity, bool) {
	switch kind {
	case KindWeb:
		return Web(id), id != ""
	case KindPlugin:
		return Plugin(id), id != ""
	default:
		return Identity{}, false
	}
}

// Kind returns "web", "plugin" or "" for none.
func (i Identity) Kind() string { return i.kind }

// ID returns the raw session or user id.
func (i Identity) ID() string { return i.id }

// IsZero reports whether the identity is none.
func (i Identity) IsZero() bool { return i.kind == "" }

// IsWeb reports whether the identity is a web session.
func (i Identity) IsWeb() bool { return i.kind == KindWeb }

// IsPlugin reports whether the identity is a plugin user.
func (i Identity) IsPlugin() bool { return i.kind == KindPlugin }

// String returns a log-safe form. Session ids are bearer-equivalent, so
// only a prefix is shown.
func (i Identity) String() string {
	if i.IsZero() {
		return "none"
	}
	return i.kind + ":" + logging.TruncateID(i.id)
}
