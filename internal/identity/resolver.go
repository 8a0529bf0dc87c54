package identity

import (
	"net/http"
	"strings"

	"gavault/pkg/logging"
)

// DefaultCookieName is the session cookie used by the web flow.
const DefaultCookieName = "gavault_session"

// BearerVerifier turns a bearer token into the plugin user id it was
// issued for.
type BearerVerifier interface {
	Verify(token string) (userID string, err error)
}

// Resolver derives the caller identity of a request.
type Resolver struct {
	cookieName string
	verifier   BearerVerifier
}

// NewResolver creates a Resolver. A nil verifier disables the plugin path.
func NewResolver(cookieName string, verifier BearerVerifier) *Resolver {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Resolver{cookieName: cookieName, verifier: verifier}
}

// CookieName returns the name of the session cookie.
func (r *Resolver) CookieName() string {
	return r.cookieName
}

// Resolve returns the identity of req. A bearer token takes precedence: if
// present it must verify, and a bad token yields none without falling back
// to the cookie. Without a bearer token the session cookie's raw value is
// the web session id.
func (r *Resolver) Resolve(req *http.Request) (Identity, bool) {
	if token, ok := BearerToken(req); ok {
		if r.verifier == nil {
			return Identity{}, false
		}
		userID, err := r.verifier.Verify(token)
		if err != nil {
			logging.Debug("Identity", "Rejected bearer token: %v", err)
			return Identity{}, false
		}
		id := Plugin(userID)
		return id, !id.IsZero()
	}

	cookie, err := req.Cookie(r.cookieName)
	if err != nil {
		return Identity{}, false
	}
	id := Web(cookie.Value)
	return id, !id.IsZero()
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(req *http.Request) (string, bool) {
	header := req.Header.Get("Authorization")
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, true
}
