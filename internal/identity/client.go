package identity

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

// ErrInvalidClient is returned when a request does not carry the
// configured plugin client credentials.
var ErrInvalidClient = errors.New("invalid client credentials")

// ClientCredentials recognises the single static plugin client.
type ClientCredentials struct {
	id     string
	secret string
}

// NewClientCredentials creates a ClientCredentials checker.
func NewClientCredentials(id, secret string) *ClientCredentials {
	return &ClientCredentials{id: id, secret: secret}
}

// ID returns the configured client id.
func (c *ClientCredentials) ID() string {
	return c.id
}

// MatchID reports whether clientID is the configured client id.
func (c *ClientCredentials) MatchID(clientID string) bool {
	return c.id != "" && subtle.ConstantTimeCompare([]byte(clientID), []byte(c.id)) == 1
}

// Authenticate checks the client id and secret presented through HTTP Basic
// authentication or the client_id and client_secret form fields.
func (c *ClientCredentials) Authenticate(r *http.Request) error {
	id, secret, ok := r.BasicAuth()
	if !ok {
		id = r.PostFormValue("client_id")
		secret = r.PostFormValue("client_secret")
	}
	if id == "" || secret == "" || c.secret == "" {
		return ErrInvalidClient
	}

	idOK := subtle.ConstantTimeCompare([]byte(id), []byte(c.id))
	secretOK := subtle.ConstantTimeCompare([]byte(secret), []byte(c.secret))
	if idOK&secretOK != 1 {
		return ErrInvalidClient
	}
	return nil
}
