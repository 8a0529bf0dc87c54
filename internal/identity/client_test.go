package identity

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientCredentials_Authenticate(t *testing.T) {
	c := NewClientCredentials("plugin-client", "s3cret")

	form := func(id, secret string) *http.Request {
		v := url.Values{"client_id": {id}, "client_secret": {secret}}
		req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(v.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}
	basic := func(id, secret string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/oauth/token", nil)
		req.SetBasicAuth(id, secret)
		return req
	}

	assert.NoError(t, c.Authenticate(form("plugin-client", "s3cret")))
	assert.NoError(t, c.Authenticate(basic("plugin-client", "s3cret")))
	assert.ErrorIs(t, c.Authenticate(form("plugin-client", "wrong")), ErrInvalidClient)
	assert.ErrorIs(t, c.Authenticate(form("other", "s3cret")), ErrInvalidClient)
	assert.ErrorIs(t, c.Authenticate(form("", "")), ErrInvalidClient)
	assert.ErrorIs(t, c.Authenticate(basic("plugin-client", "nope")), ErrInvalidClient)
}

func TestClientCredentials_MatchID(t *testing.T) {
	c := NewClientCredentials("plugin-client", "s3cret")
	assert.True(t, c.MatchID("plugin-client"))
	assert.False(t, c.MatchID("plugin"))
	assert.False(t, NewClientCredentials("", "").MatchID(""))
}
