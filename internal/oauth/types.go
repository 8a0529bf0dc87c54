package oauth

import (
	"time"
)

// Flow identifies which connect flow a state belongs to.
type Flow string

const (
	// FlowWeb connects a browser session.
	FlowWeb Flow = "web"
	// FlowPlugin connects a plugin user and ends with an authorization code
	// handed to the plugin client.
	FlowPlugin Flow = "plugin"
)

// State is the server-side data behind an OAuth state parameter. It links
// the provider callback to the request that started the flow.
type State struct {
	Flow Flow `json:"flow"`

	// SessionID is the web session being connected (web flow).
	SessionID string `json:"sessionId,omitempty"`

	// RedirectURI is where the plugin client receives its code (plugin flow).
	RedirectURI string `json:"redirectUri,omitempty"`

	// ClientState is the plugin client's own state, echoed back verbatim.
	ClientState string `json:"clientState,omitempty"`

	// CodeVerifier is the PKCE verifier sent with the code exchange.
	CodeVerifier string `json:"codeVerifier,omitempty"`

	// CreatedAt is when the flow started.
	CreatedAt time.Time `json:"createdAt"`
}

// TokenResponse is the /oauth/token success body (RFC 6749 section 5.1).
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// ErrorResponse is the RFC 6749 error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// RFC 6749 error codes used by the plugin endpoints.
const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeInvalidClient           = "invalid_client"
	ErrCodeInvalidGrant            = "invalid_grant"
	ErrCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
	ErrCodeTemporarilyUnavailable  = "temporarily_unavailable"
	ErrCodeServerError             = "server_error"
)
