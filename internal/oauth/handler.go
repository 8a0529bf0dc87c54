package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"gavault/internal/authcode"
	"gavault/internal/identity"
	"gavault/internal/vault"
	"gavault/pkg/logging"
)

// sessionCookieMaxAge keeps the web session cookie for a year.
const sessionCookieMaxAge = 365 * 24 * 60 * 60

// Connector starts and completes the provider consent flow. verifier is the
// PKCE code verifier of the flow.
type Connector interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (vault.Record, error)
}

// CredentialStore persists the records obtained from the provider.
type CredentialStore interface {
	Put(ctx context.Context, id identity.Identity, rec vault.Record) error
}

// CodeBroker issues and redeems plugin authorization codes.
type CodeBroker interface {
	Issue(ctx context.Context, id identity.Identity, scope string) (string, error)
	Redeem(ctx context.Context, code string) (*authcode.Grant, error)
}

// TokenIssuer mints plugin access tokens.
type TokenIssuer interface {
	Issue(userID, scope string) (string, error)
	TTL() time.Duration
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Connector Connector
	Vault     CredentialStore
	States    *StateStore
	Codes     CodeBroker
	Tokens    TokenIssuer
	Client    *identity.ClientCredentials
	// CookieName is the web session cookie.
	CookieName string
	// SecureCookies sets the Secure attribute on the session cookie.
	SecureCookies bool
	// RedirectURIs is the plugin redirect allowlist. Empty allows any https
	// URL and http loopback URLs.
	RedirectURIs []string
	// AfterConnectURL is where the browser lands after a web connect.
	AfterConnectURL string
}

// Handler serves the web and plugin connect flows.
type Handler struct {
	connector       Connector
	vault           CredentialStore
	states          *StateStore
	codes           CodeBroker
	tokens          TokenIssuer
	client          *identity.ClientCredentials
	cookieName      string
	secureCookies   bool
	redirectURIs    []string
	afterConnectURL string
}

// NewHandler creates a Handler.
func NewHandler(opts HandlerOptions) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = identity.DefaultCookieName
	}
	if opts.AfterConnectURL == "" {
		opts.AfterConnectURL = "/"
	}
	return &Handler{
		connector:       opts.Connector,
		vault:           opts.Vault,
		states:          opts.States,
		codes:           opts.Codes,
		tokens:          opts.Tokens,
		client:          opts.Client,
		cookieName:      opts.CookieName,
		secureCookies:   opts.SecureCookies,
		redirectURIs:    opts.RedirectURIs,
		afterConnectURL: opts.AfterConnectURL,
	}
}

// StartWeb handles GET /auth/google/start. It makes sure the browser has a
// session cookie and redirects to the provider's consent screen.
func (h *Handler) StartWeb(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if id, ok := identity.FromContext(r.Context()); ok && id.IsWeb() {
		sessionID = id.ID()
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookieName,
			Value:    sessionID,
			Path:     "/",
			MaxAge:   sessionCookieMaxAge,
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}

	consentURL, err := h.begin(r.Context(), State{Flow: FlowWeb, SessionID: sessionID})
	if err != nil {
		logging.Error("OAuth", err, "Failed to start web connect flow")
		h.renderErrorPage(w, http.StatusServiceUnavailable, "Could not start the connection. Please try again.")
		return
	}

	http.Redirect(w, r, consentURL, http.StatusFound)
}

// Authorize handles GET /oauth/authorize for the plugin client.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	clientState := q.Get("state")
	responseType := q.Get("response_type")

	if clientID == "" {
		writeOAuthError(w, ErrCodeInvalidRequest, "client_id is required", http.StatusBadRequest)
		return
	}
	if !h.client.MatchID(clientID) {
		logging.Audit(logging.AuditEvent{Action: "plugin_authorize", Outcome: "denied", Details: "unknown client_id"})
		writeOAuthError(w, ErrCodeInvalidClient, "unknown client", http.StatusUnauthorized)
		return
	}
	if clientState == "" {
		writeOAuthError(w, ErrCodeInvalidRequest, "state is required", http.StatusBadRequest)
		return
	}
	if responseType != "" && responseType != "code" {
		writeOAuthError(w, ErrCodeUnsupportedResponseType, "only 'code' response type is supported", http.StatusBadRequest)
		return
	}
	if !h.allowedRedirect(redirectURI) {
		writeOAuthError(w, ErrCodeInvalidRequest, "redirect_uri is missing or not allowed", http.StatusBadRequest)
		return
	}

	consentURL, err := h.begin(r.Context(), State{
		Flow:        FlowPlugin,
		RedirectURI: redirectURI,
		ClientState: clientState,
	})
	if err != nil {
		logging.Error("OAuth", err, "Failed to start plugin connect flow")
		writeOAuthError(w, ErrCodeTemporarilyUnavailable, "could not start authorization", http.StatusServiceUnavailable)
		return
	}

	http.Redirect(w, r, consentURL, http.StatusFound)
}

// begin stores st with a fresh PKCE verifier and returns the consent URL.
func (h *Handler) begin(ctx context.Context, st State) (string, error) {
	st.CodeVerifier = oauth2.GenerateVerifier()
	state, err := h.states.Generate(ctx, st)
	if err != nil {
		return "", err
	}
	return h.connector.AuthCodeURL(state, st.CodeVerifier), nil
}

func (h *Handler) allowedRedirect(raw string) bool {
	if raw == "" {
		return false
	}
	if len(h.redirectURIs) > 0 {
		return slices.Contains(h.redirectURIs, raw)
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.Fragment != "" {
		return false
	}
	switch u.Scheme {
	case "https":
		return true
	case "http":
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1" || host == "::1"
	default:
		return false
	}
}

// Callback handles GET /auth/google/callback for both flows.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	errorParam := q.Get("error")

	st, err := h.states.Consume(r.Context(), q.Get("state"))
	if err != nil {
		if !errors.Is(err, ErrInvalidState) {
			logging.Error("OAuth", err, "Failed to load connect state")
			h.renderErrorPage(w, http.StatusServiceUnavailable, "Could not complete the connection. Please try again.")
			return
		}
		h.renderErrorPage(w, http.StatusBadRequest, "The connection request expired. Please start again.")
		return
	}

	if errorParam != "" {
		logging.Warn("OAuth", "Provider returned error for %s flow: %s", st.Flow, errorParam)
		if st.Flow == FlowPlugin {
			redirectWithParams(w, r, st.RedirectURI, url.Values{"error": {"access_denied"}, "state": {st.ClientState}})
			return
		}
		h.renderErrorPage(w, http.StatusBadRequest, "Access was not granted.")
		return
	}
	if code == "" {
		h.renderErrorPage(w, http.StatusBadRequest, "Invalid callback: missing authorization code.")
		return
	}

	rec, err := h.connector.Exchange(r.Context(), code, st.CodeVerifier)
	if err != nil {
		logging.Error("OAuth", err, "Failed to exchange authorization code")
		h.renderErrorPage(w, http.StatusBadGateway, "Failed to complete the connection. Please try again.")
		return
	}
	if !rec.HasRefreshToken() {
		logging.Warn("OAuth", "Provider returned no refresh token; the connection will stop working at expiry")
	}

	switch st.Flow {
	case FlowWeb:
		h.completeWeb(w, r, st, rec)
	case FlowPlugin:
		h.completePlugin(w, r, st, rec)
	default:
		h.renderErrorPage(w, http.StatusBadRequest, "Unknown connection flow.")
	}
}

func (h *Handler) completeWeb(w http.ResponseWriter, r *http.Request, st *State, rec vault.Record) {
	id := identity.Web(st.SessionID)
	if err := h.vault.Put(r.Context(), id, rec); err != nil {
		logging.Error("OAuth", err, "Failed to store credential for %s", id)
		h.renderErrorPage(w, http.StatusServiceUnavailable, "Could not save the connection. Please try again.")
		return
	}

	logging.Audit(logging.AuditEvent{Action: "connect", Outcome: "success", Identity: id.String()})
	http.Redirect(w, r, h.afterConnectURL, http.StatusSeeOther)
}

func (h *Handler) completePlugin(w http.ResponseWriter, r *http.Request, st *State, rec vault.Record) {
	id := identity.Plugin(uuid.NewString())
	if err := h.vault.Put(r.Context(), id, rec); err != nil {
		logging.Error("OAuth", err, "Failed to store credential for %s", id)
		h.renderErrorPage(w, http.StatusServiceUnavailable, "Could not save the connection. Please try again.")
		return
	}

	code, err := h.codes.Issue(r.Context(), id, rec.Scope)
	if err != nil {
		logging.Error("OAuth", err, "Failed to issue authorization code for %s", id)
		redirectWithParams(w, r, st.RedirectURI, url.Values{"error": {ErrCodeServerError}, "state": {st.ClientState}})
		return
	}

	logging.Audit(logging.AuditEvent{Action: "connect", Outcome: "success", Identity: id.String()})
	redirectWithParams(w, r, st.RedirectURI, url.Values{"code": {code}, "state": {st.ClientState}})
}

// Token handles POST /oauth/token (authorization_code grant).
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, ErrCodeInvalidRequest, "invalid form data", http.StatusBadRequest)
		return
	}
	if grantType := r.PostForm.Get("grant_type"); grantType != "authorization_code" {
		writeOAuthError(w, ErrCodeUnsupportedGrantType, "only authorization_code is supported", http.StatusBadRequest)
		return
	}
	if err := h.client.Authenticate(r); err != nil {
		logging.Audit(logging.AuditEvent{Action: "token_exchange", Outcome: "denied", Details: "client authentication failed"})
		w.Header().Set("WWW-Authenticate", `Basic realm="gavault"`)
		writeOAuthError(w, ErrCodeInvalidClient, "client authentication failed", http.StatusUnauthorized)
		return
	}

	code := r.PostForm.Get("code")
	if code == "" {
		writeOAuthError(w, ErrCodeInvalidRequest, "code is required", http.StatusBadRequest)
		return
	}

	grant, err := h.codes.Redeem(r.Context(), code)
	if errors.Is(err, authcode.ErrNotFoundOrExpired) {
		writeOAuthError(w, ErrCodeInvalidGrant, "authorization code is invalid or expired", http.StatusBadRequest)
		return
	}
	if err != nil {
		logging.Error("OAuth", err, "Failed to redeem authorization code")
		writeOAuthError(w, ErrCodeTemporarilyUnavailable, "try again later", http.StatusServiceUnavailable)
		return
	}
	if !grant.Identity.IsPlugin() {
		writeOAuthError(w, ErrCodeInvalidGrant, "authorization code is invalid or expired", http.StatusBadRequest)
		return
	}

	accessToken, err := h.tokens.Issue(grant.Identity.ID(), grant.Scope)
	if err != nil {
		logging.Error("OAuth", err, "Failed to issue plugin access token")
		writeOAuthError(w, ErrCodeServerError, "could not issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokens.TTL() / time.Second),
		Scope:       grant.Scope,
	})
}

func redirectWithParams(w http.ResponseWriter, r *http.Request, target string, params url.Values) {
	u, err := url.Parse(target)
	if err != nil {
		http.Error(w, "invalid redirect", http.StatusBadRequest)
		return
	}
	q := u.Query()
	for k, vs := range params {
		if len(vs) > 0 && vs[0] != "" {
			q.Set(k, vs[0])
		}
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// writeOAuthError writes an RFC 6749 error response.
func writeOAuthError(w http.ResponseWriter, code, description string, status int) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("OAuth", "Failed to write response: %v", err)
	}
}

// setSecurityHeaders sets recommended security headers for HTML responses.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

// renderErrorPage renders a minimal HTML error page.
func (h *Handler) renderErrorPage(w http.ResponseWriter, status int, message string) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Connection failed</title>
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; max-width: 32rem; margin: 4rem auto; color: #222; }
        .message { color: #b00020; }
    </style>
</head>
<body>
    <h1>Google Analytics connection failed</h1>
    <p class="message">%s</p>
</body>
</html>`, html.EscapeString(message))
}
