// Package oauth implements the Google connect flows.
//
// # Web flow
//
//  1. The browser calls /auth/google/start. A session cookie is set if the
//     browser has none, and a state bound to the session id is stored.
//  2. The browser is redirected to Google with access_type=offline and
//     prompt=consent so that a refresh token is always returned.
//  3. Google redirects to /auth/google/callback. The state is consumed, the
//     code is exchanged and the credential record is stored in the vault
//     under the web session identity.
//
// # Plugin flow
//
//  1. The plugin client sends the user to /oauth/authorize with client_id,
//     redirect_uri, state and response_type=code. The client id must match
//     the configured plugin client and state must be present.
//  2. After Google consent, the callback creates a new plugin user id,
//     stores the credential record under it and issues a single-use
//     authorization code, redirecting to redirect_uri with code and state.
//  3. The plugin client calls /oauth/token with its client credentials and
//     the code, and receives a signed plugin access token whose subject is
//     the plugin user id.
//
// # Security
//
// State values are 256-bit random strings kept in the key-value store for
// ten minutes and consumed on first use, so the callback can land on any
// instance. Secrets in configuration are wrapped in RedactedToken. Requests
// to the provider go through InstrumentedTransport for metrics.
package oauth
