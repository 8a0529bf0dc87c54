// Package server is the gavault HTTP surface.
//
// Routes:
//
//   - GET  /healthz, GET /metrics
//   - GET  /auth/google/start, GET /auth/google/callback (web connect flow)
//   - POST /auth/disconnect
//   - GET  /oauth/authorize, POST /oauth/token (plugin flow, rate limited per IP)
//   - GET  /api/connection, GET /api/usage
//   - GET  /api/properties (feature "properties"), POST /api/report (feature "query")
//
// Every request passes through the identity middleware, so handlers read the
// caller from the request context. Guarded routes obtain a fresh access token
// first and then run the downstream call under the usage guard.
package server
