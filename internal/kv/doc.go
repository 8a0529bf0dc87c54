// Package kv is the key-value store client used by every stateful part of
// gavault: credential records, usage counters, authorization codes, OAuth
// state and refresh locks.
//
// The Store interface covers the three operations the remote service is
// guaranteed to offer (GET, SET with optional TTL, DEL). Each call is an
// independent round trip; there are no transactions across calls.
//
// Backends may additionally implement Counter (atomic INCR), Locker
// (SET NX with TTL) and Taker (atomic GETDEL). Callers discover these with
// a type assertion and fall back to weaker, documented behavior when a
// capability is missing.
//
// # Backends
//
//   - REST: an Upstash-compatible HTTP endpoint. Commands are posted as a
//     JSON array and answered with {"result": ...} or {"error": ...}.
//   - Valkey: direct RESP connection through valkey-go.
//   - Memory: process-local map with clock-driven expiry, for development
//     and tests.
//
// # Key Layout
//
// Keys builds every storage key. The namespaces are disjoint so that web and
// plugin identities with equal raw ids never share a record:
//
//	{prefix}tokens:web:{sessionID}
//	{prefix}tokens:plugin:{userID}
//	{prefix}usage:{kind}:{id}:{feature}:{YYYY-MM}
//	{prefix}authcode:{sha256(code)}
//	{prefix}authcode-used:{sha256(code)}
//	{prefix}refreshlock:{kind}:{id}
//	{prefix}oauthstate:{state}
//	{prefix}plan:{kind}:{id}
package kv
