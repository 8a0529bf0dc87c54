// Package logging provides subsystem-tagged logging for gavault on top of
// Go's standard slog package.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatJSON, os.Stderr)
//
//	logging.Info("Vault", "Stored credential for %s", id)
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Error("Refresh", err, "Provider rejected refresh for %s", id)
//
// Every record carries a "subsystem" attribute. Subsystems used across the
// code base: Bootstrap, Config, HTTP, Identity, OAuth, AuthCode, Vault,
// Refresh, Usage and Analytics.
//
// # Audit Logging
//
// Credential lifecycle events are emitted through Audit:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:   "credential_corrupt",
//	    Outcome:  "failure",
//	    Identity: id.String(),
//	})
//
// Audit records are logged at INFO level with the message SECURITY_AUDIT so
// they can be filtered by log aggregation systems.
//
// # Secrets
//
// Access tokens, refresh tokens, authorization codes and client secrets are
// never passed to this package. Session and user ids are shortened with
// TruncateID before they are logged.
package logging
