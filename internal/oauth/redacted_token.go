package oauth

// RedactedToken wraps a secret (client secret, provider token) so that it
// prints as "[REDACTED]" through fmt, encoding/json and encoding.TextMarshaler.
//
//	secret := oauth.NewRedactedToken(os.Getenv("GAVAULT_GOOGLE_CLIENT_SECRET"))
//	logging.Debug("OAuth", "config: %+v", secret) // [REDACTED]
type RedactedToken struct {
	value string
}

// NewRedactedToken wraps value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the secret. Only pass it to the component that sends it.
func (t RedactedToken) Value() string {
	return t.value
}

// IsEmpty reports whether no secret is set.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

// String implements fmt.Stringer.
func (t RedactedToken) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer.
func (t RedactedToken) GoString() string {
	return "oauth.RedactedToken{[REDACTED]}"
}

// MarshalText implements encoding.TextMarshaler.
func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// MarshalJSON implements json.Marshaler.
func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}
