package oauth

import (
	"net/http"
	"strconv"

	"gavault/internal/metrics"
)

// InstrumentedTransport counts every request made to the OAuth provider,
// labelled by provider name, status code (0 when no response) and host.
type InstrumentedTransport struct {
	name       string
	metrics    *metrics.Metrics
	underlying http.RoundTripper
}

// NewInstrumentedTransport wraps under (http.DefaultTransport when nil).
func NewInstrumentedTransport(name string, m *metrics.Metrics, under http.RoundTripper) *InstrumentedTransport {
	if under == nil {
		under = http.DefaultTransport
	}
	return &InstrumentedTransport{name: name, metrics: m, underlying: under}
}

// RoundTrip implements http.RoundTripper.
func (t *InstrumentedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.underlying.RoundTrip(r)
	var statusCode int
	if resp != nil {
		statusCode = resp.StatusCode
	}
	t.metrics.OAuthExternalRequests.WithLabelValues(t.name, strconv.Itoa(statusCode), r.URL.Host).Inc()
	return resp, err
}
