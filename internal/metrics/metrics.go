// Package metrics holds the Prometheus collectors shared by the vault,
// refresh engine, authorization code broker and usage guard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gavault"

// Result label values.
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultCorrupt     = "corrupt"
	ResultError       = "error"
	ResultFresh       = "fresh"
	ResultRefreshed   = "refreshed"
	ResultRejected    = "rejected"
	ResultNoRefresh   = "no_refresh_token"
	ResultTransient   = "transient"
	ResultAllowed     = "allowed"
	ResultRateLimited = "rate_limited"
	ResultReplayed    = "replayed"
	ResultInvalid     = "invalid"
)

// Metrics is the set of gavault collectors.
type Metrics struct {
	RefreshTotal          *prometheus.CounterVec
	RefreshCoalesced      prometheus.Counter
	VaultReads            *prometheus.CounterVec
	UsageChecks           *prometheus.CounterVec
	AuthCodeRedemptions   *prometheus.CounterVec
	OAuthExternalRequests *prometheus.CounterVec
}

// New registers the collectors with registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		RefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Access token requests by outcome: fresh (no network call), refreshed, rejected, no_refresh_token, not_found, corrupt, transient.",
		}, []string{"result"}),
		RefreshCoalesced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_coalesced_total",
			Help:      "Callers that shared an in-flight refresh instead of starting their own.",
		}),
		VaultReads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_reads_total",
			Help:      "Credential record reads by outcome. A rising 'corrupt' count usually means the encryption key changed.",
		}, []string{"result"}),
		UsageChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_checks_total",
			Help:      "Usage guard decisions by feature and result.",
		}, []string{"feature", "result"}),
		AuthCodeRedemptions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authcode_redemptions_total",
			Help:      "Authorization code redemptions by outcome.",
		}, []string{"result"}),
		OAuthExternalRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_external_requests_total",
			Help:      "Requests made to the external OAuth provider. 'status_code' is 0 if the request failed with no response.",
		}, []string{"name", "status_code", "domain"}),
	}
}

// Discard returns collectors registered with a private registry. Used when
// a component is built without metrics, mostly in tests.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}
