package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var (
	JWKSFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_jwks_fetch_total",
		Help: "Key set fetches from the identity provider.",
	}, []string{"result"})
	JWKSCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_jwks_cache_hits_total",
		Help: "Key set reads served from the cache.",
	})
	TokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_verify_total",
		Help: "Token verifications by signing method and outcome.",
	}, []string{"method", "result"})
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_session_created_total",
		Help: "Session creation attempts.",
	}, []string{"result"})
	SessionRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_session_refresh_total",
		Help: "Silent refresh attempts against the provider token endpoint.",
	}, []string{"result"})
	LogoutRevocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logout_revoke_total",
		Help: "Best-effort revocation calls made during logout.",
	}, []string{"result"})
	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_provider_request_duration_seconds",
		Help:    "Latency of calls to the identity provider.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
