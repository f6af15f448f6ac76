package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ats_gateway", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ats_gateway", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ats_gateway", Name: "gate_decisions_total", Help: "Authorization gate decisions by rule and outcome."},
		[]string{"rule", "outcome"},
	)
	BearerVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ats_gateway", Name: "bearer_verifications_total", Help: "Bearer token verifications by result."},
		[]string{"result"},
	)
	JWKSFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ats_gateway", Name: "jwks_fetches_total", Help: "Remote key set fetches by result."},
		[]string{"result"},
	)
	SignedURLVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ats_gateway", Name: "signed_url_verifications_total", Help: "Signed URL verifications by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(GateDecisions)
	reg.MustRegister(BearerVerifications)
	reg.MustRegister(JWKSFetches)
	reg.MustRegister(SignedURLVerifications)
}
