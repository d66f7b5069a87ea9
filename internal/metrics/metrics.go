// Package metrics provides Prometheus metrics for the identity server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginTransitions counts login session state transitions.
	LoginTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idp",
			Name:      "login_session_transitions_total",
			Help:      "Total number of login session state transitions",
		},
		[]string{"state", "strategy"},
	)

	// CodeRedemptions counts single-use code redemptions by outcome.
	CodeRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idp",
			Name:      "code_redemptions_total",
			Help:      "Total number of single-use code redemptions",
		},
		[]string{"type", "result"},
	)

	// RefreshRotations counts refresh token redemptions by outcome.
	RefreshRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idp",
			Name:      "refresh_token_redemptions_total",
			Help:      "Total number of refresh token redemptions",
		},
		[]string{"result"},
	)

	// SecurityEvents counts reported security events.
	SecurityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idp",
			Name:      "security_events_total",
			Help:      "Total number of security events",
		},
		[]string{"type"},
	)

	// PermissionCache counts permission cache lookups.
	PermissionCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idp",
			Name:      "permission_cache_lookups_total",
			Help:      "Permission cache lookups by result",
		},
		[]string{"result"},
	)

	// ExpiredSweeps counts login sessions moved to expired by the sweeper.
	ExpiredSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "idp",
			Name:      "login_sessions_swept_total",
			Help:      "Login sessions expired by the background sweep",
		},
	)
)

// RecordTransition records a login session moving into state.
func RecordTransition(state, strategy string) {
	LoginTransitions.WithLabelValues(state, strategy).Inc()
}

// RecordCodeRedemption records a code redemption outcome.
func RecordCodeRedemption(codeType, result string) {
	CodeRedemptions.WithLabelValues(codeType, result).Inc()
}

// RecordRefresh records a refresh token redemption outcome.
func RecordRefresh(result string) {
	RefreshRotations.WithLabelValues(result).Inc()
}

// RecordSecurityEvent records a security event.
func RecordSecurityEvent(eventType string) {
	SecurityEvents.WithLabelValues(eventType).Inc()
}

// RecordPermissionCache records a cache hit or miss.
func RecordPermissionCache(hit bool) {
	if hit {
		PermissionCache.WithLabelValues("hit").Inc()
		return
	}
	PermissionCache.WithLabelValues("miss").Inc()
}

// RecordSweep records the number of login sessions expired by a sweep.
func RecordSweep(n int) {
	ExpiredSweeps.Add(float64(n))
}
