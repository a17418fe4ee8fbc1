// Package metrics provides Prometheus metrics collectors for the identity service.
//
// Purpose:
//
//	This package defines and exports Prometheus metrics for authentication and
//	token lifecycle operations. Metrics are registered globally and can be
//	accessed via the /metrics endpoint.
//
// Dependencies:
//   - github.com/prometheus/client_golang/prometheus: Prometheus Go client
//
// Usage:
//
//	Metrics are automatically registered when the package is imported.
//	Use the exported functions to record metric values:
//	  metrics.RecordAuthSuccess()
//	  metrics.RecordAuthFailure("invalid_credentials")
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "identity_service"
	subsystem = "auth"
)

var (
	// AuthAttemptsTotal counts login attempts by result.
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Total number of login attempts by result",
		},
		[]string{"result"}, // result: success, failure
	)

	// AuthFailuresTotal counts login failures by reason.
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Total number of login failures by reason",
		},
		[]string{"reason"}, // reason: invalid_credentials, account_locked, user_not_found
	)

	// RefreshTotal counts refresh token exchanges by result.
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "refresh_total",
			Help:      "Total number of refresh token exchanges by result",
		},
		[]string{"result"}, // result: success, reused, invalid
	)

	// LogoutsTotal counts token revocations.
	LogoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "logouts_total",
			Help:      "Total number of refresh tokens revoked via logout",
		},
	)

	// HMACVerificationsTotal counts org HMAC gate verifications by result.
	HMACVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hmac",
			Name:      "verifications_total",
			Help:      "Total number of HMAC signature verifications by result",
		},
		[]string{"result"}, // result: valid, invalid, unknown_client, stale_timestamp
	)
)

// RecordAuthSuccess records a successful login attempt.
func RecordAuthSuccess() {
	AuthAttemptsTotal.WithLabelValues("success").Inc()
}

// RecordAuthFailure records a failed login attempt with a reason.
func RecordAuthFailure(reason string) {
	AuthAttemptsTotal.WithLabelValues("failure").Inc()
	AuthFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordRefresh records the outcome of a refresh token exchange.
func RecordRefresh(result string) {
	RefreshTotal.WithLabelValues(result).Inc()
}

// RecordLogout records a successful logout.
func RecordLogout() {
	LogoutsTotal.Inc()
}

// RecordHMACVerification records the outcome of an HMAC gate check.
func RecordHMACVerification(result string) {
	HMACVerificationsTotal.WithLabelValues(result).Inc()
}
