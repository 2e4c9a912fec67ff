package core

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "wispy_guard"

var (
	loginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		},
		[]string{"outcome"},
	)

	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_refresh_total",
			Help:      "Refresh token rotations by outcome",
		},
		[]string{"outcome"},
	)

	auditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "audit_events_total",
			Help:      "Audit events recorded by action",
		},
		[]string{"action"},
	)

	auditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "audit_events_dropped_total",
			Help:      "Audit events dropped because the queue was full",
		},
	)

	blacklistInsertionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "blacklist_insertions_total",
			Help:      "IP addresses added to the blacklist by source",
		},
		[]string{"source"},
	)

	abuseScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "abuse_scan_duration_seconds",
			Help:      "Duration of abuse detection scans",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// outcomeLabel maps an error to a low-cardinality metric label.
func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "error"
}
