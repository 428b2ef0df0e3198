package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the coordinator.
type Metrics struct {
	// Connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	AuthFailures      prometheus.Counter

	// Session metrics
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsFailed    prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Collaborator metrics
	ProviderErrors   prometheus.Counter
	StoreDegradedOps prometheus.Counter

	// Sweeper / fan-out metrics
	SweeperReaped prometheus.Counter
	FanoutEvents  prometheus.Counter
}

// New creates and registers all metrics against reg. Tests pass a fresh
// prometheus.NewRegistry so instances never collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wearlink_connections_active",
			Help: "Current number of connected devices",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wearlink_connections_total",
			Help: "Total number of admitted device connections",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wearlink_auth_failures_total",
			Help: "Total number of rejected connection attempts",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "wearlink_sessions_started_total",
			Help: "Total number of streaming sessions started",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "wearlink_sessions_completed_total",
			Help: "Total number of streaming sessions completed",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "wearlink_sessions_failed_total",
			Help: "Total number of streaming sessions ended failed",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wearlink_session_duration_seconds",
			Help:    "Streaming session duration from press to finalization",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}),
		ProviderErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "wearlink_provider_errors_total",
			Help: "Total number of failed conversation provider calls",
		}),
		StoreDegradedOps: factory.NewCounter(prometheus.CounterOpts{
			Name: "wearlink_store_degraded_ops_total",
			Help: "Total number of store operations skipped in degraded mode",
		}),
		SweeperReaped: factory.NewCounter(prometheus.CounterOpts{
			Name: "wearlink_sweeper_reaped_total",
			Help: "Total number of sessions force-terminated by the sweeper",
		}),
		FanoutEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "wearlink_fanout_events_total",
			Help: "Total number of lifecycle events delivered to companion clients",
		}),
	}
}
