package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Login and handshake metrics
	LoginsTotal         *prometheus.CounterVec
	HandshakesTotal     *prometheus.CounterVec
	HandshakeDuration   *prometheus.HistogramVec

	// Session metrics
	SessionsCreatedTotal  *prometheus.CounterVec
	SessionsRevokedTotal  *prometheus.CounterVec
	SessionsExpiredTotal  *prometheus.CounterVec
	SessionsExtendedTotal *prometheus.CounterVec
	ActiveSessions        prometheus.Gauge

	// Validation metrics
	ValidationsTotal   *prometheus.CounterVec
	ValidationDuration *prometheus.HistogramVec

	// Lookup-cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Logout-notification metrics
	NotificationsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gangway_logins_total",
				Help: "Total number of primary login attempts",
			},
			[]string{"outcome"},
		),
		HandshakesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gangway_handshakes_total",
				Help: "Total number of SSO handshakes",
			},
			[]string{"service", "outcome"},
		),
		HandshakeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gangway_handshake_duration_seconds",
				Help:    "Time from handshake initiation to completion",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		SessionsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gangway_sessions_created_total",
				Help: "Total number of SSO sessions created",
			},
			[]string{"service"},
		),
		SessionsRevokedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gangway_sessions_revoked_total",
				Help: "Total number of SSO sessions explicitly revoked",
			},
			[]string{"service"},
		),
		SessionsExpiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gangway_sessions_expired_total",
				Help: "Total number of sessions transitioned to expired by the sweep",
			},
			[]string{"service"},
		),
		SessionsExtendedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gangway_sessions_extended_total",
				Help: "Total number of session extensions",
			},
			[]string{"service"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gangway_active_sessions",
				Help: "Number of currently active SSO sessions",
			},
		),
		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gangway_validations_total",
				Help: "Total number of credential validations by reason",
			},
			[]string{"service", "reason"},
		),
		ValidationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gangway_validation_duration_seconds",
				Help:    "Credential validation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gangway_cache_hits_total",
				Help: "Total number of token lookup-cache hits",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gangway_cache_misses_total",
				Help: "Total number of token lookup-cache misses",
			},
			[]string{"kind"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gangway_logout_notifications_total",
				Help: "Total number of relying-service logout notifications",
			},
			[]string{"service", "outcome"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gangway_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gangway_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.LoginsTotal,
		m.HandshakesTotal,
		m.HandshakeDuration,
		m.SessionsCreatedTotal,
		m.SessionsRevokedTotal,
		m.SessionsExpiredTotal,
		m.SessionsExtendedTotal,
		m.ActiveSessions,
		m.ValidationsTotal,
		m.ValidationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.NotificationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// ObserveValidation records one validation outcome
func (m *Metrics) ObserveValidation(service, reason string, duration time.Duration) {
	m.ValidationsTotal.WithLabelValues(service, reason).Inc()
	m.ValidationDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// Handler returns an HTTP handler serving the metrics registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
