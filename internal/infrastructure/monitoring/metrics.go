package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one host instance.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session lifecycle
	SessionsActive    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter

	// Attachment activity
	Attaches          prometheus.Counter
	Transfers         prometheus.Counter
	TransferConflicts prometheus.Counter
	Detaches          prometheus.Counter

	// Event routing
	EventsForwarded *prometheus.CounterVec
	EventsDropped   prometheus.Counter

	// Permissions
	PermissionDecisions *prometheus.CounterVec

	// Resize negotiation
	GuestResizes prometheus.Counter
	StaleResizes prometheus.Counter

	// WebSocket fan-out
	WSConnections prometheus.Gauge
	WSMessages    prometheus.Counter

	registry  *prometheus.Registry
	startTime time.Time
}

// NewMetrics creates a metrics collector registered on a fresh registry,
// so multiple host instances can coexist under test.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	m.registry = reg
	return m
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "host_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "host_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "host_guest_sessions_active",
				Help: "Number of live guest sessions",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "host_guest_sessions_created_total",
				Help: "Total guest sessions created",
			},
		),
		SessionsDestroyed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "host_guest_sessions_destroyed_total",
				Help: "Total guest sessions destroyed",
			},
		),

		Attaches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "host_attaches_total",
				Help: "Total element attach operations",
			},
		),
		Transfers: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "host_transfers_total",
				Help: "Total ownership transfers between elements",
			},
		),
		TransferConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "host_transfer_conflicts_total",
				Help: "Total transfers that evicted a live owner",
			},
		),
		Detaches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "host_detaches_total",
				Help: "Total element detach operations",
			},
		),

		EventsForwarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "host_guest_events_forwarded_total",
				Help: "Guest events forwarded to an owning element",
			},
			[]string{"type"},
		),
		EventsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "host_guest_events_dropped_total",
				Help: "Guest events dropped while the session was unowned",
			},
		),

		PermissionDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "host_permission_decisions_total",
				Help: "Permission request outcomes",
			},
			[]string{"kind", "outcome"},
		),

		GuestResizes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "host_guest_resizes_total",
				Help: "Guest viewport resizes applied",
			},
		),
		StaleResizes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "host_stale_resizes_total",
				Help: "Resize results discarded as stale",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "host_ws_connections",
				Help: "Open websocket event-stream connections",
			},
		),
		WSMessages: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "host_ws_messages_total",
				Help: "Websocket messages written",
			},
		),
	}
}

// SessionCreated records a session creation.
func (m *Metrics) SessionCreated() {
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

// SessionDestroyed records a session destruction.
func (m *Metrics) SessionDestroyed() {
	m.SessionsDestroyed.Inc()
	m.SessionsActive.Dec()
}

// Uptime returns time since the collector was created.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// Gatherer exposes the backing registry for the /metrics endpoint.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
