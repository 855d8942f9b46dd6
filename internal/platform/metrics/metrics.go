package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for navsync. It satisfies
// playback.Metrics so controllers report straight into the registry.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	sessionsStarted   prometheus.Counter
	sessionsEnded     prometheus.Counter
	pageConnections   prometheus.Counter
	activeSessions    prometheus.Gauge
	reconcileTotal    *prometheus.CounterVec
	reconcileDeferred prometheus.Counter
	cameraStarts      prometheus.Counter
	cameraFailures    *prometheus.CounterVec
	propagations      *prometheus.CounterVec
	droppedEchoes     prometheus.Counter
	loadFailures      *prometheus.CounterVec
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navsync_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navsync_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navsync_sessions_started_total",
			Help: "Total number of page sessions created",
		}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navsync_sessions_ended_total",
			Help: "Total number of page sessions ended",
		}),
		pageConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navsync_page_connections_total",
			Help: "Total number of page websocket connections upgraded",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "navsync_active_sessions",
			Help: "Number of sessions that are not ended",
		}),
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "navsync_reconcile_total",
			Help: "Reconcile passes that ran, by target mode",
		}, []string{"mode"}),
		reconcileDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navsync_reconcile_deferred_total",
			Help: "Reconcile requests deferred because a pass or sync was in flight",
		}),
		cameraStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navsync_camera_starts_total",
			Help: "Camera sessions that reached playback",
		}),
		cameraFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "navsync_camera_failures_total",
			Help: "Camera acquisitions that failed, by kind",
		}, []string{"kind"}),
		propagations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "navsync_propagations_total",
			Help: "Transport actions mirrored to the sibling channel, by action",
		}, []string{"action"}),
		droppedEchoes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navsync_dropped_echoes_total",
			Help: "Transport events suppressed while a sync or reconcile was in flight",
		}),
		loadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "navsync_load_failures_total",
			Help: "Media loads that failed or timed out, by channel",
		}, []string{"channel"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.sessionsStarted,
		m.sessionsEnded,
		m.pageConnections,
		m.activeSessions,
		m.reconcileTotal,
		m.reconcileDeferred,
		m.cameraStarts,
		m.cameraFailures,
		m.propagations,
		m.droppedEchoes,
		m.loadFailures,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSessionsStarted increments the sessions started counter.
func (m *Metrics) IncSessionsStarted() {
	m.sessionsStarted.Inc()
}

// IncSessionsEnded increments the sessions ended counter.
func (m *Metrics) IncSessionsEnded() {
	m.sessionsEnded.Inc()
}

// IncPageConnections increments the upgraded page connections counter.
func (m *Metrics) IncPageConnections() {
	m.pageConnections.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) IncReconcile(mode string) {
	m.reconcileTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) IncReconcileDeferred() {
	m.reconcileDeferred.Inc()
}

func (m *Metrics) IncCameraStart() {
	m.cameraStarts.Inc()
}

func (m *Metrics) IncCameraFailure(kind string) {
	m.cameraFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncPropagation(action string) {
	m.propagations.WithLabelValues(action).Inc()
}

func (m *Metrics) IncDroppedEcho() {
	m.droppedEchoes.Inc()
}

func (m *Metrics) IncLoadFailure(channel string) {
	m.loadFailures.WithLabelValues(channel).Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
