// Package observability holds the Prometheus metrics recorded by the cache,
// the connectivity observer and the notifier.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hay-kot/shelter/internal/core/connectivity"
	"github.com/hay-kot/shelter/internal/core/notify"
	"github.com/hay-kot/shelter/internal/core/offline"
)

const namespace = "shelter"

// Metrics holds the Prometheus counters and gauges for the daemon.
type Metrics struct {
	CacheLookups  *prometheus.CounterVec // labels: result={hit,miss,expired}
	CacheWrites   *prometheus.CounterVec // labels: outcome={ok,error}
	CachedEntries prometheus.Gauge
	Online        prometheus.Gauge
	Transitions   *prometheus.CounterVec // labels: to={online,offline}
	Notifications *prometheus.CounterVec // labels: outcome={shown,suppressed,failed}
	HTTPRequests  *prometheus.CounterVec // labels: route, code
}

var (
	_ offline.Recorder      = (*Metrics)(nil)
	_ connectivity.Recorder = (*Metrics)(nil)
	_ notify.Recorder       = (*Metrics)(nil)
)

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CacheLookups,
		m.CacheWrites,
		m.CachedEntries,
		m.Online,
		m.Transitions,
		m.Notifications,
		m.HTTPRequests,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache reads by result.",
		}, []string{"result"}),
		CacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache writes by outcome.",
		}, []string{"outcome"}),
		CachedEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries in the cache document, expired ones included.",
		}),
		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_online",
			Help:      "1 when the host is online, 0 otherwise.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connectivity_transitions_total",
			Help:      "Connectivity state changes by new state.",
		}, []string{"to"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification dispatch attempts by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
	}
}

// CacheLookup implements offline.Recorder.
func (m *Metrics) CacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

// CacheWrite implements offline.Recorder.
func (m *Metrics) CacheWrite(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.CacheWrites.WithLabelValues(outcome).Inc()
}

// CacheEntries implements offline.Recorder.
func (m *Metrics) CacheEntries(n int) {
	m.CachedEntries.Set(float64(n))
}

// ConnectivityOnline implements connectivity.Recorder.
func (m *Metrics) ConnectivityOnline(online bool) {
	if online {
		m.Online.Set(1)
		return
	}
	m.Online.Set(0)
}

// ConnectivityTransition implements connectivity.Recorder.
func (m *Metrics) ConnectivityTransition(online bool) {
	to := "offline"
	if online {
		to = "online"
	}
	m.Transitions.WithLabelValues(to).Inc()
}

// Notification implements notify.Recorder.
func (m *Metrics) Notification(outcome string) {
	m.Notifications.WithLabelValues(outcome).Inc()
}

// HTTPRequest implements httpapi.Recorder.
func (m *Metrics) HTTPRequest(route string, code int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
