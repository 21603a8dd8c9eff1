package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge/histogram spec.md's SPEC_FULL §6
// "Added metrics" section names, registered against a private registry so
// tests can construct independent instances without colliding on the
// default global one.
type Metrics struct {
	Registry *prometheus.Registry

	KeysTotal      prometheus.Gauge
	ObjectsTotal   prometheus.Gauge
	DedupHitsTotal prometheus.Counter
	GCObjectsTotal prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	TxDuration          prometheus.Histogram
}

// NewMetrics builds and registers every metric on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		KeysTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keys_total",
			Help: "Current number of keys in the store.",
		}),
		ObjectsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "objects_total",
			Help: "Current number of distinct content objects in the store.",
		}),
		DedupHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dedup_hits_total",
			Help: "Number of PUTs whose content already existed in the store.",
		}),
		GCObjectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gc_objects_total",
			Help: "Number of objects removed because their last referrer was removed.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status class.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		TxDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "store_transaction_duration_seconds",
			Help:    "Store transaction latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.KeysTotal, m.ObjectsTotal, m.DedupHitsTotal, m.GCObjectsTotal,
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.TxDuration,
	)
	return m
}

// promHandler exposes m's registry in the standard Prometheus text format.
func promHandler(m *Metrics) http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
