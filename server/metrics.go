package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	denials  prometheus.Counter
}

// NewMetrics registers all collectors on a dedicated registry, so several
// handlers (e.g. in tests) never collide on the default one.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantscope_requests_total",
			Help: "Entity operations handled, by entity, operation and HTTP status.",
		}, []string{"entity", "op", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantscope_request_duration_seconds",
			Help:    "Latency of entity operations including the storage call.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		denials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantscope_tenancy_denials_total",
			Help: "Requests rejected because no tenant could be resolved for the caller.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.denials,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observe(entity, op string, status int, start time.Time) {
	m.requests.WithLabelValues(entity, op, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
