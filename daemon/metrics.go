package daemon

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// The daemon's own counters, served on /metrics.  Each daemon has its own registry so that several
// can coexist in tests.

type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	ingested *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobstats",
				Name:      "report_requests_total",
				Help:      "Job report requests by outcome.",
			},
			[]string{"outcome"},
		),
		ingested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobstats",
				Name:      "ingested_jobs_total",
				Help:      "Finished jobs seen on the job topics, by cluster and outcome.",
			},
			[]string{"cluster", "outcome"},
		),
	}
	m.registry.MustRegister(m.requests, m.ingested)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
