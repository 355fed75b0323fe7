// Package metrics holds the Prometheus collectors shared by the API server
// and the index builder.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeInvalid        = "invalid"
	OutcomeNoContext      = "no_context"
	OutcomeUnavailable    = "unavailable"
	OutcomeUpstreamError  = "upstream_error"
	OutcomeRetrievalError = "retrieval_error"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the docchat collectors.
//
//   - docchat_chat_requests_total{outcome} - chat requests by outcome
//   - docchat_generation_duration_seconds - generation request latency
//   - docchat_indexed_chunks - chunks in the served collection
type Metrics struct {
	ChatRequests       *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	IndexedChunks      prometheus.Gauge
}

// Get returns the process-wide collectors, registering them on first use.
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ChatRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docchat_chat_requests_total",
					Help: "Total number of chat requests by outcome",
				},
				[]string{"outcome"},
			),
			GenerationDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docchat_generation_duration_seconds",
					Help:    "Duration of generation requests in seconds",
					Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
				},
			),
			IndexedChunks: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "docchat_indexed_chunks",
					Help: "Number of chunks in the collection being served",
				},
			),
		}
	})
	return globalMetrics
}

// RecordChat counts one chat request.
func (m *Metrics) RecordChat(outcome string) {
	m.ChatRequests.WithLabelValues(outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
