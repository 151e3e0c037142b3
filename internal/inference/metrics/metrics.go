// Package metrics defines the Prometheus instruments for the batching
// scheduler and its request flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every batcher instrument. One instance is registered per
// process; tests create their own with a private registry.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	BatchSize       prometheus.Histogram
	RequestLatency  prometheus.Histogram
	BatchWaitTime   prometheus.Histogram
	InferenceTime   prometheus.Histogram
	QueueSize       prometheus.Gauge
	InflightBatches prometheus.Gauge
}

// New creates and registers the batcher metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batcher_requests_total",
			Help: "Total number of prediction requests",
		}, []string{"status"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "batcher_batch_size",
			Help:    "Distribution of batch sizes processed",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		RequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "batcher_request_latency_seconds",
			Help:    "End-to-end request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		BatchWaitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "batcher_batch_wait_time_seconds",
			Help:    "Time spent waiting to form a batch",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		InferenceTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "batcher_inference_time_seconds",
			Help:    "Model inference time per batch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batcher_queue_size",
			Help: "Current number of requests in queue",
		}),
		InflightBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batcher_inflight_batches",
			Help: "Current number of batches being processed",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.BatchSize,
		m.RequestLatency,
		m.BatchWaitTime,
		m.InferenceTime,
		m.QueueSize,
		m.InflightBatches,
	)
	return m
}
