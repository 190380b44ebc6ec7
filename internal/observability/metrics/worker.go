// Package metrics exposes the worker's Prometheus registry: pipeline
// outcomes by status and routing, processing durations, and index lock
// wait times.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pamin/idms/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	lockWait        prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idms",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Total processed documents by terminal status and routing.",
		},
		[]string{"service", "status", "routing"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "idms",
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "End-to-end document processing duration by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "idms",
			Subsystem: "pipeline",
			Name:      "documents_in_flight",
			Help:      "Number of documents currently in the pipeline.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	lockWait := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "idms",
			Subsystem: "index",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the vector index writer lock.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, lockWait)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		lockWait:        lockWait,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service string, result domain.PipelineResult, duration time.Duration) {
	m.processInFlight.Dec()

	routing := string(result.Routing)
	if routing == "" {
		routing = "none"
	}
	m.processTotal.WithLabelValues(service, string(result.Status), routing).Inc()
	m.processDuration.WithLabelValues(service, string(result.Status)).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveLockWait(wait time.Duration) {
	if wait < 0 {
		return
	}
	m.lockWait.Observe(wait.Seconds())
}
