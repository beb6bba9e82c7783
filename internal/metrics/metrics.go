// Package metrics provides Prometheus metrics for the call pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "callqa"

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing, so components can be built without metrics in tests.
type Metrics struct {
	gatherer prometheus.Gatherer

	CallsCreated        prometheus.Counter
	StatusTransitions   *prometheus.CounterVec
	TranscriptionStarts *prometheus.CounterVec
	WebhookOutcomes     *prometheus.CounterVec
	AnalysisOutcomes    *prometheus.CounterVec
	AnalysisDuration    prometheus.Histogram
	AnalysisQueueDepth  prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWith(reg, reg)
}

func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,

		CallsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_created_total",
			Help:      "Total number of calls created",
		}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_status_transitions_total",
			Help:      "Call status transitions by target status",
		}, []string{"status"}),
		TranscriptionStarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_starts_total",
			Help:      "Transcription job submissions by provider and result",
		}, []string{"provider", "result"}),
		WebhookOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_ingest_total",
			Help:      "Transcript ingestion outcomes by source (webhook, poll)",
		}, []string{"source", "outcome"}),
		AnalysisOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_runs_total",
			Help:      "Analysis runs by result",
		}, []string{"result"}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of analysis runs in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		AnalysisQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analysis_queue_depth",
			Help:      "Analysis tasks waiting for a worker",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) CallCreated() {
	if m == nil {
		return
	}
	m.CallsCreated.Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) TranscriptionStarted(provider string, err error) {
	if m == nil {
		return
	}
	m.TranscriptionStarts.WithLabelValues(provider, result(err)).Inc()
}

func (m *Metrics) Ingested(source, outcome string) {
	if m == nil {
		return
	}
	m.WebhookOutcomes.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) AnalysisFinished(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.AnalysisOutcomes.WithLabelValues(result(err)).Inc()
	m.AnalysisDuration.Observe(d.Seconds())
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.AnalysisQueueDepth.Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
