package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/simple-photo-pipeline/pkg/pipeline"
)

const namespace = "photobooth"

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var states = []pipeline.PipelineState{
	pipeline.StateStopped,
	pipeline.StateStarting,
	pipeline.StateRunning,
	pipeline.StateStopping,
}

// Metrics holds the pipeline's Prometheus collectors on a private registry
type Metrics struct {
	Registry *prometheus.Registry

	PhotosReceived    prometheus.Counter
	PhotosProcessed   *prometheus.CounterVec
	PrintJobs         *prometheus.CounterVec
	CompositeDuration prometheus.Histogram
	QueueDepth        prometheus.Gauge
	State             *prometheus.GaugeVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PhotosReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photos_received_total",
			Help:      "Photos that settled in the watch folder and were queued.",
		}),
		PhotosProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photos_processed_total",
			Help:      "Compositing attempts by result and error kind.",
		}, []string{"result", "kind"}),
		PrintJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "print_jobs_total",
			Help:      "Print submissions by result and error kind.",
		}, []string{"result", "kind"}),
		CompositeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "composite_duration_seconds",
			Help:      "Time spent decoding, blending and encoding one photo.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Settled photos waiting for the processing worker.",
		}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_state",
			Help:      "1 for the pipeline's current state, 0 otherwise.",
		}, []string{"state"}),
	}

	m.Registry.MustRegister(
		m.PhotosReceived,
		m.PhotosProcessed,
		m.PrintJobs,
		m.CompositeDuration,
		m.QueueDepth,
		m.State,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.SetState(pipeline.StateStopped)
	return m
}

// SetState marks s as the current pipeline state
func (m *Metrics) SetState(s pipeline.PipelineState) {
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1
		}
		m.State.WithLabelValues(string(st)).Set(v)
	}
}

// Processed counts one compositing attempt; kind is empty on success
func (m *Metrics) Processed(kind string) {
	if kind == "" {
		m.PhotosProcessed.WithLabelValues(ResultSuccess, "").Inc()
		return
	}
	m.PhotosProcessed.WithLabelValues(ResultFailure, kind).Inc()
}

// Printed counts one print submission; kind is empty on success
func (m *Metrics) Printed(kind string) {
	if kind == "" {
		m.PrintJobs.WithLabelValues(ResultSuccess, "").Inc()
		return
	}
	m.PrintJobs.WithLabelValues(ResultFailure, kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
