package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the relay.
// Every method tolerates a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	Events         *prometheus.CounterVec
	RemoteCalls    *prometheus.CounterVec
	RemoteLatency  *prometheus.HistogramVec
	JournalRecords prometheus.Gauge
	InflightJobs   prometheus.Gauge
	JobFailures    *prometheus.CounterVec
	SweepSize      prometheus.Gauge
	Sweeps         prometheus.Counter
}

// NewMetrics registers the relay instruments on a dedicated registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound lifecycle events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		RemoteCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Outbound calls by service, operation, and result.",
		}, []string{"service", "operation", "result"}),
		RemoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_seconds",
			Help:      "Outbound call latency by service.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),
		JournalRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "journal_records",
			Help:      "Bindings currently held in the journal.",
		}),
		InflightJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_jobs",
			Help:      "Dispatched units of work not yet finished.",
		}),
		JobFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_failures_total",
			Help:      "Units of work that returned an error, by job name.",
		}, []string{"job"}),
		SweepSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sweep_size",
			Help:      "Refreshes scheduled by the most recent recovery sweep.",
		}),
		Sweeps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Recovery sweeps started.",
		}),
	}
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveRemoteCall(service, operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(service, operation, result).Inc()
	m.RemoteLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

func (m *Metrics) SetJournalRecords(n int) {
	if m == nil {
		return
	}
	m.JournalRecords.Set(float64(n))
}

func (m *Metrics) SetInflight(n int) {
	if m == nil {
		return
	}
	m.InflightJobs.Set(float64(n))
}

func (m *Metrics) ObserveJobFailure(job string) {
	if m == nil {
		return
	}
	m.JobFailures.WithLabelValues(job).Inc()
}

func (m *Metrics) ObserveSweep(scheduled int) {
	if m == nil {
		return
	}
	m.Sweeps.Inc()
	m.SweepSize.Set(float64(scheduled))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
