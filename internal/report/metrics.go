package report

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics keeps fetch counters in a private registry and mirrors them to a
// node-exporter style textfile on every ledger save and at the end of a run.
type Metrics struct {
	path     string
	registry *prometheus.Registry
	onError  func(error)

	items     *prometheus.CounterVec
	failures  *prometheus.CounterVec
	saves     prometheus.Counter
	index     prometheus.Gauge
	total     prometheus.Gauge
	elapsed   prometheus.Gauge
	remaining prometheus.Gauge
}

func NewMetrics(path string, onError func(error)) *Metrics {
	m := &Metrics{
		path:     path,
		registry: prometheus.NewRegistry(),
		onError:  onError,
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capset_fetch_items_total",
				Help: "Items processed by the bulk fetcher in this run",
			},
			[]string{"result"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capset_fetch_failures_total",
				Help: "Failed items by reason",
			},
			[]string{"reason"},
		),
		saves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "capset_ledger_saves_total",
			Help: "Ledger flushes to storage",
		}),
		index: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "capset_fetch_current_index",
			Help: "Index of the last reported item",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "capset_fetch_source_records",
			Help: "Records in the source list",
		}),
		elapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "capset_fetch_elapsed_seconds",
			Help: "Cumulative fetch time across runs",
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "capset_fetch_remaining_seconds",
			Help: "Projected time to finish",
		}),
	}
	m.registry.MustRegister(m.items, m.failures, m.saves, m.index, m.total, m.elapsed, m.remaining)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Start(info StartInfo) {
	m.total.Set(float64(info.Total))
	m.index.Set(float64(info.StartIndex))
}

func (m *Metrics) ItemCompleted(index int, _ string) {
	m.items.WithLabelValues("completed").Inc()
	m.index.Set(float64(index))
}

func (m *Metrics) ItemFailed(index int, _ string, reason string) {
	m.items.WithLabelValues("failed").Inc()
	m.failures.WithLabelValues(reason).Inc()
	m.index.Set(float64(index))
}

func (m *Metrics) Progress(p Progress) {
	m.elapsed.Set(p.Elapsed.Seconds())
	m.remaining.Set(p.Remaining.Seconds())
}

func (m *Metrics) Saved(string) {
	m.saves.Inc()
	m.flush()
}

func (m *Metrics) Warn(string) {}

func (m *Metrics) Summary(s Summary) {
	m.elapsed.Set(s.Elapsed.Seconds())
	m.remaining.Set(0)
	m.flush()
}

func (m *Metrics) flush() {
	if m.path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(m.path, m.registry); err != nil && m.onError != nil {
		m.onError(err)
	}
}
