// Package jobmetrics instruments the bulk action worker.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the worker collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	bulkItems *prometheus.CounterVec
	inFlight  *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default
// registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker times one task run.
type Tracker struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Track starts timing a run of task.
func (m *Metrics) Track(task string) *Tracker {
	return &Tracker{metrics: m, task: task, start: time.Now()}
}

// End records the outcome and returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	t.metrics.runs.WithLabelValues(t.task, outcome).Inc()
	t.metrics.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}

// ItemStarted marks one entity call of a bulk action as in flight. The
// returned func marks it done.
func (m *Metrics) ItemStarted(resource string) func() {
	if m == nil {
		return func() {}
	}
	g := m.inFlight.WithLabelValues(resource)
	g.Inc()
	return g.Dec
}

// AddBulkItems counts the entities a bulk action finished with.
func (m *Metrics) AddBulkItems(resource, action string, successful, failed int) {
	if m == nil {
		return
	}
	if successful > 0 {
		m.bulkItems.WithLabelValues(resource, action, "successful").Add(float64(successful))
	}
	if failed > 0 {
		m.bulkItems.WithLabelValues(resource, action, "failed").Add(float64(failed))
	}
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_worker_tasks_total",
		Help: "Worker task runs by task type and outcome.",
	}, []string{"task", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "admin_worker_task_duration_seconds",
		Help:    "Worker task run time by task type.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"task"})
	bulkItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_bulk_items_total",
		Help: "Entities processed by bulk actions by outcome.",
	}, []string{"resource", "action", "outcome"})
	inFlight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "admin_bulk_items_in_flight",
		Help: "Entity calls of bulk actions currently waiting on the API.",
	}, []string{"resource"})
	registerer.MustRegister(runs, duration, bulkItems, inFlight)
	return &Metrics{runs: runs, duration: duration, bulkItems: bulkItems, inFlight: inFlight}
}
