// Package metrics exposes Prometheus counters for sync runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Punch outcomes
const (
	OutcomeSynced    = "synced"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
)

// Collector records run and punch metrics on its own registry
type Collector struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	punches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a collector with Go and process collectors registered
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eckclock",
			Name:      "sync_runs_total",
			Help:      "Finished device sync runs by action and final status.",
		}, []string{"action", "status"}),
		punches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eckclock",
			Name:      "punches_total",
			Help:      "Reconciled punches by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eckclock",
			Name:      "sync_duration_seconds",
			Help:      "Wall time of device sync runs.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"action"}),
	}
	c.registry.MustRegister(
		c.runs,
		c.punches,
		c.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveRun records one finished run
func (c *Collector) ObserveRun(action, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(action, status).Inc()
	c.duration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// AddPunches records reconciliation outcomes
func (c *Collector) AddPunches(synced, failed, duplicates int) {
	if c == nil {
		return
	}
	c.punches.WithLabelValues(OutcomeSynced).Add(float64(synced))
	c.punches.WithLabelValues(OutcomeFailed).Add(float64(failed))
	c.punches.WithLabelValues(OutcomeDuplicate).Add(float64(duplicates))
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
