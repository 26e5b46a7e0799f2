// Package metrics exposes Prometheus instrumentation for costing runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder collects costing metrics on a private registry. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	lineageDuration *prometheus.HistogramVec
	lineageTotal    *prometheus.CounterVec
	nodesComputed   prometheus.Counter
	nodesIncomplete prometheus.Counter
	runTotal        *prometheus.CounterVec
	runFailures     prometheus.Counter
}

// NewRecorder creates a Recorder with Go runtime and process collectors attached.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		lineageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "farmtrace_lineage_cost_duration_seconds",
			Help:    "Duration of a single lineage costing, load included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		lineageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmtrace_lineage_cost_total",
			Help: "Total lineage costings by outcome.",
		}, []string{"outcome"}),
		nodesComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "farmtrace_nodes_computed_total",
			Help: "Total batch nodes that received cost metrics.",
		}),
		nodesIncomplete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "farmtrace_nodes_incomplete_total",
			Help: "Total batch nodes computed without a positive output weight.",
		}),
		runTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmtrace_costing_runs_total",
			Help: "Total full costing runs by outcome.",
		}, []string{"outcome"}),
		runFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "farmtrace_costing_run_lineage_failures_total",
			Help: "Total lineages that failed inside full costing runs.",
		}),
	}

	registry.MustRegister(r.lineageDuration)
	registry.MustRegister(r.lineageTotal)
	registry.MustRegister(r.nodesComputed)
	registry.MustRegister(r.nodesIncomplete)
	registry.MustRegister(r.runTotal)
	registry.MustRegister(r.runFailures)

	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveLineage records one lineage costing.
func (r *Recorder) ObserveLineage(outcome string, elapsed time.Duration, computed, incomplete int) {
	if r == nil {
		return
	}
	r.lineageDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	r.lineageTotal.WithLabelValues(outcome).Inc()
	r.ObserveNodes(computed, incomplete)
}

// ObserveNodes counts nodes costed outside a single lineage request, as in a full run.
func (r *Recorder) ObserveNodes(computed, incomplete int) {
	if r == nil {
		return
	}
	r.nodesComputed.Add(float64(computed))
	r.nodesIncomplete.Add(float64(incomplete))
}

// ObserveRun records a full costing run and how many lineages failed in it.
func (r *Recorder) ObserveRun(outcome string, failedLineages int) {
	if r == nil {
		return
	}
	r.runTotal.WithLabelValues(outcome).Inc()
	r.runFailures.Add(float64(failedLineages))
}
