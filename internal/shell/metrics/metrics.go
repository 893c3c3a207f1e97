// Package metrics exposes Prometheus collectors for simplet deployments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deployment outcomes used as the "outcome" label.
const (
	OutcomeSuccess  = "success"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// Recorder owns the simplet collectors and the registry they live in.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry          *prometheus.Registry
	deployments       *prometheus.CounterVec
	deployDuration    *prometheus.HistogramVec
	readinessAttempts *prometheus.HistogramVec
	runningStacks     prometheus.Gauge
}

// NewRecorder creates a Recorder backed by its own registry, including the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		deployments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simplets_deployments_total",
				Help: "Total simplet deployments by outcome",
			},
			[]string{"service", "outcome"},
		),
		deployDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simplets_deployment_duration_seconds",
				Help:    "Duration of simplet deployments from engine connect to ready",
				Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 90, 120},
			},
			[]string{"service"},
		),
		readinessAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simplets_readiness_attempts",
				Help:    "Database readiness checks needed per deployment",
				Buckets: prometheus.LinearBuckets(1, 3, 10),
			},
			[]string{"service"},
		),
		runningStacks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simplets_running_stacks",
			Help: "Stacks currently tracked in the running-stack registry",
		}),
	}

	r.registry.MustRegister(
		r.deployments,
		r.deployDuration,
		r.readinessAttempts,
		r.runningStacks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveDeployment records one finished deployment attempt.
func (r *Recorder) ObserveDeployment(service, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.deployments.WithLabelValues(service, outcome).Inc()
	if outcome != OutcomeRejected {
		r.deployDuration.WithLabelValues(service).Observe(elapsed.Seconds())
	}
}

// ObserveReadiness records how many readiness checks a deployment used.
func (r *Recorder) ObserveReadiness(service string, attempts int) {
	if r == nil || attempts == 0 {
		return
	}
	r.readinessAttempts.WithLabelValues(service).Observe(float64(attempts))
}

// SetRunningStacks publishes the registry size.
func (r *Recorder) SetRunningStacks(n int) {
	if r == nil {
		return
	}
	r.runningStacks.Set(float64(n))
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
