package solver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the solver's Prometheus metrics
type Metrics struct {
	ExecutionsTotal *prometheus.CounterVec
	FailuresTotal   *prometheus.CounterVec
	GasSavedTotal   prometheus.Counter
	QueueDepth      prometheus.Gauge
	DrainsTotal     prometheus.Counter
}

// NewMetrics creates and registers the solver metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lowtide_solver_executions_total",
				Help: "Total number of executed renewals",
			},
			[]string{"forced"},
		),
		FailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lowtide_solver_failures_total",
				Help: "Total number of failed renewal attempts",
			},
			[]string{"reason"},
		),
		GasSavedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lowtide_solver_gas_saved_total",
				Help: "Cumulative gas saved by deferring execution",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lowtide_solver_queue_depth",
				Help: "Number of entries currently queued",
			},
		),
		DrainsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lowtide_solver_drains_total",
				Help: "Total number of drain passes",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.ExecutionsTotal,
			m.FailuresTotal,
			m.GasSavedTotal,
			m.QueueDepth,
			m.DrainsTotal,
		)
	}

	return m
}
