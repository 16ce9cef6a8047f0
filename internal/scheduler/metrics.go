package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("mlvisuals.scheduler")

var (
	// trialsTotal counts trials by batch kind and outcome (ok, failed, degenerate)
	trialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlvisuals",
		Subsystem: "scheduler",
		Name:      "trials_total",
		Help:      "Trials executed by batch kind and outcome",
	}, []string{"kind", "outcome"})

	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlvisuals",
		Subsystem: "scheduler",
		Name:      "sweep_steps_total",
		Help:      "Sweep steps by outcome (plotted, skipped)",
	}, []string{"outcome"})

	geometriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlvisuals",
		Subsystem: "scheduler",
		Name:      "geometries_total",
		Help:      "Geometry records forwarded to presenters",
	}, []string{"kind"})

	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mlvisuals",
		Subsystem: "scheduler",
		Name:      "step_duration_seconds",
		Help:      "Wall time of one sweep step",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	})

	activeHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mlvisuals",
		Subsystem: "scheduler",
		Name:      "active_handles",
		Help:      "Model instances currently owned by running batches",
	})

	loopTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mlvisuals",
		Subsystem: "loop",
		Name:      "tasks_total",
		Help:      "Loop tasks by outcome (run, skipped)",
	}, []string{"outcome"})
)
