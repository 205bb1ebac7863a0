package deploy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xttsdeploy_deployments_total",
		Help: "Total deployment runs by terminal outcome.",
	}, []string{"outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xttsdeploy_stage_duration_seconds",
		Help:    "Duration of each pipeline stage.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"stage"})

	buildAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xttsdeploy_build_attempts_total",
		Help: "Build variant attempts by variant and outcome.",
	}, []string{"variant", "outcome"})

	rollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xttsdeploy_rollbacks_total",
		Help: "Activations rolled back to the last known-good artifact.",
	})

	degradedDeployments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xttsdeploy_degraded_deployments_total",
		Help: "Healthy deployments served by a fallback build variant.",
	})
)
