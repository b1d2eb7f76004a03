package replication

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

var (
	targetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyplan_replication_targets_total",
			Help: "Replication targets processed by outcome.",
		},
		[]string{"result"},
	)

	targetDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studyplan_replication_target_duration_seconds",
			Help:    "Time to replicate one target.",
			Buckets: prometheus.DefBuckets,
		},
	)
)
