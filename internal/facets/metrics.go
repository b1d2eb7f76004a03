package facets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultApplied     = "applied"
	resultSuperseded  = "superseded"
	resultUnavailable = "unavailable"
)

var recomputeTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "studyplan_facet_recompute_total",
		Help: "Facet recomputations by outcome.",
	},
	[]string{"result"},
)
