package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tickTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canaria",
		Subsystem: "engine",
		Name:      "ticks_total",
		Help:      "Tick evaluations by analysis result.",
	}, []string{"result"})

	promotionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "canaria",
		Subsystem: "engine",
		Name:      "promotions_total",
		Help:      "Deployments promoted to full traffic.",
	})

	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canaria",
		Subsystem: "engine",
		Name:      "rollbacks_total",
		Help:      "Rollbacks initiated, by trigger.",
	}, []string{"trigger"})
)
