package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricModelLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "npud",
		Subsystem: "manager",
		Name:      "model_loads_total",
		Help:      "Model load attempts by outcome.",
	}, []string{"model", "outcome"})

	metricEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "npud",
		Subsystem: "manager",
		Name:      "evictions_total",
		Help:      "Resident models evicted to free the slot.",
	})

	metricCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "npud",
		Subsystem: "manager",
		Name:      "completions_total",
		Help:      "Chat completions by model, mode and outcome.",
	}, []string{"model", "mode", "outcome"})

	metricTokensStreamed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "npud",
		Subsystem: "manager",
		Name:      "tokens_streamed_total",
		Help:      "Generated tokens delivered to clients.",
	}, []string{"model"})

	metricLoadSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "npud",
		Subsystem: "manager",
		Name:      "model_load_seconds",
		Help:      "Wall time of model load, artifact resolution included.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"model"})
)
