package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "geojson2mvt"

// Load outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeAbandoned = "abandoned"
	OutcomeFailed    = "failed"
)

var (
	LoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loads_total",
		Help:      "Source loads by input kind and outcome.",
	}, []string{"input", "outcome"})

	LoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "load_duration_seconds",
		Help:      "Time from load submission to a built index.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{"mode"})

	IndexedFeatures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "indexed_features",
		Help:      "Features held by the live index of a source.",
	}, []string{"source"})

	TilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tiles_total",
		Help:      "Tile requests by result.",
	}, []string{"result"})

	ClusterQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cluster_queries_total",
		Help:      "Cluster queries by kind.",
	}, []string{"query"})

	processCPU = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_cpu_percent",
		Help:      "Process CPU usage as sampled by the resource collector.",
	})

	processRSS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_rss_megabytes",
		Help:      "Process resident set size.",
	})

	sourcesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sources",
		Help:      "Registered sources.",
	})
)
