package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research pipeline metrics
	ResearchesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researcher_researches_started_total",
			Help: "Total number of research runs started",
		},
	)

	ResearchesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_researches_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"status"},
	)

	ResearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "researcher_research_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ResearchesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "researcher_researches_active",
			Help: "Number of research runs currently executing",
		},
	)

	IterationsUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "researcher_iterations_used",
			Help:    "Iterations consumed per research run",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
		},
	)

	SearchesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_searches_executed_total",
			Help: "Total external search calls executed",
		},
		[]string{"channel"},
	)

	CandidatesDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researcher_candidates_discovered_total",
			Help: "Total unique candidate companies discovered",
		},
	)

	// Provider metrics
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researcher_provider_calls_total",
			Help: "External capability calls by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researcher_provider_call_duration_seconds",
			Help:    "External capability call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researcher_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researcher_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)
)

// RecordResearch records a completed research run.
func RecordResearch(status string, durationSeconds float64, iterations int) {
	ResearchesCompleted.WithLabelValues(status).Inc()
	ResearchDuration.Observe(durationSeconds)
	if iterations > 0 {
		IterationsUsed.Observe(float64(iterations))
	}
}

// RecordProviderCall records one external capability call.
func RecordProviderCall(provider, status string, durationSeconds float64) {
	ProviderCalls.WithLabelValues(provider, status).Inc()
	if durationSeconds > 0 {
		ProviderCallDuration.WithLabelValues(provider).Observe(durationSeconds)
	}
}
