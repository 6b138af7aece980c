// Package observability holds the process-wide Prometheus collectors.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Wall time of one pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"stage"},
	)

	pipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Heatmap pipeline invocations by score kind and result.",
		},
		[]string{"kind", "result"},
	)

	extractRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extract_records_total",
			Help: "Records seen by the bounding box extractor by encoding and outcome.",
		},
		[]string{"encoding", "outcome"},
	)

	scoreRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilescore_rows_total",
			Help: "Join rows aggregated into tile averages.",
		},
		[]string{"kind"},
	)

	joinedTiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heatmap_tiles_total",
			Help: "Tiles emitted by the result joiner, split by whether a score matched.",
		},
		[]string{"matched"},
	)

	cacheOps = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Redis operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	spaceCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "space_cache_results_total",
			Help: "Space cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "space_invalidations_total",
			Help: "Dataset invalidation events by op and result.",
		},
		[]string{"op", "result"},
	)

	invalidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "space_invalidation_duration_seconds",
			Help:    "Time to apply one invalidation event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveStage(stage string, durationSeconds float64) {
	stageDurationSeconds.WithLabelValues(stage).Observe(durationSeconds)
}

func IncPipelineRun(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	pipelineRuns.WithLabelValues(kind, result).Inc()
}

// IncExtract counts one extracted record; outcome is "ok", "decode_error" or "empty".
func IncExtract(encoding, outcome string) {
	extractRecords.WithLabelValues(encoding, outcome).Inc()
}

func AddScoreRows(kind string, n int) {
	if n <= 0 {
		return
	}
	scoreRows.WithLabelValues(kind).Add(float64(n))
}

func AddJoinedTiles(matched, zeroFilled int) {
	joinedTiles.WithLabelValues("true").Add(float64(matched))
	joinedTiles.WithLabelValues("false").Add(float64(zeroFilled))
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOps.WithLabelValues(op, result).Observe(durationSeconds)
}

func IncSpaceCache(tier, outcome string) {
	spaceCacheResults.WithLabelValues(tier, outcome).Inc()
}

// ObserveInvalidation records one applied (or failed) invalidation event.
func ObserveInvalidation(op string, durationSeconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	invalidations.WithLabelValues(op, result).Inc()
	invalidationDuration.WithLabelValues(op).Observe(durationSeconds)
}

func IncInvalidationSkipped(reason string) {
	invalidations.WithLabelValues("none", reason).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
