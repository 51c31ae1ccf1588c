// Package metrics holds the Prometheus instruments shared by the pipeline,
// the LLM client and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mindmapd"

var (
	// LLMRequests counts LLM calls.
	// Labels: scenario (mindmap, main_points, summary, ...), mode (invoke, stream), result (ok, error)
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"scenario", "mode", "result"},
	)

	// LLMDuration tracks LLM call latency.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Duration of LLM calls in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"scenario", "mode"},
	)

	// CacheLookups counts cache lookups.
	// Labels: cache (summary, tree), result (hit, miss)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"cache", "result"},
	)

	// Chunks counts processed chunks.
	// Labels: result (ok, cached, fallback)
	Chunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "chunks_total",
			Help:      "Total number of processed chunks by outcome",
		},
		[]string{"result"},
	)

	// StageFailures counts recovered stage failures.
	// Labels: stage (structure, section, detail, generate)
	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Total number of pipeline stage failures recovered with a fallback",
		},
		[]string{"stage"},
	)

	// StreamEvents counts events written to event streams.
	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Total number of streamed events by type",
		},
		[]string{"type"},
	)

	// ActiveStreams is the number of open event streams.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active",
			Help:      "Number of currently open event streams",
		},
	)
)
