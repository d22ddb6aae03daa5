// Package metrics exposes Prometheus instrumentation for the
// orchestration engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fable"

var (
	// GenerationRuns counts generation runs by transport mode and outcome.
	GenerationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "runs_total",
			Help:      "Total generation runs by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// AdvanceRetries counts retried advance calls in batch mode.
	AdvanceRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "advance_retries_total",
			Help:      "Total retried advance calls",
		},
	)

	// StreamEventsApplied counts stream records applied, by event kind.
	StreamEventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_applied_total",
			Help:      "Total stream event records applied to the progress model",
		},
		[]string{"kind"},
	)

	// StreamRecordsDropped counts unparseable or unrecognized records.
	// These are expected during chunk splits and are never surfaced.
	StreamRecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "records_dropped_total",
			Help:      "Total stream records dropped as incomplete or unrecognized",
		},
	)

	// AudioRequests counts narration requests by mode and outcome.
	AudioRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "requests_total",
			Help:      "Total narration requests by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// AudioChapterDuration observes reported narration duration per chapter.
	AudioChapterDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "chapter_duration_seconds",
			Help:      "Narration duration of generated chapters in seconds",
			Buckets:   prometheus.ExponentialBuckets(30, 2, 8),
		},
	)

	// ArchiveItemsOmitted counts items dropped from bundles.
	ArchiveItemsOmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "items_omitted_total",
			Help:      "Total archive items omitted due to fetch failures",
		},
	)
)
