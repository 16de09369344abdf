// Package metrics exposes the session pipeline's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesProcessed counts face-bearing frames by calibration phase.
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liedetector_frames_processed_total",
		Help: "Face-bearing frames processed by calibration phase",
	}, []string{"phase"})

	// FramesSkipped counts frames that did not reach the detectors.
	FramesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liedetector_frames_skipped_total",
		Help: "Frames skipped by reason",
	}, []string{"reason"})

	// CueEvents counts detected events per cue.
	CueEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liedetector_cue_events_total",
		Help: "Behavioral cue events detected",
	}, []string{"cue"})

	// Predictions counts checkpoint predictions by label.
	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liedetector_predictions_total",
		Help: "Checkpoint predictions by label",
	}, []string{"label"})

	// CheckpointDuration tracks checkpoint latency (drain, classify, persist).
	CheckpointDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "liedetector_checkpoint_duration_seconds",
		Help:    "Checkpoint duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
	})

	// ActiveSessions is the number of open sessions in the server.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liedetector_active_sessions",
		Help: "Open analysis sessions",
	})
)

// Skip reasons.
const (
	SkipNoFace     = "no_face"
	SkipDegenerate = "degenerate_geometry"
	SkipInvalid    = "invalid_frame"
)
