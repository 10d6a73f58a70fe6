// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package metrics provides Prometheus instrumentation for the pipeline:
// frame throughput, tracker population, anomaly and playbook activity,
// baseline provider health, and alert volume.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Frame pipeline metrics
	FramesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cordon_frames_processed_total",
			Help: "Total number of detection frames processed",
		},
	)

	FrameDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cordon_frame_duration_seconds",
			Help:    "Wall time spent processing a single frame",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	DetectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cordon_detections_rejected_total",
			Help: "Total number of malformed detections rejected at ingestion",
		},
		[]string{"reason"},
	)

	// Tracker metrics
	TrackedObjects = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cordon_tracked_objects",
			Help: "Current number of live tracked objects",
		},
	)

	ObjectsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cordon_objects_evicted_total",
			Help: "Total number of tracked objects evicted for silence",
		},
	)

	// Anomaly metrics
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cordon_anomalies_total",
			Help: "Total number of anomalous per-frame classifications",
		},
		[]string{"feature"}, // "location", "dwell", "speed"
	)

	BaselineQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cordon_baseline_query_duration_seconds",
			Help:    "Duration of normalcy queries against the baseline provider",
			Buckets: prometheus.DefBuckets,
		},
	)

	BaselineDegradedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cordon_baseline_degraded_frames_total",
			Help: "Frames processed in degraded mode because the baseline provider was unavailable",
		},
	)

	// Behavioral engine metrics
	PlaybookAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cordon_playbook_advances_total",
			Help: "Total number of playbook state advances",
		},
		[]string{"playbook", "state"},
	)

	ProgressAbandoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cordon_progress_abandoned_total",
			Help: "Playbook progress instances abandoned on evidence timeout",
		},
		[]string{"playbook"},
	)

	ProgressActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cordon_progress_active",
			Help: "Current number of in-flight playbook progress instances",
		},
	)

	// Synthesis metrics
	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cordon_alerts_emitted_total",
			Help: "Total number of threat alerts emitted",
		},
		[]string{"playbook"},
	)

	// Transport metrics
	FramesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cordon_nats_frames_consumed_total",
			Help: "Frame messages consumed from the NATS stream",
		},
	)

	AlertsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cordon_nats_alerts_published_total",
			Help: "Alert messages published to the NATS stream",
		},
	)
)

// ObserveFrame records the duration of one processed frame.
func ObserveFrame(start time.Time) {
	FramesProcessed.Inc()
	FrameDuration.Observe(time.Since(start).Seconds())
}

// ObserveBaselineQuery records the duration of one baseline provider query.
func ObserveBaselineQuery(start time.Time) {
	BaselineQueryDuration.Observe(time.Since(start).Seconds())
}
