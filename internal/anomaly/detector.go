// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package anomaly scores tracked objects against the baseline normalcy
// model. Each evaluation yields at most one anomaly record carrying the
// single dominant feature; when the baseline is unreachable the detector
// fails closed and reports the frame as degraded instead of guessing.
package anomaly

import (
	"context"
	"time"

	"github.com/cordon-watch/cordon/internal/baseline"
	"github.com/cordon-watch/cordon/internal/logging"
	"github.com/cordon-watch/cordon/internal/metrics"
	"github.com/cordon-watch/cordon/internal/tracking"
)

// Record is the outcome of evaluating one object against the baseline.
type Record struct {
	Identity  string               `json:"identity"`
	Timestamp time.Time            `json:"timestamp"`
	Anomalous bool                 `json:"anomalous"`
	Severity  float64              `json:"severity"` // [0,1], 0 when not anomalous
	Feature   baseline.FeatureKind `json:"feature,omitempty"`
}

// Config holds the detector thresholds.
type Config struct {
	// SeverityFloor is the normalcy score below which behavior is flagged
	// anomalous. Severity is then 1 - normalcy.
	SeverityFloor float64
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{SeverityFloor: 0.2}
}

// Detector evaluates objects against a baseline provider. Safe for
// concurrent use; all state lives in the provider.
type Detector struct {
	provider baseline.Provider
	cfg      Config
}

// NewDetector returns a detector backed by the given provider.
func NewDetector(provider baseline.Provider, cfg Config) *Detector {
	if cfg.SeverityFloor <= 0 {
		cfg.SeverityFloor = DefaultConfig().SeverityFloor
	}
	return &Detector{provider: provider, cfg: cfg}
}

// Evaluate scores one object as of now. It queries location normalcy for
// every object, dwell normalcy when the object is stationary, and speed
// normalcy when it is moving, then reports the dominant (least normal)
// feature. A provider failure on any query degrades the whole evaluation
// to NORMAL: degraded is true and the record carries no anomaly.
func (d *Detector) Evaluate(ctx context.Context, obj *tracking.Object, now time.Time) (Record, bool) {
	rec := Record{Identity: obj.Identity(), Timestamp: now}
	pos := obj.Position()

	type query struct {
		feature baseline.FeatureKind
		value   float64
	}
	queries := []query{{baseline.FeatureLocation, 0}}
	if obj.Stationary() {
		queries = append(queries, query{baseline.FeatureDwell, obj.StationaryFor(now).Seconds()})
	} else {
		queries = append(queries, query{baseline.FeatureSpeed, obj.MeanSpeed()})
	}

	dominant := baseline.FeatureKind("")
	lowest := 1.0
	for _, q := range queries {
		score, err := d.provider.Normalcy(ctx, pos, q.feature, q.value)
		if err != nil {
			logging.Warn().
				Str("identity", obj.Identity()).
				Str("feature", string(q.feature)).
				Err(err).
				Msg("Baseline query failed, treating object as normal")
			metrics.BaselineDegradedFrames.Inc()
			return rec, true
		}
		if score < lowest {
			lowest = score
			dominant = q.feature
		}
	}

	if lowest < d.cfg.SeverityFloor {
		rec.Anomalous = true
		rec.Severity = 1 - lowest
		rec.Feature = dominant
		metrics.AnomaliesDetected.WithLabelValues(string(dominant)).Inc()
		logging.Debug().
			Str("identity", obj.Identity()).
			Str("feature", string(dominant)).
			Float64("severity", rec.Severity).
			Msg("Anomalous behavior detected")
	}
	return rec, false
}
