// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package baseline defines the query contract against a pattern-of-life
// normalcy model. Cordon consumes the model as a capability; training it
// is someone else's problem. The package ships a polygon-zone provider
// for standalone deployments and a circuit-breaker wrapper that bounds
// query latency and fails closed.
package baseline

import (
	"context"
	"errors"

	"github.com/cordon-watch/cordon/internal/tracking"
)

// ErrUnavailable is returned when the provider cannot answer within its
// timeout or the circuit breaker is open. Callers fail closed on it:
// the non-alarming interpretation, never a crash.
var ErrUnavailable = errors.New("baseline provider unavailable")

// FeatureKind identifies the behavioral feature being scored.
type FeatureKind string

const (
	// FeatureLocation scores whether the object's position is expected.
	FeatureLocation FeatureKind = "location"

	// FeatureDwell scores a stationary duration (seconds) at the position.
	FeatureDwell FeatureKind = "dwell"

	// FeatureSpeed scores a speed (m/s) at the position.
	FeatureSpeed FeatureKind = "speed"
)

// Provider answers normalcy queries. Implementations must tolerate
// concurrent queries from multiple objects within a frame.
type Provider interface {
	// Normalcy returns a score in [0,1] where 1 means fully expected.
	// value carries the feature magnitude (dwell seconds, speed m/s;
	// unused for location).
	Normalcy(ctx context.Context, loc tracking.Point, feature FeatureKind, value float64) (float64, error)
}
