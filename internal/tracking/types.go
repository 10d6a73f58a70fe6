// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package tracking

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedDetection marks detections rejected at ingestion. Rejection is
// per-detection; the rest of the frame continues processing.
var ErrMalformedDetection = errors.New("malformed detection")

// Point is a position in the calibrated world coordinate frame, in meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance to another point in meters.
func (p Point) DistanceTo(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Valid reports whether both coordinates are finite numbers.
func (p Point) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Detection is one per-frame observation of an object, as supplied by the
// upstream detector/tracker. Identities are stable across frames for the
// same physical object; Cordon does not re-identify.
type Detection struct {
	Identity  string    `json:"identity"`
	Class     string    `json:"class"`
	Position  Point     `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate rejects detections that cannot be attributed or placed.
// All failures wrap ErrMalformedDetection so callers can count and skip.
func (d Detection) Validate() error {
	if d.Identity == "" {
		return fmt.Errorf("%w: missing identity", ErrMalformedDetection)
	}
	if d.Class == "" {
		return fmt.Errorf("%w: identity %s has no class label", ErrMalformedDetection, d.Identity)
	}
	if d.Timestamp.IsZero() {
		return fmt.Errorf("%w: identity %s has no timestamp", ErrMalformedDetection, d.Identity)
	}
	if !d.Position.Valid() {
		return fmt.Errorf("%w: identity %s has non-finite position", ErrMalformedDetection, d.Identity)
	}
	return nil
}

// Sample is one retained (position, timestamp) observation.
type Sample struct {
	Position  Point
	Timestamp time.Time
}
