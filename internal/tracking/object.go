// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package tracking

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Object is the per-identity temporal state maintained by the Tracker.
// Exactly one live Object exists per identity. The Tracker owns all
// mutation; everything exported here is a read-only view, safe for
// concurrent readers once a frame's updates have been applied.
type Object struct {
	identity string
	class    string

	samples []Sample
	speed   float64 // last-pair speed, m/s

	// stationarySince is the timestamp of the first sample of the current
	// low-motion run, zero while the object is moving.
	stationarySince time.Time

	// stationaryMin is how long a low-motion run must last before
	// Stationary reports true; copied from the tracker config.
	stationaryMin time.Duration

	// anchor follows the current position while moving and freezes at the
	// stop location once motion ceases. Separation predicates measure
	// against it.
	anchor Point

	firstSeen time.Time
	lastSeen  time.Time
}

// Identity returns the externally supplied stable identity.
func (o *Object) Identity() string { return o.identity }

// Class returns the detector's class label for this object.
func (o *Object) Class() string { return o.class }

// Position returns the most recent observed position.
func (o *Object) Position() Point {
	return o.samples[len(o.samples)-1].Position
}

// Speed returns the instantaneous speed between the last two samples, in m/s.
// Zero until a second sample arrives.
func (o *Object) Speed() float64 { return o.speed }

// MeanSpeed returns the mean pairwise speed across the retained window,
// smoothing single-frame jitter. Zero until a second sample arrives.
func (o *Object) MeanSpeed() float64 {
	if len(o.samples) < 2 {
		return 0
	}
	speeds := make([]float64, 0, len(o.samples)-1)
	for i := 1; i < len(o.samples); i++ {
		if v, ok := pairSpeed(o.samples[i-1], o.samples[i]); ok {
			speeds = append(speeds, v)
		}
	}
	if len(speeds) == 0 {
		return 0
	}
	return stat.Mean(speeds, nil)
}

// Stationary reports whether the object has been in a low-motion run for
// at least the configured stationary-detection window.
func (o *Object) Stationary() bool {
	return !o.stationarySince.IsZero() &&
		o.lastSeen.Sub(o.stationarySince) >= o.stationaryMin
}

// StationaryFor returns how long the object has been stationary as of now,
// or zero if it is moving or the run is still shorter than the window.
func (o *Object) StationaryFor(now time.Time) time.Duration {
	if !o.Stationary() {
		return 0
	}
	return now.Sub(o.stationarySince)
}

// Anchor returns the reference anchor position (the last stop location, or
// the current position while moving).
func (o *Object) Anchor() Point { return o.anchor }

// DistanceFromAnchor returns how far the given point is from this object's
// anchor, in meters.
func (o *Object) DistanceFromAnchor(p Point) float64 {
	return o.anchor.DistanceTo(p)
}

// SampleCount returns the number of retained samples. A count of one means
// the object appeared this frame.
func (o *Object) SampleCount() int { return len(o.samples) }

// FirstSeen returns the timestamp of the first retained sighting.
func (o *Object) FirstSeen() time.Time { return o.firstSeen }

// LastSeen returns the timestamp of the most recent sighting.
func (o *Object) LastSeen() time.Time { return o.lastSeen }

// PreviousPosition returns the position before the most recent sample and
// whether one exists.
func (o *Object) PreviousPosition() (Point, bool) {
	if len(o.samples) < 2 {
		return Point{}, false
	}
	return o.samples[len(o.samples)-2].Position, true
}

// pairSpeed returns the speed between two consecutive samples, in m/s.
// Reports false when the timestamps do not strictly advance.
func pairSpeed(a, b Sample) (float64, bool) {
	dt := b.Timestamp.Sub(a.Timestamp).Seconds()
	if dt <= 0 {
		return 0, false
	}
	return a.Position.DistanceTo(b.Position) / dt, true
}
