// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package tracking

import (
	"errors"
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func det(id, class string, x, y float64, at time.Time) Detection {
	return Detection{Identity: id, Class: class, Position: Point{X: x, Y: y}, Timestamp: at}
}

func TestDetectionValidate(t *testing.T) {
	tests := []struct {
		name    string
		det     Detection
		wantErr bool
	}{
		{"valid", det("101", "van", 10, 20, t0), false},
		{"missing identity", det("", "van", 10, 20, t0), true},
		{"missing class", det("101", "", 10, 20, t0), true},
		{"zero timestamp", det("101", "van", 10, 20, time.Time{}), true},
		{"nan position", Detection{Identity: "101", Class: "van", Position: Point{X: nan(), Y: 0}, Timestamp: t0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.det.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedDetection) {
					t.Errorf("expected ErrMalformedDetection, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestTrackerFirstSighting(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	obj, err := tr.Update(det("101", "van", 100, 240, t0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.SampleCount() != 1 {
		t.Errorf("SampleCount = %d, want 1", obj.SampleCount())
	}
	if obj.Speed() != 0 {
		t.Errorf("Speed = %v, want 0", obj.Speed())
	}
	if obj.Anchor() != (Point{X: 100, Y: 240}) {
		t.Errorf("Anchor = %+v, want first position", obj.Anchor())
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

func TestTrackerSpeedAndAnchor(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	tr.Update(det("101", "van", 0, 0, t0))
	obj, _ := tr.Update(det("101", "van", 30, 40, t0.Add(5*time.Second)))

	// 50m in 5s
	if got := obj.Speed(); got < 9.99 || got > 10.01 {
		t.Errorf("Speed = %v, want 10", got)
	}
	if obj.Stationary() {
		t.Error("moving object reported stationary")
	}
	// Moving objects re-anchor at the current position.
	if obj.Anchor() != (Point{X: 30, Y: 40}) {
		t.Errorf("Anchor = %+v, want current position", obj.Anchor())
	}
}

func TestTrackerStationaryRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StationaryWindow = time.Second
	tr := NewTracker(cfg)

	tr.Update(det("101", "van", 400, 350, t0))
	obj, _ := tr.Update(det("101", "van", 400, 350, t0.Add(500*time.Millisecond)))
	if obj.Stationary() {
		t.Error("stationary before window elapsed")
	}

	obj, _ = tr.Update(det("101", "van", 400, 350, t0.Add(2*time.Second)))
	if !obj.Stationary() {
		t.Fatal("expected stationary after window elapsed")
	}
	// Dwell accrues from the start of the run, not from window expiry.
	if got := obj.StationaryFor(t0.Add(3 * time.Second)); got != 3*time.Second {
		t.Errorf("StationaryFor = %v, want 3s", got)
	}
	// Anchor froze at the stop location.
	if obj.Anchor() != (Point{X: 400, Y: 350}) {
		t.Errorf("Anchor = %+v, want stop location", obj.Anchor())
	}
}

func TestTrackerResumedMotionClearsStationary(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	tr.Update(det("101", "van", 400, 350, t0))
	tr.Update(det("101", "van", 400, 350, t0.Add(2*time.Second)))
	obj, _ := tr.Update(det("101", "van", 450, 350, t0.Add(3*time.Second)))

	if obj.Stationary() {
		t.Error("object still stationary after resuming motion")
	}
	if obj.Anchor() != (Point{X: 450, Y: 350}) {
		t.Errorf("Anchor = %+v, want new position", obj.Anchor())
	}
}

func TestTrackerStaleSampleIgnored(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	tr.Update(det("101", "van", 0, 0, t0))
	tr.Update(det("101", "van", 10, 0, t0.Add(time.Second)))
	before, _ := tr.Get("101")
	samples := before.SampleCount()

	// Same timestamp: replayed frame must not append.
	obj, err := tr.Update(det("101", "van", 10, 0, t0.Add(time.Second)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.SampleCount() != samples {
		t.Errorf("SampleCount = %d after replay, want %d", obj.SampleCount(), samples)
	}

	// Older timestamp: out-of-order sample must not rewind state.
	obj, _ = tr.Update(det("101", "van", 999, 999, t0))
	if obj.Position() != (Point{X: 10, Y: 0}) {
		t.Errorf("Position = %+v, out-of-order sample applied", obj.Position())
	}
}

func TestTrackerEvictStale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EvictionTimeout = 5 * time.Second
	tr := NewTracker(cfg)

	tr.Update(det("101", "van", 0, 0, t0))
	tr.Update(det("202", "person", 5, 5, t0.Add(4*time.Second)))

	evicted := tr.EvictStale(t0.Add(6 * time.Second))
	if len(evicted) != 1 || evicted[0] != "101" {
		t.Fatalf("evicted = %v, want [101]", evicted)
	}
	if _, ok := tr.Get("101"); ok {
		t.Error("evicted object still tracked")
	}
	if _, ok := tr.Get("202"); !ok {
		t.Error("live object evicted")
	}

	// Reappearance after eviction is a brand-new object.
	obj, _ := tr.Update(det("101", "van", 70, 70, t0.Add(10*time.Second)))
	if obj.SampleCount() != 1 {
		t.Errorf("SampleCount = %d after re-sighting, want 1", obj.SampleCount())
	}
}

func TestTrackerWindowPruning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSamples = 4
	cfg.Retention = 3 * time.Second
	tr := NewTracker(cfg)

	for i := 0; i < 10; i++ {
		tr.Update(det("101", "van", float64(i), 0, t0.Add(time.Duration(i)*time.Second)))
	}
	obj, _ := tr.Get("101")
	if obj.SampleCount() > 4 {
		t.Errorf("SampleCount = %d, window not bounded", obj.SampleCount())
	}
	if obj.Position() != (Point{X: 9, Y: 0}) {
		t.Errorf("latest sample lost during pruning: %+v", obj.Position())
	}
}

func TestMeanSpeedSmoothsJitter(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	tr.Update(det("101", "van", 0, 0, t0))
	tr.Update(det("101", "van", 10, 0, t0.Add(time.Second)))  // 10 m/s
	obj, _ := tr.Update(det("101", "van", 30, 0, t0.Add(2*time.Second))) // 20 m/s

	if got := obj.MeanSpeed(); got < 14.9 || got > 15.1 {
		t.Errorf("MeanSpeed = %v, want 15", got)
	}
}

func TestObjectsDeterministicOrder(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	for _, id := range []string{"9", "3", "7", "1"} {
		tr.Update(det(id, "person", 0, 0, t0))
	}
	objs := tr.Objects()
	for i := 1; i < len(objs); i++ {
		if objs[i-1].Identity() > objs[i].Identity() {
			t.Fatal("Objects() not sorted by identity")
		}
	}
}

func nan() float64 { return math.NaN() }
