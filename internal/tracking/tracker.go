// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package tracking maintains per-identity temporal state across detection
// frames: bounded sample windows, derived kinematics (speed, stationary
// runs, reference anchors), and silence-based eviction.
package tracking

import (
	"sort"
	"time"

	"github.com/cordon-watch/cordon/internal/logging"
)

// Config holds tracker thresholds. All values have working defaults; zero
// values are replaced on construction.
type Config struct {
	// MaxSamples bounds the per-object sample window.
	MaxSamples int `json:"max_samples"`

	// Retention drops samples older than this from the window.
	Retention time.Duration `json:"retention"`

	// MotionEpsilon is the speed (m/s) below which a sample pair counts as
	// stationary.
	MotionEpsilon float64 `json:"motion_epsilon"`

	// StationaryWindow is how long motion must stay under MotionEpsilon
	// before the object is reported stationary.
	StationaryWindow time.Duration `json:"stationary_window"`

	// EvictionTimeout removes objects not seen for this long.
	EvictionTimeout time.Duration `json:"eviction_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSamples:       32,
		Retention:        10 * time.Second,
		MotionEpsilon:    0.5,
		StationaryWindow: time.Second,
		EvictionTimeout:  5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSamples <= 0 {
		c.MaxSamples = d.MaxSamples
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.MotionEpsilon <= 0 {
		c.MotionEpsilon = d.MotionEpsilon
	}
	if c.StationaryWindow < 0 {
		c.StationaryWindow = d.StationaryWindow
	}
	if c.EvictionTimeout <= 0 {
		c.EvictionTimeout = d.EvictionTimeout
	}
	return c
}

// Tracker owns all live Objects. It is not internally synchronized: the
// pipeline applies a full frame of updates before any reader runs (the
// frame barrier), so no locking is needed on the hot path.
type Tracker struct {
	cfg     Config
	objects map[string]*Object
}

// NewTracker creates an empty tracker.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:     cfg.withDefaults(),
		objects: make(map[string]*Object),
	}
}

// Update applies one validated detection. On first sighting it creates the
// Object; otherwise it appends the sample, prunes the window, and recomputes
// kinematics. Samples that do not advance the object's clock are ignored so
// a replayed frame cannot perturb derived state.
func (t *Tracker) Update(det Detection) (*Object, error) {
	if err := det.Validate(); err != nil {
		return nil, err
	}

	obj, ok := t.objects[det.Identity]
	if !ok {
		obj = &Object{
			identity:      det.Identity,
			class:         det.Class,
			samples:       []Sample{{Position: det.Position, Timestamp: det.Timestamp}},
			stationaryMin: t.cfg.StationaryWindow,
			anchor:        det.Position,
			firstSeen:     det.Timestamp,
			lastSeen:      det.Timestamp,
		}
		t.objects[det.Identity] = obj
		return obj, nil
	}

	if !det.Timestamp.After(obj.lastSeen) {
		logging.Debug().
			Str("identity", det.Identity).
			Time("timestamp", det.Timestamp).
			Msg("stale sample ignored")
		return obj, nil
	}

	prev := obj.samples[len(obj.samples)-1]
	obj.samples = append(obj.samples, Sample{Position: det.Position, Timestamp: det.Timestamp})
	obj.lastSeen = det.Timestamp
	t.prune(obj, det.Timestamp)

	if v, ok := pairSpeed(prev, obj.samples[len(obj.samples)-1]); ok {
		obj.speed = v
	}

	if obj.speed < t.cfg.MotionEpsilon {
		// Low-motion pair: open or extend the stationary run. The run is
		// dated from the sample that began it so dwell time accrues from
		// the actual stop, not from when the window threshold passed.
		if obj.stationarySince.IsZero() {
			obj.stationarySince = prev.Timestamp
		}
	} else {
		obj.stationarySince = time.Time{}
		obj.anchor = det.Position
	}

	return obj, nil
}

// EvictStale removes objects not updated within the eviction timeout and
// returns their identities (sorted for deterministic cascade order). The
// caller cascades deletion of playbook progress and probability state.
func (t *Tracker) EvictStale(now time.Time) []string {
	var evicted []string
	for id, obj := range t.objects {
		if now.Sub(obj.lastSeen) > t.cfg.EvictionTimeout {
			delete(t.objects, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	for _, id := range evicted {
		logging.Debug().Str("identity", id).Msg("tracked object evicted")
	}
	return evicted
}

// Get returns the live object for an identity, if tracked.
func (t *Tracker) Get(identity string) (*Object, bool) {
	obj, ok := t.objects[identity]
	return obj, ok
}

// Objects returns all live objects sorted by identity, so per-frame
// iteration order is deterministic.
func (t *Tracker) Objects() []*Object {
	out := make([]*Object, 0, len(t.objects))
	for _, obj := range t.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].identity < out[j].identity })
	return out
}

// Len returns the number of live objects.
func (t *Tracker) Len() int { return len(t.objects) }

// prune evicts samples that fell out of the retention window or exceed the
// sample cap, keeping at least the latest sample.
func (t *Tracker) prune(obj *Object, now time.Time) {
	cutoff := now.Add(-t.cfg.Retention)
	first := 0
	for first < len(obj.samples)-1 && obj.samples[first].Timestamp.Before(cutoff) {
		first++
	}
	if over := len(obj.samples) - first - t.cfg.MaxSamples; over > 0 {
		first += over
	}
	if first > 0 {
		obj.samples = append(obj.samples[:0], obj.samples[first:]...)
	}
}
