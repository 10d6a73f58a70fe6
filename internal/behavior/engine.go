// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package behavior walks tracked objects through playbook state
// machines. Each (identity, playbook) pair owns at most one progress
// instance; transitions are strictly forward, one state per frame.
package behavior

import (
	"errors"
	"sync"
	"time"

	"github.com/cordon-watch/cordon/internal/anomaly"
	"github.com/cordon-watch/cordon/internal/logging"
	"github.com/cordon-watch/cordon/internal/metrics"
	"github.com/cordon-watch/cordon/internal/playbook"
	"github.com/cordon-watch/cordon/internal/tracking"
)

// ErrProgressConsistency marks a progress instance whose state index
// violates the monotone forward-only invariant. The instance is
// discarded; the defect is logged, never propagated.
var ErrProgressConsistency = errors.New("playbook progress consistency violation")

// Progress is the per-(identity, playbook) match state. StateIndex
// counts satisfied states: 1 after the entry state, len(States) at
// terminal. Index 0 never exists as a stored instance.
type Progress struct {
	Identity   string
	Playbook   *playbook.Playbook
	StateIndex int
	StartedAt  time.Time
	EnteredAt  time.Time
	Bindings   map[string]string
}

// StateName returns the display name of the last entered state.
func (p *Progress) StateName() string {
	return p.Playbook.StateName(p.StateIndex)
}

// Advance reports one state transition taken this frame.
type Advance struct {
	Identity   string
	Class      string
	Playbook   string
	Action     string
	StateIndex int
	StateName  string
	Multiplier float64
	Terminal   bool
	At         time.Time
}

// Config holds the engine thresholds.
type Config struct {
	// AbandonAfter deletes a progress that has not advanced within the
	// window, independent of per-transition deadlines.
	AbandonAfter time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{AbandonAfter: 5 * time.Minute}
}

type progressKey struct {
	identity string
	playbook string
}

// Engine evaluates playbook progress. Safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	registry *playbook.Registry
	cfg      Config
	progress map[progressKey]*Progress
}

// NewEngine returns an engine over the given playbook registry.
func NewEngine(registry *playbook.Registry, cfg Config) *Engine {
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = DefaultConfig().AbandonAfter
	}
	return &Engine{
		registry: registry,
		cfg:      cfg,
		progress: make(map[progressKey]*Progress),
	}
}

// Step evaluates every applicable playbook for one object against this
// frame's evidence. At most one transition per (identity, playbook) per
// call; a pair never advances twice in one frame and never skips a
// state. Returns the transitions taken.
func (e *Engine) Step(obj *tracking.Object, rec anomaly.Record, view playbook.FrameView, now time.Time) []Advance {
	e.mu.Lock()
	defer e.mu.Unlock()

	var advances []Advance
	for _, pb := range e.registry.ForClass(obj.Class()) {
		key := progressKey{identity: obj.Identity(), playbook: pb.Name}
		prog, active := e.progress[key]

		if !active {
			if adv, ok := e.tryEnter(key, pb, obj, rec, view, now); ok {
				advances = append(advances, adv)
			}
			continue
		}
		if adv, ok := e.tryAdvance(key, prog, obj, rec, view, now); ok {
			advances = append(advances, adv)
		}
	}
	metrics.ProgressActive.Set(float64(len(e.progress)))
	return advances
}

// tryEnter evaluates the entry state for a pair with no progress.
func (e *Engine) tryEnter(key progressKey, pb *playbook.Playbook, obj *tracking.Object, rec anomaly.Record, view playbook.FrameView, now time.Time) (Advance, bool) {
	entry, _ := pb.Next(0)
	ev := &playbook.Evidence{Object: obj, Anomaly: rec, Now: now, View: view}
	if !entry.Predicate.Holds(ev) {
		return Advance{}, false
	}

	prog := &Progress{
		Identity:   obj.Identity(),
		Playbook:   pb,
		StateIndex: 1,
		StartedAt:  now,
		EnteredAt:  now,
		Bindings:   ev.Bindings(),
	}
	return e.commit(key, prog, obj, now), true
}

// tryAdvance evaluates the next state of an active progress, applying
// the replay guard, consistency check, and per-transition deadline.
func (e *Engine) tryAdvance(key progressKey, prog *Progress, obj *tracking.Object, rec anomaly.Record, view playbook.FrameView, now time.Time) (Advance, bool) {
	// Replayed or non-advancing frames cannot re-trigger a transition.
	if !now.After(prog.EnteredAt) {
		return Advance{}, false
	}

	next, ok := prog.Playbook.Next(prog.StateIndex)
	if !ok {
		// Terminal instances are removed on finalization, and the index
		// only ever increments. Reaching here means corrupted state.
		logging.Error().
			Err(ErrProgressConsistency).
			Str("identity", prog.Identity).
			Str("playbook", prog.Playbook.Name).
			Int("state_index", prog.StateIndex).
			Msg("Discarding corrupted playbook progress")
		delete(e.progress, key)
		return Advance{}, false
	}

	waited := now.Sub(prog.EnteredAt)
	if next.Deadline > 0 && waited > next.Deadline {
		e.abandon(key, prog, "transition deadline exceeded", now)
		return Advance{}, false
	}
	if waited > e.cfg.AbandonAfter {
		e.abandon(key, prog, "abandonment window exceeded", now)
		return Advance{}, false
	}

	ev := &playbook.Evidence{Object: obj, Anomaly: rec, Now: now, Elapsed: waited, View: view}
	ev.SeedBindings(prog.Bindings)
	if !next.Predicate.Holds(ev) {
		return Advance{}, false
	}

	prog.StateIndex++
	prog.Bindings = ev.Bindings()
	return e.commit(key, prog, obj, now), true
}

// commit records a transition, stores or finalizes the progress, and
// builds the Advance. Terminal progress is removed immediately; the
// synthesizer's alerted set carries the exactly-once guarantee forward.
func (e *Engine) commit(key progressKey, prog *Progress, obj *tracking.Object, now time.Time) Advance {
	prog.EnteredAt = now
	state := prog.Playbook.States[prog.StateIndex-1]
	terminal := prog.Playbook.Terminal(prog.StateIndex)

	if terminal {
		delete(e.progress, key)
	} else {
		e.progress[key] = prog
	}

	metrics.PlaybookAdvances.WithLabelValues(prog.Playbook.Name, state.Name).Inc()
	logging.Info().
		Str("identity", prog.Identity).
		Str("playbook", prog.Playbook.Name).
		Str("state", state.Name).
		Bool("terminal", terminal).
		Msg("Playbook state advanced")

	return Advance{
		Identity:   prog.Identity,
		Class:      obj.Class(),
		Playbook:   prog.Playbook.Name,
		Action:     prog.Playbook.Action,
		StateIndex: prog.StateIndex,
		StateName:  state.Name,
		Multiplier: state.Multiplier,
		Terminal:   terminal,
		At:         now,
	}
}

func (e *Engine) abandon(key progressKey, prog *Progress, reason string, now time.Time) {
	delete(e.progress, key)
	metrics.ProgressAbandoned.WithLabelValues(prog.Playbook.Name).Inc()
	logging.Info().
		Str("identity", prog.Identity).
		Str("playbook", prog.Playbook.Name).
		Str("state", prog.StateName()).
		Str("reason", reason).
		Dur("stalled", now.Sub(prog.EnteredAt)).
		Msg("Playbook progress abandoned")
}

// Sweep abandons progress that stalled past its deadline or the
// abandonment window, covering objects no longer generating frames.
func (e *Engine) Sweep(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, prog := range e.progress {
		waited := now.Sub(prog.EnteredAt)
		if next, ok := prog.Playbook.Next(prog.StateIndex); ok && next.Deadline > 0 && waited > next.Deadline {
			e.abandon(key, prog, "transition deadline exceeded", now)
			continue
		}
		if waited > e.cfg.AbandonAfter {
			e.abandon(key, prog, "abandonment window exceeded", now)
		}
	}
	metrics.ProgressActive.Set(float64(len(e.progress)))
}

// EvictObject deletes all progress where the evicted identity is the
// subject. Progress merely bound to it as a companion survives and
// expires through its deadline instead.
func (e *Engine) EvictObject(identity string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key := range e.progress {
		if key.identity == identity {
			delete(e.progress, key)
		}
	}
	metrics.ProgressActive.Set(float64(len(e.progress)))
}

// Active returns the live progress instances for an identity, for
// status output. Nil when the identity matches no playbook.
func (e *Engine) Active(identity string) []*Progress {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*Progress
	for key, prog := range e.progress {
		if key.identity == identity {
			snapshot := *prog
			out = append(out, &snapshot)
		}
	}
	return out
}

// Len returns the number of live progress instances.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.progress)
}
