// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package pipeline orchestrates the four correlation stages for each
// inbound frame: tracking, anomaly scoring, playbook matching, and
// threat synthesis. Frames are processed one at a time; inside a frame
// the per-object evaluation fans out across a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cordon-watch/cordon/internal/anomaly"
	"github.com/cordon-watch/cordon/internal/behavior"
	"github.com/cordon-watch/cordon/internal/logging"
	"github.com/cordon-watch/cordon/internal/metrics"
	"github.com/cordon-watch/cordon/internal/synthesis"
	"github.com/cordon-watch/cordon/internal/tracking"
)

// Frame is one timestamped batch of detections from a camera.
type Frame struct {
	Camera     string               `json:"camera"`
	Timestamp  time.Time            `json:"timestamp"`
	Detections []tracking.Detection `json:"detections"`
}

// ObjectStatus is the per-object diagnostic line in a frame result.
type ObjectStatus struct {
	Identity    string         `json:"identity"`
	Class       string         `json:"class"`
	Position    tracking.Point `json:"position"`
	Speed       float64        `json:"speed"`
	Stationary  bool           `json:"stationary"`
	State       string         `json:"state"` // playbook state name, or N/A
	Playbook    string         `json:"playbook,omitempty"`
	Probability float64        `json:"probability"`
}

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	Timestamp time.Time          `json:"timestamp"`
	Alerts    []*synthesis.Alert `json:"alerts,omitempty"` // descending probability
	Statuses  []ObjectStatus     `json:"statuses"`         // descending probability
	Degraded  bool               `json:"degraded"`
	Rejected  int                `json:"rejected"`
	Evicted   []string           `json:"evicted,omitempty"`
	Skipped   bool               `json:"skipped,omitempty"`
}

// Notifier receives alerts as they are synthesized. Implementations
// must not block indefinitely; failures are logged, never fatal.
type Notifier interface {
	Notify(ctx context.Context, alert *synthesis.Alert) error
}

// Config holds the pipeline options.
type Config struct {
	// Workers bounds the per-object evaluation fan-out within a frame.
	Workers int
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{Workers: 4}
}

// Pipeline runs frames through the correlation stages. ProcessFrame is
// serialized; state between frames lives in the stage components.
type Pipeline struct {
	mu        sync.Mutex
	cfg       Config
	tracker   *tracking.Tracker
	detector  *anomaly.Detector
	engine    *behavior.Engine
	synth     *synthesis.Synthesizer
	notifiers []Notifier
	lastFrame time.Time
}

// New wires the stage components into a pipeline.
func New(cfg Config, tracker *tracking.Tracker, detector *anomaly.Detector, engine *behavior.Engine, synth *synthesis.Synthesizer, notifiers ...Notifier) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	return &Pipeline{
		cfg:       cfg,
		tracker:   tracker,
		detector:  detector,
		engine:    engine,
		synth:     synth,
		notifiers: notifiers,
	}
}

// frameView exposes the tracker as a read-only snapshot. Valid only
// between the frame barrier and the next mutation, which ProcessFrame's
// serialization guarantees.
type frameView struct{ tr *tracking.Tracker }

func (v frameView) Object(id string) (*tracking.Object, bool) { return v.tr.Get(id) }
func (v frameView) Objects() []*tracking.Object               { return v.tr.Objects() }

// ProcessFrame runs one frame through all four stages. A frame whose
// timestamp does not advance past the previous frame is skipped whole,
// making replayed input a no-op. On context cancellation the frame
// fails; there is no partial-frame resume.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame Frame) (*FrameResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := frame.Timestamp
	if !now.After(p.lastFrame) {
		logging.Debug().
			Time("timestamp", now).
			Time("last", p.lastFrame).
			Msg("Non-advancing frame skipped")
		return &FrameResult{Timestamp: now, Skipped: true}, nil
	}
	p.lastFrame = now

	start := time.Now()
	defer metrics.ObserveFrame(start)

	result := &FrameResult{Timestamp: now}

	// Stage 0: eviction, cascading into progress and belief state.
	for _, id := range p.tracker.EvictStale(now) {
		p.engine.EvictObject(id)
		p.synth.EvictObject(id)
		result.Evicted = append(result.Evicted, id)
		metrics.ObjectsEvicted.Inc()
	}
	p.engine.Sweep(now)

	// Stage 1: frame barrier. Every detection lands in the tracker
	// before any evaluation, so cross-object predicates see the whole
	// frame.
	for _, det := range frame.Detections {
		if _, err := p.tracker.Update(det); err != nil {
			if errors.Is(err, tracking.ErrMalformedDetection) {
				result.Rejected++
				metrics.DetectionsRejected.WithLabelValues("malformed").Inc()
				logging.Warn().Err(err).Msg("Detection rejected")
				continue
			}
			return nil, err
		}
	}
	metrics.TrackedObjects.Set(float64(p.tracker.Len()))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stages 2+3: per-object fan-out. Each object is owned by exactly
	// one worker; the tracker is read-only from here on.
	objects := p.tracker.Objects()
	view := frameView{p.tracker}

	type outcome struct {
		advances []behavior.Advance
		degraded bool
	}
	outcomes := make([]outcome, len(objects))

	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(objects); i += p.cfg.Workers {
				obj := objects[i]
				rec, degraded := p.detector.Evaluate(ctx, obj, now)
				out := outcome{degraded: degraded}
				if !degraded {
					out.advances = p.engine.Step(obj, rec, view, now)
				}
				outcomes[i] = out
			}
		}(w)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 4: fusion. Advances arrive in deterministic object order.
	var advances []behavior.Advance
	for _, out := range outcomes {
		if out.degraded {
			result.Degraded = true
		}
		advances = append(advances, out.advances...)
	}
	result.Alerts = p.synth.Fuse(advances, now)

	for _, alert := range result.Alerts {
		p.dispatch(ctx, alert)
	}

	result.Statuses = p.statuses(objects)
	return result, nil
}

// dispatch fans an alert out to every notifier. A failing notifier
// never fails the frame.
func (p *Pipeline) dispatch(ctx context.Context, alert *synthesis.Alert) {
	for _, n := range p.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			logging.Error().
				Err(err).
				Str("alert_id", alert.ID).
				Msg("Alert notification failed")
		}
	}
}

// statuses builds the prioritized per-object diagnostic lines.
func (p *Pipeline) statuses(objects []*tracking.Object) []ObjectStatus {
	out := make([]ObjectStatus, 0, len(objects))
	for _, obj := range objects {
		st := ObjectStatus{
			Identity:   obj.Identity(),
			Class:      obj.Class(),
			Position:   obj.Position(),
			Speed:      obj.Speed(),
			Stationary: obj.Stationary(),
			State:      "N/A",
		}
		for _, prog := range p.engine.Active(obj.Identity()) {
			if prog.StateIndex > 0 {
				st.State = prog.StateName()
				st.Playbook = prog.Playbook.Name
			}
		}
		for _, ps := range p.synth.Status(obj.Identity()) {
			if ps.Probability > st.Probability {
				st.Probability = ps.Probability
				if st.Playbook == "" {
					st.Playbook = ps.Playbook
				}
			}
		}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].Identity < out[j].Identity
	})
	return out
}

// Snapshot returns the current prioritized statuses outside of frame
// processing, for the status API.
func (p *Pipeline) Snapshot() []ObjectStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statuses(p.tracker.Objects())
}
