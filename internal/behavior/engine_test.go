// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package behavior

import (
	"testing"
	"time"

	"github.com/cordon-watch/cordon/internal/anomaly"
	"github.com/cordon-watch/cordon/internal/playbook"
	"github.com/cordon-watch/cordon/internal/tracking"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type trackerView struct{ tr *tracking.Tracker }

func (v trackerView) Object(id string) (*tracking.Object, bool) { return v.tr.Get(id) }
func (v trackerView) Objects() []*tracking.Object               { return v.tr.Objects() }

// harness wires a tracker and a default-playbook engine together.
type harness struct {
	t      *testing.T
	tr     *tracking.Tracker
	engine *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := tracking.DefaultConfig()
	cfg.StationaryWindow = time.Second
	return &harness{
		t:      t,
		tr:     tracking.NewTracker(cfg),
		engine: NewEngine(playbook.DefaultRegistry(), DefaultConfig()),
	}
}

func (h *harness) see(id, class string, x, y float64, at time.Time) *tracking.Object {
	h.t.Helper()
	obj, err := h.tr.Update(tracking.Detection{
		Identity:  id,
		Class:     class,
		Position:  tracking.Point{X: x, Y: y},
		Timestamp: at,
	})
	if err != nil {
		h.t.Fatalf("update %s: %v", id, err)
	}
	return obj
}

// stopVan drives van 101 to a standstill at (400,350) by t0+4s.
func (h *harness) stopVan() *tracking.Object {
	h.t.Helper()
	h.see("101", "van", 100, 240, t0.Add(1*time.Second))
	h.see("101", "van", 250, 245, t0.Add(2*time.Second))
	h.see("101", "van", 400, 350, t0.Add(3*time.Second))
	return h.see("101", "van", 400, 350, t0.Add(4*time.Second))
}

func anomalousRec(id string, at time.Time) anomaly.Record {
	return anomaly.Record{Identity: id, Timestamp: at, Anomalous: true, Severity: 0.95, Feature: "dwell"}
}

func (h *harness) step(obj *tracking.Object, rec anomaly.Record, now time.Time) []Advance {
	return h.engine.Step(obj, rec, trackerView{h.tr}, now)
}

func TestEngineEntry(t *testing.T) {
	h := newHarness(t)
	van := h.stopVan()
	now := t0.Add(4 * time.Second)

	advances := h.step(van, anomalousRec("101", now), now)
	if len(advances) != 1 {
		t.Fatalf("got %d advances, want 1", len(advances))
	}
	adv := advances[0]
	if adv.StateName != "STOPPED_IN_ANOMALOUS_ZONE" || adv.StateIndex != 1 {
		t.Errorf("advance = %+v, want entry state", adv)
	}
	if adv.Multiplier != 30 {
		t.Errorf("multiplier = %v, want 30", adv.Multiplier)
	}
	if adv.Terminal {
		t.Error("entry state reported terminal")
	}
	if h.engine.Len() != 1 {
		t.Errorf("engine holds %d progress, want 1", h.engine.Len())
	}
}

func TestEngineEntryRequiresAnomaly(t *testing.T) {
	h := newHarness(t)
	van := h.stopVan()
	now := t0.Add(4 * time.Second)

	advances := h.step(van, anomaly.Record{Identity: "101", Timestamp: now}, now)
	if len(advances) != 0 {
		t.Fatalf("normal record produced %d advances", len(advances))
	}
}

func TestEngineIgnoredClass(t *testing.T) {
	h := newHarness(t)
	h.see("202", "person", 400, 350, t0.Add(1*time.Second))
	person := h.see("202", "person", 400, 350, t0.Add(3*time.Second))

	advances := h.step(person, anomalousRec("202", t0.Add(3*time.Second)), t0.Add(3*time.Second))
	if len(advances) != 0 {
		t.Fatalf("person matched a vehicle playbook: %+v", advances)
	}
}

func TestEngineFullSequence(t *testing.T) {
	h := newHarness(t)
	van := h.stopVan()

	// Frame 1: anomalous stop enters the playbook.
	now := t0.Add(4 * time.Second)
	advances := h.step(van, anomalousRec("101", now), now)
	if len(advances) != 1 || advances[0].StateName != "STOPPED_IN_ANOMALOUS_ZONE" {
		t.Fatalf("frame 1 advances = %+v", advances)
	}

	// Frame 2: a person appears beside the van.
	now = t0.Add(5 * time.Second)
	van = h.see("101", "van", 400, 350, now)
	h.see("202", "person", 450, 350, now)
	advances = h.step(van, anomalousRec("101", now), now)
	if len(advances) != 1 || advances[0].StateName != "DRIVER_EXIT" {
		t.Fatalf("frame 2 advances = %+v", advances)
	}
	if advances[0].Multiplier != 50 {
		t.Errorf("DRIVER_EXIT multiplier = %v, want 50", advances[0].Multiplier)
	}

	// Frame 3: the person walks away. Terminal.
	now = t0.Add(6 * time.Second)
	van = h.see("101", "van", 400, 350, now)
	h.see("202", "person", 460, 350, now)
	advances = h.step(van, anomalousRec("101", now), now)
	if len(advances) != 1 {
		t.Fatalf("frame 3 advances = %+v", advances)
	}
	adv := advances[0]
	if adv.StateName != "SEPARATION" || !adv.Terminal || adv.Multiplier != 100 {
		t.Errorf("terminal advance = %+v", adv)
	}
	if adv.Action == "" {
		t.Error("terminal advance carries no action")
	}

	// Terminal progress is finalized immediately.
	if h.engine.Len() != 0 {
		t.Errorf("engine holds %d progress after terminal, want 0", h.engine.Len())
	}
}

func TestEngineOneAdvancePerFrame(t *testing.T) {
	h := newHarness(t)
	van := h.stopVan()

	// The person is already present when the van first qualifies, but a
	// single frame may only take a single transition.
	now := t0.Add(5 * time.Second)
	van = h.see("101", "van", 400, 350, now)
	h.see("202", "person", 450, 350, now)
	advances := h.step(van, anomalousRec("101", now), now)
	if len(advances) != 1 || advances[0].StateName != "STOPPED_IN_ANOMALOUS_ZONE" {
		t.Fatalf("advances = %+v, want entry only", advances)
	}
}

func TestEngineReplayGuard(t *testing.T) {
	h := newHarness(t)
	van := h.stopVan()
	now := t0.Add(4 * time.Second)

	if got := h.step(van, anomalousRec("101", now), now); len(got) != 1 {
		t.Fatalf("first step advances = %d, want 1", len(got))
	}
	// The same frame evaluated again must not advance a second time.
	if got := h.step(van, anomalousRec("101", now), now); len(got) != 0 {
		t.Fatalf("replayed step advances = %d, want 0", len(got))
	}
}

func TestEngineDeadlineAbandonment(t *testing.T) {
	h := newHarness(t)
	van := h.stopVan()
	now := t0.Add(4 * time.Second)
	h.step(van, anomalousRec("101", now), now)

	// DRIVER_EXIT carries a 60s deadline. Nothing happens for 2 minutes.
	late := now.Add(2 * time.Minute)
	van = h.see("101", "van", 400, 350, late)
	advances := h.step(van, anomalousRec("101", late), late)
	if len(advances) != 0 {
		t.Fatalf("stalled progress advanced: %+v", advances)
	}
	if h.engine.Len() != 0 {
		t.Errorf("engine holds %d progress after deadline, want 0", h.engine.Len())
	}

	// The next anomalous frame starts a fresh progress from the top.
	next := late.Add(time.Second)
	van = h.see("101", "van", 400, 350, next)
	advances = h.step(van, anomalousRec("101", next), next)
	if len(advances) != 1 || advances[0].StateName != "STOPPED_IN_ANOMALOUS_ZONE" {
		t.Fatalf("restart advances = %+v", advances)
	}
}

func TestEngineSweep(t *testing.T) {
	h := newHarness(t)
	van := h.stopVan()
	now := t0.Add(4 * time.Second)
	h.step(van, anomalousRec("101", now), now)

	// The camera loses the van; Sweep enforces the deadline anyway.
	h.engine.Sweep(now.Add(2 * time.Minute))
	if h.engine.Len() != 0 {
		t.Errorf("engine holds %d progress after sweep, want 0", h.engine.Len())
	}
}

func TestEngineSweepKeepsFreshProgress(t *testing.T) {
	h := newHarness(t)
	van := h.stopVan()
	now := t0.Add(4 * time.Second)
	h.step(van, anomalousRec("101", now), now)

	h.engine.Sweep(now.Add(10 * time.Second))
	if h.engine.Len() != 1 {
		t.Errorf("fresh progress swept: len = %d, want 1", h.engine.Len())
	}
}

func TestEngineEvictObject(t *testing.T) {
	h := newHarness(t)
	van := h.stopVan()
	now := t0.Add(4 * time.Second)
	h.step(van, anomalousRec("101", now), now)

	h.engine.EvictObject("101")
	if h.engine.Len() != 0 {
		t.Errorf("engine holds %d progress after eviction, want 0", h.engine.Len())
	}
	if got := h.engine.Active("101"); got != nil {
		t.Errorf("Active after eviction = %+v, want nil", got)
	}
}

func TestEngineActiveSnapshot(t *testing.T) {
	h := newHarness(t)
	van := h.stopVan()
	now := t0.Add(4 * time.Second)
	h.step(van, anomalousRec("101", now), now)

	active := h.engine.Active("101")
	if len(active) != 1 {
		t.Fatalf("Active returned %d instances, want 1", len(active))
	}
	if active[0].StateName() != "STOPPED_IN_ANOMALOUS_ZONE" {
		t.Errorf("state = %q", active[0].StateName())
	}

	// Mutating the snapshot must not touch engine state.
	active[0].StateIndex = 99
	if h.engine.Active("101")[0].StateIndex != 1 {
		t.Error("snapshot mutation leaked into the engine")
	}
}
