// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package synthesis

import (
	"math"
	"testing"
	"time"

	"github.com/cordon-watch/cordon/internal/behavior"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func adv(identity, pb, state string, mult float64, terminal bool) behavior.Advance {
	return behavior.Advance{
		Identity:   identity,
		Class:      "van",
		Playbook:   pb,
		Action:     "Dispatch EOD unit",
		StateName:  state,
		Multiplier: mult,
		Terminal:   terminal,
	}
}

func near(got, want float64) bool {
	return math.Abs(got-want) < 1e-12
}

func TestFuseMultiplicativeChain(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())

	alerts := s.Fuse([]behavior.Advance{adv("101", "VBIED_DROPOFF", "STOPPED_IN_ANOMALOUS_ZONE", 30, false)}, t0)
	if len(alerts) != 0 {
		t.Fatalf("unexpected alerts after first advance: %+v", alerts)
	}
	if p := s.Probability("101", "VBIED_DROPOFF"); !near(p, 0.003) {
		t.Errorf("after x30: probability = %v, want 0.003", p)
	}

	s.Fuse([]behavior.Advance{adv("101", "VBIED_DROPOFF", "DRIVER_EXIT", 50, false)}, t0.Add(time.Second))
	if p := s.Probability("101", "VBIED_DROPOFF"); !near(p, 0.15) {
		t.Errorf("after x50: probability = %v, want 0.15", p)
	}

	alerts = s.Fuse([]behavior.Advance{adv("101", "VBIED_DROPOFF", "SEPARATION", 100, true)}, t0.Add(2*time.Second))
	if p := s.Probability("101", "VBIED_DROPOFF"); p != 0.999 {
		t.Errorf("after x100: probability = %v, want ceiling 0.999", p)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	alert := alerts[0]
	if alert.Probability < 0.95 {
		t.Errorf("alert probability %v under the threshold", alert.Probability)
	}
	if alert.Identity != "101" || alert.Playbook != "VBIED_DROPOFF" {
		t.Errorf("alert = %+v", alert)
	}
	if alert.ID == "" {
		t.Error("alert has no id")
	}
	if alert.Action == "" {
		t.Error("alert has no recommended action")
	}
}

func TestFuseExactlyOnce(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	chain := []behavior.Advance{
		adv("101", "VBIED_DROPOFF", "STOPPED_IN_ANOMALOUS_ZONE", 30, false),
		adv("101", "VBIED_DROPOFF", "DRIVER_EXIT", 50, false),
		adv("101", "VBIED_DROPOFF", "SEPARATION", 100, true),
	}

	total := 0
	for i, a := range chain {
		total += len(s.Fuse([]behavior.Advance{a}, t0.Add(time.Duration(i)*time.Second)))
	}
	if total != 1 {
		t.Fatalf("chain emitted %d alerts, want 1", total)
	}

	// A replayed terminal advance must not re-alert.
	if got := s.Fuse([]behavior.Advance{chain[2]}, t0.Add(time.Minute)); len(got) != 0 {
		t.Fatalf("replayed terminal advance emitted %d alerts", len(got))
	}

	// Even a full fresh sequence for the same pair stays silent until
	// the identity is evicted.
	for i, a := range chain {
		if got := s.Fuse([]behavior.Advance{a}, t0.Add(2*time.Minute+time.Duration(i)*time.Second)); len(got) != 0 {
			t.Fatalf("repeat sequence step %d emitted %d alerts", i, len(got))
		}
	}
}

func TestFuseClampFloor(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	s.Fuse([]behavior.Advance{adv("101", "VBIED_DROPOFF", "X", 0.001, false)}, t0)
	if p := s.Probability("101", "VBIED_DROPOFF"); p != 1e-4 {
		t.Errorf("probability = %v, want floor 1e-4", p)
	}
}

func TestFuseThresholdWithoutTerminal(t *testing.T) {
	// Crossing the threshold alerts even when the state is not terminal.
	s := NewSynthesizer(DefaultConfig())
	alerts := s.Fuse([]behavior.Advance{adv("101", "VBIED_DROPOFF", "X", 1e5, false)}, t0)
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
}

func TestFuseQuietObjectStaysAtFloor(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	if p := s.Probability("999", "VBIED_DROPOFF"); p != 1e-4 {
		t.Errorf("untouched pair probability = %v, want floor", p)
	}
	if st := s.Status("999"); st != nil {
		t.Errorf("untouched identity status = %+v, want nil", st)
	}
}

func TestFuseAlertOrdering(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	s.Fuse([]behavior.Advance{adv("201", "VBIED_DROPOFF", "X", 9000, false)}, t0)

	alerts := s.Fuse([]behavior.Advance{
		adv("201", "VBIED_DROPOFF", "Y", 1.07, false), // ~0.963, alerts now
		adv("202", "VBIED_DROPOFF", "X", 1e7, false),  // ceiling
	}, t0.Add(time.Second))
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2", len(alerts))
	}
	if alerts[0].Identity != "202" || alerts[1].Identity != "201" {
		t.Errorf("alerts not ordered by descending probability: %s then %s",
			alerts[0].Identity, alerts[1].Identity)
	}
}

func TestEvictObjectResets(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	chain := []behavior.Advance{
		adv("101", "VBIED_DROPOFF", "A", 30, false),
		adv("101", "VBIED_DROPOFF", "B", 50, false),
		adv("101", "VBIED_DROPOFF", "C", 100, true),
	}
	for i, a := range chain {
		s.Fuse([]behavior.Advance{a}, t0.Add(time.Duration(i)*time.Second))
	}

	s.EvictObject("101")
	if p := s.Probability("101", "VBIED_DROPOFF"); p != 1e-4 {
		t.Errorf("post-eviction probability = %v, want floor", p)
	}

	// A fresh object reusing the identity can alert again.
	later := t0.Add(time.Hour)
	total := 0
	for i, a := range chain {
		total += len(s.Fuse([]behavior.Advance{a}, later.Add(time.Duration(i)*time.Second)))
	}
	if total != 1 {
		t.Errorf("fresh identity after eviction emitted %d alerts, want 1", total)
	}
}

func TestStatusSnapshot(t *testing.T) {
	s := NewSynthesizer(DefaultConfig())
	s.Fuse([]behavior.Advance{adv("101", "VBIED_DROPOFF", "A", 30, false)}, t0)

	st := s.Status("101")
	if len(st) != 1 {
		t.Fatalf("status has %d entries, want 1", len(st))
	}
	if st[0].Playbook != "VBIED_DROPOFF" || !near(st[0].Probability, 0.003) || st[0].Alerted {
		t.Errorf("status = %+v", st[0])
	}
}
