// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package synthesis fuses playbook evidence into threat probabilities
// and emits alerts. Belief starts at a prior floor per (identity,
// playbook) pair and multiplies by the likelihood ratio of each state
// entered, clamped below certainty. An alert fires exactly once per
// pair when the probability crosses the alert threshold.
package synthesis

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cordon-watch/cordon/internal/behavior"
	"github.com/cordon-watch/cordon/internal/logging"
	"github.com/cordon-watch/cordon/internal/metrics"
)

// Alert is an actionable threat notification.
type Alert struct {
	ID          string    `json:"id"`
	Identity    string    `json:"identity"`
	Class       string    `json:"class"`
	Playbook    string    `json:"playbook"`
	State       string    `json:"state"`
	Probability float64   `json:"probability"`
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
}

// Config holds the fusion thresholds.
type Config struct {
	// Floor is the prior probability assigned before any evidence, and
	// the lower clamp.
	Floor float64

	// Ceiling is the upper clamp. Probability never reaches certainty.
	Ceiling float64

	// AlertThreshold is the probability at which an alert fires.
	AlertThreshold float64
}

// DefaultConfig returns the fusion defaults.
func DefaultConfig() Config {
	return Config{
		Floor:          1e-4,
		Ceiling:        0.999,
		AlertThreshold: 0.95,
	}
}

type pairKey struct {
	identity string
	playbook string
}

// PairStatus is the diagnostic snapshot of one (identity, playbook)
// belief.
type PairStatus struct {
	Playbook    string  `json:"playbook"`
	Probability float64 `json:"probability"`
	Alerted     bool    `json:"alerted"`
}

// Synthesizer accumulates threat probabilities. Safe for concurrent
// use.
type Synthesizer struct {
	mu      sync.Mutex
	cfg     Config
	beliefs map[pairKey]float64
	alerted map[pairKey]bool
}

// NewSynthesizer returns a synthesizer with the given thresholds.
func NewSynthesizer(cfg Config) *Synthesizer {
	def := DefaultConfig()
	if cfg.Floor <= 0 {
		cfg.Floor = def.Floor
	}
	if cfg.Ceiling <= 0 || cfg.Ceiling >= 1 {
		cfg.Ceiling = def.Ceiling
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = def.AlertThreshold
	}
	return &Synthesizer{
		cfg:     cfg,
		beliefs: make(map[pairKey]float64),
		alerted: make(map[pairKey]bool),
	}
}

// Fuse applies this frame's advances to the accumulated beliefs and
// returns any alerts crossing the threshold, ordered by descending
// probability. A pair that has already alerted never re-alerts, even
// across a later fresh sequence, until the identity is evicted.
func (s *Synthesizer) Fuse(advances []behavior.Advance, now time.Time) []*Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	var alerts []*Alert
	for _, adv := range advances {
		key := pairKey{identity: adv.Identity, playbook: adv.Playbook}

		p, known := s.beliefs[key]
		if !known {
			p = s.cfg.Floor
		}
		p *= adv.Multiplier
		p = s.clamp(p)
		s.beliefs[key] = p

		logging.Debug().
			Str("identity", adv.Identity).
			Str("playbook", adv.Playbook).
			Str("state", adv.StateName).
			Float64("probability", p).
			Msg("Threat probability updated")

		if p < s.cfg.AlertThreshold || s.alerted[key] {
			continue
		}
		s.alerted[key] = true
		metrics.AlertsEmitted.WithLabelValues(adv.Playbook).Inc()

		alert := &Alert{
			ID:          uuid.NewString(),
			Identity:    adv.Identity,
			Class:       adv.Class,
			Playbook:    adv.Playbook,
			State:       adv.StateName,
			Probability: p,
			Action:      adv.Action,
			Timestamp:   now,
		}
		alerts = append(alerts, alert)
		logging.Warn().
			Str("alert_id", alert.ID).
			Str("identity", alert.Identity).
			Str("playbook", alert.Playbook).
			Float64("probability", alert.Probability).
			Str("action", alert.Action).
			Msg("Actionable threat detected")
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Probability > alerts[j].Probability
	})
	return alerts
}

func (s *Synthesizer) clamp(p float64) float64 {
	if p < s.cfg.Floor {
		return s.cfg.Floor
	}
	if p > s.cfg.Ceiling {
		return s.cfg.Ceiling
	}
	return p
}

// Probability returns the current belief for a pair, or the floor when
// no evidence has accumulated.
func (s *Synthesizer) Probability(identity, playbook string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.beliefs[pairKey{identity: identity, playbook: playbook}]; ok {
		return p
	}
	return s.cfg.Floor
}

// Status returns the per-playbook beliefs for an identity, sorted by
// descending probability. Nil when no evidence has accumulated.
func (s *Synthesizer) Status(identity string) []PairStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PairStatus
	for key, p := range s.beliefs {
		if key.identity != identity {
			continue
		}
		out = append(out, PairStatus{
			Playbook:    key.playbook,
			Probability: p,
			Alerted:     s.alerted[key],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].Playbook < out[j].Playbook
	})
	return out
}

// EvictObject drops all belief and alert history for an identity. A
// later object reusing the identity starts from the floor and may alert
// again.
func (s *Synthesizer) EvictObject(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.beliefs {
		if key.identity == identity {
			delete(s.beliefs, key)
		}
	}
	for key := range s.alerted {
		if key.identity == identity {
			delete(s.alerted, key)
		}
	}
}
