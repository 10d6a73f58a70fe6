// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package playbook

import (
	"fmt"
	"strings"
	"time"
)

// BindingCompanion is the binding key under which companion-linking
// predicates record the linked identity.
const BindingCompanion = "companion"

// Predicate decides whether a playbook state's condition holds for the
// subject this frame. Implementations must be stateless; per-progress
// state goes through Evidence bindings.
type Predicate interface {
	// Type returns the registered predicate type name.
	Type() string

	// Holds evaluates the condition against the frame evidence.
	Holds(ev *Evidence) bool
}

// Params carries the flat key/value parameter block of a predicate
// definition, as unmarshaled from YAML.
type Params map[string]any

// Float returns a numeric parameter or the fallback.
func (p Params) Float(key string, fallback float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

// String returns a string parameter or the fallback.
func (p Params) String(key, fallback string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Duration returns a duration parameter ("30s" or plain seconds) or the
// fallback.
func (p Params) Duration(key string, fallback time.Duration) time.Duration {
	switch v := p[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	}
	return fallback
}

// Factory builds a predicate from its parameter block.
type Factory func(params Params) (Predicate, error)

var factories = map[string]Factory{
	"anomalous_stop":       newAnomalousStop,
	"companion_appeared":   newCompanionAppeared,
	"companion_separation": newCompanionSeparation,
	"severity_above":       newSeverityAbove,
	"dwell_exceeds":        newDwellExceeds,
}

// NewPredicate builds a predicate of the given registered type. An
// unknown type is an error; playbook loading treats it as fatal.
func NewPredicate(typ string, params Params) (Predicate, error) {
	factory, ok := factories[typ]
	if !ok {
		return nil, fmt.Errorf("unknown predicate type %q", typ)
	}
	return factory(params)
}

// PredicateTypes returns the registered type names, for diagnostics.
func PredicateTypes() []string {
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	return types
}

// anomalousStop holds when the subject is stationary and this frame's
// anomaly record flags it at or above a minimum severity.
type anomalousStop struct {
	minSeverity float64
}

func newAnomalousStop(params Params) (Predicate, error) {
	return &anomalousStop{minSeverity: params.Float("min_severity", 0.5)}, nil
}

func (p *anomalousStop) Type() string { return "anomalous_stop" }

func (p *anomalousStop) Holds(ev *Evidence) bool {
	return ev.Object.Stationary() &&
		ev.Anomaly.Anomalous &&
		ev.Anomaly.Severity >= p.minSeverity
}

// companionAppeared holds when an object of the given class newly
// appears within radius of the subject's anchor. The nearest match is
// bound as the companion for later states.
type companionAppeared struct {
	class  string
	radius float64
}

func newCompanionAppeared(params Params) (Predicate, error) {
	p := &companionAppeared{
		class:  params.String("class", "person"),
		radius: params.Float("radius", 50),
	}
	if p.radius <= 0 {
		return nil, fmt.Errorf("companion_appeared: radius must be positive, got %v", p.radius)
	}
	return p, nil
}

func (p *companionAppeared) Type() string { return "companion_appeared" }

func (p *companionAppeared) Holds(ev *Evidence) bool {
	best := ""
	bestDist := p.radius
	for _, other := range ev.View.Objects() {
		if other.Identity() == ev.Object.Identity() {
			continue
		}
		if !strings.EqualFold(other.Class(), p.class) {
			continue
		}
		// Only a fresh appearance counts: someone who was already in
		// the scene did not just exit the vehicle.
		if other.SampleCount() != 1 {
			continue
		}
		if d := ev.Object.DistanceFromAnchor(other.Position()); d <= bestDist {
			best = other.Identity()
			bestDist = d
		}
	}
	if best == "" {
		return false
	}
	ev.Bind(BindingCompanion, best)
	return true
}

// companionSeparation holds when the bound companion is moving away
// from the subject's anchor above a minimum speed. An optional
// min_distance additionally requires the gap to have opened that far.
type companionSeparation struct {
	minSpeed    float64
	minDistance float64
}

func newCompanionSeparation(params Params) (Predicate, error) {
	return &companionSeparation{
		minSpeed:    params.Float("min_speed", 0.5),
		minDistance: params.Float("min_distance", 0),
	}, nil
}

func (p *companionSeparation) Type() string { return "companion_separation" }

func (p *companionSeparation) Holds(ev *Evidence) bool {
	id, ok := ev.Binding(BindingCompanion)
	if !ok {
		return false
	}
	comp, ok := ev.View.Object(id)
	if !ok {
		return false
	}
	prev, ok := comp.PreviousPosition()
	if !ok {
		return false
	}
	curr := ev.Object.DistanceFromAnchor(comp.Position())
	if curr <= ev.Object.DistanceFromAnchor(prev) {
		return false
	}
	if comp.Speed() < p.minSpeed {
		return false
	}
	return curr >= p.minDistance
}

// severityAbove holds when this frame's anomaly severity exceeds a
// threshold, regardless of motion state.
type severityAbove struct {
	threshold float64
}

func newSeverityAbove(params Params) (Predicate, error) {
	return &severityAbove{threshold: params.Float("threshold", 0.8)}, nil
}

func (p *severityAbove) Type() string { return "severity_above" }

func (p *severityAbove) Holds(ev *Evidence) bool {
	return ev.Anomaly.Anomalous && ev.Anomaly.Severity > p.threshold
}

// dwellExceeds holds once the subject has been stationary for at least
// the given duration.
type dwellExceeds struct {
	min time.Duration
}

func newDwellExceeds(params Params) (Predicate, error) {
	d := params.Duration("duration", 30*time.Second)
	if d <= 0 {
		return nil, fmt.Errorf("dwell_exceeds: duration must be positive, got %v", d)
	}
	return &dwellExceeds{min: d}, nil
}

func (p *dwellExceeds) Type() string { return "dwell_exceeds" }

func (p *dwellExceeds) Holds(ev *Evidence) bool {
	return ev.Object.StationaryFor(ev.Now) >= p.min
}
