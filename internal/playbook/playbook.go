// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package playbook models known hostile-tactic sequences as ordered
// state machines. A playbook is immutable after load; the behavior
// engine walks objects through its states strictly forward, one state
// at a time, using the predicates attached to each state.
package playbook

import (
	"fmt"
	"strings"
	"time"
)

// State is one step of a playbook sequence.
type State struct {
	// Name identifies the state in status output and logs.
	Name string

	// Predicate must hold for an object to enter this state.
	Predicate Predicate

	// Multiplier scales the threat probability when the state is
	// entered (Bayesian likelihood ratio).
	Multiplier float64

	// Deadline bounds how long a progress may wait in the previous
	// state for this predicate to fire. Zero means no deadline.
	Deadline time.Duration
}

// Playbook is an ordered hostile-tactic sequence applicable to a set of
// object classes.
type Playbook struct {
	// Name uniquely identifies the playbook.
	Name string

	// Classes limits which object classes the playbook applies to,
	// matched case-insensitively. Empty means all classes.
	Classes []string

	// States is the ordered sequence. Index 0 is the entry state;
	// reaching the last state is terminal.
	States []State

	// Action is the recommended response emitted with a terminal alert.
	Action string
}

// AppliesTo reports whether the playbook covers the given object class.
func (p *Playbook) AppliesTo(class string) bool {
	if len(p.Classes) == 0 {
		return true
	}
	for _, c := range p.Classes {
		if strings.EqualFold(c, class) {
			return true
		}
	}
	return false
}

// Terminal reports whether a progress state index means the sequence
// completed. Index i means States[i-1] was the last state entered.
func (p *Playbook) Terminal(index int) bool {
	return index >= len(p.States)
}

// Next returns the state a progress at the given index would enter on
// its next advance.
func (p *Playbook) Next(index int) (State, bool) {
	if index < 0 || index >= len(p.States) {
		return State{}, false
	}
	return p.States[index], true
}

// StateName returns the display name for a progress state index, where
// index 0 means the sequence has not been entered.
func (p *Playbook) StateName(index int) string {
	if index <= 0 || index > len(p.States) {
		return "N/A"
	}
	return p.States[index-1].Name
}

// validate checks structural soundness at load time.
func (p *Playbook) validate() error {
	if p.Name == "" {
		return fmt.Errorf("playbook with empty name")
	}
	if len(p.States) == 0 {
		return fmt.Errorf("playbook %q: no states", p.Name)
	}
	for i, s := range p.States {
		if s.Name == "" {
			return fmt.Errorf("playbook %q: state %d has no name", p.Name, i)
		}
		if s.Predicate == nil {
			return fmt.Errorf("playbook %q: state %q has no predicate", p.Name, s.Name)
		}
		if s.Multiplier <= 0 {
			return fmt.Errorf("playbook %q: state %q: multiplier must be positive, got %v", p.Name, s.Name, s.Multiplier)
		}
	}
	return nil
}

// Registry holds the loaded playbooks and answers class lookups.
type Registry struct {
	playbooks []*Playbook
	byName    map[string]*Playbook
}

// NewRegistry builds a registry, rejecting duplicate names and
// structurally invalid playbooks.
func NewRegistry(playbooks ...*Playbook) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Playbook, len(playbooks))}
	for _, p := range playbooks {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate playbook name %q", p.Name)
		}
		r.byName[p.Name] = p
		r.playbooks = append(r.playbooks, p)
	}
	return r, nil
}

// ForClass returns the playbooks applicable to an object class, in load
// order.
func (r *Registry) ForClass(class string) []*Playbook {
	var out []*Playbook
	for _, p := range r.playbooks {
		if p.AppliesTo(class) {
			out = append(out, p)
		}
	}
	return out
}

// Get returns a playbook by name.
func (r *Registry) Get(name string) (*Playbook, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// All returns every loaded playbook in load order.
func (r *Registry) All() []*Playbook {
	return r.playbooks
}

// Len returns the number of loaded playbooks.
func (r *Registry) Len() int { return len(r.playbooks) }
