// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package playbook

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/cordon-watch/cordon/internal/logging"
)

// PredicateDefinition is the YAML form of a state predicate.
type PredicateDefinition struct {
	Type   string         `koanf:"type"`
	Params map[string]any `koanf:"params"`
}

// StateDefinition is the YAML form of a playbook state.
type StateDefinition struct {
	Name       string              `koanf:"name"`
	Predicate  PredicateDefinition `koanf:"predicate"`
	Multiplier float64             `koanf:"multiplier"`
	Deadline   time.Duration       `koanf:"deadline"`
}

// Definition is the YAML form of a playbook.
type Definition struct {
	Name    string            `koanf:"name"`
	Classes []string          `koanf:"classes"`
	Action  string            `koanf:"action"`
	States  []StateDefinition `koanf:"states"`
}

type definitionFile struct {
	Playbooks []Definition `koanf:"playbooks"`
}

// Compile turns a definition into an immutable playbook, resolving
// predicate types. An unknown type is an error; callers treat it as
// fatal at startup.
func Compile(def Definition) (*Playbook, error) {
	p := &Playbook{
		Name:    def.Name,
		Classes: def.Classes,
		Action:  def.Action,
		States:  make([]State, 0, len(def.States)),
	}
	for _, sd := range def.States {
		pred, err := NewPredicate(sd.Predicate.Type, sd.Predicate.Params)
		if err != nil {
			return nil, fmt.Errorf("playbook %q: state %q: %w", def.Name, sd.Name, err)
		}
		p.States = append(p.States, State{
			Name:       sd.Name,
			Predicate:  pred,
			Multiplier: sd.Multiplier,
			Deadline:   sd.Deadline,
		})
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFile reads playbook definitions from a YAML file and compiles
// them into a registry together with the built-in defaults. Definitions
// in the file shadow a default of the same name.
func LoadFile(path string) (*Registry, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading playbook file %s: %w", path, err)
	}

	var defs definitionFile
	if err := k.Unmarshal("", &defs); err != nil {
		return nil, fmt.Errorf("parsing playbook file %s: %w", path, err)
	}
	if len(defs.Playbooks) == 0 {
		return nil, fmt.Errorf("playbook file %s defines no playbooks", path)
	}

	loaded := make(map[string]*Playbook, len(defs.Playbooks))
	var order []*Playbook
	for _, def := range defs.Playbooks {
		p, err := Compile(def)
		if err != nil {
			return nil, err
		}
		if _, dup := loaded[p.Name]; dup {
			return nil, fmt.Errorf("playbook file %s: duplicate playbook name %q", path, p.Name)
		}
		loaded[p.Name] = p
		order = append(order, p)
	}

	// Defaults not shadowed by the file stay available.
	for _, p := range Defaults() {
		if _, shadowed := loaded[p.Name]; !shadowed {
			order = append(order, p)
		}
	}

	logging.Info().
		Str("path", path).
		Int("playbooks", len(order)).
		Msg("Playbook definitions loaded")
	return NewRegistry(order...)
}

// Defaults returns the built-in playbooks. Errors are impossible for
// the built-in definitions, so compilation panics instead of returning
// one; a failure here is a programming defect caught by tests.
func Defaults() []*Playbook {
	vbied, err := Compile(Definition{
		Name:    "VBIED_DROPOFF",
		Classes: []string{"van", "truck", "car"},
		Action:  "Dispatch EOD unit, establish cordon",
		States: []StateDefinition{
			{
				Name: "STOPPED_IN_ANOMALOUS_ZONE",
				Predicate: PredicateDefinition{
					Type:   "anomalous_stop",
					Params: map[string]any{"min_severity": 0.5},
				},
				Multiplier: 30,
			},
			{
				Name: "DRIVER_EXIT",
				Predicate: PredicateDefinition{
					Type:   "companion_appeared",
					Params: map[string]any{"class": "person", "radius": 50.0},
				},
				Multiplier: 50,
				Deadline:   60 * time.Second,
			},
			{
				Name: "SEPARATION",
				Predicate: PredicateDefinition{
					Type:   "companion_separation",
					Params: map[string]any{"min_speed": 0.5},
				},
				Multiplier: 100,
				Deadline:   120 * time.Second,
			},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("built-in playbook: %v", err))
	}
	return []*Playbook{vbied}
}

// DefaultRegistry returns a registry holding only the built-ins.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		panic(fmt.Sprintf("built-in playbooks: %v", err))
	}
	return r
}
