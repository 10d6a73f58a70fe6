// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package playbook

import (
	"time"

	"github.com/cordon-watch/cordon/internal/anomaly"
	"github.com/cordon-watch/cordon/internal/tracking"
)

// FrameView is a read-only snapshot of every tracked object after the
// current frame's detections have been applied. Cross-object predicates
// (driver exit, separation) read other objects through it.
type FrameView interface {
	// Object returns the tracked object for an identity, if live.
	Object(identity string) (*tracking.Object, bool)

	// Objects returns all live objects in deterministic order.
	Objects() []*tracking.Object
}

// Evidence is everything a predicate may consult when deciding whether
// its state condition holds for the subject object this frame.
type Evidence struct {
	// Object is the subject the playbook is tracking.
	Object *tracking.Object

	// Anomaly is this frame's anomaly record for the subject.
	Anomaly anomaly.Record

	// Now is the frame timestamp.
	Now time.Time

	// Elapsed is the time since the subject entered its current
	// playbook state. Zero when evaluating the entry predicate.
	Elapsed time.Duration

	// View exposes the rest of the frame.
	View FrameView

	bindings map[string]string
}

// Bind records a named identity link on the progress instance, e.g. the
// companion spotted by a driver-exit predicate. Bindings persist across
// frames and are visible to later states of the same progress.
func (e *Evidence) Bind(key, identity string) {
	if e.bindings == nil {
		e.bindings = make(map[string]string)
	}
	e.bindings[key] = identity
}

// Binding returns a previously bound identity.
func (e *Evidence) Binding(key string) (string, bool) {
	v, ok := e.bindings[key]
	return v, ok
}

// Bindings returns a copy of all bindings, nil when there are none.
func (e *Evidence) Bindings() map[string]string {
	if len(e.bindings) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.bindings))
	for k, v := range e.bindings {
		out[k] = v
	}
	return out
}

// SeedBindings preloads bindings carried over from the progress
// instance. The map is copied.
func (e *Evidence) SeedBindings(b map[string]string) {
	if len(b) == 0 {
		return
	}
	e.bindings = make(map[string]string, len(b))
	for k, v := range b {
		e.bindings[k] = v
	}
}
