// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package store persists synthesized alerts. The in-memory store backs
// tests and ephemeral deployments; the badger store survives restarts.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/cordon-watch/cordon/internal/synthesis"
)

// ErrAlertNotFound is returned when an alert id is unknown.
var ErrAlertNotFound = errors.New("alert not found")

// AlertStore persists alerts and answers recency queries.
type AlertStore interface {
	// Save persists one alert.
	Save(ctx context.Context, alert *synthesis.Alert) error

	// Get returns an alert by id, or ErrAlertNotFound.
	Get(ctx context.Context, id string) (*synthesis.Alert, error)

	// List returns up to limit alerts, newest first. limit <= 0 means
	// no limit.
	List(ctx context.Context, limit int) ([]*synthesis.Alert, error)
}

// MemoryStore keeps the most recent alerts in a bounded ring.
type MemoryStore struct {
	mu     sync.RWMutex
	max    int
	alerts []*synthesis.Alert // oldest first
	byID   map[string]*synthesis.Alert
}

// NewMemoryStore returns a store retaining at most max alerts. max <= 0
// defaults to 1000.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1000
	}
	return &MemoryStore{
		max:  max,
		byID: make(map[string]*synthesis.Alert),
	}
}

// Save appends an alert, evicting the oldest past capacity.
func (s *MemoryStore) Save(_ context.Context, alert *synthesis.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, alert)
	s.byID[alert.ID] = alert
	if len(s.alerts) > s.max {
		evicted := s.alerts[0]
		s.alerts = s.alerts[1:]
		delete(s.byID, evicted.ID)
	}
	return nil
}

// Get returns an alert by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*synthesis.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.byID[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}

// List returns alerts newest first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*synthesis.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.alerts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*synthesis.Alert, 0, n)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.alerts[i])
	}
	return out, nil
}

// Len returns the number of retained alerts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}
