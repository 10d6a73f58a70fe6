// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/cordon-watch/cordon/internal/logging"
	"github.com/cordon-watch/cordon/internal/synthesis"
)

// Key prefixes for BadgerDB storage. Timeline keys sort by timestamp so
// recency queries are a reverse prefix scan.
const (
	alertKeyPrefix    = "alert:"
	timelineKeyPrefix = "alert_ts:"
)

// BadgerStore implements AlertStore on BadgerDB for durable storage
// across restarts.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an opened badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadger opens (or creates) a badger database at path, with
// badger's own chatty logging silenced. An empty path opens an
// in-memory database.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", path, err)
	}
	logging.Info().Str("path", path).Bool("in_memory", path == "").Msg("Alert database opened")
	return db, nil
}

func timelineKey(ts time.Time, id string) []byte {
	return []byte(timelineKeyPrefix + ts.UTC().Format(time.RFC3339Nano) + ":" + id)
}

// Save persists one alert under its id plus a timeline mapping.
func (s *BadgerStore) Save(_ context.Context, alert *synthesis.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(alertKeyPrefix+alert.ID), data); err != nil {
			return fmt.Errorf("set alert: %w", err)
		}
		if err := txn.Set(timelineKey(alert.Timestamp, alert.ID), []byte(alert.ID)); err != nil {
			return fmt.Errorf("set timeline mapping: %w", err)
		}
		return nil
	})
}

// Get returns an alert by id.
func (s *BadgerStore) Get(_ context.Context, id string) (*synthesis.Alert, error) {
	var alert synthesis.Alert
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(alertKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAlertNotFound
		}
		if err != nil {
			return fmt.Errorf("get alert: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &alert)
		})
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// List returns alerts newest first via a reverse timeline scan.
func (s *BadgerStore) List(_ context.Context, limit int) ([]*synthesis.Alert, error) {
	var out []*synthesis.Alert
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(timelineKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts just past the prefix range.
		seek := append([]byte(timelineKeyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix([]byte(timelineKeyPrefix)); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			item, err := txn.Get([]byte(alertKeyPrefix + id))
			if err != nil {
				return fmt.Errorf("get alert %s from timeline: %w", id, err)
			}
			var alert synthesis.Alert
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &alert)
			}); err != nil {
				return err
			}
			out = append(out, &alert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
