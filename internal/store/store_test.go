// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cordon-watch/cordon/internal/synthesis"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func alert(i int) *synthesis.Alert {
	return &synthesis.Alert{
		ID:          fmt.Sprintf("alert-%03d", i),
		Identity:    "101",
		Class:       "van",
		Playbook:    "VBIED_DROPOFF",
		State:       "SEPARATION",
		Probability: 0.999,
		Action:      "Dispatch EOD unit",
		Timestamp:   t0.Add(time.Duration(i) * time.Second),
	}
}

func testStores(t *testing.T) map[string]AlertStore {
	t.Helper()
	db, err := OpenBadger("")
	if err != nil {
		t.Fatalf("opening in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return map[string]AlertStore{
		"memory": NewMemoryStore(100),
		"badger": NewBadgerStore(db),
	}
}

func TestAlertStoreRoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := alert(1)
			if err := s.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := s.Get(ctx, want.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.ID != want.ID || got.Identity != want.Identity || got.Probability != want.Probability {
				t.Errorf("got %+v, want %+v", got, want)
			}
			if !got.Timestamp.Equal(want.Timestamp) {
				t.Errorf("timestamp = %v, want %v", got.Timestamp, want.Timestamp)
			}
		})
	}
}

func TestAlertStoreNotFound(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrAlertNotFound) {
				t.Errorf("err = %v, want ErrAlertNotFound", err)
			}
		})
	}
}

func TestAlertStoreListNewestFirst(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 5; i++ {
				if err := s.Save(ctx, alert(i)); err != nil {
					t.Fatalf("Save %d: %v", i, err)
				}
			}

			got, err := s.List(ctx, 3)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("List returned %d alerts, want 3", len(got))
			}
			for i, want := range []string{"alert-005", "alert-004", "alert-003"} {
				if got[i].ID != want {
					t.Errorf("List[%d] = %s, want %s", i, got[i].ID, want)
				}
			}

			all, err := s.List(ctx, 0)
			if err != nil {
				t.Fatalf("List all: %v", err)
			}
			if len(all) != 5 {
				t.Errorf("unlimited List returned %d alerts, want 5", len(all))
			}
		})
	}
}

func TestMemoryStoreCapacity(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if err := s.Save(ctx, alert(i)); err != nil {
			t.Fatal(err)
		}
	}

	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	if _, err := s.Get(ctx, "alert-001"); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("evicted alert still retrievable: %v", err)
	}
	if _, err := s.Get(ctx, "alert-005"); err != nil {
		t.Errorf("newest alert missing: %v", err)
	}
}

func TestBadgerStorePersistsAcrossHandles(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenBadger(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := NewBadgerStore(db).Save(ctx, alert(1)); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = OpenBadger(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	got, err := NewBadgerStore(db).Get(ctx, "alert-001")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Probability != 0.999 {
		t.Errorf("reloaded alert = %+v", got)
	}
}

func TestAlertSinkSaves(t *testing.T) {
	mem := NewMemoryStore(10)
	sink := NewAlertSink(mem)

	if err := sink.Notify(context.Background(), alert(1)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	got, err := mem.Get(context.Background(), "alert-001")
	if err != nil {
		t.Fatalf("Get after Notify: %v", err)
	}
	if got.Playbook != "VBIED_DROPOFF" {
		t.Errorf("stored alert playbook = %q", got.Playbook)
	}
}
