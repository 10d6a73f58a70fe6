// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/cordon-watch/cordon/internal/synthesis"
)

func testAlert() *synthesis.Alert {
	return &synthesis.Alert{
		ID:          "a-1",
		Identity:    "101",
		Class:       "van",
		Playbook:    "VBIED_DROPOFF",
		State:       "SEPARATION",
		Probability: 0.999,
		Action:      "Dispatch EOD unit",
		Timestamp:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestWebhookDelivers(t *testing.T) {
	var got WebhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL:     srv.URL,
		Enabled: true,
		Headers: map[string]string{"Authorization": "Bearer token"},
	})
	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if got.EventType != "threat_alert" || got.Source != "cordon" {
		t.Errorf("payload envelope = %+v", got)
	}
	if got.Alert == nil || got.Alert.ID != "a-1" {
		t.Errorf("payload alert = %+v", got.Alert)
	}
	if auth != "Bearer token" {
		t.Errorf("auth header = %q", auth)
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Enabled: true})
	if err := n.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestWebhookDisabledIsNoop(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Enabled: false})
	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("disabled notifier made %d requests", calls.Load())
	}
	if n.Enabled() {
		t.Error("Enabled() = true for disabled notifier")
	}
}

func TestWebhookRateLimitRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// One token per hour with no burst headroom beyond the first call.
	n := NewWebhookNotifier(WebhookConfig{
		URL:           srv.URL,
		Enabled:       true,
		RatePerSecond: 1.0 / 3600,
		Burst:         1,
	})
	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("first Notify: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := n.Notify(ctx, testAlert())
	if err == nil {
		t.Fatal("expected rate-limited Notify to fail under a short deadline")
	}
	if time.Since(start) > time.Second {
		t.Error("rate-limit wait ignored the context deadline")
	}
}
