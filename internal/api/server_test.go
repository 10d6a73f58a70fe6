// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/cordon-watch/cordon/internal/anomaly"
	"github.com/cordon-watch/cordon/internal/baseline"
	"github.com/cordon-watch/cordon/internal/behavior"
	"github.com/cordon-watch/cordon/internal/pipeline"
	"github.com/cordon-watch/cordon/internal/playbook"
	"github.com/cordon-watch/cordon/internal/store"
	"github.com/cordon-watch/cordon/internal/synthesis"
	"github.com/cordon-watch/cordon/internal/tracking"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func testServer(t *testing.T) (*Server, *store.MemoryStore, *pipeline.Pipeline) {
	t.Helper()
	zones := baseline.ZoneConfig{
		TravelZone: baseline.Zone{
			{X: 0, Y: 220}, {X: 1000, Y: 220}, {X: 1000, Y: 300}, {X: 0, Y: 300},
		},
		SpeedLimit:   200,
		OutsideScore: 0.05,
	}
	trackCfg := tracking.DefaultConfig()
	trackCfg.StationaryWindow = time.Second
	pipe := pipeline.New(
		pipeline.DefaultConfig(),
		tracking.NewTracker(trackCfg),
		anomaly.NewDetector(baseline.NewZoneProvider(zones), anomaly.DefaultConfig()),
		behavior.NewEngine(playbook.DefaultRegistry(), behavior.DefaultConfig()),
		synthesis.NewSynthesizer(synthesis.DefaultConfig()),
	)
	alerts := store.NewMemoryStore(100)
	return NewServer(DefaultConfig(), pipe, alerts, NewHub()), alerts, pipe
}

func TestHealthz(t *testing.T) {
	s, _, _ := testServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, _, pipe := testServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	_, err := pipe.ProcessFrame(context.Background(), pipeline.Frame{
		Camera:    "cam-1",
		Timestamp: t0,
		Detections: []tracking.Detection{
			{Identity: "101", Class: "van", Position: tracking.Point{X: 100, Y: 260}, Timestamp: t0},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Objects []pipeline.ObjectStatus `json:"objects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Objects) != 1 {
		t.Fatalf("objects = %+v, want one entry", body.Objects)
	}
	if body.Objects[0].Identity != "101" || body.Objects[0].State != "N/A" {
		t.Errorf("status = %+v", body.Objects[0])
	}
}

func TestAlertsEndpoint(t *testing.T) {
	s, alerts, _ := testServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	for i := 0; i < 3; i++ {
		if err := alerts.Save(context.Background(), &synthesis.Alert{
			ID:        string(rune('a' + i)),
			Identity:  "101",
			Playbook:  "VBIED_DROPOFF",
			Timestamp: t0.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Get(srv.URL + "/api/v1/alerts?limit=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Alerts []*synthesis.Alert `json:"alerts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(body.Alerts))
	}
	if body.Alerts[0].ID != "c" {
		t.Errorf("newest alert first: got %q", body.Alerts[0].ID)
	}
}

func TestAlertsEndpointBadLimit(t *testing.T) {
	s, _, _ := testServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/alerts?limit=bogus")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWebSocketAlertFeed(t *testing.T) {
	s, _, _ := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the hub to register the client before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.hub.BroadcastAlert(&synthesis.Alert{
		ID:          "a-1",
		Identity:    "101",
		Playbook:    "VBIED_DROPOFF",
		Probability: 0.999,
		Timestamp:   t0,
	})

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading broadcast: %v", err)
	}
	if msg.Type != MessageTypeThreatAlert {
		t.Errorf("message type = %q", msg.Type)
	}
	data, err := json.Marshal(msg.Data)
	if err != nil {
		t.Fatal(err)
	}
	var alert synthesis.Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		t.Fatal(err)
	}
	if alert.ID != "a-1" || alert.Probability != 0.999 {
		t.Errorf("alert = %+v", alert)
	}
}
