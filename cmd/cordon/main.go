// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package main is the entry point for the Cordon correlation node.
//
// Cordon consumes per-frame object detections from upstream video
// analytics, tracks object state across frames, scores behavior against
// a normalcy baseline, matches anomalies to multi-stage threat
// playbooks, and fuses the evidence into calibrated alert
// probabilities.
//
// # Application Architecture
//
// The node initializes components in the following order:
//
//  1. Configuration: layered Koanf load (defaults, YAML file, CORDON_* env)
//  2. Playbooks: built-in definitions, or a YAML playbook file
//  3. Baseline: polygon-zone normalcy provider behind a circuit breaker
//  4. Pipeline: tracker, anomaly detector, behavior engine, synthesizer
//  5. Alert store: Badger-backed persistence (in-memory when no path)
//  6. Transport: NATS JetStream frame consumer and alert publisher,
//     with an optional embedded server
//  7. API: chi HTTP server with status, alert, and websocket endpoints
//
// All long-running services run under a suture supervisor tree so a
// crash in one layer restarts that layer alone.
//
// # Configuration
//
// Configuration merges three layers, highest priority last:
//   - built-in defaults
//   - config file (config.yaml, or CORDON_CONFIG)
//   - CORDON_* environment variables
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the frame consumer
// stops pulling, in-flight frames drain, the HTTP server closes with a
// bounded timeout, and the embedded bus flushes JetStream state.
//
// # Example Usage
//
// Single-node deployment with the embedded bus:
//
//	export CORDON_STORE_PATH=/data/cordon/alerts
//	./cordon
//
// Against an external NATS cluster:
//
//	export CORDON_NATS_EMBEDDED_SERVER=false
//	export CORDON_NATS_URL=nats://nats:4222
//	./cordon
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cordon-watch/cordon/internal/anomaly"
	"github.com/cordon-watch/cordon/internal/api"
	"github.com/cordon-watch/cordon/internal/baseline"
	"github.com/cordon-watch/cordon/internal/behavior"
	"github.com/cordon-watch/cordon/internal/config"
	"github.com/cordon-watch/cordon/internal/ingest"
	"github.com/cordon-watch/cordon/internal/logging"
	"github.com/cordon-watch/cordon/internal/notify"
	"github.com/cordon-watch/cordon/internal/pipeline"
	"github.com/cordon-watch/cordon/internal/playbook"
	"github.com/cordon-watch/cordon/internal/store"
	"github.com/cordon-watch/cordon/internal/supervisor"
	"github.com/cordon-watch/cordon/internal/synthesis"
	"github.com/cordon-watch/cordon/internal/tracking"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("api_addr", cfg.API.Addr).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("webhook_enabled", cfg.Webhook.Enabled).
		Msg("Starting Cordon")

	// Playbooks: a definition file extends and shadows the built-ins.
	registry := playbook.DefaultRegistry()
	if cfg.Playbooks.Path != "" {
		registry, err = playbook.LoadFile(cfg.Playbooks.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Playbooks.Path).
				Msg("Failed to load playbook definitions")
		}
	}
	logging.Info().Int("playbooks", registry.Len()).Msg("Playbook registry ready")

	// Baseline queries fail closed behind a circuit breaker.
	provider := baseline.NewBreaker(baseline.NewZoneProvider(cfg.ZoneConfig()), cfg.BreakerConfig())

	// Correlation stages.
	tracker := tracking.NewTracker(cfg.TrackerConfig())
	detector := anomaly.NewDetector(provider, cfg.DetectorConfig())
	engine := behavior.NewEngine(registry, cfg.EngineConfig())
	synth := synthesis.NewSynthesizer(cfg.SynthesizerConfig())

	// Alert persistence. An empty path keeps Badger in memory.
	db, err := store.OpenBadger(cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open alert store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing alert store")
		}
	}()
	alertStore := store.NewBadgerStore(db)

	hub := api.NewHub()

	notifiers := []pipeline.Notifier{
		store.NewAlertSink(alertStore),
		hub,
	}
	if cfg.Webhook.Enabled {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookNotifierConfig()))
		logging.Info().Str("url", cfg.Webhook.URL).Msg("Webhook notifier enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Transport. The embedded server rewrites the client URL so the
	// publisher and consumer attach to the local bus.
	natsCfg := cfg.TransportConfig()
	wmLogger := ingest.NewWatermillLogger()
	if cfg.NATS.Enabled {
		if cfg.NATS.EmbeddedServer {
			bus, err := ingest.NewEmbeddedServer(cfg.EmbeddedServerConfig())
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
			}
			natsCfg.URL = bus.ClientURL()
			tree.AddIngestService(supervisor.NewBusService("nats-bus", bus, 10*time.Second))
		}

		pub, err := ingest.NewNATSPublisher(natsCfg, wmLogger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create alert publisher")
		}
		alertPublisher := ingest.NewAlertPublisher(pub)
		notifiers = append(notifiers, alertPublisher)
		defer func() {
			if err := alertPublisher.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing alert publisher")
			}
		}()
	} else {
		logging.Warn().Msg("NATS transport disabled; no frames will be consumed")
	}

	pipe := pipeline.New(cfg.PipelineConfig(), tracker, detector, engine, synth, notifiers...)

	if cfg.NATS.Enabled {
		sub, err := ingest.NewNATSSubscriber(natsCfg, wmLogger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create frame subscriber")
		}
		consumer := ingest.NewFrameConsumer(sub, pipe, ingest.TopicFrames)
		tree.AddIngestService(supervisor.NewRunnerService("frame-consumer", consumer))
	}

	tree.AddMessagingService(supervisor.NewRunnerService("websocket-hub", hub))

	server := api.NewServer(cfg.APIServerConfig(), pipe, alertStore, hub)
	tree.AddAPIService(supervisor.NewRunnerService("api-server", server))
	logging.Info().Str("addr", cfg.API.Addr).Msg("API server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Cordon stopped gracefully")
}
