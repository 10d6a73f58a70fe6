// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package config loads and validates the Cordon runtime configuration.
// Values are layered: struct defaults, then an optional YAML file, then
// environment variables, with later layers winning.
package config

import (
	"time"

	"github.com/cordon-watch/cordon/internal/anomaly"
	"github.com/cordon-watch/cordon/internal/api"
	"github.com/cordon-watch/cordon/internal/baseline"
	"github.com/cordon-watch/cordon/internal/behavior"
	"github.com/cordon-watch/cordon/internal/ingest"
	"github.com/cordon-watch/cordon/internal/notify"
	"github.com/cordon-watch/cordon/internal/pipeline"
	"github.com/cordon-watch/cordon/internal/synthesis"
	"github.com/cordon-watch/cordon/internal/tracking"
)

// Config is the root configuration for a Cordon node.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Tracking  TrackingConfig  `koanf:"tracking"`
	Baseline  BaselineConfig  `koanf:"baseline"`
	Anomaly   AnomalyConfig   `koanf:"anomaly"`
	Behavior  BehaviorConfig  `koanf:"behavior"`
	Synthesis SynthesisConfig `koanf:"synthesis"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Playbooks PlaybookConfig  `koanf:"playbooks"`
	NATS      NATSConfig      `koanf:"nats"`
	Store     StoreConfig     `koanf:"store"`
	API       APIConfig       `koanf:"api"`
	Webhook   WebhookConfig   `koanf:"webhook"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// TrackingConfig controls the object tracker.
type TrackingConfig struct {
	MaxSamples       int           `koanf:"max_samples" validate:"min=2"`
	Retention        time.Duration `koanf:"retention" validate:"gt=0"`
	MotionEpsilon    float64       `koanf:"motion_epsilon" validate:"gt=0"`
	StationaryWindow time.Duration `koanf:"stationary_window" validate:"gt=0"`
	EvictionTimeout  time.Duration `koanf:"eviction_timeout" validate:"gt=0"`
}

// PointConfig is a polygon vertex in the world coordinate frame.
type PointConfig struct {
	X float64 `koanf:"x"`
	Y float64 `koanf:"y"`
}

// BaselineConfig selects zones for the polygon-zone normalcy provider
// and tunes the circuit breaker guarding queries against it.
type BaselineConfig struct {
	TravelZone   []PointConfig `koanf:"travel_zone" validate:"min=3"`
	StoppingZone []PointConfig `koanf:"stopping_zone" validate:"min=3"`
	SpeedLimit   float64       `koanf:"speed_limit" validate:"gt=0"`
	OutsideScore float64       `koanf:"outside_score" validate:"gt=0,lt=1"`

	QueryTimeout     time.Duration `koanf:"query_timeout" validate:"gt=0"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"min=1"`
	OpenTimeout      time.Duration `koanf:"open_timeout" validate:"gt=0"`
}

// AnomalyConfig controls the anomaly detector.
type AnomalyConfig struct {
	SeverityFloor float64 `koanf:"severity_floor" validate:"gt=0,lt=1"`
}

// BehaviorConfig controls playbook progress bookkeeping.
type BehaviorConfig struct {
	AbandonAfter time.Duration `koanf:"abandon_after" validate:"gt=0"`
}

// SynthesisConfig controls probability fusion and alerting.
type SynthesisConfig struct {
	Floor          float64 `koanf:"floor" validate:"gt=0,lt=1"`
	Ceiling        float64 `koanf:"ceiling" validate:"gt=0,lt=1"`
	AlertThreshold float64 `koanf:"alert_threshold" validate:"gt=0,lt=1"`
}

// PipelineConfig controls per-frame processing.
type PipelineConfig struct {
	Workers int `koanf:"workers" validate:"min=1"`
}

// PlaybookConfig points at an optional playbook definition file. When
// Path is empty the built-in playbooks are used.
type PlaybookConfig struct {
	Path string `koanf:"path"`
}

// NATSConfig controls the frame/alert transport.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	Host           string `koanf:"host"`
	Port           int    `koanf:"port" validate:"min=0,max=65535"`
	StoreDir       string `koanf:"store_dir"`

	URL             string        `koanf:"url"`
	MaxReconnects   int           `koanf:"max_reconnects"`
	ReconnectWait   time.Duration `koanf:"reconnect_wait" validate:"gt=0"`
	AckWaitTimeout  time.Duration `koanf:"ack_wait_timeout" validate:"gt=0"`
	SubscriberCount int           `koanf:"subscriber_count" validate:"min=1"`
	QueueGroup      string        `koanf:"queue_group"`
	DurableName     string        `koanf:"durable_name"`
}

// StoreConfig controls alert persistence. An empty Path keeps the
// Badger store in memory.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// APIConfig controls the diagnostic HTTP surface.
type APIConfig struct {
	Addr           string        `koanf:"addr" validate:"required"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	RateLimit      int           `koanf:"rate_limit" validate:"min=1"`
	ReadTimeout    time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

// WebhookConfig controls outbound alert delivery.
type WebhookConfig struct {
	Enabled       bool              `koanf:"enabled"`
	URL           string            `koanf:"url"`
	Headers       map[string]string `koanf:"headers"`
	RatePerSecond float64           `koanf:"rate_per_second" validate:"gt=0"`
	Burst         int               `koanf:"burst" validate:"min=1"`
	Timeout       time.Duration     `koanf:"timeout" validate:"gt=0"`
}

// defaultConfig returns a Config with all defaults applied. The zone
// defaults describe the reference intersection scene: a horizontal
// roadway with a stopping pocket at its east end.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracking: TrackingConfig{
			MaxSamples:       30,
			Retention:        30 * time.Second,
			MotionEpsilon:    0.5,
			StationaryWindow: 2 * time.Second,
			EvictionTimeout:  30 * time.Second,
		},
		Baseline: BaselineConfig{
			TravelZone: []PointConfig{
				{X: 0, Y: 220}, {X: 1000, Y: 220}, {X: 1000, Y: 300}, {X: 0, Y: 300},
			},
			StoppingZone: []PointConfig{
				{X: 800, Y: 220}, {X: 900, Y: 220}, {X: 900, Y: 300}, {X: 800, Y: 300},
			},
			SpeedLimit:       15.0,
			OutsideScore:     0.05,
			QueryTimeout:     2 * time.Second,
			FailureThreshold: 3,
			OpenTimeout:      30 * time.Second,
		},
		Anomaly: AnomalyConfig{
			SeverityFloor: 0.2,
		},
		Behavior: BehaviorConfig{
			AbandonAfter: 5 * time.Minute,
		},
		Synthesis: SynthesisConfig{
			Floor:          1e-4,
			Ceiling:        0.999,
			AlertThreshold: 0.95,
		},
		Pipeline: PipelineConfig{
			Workers: 4,
		},
		Playbooks: PlaybookConfig{
			Path: "",
		},
		NATS: NATSConfig{
			Enabled:         true,
			EmbeddedServer:  true,
			Host:            "127.0.0.1",
			Port:            4222,
			StoreDir:        "/data/cordon/jetstream",
			URL:             "nats://127.0.0.1:4222",
			MaxReconnects:   -1,
			ReconnectWait:   2 * time.Second,
			AckWaitTimeout:  30 * time.Second,
			SubscriberCount: 1,
			QueueGroup:      "cordon",
			DurableName:     "cordon",
		},
		Store: StoreConfig{
			Path: "/data/cordon/alerts",
		},
		API: APIConfig{
			Addr:           ":8086",
			AllowedOrigins: []string{"*"},
			RateLimit:      300,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
		},
		Webhook: WebhookConfig{
			Enabled:       false,
			URL:           "",
			RatePerSecond: 2,
			Burst:         5,
			Timeout:       10 * time.Second,
		},
	}
}

func toZone(pts []PointConfig) baseline.Zone {
	z := make(baseline.Zone, 0, len(pts))
	for _, p := range pts {
		z = append(z, tracking.Point{X: p.X, Y: p.Y})
	}
	return z
}

// TrackerConfig maps the tracking section onto the tracker's own config.
func (c *Config) TrackerConfig() tracking.Config {
	return tracking.Config{
		MaxSamples:       c.Tracking.MaxSamples,
		Retention:        c.Tracking.Retention,
		MotionEpsilon:    c.Tracking.MotionEpsilon,
		StationaryWindow: c.Tracking.StationaryWindow,
		EvictionTimeout:  c.Tracking.EvictionTimeout,
	}
}

// ZoneConfig maps the baseline section onto the zone provider's config.
func (c *Config) ZoneConfig() baseline.ZoneConfig {
	return baseline.ZoneConfig{
		TravelZone:   toZone(c.Baseline.TravelZone),
		StoppingZone: toZone(c.Baseline.StoppingZone),
		SpeedLimit:   c.Baseline.SpeedLimit,
		OutsideScore: c.Baseline.OutsideScore,
	}
}

// BreakerConfig maps the baseline section onto the breaker's config.
func (c *Config) BreakerConfig() baseline.BreakerConfig {
	return baseline.BreakerConfig{
		QueryTimeout:     c.Baseline.QueryTimeout,
		FailureThreshold: c.Baseline.FailureThreshold,
		OpenTimeout:      c.Baseline.OpenTimeout,
	}
}

// DetectorConfig maps the anomaly section onto the detector's config.
func (c *Config) DetectorConfig() anomaly.Config {
	return anomaly.Config{SeverityFloor: c.Anomaly.SeverityFloor}
}

// EngineConfig maps the behavior section onto the engine's config.
func (c *Config) EngineConfig() behavior.Config {
	return behavior.Config{AbandonAfter: c.Behavior.AbandonAfter}
}

// SynthesizerConfig maps the synthesis section onto the fuser's config.
func (c *Config) SynthesizerConfig() synthesis.Config {
	return synthesis.Config{
		Floor:          c.Synthesis.Floor,
		Ceiling:        c.Synthesis.Ceiling,
		AlertThreshold: c.Synthesis.AlertThreshold,
	}
}

// PipelineConfig maps the pipeline section onto the pipeline's config.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{Workers: c.Pipeline.Workers}
}

// TransportConfig maps the nats section onto the transport config.
func (c *Config) TransportConfig() ingest.NATSConfig {
	return ingest.NATSConfig{
		URL:             c.NATS.URL,
		MaxReconnects:   c.NATS.MaxReconnects,
		ReconnectWait:   c.NATS.ReconnectWait,
		AckWaitTimeout:  c.NATS.AckWaitTimeout,
		SubscriberCount: c.NATS.SubscriberCount,
		QueueGroup:      c.NATS.QueueGroup,
		DurableName:     c.NATS.DurableName,
	}
}

// EmbeddedServerConfig maps the nats section onto the embedded server
// config.
func (c *Config) EmbeddedServerConfig() ingest.ServerConfig {
	return ingest.ServerConfig{
		Host:     c.NATS.Host,
		Port:     c.NATS.Port,
		StoreDir: c.NATS.StoreDir,
	}
}

// APIServerConfig maps the api section onto the HTTP server config.
func (c *Config) APIServerConfig() api.Config {
	return api.Config{
		Addr:           c.API.Addr,
		AllowedOrigins: c.API.AllowedOrigins,
		RateLimit:      c.API.RateLimit,
		ReadTimeout:    c.API.ReadTimeout,
		WriteTimeout:   c.API.WriteTimeout,
	}
}

// WebhookNotifierConfig maps the webhook section onto the notifier
// config.
func (c *Config) WebhookNotifierConfig() notify.WebhookConfig {
	return notify.WebhookConfig{
		URL:           c.Webhook.URL,
		Headers:       c.Webhook.Headers,
		Enabled:       c.Webhook.Enabled,
		RatePerSecond: c.Webhook.RatePerSecond,
		Burst:         c.Webhook.Burst,
		Timeout:       c.Webhook.Timeout,
	}
}
