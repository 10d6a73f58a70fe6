// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/cordon-watch/cordon/internal/metrics"
	"github.com/cordon-watch/cordon/internal/synthesis"
)

// TopicAlertPrefix is the subject prefix for outbound alerts; the
// playbook name is appended per alert.
const TopicAlertPrefix = "alerts."

// NATSConfig holds the shared connection settings for the bus.
type NATSConfig struct {
	URL             string        `koanf:"url"`
	MaxReconnects   int           `koanf:"max_reconnects"`
	ReconnectWait   time.Duration `koanf:"reconnect_wait"`
	AckWaitTimeout  time.Duration `koanf:"ack_wait_timeout"`
	SubscriberCount int           `koanf:"subscriber_count"`
	QueueGroup      string        `koanf:"queue_group"`
	DurableName     string        `koanf:"durable_name"`
}

// DefaultNATSConfig returns the connection defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:             natsgo.DefaultURL,
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		AckWaitTimeout:  30 * time.Second,
		SubscriberCount: 1,
		QueueGroup:      "cordon",
		DurableName:     "cordon",
	}
}

func (c NATSConfig) natsOptions(logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(c.MaxReconnects),
		natsgo.ReconnectWait(c.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// NewNATSPublisher creates a JetStream publisher with message-id
// deduplication enabled.
func NewNATSPublisher(cfg NATSConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: cfg.natsOptions(logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}

// AlertPublisher publishes alerts to per-playbook subjects behind a
// circuit breaker, so a dead bus degrades to local delivery instead of
// stalling the pipeline.
type AlertPublisher struct {
	pub        message.Publisher
	serializer *Serializer
	cb         *gobreaker.CircuitBreaker[any]
}

// NewAlertPublisher wraps any watermill publisher.
func NewAlertPublisher(pub message.Publisher) *AlertPublisher {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "alert-publisher",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &AlertPublisher{pub: pub, serializer: NewSerializer(), cb: cb}
}

// Notify implements pipeline.Notifier: each alert goes out on
// alerts.<playbook>, keyed by its id for broker deduplication.
func (p *AlertPublisher) Notify(_ context.Context, alert *synthesis.Alert) error {
	data, err := p.serializer.MarshalAlert(alert)
	if err != nil {
		return err
	}

	msg := message.NewMessage(alert.ID, data)
	msg.Metadata.Set(natsgo.MsgIdHdr, alert.ID)
	topic := TopicAlertPrefix + alert.Playbook

	if _, err := p.cb.Execute(func() (any, error) {
		return nil, p.pub.Publish(topic, msg)
	}); err != nil {
		return fmt.Errorf("publish alert to %s: %w", topic, err)
	}
	metrics.AlertsPublished.Inc()
	return nil
}

// Close releases the underlying publisher.
func (p *AlertPublisher) Close() error {
	return p.pub.Close()
}
