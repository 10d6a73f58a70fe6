// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package ingest

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/cordon-watch/cordon/internal/logging"
	"github.com/cordon-watch/cordon/internal/metrics"
	"github.com/cordon-watch/cordon/internal/pipeline"
)

// TopicFrames is the default inbound frame subject.
const TopicFrames = "frames"

// NewNATSSubscriber creates a durable JetStream subscriber for frames.
func NewNATSSubscriber(cfg NATSConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscriberCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		NatsOptions:      cfg.natsOptions(logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			AckAsync:      false,
			DurablePrefix: cfg.DurableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.MaxDeliver(3),
				natsgo.AckWait(cfg.AckWaitTimeout),
				natsgo.DeliverNew(),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}
	return sub, nil
}

// FrameConsumer pulls frames from the bus and runs them through the
// pipeline. One consumer processes frames in arrival order; the
// pipeline's own frame guard makes broker redelivery harmless.
type FrameConsumer struct {
	sub        message.Subscriber
	pipe       *pipeline.Pipeline
	serializer *Serializer
	topic      string
}

// NewFrameConsumer wires a subscriber to a pipeline.
func NewFrameConsumer(sub message.Subscriber, pipe *pipeline.Pipeline, topic string) *FrameConsumer {
	if topic == "" {
		topic = TopicFrames
	}
	return &FrameConsumer{
		sub:        sub,
		pipe:       pipe,
		serializer: NewSerializer(),
		topic:      topic,
	}
}

// Run consumes frames until the context is cancelled. Malformed
// payloads are acked and dropped; processing failures nack for
// redelivery.
func (c *FrameConsumer) Run(ctx context.Context) error {
	msgs, err := c.sub.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}
	logging.Info().Str("topic", c.topic).Msg("Frame consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *FrameConsumer) handle(ctx context.Context, msg *message.Message) {
	frame, err := c.serializer.UnmarshalFrame(msg.Payload)
	if err != nil {
		// Redelivering a frame that cannot parse would poison the
		// subject; drop it.
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable frame")
		metrics.DetectionsRejected.WithLabelValues("undecodable_frame").Inc()
		msg.Ack()
		return
	}

	if _, err := c.pipe.ProcessFrame(ctx, *frame); err != nil {
		logging.Error().Err(err).Time("timestamp", frame.Timestamp).Msg("Frame processing failed")
		msg.Nack()
		return
	}
	metrics.FramesConsumed.Inc()
	msg.Ack()
}
