// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package ingest moves frames and alerts over the message bus. Frames
// arrive on NATS JetStream subjects, run through the pipeline, and any
// synthesized alerts are published back out per playbook.
package ingest

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/cordon-watch/cordon/internal/pipeline"
	"github.com/cordon-watch/cordon/internal/synthesis"
)

// Serializer handles frame and alert encoding for bus messages.
type Serializer struct{}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// MarshalFrame converts a frame to JSON bytes.
func (s *Serializer) MarshalFrame(frame *pipeline.Frame) ([]byte, error) {
	if frame.Timestamp.IsZero() {
		return nil, fmt.Errorf("frame has no timestamp")
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return data, nil
}

// UnmarshalFrame converts JSON bytes to a frame.
func (s *Serializer) UnmarshalFrame(data []byte) (*pipeline.Frame, error) {
	var frame pipeline.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if frame.Timestamp.IsZero() {
		return nil, fmt.Errorf("frame has no timestamp")
	}
	return &frame, nil
}

// MarshalAlert converts an alert to JSON bytes.
func (s *Serializer) MarshalAlert(alert *synthesis.Alert) ([]byte, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("marshal alert: %w", err)
	}
	return data, nil
}

// UnmarshalAlert converts JSON bytes to an alert.
func (s *Serializer) UnmarshalAlert(data []byte) (*synthesis.Alert, error) {
	var alert synthesis.Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, fmt.Errorf("unmarshal alert: %w", err)
	}
	return &alert, nil
}
