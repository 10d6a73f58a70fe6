// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package store

import (
	"context"

	"github.com/cordon-watch/cordon/internal/synthesis"
)

// AlertSink persists alerts delivered through the pipeline's notifier
// fan-out.
type AlertSink struct {
	store AlertStore
}

// NewAlertSink wraps an AlertStore as a notifier.
func NewAlertSink(store AlertStore) *AlertSink {
	return &AlertSink{store: store}
}

// Notify saves the alert.
func (s *AlertSink) Notify(ctx context.Context, alert *synthesis.Alert) error {
	return s.store.Save(ctx, alert)
}
