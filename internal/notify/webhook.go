// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

// Package notify delivers alerts to external sinks.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/cordon-watch/cordon/internal/synthesis"
)

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"` // custom headers (e.g., auth)
	Enabled bool              `json:"enabled"`

	// RatePerSecond bounds delivery; bursts up to Burst are allowed.
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`

	Timeout time.Duration `json:"timeout"`
}

// WebhookPayload is the JSON body POSTed to the endpoint.
type WebhookPayload struct {
	Alert     *synthesis.Alert `json:"alert"`
	EventType string           `json:"event_type"` // threat_alert
	Timestamp time.Time        `json:"timestamp"`
	Source    string           `json:"source"` // cordon
}

// WebhookNotifier POSTs alerts to a webhook endpoint, rate limited so a
// burst of alerts cannot flood the receiver.
type WebhookNotifier struct {
	mu      sync.RWMutex
	url     string
	headers map[string]string
	enabled bool
	limiter *rate.Limiter
	client  *http.Client
}

// NewWebhookNotifier builds a notifier from config.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &WebhookNotifier{
		url:     cfg.URL,
		headers: headers,
		enabled: cfg.Enabled,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string { return "webhook" }

// Enabled reports whether the notifier will deliver.
func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.url != ""
}

// SetEnabled toggles delivery.
func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Notify delivers one alert, waiting for rate-limit headroom. The wait
// respects the context deadline.
func (n *WebhookNotifier) Notify(ctx context.Context, alert *synthesis.Alert) error {
	n.mu.RLock()
	url := n.url
	enabled := n.enabled
	headers := n.headers
	n.mu.RUnlock()

	if !enabled || url == "" {
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit wait: %w", err)
	}

	payload := WebhookPayload{
		Alert:     alert,
		EventType: "threat_alert",
		Timestamp: time.Now().UTC(),
		Source:    "cordon",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
