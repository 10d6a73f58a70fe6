// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package config

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field-level constraints and the cross-field
// relationships the probability model depends on.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Synthesis.Floor >= c.Synthesis.Ceiling {
		return fmt.Errorf("synthesis.floor (%g) must be below synthesis.ceiling (%g)",
			c.Synthesis.Floor, c.Synthesis.Ceiling)
	}
	if c.Synthesis.AlertThreshold <= c.Synthesis.Floor {
		return fmt.Errorf("synthesis.alert_threshold (%g) must be above synthesis.floor (%g)",
			c.Synthesis.AlertThreshold, c.Synthesis.Floor)
	}
	if c.Synthesis.AlertThreshold > c.Synthesis.Ceiling {
		return fmt.Errorf("synthesis.alert_threshold (%g) must not exceed synthesis.ceiling (%g)",
			c.Synthesis.AlertThreshold, c.Synthesis.Ceiling)
	}

	if c.Tracking.StationaryWindow > c.Tracking.Retention {
		return fmt.Errorf("tracking.stationary_window (%s) must fit inside tracking.retention (%s)",
			c.Tracking.StationaryWindow, c.Tracking.Retention)
	}

	if c.Webhook.Enabled {
		if c.Webhook.URL == "" {
			return fmt.Errorf("webhook.url is required when webhook.enabled=true")
		}
		u, err := url.Parse(c.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook.url is not a valid http(s) URL: %q", c.Webhook.URL)
		}
	}

	if c.NATS.Enabled && !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled=true and nats.embedded_server=false")
	}

	return nil
}
