// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package baseline

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/cordon-watch/cordon/internal/logging"
	"github.com/cordon-watch/cordon/internal/metrics"
	"github.com/cordon-watch/cordon/internal/tracking"
)

// BreakerConfig configures the circuit breaker around baseline queries.
type BreakerConfig struct {
	// QueryTimeout bounds a single normalcy query.
	QueryTimeout time.Duration `json:"query_timeout"`

	// FailureThreshold is the consecutive failure count that opens the
	// breaker.
	FailureThreshold uint32 `json:"failure_threshold"`

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `json:"open_timeout"`
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		QueryTimeout:     250 * time.Millisecond,
		FailureThreshold: 5,
		OpenTimeout:      10 * time.Second,
	}
}

// Breaker wraps a Provider with a bounded per-query timeout and a circuit
// breaker. Once the wrapped provider misbehaves repeatedly, queries
// short-circuit to ErrUnavailable instead of stalling every frame.
type Breaker struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker[float64]
	timeout  time.Duration
}

// NewBreaker wraps the given provider.
func NewBreaker(provider Provider, cfg BreakerConfig) *Breaker {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultBreakerConfig().QueryTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultBreakerConfig().OpenTimeout
	}

	settings := gobreaker.Settings{
		Name:    "baseline-provider",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("baseline breaker state changed")
		},
	}

	return &Breaker{
		provider: provider,
		cb:       gobreaker.NewCircuitBreaker[float64](settings),
		timeout:  cfg.QueryTimeout,
	}
}

// Normalcy queries the wrapped provider under the breaker. Any failure,
// timeout, or open breaker surfaces as ErrUnavailable.
func (b *Breaker) Normalcy(ctx context.Context, loc tracking.Point, feature FeatureKind, value float64) (float64, error) {
	start := time.Now()
	score, err := b.cb.Execute(func() (float64, error) {
		qctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return b.provider.Normalcy(qctx, loc, feature, value)
	})
	metrics.ObserveBaselineQuery(start)

	if err != nil {
		return 0, fmt.Errorf("%w: %s query: %v", ErrUnavailable, feature, err)
	}
	return score, nil
}

// State returns the breaker state string for diagnostics.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
