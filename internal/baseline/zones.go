// Cordon - Threat Correlation Engine for Video Analytics
// Copyright 2026 Cordon Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cordon-watch/cordon

package baseline

import (
	"context"

	"github.com/cordon-watch/cordon/internal/tracking"
)

// Zone is a closed polygon in the world coordinate frame.
type Zone []tracking.Point

// Contains reports whether the point is inside the polygon, using the
// even-odd ray casting rule. Degenerate zones (<3 vertices) contain
// nothing.
func (z Zone) Contains(p tracking.Point) bool {
	if len(z) < 3 {
		return false
	}
	inside := false
	j := len(z) - 1
	for i := 0; i < len(z); i++ {
		a, b := z[i], z[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xings := (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y) + a.X
			if p.X < xings {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// ZoneConfig configures the polygon-zone provider.
type ZoneConfig struct {
	// TravelZone is where movement is expected (e.g., the road surface).
	TravelZone Zone `json:"travel_zone"`

	// StoppingZone is where dwelling is expected (e.g., a signal stop).
	StoppingZone Zone `json:"stopping_zone"`

	// SpeedLimit is the speed (m/s) above which movement in the travel
	// zone is no longer fully normal.
	SpeedLimit float64 `json:"speed_limit"`

	// OutsideScore is the normalcy assigned to behavior outside its
	// expected zone. Kept small but positive so downstream severity is
	// strong without claiming certainty.
	OutsideScore float64 `json:"outside_score"`
}

// DefaultZoneConfig returns sensible defaults.
func DefaultZoneConfig() ZoneConfig {
	return ZoneConfig{
		SpeedLimit:   15.0,
		OutsideScore: 0.05,
	}
}

// ZoneProvider is a deterministic pattern-of-life stand-in built from
// configured polygons. Real deployments substitute a trained statistical
// model behind the same Provider interface; this one keeps standalone
// runs and tests self-contained.
type ZoneProvider struct {
	cfg ZoneConfig
}

// NewZoneProvider creates a provider from the given zone configuration.
func NewZoneProvider(cfg ZoneConfig) *ZoneProvider {
	if cfg.OutsideScore <= 0 {
		cfg.OutsideScore = DefaultZoneConfig().OutsideScore
	}
	if cfg.SpeedLimit <= 0 {
		cfg.SpeedLimit = DefaultZoneConfig().SpeedLimit
	}
	return &ZoneProvider{cfg: cfg}
}

// Normalcy scores the feature against the configured zones. The provider
// is pure and never fails; it is safe for concurrent queries.
func (zp *ZoneProvider) Normalcy(_ context.Context, loc tracking.Point, feature FeatureKind, value float64) (float64, error) {
	switch feature {
	case FeatureLocation:
		if zp.cfg.TravelZone.Contains(loc) || zp.cfg.StoppingZone.Contains(loc) {
			return 1.0, nil
		}
		return zp.cfg.OutsideScore, nil

	case FeatureDwell:
		if zp.cfg.StoppingZone.Contains(loc) {
			return 1.0, nil
		}
		return zp.cfg.OutsideScore, nil

	case FeatureSpeed:
		if value <= zp.cfg.SpeedLimit {
			return 1.0, nil
		}
		// Normalcy decays linearly above the limit, floored at the
		// outside score.
		excess := (value - zp.cfg.SpeedLimit) / zp.cfg.SpeedLimit
		score := 1.0 - excess
		if score < zp.cfg.OutsideScore {
			score = zp.cfg.OutsideScore
		}
		return score, nil

	default:
		return 1.0, nil
	}
}
