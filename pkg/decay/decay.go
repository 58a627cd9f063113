// Package decay implements the exponential recency-decay formula the
// feature extractor (C2) uses to turn "time since the tool's most recent
// trace finished" into a recency_score in [0, 1]. A three-tier (episodic/semantic/
// procedural) memory decay score shares the same exponential-half-life
// math elsewhere; CapiForge has no memory tiers, so this keeps the
// half-life formula but collapses the tier table to the single
// configurable half-life the predictor's tools share.
package decay

import "math"

// Config holds the recency-decay half-life, in hours.
type Config struct {
	// HalfLifeHours is the time for a recency score to fall to 0.5
	// assuming no further use. Default: 24 hours.
	HalfLifeHours float64
}

// DefaultConfig returns the default half-life (24h).
func DefaultConfig() *Config {
	return &Config{HalfLifeHours: 24}
}

// lambda converts a half-life into the exponential decay rate:
// halfLife = ln(2) / lambda, so lambda = ln(2) / halfLife.
func (c *Config) lambda() float64 {
	if c.HalfLifeHours <= 0 {
		return tierLambda
	}
	return math.Ln2 / c.HalfLifeHours
}

// tierLambda is the fallback rate used when HalfLifeHours is unset,
// equivalent to a 69-day half-life.
const tierLambda = 0.000418

// RecencyScore computes exp(-lambda * hoursSinceUse), clamped to [0, 1].
// hoursSinceUse must be >= 0; a negative value (clock skew) is treated as 0.
func (c *Config) RecencyScore(hoursSinceUse float64) float64 {
	if hoursSinceUse < 0 {
		hoursSinceUse = 0
	}
	score := math.Exp(-c.lambda() * hoursSinceUse)
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// HalfLife returns the configured half-life in hours (or the fallback if
// unset).
func (c *Config) HalfLife() float64 {
	if c.HalfLifeHours <= 0 {
		return math.Ln2 / tierLambda
	}
	return c.HalfLifeHours
}
