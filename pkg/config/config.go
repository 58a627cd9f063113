// Package config loads CapiForge's tunables from environment variables or
// a YAML file, following an env-var-prefix-plus-YAML-sibling loader
// pattern (CAPIFORGE_* prefix, getEnv* helpers, gopkg.in/yaml.v3).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every scoring, routing, and learning tunable.
type Config struct {
	EmbeddingDim int `yaml:"embedding_dim"`

	SHGAT   SHGATConfig   `yaml:"shgat"`
	DRDSP   DRDSPConfig   `yaml:"drdsp"`
	Edge    EdgeConfig    `yaml:"edge"`
	PER     PERConfig     `yaml:"per"`
	Stats   StatsConfig   `yaml:"stats"`
	Predict PredictConfig `yaml:"predict"`
	Embed   EmbedConfig   `yaml:"embed"`
}

// EmbedConfig tunes the embedding client's LRU cache.
type EmbedConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// SHGATConfig tunes the attention scorer (C3).
type SHGATConfig struct {
	NumHeads       int     `yaml:"num_heads"`
	HiddenDim      int     `yaml:"hidden_dim"`
	LearningRate   float64 `yaml:"learning_rate"`
	EpochsPerBatch int     `yaml:"epochs_per_batch"`
	ContextBoost   float64 `yaml:"context_boost"` // default 0.3
	ClusterBoost   float64 `yaml:"cluster_boost"` // default 0.5
	BlendAlpha     float64 `yaml:"blend_alpha"`   // default 0.7, clamped [0.5, 1.0]
}

// DRDSPConfig tunes the hyperpath engine (C4).
type DRDSPConfig struct {
	CostFloor float64 `yaml:"cost_floor"`
}

// EdgeConfig tunes hypergraph edge weight/promotion rules (C1).
type EdgeConfig struct {
	ObservedThreshold int                `yaml:"observed_threshold"`
	SourceModifiers   map[string]float64 `yaml:"source_modifiers"`
	TypeWeights       map[string]float64 `yaml:"type_weights"`
}

// PERConfig tunes prioritized experience replay (C5).
type PERConfig struct {
	Alpha                  float64 `yaml:"alpha"`
	MinPriority            float64 `yaml:"min_priority"`
	MaxPriority            float64 `yaml:"max_priority"`
	ColdStartVarianceFloor float64 `yaml:"cold_start_variance_floor"`
}

// StatsConfig tunes the feature extractor cache (C2).
type StatsConfig struct {
	CacheTTL         time.Duration `yaml:"cache_ttl_ms"`
	MinSamples       int           `yaml:"min_samples"`
	RecencyHalfLifeH float64       `yaml:"recency_half_life_h"`
	MaxCacheEntries  int           `yaml:"max_cache_entries"`
}

// PredictConfig tunes the predictor (C7).
type PredictConfig struct {
	ThompsonThreshold float64 `yaml:"thompson_threshold"`
	MaxConfidence     float64 `yaml:"max_confidence"`
}

// Default returns CapiForge's documented defaults.
func Default() Config {
	return Config{
		EmbeddingDim: 1024,
		SHGAT: SHGATConfig{
			NumHeads:       4,
			HiddenDim:      32,
			LearningRate:   0.01,
			EpochsPerBatch: 10,
			ContextBoost:   0.3,
			ClusterBoost:   0.5,
			BlendAlpha:     0.7,
		},
		DRDSP: DRDSPConfig{CostFloor: 0.1},
		Edge: EdgeConfig{
			ObservedThreshold: 3,
			SourceModifiers:   map[string]float64{"template": 0.5, "inferred": 0.7, "observed": 1.0},
			TypeWeights: map[string]float64{
				"contains": 0.8, "sequence": 0.5, "dependency": 1.0,
				"provides": 0.7, "alternative": 0.6,
			},
		},
		PER: PERConfig{
			Alpha:                  0.6,
			MinPriority:            0.01,
			MaxPriority:            1.0,
			ColdStartVarianceFloor: 0.001,
		},
		Stats: StatsConfig{
			CacheTTL:         5 * time.Minute,
			MinSamples:       5,
			RecencyHalfLifeH: 24,
			MaxCacheEntries:  1000,
		},
		Predict: PredictConfig{
			ThompsonThreshold: 0.4,
			MaxConfidence:     0.9,
		},
		Embed: EmbedConfig{
			CacheSize: 10000,
		},
	}
}

// LoadFromEnv overlays CAPIFORGE_*-prefixed environment variables onto the
// defaults.
func LoadFromEnv() Config {
	c := Default()
	c.EmbeddingDim = getEnvInt("CAPIFORGE_EMBEDDING_DIM", c.EmbeddingDim)
	c.SHGAT.NumHeads = getEnvInt("CAPIFORGE_SHGAT_NUM_HEADS", c.SHGAT.NumHeads)
	c.SHGAT.HiddenDim = getEnvInt("CAPIFORGE_SHGAT_HIDDEN_DIM", c.SHGAT.HiddenDim)
	c.SHGAT.LearningRate = getEnvFloat("CAPIFORGE_SHGAT_LEARNING_RATE", c.SHGAT.LearningRate)
	c.SHGAT.EpochsPerBatch = getEnvInt("CAPIFORGE_SHGAT_EPOCHS_PER_BATCH", c.SHGAT.EpochsPerBatch)
	c.SHGAT.ContextBoost = getEnvFloat("CAPIFORGE_SHGAT_CONTEXT_BOOST", c.SHGAT.ContextBoost)
	c.SHGAT.ClusterBoost = getEnvFloat("CAPIFORGE_SHGAT_CLUSTER_BOOST", c.SHGAT.ClusterBoost)
	c.SHGAT.BlendAlpha = getEnvFloat("CAPIFORGE_SHGAT_BLEND_ALPHA", c.SHGAT.BlendAlpha)
	c.DRDSP.CostFloor = getEnvFloat("CAPIFORGE_DRDSP_COST_FLOOR", c.DRDSP.CostFloor)
	c.Edge.ObservedThreshold = getEnvInt("CAPIFORGE_EDGE_OBSERVED_THRESHOLD", c.Edge.ObservedThreshold)
	c.PER.Alpha = getEnvFloat("CAPIFORGE_PER_ALPHA", c.PER.Alpha)
	c.PER.MinPriority = getEnvFloat("CAPIFORGE_PER_MIN_PRIORITY", c.PER.MinPriority)
	c.PER.MaxPriority = getEnvFloat("CAPIFORGE_PER_MAX_PRIORITY", c.PER.MaxPriority)
	c.PER.ColdStartVarianceFloor = getEnvFloat("CAPIFORGE_PER_COLD_START_VARIANCE_FLOOR", c.PER.ColdStartVarianceFloor)
	c.Stats.CacheTTL = getEnvDuration("CAPIFORGE_STATS_CACHE_TTL", c.Stats.CacheTTL)
	c.Stats.MinSamples = getEnvInt("CAPIFORGE_STATS_MIN_SAMPLES", c.Stats.MinSamples)
	c.Stats.RecencyHalfLifeH = getEnvFloat("CAPIFORGE_STATS_RECENCY_HALF_LIFE_H", c.Stats.RecencyHalfLifeH)
	c.Stats.MaxCacheEntries = getEnvInt("CAPIFORGE_STATS_MAX_CACHE_ENTRIES", c.Stats.MaxCacheEntries)
	c.Predict.ThompsonThreshold = getEnvFloat("CAPIFORGE_PREDICT_THOMPSON_THRESHOLD", c.Predict.ThompsonThreshold)
	c.Predict.MaxConfidence = getEnvFloat("CAPIFORGE_PREDICT_MAX_CONFIDENCE", c.Predict.MaxConfidence)
	c.Embed.CacheSize = getEnvInt("CAPIFORGE_EMBED_CACHE_SIZE", c.Embed.CacheSize)
	return c
}

// LoadYAML loads a Config from a YAML file, with any field the file
// doesn't set left at the Default() value.
func LoadYAML(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}

// Validate checks internal consistency of the configuration.
func (c Config) Validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("config: embedding_dim must be positive")
	}
	if c.SHGAT.NumHeads < 1 {
		return fmt.Errorf("config: shgat.num_heads must be >= 1")
	}
	if c.SHGAT.HiddenDim < 1 {
		return fmt.Errorf("config: shgat.hidden_dim must be >= 1")
	}
	if c.DRDSP.CostFloor <= 0 {
		return fmt.Errorf("config: drdsp.cost_floor must be positive")
	}
	if c.PER.MinPriority <= 0 || c.PER.MaxPriority > 1 || c.PER.MinPriority > c.PER.MaxPriority {
		return fmt.Errorf("config: per.min_priority/max_priority out of range")
	}
	if c.Stats.MinSamples < 0 {
		return fmt.Errorf("config: stats.min_samples must be >= 0")
	}
	if c.Predict.MaxConfidence <= 0 || c.Predict.MaxConfidence > 1 {
		return fmt.Errorf("config: predict.max_confidence must be in (0, 1]")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
