// Package config implements environment-driven configuration (AMBIENT
// STACK, SPEC_FULL.md §1): every tunable parameter is read from the
// process environment with a default, then validated by Validate, mirroring
// the teacher's PipelineConfig.validate() convention (ai/rag/pipeline.go).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cast"

	"github.com/kejora-ai/orchestrator/pkg/dedup"
	"github.com/kejora-ai/orchestrator/pkg/gateway"
	"github.com/kejora-ai/orchestrator/pkg/memory"
)

// Config holds every environment-sourced tunable for the orchestrator
// process. It is built once at startup via Load and never mutated
// afterward.
type Config struct {
	// HTTPAddr is the address the chi router listens on.
	HTTPAddr string

	// Postgres, Redis, Qdrant connection strings.
	PostgresDSN string
	RedisAddr   string
	QdrantAddr  string

	// Gateway tunables (§4.L1).
	CostCapUSD       float64
	MaxFallbackDepth int
	PerCallTimeout   time.Duration
	Breaker          gateway.BreakerConfig

	// Reasoning Engine tunables (§4.M2). Per-intent step budgets themselves
	// are fixed in pkg/intent (spec.md's own table). EarlyExitEnabled is
	// loaded from the environment but no component reads it; pkg/reasoning
	// applies its early-exit rule regardless of this flag.
	EarlyExitEnabled bool
	ToolTimeout      time.Duration

	// Memory Store tunables (§4.L4).
	MemoryWriteLockTimeout time.Duration
	MemoryReadConcurrency  int64
	CollectiveEnabled      bool
	PromotionThreshold     int

	// Duplicate Filter tunables (§4.L5).
	DedupKeywordThreshold  float64
	DedupSemanticThreshold float64
	DedupWindowCapacity    int
	DedupPersistPath       string

	// PipelineTotalTimeout bounds one query end to end (§5).
	PipelineTotalTimeout time.Duration
}

// Load builds a Config from the process environment, filling every unset
// variable with its documented default.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:    getEnv("KEJORA_HTTP_ADDR", ":8080"),
		PostgresDSN: getEnv("KEJORA_POSTGRES_DSN", ""),
		RedisAddr:   getEnv("KEJORA_REDIS_ADDR", "localhost:6379"),
		QdrantAddr:  getEnv("KEJORA_QDRANT_ADDR", "localhost:6334"),

		CostCapUSD:       getEnvFloat("KEJORA_COST_CAP_USD", 0.10),
		MaxFallbackDepth: getEnvInt("KEJORA_MAX_FALLBACK_DEPTH", 3),
		PerCallTimeout:   getEnvDuration("KEJORA_PER_CALL_TIMEOUT", 30*time.Second),
		Breaker: gateway.BreakerConfig{
			FailureThreshold:         uint32(getEnvInt("KEJORA_BREAKER_FAILURE_THRESHOLD", 5)),
			CooldownWindow:           getEnvDuration("KEJORA_BREAKER_COOLDOWN", 30*time.Second),
			HalfOpenSuccessesToClose: uint32(getEnvInt("KEJORA_BREAKER_HALF_OPEN_SUCCESSES", 2)),
		},

		EarlyExitEnabled: getEnvBool("KEJORA_EARLY_EXIT_ENABLED", true),
		ToolTimeout:      getEnvDuration("KEJORA_TOOL_TIMEOUT", 10*time.Second),

		MemoryWriteLockTimeout: getEnvDuration("KEJORA_MEMORY_WRITE_LOCK_TIMEOUT", memory.DefaultWriteLockTimeout),
		MemoryReadConcurrency:  int64(getEnvInt("KEJORA_MEMORY_READ_CONCURRENCY", memory.DefaultReadConcurrency)),
		CollectiveEnabled:      getEnvBool("KEJORA_MEMORY_COLLECTIVE_ENABLED", true),
		PromotionThreshold:     getEnvInt("KEJORA_PROMOTION_THRESHOLD", 3),

		DedupKeywordThreshold:  getEnvFloat("KEJORA_DEDUP_KEYWORD_THRESHOLD", dedup.KeywordThreshold),
		DedupSemanticThreshold: getEnvFloat("KEJORA_DEDUP_SEMANTIC_THRESHOLD", dedup.SemanticThreshold),
		DedupWindowCapacity:    getEnvInt("KEJORA_DEDUP_WINDOW_CAPACITY", dedup.WindowCapacity),
		DedupPersistPath:       getEnv("KEJORA_DEDUP_PERSIST_PATH", ""),

		PipelineTotalTimeout: getEnvDuration("KEJORA_PIPELINE_TOTAL_TIMEOUT", 60*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate rejects combinations that would leave a component unable to
// start, matching the teacher's *Config.validate() convention of failing
// fast at construction rather than at first use.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR must not be empty")
	}
	if c.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required: the Memory Store and conversation persistence cannot start without it")
	}
	if c.CostCapUSD <= 0 {
		return errors.New("COST_CAP_USD must be positive")
	}
	if c.MaxFallbackDepth <= 0 {
		return errors.New("MAX_FALLBACK_DEPTH must be positive")
	}
	if c.PerCallTimeout <= 0 {
		return errors.New("PER_CALL_TIMEOUT must be positive")
	}
	if c.Breaker.FailureThreshold == 0 {
		return errors.New("BREAKER_FAILURE_THRESHOLD must be positive")
	}
	if c.MemoryReadConcurrency <= 0 {
		return errors.New("MEMORY_READ_CONCURRENCY must be positive")
	}
	if c.PromotionThreshold <= 0 {
		return errors.New("PROMOTION_THRESHOLD must be positive")
	}
	if c.DedupKeywordThreshold <= 0 || c.DedupKeywordThreshold >= 1 {
		return errors.New("DEDUP_KEYWORD_THRESHOLD must be in (0, 1)")
	}
	if c.DedupSemanticThreshold <= 0 || c.DedupSemanticThreshold >= 1 {
		return errors.New("DEDUP_SEMANTIC_THRESHOLD must be in (0, 1)")
	}
	if c.DedupWindowCapacity <= 0 {
		return errors.New("DEDUP_WINDOW_CAPACITY must be positive")
	}
	return nil
}

// GatewayConfig projects the subset of Config relevant to gateway.Config,
// leaving Chains for the caller to fill in once models are constructed
// (model instances are not environment-derivable).
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		CostCapUSD:       c.CostCapUSD,
		MaxFallbackDepth: c.MaxFallbackDepth,
		PerCallTimeout:   c.PerCallTimeout,
		Breaker:          c.Breaker,
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := cast.ToIntE(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := cast.ToFloat64E(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := cast.ToBoolE(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := cast.ToDurationE(v)
	if err != nil {
		return fallback
	}
	return parsed
}
