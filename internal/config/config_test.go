package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kejora-ai/orchestrator/pkg/gateway"
)

func TestLoad_DefaultsToValidConfigWhenPostgresDSNSet(t *testing.T) {
	t.Setenv("KEJORA_POSTGRES_DSN", "postgres://localhost/kejora")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 0.10, cfg.CostCapUSD)
	assert.Equal(t, 3, cfg.MaxFallbackDepth)
	assert.Equal(t, 3, cfg.PromotionThreshold)
}

func TestLoad_FailsWithoutPostgresDSN(t *testing.T) {
	t.Setenv("KEJORA_POSTGRES_DSN", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_HonorsEnvironmentOverrides(t *testing.T) {
	t.Setenv("KEJORA_POSTGRES_DSN", "postgres://localhost/kejora")
	t.Setenv("KEJORA_COST_CAP_USD", "0.50")
	t.Setenv("KEJORA_MAX_FALLBACK_DEPTH", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.50, cfg.CostCapUSD)
	assert.Equal(t, 5, cfg.MaxFallbackDepth)
}

func TestValidate_RejectsInvalidDedupThresholds(t *testing.T) {
	cfg := &Config{
		HTTPAddr:               ":8080",
		PostgresDSN:            "postgres://localhost/kejora",
		CostCapUSD:             0.1,
		MaxFallbackDepth:       3,
		PerCallTimeout:         1,
		MemoryReadConcurrency:  10,
		PromotionThreshold:     3,
		DedupKeywordThreshold:  1.5,
		DedupSemanticThreshold: 0.88,
		DedupWindowCapacity:    500,
		Breaker:                gateway.DefaultBreakerConfig(),
	}
	err := cfg.Validate()
	require.Error(t, err)
}
