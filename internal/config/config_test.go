package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, 40.0, cfg.BlockBelow)
	assert.Equal(t, 80.0, cfg.AllowAtOrAbove)
	assert.Equal(t, time.Duration(0), cfg.FlagTTL)
	assert.NoError(t, cfg.Weights.Validate())
}

func TestLoadWeightOverrides(t *testing.T) {
	t.Setenv("WEIGHT_DEVICE_HEALTH", "0.25")
	t.Setenv("WEIGHT_FINANCIAL_TRUST", "0.20")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Weights.DeviceHealth)
	assert.Equal(t, 0.20, cfg.Weights.FinancialTrust)
}

func TestLoadRejectsBrokenWeights(t *testing.T) {
	t.Setenv("WEIGHT_FINANCIAL_TRUST", "0.90") // sum now well over 1.0

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights")
}

func TestLoadRejectsMisorderedActionThresholds(t *testing.T) {
	t.Setenv("ACTION_BLOCK_BELOW", "90")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACTION_BLOCK_BELOW")
}

func TestLoadFlagTTL(t *testing.T) {
	t.Setenv("FLAG_TTL", "720h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 720*time.Hour, cfg.FlagTTL)
	assert.Equal(t, 720*time.Hour, cfg.TrustConfig().FlagTTL)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("RATE_LIMIT_RPS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	// Unparseable values fall back to the default.
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPS)
}
