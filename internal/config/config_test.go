package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearAgentEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SEPOLIA_RPC_URL", "AGENT_PRIVATE_KEY", "WETH_ADDRESS", "USDC_ADDRESS",
		"ORACLE_ADDRESS", "AMM_POOL_ADDRESS", "LENDING_VAULT_ADDRESS",
		"GEMINI_API_KEY", "CHAIN_ID", "POLL_INTERVAL", "PRICE_DEVIATION_THRESHOLD",
		"PAUSE_CONFIDENCE_THRESHOLD", "BLOCK_LIQUIDATION_THRESHOLD",
		"PROACTIVE_PAUSE_DEVIATION", "RAPID_RESPONSE_MODE", "PRICE_HISTORY_WINDOW",
		"BACKEND_URL", "LOG_LEVEL", "REDIS_URL", "GEMINI_MODEL",
	} {
		require.NoError(t, os.Unsetenv(k))
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SEPOLIA_RPC_URL", "https://sepolia.example/rpc")
	t.Setenv("AGENT_PRIVATE_KEY", "deadbeef")
	t.Setenv("WETH_ADDRESS", "0x1")
	t.Setenv("USDC_ADDRESS", "0x2")
	t.Setenv("ORACLE_ADDRESS", "0x3")
	t.Setenv("AMM_POOL_ADDRESS", "0x4")
	t.Setenv("LENDING_VAULT_ADDRESS", "0x5")
	t.Setenv("GEMINI_API_KEY", "key")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	clearAgentEnv(t)
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(11155111), cfg.ChainID)
	assert.Equal(t, "gemini-1.5-pro", cfg.GeminiModel)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 0.65, cfg.PauseConfidenceThreshold)
	assert.Equal(t, 0.30, cfg.ProactivePauseDeviation)
	assert.Equal(t, 20, cfg.PriceHistoryWindow)
	assert.Equal(t, "", cfg.RedisURL)
}

func TestLoad_MissingRequiredIsConfigError(t *testing.T) {
	clearAgentEnv(t)

	_, err := Load()
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoad_CaseInsensitiveOverride(t *testing.T) {
	clearAgentEnv(t)
	setRequired(t)
	t.Setenv("poll_interval", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.PollInterval)
}
