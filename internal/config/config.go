// Package config loads the agent's typed Config from the process
// environment. It follows the teacher's habit of a single typed struct
// built by a loader function, adapted from a YAML file source to
// environment variables because §6 of the specification mandates
// environment-variable, case-insensitive configuration.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ConfigError reports a missing or malformed required configuration option.
// It is fatal at startup per §7.
type ConfigError struct {
	Field string
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config: %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("config: missing required field %s", e.Field)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// Config is the complete set of options enumerated in §6. Field names
// mirror the environment variable names in upper-snake-case.
type Config struct {
	SepoliaRPCURL      string
	ChainID            int64
	AgentPrivateKeyHex string

	WETHAddress         string
	USDCAddress         string
	OracleAddress       string
	AMMPoolAddress      string
	LendingVaultAddress string

	GeminiAPIKey string
	GeminiModel  string

	PollInterval              time.Duration
	PriceDeviationThreshold   float64
	PauseConfidenceThreshold  float64
	BlockLiquidationThreshold float64
	ProactivePauseDeviation   float64
	RapidResponseMode         bool
	PriceHistoryWindow        int

	BackendURL string
	LogLevel   string

	// RedisURL is an ambient-stack addition (§2B/§6): when set, the
	// Reasoner's deduplication caches are backed by Redis instead of an
	// in-process map. Empty by default.
	RedisURL string
}

// Load reads configuration from the process environment, case-insensitively,
// after optionally layering a .env file the way the original implementation
// loads one from the agent directory and falls back to its parent.
func Load() (*Config, error) {
	loadDotEnvLayered()

	cfg := &Config{
		ChainID:                   11155111,
		GeminiModel:               "gemini-1.5-pro",
		PollInterval:              3 * time.Second,
		PriceDeviationThreshold:   0.03,
		PauseConfidenceThreshold:  0.65,
		BlockLiquidationThreshold: 0.50,
		ProactivePauseDeviation:   0.30,
		RapidResponseMode:         true,
		PriceHistoryWindow:        20,
		BackendURL:                "http://localhost:8080",
		LogLevel:                  "INFO",
	}

	var err error
	if cfg.SepoliaRPCURL, err = requireEnv("SEPOLIA_RPC_URL"); err != nil {
		return nil, err
	}
	if cfg.AgentPrivateKeyHex, err = requireEnv("AGENT_PRIVATE_KEY"); err != nil {
		return nil, err
	}
	if cfg.WETHAddress, err = requireEnv("WETH_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.USDCAddress, err = requireEnv("USDC_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.OracleAddress, err = requireEnv("ORACLE_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.AMMPoolAddress, err = requireEnv("AMM_POOL_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.LendingVaultAddress, err = requireEnv("LENDING_VAULT_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.GeminiAPIKey, err = requireEnv("GEMINI_API_KEY"); err != nil {
		return nil, err
	}

	if v, ok := lookupEnv("CHAIN_ID"); ok {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return nil, &ConfigError{Field: "CHAIN_ID", Cause: perr}
		}
		cfg.ChainID = n
	}
	if v, ok := lookupEnv("GEMINI_MODEL"); ok {
		cfg.GeminiModel = v
	}
	if v, ok := lookupEnv("POLL_INTERVAL"); ok {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			return nil, &ConfigError{Field: "POLL_INTERVAL", Cause: perr}
		}
		cfg.PollInterval = time.Duration(n) * time.Second
	}
	if v, ok := lookupEnv("PRICE_DEVIATION_THRESHOLD"); ok {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return nil, &ConfigError{Field: "PRICE_DEVIATION_THRESHOLD", Cause: perr}
		}
		cfg.PriceDeviationThreshold = f
	}
	if v, ok := lookupEnv("PAUSE_CONFIDENCE_THRESHOLD"); ok {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return nil, &ConfigError{Field: "PAUSE_CONFIDENCE_THRESHOLD", Cause: perr}
		}
		cfg.PauseConfidenceThreshold = f
	}
	if v, ok := lookupEnv("BLOCK_LIQUIDATION_THRESHOLD"); ok {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return nil, &ConfigError{Field: "BLOCK_LIQUIDATION_THRESHOLD", Cause: perr}
		}
		cfg.BlockLiquidationThreshold = f
	}
	if v, ok := lookupEnv("PROACTIVE_PAUSE_DEVIATION"); ok {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return nil, &ConfigError{Field: "PROACTIVE_PAUSE_DEVIATION", Cause: perr}
		}
		cfg.ProactivePauseDeviation = f
	}
	if v, ok := lookupEnv("RAPID_RESPONSE_MODE"); ok {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return nil, &ConfigError{Field: "RAPID_RESPONSE_MODE", Cause: perr}
		}
		cfg.RapidResponseMode = b
	}
	if v, ok := lookupEnv("PRICE_HISTORY_WINDOW"); ok {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			return nil, &ConfigError{Field: "PRICE_HISTORY_WINDOW", Cause: perr}
		}
		cfg.PriceHistoryWindow = n
	}
	if v, ok := lookupEnv("BACKEND_URL"); ok {
		cfg.BackendURL = v
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookupEnv("REDIS_URL"); ok {
		cfg.RedisURL = v
	}

	return cfg, nil
}

// loadDotEnvLayered mirrors the original's layered .env loading: try the
// working directory first, then its parent, both optional.
func loadDotEnvLayered() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
}

// lookupEnv performs a case-insensitive lookup by scanning os.Environ once.
// The enumerated option set is small and read once at startup, so the O(n)
// scan is not a concern.
func lookupEnv(name string) (string, bool) {
	upper := strings.ToUpper(name)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.ToUpper(parts[0]) == upper {
			return parts[1], true
		}
	}
	return "", false
}

func requireEnv(name string) (string, error) {
	v, ok := lookupEnv(name)
	if !ok || v == "" {
		return "", &ConfigError{Field: name}
	}
	return v, nil
}

// PriorityFeeWei is the EIP-1559 priority fee from §4.1 (1.5 gwei). The
// max-fee formula (2*baseFee + maxPriorityFee) is computed by
// chaingateway.EIP1559FeeParams, which does not read this variable.
var PriorityFeeWei = new(big.Int).SetUint64(1_500_000_000) // 1.5 gwei
