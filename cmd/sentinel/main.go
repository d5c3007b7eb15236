// Command sentinel runs the ChainSentinel autonomous defense agent:
// config.Load -> chaingateway.New -> Observer/Reasoner/Decider/Actor/Reporter
// -> agent.New(...).Run(ctx), wired the way the teacher's cmd/main.go wires
// its Blackhole bot, adapted to this agent's components.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/chainsentinel/sentinel/internal/actor"
	"github.com/chainsentinel/sentinel/internal/agent"
	"github.com/chainsentinel/sentinel/internal/cache"
	"github.com/chainsentinel/sentinel/internal/chaingateway"
	"github.com/chainsentinel/sentinel/internal/config"
	"github.com/chainsentinel/sentinel/internal/decider"
	"github.com/chainsentinel/sentinel/internal/metrics"
	"github.com/chainsentinel/sentinel/internal/observer"
	"github.com/chainsentinel/sentinel/internal/reasoner"
	"github.com/chainsentinel/sentinel/internal/reasoner/llm"
	"github.com/chainsentinel/sentinel/internal/reporter"
)

const (
	exitOK = iota
	exitConfigError
	exitChainUnreachable
	exitLoggerError
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, err := zap.NewProduction()
	if err != nil {
		return exitLoggerError
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Errorw("configuration error", "error", err)
		return exitConfigError
	}
	sugar = applyLogLevel(cfg.LogLevel, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := chaingateway.New(ctx, cfg.SepoliaRPCURL, cfg.ChainID, cfg.AgentPrivateKeyHex,
		cfg.OracleAddress, cfg.AMMPoolAddress, cfg.LendingVaultAddress, sugar)
	if err != nil {
		sugar.Errorw("failed to connect to chain", "error", err)
		return exitChainUnreachable
	}

	var dedup cache.Dedup
	if cfg.RedisURL != "" {
		dedup, err = cache.NewRedis(cfg.RedisURL)
		if err != nil {
			sugar.Warnw("failed to connect to redis, falling back to in-memory dedup", "error", err)
			dedup = cache.NewMemory()
		}
	} else {
		dedup = cache.NewMemory()
	}

	obs := observer.New(gw, cfg)
	llmClient := llm.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	rsn := reasoner.New(llmClient, dedup, sugar)
	dec := decider.New(cfg.PauseConfidenceThreshold, cfg.BlockLiquidationThreshold)
	act := actor.New(gw, sugar)
	rep := reporter.New(cfg.BackendURL, sugar)
	met := metrics.New()

	a := agent.New(cfg, gw, obs, rsn, dec, act, rep, met, sugar)

	sugar.Infow("chainsentinel agent starting", "poll_interval", cfg.PollInterval, "chain_id", cfg.ChainID)
	if err := a.Run(ctx); err != nil {
		sugar.Errorw("agent exited with error", "error", err)
		return exitChainUnreachable
	}
	return exitOK
}

func applyLogLevel(level string, sugar *zap.SugaredLogger) *zap.SugaredLogger {
	var zapLevel zap.AtomicLevel
	switch level {
	case "DEBUG":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "WARN":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "ERROR":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	logger, err := cfg.Build()
	if err != nil {
		return sugar
	}
	return logger.Sugar()
}
