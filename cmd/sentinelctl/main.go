// Command sentinelctl is the operator CLI for actions the agent never
// takes on its own (§9 Resolved: unpause-amm is a human decision, never
// auto-invoked after a proactive or policy pause).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/chainsentinel/sentinel/internal/actor"
	"github.com/chainsentinel/sentinel/internal/chaingateway"
	"github.com/chainsentinel/sentinel/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: sentinelctl <unpause-amm>")
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, "sentinelctl:", err)
		os.Exit(1)
	}
}

func run(command string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := chaingateway.New(ctx, cfg.SepoliaRPCURL, cfg.ChainID, cfg.AgentPrivateKeyHex,
		cfg.OracleAddress, cfg.AMMPoolAddress, cfg.LendingVaultAddress, sugar)
	if err != nil {
		return fmt.Errorf("connect to chain: %w", err)
	}

	act := actor.New(gw, sugar)

	switch command {
	case "unpause-amm":
		txHash, err := act.UnpauseAMM(ctx)
		if err != nil {
			return err
		}
		fmt.Println("amm unpaused, tx:", txHash)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
