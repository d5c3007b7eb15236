// Package actor implements the Actor component (§4.5): it turns a
// PolicyDecision into a signed, submitted transaction, mirroring
// original_source/agent/actor.py's pause/block/flag operations.
package actor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainsentinel/sentinel/internal/model"
)

const maxReasonLen = 200

// Gateway is the narrow chaingateway surface the Actor needs.
type Gateway interface {
	PauseProtocol(ctx context.Context, reason string) (string, error)
	BlockLiquidations(ctx context.Context) (string, error)
	FlagOracle(ctx context.Context, reason string) (string, error)
	PauseAMM(ctx context.Context) (string, error)
	UnpauseAMM(ctx context.Context) (string, error)
}

type Actor struct {
	gw  Gateway
	log *zap.SugaredLogger
}

func New(gw Gateway, log *zap.SugaredLogger) *Actor {
	return &Actor{gw: gw, log: log}
}

// Execute dispatches by decision.Action, submitting a transaction only when
// decision.ExecuteOnChain is true. It returns the empty string with no
// error when the decision called for no on-chain effect.
func (a *Actor) Execute(ctx context.Context, decision model.PolicyDecision) (string, error) {
	if !decision.ExecuteOnChain {
		return "", nil
	}

	switch decision.Action {
	case model.ActionPauseProtocol:
		return a.PauseProtocol(ctx, decision.Reason)
	case model.ActionBlockLiquidations:
		return a.BlockLiquidations(ctx)
	case model.ActionFlagOracle:
		return a.FlagOracle(ctx, decision.Reason)
	default:
		return "", fmt.Errorf("actor: action %s has no on-chain operation", decision.Action)
	}
}

func (a *Actor) PauseProtocol(ctx context.Context, reason string) (string, error) {
	txHash, err := a.gw.PauseProtocol(ctx, truncate(reason))
	if err != nil {
		return "", fmt.Errorf("actor: pause protocol: %w", err)
	}
	a.log.Warnw("protocol paused", "reason", reason, "tx_hash", txHash)
	return txHash, nil
}

func (a *Actor) BlockLiquidations(ctx context.Context) (string, error) {
	txHash, err := a.gw.BlockLiquidations(ctx)
	if err != nil {
		return "", fmt.Errorf("actor: block liquidations: %w", err)
	}
	a.log.Warnw("liquidations blocked", "tx_hash", txHash)
	return txHash, nil
}

func (a *Actor) FlagOracle(ctx context.Context, reason string) (string, error) {
	txHash, err := a.gw.FlagOracle(ctx, truncate(reason))
	if err != nil {
		return "", fmt.Errorf("actor: flag oracle: %w", err)
	}
	a.log.Warnw("oracle flagged", "reason", reason, "tx_hash", txHash)
	return txHash, nil
}

// PauseAMM and UnpauseAMM are invoked outside the normal Decide/Execute
// flow: PauseAMM by the proactive fast path (§4.7), UnpauseAMM only by the
// operator CLI (§9 Resolved: never auto-invoked).
func (a *Actor) PauseAMM(ctx context.Context) (string, error) {
	txHash, err := a.gw.PauseAMM(ctx)
	if err != nil {
		return "", fmt.Errorf("actor: pause amm: %w", err)
	}
	a.log.Warnw("amm paused", "tx_hash", txHash)
	return txHash, nil
}

func (a *Actor) UnpauseAMM(ctx context.Context) (string, error) {
	txHash, err := a.gw.UnpauseAMM(ctx)
	if err != nil {
		return "", fmt.Errorf("actor: unpause amm: %w", err)
	}
	a.log.Infow("amm unpaused", "tx_hash", txHash)
	return txHash, nil
}

func truncate(reason string) string {
	if len(reason) > maxReasonLen {
		return reason[:maxReasonLen]
	}
	return reason
}
