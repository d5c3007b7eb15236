// Package decider implements the Policy Decision Engine (§4.4): a pure,
// total function from a ThreatAssessment to a PolicyDecision, mirroring
// original_source/agent/decider.py's ordered, first-match-wins rule table.
package decider

import "github.com/chainsentinel/sentinel/internal/model"

const monitorFloor = 0.50

// Decider holds the two operator-tunable thresholds; everything else in
// its rule table is fixed.
type Decider struct {
	pauseThreshold float64
	blockThreshold float64
}

func New(pauseThreshold, blockThreshold float64) *Decider {
	return &Decider{pauseThreshold: pauseThreshold, blockThreshold: blockThreshold}
}

// Decide applies the ordered rule table from §4.4. Rules are evaluated top
// to bottom; the first match wins.
func (d *Decider) Decide(a *model.ThreatAssessment) model.PolicyDecision {
	base := model.PolicyDecision{
		Confidence:           a.Confidence,
		ThreatClassification: a.Classification,
		Evidence:             a.Evidence,
	}

	switch {
	// Rule 1: FLASH_LOAN_ATTACK at pause confidence.
	case a.Classification == model.ThreatFlashLoanAttack && a.Confidence >= d.pauseThreshold:
		base.Action = model.ActionPauseProtocol
		base.Reason = "flash loan attack with high confidence"
		base.ExecuteOnChain = true

	// Rule 2: ORACLE_MANIPULATION at block confidence.
	case a.Classification == model.ThreatOracleManipulation && a.Confidence >= d.blockThreshold:
		base.Action = model.ActionBlockLiquidations
		base.Reason = "oracle manipulation, blocking liquidations as precaution"
		base.ExecuteOnChain = true

	// Rule 3: FLASH_LOAN_ATTACK at block confidence (below pause threshold).
	case a.Classification == model.ThreatFlashLoanAttack && a.Confidence >= d.blockThreshold:
		base.Action = model.ActionBlockLiquidations
		base.Reason = "suspicious flash loan activity, blocking liquidations as precaution"
		base.ExecuteOnChain = true

	// Rule 4: any non-natural classification at the fixed monitor floor.
	case a.Classification != model.ThreatNatural && a.Confidence >= monitorFloor:
		base.Action = model.ActionMonitor
		base.Reason = "elevated risk signal, monitoring"
		base.ExecuteOnChain = false

	// Rule 5: remaining ORACLE_MANIPULATION, any confidence.
	case a.Classification == model.ThreatOracleManipulation:
		base.Action = model.ActionFlagOracle
		base.Reason = "possible oracle manipulation, flagging for review"
		base.ExecuteOnChain = false

	// Rule 6: otherwise.
	default:
		base.Action = model.ActionNone
		base.Reason = "no threat detected"
		base.ExecuteOnChain = false
	}

	return base
}

// OverrideForState enforces §4.4's idempotence law: PAUSE_PROTOCOL demotes
// to MONITOR if the vault is already paused, and BLOCK_LIQUIDATIONS demotes
// to MONITOR if liquidations are already blocked, so an irreversible action
// is never resubmitted once it has already taken effect.
func (d *Decider) OverrideForState(decision model.PolicyDecision, vaultPaused, liquidationsBlocked bool) model.PolicyDecision {
	switch decision.Action {
	case model.ActionPauseProtocol:
		if vaultPaused {
			decision.Action = model.ActionMonitor
			decision.ExecuteOnChain = false
			decision.Reason += " (already paused)"
		}
	case model.ActionBlockLiquidations:
		if liquidationsBlocked {
			decision.Action = model.ActionMonitor
			decision.ExecuteOnChain = false
			decision.Reason += " (liquidations already blocked)"
		}
	}
	return decision
}
