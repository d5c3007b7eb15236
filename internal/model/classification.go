// Package model holds the value types shared by every pipeline stage:
// snapshots, assessments, decisions and the security events derived from
// them. Nothing in this package performs I/O.
package model

import "fmt"

// ThreatClassification is a closed tagged union. The zero value is not a
// valid classification; always construct through ParseThreatClassification
// or one of the exported constants.
type ThreatClassification string

const (
	ThreatNatural            ThreatClassification = "NATURAL"
	ThreatOracleManipulation ThreatClassification = "ORACLE_MANIPULATION"
	ThreatFlashLoanAttack    ThreatClassification = "FLASH_LOAN_ATTACK"
)

// ParseThreatClassification validates an untyped string (e.g. from an LLM
// JSON response) against the closed set of classifications.
func ParseThreatClassification(s string) (ThreatClassification, error) {
	switch ThreatClassification(s) {
	case ThreatNatural, ThreatOracleManipulation, ThreatFlashLoanAttack:
		return ThreatClassification(s), nil
	default:
		return "", fmt.Errorf("model: invalid threat classification %q", s)
	}
}

func (t ThreatClassification) Valid() bool {
	switch t {
	case ThreatNatural, ThreatOracleManipulation, ThreatFlashLoanAttack:
		return true
	default:
		return false
	}
}

// ActionType is a closed tagged union of protective actions the Decider may
// choose. PAUSE_AMM and PROACTIVE_PAUSE_AMM are not members here: they are
// action *labels* the proactive fast path attaches to its own SecurityEvent
// records, but they route through the same Actor.PauseAMM operation rather
// than through a PolicyDecision.
type ActionType string

const (
	ActionNone              ActionType = "NONE"
	ActionMonitor           ActionType = "MONITOR"
	ActionBlockLiquidations ActionType = "BLOCK_LIQUIDATIONS"
	ActionPauseProtocol     ActionType = "PAUSE_PROTOCOL"
	ActionFlagOracle        ActionType = "FLAG_ORACLE"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionNone, ActionMonitor, ActionBlockLiquidations, ActionPauseProtocol, ActionFlagOracle:
		return true
	default:
		return false
	}
}

// EventType is the closed set of SecurityEvent variants.
type EventType string

const (
	EventObservation      EventType = "OBSERVATION"
	EventAssessment       EventType = "ASSESSMENT"
	EventDecision         EventType = "DECISION"
	EventAction           EventType = "ACTION"
	EventAMMPaused        EventType = "AMM_PAUSED"
	EventProactiveDefense EventType = "PROACTIVE_DEFENSE"
)
