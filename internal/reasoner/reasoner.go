// Package reasoner implements the Reasoner component (§4.3): the
// deterministic anomaly gate plus the LLM-backed threat classifier,
// mirroring original_source/agent/reasoner.py.
package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chainsentinel/sentinel/internal/cache"
	"github.com/chainsentinel/sentinel/internal/model"
	"github.com/chainsentinel/sentinel/internal/reasoner/llm"
)

const systemPrompt = `You are a security analyst monitoring a DeFi protocol for signs of
active exploitation. You are given the current market state and recent
history. Classify the situation as one of NATURAL, ORACLE_MANIPULATION, or
FLASH_LOAN_ATTACK. Respond with a single JSON object with the fields
classification, confidence (0 to 1), explanation, and evidence (a list of
short strings). Do not include any text outside the JSON object.`

// LLMClient is the narrow surface the Reasoner needs from llm.Client, kept
// as an interface so tests can substitute a fake.
type LLMClient interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Reasoner struct {
	llmClient LLMClient
	dedup     cache.Dedup
	gate      *quickCheck
	log       *zap.SugaredLogger
}

func New(llmClient *llm.Client, dedup cache.Dedup, log *zap.SugaredLogger) *Reasoner {
	return NewWithClient(llmClient, dedup, log)
}

// NewWithClient accepts any LLMClient implementation, letting tests
// substitute a fake in place of the real llm.Client.
func NewWithClient(llmClient LLMClient, dedup cache.Dedup, log *zap.SugaredLogger) *Reasoner {
	return &Reasoner{llmClient: llmClient, dedup: dedup, gate: newQuickCheck(dedup, log), log: log}
}

// QuickCheck runs the deterministic gate (§4.3). When it returns false, the
// caller should skip Analyze entirely for this tick.
func (r *Reasoner) QuickCheck(ctx context.Context, ac model.AnalysisContext) bool {
	return r.gate.evaluate(ctx, ac)
}

// Analyze checks the block-number and content-hash dedup caches first
// (reasoner.py's analyze()); on a cache hit it returns a NATURAL assessment
// synthesized without an LLM call. On a miss it calls the LLM and parses
// its response.
func (r *Reasoner) Analyze(ctx context.Context, ac model.AnalysisContext) (*model.ThreatAssessment, error) {
	if r.dedup.SeenBlock(ctx, ac.BlockNumber) {
		return naturalAssessment("block already analyzed"), nil
	}

	signature := contentSignature(ac)
	if r.dedup.SeenSignature(ctx, signature) {
		return naturalAssessment("state signature already analyzed"), nil
	}

	userPrompt := buildUserPrompt(ac)
	raw, err := r.llmClient.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		r.log.Warnw("llm call failed, defaulting to natural", "error", err, "block", ac.BlockNumber)
		return naturalAssessment("llm call failed"), nil
	}

	return parseResponse(raw), nil
}

func naturalAssessment(reason string) *model.ThreatAssessment {
	return &model.ThreatAssessment{
		Classification: model.ThreatNatural,
		Confidence:     0.0,
		Explanation:    reason,
		Evidence:       nil,
	}
}

// contentSignature computes the dedup key for Analyze's second cache tier:
// a SHA-256-based digest of the full AnalysisContext (§4.3), not a handful of
// scalar fields, so two contexts that differ anywhere (reserves, anomaly
// indicators, price history, TWAP...) never collide. It round-trips the
// struct through a map so encoding/json emits object keys in sorted order,
// mirroring reasoner.py's hashlib.sha256(json.dumps(context, sort_keys=True)).
func contentSignature(ac model.AnalysisContext) string {
	raw, err := json.Marshal(ac)
	if err != nil {
		return cache.ContentHash(ac.OraclePriceUSD, ac.AMMSpotPriceUSD, ac.RecentLiquidationsCount, ac.AMMSwapsThisBlock)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return cache.ContentHash(string(raw))
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return cache.ContentHash(string(raw))
	}
	return cache.ContentHash(string(canonical))
}

// buildUserPrompt serializes the full AnalysisContext the LLM needs to judge
// pool health and exploitation signals (§4.3): price/deviation state, the
// anomaly indicators, reserve and collateral balances, and the recent
// price/swap/liquidation history, not just the current-block scalars.
func buildUserPrompt(ac model.AnalysisContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "block_number: %d\n", ac.BlockNumber)
	fmt.Fprintf(&sb, "timestamp: %s\n", ac.TimestampRFC3339)
	fmt.Fprintf(&sb, "oracle_price_usd: %.2f\n", ac.OraclePriceUSD)
	fmt.Fprintf(&sb, "amm_spot_price_usd: %.2f\n", ac.AMMSpotPriceUSD)
	fmt.Fprintf(&sb, "oracle_twap_usd: %.2f\n", ac.OracleTWAPUSD)
	fmt.Fprintf(&sb, "price_deviation_pct: %.2f\n", ac.PriceDeviationPct)
	fmt.Fprintf(&sb, "oracle_updates_this_block: %d\n", ac.OracleUpdatesThisBlock)
	fmt.Fprintf(&sb, "amm_swaps_this_block: %d\n", ac.AMMSwapsThisBlock)
	fmt.Fprintf(&sb, "recent_liquidations_count: %d\n", ac.RecentLiquidationsCount)
	fmt.Fprintf(&sb, "recent_large_swaps_count: %d\n", ac.RecentLargeSwapsCount)
	fmt.Fprintf(&sb, "base_reserve: %.4f\n", ac.BaseReserve)
	fmt.Fprintf(&sb, "quote_reserve: %.4f\n", ac.QuoteReserve)
	fmt.Fprintf(&sb, "vault_collateral_base: %.4f\n", ac.VaultCollateralBase)
	fmt.Fprintf(&sb, "vault_loans_quote: %.4f\n", ac.VaultLoansQuote)
	fmt.Fprintf(&sb, "vault_paused: %t\n", ac.VaultPaused)
	fmt.Fprintf(&sb, "liquidations_blocked: %t\n", ac.LiquidationsBlocked)

	fmt.Fprintf(&sb, "anomaly_price_deviation_above_threshold: %t\n", ac.Anomalies.PriceDeviationAboveThreshold)
	fmt.Fprintf(&sb, "anomaly_multiple_oracle_updates_same_block: %t\n", ac.Anomalies.MultipleOracleUpdatesSameBlock)
	fmt.Fprintf(&sb, "anomaly_multiple_swaps_same_block: %t\n", ac.Anomalies.MultipleSwapsSameBlock)
	fmt.Fprintf(&sb, "anomaly_same_block_price_recovery_pattern: %t\n", ac.Anomalies.SameBlockPriceRecoveryPattern)
	fmt.Fprintf(&sb, "anomaly_liquidation_after_price_drop: %t\n", ac.Anomalies.LiquidationAfterPriceDrop)

	sb.WriteString("recent_price_changes:\n")
	for _, c := range ac.RecentPriceChanges {
		fmt.Fprintf(&sb, "  block %d->%d: %.2f%%\n", c.FromBlock, c.ToBlock, c.ChangePct)
	}

	sb.WriteString("recent_large_swaps:\n")
	for _, s := range ac.RecentLargeSwaps {
		fmt.Fprintf(&sb, "  block %d sender=%s amount_in=%s base_to_quote=%t\n", s.BlockNumber, s.Sender, s.AmountIn.String(), s.IsBaseToQuote)
	}

	sb.WriteString("recent_liquidations:\n")
	for _, l := range ac.RecentLiquidations {
		fmt.Fprintf(&sb, "  block %d user=%s debt_repaid=%s collateral_seized=%s\n", l.BlockNumber, l.User, l.DebtRepaid.String(), l.CollateralSeized.String())
	}

	return sb.String()
}

type llmResponseJSON struct {
	Classification string      `json:"classification"`
	Confidence     float64     `json:"confidence"`
	Explanation    string      `json:"explanation"`
	Evidence       interface{} `json:"evidence"`
}

// parseResponse implements reasoner.py's _parse_response(): strip markdown
// code fences, unmarshal, validate the classification against the closed
// set, clamp confidence, and coerce evidence into a string list regardless
// of its JSON shape. A response that does not unmarshal, or that names an
// unrecognized classification, produces a safe NATURAL assessment with
// confidence 0.0 rather than propagating an error.
func parseResponse(raw string) *model.ThreatAssessment {
	cleaned := stripMarkdownFence(raw)

	var parsed llmResponseJSON
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return &model.ThreatAssessment{
			Classification: model.ThreatNatural,
			Confidence:     0.0,
			Explanation:    "Failed to parse LLM response",
			Evidence:       []string{"Parse error: " + err.Error()},
			RawResponse:    raw,
		}
	}

	classification, err := model.ParseThreatClassification(parsed.Classification)
	if err != nil {
		return &model.ThreatAssessment{
			Classification: model.ThreatNatural,
			Confidence:     0.0,
			Explanation:    "Unrecognized classification in LLM response",
			Evidence:       []string{"Parse error: " + err.Error()},
			RawResponse:    raw,
		}
	}

	return &model.ThreatAssessment{
		Classification: classification,
		Confidence:     model.ClampConfidence(parsed.Confidence),
		Explanation:    parsed.Explanation,
		Evidence:       coerceEvidence(parsed.Evidence),
		RawResponse:    raw,
	}
}

func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// coerceEvidence matches reasoner.py's tolerance for the LLM returning a
// single string instead of a list: either shape becomes []string.
func coerceEvidence(v interface{}) []string {
	switch val := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}
