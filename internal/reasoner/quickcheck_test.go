package reasoner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsentinel/sentinel/internal/cache"
	"github.com/chainsentinel/sentinel/internal/model"
)

func newTestGate(t *testing.T) *quickCheck {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return newQuickCheck(cache.NewMemory(), logger.Sugar())
}

func TestQuickCheck_ExtremeDeviationTriggersAnalysis(t *testing.T) {
	gate := newTestGate(t)
	ac := model.AnalysisContext{PriceDeviationPct: 60.0}
	assert.True(t, gate.evaluate(context.Background(), ac))
}

func TestQuickCheck_RecoveryPatternTriggersAnalysis(t *testing.T) {
	gate := newTestGate(t)
	ac := model.AnalysisContext{
		AMMSwapsThisBlock: 1,
		Anomalies:         model.AnomalyIndicators{SameBlockPriceRecoveryPattern: true},
	}
	assert.True(t, gate.evaluate(context.Background(), ac))
}

func TestQuickCheck_LargePriceSwingTriggersAnalysis(t *testing.T) {
	gate := newTestGate(t)
	ac := model.AnalysisContext{
		AMMSwapsThisBlock:  1,
		RecentPriceChanges: []model.PriceChange{{FromBlock: 1, ToBlock: 2, ChangePct: 12.0}},
	}
	assert.True(t, gate.evaluate(context.Background(), ac))
}

func TestQuickCheck_StaticMarketSuppressedAfterTenTicks(t *testing.T) {
	gate := newTestGate(t)
	ac := model.AnalysisContext{OraclePriceUSD: 1800, AMMSpotPriceUSD: 1800.0}

	var results []bool
	for i := 0; i < 12; i++ {
		results = append(results, gate.evaluate(context.Background(), ac))
	}

	// Once the ring fills with an identical signature, further ticks with
	// no anomalies are suppressed.
	assert.False(t, results[len(results)-1])
}

func TestQuickCheck_ForcedDeviationTriggersWhenNotStatic(t *testing.T) {
	gate := newTestGate(t)
	forced := model.AnalysisContext{
		OraclePriceUSD:    1800,
		AMMSpotPriceUSD:   1260, // -30%
		PriceDeviationPct: 30.0,
	}
	assert.True(t, gate.evaluate(context.Background(), forced))
}

// Static state always wins, even over a forced-override-shaped deviation:
// reasoner.py's quick_check() suppresses unconditionally once the state
// ring has collapsed, before ever reaching the no-activity override.
func TestQuickCheck_StaticStateSuppressesEvenForcedDeviation(t *testing.T) {
	gate := newTestGate(t)
	ac := model.AnalysisContext{OraclePriceUSD: 1800, AMMSpotPriceUSD: 1800.0}
	for i := 0; i < 10; i++ {
		gate.evaluate(context.Background(), ac)
	}

	forced := model.AnalysisContext{
		OraclePriceUSD:    1800,
		AMMSpotPriceUSD:   1260, // -30%
		PriceDeviationPct: 30.0,
	}
	assert.False(t, gate.evaluate(context.Background(), forced))
}

// A bare new liquidation is not itself a trigger; it only matters through
// rule 5 (liquidation_after_price_drop), and only for the first occurrence.
func TestQuickCheck_NewLiquidationAloneDoesNotTrigger(t *testing.T) {
	gate := newTestGate(t)
	ac := model.AnalysisContext{
		RecentLiquidations: []model.LiquidationEvent{{User: "0xabc", BlockNumber: 100}},
	}
	assert.False(t, gate.evaluate(context.Background(), ac))
}

func TestQuickCheck_LiquidationAfterDropTriggersOnlyForFreshEvent(t *testing.T) {
	gate := newTestGate(t)
	ac := model.AnalysisContext{
		RecentLiquidations:      []model.LiquidationEvent{{User: "0xabc", BlockNumber: 100}},
		RecentLiquidationsCount: 1,
		Anomalies:               model.AnomalyIndicators{LiquidationAfterPriceDrop: true},
	}
	assert.True(t, gate.evaluate(context.Background(), ac))

	// Same liquidation again is deduped and nothing else about this
	// context is anomalous, so the second call falls through to false.
	assert.False(t, gate.evaluate(context.Background(), ac))
}

func TestStateSignature_Deterministic(t *testing.T) {
	ac := model.AnalysisContext{OraclePriceUSD: 1800.4, AMMSpotPriceUSD: 1799.123456789, RecentLiquidationsCount: 2, AMMSwapsThisBlock: 1}
	assert.Equal(t, stateSignature(ac), stateSignature(ac))
}
