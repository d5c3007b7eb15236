package reasoner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainsentinel/sentinel/internal/cache"
	"github.com/chainsentinel/sentinel/internal/model"
)

const (
	staticStateRingCap   = 10
	staticStateMaxUnique = 2
	suppressLogThrottle  = 10
	forcedDeviationPct   = 30.0

	// gateDeviationPct is the gate's own hardcoded deviation trigger (§4.3
	// condition 1), independent of both the configurable
	// price_deviation_threshold and the forced-override threshold above.
	gateDeviationPct       = 50.0
	gateSwapCountThreshold = 3
	gatePriceChangeAbsPct  = 10.0
)

const (
	// staticStateMinEntries is how many signatures the ring must hold
	// before it can be judged static.
	staticStateMinEntries = 5

	// quietDeviationPct: with no activity at all, a deviation below this
	// percentage ends the gate early with false.
	quietDeviationPct = 5.0
)

// quickCheck implements the deterministic anomaly gate from §4.3
// (reasoner.py's quick_check()): a cheap pre-filter that decides whether a
// tick is worth the cost of an LLM call. It holds a 10-entry ring of
// recent state signatures; once the ring holds at least five entries and
// they have collapsed to at most two distinct values, the market is judged
// static and the call is suppressed unconditionally, regardless of any
// indicator — static state is checked first and always wins. After the
// forced-deviation override, a tick with no activity at all and a
// deviation below 5% is also skipped before any trigger rule is tried.
type quickCheck struct {
	stateRing        *model.Ring[string]
	suppressionCount int
	dedup            cache.Dedup
	log              *zap.SugaredLogger
}

func newQuickCheck(dedup cache.Dedup, log *zap.SugaredLogger) *quickCheck {
	return &quickCheck{stateRing: model.NewRing[string](staticStateRingCap), dedup: dedup, log: log}
}

// evaluate returns true when the reasoner should proceed to the expensive
// LLM analysis for this tick.
func (q *quickCheck) evaluate(ctx context.Context, ac model.AnalysisContext) bool {
	signature := stateSignature(ac)
	q.stateRing.Push(signature)

	if q.isStatic() {
		q.suppressionCount++
		if q.suppressionCount%suppressLogThrottle == 1 {
			q.log.Infow("suppressing LLM analysis: market state static", "block", ac.BlockNumber, "suppressed_count", q.suppressionCount)
		}
		return false
	}

	forced := ac.PriceDeviationPct >= forcedDeviationPct &&
		ac.AMMSwapsThisBlock == 0 && ac.OracleUpdatesThisBlock == 0 && len(ac.RecentLiquidations) == 0
	if forced {
		return true
	}

	noActivity := ac.RecentLiquidationsCount == 0 && ac.RecentLargeSwapsCount == 0 &&
		ac.AMMSwapsThisBlock == 0 && ac.OracleUpdatesThisBlock == 0
	if noActivity && ac.PriceDeviationPct < quietDeviationPct {
		return false
	}

	if ac.PriceDeviationPct > gateDeviationPct {
		return true
	}
	if ac.Anomalies.MultipleOracleUpdatesSameBlock && ac.OracleUpdatesThisBlock > 1 {
		return true
	}
	if ac.AMMSwapsThisBlock > gateSwapCountThreshold && ac.RecentLargeSwapsCount > 0 {
		return true
	}
	if ac.Anomalies.SameBlockPriceRecoveryPattern {
		return true
	}
	if ac.Anomalies.LiquidationAfterPriceDrop && ac.RecentLiquidationsCount > 0 && q.hasNewLiquidation(ctx, ac) {
		return true
	}
	for _, change := range ac.RecentPriceChanges {
		if change.ChangePct > gatePriceChangeAbsPct || change.ChangePct < -gatePriceChangeAbsPct {
			return true
		}
	}
	return false
}

// hasNewLiquidation reports whether any recent liquidation in this tick has
// not previously been seen, consulting and updating the per-event dedup
// cache capped at 1000 entries (§4.3). A repeat liquidation is not itself a
// trigger; it only suppresses rule 5 for an event already analyzed.
func (q *quickCheck) hasNewLiquidation(ctx context.Context, ac model.AnalysisContext) bool {
	fresh := false
	for _, liq := range ac.RecentLiquidations {
		if !q.dedup.SeenLiquidation(ctx, liq.User, liq.BlockNumber) {
			fresh = true
		}
	}
	return fresh
}

// isStatic reports whether the retained state-signature ring holds at least
// staticStateMinEntries entries and has collapsed to at most two distinct
// values.
func (q *quickCheck) isStatic() bool {
	entries := q.stateRing.Snapshot()
	if len(entries) < staticStateMinEntries {
		return false
	}
	unique := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		unique[e] = struct{}{}
	}
	return len(unique) <= staticStateMaxUnique
}

// stateSignature mirrors reasoner.py's rounding rule: oracle price to the
// nearest whole unit, AMM price to 10 decimal places, plus the two
// same-block activity counters.
func stateSignature(ac model.AnalysisContext) string {
	return fmt.Sprintf("%.0f|%.10f|%d|%d",
		ac.OraclePriceUSD, ac.AMMSpotPriceUSD, ac.RecentLiquidationsCount, ac.AMMSwapsThisBlock)
}
