// Package observer implements the Observer component (§4.2): it samples
// chain state once per tick and assembles it into a MarketSnapshot, closely
// mirroring original_source/agent/observer.py's Observer.observe().
package observer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsentinel/sentinel/internal/config"
	"github.com/chainsentinel/sentinel/internal/model"
)

// Gateway is the subset of chaingateway.Gateway the Observer needs, kept as
// a narrow interface here so this package has no hard dependency on the
// concrete chaingateway type (and can be faked in tests).
type Gateway interface {
	BlockNumber(ctx context.Context) (uint64, error)

	GetPrice(ctx context.Context) (price decimal.Decimal, timestampS int64, block uint64, err error)
	GetReserves(ctx context.Context) (base, quote, spot decimal.Decimal, err error)
	GetBlockSwapStats(ctx context.Context) (swaps int, block uint64, err error)
	VaultTotals(ctx context.Context) (collateral, loans decimal.Decimal, err error)
	VaultPaused(ctx context.Context) (bool, error)
	LiquidationsBlocked(ctx context.Context) (bool, error)

	GetTWAP(ctx context.Context) (twap decimal.Decimal, sampleCount int64, err error)
	OracleUpdatesThisBlock(ctx context.Context) int
	AMMPaused(ctx context.Context) bool
	LiquidationsThisBlock(ctx context.Context) int
	GetPriceHistory(ctx context.Context, count int) ([]model.PriceData, error)
	RecentLiquidations(ctx context.Context, blocksBack uint64) ([]model.LiquidationEvent, error)
	RecentSwaps(ctx context.Context, blocksBack uint64) ([]model.SwapEvent, error)
}

// Observer holds the ring of recent snapshots (§4.2/§5: bounded history,
// cap 100) and the config thresholds needed to compute anomaly indicators.
type Observer struct {
	gw   Gateway
	cfg  *config.Config
	ring *model.Ring[model.MarketSnapshot]
}

func New(gw Gateway, cfg *config.Config) *Observer {
	return &Observer{gw: gw, cfg: cfg, ring: model.NewRing[model.MarketSnapshot](100)}
}

// History returns the retained snapshots, oldest first.
func (o *Observer) History() []model.MarketSnapshot { return o.ring.Snapshot() }

// Observe assembles one MarketSnapshot. Essential fields (price, reserves,
// block swap stats, vault totals/paused/liquidationsBlocked) propagate any
// read error and abort the tick; non-essential fields (TWAP, history,
// recent events, AMM paused, this-block counters) degrade to a zero value,
// matching observer.py's try/except placement around each read. A TWAP read
// that succeeds with zero samples falls back to the current oracle price,
// and recent swaps are kept only when their input amount exceeds 10 units.
func (o *Observer) Observe(ctx context.Context) (*model.MarketSnapshot, error) {
	block, err := o.gw.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	oraclePrice, _, _, err := o.gw.GetPrice(ctx)
	if err != nil {
		return nil, err
	}
	base, quote, spot, err := o.gw.GetReserves(ctx)
	if err != nil {
		return nil, err
	}
	swaps, _, err := o.gw.GetBlockSwapStats(ctx)
	if err != nil {
		return nil, err
	}
	collateral, loans, err := o.gw.VaultTotals(ctx)
	if err != nil {
		return nil, err
	}
	vaultPaused, err := o.gw.VaultPaused(ctx)
	if err != nil {
		return nil, err
	}
	liquidationsBlocked, err := o.gw.LiquidationsBlocked(ctx)
	if err != nil {
		return nil, err
	}

	twap, twapSamples, twapErr := o.gw.GetTWAP(ctx)
	if twapErr != nil {
		twap = decimal.Zero
	} else if twapSamples == 0 {
		twap = oraclePrice
	}

	history, _ := o.gw.GetPriceHistory(ctx, o.cfg.PriceHistoryWindow)
	recentLiqs, _ := o.gw.RecentLiquidations(ctx, 10)
	recentSwaps, _ := o.gw.RecentSwaps(ctx, 10)
	var largeSwaps []model.SwapEvent
	for _, s := range recentSwaps {
		if s.AmountIn.GreaterThan(decimal.NewFromInt(10)) {
			largeSwaps = append(largeSwaps, s)
		}
	}

	snap := model.MarketSnapshot{
		Timestamp:   time.Now().UTC(),
		BlockNumber: block,

		OraclePrice:            oraclePrice,
		OracleTWAP:             twap,
		OracleUpdatesThisBlock: o.gw.OracleUpdatesThisBlock(ctx),

		AMMSpotPrice:      spot,
		BaseReserve:       base,
		QuoteReserve:      quote,
		AMMSwapsThisBlock: swaps,
		AMMPaused:         o.gw.AMMPaused(ctx),

		PriceDeviationPct: model.PriceDeviation(oraclePrice, spot),

		VaultTotalCollateral: collateral,
		VaultTotalLoans:      loans,
		VaultPaused:          vaultPaused,
		LiquidationsBlocked:  liquidationsBlocked,

		RecentLiquidations: recentLiqs,
		RecentLargeSwaps:   largeSwaps,
		PriceHistory:       history,
	}

	o.ring.Push(snap)
	return &snap, nil
}

// AnalysisContext flattens a MarketSnapshot plus its own retained history
// into the structured view the Reasoner consumes, mirroring
// observer.py's get_analysis_context().
func (o *Observer) AnalysisContext(snap *model.MarketSnapshot) model.AnalysisContext {
	oracleF, _ := snap.OraclePrice.Float64()
	ammF, _ := snap.AMMSpotPrice.Float64()
	twapF, _ := snap.OracleTWAP.Float64()
	baseF, _ := snap.BaseReserve.Float64()
	quoteF, _ := snap.QuoteReserve.Float64()
	collateralF, _ := snap.VaultTotalCollateral.Float64()
	loansF, _ := snap.VaultTotalLoans.Float64()

	ctx := model.AnalysisContext{
		BlockNumber:             snap.BlockNumber,
		TimestampRFC3339:        snap.Timestamp.Format(time.RFC3339),
		OraclePriceUSD:          oracleF,
		AMMSpotPriceUSD:         ammF,
		OracleTWAPUSD:           twapF,
		PriceDeviationPct:       snap.PriceDeviationPct,
		OracleUpdatesThisBlock:  snap.OracleUpdatesThisBlock,
		AMMSwapsThisBlock:       snap.AMMSwapsThisBlock,
		RecentLargeSwapsCount:   len(snap.RecentLargeSwaps),
		RecentLiquidationsCount: len(snap.RecentLiquidations),
		BaseReserve:             baseF,
		QuoteReserve:            quoteF,
		VaultCollateralBase:     collateralF,
		VaultLoansQuote:         loansF,
		VaultPaused:             snap.VaultPaused,
		LiquidationsBlocked:     snap.LiquidationsBlocked,
		RecentPriceChanges:      o.recentPriceChanges(snap.PriceHistory),
		RecentLargeSwaps:        snap.RecentLargeSwaps,
		RecentLiquidations:      snap.RecentLiquidations,
	}

	ctx.Anomalies = o.anomalyIndicators(snap, ctx)
	return ctx
}

// maxRecentPriceChangePairs caps recentPriceChanges to the most recent up
// to 4 consecutive history pairs (§4.2; observer.py's range(1, min(5, len))).
const maxRecentPriceChangePairs = 4

func (o *Observer) recentPriceChanges(history []model.PriceData) []model.PriceChange {
	if len(history) < 2 {
		return nil
	}
	start := 1
	if len(history)-1 > maxRecentPriceChangePairs {
		start = len(history) - maxRecentPriceChangePairs
	}
	changes := make([]model.PriceChange, 0, len(history)-start)
	for i := start; i < len(history); i++ {
		prev, cur := history[i-1], history[i]
		if prev.PriceUSD.IsZero() {
			continue
		}
		pct := cur.PriceUSD.Sub(prev.PriceUSD).Div(prev.PriceUSD).Mul(decimal.NewFromInt(100))
		f, _ := pct.Float64()
		changes = append(changes, model.PriceChange{FromBlock: prev.BlockNumber, ToBlock: cur.BlockNumber, ChangePct: f})
	}
	return changes
}

// priceDropThresholdPct is the fixed (non-configurable) block-to-block
// price-drop threshold for liquidation_after_price_drop (§4.2); distinct
// from Config.PriceDeviationThreshold, which only gates the oracle/AMM
// deviation indicator.
const priceDropThresholdPct = -5.0

// recoveryWindowHistoryPoints and recoveryMagnitudeFraction are the fixed
// constants behind same_block_price_recovery_pattern (§4.2): among the
// last 3 price history points spanning at most 2 distinct blocks, a swing
// of more than 10% of the window's max counts as a same-block recovery.
const (
	recoveryWindowHistoryPoints = 3
	recoveryMagnitudeFraction   = 0.10
)

// anomalyIndicators computes the five independent booleans described in
// §4.2, grounded in observer.py's get_analysis_context() thresholds.
func (o *Observer) anomalyIndicators(snap *model.MarketSnapshot, ctx model.AnalysisContext) model.AnomalyIndicators {
	deviationThresholdPct := o.cfg.PriceDeviationThreshold * 100

	liquidationAfterDrop := false
	if len(snap.RecentLiquidations) > 0 {
		for _, change := range ctx.RecentPriceChanges {
			if change.ChangePct < priceDropThresholdPct {
				liquidationAfterDrop = true
				break
			}
		}
	}

	return model.AnomalyIndicators{
		PriceDeviationAboveThreshold:   snap.PriceDeviationPct > deviationThresholdPct,
		MultipleOracleUpdatesSameBlock: snap.OracleUpdatesThisBlock > 1,
		MultipleSwapsSameBlock:         snap.AMMSwapsThisBlock > 2,
		SameBlockPriceRecoveryPattern:  sameBlockPriceRecovery(snap.PriceHistory),
		LiquidationAfterPriceDrop:      liquidationAfterDrop,
	}
}

// sameBlockPriceRecovery implements §4.2's literal definition: within the
// last 3 price history points, spanning at most 2 distinct blocks, the
// swing between the window's max and min exceeds 10% of the max.
func sameBlockPriceRecovery(history []model.PriceData) bool {
	if len(history) < recoveryWindowHistoryPoints {
		return false
	}
	window := history[len(history)-recoveryWindowHistoryPoints:]

	blocks := make(map[uint64]struct{}, len(window))
	max, min := window[0].PriceUSD, window[0].PriceUSD
	for _, p := range window {
		blocks[p.BlockNumber] = struct{}{}
		if p.PriceUSD.GreaterThan(max) {
			max = p.PriceUSD
		}
		if p.PriceUSD.LessThan(min) {
			min = p.PriceUSD
		}
	}
	if len(blocks) > 2 || max.IsZero() {
		return false
	}

	maxF, _ := max.Float64()
	minF, _ := min.Float64()
	return (maxF-minF)/maxF > recoveryMagnitudeFraction
}
