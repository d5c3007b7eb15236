package observer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsentinel/sentinel/internal/config"
	"github.com/chainsentinel/sentinel/internal/model"
)

type fakeGateway struct {
	block uint64

	price       decimal.Decimal
	priceErr    error
	base        decimal.Decimal
	quote       decimal.Decimal
	spot        decimal.Decimal
	reservesErr error
	swaps       int
	swapsErr    error
	collateral  decimal.Decimal
	loans       decimal.Decimal
	vaultErr    error

	vaultPaused    bool
	vaultPausedErr error
	liqBlocked     bool
	liqBlockedErr  error

	twap    decimal.Decimal
	twapErr error

	oracleUpdates int
	ammPaused     bool
	liqThisBlock  int

	history    []model.PriceData
	historyErr error
	liqs       []model.LiquidationEvent
	liqsErr    error
	swapEvents []model.SwapEvent
	swapErr    error
}

func (f *fakeGateway) BlockNumber(context.Context) (uint64, error) { return f.block, nil }

func (f *fakeGateway) GetPrice(context.Context) (decimal.Decimal, int64, uint64, error) {
	return f.price, 0, f.block, f.priceErr
}

func (f *fakeGateway) GetReserves(context.Context) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	return f.base, f.quote, f.spot, f.reservesErr
}

func (f *fakeGateway) GetBlockSwapStats(context.Context) (int, uint64, error) {
	return f.swaps, f.block, f.swapsErr
}

func (f *fakeGateway) VaultTotals(context.Context) (decimal.Decimal, decimal.Decimal, error) {
	return f.collateral, f.loans, f.vaultErr
}

func (f *fakeGateway) VaultPaused(context.Context) (bool, error) { return f.vaultPaused, f.vaultPausedErr }

func (f *fakeGateway) LiquidationsBlocked(context.Context) (bool, error) {
	return f.liqBlocked, f.liqBlockedErr
}

func (f *fakeGateway) GetTWAP(context.Context) (decimal.Decimal, int64, error) {
	return f.twap, 0, f.twapErr
}

func (f *fakeGateway) OracleUpdatesThisBlock(context.Context) int { return f.oracleUpdates }
func (f *fakeGateway) AMMPaused(context.Context) bool             { return f.ammPaused }
func (f *fakeGateway) LiquidationsThisBlock(context.Context) int  { return f.liqThisBlock }

func (f *fakeGateway) GetPriceHistory(context.Context, int) ([]model.PriceData, error) {
	return f.history, f.historyErr
}

func (f *fakeGateway) RecentLiquidations(_ context.Context, blocksBack uint64) ([]model.LiquidationEvent, error) {
	return f.liqs, f.liqsErr
}

func (f *fakeGateway) RecentSwaps(_ context.Context, blocksBack uint64) ([]model.SwapEvent, error) {
	return f.swapEvents, f.swapErr
}

func newTestConfig() *config.Config {
	return &config.Config{PriceHistoryWindow: 20, PriceDeviationThreshold: 0.05}
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestObserve_AssemblesSnapshotFromEssentialReads(t *testing.T) {
	gw := &fakeGateway{
		block: 100,
		price: d("1800"), base: d("10"), quote: d("18000"), spot: d("1790"),
		swaps: 2, collateral: d("5"), loans: d("4000"),
		twap: d("1795"),
	}
	o := New(gw, newTestConfig())

	snap, err := o.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), snap.BlockNumber)
	assert.True(t, snap.OraclePrice.Equal(d("1800")))
	assert.True(t, snap.AMMSpotPrice.Equal(d("1790")))
	assert.InDelta(t, model.PriceDeviation(d("1800"), d("1790")), snap.PriceDeviationPct, 1e-9)
}

func TestObserve_PropagatesEssentialReadError(t *testing.T) {
	gw := &fakeGateway{priceErr: errors.New("rpc down")}
	o := New(gw, newTestConfig())

	_, err := o.Observe(context.Background())
	assert.Error(t, err)
}

func TestObserve_DegradesTWAPToZeroOnError(t *testing.T) {
	gw := &fakeGateway{
		price: d("1800"), spot: d("1800"),
		twapErr: errors.New("insufficient samples"),
	}
	o := New(gw, newTestConfig())

	snap, err := o.Observe(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.OracleTWAP.IsZero())
}

func TestObserve_UsesTenBlockLiquidationWindow(t *testing.T) {
	var requested uint64
	gw := &fakeGateway{price: d("1800"), spot: d("1800")}
	o := New(gw, newTestConfig())

	// Wrap RecentLiquidations via a thin shim to capture the blocksBack arg.
	wrapped := &capturingGateway{fakeGateway: gw, onRecentLiquidations: func(b uint64) { requested = b }}
	o.gw = wrapped

	_, err := o.Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), requested)
}

type capturingGateway struct {
	*fakeGateway
	onRecentLiquidations func(blocksBack uint64)
}

func (c *capturingGateway) RecentLiquidations(ctx context.Context, blocksBack uint64) ([]model.LiquidationEvent, error) {
	c.onRecentLiquidations(blocksBack)
	return c.fakeGateway.RecentLiquidations(ctx, blocksBack)
}

func TestRecentPriceChanges_CapsAtFourTrailingPairs(t *testing.T) {
	o := New(&fakeGateway{}, newTestConfig())

	history := make([]model.PriceData, 0, 8)
	for i := 0; i < 8; i++ {
		history = append(history, model.PriceData{PriceUSD: decimal.NewFromInt(int64(1000 + i)), BlockNumber: uint64(i)})
	}

	changes := o.recentPriceChanges(history)
	require.Len(t, changes, 4)
	assert.Equal(t, uint64(3), changes[0].FromBlock)
	assert.Equal(t, uint64(7), changes[len(changes)-1].ToBlock)
}

func TestRecentPriceChanges_FewerThanFourPairsReturnsAll(t *testing.T) {
	o := New(&fakeGateway{}, newTestConfig())
	history := []model.PriceData{
		{PriceUSD: d("1000"), BlockNumber: 1},
		{PriceUSD: d("1010"), BlockNumber: 2},
	}
	changes := o.recentPriceChanges(history)
	require.Len(t, changes, 1)
	assert.InDelta(t, 1.0, changes[0].ChangePct, 1e-9)
}

func TestRecentPriceChanges_EmptyOrSingleHistoryIsNil(t *testing.T) {
	o := New(&fakeGateway{}, newTestConfig())
	assert.Nil(t, o.recentPriceChanges(nil))
	assert.Nil(t, o.recentPriceChanges([]model.PriceData{{PriceUSD: d("1000"), BlockNumber: 1}}))
}

func TestAnomalyIndicators_PriceDeviationAboveThreshold(t *testing.T) {
	o := New(&fakeGateway{}, newTestConfig())
	snap := &model.MarketSnapshot{PriceDeviationPct: 10.0}
	ctx := o.AnalysisContext(snap)
	assert.True(t, ctx.Anomalies.PriceDeviationAboveThreshold)
}

func TestAnomalyIndicators_MultipleOracleUpdatesSameBlock(t *testing.T) {
	o := New(&fakeGateway{}, newTestConfig())
	snap := &model.MarketSnapshot{OracleUpdatesThisBlock: 2}
	ctx := o.AnalysisContext(snap)
	assert.True(t, ctx.Anomalies.MultipleOracleUpdatesSameBlock)
}

func TestAnomalyIndicators_MultipleSwapsSameBlock(t *testing.T) {
	o := New(&fakeGateway{}, newTestConfig())
	snap := &model.MarketSnapshot{AMMSwapsThisBlock: 3}
	ctx := o.AnalysisContext(snap)
	assert.True(t, ctx.Anomalies.MultipleSwapsSameBlock)
}

func TestAnomalyIndicators_LiquidationAfterPriceDropRequiresBothSignals(t *testing.T) {
	o := New(&fakeGateway{}, newTestConfig())

	// A liquidation with no corroborating price drop doesn't count.
	snap := &model.MarketSnapshot{
		RecentLiquidations: []model.LiquidationEvent{{User: "0xabc", BlockNumber: 5}},
		PriceHistory: []model.PriceData{
			{PriceUSD: d("1000"), BlockNumber: 1},
			{PriceUSD: d("1010"), BlockNumber: 2},
		},
	}
	ctx := o.AnalysisContext(snap)
	assert.False(t, ctx.Anomalies.LiquidationAfterPriceDrop)

	// A liquidation alongside a >5% drop between history points does.
	snap2 := &model.MarketSnapshot{
		RecentLiquidations: []model.LiquidationEvent{{User: "0xabc", BlockNumber: 5}},
		PriceHistory: []model.PriceData{
			{PriceUSD: d("1000"), BlockNumber: 1},
			{PriceUSD: d("900"), BlockNumber: 2},
		},
	}
	ctx2 := o.AnalysisContext(snap2)
	assert.True(t, ctx2.Anomalies.LiquidationAfterPriceDrop)
}

func TestSameBlockPriceRecovery_DetectsSwingWithinTwoBlocks(t *testing.T) {
	history := []model.PriceData{
		{PriceUSD: d("1000"), BlockNumber: 10},
		{PriceUSD: d("850"), BlockNumber: 10},
		{PriceUSD: d("995"), BlockNumber: 11},
	}
	assert.True(t, sameBlockPriceRecovery(history))
}

func TestSameBlockPriceRecovery_FalseWhenSpanningMoreThanTwoBlocks(t *testing.T) {
	history := []model.PriceData{
		{PriceUSD: d("1000"), BlockNumber: 10},
		{PriceUSD: d("850"), BlockNumber: 11},
		{PriceUSD: d("995"), BlockNumber: 12},
	}
	assert.False(t, sameBlockPriceRecovery(history))
}

func TestSameBlockPriceRecovery_FalseWhenNotEnoughHistory(t *testing.T) {
	assert.False(t, sameBlockPriceRecovery([]model.PriceData{{PriceUSD: d("1000"), BlockNumber: 1}}))
}

func TestHistory_ReturnsRetainedSnapshotsOldestFirst(t *testing.T) {
	gw := &fakeGateway{block: 100, price: d("1800"), spot: d("1800")}
	o := New(gw, newTestConfig())

	_, err := o.Observe(context.Background())
	require.NoError(t, err)
	gw.block = 101
	_, err = o.Observe(context.Background())
	require.NoError(t, err)

	hist := o.History()
	require.Len(t, hist, 2)
	assert.Equal(t, uint64(100), hist[0].BlockNumber)
	assert.Equal(t, uint64(101), hist[1].BlockNumber)
	assert.WithinDuration(t, time.Now().UTC(), hist[1].Timestamp, time.Minute)
}
