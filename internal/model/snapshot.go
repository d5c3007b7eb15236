package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceData is a single oracle price observation. Prices are USD-normalized
// with 8 decimal fractional precision at the source (raw value / 1e8).
type PriceData struct {
	PriceUSD    decimal.Decimal
	TimestampS  int64
	BlockNumber uint64
}

// LiquidationEvent is one Liquidation log entry emitted by the lending
// vault, already decoded and unit-normalized.
type LiquidationEvent struct {
	Liquidator       string
	User             string
	DebtRepaid       decimal.Decimal
	CollateralSeized decimal.Decimal
	OraclePrice      decimal.Decimal
	BlockNumber      uint64
	TimestampS       int64
}

// SwapEvent is one Swap log entry emitted by the AMM pool.
type SwapEvent struct {
	Sender         string
	AmountIn       decimal.Decimal
	AmountOut      decimal.Decimal
	IsBaseToQuote  bool
	EffectivePrice decimal.Decimal
	BlockNumber    uint64
}

// PriceChange is one entry of MarketSnapshot.RecentPriceChanges: the percent
// move between two adjacent history points.
type PriceChange struct {
	FromBlock uint64
	ToBlock   uint64
	ChangePct float64
}

// MarketSnapshot is the complete, immutable observation taken at one tick.
// Every field is populated by the Observer; nothing downstream mutates it.
type MarketSnapshot struct {
	Timestamp   time.Time
	BlockNumber uint64

	OraclePrice            decimal.Decimal
	OracleTWAP             decimal.Decimal
	OracleUpdatesThisBlock int

	AMMSpotPrice      decimal.Decimal
	BaseReserve       decimal.Decimal // 18-decimal asset, e.g. WETH
	QuoteReserve      decimal.Decimal // 6-decimal asset, e.g. USDC
	AMMSwapsThisBlock int
	AMMPaused         bool

	// PriceDeviationPct = |oracle - amm| / oracle * 100, or 0 if oracle == 0.
	PriceDeviationPct float64

	VaultTotalCollateral decimal.Decimal
	VaultTotalLoans      decimal.Decimal
	VaultPaused          bool
	LiquidationsBlocked  bool

	RecentLiquidations []LiquidationEvent
	RecentLargeSwaps   []SwapEvent
	PriceHistory       []PriceData
}

// PriceDeviation computes the invariant from §3: |oracle - amm| / oracle *
// 100 when oracle > 0, else 0.
func PriceDeviation(oracle, amm decimal.Decimal) float64 {
	if oracle.IsZero() {
		return 0
	}
	diff := oracle.Sub(amm).Abs()
	pct := diff.Div(oracle).Mul(decimal.NewFromInt(100))
	f, _ := pct.Float64()
	return f
}

// AnalysisContext is the flattened, structured view of a MarketSnapshot fed
// to the Reasoner. It is a plain data record: the Observer builds it, the
// Reasoner reads it, neither mutates it once built.
type AnalysisContext struct {
	BlockNumber       uint64
	TimestampRFC3339  string
	OraclePriceUSD    float64
	AMMSpotPriceUSD   float64
	OracleTWAPUSD     float64
	PriceDeviationPct float64

	OracleUpdatesThisBlock  int
	AMMSwapsThisBlock       int
	RecentLargeSwapsCount   int
	RecentLiquidationsCount int

	BaseReserve         float64
	QuoteReserve        float64
	VaultCollateralBase float64
	VaultLoansQuote     float64

	VaultPaused         bool
	LiquidationsBlocked bool

	Anomalies AnomalyIndicators

	RecentPriceChanges []PriceChange
	RecentLargeSwaps   []SwapEvent
	RecentLiquidations []LiquidationEvent
}

// AnomalyIndicators are the independently-computed booleans described in
// §4.2. Each one is a pure function of the snapshot plus config thresholds.
type AnomalyIndicators struct {
	PriceDeviationAboveThreshold   bool
	MultipleOracleUpdatesSameBlock bool
	MultipleSwapsSameBlock         bool
	SameBlockPriceRecoveryPattern  bool
	LiquidationAfterPriceDrop      bool
}
