// Package agent implements the Agent Loop orchestrator (§4.7): it
// sequences Observer -> proactive shortcut -> Reasoner -> Decider -> Actor
// -> Reporter on a fixed poll cadence, and runs the health HTTP server
// concurrently, mirroring original_source/agent/main.py's run loop and the
// teacher's habit of a top-level struct owning every component.
package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chainsentinel/sentinel/internal/actor"
	"github.com/chainsentinel/sentinel/internal/config"
	"github.com/chainsentinel/sentinel/internal/decider"
	"github.com/chainsentinel/sentinel/internal/metrics"
	"github.com/chainsentinel/sentinel/internal/model"
	"github.com/chainsentinel/sentinel/internal/observer"
	"github.com/chainsentinel/sentinel/internal/reasoner"
	"github.com/chainsentinel/sentinel/internal/reporter"
)

// proactiveDashboardDelay gives the external dashboard time to render the
// attack snapshot before the agent asks the backend to restore the price
// feed (§4.7 step 2).
const proactiveDashboardDelay = 5 * time.Second

// Gateway is the subset of chaingateway.Gateway the loop needs directly
// (beyond what Observer/Actor already wrap), for the state read used by the
// idempotence override.
type Gateway interface {
	VaultPaused(ctx context.Context) (bool, error)
	LiquidationsBlocked(ctx context.Context) (bool, error)
}

// status is the read-only snapshot the health server serves. It is
// refreshed once per tick under statusMu; §5 tolerates reading slightly
// stale data here but not an actual Go data race, hence the dedicated lock.
type status struct {
	Healthy        bool      `json:"healthy"`
	LastTick       time.Time `json:"last_tick"`
	LastBlock      uint64    `json:"last_block"`
	CyclesComplete uint64    `json:"cycles_complete"`
	LastError      string    `json:"last_error,omitempty"`
}

type Agent struct {
	cfg      *config.Config
	gw       Gateway
	observer *observer.Observer
	reasoner *reasoner.Reasoner
	decider  *decider.Decider
	actor    *actor.Actor
	reporter *reporter.Reporter
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger

	statusMu sync.RWMutex
	status   status
}

func New(cfg *config.Config, gw Gateway, obs *observer.Observer, rsn *reasoner.Reasoner, dec *decider.Decider, act *actor.Actor, rep *reporter.Reporter, met *metrics.Metrics, log *zap.SugaredLogger) *Agent {
	return &Agent{cfg: cfg, gw: gw, observer: obs, reasoner: rsn, decider: dec, actor: act, reporter: rep, metrics: met, log: log}
}

// Run drives the poll loop until ctx is cancelled, and runs the health HTTP
// server concurrently in its own goroutine.
func (a *Agent) Run(ctx context.Context) error {
	srv := a.newHealthServer()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Errorw("health server exited", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	var cycles uint64
	for {
		select {
		case <-ctx.Done():
			a.log.Infow("shutting down", "cycles_completed", cycles)
			return nil
		case <-ticker.C:
			cycles++
			if err := a.tick(ctx); err != nil {
				a.log.Errorw("tick failed, backing off", "error", err)
				a.setStatus(func(s *status) { s.LastError = err.Error(); s.Healthy = false })
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(5 * time.Second):
				}
				continue
			}
			a.metrics.CyclesTotal.Inc()
			a.setStatus(func(s *status) {
				s.Healthy = true
				s.LastTick = time.Now().UTC()
				s.CyclesComplete = cycles
				s.LastError = ""
			})
		}
	}
}

// tick runs exactly one Observer -> Reasoner -> Decider -> Actor -> Reporter
// pass, with the proactive fast path short-circuiting the rest of the
// pipeline per §4.7.
func (a *Agent) tick(ctx context.Context) error {
	snap, err := a.observer.Observe(ctx)
	if err != nil {
		return err
	}
	a.metrics.BlocksProcessedTotal.Inc()
	a.setStatus(func(s *status) { s.LastBlock = snap.BlockNumber })

	if a.cfg.RapidResponseMode && snap.PriceDeviationPct > a.cfg.ProactivePauseDeviation*100 && !snap.AMMPaused && !snap.VaultPaused {
		return a.runProactiveDefense(ctx, snap)
	}

	a.reportObservation(ctx, snap)

	ac := a.observer.AnalysisContext(snap)
	var assessment *model.ThreatAssessment
	if !a.reasoner.QuickCheck(ctx, ac) {
		assessment = &model.ThreatAssessment{Classification: model.ThreatNatural, Confidence: 0.95, Explanation: "No anomalies detected", Evidence: []string{}}
	} else {
		a.metrics.LLMCallsTotal.Inc()
		var err error
		assessment, err = a.reasoner.Analyze(ctx, ac)
		if err != nil {
			return err
		}
	}
	if assessment.Classification != model.ThreatNatural {
		a.reportAssessment(ctx, snap, assessment)
		a.metrics.ThreatsDetectedTotal.WithLabelValues(string(assessment.Classification)).Inc()
	}

	decision := a.decider.Decide(assessment)

	vaultPaused, err := a.gw.VaultPaused(ctx)
	if err != nil {
		vaultPaused = snap.VaultPaused
	}
	liquidationsBlocked, err := a.gw.LiquidationsBlocked(ctx)
	if err != nil {
		liquidationsBlocked = snap.LiquidationsBlocked
	}
	decision = a.decider.OverrideForState(decision, vaultPaused, liquidationsBlocked)

	if decision.Action != model.ActionNone {
		a.reportDecision(ctx, snap, decision)
	}

	if decision.ExecuteOnChain {
		txHash, err := a.actor.Execute(ctx, decision)
		if err != nil {
			return err
		}
		a.metrics.ActionsTakenTotal.WithLabelValues(string(decision.Action)).Inc()
		a.reportAction(ctx, snap, decision, txHash)
	}

	a.secondaryProactivePause(ctx, snap, assessment)

	return nil
}

// secondaryProactivePause implements §4.7 step 7: an attack-grade
// classification at high confidence pauses the AMM immediately, independent
// of whatever the Decider chose, as long as the AMM is not already paused.
func (a *Agent) secondaryProactivePause(ctx context.Context, snap *model.MarketSnapshot, assessment *model.ThreatAssessment) {
	attackGrade := assessment.Classification == model.ThreatFlashLoanAttack || assessment.Classification == model.ThreatOracleManipulation
	if !attackGrade || assessment.Confidence <= 0.7 || snap.AMMPaused {
		return
	}

	txHash, err := a.actor.PauseAMM(ctx)
	if err != nil {
		a.log.Warnw("secondary proactive amm pause failed", "error", err)
		return
	}
	a.metrics.ActionsTakenTotal.WithLabelValues("PAUSE_AMM").Inc()

	action := model.ActionType("PAUSE_AMM")
	a.reporter.Report(ctx, model.SecurityEvent{
		TimestampRFC3339:  snap.Timestamp.Format(time.RFC3339),
		BlockNumber:       snap.BlockNumber,
		EventType:         model.EventAMMPaused,
		OraclePriceUSD:    mustFloat(snap.OraclePrice),
		AMMPriceUSD:       mustFloat(snap.AMMSpotPrice),
		PriceDeviationPct: snap.PriceDeviationPct,
		Classification:    &assessment.Classification,
		Confidence:        &assessment.Confidence,
		Action:            &action,
		ActionReason:      "high-confidence attack classification, pausing amm as a secondary precaution",
		ExecuteOnChain:    boolPtr(true),
		TxHash:            txHash,
	})
}

// runProactiveDefense implements the §4.7 proactive fast path: pause the
// AMM and block liquidations immediately on an extreme deviation, bypassing
// the LLM entirely, then give the dashboard a moment to render the attack
// before asking the backend to restore the price feed.
func (a *Agent) runProactiveDefense(ctx context.Context, snap *model.MarketSnapshot) error {
	txHash, err := a.actor.PauseAMM(ctx)
	if err != nil {
		return err
	}
	a.metrics.ActionsTakenTotal.WithLabelValues("PAUSE_AMM").Inc()

	if _, err := a.actor.BlockLiquidations(ctx); err != nil {
		a.log.Warnw("proactive block liquidations failed", "error", err)
	}

	classification := model.ThreatOracleManipulation
	confidence := 0.95
	action := model.ActionType("PROACTIVE_PAUSE_AMM")
	event := model.SecurityEvent{
		TimestampRFC3339:  snap.Timestamp.Format(time.RFC3339),
		BlockNumber:       snap.BlockNumber,
		EventType:         model.EventProactiveDefense,
		OraclePriceUSD:    mustFloat(snap.OraclePrice),
		AMMPriceUSD:       mustFloat(snap.AMMSpotPrice),
		PriceDeviationPct: snap.PriceDeviationPct,
		Classification:    &classification,
		Confidence:        &confidence,
		Explanation:       "extreme price deviation with rapid response enabled",
		Action:            &action,
		ExecuteOnChain:    boolPtr(true),
		TxHash:            txHash,
	}
	a.reporter.Report(ctx, event)

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(proactiveDashboardDelay):
	}

	a.reporter.ReportProactiveRestore(ctx, event)
	a.log.Infow("proactive defense complete, restore requested", "block", snap.BlockNumber, "deviation_pct", snap.PriceDeviationPct)
	return nil
}

func (a *Agent) reportObservation(ctx context.Context, snap *model.MarketSnapshot) {
	a.reporter.Report(ctx, model.SecurityEvent{
		TimestampRFC3339:  snap.Timestamp.Format(time.RFC3339),
		BlockNumber:       snap.BlockNumber,
		EventType:         model.EventObservation,
		OraclePriceUSD:    mustFloat(snap.OraclePrice),
		AMMPriceUSD:       mustFloat(snap.AMMSpotPrice),
		PriceDeviationPct: snap.PriceDeviationPct,
	})
}

func (a *Agent) reportAssessment(ctx context.Context, snap *model.MarketSnapshot, assessment *model.ThreatAssessment) {
	classification := assessment.Classification
	confidence := assessment.Confidence
	a.reporter.Report(ctx, model.SecurityEvent{
		TimestampRFC3339:  snap.Timestamp.Format(time.RFC3339),
		BlockNumber:       snap.BlockNumber,
		EventType:         model.EventAssessment,
		OraclePriceUSD:    mustFloat(snap.OraclePrice),
		AMMPriceUSD:       mustFloat(snap.AMMSpotPrice),
		PriceDeviationPct: snap.PriceDeviationPct,
		Classification:    &classification,
		Confidence:        &confidence,
		Explanation:       assessment.Explanation,
		Evidence:          assessment.Evidence,
	})
}

func (a *Agent) reportDecision(ctx context.Context, snap *model.MarketSnapshot, decision model.PolicyDecision) {
	action := decision.Action
	a.reporter.Report(ctx, model.SecurityEvent{
		TimestampRFC3339:  snap.Timestamp.Format(time.RFC3339),
		BlockNumber:       snap.BlockNumber,
		EventType:         model.EventDecision,
		OraclePriceUSD:    mustFloat(snap.OraclePrice),
		AMMPriceUSD:       mustFloat(snap.AMMSpotPrice),
		PriceDeviationPct: snap.PriceDeviationPct,
		Action:            &action,
		ActionReason:      decision.Reason,
		ExecuteOnChain:    boolPtr(decision.ExecuteOnChain),
	})
}

func (a *Agent) reportAction(ctx context.Context, snap *model.MarketSnapshot, decision model.PolicyDecision, txHash string) {
	action := decision.Action
	a.reporter.Report(ctx, model.SecurityEvent{
		TimestampRFC3339:  snap.Timestamp.Format(time.RFC3339),
		BlockNumber:       snap.BlockNumber,
		EventType:         model.EventAction,
		OraclePriceUSD:    mustFloat(snap.OraclePrice),
		AMMPriceUSD:       mustFloat(snap.AMMSpotPrice),
		PriceDeviationPct: snap.PriceDeviationPct,
		Action:            &action,
		ActionReason:      decision.Reason,
		ExecuteOnChain:    boolPtr(true),
		TxHash:            txHash,
	})
}

func (a *Agent) setStatus(mutate func(*status)) {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	mutate(&a.status)
}

func (a *Agent) newHealthServer() *http.Server {
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "sentinel-agent"})
	})
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		a.statusMu.RLock()
		s := a.status
		a.statusMu.RUnlock()
		state, code := "healthy", http.StatusOK
		if s.LastError != "" {
			state, code = "error", http.StatusServiceUnavailable
		} else if !s.Healthy {
			state, code = "starting", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": state, "last_block": s.LastBlock, "last_error": s.LastError})
	})
	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		a.statusMu.RLock()
		snapshot := a.status
		a.statusMu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshot)
	})
	router.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}))

	return &http.Server{Addr: ":8090", Handler: router}
}

func mustFloat(d interface{ Float64() (float64, bool) }) float64 {
	f, _ := d.Float64()
	return f
}

func boolPtr(b bool) *bool { return &b }
