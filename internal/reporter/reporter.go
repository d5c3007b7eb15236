// Package reporter implements the Reporter component (§4.6): it logs every
// SecurityEvent at the severity the event type warrants and forwards it to
// the backend dashboard, mirroring original_source/agent/reporter.py.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chainsentinel/sentinel/internal/model"
)

const (
	eventsPostTimeout  = 10 * time.Second
	restorePostTimeout = 180 * time.Second
	eventRingCap       = 1000
)

type Reporter struct {
	backendURL string
	httpClient *http.Client
	ring       *model.Ring[model.SecurityEvent]
	log        *zap.SugaredLogger
}

func New(backendURL string, log *zap.SugaredLogger) *Reporter {
	return &Reporter{
		backendURL: backendURL,
		httpClient: &http.Client{Timeout: eventsPostTimeout},
		ring:       model.NewRing[model.SecurityEvent](eventRingCap),
		log:        log,
	}
}

// History returns the retained events, oldest first.
func (r *Reporter) History() []model.SecurityEvent { return r.ring.Snapshot() }

// Report logs the event at the severity its EventType warrants (§4.6) and
// forwards it to the backend, swallowing delivery failures at DEBUG level
// since the backend is an optional sink, not a dependency of correctness.
func (r *Reporter) Report(ctx context.Context, event model.SecurityEvent) {
	r.ring.Push(event)
	r.logEvent(event)
	r.sendToBackend(ctx, event)
}

// logEvent implements reporter.py's severity-by-event-type rule: WARN for
// ACTION and a DECISION that executed on-chain, INFO for a non-NATURAL
// ASSESSMENT, DEBUG otherwise. AMM_PAUSED and PROACTIVE_DEFENSE are
// themselves protective actions, so they log at WARN alongside ACTION.
func (r *Reporter) logEvent(event model.SecurityEvent) {
	fields := []interface{}{"block", event.BlockNumber, "event_type", event.EventType}
	if event.Classification != nil {
		fields = append(fields, "classification", *event.Classification)
	}
	if event.Action != nil {
		fields = append(fields, "action", *event.Action)
	}

	switch event.EventType {
	case model.EventAction, model.EventAMMPaused, model.EventProactiveDefense:
		r.log.Warnw("protective action taken", fields...)
	case model.EventDecision:
		if event.ExecuteOnChain != nil && *event.ExecuteOnChain {
			r.log.Warnw("decision made", fields...)
		} else {
			r.log.Debugw("decision made", fields...)
		}
	case model.EventAssessment:
		if event.Classification != nil && *event.Classification != model.ThreatNatural {
			r.log.Infow("threat assessed", fields...)
		} else {
			r.log.Debugw("threat assessed", fields...)
		}
	default:
		r.log.Debugw("security event", fields...)
	}
}

func (r *Reporter) sendToBackend(ctx context.Context, event model.SecurityEvent) {
	r.post(ctx, r.backendURL+"/api/events", event, r.httpClient)
}

// ReportProactiveRestore posts to the dedicated restore-price endpoint with
// the longer 180 second timeout §4.7 specifies for the proactive path.
func (r *Reporter) ReportProactiveRestore(ctx context.Context, event model.SecurityEvent) {
	client := &http.Client{Timeout: restorePostTimeout}
	r.post(ctx, r.backendURL+"/api/admin/restore-price", event, client)
}

func (r *Reporter) post(ctx context.Context, url string, event model.SecurityEvent, client *http.Client) {
	body, err := json.Marshal(event)
	if err != nil {
		r.log.Debugw("failed to marshal security event", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		r.log.Debugw("failed to build backend request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		r.log.Debugw("backend unreachable", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		r.log.Warnw("backend rejected event", "url", url, "status", resp.StatusCode)
	}
}
