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

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Generate(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

func newTestReasoner(t *testing.T, llmResponse string) (*Reasoner, *fakeLLM) {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	fake := &fakeLLM{response: llmResponse}
	r := &Reasoner{llmClient: fake, dedup: cache.NewMemory(), gate: newQuickCheck(cache.NewMemory(), logger.Sugar()), log: logger.Sugar()}
	return r, fake
}

func TestAnalyze_ParsesWellFormedResponse(t *testing.T) {
	r, fake := newTestReasoner(t, `{"classification":"ORACLE_MANIPULATION","confidence":0.9,"explanation":"price diverges sharply","evidence":["30% deviation","no swap activity"]}`)

	assessment, err := r.Analyze(context.Background(), model.AnalysisContext{BlockNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, model.ThreatOracleManipulation, assessment.Classification)
	assert.Equal(t, 0.9, assessment.Confidence)
	assert.Equal(t, 1, fake.calls)
}

func TestAnalyze_SkipsDuplicateBlock(t *testing.T) {
	r, fake := newTestReasoner(t, `{"classification":"NATURAL","confidence":0.1,"explanation":"ok","evidence":[]}`)

	ac := model.AnalysisContext{BlockNumber: 5}
	_, err := r.Analyze(context.Background(), ac)
	require.NoError(t, err)
	assessment, err := r.Analyze(context.Background(), ac)
	require.NoError(t, err)

	assert.Equal(t, model.ThreatNatural, assessment.Classification)
	assert.Equal(t, 1, fake.calls) // second call never reached the LLM
}

func TestAnalyze_MalformedResponseFallsBackToNatural(t *testing.T) {
	r, _ := newTestReasoner(t, `not json at all`)

	assessment, err := r.Analyze(context.Background(), model.AnalysisContext{BlockNumber: 9})
	require.NoError(t, err)
	assert.Equal(t, model.ThreatNatural, assessment.Classification)
	assert.Equal(t, 0.0, assessment.Confidence)
	require.Len(t, assessment.Evidence, 1)
	assert.Contains(t, assessment.Evidence[0], "Parse error:")
}

func TestAnalyze_UnknownClassificationFallsBackToNatural(t *testing.T) {
	r, _ := newTestReasoner(t, `{"classification":"ROGUE_AI","confidence":0.8,"explanation":"","evidence":[]}`)

	assessment, err := r.Analyze(context.Background(), model.AnalysisContext{BlockNumber: 11})
	require.NoError(t, err)
	assert.Equal(t, model.ThreatNatural, assessment.Classification)
}

func TestAnalyze_ConfidenceClampedAboveOne(t *testing.T) {
	r, _ := newTestReasoner(t, `{"classification":"FLASH_LOAN_ATTACK","confidence":1.7,"explanation":"","evidence":[]}`)

	assessment, err := r.Analyze(context.Background(), model.AnalysisContext{BlockNumber: 12})
	require.NoError(t, err)
	assert.Equal(t, 1.0, assessment.Confidence)
}

func TestAnalyze_EvidenceAsSingleStringCoerced(t *testing.T) {
	r, _ := newTestReasoner(t, `{"classification":"NATURAL","confidence":0.2,"explanation":"","evidence":"single item"}`)

	assessment, err := r.Analyze(context.Background(), model.AnalysisContext{BlockNumber: 13})
	require.NoError(t, err)
	assert.Equal(t, []string{"single item"}, assessment.Evidence)
}

func TestStripMarkdownFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripMarkdownFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripMarkdownFence(`{"a":1}`))
}
