package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scoutlabs/researcher/internal/providers"
	"github.com/scoutlabs/researcher/internal/research"
)

type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (s *scriptedLLM) Complete(_ context.Context, req providers.CompletionRequest) (string, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, req.Prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	resp := ""
	if i < len(s.responses) {
		resp = s.responses[i]
	}
	return resp, err
}

func TestGenerateParsesAndDeduplicates(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`Here you go:
{"strategies": [
  {"query": "fintech fraud detection AI", "channel": "general"},
  {"query": "Fintech  Fraud Detection AI", "channel": "general"},
  {"query": "fraud detection startup funding", "channel": "news"},
  {"query": "", "channel": "general"},
  {"query": "fraud prevention platforms", "channel": "webz"}
]}`}}

	g := NewGenerator(llm, zap.NewNop())
	out, err := g.Generate(context.Background(), "fintech fraud AI", 5, nil)
	require.NoError(t, err)
	require.Len(t, out, 3, "duplicates and empties dropped")
	assert.Equal(t, research.ChannelNews, out[1].Channel)
	assert.Equal(t, research.ChannelGeneral, out[2].Channel, "unknown channel coerced to general")

	seen := make(map[string]bool)
	for _, s := range out {
		norm := research.NormalizeQuery(s.Query)
		assert.False(t, seen[norm])
		seen[norm] = true
	}
}

func TestGenerateCapsAtCount(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"strategies": [
  {"query": "a", "channel": "general"},
  {"query": "b", "channel": "general"},
  {"query": "c", "channel": "general"},
  {"query": "d", "channel": "general"}
]}`}}
	g := NewGenerator(llm, zap.NewNop())
	out, err := g.Generate(context.Background(), "goal", 2, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestGenerateRetriesThenFallsBack(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{"not json at all", "still not json"},
		errs:      []error{nil, nil},
	}
	g := NewGenerator(llm, zap.NewNop())
	out, err := g.Generate(context.Background(), "fintech fraud AI", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, llm.calls, "one retry before fallback")
	require.Len(t, out, 3)
	assert.Equal(t, "fintech fraud AI", out[0].Query, "fallback starts from the goal itself")
}

func TestGenerateFallbackOnTransportError(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("boom"), errors.New("boom")}}
	g := NewGenerator(llm, zap.NewNop())
	out, err := g.Generate(context.Background(), "payments infra", 2, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestGenerateFeedbackBiasesPromptAndAvoidsRepeats(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"strategies": [
  {"query": "fintech fraud AI", "channel": "general"},
  {"query": "behavioral biometrics fraud", "channel": "general"}
]}`}}
	g := NewGenerator(llm, zap.NewNop())

	fb := &Feedback{
		Metrics: research.QualityMetrics{
			CoverageGaps:   []string{"no coverage of behavioral biometrics"},
			MissingAspects: []string{"EU vendors"},
		},
		PreviousQueries: []string{"Fintech Fraud AI"},
	}
	out, err := g.Generate(context.Background(), "fintech fraud AI", 5, fb)
	require.NoError(t, err)

	require.Len(t, out, 1, "already-executed query filtered out")
	assert.Equal(t, "behavioral biometrics fraud", out[0].Query)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "behavioral biometrics")
	assert.Contains(t, llm.prompts[0], "EU vendors")
	assert.Contains(t, llm.prompts[0], "Fintech Fraud AI")
}

func TestGenerateErrNoStrategiesWhenExhausted(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{"x", "x"},
	}
	g := NewGenerator(llm, zap.NewNop())
	fb := &Feedback{PreviousQueries: []string{
		"payments infra",
		"payments infra companies",
		"payments infra startups",
		"payments infra vendors",
		"payments infra funding",
		"payments infra launch",
	}}
	_, err := g.Generate(context.Background(), "payments infra", 6, fb)
	assert.ErrorIs(t, err, ErrNoStrategies)
}
