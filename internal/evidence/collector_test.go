package evidence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scoutlabs/researcher/internal/cache"
	"github.com/scoutlabs/researcher/internal/providers"
	"github.com/scoutlabs/researcher/internal/research"
	"github.com/scoutlabs/researcher/internal/workerpool"
)

type stubSearch struct {
	results []providers.SearchResult
	err     error
}

func (s *stubSearch) Search(_ context.Context, _ research.Channel, _ string, _ int) ([]providers.SearchResult, error) {
	return s.results, s.err
}

type stubLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (s *stubLLM) Complete(_ context.Context, req providers.CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, req.Prompt)
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func TestScoreBandsAndMonotonicity(t *testing.T) {
	assert.Equal(t, 0.0, Score(research.ConfidenceHigh, 0), "no evidence scores zero regardless of band")
	assert.InDelta(t, 0.9, Score(research.ConfidenceHigh, 1), 1e-9)
	assert.InDelta(t, 0.6, Score(research.ConfidenceMedium, 1), 1e-9)
	assert.InDelta(t, 0.3, Score(research.ConfidenceLow, 1), 1e-9)

	for _, level := range []research.ConfidenceLevel{research.ConfidenceHigh, research.ConfidenceMedium, research.ConfidenceLow} {
		prev := 0.0
		for n := 1; n <= 40; n++ {
			s := Score(level, n)
			assert.GreaterOrEqual(t, s, prev, "score must not decrease with more evidence")
			assert.LessOrEqual(t, s, 1.0)
			prev = s
		}
	}
	assert.Equal(t, 1.0, Score(research.ConfidenceHigh, 10), "cap at 1.0")
}

func TestCollectScoresCandidate(t *testing.T) {
	search := &stubSearch{results: []providers.SearchResult{
		{Title: "t", URL: "https://news.example.com/a", Snippet: "Acme uses ML for fraud scoring"},
		{Title: "t2", URL: "https://blog.example.com/b", Snippet: "Acme raises series B"},
	}}
	llm := &stubLLM{responses: []string{`{
		"goal_achieved": true,
		"technologies": ["ML scoring"],
		"evidences": ["Acme uses ML for fraud scoring", "Acme raises series B"],
		"confidence_level": "High"
	}`}}

	c := NewCollector(search, nil, llm, nil, 0, zap.NewNop())
	res := c.Collect(context.Background(), "fintech fraud AI",
		[]research.Candidate{{Domain: "acme.com", Snippet: "Acme fraud platform", SourceURL: "https://acme.com"}},
		workerpool.NewLimiter(2), 10)

	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, "acme.com", f.Domain)
	assert.True(t, f.Findings.GoalAchieved)
	assert.Equal(t, research.ConfidenceHigh, f.Findings.ConfidenceLevel)
	assert.Equal(t, "fintech fraud AI", f.Findings.ResearchGoal)
	assert.InDelta(t, 0.92, f.ConfidenceScore, 1e-9) // High band + one extra evidence
	assert.Equal(t, 3, f.EvidenceSources)            // discovery snippet + two search hits
	assert.Equal(t, 1, res.SearchesExecuted)
	assert.Empty(t, res.Issues)
}

func TestCollectZeroEvidenceScoresZero(t *testing.T) {
	search := &stubSearch{results: nil}
	llm := &stubLLM{responses: []string{`{"goal_achieved": true, "confidence_level": "High"}`}}

	c := NewCollector(search, nil, llm, nil, 0, zap.NewNop())
	res := c.Collect(context.Background(), "goal",
		[]research.Candidate{{Domain: "quiet.io"}}, workerpool.NewLimiter(1), 10)

	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, 0.0, f.ConfidenceScore)
	assert.False(t, f.Findings.GoalAchieved)
	assert.Equal(t, 0, llm.calls, "no evidence means no assessment call")
}

func TestCollectGatherFailureYieldsZeroFindingAndIssue(t *testing.T) {
	search := &stubSearch{err: errors.New("upstream down")}
	llm := &stubLLM{responses: []string{`{"goal_achieved": true, "confidence_level": "High"}`}}

	c := NewCollector(search, nil, llm, nil, 0, zap.NewNop())
	res := c.Collect(context.Background(), "goal",
		[]research.Candidate{{Domain: "a.com"}}, workerpool.NewLimiter(1), 10)

	require.Len(t, res.Findings, 1)
	assert.Equal(t, 0.0, res.Findings[0].ConfidenceScore)
	assert.False(t, res.Findings[0].Findings.GoalAchieved)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], "a.com")
}

func TestCollectRetriesUnparseableAssessmentOnce(t *testing.T) {
	search := &stubSearch{results: []providers.SearchResult{
		{URL: "https://x.com", Snippet: "relevant snippet"},
	}}
	llm := &stubLLM{responses: []string{
		"sorry, no JSON here",
		`{"goal_achieved": false, "confidence_level": "Low", "evidences": ["relevant snippet"]}`,
	}}

	c := NewCollector(search, nil, llm, nil, 0, zap.NewNop())
	res := c.Collect(context.Background(), "goal",
		[]research.Candidate{{Domain: "x.com"}}, workerpool.NewLimiter(1), 10)

	require.Len(t, res.Findings, 1)
	assert.Equal(t, 2, llm.calls)
	assert.InDelta(t, 0.3, res.Findings[0].ConfidenceScore, 1e-9)
}

func TestCollectPersistentlyUnparseableFallsBackToZero(t *testing.T) {
	search := &stubSearch{results: []providers.SearchResult{
		{URL: "https://x.com", Snippet: "snippet"},
	}}
	llm := &stubLLM{responses: []string{"garbage"}}

	c := NewCollector(search, nil, llm, nil, 0, zap.NewNop())
	res := c.Collect(context.Background(), "goal",
		[]research.Candidate{{Domain: "x.com"}}, workerpool.NewLimiter(1), 10)

	require.Len(t, res.Findings, 1)
	assert.Equal(t, 0.0, res.Findings[0].ConfidenceScore)
	assert.Equal(t, 2, llm.calls)
	require.Len(t, res.Issues, 1)
}

func TestCollectForwardsReassessmentFeedback(t *testing.T) {
	search := &stubSearch{results: []providers.SearchResult{
		{URL: "https://s.com", Snippet: "snippet"},
	}}
	llm := &stubLLM{responses: []string{`{"goal_achieved": true, "confidence_level": "Medium", "evidences": ["snippet"]}`}}

	c := NewCollector(search, nil, llm, nil, 0, zap.NewNop())
	res := c.Collect(context.Background(), "goal",
		[]research.Candidate{{Domain: "a.com", Note: "previous round scored 0.30"}},
		workerpool.NewLimiter(1), 10)

	require.Len(t, res.Findings, 1)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "previous round scored 0.30")
}

func TestCollectMemoizesCompanyAssessments(t *testing.T) {
	mem := cache.NewMemory()
	defer mem.Close()

	search := &stubSearch{results: []providers.SearchResult{
		{URL: "https://s.com", Snippet: "snippet"},
	}}
	llm := &stubLLM{responses: []string{`{"goal_achieved": true, "confidence_level": "High", "evidences": ["snippet"]}`}}

	c := NewCollector(search, nil, llm, mem, time.Hour, zap.NewNop())
	cands := []research.Candidate{{Domain: "acme.com"}}

	first := c.Collect(context.Background(), "goal", cands, workerpool.NewLimiter(1), 10)
	second := c.Collect(context.Background(), "goal", cands, workerpool.NewLimiter(1), 10)

	require.Len(t, first.Findings, 1)
	require.Len(t, second.Findings, 1)
	assert.Equal(t, first.Findings[0], second.Findings[0])
	assert.Equal(t, 1, llm.calls, "second pass served from the company cache")
	assert.Equal(t, 0, second.SearchesExecuted)

	// a different goal is a different cache entry
	third := c.Collect(context.Background(), "another goal", cands, workerpool.NewLimiter(1), 10)
	require.Len(t, third.Findings, 1)
	assert.Equal(t, 2, llm.calls)
}

func TestCollectOneFindingPerCandidate(t *testing.T) {
	search := &stubSearch{results: []providers.SearchResult{
		{URL: "https://s.com", Snippet: "snippet"},
	}}
	llm := &stubLLM{responses: []string{`{"goal_achieved": true, "confidence_level": "Medium", "evidences": ["snippet"]}`}}

	c := NewCollector(search, nil, llm, nil, 0, zap.NewNop())
	cands := []research.Candidate{
		{Domain: "a.com"}, {Domain: "b.com"}, {Domain: "c.com"},
	}
	res := c.Collect(context.Background(), "goal", cands, workerpool.NewLimiter(2), 10)

	require.Len(t, res.Findings, len(cands))
	seen := make(map[string]bool)
	for _, f := range res.Findings {
		assert.False(t, seen[f.Domain])
		seen[f.Domain] = true
	}
}
