package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scoutlabs/researcher/internal/cache"
	"github.com/scoutlabs/researcher/internal/metrics"
	"github.com/scoutlabs/researcher/internal/providers"
	"github.com/scoutlabs/researcher/internal/research"
	"github.com/scoutlabs/researcher/internal/workerpool"
)

const assessSystemPrompt = `You are a research analyst. Given evidence snippets about a company,
judge whether the company matches the research goal. Respond with JSON only.`

// bands anchor the numeric score for each AI confidence judgment.
const (
	bandHigh   = 0.9
	bandMedium = 0.6
	bandLow    = 0.3

	evidenceBonus = 0.02
)

// Score converts a banded confidence level plus the amount of supporting
// evidence into a numeric score in [0,1]. More evidence never lowers the
// score; zero evidence always scores zero.
func Score(level research.ConfidenceLevel, evidenceCount int) float64 {
	if evidenceCount <= 0 {
		return 0.0
	}
	var base float64
	switch level {
	case research.ConfidenceHigh:
		base = bandHigh
	case research.ConfidenceMedium:
		base = bandMedium
	default:
		base = bandLow
	}
	s := base + evidenceBonus*float64(evidenceCount-1)
	if s > 1 {
		s = 1
	}
	return s
}

// Collector gathers evidence for discovered candidates and scores each one.
// When a cache is configured, completed (domain, goal) assessments are
// memoized so repeat research on the same companies skips the whole stage.
type Collector struct {
	search  providers.SearchClient
	fetcher providers.PageFetcher
	llm     providers.LLMClient
	cache   cache.Cache
	ttl     time.Duration
	logger  *zap.Logger
}

func NewCollector(search providers.SearchClient, fetcher providers.PageFetcher, llm providers.LLMClient, store cache.Cache, ttl time.Duration, logger *zap.Logger) *Collector {
	return &Collector{search: search, fetcher: fetcher, llm: llm, cache: store, ttl: ttl, logger: logger}
}

// RoundResult is the per-candidate output of one evidence round.
type RoundResult struct {
	Findings         []research.Finding
	SearchesExecuted int
	Issues           []string
}

// Collect runs the evidence stage for every candidate concurrently, bounded
// by the shared limiter. Each candidate yields exactly one finding: gather
// failures produce a zero-confidence finding and an issue note instead of
// failing the round.
func (c *Collector) Collect(ctx context.Context, goal string, candidates []research.Candidate, limiter *workerpool.Limiter, resultsPerSearch int) *RoundResult {
	var mu sync.Mutex
	result := &RoundResult{Findings: make([]research.Finding, 0, len(candidates))}

	g, gctx := errgroup.WithContext(ctx)
	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			return limiter.Do(gctx, func() error {
				finding, searched, issue := c.assessCandidate(gctx, goal, cand, resultsPerSearch)
				mu.Lock()
				defer mu.Unlock()
				result.Findings = append(result.Findings, finding)
				result.SearchesExecuted += searched
				if issue != "" {
					result.Issues = append(result.Issues, issue)
				}
				return nil
			})
		})
	}
	// Do only fails when the context dies; per-candidate errors are folded
	// into findings above.
	_ = g.Wait()
	return result
}

func (c *Collector) assessCandidate(ctx context.Context, goal string, cand research.Candidate, resultsPerSearch int) (research.Finding, int, string) {
	var key string
	if c.cache != nil {
		key = cache.MakeKey("company", cand.Domain, research.NormalizeQuery(goal))
		if b, ok := c.cache.Get(ctx, key); ok {
			var cached research.Finding
			if err := json.Unmarshal(b, &cached); err == nil {
				metrics.CacheHits.Inc()
				return cached, 0, ""
			}
		}
		metrics.CacheMisses.Inc()
	}

	evidences, searched, err := c.gather(ctx, goal, cand, resultsPerSearch)
	if err != nil {
		c.logger.Warn("evidence gathering failed",
			zap.String("domain", cand.Domain), zap.Error(err))
		return zeroFinding(cand.Domain, goal), searched,
			fmt.Sprintf("evidence gathering failed for %s: %v", cand.Domain, err)
	}
	if len(evidences) == 0 {
		return zeroFinding(cand.Domain, goal), searched, ""
	}

	details, err := c.assess(ctx, goal, cand, evidences)
	if err != nil {
		c.logger.Warn("evidence assessment failed",
			zap.String("domain", cand.Domain), zap.Error(err))
		return zeroFinding(cand.Domain, goal), searched,
			fmt.Sprintf("assessment failed for %s: %v", cand.Domain, err)
	}
	details.ResearchGoal = goal
	if len(details.Evidences) == 0 {
		for _, ev := range evidences {
			details.Evidences = append(details.Evidences, ev.Snippet)
		}
	}

	n := len(details.Evidences)
	finding := research.Finding{
		Domain:          cand.Domain,
		ConfidenceScore: Score(details.ConfidenceLevel, n),
		EvidenceSources: len(evidences),
		SignalsFound:    n,
		Findings:        details,
	}
	if c.cache != nil {
		if b, err := json.Marshal(finding); err == nil {
			c.cache.Set(ctx, key, b, c.ttl)
		}
	}
	return finding, searched, ""
}

// gather collects raw evidence: a domain-scoped search plus, when a fetcher
// is configured, the candidate's homepage text. The discovery snippet that
// surfaced the candidate counts as evidence too.
func (c *Collector) gather(ctx context.Context, goal string, cand research.Candidate, resultsPerSearch int) ([]research.Evidence, int, error) {
	var evidences []research.Evidence
	if cand.Snippet != "" {
		evidences = append(evidences, research.Evidence{Snippet: cand.Snippet, Source: cand.SourceURL})
	}

	searched := 0
	query := fmt.Sprintf("%q %s", cand.Domain, goal)
	results, err := c.search.Search(ctx, research.ChannelGeneral, query, resultsPerSearch)
	if err != nil {
		if len(evidences) == 0 {
			return nil, searched, fmt.Errorf("evidence search: %w", err)
		}
		c.logger.Warn("evidence search failed, keeping discovery snippet",
			zap.String("domain", cand.Domain), zap.Error(err))
	} else {
		searched++
		for _, r := range results {
			if r.Snippet == "" {
				continue
			}
			evidences = append(evidences, research.Evidence{Snippet: r.Snippet, Source: r.URL})
		}
	}

	if c.fetcher != nil {
		if text, err := c.fetcher.Fetch(ctx, "https://"+cand.Domain); err == nil && text != "" {
			if len(text) > 2000 {
				text = text[:2000]
			}
			evidences = append(evidences, research.Evidence{Snippet: text, Source: "https://" + cand.Domain})
		}
	}
	return evidences, searched, nil
}

type assessPayload struct {
	GoalAchieved    bool     `json:"goal_achieved"`
	Technologies    []string `json:"technologies"`
	Evidences       []string `json:"evidences"`
	ConfidenceLevel string   `json:"confidence_level"`
}

// assess asks the LLM to judge the evidence. An unparseable response gets
// one retry; a second failure surfaces as an error so the caller can emit a
// zero-confidence finding.
func (c *Collector) assess(ctx context.Context, goal string, cand research.Candidate, evidences []research.Evidence) (research.FindingDetails, error) {
	domain := cand.Domain
	prompt := buildAssessPrompt(goal, cand, evidences)

	for attempt := 0; attempt < 2; attempt++ {
		raw, err := c.llm.Complete(ctx, providers.CompletionRequest{
			System:      assessSystemPrompt,
			Prompt:      prompt,
			Temperature: 0.2,
			AgentID:     "evidence_assessor",
		})
		if err != nil {
			return research.FindingDetails{}, err
		}
		details, err := parseAssessment(raw)
		if err == nil {
			return details, nil
		}
		c.logger.Warn("unparseable assessment, retrying",
			zap.String("domain", domain), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return research.FindingDetails{}, fmt.Errorf("assessment for %s unparseable after retry", domain)
}

func buildAssessPrompt(goal string, cand research.Candidate, evidences []research.Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research goal: %s\nCompany domain: %s\n\n", goal, cand.Domain)
	if cand.Note != "" {
		fmt.Fprintf(&b, "Feedback from the previous assessment: %s\n\n", cand.Note)
	}
	b.WriteString("Evidence:\n")
	for i, ev := range evidences {
		fmt.Fprintf(&b, "%d. %s (source: %s)\n", i+1, ev.Snippet, ev.Source)
	}
	b.WriteString(`
Judge whether this company matches the research goal. Respond with JSON:
{"goal_achieved": true, "technologies": ["..."], "evidences": ["snippets that support the judgment"], "confidence_level": "High"}
confidence_level must be one of "High", "Medium", "Low".`)
	return b.String()
}

func parseAssessment(raw string) (research.FindingDetails, error) {
	obj, ok := providers.ExtractJSON(raw)
	if !ok {
		return research.FindingDetails{}, fmt.Errorf("no JSON object in assessment")
	}
	var p assessPayload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return research.FindingDetails{}, fmt.Errorf("parse assessment: %w", err)
	}

	var level research.ConfidenceLevel
	switch strings.ToLower(strings.TrimSpace(p.ConfidenceLevel)) {
	case "high":
		level = research.ConfidenceHigh
	case "medium":
		level = research.ConfidenceMedium
	case "low":
		level = research.ConfidenceLow
	default:
		return research.FindingDetails{}, fmt.Errorf("invalid confidence_level %q", p.ConfidenceLevel)
	}
	return research.FindingDetails{
		GoalAchieved:    p.GoalAchieved,
		Technologies:    p.Technologies,
		Evidences:       p.Evidences,
		ConfidenceLevel: level,
	}, nil
}

func zeroFinding(domain, goal string) research.Finding {
	return research.Finding{
		Domain:          domain,
		ConfidenceScore: 0.0,
		Findings: research.FindingDetails{
			GoalAchieved:    false,
			ConfidenceLevel: research.ConfidenceLow,
			ResearchGoal:    goal,
		},
	}
}
