package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scoutlabs/researcher/internal/providers"
	"github.com/scoutlabs/researcher/internal/research"
)

// ErrNoStrategies is returned when generation, its retry, and the
// deterministic fallback all fail to produce a usable strategy set.
var ErrNoStrategies = errors.New("no usable search strategies generated")

const systemPrompt = `You are a search strategist for company discovery research.
Given a research goal, produce diverse web search queries that would surface
companies matching the goal. Respond with JSON only.`

// Feedback carries quality-evaluation output from a previous iteration into
// the next generation round so new strategies target the reported gaps.
type Feedback struct {
	Metrics         research.QualityMetrics
	PreviousQueries []string
}

// Generator produces search strategies via the LLM, with a deterministic
// fallback when the model output is unusable.
type Generator struct {
	llm    providers.LLMClient
	logger *zap.Logger
}

func NewGenerator(llm providers.LLMClient, logger *zap.Logger) *Generator {
	return &Generator{llm: llm, logger: logger}
}

type strategyPayload struct {
	Strategies []struct {
		Query   string `json:"query"`
		Channel string `json:"channel"`
	} `json:"strategies"`
}

// Generate returns up to count strategies for the goal, pairwise distinct
// after query normalization and disjoint from the feedback's previous
// queries. The first LLM failure triggers one retry with a simplified
// prompt; a second failure falls back to deterministic variants of the goal.
func (g *Generator) Generate(ctx context.Context, goal string, count int, fb *Feedback) ([]research.Strategy, error) {
	if count < 1 {
		count = 1
	}

	avoid := make(map[string]bool)
	if fb != nil {
		for _, q := range fb.PreviousQueries {
			avoid[research.NormalizeQuery(q)] = true
		}
	}

	prompt := g.buildPrompt(goal, count, fb)
	strategies, err := g.complete(ctx, prompt, count, avoid)
	if err != nil {
		g.logger.Warn("strategy generation failed, retrying simplified",
			zap.String("goal", goal), zap.Error(err))
		strategies, err = g.complete(ctx, g.buildPrompt(goal, count, nil), count, avoid)
	}
	if err != nil {
		g.logger.Warn("strategy retry failed, using fallback", zap.Error(err))
		strategies = fallbackStrategies(goal, count, avoid)
	}
	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}
	return strategies, nil
}

func (g *Generator) buildPrompt(goal string, count int, fb *Feedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research goal: %s\n\n", goal)
	fmt.Fprintf(&b, "Generate %d distinct search queries that would discover companies matching this goal.\n", count)
	b.WriteString(`Mix direct queries, industry/vertical queries, and technology-specific queries.
Assign each query a channel: "general" for web search, "news" for recent announcements and funding.

`)
	if fb != nil {
		if len(fb.Metrics.CoverageGaps) > 0 {
			b.WriteString("Previous iteration left these coverage gaps; target them directly:\n")
			for _, gap := range fb.Metrics.CoverageGaps {
				fmt.Fprintf(&b, "- %s\n", gap)
			}
			b.WriteString("\n")
		}
		if len(fb.Metrics.MissingAspects) > 0 {
			b.WriteString("Aspects of the goal not yet covered:\n")
			for _, a := range fb.Metrics.MissingAspects {
				fmt.Fprintf(&b, "- %s\n", a)
			}
			b.WriteString("\n")
		}
		if len(fb.PreviousQueries) > 0 {
			b.WriteString("Do NOT repeat these already-executed queries:\n")
			for _, q := range fb.PreviousQueries {
				fmt.Fprintf(&b, "- %s\n", q)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString(`Respond with JSON in exactly this shape:
{"strategies": [{"query": "...", "channel": "general"}, {"query": "...", "channel": "news"}]}`)
	return b.String()
}

func (g *Generator) complete(ctx context.Context, prompt string, count int, avoid map[string]bool) ([]research.Strategy, error) {
	raw, err := g.llm.Complete(ctx, providers.CompletionRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: 0.7,
		AgentID:     "strategy_generator",
	})
	if err != nil {
		return nil, err
	}

	obj, ok := providers.ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object in strategy response")
	}
	var payload strategyPayload
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil, fmt.Errorf("parse strategy response: %w", err)
	}

	seen := make(map[string]bool, len(payload.Strategies))
	out := make([]research.Strategy, 0, count)
	for _, s := range payload.Strategies {
		norm := research.NormalizeQuery(s.Query)
		if norm == "" || seen[norm] || avoid[norm] {
			continue
		}
		seen[norm] = true
		channel := research.Channel(strings.ToLower(strings.TrimSpace(s.Channel)))
		if channel != research.ChannelNews {
			channel = research.ChannelGeneral
		}
		out = append(out, research.Strategy{Query: strings.TrimSpace(s.Query), Channel: channel})
		if len(out) == count {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("strategy response contained no usable queries")
	}
	return out, nil
}

// fallbackStrategies derives queries from the goal itself when the model
// cannot. Skips anything already executed in a previous iteration.
func fallbackStrategies(goal string, count int, avoid map[string]bool) []research.Strategy {
	goal = strings.TrimSpace(goal)
	candidates := []research.Strategy{
		{Query: goal, Channel: research.ChannelGeneral},
		{Query: goal + " companies", Channel: research.ChannelGeneral},
		{Query: goal + " startups", Channel: research.ChannelGeneral},
		{Query: goal + " vendors", Channel: research.ChannelGeneral},
		{Query: goal + " funding", Channel: research.ChannelNews},
		{Query: goal + " launch", Channel: research.ChannelNews},
	}
	out := make([]research.Strategy, 0, count)
	for _, s := range candidates {
		if avoid[research.NormalizeQuery(s.Query)] {
			continue
		}
		out = append(out, s)
		if len(out) == count {
			break
		}
	}
	return out
}
