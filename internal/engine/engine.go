package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/scoutlabs/researcher/internal/config"
	"github.com/scoutlabs/researcher/internal/discovery"
	"github.com/scoutlabs/researcher/internal/evidence"
	"github.com/scoutlabs/researcher/internal/metrics"
	"github.com/scoutlabs/researcher/internal/quality"
	"github.com/scoutlabs/researcher/internal/research"
	"github.com/scoutlabs/researcher/internal/strategy"
	"github.com/scoutlabs/researcher/internal/streaming"
	"github.com/scoutlabs/researcher/internal/workerpool"
)

// Termination reasons reported on the complete event.
const (
	ReasonQualityMet    = "quality_target_met"
	ReasonMaxIterations = "max_iterations_reached"
	ReasonNoStrategies  = "no_further_strategies"
)

// Engine drives a research run through its iteration loop: strategy
// generation, discovery, evidence collection, quality evaluation, and
// feedback-driven refinement, until the quality target is met or the
// iteration budget runs out.
type Engine struct {
	cfg        *config.Config
	strategies *strategy.Generator
	discoverer *discovery.Discoverer
	collector  *evidence.Collector
	evaluator  *quality.Evaluator
	stream     *streaming.Manager
	logger     *zap.Logger
}

func New(cfg *config.Config, gen *strategy.Generator, disc *discovery.Discoverer, coll *evidence.Collector, eval *quality.Evaluator, stream *streaming.Manager, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		strategies: gen,
		discoverer: disc,
		collector:  coll,
		evaluator:  eval,
		stream:     stream,
		logger:     logger,
	}
}

// runState accumulates everything a run learns across iterations.
type runState struct {
	candidates map[string]research.Candidate
	findings   map[string]research.Finding
	quality    research.QualityMetrics
	queries    []string
	strategies int
	searches   int
	issues     []string

	iterationsUsed int
}

// Run executes one research request to completion. The returned result is
// also delivered on the run's event stream as a complete event; fatal
// failures emit an error event and return the error.
func (e *Engine) Run(ctx context.Context, researchID string, req research.Request) (*research.Result, error) {
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	metrics.ResearchesStarted.Inc()
	metrics.ResearchesActive.Inc()
	defer metrics.ResearchesActive.Dec()

	if e.cfg.Research.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Research.OverallTimeout)
		defer cancel()
	}

	logger := e.logger.With(zap.String("research_id", researchID))
	logger.Info("research started",
		zap.String("goal", req.Goal),
		zap.String("depth", string(req.Depth)),
		zap.Int("max_iterations", req.MaxIterations))

	e.publish(researchID, streaming.EventStatus, "research started", map[string]interface{}{
		"research_goal": req.Goal,
		"search_depth":  string(req.Depth),
	})

	profile := e.cfg.DepthProfile(req.Depth)
	limiter := workerpool.NewLimiter(req.MaxParallelSearches)
	state := &runState{
		candidates: make(map[string]research.Candidate),
		findings:   make(map[string]research.Finding),
	}

	reason, err := e.iterate(ctx, researchID, req, profile, limiter, state, logger)
	if err != nil {
		logger.Error("research failed", zap.Error(err))
		e.publish(researchID, streaming.EventError, err.Error(), nil)
		metrics.RecordResearch("error", time.Since(start).Seconds(), state.iterationsUsed)
		return nil, err
	}

	result := e.assemble(req, state, start)
	e.publish(researchID, streaming.EventComplete, "research complete", map[string]interface{}{
		"termination_reason": reason,
		"result":             result,
	})
	logger.Info("research complete",
		zap.String("reason", reason),
		zap.Int("companies", result.TotalCompanies),
		zap.Int("iterations", result.IterationsUsed),
		zap.Int64("elapsed_ms", result.ProcessingTimeMS))
	metrics.RecordResearch("ok", time.Since(start).Seconds(), result.IterationsUsed)
	return result, nil
}

func (e *Engine) iterate(ctx context.Context, researchID string, req research.Request, profile config.DepthProfile, limiter *workerpool.Limiter, state *runState, logger *zap.Logger) (string, error) {
	var feedback *strategy.Feedback

	for iteration := 1; iteration <= req.MaxIterations; iteration++ {
		state.issues = state.issues[:0]
		e.publish(researchID, streaming.EventStatus,
			fmt.Sprintf("iteration %d/%d: generating search strategies", iteration, req.MaxIterations),
			map[string]interface{}{"iteration": iteration})

		strategies, err := e.strategies.Generate(ctx, req.Goal, profile.Strategies, feedback)
		if err != nil {
			if iteration == 1 {
				return "", fmt.Errorf("strategy generation: %w", err)
			}
			logger.Warn("no further strategies, terminating with current results", zap.Error(err))
			state.recordIterations(iteration - 1)
			return ReasonNoStrategies, nil
		}
		state.strategies += len(strategies)
		for _, s := range strategies {
			state.queries = append(state.queries, s.Query)
		}

		e.publish(researchID, streaming.EventStatus,
			fmt.Sprintf("iteration %d: searching %d strategies", iteration, len(strategies)), nil)

		known := make(map[string]bool, len(state.candidates))
		for d := range state.candidates {
			known[d] = true
		}
		round, err := e.discoverer.Discover(ctx, strategies, known, limiter, profile.ResultsPerSearch, profile.MaxCandidates)
		if err != nil && !errors.Is(err, discovery.ErrAllChannelsFailed) {
			return "", fmt.Errorf("discovery: %w", err)
		}
		if errors.Is(err, discovery.ErrAllChannelsFailed) {
			logger.Warn("all discovery searches failed this iteration")
			state.issues = append(state.issues, "all discovery searches failed")
		}
		state.searches += round.SearchesExecuted
		for _, c := range round.Added {
			state.candidates[c.Domain] = c
		}

		e.publish(researchID, streaming.EventLog,
			fmt.Sprintf("iteration %d: %d new candidates (%d total)", iteration, len(round.Added), len(state.candidates)),
			map[string]interface{}{
				"new_candidates":   len(round.Added),
				"total_candidates": len(state.candidates),
				"failed_searches":  round.FailedSearches,
			})

		toAssess := e.assessTargets(round.Added, state, req.ConfidenceThreshold)
		if len(toAssess) > 0 {
			e.publish(researchID, streaming.EventStatus,
				fmt.Sprintf("iteration %d: collecting evidence for %d companies", iteration, len(toAssess)), nil)

			evRound := e.collector.Collect(ctx, req.Goal, toAssess, limiter, profile.ResultsPerSearch)
			state.searches += evRound.SearchesExecuted
			state.issues = append(state.issues, evRound.Issues...)
			for _, f := range evRound.Findings {
				if prev, ok := state.findings[f.Domain]; !ok || f.ConfidenceScore > prev.ConfidenceScore {
					state.findings[f.Domain] = f
				}
			}
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		state.quality = e.evaluator.Evaluate(req.Goal, state.findingSlice(), req.ConfidenceThreshold, state.issues)
		state.recordIterations(iteration)

		e.publish(researchID, streaming.EventResults,
			fmt.Sprintf("iteration %d: quality %.2f, coverage %.2f", iteration, state.quality.QualityScore, state.quality.CoverageScore),
			map[string]interface{}{
				"iteration":       iteration,
				"quality_metrics": state.quality,
				"total_companies": len(state.findings),
			})

		if state.quality.QualityScore >= req.ConfidenceThreshold {
			return ReasonQualityMet, nil
		}
		if iteration == req.MaxIterations {
			return ReasonMaxIterations, nil
		}

		e.publish(researchID, streaming.EventStatus,
			fmt.Sprintf("iteration %d: quality below target, refining strategies", iteration), nil)
		feedback = &strategy.Feedback{
			Metrics:         state.quality,
			PreviousQueries: append([]string(nil), state.queries...),
		}
	}
	return ReasonMaxIterations, nil
}

// assessTargets picks the candidates to evidence this iteration: everything
// newly discovered plus previously assessed companies still under the
// confidence threshold, which get another chance with fresh evidence.
func (e *Engine) assessTargets(added []research.Candidate, state *runState, threshold float64) []research.Candidate {
	targets := make([]research.Candidate, 0, len(added))
	seen := make(map[string]bool, len(added))
	for _, c := range added {
		targets = append(targets, c)
		seen[c.Domain] = true
	}
	for domain, f := range state.findings {
		if seen[domain] || f.ConfidenceScore >= threshold {
			continue
		}
		if c, ok := state.candidates[domain]; ok {
			c.Note = fmt.Sprintf("previous round scored %.2f with %d supporting signals; look for stronger evidence or refute",
				f.ConfidenceScore, f.SignalsFound)
			targets = append(targets, c)
		}
	}
	return targets
}

func (e *Engine) assemble(req research.Request, state *runState, start time.Time) *research.Result {
	findings := state.findingSlice()
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].ConfidenceScore != findings[j].ConfidenceScore {
			return findings[i].ConfidenceScore > findings[j].ConfidenceScore
		}
		return findings[i].Domain < findings[j].Domain
	})

	return &research.Result{
		ResearchGoal:              req.Goal,
		SearchDepth:               req.Depth,
		TotalCompanies:            len(findings),
		SearchStrategiesGenerated: state.strategies,
		TotalSearchesExecuted:     state.searches,
		IterationsUsed:            state.iterationsUsed,
		ProcessingTimeMS:          time.Since(start).Milliseconds(),
		QualityMetrics:            state.quality,
		Results:                   findings,
	}
}

func (e *Engine) publish(researchID string, typ streaming.EventType, msg string, data map[string]interface{}) {
	if e.stream == nil {
		return
	}
	e.stream.Publish(researchID, streaming.Event{Type: typ, Message: msg, Data: data})
}

func (s *runState) findingSlice() []research.Finding {
	out := make([]research.Finding, 0, len(s.findings))
	for _, f := range s.findings {
		out = append(out, f)
	}
	return out
}

func (s *runState) recordIterations(n int) { s.iterationsUsed = n }
