package quality

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/scoutlabs/researcher/internal/research"
)

// fullCreditCount is the finding-set size at which quality gets no small
// sample penalty.
const fullCreditCount = 5

// Evaluator scores a finding set against the research goal. Scoring is
// deterministic: it depends only on the findings and the threshold, never on
// a model call, so identical inputs always evaluate identically.
type Evaluator struct {
	logger *zap.Logger
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate computes quality and coverage scores plus the narrative fields
// that feed strategy refinement. roundIssues carries operational problems
// (failed searches, unparseable assessments) into the evidence issue list.
func (e *Evaluator) Evaluate(goal string, findings []research.Finding, threshold float64, roundIssues []string) research.QualityMetrics {
	m := research.QualityMetrics{
		MissingAspects:  []string{},
		CoverageGaps:    []string{},
		EvidenceIssues:  append([]string{}, roundIssues...),
		Recommendations: []string{},
	}

	if len(findings) == 0 {
		m.CoverageGaps = append(m.CoverageGaps, "no companies discovered for the goal")
		m.Recommendations = append(m.Recommendations, "broaden search strategies or relax the goal phrasing")
		return m
	}

	var (
		sum        float64
		aboveBar   int
		achieved   int
		noEvidence int
	)
	for _, f := range findings {
		sum += f.ConfidenceScore
		if f.ConfidenceScore >= threshold {
			aboveBar++
		}
		if f.Findings.GoalAchieved {
			achieved++
		}
		if f.SignalsFound == 0 {
			noEvidence++
		}
	}

	n := len(findings)
	mean := sum / float64(n)
	sizeFactor := float64(n) / fullCreditCount
	if sizeFactor > 1 {
		sizeFactor = 1
	}
	m.QualityScore = mean * sizeFactor
	m.CoverageScore = float64(aboveBar) / float64(n)

	if noEvidence > 0 {
		m.EvidenceIssues = append(m.EvidenceIssues,
			fmt.Sprintf("%d of %d companies have no supporting evidence", noEvidence, n))
	}
	if achieved == 0 {
		m.MissingAspects = append(m.MissingAspects,
			fmt.Sprintf("no company clearly achieves the goal: %s", goal))
	}
	if m.CoverageScore < 0.5 {
		m.CoverageGaps = append(m.CoverageGaps,
			fmt.Sprintf("only %d of %d companies meet the %.2f confidence threshold", aboveBar, n, threshold))
		m.Recommendations = append(m.Recommendations,
			"add more specific queries targeting companies with verifiable signals")
	}
	if n < fullCreditCount {
		m.Recommendations = append(m.Recommendations,
			"widen discovery: the result set is too small to judge coverage reliably")
	}

	e.logger.Debug("quality evaluated",
		zap.Int("companies", n),
		zap.Float64("quality_score", m.QualityScore),
		zap.Float64("coverage_score", m.CoverageScore))
	return m
}
