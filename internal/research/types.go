package research

import (
	"fmt"
	"strings"
)

// Depth controls how wide a research run fans out: how many strategies are
// generated per iteration, how many candidates are accepted, and how many
// results each evidence search requests.
type Depth string

const (
	DepthQuick         Depth = "quick"
	DepthStandard      Depth = "standard"
	DepthComprehensive Depth = "comprehensive"
)

// ParseDepth validates a depth string, defaulting empty input to quick.
func ParseDepth(s string) (Depth, error) {
	switch Depth(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DepthQuick, nil
	case DepthQuick:
		return DepthQuick, nil
	case DepthStandard:
		return DepthStandard, nil
	case DepthComprehensive:
		return DepthComprehensive, nil
	default:
		return "", fmt.Errorf("unknown search_depth %q", s)
	}
}

// Request is an accepted research request. Immutable once validated.
type Request struct {
	Goal                string  `json:"research_goal"`
	Depth               Depth   `json:"search_depth"`
	MaxParallelSearches int     `json:"max_parallel_searches"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	MaxIterations       int     `json:"max_iterations"`
}

// ApplyDefaults fills unset fields with the documented defaults.
func (r *Request) ApplyDefaults() {
	if r.Depth == "" {
		r.Depth = DepthQuick
	}
	if r.MaxParallelSearches == 0 {
		r.MaxParallelSearches = 100
	}
	if r.ConfidenceThreshold == 0 {
		r.ConfidenceThreshold = 0.8
	}
	if r.MaxIterations == 0 {
		r.MaxIterations = 1
	}
}

// Validate enforces the request field ranges.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Goal) == "" {
		return fmt.Errorf("research_goal must not be empty")
	}
	if _, err := ParseDepth(string(r.Depth)); err != nil {
		return err
	}
	if r.MaxParallelSearches < 1 || r.MaxParallelSearches > 200 {
		return fmt.Errorf("max_parallel_searches must be in [1,200], got %d", r.MaxParallelSearches)
	}
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0.0,1.0], got %v", r.ConfidenceThreshold)
	}
	if r.MaxIterations < 1 || r.MaxIterations > 10 {
		return fmt.Errorf("max_iterations must be in [1,10], got %d", r.MaxIterations)
	}
	return nil
}

// Channel identifies the discovery channel a strategy targets.
type Channel string

const (
	ChannelGeneral Channel = "general"
	ChannelNews    Channel = "news"
)

// Strategy is one generated search query aimed at a discovery channel.
type Strategy struct {
	Query   string  `json:"query"`
	Channel Channel `json:"channel"`
}

// NormalizeQuery folds case and whitespace so strategies can be compared for
// pairwise distinctness within a generation round.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Candidate is a company discovered by domain but not yet evidenced.
// Note carries assessment feedback from a previous iteration into the next
// evidence round; it never leaves the process.
type Candidate struct {
	Domain    string  `json:"domain"`
	Name      string  `json:"name,omitempty"`
	Channel   Channel `json:"channel"`
	Snippet   string  `json:"snippet,omitempty"`
	SourceURL string  `json:"source_url,omitempty"`
	Note      string  `json:"-"`
}

// Evidence is one collected snippet plus where it came from.
type Evidence struct {
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// ConfidenceLevel is the banded AI relevance judgment for a finding.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

// FindingDetails holds the structured attributes extracted for a company.
type FindingDetails struct {
	GoalAchieved    bool            `json:"goal_achieved"`
	Technologies    []string        `json:"technologies"`
	Evidences       []string        `json:"evidences"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	ResearchGoal    string          `json:"research_goal"`
}

// Finding is the scored, evidence-backed conclusion about one candidate.
type Finding struct {
	Domain          string         `json:"domain"`
	ConfidenceScore float64        `json:"confidence_score"`
	EvidenceSources int            `json:"evidence_sources"`
	SignalsFound    int            `json:"signals_found"`
	Findings        FindingDetails `json:"findings"`
}

// QualityMetrics aggregates the full finding set for one iteration.
type QualityMetrics struct {
	QualityScore    float64  `json:"quality_score"`
	CoverageScore   float64  `json:"coverage_score"`
	MissingAspects  []string `json:"missing_aspects"`
	CoverageGaps    []string `json:"coverage_gaps"`
	EvidenceIssues  []string `json:"evidence_issues"`
	Recommendations []string `json:"recommendations"`
}

// Result is the final payload assembled when a research run terminates.
type Result struct {
	ResearchGoal              string         `json:"research_goal"`
	SearchDepth               Depth          `json:"search_depth"`
	TotalCompanies            int            `json:"total_companies"`
	SearchStrategiesGenerated int            `json:"search_strategies_generated"`
	TotalSearchesExecuted     int            `json:"total_searches_executed"`
	IterationsUsed            int            `json:"iterations_used"`
	ProcessingTimeMS          int64          `json:"processing_time_ms"`
	QualityMetrics            QualityMetrics `json:"quality_metrics"`
	Results                   []Finding      `json:"results"`
}
