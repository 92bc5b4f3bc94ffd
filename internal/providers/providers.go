// Package providers holds the capability contracts the engine consumes
// (LLM generation, web/news search, page fetch) and their HTTP-backed
// implementations. Concrete vendors sit behind these interfaces so the
// pipeline never branches on provider specifics.
package providers

import (
	"context"

	"github.com/scoutlabs/researcher/internal/research"
)

// SearchResult is one hit from a discovery channel.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// CompletionRequest describes one LLM generation call.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	AgentID     string
}

// LLMClient generates text from a prompt. Implementations may fail with a
// transient error (retried by the implementation) or return structurally
// unusable output, which callers validate and retry once themselves.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// SearchClient executes one query against a discovery channel. An empty
// result slice with a nil error is a valid outcome.
type SearchClient interface {
	Search(ctx context.Context, channel research.Channel, query string, limit int) ([]SearchResult, error)
}

// PageFetcher retrieves the readable text of a URL. Per-URL failures are
// returned as errors and never abort a batch.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
