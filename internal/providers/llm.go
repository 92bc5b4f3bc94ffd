package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scoutlabs/researcher/internal/cache"
	"github.com/scoutlabs/researcher/internal/config"
	"github.com/scoutlabs/researcher/internal/metrics"
)

// LLMHTTP calls an LLM service over HTTP. Responses for identical prompts
// are memoized in the shared cache for the configured TTL.
type LLMHTTP struct {
	cfg    config.LLMConfig
	http   *http.Client
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewLLMHTTP builds the client. cache may be nil to disable memoization.
func NewLLMHTTP(cfg config.LLMConfig, c cache.Cache, ttl time.Duration, logger *zap.Logger) *LLMHTTP {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &LLMHTTP{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

type llmRequest struct {
	Query       string                 `json:"query"`
	MaxTokens   int                    `json:"max_tokens"`
	Temperature float64                `json:"temperature"`
	AgentID     string                 `json:"agent_id,omitempty"`
	Model       string                 `json:"model,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

type llmResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

// Complete sends one generation request, retrying transient failures.
func (l *LLMHTTP) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	key := cache.MakeKey("llm:"+l.cfg.Model, req.System, req.Prompt)
	if l.cache != nil {
		if b, ok := l.cache.Get(ctx, key); ok {
			metrics.CacheHits.Inc()
			return string(b), nil
		}
		metrics.CacheMisses.Inc()
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	body := llmRequest{
		Query:       req.Prompt,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		AgentID:     req.AgentID,
		Model:       l.cfg.Model,
	}
	if req.System != "" {
		body.Context = map[string]interface{}{"system_prompt": req.System}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	start := time.Now()
	var out string
	err = retryTransient(ctx, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.BaseURL+"/agent/query", strings.NewReader(string(payload)))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if req.AgentID != "" {
			httpReq.Header.Set("X-Agent-ID", req.AgentID)
		}
		if l.cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)
		}

		resp, err := l.http.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return statusError("llm", resp.StatusCode)
		}

		var parsed llmResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode llm response: %w", err)
		}
		out = parsed.Response
		return nil
	})
	if err != nil {
		metrics.RecordProviderCall("llm", "error", time.Since(start).Seconds())
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	metrics.RecordProviderCall("llm", "ok", time.Since(start).Seconds())

	if l.cache != nil && out != "" {
		l.cache.Set(ctx, key, []byte(out), l.ttl)
	}
	return out, nil
}
