package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scoutlabs/researcher/internal/config"
	"github.com/scoutlabs/researcher/internal/metrics"
	"github.com/scoutlabs/researcher/internal/research"
)

// Serper implements SearchClient against a Serper-style search API
// (POST /search for the general channel, POST /news for news). Calls are
// rate-limited to the configured requests-per-minute budget.
type Serper struct {
	cfg     config.SearchConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewSerper(cfg config.SearchConfig, logger *zap.Logger) *Serper {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	rpm := cfg.RPM
	if rpm <= 0 {
		rpm = 300
	}
	return &Serper{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm/10+1),
		logger:  logger,
	}
}

type serperItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type serperResponse struct {
	Organic []serperItem `json:"organic"`
	News    []serperItem `json:"news"`
}

// Search executes one query on the given channel. Rate limiting happens
// before the slot-bounded HTTP call so RPM budgets are honored even under
// full fan-out.
func (s *Serper) Search(ctx context.Context, channel research.Channel, query string, limit int) ([]SearchResult, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	path := "/search"
	if channel == research.ChannelNews {
		path = "/news"
	}
	payload, err := json.Marshal(map[string]interface{}{"q": query, "num": limit})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	start := time.Now()
	var parsed serperResponse
	err = retryTransient(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, strings.NewReader(string(payload)))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-KEY", s.cfg.APIKey)

		resp, err := s.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return statusError("search", resp.StatusCode)
		}
		parsed = serperResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.RecordProviderCall("search_"+string(channel), "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordProviderCall("search_"+string(channel), "ok", time.Since(start).Seconds())

	items := parsed.Organic
	if channel == research.ChannelNews {
		items = parsed.News
	}
	out := make([]SearchResult, 0, len(items))
	for _, it := range items {
		if it.Link == "" && it.Snippet == "" {
			continue
		}
		out = append(out, SearchResult{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return out, nil
}
