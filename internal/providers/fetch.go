package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scoutlabs/researcher/internal/config"
	"github.com/scoutlabs/researcher/internal/metrics"
)

// PageHTTP fetches a URL and reduces the body to plain text, capped at the
// configured byte limit.
type PageHTTP struct {
	cfg    config.FetchConfig
	http   *http.Client
	logger *zap.Logger
}

func NewPageHTTP(cfg config.FetchConfig, logger *zap.Logger) *PageHTTP {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 512 * 1024
	}
	return &PageHTTP{cfg: cfg, http: &http.Client{Timeout: timeout}, logger: logger}
}

func (p *PageHTTP) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "researcher/1.0")

	resp, err := p.http.Do(req)
	if err != nil {
		metrics.RecordProviderCall("fetch", "error", time.Since(start).Seconds())
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordProviderCall("fetch", "error", time.Since(start).Seconds())
		return "", fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBodyBytes))
	if err != nil {
		metrics.RecordProviderCall("fetch", "error", time.Since(start).Seconds())
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	metrics.RecordProviderCall("fetch", "ok", time.Since(start).Seconds())
	return stripTags(string(body)), nil
}

// stripTags removes markup and collapses whitespace. Script and style
// element contents are dropped entirely.
func stripTags(html string) string {
	var b strings.Builder
	b.Grow(len(html) / 4)

	inTag := false
	skipUntil := "" // closing tag whose content is being skipped
	i := 0
	for i < len(html) {
		c := html[i]
		if skipUntil != "" {
			if c == '<' && i+len(skipUntil) <= len(html) && strings.EqualFold(html[i:i+len(skipUntil)], skipUntil) {
				skipUntil = ""
				continue
			}
			i++
			continue
		}
		switch {
		case c == '<':
			inTag = true
			rest := html[i:]
			if len(rest) >= 7 && strings.EqualFold(rest[:7], "<script") {
				skipUntil = "</script"
				inTag = false
			} else if len(rest) >= 6 && strings.EqualFold(rest[:6], "<style") {
				skipUntil = "</style"
				inTag = false
			}
			i++
		case c == '>':
			inTag = false
			b.WriteByte(' ')
			i++
		case inTag:
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
