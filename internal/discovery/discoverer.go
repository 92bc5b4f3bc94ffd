package discovery

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scoutlabs/researcher/internal/metrics"
	"github.com/scoutlabs/researcher/internal/providers"
	"github.com/scoutlabs/researcher/internal/research"
	"github.com/scoutlabs/researcher/internal/workerpool"
)

// ErrAllChannelsFailed is returned when every strategy in a round failed to
// execute, so the round produced no signal at all.
var ErrAllChannelsFailed = errors.New("all discovery searches failed")

// RoundResult summarizes one discovery round.
type RoundResult struct {
	Added             []research.Candidate
	SearchesExecuted  int
	FailedSearches    int
	CandidatesDropped int // results past the depth's candidate ceiling
}

// Discoverer fans strategies out over the search provider and folds the
// results into a deduplicated candidate set keyed by domain.
type Discoverer struct {
	search providers.SearchClient
	logger *zap.Logger
}

func NewDiscoverer(search providers.SearchClient, logger *zap.Logger) *Discoverer {
	return &Discoverer{search: search, logger: logger}
}

// Discover runs all strategies concurrently, bounded by the shared limiter.
// known holds domains from previous iterations; those and within-round
// duplicates are skipped, first result wins. Once maxCandidates new domains
// are accepted the round keeps draining in-flight searches but accepts no
// more. A strategy failure is logged and counted, not fatal, unless every
// strategy fails.
func (d *Discoverer) Discover(ctx context.Context, strategies []research.Strategy, known map[string]bool, limiter *workerpool.Limiter, resultsPerSearch, maxCandidates int) (*RoundResult, error) {
	var (
		mu     sync.Mutex
		round  = make(map[string]bool, maxCandidates)
		result = &RoundResult{}
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range strategies {
		st := st
		g.Go(func() error {
			err := limiter.Do(gctx, func() error {
				results, err := d.search.Search(gctx, st.Channel, st.Query, resultsPerSearch)
				if err != nil {
					return err
				}
				metrics.SearchesExecuted.WithLabelValues(string(st.Channel)).Inc()

				mu.Lock()
				defer mu.Unlock()
				result.SearchesExecuted++
				for _, r := range results {
					domain, ok := NormalizeDomain(r.URL)
					if !ok {
						continue
					}
					if known[domain] || round[domain] {
						continue
					}
					if len(result.Added) >= maxCandidates {
						result.CandidatesDropped++
						continue
					}
					round[domain] = true
					result.Added = append(result.Added, research.Candidate{
						Domain:    domain,
						Name:      r.Title,
						Channel:   st.Channel,
						Snippet:   r.Snippet,
						SourceURL: r.URL,
					})
				}
				return nil
			})
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				d.logger.Warn("discovery search failed",
					zap.String("query", st.Query),
					zap.String("channel", string(st.Channel)),
					zap.Error(err))
				mu.Lock()
				result.FailedSearches++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if result.FailedSearches == len(strategies) && len(strategies) > 0 {
		return result, ErrAllChannelsFailed
	}
	metrics.CandidatesDiscovered.Add(float64(len(result.Added)))
	return result, nil
}

// NormalizeDomain reduces a URL (or bare host) to a canonical registrable
// form: lowercase host with any www prefix, port, and path stripped. Returns
// false for values that do not look like a domain.
func NormalizeDomain(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	host := raw
	if strings.Contains(raw, "/") || strings.Contains(raw, ":") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false
		}
		host = u.Host
		if host == "" {
			// bare host with a path but no scheme
			u, err = url.Parse("https://" + raw)
			if err != nil || u.Host == "" {
				return "", false
			}
			host = u.Host
		}
	}
	host = strings.ToLower(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimPrefix(host, "www.")
	if host == "" || !strings.Contains(host, ".") || strings.ContainsAny(host, " \t") {
		return "", false
	}
	return host, true
}
