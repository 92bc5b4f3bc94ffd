package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scoutlabs/researcher/internal/providers"
	"github.com/scoutlabs/researcher/internal/research"
	"github.com/scoutlabs/researcher/internal/workerpool"
)

type fakeSearch struct {
	mu      sync.Mutex
	byQuery map[string][]providers.SearchResult
	errs    map[string]error
	calls   int
}

func (f *fakeSearch) Search(_ context.Context, _ research.Channel, query string, _ int) ([]providers.SearchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	return f.byQuery[query], nil
}

func TestNormalizeDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://www.Stripe.com/radar", "stripe.com", true},
		{"http://stripe.com:8080/pricing?x=1", "stripe.com", true},
		{"sift.com/products", "sift.com", true},
		{"WWW.EXAMPLE.CO.UK", "example.co.uk", true},
		{"localhost", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizeDomain(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestDiscoverDeduplicatesAcrossStrategies(t *testing.T) {
	// Two strategies both surface stripe.com; the candidate set must hold
	// one entry for it, first result wins.
	search := &fakeSearch{byQuery: map[string][]providers.SearchResult{
		"q1": {
			{Title: "Stripe Radar", URL: "https://stripe.com/radar", Snippet: "fraud"},
			{Title: "Sift", URL: "https://sift.com", Snippet: "fraud ML"},
		},
		"q2": {
			{Title: "Stripe pricing", URL: "https://www.stripe.com/pricing", Snippet: "pricing"},
		},
	}}
	d := NewDiscoverer(search, zap.NewNop())

	res, err := d.Discover(context.Background(),
		[]research.Strategy{
			{Query: "q1", Channel: research.ChannelGeneral},
			{Query: "q2", Channel: research.ChannelGeneral},
		},
		map[string]bool{}, workerpool.NewLimiter(1), 10, 50)
	require.NoError(t, err)

	assert.Equal(t, 2, res.SearchesExecuted)
	domains := make(map[string]int)
	for _, c := range res.Added {
		domains[c.Domain]++
	}
	assert.Equal(t, 1, domains["stripe.com"])
	assert.Equal(t, 1, domains["sift.com"])
	assert.Len(t, res.Added, 2)
}

func TestDiscoverSkipsKnownDomains(t *testing.T) {
	search := &fakeSearch{byQuery: map[string][]providers.SearchResult{
		"q": {
			{Title: "Stripe", URL: "https://stripe.com", Snippet: "s"},
			{Title: "New Co", URL: "https://newco.io", Snippet: "s"},
		},
	}}
	d := NewDiscoverer(search, zap.NewNop())

	res, err := d.Discover(context.Background(),
		[]research.Strategy{{Query: "q", Channel: research.ChannelGeneral}},
		map[string]bool{"stripe.com": true}, workerpool.NewLimiter(1), 10, 50)
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	assert.Equal(t, "newco.io", res.Added[0].Domain)
}

func TestDiscoverEnforcesCandidateCeiling(t *testing.T) {
	search := &fakeSearch{byQuery: map[string][]providers.SearchResult{
		"q": {
			{URL: "https://a.com", Snippet: "s"},
			{URL: "https://b.com", Snippet: "s"},
			{URL: "https://c.com", Snippet: "s"},
			{URL: "https://d.com", Snippet: "s"},
		},
	}}
	d := NewDiscoverer(search, zap.NewNop())

	res, err := d.Discover(context.Background(),
		[]research.Strategy{{Query: "q", Channel: research.ChannelGeneral}},
		map[string]bool{}, workerpool.NewLimiter(1), 10, 2)
	require.NoError(t, err)
	assert.Len(t, res.Added, 2)
	assert.Equal(t, 2, res.CandidatesDropped)
}

func TestDiscoverPartialFailureIsNotFatal(t *testing.T) {
	search := &fakeSearch{
		byQuery: map[string][]providers.SearchResult{
			"good": {{URL: "https://a.com", Snippet: "s"}},
		},
		errs: map[string]error{"bad": errors.New("upstream 502")},
	}
	d := NewDiscoverer(search, zap.NewNop())

	res, err := d.Discover(context.Background(),
		[]research.Strategy{
			{Query: "good", Channel: research.ChannelGeneral},
			{Query: "bad", Channel: research.ChannelNews},
		},
		map[string]bool{}, workerpool.NewLimiter(2), 10, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SearchesExecuted)
	assert.Equal(t, 1, res.FailedSearches)
	assert.Len(t, res.Added, 1)
}

func TestDiscoverAllFailed(t *testing.T) {
	search := &fakeSearch{errs: map[string]error{
		"a": errors.New("x"),
		"b": errors.New("y"),
	}}
	d := NewDiscoverer(search, zap.NewNop())

	res, err := d.Discover(context.Background(),
		[]research.Strategy{
			{Query: "a", Channel: research.ChannelGeneral},
			{Query: "b", Channel: research.ChannelGeneral},
		},
		map[string]bool{}, workerpool.NewLimiter(2), 10, 50)
	assert.ErrorIs(t, err, ErrAllChannelsFailed)
	assert.Equal(t, 2, res.FailedSearches)
	assert.Empty(t, res.Added)
}
