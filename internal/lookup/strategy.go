// Package lookup defines pluggable website search strategies. A strategy
// turns a text query into candidate URLs; the enrichment flow is
// indifferent to which backend produced them.
package lookup

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tmc-media/leadgen-cli/internal/cost"
	"github.com/tmc-media/leadgen-cli/pkg/browser"
	"github.com/tmc-media/leadgen-cli/pkg/cse"
)

// Candidate is one result returned by a strategy.
type Candidate struct {
	Title   string
	URL     string
	Snippet string
}

// Strategy searches the web for a query.
type Strategy interface {
	Name() string
	Search(ctx context.Context, query string, max int) ([]Candidate, error)
}

// CSEStrategy searches via the Google Custom Search API. Each query is
// metered to the cost log.
type CSEStrategy struct {
	client cse.Client
	costs  *cost.Logger
	calc   *cost.Calculator
}

// NewCSEStrategy creates a metered Custom Search strategy.
func NewCSEStrategy(client cse.Client, costs *cost.Logger, calc *cost.Calculator) *CSEStrategy {
	return &CSEStrategy{client: client, costs: costs, calc: calc}
}

func (s *CSEStrategy) Name() string { return "cse" }

func (s *CSEStrategy) Search(ctx context.Context, query string, max int) ([]Candidate, error) {
	items, err := s.client.Search(ctx, query, max)
	if err != nil {
		return nil, err
	}
	// A query that returned nothing still counts against quota.
	s.costs.Log("google_cse", s.calc.CSEQuery(), query)

	candidates := make([]Candidate, 0, len(items))
	for _, it := range items {
		candidates = append(candidates, Candidate{
			Title:   it.Title,
			URL:     it.Link,
			Snippet: it.Snippet,
		})
	}
	return candidates, nil
}

// BrowserStrategy searches via a browsing session. It is free, so any
// per-query failure is absorbed into an empty result rather than
// surfaced, letting the caller fall through to the next query.
type BrowserStrategy struct {
	session browser.Session
}

// NewBrowserStrategy creates a browser-backed strategy.
func NewBrowserStrategy(session browser.Session) *BrowserStrategy {
	return &BrowserStrategy{session: session}
}

func (s *BrowserStrategy) Name() string { return "browser" }

func (s *BrowserStrategy) Search(ctx context.Context, query string, max int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results, err := s.session.Search(ctx, query, max)
	if err != nil {
		zap.L().Warn("browser search failed",
			zap.String("query", query),
			zap.Error(err),
		)
		return nil, nil
	}
	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, Candidate{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Snippet,
		})
	}
	return candidates, nil
}

// Throttled wraps a strategy with a courtesy rate limit.
type Throttled struct {
	inner   Strategy
	limiter *rate.Limiter
}

// NewThrottled wraps a strategy, holding each query until the limiter
// admits it.
func NewThrottled(inner Strategy, rps float64) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (t *Throttled) Name() string { return t.inner.Name() }

func (t *Throttled) Search(ctx context.Context, query string, max int) ([]Candidate, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.Search(ctx, query, max)
}
