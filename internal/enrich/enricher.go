// Package enrich orchestrates lead enrichment: finding official websites,
// filling contact fields, basic domain enrichment, and deep analysis
// reports. Every write is committed immediately so an interrupted run
// keeps its progress.
package enrich

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tmc-media/leadgen-cli/internal/gate"
	"github.com/tmc-media/leadgen-cli/internal/lookup"
	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/store"
	"github.com/tmc-media/leadgen-cli/pkg/browser"
)

// Outcome classifies what happened to one lead in a batch.
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeNoNewData Outcome = "no_new_data"
	OutcomeFailed    Outcome = "failed"
)

// Summary tallies a batch run.
type Summary struct {
	Processed int
	Updated   int
	NoNewData int
	Failed    int
	PerLead   map[int64]Outcome
}

// Progress reports one completed lead to the caller.
type Progress struct {
	LeadID  int64
	Name    string
	Index   int
	Total   int
	Outcome Outcome
}

// ProgressFunc observes batch progress. May be nil.
type ProgressFunc func(Progress)

// Enricher runs enrichment batches against a store.
type Enricher struct {
	store    store.Store
	gate     *gate.Gate
	strategy lookup.Strategy
	session  browser.Session

	limiter       *rate.Limiter
	candidatesPer int
	selectLimit   int
	progress      ProgressFunc
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithSession attaches a browsing session for page fetches.
func WithSession(s browser.Session) Option {
	return func(e *Enricher) {
		e.session = s
	}
}

// WithCourtesyDelay spaces candidate page fetches at the given requests
// per second.
func WithCourtesyDelay(rps float64) Option {
	return func(e *Enricher) {
		e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithCandidatesPerQuery sets how many results each query considers.
func WithCandidatesPerQuery(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.candidatesPer = n
		}
	}
}

// WithSelectLimit caps how many incomplete leads a batch selects.
func WithSelectLimit(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.selectLimit = n
		}
	}
}

// WithProgress attaches a progress observer.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Enricher) {
		e.progress = fn
	}
}

// New creates an Enricher.
func New(st store.Store, g *gate.Gate, strategy lookup.Strategy, opts ...Option) *Enricher {
	e := &Enricher{
		store:         st,
		gate:          g,
		strategy:      strategy,
		limiter:       rate.NewLimiter(1, 1),
		candidatesPer: 3,
		selectLimit:   100,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// queryVariants builds search queries from most to least specific.
func queryVariants(l *model.Lead) []string {
	var variants []string
	if l.Address != "" {
		variants = append(variants, fmt.Sprintf("%q %q official website", l.Name, l.Address))
	}
	variants = append(variants, fmt.Sprintf("%q official website", l.Name))
	return variants
}

// FindFill selects leads missing any contact field and runs the full
// find-and-fill flow on each: website discovery, then contact extraction
// from the confirmed site. Per-lead failures are recorded and the batch
// continues.
func (e *Enricher) FindFill(ctx context.Context) (*Summary, error) {
	if e.session == nil {
		return nil, ErrSessionUnavailable
	}

	leads, err := e.store.LeadsMissingContact(ctx, e.selectLimit)
	if err != nil {
		return nil, err
	}

	summary := &Summary{PerLead: make(map[int64]Outcome)}
	for i, stale := range leads {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		outcome := e.findFillOne(ctx, stale.ID)
		summary.Processed++
		summary.PerLead[stale.ID] = outcome
		switch outcome {
		case OutcomeUpdated:
			summary.Updated++
		case OutcomeNoNewData:
			summary.NoNewData++
		case OutcomeFailed:
			summary.Failed++
		}
		if e.progress != nil {
			e.progress(Progress{
				LeadID:  stale.ID,
				Name:    stale.Name,
				Index:   i + 1,
				Total:   len(leads),
				Outcome: outcome,
			})
		}
	}
	return summary, nil
}

// findFillOne processes a single lead. It re-reads the record first so a
// concurrent edit between selection and processing is respected.
func (e *Enricher) findFillOne(ctx context.Context, leadID int64) Outcome {
	lead, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		zap.L().Warn("lead vanished before processing",
			zap.Int64("lead_id", leadID), zap.Error(err))
		return OutcomeFailed
	}

	updated := false

	if lead.Website == "" {
		site, err := e.findWebsite(ctx, lead)
		if err != nil {
			zap.L().Warn("website discovery failed",
				zap.Int64("lead_id", lead.ID),
				zap.String("name", lead.Name),
				zap.Error(err))
			return OutcomeFailed
		}
		if site != "" {
			if err := e.commitWebsite(ctx, lead, site); err != nil {
				zap.L().Error("website commit failed",
					zap.Int64("lead_id", lead.ID), zap.Error(err))
				return OutcomeFailed
			}
			lead.Website = site
			lead.Domain = model.DomainFromURL(site)
			updated = true
		}
	}

	// Contact extraction only runs against a known website. When discovery
	// found nothing there is no page to trust.
	if lead.Website != "" {
		wrote, err := e.fillContact(ctx, lead)
		if err != nil {
			zap.L().Warn("contact extraction failed",
				zap.Int64("lead_id", lead.ID), zap.Error(err))
			return OutcomeFailed
		}
		updated = updated || wrote
	}

	if updated {
		return OutcomeUpdated
	}
	return OutcomeNoNewData
}

// findWebsite runs query variants most-specific first, validating each
// candidate until one is accepted. Candidates are judged on their search
// metadata alone; no page is fetched before acceptance. A failed lookup
// counts the same as an empty one and the next variant is tried. Returns
// the accepted URL, or empty when no candidate survives the gate.
func (e *Enricher) findWebsite(ctx context.Context, lead *model.Lead) (string, error) {
	for _, query := range queryVariants(lead) {
		candidates, err := e.strategy.Search(ctx, query, e.candidatesPer)
		if err != nil {
			zap.L().Warn("lookup query failed, trying next variant",
				zap.Int64("lead_id", lead.ID),
				zap.String("query", query),
				zap.Error(err))
			continue
		}
		for _, cand := range candidates {
			if err := e.limiter.Wait(ctx); err != nil {
				return "", err
			}
			ok, err := e.gate.ValidateWebsite(ctx, lead.Name, lead.Address, gate.SiteCandidate{
				Title:   cand.Title,
				URL:     cand.URL,
				Snippet: cand.Snippet,
			})
			if err != nil {
				return "", err
			}
			if ok {
				zap.L().Info("website accepted",
					zap.Int64("lead_id", lead.ID),
					zap.String("name", lead.Name),
					zap.String("url", cand.URL),
					zap.String("query", query))
				return cand.URL, nil
			}
		}
	}
	return "", nil
}

// commitWebsite writes the accepted website and its derived domain.
func (e *Enricher) commitWebsite(ctx context.Context, lead *model.Lead, site string) error {
	if _, err := e.store.UpdateLeadField(ctx, lead.ID, "website", site); err != nil {
		return err
	}
	if _, err := e.store.UpdateLeadField(ctx, lead.ID, "domain", model.DomainFromURL(site)); err != nil {
		return err
	}
	return nil
}

// contactLinkTexts are tried in order when hunting for a contact page.
var contactLinkTexts = []string{"contact", "about", "connect"}

// fillContact extracts contact fields from the lead's website and writes
// each one only when the record does not already carry it. It prefers a
// dedicated contact or about page reached by link text, falling back to
// the homepage when no such link exists.
func (e *Enricher) fillContact(ctx context.Context, lead *model.Lead) (bool, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return false, err
	}
	pageText, err := e.session.Navigate(ctx, lead.Website)
	if err != nil {
		return false, err
	}
	for _, linkText := range contactLinkTexts {
		text, err := e.session.FindAndFollow(ctx, linkText)
		if err != nil {
			continue
		}
		pageText = text
		break
	}

	details, err := e.gate.ExtractContact(ctx, lead.Name, pageText)
	if err != nil {
		return false, err
	}

	wrote := false
	accept := func(field, current string, value *string) error {
		if current != "" || value == nil || *value == "" {
			return nil
		}
		if _, err := e.store.UpdateLeadField(ctx, lead.ID, field, *value); err != nil {
			return err
		}
		wrote = true
		return nil
	}
	if err := accept("phone", lead.Phone, details.Phone); err != nil {
		return wrote, err
	}
	if err := accept("email", lead.Email, details.Email); err != nil {
		return wrote, err
	}
	if err := accept("address", lead.Address, details.Address); err != nil {
		return wrote, err
	}
	return wrote, nil
}

// FindWebsites runs website discovery only, leaving contact fields alone.
func (e *Enricher) FindWebsites(ctx context.Context) (*Summary, error) {
	if e.session == nil {
		return nil, ErrSessionUnavailable
	}

	yes := false
	leads, err := e.store.ListLeads(ctx, store.Filter{HasWebsite: &yes, Limit: e.selectLimit})
	if err != nil {
		return nil, err
	}

	summary := &Summary{PerLead: make(map[int64]Outcome)}
	for i, stale := range leads {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		outcome := e.findWebsiteOne(ctx, stale.ID)
		summary.Processed++
		summary.PerLead[stale.ID] = outcome
		switch outcome {
		case OutcomeUpdated:
			summary.Updated++
		case OutcomeNoNewData:
			summary.NoNewData++
		case OutcomeFailed:
			summary.Failed++
		}
		if e.progress != nil {
			e.progress(Progress{
				LeadID: stale.ID, Name: stale.Name,
				Index: i + 1, Total: len(leads), Outcome: outcome,
			})
		}
	}
	return summary, nil
}

func (e *Enricher) findWebsiteOne(ctx context.Context, leadID int64) Outcome {
	lead, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		return OutcomeFailed
	}
	if lead.Website != "" {
		return OutcomeNoNewData
	}
	site, err := e.findWebsite(ctx, lead)
	if err != nil {
		zap.L().Warn("website discovery failed",
			zap.Int64("lead_id", lead.ID), zap.Error(err))
		return OutcomeFailed
	}
	if site == "" {
		return OutcomeNoNewData
	}
	if err := e.commitWebsite(ctx, lead, site); err != nil {
		return OutcomeFailed
	}
	return OutcomeUpdated
}
