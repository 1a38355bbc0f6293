package enrich

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tmc-media/leadgen-cli/internal/cost"
	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/store"
	"github.com/tmc-media/leadgen-cli/pkg/hunter"
	"github.com/tmc-media/leadgen-cli/pkg/pagespeed"
)

// BasicRunner performs domain-keyed enrichment: a PageSpeed score and the
// public emails published for the domain. Results are saved even when
// empty so a lead is never re-enriched.
type BasicRunner struct {
	store    store.Store
	psi      pagespeed.Client
	hunter   hunter.Client
	costs    *cost.Logger
	calc     *cost.Calculator
	limiter  *rate.Limiter
	progress ProgressFunc
}

// BasicOption configures a BasicRunner.
type BasicOption func(*BasicRunner)

// WithBasicDelay spaces leads at the given requests per second.
func WithBasicDelay(rps float64) BasicOption {
	return func(r *BasicRunner) {
		r.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithBasicProgress attaches a progress observer.
func WithBasicProgress(fn ProgressFunc) BasicOption {
	return func(r *BasicRunner) {
		r.progress = fn
	}
}

// NewBasicRunner creates a BasicRunner. Either client may be nil; the
// corresponding field is simply left empty.
func NewBasicRunner(st store.Store, psi pagespeed.Client, hc hunter.Client, costs *cost.Logger, calc *cost.Calculator, opts ...BasicOption) *BasicRunner {
	r := &BasicRunner{
		store:   st,
		psi:     psi,
		hunter:  hc,
		costs:   costs,
		calc:    calc,
		limiter: rate.NewLimiter(2, 1),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run enriches every lead that has a domain but no enrichment row.
func (r *BasicRunner) Run(ctx context.Context) (*Summary, error) {
	leads, err := r.store.UnenrichedLeads(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{PerLead: make(map[int64]Outcome)}
	for i, lead := range leads {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		outcome := r.runOne(ctx, lead)
		summary.Processed++
		summary.PerLead[lead.ID] = outcome
		switch outcome {
		case OutcomeUpdated:
			summary.Updated++
		case OutcomeNoNewData:
			summary.NoNewData++
		case OutcomeFailed:
			summary.Failed++
		}
		if r.progress != nil {
			r.progress(Progress{
				LeadID: lead.ID, Name: lead.Name,
				Index: i + 1, Total: len(leads), Outcome: outcome,
			})
		}
	}
	return summary, nil
}

func (r *BasicRunner) runOne(ctx context.Context, lead model.Lead) Outcome {
	enrichment := model.BasicEnrichment{LeadID: lead.ID}
	gotData := false

	if r.psi != nil && lead.Website != "" {
		score, err := r.psi.Score(ctx, lead.Website)
		if err != nil {
			zap.L().Warn("pagespeed failed",
				zap.Int64("lead_id", lead.ID),
				zap.String("website", lead.Website),
				zap.Error(err))
		} else {
			enrichment.PSI = &score
			gotData = true
		}
	}

	if r.hunter != nil && lead.Domain != "" {
		result, err := r.hunter.DomainSearch(ctx, lead.Domain)
		if err != nil {
			zap.L().Warn("hunter failed",
				zap.Int64("lead_id", lead.ID),
				zap.String("domain", lead.Domain),
				zap.Error(err))
		} else {
			r.costs.Log("hunter", r.calc.HunterQuery(), lead.Domain)
			var emails []string
			for _, e := range result.Emails {
				emails = append(emails, e.Value)
			}
			enrichment.PublicEmails = strings.Join(emails, ", ")
			enrichment.Pattern = result.Pattern
			if enrichment.PublicEmails != "" || enrichment.Pattern != "" {
				gotData = true
			}
		}
	}

	// Save even an empty result: the lead is marked done either way.
	if err := r.store.SaveEnriched(ctx, enrichment); err != nil {
		zap.L().Error("save enrichment failed",
			zap.Int64("lead_id", lead.ID), zap.Error(err))
		return OutcomeFailed
	}
	if gotData {
		return OutcomeUpdated
	}
	return OutcomeNoNewData
}
