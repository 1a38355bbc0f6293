// Package smartlist builds criteria-driven lead lists. Every lead is
// evaluated at most once per list: evaluations are recorded whether the
// verdict is positive or negative, and recorded leads are skipped on
// later runs.
package smartlist

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tmc-media/leadgen-cli/internal/gate"
	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/store"
)

// Summary tallies one build run.
type Summary struct {
	Evaluated int
	Matched   int
	Skipped   int
	Failed    int
}

// ProgressFunc observes per-lead progress. May be nil.
type ProgressFunc func(leadID int64, name string, index, total int)

// Builder evaluates leads against list criteria through the gate.
type Builder struct {
	store    store.Store
	gate     *gate.Gate
	limiter  *rate.Limiter
	progress ProgressFunc
}

// Option configures a Builder.
type Option func(*Builder)

// WithProgress attaches a progress observer.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) {
		b.progress = fn
	}
}

// WithCourtesyDelay spaces classification calls at the given requests
// per second.
func WithCourtesyDelay(rps float64) Option {
	return func(b *Builder) {
		b.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// New creates a Builder.
func New(st store.Store, g *gate.Gate, opts ...Option) *Builder {
	b := &Builder{
		store:   st,
		gate:    g,
		limiter: rate.NewLimiter(1, 1),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// leadDetails summarizes a lead for the classification prompt.
func leadDetails(l model.Lead) string {
	var parts []string
	add := func(label, v string) {
		if v != "" {
			parts = append(parts, label+": "+v)
		}
	}
	add("type", l.BusinessType)
	add("website", l.Website)
	add("address", l.Address)
	add("source", l.Source)
	return strings.Join(parts, "; ")
}

// Build evaluates every lead matching the filter against the criteria and
// records each verdict under listName. Already-evaluated leads cost
// nothing.
func (b *Builder) Build(ctx context.Context, listName, criteria string, filter store.Filter) (*Summary, error) {
	if listName == "" || criteria == "" {
		return nil, eris.New("smartlist: list name and criteria are required")
	}

	evaluated, err := b.store.SmartListEvaluatedIDs(ctx, listName)
	if err != nil {
		return nil, err
	}

	leads, err := b.store.ListLeads(ctx, filter)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for i, lead := range leads {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if evaluated[lead.ID] {
			summary.Skipped++
			continue
		}
		if b.progress != nil {
			b.progress(lead.ID, lead.Name, i+1, len(leads))
		}
		if err := b.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		verdict, err := b.gate.ClassifyForList(ctx, criteria, lead.Name, leadDetails(lead))
		if err != nil {
			zap.L().Warn("smart list classification failed",
				zap.String("list", listName),
				zap.Int64("lead_id", lead.ID),
				zap.Error(err))
			summary.Failed++
			continue
		}

		entry := model.SmartListEntry{
			ListName:      listName,
			LeadID:        lead.ID,
			Matched:       verdict.Match,
			Category:      verdict.Category,
			Justification: verdict.Justification,
			Timestamp:     time.Now().UTC(),
		}
		if err := b.store.RecordSmartListEval(ctx, entry); err != nil {
			zap.L().Error("smart list record failed",
				zap.String("list", listName),
				zap.Int64("lead_id", lead.ID),
				zap.Error(err))
			summary.Failed++
			continue
		}

		summary.Evaluated++
		if verdict.Match {
			summary.Matched++
		}
	}
	return summary, nil
}

// Members returns the leads that matched a list, joined to their records.
func (b *Builder) Members(ctx context.Context, listName string) ([]model.Lead, []model.SmartListEntry, error) {
	entries, err := b.store.SmartListMembers(ctx, listName)
	if err != nil {
		return nil, nil, err
	}
	var leads []model.Lead
	for _, e := range entries {
		lead, err := b.store.GetLead(ctx, e.LeadID)
		if err != nil {
			// Lead deleted since evaluation; the entry alone still shows
			// in the second return value.
			continue
		}
		leads = append(leads, *lead)
	}
	return leads, entries, nil
}
