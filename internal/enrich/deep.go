package enrich

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tmc-media/leadgen-cli/internal/gate"
	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/store"
	"github.com/tmc-media/leadgen-cli/pkg/browser"
	"github.com/tmc-media/leadgen-cli/pkg/pagespeed"
)

// DeepAnalyzer builds advanced outreach reports from a lead's website.
type DeepAnalyzer struct {
	store      store.Store
	gate       *gate.Gate
	session    browser.Session
	psi        pagespeed.Client
	reportsDir string
	captureDir string
	profile    string
	limiter    *rate.Limiter
}

// DeepOption configures a DeepAnalyzer.
type DeepOption func(*DeepAnalyzer)

// WithPageSpeed attaches a PageSpeed client for a fresh score per report.
func WithPageSpeed(c pagespeed.Client) DeepOption {
	return func(d *DeepAnalyzer) {
		d.psi = c
	}
}

// WithDeepDelay spaces page fetches at the given requests per second.
func WithDeepDelay(rps float64) DeepOption {
	return func(d *DeepAnalyzer) {
		d.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewDeepAnalyzer creates a DeepAnalyzer. Reports are written to
// reportsDir, page captures to captureDir.
func NewDeepAnalyzer(st store.Store, g *gate.Gate, session browser.Session, profile, reportsDir, captureDir string, opts ...DeepOption) *DeepAnalyzer {
	d := &DeepAnalyzer{
		store:      st,
		gate:       g,
		session:    session,
		profile:    profile,
		reportsDir: reportsDir,
		captureDir: captureDir,
		limiter:    rate.NewLimiter(1, 1),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Analyze builds and persists a report for one lead. The lead must have a
// website; re-analyzing replaces the previous report wholesale.
func (d *DeepAnalyzer) Analyze(ctx context.Context, leadID int64) (*model.AdvancedReport, error) {
	if d.session == nil {
		return nil, ErrSessionUnavailable
	}
	lead, err := d.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.Website == "" {
		return nil, eris.Wrapf(ErrNoWebsite, "lead %d (%s)", lead.ID, lead.Name)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	pageText, err := d.session.Navigate(ctx, lead.Website)
	if err != nil {
		return nil, eris.Wrapf(err, "deep: fetch %s", lead.Website)
	}

	capturePath := ""
	if d.captureDir != "" {
		capturePath, err = d.session.CapturePage(d.captureDir)
		if err != nil {
			zap.L().Warn("page capture failed",
				zap.Int64("lead_id", lead.ID), zap.Error(err))
			capturePath = ""
		}
	}

	findings, err := d.gate.AnalyzeForReport(ctx, d.profile, lead.Name, pageText)
	if err != nil {
		return nil, err
	}

	report := model.AdvancedReport{
		LeadID:              lead.ID,
		IdentifiedNeeds:     findings.IdentifiedNeeds,
		OutreachStrategy:    findings.OutreachStrategy,
		CriticalMissingInfo: findings.CriticalMissingInfo,
		WebsiteNotes:        findings.WebsiteNotes,
		SocialMediaLinks:    findings.SocialMediaLinks,
		ScreenshotPath:      capturePath,
		LastAnalyzed:        time.Now().UTC(),
	}

	if d.psi != nil {
		if score, err := d.psi.Score(ctx, lead.Website); err == nil {
			latest := float64(score)
			report.PSILatest = &latest
		}
	}

	if d.reportsDir != "" {
		if path, err := d.writeMarkdown(lead, report); err != nil {
			zap.L().Warn("report file write failed",
				zap.Int64("lead_id", lead.ID), zap.Error(err))
		} else {
			zap.L().Info("report written",
				zap.Int64("lead_id", lead.ID), zap.String("path", path))
		}
	}

	if err := d.store.SaveAdvancedReport(ctx, report); err != nil {
		return nil, err
	}
	return &report, nil
}

// AnalyzeBatch analyzes the given leads, isolating per-lead failures.
func (d *DeepAnalyzer) AnalyzeBatch(ctx context.Context, leadIDs []int64) (*Summary, error) {
	if d.session == nil {
		return nil, ErrSessionUnavailable
	}

	summary := &Summary{PerLead: make(map[int64]Outcome)}
	for _, id := range leadIDs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++
		if _, err := d.Analyze(ctx, id); err != nil {
			zap.L().Warn("deep analysis failed",
				zap.Int64("lead_id", id), zap.Error(err))
			summary.Failed++
			summary.PerLead[id] = OutcomeFailed
			continue
		}
		summary.Updated++
		summary.PerLead[id] = OutcomeUpdated
	}
	return summary, nil
}

// writeMarkdown renders the report to a markdown file and returns its path.
func (d *DeepAnalyzer) writeMarkdown(lead *model.Lead, r model.AdvancedReport) (string, error) {
	if err := os.MkdirAll(d.reportsDir, 0o755); err != nil {
		return "", eris.Wrap(err, "deep: create reports dir")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Outreach Report: %s\n\n", lead.Name)
	fmt.Fprintf(&sb, "Generated: %s\n\n", r.LastAnalyzed.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Website: %s\n\n", lead.Website)
	if r.PSILatest != nil {
		fmt.Fprintf(&sb, "PageSpeed score: %.0f\n\n", *r.PSILatest)
	}
	sb.WriteString("## Identified Needs\n\n")
	for _, n := range r.IdentifiedNeeds {
		fmt.Fprintf(&sb, "- %s\n", n)
	}
	sb.WriteString("\n## Outreach Strategy\n\n")
	for _, s := range r.OutreachStrategy {
		fmt.Fprintf(&sb, "- %s\n", s)
	}
	if r.CriticalMissingInfo != "" {
		fmt.Fprintf(&sb, "\n## Missing Information\n\n%s\n", r.CriticalMissingInfo)
	}
	if r.WebsiteNotes != "" {
		fmt.Fprintf(&sb, "\n## Website Notes\n\n%s\n", r.WebsiteNotes)
	}
	if len(r.SocialMediaLinks) > 0 {
		sb.WriteString("\n## Social Media\n\n")
		for platform, url := range r.SocialMediaLinks {
			fmt.Fprintf(&sb, "- %s: %s\n", platform, url)
		}
	}

	path := filepath.Join(d.reportsDir, fmt.Sprintf("lead_%d_report.md", lead.ID))
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", eris.Wrap(err, "deep: write report file")
	}
	return path, nil
}
