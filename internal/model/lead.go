// Package model defines the core entities of the lead store and the
// normalization rules shared by the dedup paths.
package model

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// RecordType distinguishes person leads from business leads.
type RecordType string

const (
	RecordTypePerson   RecordType = "person"
	RecordTypeBusiness RecordType = "business"
)

// Lead is the central entity of the store. ID and TS are assigned at insert
// time and never change afterwards.
type Lead struct {
	ID           int64      `json:"id"`
	TS           time.Time  `json:"ts"`
	RecordType   RecordType `json:"record_type,omitempty"`
	Source       string     `json:"source,omitempty"`
	Name         string     `json:"name"`
	Title        string     `json:"title,omitempty"`
	LinkedIn     string     `json:"linkedin,omitempty"`
	Website      string     `json:"website,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Email        string     `json:"email,omitempty"`
	Domain       string     `json:"domain,omitempty"`
	Lat          *float64   `json:"lat,omitempty"`
	Lng          *float64   `json:"lng,omitempty"`
	Address      string     `json:"address,omitempty"`
	BusinessType string     `json:"business_type,omitempty"`
}

// BasicEnrichment is the result of the non-AI enrichment pass. A row exists
// per lead once the pass has run, even when every field came back empty;
// presence of the row is what stops the pass from re-running.
type BasicEnrichment struct {
	LeadID       int64   `json:"lead_id"`
	PSI          *int    `json:"psi,omitempty"`
	PublicEmails string  `json:"public_emails,omitempty"`
	Pattern      string  `json:"pattern,omitempty"`
}

// AdvancedReport is the output of the deep analysis agent. Re-running the
// agent replaces the whole report, never a field at a time.
type AdvancedReport struct {
	LeadID              int64             `json:"lead_id"`
	IdentifiedNeeds     []string          `json:"identified_needs"`
	OutreachStrategy    []string          `json:"outreach_strategy"`
	CriticalMissingInfo string            `json:"critical_missing_info,omitempty"`
	PSILatest           *float64          `json:"pagespeed_score_latest,omitempty"`
	WebsiteNotes        string            `json:"website_analysis_notes,omitempty"`
	SocialMediaLinks    map[string]string `json:"social_media_links,omitempty"`
	ScreenshotPath      string            `json:"screenshot_path,omitempty"`
	LastAnalyzed        time.Time         `json:"last_analyzed_timestamp"`
}

// SmartListEntry records one LLM evaluation of a lead against a named list.
// Matched=false rows exist so a rebuild never re-spends an LLM call on a
// lead that was already rejected.
type SmartListEntry struct {
	ListName      string    `json:"list_name"`
	LeadID        int64     `json:"lead_id"`
	Matched       bool      `json:"matched"`
	Category      string    `json:"ai_category,omitempty"`
	Justification string    `json:"ai_justification,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

var foldCaser = cases.Fold()

// NormalizeName canonicalizes a lead name for identity comparison:
// trim then Unicode case-fold.
func NormalizeName(name string) string {
	return foldCaser.String(strings.TrimSpace(name))
}

// NormalizeDomain canonicalizes a domain for identity comparison. Accepts
// bare domains, host/path fragments, and full URLs; strips scheme, leading
// "www.", path, and port before folding.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(domain)
	if d == "" {
		return ""
	}
	if strings.Contains(d, "://") {
		if u, err := url.Parse(d); err == nil && u.Host != "" {
			d = u.Host
		}
	}
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	if i := strings.IndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	return foldCaser.String(d)
}

// DomainFromURL derives the dedup-normalized domain for a website URL.
// Returns "" when no host can be extracted.
func DomainFromURL(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	return NormalizeDomain(u.Host)
}

// IdentityKey returns the uniqueness key for a lead: normalized
// (name, domain) when a domain is present, normalized name alone otherwise.
// The two keyspaces never collide because the domain half is empty in the
// second form.
func (l Lead) IdentityKey() (name, domain string) {
	return NormalizeName(l.Name), NormalizeDomain(l.Domain)
}
