// Package store provides persistent storage for leads and their derived
// enrichment records, and enforces the identity invariants the rest of the
// system depends on.
package store

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/tmc-media/leadgen-cli/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrInvalidField is returned by UpdateLeadField for a column outside the
// allow-list.
var ErrInvalidField = eris.New("store: field not updatable")

// updatableFields is the explicit allow-list for single-field lead updates.
// Everything else (id, ts, lat, lng) is immutable or set only at insert.
var updatableFields = map[string]bool{
	"name":          true,
	"title":         true,
	"linkedin":      true,
	"website":       true,
	"phone":         true,
	"email":         true,
	"domain":        true,
	"address":       true,
	"record_type":   true,
	"source":        true,
	"business_type": true,
}

// Filter selects a subset of leads. String fields are substring matches;
// the Has* tristates filter on field presence.
type Filter struct {
	Name         string `json:"name,omitempty"`
	Domain       string `json:"domain,omitempty"`
	Source       string `json:"source,omitempty"`
	Address      string `json:"address,omitempty"`
	BusinessType string `json:"business_type,omitempty"`
	Website      string `json:"website,omitempty"`
	HasPhone     *bool  `json:"has_phone,omitempty"`
	HasWebsite   *bool  `json:"has_website,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Leads
	InsertLeads(ctx context.Context, leads []model.Lead) (inserted, skipped int, err error)
	UpdateLeadField(ctx context.Context, leadID int64, field, value string) (bool, error)
	GetLead(ctx context.Context, leadID int64) (*model.Lead, error)
	ListLeads(ctx context.Context, f Filter) ([]model.Lead, error)
	CountLeads(ctx context.Context, f Filter) (int, error)
	DeleteLeads(ctx context.Context, leadIDs []int64) (int, error)
	LeadsMissingContact(ctx context.Context, limit int) ([]model.Lead, error)
	LeadExists(ctx context.Context, name, address string) (bool, error)
	MergeDuplicates(ctx context.Context) (int, error)

	// Basic enrichment
	UnenrichedLeads(ctx context.Context) ([]model.Lead, error)
	SaveEnriched(ctx context.Context, e model.BasicEnrichment) error

	// Advanced reports
	SaveAdvancedReport(ctx context.Context, r model.AdvancedReport) error
	GetAdvancedReport(ctx context.Context, leadID int64) (*model.AdvancedReport, error)

	// Smart lists
	RecordSmartListEval(ctx context.Context, e model.SmartListEntry) error
	SmartListEvaluatedIDs(ctx context.Context, listName string) (map[int64]bool, error)
	SmartListMembers(ctx context.Context, listName string) ([]model.SmartListEntry, error)
	SmartListNames(ctx context.Context) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// dedupIndex is the in-memory duplicate check used by the bulk insert path.
// Preloaded once per batch so insert-time dedup never re-queries storage
// per candidate.
type dedupIndex struct {
	withDomain    map[[2]string]bool // (normalized name, normalized domain)
	withoutDomain map[string]bool    // normalized name, empty-domain keyspace
}

func newDedupIndex() *dedupIndex {
	return &dedupIndex{
		withDomain:    make(map[[2]string]bool),
		withoutDomain: make(map[string]bool),
	}
}

func (d *dedupIndex) add(name, domain string) {
	if domain != "" {
		d.withDomain[[2]string{name, domain}] = true
	} else {
		d.withoutDomain[name] = true
	}
}

func (d *dedupIndex) has(name, domain string) bool {
	if domain != "" {
		return d.withDomain[[2]string{name, domain}]
	}
	return d.withoutDomain[name]
}

// mergeKey is one row of the duplicate sweep's working set.
type mergeKey struct {
	id     int64
	name   string
	domain string
}

// mergeVictims computes the ids the two-phase duplicate sweep removes,
// using the same normalization as the insert path so the two dedup paths
// can never disagree on identity. Domain-keyed groups collapse first;
// rows whose domain normalizes to empty collapse on name alone. The
// lowest id of each group survives.
func mergeVictims(rows []mergeKey) []int64 {
	domainGroups := make(map[[2]string][]int64)
	bareGroups := make(map[string][]int64)
	for _, r := range rows {
		name := model.NormalizeName(r.name)
		if name == "" {
			continue
		}
		if domain := model.NormalizeDomain(r.domain); domain != "" {
			key := [2]string{name, domain}
			domainGroups[key] = append(domainGroups[key], r.id)
		} else {
			bareGroups[name] = append(bareGroups[name], r.id)
		}
	}

	var victims []int64
	collapse := func(ids []int64) {
		if len(ids) < 2 {
			return
		}
		keep := ids[0]
		for _, id := range ids[1:] {
			if id < keep {
				keep = id
			}
		}
		for _, id := range ids {
			if id != keep {
				victims = append(victims, id)
			}
		}
	}
	for _, ids := range domainGroups {
		collapse(ids)
	}
	for _, ids := range bareGroups {
		collapse(ids)
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i] < victims[j] })
	return victims
}
