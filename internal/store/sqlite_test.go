package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmc-media/leadgen-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func bizLead(name, domain string) model.Lead {
	return model.Lead{
		RecordType: model.RecordTypeBusiness,
		Source:     "test",
		Name:       name,
		Domain:     domain,
	}
}

func TestInsertLeadsDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, skipped, err := s.InsertLeads(ctx, []model.Lead{
		bizLead("Acme Corp", "acme.com"),
		bizLead("Beta LLC", "beta.io"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 0, skipped)

	// Same batch again: everything already present.
	inserted, skipped, err = s.InsertLeads(ctx, []model.Lead{
		bizLead("Acme Corp", "acme.com"),
		bizLead("Beta LLC", "beta.io"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 2, skipped)

	n, err := s.CountLeads(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInsertLeadsCaseAndWhitespaceCollision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, skipped, err := s.InsertLeads(ctx, []model.Lead{
		bizLead("Acme Corp", "acme.com"),
		bizLead("  acme corp ", "ACME.COM"),
		bizLead("acme corp", "https://www.acme.com/about"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 2, skipped)
}

func TestInsertLeadsEmptyDomain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two same-name rows without domains collapse to one; a same-name row
	// with a domain is a distinct identity.
	inserted, skipped, err := s.InsertLeads(ctx, []model.Lead{
		bizLead("Gamma Inc", ""),
		bizLead("gamma inc", ""),
		bizLead("Gamma Inc", "gamma.dev"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 1, skipped)
}

func TestInsertLeadsSkipsBlankName(t *testing.T) {
	s := newTestStore(t)

	inserted, skipped, err := s.InsertLeads(context.Background(), []model.Lead{
		bizLead("   ", "nameless.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 1, skipped)
}

func TestUpdateLeadField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.InsertLeads(ctx, []model.Lead{bizLead("Acme Corp", "")})
	require.NoError(t, err)
	leads, err := s.ListLeads(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	id := leads[0].ID

	ok, err := s.UpdateLeadField(ctx, id, "website", "https://acme.com")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetLead(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com", got.Website)

	// Unknown lead id: no rows touched, no error.
	ok, err = s.UpdateLeadField(ctx, 99999, "website", "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateLeadFieldRejectsUnknownColumn(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpdateLeadField(context.Background(), 1, "id", "7")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = s.UpdateLeadField(context.Background(), 1, "name; DROP TABLE leads", "x")
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestMergeDuplicatesTwoPhase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Insert raw rows directly so we can stage duplicates that the insert
	// path would normally reject.
	for _, row := range []struct {
		name, domain string
	}{
		{"Acme Corp", "acme.com"},
		{"acme corp", "acme.com"},
		{"Acme Corp", "acme.org"},
		{"Delta Co", ""},
		{"delta co", ""},
	} {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO leads (ts, name, domain) VALUES ('2026-01-01T00:00:00Z', ?, ?)`,
			row.name, row.domain)
		require.NoError(t, err)
	}

	removed, err := s.MergeDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	leads, err := s.ListLeads(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, leads, 3)

	// Survivors keep the lowest id in each group.
	byDomain := map[string]int64{}
	for _, l := range leads {
		byDomain[l.Domain] = l.ID
	}
	assert.Equal(t, int64(1), byDomain["acme.com"])
	assert.Equal(t, int64(3), byDomain["acme.org"])
	assert.Equal(t, int64(4), byDomain[""])
}

func TestMergeDuplicatesFoldsLikeInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// These pairs collide only under the insert path's normalization:
	// Unicode case folding for the names, scheme stripping for the
	// domains. An ASCII-lowercase sweep would leave them all in place.
	for _, row := range []struct {
		name, domain string
	}{
		{"Café München", "cafe-muenchen.de"},
		{"CAFÉ MÜNCHEN", "https://cafe-muenchen.de"},
		{"Żabka Express", ""},
		{"żabka express", ""},
	} {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO leads (ts, name, domain) VALUES ('2026-01-01T00:00:00Z', ?, ?)`,
			row.name, row.domain)
		require.NoError(t, err)
	}

	removed, err := s.MergeDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	leads, err := s.ListLeads(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, leads, 2)
	for _, l := range leads {
		assert.Contains(t, []int64{1, 3}, l.ID)
	}
}

func TestLeadExistsAddressPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (ts, name, address) VALUES ('2026-01-01T00:00:00Z', 'Acme Corp', '123 Main Street, Springfield')`)
	require.NoError(t, err)

	ok, err := s.LeadExists(ctx, "Acme", "123 Main Street, Apt 4")
	require.NoError(t, err)
	assert.True(t, ok, "first 15 address chars match")

	ok, err = s.LeadExists(ctx, "Acme", "456 Oak Avenue")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.LeadExists(ctx, "", "123 Main Street")
	require.NoError(t, err)
	assert.False(t, ok, "blank name never matches")
}

func TestLeadsMissingContactOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	complete := bizLead("Full Co", "full.com")
	complete.Website = "https://full.com"
	complete.Phone = "555-0100"
	complete.Email = "hi@full.com"
	complete.Address = "1 Full Way"

	_, _, err := s.InsertLeads(ctx, []model.Lead{
		bizLead("Older Gap", "older.com"),
		complete,
		bizLead("Newer Gap", "newer.com"),
	})
	require.NoError(t, err)

	leads, err := s.LeadsMissingContact(ctx, 10)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "Newer Gap", leads[0].Name, "newest first")
	assert.Equal(t, "Older Gap", leads[1].Name)

	leads, err = s.LeadsMissingContact(ctx, 1)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Newer Gap", leads[0].Name)
}

func TestUnenrichedLeads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.InsertLeads(ctx, []model.Lead{
		bizLead("Has Domain", "has.com"),
		bizLead("No Domain", ""),
		bizLead("Enriched Co", "done.com"),
	})
	require.NoError(t, err)

	leads, err := s.ListLeads(ctx, Filter{Domain: "done.com"})
	require.NoError(t, err)
	require.Len(t, leads, 1)

	psi := 87
	require.NoError(t, s.SaveEnriched(ctx, model.BasicEnrichment{
		LeadID: leads[0].ID, PSI: &psi, PublicEmails: "a@done.com", Pattern: "{first}@done.com",
	}))

	pending, err := s.UnenrichedLeads(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Has Domain", pending[0].Name)

	// Re-saving is a no-op, not an error.
	require.NoError(t, s.SaveEnriched(ctx, model.BasicEnrichment{LeadID: leads[0].ID}))
}

func TestAdvancedReportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.InsertLeads(ctx, []model.Lead{bizLead("Report Co", "report.com")})
	require.NoError(t, err)
	leads, err := s.ListLeads(ctx, Filter{})
	require.NoError(t, err)
	id := leads[0].ID

	psi := 42.0
	require.NoError(t, s.SaveAdvancedReport(ctx, model.AdvancedReport{
		LeadID:           id,
		IdentifiedNeeds:  []string{"faster site"},
		OutreachStrategy: []string{"lead with performance audit"},
		PSILatest:        &psi,
		SocialMediaLinks: map[string]string{"linkedin": "https://linkedin.com/company/report"},
	}))

	// Saving again replaces wholesale.
	require.NoError(t, s.SaveAdvancedReport(ctx, model.AdvancedReport{
		LeadID:          id,
		IdentifiedNeeds: []string{"seo"},
		WebsiteNotes:    "outdated stack",
	}))

	r, err := s.GetAdvancedReport(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"seo"}, r.IdentifiedNeeds)
	assert.Equal(t, "outdated stack", r.WebsiteNotes)
	assert.Nil(t, r.PSILatest, "replaced report drops the old score")
	assert.Empty(t, r.SocialMediaLinks)

	_, err = s.GetAdvancedReport(ctx, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSmartListRecordAndMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.InsertLeads(ctx, []model.Lead{
		bizLead("Match Co", "m.com"),
		bizLead("Miss Co", "x.com"),
	})
	require.NoError(t, err)
	leads, err := s.ListLeads(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, leads, 2)

	var matchID, missID int64
	for _, l := range leads {
		if l.Name == "Match Co" {
			matchID = l.ID
		} else {
			missID = l.ID
		}
	}

	require.NoError(t, s.RecordSmartListEval(ctx, model.SmartListEntry{
		ListName: "hvac", LeadID: matchID, Matched: true, Category: "hvac contractor",
	}))
	require.NoError(t, s.RecordSmartListEval(ctx, model.SmartListEntry{
		ListName: "hvac", LeadID: missID, Matched: false, Justification: "wrong industry",
	}))

	// Both evaluated rows count for resume purposes.
	ids, err := s.SmartListEvaluatedIDs(ctx, "hvac")
	require.NoError(t, err)
	assert.True(t, ids[matchID])
	assert.True(t, ids[missID])

	// Only positive verdicts are members.
	members, err := s.SmartListMembers(ctx, "hvac")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, matchID, members[0].LeadID)
	assert.Equal(t, "hvac contractor", members[0].Category)

	// Re-recording the same pair is ignored.
	require.NoError(t, s.RecordSmartListEval(ctx, model.SmartListEntry{
		ListName: "hvac", LeadID: matchID, Matched: true,
	}))
	members, err = s.SmartListMembers(ctx, "hvac")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	names, err := s.SmartListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hvac"}, names)
}

func TestListLeadsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	withSite := bizLead("Site Co", "site.com")
	withSite.Website = "https://site.com"
	withSite.Phone = "555-0101"

	_, _, err := s.InsertLeads(ctx, []model.Lead{
		withSite,
		bizLead("Bare Co", "bare.com"),
	})
	require.NoError(t, err)

	yes, no := true, false

	leads, err := s.ListLeads(ctx, Filter{HasWebsite: &yes})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Site Co", leads[0].Name)

	leads, err = s.ListLeads(ctx, Filter{HasPhone: &no})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Bare Co", leads[0].Name)

	n, err := s.CountLeads(ctx, Filter{Name: "co"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeleteLeads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.InsertLeads(ctx, []model.Lead{
		bizLead("A", "a.com"), bizLead("B", "b.com"), bizLead("C", "c.com"),
	})
	require.NoError(t, err)

	leads, err := s.ListLeads(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, leads, 3)

	n, err := s.DeleteLeads(ctx, []int64{leads[0].ID, leads[1].ID, 99999})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := s.CountLeads(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}
