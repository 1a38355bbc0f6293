package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmc-media/leadgen-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, prefixLen: 15}
	return s, mock
}

func TestPostgresStore_GetLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM leads WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetLead(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLeadField(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET website = \$1 WHERE id = \$2`).
		WithArgs("https://acme.com", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.UpdateLeadField(context.Background(), 7, "website", "https://acme.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLeadField_RejectsUnknownColumn(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	_, err := s.UpdateLeadField(context.Background(), 7, "ts", "now")
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestPostgresStore_InsertLeads_SkipsKnownIdentity(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT name, COALESCE\(domain, ''\) FROM leads`).
		WillReturnRows(pgxmock.NewRows([]string{"name", "domain"}).
			AddRow("Acme Corp", "acme.com"))

	mock.ExpectExec(`INSERT INTO leads`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, skipped, err := s.InsertLeads(context.Background(), []model.Lead{
		{Name: "acme corp", Domain: "ACME.COM"},
		{Name: "Fresh Co", Domain: "fresh.io"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LeadExists_NoRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT 1 FROM leads WHERE name ILIKE \$1 AND address ILIKE \$2`).
		WithArgs("%Acme%", "123 Main Street%").
		WillReturnError(pgx.ErrNoRows)

	ok, err := s.LeadExists(context.Background(), "Acme", "123 Main Street, Springfield")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertLeads_SurfacesWriteFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT name, COALESCE\(domain, ''\) FROM leads`).
		WillReturnRows(pgxmock.NewRows([]string{"name", "domain"}))
	mock.ExpectExec(`INSERT INTO leads`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO leads`).
		WillReturnError(assert.AnError)

	inserted, _, err := s.InsertLeads(context.Background(), []model.Lead{
		{Name: "Good Co", Domain: "good.io"},
		{Name: "Bad Co", Domain: "bad.io"},
	})
	// The broken row is a storage fault, never a silent duplicate skip.
	require.Error(t, err)
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MergeDuplicates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Rows 1 and 2 collide only under Unicode folding; row 4's domain
	// matches row 1's once the scheme is stripped. The sweep keeps the
	// lowest id of each group.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, COALESCE\(domain, ''\) FROM leads`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "domain"}).
			AddRow(int64(1), "Café München", "cafe-muenchen.de").
			AddRow(int64(2), "CAFÉ MÜNCHEN", "cafe-muenchen.de").
			AddRow(int64(3), "Delta Co", "").
			AddRow(int64(4), "café münchen", "https://cafe-muenchen.de"))
	mock.ExpectExec(`DELETE FROM leads WHERE id = ANY\(\$1\)`).
		WithArgs([]int64{2, 4}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	removed, err := s.MergeDuplicates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SmartListEvaluatedIDs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT lead_id FROM smart_lists WHERE list_name = \$1`).
		WithArgs("hvac").
		WillReturnRows(pgxmock.NewRows([]string{"lead_id"}).
			AddRow(int64(1)).AddRow(int64(3)))

	ids, err := s.SmartListEvaluatedIDs(context.Background(), "hvac")
	require.NoError(t, err)
	assert.True(t, ids[1])
	assert.True(t, ids[3])
	assert.False(t, ids[2])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveEnriched_ConflictIgnored(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO enriched`).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := s.SaveEnriched(context.Background(), model.BasicEnrichment{LeadID: 9})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAdvancedReport_RoundTrip(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	analyzed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT lead_id, identified_needs, outreach_strategy`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{
			"lead_id", "identified_needs", "outreach_strategy", "critical_missing_info",
			"pagespeed_score_latest", "website_analysis_notes", "social_media_links",
			"screenshot_path", "last_analyzed_timestamp",
		}).AddRow(int64(5), []byte(`["seo"]`), []byte(`["call"]`), "none",
			(*float64)(nil), "slow site", []byte(`{}`), "", &analyzed))

	r, err := s.GetAdvancedReport(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"seo"}, r.IdentifiedNeeds)
	assert.Equal(t, []string{"call"}, r.OutreachStrategy)
	assert.Equal(t, "slow site", r.WebsiteNotes)
	assert.Equal(t, analyzed, r.LastAnalyzed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
