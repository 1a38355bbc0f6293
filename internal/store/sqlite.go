package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tmc-media/leadgen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db        *sql.DB
	prefixLen int
}

// SQLiteOption configures the SQLite store.
type SQLiteOption func(*SQLiteStore)

// WithExistsPrefixLen sets how many leading address characters LeadExists
// matches on. The default mirrors the historical 15-character heuristic.
func WithExistsPrefixLen(n int) SQLiteOption {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.prefixLen = n
		}
	}
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode and foreign keys.
func NewSQLite(dsn string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	s := &SQLiteStore{db: db, prefixLen: 15}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id            INTEGER PRIMARY KEY,
	ts            TEXT NOT NULL,
	record_type   TEXT,
	source        TEXT,
	name          TEXT NOT NULL,
	title         TEXT,
	linkedin      TEXT,
	website       TEXT,
	phone         TEXT,
	email         TEXT,
	domain        TEXT,
	lat           REAL,
	lng           REAL,
	address       TEXT,
	business_type TEXT
);

CREATE TABLE IF NOT EXISTS enriched (
	id            INTEGER PRIMARY KEY,
	lead_id       INTEGER UNIQUE NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	psi           INTEGER,
	public_emails TEXT,
	pattern       TEXT
);

CREATE TABLE IF NOT EXISTS advanced_lead_reports (
	id                      INTEGER PRIMARY KEY,
	lead_id                 INTEGER UNIQUE NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	identified_needs        TEXT,
	outreach_strategy       TEXT,
	critical_missing_info   TEXT,
	pagespeed_score_latest  REAL,
	website_analysis_notes  TEXT,
	social_media_links      TEXT,
	screenshot_path         TEXT,
	last_analyzed_timestamp TEXT
);

CREATE TABLE IF NOT EXISTS smart_lists (
	id               INTEGER PRIMARY KEY,
	list_name        TEXT NOT NULL,
	lead_id          INTEGER NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	matched          INTEGER NOT NULL DEFAULT 0,
	ai_category      TEXT,
	ai_justification TEXT,
	timestamp        TEXT NOT NULL,
	UNIQUE(list_name, lead_id)
);

CREATE INDEX IF NOT EXISTS idx_leads_name ON leads(name);
CREATE INDEX IF NOT EXISTS idx_leads_domain ON leads(domain);
CREATE INDEX IF NOT EXISTS idx_smart_lists_list ON smart_lists(list_name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const leadColumns = `id, ts, record_type, source, name, title, linkedin, website, phone, email, domain, lat, lng, address, business_type`

func (s *SQLiteStore) InsertLeads(ctx context.Context, leads []model.Lead) (int, int, error) {
	if len(leads) == 0 {
		return 0, 0, nil
	}

	idx, err := s.loadDedupIndex(ctx)
	if err != nil {
		return 0, 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: begin insert tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO leads (ts, record_type, source, name, title, linkedin, website, phone, email, domain, lat, lng, address, business_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	inserted, skipped := 0, 0
	for _, l := range leads {
		name, domain := l.IdentityKey()
		if name == "" || idx.has(name, domain) {
			skipped++
			continue
		}
		ts := l.TS
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			ts.Format(time.RFC3339), string(l.RecordType), l.Source, l.Name, l.Title,
			l.LinkedIn, l.Website, l.Phone, l.Email, l.Domain, l.Lat, l.Lng,
			l.Address, l.BusinessType,
		)
		if err != nil {
			// A failed write is a storage fault, not a duplicate skip.
			return 0, 0, eris.Wrapf(err, "sqlite: insert lead %q", l.Name)
		}
		inserted++
		idx.add(name, domain)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: commit insert tx")
	}
	return inserted, skipped, nil
}

// loadDedupIndex bulk-loads both identity keyspaces so the insert loop
// never queries per candidate.
func (s *SQLiteStore) loadDedupIndex(ctx context.Context) (*dedupIndex, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, COALESCE(domain, '') FROM leads`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: preload identity keys")
	}
	defer rows.Close()

	idx := newDedupIndex()
	for rows.Next() {
		var name, domain string
		if err := rows.Scan(&name, &domain); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan identity key")
		}
		idx.add(model.NormalizeName(name), model.NormalizeDomain(domain))
	}
	return idx, eris.Wrap(rows.Err(), "sqlite: preload iterate")
}

func (s *SQLiteStore) UpdateLeadField(ctx context.Context, leadID int64, field, value string) (bool, error) {
	if !updatableFields[field] {
		return false, eris.Wrapf(ErrInvalidField, "column %q", field)
	}
	// Column name is validated against the allow-list above; only the value
	// is caller-controlled.
	query := fmt.Sprintf(`UPDATE leads SET %s = ? WHERE id = ?`, field)
	res, err := s.db.ExecContext(ctx, query, value, leadID)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update lead %d field %s", leadID, field)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, leadID int64) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ?`, leadID)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "lead %d", leadID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %d", leadID)
	}
	return l, nil
}

// whereClause builds the shared filter WHERE fragment with ? placeholders.
func whereClause(f Filter) (string, []any) {
	var clauses []string
	var args []any

	like := func(col, val string) {
		if val != "" {
			clauses = append(clauses, col+" LIKE ?")
			args = append(args, "%"+val+"%")
		}
	}
	like("name", f.Name)
	like("domain", f.Domain)
	like("source", f.Source)
	like("address", f.Address)
	like("business_type", f.BusinessType)
	like("website", f.Website)

	presence := func(col string, has *bool) {
		if has == nil {
			return
		}
		if *has {
			clauses = append(clauses, "("+col+" IS NOT NULL AND "+col+" != '')")
		} else {
			clauses = append(clauses, "("+col+" IS NULL OR "+col+" = '')")
		}
	}
	presence("phone", f.HasPhone)
	presence("website", f.HasWebsite)

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *SQLiteStore) ListLeads(ctx context.Context, f Filter) ([]model.Lead, error) {
	where, args := whereClause(f)
	query := `SELECT ` + leadColumns + ` FROM leads` + where + ` ORDER BY id DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 5000
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *SQLiteStore) CountLeads(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(id) FROM leads`+where, args...).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count leads")
}

func (s *SQLiteStore) DeleteLeads(ctx context.Context, leadIDs []int64) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(leadIDs)), ",")
	args := make([]any, len(leadIDs))
	for i, id := range leadIDs {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete leads")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) LeadsMissingContact(ctx context.Context, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE (website IS NULL OR website = '') OR (phone IS NULL OR phone = '')
		   OR (email IS NULL OR email = '') OR (address IS NULL OR address = '')
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: leads missing contact")
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *SQLiteStore) LeadExists(ctx context.Context, name, address string) (bool, error) {
	if name == "" || address == "" {
		return false, nil
	}
	prefix := address
	if len(prefix) > s.prefixLen {
		prefix = prefix[:s.prefixLen]
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM leads WHERE name LIKE ? AND address LIKE ? LIMIT 1`,
		"%"+name+"%", prefix+"%",
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: lead exists")
	}
	return true, nil
}

// MergeDuplicates groups in Go with the insert path's normalization, so
// duplicates the fold catches (casing, accents, scheme-prefixed domains)
// are collapsed even when raw column text differs.
func (s *SQLiteStore) MergeDuplicates(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin merge tx")
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, `SELECT id, name, COALESCE(domain, '') FROM leads`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: load merge keys")
	}
	var keys []mergeKey
	for rows.Next() {
		var k mergeKey
		if err := rows.Scan(&k.id, &k.name, &k.domain); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "sqlite: scan merge key")
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "sqlite: iterate merge keys")
	}

	victims := mergeVictims(keys)
	if len(victims) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(victims)), ",")
	args := make([]any, len(victims))
	for i, id := range victims {
		args[i] = id
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: merge duplicates")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: merge rows affected")
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit merge tx")
	}
	return int(n), nil
}

func (s *SQLiteStore) UnenrichedLeads(ctx context.Context) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.ts, l.record_type, l.source, l.name, l.title, l.linkedin, l.website,
		       l.phone, l.email, l.domain, l.lat, l.lng, l.address, l.business_type
		FROM leads l
		LEFT JOIN enriched e ON l.id = e.lead_id
		WHERE l.domain IS NOT NULL AND l.domain != '' AND e.lead_id IS NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: unenriched leads")
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *SQLiteStore) SaveEnriched(ctx context.Context, e model.BasicEnrichment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO enriched (lead_id, psi, public_emails, pattern) VALUES (?, ?, ?, ?)`,
		e.LeadID, e.PSI, e.PublicEmails, e.Pattern)
	return eris.Wrapf(err, "sqlite: save enriched for lead %d", e.LeadID)
}

func (s *SQLiteStore) SaveAdvancedReport(ctx context.Context, r model.AdvancedReport) error {
	needsJSON, err := json.Marshal(orEmptySlice(r.IdentifiedNeeds))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal identified needs")
	}
	strategyJSON, err := json.Marshal(orEmptySlice(r.OutreachStrategy))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal outreach strategy")
	}
	socialJSON, err := json.Marshal(orEmptyMap(r.SocialMediaLinks))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal social links")
	}

	ts := r.LastAnalyzed
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO advanced_lead_reports (
			lead_id, identified_needs, outreach_strategy, critical_missing_info,
			pagespeed_score_latest, website_analysis_notes, social_media_links,
			screenshot_path, last_analyzed_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.LeadID, string(needsJSON), string(strategyJSON), r.CriticalMissingInfo,
		r.PSILatest, r.WebsiteNotes, string(socialJSON), r.ScreenshotPath,
		ts.Format(time.RFC3339))
	return eris.Wrapf(err, "sqlite: save advanced report for lead %d", r.LeadID)
}

func (s *SQLiteStore) GetAdvancedReport(ctx context.Context, leadID int64) (*model.AdvancedReport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT lead_id, identified_needs, outreach_strategy, critical_missing_info,
		       pagespeed_score_latest, website_analysis_notes, social_media_links,
		       screenshot_path, last_analyzed_timestamp
		FROM advanced_lead_reports WHERE lead_id = ?`, leadID)

	var r model.AdvancedReport
	var needsJSON, strategyJSON, socialJSON, ts sql.NullString
	var missing, notes, screenshot sql.NullString
	err := row.Scan(&r.LeadID, &needsJSON, &strategyJSON, &missing, &r.PSILatest,
		&notes, &socialJSON, &screenshot, &ts)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "advanced report for lead %d", leadID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get advanced report %d", leadID)
	}

	r.CriticalMissingInfo = missing.String
	r.WebsiteNotes = notes.String
	r.ScreenshotPath = screenshot.String
	if needsJSON.Valid {
		_ = json.Unmarshal([]byte(needsJSON.String), &r.IdentifiedNeeds)
	}
	if strategyJSON.Valid {
		_ = json.Unmarshal([]byte(strategyJSON.String), &r.OutreachStrategy)
	}
	if socialJSON.Valid {
		_ = json.Unmarshal([]byte(socialJSON.String), &r.SocialMediaLinks)
	}
	if ts.Valid {
		r.LastAnalyzed, _ = time.Parse(time.RFC3339, ts.String)
	}
	return &r, nil
}

func (s *SQLiteStore) RecordSmartListEval(ctx context.Context, e model.SmartListEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO smart_lists (list_name, lead_id, matched, ai_category, ai_justification, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ListName, e.LeadID, e.Matched, e.Category, e.Justification, ts.Format(time.RFC3339))
	return eris.Wrapf(err, "sqlite: record smart list eval %s/%d", e.ListName, e.LeadID)
}

func (s *SQLiteStore) SmartListEvaluatedIDs(ctx context.Context, listName string) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lead_id FROM smart_lists WHERE list_name = ?`, listName)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: evaluated ids for %s", listName)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evaluated id")
		}
		ids[id] = true
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: evaluated ids iterate")
}

func (s *SQLiteStore) SmartListMembers(ctx context.Context, listName string) ([]model.SmartListEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT list_name, lead_id, matched, COALESCE(ai_category, ''), COALESCE(ai_justification, ''), timestamp
		FROM smart_lists WHERE list_name = ? AND matched = 1 ORDER BY lead_id`, listName)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: members of %s", listName)
	}
	defer rows.Close()

	var entries []model.SmartListEntry
	for rows.Next() {
		var e model.SmartListEntry
		var ts string
		if err := rows.Scan(&e.ListName, &e.LeadID, &e.Matched, &e.Category, &e.Justification, &ts); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan smart list entry")
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: members iterate")
}

func (s *SQLiteStore) SmartListNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT list_name FROM smart_lists ORDER BY list_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: smart list names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan list name")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "sqlite: list names iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var ts string
	var recordType, source, title, linkedin, website, phone, email, domain, address, businessType sql.NullString

	err := row.Scan(&l.ID, &ts, &recordType, &source, &l.Name, &title, &linkedin,
		&website, &phone, &email, &domain, &l.Lat, &l.Lng, &address, &businessType)
	if err != nil {
		return nil, err
	}

	l.TS, _ = time.Parse(time.RFC3339, ts)
	l.RecordType = model.RecordType(recordType.String)
	l.Source = source.String
	l.Title = title.String
	l.LinkedIn = linkedin.String
	l.Website = website.String
	l.Phone = phone.String
	l.Email = email.String
	l.Domain = domain.String
	l.Address = address.String
	l.BusinessType = businessType.String
	return &l, nil
}

func collectLeads(rows *sql.Rows) ([]model.Lead, error) {
	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
