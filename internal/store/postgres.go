package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/tmc-media/leadgen-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool used by the store, satisfied by
// pgxmock for unit testing.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool      Pool
	closeFn   func()
	prefixLen int
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// PostgresOption configures the Postgres store.
type PostgresOption func(*PostgresStore)

// WithPostgresExistsPrefixLen sets the LeadExists address prefix length.
func WithPostgresExistsPrefixLen(n int) PostgresOption {
	return func(s *PostgresStore) {
		if n > 0 {
			s.prefixLen = n
		}
	}
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, opts ...PostgresOption) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	s := &PostgresStore{pool: pool, closeFn: pool.Close, prefixLen: 15}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id            BIGSERIAL PRIMARY KEY,
	ts            TIMESTAMPTZ NOT NULL DEFAULT now(),
	record_type   TEXT,
	source        TEXT,
	name          TEXT NOT NULL,
	title         TEXT,
	linkedin      TEXT,
	website       TEXT,
	phone         TEXT,
	email         TEXT,
	domain        TEXT,
	lat           DOUBLE PRECISION,
	lng           DOUBLE PRECISION,
	address       TEXT,
	business_type TEXT
);

CREATE TABLE IF NOT EXISTS enriched (
	id            BIGSERIAL PRIMARY KEY,
	lead_id       BIGINT UNIQUE NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	psi           INTEGER,
	public_emails TEXT,
	pattern       TEXT
);

CREATE TABLE IF NOT EXISTS advanced_lead_reports (
	id                      BIGSERIAL PRIMARY KEY,
	lead_id                 BIGINT UNIQUE NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	identified_needs        JSONB,
	outreach_strategy       JSONB,
	critical_missing_info   TEXT,
	pagespeed_score_latest  DOUBLE PRECISION,
	website_analysis_notes  TEXT,
	social_media_links      JSONB,
	screenshot_path         TEXT,
	last_analyzed_timestamp TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS smart_lists (
	id               BIGSERIAL PRIMARY KEY,
	list_name        TEXT NOT NULL,
	lead_id          BIGINT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	matched          BOOLEAN NOT NULL DEFAULT false,
	ai_category      TEXT,
	ai_justification TEXT,
	timestamp        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(list_name, lead_id)
);

CREATE INDEX IF NOT EXISTS idx_leads_name ON leads(name);
CREATE INDEX IF NOT EXISTS idx_leads_domain ON leads(domain);
CREATE INDEX IF NOT EXISTS idx_smart_lists_list ON smart_lists(list_name);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgLeadColumns = `id, ts, COALESCE(record_type, ''), COALESCE(source, ''), name, COALESCE(title, ''), COALESCE(linkedin, ''), COALESCE(website, ''), COALESCE(phone, ''), COALESCE(email, ''), COALESCE(domain, ''), lat, lng, COALESCE(address, ''), COALESCE(business_type, '')`

func (s *PostgresStore) InsertLeads(ctx context.Context, leads []model.Lead) (int, int, error) {
	if len(leads) == 0 {
		return 0, 0, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT name, COALESCE(domain, '') FROM leads`)
	if err != nil {
		return 0, 0, eris.Wrap(err, "postgres: preload identity keys")
	}
	idx := newDedupIndex()
	for rows.Next() {
		var name, domain string
		if err := rows.Scan(&name, &domain); err != nil {
			rows.Close()
			return 0, 0, eris.Wrap(err, "postgres: scan identity key")
		}
		idx.add(model.NormalizeName(name), model.NormalizeDomain(domain))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, eris.Wrap(err, "postgres: preload iterate")
	}

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
		_, err := s.pool.Exec(ctx, `
			INSERT INTO leads (ts, record_type, source, name, title, linkedin, website, phone, email, domain, lat, lng, address, business_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			ts, string(l.RecordType), l.Source, l.Name, l.Title, l.LinkedIn,
			l.Website, l.Phone, l.Email, l.Domain, l.Lat, l.Lng, l.Address, l.BusinessType,
		)
		if err != nil {
			// A failed write is a storage fault, not a duplicate skip.
			// Earlier rows of the batch are already durable.
			return inserted, skipped, eris.Wrapf(err, "postgres: insert lead %q", l.Name)
		}
		inserted++
		idx.add(name, domain)
	}
	return inserted, skipped, nil
}

func (s *PostgresStore) UpdateLeadField(ctx context.Context, leadID int64, field, value string) (bool, error) {
	if !updatableFields[field] {
		return false, eris.Wrapf(ErrInvalidField, "column %q", field)
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE leads SET %s = $1 WHERE id = $2`, field), value, leadID)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update lead %d field %s", leadID, field)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID int64) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgLeadColumns+` FROM leads WHERE id = $1`, leadID)
	l, err := scanPgLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "lead %d", leadID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %d", leadID)
	}
	return l, nil
}

func pgWhereClause(f Filter) (string, []any) {
	var clauses []string
	var args []any

	like := func(col, val string) {
		if val != "" {
			args = append(args, "%"+val+"%")
			clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", col, len(args)))
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

func (s *PostgresStore) ListLeads(ctx context.Context, f Filter) ([]model.Lead, error) {
	where, args := pgWhereClause(f)
	query := `SELECT ` + pgLeadColumns + ` FROM leads` + where + ` ORDER BY id DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 5000
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()
	return collectPgLeads(rows)
}

func (s *PostgresStore) CountLeads(ctx context.Context, f Filter) (int, error) {
	where, args := pgWhereClause(f)
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(id) FROM leads`+where, args...).Scan(&n)
	return n, eris.Wrap(err, "postgres: count leads")
}

func (s *PostgresStore) DeleteLeads(ctx context.Context, leadIDs []int64) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = ANY($1)`, leadIDs)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete leads")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) LeadsMissingContact(ctx context.Context, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgLeadColumns+` FROM leads
		WHERE (website IS NULL OR website = '') OR (phone IS NULL OR phone = '')
		   OR (email IS NULL OR email = '') OR (address IS NULL OR address = '')
		ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: leads missing contact")
	}
	defer rows.Close()
	return collectPgLeads(rows)
}

func (s *PostgresStore) LeadExists(ctx context.Context, name, address string) (bool, error) {
	if name == "" || address == "" {
		return false, nil
	}
	prefix := address
	if len(prefix) > s.prefixLen {
		prefix = prefix[:s.prefixLen]
	}
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM leads WHERE name ILIKE $1 AND address ILIKE $2 LIMIT 1`,
		"%"+name+"%", prefix+"%",
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: lead exists")
	}
	return true, nil
}

// MergeDuplicates groups in Go with the insert path's normalization, so
// duplicates the fold catches (casing, accents, scheme-prefixed domains)
// are collapsed even when raw column text differs.
func (s *PostgresStore) MergeDuplicates(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin merge tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `SELECT id, name, COALESCE(domain, '') FROM leads`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: load merge keys")
	}
	var keys []mergeKey
	for rows.Next() {
		var k mergeKey
		if err := rows.Scan(&k.id, &k.name, &k.domain); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "postgres: scan merge key")
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "postgres: iterate merge keys")
	}

	victims := mergeVictims(keys)
	if len(victims) == 0 {
		return 0, nil
	}

	tag, err := tx.Exec(ctx, `DELETE FROM leads WHERE id = ANY($1)`, victims)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: merge duplicates")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit merge tx")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) UnenrichedLeads(ctx context.Context) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.ts, COALESCE(l.record_type, ''), COALESCE(l.source, ''), l.name,
		       COALESCE(l.title, ''), COALESCE(l.linkedin, ''), COALESCE(l.website, ''),
		       COALESCE(l.phone, ''), COALESCE(l.email, ''), COALESCE(l.domain, ''),
		       l.lat, l.lng, COALESCE(l.address, ''), COALESCE(l.business_type, '')
		FROM leads l
		LEFT JOIN enriched e ON l.id = e.lead_id
		WHERE l.domain IS NOT NULL AND l.domain != '' AND e.lead_id IS NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: unenriched leads")
	}
	defer rows.Close()
	return collectPgLeads(rows)
}

func (s *PostgresStore) SaveEnriched(ctx context.Context, e model.BasicEnrichment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enriched (lead_id, psi, public_emails, pattern)
		VALUES ($1, $2, $3, $4) ON CONFLICT (lead_id) DO NOTHING`,
		e.LeadID, e.PSI, e.PublicEmails, e.Pattern)
	return eris.Wrapf(err, "postgres: save enriched for lead %d", e.LeadID)
}

func (s *PostgresStore) SaveAdvancedReport(ctx context.Context, r model.AdvancedReport) error {
	needsJSON, err := json.Marshal(orEmptySlice(r.IdentifiedNeeds))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal identified needs")
	}
	strategyJSON, err := json.Marshal(orEmptySlice(r.OutreachStrategy))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal outreach strategy")
	}
	socialJSON, err := json.Marshal(orEmptyMap(r.SocialMediaLinks))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal social links")
	}

	ts := r.LastAnalyzed
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO advanced_lead_reports (
			lead_id, identified_needs, outreach_strategy, critical_missing_info,
			pagespeed_score_latest, website_analysis_notes, social_media_links,
			screenshot_path, last_analyzed_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (lead_id) DO UPDATE SET
			identified_needs = $2, outreach_strategy = $3, critical_missing_info = $4,
			pagespeed_score_latest = $5, website_analysis_notes = $6,
			social_media_links = $7, screenshot_path = $8, last_analyzed_timestamp = $9`,
		r.LeadID, needsJSON, strategyJSON, r.CriticalMissingInfo, r.PSILatest,
		r.WebsiteNotes, socialJSON, r.ScreenshotPath, ts)
	return eris.Wrapf(err, "postgres: save advanced report for lead %d", r.LeadID)
}

func (s *PostgresStore) GetAdvancedReport(ctx context.Context, leadID int64) (*model.AdvancedReport, error) {
	var r model.AdvancedReport
	var needsJSON, strategyJSON, socialJSON []byte
	var ts *time.Time

	err := s.pool.QueryRow(ctx, `
		SELECT lead_id, identified_needs, outreach_strategy, COALESCE(critical_missing_info, ''),
		       pagespeed_score_latest, COALESCE(website_analysis_notes, ''), social_media_links,
		       COALESCE(screenshot_path, ''), last_analyzed_timestamp
		FROM advanced_lead_reports WHERE lead_id = $1`, leadID,
	).Scan(&r.LeadID, &needsJSON, &strategyJSON, &r.CriticalMissingInfo, &r.PSILatest,
		&r.WebsiteNotes, &socialJSON, &r.ScreenshotPath, &ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "advanced report for lead %d", leadID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get advanced report %d", leadID)
	}

	if needsJSON != nil {
		_ = json.Unmarshal(needsJSON, &r.IdentifiedNeeds)
	}
	if strategyJSON != nil {
		_ = json.Unmarshal(strategyJSON, &r.OutreachStrategy)
	}
	if socialJSON != nil {
		_ = json.Unmarshal(socialJSON, &r.SocialMediaLinks)
	}
	if ts != nil {
		r.LastAnalyzed = *ts
	}
	return &r, nil
}

func (s *PostgresStore) RecordSmartListEval(ctx context.Context, e model.SmartListEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO smart_lists (list_name, lead_id, matched, ai_category, ai_justification, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (list_name, lead_id) DO NOTHING`,
		e.ListName, e.LeadID, e.Matched, e.Category, e.Justification, ts)
	return eris.Wrapf(err, "postgres: record smart list eval %s/%d", e.ListName, e.LeadID)
}

func (s *PostgresStore) SmartListEvaluatedIDs(ctx context.Context, listName string) (map[int64]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT lead_id FROM smart_lists WHERE list_name = $1`, listName)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: evaluated ids for %s", listName)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan evaluated id")
		}
		ids[id] = true
	}
	return ids, eris.Wrap(rows.Err(), "postgres: evaluated ids iterate")
}

func (s *PostgresStore) SmartListMembers(ctx context.Context, listName string) ([]model.SmartListEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT list_name, lead_id, matched, COALESCE(ai_category, ''), COALESCE(ai_justification, ''), timestamp
		FROM smart_lists WHERE list_name = $1 AND matched ORDER BY lead_id`, listName)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: members of %s", listName)
	}
	defer rows.Close()

	var entries []model.SmartListEntry
	for rows.Next() {
		var e model.SmartListEntry
		if err := rows.Scan(&e.ListName, &e.LeadID, &e.Matched, &e.Category, &e.Justification, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan smart list entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: members iterate")
}

func (s *PostgresStore) SmartListNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT list_name FROM smart_lists ORDER BY list_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: smart list names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan list name")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "postgres: list names iterate")
}

func scanPgLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var recordType string
	err := row.Scan(&l.ID, &l.TS, &recordType, &l.Source, &l.Name, &l.Title,
		&l.LinkedIn, &l.Website, &l.Phone, &l.Email, &l.Domain, &l.Lat, &l.Lng,
		&l.Address, &l.BusinessType)
	if err != nil {
		return nil, err
	}
	l.RecordType = model.RecordType(recordType)
	return &l, nil
}

func collectPgLeads(rows pgx.Rows) ([]model.Lead, error) {
	var leads []model.Lead
	for rows.Next() {
		l, err := scanPgLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: iterate leads")
}
