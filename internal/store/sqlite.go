package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/rabatt-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)
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
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS stores (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	logo         TEXT,
	last_updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS discount_codes (
	id            TEXT PRIMARY KEY,
	store_id      TEXT NOT NULL REFERENCES stores(id) ON DELETE CASCADE,
	code          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	savings       TEXT,
	probability   INTEGER NOT NULL CHECK (probability BETWEEN 0 AND 100),
	trust_level   TEXT NOT NULL,
	context       TEXT NOT NULL DEFAULT '[]',
	affiliate_url TEXT,
	valid_until   TEXT,
	last_verified TEXT NOT NULL,
	is_active     INTEGER NOT NULL DEFAULT 1,
	UNIQUE (store_id, code)
);

CREATE INDEX IF NOT EXISTS idx_discount_codes_active ON discount_codes(is_active, probability);

CREATE TABLE IF NOT EXISTS code_reports (
	id           TEXT PRIMARY KEY,
	code_id      TEXT NOT NULL REFERENCES discount_codes(id) ON DELETE CASCADE,
	worked       INTEGER NOT NULL,
	user_context TEXT,
	reported_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_code_reports_reported_at ON code_reports(reported_at);

CREATE TABLE IF NOT EXISTS alternatives (
	id           TEXT PRIMARY KEY,
	store_id     TEXT NOT NULL REFERENCES stores(id) ON DELETE CASCADE,
	type         TEXT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	action_label TEXT,
	action_url   TEXT
);
`

// Timestamps are stored as fixed-width UTC text so that string comparison
// orders them correctly.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

func toSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func fromSQLiteTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListStores(ctx context.Context) ([]model.Store, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, logo, last_updated FROM stores ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stores")
	}
	defer rows.Close()

	var out []model.Store
	for rows.Next() {
		var st model.Store
		var logo sql.NullString
		var updated string
		if err := rows.Scan(&st.ID, &st.Name, &st.Category, &logo, &updated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan store")
		}
		st.Logo = logo.String
		if st.LastUpdated, err = fromSQLiteTime(updated); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list stores iterate")
}

func (s *SQLiteStore) UpsertStore(ctx context.Context, st model.Store) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stores (id, name, category, logo, last_updated) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, category = excluded.category, logo = excluded.logo`,
		st.ID, st.Name, st.Category, nullable(st.Logo), toSQLiteTime(nowIfZero(st.LastUpdated)),
	)
	return eris.Wrapf(err, "sqlite: upsert store %s", st.ID)
}

func (s *SQLiteStore) TouchStore(ctx context.Context, storeID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE stores SET last_updated = ? WHERE id = ?`, toSQLiteTime(at), storeID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch store %s", storeID)
	}
	return checkRowsAffected(res)
}

// TouchAllStores advances last_updated for every store with a code verified
// after its current timestamp.
func (s *SQLiteStore) TouchAllStores(ctx context.Context, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stores SET last_updated = ?
		 WHERE EXISTS (SELECT 1 FROM discount_codes dc WHERE dc.store_id = stores.id AND dc.last_verified > stores.last_updated)`,
		toSQLiteTime(at),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: touch all stores")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ListAlternatives(ctx context.Context) ([]model.Alternative, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, store_id, type, title, description, action_label, action_url FROM alternatives ORDER BY store_id, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alternatives")
	}
	defer rows.Close()

	var out []model.Alternative
	for rows.Next() {
		var a model.Alternative
		var label, url sql.NullString
		if err := rows.Scan(&a.ID, &a.StoreID, &a.Type, &a.Title, &a.Description, &label, &url); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alternative")
		}
		a.ActionLabel, a.ActionURL = label.String, url.String
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list alternatives iterate")
}

func (s *SQLiteStore) UpsertAlternative(ctx context.Context, a model.Alternative) error {
	if !a.Type.Valid() {
		return eris.Errorf("sqlite: alternative %s has unknown type %q", a.ID, a.Type)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alternatives (id, store_id, type, title, description, action_label, action_url) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET store_id = excluded.store_id, type = excluded.type, title = excluded.title,
		 description = excluded.description, action_label = excluded.action_label, action_url = excluded.action_url`,
		a.ID, a.StoreID, string(a.Type), a.Title, a.Description, nullable(a.ActionLabel), nullable(a.ActionURL),
	)
	return eris.Wrapf(err, "sqlite: upsert alternative %s", a.ID)
}

func (s *SQLiteStore) FindCode(ctx context.Context, storeID, code string) (*model.DiscountCode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM discount_codes WHERE store_id = ? AND code = ?`,
		storeID, code,
	)
	c, err := scanSQLiteCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: find code %s/%s", storeID, code)
	}
	return c, nil
}

func (s *SQLiteStore) GetCode(ctx context.Context, id string) (*model.DiscountCode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+codeColumns+` FROM discount_codes WHERE id = ?`, id)
	c, err := scanSQLiteCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get code %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) InsertCode(ctx context.Context, c model.DiscountCode) error {
	ctxJSON, err := json.Marshal(contextOrEmpty(c.Context))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal context")
	}
	var validUntil *string
	if c.ValidUntil != nil {
		v := toSQLiteTime(*c.ValidUntil)
		validUntil = &v
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO discount_codes (`+codeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.StoreID, c.Code, c.Description, nullable(c.Savings), c.Probability, string(c.TrustLevel),
		string(ctxJSON), nullable(c.AffiliateURL), validUntil, toSQLiteTime(c.LastVerified), c.IsActive,
	)
	if isSQLiteUnique(err) {
		return ErrCodeExists
	}
	return eris.Wrapf(err, "sqlite: insert code %s", c.ID)
}

func (s *SQLiteStore) RefreshCode(ctx context.Context, id string, r CodeRefresh) error {
	ctxJSON, err := json.Marshal(contextOrEmpty(r.Context))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal context")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE discount_codes SET description = ?, savings = ?, context = ?, probability = ?, trust_level = ?, last_verified = ? WHERE id = ?`,
		r.Description, nullable(r.Savings), string(ctxJSON), r.Probability, string(r.TrustLevel), toSQLiteTime(r.LastVerified), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: refresh code %s", id)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteStore) ListActiveCodes(ctx context.Context, minProbability int) ([]model.DiscountCode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+codeColumns+` FROM discount_codes WHERE is_active = 1 AND probability >= ? ORDER BY store_id, probability DESC`,
		minProbability,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active codes")
	}
	defer rows.Close()

	var out []model.DiscountCode
	for rows.Next() {
		c, err := scanSQLiteCode(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan code")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list active codes iterate")
}

func (s *SQLiteStore) ApplyScore(ctx context.Context, u model.CodeUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discount_codes SET probability = ?, trust_level = ?, last_verified = ?,
		 is_active = CASE WHEN ? THEN 0 ELSE is_active END WHERE id = ?`,
		u.NewProbability, string(u.TrustLevel), toSQLiteTime(u.VerifiedAt), u.Deactivated, u.CodeID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: apply score %s", u.CodeID)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteStore) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discount_codes SET is_active = 0 WHERE is_active = 1 AND valid_until IS NOT NULL AND valid_until < ?`,
		toSQLiteTime(now),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: deactivate expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) InsertReport(ctx context.Context, r model.CodeReport) error {
	var userCtx *string
	if len(r.UserContext) > 0 {
		v := string(r.UserContext)
		userCtx = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO code_reports (id, code_id, worked, user_context, reported_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.CodeID, r.Worked, userCtx, toSQLiteTime(r.ReportedAt),
	)
	return eris.Wrapf(err, "sqlite: insert report for %s", r.CodeID)
}

func (s *SQLiteStore) ReportsSince(ctx context.Context, since time.Time) ([]model.CodeReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code_id, worked, reported_at FROM code_reports WHERE reported_at >= ?`,
		toSQLiteTime(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: reports since")
	}
	defer rows.Close()

	var out []model.CodeReport
	for rows.Next() {
		var r model.CodeReport
		var at string
		if err := rows.Scan(&r.ID, &r.CodeID, &r.Worked, &at); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		if r.ReportedAt, err = fromSQLiteTime(at); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: reports since iterate")
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	// Primary result code only when extended codes are off.
	return strings.Contains(se.Error(), "UNIQUE constraint failed")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteCode(row scannable) (*model.DiscountCode, error) {
	var c model.DiscountCode
	var savings, affiliate, validUntil sql.NullString
	var trust, ctxJSON, verified string
	if err := row.Scan(&c.ID, &c.StoreID, &c.Code, &c.Description, &savings, &c.Probability, &trust,
		&ctxJSON, &affiliate, &validUntil, &verified, &c.IsActive); err != nil {
		return nil, err
	}
	c.Savings, c.AffiliateURL = savings.String, affiliate.String
	c.TrustLevel = model.TrustLevel(trust)
	if err := json.Unmarshal([]byte(ctxJSON), &c.Context); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal context for %s", c.ID)
	}
	c.Context = contextOrEmpty(c.Context)
	var err error
	if c.LastVerified, err = fromSQLiteTime(verified); err != nil {
		return nil, err
	}
	if validUntil.Valid {
		t, err := fromSQLiteTime(validUntil.String)
		if err != nil {
			return nil, err
		}
		c.ValidUntil = &t
	}
	return &c, nil
}
