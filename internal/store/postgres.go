package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rabatt-cli/internal/db"
	"github.com/sells-group/rabatt-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS stores (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	category     TEXT NOT NULL DEFAULT '',
	logo         TEXT,
	last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS discount_codes (
	id            TEXT PRIMARY KEY,
	store_id      TEXT NOT NULL REFERENCES stores(id) ON DELETE CASCADE,
	code          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	savings       TEXT,
	probability   INTEGER NOT NULL CHECK (probability BETWEEN 0 AND 100),
	trust_level   TEXT NOT NULL CHECK (trust_level IN ('high', 'medium', 'low')),
	context       TEXT[] NOT NULL DEFAULT '{}',
	affiliate_url TEXT,
	valid_until   TIMESTAMPTZ,
	last_verified TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_active     BOOLEAN NOT NULL DEFAULT true,
	UNIQUE (store_id, code)
);

CREATE INDEX IF NOT EXISTS idx_discount_codes_active ON discount_codes(is_active, probability);
CREATE INDEX IF NOT EXISTS idx_discount_codes_valid_until ON discount_codes(valid_until) WHERE valid_until IS NOT NULL;

CREATE TABLE IF NOT EXISTS code_reports (
	id           TEXT PRIMARY KEY,
	code_id      TEXT NOT NULL REFERENCES discount_codes(id) ON DELETE CASCADE,
	worked       BOOLEAN NOT NULL,
	user_context JSONB,
	reported_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_code_reports_reported_at ON code_reports(reported_at);

CREATE TABLE IF NOT EXISTS alternatives (
	id           TEXT PRIMARY KEY,
	store_id     TEXT NOT NULL REFERENCES stores(id) ON DELETE CASCADE,
	type         TEXT NOT NULL CHECK (type IN ('cheaper-store', 'newsletter', 'student', 'wait-for-sale', 'cashback')),
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	action_label TEXT,
	action_url   TEXT
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

func (s *PostgresStore) ListStores(ctx context.Context) ([]model.Store, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, category, logo, last_updated FROM stores ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stores")
	}
	defer rows.Close()

	var out []model.Store
	for rows.Next() {
		var st model.Store
		var logo *string
		if err := rows.Scan(&st.ID, &st.Name, &st.Category, &logo, &st.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "postgres: scan store")
		}
		st.Logo = deref(logo)
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list stores iterate")
}

func (s *PostgresStore) UpsertStore(ctx context.Context, st model.Store) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stores (id, name, category, logo, last_updated) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category, logo = EXCLUDED.logo`,
		st.ID, st.Name, st.Category, nullable(st.Logo), nowIfZero(st.LastUpdated),
	)
	return eris.Wrapf(err, "postgres: upsert store %s", st.ID)
}

func (s *PostgresStore) TouchStore(ctx context.Context, storeID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE stores SET last_updated = $1 WHERE id = $2`, at, storeID)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch store %s", storeID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchAllStores advances last_updated for every store with a code verified
// after its current timestamp.
func (s *PostgresStore) TouchAllStores(ctx context.Context, at time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stores SET last_updated = $1
		 WHERE EXISTS (SELECT 1 FROM discount_codes dc WHERE dc.store_id = stores.id AND dc.last_verified > stores.last_updated)`,
		at,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: touch all stores")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListAlternatives(ctx context.Context) ([]model.Alternative, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, store_id, type, title, description, action_label, action_url FROM alternatives ORDER BY store_id, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alternatives")
	}
	defer rows.Close()

	var out []model.Alternative
	for rows.Next() {
		var a model.Alternative
		var label, url *string
		if err := rows.Scan(&a.ID, &a.StoreID, &a.Type, &a.Title, &a.Description, &label, &url); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alternative")
		}
		a.ActionLabel, a.ActionURL = deref(label), deref(url)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list alternatives iterate")
}

func (s *PostgresStore) UpsertAlternative(ctx context.Context, a model.Alternative) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alternatives (id, store_id, type, title, description, action_label, action_url) VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET store_id = EXCLUDED.store_id, type = EXCLUDED.type, title = EXCLUDED.title,
		 description = EXCLUDED.description, action_label = EXCLUDED.action_label, action_url = EXCLUDED.action_url`,
		a.ID, a.StoreID, string(a.Type), a.Title, a.Description, nullable(a.ActionLabel), nullable(a.ActionURL),
	)
	return eris.Wrapf(err, "postgres: upsert alternative %s", a.ID)
}

const codeColumns = `id, store_id, code, description, savings, probability, trust_level, context, affiliate_url, valid_until, last_verified, is_active`

func (s *PostgresStore) FindCode(ctx context.Context, storeID, code string) (*model.DiscountCode, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+codeColumns+` FROM discount_codes WHERE store_id = $1 AND code = $2`,
		storeID, code,
	)
	c, err := scanPgCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: find code %s/%s", storeID, code)
	}
	return c, nil
}

func (s *PostgresStore) GetCode(ctx context.Context, id string) (*model.DiscountCode, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+codeColumns+` FROM discount_codes WHERE id = $1`, id)
	c, err := scanPgCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get code %s", id)
	}
	return c, nil
}

func (s *PostgresStore) InsertCode(ctx context.Context, c model.DiscountCode) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO discount_codes (`+codeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.StoreID, c.Code, c.Description, nullable(c.Savings), c.Probability, string(c.TrustLevel),
		contextOrEmpty(c.Context), nullable(c.AffiliateURL), c.ValidUntil, c.LastVerified, c.IsActive,
	)
	if db.IsUniqueViolation(err) {
		return ErrCodeExists
	}
	return eris.Wrapf(err, "postgres: insert code %s", c.ID)
}

func (s *PostgresStore) RefreshCode(ctx context.Context, id string, r CodeRefresh) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discount_codes SET description = $1, savings = $2, context = $3, probability = $4, trust_level = $5, last_verified = $6 WHERE id = $7`,
		r.Description, nullable(r.Savings), contextOrEmpty(r.Context), r.Probability, string(r.TrustLevel), r.LastVerified, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: refresh code %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListActiveCodes(ctx context.Context, minProbability int) ([]model.DiscountCode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+codeColumns+` FROM discount_codes WHERE is_active AND probability >= $1 ORDER BY store_id, probability DESC`,
		minProbability,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active codes")
	}
	defer rows.Close()

	var out []model.DiscountCode
	for rows.Next() {
		c, err := scanPgCode(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan code")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list active codes iterate")
}

func (s *PostgresStore) ApplyScore(ctx context.Context, u model.CodeUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discount_codes SET probability = $1, trust_level = $2, last_verified = $3, is_active = is_active AND NOT $4 WHERE id = $5`,
		u.NewProbability, string(u.TrustLevel), u.VerifiedAt, u.Deactivated, u.CodeID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: apply score %s", u.CodeID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discount_codes SET is_active = false WHERE is_active AND valid_until IS NOT NULL AND valid_until < $1`,
		now,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: deactivate expired")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) InsertReport(ctx context.Context, r model.CodeReport) error {
	var userCtx any
	if len(r.UserContext) > 0 {
		userCtx = []byte(r.UserContext)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO code_reports (id, code_id, worked, user_context, reported_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.CodeID, r.Worked, userCtx, r.ReportedAt,
	)
	return eris.Wrapf(err, "postgres: insert report for %s", r.CodeID)
}

func (s *PostgresStore) ReportsSince(ctx context.Context, since time.Time) ([]model.CodeReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, code_id, worked, reported_at FROM code_reports WHERE reported_at >= $1`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: reports since")
	}
	defer rows.Close()

	var out []model.CodeReport
	for rows.Next() {
		var r model.CodeReport
		if err := rows.Scan(&r.ID, &r.CodeID, &r.Worked, &r.ReportedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: reports since iterate")
}

type pgScanner interface {
	Scan(dest ...any) error
}

func scanPgCode(row pgScanner) (*model.DiscountCode, error) {
	var c model.DiscountCode
	var savings, affiliate *string
	var trust string
	if err := row.Scan(&c.ID, &c.StoreID, &c.Code, &c.Description, &savings, &c.Probability, &trust,
		&c.Context, &affiliate, &c.ValidUntil, &c.LastVerified, &c.IsActive); err != nil {
		return nil, err
	}
	c.Savings, c.AffiliateURL = deref(savings), deref(affiliate)
	c.TrustLevel = model.TrustLevel(trust)
	c.Context = contextOrEmpty(c.Context)
	return &c, nil
}
