package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/dealwatch/dealwatch/internal/model"
)

// Pool abstracts *pgxpool.Pool so tests can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
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
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                   TEXT PRIMARY KEY,
	url                  TEXT NOT NULL UNIQUE,
	title                TEXT NOT NULL DEFAULT '',
	image_url            TEXT NOT NULL DEFAULT '',
	price_minor          BIGINT,
	price_currency       TEXT,
	last_checked_at      TIMESTAMPTZ,
	consecutive_failures INT NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS alerts (
	id              TEXT PRIMARY KEY,
	product_id      TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL DEFAULT '',
	target_minor    BIGINT NOT NULL,
	target_currency TEXT NOT NULL DEFAULT '',
	active          BOOLEAN NOT NULL DEFAULT true,
	triggered       BOOLEAN NOT NULL DEFAULT false,
	triggered_at    TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS price_history (
	id             TEXT PRIMARY KEY,
	product_id     TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	price_minor    BIGINT NOT NULL,
	price_currency TEXT NOT NULL DEFAULT '',
	captured_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_last_checked ON products(last_checked_at);
CREATE INDEX IF NOT EXISTS idx_alerts_product_id ON alerts(product_id);
CREATE INDEX IF NOT EXISTS idx_price_history_product_id ON price_history(product_id, captured_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgProductCols = `id, url, title, image_url, price_minor, price_currency, last_checked_at, consecutive_failures, created_at`

func (s *PostgresStore) CreateProduct(ctx context.Context, url string) (*model.TrackedProduct, error) {
	p := &model.TrackedProduct{
		ID:        uuid.New().String(),
		URL:       url,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, url, created_at) VALUES ($1, $2, $3)`,
		p.ID, p.URL, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert product")
	}
	return p, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.TrackedProduct, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgProductCols+` FROM products WHERE id = $1`, id)
	return scanPgProduct(row)
}

func (s *PostgresStore) GetProductByURL(ctx context.Context, url string) (*model.TrackedProduct, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgProductCols+` FROM products WHERE url = $1`, url)
	return scanPgProduct(row)
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]model.TrackedProduct, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgProductCols+` FROM products ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()
	return scanPgProducts(rows)
}

func (s *PostgresStore) ListDueProducts(ctx context.Context, checkedBefore time.Time) ([]model.TrackedProduct, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgProductCols+` FROM products
		 WHERE last_checked_at IS NULL OR last_checked_at <= $1
		 ORDER BY last_checked_at NULLS FIRST`, checkedBefore.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list due products")
	}
	defer rows.Close()
	return scanPgProducts(rows)
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete product %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "product %s", id)
	}
	return nil
}

func (s *PostgresStore) ApplyCheckSuccess(ctx context.Context, productID string, rec model.PriceRecord) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	capturedAt := rec.CapturedAt.UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE products SET
			title = CASE WHEN $1 != '' THEN $1 ELSE title END,
			image_url = CASE WHEN $2 != '' THEN $2 ELSE image_url END,
			price_minor = $3, price_currency = $4,
			last_checked_at = $5, consecutive_failures = 0
		 WHERE id = $6 AND (last_checked_at IS NULL OR last_checked_at < $5)`,
		rec.Title, rec.ImageURL,
		rec.Price.MinorUnits, rec.Price.Currency,
		capturedAt, productID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: apply check success %s", productID)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO price_history (id, product_id, price_minor, price_currency, captured_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), productID, rec.Price.MinorUnits, rec.Price.Currency, capturedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert price history %s", productID)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit")
	}
	return true, nil
}

func (s *PostgresStore) ApplyCheckFailure(ctx context.Context, productID string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET last_checked_at = $1, consecutive_failures = consecutive_failures + 1
		 WHERE id = $2 AND (last_checked_at IS NULL OR last_checked_at < $1)`,
		at.UTC(), productID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: apply check failure %s", productID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CreateAlert(ctx context.Context, productID, userID string, target model.Price) (*model.Alert, error) {
	a := &model.Alert{
		ID:          uuid.New().String(),
		ProductID:   productID,
		UserID:      userID,
		TargetPrice: target,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, product_id, user_id, target_minor, target_currency, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, true, $6)`,
		a.ID, a.ProductID, a.UserID, a.TargetPrice.MinorUnits, a.TargetPrice.Currency, a.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert alert")
	}
	return a, nil
}

const pgAlertCols = `id, product_id, user_id, target_minor, target_currency, active, triggered, triggered_at, created_at`

func (s *PostgresStore) ListAlertsByProduct(ctx context.Context, productID string) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgAlertCols+` FROM alerts WHERE product_id = $1 ORDER BY created_at`, productID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()
	return scanPgAlerts(rows)
}

func (s *PostgresStore) ListArmedAlerts(ctx context.Context, productID string) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgAlertCols+` FROM alerts
		 WHERE product_id = $1 AND active AND NOT triggered ORDER BY created_at`, productID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list armed alerts")
	}
	defer rows.Close()
	return scanPgAlerts(rows)
}

func (s *PostgresStore) MarkAlertTriggered(ctx context.Context, alertID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET triggered = true, triggered_at = $1 WHERE id = $2`,
		at.UTC(), alertID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark alert triggered %s", alertID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "alert %s", alertID)
	}
	return nil
}

func (s *PostgresStore) DeleteAlert(ctx context.Context, alertID string) (string, int, error) {
	var productID string
	err := s.pool.QueryRow(ctx,
		`SELECT product_id FROM alerts WHERE id = $1`, alertID).Scan(&productID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, eris.Wrapf(err, "postgres: lookup alert %s", alertID)
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, alertID); err != nil {
		return "", 0, eris.Wrapf(err, "postgres: delete alert %s", alertID)
	}

	var remaining int
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE product_id = $1`, productID).Scan(&remaining)
	if err != nil {
		return "", 0, eris.Wrap(err, "postgres: count remaining alerts")
	}
	return productID, remaining, nil
}

func (s *PostgresStore) ListPriceHistory(ctx context.Context, productID string, limit int) ([]model.PriceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, price_minor, price_currency, captured_at
		 FROM price_history WHERE product_id = $1
		 ORDER BY captured_at DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list price history")
	}
	defer rows.Close()

	var records []model.PriceRecord
	for rows.Next() {
		var rec model.PriceRecord
		var minor int64
		var currency string
		if err := rows.Scan(&rec.ProductID, &minor, &currency, &rec.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price record")
		}
		rec.Price = model.NewPrice(minor, currency)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate price history")
}

func (s *PostgresStore) CollectStats(ctx context.Context, staleAfter int) (*Stats, error) {
	var st Stats
	row := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM alerts),
			(SELECT COUNT(*) FROM alerts WHERE active AND NOT triggered),
			(SELECT COUNT(*) FROM products WHERE consecutive_failures >= $1)`,
		staleAfter,
	)
	if err := row.Scan(&st.Products, &st.Alerts, &st.ActiveAlerts, &st.StaleProducts); err != nil {
		return nil, eris.Wrap(err, "postgres: collect stats")
	}
	return &st, nil
}

// --- scanning helpers (pgx row types) ---

func scanPgProduct(row pgx.Row) (*model.TrackedProduct, error) {
	var p model.TrackedProduct
	var minor *int64
	var currency *string
	var checkedAt *time.Time
	err := row.Scan(&p.ID, &p.URL, &p.Title, &p.ImageURL, &minor, &currency,
		&checkedAt, &p.ConsecutiveFailures, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan product")
	}
	if minor != nil {
		cur := ""
		if currency != nil {
			cur = *currency
		}
		price := model.NewPrice(*minor, cur)
		p.LastKnownPrice = &price
	}
	if checkedAt != nil {
		t := checkedAt.UTC()
		p.LastCheckedAt = &t
	}
	return &p, nil
}

func scanPgProducts(rows pgx.Rows) ([]model.TrackedProduct, error) {
	var products []model.TrackedProduct
	for rows.Next() {
		p, err := scanPgProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: iterate products")
}

func scanPgAlerts(rows pgx.Rows) ([]model.Alert, error) {
	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var minor int64
		var currency string
		var triggeredAt *time.Time
		err := rows.Scan(&a.ID, &a.ProductID, &a.UserID, &minor, &currency,
			&a.Active, &a.Triggered, &triggeredAt, &a.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		a.TargetPrice = model.NewPrice(minor, currency)
		if triggeredAt != nil {
			t := triggeredAt.UTC()
			a.TriggeredAt = &t
		}
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "postgres: iterate alerts")
}
