package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/dealwatch/dealwatch/internal/model"
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
CREATE TABLE IF NOT EXISTS products (
	id                   TEXT PRIMARY KEY,
	url                  TEXT NOT NULL UNIQUE,
	title                TEXT NOT NULL DEFAULT '',
	image_url            TEXT NOT NULL DEFAULT '',
	price_minor          INTEGER,
	price_currency       TEXT,
	last_checked_at      DATETIME,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id              TEXT PRIMARY KEY,
	product_id      TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL DEFAULT '',
	target_minor    INTEGER NOT NULL,
	target_currency TEXT NOT NULL DEFAULT '',
	active          INTEGER NOT NULL DEFAULT 1,
	triggered       INTEGER NOT NULL DEFAULT 0,
	triggered_at    DATETIME,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS price_history (
	id             TEXT PRIMARY KEY,
	product_id     TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	price_minor    INTEGER NOT NULL,
	price_currency TEXT NOT NULL DEFAULT '',
	captured_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_last_checked ON products(last_checked_at);
CREATE INDEX IF NOT EXISTS idx_alerts_product_id ON alerts(product_id);
CREATE INDEX IF NOT EXISTS idx_price_history_product_id ON price_history(product_id, captured_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteProductCols = `id, url, title, image_url, price_minor, price_currency, last_checked_at, consecutive_failures, created_at`

func (s *SQLiteStore) CreateProduct(ctx context.Context, url string) (*model.TrackedProduct, error) {
	p := &model.TrackedProduct{
		ID:        uuid.New().String(),
		URL:       url,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, url, created_at) VALUES (?, ?, ?)`,
		p.ID, p.URL, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert product")
	}
	return p, nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.TrackedProduct, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteProductCols+` FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

func (s *SQLiteStore) GetProductByURL(ctx context.Context, url string) (*model.TrackedProduct, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteProductCols+` FROM products WHERE url = ?`, url)
	return scanProduct(row)
}

func (s *SQLiteStore) ListProducts(ctx context.Context) ([]model.TrackedProduct, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteProductCols+` FROM products ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close() //nolint:errcheck
	return scanProducts(rows)
}

func (s *SQLiteStore) ListDueProducts(ctx context.Context, checkedBefore time.Time) ([]model.TrackedProduct, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteProductCols+` FROM products
		 WHERE last_checked_at IS NULL OR last_checked_at <= ?
		 ORDER BY last_checked_at`, checkedBefore.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list due products")
	}
	defer rows.Close() //nolint:errcheck
	return scanProducts(rows)
}

func (s *SQLiteStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete product %s", id)
	}
	return checkRowsAffected(res, "product", id)
}

func (s *SQLiteStore) ApplyCheckSuccess(ctx context.Context, productID string, rec model.PriceRecord) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	capturedAt := rec.CapturedAt.UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE products SET
			title = CASE WHEN ? != '' THEN ? ELSE title END,
			image_url = CASE WHEN ? != '' THEN ? ELSE image_url END,
			price_minor = ?, price_currency = ?,
			last_checked_at = ?, consecutive_failures = 0
		 WHERE id = ? AND (last_checked_at IS NULL OR last_checked_at < ?)`,
		rec.Title, rec.Title, rec.ImageURL, rec.ImageURL,
		rec.Price.MinorUnits, rec.Price.Currency,
		capturedAt, productID, capturedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: apply check success %s", productID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Product removed mid-flight or a newer observation already landed.
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO price_history (id, product_id, price_minor, price_currency, captured_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), productID, rec.Price.MinorUnits, rec.Price.Currency, capturedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert price history %s", productID)
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit")
	}
	return true, nil
}

func (s *SQLiteStore) ApplyCheckFailure(ctx context.Context, productID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET last_checked_at = ?, consecutive_failures = consecutive_failures + 1
		 WHERE id = ? AND (last_checked_at IS NULL OR last_checked_at < ?)`,
		at.UTC(), productID, at.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: apply check failure %s", productID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) CreateAlert(ctx context.Context, productID, userID string, target model.Price) (*model.Alert, error) {
	a := &model.Alert{
		ID:          uuid.New().String(),
		ProductID:   productID,
		UserID:      userID,
		TargetPrice: target,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, product_id, user_id, target_minor, target_currency, active, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)`,
		a.ID, a.ProductID, a.UserID, a.TargetPrice.MinorUnits, a.TargetPrice.Currency, a.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert alert")
	}
	return a, nil
}

const sqliteAlertCols = `id, product_id, user_id, target_minor, target_currency, active, triggered, triggered_at, created_at`

func (s *SQLiteStore) ListAlertsByProduct(ctx context.Context, productID string) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteAlertCols+` FROM alerts WHERE product_id = ? ORDER BY created_at`, productID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close() //nolint:errcheck
	return scanAlerts(rows)
}

func (s *SQLiteStore) ListArmedAlerts(ctx context.Context, productID string) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteAlertCols+` FROM alerts
		 WHERE product_id = ? AND active = 1 AND triggered = 0 ORDER BY created_at`, productID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list armed alerts")
	}
	defer rows.Close() //nolint:errcheck
	return scanAlerts(rows)
}

func (s *SQLiteStore) MarkAlertTriggered(ctx context.Context, alertID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET triggered = 1, triggered_at = ? WHERE id = ?`,
		at.UTC(), alertID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark alert triggered %s", alertID)
	}
	return checkRowsAffected(res, "alert", alertID)
}

func (s *SQLiteStore) DeleteAlert(ctx context.Context, alertID string) (string, int, error) {
	var productID string
	err := s.db.QueryRowContext(ctx,
		`SELECT product_id FROM alerts WHERE id = ?`, alertID).Scan(&productID)
	if err == sql.ErrNoRows {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, eris.Wrapf(err, "sqlite: lookup alert %s", alertID)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, alertID); err != nil {
		return "", 0, eris.Wrapf(err, "sqlite: delete alert %s", alertID)
	}

	var remaining int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE product_id = ?`, productID).Scan(&remaining)
	if err != nil {
		return "", 0, eris.Wrap(err, "sqlite: count remaining alerts")
	}
	return productID, remaining, nil
}

func (s *SQLiteStore) ListPriceHistory(ctx context.Context, productID string, limit int) ([]model.PriceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, price_minor, price_currency, captured_at
		 FROM price_history WHERE product_id = ?
		 ORDER BY captured_at DESC LIMIT ?`, productID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list price history")
	}
	defer rows.Close() //nolint:errcheck

	var records []model.PriceRecord
	for rows.Next() {
		var rec model.PriceRecord
		var minor int64
		var currency string
		if err := rows.Scan(&rec.ProductID, &minor, &currency, &rec.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price record")
		}
		rec.Price = model.NewPrice(minor, currency)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate price history")
}

func (s *SQLiteStore) CollectStats(ctx context.Context, staleAfter int) (*Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM alerts),
			(SELECT COUNT(*) FROM alerts WHERE active = 1 AND triggered = 0),
			(SELECT COUNT(*) FROM products WHERE consecutive_failures >= ?)`,
		staleAfter,
	)
	if err := row.Scan(&st.Products, &st.Alerts, &st.ActiveAlerts, &st.StaleProducts); err != nil {
		return nil, eris.Wrap(err, "sqlite: collect stats")
	}
	return &st, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*model.TrackedProduct, error) {
	var p model.TrackedProduct
	var minor sql.NullInt64
	var currency sql.NullString
	var checkedAt sql.NullTime
	err := row.Scan(&p.ID, &p.URL, &p.Title, &p.ImageURL, &minor, &currency,
		&checkedAt, &p.ConsecutiveFailures, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan product")
	}
	if minor.Valid {
		price := model.NewPrice(minor.Int64, currency.String)
		p.LastKnownPrice = &price
	}
	if checkedAt.Valid {
		t := checkedAt.Time.UTC()
		p.LastCheckedAt = &t
	}
	return &p, nil
}

func scanProducts(rows *sql.Rows) ([]model.TrackedProduct, error) {
	var products []model.TrackedProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, eris.Wrap(rows.Err(), "iterate products")
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var a model.Alert
	var minor int64
	var currency string
	var triggeredAt sql.NullTime
	err := row.Scan(&a.ID, &a.ProductID, &a.UserID, &minor, &currency,
		&a.Active, &a.Triggered, &triggeredAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan alert")
	}
	a.TargetPrice = model.NewPrice(minor, currency)
	if triggeredAt.Valid {
		t := triggeredAt.Time.UTC()
		a.TriggeredAt = &t
	}
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]model.Alert, error) {
	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, eris.Wrap(rows.Err(), "iterate alerts")
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", kind, id)
	}
	return nil
}
