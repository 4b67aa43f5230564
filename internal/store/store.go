// Package store persists tracked products, alerts, and price history.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dealwatch/dealwatch/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = eris.New("store: not found")

// Stats summarizes the working set for the status command.
type Stats struct {
	Products      int `json:"products"`
	Alerts        int `json:"alerts"`
	ActiveAlerts  int `json:"active_alerts"`
	StaleProducts int `json:"stale_products"`
}

// Store defines the persistence interface for the tracking core.
type Store interface {
	// Products
	CreateProduct(ctx context.Context, url string) (*model.TrackedProduct, error)
	GetProduct(ctx context.Context, id string) (*model.TrackedProduct, error)
	GetProductByURL(ctx context.Context, url string) (*model.TrackedProduct, error)
	ListProducts(ctx context.Context) ([]model.TrackedProduct, error)
	// ListDueProducts returns products whose last check is older than the
	// cutoff (or that have never been checked).
	ListDueProducts(ctx context.Context, checkedBefore time.Time) ([]model.TrackedProduct, error)
	DeleteProduct(ctx context.Context, id string) error

	// ApplyCheckSuccess records a successful observation: price, title,
	// lastCheckedAt, failure counter reset, and a price_history row. The
	// write is guarded so a product removed mid-flight (or already updated
	// by a newer observation) is left untouched; applied reports whether
	// the write landed.
	ApplyCheckSuccess(ctx context.Context, productID string, rec model.PriceRecord) (applied bool, err error)

	// ApplyCheckFailure advances lastCheckedAt and increments the
	// consecutive-failure counter.
	ApplyCheckFailure(ctx context.Context, productID string, at time.Time) (applied bool, err error)

	// Alerts
	CreateAlert(ctx context.Context, productID, userID string, target model.Price) (*model.Alert, error)
	ListAlertsByProduct(ctx context.Context, productID string) ([]model.Alert, error)
	// ListArmedAlerts returns active, not-yet-triggered alerts for a product.
	ListArmedAlerts(ctx context.Context, productID string) ([]model.Alert, error)
	MarkAlertTriggered(ctx context.Context, alertID string, at time.Time) error
	// DeleteAlert removes an alert and reports how many alerts remain on
	// the same product, so callers can apply the orphaned-product policy.
	DeleteAlert(ctx context.Context, alertID string) (productID string, remaining int, err error)

	// Price history
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]model.PriceRecord, error)

	// Lifecycle
	CollectStats(ctx context.Context, staleAfter int) (*Stats, error)
	Migrate(ctx context.Context) error
	Close() error
}
