package scheduler

import (
	"context"

	"github.com/dealwatch/dealwatch/internal/extract"
	"github.com/dealwatch/dealwatch/internal/fetcher"
	"github.com/dealwatch/dealwatch/internal/model"
)

// Checker performs a single fetch-and-extract cycle for one product.
type Checker struct {
	fetcher  fetcher.Fetcher
	registry *extract.Registry
}

// NewChecker wires a fetcher and a site profile registry.
func NewChecker(f fetcher.Fetcher, r *extract.Registry) *Checker {
	return &Checker{fetcher: f, registry: r}
}

// Check resolves the product's site profile, fetches its page, and
// extracts a price record. The profile is matched before the fetch so an
// unsupported site costs no network round trip.
func (c *Checker) Check(ctx context.Context, product *model.TrackedProduct) (*model.PriceRecord, error) {
	profile, err := c.registry.Match(product.URL)
	if err != nil {
		return nil, err
	}

	page, err := c.fetcher.Fetch(ctx, product.URL)
	if err != nil {
		return nil, err
	}

	rec, err := extract.Extract(page, profile)
	if err != nil {
		return nil, err
	}
	rec.ProductID = product.ID
	return rec, nil
}

// errorKind renders the fetch/extract taxonomy kind for structured logs.
func errorKind(err error) string {
	if k, ok := fetcher.ErrKind(err); ok {
		return k.String()
	}
	if k, ok := extract.ErrKind(err); ok {
		return k.String()
	}
	return "internal"
}
