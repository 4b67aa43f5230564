package model

import "time"

// TrackedProduct is a unique product URL under periodic price observation.
// One product may be referenced by many alerts.
type TrackedProduct struct {
	ID                  string     `json:"id"`
	URL                 string     `json:"url"`
	Title               string     `json:"title,omitempty"`
	ImageURL            string     `json:"image_url,omitempty"`
	LastKnownPrice      *Price     `json:"last_known_price,omitempty"`
	LastCheckedAt       *time.Time `json:"last_checked_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Due reports whether the product should be checked again, given the
// configured interval. A product that has never been checked is always due.
func (p *TrackedProduct) Due(now time.Time, interval time.Duration) bool {
	if p.LastCheckedAt == nil {
		return true
	}
	return now.Sub(*p.LastCheckedAt) >= interval
}

// Stale reports whether the product has failed too many consecutive checks
// to be considered recently observed.
func (p *TrackedProduct) Stale(maxFailures int) bool {
	return maxFailures > 0 && p.ConsecutiveFailures >= maxFailures
}

// PriceRecord is a single append-only price observation for a product.
type PriceRecord struct {
	ProductID  string    `json:"product_id"`
	Price      Price     `json:"price"`
	Title      string    `json:"title,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}
