package model

import "time"

// Alert is a user's request to be notified when a tracked product's price
// reaches a target. Alerts have a lifecycle independent of the product they
// reference.
type Alert struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	UserID      string     `json:"user_id,omitempty"`
	TargetPrice Price      `json:"target_price"`
	Active      bool       `json:"active"`
	Triggered   bool       `json:"triggered"`
	CreatedAt   time.Time  `json:"created_at"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
}

// Armed reports whether the alert can still fire.
func (a *Alert) Armed() bool {
	return a.Active && !a.Triggered
}

// NotificationEvent is emitted when a product's price crosses at or below
// an alert's target. It is constructed, handed to the notifier, and
// discarded — never persisted by the core.
type NotificationEvent struct {
	AlertID       string    `json:"alert_id"`
	ProductID     string    `json:"product_id"`
	ProductTitle  string    `json:"product_title,omitempty"`
	ProductURL    string    `json:"product_url"`
	ObservedPrice Price     `json:"observed_price"`
	TargetPrice   Price     `json:"target_price"`
	ObservedAt    time.Time `json:"observed_at"`
}
