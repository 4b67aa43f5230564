// Package evaluate decides which alerts fire for a new price observation.
package evaluate

import (
	"time"

	"github.com/dealwatch/dealwatch/internal/model"
)

// AlertUpdate is the explicit state mutation implied by a fired alert.
// The caller applies it to the store; Evaluate itself mutates nothing.
type AlertUpdate struct {
	AlertID     string
	TriggeredAt time.Time
}

// Evaluate compares a new price record against the alerts referencing its
// product and returns the notification events to emit plus the alert
// updates to apply. prev is the product's previous recorded price, nil if
// none exists.
//
// An event is emitted only on the transition into the at-or-below-target
// state: the observed price must be at or below the target while the
// previous price was above it (or absent). A price that stays below target
// across ticks does not fire again.
func Evaluate(rec *model.PriceRecord, prev *model.Price, product *model.TrackedProduct, alerts []model.Alert) ([]model.NotificationEvent, []AlertUpdate) {
	var events []model.NotificationEvent
	var updates []AlertUpdate

	for _, alert := range alerts {
		if !alert.Armed() {
			continue
		}
		if alert.ProductID != rec.ProductID {
			continue
		}
		if !rec.Price.AtOrBelow(alert.TargetPrice) {
			continue
		}
		if prev != nil && prev.AtOrBelow(alert.TargetPrice) {
			// Already below target before this observation.
			continue
		}

		title := rec.Title
		if title == "" && product != nil {
			title = product.Title
		}
		url := ""
		if product != nil {
			url = product.URL
		}

		events = append(events, model.NotificationEvent{
			AlertID:       alert.ID,
			ProductID:     rec.ProductID,
			ProductTitle:  title,
			ProductURL:    url,
			ObservedPrice: rec.Price,
			TargetPrice:   alert.TargetPrice,
			ObservedAt:    rec.CapturedAt,
		})
		updates = append(updates, AlertUpdate{
			AlertID:     alert.ID,
			TriggeredAt: rec.CapturedAt,
		})
	}

	return events, updates
}
