// Package notify delivers notification events to external sinks.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/dealwatch/dealwatch/internal/model"
)

// Notifier delivers a single notification event. Implementations own
// formatting and transport; deduplication beyond the evaluator's
// transition guarantee is their concern.
type Notifier interface {
	Notify(ctx context.Context, event model.NotificationEvent) error
	Name() string
}

// LogNotifier writes events to the log. It is the default sink when no
// webhook or Telegram credentials are configured.
type LogNotifier struct{}

func (LogNotifier) Name() string { return "log" }

func (LogNotifier) Notify(_ context.Context, event model.NotificationEvent) error {
	zap.L().Info("price alert triggered",
		zap.String("alert_id", event.AlertID),
		zap.String("product_id", event.ProductID),
		zap.String("url", event.ProductURL),
		zap.String("observed_price", event.ObservedPrice.String()),
		zap.String("target_price", event.TargetPrice.String()),
	)
	return nil
}

// Multi fans an event out to several notifiers. A failing sink is logged
// and does not block the others; the first error is returned so callers
// can count delivery problems.
type Multi struct {
	notifiers []Notifier
}

// NewMulti builds a fan-out notifier.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Notify(ctx context.Context, event model.NotificationEvent) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			zap.L().Error("notification delivery failed",
				zap.String("notifier", n.Name()),
				zap.String("alert_id", event.AlertID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
