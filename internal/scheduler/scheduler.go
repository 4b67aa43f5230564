// Package scheduler drives periodic price checks for every tracked product.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dealwatch/dealwatch/internal/evaluate"
	"github.com/dealwatch/dealwatch/internal/model"
	"github.com/dealwatch/dealwatch/internal/notify"
	"github.com/dealwatch/dealwatch/internal/store"
)

// errAlreadyChecking rejects an overlapping manual check for a product.
var errAlreadyChecking = eris.New("scheduler: check already in flight for product")

// Options configures the check loop.
type Options struct {
	// Interval between checks of the same product. Also the tick period.
	Interval time.Duration
	// MaxConcurrent bounds simultaneous in-flight checks.
	MaxConcurrent int
	// MaxFailures marks a product stale after this many consecutive
	// failed checks. Stale products keep being scheduled; the count is
	// surfaced through the store for status reporting.
	MaxFailures int
}

// Scheduler owns the periodic check lifecycle. It loads due products each
// tick, runs checks through a bounded worker pool, applies results to the
// store, and hands fired alerts to the notifier.
type Scheduler struct {
	store    store.Store
	checker  *Checker
	notifier notify.Notifier
	opts     Options

	// nowFunc and tickCh allow deterministic tests without real timers.
	nowFunc func() time.Time
	tickCh  <-chan time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a Scheduler.
func New(st store.Store, checker *Checker, notifier notify.Notifier, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Scheduler{
		store:    st,
		checker:  checker,
		notifier: notifier,
		opts:     opts,
		nowFunc:  time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// Run starts the check loop and blocks until ctx is cancelled. The first
// pass runs immediately; later passes follow the tick interval. In-flight
// checks are drained before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "scheduler"))
	log.Info("starting price check loop",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("max_concurrent", s.opts.MaxConcurrent),
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrent)

	tickCh := s.tickCh
	if tickCh == nil {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	s.runTick(gCtx, g, log)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			log.Info("price check loop stopped")
			return nil
		case <-tickCh:
			s.runTick(gCtx, g, log)
		}
	}
}

// runTick enqueues checks for all due products. Products already being
// checked are skipped, so overlapping ticks never produce two in-flight
// checks for the same product. When the pool is saturated the product
// stays due and is picked up on a later tick.
func (s *Scheduler) runTick(ctx context.Context, g *errgroup.Group, log *zap.Logger) {
	now := s.nowFunc().UTC()
	cutoff := now.Add(-s.opts.Interval)

	products, err := s.store.ListDueProducts(ctx, cutoff)
	if err != nil {
		log.Error("failed to load due products", zap.Error(err))
		return
	}
	if len(products) == 0 {
		log.Debug("no products due")
		return
	}

	enqueued := 0
	for _, p := range products {
		if !s.markInFlight(p.ID) {
			continue
		}
		product := p
		started := g.TryGo(func() error {
			defer s.clearInFlight(product.ID)
			s.checkProduct(ctx, &product, log)
			return nil
		})
		if !started {
			s.clearInFlight(product.ID)
			continue
		}
		enqueued++
	}

	log.Info("tick complete",
		zap.Int("due", len(products)),
		zap.Int("enqueued", enqueued),
	)
}

// CheckNow runs a full check cycle for one product outside the tick loop,
// returning the extracted record. Used by the one-off check command.
func (s *Scheduler) CheckNow(ctx context.Context, product *model.TrackedProduct) (*model.PriceRecord, error) {
	if !s.markInFlight(product.ID) {
		return nil, errAlreadyChecking
	}
	defer s.clearInFlight(product.ID)

	rec, err := s.checker.Check(ctx, product)
	if err != nil {
		s.recordFailure(ctx, product, err, zap.L())
		return nil, err
	}
	s.applyAndNotify(ctx, product, rec, zap.L())
	return rec, nil
}

func (s *Scheduler) checkProduct(ctx context.Context, product *model.TrackedProduct, log *zap.Logger) {
	rec, err := s.checker.Check(ctx, product)
	if err != nil {
		s.recordFailure(ctx, product, err, log)
		return
	}
	s.applyAndNotify(ctx, product, rec, log)
}

// recordFailure logs a failed check and advances the failure counter.
// One product's failure never aborts the tick for others.
func (s *Scheduler) recordFailure(ctx context.Context, product *model.TrackedProduct, checkErr error, log *zap.Logger) {
	log.Warn("product check failed",
		zap.String("product_id", product.ID),
		zap.String("url", product.URL),
		zap.String("error_kind", errorKind(checkErr)),
		zap.Error(checkErr),
	)

	applied, err := s.store.ApplyCheckFailure(ctx, product.ID, s.nowFunc().UTC())
	if err != nil {
		log.Error("failed to record check failure",
			zap.String("product_id", product.ID),
			zap.Error(err),
		)
		return
	}
	if !applied {
		log.Debug("check failure discarded, product removed",
			zap.String("product_id", product.ID),
		)
		return
	}

	if s.opts.MaxFailures > 0 && product.ConsecutiveFailures+1 >= s.opts.MaxFailures {
		log.Warn("product checks persistently failing",
			zap.String("product_id", product.ID),
			zap.String("url", product.URL),
			zap.Int("consecutive_failures", product.ConsecutiveFailures+1),
		)
	}
}

// applyAndNotify evaluates alerts against the new record, persists the
// observation, and dispatches fired alerts. Evaluation runs against the
// product's previous price; the store write is guarded, and a record for
// a product removed mid-flight is discarded without notifying.
func (s *Scheduler) applyAndNotify(ctx context.Context, product *model.TrackedProduct, rec *model.PriceRecord, log *zap.Logger) {
	alerts, err := s.store.ListArmedAlerts(ctx, product.ID)
	if err != nil {
		log.Error("failed to load alerts",
			zap.String("product_id", product.ID),
			zap.Error(err),
		)
		alerts = nil
	}

	events, updates := evaluate.Evaluate(rec, product.LastKnownPrice, product, alerts)

	applied, err := s.store.ApplyCheckSuccess(ctx, product.ID, *rec)
	if err != nil {
		log.Error("failed to apply check result",
			zap.String("product_id", product.ID),
			zap.Error(err),
		)
		return
	}
	if !applied {
		log.Debug("check result discarded, product removed or superseded",
			zap.String("product_id", product.ID),
		)
		return
	}

	log.Debug("product checked",
		zap.String("product_id", product.ID),
		zap.String("price", rec.Price.String()),
		zap.Int("alerts_fired", len(events)),
	)

	for i, event := range events {
		if err := s.notifier.Notify(ctx, event); err != nil {
			log.Error("notification dispatch failed",
				zap.String("alert_id", event.AlertID),
				zap.Error(err),
			)
		}
		upd := updates[i]
		if err := s.store.MarkAlertTriggered(ctx, upd.AlertID, upd.TriggeredAt); err != nil {
			log.Error("failed to mark alert triggered",
				zap.String("alert_id", upd.AlertID),
				zap.Error(err),
			)
		}
	}
}

func (s *Scheduler) markInFlight(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[productID]; busy {
		return false
	}
	s.inFlight[productID] = struct{}{}
	return true
}

func (s *Scheduler) clearInFlight(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, productID)
}
