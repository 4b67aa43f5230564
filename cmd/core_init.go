package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dealwatch/dealwatch/internal/extract"
	"github.com/dealwatch/dealwatch/internal/fetcher"
	"github.com/dealwatch/dealwatch/internal/notify"
	"github.com/dealwatch/dealwatch/internal/scheduler"
	"github.com/dealwatch/dealwatch/internal/store"
)

// coreEnv holds the initialized store, profile registry, and scheduler
// needed by the watch/check/serve commands.
type coreEnv struct {
	Store     store.Store
	Registry  *extract.Registry
	Scheduler *scheduler.Scheduler
	Notifier  notify.Notifier
}

// Close releases resources held by the environment.
func (ce *coreEnv) Close() {
	if ce.Store != nil {
		_ = ce.Store.Close()
	}
}

// initCore sets up the store, loads site profiles, and builds the
// scheduler. Callers should defer env.Close().
func initCore(ctx context.Context) (*coreEnv, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	registry, err := extract.LoadProfiles(cfg.Profiles.Path)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load site profiles")
	}
	zap.L().Info("site profiles loaded",
		zap.Int("profiles", len(registry.Profiles())),
	)

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.Fetch.Timeout(),
		MaxRetries:   cfg.Fetch.MaxRetries,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		HostRate:     rate.Limit(cfg.Fetch.HostRatePerSec),
		HostBurst:    cfg.Fetch.HostRateBurst,
	})

	notifier := initNotifier()

	sched := scheduler.New(st,
		scheduler.NewChecker(httpFetcher, registry),
		notifier,
		scheduler.Options{
			Interval:      cfg.Scheduler.Interval(),
			MaxConcurrent: cfg.Scheduler.MaxConcurrent,
			MaxFailures:   cfg.Scheduler.MaxFailures,
		},
	)

	return &coreEnv{
		Store:     st,
		Registry:  registry,
		Scheduler: sched,
		Notifier:  notifier,
	}, nil
}

// initNotifier assembles the notification fan-out from config. With no
// sinks configured, alerts go to the log.
func initNotifier() notify.Notifier {
	var sinks []notify.Notifier

	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.Notify.WebhookURL))
		zap.L().Info("webhook notifications enabled")
	}

	if cfg.Notify.Telegram.Token != "" && cfg.Notify.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID)
		if err != nil {
			zap.L().Warn("telegram notifier init failed, skipping", zap.Error(err))
		} else {
			sinks = append(sinks, tg)
			zap.L().Info("telegram notifications enabled")
		}
	}

	switch len(sinks) {
	case 0:
		return notify.LogNotifier{}
	case 1:
		return sinks[0]
	default:
		return notify.NewMulti(sinks...)
	}
}
