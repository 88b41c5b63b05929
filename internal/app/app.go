package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mev-alerts/internal/alerting"
	"mev-alerts/internal/bot"
	"mev-alerts/internal/config"
	"mev-alerts/internal/fetcher"
	"mev-alerts/internal/logging"
	"mev-alerts/internal/metrics"
	"mev-alerts/internal/model"
	"mev-alerts/internal/scheduler"
	"mev-alerts/internal/service"
	"mev-alerts/internal/storage"
	"mev-alerts/internal/subscriber"
	"mev-alerts/internal/telegram"
	"mev-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// ConfigPath is watched by Run so the log level can change without a restart.
	ConfigPath string
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newObservatory() *fetcher.Observatory {
	userAgent := a.Config.Observatory.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	return fetcher.NewObservatory(fetcher.ObservatoryOptions{
		BaseURL:   a.Config.Observatory.BaseURL,
		Timeout:   a.Config.Observatory.RequestTimeout,
		UserAgent: userAgent,
		RateLimit: a.Config.Observatory.RateLimit,
		RateBurst: a.Config.Observatory.RateBurst,
	}, a.Logger)
}

func (a *App) newTelegram() *telegram.Client {
	cfg := a.Config.Telegram
	return telegram.NewClient(cfg.BotToken, cfg.APIBase, cfg.SendTimeout, a.Logger)
}

func (a *App) newService(obs *fetcher.Observatory, subs service.SubscriberSource, sink alerting.Sink) *service.Service {
	return service.New(service.Options{
		LookbackBlocks: a.Config.Observatory.LookbackBlocks,
		Concurrency:    a.Config.Scheduler.Concurrency,
	}, obs, obs, obs, subs, sink, a.Logger)
}

func (a *App) openBackend(ctx context.Context) (subscriber.Backend, error) {
	switch a.Config.Store.Backend {
	case config.BackendPostgres:
		pool, err := storage.NewPool(ctx, a.Config.Store)
		if err != nil {
			return nil, err
		}
		backend, err := storage.NewPostgresBackend(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return backend, nil
	default:
		return storage.NewFileBackend(a.Config.Store.Path), nil
	}
}

func (a *App) openStore(ctx context.Context) (*subscriber.Store, error) {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	store, err := subscriber.Open(ctx, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	a.Logger.Info().Str("backend", a.Config.Store.Backend).Int("subscribers", len(store.All())).Msg("subscriber store opened")
	return store, nil
}

// seedLegacySubscriber makes the single chat named by telegram.chat_id an
// active subscriber, unless it already has a record.
func (a *App) seedLegacySubscriber(ctx context.Context, store *subscriber.Store) error {
	chatID := a.Config.Telegram.ChatID
	if chatID == "" {
		return nil
	}
	if _, ok := store.Get(chatID); ok {
		return nil
	}

	sub := model.Subscriber{
		ID:                   chatID,
		NotificationsEnabled: true,
		IntervalHours:        a.Config.Legacy.IntervalHours,
		ThresholdUSD:         a.Config.LegacyThreshold(),
		Stage:                model.StageActive,
	}
	if err := store.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("seed legacy subscriber: %w", err)
	}
	a.Logger.Info().Str("subscriber", chatID).Int("interval_hours", sub.IntervalHours).
		Str("threshold_usd", sub.ThresholdUSD.String()).Msg("seeded legacy subscriber")
	return nil
}

func (a *App) watchConfig() {
	err := config.Watch(a.ConfigPath, func(cfg *config.Config, err error) {
		if err != nil {
			a.Logger.Warn().Err(err).Msg("ignoring invalid config change")
			return
		}
		level, err := logging.SetLevel(cfg.Logging.Level)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("ignoring log level change")
			return
		}
		a.Logger.Info().Str("level", level.String()).Msg("config reloaded; other settings apply on restart")
	})
	if err != nil {
		a.Logger.Warn().Err(err).Msg("config watch disabled")
	}
}

// Run executes the long-running notification service and chat bot.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.RequireTelegram(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("failed to close subscriber store")
		}
	}()

	if err := a.seedLegacySubscriber(ctx, store); err != nil {
		return err
	}
	a.watchConfig()

	tg := a.newTelegram()
	svc := a.newService(a.newObservatory(), store, alerting.NewTelegramSink(tg, a.Logger))
	chat := bot.New(tg, subscriber.NewDialog(store), store, a.Config.Telegram.PollTimeout, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Tick,
		AlignToStart: a.Config.Scheduler.AlignToTick,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    true,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return chat.Run(gctx) })
	g.Go(func() error { return svc.Run(gctx, sched) })
	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		g.Go(func() error { return metrics.Serve(gctx, addr, a.Logger) })
	}

	a.Logger.Info().Dur("tick", a.Config.Scheduler.Tick).Msg("starting notification service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("notification service stopped")
	return nil
}
