package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teens-space/progress-hub/config"
	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/application/eventhandler"
	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/infrastructure/auth"
	"github.com/teens-space/progress-hub/internal/infrastructure/external/telegram"
	"github.com/teens-space/progress-hub/internal/infrastructure/messaging"
	"github.com/teens-space/progress-hub/internal/infrastructure/scheduler"
	"github.com/teens-space/progress-hub/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/teens-space/progress-hub/internal/interface/http"
	"github.com/teens-space/progress-hub/internal/interface/http/handlers"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/retry"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

func newServeCmd() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync API, curator endpoints and bot webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, catalogPath)
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "course catalog YAML (default: embedded)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, catalogPath string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЛОГИРОВАНИЕ И КАТАЛОГ
	// ─────────────────────────────────────────────────────────────────────────
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()
	log.Info("starting progress hub",
		logger.String("version", Version),
		logger.String("timezone", cfg.App.Location.String()))
	for _, f := range cfg.Features.All() {
		log.Debug("feature flag", logger.String("name", f.Name), logger.Int("rollout_percent", f.RolloutPercent))
	}

	cat, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}
	clock := timeutil.SystemClock{}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩА
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS И УВЕДОМЛЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	deadLetters := messaging.NewDeadLetterQueue(100)
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	busCfg.Middleware = []messaging.Middleware{
		messaging.DeadLetterMiddleware(deadLetters),
		messaging.RecoveryMiddleware(log),
		messaging.RetryMiddleware(retry.WithMaxAttempts(2), retry.WithInitialDelay(2*time.Second)),
		messaging.LoggingMiddleware(log),
	}
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer closeBus(bus, deadLetters, log)

	if err := bus.SubscribeAll(auditEvent(log)); err != nil {
		return err
	}

	var bot *telegram.Client
	if cfg.Telegram.Token != "" {
		botCfg := telegram.DefaultClientConfig(cfg.Telegram.Token)
		if cfg.Telegram.BaseURL != "" {
			botCfg.BaseURL = cfg.Telegram.BaseURL
		}
		botCfg.Timeout = cfg.Telegram.RequestTimeout
		botCfg.Logger = log
		bot = telegram.NewClient(botCfg)

		notifier := telegram.NewNotifier(bot, cfg.Telegram.WebAppURL)
		onLesson := eventhandler.NewOnLessonCompletedHandler(notifier,
			cfg.Features.LearnerGate(config.FeatureNotifyLessonCompleted), len(cat.Lessons()), log)
		onAchievement := eventhandler.NewOnAchievementUnlockedHandler(notifier,
			cfg.Features.LearnerGate(config.FeatureNotifyAchievement), cat, log)

		if err := bus.Subscribe(shared.EventLessonCompleted, onLesson.Handle); err != nil {
			return err
		}
		if err := bus.Subscribe(shared.EventAchievementUnlock, onAchievement.Handle); err != nil {
			return err
		}
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN is not set, notifications and webhook disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	tokens, err := newTokens(cfg, log)
	if err != nil {
		return err
	}
	initData := auth.NewInitDataValidator(cfg.Telegram.Token, cfg.Auth.InitDataMaxAge)

	ledgerDeps := command.LedgerDeps{
		Repo:      store.progress,
		Catalog:   cat,
		Publisher: bus,
		Cache:     store.progressCache,
		Clock:     clock,
		Location:  cfg.App.Location,
		Logger:    log,
	}

	getProgress := query.NewGetProgressHandler(store.progress, store.progressCache, cat, log)

	deps := httpserver.Dependencies{
		UpsertProgress:  command.NewUpsertProgressHandler(store.progress, store.receipts, store.progressCache, bus, log),
		CompleteLesson:  command.NewCompleteLessonHandler(ledgerDeps),
		Login:           command.NewLoginHandler(store.curators, tokens, bus, cfg.Auth.SessionTTL, clock, log),
		CuratorAuth:     command.NewCuratorAccountHandler(store.curators, tokens, cfg.Auth.CuratorSessionTTL, cfg.Auth.BcryptCost, clock, log),
		GenerateCode:    command.NewGenerateCodeHandler(store.curators, nil, clock, log),
		GetProgress:     getProgress,
		ListStudents:    query.NewListStudentsHandler(store.curators, store.progress, cat, log),
		InitData:        initData,
		Sessions:        tokens,
		RequireInitData: cfg.Features.Gate(config.FeatureInitDataRequired),
		LoginLimiter:    store.loginLimiter,
		Logger:          log,
		HealthChecker:   newHealthChecker(store),
	}

	if bot != nil && cfg.Telegram.WebhookToken != "" {
		webhook := handlers.NewBotWebhook(log)
		webhook.RegisterCommand("start", handlers.NewStartCommand(bot, cfg.Telegram.WebAppURL))
		webhook.RegisterCommand("progress", handlers.NewProgressCommand(bot, getProgress, cfg.Telegram.WebAppURL))
		deps.WebhookHandler = webhook

		if cfg.Telegram.PublicURL != "" {
			registerWebhook(ctx, bot, cfg.Telegram, log)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.WebhookToken = cfg.Telegram.WebhookToken
	httpCfg.WebhookSecret = cfg.Telegram.WebhookSecret
	httpCfg.Version = Version
	server := httpserver.NewServer(httpCfg, deps)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := newScheduler(cfg, store, clock, log)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting HTTP server", logger.String("address", server.Address()))
		return server.Run(gctx, cfg.App.ShutdownTimeout)
	})
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}

	err = g.Wait()
	log.Info("shutdown completed")
	return err
}

func newHealthChecker(store *storage) *handlers.CompositeHealthChecker {
	checker := handlers.NewCompositeHealthChecker(Version)
	if store.db != nil {
		checker.AddCheck("postgres", handlers.NewDatabaseCheck(store.db))
	}
	if store.cache != nil {
		checker.AddOptionalCheck("redis", handlers.NewCacheCheck(store.cache))
	}
	return checker
}

func newScheduler(cfg *config.Config, store *storage, clock timeutil.Clock, log *logger.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = cfg.App.Location
	sched := scheduler.New(schedCfg)

	codes, err := scheduler.ParseSchedule(cfg.Scheduler.PurgeAccessCodesSchedule)
	if err != nil {
		return nil, fmt.Errorf("purge access codes schedule: %w", err)
	}
	if err := sched.Register(jobs.NewPurgeAccessCodesJob(store.curators.PurgeExpiredCodes, clock, log), codes); err != nil {
		return nil, err
	}

	if store.purgeReceipts != nil {
		receipts, err := scheduler.ParseSchedule(cfg.Scheduler.PurgeReceiptsSchedule)
		if err != nil {
			return nil, fmt.Errorf("purge receipts schedule: %w", err)
		}
		job := jobs.NewPurgeReceiptsJob(store.purgeReceipts, cfg.Scheduler.ReceiptRetention, clock, log)
		if err := sched.Register(job, receipts); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
