package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teens-space/progress-hub/config"
	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/catalog"
	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/infrastructure/auth"
	"github.com/teens-space/progress-hub/internal/infrastructure/external/telegram"
	"github.com/teens-space/progress-hub/internal/infrastructure/messaging"
	"github.com/teens-space/progress-hub/internal/infrastructure/persistence/memory"
	"github.com/teens-space/progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/teens-space/progress-hub/internal/infrastructure/persistence/redis"
	"github.com/teens-space/progress-hub/internal/infrastructure/scheduler/jobs"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// storage holds the repositories of one process. Without DATABASE_URL
// (development only) it falls back to in-memory repositories.
type storage struct {
	db    *postgres.Connection
	cache *redis.Cache

	progress ledger.Repository
	curators curator.Repository
	receipts command.IdempotencyStore

	// Optional, nil interfaces when Redis is unavailable.
	progressCache interface {
		query.ProgressCache
		command.CacheInvalidator
	}
	loginLimiter interface {
		Allow(ctx context.Context, identifier, action string) (bool, error)
	}

	// purgeReceipts is set when receipts live in PostgreSQL.
	purgeReceipts jobs.PurgeFunc
}

func (s *storage) close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	pg := postgres.DefaultConfig()
	pg.URL = cfg.Database.URL
	pg.MaxConns = cfg.Database.MaxConns
	pg.MinConns = cfg.Database.MinConns
	pg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pg.ConnectTimeout = cfg.Database.ConnectTimeout

	conn, err := postgres.NewConnection(ctx, pg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}

func migrate(ctx context.Context, conn *postgres.Connection, log *logger.Logger) error {
	migrator := postgres.NewMigrator(conn)
	applied, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		log.Warn("failed to get migration status", logger.Err(err))
		return nil
	}
	log.Info("migrations completed",
		logger.Int("applied_now", applied),
		logger.Int("total", len(status)))
	return nil
}

func connectRedis(cfg *config.Config) (*redis.Cache, error) {
	rc := redis.DefaultConfig()
	rc.URL = cfg.Redis.URL
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout
	return redis.NewCache(rc)
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	s := &storage{}
	policy := ledger.DefaultPolicy()

	// ─────────────────────────────────────────────────────────────────────────
	// PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.URL != "" {
		log.Info("connecting to database...")
		conn, err := connectPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.db = conn
		log.Info("database connection established")

		if cfg.Database.AutoMigrate {
			if err := migrate(ctx, conn, log); err != nil {
				s.close()
				return nil, err
			}
		}

		receipts := postgres.NewReceiptRepository(conn)
		s.progress = postgres.NewProgressRepository(conn, policy)
		s.curators = postgres.NewCuratorRepository(conn)
		s.receipts = receipts
		s.purgeReceipts = receipts.PurgeBefore
	} else {
		log.Warn("DATABASE_URL is not set, using in-memory storage")
		s.progress = memory.NewProgressRepository(policy)
		s.curators = memory.NewCuratorRepository()
		s.receipts = memory.NewReceiptStore()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Disabled {
		return s, nil
	}
	cache, err := connectRedis(cfg)
	if err != nil {
		log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		return s, nil
	}
	s.cache = cache
	s.progressCache = redis.NewProgressCache(cache, cfg.Redis.ProgressCacheTTL)
	s.loginLimiter = redis.NewRateLimiter(cache, cfg.Redis.LoginRateLimit, cfg.Redis.LoginRateWindow)
	if s.purgeReceipts == nil {
		s.receipts = redis.NewIdempotencyStore(cache, cfg.Redis.IdempotencyTTL)
	}
	log.Info("Redis connection established")

	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// ══════════════════════════════════════════════════════════════════════════════

func newTokens(cfg *config.Config, log *logger.Logger) (*auth.Tokens, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if !cfg.IsDevelopment() {
			return nil, errors.New("AUTH_JWT_SECRET is required")
		}
		buf := make([]byte, config.MinJWTSecretLength)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		log.Warn("AUTH_JWT_SECRET is not set, sessions will not survive a restart")
	}
	return auth.NewTokens(secret, cfg.Auth.JWTIssuer)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

// registerWebhook points the bot at this server. Failures are logged only:
// a webhook set earlier keeps working.
func registerWebhook(ctx context.Context, bot *telegram.Client, cfg config.TelegramConfig, log *logger.Logger) {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	me, err := bot.GetMe(ctx)
	if err != nil {
		log.Warn("telegram getMe failed", logger.Err(err))
		return
	}

	url := strings.TrimRight(cfg.PublicURL, "/") + "/webhook/telegram/" + cfg.WebhookToken
	err = bot.SetWebhook(ctx, telegram.SetWebhookParams{
		URL:            url,
		SecretToken:    cfg.WebhookSecret,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		log.Warn("telegram webhook registration failed", logger.String("bot", me.Username), logger.Err(err))
		return
	}
	log.Info("telegram webhook registered", logger.String("bot", me.Username), logger.String("name", me.FullName()))
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// auditEvent writes one line per ledger event.
func auditEvent(log *logger.Logger) shared.EventHandler {
	log = log.With(logger.Component("audit"))
	return func(event shared.Event) error {
		log.Info("ledger event",
			logger.String("event_type", string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Time("occurred_at", event.OccurredAt()))
		return nil
	}
}

// closeBus drains the bus and reports what it could not deliver.
func closeBus(bus *messaging.InMemoryEventBus, dlq *messaging.DeadLetterQueue, log *logger.Logger) {
	log.Info("closing event bus...")
	_ = bus.Close()

	fields := []logger.Field{logger.Int("dead_letters", dlq.Size())}
	if m := bus.Metrics(); m != nil {
		snap := m.Snapshot()
		fields = append(fields,
			logger.Int64("published", snap.TotalPublished),
			logger.Int64("handler_failures", snap.HandlerFailures),
			logger.Duration("avg_handler", snap.AverageHandlerDuration))
	}
	log.Info("event bus closed", fields...)

	for _, e := range dlq.Entries() {
		log.Warn("undelivered event",
			logger.String("event_type", string(e.Event.EventType())),
			logger.String("aggregate_id", e.Event.AggregateID()),
			logger.Err(e.Error))
	}
}
