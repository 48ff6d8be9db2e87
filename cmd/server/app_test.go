package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teens-space/progress-hub/config"
	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/infrastructure/messaging"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("REDIS_DISABLED", "true")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestOpenStorage_InMemory(t *testing.T) {
	cfg := testConfig(t)

	store, err := openStorage(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer store.close()

	assert.Nil(t, store.db)
	assert.Nil(t, store.cache)
	assert.Nil(t, store.progressCache)
	assert.Nil(t, store.loginLimiter)
	assert.Nil(t, store.purgeReceipts)
	assert.NotNil(t, store.progress)
	assert.NotNil(t, store.receipts)
}

func TestNewScheduler(t *testing.T) {
	cfg := testConfig(t)
	store, err := openStorage(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)

	sched, err := newScheduler(cfg, store, timeutil.SystemClock{}, logger.Nop())
	require.NoError(t, err)
	jobs := sched.ListJobs()
	require.Len(t, jobs, 1, "receipt purge needs PostgreSQL")
	assert.Equal(t, "purge_access_codes", jobs[0].Name)

	cfg.Scheduler.PurgeAccessCodesSchedule = "not a cron"
	_, err = newScheduler(cfg, store, timeutil.SystemClock{}, logger.Nop())
	assert.Error(t, err)

	cfg.Scheduler.Enabled = false
	sched, err = newScheduler(cfg, store, timeutil.SystemClock{}, logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, sched)
}

func TestNewTokens(t *testing.T) {
	cfg := testConfig(t)

	tokens, err := newTokens(cfg, logger.Nop())
	require.NoError(t, err)
	assert.NotNil(t, tokens)

	cfg.App.Environment = config.EnvStaging
	_, err = newTokens(cfg, logger.Nop())
	assert.Error(t, err)
}

func TestHealthChecker_InMemory(t *testing.T) {
	cfg := testConfig(t)
	store, err := openStorage(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)

	status := newHealthChecker(store).Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, Version, status.Version)
}

func TestCloseBus_ReportsDeadLetters(t *testing.T) {
	var out bytes.Buffer
	log := logger.New(logger.Options{Output: &out, Level: logger.LevelInfo})

	dlq := messaging.NewDeadLetterQueue(10)
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		Middleware:    []messaging.Middleware{messaging.DeadLetterMiddleware(dlq)},
		EnableMetrics: true,
	})
	require.NoError(t, bus.SubscribeAll(auditEvent(log)))
	require.NoError(t, bus.Subscribe(shared.EventProgressSynced, func(shared.Event) error {
		return errors.New("telegram down")
	}))

	require.NoError(t, bus.Publish(ledger.NewProgressSynced(777, 3, "push")))
	closeBus(bus, dlq, log)

	logs := out.String()
	assert.Contains(t, logs, `"ledger event"`)
	assert.Contains(t, logs, `"dead_letters":1`)
	assert.Contains(t, logs, "telegram down")
}
