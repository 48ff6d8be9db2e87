// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SHARED LEDGER PLUMBING
// Every ledger command runs as one Repository.Update: the day is opened
// (achievements materialised, quests reset), the mutation is applied, and
// the collected events are published after the write is committed.
// ══════════════════════════════════════════════════════════════════════════════

// CacheInvalidator drops cached copies of a learner's state after a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, id shared.TelegramID) error
}

// LedgerDeps bundles what every ledger command handler needs.
type LedgerDeps struct {
	Repo      ledger.Repository
	Catalog   ledger.Catalog
	Publisher shared.EventPublisher

	// Cache is optional.
	Cache CacheInvalidator

	// Clock and Location define "today" when a command carries no date.
	Clock    timeutil.Clock
	Location *time.Location

	Logger *logger.Logger
}

func (d LedgerDeps) withDefaults() LedgerDeps {
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Location == nil {
		d.Location = timeutil.MoscowTZ
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return d
}

// today resolves the command date, falling back to the clock.
func (d LedgerDeps) today(date timeutil.Date) timeutil.Date {
	if !date.IsZero() {
		return date
	}
	return timeutil.Today(d.Clock, d.Location)
}

// update runs fn inside Repository.Update and publishes the resulting events.
func (d LedgerDeps) update(ctx context.Context, op string, id shared.TelegramID, today timeutil.Date, fn ledger.UpdateFunc) (*ledger.State, []shared.Event, error) {
	start := d.Clock.Now()

	state, err := d.Repo.Update(ctx, id, func(s *ledger.State) error {
		s.BeginDay(today, d.Catalog)
		return fn(s)
	})
	if err != nil {
		return nil, nil, err
	}

	events := state.PullEvents()

	if d.Cache != nil {
		if err := d.Cache.Invalidate(ctx, id); err != nil {
			d.Logger.Warn("failed to invalidate progress cache",
				logger.Operation(op), logger.TelegramID(id.Int64()), logger.Err(err))
		}
	}

	if err := shared.PublishAll(d.Publisher, events); err != nil {
		// State is already committed.
		d.Logger.Warn("failed to publish ledger events",
			logger.Operation(op), logger.TelegramID(id.Int64()), logger.Err(err))
	}

	d.Logger.Debug("ledger updated",
		logger.Operation(op),
		logger.TelegramID(id.Int64()),
		logger.StateVersion(state.Version),
		logger.Int("events", len(events)),
		logger.Latency(d.Clock.Now().Sub(start)),
	)
	return state, events, nil
}

func requireTelegramID(op string, id shared.TelegramID) error {
	if !id.IsValid() {
		return shared.Errorf(op, "Validate", shared.ErrInvalidID, "telegram_id %d is invalid", id)
	}
	return nil
}
