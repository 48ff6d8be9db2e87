package command

import (
	"context"
	"fmt"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/circuitbreaker"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/retry"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DRAIN OUTBOX COMMAND
// Delivers queued local changes to the sync API. Rows are compacted to the
// newest version per learner; one push of the current state confirms every
// row up to that version. A push is built on the sync base, so the server
// rejects it when it changed in the meantime; the client then rebases its
// changes onto the server copy and pushes again.
// ══════════════════════════════════════════════════════════════════════════════

// LocalLedger is the client store: the ledger plus its sync base.
type LocalLedger interface {
	ledger.Repository
	ledger.SyncBase
}

// RemoteProgress is the client view of the remote sync API.
type RemoteProgress interface {
	// Push uploads the state. On a version conflict it returns the server
	// state together with an error for which shared.IsConflict is true.
	Push(ctx context.Context, s *ledger.State) (*ledger.State, error)

	// Pull downloads the server state. Unknown learners yield shared.ErrStateNotFound.
	Pull(ctx context.Context, id shared.TelegramID) (*ledger.State, error)
}

// OutboxPurger removes delivered rows.
type OutboxPurger interface {
	PurgeSent(ctx context.Context, before time.Time) (int64, error)
}

// DrainOutboxDeps contains the dependencies of DrainOutboxHandler.
type DrainOutboxDeps struct {
	Outbox ledger.Outbox
	Local  LocalLedger
	Remote RemoteProgress

	// Purger and PurgeEnabled drop delivered rows older than KeepSent after a drain.
	Purger       OutboxPurger
	PurgeEnabled func() bool
	KeepSent     time.Duration

	Backoff   retry.Backoff
	BatchSize int
	Clock     timeutil.Clock
	Logger    *logger.Logger
}

// DrainOutboxResult summarises one drain pass.
type DrainOutboxResult struct {
	Due    int
	Pushed int
	// Rebased counts learners whose changes were merged onto a newer server copy.
	Rebased     int
	Rescheduled int
	Purged      int64
}

// DrainOutboxHandler handles one pass over the outbox.
type DrainOutboxHandler struct {
	deps DrainOutboxDeps
}

// NewDrainOutboxHandler creates a new DrainOutboxHandler.
func NewDrainOutboxHandler(deps DrainOutboxDeps) *DrainOutboxHandler {
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Backoff.Initial == 0 {
		deps.Backoff = retry.OutboxBackoff()
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = 100
	}
	if deps.KeepSent <= 0 {
		deps.KeepSent = 7 * 24 * time.Hour
	}
	return &DrainOutboxHandler{deps: deps}
}

// Handle runs one drain pass. Delivery failures are rescheduled and are not
// returned as errors; only local storage failures abort the pass.
func (h *DrainOutboxHandler) Handle(ctx context.Context) (*DrainOutboxResult, error) {
	now := h.deps.Clock.Now()

	due, err := h.deps.Outbox.Due(ctx, now, h.deps.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("drain_outbox: %w", err)
	}
	result := &DrainOutboxResult{Due: len(due)}

	byUser := make(map[shared.TelegramID][]ledger.OutboxEntry)
	for _, e := range due {
		byUser[e.TelegramID] = append(byUser[e.TelegramID], e)
	}

	for _, head := range ledger.CompactOutbox(due) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := h.deliver(ctx, head, byUser[head.TelegramID], now, result); err != nil {
			return result, fmt.Errorf("drain_outbox: %w", err)
		}
	}

	if h.deps.Purger != nil && h.deps.PurgeEnabled != nil && h.deps.PurgeEnabled() {
		n, err := h.deps.Purger.PurgeSent(ctx, now.Add(-h.deps.KeepSent))
		if err != nil {
			h.deps.Logger.Warn("failed to purge delivered outbox rows", logger.Err(err))
		} else {
			result.Purged = n
		}
	}

	if result.Due > 0 {
		h.deps.Logger.Info("outbox drained",
			logger.Int("due", result.Due),
			logger.Int("pushed", result.Pushed),
			logger.Int("rebased", result.Rebased),
			logger.Int("rescheduled", result.Rescheduled),
		)
	}
	return result, nil
}

// maxPushRounds bounds the push/rebase exchanges for one learner per pass.
const maxPushRounds = 3

func (h *DrainOutboxHandler) deliver(ctx context.Context, head ledger.OutboxEntry, rows []ledger.OutboxEntry, now time.Time, result *DrainOutboxResult) error {
	log := h.deps.Logger.With(logger.TelegramID(head.TelegramID.Int64()), logger.OutboxID(head.ID))
	id := head.TelegramID
	confirmed := false

	for round := 1; ; round++ {
		local, err := h.deps.Local.Get(ctx, id)
		if err != nil {
			if shared.IsNotFound(err) {
				_, err = h.deps.Outbox.MarkSent(ctx, id, head.StateVersion, now)
			}
			return err
		}
		base, err := h.snapshot(ctx, h.deps.Local.Base, id)
		if err != nil {
			return err
		}

		if base != nil && ledger.SameProgress(base, local) {
			// The server already holds this content.
			_, err := h.deps.Outbox.MarkSent(ctx, id, local.Version, now)
			return err
		}

		prev, err := h.snapshot(ctx, h.deps.Local.InFlight, id)
		if err != nil {
			return err
		}
		push := ledger.PushState(base, local)
		if err := h.deps.Local.SetInFlight(ctx, push); err != nil {
			return err
		}
		server, err := h.deps.Remote.Push(ctx, push)
		if err == nil && server != nil && !ledger.SameProgress(server, push) {
			// A replayed idempotency key answers with what the server holds.
			err = ledger.ConflictError(server, push)
		}

		switch {
		case err == nil:
			if err := h.deps.Local.SetBase(ctx, push); err != nil {
				return err
			}
			if _, err := h.deps.Outbox.MarkSent(ctx, id, local.Version, now); err != nil {
				return err
			}
			result.Pushed++
			log.Debug("progress pushed",
				logger.StateVersion(local.Version),
				logger.Int64("server_version", push.Version))
			return nil

		case shared.IsConflict(err) && server != nil && round < maxPushRounds:
			rebased, err := h.resolveConflict(ctx, id, server, prev, local.Version, now, result, log)
			if err != nil {
				return err
			}
			confirmed = confirmed || rebased
			continue

		case shared.IsConflict(err) && server != nil:
			log.Info("server kept changing, retrying next pass", logger.Int64("server_version", server.Version))
			return nil
		}

		if shared.IsRetryable(err) || circuitbreaker.IsRejected(err) {
			log.Debug("push deferred", logger.Err(err))
		} else {
			log.Error("push failed", logger.Err(err))
		}
		if confirmed {
			// The row written by the rebase is still due.
			return nil
		}
		return h.reschedule(ctx, rows, now, err, result)
	}
}

// resolveConflict moves the sync base to server. When server is prev, an
// earlier push of ours whose answer was lost, it becomes the base as is; otherwise
// the local changes are rebased onto it and rows up to localVersion are
// confirmed, superseded by the row the rebase wrote.
func (h *DrainOutboxHandler) resolveConflict(ctx context.Context, id shared.TelegramID, server, prev *ledger.State, localVersion int64, now time.Time, result *DrainOutboxResult, log *logger.Logger) (rebased bool, err error) {
	if prev != nil && prev.Version == server.Version && ledger.SameProgress(prev, server) {
		log.Debug("earlier push was applied", logger.Int64("server_version", server.Version))
		return false, h.deps.Local.SetBase(ctx, server)
	}

	merged, err := h.deps.Local.Rebase(ctx, server)
	if err != nil {
		return false, err
	}
	if _, err := h.deps.Outbox.MarkSent(ctx, id, localVersion, now); err != nil {
		return false, err
	}
	result.Rebased++
	log.Info("rebased local progress onto server",
		logger.Int64("server_version", server.Version),
		logger.StateVersion(merged.Version))
	return true, nil
}

func (h *DrainOutboxHandler) snapshot(ctx context.Context, load func(context.Context, shared.TelegramID) (*ledger.State, error), id shared.TelegramID) (*ledger.State, error) {
	s, err := load(ctx, id)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	return s, err
}

func (h *DrainOutboxHandler) reschedule(ctx context.Context, rows []ledger.OutboxEntry, now time.Time, cause error, result *DrainOutboxResult) error {
	for _, row := range rows {
		attempt := row.Attempts + 1
		next := h.deps.Backoff.Next(now, attempt)
		if err := h.deps.Outbox.Reschedule(ctx, row.ID, attempt, next, cause.Error()); err != nil && !shared.IsNotFound(err) {
			return err
		}
		result.Rescheduled++
	}
	return nil
}
