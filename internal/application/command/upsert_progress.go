package command

import (
	"context"
	"fmt"
	"strconv"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPSERT PROGRESS COMMAND
// Server side of POST /api/sync/progress: an idempotent, version-guarded
// upsert of the client's state.
// ══════════════════════════════════════════════════════════════════════════════

// IdempotencyStore remembers request keys that were already applied.
type IdempotencyStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string, id shared.TelegramID, version int64) error
}

// IdempotencyKey builds the key clients send with a push.
func IdempotencyKey(id shared.TelegramID, version int64) string {
	return id.String() + ":" + strconv.FormatInt(version, 10)
}

// UpsertProgressCommand contains the pushed state.
type UpsertProgressCommand struct {
	// TelegramID identifies the learner. Must match State.TelegramID.
	TelegramID shared.TelegramID

	// State is the client's versioned state.
	State *ledger.State

	// IdempotencyKey is optional.
	IdempotencyKey string
}

// Validate validates the command.
func (c UpsertProgressCommand) Validate() error {
	if err := requireTelegramID("upsert_progress", c.TelegramID); err != nil {
		return err
	}
	if c.State == nil {
		return shared.NewDomainError("upsert_progress", "Validate", shared.ErrInvalidInput, "progress_data is required")
	}
	if c.State.TelegramID != c.TelegramID {
		return shared.Errorf("upsert_progress", "Validate", shared.ErrInvalidInput,
			"progress_data belongs to %d, not %d", c.State.TelegramID, c.TelegramID)
	}
	return nil
}

// UpsertProgressResult contains the outcome of the upsert.
type UpsertProgressResult struct {
	// Applied is true when the incoming state was written.
	Applied bool

	// Duplicate is true when the request was already processed.
	Duplicate bool

	// State is what the server holds now. On conflict it is the server state.
	State *ledger.State
}

// UpsertProgressHandler handles the UpsertProgressCommand.
type UpsertProgressHandler struct {
	repo        ledger.Repository
	idempotency IdempotencyStore
	cache       CacheInvalidator
	publisher   shared.EventPublisher
	logger      *logger.Logger
}

// NewUpsertProgressHandler creates a new UpsertProgressHandler.
// idempotency, cache and publisher may be nil.
func NewUpsertProgressHandler(
	repo ledger.Repository,
	idempotency IdempotencyStore,
	cache CacheInvalidator,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *UpsertProgressHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UpsertProgressHandler{
		repo:        repo,
		idempotency: idempotency,
		cache:       cache,
		publisher:   publisher,
		logger:      log,
	}
}

// Handle executes the upsert. On a version conflict the result carries the
// server state together with an ErrVersionConflict error.
func (h *UpsertProgressHandler) Handle(ctx context.Context, cmd UpsertProgressCommand) (*UpsertProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	log := h.logger.With(logger.TelegramID(cmd.TelegramID.Int64()), logger.StateVersion(cmd.State.Version))

	if cmd.IdempotencyKey != "" && h.idempotency != nil {
		seen, err := h.idempotency.Seen(ctx, cmd.IdempotencyKey)
		if err != nil {
			// Fall through: the version guard still protects the write.
			log.Warn("idempotency lookup failed", logger.Err(err))
		} else if seen {
			stored, err := h.repo.Get(ctx, cmd.TelegramID)
			if err != nil {
				return nil, fmt.Errorf("upsert_progress: %w", err)
			}
			return &UpsertProgressResult{Duplicate: true, State: stored}, nil
		}
	}

	res, err := h.repo.Put(ctx, cmd.State)
	if err != nil {
		if shared.IsConflict(err) {
			log.Info("rejected stale progress push", logger.Err(err))
			return &UpsertProgressResult{State: res.Current}, err
		}
		return nil, fmt.Errorf("upsert_progress: %w", err)
	}

	if cmd.IdempotencyKey != "" && h.idempotency != nil {
		if err := h.idempotency.Remember(ctx, cmd.IdempotencyKey, cmd.TelegramID, res.Current.Version); err != nil {
			log.Warn("failed to remember idempotency key", logger.Err(err))
		}
	}

	if res.Applied {
		if h.cache != nil {
			if err := h.cache.Invalidate(ctx, cmd.TelegramID); err != nil {
				log.Warn("failed to invalidate progress cache", logger.Err(err))
			}
		}
		synced := ledger.NewProgressSynced(cmd.TelegramID, res.Current.Version, "push")
		if err := shared.PublishAll(h.publisher, []shared.Event{synced}); err != nil {
			log.Warn("failed to publish progress synced", logger.Err(err))
		}
		log.Info("progress upserted")
	}

	return &UpsertProgressResult{
		Applied:   res.Applied,
		Duplicate: !res.Applied,
		State:     res.Current,
	}, nil
}
