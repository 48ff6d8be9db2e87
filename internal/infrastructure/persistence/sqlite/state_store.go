package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// StateStore implements ledger.Repository on SQLite.
// With the outbox enabled every Update enqueues a push in the same transaction.
type StateStore struct {
	db     *sql.DB
	policy ledger.Policy
	outbox bool
	now    func() time.Time
	newID  func() string
}

var (
	_ ledger.Repository = (*StateStore)(nil)
	_ ledger.SyncBase   = (*StateStore)(nil)
)

// StoreOption configures a StateStore.
type StoreOption func(*StateStore)

// WithOutbox enqueues a progress.push row on every successful Update.
func WithOutbox() StoreOption {
	return func(s *StateStore) { s.outbox = true }
}

// WithPolicy sets the streak policy attached to loaded states.
func WithPolicy(p ledger.Policy) StoreOption {
	return func(s *StateStore) { s.policy = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *StateStore) { s.now = now }
}

// NewStateStore creates a StateStore over an opened database.
func NewStateStore(db *sql.DB, opts ...StoreOption) *StateStore {
	s := &StateStore{
		db:     db,
		policy: ledger.DefaultPolicy(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored state for a learner.
func (s *StateStore) Get(ctx context.Context, id shared.TelegramID) (*ledger.State, error) {
	return s.load(ctx, s.db, id)
}

// IDs returns every learner stored locally.
func (s *StateStore) IDs(ctx context.Context) ([]shared.TelegramID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT telegram_id FROM ledger_state ORDER BY telegram_id`)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var ids []shared.TelegramID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan state id: %w", err)
		}
		ids = append(ids, shared.TelegramID(id))
	}
	return ids, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *StateStore) load(ctx context.Context, q queryer, id shared.TelegramID) (*ledger.State, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM ledger_state WHERE telegram_id = ?`, id.Int64()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrStateNotFound
		}
		return nil, fmt.Errorf("load state %d: %w", id, err)
	}

	st, err := ledger.Decode([]byte(data))
	if err != nil {
		return nil, err
	}
	st.SetPolicy(s.policy)
	return st, nil
}

// Update applies fn atomically and, with the outbox enabled, enqueues a push.
func (s *StateStore) Update(ctx context.Context, id shared.TelegramID, fn ledger.UpdateFunc) (*ledger.State, error) {
	var result *ledger.State
	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := s.load(ctx, tx, id)
		if err != nil && !shared.IsNotFound(err) {
			return err
		}
		result, err = s.update(ctx, tx, id, current, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *StateStore) update(ctx context.Context, tx *sql.Tx, id shared.TelegramID, current *ledger.State, fn ledger.UpdateFunc) (*ledger.State, error) {
	next, err := ledger.Prepare(id, current, fn, s.policy, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.write(ctx, tx, next); err != nil {
		return nil, err
	}

	if s.outbox {
		entry := ledger.OutboxEntry{
			ID:            s.newID(),
			TelegramID:    id,
			Kind:          ledger.OutboxKindPush,
			StateVersion:  next.Version,
			Events:        ledger.EventTypes(next.PendingEvents()),
			NextAttemptAt: next.UpdatedAt,
			CreatedAt:     next.UpdatedAt,
		}
		if err := insertOutbox(ctx, tx, entry); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// Put adopts s when its version supersedes the local one. Adopted states
// come from the server, so nothing is enqueued.
func (s *StateStore) Put(ctx context.Context, st *ledger.State) (ledger.PutResult, error) {
	if err := ledger.ValidateIncoming(st); err != nil {
		return ledger.PutResult{}, err
	}

	var res ledger.PutResult
	var conflict error

	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		stored, err := s.load(ctx, tx, st.TelegramID)
		if err != nil && !shared.IsNotFound(err) {
			return err
		}

		switch ledger.ResolvePut(stored, st) {
		case ledger.PutDuplicate:
			res = ledger.PutResult{Current: stored}
			return nil
		case ledger.PutConflict:
			res = ledger.PutResult{Current: stored}
			conflict = ledger.ConflictError(stored, st)
			return nil
		}

		if err := s.write(ctx, tx, st); err != nil {
			return err
		}
		st.SetPolicy(s.policy)
		res = ledger.PutResult{Applied: true, Current: st}
		return nil
	})
	if err != nil {
		return ledger.PutResult{}, err
	}
	return res, conflict
}

// Base returns the last state the server is known to hold.
func (s *StateStore) Base(ctx context.Context, id shared.TelegramID) (*ledger.State, error) {
	return s.loadSnapshot(ctx, s.db, tableSyncBase, id)
}

// SetBase records st as accepted by the server unless a newer base is stored.
func (s *StateStore) SetBase(ctx context.Context, st *ledger.State) error {
	return WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.writeSnapshot(ctx, tx, tableSyncBase, st, true)
	})
}

// InFlight returns the last pushed state whose delivery was not confirmed.
func (s *StateStore) InFlight(ctx context.Context, id shared.TelegramID) (*ledger.State, error) {
	return s.loadSnapshot(ctx, s.db, tableSyncInFlight, id)
}

// SetInFlight records st before it is pushed.
func (s *StateStore) SetInFlight(ctx context.Context, st *ledger.State) error {
	return WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.writeSnapshot(ctx, tx, tableSyncInFlight, st, false)
	})
}

const (
	tableSyncBase     = "sync_base"
	tableSyncInFlight = "sync_inflight"
)

func (s *StateStore) loadSnapshot(ctx context.Context, q queryer, table string, id shared.TelegramID) (*ledger.State, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM `+table+` WHERE telegram_id = ?`, id.Int64()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrStateNotFound
		}
		return nil, fmt.Errorf("load %s %d: %w", table, id, err)
	}
	return ledger.Decode([]byte(data))
}

// writeSnapshot upserts st into table. With forwardOnly an older version
// does not replace a newer one.
func (s *StateStore) writeSnapshot(ctx context.Context, tx *sql.Tx, table string, st *ledger.State, forwardOnly bool) error {
	data, err := ledger.Encode(st)
	if err != nil {
		return fmt.Errorf("encode %s: %w", table, err)
	}
	query := `
		INSERT INTO ` + table + ` (telegram_id, version, data)
		VALUES (?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			version = excluded.version,
			data = excluded.data`
	if forwardOnly {
		query += `
		WHERE excluded.version > ` + table + `.version`
	}
	if _, err := tx.ExecContext(ctx, query, st.TelegramID.Int64(), st.Version, string(data)); err != nil {
		return fmt.Errorf("write %s %d: %w", table, st.TelegramID, err)
	}
	return nil
}

// Rebase merges the local changes made since the sync base into server,
// stores the result like Update does and makes server the new base.
func (s *StateStore) Rebase(ctx context.Context, server *ledger.State) (*ledger.State, error) {
	if err := ledger.ValidateIncoming(server); err != nil {
		return nil, err
	}
	id := server.TelegramID

	var result *ledger.State
	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := s.load(ctx, tx, id)
		if err != nil && !shared.IsNotFound(err) {
			return err
		}
		base, err := s.loadSnapshot(ctx, tx, tableSyncBase, id)
		if err != nil && !shared.IsNotFound(err) {
			return err
		}

		result, err = s.update(ctx, tx, id, current, func(st *ledger.State) error {
			return st.ReplaceContent(ledger.Rebase(base, st, server))
		})
		if err != nil {
			return err
		}
		return s.writeSnapshot(ctx, tx, tableSyncBase, server, true)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *StateStore) write(ctx context.Context, tx *sql.Tx, st *ledger.State) error {
	data, err := ledger.Encode(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	updatedAt := st.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_state (telegram_id, version, schema_version, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			version = excluded.version,
			schema_version = excluded.schema_version,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		st.TelegramID.Int64(), st.Version, st.SchemaVersion, string(data), millis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("write state %d: %w", st.TelegramID, err)
	}
	return nil
}

func insertOutbox(ctx context.Context, tx *sql.Tx, e ledger.OutboxEntry) error {
	payload, err := json.Marshal(eventsOrEmpty(e.Events))
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (id, telegram_id, kind, state_version, payload, attempts, next_attempt_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TelegramID.Int64(), e.Kind, e.StateVersion, string(payload),
		e.Attempts, millis(e.NextAttemptAt), e.LastError, millis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}

func eventsOrEmpty(events []shared.EventType) []shared.EventType {
	if events == nil {
		return []shared.EventType{}
	}
	return events
}
