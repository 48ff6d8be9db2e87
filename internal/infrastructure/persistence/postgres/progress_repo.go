package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements ledger.Repository for PostgreSQL.
type ProgressRepository struct {
	conn   *Connection
	policy ledger.Policy
	now    func() time.Time
}

var _ ledger.Repository = (*ProgressRepository)(nil)

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection, policy ledger.Policy) *ProgressRepository {
	return &ProgressRepository{conn: conn, policy: policy, now: time.Now}
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Get returns the stored state for a learner.
func (r *ProgressRepository) Get(ctx context.Context, id shared.TelegramID) (*ledger.State, error) {
	return r.load(ctx, r.conn, id, false)
}

// GetMany returns the states that exist among ids.
func (r *ProgressRepository) GetMany(ctx context.Context, ids []shared.TelegramID) (map[shared.TelegramID]*ledger.State, error) {
	out := make(map[shared.TelegramID]*ledger.State, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = id.Int64()
	}

	rows, err := r.conn.Query(ctx, `SELECT telegram_id, data FROM progress_states WHERE telegram_id = ANY($1)`, raw)
	if err != nil {
		return nil, unavailable("GetMany", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tid int64
		var data []byte
		if err := rows.Scan(&tid, &data); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		s, err := ledger.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("telegram_id %d: %w", tid, err)
		}
		s.SetPolicy(r.policy)
		out[shared.TelegramID(tid)] = s
	}
	return out, rows.Err()
}

// Count returns the number of stored states.
func (r *ProgressRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.conn.QueryRow(ctx, `SELECT count(*) FROM progress_states`).Scan(&n); err != nil {
		return 0, unavailable("Count", err)
	}
	return n, nil
}

func (r *ProgressRepository) load(ctx context.Context, q Querier, id shared.TelegramID, forUpdate bool) (*ledger.State, error) {
	query := `SELECT data FROM progress_states WHERE telegram_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var data []byte
	if err := q.QueryRow(ctx, query, id.Int64()).Scan(&data); err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStateNotFound
		}
		return nil, unavailable("Get", err)
	}

	s, err := ledger.Decode(data)
	if err != nil {
		return nil, err
	}
	s.SetPolicy(r.policy)
	return s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Update locks the row, applies fn and writes the new version in one transaction.
func (r *ProgressRepository) Update(ctx context.Context, id shared.TelegramID, fn ledger.UpdateFunc) (*ledger.State, error) {
	var result *ledger.State

	err := r.conn.WithTx(ctx, ReadCommitted, func(tx pgx.Tx) error {
		current, err := r.load(ctx, tx, id, true)
		if err != nil && !shared.IsNotFound(err) {
			return err
		}

		var prev int64
		if current != nil {
			prev = current.Version
		}

		next, err := ledger.Prepare(id, current, fn, r.policy, r.now())
		if err != nil {
			return err
		}

		applied, err := r.write(ctx, tx, next, &prev)
		if err != nil {
			return err
		}
		if !applied {
			return shared.Errorf("postgres", "Update", shared.ErrConcurrentModification,
				"progress of %d changed concurrently", id)
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Put stores s only if its version supersedes the stored one.
func (r *ProgressRepository) Put(ctx context.Context, s *ledger.State) (ledger.PutResult, error) {
	if err := ledger.ValidateIncoming(s); err != nil {
		return ledger.PutResult{}, err
	}

	var res ledger.PutResult
	var conflict error

	err := r.conn.WithTx(ctx, ReadCommitted, func(tx pgx.Tx) error {
		stored, err := r.load(ctx, tx, s.TelegramID, true)
		if err != nil && !shared.IsNotFound(err) {
			return err
		}

		switch ledger.ResolvePut(stored, s) {
		case ledger.PutDuplicate:
			res = ledger.PutResult{Current: stored}
			return nil
		case ledger.PutConflict:
			res = ledger.PutResult{Current: stored}
			conflict = ledger.ConflictError(stored, s)
			return nil
		}

		applied, err := r.write(ctx, tx, s, nil)
		if err != nil {
			return err
		}
		if !applied {
			return shared.Errorf("postgres", "Put", shared.ErrConcurrentModification,
				"progress of %d changed concurrently", s.TelegramID)
		}
		res = ledger.PutResult{Applied: true, Current: s}
		return nil
	})
	if err != nil {
		return ledger.PutResult{}, err
	}
	return res, conflict
}

// write upserts s. With expected set, the row must still hold that version;
// otherwise the stored version must be lower than s.Version.
func (r *ProgressRepository) write(ctx context.Context, tx pgx.Tx, s *ledger.State, expected *int64) (bool, error) {
	data, err := ledger.Encode(s)
	if err != nil {
		return false, fmt.Errorf("failed to encode progress: %w", err)
	}

	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now().UTC()
	}
	args := []any{s.TelegramID.Int64(), s.Version, s.SchemaVersion, data, updatedAt}

	guard := `WHERE progress_states.version < EXCLUDED.version`
	if expected != nil {
		guard = `WHERE progress_states.version = $6`
		args = append(args, *expected)
	}

	query := `
		INSERT INTO progress_states (telegram_id, version, schema_version, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (telegram_id) DO UPDATE SET
			version = EXCLUDED.version,
			schema_version = EXCLUDED.schema_version,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
		` + guard

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, unavailable("write", err)
	}
	return tag.RowsAffected() == 1, nil
}
