package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// OutboxStore implements ledger.Outbox over the outbox table written by StateStore.
type OutboxStore struct {
	db *sql.DB
}

var _ ledger.Outbox = (*OutboxStore)(nil)

// NewOutboxStore creates an OutboxStore.
func NewOutboxStore(db *sql.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Due returns unsent entries whose next attempt is not after now, oldest first.
func (o *OutboxStore) Due(ctx context.Context, now time.Time, limit int) ([]ledger.OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := o.db.QueryContext(ctx, `
		SELECT id, telegram_id, kind, state_version, payload, attempts, next_attempt_at, last_error, created_at
		FROM outbox
		WHERE sent_at IS NULL AND next_attempt_at <= ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?`,
		millis(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due outbox: %w", err)
	}
	defer rows.Close()

	var out []ledger.OutboxEntry
	for rows.Next() {
		var e ledger.OutboxEntry
		var telegramID, nextAt, createdAt int64
		var payload string
		if err := rows.Scan(&e.ID, &telegramID, &e.Kind, &e.StateVersion, &payload, &e.Attempts, &nextAt, &e.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Events); err != nil {
			return nil, shared.WrapError("sqlite", "Due", shared.ErrCorruptState, "malformed outbox payload", err)
		}
		e.TelegramID = shared.TelegramID(telegramID)
		e.NextAttemptAt = fromMillis(nextAt)
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkSent confirms every unsent entry of id with a version up to upTo.
func (o *OutboxStore) MarkSent(ctx context.Context, id shared.TelegramID, upTo int64, now time.Time) (int64, error) {
	res, err := o.db.ExecContext(ctx, `
		UPDATE outbox SET sent_at = ?, last_error = ''
		WHERE telegram_id = ? AND state_version <= ? AND sent_at IS NULL`,
		millis(now), id.Int64(), upTo,
	)
	if err != nil {
		return 0, fmt.Errorf("mark outbox sent: %w", err)
	}
	return res.RowsAffected()
}

// Reschedule postpones an entry after a failed attempt.
func (o *OutboxStore) Reschedule(ctx context.Context, entryID string, attempts int, next time.Time, lastErr string) error {
	res, err := o.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = ?, next_attempt_at = ?, last_error = ?
		WHERE id = ? AND sent_at IS NULL`,
		attempts, millis(next), lastErr, entryID,
	)
	if err != nil {
		return fmt.Errorf("reschedule outbox: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.Errorf("sqlite", "Reschedule", shared.ErrNotFound, "outbox entry %s not pending", entryID)
	}
	return nil
}

// Pending counts unsent entries of id.
func (o *OutboxStore) Pending(ctx context.Context, id shared.TelegramID) (int, error) {
	var n int
	err := o.db.QueryRowContext(ctx, `SELECT count(*) FROM outbox WHERE telegram_id = ? AND sent_at IS NULL`, id.Int64()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}

// PurgeSent deletes entries confirmed before the cutoff.
func (o *OutboxStore) PurgeSent(ctx context.Context, before time.Time) (int64, error) {
	res, err := o.db.ExecContext(ctx, `DELETE FROM outbox WHERE sent_at IS NOT NULL AND sent_at < ?`, millis(before))
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return res.RowsAffected()
}
