package postgres

import (
	"context"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ReceiptRepository stores idempotency keys of accepted sync uploads.
// It backs the idempotency check when Redis is not configured.
type ReceiptRepository struct {
	conn *Connection
}

// NewReceiptRepository creates a new ReceiptRepository.
func NewReceiptRepository(conn *Connection) *ReceiptRepository {
	return &ReceiptRepository{conn: conn}
}

// Seen reports whether key was already remembered.
func (r *ReceiptRepository) Seen(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sync_receipts WHERE idempotency_key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, unavailable("Seen", err)
	}
	return exists, nil
}

// Remember records key for the accepted version. Repeated keys are ignored.
func (r *ReceiptRepository) Remember(ctx context.Context, key string, id shared.TelegramID, version int64) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO sync_receipts (idempotency_key, telegram_id, version)
		VALUES ($1, $2, $3)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		key, id.Int64(), version,
	)
	if err != nil {
		return unavailable("Remember", err)
	}
	return nil
}

// PurgeBefore deletes receipts created before the cutoff.
func (r *ReceiptRepository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM sync_receipts WHERE created_at < $1`, before)
	if err != nil {
		return 0, unavailable("PurgeBefore", err)
	}
	return tag.RowsAffected(), nil
}
