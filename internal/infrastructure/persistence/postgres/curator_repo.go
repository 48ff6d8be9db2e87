package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CURATOR REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CuratorRepository implements curator.Repository for PostgreSQL.
type CuratorRepository struct {
	conn *Connection
}

var _ curator.Repository = (*CuratorRepository)(nil)

// NewCuratorRepository creates a new CuratorRepository.
func NewCuratorRepository(conn *Connection) *CuratorRepository {
	return &CuratorRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Curators
// ─────────────────────────────────────────────────────────────────────────────

// Create creates a new curator.
func (r *CuratorRepository) Create(ctx context.Context, c *curator.Curator) error {
	query := `
		INSERT INTO curators (id, name, telegram_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.conn.Exec(ctx, query, c.ID.String(), c.Name, nullTelegramID(c.TelegramID), c.PasswordHash, c.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.Errorf("postgres", "CreateCurator", shared.ErrAlreadyExists, "curator %s already exists", c.ID)
		}
		return unavailable("CreateCurator", err)
	}
	return nil
}

// GetByID returns a curator by ID.
func (r *CuratorRepository) GetByID(ctx context.Context, id shared.CuratorID) (*curator.Curator, error) {
	query := `
		SELECT id, name, telegram_id, password_hash, created_at
		FROM curators
		WHERE id = $1
	`

	var c curator.Curator
	var rawID string
	var telegramID *int64
	err := r.conn.QueryRow(ctx, query, id.String()).Scan(&rawID, &c.Name, &telegramID, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCuratorNotFound
		}
		return nil, unavailable("GetCurator", err)
	}

	c.ID = shared.CuratorID(rawID)
	if telegramID != nil {
		c.TelegramID = shared.TelegramID(*telegramID)
	}
	return &c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Access codes
// ─────────────────────────────────────────────────────────────────────────────

// SaveCode stores a freshly generated access code.
func (r *CuratorRepository) SaveCode(ctx context.Context, code *curator.AccessCode) error {
	query := `
		INSERT INTO access_codes (code, curator_id, role, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.conn.Exec(ctx, query, code.Code, code.CuratorID.String(), string(code.Role), code.CreatedAt, code.ExpiresAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("postgres", "SaveCode", shared.ErrAlreadyExists, "access code already exists")
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrCuratorNotFound
		}
		return unavailable("SaveCode", err)
	}
	return nil
}

// RedeemCode locks the code row, redeems it and upserts the link in one transaction.
func (r *CuratorRepository) RedeemCode(ctx context.Context, code string, by shared.TelegramID, now time.Time) (*curator.Link, error) {
	code = curator.NormalizeCode(code)
	var link *curator.Link

	err := r.conn.WithTx(ctx, ReadCommitted, func(tx pgx.Tx) error {
		ac, err := r.lockCode(ctx, tx, code)
		if err != nil {
			return err
		}

		l, err := ac.Redeem(by, now)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE access_codes SET redeemed_by = $2, redeemed_at = $3 WHERE code = $1`,
			ac.Code, ac.RedeemedBy.Int64(), ac.RedeemedAt,
		); err != nil {
			return unavailable("RedeemCode", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO curator_students (curator_id, telegram_id, role, linked_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (curator_id, telegram_id) DO UPDATE SET role = EXCLUDED.role`,
			l.CuratorID.String(), l.TelegramID.Int64(), string(l.Role), l.LinkedAt,
		); err != nil {
			return unavailable("RedeemCode", err)
		}

		link = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *CuratorRepository) lockCode(ctx context.Context, tx pgx.Tx, code string) (*curator.AccessCode, error) {
	query := `
		SELECT code, curator_id, role, created_at, expires_at, redeemed_by, redeemed_at
		FROM access_codes
		WHERE code = $1
		FOR UPDATE
	`

	var ac curator.AccessCode
	var curatorID, role string
	var redeemedBy *int64
	var redeemedAt *time.Time
	err := tx.QueryRow(ctx, query, code).Scan(&ac.Code, &curatorID, &role, &ac.CreatedAt, &ac.ExpiresAt, &redeemedBy, &redeemedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAccessCodeNotFound
		}
		return nil, unavailable("RedeemCode", err)
	}

	ac.CuratorID = shared.CuratorID(curatorID)
	ac.Role = curator.Role(role)
	if redeemedBy != nil {
		ac.RedeemedBy = shared.TelegramID(*redeemedBy)
	}
	if redeemedAt != nil {
		ac.RedeemedAt = *redeemedAt
	}
	return &ac, nil
}

// PurgeExpiredCodes deletes unredeemed codes that expired before the cutoff.
func (r *CuratorRepository) PurgeExpiredCodes(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM access_codes WHERE redeemed_by IS NULL AND expires_at < $1`, before)
	if err != nil {
		return 0, unavailable("PurgeExpiredCodes", err)
	}
	return tag.RowsAffected(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Links
// ─────────────────────────────────────────────────────────────────────────────

// ListLinks returns the curator's links in the order they were made.
func (r *CuratorRepository) ListLinks(ctx context.Context, id shared.CuratorID) ([]curator.Link, error) {
	query := `
		SELECT telegram_id, role, linked_at
		FROM curator_students
		WHERE curator_id = $1
		ORDER BY linked_at ASC, telegram_id ASC
	`

	rows, err := r.conn.Query(ctx, query, id.String())
	if err != nil {
		return nil, unavailable("ListLinks", err)
	}
	defer rows.Close()

	var links []curator.Link
	for rows.Next() {
		l := curator.Link{CuratorID: id}
		var telegramID int64
		var role string
		if err := rows.Scan(&telegramID, &role, &l.LinkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link row: %w", err)
		}
		l.TelegramID = shared.TelegramID(telegramID)
		l.Role = curator.Role(role)
		links = append(links, l)
	}
	return links, rows.Err()
}

func nullTelegramID(id shared.TelegramID) *int64 {
	if id == 0 {
		return nil
	}
	v := id.Int64()
	return &v
}
