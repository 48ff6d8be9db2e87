package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations and tracks them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns applied migration versions with their timestamps.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
// It returns the number of migrations applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return 0, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return count, fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, ReadCommitted, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName), mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		count++
	}
	return count, nil
}

// Rollback rolls back the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var lastVersion int
	for v := range applied {
		if v > lastVersion {
			lastVersion = v
		}
	}
	if lastVersion == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == lastVersion {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, lastVersion)
	}

	return m.conn.WithTx(ctx, ReadCommitted, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", lastVersion, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), lastVersion)
		return err
	})
}

// Status returns every known migration with its applied flag.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_progress_states", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_curators", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_sync_receipts", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

const migration001Up = `
-- One versioned JSONB blob per learner.
CREATE TABLE IF NOT EXISTS progress_states (
    telegram_id BIGINT PRIMARY KEY,
    version BIGINT NOT NULL,
    schema_version INTEGER NOT NULL,
    data JSONB NOT NULL,
    xp INTEGER GENERATED ALWAYS AS ((data->'economy'->>'xp')::INTEGER) STORED,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_version CHECK (version >= 0),
    CONSTRAINT valid_telegram_id CHECK (telegram_id > 0)
);

CREATE INDEX IF NOT EXISTS idx_progress_states_updated_at ON progress_states(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_progress_states_xp ON progress_states(xp DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS progress_states;
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS curators (
    id UUID PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    telegram_id BIGINT,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_curators_telegram_id ON curators(telegram_id) WHERE telegram_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS access_codes (
    code CHAR(8) PRIMARY KEY,
    curator_id UUID NOT NULL REFERENCES curators(id) ON DELETE CASCADE,
    role VARCHAR(16) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
    redeemed_by BIGINT,
    redeemed_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_code_role CHECK (role IN ('student', 'parent'))
);

CREATE INDEX IF NOT EXISTS idx_access_codes_curator ON access_codes(curator_id);
CREATE INDEX IF NOT EXISTS idx_access_codes_expires ON access_codes(expires_at) WHERE redeemed_by IS NULL;

CREATE TABLE IF NOT EXISTS curator_students (
    curator_id UUID NOT NULL REFERENCES curators(id) ON DELETE CASCADE,
    telegram_id BIGINT NOT NULL,
    role VARCHAR(16) NOT NULL,
    linked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (curator_id, telegram_id),
    CONSTRAINT valid_link_role CHECK (role IN ('student', 'parent'))
);

CREATE INDEX IF NOT EXISTS idx_curator_students_telegram ON curator_students(telegram_id);
`

const migration002Down = `
DROP TABLE IF EXISTS curator_students;
DROP TABLE IF EXISTS access_codes;
DROP TABLE IF EXISTS curators;
`

const migration003Up = `
-- Idempotency fallback when Redis is not configured.
CREATE TABLE IF NOT EXISTS sync_receipts (
    idempotency_key VARCHAR(128) PRIMARY KEY,
    telegram_id BIGINT NOT NULL,
    version BIGINT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sync_receipts_created ON sync_receipts(created_at);
`

const migration003Down = `
DROP TABLE IF EXISTS sync_receipts;
`
