package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t,
		"host=localhost port=5432 dbname=progress_hub user=postgres sslmode=disable connect_timeout=10",
		cfg.DSN())

	cfg.Password = "pw"
	assert.Contains(t, cfg.DSN(), "user=postgres password=pw sslmode=disable")

	cfg.URL = "postgres://hub:secret@db:5432/hub"
	assert.Equal(t, cfg.URL, cfg.DSN())
}

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConns = 7
	cfg.MaxConnIdleTime = 90 * time.Second

	pool, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.EqualValues(t, 7, pool.MaxConns)
	assert.EqualValues(t, 2, pool.MinConns)
	assert.Equal(t, 90*time.Second, pool.MaxConnIdleTime)

	cfg.URL = "postgres://%zz"
	_, err = cfg.PoolConfig()
	assert.Error(t, err)
}

func TestClosedConnection(t *testing.T) {
	conn := &Connection{closed: true}

	assert.ErrorIs(t, conn.Ping(context.Background()), ErrConnectionClosed)

	_, err := conn.Exec(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)

	called := false
	err = conn.WithTx(context.Background(), ReadCommitted, func(pgx.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.False(t, called)

	conn.Close()
}

func TestErrorHelpers(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(errors.New("boom")))
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
}

func TestMigrations_Ordered(t *testing.T) {
	migs := GetMigrations()
	require.NotEmpty(t, migs)
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version, m.Name)
		assert.NotEmpty(t, m.UpSQL, m.Name)
		assert.NotEmpty(t, m.DownSQL, m.Name)
	}
}
