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

	"github.com/hablemos/language-league/internal/domain/shared"
)

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "db.internal"
	cfg.Password = "secret"
	cfg.MaxConns = 7

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", pc.ConnConfig.Host)
	assert.Equal(t, uint16(5432), pc.ConnConfig.Port)
	assert.Equal(t, "league", pc.ConnConfig.Database)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
}

func TestConfig_URLWins(t *testing.T) {
	cfg := Config{URL: "postgres://u:p@pg.example:6543/other?sslmode=disable"}

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, "pg.example", pc.ConnConfig.Host)
	assert.Equal(t, uint16(6543), pc.ConnConfig.Port)
	assert.Equal(t, "other", pc.ConnConfig.Database)
}

func TestStorageError(t *testing.T) {
	err := storageError("tally", "Checkpoint", fmt.Errorf("send: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, shared.ErrPersistenceTimeout)
	assert.True(t, shared.IsRetryable(err))

	err = storageError("tally", "Checkpoint", errors.New("boom"))
	assert.NotErrorIs(t, err, shared.ErrPersistenceTimeout)
	assert.Contains(t, err.Error(), "tally.Checkpoint")
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsNoRows(fmt.Errorf("wrap: %w", pgx.ErrNoRows)))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
}

func TestGetMigrations_Ordered(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}
