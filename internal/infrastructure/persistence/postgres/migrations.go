package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrMigrationFailed wraps any failure while applying a migration.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one schema step. Versions are applied in ascending order,
// each in its own transaction.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// GetMigrations returns the league schema migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_rounds_and_participants", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_tallies_and_results", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_excluded_channels", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

const migrationsTable = "schema_migrations"

// Migrator applies pending migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// Applied returns the applied versions and when they ran.
func (m *Migrator) Applied(ctx context.Context) (map[int]time.Time, error) {
	if _, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrMigrationFailed, migrationsTable, err)
	}

	rows, err := m.conn.Query(ctx, "SELECT version, applied_at FROM "+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("%w: list applied: %v", ErrMigrationFailed, err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Migrate applies every migration not yet recorded and returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO "+migrationsTable+" (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("%w: %03d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		ran++
	}
	return ran, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ROUNDS AND PARTICIPANTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Rounds: fixed-length competition windows [start_at, end_at)
CREATE TABLE IF NOT EXISTS rounds (
    id TEXT PRIMARY KEY,
    number INTEGER NOT NULL UNIQUE,
    start_at TIMESTAMP WITH TIME ZONE NOT NULL,
    end_at TIMESTAMP WITH TIME ZONE NOT NULL,
    status VARCHAR(10) NOT NULL DEFAULT 'open',
    closed_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_round_status CHECK (status IN ('open', 'closed')),
    CONSTRAINT valid_round_window CHECK (end_at > start_at)
);

-- At most one open round
CREATE UNIQUE INDEX IF NOT EXISTS idx_rounds_single_open ON rounds(status) WHERE status = 'open';
CREATE INDEX IF NOT EXISTS idx_rounds_closed_end ON rounds(end_at DESC) WHERE status = 'closed';

-- Participants: league membership, never deleted
CREATE TABLE IF NOT EXISTS participants (
    id TEXT PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    track VARCHAR(10) NOT NULL DEFAULT '',
    status VARCHAR(10) NOT NULL,
    joined_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_participant_status CHECK (status IN ('active', 'left', 'banned')),
    CONSTRAINT valid_participant_track CHECK (track IN ('', 'spanish', 'english'))
);

CREATE INDEX IF NOT EXISTS idx_participants_status ON participants(status);
`

const migration001Down = `
DROP TABLE IF EXISTS participants;
DROP TABLE IF EXISTS rounds;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: TALLIES AND RESULTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Per-round tallies; checkpointed while open, final at rollover
CREATE TABLE IF NOT EXISTS round_tallies (
    round_id TEXT NOT NULL REFERENCES rounds(id),
    participant_id TEXT NOT NULL,
    track VARCHAR(10) NOT NULL DEFAULT '',
    message_points INTEGER NOT NULL DEFAULT 0,
    messages INTEGER NOT NULL DEFAULT 0,
    active_days TEXT[] NOT NULL DEFAULT '{}',
    last_counted_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (round_id, participant_id),
    CONSTRAINT valid_tally_counts CHECK (message_points >= 0 AND messages >= 0)
);

CREATE INDEX IF NOT EXISTS idx_round_tallies_participant ON round_tallies(participant_id);

-- One immutable result per (round, track)
CREATE TABLE IF NOT EXISTS round_results (
    round_id TEXT NOT NULL REFERENCES rounds(id),
    track VARCHAR(10) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,

    PRIMARY KEY (round_id, track)
);

CREATE TABLE IF NOT EXISTS round_placements (
    round_id TEXT NOT NULL,
    track VARCHAR(10) NOT NULL,
    position INTEGER NOT NULL,
    participant_id TEXT NOT NULL,
    score INTEGER NOT NULL,

    PRIMARY KEY (round_id, track, position),
    FOREIGN KEY (round_id, track) REFERENCES round_results(round_id, track)
);

CREATE INDEX IF NOT EXISTS idx_round_placements_participant ON round_placements(participant_id);
`

const migration002Down = `
DROP TABLE IF EXISTS round_placements;
DROP TABLE IF EXISTS round_results;
DROP TABLE IF EXISTS round_tallies;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: EXCLUDED CHANNELS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS excluded_channels (
    channel_id TEXT PRIMARY KEY,
    channel_name VARCHAR(100) NOT NULL DEFAULT '',
    added_by TEXT NOT NULL DEFAULT '',
    added_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS excluded_channels;
`
