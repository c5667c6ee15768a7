package postgres

import (
	"context"
	"time"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// ExclusionRepository implements league.ExclusionRepository for PostgreSQL.
type ExclusionRepository struct {
	conn *Connection
}

// NewExclusionRepository creates a new ExclusionRepository.
func NewExclusionRepository(conn *Connection) *ExclusionRepository {
	return &ExclusionRepository{conn: conn}
}

// Add stores an exclusion, keeping the first record on conflict.
func (r *ExclusionRepository) Add(ctx context.Context, e league.Exclusion) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO excluded_channels (channel_id, channel_name, added_by, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel_id) DO NOTHING
	`, e.ChannelID.String(), e.ChannelName, e.AddedBy, e.AddedAt)
	if err != nil {
		return storageError("exclusion", "Add", err)
	}
	return nil
}

// Remove deletes an exclusion.
func (r *ExclusionRepository) Remove(ctx context.Context, id shared.ChannelID) error {
	if _, err := r.conn.Exec(ctx, `DELETE FROM excluded_channels WHERE channel_id = $1`, id.String()); err != nil {
		return storageError("exclusion", "Remove", err)
	}
	return nil
}

// List returns all exclusions, newest first.
func (r *ExclusionRepository) List(ctx context.Context) ([]league.Exclusion, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT channel_id, channel_name, added_by, added_at
		FROM excluded_channels
		ORDER BY added_at DESC
	`)
	if err != nil {
		return nil, storageError("exclusion", "List", err)
	}
	defer rows.Close()

	var out []league.Exclusion
	for rows.Next() {
		var (
			channelID string
			e         league.Exclusion
			addedAt   time.Time
		)
		if err := rows.Scan(&channelID, &e.ChannelName, &e.AddedBy, &addedAt); err != nil {
			return nil, storageError("exclusion", "List", err)
		}
		e.ChannelID = shared.ChannelID(channelID)
		e.AddedAt = addedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("exclusion", "List", err)
	}
	return out, nil
}

var _ league.ExclusionRepository = (*ExclusionRepository)(nil)
