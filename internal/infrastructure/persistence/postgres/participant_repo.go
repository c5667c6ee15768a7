package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantRepository implements league.ParticipantRepository for PostgreSQL.
type ParticipantRepository struct {
	conn *Connection
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(conn *Connection) *ParticipantRepository {
	return &ParticipantRepository{conn: conn}
}

const participantColumns = `id, display_name, track, status, joined_at, updated_at`

// Get returns a participant by chat user id.
func (r *ParticipantRepository) Get(ctx context.Context, id shared.ParticipantID) (*league.Participant, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id.String())
	p, err := scanParticipant(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrParticipantNotFound
		}
		return nil, storageError("participant", "Get", err)
	}
	return p, nil
}

// Save inserts or updates a participant.
func (r *ParticipantRepository) Save(ctx context.Context, p *league.Participant) error {
	query := `
		INSERT INTO participants (id, display_name, track, status, joined_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			track = EXCLUDED.track,
			status = EXCLUDED.status,
			joined_at = EXCLUDED.joined_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.conn.Exec(ctx, query,
		p.ID.String(),
		p.DisplayName,
		string(p.Track),
		string(p.Status),
		p.JoinedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return storageError("participant", "Save", err)
	}
	return nil
}

// List returns every participant.
func (r *ParticipantRepository) List(ctx context.Context) ([]*league.Participant, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+participantColumns+` FROM participants ORDER BY id`)
	if err != nil {
		return nil, storageError("participant", "List", err)
	}
	defer rows.Close()

	var out []*league.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, storageError("participant", "List", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("participant", "List", err)
	}
	return out, nil
}

func scanParticipant(row pgx.Row) (*league.Participant, error) {
	var (
		p                   league.Participant
		id, track, status   string
		joinedAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &p.DisplayName, &track, &status, &joinedAt, &updatedAt); err != nil {
		return nil, err
	}
	p.ID = shared.ParticipantID(id)
	p.Track = league.Track(track)
	p.Status = league.ParticipantStatus(status)
	p.JoinedAt = joinedAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	return &p, nil
}

var _ league.ParticipantRepository = (*ParticipantRepository)(nil)
