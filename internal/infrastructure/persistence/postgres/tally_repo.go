package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// TallyRepository implements league.TallyRepository for PostgreSQL.
type TallyRepository struct {
	conn *Connection
}

// NewTallyRepository creates a new TallyRepository.
func NewTallyRepository(conn *Connection) *TallyRepository {
	return &TallyRepository{conn: conn}
}

const tallyColumns = `participant_id, round_id, track, message_points, messages, active_days, last_counted_at`

// ListByRound returns every tally of a round.
func (r *TallyRepository) ListByRound(ctx context.Context, roundID string) ([]*league.Tally, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+tallyColumns+` FROM round_tallies
		WHERE round_id = $1
		ORDER BY participant_id
	`, roundID)
	if err != nil {
		return nil, storageError("tally", "ListByRound", err)
	}
	defer rows.Close()

	var out []*league.Tally
	for rows.Next() {
		t, err := scanTally(rows)
		if err != nil {
			return nil, storageError("tally", "ListByRound", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("tally", "ListByRound", err)
	}
	return out, nil
}

// Checkpoint upserts open-round tallies in one batch. A stored row with more
// messages wins, so a late checkpoint never rolls a tally back.
func (r *TallyRepository) Checkpoint(ctx context.Context, tallies []*league.Tally) error {
	if len(tallies) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range tallies {
		queueTallyUpsert(batch, t, false)
	}
	if err := r.conn.SendBatch(ctx, batch).Close(); err != nil {
		return storageError("tally", "Checkpoint", err)
	}
	return nil
}

// Get returns one tally.
func (r *TallyRepository) Get(ctx context.Context, roundID string, id shared.ParticipantID) (*league.Tally, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+tallyColumns+` FROM round_tallies
		WHERE round_id = $1 AND participant_id = $2
	`, roundID, id.String())
	t, err := scanTally(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, storageError("tally", "Get", err)
	}
	return t, nil
}

// queueTallyUpsert adds an upsert of t to batch. With final set the row is
// overwritten unconditionally.
func queueTallyUpsert(batch *pgx.Batch, t *league.Tally, final bool) {
	query := `
		INSERT INTO round_tallies (round_id, participant_id, track, message_points, messages, active_days, last_counted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (round_id, participant_id) DO UPDATE SET
			track = EXCLUDED.track,
			message_points = EXCLUDED.message_points,
			messages = EXCLUDED.messages,
			active_days = EXCLUDED.active_days,
			last_counted_at = EXCLUDED.last_counted_at,
			updated_at = NOW()
	`
	if !final {
		query += ` WHERE round_tallies.messages <= EXCLUDED.messages`
	}

	var lastCounted *time.Time
	if !t.LastCountedAt.IsZero() {
		ts := t.LastCountedAt
		lastCounted = &ts
	}
	batch.Queue(query,
		t.RoundID,
		t.ParticipantID.String(),
		string(t.Track),
		t.MessagePoints,
		t.Messages,
		t.Days(),
		lastCounted,
	)
}

func scanTally(row pgx.Row) (*league.Tally, error) {
	var (
		participantID, roundID, track string
		points, messages              int
		days                          []string
		lastCounted                   *time.Time
	)
	if err := row.Scan(&participantID, &roundID, &track, &points, &messages, &days, &lastCounted); err != nil {
		return nil, err
	}
	t := league.NewTally(shared.ParticipantID(participantID), roundID)
	t.Track = league.Track(track)
	t.MessagePoints = points
	t.Messages = messages
	t.SetDays(days)
	if lastCounted != nil {
		t.LastCountedAt = lastCounted.UTC()
	}
	return t, nil
}

var _ league.TallyRepository = (*TallyRepository)(nil)
