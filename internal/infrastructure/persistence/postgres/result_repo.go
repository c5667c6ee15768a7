package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// ResultRepository implements league.ResultRepository for PostgreSQL.
// Results are written by RoundRepository.CommitRollover.
type ResultRepository struct {
	conn *Connection
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(conn *Connection) *ResultRepository {
	return &ResultRepository{conn: conn}
}

// ListByRound returns the results of a closed round in track order.
func (r *ResultRepository) ListByRound(ctx context.Context, roundID string) ([]league.RoundResult, error) {
	return listResults(ctx, r.conn, roundID)
}

// querier is satisfied by *Connection and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listResults(ctx context.Context, q querier, roundID string) ([]league.RoundResult, error) {
	rows, err := q.Query(ctx, `
		SELECT res.track, res.created_at, p.position, p.participant_id, p.score
		FROM round_results res
		LEFT JOIN round_placements p ON p.round_id = res.round_id AND p.track = res.track
		WHERE res.round_id = $1
		ORDER BY CASE res.track WHEN 'spanish' THEN 0 ELSE 1 END, p.position
	`, roundID)
	if err != nil {
		return nil, storageError("result", "ListByRound", err)
	}
	defer rows.Close()

	var out []league.RoundResult
	for rows.Next() {
		var (
			track         string
			createdAt     time.Time
			position      *int
			participantID *string
			score         *int
		)
		if err := rows.Scan(&track, &createdAt, &position, &participantID, &score); err != nil {
			return nil, storageError("result", "ListByRound", err)
		}
		if len(out) == 0 || out[len(out)-1].Track != league.Track(track) {
			out = append(out, league.RoundResult{
				RoundID:    roundID,
				Track:      league.Track(track),
				Placements: []league.Placement{},
				CreatedAt:  createdAt.UTC(),
			})
		}
		if position == nil {
			continue
		}
		last := &out[len(out)-1]
		last.Placements = append(last.Placements, league.Placement{
			Position:      *position,
			ParticipantID: shared.ParticipantID(*participantID),
			Score:         *score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("result", "ListByRound", err)
	}
	return out, nil
}

// ListByParticipant returns podium placements of a participant, newest first.
func (r *ResultRepository) ListByParticipant(ctx context.Context, id shared.ParticipantID, limit int) ([]league.ParticipantPlacement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.conn.Query(ctx, `
		SELECT p.round_id, rd.start_at, rd.end_at, p.track, p.position, p.score
		FROM round_placements p
		JOIN rounds rd ON rd.id = p.round_id
		WHERE p.participant_id = $1
		ORDER BY rd.end_at DESC
		LIMIT $2
	`, id.String(), limit)
	if err != nil {
		return nil, storageError("result", "ListByParticipant", err)
	}
	defer rows.Close()

	var out []league.ParticipantPlacement
	for rows.Next() {
		var (
			pl         league.ParticipantPlacement
			track      string
			start, end time.Time
		)
		if err := rows.Scan(&pl.RoundID, &start, &end, &track, &pl.Position, &pl.Score); err != nil {
			return nil, storageError("result", "ListByParticipant", err)
		}
		pl.RoundStart = start.UTC()
		pl.RoundEnd = end.UTC()
		pl.Track = league.Track(track)
		out = append(out, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("result", "ListByParticipant", err)
	}
	return out, nil
}

var _ league.ResultRepository = (*ResultRepository)(nil)
