package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUND REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RoundRepository implements league.RoundRepository for PostgreSQL.
// Only open and closed are stored; closing lives in memory.
type RoundRepository struct {
	conn *Connection
}

// NewRoundRepository creates a new RoundRepository.
func NewRoundRepository(conn *Connection) *RoundRepository {
	return &RoundRepository{conn: conn}
}

const roundColumns = `id, number, start_at, end_at, status`

// GetOpen returns the single open round.
func (r *RoundRepository) GetOpen(ctx context.Context) (*league.Round, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+roundColumns+` FROM rounds WHERE status = 'open' LIMIT 2`)
	if err != nil {
		return nil, storageError("round", "GetOpen", err)
	}
	defer rows.Close()

	var open []*league.Round
	for rows.Next() {
		rd, err := scanRound(rows)
		if err != nil {
			return nil, storageError("round", "GetOpen", err)
		}
		open = append(open, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("round", "GetOpen", err)
	}

	switch len(open) {
	case 0:
		return nil, shared.ErrNoOpenRound
	case 1:
		return open[0], nil
	default:
		return nil, shared.WrapError("round", "GetOpen", shared.ErrCorruption, "several open rounds", nil)
	}
}

// GetLastClosed returns the most recently closed round.
func (r *RoundRepository) GetLastClosed(ctx context.Context) (*league.Round, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+roundColumns+` FROM rounds
		WHERE status = 'closed'
		ORDER BY end_at DESC
		LIMIT 1
	`)
	rd, err := scanRound(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRoundNotFound
		}
		return nil, storageError("round", "GetLastClosed", err)
	}
	return rd, nil
}

// Create inserts the first open round.
func (r *RoundRepository) Create(ctx context.Context, rd *league.Round) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO rounds (id, number, start_at, end_at, status)
		VALUES ($1, $2, $3, $4, 'open')
	`, rd.ID, rd.Number, rd.Start, rd.End)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("round", "Create", shared.ErrCorruption, "round already exists or another round is open", err)
		}
		return storageError("round", "Create", err)
	}
	return nil
}

// CommitRollover persists the closing round's tallies and results, closes it
// and opens the next round in one transaction.
func (r *RoundRepository) CommitRollover(ctx context.Context, c league.RolloverCommit) error {
	err := r.conn.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}, func(tx pgx.Tx) error {
		done, err := checkRolloverState(ctx, tx, c)
		if err != nil || done {
			return err
		}

		batch := &pgx.Batch{}
		for _, t := range c.Tallies {
			queueTallyUpsert(batch, t, true)
		}
		for _, res := range c.Results {
			batch.Queue(`INSERT INTO round_results (round_id, track, created_at) VALUES ($1, $2, $3)`,
				res.RoundID, string(res.Track), res.CreatedAt)
			for _, p := range res.Placements {
				batch.Queue(`
					INSERT INTO round_placements (round_id, track, position, participant_id, score)
					VALUES ($1, $2, $3, $4, $5)
				`, res.RoundID, string(res.Track), p.Position, p.ParticipantID.String(), p.Score)
			}
		}
		batch.Queue(`UPDATE rounds SET status = 'closed', closed_at = $2 WHERE id = $1`,
			c.Closing.ID, time.Now().UTC())
		batch.Queue(`INSERT INTO rounds (id, number, start_at, end_at, status) VALUES ($1, $2, $3, $4, 'open')`,
			c.Next.ID, c.Next.Number, c.Next.Start, c.Next.End)

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrResultsDuplicate
			}
			return err
		}
		return nil
	})
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return storageError("round", "CommitRollover", err)
}

// checkRolloverState locks the closing round and verifies storage agrees
// with the engine. done is true when the same commit already landed.
func checkRolloverState(ctx context.Context, tx pgx.Tx, c league.RolloverCommit) (done bool, err error) {
	roundID := c.Closing.ID
	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM rounds WHERE id = $1 FOR UPDATE`, roundID).Scan(&status)
	if err != nil {
		if IsNoRows(err) {
			return false, shared.WrapError("round", "CommitRollover", shared.ErrCorruption,
				fmt.Sprintf("round %s is missing from storage", roundID), nil)
		}
		return false, err
	}

	var open int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM rounds WHERE status = 'open'`).Scan(&open); err != nil {
		return false, err
	}

	if status == string(league.RoundClosed) && open == 1 {
		committed, err := alreadyCommitted(ctx, tx, c)
		if err != nil || committed {
			return committed, err
		}
	}
	if status != string(league.RoundOpen) {
		return false, shared.WrapError("round", "CommitRollover", shared.ErrCorruption,
			fmt.Sprintf("round %s is %s in storage", roundID, status), nil)
	}
	if open != 1 {
		return false, shared.WrapError("round", "CommitRollover", shared.ErrCorruption,
			fmt.Sprintf("%d open rounds", open), nil)
	}

	var persisted bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM round_results WHERE round_id = $1)`, roundID).Scan(&persisted); err != nil {
		return false, err
	}
	if persisted {
		return false, shared.ErrResultsDuplicate
	}
	return false, nil
}

// alreadyCommitted reports whether c's next round is open and the closing
// round holds the same results, i.e. an earlier attempt committed but its
// acknowledgement was lost.
func alreadyCommitted(ctx context.Context, tx pgx.Tx, c league.RolloverCommit) (bool, error) {
	var nextStatus string
	err := tx.QueryRow(ctx, `SELECT status FROM rounds WHERE id = $1`, c.Next.ID).Scan(&nextStatus)
	if err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	if nextStatus != string(league.RoundOpen) {
		return false, nil
	}
	stored, err := listResults(ctx, tx, c.Closing.ID)
	if err != nil {
		return false, err
	}
	return league.SameResults(stored, c.Results), nil
}

func scanRound(row pgx.Row) (*league.Round, error) {
	var (
		rd         league.Round
		status     string
		start, end time.Time
	)
	if err := row.Scan(&rd.ID, &rd.Number, &start, &end, &status); err != nil {
		return nil, err
	}
	rd.Start = start.UTC()
	rd.End = end.UTC()
	rd.Status = league.RoundStatus(status)
	return &rd, nil
}

var _ league.RoundRepository = (*RoundRepository)(nil)
