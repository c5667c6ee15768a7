package query

import (
	"context"
	"fmt"
	"time"

	"github.com/hablemos/language-league/internal/application/engine"
	"github.com/hablemos/language-league/internal/domain/leaderboard"
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PARTICIPANT STATS QUERY
// Статистика участника: очки текущего раунда, места во всех видах таблицы
// и история попаданий в топ-3 прошлых раундов.
// ══════════════════════════════════════════════════════════════════════════════

// GetParticipantStatsQuery содержит параметры запроса.
type GetParticipantStatsQuery struct {
	ParticipantID string

	// HistoryLimit - сколько прошлых мест вернуть (по умолчанию 5).
	HistoryLimit int
}

// BoardRank - место участника в одном виде таблицы.
type BoardRank struct {
	Board leaderboard.Board `json:"board"`
	Rank  shared.Rank       `json:"rank"`
}

// PlacementDTO - прошлое попадание в топ.
type PlacementDTO struct {
	RoundID  string       `json:"round_id"`
	RoundEnd time.Time    `json:"round_end"`
	Track    league.Track `json:"track"`
	Position int          `json:"position"`
	Medal    string       `json:"medal"`
	Score    int          `json:"score"`
}

// GetParticipantStatsResult содержит статистику участника.
type GetParticipantStatsResult struct {
	ParticipantID  shared.ParticipantID     `json:"participant_id"`
	DisplayName    string                   `json:"display_name"`
	Track          league.Track             `json:"track"`
	Status         league.ParticipantStatus `json:"status"`
	RoundID        string                   `json:"round_id"`
	RoundEnd       time.Time                `json:"round_end"`
	MessagePoints  int                      `json:"message_points"`
	ActiveDays     int                      `json:"active_days"`
	Score          int                      `json:"score"`
	Ranks          []BoardRank              `json:"ranks"`
	PreviousWinner bool                     `json:"previous_winner"`
	Placements     []PlacementDTO           `json:"placements"`
}

// GetParticipantStatsHandler обрабатывает запрос статистики.
type GetParticipantStatsHandler struct {
	roster  *engine.Roster
	engine  *engine.Engine
	rounds  *engine.RoundManager
	results league.ResultRepository
}

// NewGetParticipantStatsHandler создаёт новый обработчик.
func NewGetParticipantStatsHandler(
	roster *engine.Roster,
	eng *engine.Engine,
	rounds *engine.RoundManager,
	results league.ResultRepository,
) *GetParticipantStatsHandler {
	return &GetParticipantStatsHandler{roster: roster, engine: eng, rounds: rounds, results: results}
}

// Handle выполняет запрос.
func (h *GetParticipantStatsHandler) Handle(ctx context.Context, q GetParticipantStatsQuery) (*GetParticipantStatsResult, error) {
	id, err := shared.NewParticipantID(q.ParticipantID)
	if err != nil {
		return nil, err
	}
	if q.HistoryLimit <= 0 {
		q.HistoryLimit = 5
	}

	p, ok := h.roster.Lookup(id)
	if !ok {
		return nil, shared.ErrParticipantNotFound
	}

	result := &GetParticipantStatsResult{
		ParticipantID:  p.ID,
		DisplayName:    p.DisplayName,
		Track:          p.Track,
		Status:         p.Status,
		PreviousWinner: h.rounds.IsPreviousWinner(id, p.Track),
	}

	if r := h.engine.CurrentRound(); r != nil {
		result.RoundID = r.ID
		result.RoundEnd = r.End
	}
	if t, ok := h.engine.Tally(id); ok {
		result.MessagePoints = t.MessagePoints
		result.ActiveDays = t.ActiveDayCount()
		result.Score = t.Score(h.engine.Rules())
	}

	// Места считаются по одному снапшоту, чтобы виды были согласованы.
	snap := h.engine.Snapshot()
	for _, b := range []leaderboard.Board{leaderboard.BoardFor(p.Track), leaderboard.BoardCombined} {
		if p.Track == "" && b != leaderboard.BoardCombined {
			continue
		}
		result.Ranks = append(result.Ranks, BoardRank{
			Board: b,
			Rank:  leaderboard.RankOf(snap, b.Track(), id),
		})
	}

	history, err := h.results.ListByParticipant(ctx, id, q.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("participant_stats: load placements: %w", err)
	}
	result.Placements = make([]PlacementDTO, 0, len(history))
	for _, pl := range history {
		result.Placements = append(result.Placements, PlacementDTO{
			RoundID:  pl.RoundID,
			RoundEnd: pl.RoundEnd,
			Track:    pl.Track,
			Position: pl.Position,
			Medal:    shared.Rank(pl.Position).Medal(),
			Score:    pl.Score,
		})
	}
	return result, nil
}
