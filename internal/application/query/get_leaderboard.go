// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"time"

	"github.com/hablemos/language-league/internal/application/engine"
	"github.com/hablemos/language-league/internal/domain/leaderboard"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// Границы лимита таблицы.
const (
	DefaultViewLimit = 10
	MaxViewLimit     = 25
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Возвращает ранжированную таблицу текущего раунда: испанский, английский
// или общий вид. Победители прошлого раунда помечаются флагом.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса таблицы.
type GetLeaderboardQuery struct {
	// Board - "spanish", "english" или "combined" (пустая строка = combined).
	Board string

	// Limit - количество строк, от 1 до 25 (0 = по умолчанию 10).
	Limit int
}

// Validate проверяет параметры и подставляет значения по умолчанию.
func (q *GetLeaderboardQuery) Validate() error {
	if q.Limit == 0 {
		q.Limit = DefaultViewLimit
	}
	if q.Limit < 1 || q.Limit > MaxViewLimit {
		return shared.ErrInvalidLimit
	}
	_, err := leaderboard.ParseBoard(q.Board)
	return err
}

// GetLeaderboardResult содержит результат запроса таблицы.
type GetLeaderboardResult struct {
	// Board - показанный вид.
	Board leaderboard.Board `json:"board"`

	// RoundID - текущий раунд.
	RoundID string `json:"round_id"`

	// RoundEnd - когда раунд закончится.
	RoundEnd time.Time `json:"round_end"`

	// Entries - строки таблицы.
	Entries []leaderboard.Standing `json:"entries"`

	// TotalCount - сколько участников в виде всего.
	TotalCount int `json:"total_count"`

	// GeneratedAt - время снапшота.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetLeaderboardHandler обрабатывает запросы таблицы.
type GetLeaderboardHandler struct {
	engine *engine.Engine
	rounds *engine.RoundManager
}

// NewGetLeaderboardHandler создаёт новый обработчик запроса таблицы.
func NewGetLeaderboardHandler(eng *engine.Engine, rounds *engine.RoundManager) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{engine: eng, rounds: rounds}
}

// Handle выполняет запрос. Ранжирование идёт по снапшоту, поэтому
// запрос не блокирует подсчёт очков.
func (h *GetLeaderboardHandler) Handle(_ context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	board, _ := leaderboard.ParseBoard(q.Board)

	snap := h.engine.Snapshot()
	all := leaderboard.Rank(snap, board.Track(), 0)

	entries := all
	if len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	for i := range entries {
		entries[i].PreviousWinner = h.rounds.IsPreviousWinner(entries[i].ParticipantID, entries[i].Track)
	}

	result := &GetLeaderboardResult{
		Board:       board,
		RoundID:     snap.RoundID,
		Entries:     entries,
		TotalCount:  len(all),
		GeneratedAt: snap.TakenAt,
	}
	if r := h.engine.CurrentRound(); r != nil {
		result.RoundEnd = r.End
	}
	return result, nil
}
