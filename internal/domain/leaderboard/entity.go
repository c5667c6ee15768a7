// Package leaderboard содержит чистую модель рейтинга лиги:
// снапшот таблицы очков раунда и детерминированное ранжирование по нему.
// Пакет ничего не мутирует и безопасен для конкурентных вызовов.
package leaderboard

import (
	"strings"
	"time"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOARD
// ══════════════════════════════════════════════════════════════════════════════

// Board - вид таблицы: по одному треку или общий.
type Board string

const (
	BoardSpanish  Board = "spanish"
	BoardEnglish  Board = "english"
	BoardCombined Board = "combined"
)

// ParseBoard разбирает название таблицы. Пустая строка означает общий вид.
func ParseBoard(s string) (Board, error) {
	switch Board(strings.ToLower(strings.TrimSpace(s))) {
	case BoardSpanish:
		return BoardSpanish, nil
	case BoardEnglish:
		return BoardEnglish, nil
	case BoardCombined, "":
		return BoardCombined, nil
	default:
		return "", shared.ErrInvalidBoard
	}
}

// Track возвращает фильтр по треку; nil для общего вида.
func (b Board) Track() *league.Track {
	switch b {
	case BoardSpanish:
		t := league.TrackSpanish
		return &t
	case BoardEnglish:
		t := league.TrackEnglish
		return &t
	default:
		return nil
	}
}

// BoardFor возвращает таблицу трека.
func BoardFor(t league.Track) Board {
	if t == league.TrackEnglish {
		return BoardEnglish
	}
	return BoardSpanish
}

// Boards - все виды в стабильном порядке.
var Boards = []Board{BoardSpanish, BoardEnglish, BoardCombined}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY & STANDING
// ══════════════════════════════════════════════════════════════════════════════

// Entry - строка снапшота: состояние одного участника на момент снимка.
type Entry struct {
	ParticipantID shared.ParticipantID
	DisplayName   string
	Track         league.Track
	Active        bool
	MessagePoints int
	ActiveDays    int
	Score         int
	LastCountedAt time.Time
}

// NewEntry строит строку снапшота из таблицы очков и участника.
// Таблица определяется текущим треком участника: после смены трека
// все очки раунда сразу переходят в новую таблицу.
func NewEntry(t *league.Tally, p *league.Participant, rules league.ScoringRules) Entry {
	return Entry{
		ParticipantID: t.ParticipantID,
		DisplayName:   p.DisplayName,
		Track:         p.Track,
		Active:        p.IsActive(),
		MessagePoints: t.MessagePoints,
		ActiveDays:    t.ActiveDayCount(),
		Score:         t.Score(rules),
		LastCountedAt: t.LastCountedAt,
	}
}

// Standing - позиция участника в ранжированном виде.
type Standing struct {
	Rank           shared.Rank          `json:"rank"`
	ParticipantID  shared.ParticipantID `json:"participant_id"`
	DisplayName    string               `json:"display_name,omitempty"`
	Track          league.Track         `json:"track"`
	Score          int                  `json:"score"`
	MessagePoints  int                  `json:"message_points"`
	ActiveDays     int                  `json:"active_days"`
	LastCountedAt  time.Time            `json:"last_counted_at"`
	PreviousWinner bool                 `json:"previous_winner,omitempty"`
}

// Medal возвращает медаль для топ-3.
func (s Standing) Medal() string {
	return s.Rank.Medal()
}

// less задаёт полный порядок: очки по убыванию, затем более ранняя
// последняя активность, затем ID участника.
func less(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.LastCountedAt.Equal(b.LastCountedAt) {
		return a.LastCountedAt.Before(b.LastCountedAt)
	}
	return a.ParticipantID < b.ParticipantID
}
