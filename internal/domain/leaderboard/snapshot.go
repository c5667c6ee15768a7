package leaderboard

import (
	"sort"
	"time"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TALLY SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - замороженная копия таблицы очков раунда.
// Снапшот используется для:
// 1. Просмотра таблиц по запросу
// 2. Подсчёта победителей при смене раунда
// 3. Статистики участника и администратора
type Snapshot struct {
	// RoundID - раунд, из которого снят снапшот.
	RoundID string

	// TakenAt - время снятия.
	TakenAt time.Time

	// Entries - строки в произвольном порядке.
	Entries []Entry
}

// NewSnapshot создаёт снапшот, копируя строки.
func NewSnapshot(roundID string, takenAt time.Time, entries []Entry) Snapshot {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return Snapshot{RoundID: roundID, TakenAt: takenAt.UTC(), Entries: cp}
}

// Get возвращает строку участника.
func (s Snapshot) Get(id shared.ParticipantID) (Entry, bool) {
	for _, e := range s.Entries {
		if e.ParticipantID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// TotalMessagePoints - сумма очков за сообщения по снапшоту.
func (s Snapshot) TotalMessagePoints() int {
	total := 0
	for _, e := range s.Entries {
		total += e.MessagePoints
	}
	return total
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Rank ранжирует активных участников снапшота.
// track == nil означает общий вид по обоим трекам. limit <= 0 - без ограничения.
// Функция чистая: одинаковый снапшот всегда даёт одинаковый результат.
func Rank(s Snapshot, track *league.Track, limit int) []Standing {
	filtered := make([]Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if !e.Active {
			continue
		}
		if track != nil && e.Track != *track {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return less(filtered[i], filtered[j])
	})

	if limit > 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}

	standings := make([]Standing, len(filtered))
	for i, e := range filtered {
		standings[i] = Standing{
			Rank:          shared.Rank(i + 1),
			ParticipantID: e.ParticipantID,
			DisplayName:   e.DisplayName,
			Track:         e.Track,
			Score:         e.Score,
			MessagePoints: e.MessagePoints,
			ActiveDays:    e.ActiveDays,
			LastCountedAt: e.LastCountedAt,
		}
	}
	return standings
}

// RankOf возвращает позицию участника в виде или 0, если его там нет.
func RankOf(s Snapshot, track *league.Track, id shared.ParticipantID) shared.Rank {
	for _, st := range Rank(s, track, 0) {
		if st.ParticipantID == id {
			return st.Rank
		}
	}
	return 0
}

// Results строит итоги раунда: топ-N по каждому треку.
// Трек без участников даёт итог с пустым списком мест.
func Results(s Snapshot, topN int, createdAt time.Time) []league.RoundResult {
	results := make([]league.RoundResult, 0, len(league.Tracks))
	for _, track := range league.Tracks {
		t := track
		standings := Rank(s, &t, topN)

		placements := make([]league.Placement, 0, len(standings))
		for _, st := range standings {
			placements = append(placements, league.Placement{
				Position:      int(st.Rank),
				ParticipantID: st.ParticipantID,
				Score:         st.Score,
			})
		}

		results = append(results, league.RoundResult{
			RoundID:    s.RoundID,
			Track:      track,
			Placements: placements,
			CreatedAt:  createdAt.UTC(),
		})
	}
	return results
}
