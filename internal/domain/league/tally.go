package league

import (
	"sort"
	"time"

	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/pkg/timeutil"
)

// ScoringRules holds the point values of the league.
type ScoringRules struct {
	PointsPerMessage    int
	ConsistencyBonusDay int
}

// DefaultScoringRules returns 1 point per message and +5 per active day.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		PointsPerMessage:    1,
		ConsistencyBonusDay: 5,
	}
}

// Tally is the accumulated state of one participant in one round.
type Tally struct {
	ParticipantID shared.ParticipantID
	RoundID       string
	Track         Track // track at the latest accrual
	MessagePoints int
	Messages      int
	ActiveDays    map[string]struct{}
	LastCountedAt time.Time
}

// NewTally creates an empty tally.
func NewTally(participantID shared.ParticipantID, roundID string) *Tally {
	return &Tally{
		ParticipantID: participantID,
		RoundID:       roundID,
		ActiveDays:    make(map[string]struct{}),
	}
}

// Credit adds one counted message at ts.
func (t *Tally) Credit(points int, ts time.Time) {
	t.MessagePoints += points
	t.Messages++
	t.ActiveDays[timeutil.DayKey(ts)] = struct{}{}
	if ts.After(t.LastCountedAt) {
		t.LastCountedAt = ts.UTC()
	}
}

// ActiveDayCount returns the number of distinct UTC days with a counted message.
func (t *Tally) ActiveDayCount() int {
	return len(t.ActiveDays)
}

// Days returns the active days sorted ascending.
func (t *Tally) Days() []string {
	days := make([]string, 0, len(t.ActiveDays))
	for d := range t.ActiveDays {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

// Score returns messagePoints + activeDays × bonus.
func (t *Tally) Score(rules ScoringRules) int {
	return t.MessagePoints + t.ActiveDayCount()*rules.ConsistencyBonusDay
}

// Clone returns a deep copy.
func (t *Tally) Clone() *Tally {
	c := *t
	c.ActiveDays = make(map[string]struct{}, len(t.ActiveDays))
	for d := range t.ActiveDays {
		c.ActiveDays[d] = struct{}{}
	}
	return &c
}

// SetDays replaces the active days from a list of day keys.
func (t *Tally) SetDays(days []string) {
	t.ActiveDays = make(map[string]struct{}, len(days))
	for _, d := range days {
		t.ActiveDays[d] = struct{}{}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUND RESULT
// ══════════════════════════════════════════════════════════════════════════════

// Placement is one podium entry of a closed round.
type Placement struct {
	Position      int
	ParticipantID shared.ParticipantID
	Score         int
}

// RoundResult is the immutable top-N of one track for a closed round.
type RoundResult struct {
	RoundID    string
	Track      Track
	Placements []Placement
	CreatedAt  time.Time
}

// Winners converts placements into event payload entries.
func (r RoundResult) Winners() []shared.Winner {
	out := make([]shared.Winner, 0, len(r.Placements))
	for _, p := range r.Placements {
		out = append(out, shared.Winner{
			Position:      p.Position,
			ParticipantID: p.ParticipantID.String(),
			Score:         p.Score,
		})
	}
	return out
}

// PlacementOf returns the placement of a participant, if any.
func (r RoundResult) PlacementOf(id shared.ParticipantID) (Placement, bool) {
	for _, p := range r.Placements {
		if p.ParticipantID == id {
			return p, true
		}
	}
	return Placement{}, false
}

// Equal compares the persisted content of two results.
func (r RoundResult) Equal(other RoundResult) bool {
	if r.RoundID != other.RoundID || r.Track != other.Track || len(r.Placements) != len(other.Placements) {
		return false
	}
	for i := range r.Placements {
		if r.Placements[i] != other.Placements[i] {
			return false
		}
	}
	return true
}

// SameResults reports whether two result sets hold the same placements per track.
func SameResults(a, b []RoundResult) bool {
	if len(a) != len(b) {
		return false
	}
	byTrack := make(map[Track]RoundResult, len(a))
	for _, r := range a {
		byTrack[r.Track] = r
	}
	for _, r := range b {
		other, ok := byTrack[r.Track]
		if !ok || !other.Equal(r) {
			return false
		}
	}
	return true
}

// ParticipantPlacement is a historical placement as seen from a participant.
type ParticipantPlacement struct {
	RoundID    string
	RoundStart time.Time
	RoundEnd   time.Time
	Track      Track
	Position   int
	Score      int
}
