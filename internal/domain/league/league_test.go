package league

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/pkg/timeutil"
)

func TestParseTrack(t *testing.T) {
	for in, want := range map[string]Track{
		"spanish":          TrackSpanish,
		"ES":               TrackSpanish,
		"learning_english": TrackEnglish,
		" english ":        TrackEnglish,
	} {
		got, err := ParseTrack(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseTrack("french")
	assert.True(t, errors.Is(err, shared.ErrConfigurationInvalid))
}

func TestTrack_Accepts(t *testing.T) {
	assert.True(t, TrackSpanish.Accepts(LanguageSpanish))
	assert.False(t, TrackSpanish.Accepts(LanguageEnglish))
	assert.False(t, TrackEnglish.Accepts(LanguageNone))
	assert.Equal(t, LanguageNone, ParseLanguage("fr"))
	assert.Equal(t, LanguageEnglish, ParseLanguage("EN"))
}

func TestParticipant_Lifecycle(t *testing.T) {
	now := timeutil.Date(2024, 1, 10)
	p, err := NewParticipant("u1", "Ana", TrackSpanish, now)
	require.NoError(t, err)
	assert.True(t, p.IsActive())

	// Same track while active is a duplicate selection.
	err = p.Join(TrackSpanish, "", now)
	assert.True(t, errors.Is(err, shared.ErrConfigurationInvalid))

	// Switching track is allowed.
	assert.NoError(t, p.Join(TrackEnglish, "", now))
	assert.Equal(t, TrackEnglish, p.Track)

	assert.NoError(t, p.Leave(now))
	assert.Equal(t, StatusLeft, p.Status)
	assert.ErrorIs(t, p.Leave(now), shared.ErrNotFound)

	assert.True(t, p.Ban(now))
	assert.False(t, p.Ban(now))
	err = p.Join(TrackEnglish, "", now)
	assert.ErrorIs(t, err, shared.ErrParticipantBanned)
	assert.True(t, errors.Is(err, shared.ErrConfigurationInvalid))

	assert.True(t, p.Unban(now))
	assert.Equal(t, StatusLeft, p.Status)
	assert.NoError(t, p.Join(TrackSpanish, "Ana María", now))
	assert.Equal(t, "Ana María", p.DisplayName)
}

func TestRound_Transitions(t *testing.T) {
	r, err := NewRound("r1", 1, timeutil.Date(2024, 1, 7), timeutil.Date(2024, 1, 21))
	require.NoError(t, err)
	assert.True(t, r.IsOpen())

	assert.ErrorIs(t, r.Close(), shared.ErrStateTransition)
	assert.NoError(t, r.BeginClosing())
	assert.ErrorIs(t, r.BeginClosing(), shared.ErrStateTransition)
	assert.NoError(t, r.Reopen())
	assert.NoError(t, r.BeginClosing())
	assert.NoError(t, r.Close())
	assert.Equal(t, RoundClosed, r.Status)

	next, err := r.Next(14 * timeutil.Day)
	require.NoError(t, err)
	assert.Equal(t, r.End, next.Start)
	assert.Equal(t, timeutil.Date(2024, 2, 4), next.End)
	assert.Equal(t, 2, next.Number)
	assert.NotEqual(t, r.ID, next.ID)
	assert.True(t, next.IsOpen())
}

func TestRound_Expired(t *testing.T) {
	r, _ := NewRound("r1", 1, timeutil.Date(2024, 1, 7), timeutil.Date(2024, 1, 21))
	assert.False(t, r.Expired(timeutil.Date(2024, 1, 21).Add(-time.Nanosecond)))
	assert.True(t, r.Expired(timeutil.Date(2024, 1, 21)))
	assert.Equal(t, time.Duration(0), r.Remaining(timeutil.Date(2024, 2, 1)))

	_, err := NewRound("bad", 1, timeutil.Date(2024, 1, 21), timeutil.Date(2024, 1, 7))
	assert.Error(t, err)
}

func TestFirstRound_EndsOnSunday(t *testing.T) {
	r, err := FirstRound(timeutil.Date(2024, 1, 7), 14*timeutil.Day, timeutil.DateTime(2024, 5, 15, 10, 0, 0))
	require.NoError(t, err)
	assert.True(t, timeutil.IsSundayMidnight(r.Start))
	assert.True(t, timeutil.IsSundayMidnight(r.End))
	assert.True(t, r.Window().Contains(timeutil.DateTime(2024, 5, 15, 10, 0, 0)))
}

func TestTally_Score(t *testing.T) {
	rules := DefaultScoringRules()
	tally := NewTally("u1", "r1")

	tally.Credit(rules.PointsPerMessage, timeutil.DateTime(2024, 1, 8, 9, 0, 0))
	tally.Credit(rules.PointsPerMessage, timeutil.DateTime(2024, 1, 8, 22, 0, 0))
	tally.Credit(rules.PointsPerMessage, timeutil.DateTime(2024, 1, 10, 1, 0, 0))

	assert.Equal(t, 3, tally.MessagePoints)
	assert.Equal(t, 2, tally.ActiveDayCount())
	assert.Equal(t, 3+2*5, tally.Score(rules))
	assert.Equal(t, []string{"2024-01-08", "2024-01-10"}, tally.Days())
	assert.Equal(t, timeutil.DateTime(2024, 1, 10, 1, 0, 0), tally.LastCountedAt)

	clone := tally.Clone()
	clone.Credit(1, timeutil.Date(2024, 1, 11))
	assert.Equal(t, 2, tally.ActiveDayCount())
}

func TestCleanText(t *testing.T) {
	// Inner whitespace is kept; only the ends are trimmed.
	assert.Equal(t, "hola  amigos", CleanText("  hola 😀 amigos <:wave:12345> "))
	assert.Equal(t, 12, TextLength("  hola 😀 amigos <:wave:12345> "))
	assert.Equal(t, "", CleanText("😀😀 <a:dance:999>"))
	// Decomposed "é" normalises to a single rune.
	assert.Equal(t, 5, TextLength("cafe\u0301!"))
	assert.Equal(t, "hola…", Excerpt("hola mundo", 4))
}

func TestRejection_Kinds(t *testing.T) {
	err := Reject(ReasonCooldown)
	assert.True(t, shared.IsRejected(err))
	assert.False(t, errors.Is(err, shared.ErrTrackMismatch))
	assert.Equal(t, ReasonCooldown, ReasonOf(err))

	mismatch := Reject(ReasonTrackMismatch)
	assert.True(t, errors.Is(mismatch, shared.ErrTrackMismatch))

	assert.Equal(t, ReasonRoundClosed, ReasonOf(shared.ErrStaleRound))
}

func TestRoundResult_Equal(t *testing.T) {
	a := RoundResult{RoundID: "r1", Track: TrackSpanish, Placements: []Placement{{1, "u1", 20}}}
	b := RoundResult{RoundID: "r1", Track: TrackSpanish, Placements: []Placement{{1, "u1", 20}}}
	assert.True(t, a.Equal(b))
	b.Placements[0].Score = 21
	assert.False(t, a.Equal(b))

	p, ok := a.PlacementOf("u1")
	assert.True(t, ok)
	assert.Equal(t, 1, p.Position)
	assert.Len(t, a.Winners(), 1)
}
