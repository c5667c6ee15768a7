package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hablemos/language-league/internal/application/engine"
	"github.com/hablemos/language-league/internal/domain/leaderboard"
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/internal/infrastructure/persistence/memory"
	"github.com/hablemos/language-league/pkg/timeutil"
)

var admin = shared.NewCapability("ops", shared.RoleAdmin)

// fixedClassifier всегда возвращает один и тот же ответ.
type fixedClassifier struct {
	lang league.Language
	err  error
}

func (c fixedClassifier) Detect(context.Context, string) (league.Language, error) {
	return c.lang, c.err
}

type fixture struct {
	clock      *clockwork.FakeClock
	store      *memory.Store
	roster     *engine.Roster
	exclusions *engine.ExclusionRegistry
	engine     *engine.Engine
	rounds     *engine.RoundManager
	audit      *memory.AuditLog

	leaderboard *GetLeaderboardHandler
	stats       *GetParticipantStatsHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(timeutil.DateTime(2024, 1, 10, 9, 0, 0))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()

	roster := engine.NewRoster(store.Participants(), clock, time.Second, logger)
	eng := engine.NewEngine(roster, league.DefaultScoringRules(), clock, nil)
	rounds := engine.NewRoundManager(engine.RoundManagerDeps{
		Engine:  eng,
		Rounds:  store.Rounds(),
		Tallies: store.Tallies(),
		Results: store.Results(),
		Clock:   clock,
		Logger:  logger,
	}, engine.DefaultRoundConfig())
	require.NoError(t, rounds.Recover(ctx))

	return &fixture{
		clock:       clock,
		store:       store,
		roster:      roster,
		exclusions:  engine.NewExclusionRegistry(store.Exclusions(), clock, time.Second),
		engine:      eng,
		rounds:      rounds,
		audit:       memory.NewAuditLog(AuditDepth),
		leaderboard: NewGetLeaderboardHandler(eng, rounds),
		stats:       NewGetParticipantStatsHandler(roster, eng, rounds, store.Results()),
	}
}

func (f *fixture) join(t *testing.T, id string, track league.Track) {
	t.Helper()
	_, err := f.roster.Join(context.Background(), shared.ParticipantID(id), id, track)
	require.NoError(t, err)
}

// score засчитывает n сообщений с интервалом в минуту.
func (f *fixture) score(t *testing.T, id string, lang league.Language, n int) {
	t.Helper()
	roundID, open := f.engine.CurrentRoundID()
	require.True(t, open)
	for i := 0; i < n; i++ {
		at := f.clock.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, f.engine.Score(context.Background(), shared.ParticipantID(id), lang, at, roundID))
	}
}

func (f *fixture) admin(gate *engine.Gate, classifier league.Classifier) *AdminToolsHandler {
	if gate == nil {
		gate = engine.NewGate(memory.NewGateStore(), engine.DefaultGateConfig(), f.clock)
	}
	return NewAdminToolsHandler(AdminToolsDeps{
		Roster:     f.roster,
		Exclusions: f.exclusions,
		Gate:       gate,
		Engine:     f.engine,
		Rounds:     f.rounds,
		Classifier: classifier,
		Audit:      f.audit,
		Clock:      f.clock,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func TestGetLeaderboard_Boards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.join(t, "ana", league.TrackSpanish)
	f.join(t, "ben", league.TrackSpanish)
	f.join(t, "cho", league.TrackEnglish)
	f.score(t, "ana", league.LanguageSpanish, 3)
	f.score(t, "ben", league.LanguageSpanish, 1)
	f.score(t, "cho", league.LanguageEnglish, 2)

	spanish, err := f.leaderboard.Handle(ctx, GetLeaderboardQuery{Board: "spanish"})
	require.NoError(t, err)
	assert.Equal(t, leaderboard.BoardSpanish, spanish.Board)
	require.Len(t, spanish.Entries, 2)
	assert.Equal(t, shared.ParticipantID("ana"), spanish.Entries[0].ParticipantID)
	assert.Equal(t, 8, spanish.Entries[0].Score)
	assert.Equal(t, shared.Rank(2), spanish.Entries[1].Rank)
	assert.Equal(t, 2, spanish.TotalCount)

	combined, err := f.leaderboard.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, leaderboard.BoardCombined, combined.Board)
	require.Len(t, combined.Entries, 3)
	assert.Equal(t, shared.ParticipantID("cho"), combined.Entries[1].ParticipantID)
	assert.Equal(t, timeutil.Date(2024, 1, 21), combined.RoundEnd)

	top, err := f.leaderboard.Handle(ctx, GetLeaderboardQuery{Board: "combined", Limit: 1})
	require.NoError(t, err)
	require.Len(t, top.Entries, 1)
	assert.Equal(t, 3, top.TotalCount)
}

func TestGetLeaderboard_InactiveHidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.join(t, "ana", league.TrackSpanish)
	f.join(t, "ben", league.TrackSpanish)
	f.score(t, "ana", league.LanguageSpanish, 1)
	f.score(t, "ben", league.LanguageSpanish, 1)

	_, err := f.roster.Leave(ctx, "ben")
	require.NoError(t, err)

	result, err := f.leaderboard.Handle(ctx, GetLeaderboardQuery{Board: "spanish"})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, shared.ParticipantID("ana"), result.Entries[0].ParticipantID)
}

func TestGetLeaderboard_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name  string
		query GetLeaderboardQuery
		want  error
	}{
		{"limit too large", GetLeaderboardQuery{Limit: 26}, shared.ErrInvalidLimit},
		{"negative limit", GetLeaderboardQuery{Limit: -1}, shared.ErrInvalidLimit},
		{"unknown board", GetLeaderboardQuery{Board: "french"}, shared.ErrInvalidBoard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.leaderboard.Handle(ctx, tt.query)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	q := GetLeaderboardQuery{}
	require.NoError(t, q.Validate())
	assert.Equal(t, DefaultViewLimit, q.Limit)
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT STATS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetParticipantStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.join(t, "ana", league.TrackSpanish)
	f.join(t, "cho", league.TrackEnglish)
	f.score(t, "ana", league.LanguageSpanish, 1)
	f.score(t, "cho", league.LanguageEnglish, 4)

	result, err := f.stats.Handle(ctx, GetParticipantStatsQuery{ParticipantID: "ana"})
	require.NoError(t, err)
	assert.Equal(t, league.TrackSpanish, result.Track)
	assert.Equal(t, 1, result.MessagePoints)
	assert.Equal(t, 1, result.ActiveDays)
	assert.Equal(t, 6, result.Score)
	assert.Equal(t, []BoardRank{
		{Board: leaderboard.BoardSpanish, Rank: 1},
		{Board: leaderboard.BoardCombined, Rank: 2},
	}, result.Ranks)
	assert.Empty(t, result.Placements)
	assert.False(t, result.PreviousWinner)
}

func TestGetParticipantStats_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.stats.Handle(context.Background(), GetParticipantStatsQuery{ParticipantID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrParticipantNotFound)
}

func TestGetParticipantStats_PlacementsAfterRollover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.join(t, "ana", league.TrackSpanish)
	f.join(t, "ben", league.TrackSpanish)
	f.score(t, "ana", league.LanguageSpanish, 2)
	f.score(t, "ben", league.LanguageSpanish, 1)
	old := f.engine.CurrentRound()

	f.clock.Advance(old.End.Sub(f.clock.Now()))
	require.NoError(t, f.rounds.Check(ctx))

	result, err := f.stats.Handle(ctx, GetParticipantStatsQuery{ParticipantID: "ben"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Score, "new round starts from zero")
	require.Len(t, result.Placements, 1)
	assert.Equal(t, old.ID, result.Placements[0].RoundID)
	assert.Equal(t, 2, result.Placements[0].Position)
	assert.Equal(t, "silver", result.Placements[0].Medal)
	assert.Equal(t, 6, result.Placements[0].Score)

	winner, err := f.stats.Handle(ctx, GetParticipantStatsQuery{ParticipantID: "ana"})
	require.NoError(t, err)
	assert.True(t, winner.PreviousWinner)
	require.Len(t, winner.Placements, 1)
	assert.Equal(t, "gold", winner.Placements[0].Medal)

	board, err := f.leaderboard.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.Empty(t, board.Entries)

	// Значок победителя относится к треку, на котором получено место.
	f.join(t, "ana", league.TrackEnglish)
	switched, err := f.stats.Handle(ctx, GetParticipantStatsQuery{ParticipantID: "ana"})
	require.NoError(t, err)
	assert.False(t, switched.PreviousWinner)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN TOOLS
// ══════════════════════════════════════════════════════════════════════════════

func TestAdminTools_RequireCapability(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := f.admin(nil, fixedClassifier{lang: league.LanguageSpanish})

	_, err := h.Stats(ctx, shared.Capability{})
	assert.ErrorIs(t, err, shared.ErrMissingCapability)
	_, err = h.Exclusions(ctx, shared.Capability{})
	assert.ErrorIs(t, err, shared.ErrMissingCapability)
	_, err = h.ValidateMessage(ctx, shared.Capability{}, ValidateMessageQuery{})
	assert.ErrorIs(t, err, shared.ErrMissingCapability)
	_, err = h.Audit(ctx, shared.Capability{}, "ana")
	assert.ErrorIs(t, err, shared.ErrMissingCapability)
}

func TestAdminTools_Stats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.join(t, "ana", league.TrackSpanish)
	f.join(t, "cho", league.TrackEnglish)
	f.score(t, "ana", league.LanguageSpanish, 2)
	_, err := f.exclusions.Exclude(ctx, admin, "memes", "memes")
	require.NoError(t, err)

	stats, err := f.admin(nil, fixedClassifier{}).Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CountedMessages)
	assert.Equal(t, 1, stats.ExcludedChannels)
	assert.Equal(t, 1, stats.RoundNumber)
	assert.Equal(t, timeutil.Date(2024, 1, 21), stats.RoundEnd)
	assert.False(t, stats.RolloverHalted)

	list, err := f.admin(nil, fixedClassifier{}).Exclusions(ctx, admin)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, shared.ChannelID("memes"), list[0].ChannelID)
}

func TestAdminTools_ValidateMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.join(t, "ana", league.TrackSpanish)
	h := f.admin(nil, fixedClassifier{lang: league.LanguageSpanish})

	ok, err := h.ValidateMessage(ctx, admin, ValidateMessageQuery{
		ParticipantID: "ana",
		ChannelID:     "general",
		Text:          "  hola amigos, ¿qué tal?  ",
	})
	require.NoError(t, err)
	assert.True(t, ok.WouldCount)
	assert.Equal(t, "hola amigos, ¿qué tal?", ok.CleanText)
	assert.True(t, ok.TrackMatches)

	short, err := h.ValidateMessage(ctx, admin, ValidateMessageQuery{ParticipantID: "ana", ChannelID: "general", Text: "hola"})
	require.NoError(t, err)
	assert.False(t, short.WouldCount)
	assert.Equal(t, league.ReasonTooShort, short.Reason)
	assert.False(t, short.Gate.LengthOK)

	stranger, err := h.ValidateMessage(ctx, admin, ValidateMessageQuery{ParticipantID: "zed", ChannelID: "general", Text: "hola amigos, ¿qué tal?"})
	require.NoError(t, err)
	assert.Equal(t, league.ReasonNotParticipant, stranger.Reason)

	// Проверка ничего не засчитывает.
	assert.Equal(t, 0, f.engine.CountedMessages())
}

func TestAdminTools_ValidateMessage_ClassifierDown(t *testing.T) {
	f := newFixture(t)
	f.join(t, "ana", league.TrackSpanish)
	h := f.admin(nil, fixedClassifier{err: errors.New("connection refused")})

	result, err := h.ValidateMessage(context.Background(), admin, ValidateMessageQuery{
		ParticipantID: "ana",
		ChannelID:     "general",
		Text:          "hola amigos, ¿qué tal?",
	})
	require.NoError(t, err)
	assert.False(t, result.WouldCount)
	assert.Equal(t, "connection refused", result.ClassifierNote)
}

func TestAdminTools_Audit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := f.admin(nil, fixedClassifier{})

	for i := 0; i < 5; i++ {
		require.NoError(t, f.audit.Record(ctx, "ana", league.AuditEntry{
			ChannelID: "general",
			Language:  league.LanguageSpanish,
			At:        f.clock.Now().Add(time.Duration(i) * time.Minute),
			Excerpt:   "hola",
		}))
	}

	entries, err := h.Audit(ctx, admin, "ana")
	require.NoError(t, err)
	assert.Len(t, entries, AuditDepth)

	_, err = h.Audit(ctx, admin, "")
	assert.Error(t, err)
}
