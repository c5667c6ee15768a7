package command

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hablemos/language-league/internal/application/engine"
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/internal/infrastructure/persistence/memory"
	"github.com/hablemos/language-league/pkg/timeutil"
)

// prefixClassifier tags text starting with "es:" or "en:".
type prefixClassifier struct{ calls atomic.Int64 }

func (c *prefixClassifier) Detect(_ context.Context, text string) (league.Language, error) {
	c.calls.Add(1)
	switch {
	case strings.HasPrefix(text, "es:"):
		return league.LanguageSpanish, nil
	case strings.HasPrefix(text, "en:"):
		return league.LanguageEnglish, nil
	default:
		return league.LanguageNone, nil
	}
}

type pipeline struct {
	clock      *clockwork.FakeClock
	handler    *RecordActivityHandler
	membership *MembershipHandler
	moderation *ModerationHandler
	engine     *engine.Engine
	classifier *prefixClassifier
	audit      *memory.AuditLog
}

var admin = shared.NewCapability("ops", shared.RoleAdmin)

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(timeutil.DateTime(2024, 1, 10, 9, 0, 0))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()

	roster := engine.NewRoster(store.Participants(), clock, time.Second, logger)
	exclusions := engine.NewExclusionRegistry(store.Exclusions(), clock, time.Second)
	gate := engine.NewGate(memory.NewGateStore(), engine.DefaultGateConfig(), clock)
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

	p := &pipeline{
		clock:      clock,
		engine:     eng,
		classifier: &prefixClassifier{},
		audit:      memory.NewAuditLog(3),
	}
	p.handler = NewRecordActivityHandler(RecordActivityDeps{
		Roster:     roster,
		Exclusions: exclusions,
		Gate:       gate,
		Engine:     eng,
		Classifier: p.classifier,
		Audit:      p.audit,
		Clock:      clock,
		Logger:     logger,
	})
	p.membership = NewMembershipHandler(roster, eng, nil, clock, logger)
	p.moderation = NewModerationHandler(roster, exclusions, rounds, nil, clock, logger)
	return p
}

func (p *pipeline) send(t *testing.T, user, channel, text string) *RecordActivityResult {
	t.Helper()
	res, err := p.handler.Handle(context.Background(), RecordActivityCommand{
		ParticipantID: user,
		ChannelID:     channel,
		Text:          text,
	})
	require.NoError(t, err)
	return res
}

func TestRecordActivity_CountsMatchingMessage(t *testing.T) {
	p := newPipeline(t)
	_, err := p.membership.Join(context.Background(), JoinLeagueCommand{ParticipantID: "ana", DisplayName: "Ana", Track: "spanish"})
	require.NoError(t, err)

	res := p.send(t, "ana", "general", "es: hola a todos, ¿qué tal?")
	assert.True(t, res.Counted)
	assert.Equal(t, league.LanguageSpanish, res.Language)
	assert.Equal(t, 1, res.DailyCount)
	assert.Equal(t, 6, res.Score)

	entries, err := p.audit.Recent(context.Background(), "ana", 3)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, shared.ChannelID("general"), entries[0].ChannelID)
}

func TestRecordActivity_FiltersInOrder(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	_, err := p.membership.Join(ctx, JoinLeagueCommand{ParticipantID: "ana", Track: "es"})
	require.NoError(t, err)
	_, err = p.moderation.ExcludeChannel(ctx, admin, "memes", "#memes")
	require.NoError(t, err)

	res, err := p.handler.Handle(ctx, RecordActivityCommand{ParticipantID: "bot", ChannelID: "general", Text: "es: beep boop beep", FromBot: true})
	require.NoError(t, err)
	assert.Equal(t, league.ReasonBotAuthor, res.Reason)

	res, err = p.handler.Handle(ctx, RecordActivityCommand{ParticipantID: "ana", Text: "es: mensaje directo", Direct: true})
	require.NoError(t, err)
	assert.Equal(t, league.ReasonDirectMessage, res.Reason)

	assert.Equal(t, league.ReasonNotParticipant, p.send(t, "zed", "general", "es: no estoy en la liga").Reason)
	assert.Equal(t, league.ReasonExcludedChannel, p.send(t, "ana", "memes", "es: esto no cuenta aquí").Reason)
	assert.Equal(t, league.ReasonTooShort, p.send(t, "ana", "general", "es: 😀😀😀 hi").Reason)
	assert.Zero(t, p.classifier.calls.Load(), "classifier is not reached by filtered events")
}

func TestRecordActivity_MismatchDoesNotStartCooldown(t *testing.T) {
	p := newPipeline(t)
	_, err := p.membership.Join(context.Background(), JoinLeagueCommand{ParticipantID: "ana", Track: "spanish"})
	require.NoError(t, err)

	res := p.send(t, "ana", "general", "en: this is english text")
	assert.Equal(t, league.ReasonTrackMismatch, res.Reason)
	assert.False(t, res.Counted)

	res = p.send(t, "ana", "general", "es: ahora en español")
	assert.True(t, res.Counted)

	res = p.send(t, "ana", "general", "es: demasiado pronto")
	assert.Equal(t, league.ReasonCooldown, res.Reason)

	p.clock.Advance(2 * time.Minute)
	assert.True(t, p.send(t, "ana", "general", "es: ya pasó el tiempo").Counted)
}

func TestRecordActivity_BannedParticipantIsNotScored(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	_, err := p.membership.Join(ctx, JoinLeagueCommand{ParticipantID: "eve", Track: "english"})
	require.NoError(t, err)

	res, err := p.moderation.Ban(ctx, admin, "eve")
	require.NoError(t, err)
	assert.True(t, res.Changed)

	assert.Equal(t, league.ReasonInactive, p.send(t, "eve", "general", "en: let me in please").Reason)
	assert.Equal(t, 0, p.engine.CountedMessages())

	_, err = p.membership.Join(ctx, JoinLeagueCommand{ParticipantID: "eve", Track: "english"})
	assert.ErrorIs(t, err, shared.ErrParticipantBanned)
}

func TestRecordActivity_ConcurrentSameChannelCountsOnce(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	_, err := p.membership.Join(ctx, JoinLeagueCommand{ParticipantID: "ana", Track: "spanish"})
	require.NoError(t, err)

	const n = 16
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		counted atomic.Int64
		cooled  atomic.Int64
	)
	at := p.clock.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := p.handler.Handle(ctx, RecordActivityCommand{
				ParticipantID: "ana",
				ChannelID:     "general",
				Text:          "es: hola a todos, ¿qué tal?",
				Timestamp:     at,
			})
			if !assert.NoError(t, err) {
				return
			}
			switch {
			case res.Counted:
				counted.Add(1)
			case res.Reason == league.ReasonCooldown:
				cooled.Add(1)
			default:
				t.Errorf("unexpected reason %q", res.Reason)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), counted.Load())
	assert.Equal(t, int64(n-1), cooled.Load())

	tally, ok := p.engine.Tally("ana")
	require.True(t, ok)
	assert.Equal(t, 1, tally.Messages)
	assert.Equal(t, 6, tally.Score(p.engine.Rules()))
}

func TestJoinLeagueCommand_Validate(t *testing.T) {
	assert.ErrorIs(t, JoinLeagueCommand{Track: "spanish"}.Validate(), shared.ErrInvalidInput)
	assert.ErrorIs(t, JoinLeagueCommand{ParticipantID: "a", Track: "french"}.Validate(), shared.ErrUnknownTrack)
	assert.NoError(t, JoinLeagueCommand{ParticipantID: "a", Track: "learning_english"}.Validate())
}
