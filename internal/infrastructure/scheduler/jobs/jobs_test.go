package jobs

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
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/internal/infrastructure/persistence/memory"
)

type failingTallies struct {
	league.TallyRepository
	fail bool
}

func (f *failingTallies) Checkpoint(ctx context.Context, tallies []*league.Tally) error {
	if f.fail {
		return errors.New("connection refused")
	}
	return f.TallyRepository.Checkpoint(ctx, tallies)
}

type env struct {
	clock   *clockwork.FakeClock
	store   *memory.Store
	roster  *engine.Roster
	engine  *engine.Engine
	manager *engine.RoundManager
}

func logger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore()

	roster := engine.NewRoster(store.Participants(), clock, time.Second, logger())
	require.NoError(t, roster.Load(ctx))
	eng := engine.NewEngine(roster, league.DefaultScoringRules(), clock, nil)
	manager := engine.NewRoundManager(engine.RoundManagerDeps{
		Engine:  eng,
		Rounds:  store.Rounds(),
		Tallies: store.Tallies(),
		Results: store.Results(),
		Clock:   clock,
		Logger:  logger(),
	}, engine.DefaultRoundConfig())
	require.NoError(t, manager.Recover(ctx))

	_, err := roster.Join(ctx, "u1", "Ana", league.TrackSpanish)
	require.NoError(t, err)
	return &env{clock: clock, store: store, roster: roster, engine: eng, manager: manager}
}

func (e *env) score(t *testing.T) {
	t.Helper()
	roundID, _ := e.engine.CurrentRoundID()
	require.NoError(t, e.engine.Score(context.Background(), "u1", league.LanguageSpanish, e.clock.Now(), roundID))
}

func TestCheckpointTalliesJob(t *testing.T) {
	e := newEnv(t)
	e.score(t)
	repo := &failingTallies{TallyRepository: e.store.Tallies(), fail: true}
	job := NewCheckpointTalliesJob(e.engine, repo, time.Second, logger())
	roundID, _ := e.engine.CurrentRoundID()

	require.Error(t, job.Run(context.Background()))
	_, err := e.store.Tallies().Get(context.Background(), roundID, "u1")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	repo.fail = false
	require.NoError(t, job.Run(context.Background()))
	stored, err := e.store.Tallies().Get(context.Background(), roundID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Messages)

	// nothing dirty, nothing written
	assert.Empty(t, e.engine.TakeDirty())
	require.NoError(t, job.Run(context.Background()))
}

func TestRolloverCheckJob(t *testing.T) {
	e := newEnv(t)
	e.score(t)
	job := NewRolloverCheckJob(e.manager, logger())
	before, _ := e.engine.CurrentRoundID()

	require.NoError(t, job.Run(context.Background()))
	after, _ := e.engine.CurrentRoundID()
	assert.Equal(t, before, after)

	e.clock.Advance(12 * 24 * time.Hour)
	require.NoError(t, job.Run(context.Background()))
	after, open := e.engine.CurrentRoundID()
	assert.NotEqual(t, before, after)
	assert.True(t, open)

	results, err := e.store.Results().ListByRound(context.Background(), before)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestPruneGateJob(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	gate := engine.NewGate(memory.NewGateStore(), engine.DefaultGateConfig(), clock)
	_, err := gate.Admit(context.Background(), engine.GateRequest{
		ParticipantID: "u1",
		ChannelID:     "c1",
		At:            clock.Now(),
		Length:        20,
	})
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	job := NewPruneGateJob(gate, logger())
	require.NoError(t, job.Run(context.Background()))

	n, err := gate.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
