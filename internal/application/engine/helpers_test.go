package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/internal/infrastructure/persistence/memory"
	"github.com/hablemos/language-league/pkg/timeutil"
)

var admin = shared.NewCapability("ops", shared.RoleAdmin)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// flakyRounds fails CommitRollover a fixed number of times and records every attempt.
// lostAcks commits through to storage and still reports a timeout.
type flakyRounds struct {
	league.RoundRepository
	mu       sync.Mutex
	failures int
	lostAcks int
	attempts []league.RolloverCommit
}

func (f *flakyRounds) CommitRollover(ctx context.Context, c league.RolloverCommit) error {
	f.mu.Lock()
	f.attempts = append(f.attempts, c)
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	lost := !fail && f.lostAcks > 0
	if lost {
		f.lostAcks--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	if err := f.RoundRepository.CommitRollover(ctx, c); err != nil {
		return err
	}
	if lost {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *flakyRounds) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

type fixture struct {
	clock   *clockwork.FakeClock
	store   *memory.Store
	rounds  *flakyRounds
	roster  *Roster
	engine  *Engine
	manager *RoundManager
	bus     *recordingPublisher
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds an engine over a memory store, recovered at now.
// With the default anchor the first round is [2024-01-07, 2024-01-21).
func newFixture(t *testing.T, now time.Time, store *memory.Store) *fixture {
	t.Helper()
	if store == nil {
		store = memory.NewStore()
	}
	clock := clockwork.NewFakeClockAt(now)
	logger := discardLogger()

	f := &fixture{
		clock:  clock,
		store:  store,
		rounds: &flakyRounds{RoundRepository: store.Rounds()},
		bus:    &recordingPublisher{},
	}
	f.roster = NewRoster(store.Participants(), clock, time.Second, logger)
	require.NoError(t, f.roster.Load(context.Background()))
	f.engine = NewEngine(f.roster, league.DefaultScoringRules(), clock, nil)
	f.manager = NewRoundManager(RoundManagerDeps{
		Engine:    f.engine,
		Rounds:    f.rounds,
		Tallies:   store.Tallies(),
		Results:   store.Results(),
		Publisher: f.bus,
		Clock:     clock,
		Logger:    logger,
	}, DefaultRoundConfig())
	require.NoError(t, f.manager.Recover(context.Background()))
	return f
}

func (f *fixture) join(t *testing.T, id string, track league.Track) {
	t.Helper()
	_, err := f.roster.Join(context.Background(), shared.ParticipantID(id), id, track)
	require.NoError(t, err)
}

func (f *fixture) score(id string, lang league.Language, at time.Time) error {
	roundID, _ := f.engine.CurrentRoundID()
	return f.engine.Score(context.Background(), shared.ParticipantID(id), lang, at, roundID)
}

func wednesday() time.Time {
	return timeutil.DateTime(2024, 1, 10, 12, 0, 0)
}
