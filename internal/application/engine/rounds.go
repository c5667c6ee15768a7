package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hablemos/language-league/internal/domain/leaderboard"
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/pkg/timeutil"
)

// Rollover outcome labels reported to the Observer.
const (
	RolloverCommitted  = "committed"
	RolloverFailed     = "failed"
	RolloverCorruption = "corruption"
)

// maxCatchUp bounds how many rounds a single Check may close.
const maxCatchUp = 1024

// RoundConfig controls round boundaries and the rollover transaction.
type RoundConfig struct {
	Length time.Duration
	// Anchor is a Sunday 00:00 UTC; boundaries are Anchor + k×Length.
	Anchor        time.Time
	TopN          int
	CommitTimeout time.Duration
}

// DefaultRoundConfig returns 14-day rounds anchored on Sunday 2024-01-07.
func DefaultRoundConfig() RoundConfig {
	return RoundConfig{
		Length:        14 * 24 * time.Hour,
		Anchor:        timeutil.Date(2024, 1, 7),
		TopN:          3,
		CommitTimeout: 30 * time.Second,
	}
}

// Validate checks the round configuration.
func (c RoundConfig) Validate() error {
	if c.Length < time.Hour {
		return fmt.Errorf("%w: round length must be at least 1h", shared.ErrConfigurationInvalid)
	}
	if !timeutil.IsSundayMidnight(c.Anchor) {
		return fmt.Errorf("%w: round anchor must be a Sunday 00:00 UTC", shared.ErrConfigurationInvalid)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("%w: top N must be positive", shared.ErrConfigurationInvalid)
	}
	return nil
}

// pending is a rollover that froze a round but has not committed yet.
// Retries reuse it so the persisted content is identical.
type pending struct {
	commit   league.RolloverCommit
	results  []league.RoundResult
	attempts int
}

// RoundManager owns the round lifecycle: recovery, expiry checks and rollover.
type RoundManager struct {
	engine    *Engine
	rounds    league.RoundRepository
	tallies   league.TallyRepository
	results   league.ResultRepository
	publisher shared.EventPublisher

	cfg      RoundConfig
	clock    clockwork.Clock
	logger   *slog.Logger
	observer Observer

	// mu serializes Check, Resume and Recover.
	mu      sync.Mutex
	pending *pending

	stateMu    sync.RWMutex
	halted     bool
	haltReason string
	previous   []league.RoundResult
}

// RoundManagerDeps groups the collaborators of a RoundManager.
type RoundManagerDeps struct {
	Engine    *Engine
	Rounds    league.RoundRepository
	Tallies   league.TallyRepository
	Results   league.ResultRepository
	Publisher shared.EventPublisher
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Observer  Observer
}

// NewRoundManager creates a round manager. Call Recover before Check.
func NewRoundManager(deps RoundManagerDeps, cfg RoundConfig) *RoundManager {
	def := DefaultRoundConfig()
	if cfg.Length <= 0 {
		cfg.Length = def.Length
	}
	if cfg.Anchor.IsZero() {
		cfg.Anchor = def.Anchor
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = def.CommitTimeout
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Publisher == nil {
		deps.Publisher = shared.NopPublisher{}
	}
	return &RoundManager{
		engine:    deps.Engine,
		rounds:    deps.Rounds,
		tallies:   deps.Tallies,
		results:   deps.Results,
		publisher: deps.Publisher,
		cfg:       cfg,
		clock:     deps.Clock,
		logger:    deps.Logger.With("component", "round_manager"),
		observer:  deps.Observer,
	}
}

// Config returns the round configuration.
func (m *RoundManager) Config() RoundConfig {
	return m.cfg
}

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY
// ══════════════════════════════════════════════════════════════════════════════

// Recover loads the open round and its checkpointed tallies into the engine,
// creating the first round when the store is empty. An expired round is left
// for the next Check to close.
func (m *RoundManager) Recover(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	open, err := m.rounds.GetOpen(ctx)
	switch {
	case errors.Is(err, shared.ErrNoOpenRound):
		open, err = league.FirstRound(m.cfg.Anchor, m.cfg.Length, m.clock.Now().UTC())
		if err != nil {
			return fmt.Errorf("create first round: %w", err)
		}
		if err := m.rounds.Create(ctx, open); err != nil {
			return fmt.Errorf("persist first round: %w", err)
		}
		m.logger.Info("first round opened",
			"round_id", open.ID,
			"start", open.Start.Format(time.RFC3339),
			"end", open.End.Format(time.RFC3339),
		)
	case err != nil:
		return fmt.Errorf("load open round: %w", err)
	}

	tallies, err := m.tallies.ListByRound(ctx, open.ID)
	if err != nil {
		return fmt.Errorf("load tallies of round %s: %w", open.ID, err)
	}
	m.engine.install(open, tallies)
	m.pending = nil

	if err := m.loadPrevious(ctx); err != nil {
		return err
	}

	m.logger.Info("round recovered",
		"round_id", open.ID,
		"number", open.Number,
		"tallies", len(tallies),
		"expired", open.Expired(m.clock.Now()),
	)
	return nil
}

func (m *RoundManager) loadPrevious(ctx context.Context) error {
	last, err := m.rounds.GetLastClosed(ctx)
	if shared.IsNotFound(err) {
		m.setPrevious(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load last closed round: %w", err)
	}
	results, err := m.results.ListByRound(ctx, last.ID)
	if err != nil {
		return fmt.Errorf("load results of round %s: %w", last.ID, err)
	}
	m.setPrevious(results)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROLLOVER
// ══════════════════════════════════════════════════════════════════════════════

// Check closes the current round if it has expired, repeating until the open
// round is live so no boundary is skipped after downtime. It is a no-op while
// rollovers are halted.
func (m *RoundManager) Check(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if halted, reason := m.Halted(); halted {
		m.logger.Warn("rollover skipped, halted", "reason", reason)
		return nil
	}

	for i := 0; i < maxCatchUp; i++ {
		rolled, err := m.rolloverOnce(ctx)
		if err != nil {
			return err
		}
		if !rolled {
			return nil
		}
	}
	m.logger.Warn("rollover catch-up limit reached", "limit", maxCatchUp)
	return nil
}

// rolloverOnce performs at most one rollover and reports whether it committed.
func (m *RoundManager) rolloverOnce(ctx context.Context) (bool, error) {
	if m.pending == nil {
		current := m.engine.CurrentRound()
		if current == nil {
			return false, shared.ErrNoOpenRound
		}
		if !current.Expired(m.clock.Now()) {
			return false, nil
		}
		p, err := m.prepare()
		if err != nil {
			return false, err
		}
		m.pending = p
	}

	started := m.clock.Now()
	err := m.commit(ctx, m.pending)
	took := m.clock.Since(started)

	switch {
	case err == nil:
	case errors.Is(err, shared.ErrCorruption):
		m.observer.RolloverFinished(RolloverCorruption, took)
		m.halt(m.pending.commit.Closing, err)
		return false, shared.WrapError("round", "Rollover", shared.ErrRolloverHalted, "rollovers halted", err)
	default:
		m.observer.RolloverFinished(RolloverFailed, took)
		m.logger.Warn("rollover failed, will retry",
			"round_id", m.pending.commit.Closing.ID,
			"error", err,
		)
		return false, err
	}

	p := m.pending
	m.pending = nil
	m.engine.install(p.commit.Next, nil)
	m.setPrevious(p.results)
	m.observer.RolloverFinished(RolloverCommitted, took)

	m.logger.Info("round rolled over",
		"closed_round", p.commit.Closing.ID,
		"opened_round", p.commit.Next.ID,
		"participants", len(p.commit.Tallies),
		"duration", took.String(),
	)
	m.announce(p)
	return true, nil
}

// prepare freezes the engine and builds the commit from the frozen snapshot.
func (m *RoundManager) prepare() (*pending, error) {
	f, err := m.engine.freeze()
	if err != nil {
		return nil, fmt.Errorf("freeze round: %w", err)
	}
	next, err := f.round.Next(m.cfg.Length)
	if err != nil {
		if thawErr := m.engine.thaw(); thawErr != nil {
			m.logger.Error("failed to reopen round", "round_id", f.round.ID, "error", thawErr)
		}
		return nil, fmt.Errorf("build next round: %w", err)
	}
	results := leaderboard.Results(f.snapshot, m.cfg.TopN, f.round.End)
	return &pending{
		commit: league.RolloverCommit{
			Closing: f.round,
			Tallies: f.tallies,
			Results: results,
			Next:    next,
		},
		results: results,
	}, nil
}

// commit runs the rollover transaction detached from caller cancellation.
// A retry first re-reads the open round: an earlier attempt may have
// committed after its caller gave up on it.
func (m *RoundManager) commit(ctx context.Context, p *pending) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CommitTimeout)
	defer cancel()

	if p.attempts > 0 {
		open, err := m.rounds.GetOpen(ctx)
		if err == nil && open.ID == p.commit.Next.ID {
			m.logger.Info("rollover found committed on retry", "round_id", p.commit.Closing.ID)
			return nil
		}
	}
	p.attempts++
	return m.rounds.CommitRollover(ctx, p.commit)
}

// halt stops rollovers and reopens the round so scoring continues.
func (m *RoundManager) halt(r *league.Round, cause error) {
	m.pending = nil
	if err := m.engine.thaw(); err != nil {
		m.logger.Error("failed to reopen round after corruption", "round_id", r.ID, "error", err)
	}

	m.stateMu.Lock()
	m.halted = true
	m.haltReason = cause.Error()
	m.stateMu.Unlock()

	m.logger.Error("rollover halted: persisted round state is inconsistent",
		"round_id", r.ID,
		"error", cause,
	)
	m.publish(shared.NewRolloverStateEvent(shared.EventRolloverHalted, r.ID, cause.Error(), m.clock.Now()))
}

// Resume clears a halt after reloading the open round from storage. The
// next Check retries the rollover.
func (m *RoundManager) Resume(ctx context.Context, capability shared.Capability) (bool, error) {
	if err := capability.Require(shared.RoleAdmin); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if halted, _ := m.Halted(); !halted {
		return false, nil
	}
	if err := m.reconcile(ctx); err != nil {
		return false, err
	}

	m.stateMu.Lock()
	m.halted = false
	m.haltReason = ""
	m.stateMu.Unlock()

	roundID := ""
	if r := m.engine.CurrentRound(); r != nil {
		roundID = r.ID
	}
	m.logger.Info("rollovers resumed", "actor", capability.Actor(), "round_id", roundID)
	m.publish(shared.NewRolloverStateEvent(shared.EventRolloverResumed, roundID, "resumed by "+capability.Actor(), m.clock.Now()))
	return true, nil
}

// reconcile installs the stored open round when storage has moved past the
// engine's round. Scores held only in memory for the stale round are dropped.
func (m *RoundManager) reconcile(ctx context.Context) error {
	open, err := m.rounds.GetOpen(ctx)
	if err != nil {
		return fmt.Errorf("load open round: %w", err)
	}
	current := m.engine.CurrentRound()
	if current != nil && current.ID == open.ID {
		return nil
	}

	tallies, err := m.tallies.ListByRound(ctx, open.ID)
	if err != nil {
		return fmt.Errorf("load tallies of round %s: %w", open.ID, err)
	}
	m.engine.install(open, tallies)
	m.pending = nil

	stale := ""
	if current != nil {
		stale = current.ID
	}
	m.logger.Warn("engine round replaced from storage",
		"stale_round", stale,
		"round_id", open.ID,
		"tallies", len(tallies),
	)
	return m.loadPrevious(ctx)
}

// Halted reports whether rollovers are halted and why.
func (m *RoundManager) Halted() (bool, string) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.halted, m.haltReason
}

// ══════════════════════════════════════════════════════════════════════════════
// PREVIOUS WINNERS
// ══════════════════════════════════════════════════════════════════════════════

func (m *RoundManager) setPrevious(results []league.RoundResult) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.previous = results
}

// PreviousResults returns the results of the last closed round.
func (m *RoundManager) PreviousResults() []league.RoundResult {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	out := make([]league.RoundResult, len(m.previous))
	copy(out, m.previous)
	return out
}

// IsPreviousWinner reports whether the participant placed on the track's
// podium in the last closed round.
func (m *RoundManager) IsPreviousWinner(id shared.ParticipantID, track league.Track) bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	for _, r := range m.previous {
		if r.Track != track {
			continue
		}
		if _, ok := r.PlacementOf(id); ok {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION
// ══════════════════════════════════════════════════════════════════════════════

func (m *RoundManager) announce(p *pending) {
	now := m.clock.Now()
	closing, next := p.commit.Closing, p.commit.Next

	m.publish(shared.NewRoundRolledOverEvent(
		closing.ID, next.ID, next.Start, next.End, len(p.commit.Tallies), now,
	))
	for _, r := range p.results {
		m.publish(shared.NewWinnersAnnouncedEvent(
			r.RoundID, r.Track.String(), closing.End, r.Winners(), now,
		))
	}
}

// publish never fails the caller; delivery errors are only logged.
func (m *RoundManager) publish(event shared.Event) {
	if err := m.publisher.Publish(event); err != nil {
		m.logger.Warn("failed to publish event",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"error", err,
		)
	}
}
