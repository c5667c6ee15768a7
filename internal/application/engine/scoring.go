package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hablemos/language-league/internal/domain/leaderboard"
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// Engine owns the tallies of the open round.
// The round pointer and the tally map share mu, so a score can never land in a
// round that has started closing.
type Engine struct {
	mu      sync.Mutex
	round   *league.Round
	tallies map[shared.ParticipantID]*league.Tally
	dirty   map[shared.ParticipantID]struct{}

	roster   *Roster
	rules    league.ScoringRules
	clock    clockwork.Clock
	observer Observer
}

// NewEngine creates an engine with no round installed.
func NewEngine(roster *Roster, rules league.ScoringRules, clock clockwork.Clock, observer Observer) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if rules.PointsPerMessage <= 0 {
		rules = league.DefaultScoringRules()
	}
	return &Engine{
		tallies:  make(map[shared.ParticipantID]*league.Tally),
		dirty:    make(map[shared.ParticipantID]struct{}),
		roster:   roster,
		rules:    rules,
		clock:    clock,
		observer: observer,
	}
}

// Rules returns the scoring rules in effect.
func (e *Engine) Rules() league.ScoringRules {
	return e.rules
}

// Score credits one validated event to roundID.
//
// Errors:
//   - shared.ErrStaleRound (RoundClosed) when roundID is not the open round
//   - a rejection when the participant is unknown or not active
//   - a track_mismatch rejection when lang does not match the participant's track
func (e *Engine) Score(_ context.Context, id shared.ParticipantID, lang league.Language, ts time.Time, roundID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round == nil || e.round.ID != roundID || !e.round.IsOpen() {
		return shared.ErrStaleRound
	}

	p, ok := e.roster.Lookup(id)
	if !ok {
		return league.Reject(league.ReasonNotParticipant)
	}
	if !p.IsActive() {
		return league.Reject(league.ReasonInactive)
	}
	if !p.Track.Accepts(lang) {
		return league.Reject(league.ReasonTrackMismatch)
	}

	t, ok := e.tallies[id]
	if !ok {
		t = league.NewTally(id, roundID)
		e.tallies[id] = t
		e.observer.OpenTallies(len(e.tallies))
	}
	t.Track = p.Track
	t.Credit(e.rules.PointsPerMessage, ts)
	e.dirty[id] = struct{}{}
	return nil
}

// CurrentRound returns a copy of the installed round, or nil before recovery.
func (e *Engine) CurrentRound() *league.Round {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return nil
	}
	return e.round.Clone()
}

// CurrentRoundID returns the id of the installed round and whether it accepts scores.
func (e *Engine) CurrentRoundID() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return "", false
	}
	return e.round.ID, e.round.IsOpen()
}

// Tally returns a copy of a participant's tally in the current round.
func (e *Engine) Tally(id shared.ParticipantID) (*league.Tally, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tallies[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// CountedMessages returns the messages counted in the current round.
func (e *Engine) CountedMessages() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, t := range e.tallies {
		n += t.Messages
	}
	return n
}

// Snapshot copies the current tallies into a leaderboard snapshot.
func (e *Engine) Snapshot() leaderboard.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() leaderboard.Snapshot {
	roundID := ""
	if e.round != nil {
		roundID = e.round.ID
	}
	entries := make([]leaderboard.Entry, 0, len(e.tallies))
	for id, t := range e.tallies {
		p, ok := e.roster.Lookup(id)
		if !ok {
			continue
		}
		entries = append(entries, leaderboard.NewEntry(t, p, e.rules))
	}
	return leaderboard.NewSnapshot(roundID, e.clock.Now(), entries)
}

// TakeDirty returns copies of the tallies changed since the last call and
// clears the dirty set.
func (e *Engine) TakeDirty() []*league.Tally {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.dirty) == 0 {
		return nil
	}
	out := make([]*league.Tally, 0, len(e.dirty))
	for id := range e.dirty {
		if t, ok := e.tallies[id]; ok {
			out = append(out, t.Clone())
		}
	}
	e.dirty = make(map[shared.ParticipantID]struct{})
	return out
}

// MarkDirty puts tallies back in the dirty set after a failed checkpoint.
// Tallies of another round are ignored.
func (e *Engine) MarkDirty(tallies []*league.Tally) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return
	}
	for _, t := range tallies {
		if t.RoundID == e.round.ID {
			e.dirty[t.ParticipantID] = struct{}{}
		}
	}
}

// install replaces the round and its tallies.
func (e *Engine) install(r *league.Round, tallies []*league.Tally) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round = r.Clone()
	e.tallies = make(map[shared.ParticipantID]*league.Tally, len(tallies))
	for _, t := range tallies {
		e.tallies[t.ParticipantID] = t.Clone()
	}
	e.dirty = make(map[shared.ParticipantID]struct{})
	e.observer.OpenTallies(len(e.tallies))
}

// frozen is the read-only state captured when a round starts closing.
type frozen struct {
	round    *league.Round
	snapshot leaderboard.Snapshot
	tallies  []*league.Tally
}

// freeze moves the open round to Closing and captures its tallies.
// From here on Score rejects the round.
func (e *Engine) freeze() (frozen, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return frozen{}, shared.ErrNoOpenRound
	}
	if err := e.round.BeginClosing(); err != nil {
		return frozen{}, err
	}
	tallies := make([]*league.Tally, 0, len(e.tallies))
	for _, t := range e.tallies {
		tallies = append(tallies, t.Clone())
	}
	return frozen{
		round:    e.round.Clone(),
		snapshot: e.snapshotLocked(),
		tallies:  tallies,
	}, nil
}

// thaw reopens a closing round so scoring resumes.
func (e *Engine) thaw() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return shared.ErrNoOpenRound
	}
	return e.round.Reopen()
}
