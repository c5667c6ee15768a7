package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// Roster caches league membership in memory and writes through to the repository.
// Scoring reads it on every event, so lookups never touch storage.
type Roster struct {
	mu      sync.RWMutex
	members map[shared.ParticipantID]*league.Participant

	// writes serializes membership changes so cache and store stay in step.
	writes sync.Mutex

	repo    league.ParticipantRepository
	clock   clockwork.Clock
	timeout time.Duration
	logger  *slog.Logger
}

// NewRoster creates an empty roster. Call Load before serving traffic.
func NewRoster(repo league.ParticipantRepository, clock clockwork.Clock, timeout time.Duration, logger *slog.Logger) *Roster {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Roster{
		members: make(map[shared.ParticipantID]*league.Participant),
		repo:    repo,
		clock:   clock,
		timeout: timeout,
		logger:  logger.With("component", "roster"),
	}
}

// Load replaces the cache with the stored participants.
func (r *Roster) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	list, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("roster: load participants: %w", err)
	}

	members := make(map[shared.ParticipantID]*league.Participant, len(list))
	for _, p := range list {
		members[p.ID] = p
	}

	r.mu.Lock()
	r.members = members
	r.mu.Unlock()

	r.logger.Info("roster loaded", "participants", len(members))
	return nil
}

// Lookup returns a copy of the participant.
func (r *Roster) Lookup(id shared.ParticipantID) (*league.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.members[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// All returns copies of every participant.
func (r *Roster) All() []*league.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*league.Participant, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, p.Clone())
	}
	return out
}

// Counts summarises membership.
type Counts struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Spanish int `json:"spanish_learners"`
	English int `json:"english_learners"`
	Banned  int `json:"banned"`
}

// Counts returns membership totals. Learners per track count active members only.
func (r *Roster) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c Counts
	for _, p := range r.members {
		c.Total++
		switch p.Status {
		case league.StatusBanned:
			c.Banned++
		case league.StatusActive:
			c.Active++
			if p.Track == league.TrackSpanish {
				c.Spanish++
			} else if p.Track == league.TrackEnglish {
				c.English++
			}
		}
	}
	return c
}

// Join creates or reactivates a participant on track.
func (r *Roster) Join(ctx context.Context, id shared.ParticipantID, displayName string, track league.Track) (*league.Participant, error) {
	return r.mutate(ctx, id, func(p *league.Participant, now time.Time) (*league.Participant, error) {
		if p == nil {
			return league.NewParticipant(id, displayName, track, now)
		}
		if err := p.Join(track, displayName, now); err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Leave stops accrual for a participant.
func (r *Roster) Leave(ctx context.Context, id shared.ParticipantID) (*league.Participant, error) {
	return r.mutate(ctx, id, func(p *league.Participant, now time.Time) (*league.Participant, error) {
		if p == nil {
			return nil, shared.ErrNotParticipating
		}
		if err := p.Leave(now); err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Ban blocks a user, creating a record if the user never joined. Idempotent.
func (r *Roster) Ban(ctx context.Context, capability shared.Capability, id shared.ParticipantID) (*league.Participant, bool, error) {
	if err := capability.Require(shared.RoleAdmin); err != nil {
		return nil, false, err
	}
	changed := false
	p, err := r.mutate(ctx, id, func(p *league.Participant, now time.Time) (*league.Participant, error) {
		if p == nil {
			changed = true
			return league.NewBannedParticipant(id, now)
		}
		changed = p.Ban(now)
		return p, nil
	})
	return p, changed, err
}

// Unban lifts a ban. Unbanning someone who is not banned is a no-op.
func (r *Roster) Unban(ctx context.Context, capability shared.Capability, id shared.ParticipantID) (*league.Participant, bool, error) {
	if err := capability.Require(shared.RoleAdmin); err != nil {
		return nil, false, err
	}
	changed := false
	p, err := r.mutate(ctx, id, func(p *league.Participant, now time.Time) (*league.Participant, error) {
		if p == nil {
			return nil, shared.ErrParticipantNotFound
		}
		changed = p.Unban(now)
		return p, nil
	})
	return p, changed, err
}

// mutate applies fn to a copy of the cached participant, persists, then publishes to the cache.
func (r *Roster) mutate(
	ctx context.Context,
	id shared.ParticipantID,
	fn func(p *league.Participant, now time.Time) (*league.Participant, error),
) (*league.Participant, error) {
	r.writes.Lock()
	defer r.writes.Unlock()

	current, _ := r.Lookup(id)
	updated, err := fn(current, r.clock.Now())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.repo.Save(ctx, updated); err != nil {
		return nil, shared.WrapError("participant", "Save", shared.ErrPersistenceTimeout, "failed to persist participant", err)
	}

	r.mu.Lock()
	r.members[id] = updated.Clone()
	r.mu.Unlock()

	return updated, nil
}
