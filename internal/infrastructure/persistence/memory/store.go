// Package memory implements the league repositories in process memory.
// It backs development runs without Postgres and the engine tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// Store holds all league tables under one lock so CommitRollover is atomic.
type Store struct {
	mu           sync.RWMutex
	participants map[shared.ParticipantID]*league.Participant
	rounds       map[string]*league.Round
	tallies      map[string]map[shared.ParticipantID]*league.Tally
	results      map[string][]league.RoundResult
	exclusions   map[shared.ChannelID]league.Exclusion
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		participants: make(map[shared.ParticipantID]*league.Participant),
		rounds:       make(map[string]*league.Round),
		tallies:      make(map[string]map[shared.ParticipantID]*league.Tally),
		results:      make(map[string][]league.RoundResult),
		exclusions:   make(map[shared.ChannelID]league.Exclusion),
	}
}

// Participants returns the participant repository view.
func (s *Store) Participants() *ParticipantRepository { return &ParticipantRepository{s: s} }

// Rounds returns the round repository view.
func (s *Store) Rounds() *RoundRepository { return &RoundRepository{s: s} }

// Tallies returns the tally repository view.
func (s *Store) Tallies() *TallyRepository { return &TallyRepository{s: s} }

// Results returns the result repository view.
func (s *Store) Results() *ResultRepository { return &ResultRepository{s: s} }

// Exclusions returns the exclusion repository view.
func (s *Store) Exclusions() *ExclusionRepository { return &ExclusionRepository{s: s} }

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANTS
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantRepository implements league.ParticipantRepository.
type ParticipantRepository struct{ s *Store }

// Get implements league.ParticipantRepository.
func (r *ParticipantRepository) Get(_ context.Context, id shared.ParticipantID) (*league.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.participants[id]
	if !ok {
		return nil, shared.ErrParticipantNotFound
	}
	return p.Clone(), nil
}

// Save implements league.ParticipantRepository.
func (r *ParticipantRepository) Save(_ context.Context, p *league.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.participants[p.ID] = p.Clone()
	return nil
}

// List implements league.ParticipantRepository.
func (r *ParticipantRepository) List(_ context.Context) ([]*league.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*league.Participant, 0, len(r.s.participants))
	for _, p := range r.s.participants {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUNDS
// ══════════════════════════════════════════════════════════════════════════════

// RoundRepository implements league.RoundRepository.
type RoundRepository struct{ s *Store }

// GetOpen implements league.RoundRepository.
func (r *RoundRepository) GetOpen(_ context.Context) (*league.Round, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	open := r.s.openRounds()
	switch len(open) {
	case 0:
		return nil, shared.ErrNoOpenRound
	case 1:
		return open[0].Clone(), nil
	default:
		return nil, shared.WrapError("round", "GetOpen", shared.ErrCorruption,
			fmt.Sprintf("%d open rounds", len(open)), nil)
	}
}

// GetLastClosed implements league.RoundRepository.
func (r *RoundRepository) GetLastClosed(_ context.Context) (*league.Round, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var last *league.Round
	for _, rd := range r.s.rounds {
		if rd.Status != league.RoundClosed {
			continue
		}
		if last == nil || rd.End.After(last.End) {
			last = rd
		}
	}
	if last == nil {
		return nil, shared.ErrRoundNotFound
	}
	return last.Clone(), nil
}

// Create implements league.RoundRepository.
func (r *RoundRepository) Create(_ context.Context, rd *league.Round) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rounds[rd.ID]; ok {
		return shared.ErrAlreadyExists
	}
	if rd.IsOpen() && len(r.s.openRounds()) > 0 {
		return shared.WrapError("round", "Create", shared.ErrCorruption, "an open round already exists", nil)
	}
	r.s.rounds[rd.ID] = rd.Clone()
	return nil
}

// CommitRollover implements league.RoundRepository.
func (r *RoundRepository) CommitRollover(_ context.Context, c league.RolloverCommit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.rounds[c.Closing.ID]
	if ok && stored.Status == league.RoundClosed && r.s.committed(c) {
		return nil
	}
	if !ok || stored.Status != league.RoundOpen {
		return shared.WrapError("round", "CommitRollover", shared.ErrCorruption,
			fmt.Sprintf("round %s is not open in storage", c.Closing.ID), nil)
	}
	if n := len(r.s.openRounds()); n != 1 {
		return shared.WrapError("round", "CommitRollover", shared.ErrCorruption,
			fmt.Sprintf("%d open rounds", n), nil)
	}
	if _, dup := r.s.results[c.Closing.ID]; dup {
		return shared.ErrResultsDuplicate
	}

	tallies := make(map[shared.ParticipantID]*league.Tally, len(c.Tallies))
	for _, t := range c.Tallies {
		tallies[t.ParticipantID] = t.Clone()
	}
	r.s.tallies[c.Closing.ID] = tallies

	results := make([]league.RoundResult, len(c.Results))
	copy(results, c.Results)
	r.s.results[c.Closing.ID] = results

	closed := stored.Clone()
	closed.Status = league.RoundClosed
	r.s.rounds[closed.ID] = closed

	next := c.Next.Clone()
	next.Status = league.RoundOpen
	r.s.rounds[next.ID] = next
	return nil
}

// ForceStatus overwrites a stored round's status. Tests use it to simulate
// state written by another process.
func (r *RoundRepository) ForceStatus(id string, status league.RoundStatus) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rd, ok := r.s.rounds[id]; ok {
		rd.Status = status
	}
}

// committed reports whether c already landed: its next round is the only
// open one and the stored results match.
func (s *Store) committed(c league.RolloverCommit) bool {
	next, ok := s.rounds[c.Next.ID]
	if !ok || !next.IsOpen() || len(s.openRounds()) != 1 {
		return false
	}
	stored, ok := s.results[c.Closing.ID]
	return ok && league.SameResults(stored, c.Results)
}

func (s *Store) openRounds() []*league.Round {
	var open []*league.Round
	for _, rd := range s.rounds {
		if rd.Status == league.RoundOpen {
			open = append(open, rd)
		}
	}
	return open
}

// ══════════════════════════════════════════════════════════════════════════════
// TALLIES
// ══════════════════════════════════════════════════════════════════════════════

// TallyRepository implements league.TallyRepository.
type TallyRepository struct{ s *Store }

// ListByRound implements league.TallyRepository.
func (r *TallyRepository) ListByRound(_ context.Context, roundID string) ([]*league.Tally, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	byID := r.s.tallies[roundID]
	out := make([]*league.Tally, 0, len(byID))
	for _, t := range byID {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

// Checkpoint implements league.TallyRepository.
func (r *TallyRepository) Checkpoint(_ context.Context, tallies []*league.Tally) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range tallies {
		byID, ok := r.s.tallies[t.RoundID]
		if !ok {
			byID = make(map[shared.ParticipantID]*league.Tally)
			r.s.tallies[t.RoundID] = byID
		}
		if stored, ok := byID[t.ParticipantID]; ok && stored.Messages > t.Messages {
			continue
		}
		byID[t.ParticipantID] = t.Clone()
	}
	return nil
}

// Get implements league.TallyRepository.
func (r *TallyRepository) Get(_ context.Context, roundID string, id shared.ParticipantID) (*league.Tally, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tallies[roundID][id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return t.Clone(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// ResultRepository implements league.ResultRepository.
type ResultRepository struct{ s *Store }

// ListByRound implements league.ResultRepository.
func (r *ResultRepository) ListByRound(_ context.Context, roundID string) ([]league.RoundResult, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	stored := r.s.results[roundID]
	out := make([]league.RoundResult, len(stored))
	copy(out, stored)
	return out, nil
}

// ListByParticipant implements league.ResultRepository.
func (r *ResultRepository) ListByParticipant(_ context.Context, id shared.ParticipantID, limit int) ([]league.ParticipantPlacement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []league.ParticipantPlacement
	for roundID, results := range r.s.results {
		rd := r.s.rounds[roundID]
		for _, res := range results {
			pl, ok := res.PlacementOf(id)
			if !ok {
				continue
			}
			entry := league.ParticipantPlacement{
				RoundID:  roundID,
				Track:    res.Track,
				Position: pl.Position,
				Score:    pl.Score,
			}
			if rd != nil {
				entry.RoundStart, entry.RoundEnd = rd.Start, rd.End
			}
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundEnd.After(out[j].RoundEnd) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EXCLUSIONS
// ══════════════════════════════════════════════════════════════════════════════

// ExclusionRepository implements league.ExclusionRepository.
type ExclusionRepository struct{ s *Store }

// Add implements league.ExclusionRepository.
func (r *ExclusionRepository) Add(_ context.Context, e league.Exclusion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.exclusions[e.ChannelID]; !ok {
		r.s.exclusions[e.ChannelID] = e
	}
	return nil
}

// Remove implements league.ExclusionRepository.
func (r *ExclusionRepository) Remove(_ context.Context, id shared.ChannelID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.exclusions, id)
	return nil
}

// List implements league.ExclusionRepository.
func (r *ExclusionRepository) List(_ context.Context) ([]league.Exclusion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]league.Exclusion, 0, len(r.s.exclusions))
	for _, e := range r.s.exclusions {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.After(out[j].AddedAt) })
	return out, nil
}
