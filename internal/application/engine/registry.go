package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// exclusionSet is an immutable snapshot; writers replace it wholesale.
type exclusionSet map[shared.ChannelID]league.Exclusion

// ExclusionRegistry answers "is this channel excluded" without locking readers.
type ExclusionRegistry struct {
	current atomic.Pointer[exclusionSet]
	writes  sync.Mutex

	repo    league.ExclusionRepository
	clock   clockwork.Clock
	timeout time.Duration
}

// NewExclusionRegistry creates an empty registry.
func NewExclusionRegistry(repo league.ExclusionRepository, clock clockwork.Clock, timeout time.Duration) *ExclusionRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r := &ExclusionRegistry{repo: repo, clock: clock, timeout: timeout}
	empty := exclusionSet{}
	r.current.Store(&empty)
	return r
}

// Load replaces the snapshot with the stored exclusions.
func (r *ExclusionRegistry) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	list, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("exclusions: load: %w", err)
	}

	r.writes.Lock()
	defer r.writes.Unlock()
	set := make(exclusionSet, len(list))
	for _, e := range list {
		set[e.ChannelID] = e
	}
	r.current.Store(&set)
	return nil
}

// IsExcluded is an O(1) lookup against the current snapshot.
func (r *ExclusionRegistry) IsExcluded(channel shared.ChannelID) bool {
	_, ok := (*r.current.Load())[channel]
	return ok
}

// Len returns the number of excluded channels.
func (r *ExclusionRegistry) Len() int {
	return len(*r.current.Load())
}

// List returns the exclusions, newest first.
func (r *ExclusionRegistry) List() []league.Exclusion {
	set := *r.current.Load()
	out := make([]league.Exclusion, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.After(out[j].AddedAt)
		}
		return out[i].ChannelID < out[j].ChannelID
	})
	return out
}

// Exclude stops tracking a channel. Excluding an excluded channel is a no-op;
// the returned bool reports whether anything changed.
func (r *ExclusionRegistry) Exclude(ctx context.Context, capability shared.Capability, channel shared.ChannelID, name string) (bool, error) {
	if err := capability.Require(shared.RoleAdmin); err != nil {
		return false, err
	}
	if !channel.IsValid() {
		return false, shared.NewDomainError("exclusion", "Exclude", shared.ErrInvalidID, "channel id is required")
	}

	r.writes.Lock()
	defer r.writes.Unlock()

	old := *r.current.Load()
	if _, ok := old[channel]; ok {
		return false, nil
	}

	entry := league.Exclusion{
		ChannelID:   channel,
		ChannelName: name,
		AddedBy:     capability.Actor(),
		AddedAt:     r.clock.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.repo.Add(ctx, entry); err != nil {
		return false, shared.WrapError("exclusion", "Exclude", shared.ErrPersistenceTimeout, "failed to persist exclusion", err)
	}

	next := make(exclusionSet, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[channel] = entry
	r.current.Store(&next)
	return true, nil
}

// Include resumes tracking a channel. Including a tracked channel is a no-op.
func (r *ExclusionRegistry) Include(ctx context.Context, capability shared.Capability, channel shared.ChannelID) (bool, error) {
	if err := capability.Require(shared.RoleAdmin); err != nil {
		return false, err
	}

	r.writes.Lock()
	defer r.writes.Unlock()

	old := *r.current.Load()
	if _, ok := old[channel]; !ok {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.repo.Remove(ctx, channel); err != nil {
		return false, shared.WrapError("exclusion", "Include", shared.ErrPersistenceTimeout, "failed to remove exclusion", err)
	}

	next := make(exclusionSet, len(old))
	for k, v := range old {
		if k != channel {
			next[k] = v
		}
	}
	r.current.Store(&next)
	return true, nil
}
