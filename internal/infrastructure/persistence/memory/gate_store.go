package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/pkg/timeutil"
)

const gateShards = 64

// gateShard holds the cooldown and daily state of the participants hashed to it.
type gateShard struct {
	mu       sync.Mutex
	cooldown map[shared.ParticipantID]map[shared.ChannelID]time.Time
	daily    map[shared.ParticipantID]map[string]int
}

// GateStore implements league.GateStore in memory. A participant always maps
// to the same shard, so check-and-commit is atomic per participant.
type GateStore struct {
	shards [gateShards]gateShard
}

// NewGateStore creates an empty gate store.
func NewGateStore() *GateStore {
	g := &GateStore{}
	for i := range g.shards {
		g.shards[i].cooldown = make(map[shared.ParticipantID]map[shared.ChannelID]time.Time)
		g.shards[i].daily = make(map[shared.ParticipantID]map[string]int)
	}
	return g
}

func (g *GateStore) shard(id shared.ParticipantID) *gateShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &g.shards[h.Sum32()%gateShards]
}

// Admit implements league.GateStore.
func (g *GateStore) Admit(_ context.Context, id shared.ParticipantID, channel shared.ChannelID, at time.Time, limits league.GateLimits) (league.GateDecision, error) {
	s := g.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	day := timeutil.DayKey(at)
	count := s.daily[id][day]

	if last, ok := s.cooldown[id][channel]; ok {
		if elapsed := at.Sub(last); elapsed < limits.Cooldown {
			return league.GateDecision{
				Reason:     league.ReasonCooldown,
				DailyCount: count,
				RetryAfter: limits.Cooldown - elapsed,
			}, nil
		}
	}
	if count >= limits.DailyCap {
		return league.GateDecision{
			Reason:     league.ReasonDailyCap,
			DailyCount: count,
			RetryAfter: timeutil.EndOfDay(at).Sub(at),
		}, nil
	}

	if s.cooldown[id] == nil {
		s.cooldown[id] = make(map[shared.ChannelID]time.Time)
	}
	s.cooldown[id][channel] = at
	if s.daily[id] == nil {
		s.daily[id] = make(map[string]int)
	}
	s.daily[id][day] = count + 1

	return league.GateDecision{DailyCount: count + 1}, nil
}

// Inspect implements league.GateStore.
func (g *GateStore) Inspect(_ context.Context, id shared.ParticipantID, channel shared.ChannelID, at time.Time) (league.GateState, error) {
	s := g.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return league.GateState{
		LastCounted: s.cooldown[id][channel],
		DailyCount:  s.daily[id][timeutil.DayKey(at)],
	}, nil
}

// Prune implements league.GateStore. Cooldowns that have elapsed and counters
// of past days are dropped.
func (g *GateStore) Prune(_ context.Context, now time.Time, limits league.GateLimits) (int, error) {
	today := timeutil.DayKey(now)
	removed := 0
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		for id, channels := range s.cooldown {
			for ch, last := range channels {
				if now.Sub(last) >= limits.Cooldown {
					delete(channels, ch)
					removed++
				}
			}
			if len(channels) == 0 {
				delete(s.cooldown, id)
			}
		}
		for id, days := range s.daily {
			for day := range days {
				if day < today {
					delete(days, day)
					removed++
				}
			}
			if len(days) == 0 {
				delete(s.daily, id)
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}
