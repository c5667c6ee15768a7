package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/pkg/timeutil"
)

// admitScript checks the cooldown, then the daily cap, and commits both when
// the event passes.
// KEYS: [1]=cooldown key, [2]=daily key
// ARGV: [1]=event ms, [2]=cooldown ms, [3]=daily cap, [4]=daily key ttl ms
// Returns {status, daily count, retry after ms}; status 0=admitted 1=cooldown 2=cap.
var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])
local cap = tonumber(ARGV[3])
local last = tonumber(redis.call('GET', KEYS[1]))
local count = tonumber(redis.call('GET', KEYS[2])) or 0
if last and now - last < cooldown then
  return {1, count, cooldown - (now - last)}
end
if count >= cap then
  return {2, count, 0}
end
if cooldown > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', cooldown)
end
count = redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
return {0, count, 0}
`)

// dailyGrace keeps a day's counter a little past midnight for late events.
const dailyGrace = time.Hour

// GateStore implements league.GateStore on Redis. Keys expire on their own,
// so Prune has nothing to do.
type GateStore struct {
	rdb  *redis.Client
	keys keys
}

// NewGateStore creates a GateStore.
func NewGateStore(client *Client) *GateStore {
	return &GateStore{rdb: client.rdb, keys: client.keys}
}

// Admit implements league.GateStore.
func (g *GateStore) Admit(ctx context.Context, id shared.ParticipantID, channel shared.ChannelID, at time.Time, limits league.GateLimits) (league.GateDecision, error) {
	dayTTL := timeutil.EndOfDay(at).Sub(at) + dailyGrace

	res, err := admitScript.Run(ctx, g.rdb,
		[]string{g.keys.cooldown(id.String(), string(channel)), g.keys.daily(id.String(), timeutil.DayKey(at))},
		at.UnixMilli(),
		limits.Cooldown.Milliseconds(),
		limits.DailyCap,
		dayTTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return league.GateDecision{}, shared.WrapError("gate", "Admit", shared.ErrPersistenceTimeout, "gate script failed", err)
	}
	if len(res) != 3 {
		return league.GateDecision{}, fmt.Errorf("%w: gate script returned %d values", ErrSerialization, len(res))
	}

	decision := league.GateDecision{DailyCount: int(res[1])}
	switch res[0] {
	case 1:
		decision.Reason = league.ReasonCooldown
		decision.RetryAfter = time.Duration(res[2]) * time.Millisecond
	case 2:
		decision.Reason = league.ReasonDailyCap
		decision.RetryAfter = timeutil.EndOfDay(at).Sub(at)
	}
	return decision, nil
}

// Inspect implements league.GateStore.
func (g *GateStore) Inspect(ctx context.Context, id shared.ParticipantID, channel shared.ChannelID, at time.Time) (league.GateState, error) {
	pipe := g.rdb.Pipeline()
	lastCmd := pipe.Get(ctx, g.keys.cooldown(id.String(), string(channel)))
	countCmd := pipe.Get(ctx, g.keys.daily(id.String(), timeutil.DayKey(at)))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return league.GateState{}, shared.WrapError("gate", "Inspect", shared.ErrPersistenceTimeout, "gate read failed", err)
	}

	var state league.GateState
	if ms, err := parseInt(lastCmd); err != nil {
		return league.GateState{}, err
	} else if ms > 0 {
		state.LastCounted = time.UnixMilli(ms).UTC()
	}
	count, err := parseInt(countCmd)
	if err != nil {
		return league.GateState{}, err
	}
	state.DailyCount = int(count)
	return state, nil
}

// Prune implements league.GateStore.
func (g *GateStore) Prune(context.Context, time.Time, league.GateLimits) (int, error) {
	return 0, nil
}

func parseInt(cmd *redis.StringCmd) (int64, error) {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return n, nil
}

var _ league.GateStore = (*GateStore)(nil)
