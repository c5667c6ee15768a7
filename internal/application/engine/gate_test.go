package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/internal/infrastructure/persistence/memory"
	"github.com/hablemos/language-league/pkg/timeutil"
)

func newTestGate(now time.Time) *Gate {
	return NewGate(memory.NewGateStore(), DefaultGateConfig(), clockwork.NewFakeClockAt(now))
}

func gateReq(channel string, at time.Time) GateRequest {
	return GateRequest{ParticipantID: "u1", ChannelID: shared.ChannelID(channel), At: at, Length: 20}
}

func TestGate_CooldownPerChannel(t *testing.T) {
	t0 := timeutil.DateTime(2024, 1, 10, 9, 0, 0)
	g := newTestGate(t0)
	ctx := context.Background()

	_, err := g.Admit(ctx, gateReq("c1", t0))
	require.NoError(t, err)

	_, err = g.Admit(ctx, gateReq("c1", t0.Add(60*time.Second)))
	assert.Equal(t, league.ReasonCooldown, league.ReasonOf(err))
	assert.True(t, shared.IsRejected(err))

	_, err = g.Admit(ctx, gateReq("c2", t0.Add(60*time.Second)))
	assert.NoError(t, err, "cooldown is per channel")

	d, err := g.Admit(ctx, gateReq("c1", t0.Add(121*time.Second)))
	assert.NoError(t, err)
	assert.Equal(t, 3, d.DailyCount)
}

func TestGate_DailyCapCountsFifty(t *testing.T) {
	day := timeutil.Date(2024, 1, 10)
	g := newTestGate(day)
	ctx := context.Background()

	counted, capped := 0, 0
	for i := 0; i < 60; i++ {
		_, err := g.Admit(ctx, gateReq(fmt.Sprintf("c%d", i), day.Add(time.Duration(i)*3*time.Minute)))
		switch league.ReasonOf(err) {
		case league.ReasonNone:
			require.NoError(t, err)
			counted++
		case league.ReasonDailyCap:
			capped++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 50, counted)
	assert.Equal(t, 10, capped)

	_, err := g.Admit(ctx, gateReq("next-day", day.Add(24*time.Hour)))
	assert.NoError(t, err, "counter resets at UTC midnight")
}

func TestGate_TooShortCommitsNothing(t *testing.T) {
	t0 := timeutil.DateTime(2024, 1, 10, 9, 0, 0)
	g := newTestGate(t0)
	ctx := context.Background()

	req := gateReq("c1", t0)
	req.Length = 9
	_, err := g.Admit(ctx, req)
	assert.Equal(t, league.ReasonTooShort, league.ReasonOf(err))

	v, err := g.Inspect(ctx, gateReq("c1", t0))
	require.NoError(t, err)
	assert.Equal(t, 0, v.DailyCount)
	assert.Equal(t, time.Duration(0), v.CooldownLeft)
}

func TestGate_InspectDoesNotMutate(t *testing.T) {
	t0 := timeutil.DateTime(2024, 1, 10, 9, 0, 0)
	g := newTestGate(t0)
	ctx := context.Background()

	_, err := g.Admit(ctx, gateReq("c1", t0))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		v, err := g.Inspect(ctx, gateReq("c1", t0.Add(30*time.Second)))
		require.NoError(t, err)
		assert.Equal(t, 1, v.DailyCount)
		assert.Equal(t, 90*time.Second, v.CooldownLeft)
		assert.Equal(t, league.ReasonCooldown, v.Reason)
	}
}

func TestGate_PruneDropsStaleState(t *testing.T) {
	t0 := timeutil.DateTime(2024, 1, 10, 23, 59, 0)
	clock := clockwork.NewFakeClockAt(t0)
	g := NewGate(memory.NewGateStore(), DefaultGateConfig(), clock)
	ctx := context.Background()

	_, err := g.Admit(ctx, gateReq("c1", t0))
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	removed, err := g.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "one cooldown and yesterday's counter")
}

func TestGate_ConcurrentSameChannelAdmitsOne(t *testing.T) {
	t0 := timeutil.DateTime(2024, 1, 10, 9, 0, 0)
	g := newTestGate(t0)
	ctx := context.Background()

	const n = 64
	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		admitted atomic.Int64
		cooled   atomic.Int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := g.Admit(ctx, gateReq("c1", t0.Add(time.Duration(i)*time.Millisecond)))
			switch league.ReasonOf(err) {
			case league.ReasonNone:
				if assert.NoError(t, err) {
					admitted.Add(1)
				}
			case league.ReasonCooldown:
				cooled.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), admitted.Load())
	assert.Equal(t, int64(n-1), cooled.Load())

	v, err := g.Inspect(ctx, gateReq("c2", t0.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, 1, v.DailyCount, "only the admitted event is counted")
}
