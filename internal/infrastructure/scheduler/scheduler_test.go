package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Description() string           { return "test job " + j.name }
func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }

type recordingObserver struct {
	mu      sync.Mutex
	results map[string][]bool
}

func (o *recordingObserver) JobFinished(job string, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.results == nil {
		o.results = make(map[string][]bool)
	}
	o.results[job] = append(o.results[job], success)
}

func newTestScheduler(clock clockwork.Clock, obs JobObserver) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:    clock,
		Observer: obs,
	})
}

func TestRegister_Errors(t *testing.T) {
	s := newTestScheduler(clockwork.NewFakeClock(), nil)
	job := funcJob{name: "a", run: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)
}

func TestRunDue_RunsOnlyDueJobs(t *testing.T) {
	clock := clockwork.NewFakeClock()
	obs := &recordingObserver{}
	s := newTestScheduler(clock, obs)

	var fast, slow int32
	require.NoError(t, s.Register(funcJob{name: "fast", run: func(context.Context) error {
		atomic.AddInt32(&fast, 1)
		return nil
	}}, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.Register(funcJob{name: "slow", run: func(context.Context) error {
		atomic.AddInt32(&slow, 1)
		return errors.New("boom")
	}}, NewIntervalSchedule(time.Hour)))

	clock.Advance(30 * time.Second)
	s.runDue(context.Background())
	s.wg.Wait()
	assert.Equal(t, int32(0), atomic.LoadInt32(&fast))

	clock.Advance(31 * time.Second)
	s.runDue(context.Background())
	s.wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&fast))
	assert.Equal(t, int32(0), atomic.LoadInt32(&slow))

	clock.Advance(time.Hour)
	s.runDue(context.Background())
	s.wg.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&fast))
	assert.Equal(t, int32(1), atomic.LoadInt32(&slow))

	info, err := s.GetJobInfo("slow")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.FailCount)
	assert.Equal(t, []bool{false}, obs.results["slow"])
	assert.Equal(t, []bool{true, true}, obs.results["fast"])
}

func TestRunDue_SkipsOverlappingRun(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(clock, nil)

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var runs int32
	require.NoError(t, s.Register(funcJob{name: "long", run: func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		started <- struct{}{}
		<-release
		return nil
	}}, NewIntervalSchedule(time.Minute)))

	clock.Advance(time.Minute)
	s.runDue(context.Background())
	<-started

	clock.Advance(time.Minute)
	s.runDue(context.Background())

	_, err := s.RunNow(context.Background(), "long")
	assert.ErrorIs(t, err, ErrJobBusy)

	close(release)
	s.wg.Wait()

	info, err := s.GetJobInfo("long")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	assert.Equal(t, int64(1), info.SkipCount)
	assert.False(t, info.Running)
}

func TestRunNow_RecordsHistoryAndRecoversPanic(t *testing.T) {
	s := newTestScheduler(clockwork.NewFakeClock(), nil)
	require.NoError(t, s.Register(funcJob{name: "panics", run: func(context.Context) error {
		panic("bad job")
	}}, NewIntervalSchedule(time.Minute)))

	res, err := s.RunNow(context.Background(), "panics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad job")
	assert.True(t, res.Manual)
	assert.False(t, res.Success)

	history := s.GetHistory(10)
	require.Len(t, history, 1)
	assert.Equal(t, "panics", history[0].JobName)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestDisabledJobDoesNotRun(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestScheduler(clock, nil)
	var runs int32
	require.NoError(t, s.Register(funcJob{name: "off", run: func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}}, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.DisableJob("off"))

	clock.Advance(2 * time.Minute)
	s.runDue(context.Background())
	s.wg.Wait()
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(clockwork.NewFakeClock(), nil)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestIntervalSchedule_Next(t *testing.T) {
	at := time.Date(2024, 1, 20, 23, 59, 42, 0, time.UTC)

	assert.Equal(t, at.Add(time.Minute), NewIntervalSchedule(time.Minute).Next(at))
	assert.Equal(t, time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC), NewAlignedSchedule(time.Minute).Next(at))
	assert.Equal(t, "@every 1m0s (aligned)", NewAlignedSchedule(time.Minute).String())
}
