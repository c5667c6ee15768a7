package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errDown = errors.New("down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	cb := New("classifier",
		WithFailureThreshold(2),
		WithSuccessThreshold(1),
		WithTimeout(20*time.Millisecond),
		WithOnStateChange(func(_ string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.True(t, cb.IsOpen())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, cb.Execute(ctx, ok))
	assert.True(t, cb.IsClosed())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New("announcer", WithFailureThreshold(1), WithTimeout(20*time.Millisecond))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	time.Sleep(30 * time.Millisecond)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	permanent := errors.New("bad request")
	cb := New("classifier",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, permanent) }),
	)

	err := cb.Execute(context.Background(), func(context.Context) error { return permanent })
	assert.ErrorIs(t, err, permanent)
	assert.True(t, cb.IsClosed())
	assert.Equal(t, uint32(1), cb.Counts().TotalSuccesses)
}

func TestCircuitBreaker_CancelledContextSkipsCall(t *testing.T) {
	cb := New("classifier", WithFailureThreshold(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.True(t, cb.IsClosed())
}

func TestPresets(t *testing.T) {
	assert.Equal(t, "classifier", ClassifierBreaker(nil).Name())
	assert.Equal(t, "announcer", AnnouncerBreaker(nil).Name())
}
