package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastOpts() []Option {
	return []Option{WithInitialDelay(time.Millisecond), WithMaxDelay(time.Millisecond), WithJitter(0)}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, append(fastOpts(), WithMaxAttempts(3))...)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	}, fastOpts()...)

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(Permanent(errFlaky)))
	assert.NoError(t, Permanent(nil))
}

func TestDo_ReturnsLastErrorAfterLastAttempt(t *testing.T) {
	var retries []int
	err := Do(context.Background(), func(context.Context) error {
		return errFlaky
	}, append(fastOpts(),
		WithMaxAttempts(2),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }),
	)...)

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, []int{1}, retries)
}

func TestDo_RetryIfFilters(t *testing.T) {
	other := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return other
	}, append(fastOpts(), WithRetryIf(func(err error) bool { return errors.Is(err, errFlaky) }))...)

	assert.Equal(t, other, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errFlaky
		}
		return "es", nil
	}, fastOpts()...)

	require.NoError(t, err)
	assert.Equal(t, "es", v)
}

func TestSchedule_DoublesUpToCap(t *testing.T) {
	r := New(WithInitialDelay(100*time.Millisecond), WithMaxDelay(300*time.Millisecond), WithJitter(0))
	s := r.schedule()
	assert.Equal(t, 100*time.Millisecond, s.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, s.NextBackOff())
	assert.Equal(t, 300*time.Millisecond, s.NextBackOff())
	assert.Equal(t, 300*time.Millisecond, s.NextBackOff())
}
