package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/hablemos/language-league/pkg/circuitbreaker"
)

type haltState struct {
	halted bool
	reason string
}

func (h haltState) Halted() (bool, string) { return h.halted, h.reason }

func TestCompositeHealthChecker_NoChecks(t *testing.T) {
	c := NewCompositeHealthChecker("v1", clockwork.NewFakeClock())
	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "v1", status.Version)
}

func TestCompositeHealthChecker_CriticalFailure(t *testing.T) {
	c := NewCompositeHealthChecker("", clockwork.NewFakeClock())
	c.AddCheck("postgres", func(context.Context) error { return nil })
	c.AddCheck("rollover", NewRolloverCheck(haltState{halted: true, reason: "duplicate results"}))

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Checks["postgres"].Healthy)
	assert.Contains(t, status.Checks["rollover"].Message, "duplicate results")
	assert.Equal(t, "Some checks failed: rollover", status.Message)
}

func TestCompositeHealthChecker_OptionalFailureDegrades(t *testing.T) {
	c := NewCompositeHealthChecker("", clockwork.NewFakeClock())
	c.AddCheck("round", func(context.Context) error { return nil })
	c.AddOptionalCheck("classifier", func(context.Context) error { return errors.New("connection refused") })

	status := c.Check(context.Background())
	assert.True(t, status.IsHealthy())
	assert.True(t, status.Degraded)
	assert.False(t, status.Checks["classifier"].Critical)

	c.RemoveCheck("classifier")
	status = c.Check(context.Background())
	assert.False(t, status.Degraded)
	assert.Equal(t, "All checks passed", status.Message)
}

func TestBreakerCheck(t *testing.T) {
	cb := circuitbreaker.New("classifier", circuitbreaker.WithFailureThreshold(1))
	check := NewBreakerCheck(cb)
	assert.NoError(t, check(context.Background()))

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	err := check(context.Background())
	assert.ErrorContains(t, err, "circuit classifier is open")
}
