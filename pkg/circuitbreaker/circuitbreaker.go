// Package circuitbreaker guards the league's outbound calls (classifier,
// announcement webhook) with a sony/gobreaker breaker.
package circuitbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// State is the breaker state: closed, half-open or open.
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Counts holds the request counters of the current generation.
type Counts = gobreaker.Counts

var (
	// ErrCircuitOpen is returned without calling fn while the breaker is open.
	ErrCircuitOpen = gobreaker.ErrOpenState
	// ErrTooManyRequests is returned when the half-open probe quota is used up.
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// Config holds circuit breaker configuration.
type Config struct {
	Name string

	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32

	// SuccessThreshold consecutive half-open successes close it again. It
	// also caps concurrent half-open probes.
	SuccessThreshold uint32

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count against the breaker. Nil counts
	// every error.
	IsFailure func(error) bool
}

// DefaultConfig returns 5 failures to open, 2 successes to close, 30s open.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// Option tweaks a Config.
type Option func(*Config)

func WithFailureThreshold(n uint32) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

func WithSuccessThreshold(n uint32) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// CircuitBreaker wraps gobreaker with a context-aware Execute.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New builds a breaker from DefaultConfig(name) and opts.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := DefaultConfig(name)
	for _, opt := range opts {
		opt(&cfg)
	}

	threshold := cfg.FailureThreshold
	isFailure := cfg.IsFailure
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: cfg.OnStateChange,
	}
	if isFailure != nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !isFailure(err)
		}
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn unless the breaker rejects it. A cancelled ctx is returned
// as is and not counted.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

func (b *CircuitBreaker) State() State   { return b.cb.State() }
func (b *CircuitBreaker) Counts() Counts { return b.cb.Counts() }
func (b *CircuitBreaker) Name() string   { return b.cb.Name() }
func (b *CircuitBreaker) IsOpen() bool   { return b.cb.State() == StateOpen }
func (b *CircuitBreaker) IsClosed() bool { return b.cb.State() == StateClosed }

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// ClassifierBreaker trips fast: the classifier sits on the ingestion path.
func ClassifierBreaker(onStateChange func(name string, from, to State), opts ...Option) *CircuitBreaker {
	base := []Option{
		WithFailureThreshold(5),
		WithSuccessThreshold(1),
		WithTimeout(15 * time.Second),
		WithOnStateChange(onStateChange),
	}
	return New("classifier", append(base, opts...)...)
}

// AnnouncerBreaker tolerates a flaky webhook for longer.
func AnnouncerBreaker(onStateChange func(name string, from, to State), opts ...Option) *CircuitBreaker {
	base := []Option{
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithTimeout(time.Minute),
		WithOnStateChange(onStateChange),
	}
	return New("announcer", append(base, opts...)...)
}
