package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// GateConfig holds the anti-spam rules.
type GateConfig struct {
	MinLength int
	Cooldown  time.Duration
	DailyCap  int
	// Timeout bounds a call to the gate store.
	Timeout time.Duration
}

// DefaultGateConfig returns 10 characters, 2 minutes, 50 per day.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinLength: 10,
		Cooldown:  2 * time.Minute,
		DailyCap:  50,
		Timeout:   500 * time.Millisecond,
	}
}

// GateRequest is what the gate needs to judge an event.
type GateRequest struct {
	ParticipantID shared.ParticipantID
	ChannelID     shared.ChannelID
	At            time.Time
	Length        int
}

// Gate applies length, cooldown and daily-cap rules, in that order.
type Gate struct {
	store league.GateStore
	cfg   GateConfig
	clock clockwork.Clock
}

// NewGate creates a gate over the given state store.
func NewGate(store league.GateStore, cfg GateConfig, clock clockwork.Clock) *Gate {
	def := DefaultGateConfig()
	if cfg.MinLength <= 0 {
		cfg.MinLength = def.MinLength
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.DailyCap <= 0 {
		cfg.DailyCap = def.DailyCap
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Gate{store: store, cfg: cfg, clock: clock}
}

// Config returns the active rules.
func (g *Gate) Config() GateConfig {
	return g.cfg
}

func (g *Gate) limits() league.GateLimits {
	return league.GateLimits{Cooldown: g.cfg.Cooldown, DailyCap: g.cfg.DailyCap}
}

func (g *Gate) at(req GateRequest) time.Time {
	if req.At.IsZero() {
		return g.clock.Now().UTC()
	}
	return req.At.UTC()
}

// Admit returns nil when the event is eligible, after committing the cooldown
// and daily counter. A rejection commits nothing.
func (g *Gate) Admit(ctx context.Context, req GateRequest) (league.GateDecision, error) {
	if req.Length < g.cfg.MinLength {
		return league.GateDecision{Reason: league.ReasonTooShort}, league.Reject(league.ReasonTooShort)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	decision, err := g.store.Admit(ctx, req.ParticipantID, req.ChannelID, g.at(req), g.limits())
	if err != nil {
		return league.GateDecision{}, shared.WrapError("gate", "Admit", shared.ErrPersistenceTimeout, "gate store unavailable", err)
	}
	if !decision.Admitted() {
		return decision, league.Reject(decision.Reason)
	}
	return decision, nil
}

// Verdict is a dry-run evaluation of every rule.
type Verdict struct {
	Length       int                 `json:"length"`
	MinLength    int                 `json:"min_length"`
	LengthOK     bool                `json:"length_ok"`
	CooldownLeft time.Duration       `json:"cooldown_left"`
	DailyCount   int                 `json:"daily_count"`
	DailyCap     int                 `json:"daily_cap"`
	Reason       league.RejectReason `json:"reason,omitempty"`
}

// Inspect evaluates the rules without mutating any state.
func (g *Gate) Inspect(ctx context.Context, req GateRequest) (Verdict, error) {
	v := Verdict{
		Length:    req.Length,
		MinLength: g.cfg.MinLength,
		LengthOK:  req.Length >= g.cfg.MinLength,
		DailyCap:  g.cfg.DailyCap,
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	at := g.at(req)
	state, err := g.store.Inspect(ctx, req.ParticipantID, req.ChannelID, at)
	if err != nil {
		return v, shared.WrapError("gate", "Inspect", shared.ErrPersistenceTimeout, "gate store unavailable", err)
	}
	v.DailyCount = state.DailyCount
	if !state.LastCounted.IsZero() {
		if elapsed := at.Sub(state.LastCounted); elapsed < g.cfg.Cooldown {
			v.CooldownLeft = g.cfg.Cooldown - elapsed
		}
	}

	switch {
	case !v.LengthOK:
		v.Reason = league.ReasonTooShort
	case v.CooldownLeft > 0:
		v.Reason = league.ReasonCooldown
	case v.DailyCount >= v.DailyCap:
		v.Reason = league.ReasonDailyCap
	}
	return v, nil
}

// Prune drops stale gate state.
func (g *Gate) Prune(ctx context.Context) (int, error) {
	return g.store.Prune(ctx, g.clock.Now().UTC(), g.limits())
}
