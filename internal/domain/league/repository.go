package league

import (
	"context"
	"time"

	"github.com/hablemos/language-league/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in the infrastructure layer (PostgreSQL, Redis, memory).
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantRepository stores league membership.
type ParticipantRepository interface {
	// Get returns shared.ErrParticipantNotFound when the user never joined.
	Get(ctx context.Context, id shared.ParticipantID) (*Participant, error)

	// Save inserts or updates a participant.
	Save(ctx context.Context, p *Participant) error

	// List returns every participant regardless of status.
	List(ctx context.Context) ([]*Participant, error)
}

// RoundRepository stores rounds and performs the rollover transaction.
type RoundRepository interface {
	// ──────────────────────────────────────────────────────────────────────────
	// READ
	// ──────────────────────────────────────────────────────────────────────────

	// GetOpen returns the single open round.
	// shared.ErrNoOpenRound when there is none, shared.ErrCorruption when there are several.
	GetOpen(ctx context.Context) (*Round, error)

	// GetLastClosed returns the most recently closed round or shared.ErrRoundNotFound.
	GetLastClosed(ctx context.Context) (*Round, error)

	// ──────────────────────────────────────────────────────────────────────────
	// WRITE
	// ──────────────────────────────────────────────────────────────────────────

	// Create inserts the very first open round.
	Create(ctx context.Context, r *Round) error

	// CommitRollover atomically persists the closing round's tallies and results,
	// marks it closed and opens the next round. Nothing is written on error.
	// shared.ErrCorruption is returned if the stored state disagrees with commit.Closing.
	// Repeating a commit that already landed (closing round closed with the same
	// results, commit.Next open) succeeds without writing.
	CommitRollover(ctx context.Context, commit RolloverCommit) error
}

// RolloverCommit is the unit of work persisted at rollover.
type RolloverCommit struct {
	Closing *Round
	Tallies []*Tally
	Results []RoundResult
	Next    *Round
}

// TallyRepository stores round tallies.
type TallyRepository interface {
	// ListByRound returns every tally of a round.
	ListByRound(ctx context.Context, roundID string) ([]*Tally, error)

	// Checkpoint upserts tallies of the open round. A stored tally with more
	// messages than the incoming one is left untouched.
	Checkpoint(ctx context.Context, tallies []*Tally) error

	// Get returns one tally or shared.ErrNotFound.
	Get(ctx context.Context, roundID string, participantID shared.ParticipantID) (*Tally, error)
}

// ResultRepository reads persisted round results. Results are written by CommitRollover.
type ResultRepository interface {
	// ListByRound returns the results of a closed round, one per track.
	ListByRound(ctx context.Context, roundID string) ([]RoundResult, error)

	// ListByParticipant returns the podium placements of a participant, newest first.
	ListByParticipant(ctx context.Context, id shared.ParticipantID, limit int) ([]ParticipantPlacement, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXCLUSIONS
// ══════════════════════════════════════════════════════════════════════════════

// Exclusion is a channel removed from league tracking.
type Exclusion struct {
	ChannelID   shared.ChannelID
	ChannelName string
	AddedBy     string
	AddedAt     time.Time
}

// ExclusionRepository stores excluded channels.
type ExclusionRepository interface {
	// Add stores an exclusion. Adding an existing channel keeps the original record.
	Add(ctx context.Context, e Exclusion) error

	// Remove deletes an exclusion. Removing a missing channel is not an error.
	Remove(ctx context.Context, id shared.ChannelID) error

	// List returns all exclusions, newest first.
	List(ctx context.Context) ([]Exclusion, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// GATE STATE
// ══════════════════════════════════════════════════════════════════════════════

// GateLimits are the cooldown and cap rules applied by a GateStore.
type GateLimits struct {
	Cooldown time.Duration
	DailyCap int
}

// GateDecision is the outcome of an atomic admission attempt.
type GateDecision struct {
	Reason     RejectReason // ReasonNone when admitted
	DailyCount int          // count for the day after the attempt
	RetryAfter time.Duration
}

// Admitted reports whether the event passed.
func (d GateDecision) Admitted() bool {
	return d.Reason == ReasonNone
}

// GateState is a read-only view used by the admin validate tool.
type GateState struct {
	LastCounted time.Time
	DailyCount  int
}

// GateStore holds CooldownState and DailyCounter.
// Admit must check cooldown then cap, and commit both atomically for the participant.
type GateStore interface {
	Admit(ctx context.Context, id shared.ParticipantID, channel shared.ChannelID, at time.Time, limits GateLimits) (GateDecision, error)
	Inspect(ctx context.Context, id shared.ParticipantID, channel shared.ChannelID, at time.Time) (GateState, error)
	// Prune drops state that can no longer affect a decision at now.
	Prune(ctx context.Context, now time.Time, limits GateLimits) (int, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT TRAIL
// ══════════════════════════════════════════════════════════════════════════════

// AuditLog keeps the most recent counted messages per participant.
type AuditLog interface {
	Record(ctx context.Context, id shared.ParticipantID, entry AuditEntry) error
	Recent(ctx context.Context, id shared.ParticipantID, n int) ([]AuditEntry, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIER
// ══════════════════════════════════════════════════════════════════════════════

// Classifier detects the language of a message.
// LanguageNone means the text could not be classified as Spanish or English.
type Classifier interface {
	Detect(ctx context.Context, text string) (Language, error)
}
