package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/hablemos/language-league/internal/application/engine"
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOIN / LEAVE COMMANDS
// A user joins the league on one track, may switch track by joining again,
// and leaves keeping their history.
// ══════════════════════════════════════════════════════════════════════════════

// JoinLeagueCommand enrolls a user on a track.
type JoinLeagueCommand struct {
	ParticipantID string
	DisplayName   string
	// Track accepts "spanish", "english" or the language codes.
	Track string
}

// Validate validates the command.
func (c JoinLeagueCommand) Validate() error {
	if c.ParticipantID == "" {
		return shared.NewDomainError("participant", "Validate", shared.ErrInvalidInput, "participant_id is required")
	}
	if _, err := league.ParseTrack(c.Track); err != nil {
		return err
	}
	return nil
}

// LeaveLeagueCommand stops a participant's accrual.
type LeaveLeagueCommand struct {
	ParticipantID string
}

// MembershipResult describes the participant after the change.
type MembershipResult struct {
	Participant *league.Participant
	Round       *league.Round
}

// MembershipHandler handles join and leave.
type MembershipHandler struct {
	roster    *engine.Roster
	engine    *engine.Engine
	publisher shared.EventPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewMembershipHandler creates a new MembershipHandler.
func NewMembershipHandler(
	roster *engine.Roster,
	eng *engine.Engine,
	publisher shared.EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
) *MembershipHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipHandler{
		roster:    roster,
		engine:    eng,
		publisher: publisher,
		clock:     clock,
		logger:    logger.With("component", "membership"),
	}
}

// Join executes the join command.
func (h *MembershipHandler) Join(ctx context.Context, cmd JoinLeagueCommand) (*MembershipResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	track, _ := league.ParseTrack(cmd.Track)

	p, err := h.roster.Join(ctx, shared.ParticipantID(cmd.ParticipantID), cmd.DisplayName, track)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}

	h.logger.Info("participant joined", "participant_id", p.ID, "track", p.Track)
	h.publish(shared.NewParticipantEvent(shared.EventParticipantJoined, p.ID.String(), p.Track.String(), p.ID.String(), h.clock.Now()))

	return &MembershipResult{Participant: p, Round: h.engine.CurrentRound()}, nil
}

// Leave executes the leave command.
func (h *MembershipHandler) Leave(ctx context.Context, cmd LeaveLeagueCommand) (*MembershipResult, error) {
	if cmd.ParticipantID == "" {
		return nil, shared.NewDomainError("participant", "Validate", shared.ErrInvalidInput, "participant_id is required")
	}

	p, err := h.roster.Leave(ctx, shared.ParticipantID(cmd.ParticipantID))
	if err != nil {
		return nil, fmt.Errorf("leave: %w", err)
	}

	h.logger.Info("participant left", "participant_id", p.ID)
	h.publish(shared.NewParticipantEvent(shared.EventParticipantLeft, p.ID.String(), p.Track.String(), p.ID.String(), h.clock.Now()))

	return &MembershipResult{Participant: p, Round: h.engine.CurrentRound()}, nil
}

func (h *MembershipHandler) publish(event shared.Event) {
	if err := h.publisher.Publish(event); err != nil {
		h.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
