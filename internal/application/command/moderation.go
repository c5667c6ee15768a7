package command

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/hablemos/language-league/internal/application/engine"
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODERATION COMMANDS
// Admin-only operations. Every method requires a capability with the admin role;
// all of them are idempotent and report whether anything changed.
// ══════════════════════════════════════════════════════════════════════════════

// ModerationResult reports the outcome of an admin command.
type ModerationResult struct {
	Changed     bool
	Participant *league.Participant
}

// ModerationHandler handles ban, unban, exclude, include and resume.
type ModerationHandler struct {
	roster     *engine.Roster
	exclusions *engine.ExclusionRegistry
	rounds     *engine.RoundManager
	publisher  shared.EventPublisher
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewModerationHandler creates a new ModerationHandler.
func NewModerationHandler(
	roster *engine.Roster,
	exclusions *engine.ExclusionRegistry,
	rounds *engine.RoundManager,
	publisher shared.EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
) *ModerationHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModerationHandler{
		roster:     roster,
		exclusions: exclusions,
		rounds:     rounds,
		publisher:  publisher,
		clock:      clock,
		logger:     logger.With("component", "moderation"),
	}
}

// Ban blocks a user from the league.
func (h *ModerationHandler) Ban(ctx context.Context, capability shared.Capability, participantID string) (*ModerationResult, error) {
	id, err := shared.NewParticipantID(participantID)
	if err != nil {
		return nil, err
	}
	p, changed, err := h.roster.Ban(ctx, capability, id)
	if err != nil {
		return nil, err
	}
	if changed {
		h.logger.Info("participant banned", "participant_id", id, "actor", capability.Actor())
		h.publish(shared.NewParticipantEvent(shared.EventParticipantBanned, id.String(), p.Track.String(), capability.Actor(), h.clock.Now()))
	}
	return &ModerationResult{Changed: changed, Participant: p}, nil
}

// Unban lifts a ban. The participant must join again to compete.
func (h *ModerationHandler) Unban(ctx context.Context, capability shared.Capability, participantID string) (*ModerationResult, error) {
	id, err := shared.NewParticipantID(participantID)
	if err != nil {
		return nil, err
	}
	p, changed, err := h.roster.Unban(ctx, capability, id)
	if err != nil {
		return nil, err
	}
	if changed {
		h.logger.Info("participant unbanned", "participant_id", id, "actor", capability.Actor())
		h.publish(shared.NewParticipantEvent(shared.EventParticipantUnbanned, id.String(), p.Track.String(), capability.Actor(), h.clock.Now()))
	}
	return &ModerationResult{Changed: changed, Participant: p}, nil
}

// ExcludeChannel stops tracking a channel.
func (h *ModerationHandler) ExcludeChannel(ctx context.Context, capability shared.Capability, channelID, channelName string) (*ModerationResult, error) {
	changed, err := h.exclusions.Exclude(ctx, capability, shared.ChannelID(channelID), channelName)
	if err != nil {
		return nil, err
	}
	if changed {
		h.logger.Info("channel excluded", "channel_id", channelID, "actor", capability.Actor())
		h.publish(shared.NewChannelExclusionEvent(shared.EventChannelExcluded, channelID, capability.Actor(), h.clock.Now()))
	}
	return &ModerationResult{Changed: changed}, nil
}

// IncludeChannel resumes tracking a channel.
func (h *ModerationHandler) IncludeChannel(ctx context.Context, capability shared.Capability, channelID string) (*ModerationResult, error) {
	changed, err := h.exclusions.Include(ctx, capability, shared.ChannelID(channelID))
	if err != nil {
		return nil, err
	}
	if changed {
		h.logger.Info("channel included", "channel_id", channelID, "actor", capability.Actor())
		h.publish(shared.NewChannelExclusionEvent(shared.EventChannelIncluded, channelID, capability.Actor(), h.clock.Now()))
	}
	return &ModerationResult{Changed: changed}, nil
}

// ResumeRollovers clears a rollover halt.
func (h *ModerationHandler) ResumeRollovers(ctx context.Context, capability shared.Capability) (*ModerationResult, error) {
	changed, err := h.rounds.Resume(ctx, capability)
	if err != nil {
		return nil, err
	}
	return &ModerationResult{Changed: changed}, nil
}

func (h *ModerationHandler) publish(event shared.Event) {
	if err := h.publisher.Publish(event); err != nil {
		h.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
