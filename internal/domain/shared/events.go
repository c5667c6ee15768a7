package shared

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Participant events
	EventParticipantJoined   EventType = "participant.joined"
	EventParticipantLeft     EventType = "participant.left"
	EventParticipantBanned   EventType = "participant.banned"
	EventParticipantUnbanned EventType = "participant.unbanned"

	// Exclusion events
	EventChannelExcluded EventType = "exclusion.channel_excluded"
	EventChannelIncluded EventType = "exclusion.channel_included"

	// Round events
	EventRoundRolledOver  EventType = "round.rolled_over"
	EventWinnersAnnounced EventType = "round.winners_announced"
	EventRolloverHalted   EventType = "round.rollover_halted"
	EventRolloverResumed  EventType = "round.rollover_resumed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventID returns a unique identifier for this occurrence.
	EventID() string

	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventID implements Event interface.
func (e BaseEvent) EventID() string {
	return e.ID
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped at the given instant.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   at.UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Participant Events
// ═══════════════════════════════════════════════════════════════════════════

// ParticipantEvent covers join, leave, ban and unban.
type ParticipantEvent struct {
	BaseEvent
	ParticipantID string `json:"participant_id"`
	Track         string `json:"track,omitempty"`
	Actor         string `json:"actor,omitempty"`
}

// Payload implements Event interface.
func (e ParticipantEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"participant_id": e.ParticipantID,
		"track":          e.Track,
		"actor":          e.Actor,
	}
}

// NewParticipantEvent creates a participant lifecycle event.
func NewParticipantEvent(eventType EventType, participantID, track, actor string, at time.Time) ParticipantEvent {
	return ParticipantEvent{
		BaseEvent:     NewBaseEvent(eventType, participantID, at),
		ParticipantID: participantID,
		Track:         track,
		Actor:         actor,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Exclusion Events
// ═══════════════════════════════════════════════════════════════════════════

// ChannelExclusionEvent is emitted when an admin excludes or re-includes a channel.
type ChannelExclusionEvent struct {
	BaseEvent
	ChannelID string `json:"channel_id"`
	Actor     string `json:"actor"`
}

// Payload implements Event interface.
func (e ChannelExclusionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"channel_id": e.ChannelID,
		"actor":      e.Actor,
	}
}

// NewChannelExclusionEvent creates a new ChannelExclusionEvent.
func NewChannelExclusionEvent(eventType EventType, channelID, actor string, at time.Time) ChannelExclusionEvent {
	return ChannelExclusionEvent{
		BaseEvent: NewBaseEvent(eventType, channelID, at),
		ChannelID: channelID,
		Actor:     actor,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Round Events
// ═══════════════════════════════════════════════════════════════════════════

// Winner is one podium entry of an announcement.
type Winner struct {
	Position      int    `json:"position"`
	ParticipantID string `json:"participant_id"`
	Score         int    `json:"score"`
}

// WinnersAnnouncedEvent carries the top of one track for a closed round.
type WinnersAnnouncedEvent struct {
	BaseEvent
	RoundID  string    `json:"round_id"`
	Track    string    `json:"track"`
	RoundEnd time.Time `json:"round_end"`
	Winners  []Winner  `json:"winners"`
}

// Payload implements Event interface.
func (e WinnersAnnouncedEvent) Payload() map[string]interface{} {
	winners := make([]map[string]interface{}, 0, len(e.Winners))
	for _, w := range e.Winners {
		winners = append(winners, map[string]interface{}{
			"position":       w.Position,
			"participant_id": w.ParticipantID,
			"score":          w.Score,
		})
	}
	return map[string]interface{}{
		"round_id":  e.RoundID,
		"track":     e.Track,
		"round_end": e.RoundEnd,
		"winners":   winners,
	}
}

// NewWinnersAnnouncedEvent creates a new WinnersAnnouncedEvent.
func NewWinnersAnnouncedEvent(roundID, track string, roundEnd time.Time, winners []Winner, at time.Time) WinnersAnnouncedEvent {
	return WinnersAnnouncedEvent{
		BaseEvent: NewBaseEvent(EventWinnersAnnounced, roundID, at),
		RoundID:   roundID,
		Track:     track,
		RoundEnd:  roundEnd.UTC(),
		Winners:   winners,
	}
}

// RoundRolledOverEvent is emitted once the new round is open.
type RoundRolledOverEvent struct {
	BaseEvent
	ClosedRoundID string    `json:"closed_round_id"`
	OpenedRoundID string    `json:"opened_round_id"`
	OpenedStart   time.Time `json:"opened_start"`
	OpenedEnd     time.Time `json:"opened_end"`
	Participants  int       `json:"participants"`
}

// Payload implements Event interface.
func (e RoundRolledOverEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"closed_round_id": e.ClosedRoundID,
		"opened_round_id": e.OpenedRoundID,
		"opened_start":    e.OpenedStart,
		"opened_end":      e.OpenedEnd,
		"participants":    e.Participants,
	}
}

// NewRoundRolledOverEvent creates a new RoundRolledOverEvent.
func NewRoundRolledOverEvent(closedID, openedID string, start, end time.Time, participants int, at time.Time) RoundRolledOverEvent {
	return RoundRolledOverEvent{
		BaseEvent:     NewBaseEvent(EventRoundRolledOver, openedID, at),
		ClosedRoundID: closedID,
		OpenedRoundID: openedID,
		OpenedStart:   start.UTC(),
		OpenedEnd:     end.UTC(),
		Participants:  participants,
	}
}

// RolloverStateEvent signals halting or resuming rollovers.
type RolloverStateEvent struct {
	BaseEvent
	RoundID string `json:"round_id"`
	Reason  string `json:"reason"`
}

// Payload implements Event interface.
func (e RolloverStateEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"round_id": e.RoundID,
		"reason":   e.Reason,
	}
}

// NewRolloverStateEvent creates a halt/resume event.
func NewRolloverStateEvent(eventType EventType, roundID, reason string, at time.Time) RolloverStateEvent {
	return RolloverStateEvent{
		BaseEvent: NewBaseEvent(eventType, roundID, at),
		RoundID:   roundID,
		Reason:    reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
