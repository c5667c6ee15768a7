package messaging

import (
	"context"
	"log/slog"

	"github.com/hablemos/language-league/internal/domain/shared"
)

// LogSubscriber writes announcements and rollover state changes to the log.
type LogSubscriber struct {
	logger *slog.Logger
}

// NewLogSubscriber creates a LogSubscriber.
func NewLogSubscriber(logger *slog.Logger) *LogSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSubscriber{logger: logger.With("component", "announcements")}
}

// Register subscribes to the announcement events on bus.
func (s *LogSubscriber) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{
		shared.EventRoundRolledOver,
		shared.EventWinnersAnnounced,
		shared.EventRolloverHalted,
		shared.EventRolloverResumed,
	} {
		if err := bus.Subscribe(t, s.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements shared.EventHandler.
func (s *LogSubscriber) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.WinnersAnnouncedEvent:
		if len(e.Winners) == 0 {
			s.logger.Info("no winners this round", "round_id", e.RoundID, "track", e.Track)
			return nil
		}
		for _, w := range e.Winners {
			s.logger.Info("winner",
				"round_id", e.RoundID,
				"track", e.Track,
				"position", w.Position,
				"participant_id", w.ParticipantID,
				"score", w.Score,
			)
		}
	case shared.RoundRolledOverEvent:
		s.logger.Info("new round open",
			"closed_round_id", e.ClosedRoundID,
			"round_id", e.OpenedRoundID,
			"round_end", e.OpenedEnd,
			"participants", e.Participants,
		)
	case shared.RolloverStateEvent:
		level := slog.LevelInfo
		if e.EventType() == shared.EventRolloverHalted {
			level = slog.LevelError
		}
		s.logger.Log(context.Background(), level, string(e.EventType()), "round_id", e.RoundID, "reason", e.Reason)
	default:
		s.logger.Debug("event", "event_type", event.EventType(), "payload", event.Payload())
	}
	return nil
}
