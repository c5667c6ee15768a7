package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hablemos/language-league/internal/domain/shared"
)

// Announcement is the message published on AnnouncementChannel.
type Announcement struct {
	ID          string                 `json:"id"`
	Type        shared.EventType       `json:"type"`
	OccurredAt  time.Time              `json:"occurred_at"`
	AggregateID string                 `json:"aggregate_id"`
	Payload     map[string]interface{} `json:"payload"`
}

// NewAnnouncement converts a domain event into its wire form.
func NewAnnouncement(event shared.Event) Announcement {
	return Announcement{
		ID:          event.EventID(),
		Type:        event.EventType(),
		OccurredAt:  event.OccurredAt(),
		AggregateID: event.AggregateID(),
		Payload:     event.Payload(),
	}
}

// AnnouncementPublisher forwards league events to Redis pub/sub so a chat
// front end can post them.
type AnnouncementPublisher struct {
	rdb     *redis.Client
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

// NewAnnouncementPublisher creates an AnnouncementPublisher on AnnouncementChannel.
func NewAnnouncementPublisher(client *Client, logger *slog.Logger) *AnnouncementPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnnouncementPublisher{
		rdb:     client.rdb,
		channel: AnnouncementChannel,
		timeout: 3 * time.Second,
		logger:  logger.With("component", "redis_announcer"),
	}
}

// Register subscribes the publisher to every event on bus.
func (p *AnnouncementPublisher) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(p.Handle)
}

// Handle implements shared.EventHandler.
func (p *AnnouncementPublisher) Handle(event shared.Event) error {
	data, err := json.Marshal(NewAnnouncement(event))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	receivers, err := p.rdb.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return shared.WrapError("announcer", "Publish", shared.ErrExternalService, "redis publish failed", err)
	}
	p.logger.Debug("announcement published", "event_type", event.EventType(), "receivers", receivers)
	return nil
}
