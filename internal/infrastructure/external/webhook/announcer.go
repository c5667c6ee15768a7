// Package webhook posts league announcements to a chat webhook
// (Discord-compatible {"content": ...} payload).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/pkg/circuitbreaker"
	"github.com/hablemos/language-league/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the webhook announcer.
type Config struct {
	URL     string
	Timeout time.Duration

	// DeliveryTimeout bounds one announcement including retries.
	DeliveryTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		Timeout:         5 * time.Second,
		DeliveryTimeout: 30 * time.Second,
	}
}

type payload struct {
	Content string `json:"content"`
}

type statusError struct {
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// ANNOUNCER
// ══════════════════════════════════════════════════════════════════════════════

// Announcer turns league events into chat messages.
type Announcer struct {
	config     Config
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// NewAnnouncer creates an Announcer.
func NewAnnouncer(config Config) *Announcer {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = 30 * time.Second
	}
	logger := config.Logger.With("component", "webhook_announcer")

	return &Announcer{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker: circuitbreaker.AnnouncerBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
		}, circuitbreaker.WithIsFailure(isTransient)),
		retrier: retry.AnnouncerRetrier(isTransient),
		logger:  logger,
	}
}

// Register subscribes to the announced event types on bus.
func (a *Announcer) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{
		shared.EventWinnersAnnounced,
		shared.EventRoundRolledOver,
		shared.EventRolloverHalted,
	} {
		if err := bus.Subscribe(t, a.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements shared.EventHandler.
func (a *Announcer) Handle(event shared.Event) error {
	text := Format(event)
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.config.DeliveryTimeout)
	defer cancel()

	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		return a.retrier.Do(ctx, func(ctx context.Context) error {
			return a.post(ctx, text)
		})
	})
	if err != nil {
		return shared.WrapError("announcer", "Send", shared.ErrAnnouncerFailed,
			fmt.Sprintf("deliver %s", event.EventType()), err)
	}
	a.logger.Debug("announcement delivered", "event_type", event.EventType(), "event_id", event.EventID())
	return nil
}

// Breaker exposes the delivery circuit breaker for health reporting.
func (a *Announcer) Breaker() *circuitbreaker.CircuitBreaker {
	return a.breaker
}

func (a *Announcer) post(ctx context.Context, text string) error {
	body, err := json.Marshal(payload{Content: text})
	if err != nil {
		return retry.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{Code: resp.StatusCode}
	}
	return nil
}

func isTransient(err error) bool {
	if err == nil || retry.IsPermanent(err) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMATTING
// ══════════════════════════════════════════════════════════════════════════════

var medals = map[int]string{1: "🥇", 2: "🥈", 3: "🥉"}

// Format renders an event as a chat message. Unsupported events render empty.
func Format(event shared.Event) string {
	switch e := event.(type) {
	case shared.WinnersAnnouncedEvent:
		var b strings.Builder
		fmt.Fprintf(&b, "🏆 **%s league** results for the round ending %s\n",
			titleCase(e.Track), e.RoundEnd.Format("2006-01-02"))
		if len(e.Winners) == 0 {
			b.WriteString("No counted messages this round.")
			return b.String()
		}
		for _, w := range e.Winners {
			label, ok := medals[w.Position]
			if !ok {
				label = fmt.Sprintf("#%d", w.Position)
			}
			fmt.Fprintf(&b, "%s <@%s> with %d points\n", label, w.ParticipantID, w.Score)
		}
		return strings.TrimRight(b.String(), "\n")
	case shared.RoundRolledOverEvent:
		return fmt.Sprintf("📅 A new round has started and runs until %s UTC. Good luck!",
			e.OpenedEnd.Format("2006-01-02 15:04"))
	case shared.RolloverStateEvent:
		if e.EventType() == shared.EventRolloverHalted {
			return fmt.Sprintf("⚠️ Round rollover halted: %s", e.Reason)
		}
	}
	return ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
