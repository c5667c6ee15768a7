// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hablemos/language-league/internal/application/engine"
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Runs one chat message through the league pipeline:
// author filters → membership → exclusion → gate check → classifier →
// gate commit → scoring → audit trail.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand contains one inbound chat message.
type RecordActivityCommand struct {
	// ParticipantID is the chat user id of the author.
	ParticipantID string

	// ChannelID is where the message was posted. Empty for direct messages.
	ChannelID string

	// DisplayName is the author's current name.
	DisplayName string

	// Text is the raw message content.
	Text string

	// Timestamp is when the message was posted (defaults to now if zero).
	Timestamp time.Time

	// FromBot marks messages authored by bots.
	FromBot bool

	// Direct marks direct messages.
	Direct bool

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	if c.ParticipantID == "" {
		return shared.NewDomainError("activity", "Validate", shared.ErrInvalidInput, "participant_id is required")
	}
	if !c.Direct && c.ChannelID == "" {
		return shared.NewDomainError("activity", "Validate", shared.ErrInvalidInput, "channel_id is required")
	}
	return nil
}

// RecordActivityResult reports what happened to the message.
type RecordActivityResult struct {
	// Counted is true when the message earned points.
	Counted bool

	// Reason names the rule that dropped the message.
	Reason league.RejectReason

	// RoundID is the round the message was evaluated against.
	RoundID string

	// Language is the classifier verdict, if the classifier was reached.
	Language league.Language

	// DailyCount is the participant's counted messages today.
	DailyCount int

	// Score is the participant's round score after the message.
	Score int
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityHandler handles the RecordActivityCommand.
type RecordActivityHandler struct {
	roster     *engine.Roster
	exclusions *engine.ExclusionRegistry
	gate       *engine.Gate
	engine     *engine.Engine
	classifier league.Classifier
	audit      league.AuditLog

	locks    *participantLocks
	clock    clockwork.Clock
	logger   *slog.Logger
	observer engine.Observer

	classifyTimeout time.Duration
}

// RecordActivityDeps groups the collaborators of the pipeline.
type RecordActivityDeps struct {
	Roster     *engine.Roster
	Exclusions *engine.ExclusionRegistry
	Gate       *engine.Gate
	Engine     *engine.Engine
	Classifier league.Classifier
	Audit      league.AuditLog
	Clock      clockwork.Clock
	Logger     *slog.Logger
	Observer   engine.Observer

	// ClassifyTimeout bounds a classifier call.
	ClassifyTimeout time.Duration
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
func NewRecordActivityHandler(deps RecordActivityDeps) *RecordActivityHandler {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ClassifyTimeout <= 0 {
		deps.ClassifyTimeout = 3 * time.Second
	}
	return &RecordActivityHandler{
		roster:          deps.Roster,
		exclusions:      deps.Exclusions,
		gate:            deps.Gate,
		engine:          deps.Engine,
		classifier:      deps.Classifier,
		audit:           deps.Audit,
		locks:           newParticipantLocks(256),
		clock:           deps.Clock,
		logger:          deps.Logger.With("component", "record_activity"),
		observer:        deps.Observer,
		classifyTimeout: deps.ClassifyTimeout,
	}
}

// Handle runs the pipeline. Rejections are reported in the result, not as
// errors; the error is reserved for validation and infrastructure failures
// and for events that raced a rollover (shared.ErrRoundClosed).
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	result, err := h.handle(ctx, cmd)
	if h.observer != nil {
		h.observer.EventProcessed(engine.OutcomeOf(err))
	}

	if reason := league.ReasonOf(err); reason != league.ReasonNone && reason != league.ReasonRoundClosed {
		h.logger.Debug("activity rejected",
			"participant_id", cmd.ParticipantID,
			"channel_id", cmd.ChannelID,
			"reason", reason,
		)
		result.Reason = reason
		return result, nil
	}
	if err != nil {
		if shared.IsRoundClosed(err) {
			h.logger.Info("activity dropped, round closed",
				"participant_id", cmd.ParticipantID,
				"round_id", result.RoundID,
			)
		} else {
			h.logger.Warn("activity dropped",
				"participant_id", cmd.ParticipantID,
				"channel_id", cmd.ChannelID,
				"error", err,
			)
		}
		return result, err
	}
	return result, nil
}

func (h *RecordActivityHandler) handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	result := &RecordActivityResult{}

	switch {
	case cmd.FromBot:
		return result, league.Reject(league.ReasonBotAuthor)
	case cmd.Direct:
		return result, league.Reject(league.ReasonDirectMessage)
	}
	if err := cmd.Validate(); err != nil {
		return result, err
	}

	id := shared.ParticipantID(cmd.ParticipantID)
	channel := shared.ChannelID(cmd.ChannelID)
	ts := cmd.Timestamp
	if ts.IsZero() {
		ts = h.clock.Now()
	}
	ts = ts.UTC()

	p, ok := h.roster.Lookup(id)
	if !ok {
		return result, league.Reject(league.ReasonNotParticipant)
	}
	if !p.IsActive() {
		return result, league.Reject(league.ReasonInactive)
	}
	if h.exclusions.IsExcluded(channel) {
		return result, league.Reject(league.ReasonExcludedChannel)
	}

	// The round id is fixed here; an event racing a rollover fails in Score.
	roundID, open := h.engine.CurrentRoundID()
	result.RoundID = roundID
	if !open {
		return result, shared.ErrStaleRound
	}

	text := league.CleanText(cmd.Text)
	req := engine.GateRequest{
		ParticipantID: id,
		ChannelID:     channel,
		At:            ts,
		Length:        league.TextLength(text),
	}

	verdict, err := h.gate.Inspect(ctx, req)
	if err != nil {
		return result, err
	}
	result.DailyCount = verdict.DailyCount
	if verdict.Reason != league.ReasonNone {
		return result, league.Reject(verdict.Reason)
	}

	// The classifier runs outside the participant lock; Admit re-checks the
	// gate and Score re-checks status and track.
	lang, err := h.classify(ctx, text)
	if err != nil {
		return result, err
	}
	result.Language = lang
	if !p.Track.Accepts(lang) {
		return result, league.Reject(league.ReasonTrackMismatch)
	}

	unlock := h.locks.lock(id)
	defer unlock()

	decision, err := h.gate.Admit(ctx, req)
	result.DailyCount = decision.DailyCount
	if err != nil {
		return result, err
	}

	if err := h.engine.Score(ctx, id, lang, ts, roundID); err != nil {
		return result, err
	}
	result.Counted = true
	if t, ok := h.engine.Tally(id); ok {
		result.Score = t.Score(h.engine.Rules())
	}

	h.recordAudit(ctx, id, league.AuditEntry{
		ChannelID: channel,
		Language:  lang,
		At:        ts,
		Excerpt:   league.Excerpt(text, 100),
		RoundID:   roundID,
	})
	return result, nil
}

func (h *RecordActivityHandler) classify(ctx context.Context, text string) (league.Language, error) {
	ctx, cancel := context.WithTimeout(ctx, h.classifyTimeout)
	defer cancel()

	lang, err := h.classifier.Detect(ctx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return league.LanguageNone, shared.WrapError("classifier", "Detect", shared.ErrTimeout, "classifier timed out", err)
		}
		return league.LanguageNone, err
	}
	return lang, nil
}

// recordAudit never fails the pipeline.
func (h *RecordActivityHandler) recordAudit(ctx context.Context, id shared.ParticipantID, entry league.AuditEntry) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(ctx, id, entry); err != nil {
		h.logger.Warn("failed to record audit entry", "participant_id", id, "error", err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PER-PARTICIPANT ORDERING
// ══════════════════════════════════════════════════════════════════════════════

// participantLocks serializes the gate commit and scoring per participant
// across a fixed set of stripes.
type participantLocks struct {
	stripes []sync.Mutex
}

func newParticipantLocks(n int) *participantLocks {
	if n <= 0 {
		n = 256
	}
	return &participantLocks{stripes: make([]sync.Mutex, n)}
}

func (l *participantLocks) lock(id shared.ParticipantID) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
