package query

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hablemos/language-league/internal/application/engine"
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN QUERIES
// Сводка лиги, список исключённых каналов, пробная проверка сообщения
// и журнал последних засчитанных сообщений. Все требуют права администратора.
// ══════════════════════════════════════════════════════════════════════════════

// AuditDepth - сколько последних сообщений хранит журнал.
const AuditDepth = 3

// AdminStatsResult - сводка по лиге.
type AdminStatsResult struct {
	Participants     engine.Counts `json:"participants"`
	RoundID          string        `json:"round_id"`
	RoundNumber      int           `json:"round_number"`
	RoundStart       time.Time     `json:"round_start"`
	RoundEnd         time.Time     `json:"round_end"`
	RoundStatus      string        `json:"round_status"`
	CountedMessages  int           `json:"counted_messages"`
	ExcludedChannels int           `json:"excluded_channels"`
	RolloverHalted   bool          `json:"rollover_halted"`
	HaltReason       string        `json:"halt_reason,omitempty"`
}

// ValidateMessageQuery - пробная проверка сообщения без побочных эффектов.
type ValidateMessageQuery struct {
	ParticipantID string
	ChannelID     string
	Text          string
}

// ValidateMessageResult - что сделал бы конвейер с сообщением.
type ValidateMessageResult struct {
	CleanText      string              `json:"clean_text"`
	Language       league.Language     `json:"language"`
	Excluded       bool                `json:"excluded"`
	Participant    bool                `json:"participant"`
	Active         bool                `json:"active"`
	TrackMatches   bool                `json:"track_matches"`
	Gate           engine.Verdict      `json:"gate"`
	WouldCount     bool                `json:"would_count"`
	Reason         league.RejectReason `json:"reason,omitempty"`
	ClassifierNote string              `json:"classifier_note,omitempty"`
}

// AdminToolsHandler обрабатывает административные запросы.
type AdminToolsHandler struct {
	roster     *engine.Roster
	exclusions *engine.ExclusionRegistry
	gate       *engine.Gate
	engine     *engine.Engine
	rounds     *engine.RoundManager
	classifier league.Classifier
	audit      league.AuditLog
	clock      clockwork.Clock
}

// AdminToolsDeps - зависимости обработчика.
type AdminToolsDeps struct {
	Roster     *engine.Roster
	Exclusions *engine.ExclusionRegistry
	Gate       *engine.Gate
	Engine     *engine.Engine
	Rounds     *engine.RoundManager
	Classifier league.Classifier
	Audit      league.AuditLog
	Clock      clockwork.Clock
}

// NewAdminToolsHandler создаёт новый обработчик.
func NewAdminToolsHandler(deps AdminToolsDeps) *AdminToolsHandler {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &AdminToolsHandler{
		roster:     deps.Roster,
		exclusions: deps.Exclusions,
		gate:       deps.Gate,
		engine:     deps.Engine,
		rounds:     deps.Rounds,
		classifier: deps.Classifier,
		audit:      deps.Audit,
		clock:      deps.Clock,
	}
}

// Stats возвращает сводку по лиге.
func (h *AdminToolsHandler) Stats(_ context.Context, capability shared.Capability) (*AdminStatsResult, error) {
	if err := capability.Require(shared.RoleAdmin); err != nil {
		return nil, err
	}

	result := &AdminStatsResult{
		Participants:     h.roster.Counts(),
		CountedMessages:  h.engine.CountedMessages(),
		ExcludedChannels: h.exclusions.Len(),
	}
	result.RolloverHalted, result.HaltReason = h.rounds.Halted()
	if r := h.engine.CurrentRound(); r != nil {
		result.RoundID = r.ID
		result.RoundNumber = r.Number
		result.RoundStart = r.Start
		result.RoundEnd = r.End
		result.RoundStatus = string(r.Status)
	}
	return result, nil
}

// Exclusions возвращает исключённые каналы, новые первыми.
func (h *AdminToolsHandler) Exclusions(_ context.Context, capability shared.Capability) ([]league.Exclusion, error) {
	if err := capability.Require(shared.RoleAdmin); err != nil {
		return nil, err
	}
	return h.exclusions.List(), nil
}

// ValidateMessage прогоняет сообщение через все правила, ничего не меняя.
// Ошибка классификатора не прерывает проверку, а попадает в ClassifierNote.
func (h *AdminToolsHandler) ValidateMessage(ctx context.Context, capability shared.Capability, q ValidateMessageQuery) (*ValidateMessageResult, error) {
	if err := capability.Require(shared.RoleAdmin); err != nil {
		return nil, err
	}

	text := league.CleanText(q.Text)
	id := shared.ParticipantID(q.ParticipantID)
	channel := shared.ChannelID(q.ChannelID)

	result := &ValidateMessageResult{
		CleanText: text,
		Excluded:  h.exclusions.IsExcluded(channel),
	}

	verdict, err := h.gate.Inspect(ctx, engine.GateRequest{
		ParticipantID: id,
		ChannelID:     channel,
		At:            h.clock.Now(),
		Length:        league.TextLength(text),
	})
	if err != nil {
		return nil, fmt.Errorf("validate_message: %w", err)
	}
	result.Gate = verdict

	lang, err := h.classifier.Detect(ctx, text)
	if err != nil {
		result.ClassifierNote = err.Error()
	}
	result.Language = lang

	p, ok := h.roster.Lookup(id)
	result.Participant = ok
	if ok {
		result.Active = p.IsActive()
		result.TrackMatches = p.Track.Accepts(lang)
	}

	switch {
	case !result.Participant:
		result.Reason = league.ReasonNotParticipant
	case !result.Active:
		result.Reason = league.ReasonInactive
	case result.Excluded:
		result.Reason = league.ReasonExcludedChannel
	case verdict.Reason != league.ReasonNone:
		result.Reason = verdict.Reason
	case !result.TrackMatches:
		result.Reason = league.ReasonTrackMismatch
	}
	result.WouldCount = result.Reason == league.ReasonNone && result.ClassifierNote == ""
	return result, nil
}

// Audit возвращает последние засчитанные сообщения участника.
func (h *AdminToolsHandler) Audit(ctx context.Context, capability shared.Capability, participantID string) ([]league.AuditEntry, error) {
	if err := capability.Require(shared.RoleAdmin); err != nil {
		return nil, err
	}
	id, err := shared.NewParticipantID(participantID)
	if err != nil {
		return nil, err
	}
	entries, err := h.audit.Recent(ctx, id, AuditDepth)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	return entries, nil
}
