package league

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/hablemos/language-league/internal/domain/shared"
)

var (
	customEmojiPattern  = regexp.MustCompile(`<a?:\w+:\d+>`)
	unicodeEmojiPattern = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{2702}-\x{27B0}\x{24C2}-\x{1F251}\x{1F900}-\x{1F9FF}\x{1FA00}-\x{1FA6F}]+`)
)

// CleanText strips custom and unicode emoji, normalises to NFC and trims the
// ends. Whitespace left between words by a removed emoji counts toward length.
func CleanText(raw string) string {
	s := customEmojiPattern.ReplaceAllString(raw, "")
	s = unicodeEmojiPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(norm.NFC.String(s))
}

// TextLength is the character length the gate measures.
func TextLength(raw string) int {
	return utf8.RuneCountInString(CleanText(raw))
}

// Excerpt shortens text to max characters for audit trails.
func Excerpt(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	r := []rune(text)
	return string(r[:max]) + "…"
}

// Activity is one inbound chat message.
type Activity struct {
	ParticipantID shared.ParticipantID
	ChannelID     shared.ChannelID
	DisplayName   string
	Text          string
	At            time.Time
	FromBot       bool
	Direct        bool
}

// RejectReason names the rule that dropped an event.
type RejectReason string

const (
	ReasonNone            RejectReason = ""
	ReasonBotAuthor       RejectReason = "bot_author"
	ReasonDirectMessage   RejectReason = "direct_message"
	ReasonNotParticipant  RejectReason = "not_participant"
	ReasonInactive        RejectReason = "inactive"
	ReasonExcludedChannel RejectReason = "excluded_channel"
	ReasonTooShort        RejectReason = "too_short"
	ReasonCooldown        RejectReason = "cooldown"
	ReasonDailyCap        RejectReason = "daily_cap"
	ReasonTrackMismatch   RejectReason = "track_mismatch"
	ReasonRoundClosed     RejectReason = "round_closed"
)

// Rejection is a silent gate failure carrying its reason.
type Rejection struct {
	Reason RejectReason
}

// Error implements error.
func (r *Rejection) Error() string {
	return "rejected: " + string(r.Reason)
}

// Is matches shared.ErrRejected, and shared.ErrTrackMismatch for mismatches.
func (r *Rejection) Is(target error) bool {
	if target == shared.ErrRejected {
		return true
	}
	return target == shared.ErrTrackMismatch && r.Reason == ReasonTrackMismatch
}

// Reject builds a rejection error.
func Reject(reason RejectReason) error {
	return &Rejection{Reason: reason}
}

// ReasonOf extracts the reject reason from err, or ReasonNone.
func ReasonOf(err error) RejectReason {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	if shared.IsRoundClosed(err) {
		return ReasonRoundClosed
	}
	return ReasonNone
}

// AuditEntry is one counted message kept for admin review.
type AuditEntry struct {
	ChannelID shared.ChannelID `json:"channel_id"`
	Language  Language         `json:"language"`
	At        time.Time        `json:"at"`
	Excerpt   string           `json:"excerpt"`
	RoundID   string           `json:"round_id"`
}
