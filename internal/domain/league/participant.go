// Package league contains the domain model of the language league:
// participants and their tracks, rounds, tallies and round results.
package league

import (
	"strings"
	"time"

	"github.com/hablemos/language-league/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRACK & LANGUAGE
// ══════════════════════════════════════════════════════════════════════════════

// Language is a tag returned by the classifier.
type Language string

const (
	LanguageSpanish Language = "es"
	LanguageEnglish Language = "en"
	// LanguageNone means the classifier had insufficient signal.
	LanguageNone Language = ""
)

// ParseLanguage normalises a classifier tag. Anything but es/en is LanguageNone.
func ParseLanguage(tag string) Language {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "es", "spa", "spanish":
		return LanguageSpanish
	case "en", "eng", "english":
		return LanguageEnglish
	default:
		return LanguageNone
	}
}

// Track is the language a participant is learning.
type Track string

const (
	TrackSpanish Track = "spanish"
	TrackEnglish Track = "english"
)

// Tracks lists every track in a stable order.
var Tracks = []Track{TrackSpanish, TrackEnglish}

// IsValid checks the track is known.
func (t Track) IsValid() bool {
	return t == TrackSpanish || t == TrackEnglish
}

// Language returns the classifier tag that counts for this track.
func (t Track) Language() Language {
	switch t {
	case TrackSpanish:
		return LanguageSpanish
	case TrackEnglish:
		return LanguageEnglish
	default:
		return LanguageNone
	}
}

// Accepts reports whether a message in lang counts for this track.
func (t Track) Accepts(lang Language) bool {
	return lang != LanguageNone && t.Language() == lang
}

// String returns the string representation.
func (t Track) String() string {
	return string(t)
}

// ParseTrack accepts "spanish", "english", their language tags and the
// "learning_" forms used by the chat roles.
func ParseTrack(s string) (Track, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "learning_")
	switch v {
	case "spanish", "es":
		return TrackSpanish, nil
	case "english", "en":
		return TrackEnglish, nil
	default:
		return "", shared.ErrUnknownTrack
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantStatus is the membership state of a participant.
type ParticipantStatus string

const (
	StatusActive ParticipantStatus = "active"
	StatusLeft   ParticipantStatus = "left"
	StatusBanned ParticipantStatus = "banned"
)

// IsValid checks the status is known.
func (s ParticipantStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusLeft, StatusBanned:
		return true
	}
	return false
}

// Participant is a user who opted into the league.
type Participant struct {
	ID          shared.ParticipantID
	DisplayName string
	Track       Track
	Status      ParticipantStatus
	JoinedAt    time.Time
	UpdatedAt   time.Time
}

// NewParticipant creates an active participant on the given track.
func NewParticipant(id shared.ParticipantID, displayName string, track Track, now time.Time) (*Participant, error) {
	if !id.IsValid() {
		return nil, shared.NewDomainError("participant", "Create", shared.ErrInvalidID, "participant id is required")
	}
	if !track.IsValid() {
		return nil, shared.ErrUnknownTrack
	}
	now = now.UTC()
	return &Participant{
		ID:          id,
		DisplayName: strings.TrimSpace(displayName),
		Track:       track,
		Status:      StatusActive,
		JoinedAt:    now,
		UpdatedAt:   now,
	}, nil
}

// NewBannedParticipant records a ban for a user who never joined.
// Track stays empty until the user is unbanned and joins.
func NewBannedParticipant(id shared.ParticipantID, now time.Time) (*Participant, error) {
	if !id.IsValid() {
		return nil, shared.NewDomainError("participant", "Ban", shared.ErrInvalidID, "participant id is required")
	}
	now = now.UTC()
	return &Participant{
		ID:        id,
		Status:    StatusBanned,
		JoinedAt:  now,
		UpdatedAt: now,
	}, nil
}

// IsActive reports whether the participant accrues points.
func (p *Participant) IsActive() bool {
	return p.Status == StatusActive
}

// IsBanned reports whether the participant is banned.
func (p *Participant) IsBanned() bool {
	return p.Status == StatusBanned
}

// Join reactivates the participant, possibly switching track.
// A banned participant cannot rejoin, and rejoining the same active track is refused.
func (p *Participant) Join(track Track, displayName string, now time.Time) error {
	if !track.IsValid() {
		return shared.ErrUnknownTrack
	}
	switch p.Status {
	case StatusBanned:
		return shared.ErrParticipantBanned
	case StatusActive:
		if p.Track == track {
			return shared.ErrAlreadyOnTrack
		}
	}

	p.Track = track
	p.Status = StatusActive
	if name := strings.TrimSpace(displayName); name != "" {
		p.DisplayName = name
	}
	p.UpdatedAt = now.UTC()
	return nil
}

// Leave stops future accrual. History is kept.
func (p *Participant) Leave(now time.Time) error {
	if p.Status != StatusActive {
		return shared.ErrNotParticipating
	}
	p.Status = StatusLeft
	p.UpdatedAt = now.UTC()
	return nil
}

// Ban blocks scoring and rejoining. Banning twice is a no-op.
func (p *Participant) Ban(now time.Time) bool {
	if p.Status == StatusBanned {
		return false
	}
	p.Status = StatusBanned
	p.UpdatedAt = now.UTC()
	return true
}

// Unban lifts a ban. The participant has to join again to compete.
func (p *Participant) Unban(now time.Time) bool {
	if p.Status != StatusBanned {
		return false
	}
	p.Status = StatusLeft
	p.UpdatedAt = now.UTC()
	return true
}

// Clone returns a copy safe to hand out of a cache.
func (p *Participant) Clone() *Participant {
	c := *p
	return &c
}
