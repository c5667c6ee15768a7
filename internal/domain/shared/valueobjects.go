package shared

import (
	"fmt"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// ParticipantID identifies a chat user taking part in the league.
type ParticipantID string

// IsValid checks that the ID is non-empty and has no surrounding whitespace.
func (p ParticipantID) IsValid() bool {
	return p != "" && strings.TrimSpace(string(p)) == string(p)
}

// String returns the string representation.
func (p ParticipantID) String() string {
	return string(p)
}

// NewParticipantID creates a new ParticipantID with validation.
func NewParticipantID(id string) (ParticipantID, error) {
	pid := ParticipantID(strings.TrimSpace(id))
	if !pid.IsValid() {
		return "", NewDomainError("participant", "Validate", ErrInvalidID, "participant id is required")
	}
	return pid, nil
}

// ChannelID identifies a chat channel.
type ChannelID string

// IsValid checks that the ID is non-empty.
func (c ChannelID) IsValid() bool {
	return strings.TrimSpace(string(c)) != ""
}

// String returns the string representation.
func (c ChannelID) String() string {
	return string(c)
}

// NewChannelID creates a new ChannelID with validation.
func NewChannelID(id string) (ChannelID, error) {
	cid := ChannelID(strings.TrimSpace(id))
	if !cid.IsValid() {
		return "", NewDomainError("channel", "Validate", ErrInvalidID, "channel id is required")
	}
	return cid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank
// ═══════════════════════════════════════════════════════════════════════════

// Rank is a 1-based leaderboard position. Zero means unranked.
type Rank int

// IsUnranked reports whether the participant has no position.
func (r Rank) IsUnranked() bool {
	return r <= 0
}

// IsTop checks if rank is within top N.
func (r Rank) IsTop(n int) bool {
	return r > 0 && int(r) <= n
}

// Medal returns the podium label for the top 3.
func (r Rank) Medal() string {
	switch r {
	case 1:
		return "gold"
	case 2:
		return "silver"
	case 3:
		return "bronze"
	default:
		return ""
	}
}

// String returns "#N" or "unranked".
func (r Rank) String() string {
	if r.IsUnranked() {
		return "unranked"
	}
	return fmt.Sprintf("#%d", int(r))
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange is a half-open interval [From, To).
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks that From precedes To.
func (t TimeRange) IsValid() bool {
	return t.From.Before(t.To)
}

// Duration returns the length of the range.
func (t TimeRange) Duration() time.Duration {
	return t.To.Sub(t.From)
}

// Contains checks if tm falls into [From, To).
func (t TimeRange) Contains(tm time.Time) bool {
	return !tm.Before(t.From) && tm.Before(t.To)
}

// NewTimeRange creates a validated range.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	r := TimeRange{From: from.UTC(), To: to.UTC()}
	if !r.IsValid() {
		return TimeRange{}, NewDomainError("time", "Validate", ErrInvalidInput, "range start must precede end")
	}
	return r, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Capability
// ═══════════════════════════════════════════════════════════════════════════

// Role is a privilege tag carried by a Capability.
type Role string

const (
	RoleAdmin Role = "admin"
)

// Capability is proof that an actor was authorised for a role.
// Only an authorizer can mint one; the zero value grants nothing.
type Capability struct {
	actor string
	role  Role
}

// NewCapability is called by authorizers after verifying credentials.
func NewCapability(actor string, role Role) Capability {
	return Capability{actor: actor, role: role}
}

// Actor returns who holds the capability.
func (c Capability) Actor() string {
	return c.actor
}

// Allows reports whether the capability grants role.
func (c Capability) Allows(role Role) bool {
	return c.role != "" && c.role == role
}

// Require returns ErrMissingCapability unless role is granted.
func (c Capability) Require(role Role) error {
	if !c.Allows(role) {
		return ErrMissingCapability
	}
	return nil
}
