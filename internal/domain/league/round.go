package league

import (
	"time"

	"github.com/google/uuid"

	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/pkg/timeutil"
)

// RoundStatus is the lifecycle state of a round.
type RoundStatus string

const (
	RoundOpen    RoundStatus = "open"
	RoundClosing RoundStatus = "closing"
	RoundClosed  RoundStatus = "closed"
)

// Round is one fixed-length competition window [Start, End).
type Round struct {
	ID     string
	Number int
	Start  time.Time
	End    time.Time
	Status RoundStatus
}

// NewRound creates an open round. The window must be non-empty.
func NewRound(id string, number int, start, end time.Time) (*Round, error) {
	window, err := shared.NewTimeRange(start, end)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Round{
		ID:     id,
		Number: number,
		Start:  window.From,
		End:    window.To,
		Status: RoundOpen,
	}, nil
}

// FirstRound creates the round whose aligned window contains now.
func FirstRound(anchor time.Time, length time.Duration, now time.Time) (*Round, error) {
	start, end := timeutil.AlignWindow(anchor, length, now)
	return NewRound("", 1, start, end)
}

// IsOpen reports whether the round accepts scores.
func (r *Round) IsOpen() bool {
	return r.Status == RoundOpen
}

// Expired reports whether now has reached the round's end.
func (r *Round) Expired(now time.Time) bool {
	return !now.Before(r.End)
}

// Window returns the round as a time range.
func (r *Round) Window() shared.TimeRange {
	return shared.TimeRange{From: r.Start, To: r.End}
}

// Remaining returns the time left until the end, never negative.
func (r *Round) Remaining(now time.Time) time.Duration {
	if r.Expired(now) {
		return 0
	}
	return r.End.Sub(now)
}

// BeginClosing moves Open to Closing.
func (r *Round) BeginClosing() error {
	if r.Status != RoundOpen {
		return shared.ErrRoundTransition
	}
	r.Status = RoundClosing
	return nil
}

// Reopen moves Closing back to Open. Only used when a rollover is abandoned.
func (r *Round) Reopen() error {
	if r.Status != RoundClosing {
		return shared.ErrRoundTransition
	}
	r.Status = RoundOpen
	return nil
}

// Close moves Closing to Closed.
func (r *Round) Close() error {
	if r.Status != RoundClosing {
		return shared.ErrRoundTransition
	}
	r.Status = RoundClosed
	return nil
}

// Next builds the open successor: start = r.End, end = r.End + length.
func (r *Round) Next(length time.Duration) (*Round, error) {
	return NewRound("", r.Number+1, r.End, r.End.Add(length))
}

// Clone returns a copy.
func (r *Round) Clone() *Round {
	c := *r
	return &c
}
