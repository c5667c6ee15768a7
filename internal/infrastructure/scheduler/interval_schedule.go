package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job every Interval. When Aligned is set, runs land
// on multiples of Interval since the Unix epoch, so a one-minute rollover
// check fires at :00 of every minute and sees round boundaries promptly.
type IntervalSchedule struct {
	Interval time.Duration
	Aligned  bool
}

// NewIntervalSchedule creates a schedule counted from the previous run.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// NewAlignedSchedule creates a schedule pinned to wall-clock multiples of interval.
func NewAlignedSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval, Aligned: true}
}

// Next returns the first run time strictly after t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	if s.Interval <= 0 {
		return t.Add(time.Minute)
	}
	if s.Aligned {
		return t.Truncate(s.Interval).Add(s.Interval)
	}
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	if s.Aligned {
		return fmt.Sprintf("@every %s (aligned)", s.Interval)
	}
	return fmt.Sprintf("@every %s", s.Interval)
}
