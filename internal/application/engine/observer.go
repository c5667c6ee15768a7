// Package engine is the scoring core of the league: the exclusion registry,
// the anti-spam gate, the scoring engine and the round manager.
package engine

import (
	"time"

	"github.com/hablemos/language-league/internal/domain/league"
)

// Observer receives engine measurements. The Prometheus collector implements it.
type Observer interface {
	EventProcessed(outcome string)
	RolloverFinished(outcome string, took time.Duration)
	OpenTallies(n int)
}

type nopObserver struct{}

func (nopObserver) EventProcessed(string)                  {}
func (nopObserver) RolloverFinished(string, time.Duration) {}
func (nopObserver) OpenTallies(int)                        {}

// Outcome labels reported to the Observer.
const (
	OutcomeCounted = "counted"
	OutcomeError   = "error"
)

// OutcomeOf maps a pipeline error to an observer label.
func OutcomeOf(err error) string {
	if err == nil {
		return OutcomeCounted
	}
	if reason := league.ReasonOf(err); reason != league.ReasonNone {
		return string(reason)
	}
	return OutcomeError
}
