// Package jobs contains the league's scheduled jobs.
package jobs

import (
	"context"
	"log/slog"

	"github.com/hablemos/language-league/internal/application/engine"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLLOVER CHECK JOB
// ══════════════════════════════════════════════════════════════════════════════

// RolloverCheckJob closes the open round once it has expired.
// A failed commit is retried on the next run with the same frozen content.
type RolloverCheckJob struct {
	rounds *engine.RoundManager
	logger *slog.Logger
}

// NewRolloverCheckJob creates a new rollover check job.
func NewRolloverCheckJob(rounds *engine.RoundManager, logger *slog.Logger) *RolloverCheckJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RolloverCheckJob{
		rounds: rounds,
		logger: logger.With("job", "rollover_check"),
	}
}

// Name returns the job name.
func (j *RolloverCheckJob) Name() string { return "rollover_check" }

// Description returns a human-readable description.
func (j *RolloverCheckJob) Description() string {
	return "Closes the expired round, publishes winners and opens the next one"
}

// Run executes the job.
func (j *RolloverCheckJob) Run(ctx context.Context) error {
	if halted, reason := j.rounds.Halted(); halted {
		j.logger.Debug("rollovers halted", "reason", reason)
		return nil
	}
	return j.rounds.Check(ctx)
}
