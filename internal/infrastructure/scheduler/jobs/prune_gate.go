package jobs

import (
	"context"
	"log/slog"

	"github.com/hablemos/language-league/internal/application/engine"
)

// PruneGateJob drops cooldown and daily-count state that can no longer
// affect a decision.
type PruneGateJob struct {
	gate   *engine.Gate
	logger *slog.Logger
}

// NewPruneGateJob creates a new prune job.
func NewPruneGateJob(gate *engine.Gate, logger *slog.Logger) *PruneGateJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PruneGateJob{gate: gate, logger: logger.With("job", "prune_gate")}
}

// Name returns the job name.
func (j *PruneGateJob) Name() string { return "prune_gate" }

// Description returns a human-readable description.
func (j *PruneGateJob) Description() string {
	return "Removes expired anti-spam gate entries"
}

// Run executes the job.
func (j *PruneGateJob) Run(ctx context.Context) error {
	n, err := j.gate.Prune(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.Debug("gate state pruned", "entries", n)
	}
	return nil
}
