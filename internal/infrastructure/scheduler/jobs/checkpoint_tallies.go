package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hablemos/language-league/internal/application/engine"
	"github.com/hablemos/language-league/internal/domain/league"
)

// CheckpointTalliesJob persists tallies changed since the last run.
// On failure the tallies go back to the dirty set for the next run.
type CheckpointTalliesJob struct {
	engine  *engine.Engine
	tallies league.TallyRepository
	timeout time.Duration
	logger  *slog.Logger
}

// NewCheckpointTalliesJob creates a new checkpoint job.
func NewCheckpointTalliesJob(eng *engine.Engine, tallies league.TallyRepository, timeout time.Duration, logger *slog.Logger) *CheckpointTalliesJob {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckpointTalliesJob{
		engine:  eng,
		tallies: tallies,
		timeout: timeout,
		logger:  logger.With("job", "checkpoint_tallies"),
	}
}

// Name returns the job name.
func (j *CheckpointTalliesJob) Name() string { return "checkpoint_tallies" }

// Description returns a human-readable description.
func (j *CheckpointTalliesJob) Description() string {
	return "Writes changed tallies of the open round to the store"
}

// Run executes the job.
func (j *CheckpointTalliesJob) Run(ctx context.Context) error {
	dirty := j.engine.TakeDirty()
	if len(dirty) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if err := j.tallies.Checkpoint(ctx, dirty); err != nil {
		j.engine.MarkDirty(dirty)
		return fmt.Errorf("checkpoint %d tallies: %w", len(dirty), err)
	}
	j.logger.Debug("tallies checkpointed", "count", len(dirty))
	return nil
}
