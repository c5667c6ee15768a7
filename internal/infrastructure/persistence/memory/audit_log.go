package memory

import (
	"context"
	"sync"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// AuditLog implements league.AuditLog, keeping the newest entries per participant.
type AuditLog struct {
	mu      sync.Mutex
	depth   int
	entries map[shared.ParticipantID][]league.AuditEntry
}

// NewAuditLog creates an audit log that keeps depth entries per participant.
func NewAuditLog(depth int) *AuditLog {
	if depth <= 0 {
		depth = 3
	}
	return &AuditLog{depth: depth, entries: make(map[shared.ParticipantID][]league.AuditEntry)}
}

// Record implements league.AuditLog.
func (a *AuditLog) Record(_ context.Context, id shared.ParticipantID, entry league.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := append([]league.AuditEntry{entry}, a.entries[id]...)
	if len(list) > a.depth {
		list = list[:a.depth]
	}
	a.entries[id] = list
	return nil
}

// Recent implements league.AuditLog. Entries are newest first.
func (a *AuditLog) Recent(_ context.Context, id shared.ParticipantID, n int) ([]league.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := a.entries[id]
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	out := make([]league.AuditEntry, len(list))
	copy(out, list)
	return out, nil
}
