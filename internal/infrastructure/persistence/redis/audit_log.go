package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
)

// auditTTL drops the trail of participants who stopped posting.
const auditTTL = 30 * 24 * time.Hour

// AuditLog implements league.AuditLog with one capped list per participant.
type AuditLog struct {
	rdb   *redis.Client
	keys  keys
	depth int
}

// NewAuditLog creates an AuditLog keeping depth entries per participant.
func NewAuditLog(client *Client, depth int) *AuditLog {
	if depth <= 0 {
		depth = 3
	}
	return &AuditLog{rdb: client.rdb, keys: client.keys, depth: depth}
}

// Record implements league.AuditLog.
func (a *AuditLog) Record(ctx context.Context, id shared.ParticipantID, entry league.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	key := a.keys.audit(id.String())
	_, err = a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(a.depth-1))
		pipe.Expire(ctx, key, auditTTL)
		return nil
	})
	if err != nil {
		return shared.WrapError("audit", "Record", shared.ErrPersistenceTimeout, "audit write failed", err)
	}
	return nil
}

// Recent implements league.AuditLog. Entries are newest first.
func (a *AuditLog) Recent(ctx context.Context, id shared.ParticipantID, n int) ([]league.AuditEntry, error) {
	if n <= 0 || n > a.depth {
		n = a.depth
	}
	raw, err := a.rdb.LRange(ctx, a.keys.audit(id.String()), 0, int64(n-1)).Result()
	if err != nil {
		return nil, shared.WrapError("audit", "Recent", shared.ErrPersistenceTimeout, "audit read failed", err)
	}

	entries := make([]league.AuditEntry, 0, len(raw))
	for _, item := range raw {
		var e league.AuditEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

var _ league.AuditLog = (*AuditLog)(nil)
