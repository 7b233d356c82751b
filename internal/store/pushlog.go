// pushlog.go - audit log of push delivery attempts.

package store

import (
	"context"

	"github.com/google/uuid"
)

// AppendPushLog records one push delivery attempt. Logging failures are
// returned to the caller but the dispatcher treats them as non-fatal.
func (s *Store) AppendPushLog(ctx context.Context, entry PushLogEntry) error {
	query, args, err := psql.Insert("push_log").
		Columns("id", "serial_number", "push_token", "outcome", "detail").
		Values(uuid.New(), entry.SerialNumber, entry.PushToken, string(entry.Outcome), entry.Detail).
		ToSql()
	if err != nil {
		return WrapInternalError(err, "failed to build push log insert")
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return WrapInternalError(err, "failed to append push log entry")
	}
	return nil
}
