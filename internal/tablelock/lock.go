package tablelock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"counter-system/internal/logger"
)

// ErrDenied means another live session holds the table.
var ErrDenied = fmt.Errorf("table held by another session")

// Settings is the generic key/value store backing the lock records.
type Settings interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// record is the JSON value stored under the lock key.
type record struct {
	SID string `json:"sid"`
	TS  int64  `json:"ts"` // unix milliseconds
}

// Locker is a TTL-based mutual exclusion over the settings store: ownership
// is established by writing {sid, ts} and kept alive by heartbeat rewrites.
// A record older than TTL is expired and may be reclaimed, so a crashed
// terminal self-heals without an explicit unlock.
type Locker struct {
	settings Settings
	ttl      time.Duration
	lg       *logger.Logger
	now      func() time.Time
}

func NewLocker(settings Settings, ttl time.Duration, lg *logger.Logger) *Locker {
	return &Locker{settings: settings, ttl: ttl, lg: lg, now: time.Now}
}

func key(tableID string) string { return "table_lock_" + tableID }

// TryAcquire grants the lock when the table is free, the current record is
// stale, or the record already belongs to sessionID. Any store error is
// treated as "assume locked": on a flaky connection two terminals must not
// both write the same table.
func (l *Locker) TryAcquire(ctx context.Context, tableID, sessionID string) error {
	raw, found, err := l.settings.Get(ctx, key(tableID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDenied, err)
	}
	if found && raw != "" {
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err == nil {
			age := l.now().Sub(time.UnixMilli(rec.TS))
			if rec.SID != sessionID && age < l.ttl {
				return ErrDenied
			}
		}
		// unparseable record counts as stale and is overwritten
	}
	if err := l.write(ctx, tableID, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrDenied, err)
	}
	return nil
}

// Heartbeat rewrites the lock on the given interval until ctx is canceled.
// The interval must be shorter than the TTL; config enforces that.
func (l *Locker) Heartbeat(ctx context.Context, tableID, sessionID string, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := l.write(ctx, tableID, sessionID); err != nil {
				l.lg.Warn("lock_heartbeat_failed", err, map[string]any{"table": tableID})
			}
		}
	}
}

// Release clears the record so another session can take the table without
// waiting out the TTL. Best-effort: expiry makes it correct regardless.
func (l *Locker) Release(ctx context.Context, tableID string) {
	if err := l.settings.Set(ctx, key(tableID), ""); err != nil {
		l.lg.Warn("lock_release_failed", err, map[string]any{"table": tableID})
	}
}

func (l *Locker) write(ctx context.Context, tableID, sessionID string) error {
	b, _ := json.Marshal(record{SID: sessionID, TS: l.now().UnixMilli()})
	return l.settings.Set(ctx, key(tableID), string(b))
}
