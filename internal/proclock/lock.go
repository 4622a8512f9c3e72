// Package proclock provides TTL-based advisory mutual exclusion per
// repository. The lock coordinates external bulk-operation callers; the
// state engine itself never consults it.
package proclock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kissplugins/ksbi-state/internal/eventlog"
	"github.com/kissplugins/ksbi-state/internal/kvstore"
	"github.com/kissplugins/ksbi-state/internal/logfields"
)

// DefaultTTL is used when callers pass a non-positive TTL.
const DefaultTTL = 60 * time.Second

const keyPrefix = "ksbi:lock:"

// Locks manages advisory processing locks in the TTL store. Only key
// presence matters; the stored token identifies the acquiring caller in
// diagnostics.
type Locks struct {
	store  kvstore.TTLStore
	events *eventlog.Log
}

// New creates a Locks manager. events may be nil.
func New(store kvstore.TTLStore, events *eventlog.Log) *Locks {
	return &Locks{store: store, events: events}
}

// Acquire takes the lock for a repository. It fails (returns false, no state
// change) if the lock key already exists and has not expired.
func (l *Locks) Acquire(ctx context.Context, repository string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if _, held, err := l.store.Get(ctx, keyPrefix+repository); err != nil || held {
		if err != nil {
			slog.Warn("lock read failed, refusing acquire", logfields.Repository(repository), logfields.Error(err))
		}
		return false
	}

	token := uuid.NewString()
	if err := l.store.Set(ctx, keyPrefix+repository, []byte(token), ttl); err != nil {
		slog.Warn("lock write failed", logfields.Repository(repository), logfields.Error(err))
		return false
	}

	if l.events != nil {
		l.events.Append(ctx, repository, "lock_acquired", map[string]any{
			"token":       token,
			"ttl_seconds": int(ttl.Seconds()),
		})
	}
	slog.Debug("processing lock acquired", logfields.Repository(repository))
	return true
}

// Release deletes the lock key unconditionally. Releasing an absent lock is
// safe and still logged, so callers can release in deferred cleanup paths.
func (l *Locks) Release(ctx context.Context, repository string) {
	if err := l.store.Delete(ctx, keyPrefix+repository); err != nil {
		slog.Warn("lock delete failed", logfields.Repository(repository), logfields.Error(err))
		return
	}
	if l.events != nil {
		l.events.Append(ctx, repository, "lock_released", nil)
	}
	slog.Debug("processing lock released", logfields.Repository(repository))
}

// Held reports whether the repository currently has an unexpired lock.
func (l *Locks) Held(ctx context.Context, repository string) bool {
	_, held, err := l.store.Get(ctx, keyPrefix+repository)
	return err == nil && held
}
