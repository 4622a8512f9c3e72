// Package errtrack persists structured error metadata and retry counts for
// repositories that have entered the error state, so operators and bulk
// workflows can inspect and recover them later.
package errtrack

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kissplugins/ksbi-state/internal/kvstore"
	"github.com/kissplugins/ksbi-state/internal/logfields"
)

// TTL is how long an error context survives without updates.
const TTL = 24 * time.Hour

const keyPrefix = "ksbi:error:"

// ErrorContext is the per-repository error record. Created on entry to the
// error state, updated on each retry, cleared on recovery.
type ErrorContext struct {
	Timestamp   time.Time  `json:"timestamp"`
	Message     string     `json:"message"`
	Source      string     `json:"source"`
	Recoverable bool       `json:"recoverable"`
	RetryCount  int        `json:"retry_count"`
	LastRetryAt *time.Time `json:"last_retry_at,omitempty"`
}

// Tracker stores error contexts in the TTL store.
type Tracker struct {
	store kvstore.TTLStore
	clock clockwork.Clock
}

// New creates a Tracker over the given store.
func New(store kvstore.TTLStore) *Tracker {
	return NewWithClock(store, clockwork.NewRealClock())
}

// NewWithClock creates a Tracker with an injectable clock for tests.
func NewWithClock(store kvstore.TTLStore, clock clockwork.Clock) *Tracker {
	return &Tracker{store: store, clock: clock}
}

// Record persists the error context for a repository, preserving any retry
// count already accumulated for it.
func (t *Tracker) Record(ctx context.Context, repository string, ec ErrorContext) {
	if prev, ok := t.Get(ctx, repository); ok {
		ec.RetryCount = prev.RetryCount
		ec.LastRetryAt = prev.LastRetryAt
	}
	if ec.Timestamp.IsZero() {
		ec.Timestamp = t.clock.Now().UTC()
	}
	t.write(ctx, repository, ec)
}

// Get returns the stored error context, or ok=false if absent, expired, or
// corrupt. Absence is the normal case for healthy repositories.
func (t *Tracker) Get(ctx context.Context, repository string) (ErrorContext, bool) {
	raw, ok, err := t.store.Get(ctx, keyPrefix+repository)
	if err != nil || !ok {
		return ErrorContext{}, false
	}
	var ec ErrorContext
	if err := json.Unmarshal(raw, &ec); err != nil {
		slog.Debug("error context corrupt", logfields.Repository(repository), logfields.Error(err))
		return ErrorContext{}, false
	}
	return ec, true
}

// Clear removes the error context after a successful recovery, resetting the
// retry account to zero for any future failure.
func (t *Tracker) Clear(ctx context.Context, repository string) {
	if err := t.store.Delete(ctx, keyPrefix+repository); err != nil {
		slog.Warn("error context delete failed", logfields.Repository(repository), logfields.Error(err))
	}
}

// IncrementRetry bumps the retry count, stamps the retry time, persists, and
// returns the new count. Callers invoke this explicitly around retry loops;
// transitions never do it implicitly.
func (t *Tracker) IncrementRetry(ctx context.Context, repository string) int {
	ec, ok := t.Get(ctx, repository)
	if !ok {
		ec = ErrorContext{
			Timestamp:   t.clock.Now().UTC(),
			Message:     "Unknown error",
			Source:      "unknown",
			Recoverable: true,
		}
	}
	ec.RetryCount++
	now := t.clock.Now().UTC()
	ec.LastRetryAt = &now
	t.write(ctx, repository, ec)
	return ec.RetryCount
}

func (t *Tracker) write(ctx context.Context, repository string, ec ErrorContext) {
	payload, err := json.Marshal(ec)
	if err != nil {
		slog.Warn("error context marshal failed", logfields.Repository(repository), logfields.Error(err))
		return
	}
	if err := t.store.Set(ctx, keyPrefix+repository, payload, TTL); err != nil {
		slog.Warn("error context write failed", logfields.Repository(repository), logfields.Error(err))
	}
}
