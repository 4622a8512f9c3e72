// Package eventlog keeps a bounded, TTL-expiring history of state machine
// events per tracked repository. The log is append-only from the engine's
// perspective; the oldest entries fall off once the cap is reached.
package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kissplugins/ksbi-state/internal/kvstore"
	"github.com/kissplugins/ksbi-state/internal/logfields"
)

const (
	// MaxEntries is the per-repository cap; oldest entries drop first.
	MaxEntries = 30

	// TTL is how long a repository's log survives without writes.
	TTL = 24 * time.Hour

	// DefaultLimit is how many entries Events returns when the caller
	// passes a non-positive limit.
	DefaultLimit = 10

	keyPrefix = "ksbi:events:"
)

// Entry is a single logged event. Never mutated after append.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Name      string         `json:"event_name"`
	Data      map[string]any `json:"data,omitempty"`
}

// Log appends and reads per-repository event histories backed by a TTL store.
type Log struct {
	store kvstore.TTLStore
	clock clockwork.Clock
}

// New creates a Log over the given TTL store.
func New(store kvstore.TTLStore) *Log {
	return NewWithClock(store, clockwork.NewRealClock())
}

// NewWithClock creates a Log with an injectable clock for tests.
func NewWithClock(store kvstore.TTLStore, clock clockwork.Clock) *Log {
	return &Log{store: store, clock: clock}
}

// Append reads the repository's sequence, appends one entry, truncates to the
// newest MaxEntries in insertion order, and writes the sequence back with a
// fresh TTL. Storage failures are logged and swallowed: the event log is an
// audit trail, not a correctness dependency.
func (l *Log) Append(ctx context.Context, repository, name string, data map[string]any) {
	entries := l.read(ctx, repository)
	entries = append(entries, Entry{
		Timestamp: l.clock.Now().UTC(),
		Name:      name,
		Data:      data,
	})
	if len(entries) > MaxEntries {
		entries = entries[len(entries)-MaxEntries:]
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		slog.Warn("event log marshal failed", logfields.Repository(repository), logfields.Error(err))
		return
	}
	if err := l.store.Set(ctx, keyPrefix+repository, payload, TTL); err != nil {
		slog.Warn("event log write failed", logfields.Repository(repository), logfields.Error(err))
	}
}

// Events returns the newest `limit` entries for the repository, oldest first.
// A non-positive limit means DefaultLimit. Absent or corrupt storage yields
// an empty slice.
func (l *Log) Events(ctx context.Context, repository string, limit int) []Entry {
	if limit <= 0 {
		limit = DefaultLimit
	}
	entries := l.read(ctx, repository)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

func (l *Log) read(ctx context.Context, repository string) []Entry {
	payload, ok, err := l.store.Get(ctx, keyPrefix+repository)
	if err != nil {
		slog.Debug("event log read failed", logfields.Repository(repository), logfields.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		// Corrupt history degrades to empty rather than blocking appends.
		slog.Debug("event log corrupt, starting fresh", logfields.Repository(repository), logfields.Error(err))
		return nil
	}
	return entries
}
