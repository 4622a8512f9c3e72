// Package broadcast maintains the single global, size-bounded queue of
// state-change notifications that live-update consumers poll incrementally.
// Entry ids come from a durable counter that outlives the queue's own TTL, so
// ids keep increasing even after the ring has expired and restarted empty.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kissplugins/ksbi-state/internal/eventlog"
	"github.com/kissplugins/ksbi-state/internal/kvstore"
	"github.com/kissplugins/ksbi-state/internal/logfields"
)

const (
	// MaxEntries caps the global ring; oldest entries drop first.
	MaxEntries = 100

	// TTL is how long the ring survives without writes.
	TTL = 24 * time.Hour

	queueKey   = "ksbi:broadcast:queue"
	counterKey = "ksbi:broadcast:seq"
)

// Entry is one broadcast notification.
type Entry struct {
	ID        int64          `json:"id"`
	Name      string         `json:"event_name"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher pushes broadcast entries to an external transport. Delivery is
// best-effort; the queue itself remains the polling contract.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}

// Queue is the global broadcast ring buffer.
type Queue struct {
	ttl       kvstore.TTLStore
	options   kvstore.OptionStore
	events    *eventlog.Log
	publisher Publisher
	clock     clockwork.Clock
}

// New creates a Queue. events receives a mirrored per-repository log entry
// for every broadcast; publisher may be nil.
func New(ttl kvstore.TTLStore, options kvstore.OptionStore, events *eventlog.Log) *Queue {
	return &Queue{
		ttl:     ttl,
		options: options,
		events:  events,
		clock:   clockwork.NewRealClock(),
	}
}

// WithPublisher attaches an external fan-out transport.
func (q *Queue) WithPublisher(p Publisher) *Queue {
	q.publisher = p
	return q
}

// WithClock overrides the clock, for tests.
func (q *Queue) WithClock(clock clockwork.Clock) *Queue {
	q.clock = clock
	return q
}

// Broadcast assigns the next durable id, appends the entry to the global
// ring (truncated to MaxEntries), and mirrors it into the emitting
// repository's event log. The repository is taken from payload["repository"],
// defaulting to "unknown".
func (q *Queue) Broadcast(ctx context.Context, name string, payload map[string]any) Entry {
	repository := "unknown"
	if r, ok := payload["repository"].(string); ok && r != "" {
		repository = r
	}
	if q.events != nil {
		q.events.Append(ctx, repository, name, payload)
	}

	entry := Entry{
		ID:        q.nextID(ctx),
		Name:      name,
		Payload:   payload,
		Timestamp: q.clock.Now().UTC(),
	}

	entries := q.read(ctx)
	entries = append(entries, entry)
	if len(entries) > MaxEntries {
		entries = entries[len(entries)-MaxEntries:]
	}
	if data, err := json.Marshal(entries); err == nil {
		if err := q.ttl.Set(ctx, queueKey, data, TTL); err != nil {
			slog.Warn("broadcast queue write failed", logfields.Error(err))
		}
	}

	if q.publisher != nil {
		if err := q.publisher.Publish(ctx, entry); err != nil {
			slog.Warn("broadcast publish failed",
				logfields.BroadcastID(entry.ID), logfields.Error(err))
		}
	}

	return entry
}

// EventsSince returns the entries with id > lastID in ascending id order.
// An absent or expired ring yields an empty slice: consumers treat that as
// "nothing new", and must tolerate ids jumping after the ring expired while
// the counter kept advancing.
func (q *Queue) EventsSince(ctx context.Context, lastID int64) []Entry {
	entries := q.read(ctx)
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID > lastID {
			out = append(out, e)
		}
	}
	return out
}

// nextID reads, increments, and writes back the durable counter. The counter
// never lives in TTL storage: ids must not reset on cache expiry.
func (q *Queue) nextID(ctx context.Context) int64 {
	var current int64
	if raw, ok, err := q.options.GetOption(ctx, counterKey); err == nil && ok {
		if parsed, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil {
			current = parsed
		}
	}
	next := current + 1
	if err := q.options.SetOption(ctx, counterKey, []byte(strconv.FormatInt(next, 10))); err != nil {
		slog.Warn("broadcast counter write failed", logfields.Error(err))
	}
	return next
}

func (q *Queue) read(ctx context.Context) []Entry {
	raw, ok, err := q.ttl.Get(ctx, queueKey)
	if err != nil || !ok {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		slog.Debug("broadcast queue corrupt, starting fresh", logfields.Error(err))
		return nil
	}
	return entries
}
