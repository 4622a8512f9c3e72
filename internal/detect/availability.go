package detect

import (
	"context"
	"log/slog"
	"time"

	"github.com/kissplugins/ksbi-state/internal/kvstore"
)

const availabilityPrefix = "ksbi:availability:"

// CachedAvailability is the fast heuristic cache backed by the TTL store.
// Discovery workflows mark slugs known to be installable; the refresh
// pipeline consults it before re-running a full scan.
type CachedAvailability struct {
	store kvstore.TTLStore
}

// NewCachedAvailability creates the cache over the given store.
func NewCachedAvailability(store kvstore.TTLStore) *CachedAvailability {
	return &CachedAvailability{store: store}
}

// Contains reports whether the slug was marked available and has not
// expired. Storage failure reads as "not cached".
func (c *CachedAvailability) Contains(ctx context.Context, slug string) bool {
	if slug == "" {
		return false
	}
	_, ok, err := c.store.Get(ctx, availabilityPrefix+slug)
	if err != nil {
		slog.Debug("availability cache read failed", "slug", slug, "error", err)
		return false
	}
	return ok
}

// Mark records the slug as available for the given TTL.
func (c *CachedAvailability) Mark(ctx context.Context, slug string, ttl time.Duration) {
	if slug == "" {
		return
	}
	if err := c.store.Set(ctx, availabilityPrefix+slug, []byte("1"), ttl); err != nil {
		slog.Warn("availability cache write failed", "slug", slug, "error", err)
	}
}
