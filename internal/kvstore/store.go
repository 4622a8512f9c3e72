// Package kvstore defines the storage contracts the state engine depends on:
// a TTL-expiring key-value store and a durable option store whose values
// survive cache resets. Values are opaque byte payloads; callers marshal.
package kvstore

import (
	"context"
	"time"
)

// TTLStore is key-value storage with per-key expiration. Reads of absent or
// expired keys return ok=false, never an error the engine must handle as
// fatal; implementations reserve the error return for infrastructure faults.
type TTLStore interface {
	// Get returns the value for key, or ok=false if absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key with the given TTL. A non-positive TTL
	// stores the value without expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// OptionStore is a key-value store without automatic expiration, used for
// durable values such as the broadcast sequence counter. Option values
// persist across restarts and cache resets.
type OptionStore interface {
	// GetOption returns the stored value, or ok=false if the key was never set.
	GetOption(ctx context.Context, key string) (value []byte, ok bool, err error)

	// SetOption stores value under key with no expiration.
	SetOption(ctx context.Context, key string, value []byte) error
}

// Store combines both storage contracts; the SQLite and memory adapters
// implement it over a single backing instance.
type Store interface {
	TTLStore
	OptionStore
}
