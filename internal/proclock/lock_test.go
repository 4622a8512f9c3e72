package proclock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kissplugins/ksbi-state/internal/eventlog"
	"github.com/kissplugins/ksbi-state/internal/kvstore"
)

func TestAcquireThenAcquireFails(t *testing.T) {
	store := kvstore.NewMemoryStore()
	locks := New(store, nil)
	ctx := t.Context()

	assert.True(t, locks.Acquire(ctx, "acme/thing", time.Minute))
	assert.False(t, locks.Acquire(ctx, "acme/thing", time.Minute))
}

func TestAcquireAfterExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := kvstore.NewMemoryStoreWithClock(clock)
	locks := New(store, nil)
	ctx := t.Context()

	require.True(t, locks.Acquire(ctx, "acme/thing", 30*time.Second))
	clock.Advance(31 * time.Second)
	assert.True(t, locks.Acquire(ctx, "acme/thing", 30*time.Second))
}

func TestReleaseIsIdempotent(t *testing.T) {
	store := kvstore.NewMemoryStore()
	locks := New(store, nil)
	ctx := t.Context()

	// Releasing a lock that was never held must not panic or error.
	locks.Release(ctx, "acme/thing")

	require.True(t, locks.Acquire(ctx, "acme/thing", time.Minute))
	locks.Release(ctx, "acme/thing")
	locks.Release(ctx, "acme/thing")

	assert.True(t, locks.Acquire(ctx, "acme/thing", time.Minute))
}

func TestLocksAreIsolatedPerRepository(t *testing.T) {
	store := kvstore.NewMemoryStore()
	locks := New(store, nil)
	ctx := t.Context()

	assert.True(t, locks.Acquire(ctx, "acme/a", time.Minute))
	assert.True(t, locks.Acquire(ctx, "acme/b", time.Minute))
	assert.True(t, locks.Held(ctx, "acme/a"))

	locks.Release(ctx, "acme/a")
	assert.False(t, locks.Held(ctx, "acme/a"))
	assert.True(t, locks.Held(ctx, "acme/b"))
}

func TestDefaultTTLApplied(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := kvstore.NewMemoryStoreWithClock(clock)
	locks := New(store, nil)
	ctx := t.Context()

	require.True(t, locks.Acquire(ctx, "acme/thing", 0))
	clock.Advance(DefaultTTL - time.Second)
	assert.True(t, locks.Held(ctx, "acme/thing"))
	clock.Advance(2 * time.Second)
	assert.False(t, locks.Held(ctx, "acme/thing"))
}

func TestLockEventsLogged(t *testing.T) {
	store := kvstore.NewMemoryStore()
	events := eventlog.New(store)
	locks := New(store, events)
	ctx := t.Context()

	locks.Acquire(ctx, "acme/thing", time.Minute)
	locks.Release(ctx, "acme/thing")

	logged := events.Events(ctx, "acme/thing", 10)
	require.Len(t, logged, 2)
	assert.Equal(t, "lock_acquired", logged[0].Name)
	assert.Equal(t, "lock_released", logged[1].Name)
}
