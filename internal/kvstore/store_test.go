package kvstore

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()

	if err := store.Set(ctx, "k", []byte(`{"a":1}`), time.Minute); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	value, ok, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !ok {
		t.Fatal("expected key to be present")
	}
	if string(value) != `{"a":1}` {
		t.Errorf("unexpected value: %s", value)
	}
}

func TestSQLiteStoreAbsentKey(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	_, ok, err := store.Get(t.Context(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected absent key")
	}
}

func TestSQLiteStoreDeleteIdempotent(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	if err := store.Delete(ctx, "never-set"); err != nil {
		t.Fatalf("delete of absent key should not error: %v", err)
	}
	if err := store.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("expected key to be gone")
	}
}

func TestSQLiteStoreOptionsSurviveTTLWipe(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	if err := store.SetOption(ctx, "seq", []byte("41")); err != nil {
		t.Fatalf("failed to set option: %v", err)
	}
	if _, err := store.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	value, ok, err := store.GetOption(ctx, "seq")
	if err != nil {
		t.Fatalf("failed to get option: %v", err)
	}
	if !ok || string(value) != "41" {
		t.Fatalf("expected option to survive, got ok=%v value=%s", ok, value)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryStoreWithClock(clock)
	ctx := t.Context()

	if err := store.Set(ctx, "k", []byte("v"), 5*time.Minute); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	if _, ok, _ := store.Get(ctx, "k"); !ok {
		t.Fatal("expected key before expiry")
	}

	clock.Advance(5*time.Minute + time.Second)

	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("expected key to expire")
	}
}

func TestMemoryStoreNoTTLNeverExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryStoreWithClock(clock)
	ctx := t.Context()

	if err := store.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	clock.Advance(1000 * time.Hour)
	if _, ok, _ := store.Get(ctx, "k"); !ok {
		t.Fatal("expected non-TTL key to persist")
	}
}

func TestMemoryStoreOptionsSurviveClear(t *testing.T) {
	store := NewMemoryStore()
	ctx := t.Context()

	if err := store.SetOption(ctx, "seq", []byte("7")); err != nil {
		t.Fatalf("failed to set option: %v", err)
	}
	if err := store.Set(ctx, "cache", []byte("x"), time.Hour); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	store.ClearExpirable()

	if _, ok, _ := store.Get(ctx, "cache"); ok {
		t.Fatal("expected cache entry to be cleared")
	}
	value, ok, _ := store.GetOption(ctx, "seq")
	if !ok || string(value) != "7" {
		t.Fatalf("expected option to survive clear, got ok=%v value=%s", ok, value)
	}
}
