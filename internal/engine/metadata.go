package engine

import (
	"context"
	"time"
)

// MetaKind discriminates the value held in a MetaValue.
type MetaKind int

const (
	MetaBool MetaKind = iota
	MetaString
	MetaInt
	MetaTime
)

// MetaValue is a tagged union of the primitive types the metadata bag
// carries. In-memory only, never persisted.
type MetaValue struct {
	Kind MetaKind
	Bool bool
	Str  string
	Int  int64
	Time time.Time
}

// BoolValue wraps a bool.
func BoolValue(v bool) MetaValue { return MetaValue{Kind: MetaBool, Bool: v} }

// StringValue wraps a string.
func StringValue(v string) MetaValue { return MetaValue{Kind: MetaString, Str: v} }

// IntValue wraps an integer.
func IntValue(v int64) MetaValue { return MetaValue{Kind: MetaInt, Int: v} }

// TimeValue wraps a timestamp.
func TimeValue(v time.Time) MetaValue { return MetaValue{Kind: MetaTime, Time: v} }

// Metadata keys written by the refresh pipeline.
const (
	MetaKeySelfProtected    = "self_protected"
	MetaKeyProtectionReason = "protection_reason"
	MetaKeyDetectedAt       = "detected_at"
)

// SetStateMetadata merges the given attributes into the repository's
// metadata bag. Existing keys not present in attrs are kept.
func (e *Engine) SetStateMetadata(_ context.Context, repository string, attrs map[string]MetaValue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bag := e.meta[repository]
	if bag == nil {
		bag = make(map[string]MetaValue, len(attrs))
		e.meta[repository] = bag
	}
	for k, v := range attrs {
		bag[k] = v
	}
}

// GetStateMetadata returns a copy of the repository's metadata bag. An
// untracked repository yields an empty map.
func (e *Engine) GetStateMetadata(_ context.Context, repository string) map[string]MetaValue {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bag := e.meta[repository]
	out := make(map[string]MetaValue, len(bag))
	for k, v := range bag {
		out[k] = v
	}
	return out
}

// IsSelfProtected reports whether the refresh pipeline flagged the
// repository as the managing system itself. A missing key means not
// protected, never unknown.
func (e *Engine) IsSelfProtected(_ context.Context, repository string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.meta[repository][MetaKeySelfProtected]
	return ok && v.Kind == MetaBool && v.Bool
}
