// Package engine is the FSM core: it owns the in-memory state table,
// validates and applies transitions, runs the refresh/detection pipeline,
// and composes the error tracker, event log, broadcast queue, and
// processing locks into one facade.
//
// An Engine instance is request-scoped: construct, hydrate from the TTL
// store, operate, discard. Durability lives in the backing store, not in
// the process.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/kissplugins/ksbi-state/internal/broadcast"
	"github.com/kissplugins/ksbi-state/internal/detect"
	"github.com/kissplugins/ksbi-state/internal/errtrack"
	"github.com/kissplugins/ksbi-state/internal/eventlog"
	"github.com/kissplugins/ksbi-state/internal/fsm"
	"github.com/kissplugins/ksbi-state/internal/kvstore"
	"github.com/kissplugins/ksbi-state/internal/logfields"
	"github.com/kissplugins/ksbi-state/internal/metrics"
	"github.com/kissplugins/ksbi-state/internal/proclock"
	"github.com/kissplugins/ksbi-state/internal/registry"
	"github.com/kissplugins/ksbi-state/internal/selfprotect"
)

const (
	// StateTableKey is the single TTL-store key holding the persisted
	// state table.
	StateTableKey = "ksbi:states"

	// StateTableTTL bounds how long a persisted table survives without
	// writes. Repositories absent after expiry read as unknown.
	StateTableTTL = 5 * time.Minute
)

// Deps carries the collaborators an Engine composes. Store is required;
// everything else has a working default.
type Deps struct {
	Store        kvstore.Store
	Registry     registry.Registry
	Detector     detect.Service
	Availability detect.AvailabilityCache
	Protect      *selfprotect.Detector
	Publisher    broadcast.Publisher
	Metrics      metrics.Recorder
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// Engine is the state machine facade. Safe for concurrent use within a
// process; cross-process writers coordinate through ProcessingLock.
type Engine struct {
	id string

	mu          sync.RWMutex
	states      map[string]fsm.PluginState
	meta        map[string]map[string]MetaValue
	pluginFiles map[string]string

	store        kvstore.Store
	registry     registry.Registry
	detector     detect.Service
	availability detect.AvailabilityCache
	protect      *selfprotect.Detector

	errors *errtrack.Tracker
	events *eventlog.Log
	queue  *broadcast.Queue
	locks  *proclock.Locks

	metrics metrics.Recorder
	clock   clockwork.Clock
	log     *slog.Logger
}

// New constructs an Engine and hydrates the state table from the store.
// A hydration failure starts the table empty; it never fails construction.
func New(ctx context.Context, deps Deps) *Engine {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Protect == nil {
		deps.Protect = selfprotect.New("")
	}

	events := eventlog.NewWithClock(deps.Store, deps.Clock)
	queue := broadcast.New(deps.Store, deps.Store, events).WithClock(deps.Clock)
	if deps.Publisher != nil {
		queue = queue.WithPublisher(deps.Publisher)
	}

	e := &Engine{
		id:           uuid.NewString(),
		states:       make(map[string]fsm.PluginState),
		meta:         make(map[string]map[string]MetaValue),
		pluginFiles:  make(map[string]string),
		store:        deps.Store,
		registry:     deps.Registry,
		detector:     deps.Detector,
		availability: deps.Availability,
		protect:      deps.Protect,
		errors:       errtrack.NewWithClock(deps.Store, deps.Clock),
		events:       events,
		queue:        queue,
		locks:        proclock.New(deps.Store, events),
		metrics:      deps.Metrics,
		clock:        deps.Clock,
		log:          deps.Logger,
	}
	e.hydrate(ctx)
	return e
}

// ID is the engine instance identifier, used in diagnostic records.
func (e *Engine) ID() string { return e.id }

func (e *Engine) hydrate(ctx context.Context) {
	raw, ok, err := e.store.Get(ctx, StateTableKey)
	if err != nil {
		e.log.Warn("state table hydration failed", logfields.Error(err))
		return
	}
	if !ok {
		return
	}
	var table map[string]string
	if err := json.Unmarshal(raw, &table); err != nil {
		e.log.Warn("state table corrupt, starting empty", logfields.Error(err))
		return
	}
	for repo, raw := range table {
		e.states[repo] = fsm.Parse(raw)
	}
}

// persist writes the full state table back with a fresh TTL. Callers hold
// at least a read lock on e.mu.
func (e *Engine) persist(ctx context.Context) {
	table := make(map[string]string, len(e.states))
	for repo, s := range e.states {
		table[repo] = s.String()
	}
	raw, err := json.Marshal(table)
	if err != nil {
		e.log.Warn("state table marshal failed", logfields.Error(err))
		return
	}
	if err := e.store.Set(ctx, StateTableKey, raw, StateTableTTL); err != nil {
		e.log.Warn("state table persist failed", logfields.Error(err))
	}
}

// GetState returns the repository's current state. A repository the engine
// has never seen triggers a full refresh before answering.
func (e *Engine) GetState(ctx context.Context, repository string) fsm.PluginState {
	e.mu.RLock()
	s, ok := e.states[repository]
	e.mu.RUnlock()
	if ok {
		return s
	}
	return e.RefreshState(ctx, repository)
}

// SetState requests a validated transition. It reports whether the
// transition was applied; a disallowed transition is recorded in the
// event log and rejected without error.
func (e *Engine) SetState(ctx context.Context, repository string, to fsm.PluginState, data map[string]any) bool {
	return e.transition(ctx, repository, to, data, false)
}

// GetBatchStates returns the current table entry for each repository,
// defaulting to unknown, without triggering refreshes.
func (e *Engine) GetBatchStates(_ context.Context, repositories []string) map[string]fsm.PluginState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]fsm.PluginState, len(repositories))
	for _, repo := range repositories {
		if s, ok := e.states[repo]; ok {
			out[repo] = s
		} else {
			out[repo] = fsm.StateUnknown
		}
	}
	return out
}

// GetStatistics counts tracked repositories per state. Every state appears
// in the result, zero-valued when empty, and the per-state gauges are
// updated as a side effect.
func (e *Engine) GetStatistics(_ context.Context) map[fsm.PluginState]int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := make(map[fsm.PluginState]int, len(fsm.States))
	for _, s := range fsm.States {
		stats[s] = 0
	}
	for _, s := range e.states {
		stats[s]++
	}
	for s, n := range stats {
		e.metrics.SetStateCount(s.String(), n)
	}
	return stats
}

// ClearCache wipes the state table, in memory and persisted.
func (e *Engine) ClearCache(ctx context.Context) {
	e.mu.Lock()
	e.states = make(map[string]fsm.PluginState)
	e.mu.Unlock()
	if err := e.store.Delete(ctx, StateTableKey); err != nil {
		e.log.Warn("state table delete failed", logfields.Error(err))
	}
}

// ClearRepositoryCache removes one repository from the state table, in
// memory and persisted.
func (e *Engine) ClearRepositoryCache(ctx context.Context, repository string) {
	e.mu.Lock()
	delete(e.states, repository)
	e.persist(ctx)
	e.mu.Unlock()
}

// GetPluginFile returns the installed plugin file matched for the
// repository, consulting the registry when nothing is cached yet.
func (e *Engine) GetPluginFile(ctx context.Context, repository string) (string, bool) {
	e.mu.RLock()
	file, ok := e.pluginFiles[repository]
	e.mu.RUnlock()
	if ok {
		return file, true
	}
	file, _, matched := e.matchInstalled(ctx, repository)
	if !matched {
		return "", false
	}
	e.mu.Lock()
	e.pluginFiles[repository] = file
	e.mu.Unlock()
	return file, true
}

// IsInstalled reports whether the repository's current state is one of the
// installed states.
func (e *Engine) IsInstalled(ctx context.Context, repository string) bool {
	return e.GetState(ctx, repository).Installed()
}

// IsActive reports whether the repository's current state is installed and
// active.
func (e *Engine) IsActive(ctx context.Context, repository string) bool {
	return e.GetState(ctx, repository) == fsm.StateInstalledActive
}

// AcquireProcessingLock takes the repository's advisory lock. A
// non-positive ttl uses the default.
func (e *Engine) AcquireProcessingLock(ctx context.Context, repository string, ttl time.Duration) bool {
	return e.locks.Acquire(ctx, repository, ttl)
}

// ReleaseProcessingLock drops the repository's advisory lock. Safe to call
// when no lock is held.
func (e *Engine) ReleaseProcessingLock(ctx context.Context, repository string) {
	e.locks.Release(ctx, repository)
}

// GetEvents returns the repository's most recent event log entries, oldest
// first. A non-positive limit uses the default.
func (e *Engine) GetEvents(ctx context.Context, repository string, limit int) []eventlog.Entry {
	return e.events.Events(ctx, repository, limit)
}

// Broadcast enqueues a notification on the global queue.
func (e *Engine) Broadcast(ctx context.Context, name string, payload map[string]any) broadcast.Entry {
	entry := e.queue.Broadcast(ctx, name, payload)
	e.metrics.RecordBroadcast()
	return entry
}

// GetBroadcastEventsSince returns queue entries with id greater than
// lastID, in ascending id order. An expired queue reads as empty.
func (e *Engine) GetBroadcastEventsSince(ctx context.Context, lastID int64) []broadcast.Entry {
	return e.queue.EventsSince(ctx, lastID)
}

// IncrementRetryCount bumps the repository's persisted retry counter and
// returns the new count. Callers invoke this around their own retry loops.
func (e *Engine) IncrementRetryCount(ctx context.Context, repository string) int {
	return e.errors.IncrementRetry(ctx, repository)
}

// GetErrorContext returns the repository's persisted error record, if any.
func (e *Engine) GetErrorContext(ctx context.Context, repository string) (errtrack.ErrorContext, bool) {
	return e.errors.Get(ctx, repository)
}
