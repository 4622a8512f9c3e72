package engine

import (
	"context"
	"log/slog"

	"github.com/kissplugins/ksbi-state/internal/errtrack"
	"github.com/kissplugins/ksbi-state/internal/fsm"
	"github.com/kissplugins/ksbi-state/internal/logfields"
)

// Event names appended to the per-repository event log.
const (
	EventTransition        = "transition"
	EventTransitionBlocked = "transition_blocked"
	EventErrorOccurred     = "error_occurred"
	EventErrorRecovered    = "error_recovered"

	// EventStateChanged is the broadcast queue event name.
	EventStateChanged = "state_changed"
)

// transition resolves the current state, validates unless forced, runs
// error entry/recovery handling, and applies the change. The side-effect
// order is fixed: error handling, state write, table persist, event log,
// broadcast. A disallowed unforced transition appends one
// transition_blocked entry and changes nothing else.
func (e *Engine) transition(ctx context.Context, repository string, to fsm.PluginState, data map[string]any, force bool) bool {
	e.mu.Lock()
	from, ok := e.states[repository]
	if !ok {
		from = fsm.StateUnknown
	}

	if !force && !fsm.Allowed(from, to) {
		e.mu.Unlock()
		e.events.Append(ctx, repository, EventTransitionBlocked, map[string]any{
			"from":    from.String(),
			"to":      to.String(),
			"context": data,
		})
		e.metrics.RecordBlockedTransition(from.String(), to.String())
		e.log.Debug("transition blocked",
			logfields.Repository(repository),
			logfields.FromState(from.String()),
			logfields.ToState(to.String()))
		return false
	}
	e.mu.Unlock()

	if to == fsm.StateError {
		e.enterError(ctx, repository, data)
	}
	if from == fsm.StateError && to != fsm.StateError {
		e.recoverError(ctx, repository, to, data)
	}

	e.mu.Lock()
	e.states[repository] = to
	e.persist(ctx)
	e.mu.Unlock()

	e.events.Append(ctx, repository, EventTransition, map[string]any{
		"from":    from.String(),
		"to":      to.String(),
		"context": data,
	})

	e.Broadcast(ctx, EventStateChanged, map[string]any{
		"repository": repository,
		"from":       from.String(),
		"to":         to.String(),
		"context":    data,
		"ts":         e.clock.Now().UTC(),
	})

	e.metrics.RecordTransition(from.String(), to.String())
	e.log.Info("state transition",
		logfields.Repository(repository),
		logfields.FromState(from.String()),
		logfields.ToState(to.String()))
	return true
}

// enterError builds and persists the error context before the error state
// is applied, then appends an error_occurred entry.
func (e *Engine) enterError(ctx context.Context, repository string, data map[string]any) {
	message := "Unknown error"
	if m, ok := stringField(data, "error"); ok {
		message = m
	} else if m, ok := stringField(data, "message"); ok {
		message = m
	}
	source := "unknown"
	if s, ok := stringField(data, "source"); ok {
		source = s
	}
	recoverable := true
	if r, ok := data["recoverable"].(bool); ok {
		recoverable = r
	}

	ec := errtrack.ErrorContext{
		Timestamp:   e.clock.Now().UTC(),
		Message:     message,
		Source:      source,
		Recoverable: recoverable,
	}
	e.errors.Record(ctx, repository, ec)
	stored, _ := e.errors.Get(ctx, repository)

	e.events.Append(ctx, repository, EventErrorOccurred, map[string]any{
		"message":     message,
		"source":      source,
		"recoverable": recoverable,
		"retry_count": stored.RetryCount,
	})
	e.log.Warn("repository entered error state",
		logfields.Repository(repository),
		logfields.Source(source),
		slog.String("message", message))
}

// recoverError appends an error_recovered entry carrying the previous
// error, then clears the stored context so retry accounting restarts.
func (e *Engine) recoverError(ctx context.Context, repository string, to fsm.PluginState, data map[string]any) {
	prev, had := e.errors.Get(ctx, repository)

	source := "unknown"
	if s, ok := stringField(data, "source"); ok {
		source = s
	}
	entry := map[string]any{
		"recovered_to":    to.String(),
		"recovery_source": source,
	}
	if had {
		entry["previous_error"] = prev.Message
		entry["retry_count"] = prev.RetryCount
	}
	e.events.Append(ctx, repository, EventErrorRecovered, entry)
	e.errors.Clear(ctx, repository)
	e.log.Info("repository recovered from error state",
		logfields.Repository(repository),
		logfields.ToState(to.String()),
		logfields.Retries(prev.RetryCount))
}

func stringField(data map[string]any, key string) (string, bool) {
	if data == nil {
		return "", false
	}
	s, ok := data[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
