package engine

import (
	"context"
	"path"
	"strings"

	"github.com/kissplugins/ksbi-state/internal/detect"
	"github.com/kissplugins/ksbi-state/internal/fsm"
	"github.com/kissplugins/ksbi-state/internal/logfields"
	"github.com/kissplugins/ksbi-state/internal/slug"
)

// refreshSource tags the transition context of refresh-driven transitions.
const refreshSource = "refresh_state"

// RefreshState determines the repository's state from first principles:
// registry match, then detection, then the availability cache fallback.
// Both hops are forced because detection may legitimately move a
// repository from any state to any other.
func (e *Engine) RefreshState(ctx context.Context, repository string) fsm.PluginState {
	e.transition(ctx, repository, fsm.StateChecking, map[string]any{"source": refreshSource}, true)

	state, pluginFile := e.determineState(ctx, repository)

	// Protection status must be current even for not-installed or errored
	// repositories, so this runs regardless of the state reached.
	if res := e.protect.Detect(repository, pluginFile); res.Protected {
		e.SetStateMetadata(ctx, repository, map[string]MetaValue{
			MetaKeySelfProtected:    BoolValue(true),
			MetaKeyProtectionReason: StringValue(res.Reason),
			MetaKeyDetectedAt:       TimeValue(e.clock.Now().UTC()),
		})
		e.log.Info("self-protection flagged",
			logfields.Repository(repository),
			logfields.Source(res.Reason))
	}

	e.transition(ctx, repository, state, map[string]any{"source": refreshSource}, true)
	return state
}

// BatchRefreshStates refreshes each repository in order. Detection
// failures degrade to unknown inside the pipeline, so one repository
// never aborts the rest.
func (e *Engine) BatchRefreshStates(ctx context.Context, repositories []string) map[string]fsm.PluginState {
	out := make(map[string]fsm.PluginState, len(repositories))
	for _, repo := range repositories {
		out[repo] = e.RefreshState(ctx, repo)
	}
	return out
}

// determineState resolves the target state for a repository: installed
// states from the registry, available/not-plugin from the detection
// service, and the availability cache as a secondary path when the first
// pass stays unknown.
func (e *Engine) determineState(ctx context.Context, repository string) (fsm.PluginState, string) {
	s := slug.Derive(repository)
	if s == "" {
		return fsm.StateUnknown, ""
	}

	if file, active, ok := e.matchInstalled(ctx, repository); ok {
		e.mu.Lock()
		e.pluginFiles[repository] = file
		e.mu.Unlock()
		if active {
			return fsm.StateInstalledActive, file
		}
		return fsm.StateInstalledInactive, file
	}

	state, file := e.detectState(ctx, repository, s, false)
	if state != fsm.StateUnknown {
		return state, file
	}

	if e.availability != nil && e.availability.Contains(ctx, s) {
		return fsm.StateAvailable, ""
	}
	return e.detectState(ctx, repository, s, true)
}

// matchInstalled looks for an installed plugin whose directory or file
// base name matches the repository's slug after normalization.
func (e *Engine) matchInstalled(ctx context.Context, repository string) (file string, active bool, ok bool) {
	if e.registry == nil {
		return "", false, false
	}
	s := slug.Derive(repository)
	if s == "" {
		return "", false, false
	}

	installed, err := e.registry.ListInstalled(ctx)
	if err != nil {
		e.log.Warn("registry listing failed",
			logfields.Repository(repository),
			logfields.Error(err))
		return "", false, false
	}

	for pluginFile := range installed {
		dir := path.Dir(pluginFile)
		base := strings.TrimSuffix(path.Base(pluginFile), path.Ext(pluginFile))
		if !slug.Matches(s, dir) && !slug.Matches(s, base) {
			continue
		}
		isActive, err := e.registry.IsActive(ctx, pluginFile)
		if err != nil {
			e.log.Warn("activation status check failed",
				logfields.PluginFile(pluginFile),
				logfields.Error(err))
			isActive = false
		}
		return pluginFile, isActive, true
	}
	return "", false, false
}

// detectState runs the detection service and maps its three-way outcome to
// a state. Any scan failure degrades to unknown.
func (e *Engine) detectState(ctx context.Context, repository, candidateSlug string, forceRefresh bool) (fsm.PluginState, string) {
	if e.detector == nil {
		return fsm.StateUnknown, ""
	}
	res, err := e.detector.Detect(ctx, detect.Candidate{Identifier: repository, Slug: candidateSlug}, forceRefresh)
	if err != nil {
		e.metrics.RecordDetection("failed")
		e.log.Warn("detection failed",
			logfields.Repository(repository),
			logfields.Slug(candidateSlug),
			logfields.Error(err))
		return fsm.StateUnknown, ""
	}
	e.metrics.RecordDetection(res.Outcome.String())
	switch res.Outcome {
	case detect.OutcomePlugin:
		return fsm.StateAvailable, res.PluginFile
	case detect.OutcomeNotPlugin:
		return fsm.StateNotPlugin, res.PluginFile
	default:
		return fsm.StateUnknown, ""
	}
}
