// Package fsm defines the repository lifecycle states and the
// allowed-transition table that governs non-forced state changes.
package fsm

// PluginState represents the lifecycle state of a tracked repository.
type PluginState string

const (
	StateUnknown           PluginState = "unknown"
	StateChecking          PluginState = "checking"
	StateAvailable         PluginState = "available"
	StateNotPlugin         PluginState = "not_plugin"
	StateInstalledInactive PluginState = "installed_inactive"
	StateInstalledActive   PluginState = "installed_active"
	StateError             PluginState = "error"
)

// States lists every valid state in declaration order.
var States = []PluginState{
	StateUnknown,
	StateChecking,
	StateAvailable,
	StateNotPlugin,
	StateInstalledInactive,
	StateInstalledActive,
	StateError,
}

// allowed maps each state to the set of states reachable without force mode.
// Computed once at package init; never mutated afterwards.
var allowed = map[PluginState][]PluginState{
	StateUnknown: {
		StateChecking, StateAvailable, StateNotPlugin,
		StateError, StateInstalledInactive, StateInstalledActive,
	},
	StateChecking:          {StateAvailable, StateNotPlugin, StateError},
	StateAvailable:         {StateInstalledInactive, StateError},
	StateInstalledInactive: {StateInstalledActive, StateError},
	StateInstalledActive:   {StateInstalledInactive, StateError},
	StateNotPlugin:         {StateChecking, StateAvailable},
	StateError:             {StateChecking, StateAvailable, StateNotPlugin},
}

// Valid reports whether s is a member of the closed state enumeration.
func Valid(s PluginState) bool {
	for _, st := range States {
		if st == s {
			return true
		}
	}
	return false
}

// Allowed reports whether a non-forced transition from -> to is permitted.
func Allowed(from, to PluginState) bool {
	for _, st := range allowed[from] {
		if st == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns a copy of the states reachable from the given state
// without force mode.
func AllowedFrom(from PluginState) []PluginState {
	out := make([]PluginState, len(allowed[from]))
	copy(out, allowed[from])
	return out
}

// Parse converts a raw string into a PluginState, defaulting to StateUnknown
// for anything outside the enumeration. Storage readers use this so that
// corrupt persisted values degrade to unknown instead of failing.
func Parse(raw string) PluginState {
	s := PluginState(raw)
	if Valid(s) {
		return s
	}
	return StateUnknown
}

// Installed reports whether the state denotes a physically installed plugin.
func (s PluginState) Installed() bool {
	return s == StateInstalledInactive || s == StateInstalledActive
}

// Terminal reports whether the state is a settled detection conclusion,
// i.e. not one of the in-flight states (unknown, checking).
func (s PluginState) Terminal() bool {
	return s != StateUnknown && s != StateChecking
}

func (s PluginState) String() string { return string(s) }
