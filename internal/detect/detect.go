// Package detect decides whether a candidate repository is an installable
// plugin. Implementations inspect candidate file headers; any failure is
// reported to the caller, which treats it as an inconclusive scan rather
// than a fault.
package detect

import (
	"context"
)

// Candidate identifies a repository under inspection.
type Candidate struct {
	Identifier string // full identifier, e.g. "acme/example-gallery"
	Slug       string // derived slug, e.g. "example-gallery"
}

// Outcome is the three-way conclusion of a scan.
type Outcome int

const (
	// OutcomeInconclusive means the scan could not decide either way.
	OutcomeInconclusive Outcome = iota
	// OutcomePlugin means the candidate carries a plugin header.
	OutcomePlugin
	// OutcomeNotPlugin means the candidate was inspected and definitely
	// carries no plugin header.
	OutcomeNotPlugin
)

func (o Outcome) String() string {
	switch o {
	case OutcomePlugin:
		return "plugin"
	case OutcomeNotPlugin:
		return "not_plugin"
	default:
		return "inconclusive"
	}
}

// Result is a scan conclusion plus the method that produced it.
type Result struct {
	Outcome    Outcome
	ScanMethod string
	PluginFile string // candidate's header-bearing file, when found
}

// Service is the detection contract the engine consumes.
type Service interface {
	// Detect inspects the candidate. forceRefresh asks the implementation to
	// bypass any internal caching. An error means the scan itself failed;
	// callers degrade that to an inconclusive result.
	Detect(ctx context.Context, c Candidate, forceRefresh bool) (Result, error)
}

// AvailabilityCache is the fast heuristic cache consulted before re-running
// a full scan: presence of a slug means "known available".
type AvailabilityCache interface {
	Contains(ctx context.Context, slug string) bool
}
