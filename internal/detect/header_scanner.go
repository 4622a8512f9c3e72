package detect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kissplugins/ksbi-state/internal/registry"
)

// HeaderScanner inspects a local checkout directory for a plugin header.
// The candidate's files are expected under <root>/<slug>/.
type HeaderScanner struct {
	root string
}

// NewHeaderScanner creates a scanner over the given candidates root.
func NewHeaderScanner(root string) *HeaderScanner {
	return &HeaderScanner{root: root}
}

// Detect scans the candidate's top-level files for a plugin header.
// A missing checkout is inconclusive, not an error: the candidate may simply
// not have been fetched yet.
func (s *HeaderScanner) Detect(_ context.Context, c Candidate, _ bool) (Result, error) {
	if c.Slug == "" {
		return Result{ScanMethod: "header"}, nil
	}

	dir := filepath.Join(s.root, c.Slug)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Outcome: OutcomeInconclusive, ScanMethod: "header"}, nil
		}
		return Result{}, fmt.Errorf("read candidate directory: %w", err)
	}

	sawPHP := false
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".php") {
			continue
		}
		sawPHP = true
		path := filepath.Join(dir, entry.Name())
		if _, ok := registry.ParseHeaderFile(path); ok {
			return Result{
				Outcome:    OutcomePlugin,
				ScanMethod: "header",
				PluginFile: c.Slug + "/" + entry.Name(),
			}, nil
		}
	}

	if sawPHP {
		// Files were inspected and none carried a header.
		return Result{Outcome: OutcomeNotPlugin, ScanMethod: "header"}, nil
	}
	return Result{Outcome: OutcomeInconclusive, ScanMethod: "header"}, nil
}
