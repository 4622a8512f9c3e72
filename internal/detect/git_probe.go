package detect

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/kissplugins/ksbi-state/internal/registry"
)

// headerReadLimit bounds how much of a candidate file is inspected.
const headerReadLimit = 8 * 1024

// GitProbe detects plugins in remote candidates by cloning them shallowly
// into memory and scanning their top-level files for a plugin header.
// Nothing touches disk.
type GitProbe struct {
	baseURL string
}

// NewGitProbe creates a probe that resolves identifiers against baseURL,
// e.g. "https://github.com".
func NewGitProbe(baseURL string) *GitProbe {
	return &GitProbe{baseURL: strings.TrimRight(baseURL, "/")}
}

// Detect clones the candidate at depth 1 and scans its root. Clone failures
// are returned as errors; the engine degrades them to an inconclusive scan.
func (p *GitProbe) Detect(ctx context.Context, c Candidate, _ bool) (Result, error) {
	if c.Identifier == "" {
		return Result{ScanMethod: "git_probe"}, nil
	}

	fs := memfs.New()
	_, err := git.CloneContext(ctx, memory.NewStorage(), fs, &git.CloneOptions{
		URL:          p.baseURL + "/" + c.Identifier,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		return Result{}, fmt.Errorf("clone candidate %s: %w", c.Identifier, err)
	}

	entries, err := fs.ReadDir("/")
	if err != nil {
		return Result{}, fmt.Errorf("read candidate tree: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".php") {
			continue
		}
		if _, ok := readHeader(fs, entry.Name()); ok {
			return Result{
				Outcome:    OutcomePlugin,
				ScanMethod: "git_probe",
				PluginFile: c.Slug + "/" + entry.Name(),
			}, nil
		}
	}

	// The tree was fully inspected and carries no plugin header.
	return Result{Outcome: OutcomeNotPlugin, ScanMethod: "git_probe"}, nil
}

func readHeader(fs billy.Filesystem, name string) (registry.PluginInfo, bool) {
	f, err := fs.Open(name)
	if err != nil {
		return registry.PluginInfo{}, false
	}
	defer func() { _ = f.Close() }()
	return registry.ParseHeader(io.LimitReader(f, headerReadLimit))
}
