package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kissplugins/ksbi-state/internal/config"
	"github.com/kissplugins/ksbi-state/internal/detect"
	"github.com/kissplugins/ksbi-state/internal/engine"
	"github.com/kissplugins/ksbi-state/internal/kvstore"
	"github.com/kissplugins/ksbi-state/internal/registry"
	"github.com/kissplugins/ksbi-state/internal/selfprotect"
)

// OpenEngine wires the configured collaborators into a request-scoped
// engine for one-shot commands: no schedule, no watcher, no fan-out.
// The caller closes the returned store when done.
func OpenEngine(ctx context.Context, cfg *config.Config, log *slog.Logger) (*engine.Engine, *kvstore.SQLiteStore, error) {
	store, err := kvstore.NewSQLiteStore(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}

	deps, _ := buildDeps(cfg, log, store)
	return engine.New(ctx, deps), store, nil
}

// buildDeps assembles the collaborator set shared by one-shot commands and
// the daemon. The filesystem registry is returned separately so the daemon
// can attach its watcher.
func buildDeps(cfg *config.Config, log *slog.Logger, store *kvstore.SQLiteStore) (engine.Deps, *registry.FilesystemRegistry) {
	deps := engine.Deps{
		Store:        store,
		Availability: detect.NewCachedAvailability(store),
		Protect:      selfprotect.New(cfg.Plugins.SelfDir),
		Logger:       log,
	}

	var reg *registry.FilesystemRegistry
	if cfg.Plugins.Dir != "" {
		reg = registry.NewFilesystemRegistry(cfg.Plugins.Dir, cfg.Plugins.ActiveList)
		deps.Registry = reg
	}

	switch cfg.Detection.Mode {
	case "git_probe":
		deps.Detector = detect.NewGitProbe(cfg.Detection.GitBaseURL)
	default:
		deps.Detector = detect.NewHeaderScanner(cfg.Detection.CandidatesDir)
	}
	return deps, reg
}
