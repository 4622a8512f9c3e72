package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the plugins directory and invalidates the registry's
// cached listing whenever anything changes, so installs and removals show up
// on the next refresh without restarting the process.
type Watcher struct {
	registry     *FilesystemRegistry
	root         string
	watcher      *fsnotify.Watcher
	debounceTime time.Duration
}

// NewWatcher creates a watcher over the registry's plugins root.
func NewWatcher(registry *FilesystemRegistry, root string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to resolve plugins directory: %w", err)
	}

	return &Watcher{
		registry:     registry,
		root:         absRoot,
		watcher:      watcher,
		debounceTime: 2 * time.Second, // Debounce rapid file changes
	}, nil
}

// Start begins monitoring until the context is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch plugins directory %s: %w", w.root, err)
	}

	slog.Info("Starting plugins directory watcher", "path", w.root)
	go w.watchLoop(ctx)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounceTime, func() {
				slog.Debug("plugins directory changed, invalidating listing", "event", event.Name)
				w.registry.Invalidate()
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("plugins directory watcher error", "error", err)
		}
	}
}
