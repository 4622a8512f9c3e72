package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/kissplugins/ksbi-state/internal/config"
	"github.com/kissplugins/ksbi-state/internal/daemon"
	"github.com/kissplugins/ksbi-state/internal/engine"
	"github.com/kissplugins/ksbi-state/internal/fsm"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"ksbi.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	State struct {
		Repository string `arg:"" help:"Repository identifier, e.g. acme/example-gallery"`
		Refresh    bool   `short:"r" help:"Re-run detection instead of answering from the cached table"`
	} `cmd:"" help:"Show the current state of a repository"`

	Refresh struct {
		Repositories []string `arg:"" optional:"" help:"Repositories to refresh; defaults to the configured list"`
	} `cmd:"" help:"Re-run detection for repositories"`

	Events struct {
		Repository string `arg:"" help:"Repository identifier"`
		Limit      int    `short:"n" help:"Number of entries to show" default:"10"`
	} `cmd:"" help:"Show a repository's recent event log"`

	Broadcasts struct {
		Since int64 `short:"s" help:"Only entries with id greater than this" default:"0"`
	} `cmd:"" help:"Show global broadcast queue entries"`

	Stats struct{} `cmd:"" help:"Show repository counts per state"`

	Daemon struct{} `cmd:"" help:"Run continuously, refreshing configured repositories on a schedule"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	switch kctx.Command() {
	case "state <repository>":
		err = withEngine(cfg, logger, runState)
	case "refresh", "refresh <repositories>":
		err = withEngine(cfg, logger, runRefresh)
	case "events <repository>":
		err = withEngine(cfg, logger, runEvents)
	case "broadcasts":
		err = withEngine(cfg, logger, runBroadcasts)
	case "stats":
		err = withEngine(cfg, logger, runStats)
	case "daemon":
		err = runDaemon(cfg, logger)
	default:
		err = fmt.Errorf("unknown command %q", kctx.Command())
	}
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the default config file is absent,
// so one-shot commands work out of the box.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func withEngine(cfg *config.Config, logger *slog.Logger, run func(context.Context, *config.Config, *engine.Engine) error) error {
	ctx := context.Background()
	eng, store, err := daemon.OpenEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close state store", "error", err)
		}
	}()
	return run(ctx, cfg, eng)
}

func runState(ctx context.Context, _ *config.Config, eng *engine.Engine) error {
	repo := CLI.State.Repository
	var state fsm.PluginState
	if CLI.State.Refresh {
		state = eng.RefreshState(ctx, repo)
	} else {
		state = eng.GetState(ctx, repo)
	}

	fmt.Printf("%s: %s\n", repo, state)
	if state == fsm.StateError {
		if ec, ok := eng.GetErrorContext(ctx, repo); ok {
			fmt.Printf("  error: %s (source %s, retries %d, recoverable %t)\n",
				ec.Message, ec.Source, ec.RetryCount, ec.Recoverable)
		}
	}
	if eng.IsSelfProtected(ctx, repo) {
		fmt.Println("  self-protected: deactivation is blocked for this repository")
	}
	if file, ok := eng.GetPluginFile(ctx, repo); ok {
		fmt.Printf("  plugin file: %s\n", file)
	}
	return nil
}

func runRefresh(ctx context.Context, cfg *config.Config, eng *engine.Engine) error {
	repos := CLI.Refresh.Repositories
	if len(repos) == 0 {
		repos = cfg.Repositories
	}
	if len(repos) == 0 {
		return fmt.Errorf("no repositories given and none configured")
	}

	states := eng.BatchRefreshStates(ctx, repos)
	for _, repo := range repos {
		fmt.Printf("%s: %s\n", repo, states[repo])
	}
	return nil
}

func runEvents(ctx context.Context, _ *config.Config, eng *engine.Engine) error {
	entries := eng.GetEvents(ctx, CLI.Events.Repository, CLI.Events.Limit)
	if len(entries) == 0 {
		fmt.Println("no events recorded")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %s\n", e.Timestamp.Format(time.RFC3339), e.Name)
	}
	return nil
}

func runBroadcasts(ctx context.Context, _ *config.Config, eng *engine.Engine) error {
	entries := eng.GetBroadcastEventsSince(ctx, CLI.Broadcasts.Since)
	if len(entries) == 0 {
		fmt.Println("no broadcast entries")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%6d  %s  %s  %v\n", e.ID, e.Timestamp.Format(time.RFC3339), e.Name, e.Payload["repository"])
	}
	return nil
}

func runStats(ctx context.Context, _ *config.Config, eng *engine.Engine) error {
	stats := eng.GetStatistics(ctx)
	for _, state := range fsm.States {
		fmt.Printf("%-20s %d\n", state, stats[state])
	}
	return nil
}

func runDaemon(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	slog.Info("Daemon started, waiting for shutdown signal...")
	<-ctx.Done()

	slog.Info("Shutdown signal received, stopping daemon...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return d.Stop(stopCtx)
}
