package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kissplugins/ksbi-state/internal/config"
	"github.com/kissplugins/ksbi-state/internal/fsm"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store = filepath.Join(dir, "state.db")
	cfg.Detection.CandidatesDir = filepath.Join(dir, "candidates")
	cfg.Daemon.RefreshInterval = "1h"
	cfg.Daemon.SweepInterval = "1h"
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDaemonLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := New(ctx, testConfig(t), discardLogger())
	require.NoError(t, err)
	require.NotNil(t, d.Engine())

	require.NoError(t, d.Start(ctx))
	require.NoError(t, d.Stop(ctx))
}

func TestStartPrimesConfiguredRepositories(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	cfg.Repositories = []string{"acme/widget"}

	candidate := filepath.Join(cfg.Detection.CandidatesDir, "widget")
	require.NoError(t, os.MkdirAll(candidate, 0o755))
	header := "<?php\n/*\nPlugin Name: Widget\nVersion: 1.0\n*/\n"
	require.NoError(t, os.WriteFile(filepath.Join(candidate, "widget.php"), []byte(header), 0o644))

	d, err := New(ctx, cfg, discardLogger())
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	defer func() { require.NoError(t, d.Stop(ctx)) }()

	states := d.Engine().GetBatchStates(ctx, cfg.Repositories)
	assert.Equal(t, fsm.StateAvailable, states["acme/widget"])
}
