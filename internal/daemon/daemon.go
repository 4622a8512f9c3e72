// Package daemon runs the engine in long-lived mode: a gocron schedule
// batch-refreshes the configured repositories, a filesystem watcher keeps
// the plugin registry listing current, expired store rows are swept
// periodically, and broadcasts optionally fan out over NATS.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kissplugins/ksbi-state/internal/broadcast"
	"github.com/kissplugins/ksbi-state/internal/config"
	"github.com/kissplugins/ksbi-state/internal/engine"
	"github.com/kissplugins/ksbi-state/internal/kvstore"
	"github.com/kissplugins/ksbi-state/internal/logfields"
	"github.com/kissplugins/ksbi-state/internal/metrics"
	"github.com/kissplugins/ksbi-state/internal/registry"
)

// Daemon owns the long-running resources around one Engine instance.
type Daemon struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *kvstore.SQLiteStore
	engine    *engine.Engine
	scheduler gocron.Scheduler
	watcher   *registry.Watcher
	publisher *broadcast.NATSPublisher
	metricsrv *http.Server
}

// New wires the configured collaborators into an engine and prepares the
// schedule. Nothing starts running until Start.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Daemon, error) {
	store, err := kvstore.NewSQLiteStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	d := &Daemon{cfg: cfg, log: log, store: store}

	deps, reg := buildDeps(cfg, log, store)
	if reg != nil {
		watcher, err := registry.NewWatcher(reg, cfg.Plugins.Dir)
		if err != nil {
			d.log.Warn("plugins watcher unavailable", logfields.Error(err))
		} else {
			d.watcher = watcher
		}
	}

	if cfg.NATS.URL != "" {
		pub, err := broadcast.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			d.log.Warn("broadcast fan-out disabled", logfields.Error(err))
		} else {
			d.publisher = pub
			deps.Publisher = pub
		}
	}

	if cfg.Metrics.Listen != "" {
		promReg := prometheus.NewRegistry()
		deps.Metrics = metrics.NewPrometheusRecorder(promReg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.HTTPHandler(promReg))
		d.metricsrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	}

	d.engine = engine.New(ctx, deps)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	d.scheduler = scheduler
	return d, nil
}

// Engine exposes the composed engine for callers sharing the process.
func (d *Daemon) Engine() *engine.Engine { return d.engine }

// Start registers the periodic jobs and begins running. It returns once
// everything is scheduled; Stop shuts it down.
func (d *Daemon) Start(ctx context.Context) error {
	if _, err := d.scheduler.NewJob(
		gocron.DurationJob(d.cfg.Daemon.RefreshEvery()),
		gocron.NewTask(d.refreshAll, ctx),
		gocron.WithName("batch-refresh"),
	); err != nil {
		return fmt.Errorf("schedule batch refresh: %w", err)
	}
	if _, err := d.scheduler.NewJob(
		gocron.DurationJob(d.cfg.Daemon.SweepEvery()),
		gocron.NewTask(d.sweep, ctx),
		gocron.WithName("store-sweep"),
	); err != nil {
		return fmt.Errorf("schedule store sweep: %w", err)
	}

	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			d.log.Warn("plugins watcher failed to start", logfields.Error(err))
		}
	}

	if d.metricsrv != nil {
		go func() {
			if err := d.metricsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.log.Error("metrics endpoint failed", logfields.Error(err))
			}
		}()
	}

	d.scheduler.Start()
	d.log.Info("daemon started",
		slog.Int("repositories", len(d.cfg.Repositories)),
		slog.Duration("refresh_interval", d.cfg.Daemon.RefreshEvery()))

	// Prime the table so consumers see states before the first tick.
	d.refreshAll(ctx)
	return nil
}

// Stop shuts the schedule, fan-out, metrics endpoint, and store down.
func (d *Daemon) Stop(ctx context.Context) error {
	var firstErr error
	if err := d.scheduler.Shutdown(); err != nil {
		firstErr = err
	}
	if d.metricsrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := d.metricsrv.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := d.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	d.log.Info("daemon stopped")
	return firstErr
}

func (d *Daemon) refreshAll(ctx context.Context) {
	if len(d.cfg.Repositories) == 0 {
		return
	}
	started := time.Now()
	states := d.engine.BatchRefreshStates(ctx, d.cfg.Repositories)
	d.engine.GetStatistics(ctx)
	d.log.Info("batch refresh complete",
		slog.Int("repositories", len(states)),
		slog.Duration("elapsed", time.Since(started)))
}

func (d *Daemon) sweep(ctx context.Context) {
	removed, err := d.store.Sweep(ctx)
	if err != nil {
		d.log.Warn("store sweep failed", logfields.Error(err))
		return
	}
	if removed > 0 {
		d.log.Debug("store sweep removed expired rows", slog.Int64("rows", removed))
	}
}
