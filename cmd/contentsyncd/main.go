package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/redpen/contentsyncd/internal/config"
	"git.home.luguber.info/redpen/contentsyncd/internal/engine"
	"git.home.luguber.info/redpen/contentsyncd/internal/execx"
	"git.home.luguber.info/redpen/contentsyncd/internal/fingerprint"
	"git.home.luguber.info/redpen/contentsyncd/internal/gitrepo"
	"git.home.luguber.info/redpen/contentsyncd/internal/history"
	"git.home.luguber.info/redpen/contentsyncd/internal/locker"
	"git.home.luguber.info/redpen/contentsyncd/internal/metrics"
	"git.home.luguber.info/redpen/contentsyncd/internal/notify"
	"git.home.luguber.info/redpen/contentsyncd/internal/publish"
	"git.home.luguber.info/redpen/contentsyncd/internal/server"
	"git.home.luguber.info/redpen/contentsyncd/internal/version"
	"git.home.luguber.info/redpen/contentsyncd/internal/watch"
)

var CLI struct {
	Config  string `short:"c" help:"Optional YAML configuration file" type:"path"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct{} `cmd:"" help:"Run the synchronization daemon (webhook, monitor, watchers)"`

	Sync struct{} `cmd:"" help:"Run one sync+publish cycle and exit"`

	Mutate struct {
		Staging string `help:"Staging tree to mutate (defaults to the configured staging root)"`
	} `cmd:"" help:"Apply the publish-time mutations to a staged tree and exit"`

	Version struct{} `cmd:"" help:"Print version and exit"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	config.LoadDotEnv()

	if kctx.Command() == "version" {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	switch kctx.Command() {
	case "serve":
		if err := runServe(cfg); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "sync":
		if err := runSync(cfg); err != nil {
			slog.Error("Sync failed", "error", err)
			os.Exit(1)
		}
	case "mutate":
		staging := CLI.Mutate.Staging
		if staging == "" {
			staging = cfg.StagingDir
		}
		if err := publish.Mutate(staging, cfg.APIBaseURL); err != nil {
			slog.Error("Mutate failed", "error", err)
			os.Exit(1)
		}
	}
}

// components bundles everything a cycle needs.
type components struct {
	engine   *engine.Engine
	prints   *fingerprint.Engine
	runner   execx.Runner
	registry *prometheus.Registry
	recorder metrics.Recorder
	history  *history.Store
	notifier *notify.NATSNotifier
}

func assemble(cfg config.Config) (*components, error) {
	if err := gitrepo.Validate(cfg.RepoDir); err != nil {
		return nil, err
	}

	runner := execx.NewShellRunner()
	prints := fingerprint.NewEngine(runner)
	store := fingerprint.NewStore(cfg.FingerprintFile)

	lock, err := locker.New(cfg.LockFile)
	if err != nil {
		return nil, fmt.Errorf("create sync lock: %w", err)
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var registry *prometheus.Registry
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)
	}

	syncer := gitrepo.NewSynchronizer(runner, cfg)
	pipeline := publish.NewPipeline(runner, cfg.RepoDir, cfg.StagingDir, cfg.PublicDir, cfg.APIBaseURL)

	eng := engine.New(cfg, lock, prints, store, syncer, pipeline, recorder)

	c := &components{
		engine:   eng,
		prints:   prints,
		runner:   runner,
		registry: registry,
		recorder: recorder,
	}

	if cfg.HistoryDB != "" {
		hist, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		c.history = hist
		eng.WithHistory(hist)
	}

	if cfg.NATSURL != "" {
		notifier, err := notify.NewNATSNotifier(context.Background(), cfg.NATSURL)
		if err != nil {
			// The daemon is useful without notifications; degrade loudly.
			slog.Warn("NATS notifier unavailable", "error", err)
		} else {
			c.notifier = notifier
			eng.WithNotifier(notifier)
		}
	}

	return c, nil
}

func (c *components) close() {
	if c.history != nil {
		_ = c.history.Close()
	}
	if c.notifier != nil {
		c.notifier.Close()
	}
}

func runSync(cfg config.Config) error {
	c, err := assemble(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	outcome, err := c.engine.Trigger(metrics.TriggerManual, nil)
	if err != nil {
		return err
	}
	slog.Info("Cycle finished", "outcome", outcome)
	return nil
}

func runServe(cfg config.Config) error {
	c, err := assemble(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	monitor, err := watch.NewMonitor(c.engine, cfg.MonitorInterval)
	if err != nil {
		return err
	}
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := monitor.Stop(context.Background()); err != nil {
			slog.Warn("Failed to stop monitor", "error", err)
		}
	}()

	var wg sync.WaitGroup
	if cfg.WatchContent {
		watcher := watch.NewDirWatcher(cfg,
			watch.ContentMode(cfg.ContentSubmodule), cfg.ContentDir, c.prints, c.engine, c.runner)
		wg.Add(1)
		go func() {
			defer wg.Done()
			watcher.Run(ctx)
		}()
	}
	if cfg.WatchPublic {
		watcher := watch.NewDirWatcher(cfg,
			watch.PublicMode(cfg.PublishSubmodule), cfg.PublicWatch, c.prints, c.engine, c.runner)
		wg.Add(1)
		go func() {
			defer wg.Done()
			watcher.Run(ctx)
		}()
	}

	srv := server.New(cfg, c.engine, c.recorder, c.registry, c.history)
	err = srv.Start(ctx)

	cancel()
	wg.Wait()
	return err
}
