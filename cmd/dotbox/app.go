package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/michaelbrown/dotbox/internal/config"
	"github.com/michaelbrown/dotbox/internal/dotnet"
	"github.com/michaelbrown/dotbox/internal/logging"
	"github.com/michaelbrown/dotbox/internal/metrics"
	"github.com/michaelbrown/dotbox/internal/sandbox"
	"github.com/michaelbrown/dotbox/internal/storage/sqlite"
	"github.com/michaelbrown/dotbox/internal/tools"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	engine   *sandbox.DockerEngine
	store    *sqlite.SQLiteStore
	registry *prometheus.Registry
	mgr      *sandbox.Manager
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFlag, func(v *viper.Viper) error {
		flags := rootCmd.PersistentFlags()
		if err := v.BindPFlag("sandbox.registry", flags.Lookup("registry")); err != nil {
			return err
		}
		return v.BindPFlag("log.level", flags.Lookup("log-level"))
	})
}

// newApp loads configuration and connects to the container runtime. The
// journal is opened only when withJournal is set and a path is configured.
func newApp(withJournal bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// stdout carries the stdio transport
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	engine, err := sandbox.NewDockerEngine()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		engine:   engine,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []sandbox.Option{
		sandbox.WithImageSource(sandbox.ImageSource{Registry: cfg.Sandbox.Registry}),
		sandbox.WithLogger(log),
		sandbox.WithMetrics(metrics.New(a.registry)),
		sandbox.WithExecTimeout(cfg.Sandbox.ExecTimeout),
	}
	if withJournal && cfg.Storage.DBPath != "" {
		store, err := sqlite.Open(cfg.Storage.DBPath)
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		a.store = store
		opts = append(opts, sandbox.WithJournal(store))
	}
	a.mgr = sandbox.NewManager(engine, opts...)
	return a, nil
}

// toolset wires the snippet executor and the MCP tool surface.
func (a *app) toolset() *tools.Toolset {
	resolver := dotnet.NewNuGetResolver(a.cfg.NuGet.BaseURL, a.cfg.NuGet.Timeout, a.log)
	exec := dotnet.NewExecutor(a.mgr,
		dotnet.WithVersions(resolver),
		dotnet.WithExecutorLogger(a.log),
		dotnet.WithBuildTimeout(a.cfg.Sandbox.BuildTimeout),
	)
	return tools.New(a.mgr, exec,
		tools.WithLogger(a.log),
		tools.WithIdleTimeout(a.cfg.Sandbox.IdleTimeout),
		tools.WithSnippetTimeout(a.cfg.Sandbox.SnippetTimeout),
	)
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing journal")
		}
	}
	if err := a.engine.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing docker client")
	}
}
