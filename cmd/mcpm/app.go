package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/michaelbrown/mcpm/internal/config"
	"github.com/michaelbrown/mcpm/internal/configwriter"
	"github.com/michaelbrown/mcpm/internal/discovery"
	"github.com/michaelbrown/mcpm/internal/health"
	"github.com/michaelbrown/mcpm/internal/model"
	"github.com/michaelbrown/mcpm/internal/storage"
	"github.com/michaelbrown/mcpm/internal/storage/sqlite"
)

// app bundles what every subcommand needs.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	cat     model.Catalog
	scanner *discovery.Scanner
	writer  *configwriter.Writer
	prober  *health.Prober
}

func setup() (*app, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if projectFlag != "" {
		cfg.ProjectDir = projectFlag
	}

	level, _ := cfg.Log.SlogLevel()
	if verboseFlag {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	if cfg.File != "" {
		log.Debug("settings loaded", "file", cfg.File)
	}

	if !isTerminal(os.Stdout) {
		text.DisableColors()
	}

	cat := model.NewCatalog(cfg.HomeDir, cfg.ProjectDir)
	return &app{
		cfg:     cfg,
		log:     log,
		cat:     cat,
		scanner: discovery.New(log),
		writer:  configwriter.New(cat, log),
		prober: health.NewProber(health.Options{
			Timeout:       cfg.Probe.Timeout,
			MaxConcurrent: cfg.Probe.MaxConcurrent,
			ClientVersion: version,
		}, log),
	}, nil
}

func (a *app) scan() *model.DiscoveryResult {
	return a.scanner.Scan(a.cat)
}

// openHistory opens the probe history, or returns nil when it is disabled
// or cannot be opened; history is never required for a command to work.
func (a *app) openHistory() storage.Store {
	if !a.cfg.History.Enabled {
		return nil
	}
	store, err := sqlite.Open(a.cfg.History.DBPath)
	if err != nil {
		a.log.Warn("history unavailable", "path", a.cfg.History.DBPath, "error", err)
		return nil
	}
	return store
}

// recorder returns an outcome hook that appends to store.
func (a *app) recorder(store storage.Store) func(health.Outcome) {
	return func(out health.Outcome) {
		if store == nil {
			return
		}
		rec := storage.NewCheckRecord(out.ID, out.Status, out.Elapsed)
		if err := store.RecordCheck(context.Background(), rec); err != nil {
			a.log.Warn("recording check failed", "server", out.ID.String(), "error", err)
		}
	}
}

func printSourceErrors(errs []model.SourceError) {
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "warning: %s\n", e.Error())
	}
}
