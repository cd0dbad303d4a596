package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tally/internal/config"
	"github.com/cleared-dev/tally/internal/importer"
	"github.com/cleared-dev/tally/internal/ingest"
	"github.com/cleared-dev/tally/internal/store"
	"github.com/cleared-dev/tally/internal/store/postgres"
)

// app is the resolved environment a command runs in.
type app struct {
	root   string
	cfg    *config.Config
	logger *slog.Logger
}

// loadApp resolves the repo, loads .env and tally.yaml, and applies
// environment overrides. A repo without tally.yaml runs on defaults.
func loadApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	root, err := filepath.Abs(opts.repo)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if err := config.LoadEnv(filepath.Join(root, ".env")); err != nil {
		return nil, err
	}

	path := opts.configPath
	if path == "" {
		path = filepath.Join(root, config.FileName)
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && opts.configPath == "" {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &app{root: root, cfg: cfg, logger: newLogger(cmd, opts.verbose)}, nil
}

// resolve makes a config path absolute against the repo root.
func (a *app) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.root, p)
}

func (a *app) importDir() string {
	return a.resolve(a.cfg.Import.Dir)
}

// openStore opens the configured store. Callers must Close it.
func (a *app) openStore(ctx context.Context) (store.Admin, error) {
	switch a.cfg.Store.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, a.cfg.Store.DatabaseURL, a.logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := store.OpenFileStore(a.resolve(a.cfg.Store.Dir))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (a *app) coordinator(s store.Store) *ingest.Coordinator {
	registry := importer.NewDefaultRegistry(a.cfg.Tables(), importer.Options{VenmoOwner: a.cfg.Venmo.Owner})
	return ingest.NewCoordinator(s, registry, a.logger)
}
