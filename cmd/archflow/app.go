package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/expressions"
	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/internal/scheduler"
	"github.com/rendis/archflow/internal/store"
	"github.com/rendis/archflow/internal/streaming"
	"github.com/rendis/archflow/internal/validation"
	"github.com/rendis/archflow/internal/viewer"
)

// app is the wired set of components shared by the subcommands.
type app struct {
	cfg    Config
	logger *slog.Logger

	store    *store.LibSQLStore // nil when opened without a database
	cel      *expressions.CELEngine
	catalog  *catalog.Catalog
	hub      *streaming.MemoryHub
	sessions *player.Manager
	reloader *scheduler.Reloader // nil without models_dir
}

// openApp wires the components. withStore opens and migrates the database;
// without it only local files can be compiled.
func openApp(ctx context.Context, cfg Config, logger *slog.Logger, withStore bool) (*app, error) {
	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, fmt.Errorf("init CEL: %w", err)
	}
	validator, err := validation.NewModelValidator(cel)
	if err != nil {
		return nil, fmt.Errorf("init validator: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, cel: cel, hub: streaming.NewMemoryHub()}
	catCfg := catalog.Config{Validator: validator, CEL: cel, Logger: logger}

	if withStore {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		a.store = s
		catCfg.Store = s
	}
	a.catalog = catalog.New(catCfg)

	sessionCfg := player.Config{
		CEL:           cel,
		Hub:           a.hub,
		FrameInterval: cfg.FrameInterval(),
		Speed:         cfg.DefaultSpeed,
		ReducedMotion: cfg.ReducedMotion,
		Logger:        logger,
	}
	if a.store != nil {
		sessionCfg.Recorder = a.store
	}
	a.sessions = player.NewManager(a.catalog, sessionCfg)

	if err := a.buildReloader(cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// buildReloader replaces the reloader for cfg. The caller starts it.
func (a *app) buildReloader(cfg Config) error {
	if a.reloader != nil {
		_ = a.reloader.Stop()
		a.reloader = nil
	}
	if cfg.ModelsDir == "" || a.store == nil {
		return nil
	}
	r, err := scheduler.NewReloader(scheduler.Config{
		Loader: a.catalog,
		Dirs:   []string{cfg.ModelsDir},
		Cron:   cfg.ReloadCron,
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	a.reloader = r
	return nil
}

// exporter returns an Exporter, with PNG when enabled and a rasteriser can
// be built.
func (a *app) exporter() *export.Exporter {
	e := &export.Exporter{}
	if !a.cfg.PNGExport {
		return e
	}
	r, err := export.NewGGRasterizer()
	if err != nil {
		a.logger.Warn("PNG export disabled", "error", err)
		return e
	}
	e.Rasterizer = r
	return e
}

// viewerHandler builds the HTTP surface over the current components.
func (a *app) viewerHandler() http.Handler {
	deps := viewer.Deps{
		Catalog:  a.catalog,
		Sessions: a.sessions,
		Hub:      a.hub,
		CEL:      a.cel,
		Exporter: a.exporter(),
		Logger:   a.logger,
	}
	if a.store != nil {
		deps.Events = store.NewEventLog(a.store)
	}
	if a.reloader != nil {
		deps.Reloader = a.reloader
	}
	return viewer.NewServer(deps).Handler()
}

// resolveEntry compiles arg when it names a model file, otherwise looks it up
// as a stored slug.
func (a *app) resolveEntry(ctx context.Context, arg string) (*catalog.Entry, error) {
	if catalog.Supported(arg) {
		data, err := os.ReadFile(arg)
		if err == nil {
			return a.catalog.Compile(ctx, arg, data)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if a.store == nil {
		return nil, fmt.Errorf("%s: no such model file", arg)
	}
	return a.catalog.Lookup(ctx, arg)
}

// Close stops background work and closes the database.
func (a *app) Close() {
	if a.reloader != nil {
		_ = a.reloader.Stop()
	}
	if a.sessions != nil {
		a.sessions.CloseAll()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// isFile reports whether arg names an existing model file.
func isFile(arg string) bool {
	if !catalog.Supported(arg) {
		return false
	}
	_, err := os.Stat(arg)
	return err == nil
}
