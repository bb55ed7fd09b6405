package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rendis/archflow/internal/logging"
	"github.com/rendis/archflow/internal/player"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listenAddr := fs.String("listen-addr", "", "TCP listen address (overrides settings)")
	modelsDir := fs.String("models-dir", "", "directory of model files to load and watch")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig()
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *modelsDir != "" {
		cfg.ModelsDir = *modelsDir
	}

	if err := serve(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(cfg Config) error {
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewLeveledLogger(os.Stderr, level, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return err
		}
	}
	go a.sessions.RunReaper(ctx, cfg.SessionIdleTTL())

	pid := pidfile(pidPath())
	if err := pid.write(); err != nil {
		logger.Warn("cannot write pidfile", "error", err)
	}
	defer pid.remove()

	live := newLiveHandler(a.viewerHandler())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           live,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("viewer listening", "addr", cfg.ListenAddr, "url", cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case err := <-errCh:
			return err
		case <-hup:
			cfg = a.reconfigure(ctx, cfg, loadConfig(), level, live)
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			// SSE streams end once their sessions close.
			a.sessions.CloseAll()
			return srv.Shutdown(shutdownCtx)
		}
	}
}

// reconfigure applies what changed between old and next and returns the
// configuration now in effect. Settings that need a restart keep their old
// value.
func (a *app) reconfigure(ctx context.Context, old, next Config, level *slog.LevelVar, live *liveHandler) Config {
	d := diffConfigs(old, next)
	if d.empty() {
		a.logger.Info("SIGHUP: configuration unchanged")
		return old
	}

	if d.LogLevelChanged {
		level.Set(logging.ParseLevel(next.LogLevel))
		a.logger.Info("SIGHUP: log level changed", "level", next.LogLevel)
	}

	if d.SessionsChanged {
		a.sessions.SetDefaults(func(c *player.Config) {
			c.FrameInterval = next.FrameInterval()
			c.ReducedMotion = next.ReducedMotion
			c.Speed = next.DefaultSpeed
		})
		a.logger.Info("SIGHUP: session defaults changed")
	}

	if d.ReloadChanged {
		if err := a.buildReloader(next); err != nil {
			a.logger.Error("SIGHUP: reloader not rebuilt", "error", err)
			next.ModelsDir, next.ReloadCron = old.ModelsDir, old.ReloadCron
			if err := a.buildReloader(old); err == nil && a.reloader != nil {
				_ = a.reloader.Start(ctx)
			}
		} else if a.reloader != nil {
			if err := a.reloader.Start(ctx); err != nil {
				a.logger.Error("SIGHUP: reloader not started", "error", err)
			}
		}
	}

	// Restart-only fields keep running with their old values.
	for _, field := range d.RestartNeeded {
		a.logger.Warn("SIGHUP: field changed but requires restart", "field", field)
	}
	next.ListenAddr = old.ListenAddr
	next.BaseURL = old.BaseURL
	next.DBPath = old.DBPath
	next.LogFormat = old.LogFormat
	next.SessionIdleMinutes = old.SessionIdleMinutes

	a.cfg = next
	if d.ExportChanged || d.ReloadChanged {
		gen := live.replace(a.viewerHandler())
		a.logger.Info("SIGHUP: viewer rebuilt", "generation", gen)
	}
	return next
}

// liveHandler serves the current viewer. SIGHUP swaps in a rebuilt one; a
// request in flight finishes on the handler it started with.
type liveHandler struct {
	current atomic.Pointer[http.Handler]
	gen     atomic.Uint64
}

func newLiveHandler(h http.Handler) *liveHandler {
	l := &liveHandler{}
	l.current.Store(&h)
	return l
}

func (l *liveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*l.current.Load()).ServeHTTP(w, r)
}

// replace installs h and returns how many times the viewer has been rebuilt.
func (l *liveHandler) replace(h http.Handler) uint64 {
	l.current.Store(&h)
	return l.gen.Add(1)
}
