package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rendis/archflow/internal/scheduler"
)

func runInstall(args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	listenAddr := fs.String("listen-addr", ":4200", "TCP listen address")
	baseURL := fs.String("base-url", "", "public base URL (derived from listen-addr if empty)")
	dbPath := fs.String("db-path", "", "database path (default: ~/.archflow/archflow.db)")
	modelsDir := fs.String("models-dir", "", "directory of model files to load and watch")
	reloadCron := fs.String("reload-cron", scheduler.DefaultCron, "reload schedule for models-dir")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	reducedMotion := fs.Bool("reduced-motion", false, "disable particle animation")
	pngExport := fs.Bool("png", true, "enable PNG export")
	noServe := fs.Bool("no-serve", false, "only write settings, do not start a server")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir := archflowDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create %s: %v\n", dir, err)
		os.Exit(1)
	}

	cfg := defaultConfig()
	cfg.ListenAddr = *listenAddr
	cfg.BaseURL = *baseURL
	cfg.ModelsDir = *modelsDir
	cfg.ReloadCron = *reloadCron
	cfg.LogLevel = *logLevel
	cfg.ReducedMotion = *reducedMotion
	cfg.PNGExport = *pngExport
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	if err := writeSettings(settingsPath(), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", settingsPath())

	if pid := pidfile(pidPath()).reload(); pid != 0 {
		fmt.Printf("Running server (PID %d) is reloading its configuration\n", pid)
		return
	}
	if *noServe {
		return
	}
	if err := serve(loadConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func writeSettings(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}
