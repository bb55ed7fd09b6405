package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rendis/archflow/internal/scheduler"
)

// Config holds all archflow configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr         string  `json:"listen_addr"`
	BaseURL            string  `json:"base_url"`
	DBPath             string  `json:"db_path"`
	ModelsDir          string  `json:"models_dir"`
	LogLevel           string  `json:"log_level"`
	LogFormat          string  `json:"log_format"`
	ReloadCron         string  `json:"reload_cron"`
	FrameIntervalMS    int     `json:"frame_interval_ms"`
	SessionIdleMinutes int     `json:"session_idle_minutes"`
	ReducedMotion      bool    `json:"reduced_motion"`
	PNGExport          bool    `json:"png_export"`
	DefaultSpeed       float64 `json:"default_speed"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:         ":4200",
		DBPath:             filepath.Join(archflowDir(), "archflow.db"),
		LogLevel:           "info",
		LogFormat:          "text",
		ReloadCron:         scheduler.DefaultCron,
		FrameIntervalMS:    16,
		SessionIdleMinutes: 10,
		PNGExport:          true,
		DefaultSpeed:       1,
	}
}

// FrameInterval is the animation tick of live sessions.
func (c Config) FrameInterval() time.Duration {
	if c.FrameIntervalMS <= 0 {
		return 16 * time.Millisecond
	}
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

// SessionIdleTTL is how long a session with no viewer and no commands lives.
// Zero disables reaping.
func (c Config) SessionIdleTTL() time.Duration {
	if c.SessionIdleMinutes <= 0 {
		return 0
	}
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func archflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".archflow"
	}
	return filepath.Join(home, ".archflow")
}

func settingsPath() string {
	return filepath.Join(archflowDir(), "settings.json")
}

func pidPath() string {
	return filepath.Join(archflowDir(), "archflow.pid")
}

func loadConfig() Config {
	return loadConfigFrom(settingsPath(), os.Getenv)
}

func loadConfigFrom(path string, getenv func(string) string) Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := getenv("ARCHFLOW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("ARCHFLOW_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := getenv("ARCHFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("ARCHFLOW_MODELS_DIR"); v != "" {
		cfg.ModelsDir = v
	}
	if v := getenv("ARCHFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("ARCHFLOW_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv("ARCHFLOW_RELOAD_CRON"); v != "" {
		cfg.ReloadCron = v
	}
	if v := getenv("ARCHFLOW_FRAME_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FrameIntervalMS = n
		}
	}
	if v := getenv("ARCHFLOW_SESSION_IDLE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionIdleMinutes = n
		}
	}
	if v := getenv("ARCHFLOW_REDUCED_MOTION"); v != "" {
		cfg.ReducedMotion = v == "true" || v == "1"
	}
	if v := getenv("ARCHFLOW_PNG_EXPORT"); v != "" {
		cfg.PNGExport = v == "true" || v == "1"
	}
	if v := getenv("ARCHFLOW_DEFAULT_SPEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.DefaultSpeed = f
		}
	}

	// Derive base_url from listen_addr if empty.
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	return cfg
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	ExportChanged   bool
	ReloadChanged   bool
	SessionsChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func (d configDiff) empty() bool {
	return !d.LogLevelChanged && !d.ExportChanged && !d.ReloadChanged && !d.SessionsChanged && len(d.RestartNeeded) == 0
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.PNGExport != new.PNGExport {
		d.ExportChanged = true
	}
	if old.ModelsDir != new.ModelsDir || old.ReloadCron != new.ReloadCron {
		d.ReloadChanged = true
	}
	if old.FrameIntervalMS != new.FrameIntervalMS || old.ReducedMotion != new.ReducedMotion || old.DefaultSpeed != new.DefaultSpeed {
		d.SessionsChanged = true
	}
	if old.SessionIdleMinutes != new.SessionIdleMinutes {
		d.RestartNeeded = append(d.RestartNeeded, "session_idle_minutes")
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.BaseURL != new.BaseURL {
		d.RestartNeeded = append(d.RestartNeeded, "base_url")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.LogFormat != new.LogFormat {
		d.RestartNeeded = append(d.RestartNeeded, "log_format")
	}
	return d
}
