package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rendis/archflow/internal/logging"
	archmcp "github.com/rendis/archflow/pkg/mcp"
)

// runMCP serves the MCP tools over stdio. stdout carries the protocol, so
// logs go to stderr.
func runMCP(_ []string) {
	cfg := loadConfig()
	logger := logging.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, logger, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			logger.Warn("reloader not started", "error", err)
		}
	}

	srv := archmcp.NewArchflowServer(archmcp.ArchflowServerDeps{
		Catalog:  a.catalog,
		Sessions: a.sessions,
		Hub:      a.hub,
		CEL:      a.cel,
		Exporter: a.exporter(),
		Logger:   logger,
	})
	logger.Info("mcp server ready", "transport", "stdio")
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
