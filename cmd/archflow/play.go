package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/rendis/archflow/internal/logging"
	"github.com/rendis/archflow/internal/playback"
	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/internal/tui"
	"github.com/rendis/archflow/pkg/schema"
)

func runPlay(args []string) {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	scenario := fs.String("scenario", "", "scenario to start on")
	mode := fs.String("mode", "", "animation mode: ambient, guided, static")
	speed := fs.Float64("speed", 0, "playback speed multiplier")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: archflow play [flags] <model file | slug>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	if err := play(loadConfig(), fs.Arg(0), *scenario, *mode, *speed); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func play(cfg Config, arg, scenario, mode string, speed float64) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The terminal belongs to the player; logs would tear the screen.
	logger := logging.NewLogger(io.Discard, cfg.LogLevel, cfg.LogFormat)
	stored := !isFile(arg)
	a, err := openApp(ctx, cfg, logger, stored)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.resolveEntry(ctx, arg)
	if err != nil {
		return err
	}

	if speed <= 0 {
		speed = cfg.DefaultSpeed
	}
	keys := playback.NewKeyRegistry()
	pcfg := player.Config{
		Entry:         entry,
		CEL:           a.cel,
		Keys:          keys,
		Speed:         speed,
		ReducedMotion: cfg.ReducedMotion,
		Logger:        logger,
	}
	if stored {
		pcfg.Recorder = a.store
	}
	p, err := player.New(uuid.New().String(), pcfg)
	if err != nil {
		return err
	}
	if mode != "" {
		if err := p.SetMode(schema.AnimationMode(mode)); err != nil {
			p.Close()
			return err
		}
	}
	if scenario != "" {
		if err := p.SetScenario(schema.ScenarioID(scenario)); err != nil {
			p.Close()
			return err
		}
	}
	return tui.Run(ctx, p, keys, tui.DefaultFrameInterval)
}
