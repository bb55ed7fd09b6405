package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/logging"
	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/pkg/schema"
)

func runRender(args []string) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	format := fs.String("format", "ascii", "output format: svg, png, mermaid, ascii, dot")
	scenario := fs.String("scenario", "", "scenario id (default: the diagram's first scenario)")
	step := fs.Int("step", -1, "timeline step to highlight (-1: none)")
	width := fs.Int("width", 0, "container width in pixels (svg, png)")
	height := fs.Int("height", 0, "container height in pixels (svg, png)")
	out := fs.String("o", "", "output file (default: stdout)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: archflow render [flags] <model file | slug>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	data, err := render(context.Background(), loadConfig(), fs.Arg(0), renderOptions{
		format:   *format,
		scenario: schema.ScenarioID(*scenario),
		step:     *step,
		size:     export.Size{Width: *width, Height: *height},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *out == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", *out)
}

type renderOptions struct {
	format   string
	scenario schema.ScenarioID
	step     int
	size     export.Size
}

// render exports arg, a model file or a stored slug, and returns the bytes
// to write. PNG data URLs are decoded.
func render(ctx context.Context, cfg Config, arg string, opts renderOptions) ([]byte, error) {
	f, err := export.ParseFormat(opts.format)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(os.Stderr, "warn", cfg.LogFormat)
	a, err := openApp(ctx, cfg, logger, !isFile(arg))
	if err != nil {
		return nil, err
	}
	defer a.Close()

	entry, err := a.resolveEntry(ctx, arg)
	if err != nil {
		return nil, err
	}
	scene, _, err := player.SceneAt(entry, a.cel, opts.scenario, opts.step)
	if err != nil {
		return nil, err
	}

	size := opts.size
	if f == export.FormatPNG && size.Width == 0 && size.Height == 0 {
		size = export.Size{Width: int(entry.Layout.Bounds.Width), Height: int(entry.Layout.Bounds.Height)}
	}
	art, err := a.exporter().Export(ctx, scene, f, size)
	if err != nil {
		return nil, err
	}

	if f == export.FormatPNG {
		return decodeDataURL(string(art.Data))
	}
	return art.Data, nil
}

func decodeDataURL(s string) ([]byte, error) {
	_, payload, ok := strings.Cut(s, ";base64,")
	if !ok {
		return nil, fmt.Errorf("malformed data URL")
	}
	return base64.StdEncoding.DecodeString(payload)
}
