// gen-diagrams exports the sample models for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/expressions"
	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/internal/validation"
)

func main() {
	ctx := context.Background()
	cel, err := expressions.NewCELEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cel: %v\n", err)
		os.Exit(1)
	}
	validator, err := validation.NewModelValidator(cel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "validator: %v\n", err)
		os.Exit(1)
	}
	cat := catalog.New(catalog.Config{Validator: validator, CEL: cel})

	exp := &export.Exporter{}
	if r, err := export.NewGGRasterizer(); err == nil {
		exp.Rasterizer = r
	} else {
		fmt.Fprintf(os.Stderr, "png disabled: %v\n", err)
	}

	inDir := filepath.Join("examples", "models")
	outDir := filepath.Join("docs", "assets")
	os.MkdirAll(outDir, 0o755)

	files, _ := os.ReadDir(inDir)
	for _, f := range files {
		path := filepath.Join(inDir, f.Name())
		if f.IsDir() || !catalog.Supported(path) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}
		entry, err := cat.Compile(ctx, path, data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}

		// Highlight the first step so the samples show an active edge.
		scene, _, err := player.SceneAt(entry, cel, "", 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", entry.Slug, err)
			continue
		}

		fmt.Printf("=== %s ===\n", entry.Slug)
		for _, format := range export.Formats {
			art, err := exp.Export(ctx, scene, format, export.Size{})
			if err != nil {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", format, err)
				continue
			}
			out := art.Data
			if format == export.FormatPNG {
				_, payload, _ := strings.Cut(string(out), ",")
				if out, err = base64.StdEncoding.DecodeString(payload); err != nil {
					fmt.Fprintf(os.Stderr, "  png: %v\n", err)
					continue
				}
			}
			name := filepath.Join(outDir, entry.Slug+"."+extension(format))
			os.WriteFile(name, out, 0o644)
			fmt.Printf("  %-8s %s (%d bytes)\n", format, name, len(out))
		}
	}
}

func extension(f export.Format) string {
	switch f {
	case export.FormatMermaid:
		return "mmd"
	case export.FormatASCII:
		return "txt"
	}
	return string(f)
}
