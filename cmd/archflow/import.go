package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/logging"
)

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dir := fs.String("dir", "", "import every model file in a directory")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: archflow import [-dir <dir>] [file ...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *dir == "" && fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := logging.NewLogger(os.Stderr, "warn", cfg.LogFormat)
	ctx := context.Background()
	a, err := openApp(ctx, cfg, logger, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	report, err := importModels(ctx, a.catalog, *dir, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printReport(os.Stdout, report)
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}

// importModels imports dir (when set) and then each file, collecting one
// report. A failing file does not stop the rest.
func importModels(ctx context.Context, c *catalog.Catalog, dir string, files []string) (*catalog.LoadReport, error) {
	report := &catalog.LoadReport{}
	if dir != "" {
		r, err := c.LoadDir(ctx, dir)
		if err != nil {
			return nil, err
		}
		report.Imported = append(report.Imported, r.Imported...)
		report.Failed = append(report.Failed, r.Failed...)
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			report.Failed = append(report.Failed, catalog.LoadFailure{Source: path, Error: err.Error()})
			continue
		}
		res, err := c.Import(ctx, path, data)
		if err != nil {
			report.Failed = append(report.Failed, catalog.LoadFailure{Source: path, Error: err.Error()})
			continue
		}
		report.Imported = append(report.Imported, *res)
	}
	return report, nil
}

func printReport(w io.Writer, r *catalog.LoadReport) {
	for _, res := range r.Imported {
		state := "unchanged"
		if res.Changed {
			state = "imported"
		}
		fmt.Fprintf(w, "%-9s %s (%s)\n", state, res.Slug, res.Source)
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warn.Message)
		}
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "failed    %s: %s\n", f.Source, f.Error)
	}
	fmt.Fprintf(w, "%d imported, %d changed, %d failed\n", len(r.Imported), r.Changed(), len(r.Failed))
}
