// Package catalog imports architecture documents into the store and serves
// compiled graphs with their layouts.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rendis/archflow/internal/expressions"
	"github.com/rendis/archflow/internal/graph"
	"github.com/rendis/archflow/internal/layout"
	"github.com/rendis/archflow/internal/logging"
	"github.com/rendis/archflow/internal/store"
	"github.com/rendis/archflow/internal/validation"
	"github.com/rendis/archflow/pkg/schema"
)

// Entry is a compiled diagram ready to draw.
type Entry struct {
	Slug     string
	Checksum string
	Model    *schema.ArchitectureModel
	Graph    *graph.Graph
	Layout   *layout.Layout
	Warnings []schema.ValidationIssue
}

// Focus returns the edges a scenario emphasises, honouring its CEL focus
// expression when one is set.
func (e *Entry) Focus(cel *expressions.CELEngine, sc schema.Scenario) map[string]bool {
	var pred func(schema.Edge) bool
	if cel != nil && sc.FocusExpr != "" {
		p, err := cel.ScenarioPredicate(sc)
		if err != nil {
			slog.Warn("ignoring focus expression", "slug", e.Slug, "scenario", sc.ID, "error", err)
		} else {
			pred = p
		}
	}
	return e.Graph.FocusEdges(sc, pred)
}

// ImportResult describes one imported document.
type ImportResult struct {
	Slug     string                   `json:"slug"`
	Source   string                   `json:"source"`
	Changed  bool                     `json:"changed"`
	Warnings []schema.ValidationIssue `json:"warnings,omitempty"`
}

// LoadFailure is a file that could not be imported.
type LoadFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// LoadReport summarises a directory load.
type LoadReport struct {
	Imported []ImportResult `json:"imported"`
	Failed   []LoadFailure  `json:"failed,omitempty"`
}

// Changed counts documents whose content changed.
func (r *LoadReport) Changed() int {
	n := 0
	for _, i := range r.Imported {
		if i.Changed {
			n++
		}
	}
	return n
}

// Catalog is safe for concurrent use.
type Catalog struct {
	store     store.Store
	validator validation.Validator
	cel       *expressions.CELEngine
	layouts   *layout.Cache
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Entry // slug → compiled entry, keyed by checksum on read
}

// Config wires a Catalog.
type Config struct {
	Store     store.Store
	Validator validation.Validator
	CEL       *expressions.CELEngine
	Layouts   *layout.Cache
	Logger    *slog.Logger
}

// New creates a Catalog. A nil layout cache gets a default one logging to
// cfg.Logger.
func New(cfg Config) *Catalog {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Layouts == nil {
		lc := layout.DefaultConfig()
		lc.Logger = cfg.Logger
		cfg.Layouts = layout.NewCache(lc, 0)
	}
	return &Catalog{
		store:     cfg.Store,
		validator: cfg.Validator,
		cel:       cfg.CEL,
		layouts:   cfg.Layouts,
		logger:    cfg.Logger,
		entries:   make(map[string]*Entry),
	}
}

// CEL returns the engine used for focus expressions.
func (c *Catalog) CEL() *expressions.CELEngine { return c.cel }

// Supported reports whether a file name has a document extension.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadDir imports every document in dir. A bad file is reported and skipped;
// only an unreadable directory fails the whole load.
func (c *Catalog) LoadDir(ctx context.Context, dir string) (*LoadReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && Supported(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	report := &LoadReport{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			report.Failed = append(report.Failed, LoadFailure{Source: path, Error: err.Error()})
			continue
		}
		res, err := c.Import(ctx, path, data)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping document", "source", path, "error", err)
			report.Failed = append(report.Failed, LoadFailure{Source: path, Error: err.Error()})
			continue
		}
		report.Imported = append(report.Imported, *res)
	}

	c.logger.InfoContext(ctx, "catalog loaded",
		"dir", dir,
		"imported", len(report.Imported),
		"changed", report.Changed(),
		"failed", len(report.Failed),
	)
	return report, nil
}

// Import decodes, validates and stores one document. The format follows the
// source extension; the slug defaults to the file stem.
func (c *Catalog) Import(ctx context.Context, source string, data []byte) (*ImportResult, error) {
	model, warnings, err := c.check(ctx, source, data)
	if err != nil {
		return nil, err
	}
	res := &ImportResult{Slug: model.Slug, Source: source, Warnings: warnings}
	return c.save(logging.WithSlug(ctx, model.Slug), model, res)
}

// Compile decodes, validates and compiles one document without storing it.
// The entry's checksum is left empty.
func (c *Catalog) Compile(ctx context.Context, source string, data []byte) (*Entry, error) {
	model, _, err := c.check(ctx, source, data)
	if err != nil {
		return nil, err
	}
	return c.compile(model.Slug, "", model), nil
}

// check decodes and validates a document, filling in the slug.
func (c *Catalog) check(ctx context.Context, source string, data []byte) (*schema.ArchitectureModel, []schema.ValidationIssue, error) {
	model, err := Decode(source, data)
	if err != nil {
		return nil, nil, err
	}
	if model.Slug == "" {
		model.Slug = SlugFromSource(source)
	}
	if c.validator == nil {
		return model, nil, nil
	}

	ctx = logging.WithSlug(ctx, model.Slug)
	if strings.EqualFold(filepath.Ext(source), ".json") {
		if err := c.validator.ValidateDocument(data); err != nil {
			return nil, nil, err
		}
	}
	result := c.validator.Validate(model)
	if err := result.ToError(); err != nil {
		return nil, nil, err
	}
	for _, w := range result.Warnings {
		c.logger.DebugContext(ctx, "document warning", "path", w.Path, "code", w.Code, "message", w.Message)
	}
	return model, result.Warnings, nil
}

func (c *Catalog) save(ctx context.Context, model *schema.ArchitectureModel, res *ImportResult) (*ImportResult, error) {
	doc, err := json.Marshal(model)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to encode model").WithCause(err)
	}
	changed, err := c.store.UpsertDiagram(ctx, &store.Diagram{
		Slug:     model.Slug,
		Title:    model.Title,
		Document: doc,
		Source:   res.Source,
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "store diagram %q", model.Slug).WithCause(err)
	}
	res.Changed = changed
	if changed {
		c.mu.Lock()
		delete(c.entries, model.Slug)
		c.mu.Unlock()
		c.logger.InfoContext(ctx, "diagram imported", "source", res.Source)
	}
	return res, nil
}

// Decode parses a JSON or YAML document. YAML rejects unknown fields.
func Decode(source string, data []byte) (*schema.ArchitectureModel, error) {
	var model schema.ArchitectureModel
	switch strings.ToLower(filepath.Ext(source)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&model); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s: invalid YAML: %s", source, err.Error()).WithCause(err)
		}
	case ".json", "":
		if err := json.Unmarshal(data, &model); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s: invalid JSON: %s", source, err.Error()).WithCause(err)
		}
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s: unsupported document format", source)
	}
	return &model, nil
}

// SlugFromSource derives a slug from a file name: lowercase stem, spaces and
// underscores as dashes.
func SlugFromSource(source string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	stem = strings.ToLower(strings.TrimSpace(stem))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(stem)
}

// Lookup returns the compiled entry for a slug. Compiled entries are reused
// until the stored checksum changes. Unknown slugs fail with NOT_FOUND.
func (c *Catalog) Lookup(ctx context.Context, slug string) (*Entry, error) {
	d, err := c.store.GetDiagram(ctx, slug)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	cached, ok := c.entries[slug]
	c.mu.RUnlock()
	if ok && cached.Checksum == d.Checksum {
		return cached, nil
	}

	model, err := d.Model()
	if err != nil {
		return nil, err
	}
	entry := c.compile(slug, d.Checksum, model)

	c.mu.Lock()
	c.entries[slug] = entry
	c.mu.Unlock()
	return entry, nil
}

func (c *Catalog) compile(slug, checksum string, model *schema.ArchitectureModel) *Entry {
	g, result := graph.Compile(model)
	return &Entry{
		Slug:     slug,
		Checksum: checksum,
		Model:    model,
		Graph:    g,
		Layout:   c.layouts.Get(g.Nodes, g.Edges),
		Warnings: result.Warnings,
	}
}

// List returns the stored diagrams.
func (c *Catalog) List(ctx context.Context) ([]*store.DiagramSummary, error) {
	return c.store.ListDiagrams(ctx, store.DiagramFilter{})
}

// Delete removes a diagram and forgets its compiled entry.
func (c *Catalog) Delete(ctx context.Context, slug string) error {
	if err := c.store.DeleteDiagram(ctx, slug); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.entries, slug)
	c.mu.Unlock()
	return nil
}
