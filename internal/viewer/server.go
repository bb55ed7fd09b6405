// Package viewer serves diagrams, exports and live playback sessions over HTTP.
package viewer

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/expressions"
	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/internal/store"
	"github.com/rendis/archflow/internal/streaming"
)

//go:embed templates static
var content embed.FS

// Catalog is the slice of *catalog.Catalog the viewer uses.
type Catalog interface {
	List(ctx context.Context) ([]*store.DiagramSummary, error)
	Lookup(ctx context.Context, slug string) (*catalog.Entry, error)
	Import(ctx context.Context, source string, data []byte) (*catalog.ImportResult, error)
	Delete(ctx context.Context, slug string) error
}

// Reloader triggers an immediate catalogue reload.
type Reloader interface {
	RunNow(ctx context.Context) []*catalog.LoadReport
}

// Deps holds the dependencies for the viewer server.
type Deps struct {
	Catalog  Catalog
	Sessions *player.Manager
	Hub      streaming.Hub
	Events   *store.EventLog
	Reloader Reloader // optional
	CEL      *expressions.CELEngine
	JQ       *expressions.GoJQEngine
	Exporter *export.Exporter
	Logger   *slog.Logger
}

// Server serves the viewer pages and API.
type Server struct {
	deps  Deps
	pages map[string]*template.Template
}

// NewServer creates a Server with parsed templates.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.JQ == nil {
		deps.JQ = expressions.NewGoJQEngine()
	}
	if deps.Exporter == nil {
		deps.Exporter = &export.Exporter{}
	}

	base := template.Must(
		template.New("").Funcs(templateFuncs).ParseFS(content, "templates/base.html"),
	)

	// Each page clones the shared set so its {{define "content"}} doesn't
	// collide with others.
	pageFiles := []string{
		"index.html",
		"diagram.html",
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, pf := range pageFiles {
		clone := template.Must(base.Clone())
		pages[pf] = template.Must(clone.ParseFS(content, "templates/"+pf))
	}

	return &Server{
		deps:  deps,
		pages: pages,
	}
}

// Handler returns the HTTP handler for the viewer routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	staticFS, _ := fs.Sub(content, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /diagrams/{slug}", s.handleDiagramPage)

	// Diagrams.
	mux.HandleFunc("GET /api/diagrams", s.handleListDiagrams)
	mux.HandleFunc("POST /api/diagrams", s.handleImportDiagram)
	mux.HandleFunc("GET /api/diagrams/{slug}", s.handleGetDiagram)
	mux.HandleFunc("DELETE /api/diagrams/{slug}", s.handleDeleteDiagram)
	mux.HandleFunc("GET /api/diagrams/{slug}/layout", s.handleLayout)
	mux.HandleFunc("GET /api/diagrams/{slug}/export/{format}", s.handleExport)
	mux.HandleFunc("POST /api/reload", s.handleReload)

	// Sessions.
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/commands", s.handleSessionCommand)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)
	mux.HandleFunc("GET /api/sessions/{id}/replay", s.handleSessionReplay)
	mux.HandleFunc("GET /api/sessions/{id}/export/{format}", s.handleSessionExport)

	// SSE.
	mux.HandleFunc("GET /sse/sessions/{id}", s.handleSSESession)

	return mux
}

// renderPage executes a page template by name.
func (s *Server) renderPage(w http.ResponseWriter, page string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.deps.Logger.Error("template not found", "page", page)
		http.Error(w, fmt.Sprintf("template %q not found", page), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		s.deps.Logger.Error("template render error", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
