package viewer

import (
	"html/template"
	"net/http"

	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/internal/playback"
	"github.com/rendis/archflow/internal/store"
	"github.com/rendis/archflow/pkg/schema"
)

// indexData is the template data for the diagram index.
type indexData struct {
	Title    string
	Diagrams []*store.DiagramSummary
	Sessions []player.State
}

// diagramData is the template data for a diagram page.
type diagramData struct {
	Title     string
	Slug      string
	Scenario  schema.Scenario
	Scenarios []schema.Scenario
	Nodes     []schema.Node
	Snapshot  playback.Snapshot
	SVG       template.HTML
	Warnings  []schema.ValidationIssue
	Formats   []export.Format
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.List(r.Context())
	if err != nil {
		s.deps.Logger.Error("index: list diagrams", "error", err)
	}
	data := indexData{Title: "Diagrams", Diagrams: list}
	if s.deps.Sessions != nil {
		data.Sessions = s.deps.Sessions.List()
	}
	s.renderPage(w, "index.html", data)
}

// handleDiagramPage renders a diagram with its SVG inline. Query: scenario,
// step. An unknown slug renders a 404 page with nothing drawn.
func (s *Server) handleDiagramPage(w http.ResponseWriter, r *http.Request) {
	entry, err := s.deps.Catalog.Lookup(r.Context(), r.PathValue("slug"))
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			w.WriteHeader(http.StatusNotFound)
			s.renderPage(w, "diagram.html", diagramData{Title: "Not found", Slug: r.PathValue("slug")})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	scene, snap, err := player.SceneAt(entry, s.deps.CEL, schema.ScenarioID(r.URL.Query().Get("scenario")), queryNum(r, "step", -1))
	if err != nil {
		http.Error(w, err.Error(), statusFor(codeOf(err)))
		return
	}
	rendering, err := export.Render(scene)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.renderPage(w, "diagram.html", diagramData{
		Title:     entry.Graph.Title,
		Slug:      entry.Slug,
		Scenario:  scene.Scenario,
		Scenarios: entry.Graph.Scenarios,
		Nodes:     entry.Graph.Nodes,
		Snapshot:  snap,
		SVG:       template.HTML(rendering.SVG()),
		Warnings:  entry.Warnings,
		Formats:   export.Formats,
	})
}

func codeOf(err error) string {
	if aErr, ok := err.(*schema.ArchflowError); ok {
		return aErr.Code
	}
	return ""
}
