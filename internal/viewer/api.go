package viewer

import (
	"fmt"
	"io"
	"net/http"

	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/pkg/schema"
)

const maxDocumentBytes = 1 << 20

// handleListDiagrams returns every stored diagram.
func (s *Server) handleListDiagrams(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"diagrams": list})
}

// handleImportDiagram stores a document posted as the request body. The
// ?source= name picks the format and default slug.
func (s *Server) handleImportDiagram(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, "source is required, e.g. ?source=checkout.yaml")
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}
	if len(data) > maxDocumentBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}

	res, err := s.deps.Catalog.Import(r.Context(), source, data)
	if err != nil {
		writeErr(w, err)
		return
	}
	status := http.StatusOK
	if res.Changed {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// handleGetDiagram returns the authored model, or the result of a jq query
// over it when ?jq= is set.
func (s *Server) handleGetDiagram(w http.ResponseWriter, r *http.Request) {
	entry, err := s.deps.Catalog.Lookup(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeErr(w, err)
		return
	}

	if q := r.URL.Query().Get("jq"); q != "" {
		result, err := s.deps.JQ.QueryModel(r.Context(), q, entry.Model)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"query": q, "result": result})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"slug":     entry.Slug,
		"checksum": entry.Checksum,
		"model":    entry.Model,
		"warnings": entry.Warnings,
	})
}

// handleDeleteDiagram removes a diagram.
func (s *Server) handleDeleteDiagram(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if err := s.deps.Catalog.Delete(r.Context(), slug); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "slug": slug})
}

// handleLayout returns the computed geometry of a diagram.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	entry, err := s.deps.Catalog.Lookup(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slug":      entry.Slug,
		"layout":    entry.Layout,
		"columns":   entry.Layout.Layering.Columns,
		"converged": entry.Layout.Layering.Converged,
	})
}

// handleExport renders a diagram at a scenario step in the requested format.
// Query: scenario, step (default -1 = idle), width, height.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.PathValue("format"))
	if err != nil {
		writeErr(w, err)
		return
	}
	entry, err := s.deps.Catalog.Lookup(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeErr(w, err)
		return
	}
	scene, _, err := player.SceneAt(entry, s.deps.CEL, schema.ScenarioID(r.URL.Query().Get("scenario")), queryNum(r, "step", -1))
	if err != nil {
		writeErr(w, err)
		return
	}
	s.writeArtifact(w, r, scene, format)
}

// handleSessionExport renders a live session as it currently looks.
func (s *Server) handleSessionExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.PathValue("format"))
	if err != nil {
		writeErr(w, err)
		return
	}
	p, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	s.writeArtifact(w, r, p.Scene(), format)
}

func (s *Server) writeArtifact(w http.ResponseWriter, r *http.Request, scene *export.Scene, format export.Format) {
	size := export.Size{Width: queryNum(r, "width", 0), Height: queryNum(r, "height", 0)}
	if format == export.FormatPNG && (size.Width <= 0 || size.Height <= 0) {
		b := scene.Layout.Bounds
		size = export.Size{Width: int(b.Width / 2), Height: int(b.Height / 2)}
	}
	a, err := s.deps.Exporter.Export(r.Context(), scene, format, size)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", a.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(a.Data)
}

// handleReload reloads the catalogue directories now.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reloader == nil {
		writeError(w, http.StatusNotImplemented, "no catalogue directory configured")
		return
	}
	reports := s.deps.Reloader.RunNow(r.Context())
	if reports == nil {
		reports = []*catalog.LoadReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}
