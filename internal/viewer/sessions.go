package viewer

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/internal/playback"
	"github.com/rendis/archflow/pkg/schema"
)

// handleListSessions returns every live session.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.deps.Sessions.List()})
}

// handleCreateSession starts a playback session on a diagram.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slug string `json:"slug"`
		player.SessionOptions
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Slug == "" {
		writeError(w, http.StatusBadRequest, "slug is required")
		return
	}

	p, err := s.deps.Sessions.Create(r.Context(), body.Slug, body.SessionOptions)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p.State())
}

// handleGetSession returns the state of a session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.State())
}

// handleSessionCommand applies a scenario switch, a mode switch and/or a
// playback command, in that order.
func (s *Server) handleSessionCommand(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}

	var body struct {
		playback.Command
		Scenario schema.ScenarioID    `json:"scenario,omitempty"`
		Mode     schema.AnimationMode `json:"mode,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Name == "" && body.Scenario == "" && body.Mode == "" {
		writeError(w, http.StatusBadRequest, "command, scenario or mode is required")
		return
	}

	if body.Scenario != "" {
		if err := p.SetScenario(body.Scenario); err != nil {
			writeErr(w, err)
			return
		}
	}
	if body.Mode != "" {
		if err := p.SetMode(body.Mode); err != nil {
			writeErr(w, err)
			return
		}
	}
	if body.Name != "" {
		if err := p.Apply(body.Command); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, p.State())
}

// handleCloseSession ends a session.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Sessions.Close(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "session_id": id})
}

// handleSessionEvents returns the recorded events of a session, live or closed.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusNotImplemented, "event log is not configured")
		return
	}
	events, err := s.deps.Events.Session(r.Context(), r.PathValue("id"), queryNum[int64](r, "since", 0))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleSessionReplay folds a session's recorded events into a summary.
func (s *Server) handleSessionReplay(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusNotImplemented, "event log is not configured")
		return
	}
	summary, err := s.deps.Events.ReplaySession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
