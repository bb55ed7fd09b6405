package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/internal/playback"
	"github.com/rendis/archflow/pkg/schema"
)

// handleList returns every diagram in the catalogue.
func (s *ArchflowServer) handleList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.catalog.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"diagrams": list})
}

// handleDiagram exports a diagram in the requested format.
func (s *ArchflowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError("slug is required"), nil
	}
	formatName, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entry, err := s.catalog.Lookup(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram lookup failed: %v", err)), nil
	}
	step := req.GetInt("step", -1)
	scene, _, err := player.SceneAt(entry, s.cel, schema.ScenarioID(req.GetString("scenario", "")), step)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scene failed: %v", err)), nil
	}

	size := export.Size{Width: req.GetInt("width", 0), Height: req.GetInt("height", 0)}
	if format == export.FormatPNG && (size.Width <= 0 || size.Height <= 0) {
		b := scene.Layout.Bounds
		size = export.Size{Width: int(b.Width / 2), Height: int(b.Height / 2)}
	}
	a, err := s.exporter.Export(ctx, scene, format, size)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
	}

	if format == export.FormatPNG {
		encoded := strings.TrimPrefix(string(a.Data), "data:image/png;base64,")
		caption := fmt.Sprintf("%s (%s)", entry.Graph.Title, scene.Scenario.Label)
		return mcp.NewToolResultImage(caption, encoded, "image/png"), nil
	}
	return mcp.NewToolResultText(string(a.Data)), nil
}

// timelineStep is one step of a scenario as listed by archflow.timeline.
type timelineStep struct {
	Index      int      `json:"index"`
	Edges      []string `json:"edges"`
	Labels     []string `json:"labels,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// handleTimeline lists a scenario's steps, or the playback state at one step.
func (s *ArchflowServer) handleTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError("slug is required"), nil
	}
	entry, err := s.catalog.Lookup(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram lookup failed: %v", err)), nil
	}
	scenarioID := schema.ScenarioID(req.GetString("scenario", ""))

	if _, ok := req.GetArguments()["step"]; ok {
		step := req.GetInt("step", -1)
		scene, snap, err := player.SceneAt(entry, s.cel, scenarioID, step)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("timeline failed: %v", err)), nil
		}
		return marshalResult(map[string]any{
			"slug":       entry.Slug,
			"scenario":   scene.Scenario.ID,
			"note":       scene.Scenario.Note,
			"step":       snap.CurrentStep,
			"step_count": snap.StepCount,
			"status":     snap.Status,
			"active":     snap.Active,
			"visited":    snap.Visited,
		})
	}

	sc, err := resolveScenario(entry, scenarioID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("timeline failed: %v", err)), nil
	}
	steps := playback.FromTimeline(sc.Timeline)
	out := make([]timelineStep, 0, len(steps))
	for i, st := range steps {
		ts := timelineStep{Index: i, Edges: st.Edges, DurationMS: st.Duration.Milliseconds()}
		for _, id := range st.Edges {
			if e, ok := entry.Graph.Edge(id); ok && e.Label != "" {
				ts.Labels = append(ts.Labels, e.Label)
			}
		}
		out = append(out, ts)
	}
	return marshalResult(map[string]any{
		"slug":     entry.Slug,
		"scenario": sc.ID,
		"label":    sc.Label,
		"note":     sc.Note,
		"steps":    out,
	})
}

// handleQuery runs a jq expression over a diagram model.
func (s *ArchflowServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError("slug is required"), nil
	}
	expr, err := req.RequireString("expr")
	if err != nil {
		return mcp.NewToolResultError("expr is required"), nil
	}
	entry, err := s.catalog.Lookup(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram lookup failed: %v", err)), nil
	}
	result, err := s.jq.QueryModel(ctx, expr, entry.Model)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"query": expr, "result": result})
}

// handlePlay creates, drives, inspects or closes a live playback session.
func (s *ArchflowServer) handlePlay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	switch action {
	case "create":
		return s.playCreate(ctx, req)
	case "command", "state", "close":
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		p, err := s.sessions.Get(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("session lookup failed: %v", err)), nil
		}
		switch action {
		case "command":
			return s.playCommand(p, req)
		case "close":
			if err := s.sessions.Close(id); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("close failed: %v", err)), nil
			}
			return marshalResult(map[string]any{"ok": true, "session_id": id})
		default:
			return marshalResult(p.State())
		}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
}

func (s *ArchflowServer) playCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError("slug is required"), nil
	}
	p, err := s.sessions.Create(ctx, slug, player.SessionOptions{
		Scenario: schema.ScenarioID(req.GetString("scenario", "")),
		Mode:     schema.AnimationMode(req.GetString("mode", "")),
		Speed:    req.GetFloat("speed", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create failed: %v", err)), nil
	}

	// Capture the client so playback events reach it.
	if session := server.ClientSessionFromContext(ctx); session != nil && s.hub != nil {
		s.watchers.Register(p.ID(), session.SessionID())
		if err := s.watch(context.WithoutCancel(ctx), p.ID()); err != nil {
			s.watchers.Forget(p.ID())
			s.logger.Warn("playback watch failed", "session_id", p.ID(), "error", err)
		}
	}
	return marshalResult(p.State())
}

func (s *ArchflowServer) playCommand(p *player.Player, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scenario := req.GetString("scenario", "")
	mode := req.GetString("mode", "")
	name := req.GetString("command", "")
	if scenario == "" && mode == "" && name == "" {
		return mcp.NewToolResultError("command, scenario or mode is required"), nil
	}

	if scenario != "" {
		if err := p.SetScenario(schema.ScenarioID(scenario)); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scenario change failed: %v", err)), nil
		}
	}
	if mode != "" {
		if err := p.SetMode(schema.AnimationMode(mode)); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("mode change failed: %v", err)), nil
		}
	}
	if name != "" {
		cmd := playback.Command{
			Name:  playback.CommandName(name),
			Step:  req.GetInt("step", 0),
			Speed: req.GetFloat("speed", 0),
		}
		if err := p.Apply(cmd); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("command failed: %v", err)), nil
		}
	}
	return marshalResult(p.State())
}

// --- Internal helpers ---

// resolveScenario finds a scenario by id, or the default one when id is empty.
func resolveScenario(entry *catalog.Entry, id schema.ScenarioID) (schema.Scenario, error) {
	if id == "" {
		sc, _ := entry.Graph.DefaultScenario()
		return sc, nil
	}
	sc, ok := entry.Graph.Scenario(id)
	if !ok {
		return schema.Scenario{}, schema.NewErrorf(schema.ErrCodeNotFound, "scenario %q not found", id).WithSlug(entry.Slug)
	}
	return sc, nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
