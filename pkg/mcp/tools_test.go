package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/expressions"
	"github.com/rendis/archflow/internal/graph"
	"github.com/rendis/archflow/internal/layout"
	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/internal/playback"
	"github.com/rendis/archflow/internal/store"
	"github.com/rendis/archflow/internal/streaming"
	"github.com/rendis/archflow/pkg/schema"
)

// --- Mock Catalog ---

type mockCatalog struct {
	entries map[string]*catalog.Entry
}

func (m *mockCatalog) List(_ context.Context) ([]*store.DiagramSummary, error) {
	out := make([]*store.DiagramSummary, 0, len(m.entries))
	for slug, e := range m.entries {
		out = append(out, &store.DiagramSummary{Slug: slug, Title: e.Graph.Title, Checksum: e.Checksum})
	}
	return out, nil
}

func (m *mockCatalog) Lookup(_ context.Context, slug string) (*catalog.Entry, error) {
	if e, ok := m.entries[slug]; ok {
		return e, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "diagram %q not found", slug)
}

func checkoutEntry(t *testing.T) *catalog.Entry {
	t.Helper()
	model := &schema.ArchitectureModel{
		Slug:  "checkout",
		Title: "Checkout",
		Nodes: []schema.Node{
			{ID: "client", Title: "Client"},
			{ID: "api", Title: "API"},
			{ID: "db", Title: "DB"},
			{ID: "queue", Title: "Queue"},
		},
		Edges: []schema.Edge{
			{From: "client", To: "api", Label: "POST /orders"},
			{From: "api", To: "db"},
			{From: "api", To: "queue", Lane: schema.LaneAsync},
		},
		Scenarios: []schema.Scenario{
			{
				ID: schema.ScenarioBaseline, Label: "Baseline", Note: "Happy path",
				Timeline: []schema.TimelineStep{
					{Kind: schema.StepKindEdge, EdgeID: "client-api"},
					{Kind: schema.StepKindEdge, EdgeID: "api-db"},
				},
			},
			{
				ID: schema.ScenarioSpike, Label: "Spike", Note: "Queue backs up",
				Timeline: []schema.TimelineStep{
					{Kind: schema.StepKindParallel, Edges: []string{"client-api", "api-queue"}},
				},
			},
		},
	}
	g, _ := graph.Compile(model)
	return &catalog.Entry{
		Slug:     "checkout",
		Checksum: "abc123",
		Model:    model,
		Graph:    g,
		Layout:   layout.Compute(g.Nodes, g.Edges, layout.DefaultConfig()),
	}
}

// --- Mock Notifier ---

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.payloads))
	for _, p := range n.payloads {
		out = append(out, p["data"].(map[string]any)["type"].(string))
	}
	return out
}

// --- Helper ---

type fixture struct {
	srv      *ArchflowServer
	sessions *player.Manager
	hub      *streaming.MemoryHub
	clock    *playback.ManualClock
}

func newFixture(t *testing.T, rasterize bool) *fixture {
	t.Helper()
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)

	cat := &mockCatalog{entries: map[string]*catalog.Entry{"checkout": checkoutEntry(t)}}
	hub := streaming.NewMemoryHub()
	clock := playback.NewManualClock()
	sessions := player.NewManager(cat, player.Config{
		CEL:           cel,
		Hub:           hub,
		Clock:         clock,
		FrameInterval: time.Hour,
	})
	t.Cleanup(sessions.CloseAll)

	exporter := &export.Exporter{}
	if rasterize {
		r, err := export.NewGGRasterizer()
		require.NoError(t, err)
		exporter.Rasterizer = r
	}

	srv := NewArchflowServer(ArchflowServerDeps{
		Catalog:  cat,
		Sessions: sessions,
		Hub:      hub,
		CEL:      cel,
		Exporter: exporter,
	})
	return &fixture{srv: srv, sessions: sessions, hub: hub, clock: clock}
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// --- Tests ---

func TestListTool(t *testing.T) {
	f := newFixture(t, false)

	result, err := f.srv.handleList(context.Background(), buildRequest("archflow.list", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Diagrams []store.DiagramSummary `json:"diagrams"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Diagrams, 1)
	assert.Equal(t, "checkout", out.Diagrams[0].Slug)
	assert.Equal(t, "Checkout", out.Diagrams[0].Title)
}

func TestDiagramTool(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name     string
		args     map[string]any
		contains string
	}{
		{"svg", map[string]any{"slug": "checkout", "format": "svg", "width": 800, "height": 400}, `width="800"`},
		{"mermaid", map[string]any{"slug": "checkout", "format": "mermaid", "step": 0}, "graph LR"},
		{"ascii", map[string]any{"slug": "checkout", "format": "ascii", "scenario": "spike", "step": 0}, "[>>] client"},
		{"dot", map[string]any{"slug": "checkout", "format": "dot"}, "digraph"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.srv.handleDiagram(context.Background(), buildRequest("archflow.diagram", tc.args))
			require.NoError(t, err)
			require.False(t, result.IsError, extractText(t, result))
			assert.Contains(t, extractText(t, result), tc.contains)
		})
	}
}

func TestDiagramToolErrors(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name     string
		args     map[string]any
		contains string
	}{
		{"missing slug", map[string]any{"format": "svg"}, "slug is required"},
		{"missing format", map[string]any{"slug": "checkout"}, "format is required"},
		{"unknown format", map[string]any{"slug": "checkout", "format": "pdf"}, "unknown export format"},
		{"unknown slug", map[string]any{"slug": "ghost", "format": "svg"}, "NOT_FOUND"},
		{"unknown scenario", map[string]any{"slug": "checkout", "format": "svg", "scenario": "cache"}, "NOT_FOUND"},
		{"step out of range", map[string]any{"slug": "checkout", "format": "svg", "step": 5}, "INVALID_TRANSITION"},
		{"png unavailable", map[string]any{"slug": "checkout", "format": "png"}, "EXPORT_UNAVAILABLE"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.srv.handleDiagram(context.Background(), buildRequest("archflow.diagram", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), tc.contains)
		})
	}
}

func TestDiagramToolPNG(t *testing.T) {
	f := newFixture(t, true)

	result, err := f.srv.handleDiagram(context.Background(), buildRequest("archflow.diagram", map[string]any{
		"slug": "checkout", "format": "png", "step": 1,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 2)

	assert.Equal(t, "Checkout (Baseline)", mcp.GetTextFromContent(result.Content[0]))
	img, ok := result.Content[1].(mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MIMEType)
	raw, err := base64.StdEncoding.DecodeString(img.Data)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(raw[:4]))
}

func TestTimelineTool_Steps(t *testing.T) {
	f := newFixture(t, false)

	result, err := f.srv.handleTimeline(context.Background(), buildRequest("archflow.timeline", map[string]any{
		"slug": "checkout",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Scenario string         `json:"scenario"`
		Steps    []timelineStep `json:"steps"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, "baseline", out.Scenario)
	require.Len(t, out.Steps, 2)
	assert.Equal(t, []string{"client-api"}, out.Steps[0].Edges)
	assert.Equal(t, []string{"POST /orders"}, out.Steps[0].Labels)
	assert.Equal(t, int64(2000), out.Steps[0].DurationMS)
	assert.Empty(t, out.Steps[1].Labels)

	result, err = f.srv.handleTimeline(context.Background(), buildRequest("archflow.timeline", map[string]any{
		"slug": "checkout", "scenario": "spike",
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &out)
	require.Len(t, out.Steps, 1)
	assert.Equal(t, int64(2500), out.Steps[0].DurationMS)
}

func TestTimelineTool_AtStep(t *testing.T) {
	f := newFixture(t, false)

	type stepState struct {
		Step      int      `json:"step"`
		StepCount int      `json:"step_count"`
		Status    string   `json:"status"`
		Active    []string `json:"active"`
		Visited   []string `json:"visited"`
	}
	tests := []struct {
		step int
		want stepState
	}{
		{0, stepState{Step: 0, StepCount: 2, Status: "stepped", Active: []string{"client-api"}, Visited: []string{"client-api"}}},
		{1, stepState{Step: 1, StepCount: 2, Status: "finished", Active: []string{"api-db"}, Visited: []string{"api-db", "client-api"}}},
	}
	for _, tt := range tests {
		result, err := f.srv.handleTimeline(context.Background(), buildRequest("archflow.timeline", map[string]any{
			"slug": "checkout", "step": tt.step,
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		var out stepState
		unmarshalResult(t, result, &out)
		assert.Equal(t, tt.want, out, "step %d", tt.step)
	}
}

func TestTimelineToolErrors(t *testing.T) {
	f := newFixture(t, false)

	for _, args := range []map[string]any{
		{},
		{"slug": "ghost"},
		{"slug": "checkout", "scenario": "failover"},
		{"slug": "checkout", "step": 9},
	} {
		result, err := f.srv.handleTimeline(context.Background(), buildRequest("archflow.timeline", args))
		require.NoError(t, err)
		assert.True(t, result.IsError, "args %v", args)
	}
}

func TestQueryTool(t *testing.T) {
	f := newFixture(t, false)

	result, err := f.srv.handleQuery(context.Background(), buildRequest("archflow.query", map[string]any{
		"slug": "checkout",
		"expr": `[.edges[] | select(.lane == "async") | .to]`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Result []string `json:"result"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, []string{"queue"}, out.Result)
}

func TestQueryToolErrors(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name     string
		args     map[string]any
		contains string
	}{
		{"missing expr", map[string]any{"slug": "checkout"}, "expr is required"},
		{"bad expr", map[string]any{"slug": "checkout", "expr": ".nodes["}, "EXPRESSION_ERROR"},
		{"unknown slug", map[string]any{"slug": "ghost", "expr": "."}, "NOT_FOUND"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.srv.handleQuery(context.Background(), buildRequest("archflow.query", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), tc.contains)
		})
	}
}

func TestPlayTool(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	result, err := f.srv.handlePlay(ctx, buildRequest("archflow.play", map[string]any{
		"action": "create", "slug": "checkout", "mode": "guided",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var state player.State
	unmarshalResult(t, result, &state)
	require.NotEmpty(t, state.SessionID)
	assert.Equal(t, schema.ModeGuided, state.Mode)

	result, err = f.srv.handlePlay(ctx, buildRequest("archflow.play", map[string]any{
		"action": "command", "session_id": state.SessionID, "command": "goto", "step": 1,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	unmarshalResult(t, result, &state)
	assert.Equal(t, 1, state.Snapshot.CurrentStep)
	assert.Equal(t, []string{"api-db"}, state.Snapshot.Active)

	result, err = f.srv.handlePlay(ctx, buildRequest("archflow.play", map[string]any{
		"action": "command", "session_id": state.SessionID, "scenario": "spike",
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &state)
	assert.Equal(t, schema.ScenarioSpike, state.Scenario)
	assert.Equal(t, schema.PlaybackIdle, state.Snapshot.Status)

	result, err = f.srv.handlePlay(ctx, buildRequest("archflow.play", map[string]any{
		"action": "state", "session_id": state.SessionID,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	result, err = f.srv.handlePlay(ctx, buildRequest("archflow.play", map[string]any{
		"action": "close", "session_id": state.SessionID,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Empty(t, f.sessions.List())
}

func TestPlayToolErrors(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	p, err := f.sessions.Create(ctx, "checkout", player.SessionOptions{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		args     map[string]any
		contains string
	}{
		{"missing action", map[string]any{}, "action is required"},
		{"unknown action", map[string]any{"action": "rewind"}, "unknown action"},
		{"create without slug", map[string]any{"action": "create"}, "slug is required"},
		{"create unknown slug", map[string]any{"action": "create", "slug": "ghost"}, "NOT_FOUND"},
		{"create bad mode", map[string]any{"action": "create", "slug": "checkout", "mode": "disco"}, "VALIDATION_ERROR"},
		{"missing session", map[string]any{"action": "state"}, "session_id is required"},
		{"unknown session", map[string]any{"action": "state", "session_id": "nope"}, "NOT_FOUND"},
		{"empty command", map[string]any{"action": "command", "session_id": p.ID()}, "command, scenario or mode is required"},
		{"bad step", map[string]any{"action": "command", "session_id": p.ID(), "command": "goto", "step": 4}, "INVALID_TRANSITION"},
		{"bad scenario", map[string]any{"action": "command", "session_id": p.ID(), "scenario": "cache"}, "NOT_FOUND"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.srv.handlePlay(ctx, buildRequest("archflow.play", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), tc.contains)
		})
	}
}

func TestWatchForwardsPlaybackEvents(t *testing.T) {
	f := newFixture(t, false)
	rec := &recordingNotifier{}
	f.srv.notifier = rec

	p, err := f.sessions.Create(context.Background(), "checkout", player.SessionOptions{})
	require.NoError(t, err)
	f.srv.watchers.Register(p.ID(), "client-1")
	require.NoError(t, f.srv.watch(context.Background(), p.ID()))

	require.NoError(t, p.Apply(playback.Command{Name: playback.CmdStepForward}))
	p.Frame(context.Background())
	require.NoError(t, f.sessions.Close(p.ID()))

	require.Eventually(t, func() bool {
		_, watched := f.srv.watchers.ClientFor(p.ID())
		return !watched
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{schema.EventPlaybackStep, schema.EventSessionClosed}, rec.types())
	assert.Equal(t, 0, f.hub.Subscribers())
}

// --- Test helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
