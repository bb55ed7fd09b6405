package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/expressions"
	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/internal/store"
	"github.com/rendis/archflow/internal/streaming"
)

// Catalog is the read side of the diagram catalogue.
type Catalog interface {
	List(ctx context.Context) ([]*store.DiagramSummary, error)
	Lookup(ctx context.Context, slug string) (*catalog.Entry, error)
}

// ArchflowServerDeps holds the dependencies for creating an ArchflowServer.
// Sessions and Hub are optional; without them archflow.play is not offered.
type ArchflowServerDeps struct {
	Catalog  Catalog
	Sessions *player.Manager
	Hub      streaming.Hub
	CEL      *expressions.CELEngine
	JQ       *expressions.GoJQEngine
	Exporter *export.Exporter
	Logger   *slog.Logger
}

// ArchflowServer wraps an MCP server with archflow tool handlers.
type ArchflowServer struct {
	catalog   Catalog
	sessions  *player.Manager
	hub       streaming.Hub
	cel       *expressions.CELEngine
	jq        *expressions.GoJQEngine
	exporter  *export.Exporter
	logger    *slog.Logger
	watchers  *SessionRegistry
	notifier  ClientNotifier
	mcpServer *server.MCPServer
}

// NewArchflowServer creates a new ArchflowServer with its tools registered.
func NewArchflowServer(deps ArchflowServerDeps) *ArchflowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.JQ == nil {
		deps.JQ = expressions.NewGoJQEngine()
	}
	if deps.Exporter == nil {
		deps.Exporter = &export.Exporter{}
	}

	s := &ArchflowServer{
		catalog:  deps.Catalog,
		sessions: deps.Sessions,
		hub:      deps.Hub,
		cel:      deps.CEL,
		jq:       deps.JQ,
		exporter: deps.Exporter,
		logger:   logger,
		watchers: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"archflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Archflow draws architecture diagrams and plays their scenario timelines. Use archflow.list to find diagrams, archflow.diagram to export one, archflow.timeline to see which edges a step highlights, archflow.query to run jq over a model, and archflow.play to drive a live playback session."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.watchers)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *ArchflowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ArchflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *ArchflowServer) tools() []server.ServerTool {
	tools := []server.ServerTool{
		{Tool: listTool(), Handler: s.handleList},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: timelineTool(), Handler: s.handleTimeline},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
	if s.sessions != nil {
		tools = append(tools, server.ServerTool{Tool: playTool(), Handler: s.handlePlay})
	}
	return tools
}

// --- Tool definitions ---

func listTool() mcp.Tool {
	return mcp.NewTool("archflow.list",
		mcp.WithDescription("List the diagrams in the catalogue"),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("archflow.diagram",
		mcp.WithDescription("Export a diagram, optionally at a scenario timeline step"),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Diagram slug")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("svg", "png", "mermaid", "ascii", "dot"),
			mcp.Description("Output format"),
		),
		mcp.WithString("scenario", mcp.Description("Scenario id (default: the diagram's first scenario)")),
		mcp.WithNumber("step", mcp.Description("Timeline step to highlight (default: idle)")),
		mcp.WithNumber("width", mcp.Description("Output width in pixels")),
		mcp.WithNumber("height", mcp.Description("Output height in pixels")),
	)
}

func timelineTool() mcp.Tool {
	return mcp.NewTool("archflow.timeline",
		mcp.WithDescription("Show the steps of a scenario timeline, or the active and visited edges at one step"),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Diagram slug")),
		mcp.WithString("scenario", mcp.Description("Scenario id (default: the diagram's first scenario)")),
		mcp.WithNumber("step", mcp.Description("Step index; omit to list every step")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("archflow.query",
		mcp.WithDescription("Run a jq expression over a diagram model"),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Diagram slug")),
		mcp.WithString("expr", mcp.Required(), mcp.Description("jq expression, e.g. '.edges | map(select(.lane == \"async\"))'")),
	)
}

func playTool() mcp.Tool {
	return mcp.NewTool("archflow.play",
		mcp.WithDescription("Create and drive a live playback session. Playback events are pushed to the caller as notifications"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("create", "command", "state", "close"),
			mcp.Description("create a session, send it a command, read its state, or close it"),
		),
		mcp.WithString("slug", mcp.Description("Diagram slug (create)")),
		mcp.WithString("session_id", mcp.Description("Session id (command, state, close)")),
		mcp.WithString("scenario", mcp.Description("Scenario id (create, command)")),
		mcp.WithString("mode", mcp.Enum("ambient", "guided", "static"), mcp.Description("Animation mode (create, command)")),
		mcp.WithString("command",
			mcp.Enum("play", "pause", "toggle", "step_forward", "step_back", "goto", "advance", "reset", "speed"),
			mcp.Description("Playback command (command)"),
		),
		mcp.WithNumber("step", mcp.Description("Target step for goto")),
		mcp.WithNumber("speed", mcp.Description("Speed multiplier for speed")),
	)
}
