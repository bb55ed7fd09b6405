package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/archflow/internal/player"
)

func TestNewArchflowServer(t *testing.T) {
	s := NewArchflowServer(ArchflowServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.jq)
	assert.NotNil(t, s.exporter)
	assert.NotNil(t, s.notifier)
}

func TestToolRegistration(t *testing.T) {
	s := NewArchflowServer(ArchflowServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 4)
	for _, name := range []string{"archflow.list", "archflow.diagram", "archflow.timeline", "archflow.query"} {
		assert.NotNil(t, s.mcpServer.GetTool(name), "tool %s should be registered", name)
	}
	assert.Nil(t, s.mcpServer.GetTool("archflow.play"), "play needs a session manager")

	withSessions := NewArchflowServer(ArchflowServerDeps{Sessions: player.NewManager(nil, player.Config{})})
	assert.Len(t, withSessions.mcpServer.ListTools(), 5)
	assert.NotNil(t, withSessions.mcpServer.GetTool("archflow.play"))
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"list", "archflow.list", "List the diagrams in the catalogue"},
		{"diagram", "archflow.diagram", "Export a diagram, optionally at a scenario timeline step"},
		{"timeline", "archflow.timeline", "Show the steps of a scenario timeline, or the active and visited edges at one step"},
		{"query", "archflow.query", "Run a jq expression over a diagram model"},
	}

	s := NewArchflowServer(ArchflowServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
