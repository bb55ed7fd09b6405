package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/archflow/internal/streaming"
	"github.com/rendis/archflow/pkg/schema"
)

// ClientNotifier pushes playback events to the client watching a session.
type ClientNotifier interface {
	Notify(ctx context.Context, playbackID string, payload map[string]any) error
}

// MCPNotifier implements ClientNotifier using MCP server notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via MCP.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the client watching the playback session.
// Best-effort: returns nil if no client is watching.
func (n *MCPNotifier) Notify(_ context.Context, playbackID string, payload map[string]any) error {
	clientID, ok := n.sessions.ClientFor(playbackID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(clientID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Client went away between lookup and send.
		n.sessions.RemoveClient(clientID)
		return nil
	}
	return err
}

// watch forwards the playback events of one session to its client until the
// session closes or nobody is watching anymore. Animation frames are not
// forwarded.
func (s *ArchflowServer) watch(ctx context.Context, playbackID string) error {
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.FrameFilter{
		SessionID: playbackID,
		Types:     notifiedEvents,
	})
	if err != nil {
		return err
	}

	go func() {
		defer s.watchers.Forget(playbackID)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case fr, ok := <-ch:
				if !ok {
					return
				}
				if err := s.notifier.Notify(ctx, playbackID, framePayload(fr)); err != nil {
					s.logger.Warn("playback notification failed", "session_id", playbackID, "error", err)
				}
				if fr.Type == schema.EventSessionClosed {
					return
				}
				if _, watched := s.watchers.ClientFor(playbackID); !watched {
					return
				}
			}
		}
	}()
	return nil
}

var notifiedEvents = []string{
	schema.EventPlaybackStarted,
	schema.EventPlaybackPaused,
	schema.EventPlaybackStep,
	schema.EventPlaybackFinished,
	schema.EventPlaybackReset,
	schema.EventScenarioChanged,
	schema.EventModeChanged,
	schema.EventSpeedChanged,
	schema.EventSessionClosed,
}

func framePayload(fr streaming.Frame) map[string]any {
	return map[string]any{
		"level":  "info",
		"logger": "archflow.playback",
		"data": map[string]any{
			"session_id":   fr.SessionID,
			"slug":         fr.Slug,
			"scenario":     fr.Scenario,
			"type":         fr.Type,
			"status":       fr.Snapshot.Status,
			"current_step": fr.Snapshot.CurrentStep,
			"active":       fr.Snapshot.Active,
		},
	}
}
