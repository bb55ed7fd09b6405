// Package streaming fans live playback frames out to viewers.
package streaming

import (
	"context"
	"time"

	"github.com/rendis/archflow/internal/animator"
	"github.com/rendis/archflow/internal/playback"
)

// Frame is one live update of a playback session: a state change, or an
// animation tick carrying particle positions.
type Frame struct {
	SessionID string              `json:"session_id"`
	Slug      string              `json:"slug"`
	Scenario  string              `json:"scenario"`
	Mode      string              `json:"mode,omitempty"`
	Type      string              `json:"type"`
	Snapshot  playback.Snapshot   `json:"snapshot"`
	Particles []animator.Particle `json:"particles,omitempty"`
	At        time.Time           `json:"at"`
}

// FrameFilter specifies which frames a subscriber wants to receive.
type FrameFilter struct {
	SessionID string   `json:"session_id,omitempty"`
	Types     []string `json:"types,omitempty"`
}

// Hub provides pub/sub for live frames.
type Hub interface {
	Publish(ctx context.Context, frame Frame) error
	Subscribe(ctx context.Context, filter FrameFilter) (<-chan Frame, func(), error)
}
