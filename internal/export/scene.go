// Package export draws a laid-out graph as SVG, PNG, Mermaid, ASCII or
// Graphviz output.
package export

import (
	"github.com/rendis/archflow/internal/animator"
	"github.com/rendis/archflow/internal/graph"
	"github.com/rendis/archflow/internal/layout"
	"github.com/rendis/archflow/pkg/schema"
)

// Scene is everything needed to draw one frame of a diagram.
type Scene struct {
	Graph     *graph.Graph
	Layout    *layout.Layout
	Scenario  schema.Scenario
	Focus     map[string]bool // emphasised edges; nil emphasises all
	Active    map[string]bool
	Visited   map[string]bool
	Particles []animator.Particle
}

func (s *Scene) edgeState(id string) edgeState {
	switch {
	case s.Active[id]:
		return edgeActive
	case s.Visited[id]:
		return edgeVisited
	case s.Focus == nil || s.Focus[id]:
		return edgeFocus
	default:
		return edgeDim
	}
}

func (s *Scene) drawable() bool {
	return s != nil && s.Graph != nil && s.Layout != nil
}

// Size is a container size in CSS pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
