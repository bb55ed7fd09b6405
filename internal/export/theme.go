package export

import (
	"fmt"
	"image/color"

	"github.com/rendis/archflow/pkg/schema"
)

// Palette shared by the SVG and PNG renderers.
var (
	bgCanvas     = color.RGBA{0x0b, 0x10, 0x20, 0xff}
	groupFill    = color.RGBA{0x1e, 0x29, 0x3b, 0x66}
	groupStroke  = color.RGBA{0x47, 0x55, 0x69, 0xff}
	textPrimary  = color.RGBA{0xf8, 0xfa, 0xfc, 0xff}
	textMuted    = color.RGBA{0x94, 0xa3, 0xb8, 0xff}
	activeEdge   = color.RGBA{0x34, 0xd3, 0x99, 0xff}
	visitedEdge  = color.RGBA{0x10, 0xb9, 0x81, 0xb0}
	particleFill = color.RGBA{0xfb, 0xbf, 0x24, 0xff}

	laneColors = map[schema.Lane]color.RGBA{
		schema.LaneRequest: {0x60, 0xa5, 0xfa, 0xff},
		schema.LaneAsync:   {0xc0, 0x84, 0xfc, 0xff},
		schema.LaneControl: {0xf5, 0x9e, 0x0b, 0xff},
	}
)

type tonePalette struct {
	fill   color.RGBA
	stroke color.RGBA
	badge  color.RGBA
}

var tones = map[schema.Tone]tonePalette{
	schema.ToneNeutral: {
		fill:   color.RGBA{0x1f, 0x29, 0x37, 0xff},
		stroke: color.RGBA{0x4b, 0x55, 0x63, 0xff},
		badge:  color.RGBA{0x37, 0x41, 0x51, 0xff},
	},
	schema.ToneAccent: {
		fill:   color.RGBA{0x1e, 0x3a, 0x8a, 0xff},
		stroke: color.RGBA{0x60, 0xa5, 0xfa, 0xff},
		badge:  color.RGBA{0x25, 0x63, 0xeb, 0xff},
	},
	schema.ToneWarn: {
		fill:   color.RGBA{0x78, 0x35, 0x0f, 0xff},
		stroke: color.RGBA{0xf5, 0x9e, 0x0b, 0xff},
		badge:  color.RGBA{0xb4, 0x53, 0x09, 0xff},
	},
}

func toneFor(t schema.Tone) tonePalette {
	if p, ok := tones[t]; ok {
		return p
	}
	return tones[schema.ToneNeutral]
}

func laneColor(l schema.Lane) color.RGBA {
	if c, ok := laneColors[l]; ok {
		return c
	}
	return laneColors[schema.LaneRequest]
}

// cssRGBA formats a colour for an SVG style attribute.
func cssRGBA(c color.RGBA) string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%.2f)", c.R, c.G, c.B, float64(c.A)/255)
}

// withAlpha returns c with its alpha scaled by f.
func withAlpha(c color.RGBA, f float64) color.RGBA {
	c.A = uint8(float64(c.A) * f)
	return c
}

// edgeState classifies an edge for styling.
type edgeState int

const (
	edgeDim edgeState = iota
	edgeFocus
	edgeVisited
	edgeActive
)

func (s edgeState) class() string {
	switch s {
	case edgeActive:
		return "active"
	case edgeVisited:
		return "visited"
	case edgeFocus:
		return "focus"
	default:
		return "dim"
	}
}

// stroke returns the colour and width an edge is drawn with.
func (s edgeState) stroke(lane schema.Lane) (color.RGBA, float64) {
	switch s {
	case edgeActive:
		return activeEdge, 3.5
	case edgeVisited:
		return visitedEdge, 2.5
	case edgeFocus:
		return laneColor(lane), 2
	default:
		return withAlpha(laneColor(lane), 0.3), 1.5
	}
}
