// Package layout places nodes on a fixed virtual canvas and routes edges as
// Bézier curves between node boxes.
package layout

import (
	"log/slog"
	"math"

	"github.com/rendis/archflow/pkg/schema"
)

// Config holds the canvas geometry. Coordinates are canvas units; the viewer
// scales the canvas to fit its container.
type Config struct {
	CanvasWidth       float64 `json:"canvas_width"`
	CanvasHeight      float64 `json:"canvas_height"`
	PaddingX          float64 `json:"padding_x"`
	PaddingY          float64 `json:"padding_y"`
	NodeWidth         float64 `json:"node_width"`
	NodeHeight        float64 `json:"node_height"`
	MinColumnSpacing  float64 `json:"min_column_spacing"`
	MinRowSpacingFew  float64 `json:"min_row_spacing_few"`  // columns of 2..3 nodes
	MinRowSpacingMany float64 `json:"min_row_spacing_many"` // columns of 4+ nodes
	CurvatureFactor   float64 `json:"curvature_factor"`
	MaxCurvature      float64 `json:"max_curvature"`
	SelfLoopHeight    float64 `json:"self_loop_height"`
	SampleSteps       int     `json:"sample_steps"`

	// Logger receives layout warnings. Nil means slog.Default().
	Logger *slog.Logger `json:"-"`
}

// DefaultConfig returns the standard canvas geometry.
func DefaultConfig() Config {
	return Config{
		CanvasWidth:       2200,
		CanvasHeight:      1000,
		PaddingX:          160,
		PaddingY:          200,
		NodeWidth:         160,
		NodeHeight:        70,
		MinColumnSpacing:  420,
		MinRowSpacingFew:  260,
		MinRowSpacingMany: 240,
		CurvatureFactor:   0.45,
		MaxCurvature:      150,
		SelfLoopHeight:    90,
		SampleSteps:       64,
	}
}

// Layout is the computed geometry of one graph. Positions are node box centres.
type Layout struct {
	Positions    map[string]Point        `json:"positions"`
	Curves       map[string]Curve        `json:"curves"`
	Paths        map[string]string       `json:"paths"`
	LabelAnchors map[string]Point        `json:"label_anchors"`
	Samples      map[string]*SampledPath `json:"-"`
	Layering     Layering                `json:"-"`
	Bounds       Rect                    `json:"bounds"`
	Config       Config                  `json:"config"`
}

// Compute lays out nodes and edges. It is a pure function of its inputs and
// the config. Edges whose endpoints are unknown are skipped.
func Compute(nodes []schema.Node, edges []schema.Edge, cfg Config) *Layout {
	l := &Layout{
		Positions:    make(map[string]Point, len(nodes)),
		Curves:       make(map[string]Curve, len(edges)),
		Paths:        make(map[string]string, len(edges)),
		LabelAnchors: make(map[string]Point, len(edges)),
		Samples:      make(map[string]*SampledPath, len(edges)),
		Config:       cfg,
		Bounds:       Rect{Width: cfg.CanvasWidth, Height: cfg.CanvasHeight},
	}

	l.Layering = Layer(nodes, edges)
	if !l.Layering.Converged {
		logger := cfg.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("layering did not converge; graph likely contains a cycle",
			"nodes", len(nodes),
			"iterations", l.Layering.Iterations,
		)
	}

	colSpacing := cfg.MinColumnSpacing
	if avail := (cfg.CanvasWidth - 2*cfg.PaddingX) / float64(l.Layering.MaxDepth+1); avail > colSpacing {
		colSpacing = avail
	}

	for depth, column := range l.Layering.Columns {
		x := cfg.PaddingX + float64(depth)*colSpacing
		spacing := rowSpacing(len(column), cfg)
		top := cfg.CanvasHeight/2 - float64(len(column)-1)*spacing/2
		for i, id := range column {
			l.Positions[id] = Point{X: x, Y: top + float64(i)*spacing}
		}
	}

	for _, p := range l.Positions {
		l.Bounds = l.Bounds.Union(Rect{
			X:      p.X - cfg.NodeWidth/2,
			Y:      p.Y - cfg.NodeHeight/2,
			Width:  cfg.NodeWidth,
			Height: cfg.NodeHeight,
		})
	}

	for _, e := range edges {
		from, ok := l.Positions[e.From]
		if !ok {
			continue
		}
		to, ok := l.Positions[e.To]
		if !ok {
			continue
		}
		id := e.Key()
		c := EdgeCurve(from, to, cfg)
		l.Curves[id] = c
		l.Paths[id] = c.SVGPath()
		l.LabelAnchors[id] = c.Eval(0.5)
		l.Samples[id] = Sample(c, cfg.SampleSteps)
	}

	return l
}

// rowSpacing returns the vertical distance between nodes of a column with n
// members. Columns spread to fill the padded canvas height but never tighter
// than the configured minimum.
func rowSpacing(n int, cfg Config) float64 {
	if n <= 1 {
		return 0
	}
	floor := cfg.MinRowSpacingFew
	if n > 3 {
		floor = cfg.MinRowSpacingMany
	}
	fill := (cfg.CanvasHeight - 2*cfg.PaddingY) / float64(n-1)
	return math.Max(floor, fill)
}

// Path returns the SVG path of an edge.
func (l *Layout) Path(edgeID string) (string, bool) {
	p, ok := l.Paths[edgeID]
	return p, ok
}

// Sample returns the sampled path table of an edge.
func (l *Layout) Sample(edgeID string) (*SampledPath, bool) {
	sp, ok := l.Samples[edgeID]
	return sp, ok
}

// NodeRect returns the box of a positioned node.
func (l *Layout) NodeRect(nodeID string) (Rect, bool) {
	p, ok := l.Positions[nodeID]
	if !ok {
		return Rect{}, false
	}
	return Rect{
		X:      p.X - l.Config.NodeWidth/2,
		Y:      p.Y - l.Config.NodeHeight/2,
		Width:  l.Config.NodeWidth,
		Height: l.Config.NodeHeight,
	}, true
}

// GroupRect returns a padded box around the given nodes, or false when none of
// them is positioned.
func (l *Layout) GroupRect(nodeIDs []string, pad float64) (Rect, bool) {
	var (
		out   Rect
		found bool
	)
	for _, id := range nodeIDs {
		r, ok := l.NodeRect(id)
		if !ok {
			continue
		}
		if !found {
			out, found = r, true
			continue
		}
		out = out.Union(r)
	}
	if !found {
		return Rect{}, false
	}
	return Rect{X: out.X - pad, Y: out.Y - pad, Width: out.Width + 2*pad, Height: out.Height + 2*pad}, true
}

// EdgeCurve routes an edge between two box centres. The curve starts and ends
// on the box boundaries along the centre-to-centre line. Control points are
// pushed out along the dominant axis by min(dist*CurvatureFactor, MaxCurvature)
// so the curve leaves and enters each box smoothly. An edge from a node to
// itself becomes a quadratic loop above the box.
func EdgeCurve(from, to Point, cfg Config) Curve {
	hw, hh := cfg.NodeWidth/2, cfg.NodeHeight/2

	if from == to {
		return Curve{
			Kind: CurveQuadratic,
			P0:   Point{X: from.X - hw/2, Y: from.Y - hh},
			P1:   Point{X: from.X, Y: from.Y - hh - 2*cfg.SelfLoopHeight},
			P2:   Point{X: from.X + hw/2, Y: from.Y - hh},
		}
	}

	dx, dy := to.X-from.X, to.Y-from.Y
	angle := math.Atan2(dy, dx)
	off := boundaryOffset(angle, hw, hh)
	ux, uy := math.Cos(angle), math.Sin(angle)

	start := Point{X: from.X + ux*off, Y: from.Y + uy*off}
	end := Point{X: to.X - ux*off, Y: to.Y - uy*off}

	dist := math.Hypot(end.X-start.X, end.Y-start.Y)
	bend := math.Min(dist*cfg.CurvatureFactor, cfg.MaxCurvature)

	c := Curve{Kind: CurveCubic, P0: start, P3: end}
	if math.Abs(dx) >= math.Abs(dy) {
		s := sign(dx)
		c.P1 = Point{X: start.X + s*bend, Y: start.Y}
		c.P2 = Point{X: end.X - s*bend, Y: end.Y}
	} else {
		s := sign(dy)
		c.P1 = Point{X: start.X, Y: start.Y + s*bend}
		c.P2 = Point{X: end.X, Y: end.Y - s*bend}
	}
	return c
}

// boundaryOffset is the distance from a box centre to its edge along angle.
func boundaryOffset(angle, hw, hh float64) float64 {
	cos, sin := math.Abs(math.Cos(angle)), math.Abs(math.Sin(angle))
	switch {
	case cos < 1e-9:
		return hh
	case sin < 1e-9:
		return hw
	default:
		return math.Min(hw/cos, hh/sin)
	}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
