package layout

import (
	"fmt"
	"math"
	"sort"
)

// Point is a 2D coordinate on the virtual canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Union returns the smallest rect containing r and o.
func (r Rect) Union(o Rect) Rect {
	minX := math.Min(r.X, o.X)
	minY := math.Min(r.Y, o.Y)
	maxX := math.Max(r.X+r.Width, o.X+o.Width)
	maxY := math.Max(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// CurveKind distinguishes the two path shapes an edge can take.
type CurveKind string

const (
	CurveCubic     CurveKind = "cubic"
	CurveQuadratic CurveKind = "quadratic"
)

// Curve is a Bézier segment. Quadratic curves leave P3 unused.
type Curve struct {
	Kind CurveKind `json:"kind"`
	P0   Point     `json:"p0"`
	P1   Point     `json:"p1"`
	P2   Point     `json:"p2"`
	P3   Point     `json:"p3,omitempty"`
}

// Eval returns the point at parameter t in [0,1].
func (c Curve) Eval(t float64) Point {
	u := 1 - t
	if c.Kind == CurveQuadratic {
		return Point{
			X: u*u*c.P0.X + 2*u*t*c.P1.X + t*t*c.P2.X,
			Y: u*u*c.P0.Y + 2*u*t*c.P1.Y + t*t*c.P2.Y,
		}
	}
	a, b, cc, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return Point{
		X: a*c.P0.X + b*c.P1.X + cc*c.P2.X + d*c.P3.X,
		Y: a*c.P0.Y + b*c.P1.Y + cc*c.P2.Y + d*c.P3.Y,
	}
}

// End returns the final point of the curve.
func (c Curve) End() Point {
	if c.Kind == CurveQuadratic {
		return c.P2
	}
	return c.P3
}

// SVGPath renders the curve as an SVG path "d" attribute.
func (c Curve) SVGPath() string {
	if c.Kind == CurveQuadratic {
		return fmt.Sprintf("M %.1f %.1f Q %.1f %.1f, %.1f %.1f",
			c.P0.X, c.P0.Y, c.P1.X, c.P1.Y, c.P2.X, c.P2.Y)
	}
	return fmt.Sprintf("M %.1f %.1f C %.1f %.1f, %.1f %.1f, %.1f %.1f",
		c.P0.X, c.P0.Y, c.P1.X, c.P1.Y, c.P2.X, c.P2.Y, c.P3.X, c.P3.Y)
}

// SampledPath is a polyline approximation of a curve at fixed parametric steps,
// with cumulative arc length so that a point can be placed at a fraction of the
// travelled distance.
type SampledPath struct {
	Points  []Point   `json:"points"`
	Lengths []float64 `json:"lengths"` // Lengths[i] = distance from Points[0] to Points[i]
}

// Sample evaluates c at steps+1 evenly spaced parameters.
func Sample(c Curve, steps int) *SampledPath {
	if steps < 1 {
		steps = 1
	}
	sp := &SampledPath{
		Points:  make([]Point, steps+1),
		Lengths: make([]float64, steps+1),
	}
	for i := 0; i <= steps; i++ {
		p := c.Eval(float64(i) / float64(steps))
		sp.Points[i] = p
		if i > 0 {
			prev := sp.Points[i-1]
			sp.Lengths[i] = sp.Lengths[i-1] + math.Hypot(p.X-prev.X, p.Y-prev.Y)
		}
	}
	return sp
}

// Length returns the total arc length.
func (sp *SampledPath) Length() float64 {
	if sp == nil || len(sp.Lengths) == 0 {
		return 0
	}
	return sp.Lengths[len(sp.Lengths)-1]
}

// PointAt returns the point at fraction f of the total length. f is clamped
// to [0,1].
func (sp *SampledPath) PointAt(f float64) Point {
	if sp == nil || len(sp.Points) == 0 {
		return Point{}
	}
	total := sp.Length()
	if total == 0 || f <= 0 {
		return sp.Points[0]
	}
	if f >= 1 {
		return sp.Points[len(sp.Points)-1]
	}
	target := f * total
	i := sort.SearchFloat64s(sp.Lengths, target)
	if i == 0 {
		return sp.Points[0]
	}
	a, b := sp.Points[i-1], sp.Points[i]
	seg := sp.Lengths[i] - sp.Lengths[i-1]
	if seg == 0 {
		return b
	}
	k := (target - sp.Lengths[i-1]) / seg
	return Point{X: a.X + (b.X-a.X)*k, Y: a.Y + (b.Y-a.Y)*k}
}
