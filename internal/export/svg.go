package export

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/rendis/archflow/internal/layout"
	"github.com/rendis/archflow/pkg/schema"
)

const fontStack = "font-family:Inter,system-ui,sans-serif"

// Rendering is a drawn diagram: the SVG body without its root element, and
// the canvas region it covers. The root element is stamped at export time.
type Rendering struct {
	Slug    string
	Body    []byte
	ViewBox layout.Rect
}

// Render draws a scene as SVG. Edges or nodes without geometry are skipped.
func Render(scene *Scene) (*Rendering, error) {
	if !scene.drawable() {
		return nil, schema.NewError(schema.ErrCodeRender, "scene has no graph or layout")
	}
	g, l := scene.Graph, scene.Layout
	vb := l.Bounds

	var body bytes.Buffer
	canvas := svg.New(&body)

	if g.Title != "" {
		canvas.Title(g.Title)
	}

	canvas.Def()
	for _, st := range []edgeState{edgeDim, edgeFocus, edgeVisited, edgeActive} {
		c, _ := st.stroke(schema.LaneRequest)
		canvas.Marker("arrow-"+st.class(), 9, 5, 10, 10, `viewBox="0 0 10 10"`, `orient="auto"`, `markerUnits="userSpaceOnUse"`)
		canvas.Path("M 0 0 L 10 5 L 0 10 z", "fill:"+cssRGBA(c))
		canvas.MarkerEnd()
	}
	canvas.DefEnd()

	canvas.Rect(ix(vb.X), ix(vb.Y), ix(vb.Width), ix(vb.Height), "fill:"+cssRGBA(bgCanvas))

	// Groups sit behind everything else.
	canvas.Gid("groups")
	for _, grp := range g.Groups {
		r, ok := l.GroupRect(grp.NodeIDs, 28)
		if !ok {
			continue
		}
		canvas.Roundrect(ix(r.X), ix(r.Y), ix(r.Width), ix(r.Height), 18, 18,
			attr("data-group", grp.ID),
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1.5;stroke-dasharray:6 6", cssRGBA(groupFill), cssRGBA(groupStroke)))
		canvas.Text(ix(r.X+16), ix(r.Y+22), grp.Label,
			fmt.Sprintf("fill:%s;font-size:13px;%s;letter-spacing:0.08em", cssRGBA(textMuted), fontStack))
	}
	canvas.Gend()

	canvas.Gid("edges")
	for _, e := range g.Edges {
		d, ok := l.Path(e.ID)
		if !ok {
			continue
		}
		st := scene.edgeState(e.ID)
		c, w := st.stroke(e.Lane)
		style := fmt.Sprintf("fill:none;stroke:%s;stroke-width:%.1f;marker-end:url(#arrow-%s)", cssRGBA(c), w, st.class())
		if e.Lane == schema.LaneAsync {
			style += ";stroke-dasharray:8 6"
		}
		canvas.Path(d,
			attr("id", "edge-"+e.ID),
			attr("class", fmt.Sprintf("edge %s lane-%s", st.class(), e.Lane)),
			attr("data-edge", e.ID),
			style)

		if e.Label != "" {
			p := l.LabelAnchors[e.ID]
			canvas.Text(ix(p.X), ix(p.Y-8), e.Label,
				fmt.Sprintf("fill:%s;font-size:12px;%s;text-anchor:middle", cssRGBA(textMuted), fontStack))
		}
	}
	canvas.Gend()

	canvas.Gid("nodes")
	for _, n := range g.Nodes {
		r, ok := l.NodeRect(n.ID)
		if !ok {
			continue
		}
		p := toneFor(n.Tone)
		canvas.Group(attr("id", "node-"+n.ID), attr("class", "node tone-"+string(n.Tone)))
		canvas.Roundrect(ix(r.X), ix(r.Y), ix(r.Width), ix(r.Height), 12, 12,
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:2", cssRGBA(p.fill), cssRGBA(p.stroke)))

		cx := ix(r.X + r.Width/2)
		titleY := r.Y + r.Height/2 + 5
		if n.Subtitle != "" {
			titleY = r.Y + r.Height/2 - 3
		}
		canvas.Text(cx, ix(titleY), n.Title,
			fmt.Sprintf("fill:%s;font-size:15px;font-weight:600;%s;text-anchor:middle", cssRGBA(textPrimary), fontStack))
		if n.Subtitle != "" {
			canvas.Text(cx, ix(titleY+18), n.Subtitle,
				fmt.Sprintf("fill:%s;font-size:11px;%s;text-anchor:middle", cssRGBA(textMuted), fontStack))
		}
		if n.Badge != "" {
			bw := 14 + 7*len(n.Badge)
			bx, by := ix(r.X+r.Width)-bw+8, ix(r.Y)-10
			canvas.Roundrect(bx, by, bw, 20, 10, 10, "fill:"+cssRGBA(p.badge))
			canvas.Text(bx+bw/2, by+14, n.Badge,
				fmt.Sprintf("fill:%s;font-size:10px;font-weight:700;%s;text-anchor:middle", cssRGBA(textPrimary), fontStack))
		}
		canvas.Gend()
	}
	canvas.Gend()

	if len(scene.Particles) > 0 {
		canvas.Gid("particles")
		for _, pt := range scene.Particles {
			canvas.Circle(ix(pt.X), ix(pt.Y), 6,
				attr("class", "particle"),
				attr("data-edge", pt.EdgeID),
				"fill:"+cssRGBA(particleFill))
		}
		canvas.Gend()
	}

	if scene.Scenario.Label != "" {
		canvas.Text(ix(vb.X+40), ix(vb.Y+48), scene.Scenario.Label,
			fmt.Sprintf("fill:%s;font-size:18px;font-weight:600;%s", cssRGBA(textPrimary), fontStack))
		if scene.Scenario.Note != "" {
			canvas.Text(ix(vb.X+40), ix(vb.Y+72), scene.Scenario.Note,
				fmt.Sprintf("fill:%s;font-size:13px;%s", cssRGBA(textMuted), fontStack))
		}
	}

	return &Rendering{Slug: g.Slug, Body: body.Bytes(), ViewBox: vb}, nil
}

// SVG returns the full document at the rendering's natural size.
func (r *Rendering) SVG() []byte {
	out, _ := ExportSVG(r, Size{})
	return out
}

// ExportSVG wraps the rendering in a root element stamped with explicit
// width, height and viewBox. The container size sets width and height; a zero
// size falls back to the canvas bounds. Exporting before anything has been
// rendered fails with NOTHING_RENDERED.
func ExportSVG(r *Rendering, container Size) ([]byte, error) {
	if r == nil || len(r.Body) == 0 {
		return nil, schema.NewError(schema.ErrCodeNothingRendered, "nothing has been rendered yet")
	}
	vb := r.ViewBox
	w, h := container.Width, container.Height
	if w <= 0 || h <= 0 {
		w, h = ix(vb.Width), ix(vb.Height)
	}

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Startview(w, h, ix(vb.X), ix(vb.Y), ix(vb.Width), ix(vb.Height))
	buf.Write(r.Body)
	canvas.End()
	return buf.Bytes(), nil
}

func ix(v float64) int { return int(math.Round(v)) }

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")

// attr formats a raw attribute for svgo's variadic style arguments.
func attr(name, value string) string {
	return name + `="` + attrEscaper.Replace(value) + `"`
}
