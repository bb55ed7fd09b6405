package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/rendis/archflow/internal/layout"
	"github.com/rendis/archflow/pkg/schema"
)

// DefaultPixelRatio is the device pixel density PNG exports are drawn at.
const DefaultPixelRatio = 2

// Rasterizer draws a scene into PNG bytes sized for a container.
type Rasterizer interface {
	Rasterize(scene *Scene, container Size) ([]byte, error)
}

// ExportPNG rasterizes the scene and returns it as a data URL. A nil
// rasterizer means PNG support is not installed; the error tells the caller
// to use SVG export instead.
func ExportPNG(r Rasterizer, scene *Scene, container Size) (string, error) {
	if r == nil {
		return "", schema.NewError(schema.ErrCodeExportUnavailable,
			"PNG export is unavailable; use SVG export instead")
	}
	if !scene.drawable() {
		return "", schema.NewError(schema.ErrCodeNothingRendered, "nothing has been rendered yet")
	}
	data, err := r.Rasterize(scene, container)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeRender, "rasterize: %s", err.Error()).WithCause(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// GGRasterizer draws scenes with fogleman/gg using the Go Regular font.
type GGRasterizer struct {
	PixelRatio float64
	font       *opentype.Font
}

// NewGGRasterizer parses the embedded font and returns a rasterizer at the
// default pixel ratio.
func NewGGRasterizer() (*GGRasterizer, error) {
	fnt, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("export: parse font: %w", err)
	}
	return &GGRasterizer{PixelRatio: DefaultPixelRatio, font: fnt}, nil
}

func (r *GGRasterizer) face(size float64) (font.Face, error) {
	return opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// Rasterize implements Rasterizer. The container size is in CSS pixels; the
// image is PixelRatio times larger in each dimension.
func (r *GGRasterizer) Rasterize(scene *Scene, container Size) ([]byte, error) {
	if !scene.drawable() {
		return nil, schema.NewError(schema.ErrCodeNothingRendered, "nothing has been rendered yet")
	}
	g, l := scene.Graph, scene.Layout
	vb := l.Bounds

	ratio := r.PixelRatio
	if ratio <= 0 {
		ratio = DefaultPixelRatio
	}
	w, h := float64(container.Width), float64(container.Height)
	if w <= 0 || h <= 0 {
		w, h = vb.Width, vb.Height
	}
	pw, ph := int(math.Round(w*ratio)), int(math.Round(h*ratio))
	if pw <= 0 || ph <= 0 {
		return nil, fmt.Errorf("export: empty raster %dx%d", pw, ph)
	}

	// Fit the canvas bounds into the raster, centred.
	k := math.Min(float64(pw)/vb.Width, float64(ph)/vb.Height)
	offX := (float64(pw) - vb.Width*k) / 2
	offY := (float64(ph) - vb.Height*k) / 2
	tx := func(x float64) float64 { return offX + (x-vb.X)*k }
	ty := func(y float64) float64 { return offY + (y-vb.Y)*k }

	titleFace, err := r.face(15 * k)
	if err != nil {
		return nil, fmt.Errorf("export: title face: %w", err)
	}
	smallFace, err := r.face(11 * k)
	if err != nil {
		return nil, fmt.Errorf("export: label face: %w", err)
	}

	dc := gg.NewContext(pw, ph)
	dc.SetColor(bgCanvas)
	dc.Clear()

	for _, grp := range g.Groups {
		rect, ok := l.GroupRect(grp.NodeIDs, 28)
		if !ok {
			continue
		}
		dc.DrawRoundedRectangle(tx(rect.X), ty(rect.Y), rect.Width*k, rect.Height*k, 18*k)
		dc.SetColor(groupFill)
		dc.FillPreserve()
		dc.SetColor(groupStroke)
		dc.SetLineWidth(1.5 * k)
		dc.SetDash(6*k, 6*k)
		dc.Stroke()
		dc.SetDash()

		dc.SetFontFace(smallFace)
		dc.SetColor(textMuted)
		dc.DrawStringAnchored(grp.Label, tx(rect.X+16), ty(rect.Y+22), 0, 0)
	}

	for _, e := range g.Edges {
		c, ok := l.Curves[e.ID]
		if !ok {
			continue
		}
		st := scene.edgeState(e.ID)
		col, width := st.stroke(e.Lane)

		dc.NewSubPath()
		dc.MoveTo(tx(c.P0.X), ty(c.P0.Y))
		if c.Kind == layout.CurveQuadratic {
			dc.QuadraticTo(tx(c.P1.X), ty(c.P1.Y), tx(c.P2.X), ty(c.P2.Y))
		} else {
			dc.CubicTo(tx(c.P1.X), ty(c.P1.Y), tx(c.P2.X), ty(c.P2.Y), tx(c.P3.X), ty(c.P3.Y))
		}
		dc.SetColor(col)
		dc.SetLineWidth(width * k)
		if e.Lane == schema.LaneAsync {
			dc.SetDash(8*k, 6*k)
		}
		dc.Stroke()
		dc.SetDash()

		drawArrowHead(dc, c, col, k, tx, ty)

		if e.Label != "" {
			p := l.LabelAnchors[e.ID]
			dc.SetFontFace(smallFace)
			dc.SetColor(textMuted)
			dc.DrawStringAnchored(e.Label, tx(p.X), ty(p.Y-8), 0.5, 0)
		}
	}

	for _, n := range g.Nodes {
		rect, ok := l.NodeRect(n.ID)
		if !ok {
			continue
		}
		p := toneFor(n.Tone)
		dc.DrawRoundedRectangle(tx(rect.X), ty(rect.Y), rect.Width*k, rect.Height*k, 12*k)
		dc.SetColor(p.fill)
		dc.FillPreserve()
		dc.SetColor(p.stroke)
		dc.SetLineWidth(2 * k)
		dc.Stroke()

		cx := tx(rect.X + rect.Width/2)
		cy := ty(rect.Y + rect.Height/2)
		dc.SetColor(textPrimary)
		dc.SetFontFace(titleFace)
		if n.Subtitle == "" {
			dc.DrawStringAnchored(n.Title, cx, cy, 0.5, 0.35)
			continue
		}
		dc.DrawStringAnchored(n.Title, cx, cy-8*k, 0.5, 0.35)
		dc.SetFontFace(smallFace)
		dc.SetColor(textMuted)
		dc.DrawStringAnchored(n.Subtitle, cx, cy+12*k, 0.5, 0.35)
	}

	dc.SetColor(particleFill)
	for _, pt := range scene.Particles {
		dc.DrawCircle(tx(pt.X), ty(pt.Y), 6*k)
		dc.Fill()
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("export: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// drawArrowHead fills a triangle at the end of the curve, aligned with its
// final tangent.
func drawArrowHead(dc *gg.Context, c layout.Curve, col color.RGBA, k float64, tx, ty func(float64) float64) {
	end := c.End()
	prev := c.Eval(0.97)
	dx, dy := end.X-prev.X, end.Y-prev.Y
	d := math.Hypot(dx, dy)
	if d == 0 {
		return
	}
	dx, dy = dx/d, dy/d
	const length, half = 10.0, 5.0
	bx, by := end.X-dx*length, end.Y-dy*length

	dc.NewSubPath()
	dc.MoveTo(tx(end.X), ty(end.Y))
	dc.LineTo(tx(bx-dy*half), ty(by+dx*half))
	dc.LineTo(tx(bx+dy*half), ty(by-dx*half))
	dc.ClosePath()
	dc.SetColor(col)
	dc.Fill()
}
