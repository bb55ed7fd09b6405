package export

import (
	"context"
	"strings"

	"github.com/rendis/archflow/pkg/schema"
)

// Format names an export target.
type Format string

const (
	FormatSVG     Format = "svg"
	FormatPNG     Format = "png"
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
	FormatDOT     Format = "dot"
)

// Formats lists every supported export target.
var Formats = []Format{FormatSVG, FormatPNG, FormatMermaid, FormatASCII, FormatDOT}

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown export format %q", s).
		WithDetails(map[string]any{"formats": Formats})
}

// Artifact is one exported diagram. PNG artifacts carry a data URL in Data.
type Artifact struct {
	Format      Format `json:"format"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Exporter renders scenes into any supported format. A nil Rasterizer makes
// PNG export unavailable.
type Exporter struct {
	Rasterizer Rasterizer
}

// Export renders scene in format, sized for container where the format has a
// size.
func (e *Exporter) Export(ctx context.Context, scene *Scene, format Format, container Size) (*Artifact, error) {
	switch format {
	case FormatSVG:
		r, err := Render(scene)
		if err != nil {
			return nil, err
		}
		out, err := ExportSVG(r, container)
		if err != nil {
			return nil, err
		}
		return &Artifact{Format: format, ContentType: "image/svg+xml", Data: out}, nil
	case FormatPNG:
		url, err := ExportPNG(e.Rasterizer, scene, container)
		if err != nil {
			return nil, err
		}
		return &Artifact{Format: format, ContentType: "text/plain; charset=utf-8", Data: []byte(url)}, nil
	case FormatMermaid:
		out, err := RenderMermaid(scene)
		if err != nil {
			return nil, err
		}
		return &Artifact{Format: format, ContentType: "text/plain; charset=utf-8", Data: []byte(out)}, nil
	case FormatASCII:
		out, err := RenderASCII(scene)
		if err != nil {
			return nil, err
		}
		return &Artifact{Format: format, ContentType: "text/plain; charset=utf-8", Data: []byte(out)}, nil
	case FormatDOT:
		out, err := RenderGraphviz(ctx, scene, GraphvizDOT)
		if err != nil {
			return nil, err
		}
		return &Artifact{Format: format, ContentType: "text/vnd.graphviz", Data: out}, nil
	default:
		_, err := ParseFormat(string(format))
		return nil, err
	}
}
