package export

import (
	"fmt"
	"strings"

	"github.com/rendis/archflow/pkg/schema"
)

// edgeMarker returns a short ASCII indicator for an edge's playback state.
func edgeMarker(st edgeState) string {
	switch st {
	case edgeActive:
		return "[>>]"
	case edgeVisited:
		return "[ok]"
	case edgeDim:
		return "    "
	default:
		return "[..]"
	}
}

// RenderASCII renders the scene as text: one row of boxes per layout column,
// followed by the edge list with playback markers.
func RenderASCII(scene *Scene) (string, error) {
	if !scene.drawable() {
		return "", schema.NewError(schema.ErrCodeRender, "scene has no graph or layout")
	}
	g, l := scene.Graph, scene.Layout
	var b strings.Builder

	if g.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n", g.Title))
	}
	if scene.Scenario.Label != "" {
		b.WriteString(fmt.Sprintf("scenario: %s\n", scene.Scenario.Label))
		if scene.Scenario.Note != "" {
			b.WriteString(scene.Scenario.Note + "\n")
		}
	}
	b.WriteByte('\n')

	cols := l.Layering.Columns
	for i, col := range cols {
		var boxes []asciiBox
		for _, id := range col {
			n, ok := g.Node(id)
			if !ok {
				continue
			}
			boxes = append(boxes, makeBox(n))
		}
		renderBoxRow(&b, boxes)
		if i < len(cols)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	if len(g.Edges) > 0 {
		b.WriteString("\n--- edges ---\n")
		for _, e := range g.Edges {
			line := fmt.Sprintf("%s %s %s %s", edgeMarker(scene.edgeState(e.ID)), e.From, asciiArrow(e.Lane), e.To)
			if e.Label != "" {
				line += "  (" + e.Label + ")"
			}
			b.WriteString(strings.TrimRight(line, " ") + "\n")
		}
	}

	if len(g.Groups) > 0 {
		b.WriteString("\n--- groups ---\n")
		for _, grp := range g.Groups {
			b.WriteString(fmt.Sprintf("  [%s] %s\n", grp.Label, strings.Join(grp.NodeIDs, ", ")))
		}
	}

	return b.String(), nil
}

func asciiArrow(l schema.Lane) string {
	switch l {
	case schema.LaneAsync:
		return "┄→"
	case schema.LaneControl:
		return "═⇒"
	default:
		return "─→"
	}
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node: title, then subtitle and badge when set.
func makeBox(n schema.Node) asciiBox {
	content := []string{firstLine(n.Title)}
	if n.Subtitle != "" {
		content = append(content, firstLine(n.Subtitle))
	}
	if n.Badge != "" {
		content = append(content, "<"+n.Badge+">")
	}

	maxLen := 0
	for _, line := range content {
		if w := len([]rune(line)); w > maxLen {
			maxLen = w
		}
	}
	width := maxLen + 4

	lines := make([]string, 0, len(content)+2)
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, c := range content {
		pad := maxLen - len([]rune(c))
		lines = append(lines, "│ "+c+strings.Repeat(" ", pad)+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between columns.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}
