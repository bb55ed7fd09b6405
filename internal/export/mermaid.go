package export

import (
	"fmt"
	"strings"

	"github.com/rendis/archflow/pkg/schema"
)

// RenderMermaid renders the scene as a Mermaid flowchart. Groups become
// subgraphs, lanes pick the arrow style and playback state is applied as
// classes.
func RenderMermaid(scene *Scene) (string, error) {
	if !scene.drawable() {
		return "", schema.NewError(schema.ErrCodeRender, "scene has no graph or layout")
	}
	g := scene.Graph
	var b strings.Builder

	b.WriteString("graph LR\n")
	if g.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", g.Title))
	}
	if scene.Scenario.Label != "" {
		b.WriteString(fmt.Sprintf("    %%%% scenario: %s\n", scene.Scenario.Label))
	}

	grouped := make(map[string]bool)
	for _, grp := range g.Groups {
		if len(grp.NodeIDs) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("    subgraph %s[%q]\n", mermaidSafeID("group_"+grp.ID), grp.Label))
		for _, id := range grp.NodeIDs {
			if grouped[id] {
				continue
			}
			if n, ok := g.Node(id); ok {
				b.WriteString(fmt.Sprintf("        %s\n", mermaidNodeDef(n)))
				grouped[id] = true
			}
		}
		b.WriteString("    end\n")
	}
	for _, n := range g.Nodes {
		if !grouped[n.ID] {
			b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(n)))
		}
	}

	for _, e := range g.Edges {
		label := ""
		if e.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(e.Label))
		}
		b.WriteString(fmt.Sprintf("    %s %s%s %s\n",
			mermaidSafeID(e.From), mermaidArrow(e.Lane), label, mermaidSafeID(e.To)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef neutral fill:#1f2937,stroke:#4b5563,color:#f8fafc\n")
	b.WriteString("    classDef accent fill:#1e3a8a,stroke:#60a5fa,color:#f8fafc\n")
	b.WriteString("    classDef warn fill:#78350f,stroke:#f59e0b,color:#f8fafc\n")

	for _, n := range g.Nodes {
		b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(n.ID), mermaidToneClass(n.Tone)))
	}

	// linkStyle indexes follow edge declaration order.
	for i, e := range g.Edges {
		switch scene.edgeState(e.ID) {
		case edgeActive:
			b.WriteString(fmt.Sprintf("    linkStyle %d stroke:%s,stroke-width:4px\n", i, cssRGBA(activeEdge)))
		case edgeVisited:
			b.WriteString(fmt.Sprintf("    linkStyle %d stroke:#10b981,stroke-width:3px\n", i))
		case edgeDim:
			b.WriteString(fmt.Sprintf("    linkStyle %d stroke:#334155\n", i))
		}
	}

	return b.String(), nil
}

func mermaidNodeDef(n schema.Node) string {
	label := mermaidEscapeLabel(firstLine(n.Title))
	if n.Subtitle != "" {
		label += "<br/><small>" + mermaidEscapeLabel(firstLine(n.Subtitle)) + "</small>"
	}
	if n.Badge != "" {
		label += " [" + mermaidEscapeLabel(n.Badge) + "]"
	}
	return fmt.Sprintf("%s[\"%s\"]", mermaidSafeID(n.ID), label)
}

func mermaidArrow(l schema.Lane) string {
	switch l {
	case schema.LaneAsync:
		return "-.->"
	case schema.LaneControl:
		return "==>"
	default:
		return "-->"
	}
}

func mermaidToneClass(t schema.Tone) string {
	switch t {
	case schema.ToneAccent:
		return "accent"
	case schema.ToneWarn:
		return "warn"
	default:
		return "neutral"
	}
}

// mermaidSafeID converts an id to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_", "/", "_")
	return r.Replace(id)
}

var mermaidLabelEscaper = strings.NewReplacer(`"`, "#quot;", "|", "#124;")

func mermaidEscapeLabel(s string) string {
	return mermaidLabelEscaper.Replace(s)
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}
