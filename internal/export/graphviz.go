package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/archflow/pkg/schema"
)

// Graphviz output formats accepted by RenderGraphviz.
const (
	GraphvizDOT = graphviz.XDOT
	GraphvizPNG = graphviz.PNG
	GraphvizSVG = graphviz.SVG
)

// RenderGraphviz lays the scene out again with graphviz dot and renders it in
// the given format. Node positions come from dot, not from the scene layout.
func RenderGraphviz(ctx context.Context, scene *Scene, format graphviz.Format) ([]byte, error) {
	if !scene.drawable() {
		return nil, schema.NewError(schema.ErrCodeRender, "scene has no graph or layout")
	}
	g := scene.Graph

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("export: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)
	graph.SetBackgroundColor(cssRGBA(bgCanvas))
	graph.SetFontColor(cssRGBA(textPrimary))
	if g.Title != "" {
		graph.SetLabel(g.Title)
	}

	// Grouped nodes are created inside their cluster so dot keeps them together.
	gvNodes := make(map[string]*cgraph.Node, len(g.Nodes))
	for _, grp := range g.Groups {
		sub, subErr := graph.CreateSubGraphByName("cluster_" + grp.ID)
		if subErr != nil {
			return nil, fmt.Errorf("export: create cluster %s: %w", grp.ID, subErr)
		}
		sub.SetLabel(grp.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)
		sub.SetFontColor(cssRGBA(textMuted))
		for _, id := range grp.NodeIDs {
			if _, done := gvNodes[id]; done {
				continue
			}
			n, ok := g.Node(id)
			if !ok {
				continue
			}
			gvNode, nErr := sub.CreateNodeByName(id)
			if nErr != nil {
				return nil, fmt.Errorf("export: create node %s: %w", id, nErr)
			}
			applyNodeStyle(gvNode, n)
			gvNodes[id] = gvNode
		}
	}
	for _, n := range g.Nodes {
		if _, done := gvNodes[n.ID]; done {
			continue
		}
		gvNode, nErr := graph.CreateNodeByName(n.ID)
		if nErr != nil {
			return nil, fmt.Errorf("export: create node %s: %w", n.ID, nErr)
		}
		applyNodeStyle(gvNode, n)
		gvNodes[n.ID] = gvNode
	}

	for _, e := range g.Edges {
		from, to := gvNodes[e.From], gvNodes[e.To]
		if from == nil || to == nil {
			continue
		}
		gvEdge, eErr := graph.CreateEdgeByName(e.ID, from, to)
		if eErr != nil {
			return nil, fmt.Errorf("export: create edge %s: %w", e.ID, eErr)
		}
		applyEdgeStyle(gvEdge, e, scene.edgeState(e.ID))
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format, &buf); err != nil {
		return nil, fmt.Errorf("export: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func applyNodeStyle(gvNode *cgraph.Node, n schema.Node) {
	p := toneFor(n.Tone)
	label := firstLine(n.Title)
	if n.Subtitle != "" {
		label += "\n" + firstLine(n.Subtitle)
	}
	gvNode.SetLabel(label)
	gvNode.SetShape(cgraph.BoxShape)
	gvNode.SetStyle(cgraph.NodeStyle(string(cgraph.RoundedNodeStyle) + "," + string(cgraph.FilledNodeStyle)))
	gvNode.SetFillColor(cssRGBA(p.fill))
	gvNode.SetColor(cssRGBA(p.stroke))
	gvNode.SetFontColor(cssRGBA(textPrimary))
}

func applyEdgeStyle(gvEdge *cgraph.Edge, e schema.Edge, st edgeState) {
	c, w := st.stroke(e.Lane)
	c.A = 0xff
	gvEdge.SetColor(cssRGBA(c))
	gvEdge.SetPenWidth(w)
	gvEdge.SetFontColor(cssRGBA(textMuted))
	if e.Label != "" {
		gvEdge.SetLabel(e.Label)
	}
	switch {
	case st == edgeActive:
		gvEdge.SetStyle(cgraph.BoldEdgeStyle)
	case e.Lane == schema.LaneAsync:
		gvEdge.SetStyle(cgraph.DashedEdgeStyle)
	case st == edgeDim:
		gvEdge.SetStyle(cgraph.DottedEdgeStyle)
	}
}
