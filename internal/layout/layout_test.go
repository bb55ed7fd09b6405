package layout

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/archflow/pkg/schema"
)

func nodes(ids ...string) []schema.Node {
	out := make([]schema.Node, len(ids))
	for i, id := range ids {
		out[i] = schema.Node{ID: id, Title: id}
	}
	return out
}

func edge(id, from, to string) schema.Edge {
	return schema.Edge{ID: id, From: from, To: to}
}

func TestLayer_Chain(t *testing.T) {
	l := Layer(nodes("A", "B", "C"), []schema.Edge{edge("e1", "A", "B"), edge("e2", "B", "C")})

	assert.True(t, l.Converged)
	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 2}, l.Depth)
	assert.Equal(t, 2, l.MaxDepth)
	assert.Equal(t, [][]string{{"A"}, {"B"}, {"C"}}, l.Columns)
}

func TestLayer_LongestPath(t *testing.T) {
	// A→D directly and through B; D sits below the longer path.
	l := Layer(nodes("A", "B", "C", "D"), []schema.Edge{
		edge("ad", "A", "D"),
		edge("ab", "A", "B"),
		edge("bc", "B", "C"),
		edge("cd", "C", "D"),
	})
	require.True(t, l.Converged)
	assert.Equal(t, 3, l.Depth["D"])

	// Depth strictly increases along every edge of a DAG.
	for _, e := range []schema.Edge{edge("ad", "A", "D"), edge("ab", "A", "B"), edge("bc", "B", "C"), edge("cd", "C", "D")} {
		assert.Greater(t, l.Depth[e.To], l.Depth[e.From], e.ID)
	}
}

func TestLayer_CycleStopsAtCap(t *testing.T) {
	l := Layer(nodes("A", "B"), []schema.Edge{edge("ab", "A", "B"), edge("ba", "B", "A")})

	assert.False(t, l.Converged)
	assert.Equal(t, MaxRelaxIterations, l.Iterations)
	assert.Contains(t, l.Depth, "A")
	assert.Contains(t, l.Depth, "B")
}

func TestCompute_CycleWarnsThroughConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, nil)).With("slug", "loop")

	l := Compute(nodes("A", "B"), []schema.Edge{edge("ab", "A", "B"), edge("ba", "B", "A")}, cfg)

	assert.False(t, l.Layering.Converged)
	assert.Contains(t, buf.String(), "layering did not converge")
	assert.Contains(t, buf.String(), "slug=loop")
}

func TestLayer_UnreachedNodesLandInFirstColumn(t *testing.T) {
	// R is a root; X and Y form a cycle nobody reaches.
	l := Layer(nodes("R", "X", "Y"), []schema.Edge{edge("xy", "X", "Y"), edge("yx", "Y", "X")})

	assert.True(t, l.Converged)
	assert.Equal(t, 0, l.Depth["X"])
	assert.Equal(t, 0, l.Depth["Y"])
	assert.Equal(t, []string{"R", "X", "Y"}, l.Columns[0])
}

func TestLayer_Empty(t *testing.T) {
	l := Layer(nil, nil)
	assert.True(t, l.Converged)
	assert.Empty(t, l.Columns)
}

func TestCompute_ColumnsAndRows(t *testing.T) {
	cfg := DefaultConfig()
	l := Compute(nodes("A", "B", "C"), []schema.Edge{edge("e1", "A", "B"), edge("e2", "B", "C")}, cfg)

	colSpacing := (cfg.CanvasWidth - 2*cfg.PaddingX) / 3
	assert.InDelta(t, 160, l.Positions["A"].X, 1e-9)
	assert.InDelta(t, 160+colSpacing, l.Positions["B"].X, 1e-9)
	assert.InDelta(t, 160+2*colSpacing, l.Positions["C"].X, 1e-9)
	for _, id := range []string{"A", "B", "C"} {
		assert.InDelta(t, 500, l.Positions[id].Y, 1e-9, "single node column is centred")
	}
	assert.Contains(t, l.Paths, "e1")
	assert.Contains(t, l.Samples, "e2")
}

func TestCompute_ColumnSpacingFloor(t *testing.T) {
	cfg := DefaultConfig()
	ids := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6"}
	var es []schema.Edge
	for i := 0; i+1 < len(ids); i++ {
		es = append(es, edge("", ids[i], ids[i+1]))
	}
	l := Compute(nodes(ids...), es, cfg)

	assert.InDelta(t, 420, l.Positions["n1"].X-l.Positions["n0"].X, 1e-9)
	assert.Greater(t, l.Bounds.Width, cfg.CanvasWidth, "bounds grow past the canvas")
}

func TestCompute_RowSpacing(t *testing.T) {
	cfg := DefaultConfig()

	two := Compute(nodes("R", "a", "b"), []schema.Edge{edge("", "R", "a"), edge("", "R", "b")}, cfg)
	assert.InDelta(t, 200, two.Positions["a"].Y, 1e-9)
	assert.InDelta(t, 800, two.Positions["b"].Y, 1e-9)

	four := Compute(nodes("R", "a", "b", "c", "d"), []schema.Edge{
		edge("", "R", "a"), edge("", "R", "b"), edge("", "R", "c"), edge("", "R", "d"),
	}, cfg)
	gap := four.Positions["b"].Y - four.Positions["a"].Y
	assert.InDelta(t, 240, gap, 1e-9)
	mid := (four.Positions["a"].Y + four.Positions["d"].Y) / 2
	assert.InDelta(t, 500, mid, 1e-9)
}

func TestCompute_Deterministic(t *testing.T) {
	ns := nodes("A", "B", "C", "D")
	es := []schema.Edge{edge("1", "A", "B"), edge("2", "A", "C"), edge("3", "C", "D"), edge("4", "B", "D")}

	a := Compute(ns, es, DefaultConfig())
	b := Compute(ns, es, DefaultConfig())
	assert.Equal(t, a.Positions, b.Positions)
	assert.Equal(t, a.Paths, b.Paths)
}

func TestCompute_SkipsUnknownEndpoints(t *testing.T) {
	l := Compute(nodes("A"), []schema.Edge{edge("ghost", "A", "Z")}, DefaultConfig())
	_, ok := l.Path("ghost")
	assert.False(t, ok)
}

func TestEdgeCurve_Horizontal(t *testing.T) {
	cfg := DefaultConfig()
	c := EdgeCurve(Point{X: 0, Y: 0}, Point{X: 500, Y: 0}, cfg)

	assert.Equal(t, CurveCubic, c.Kind)
	assert.InDelta(t, 80, c.P0.X, 1e-9, "starts on the right side of the source box")
	assert.InDelta(t, 420, c.P3.X, 1e-9, "ends on the left side of the target box")
	// dist 340 * 0.45 = 153 is clamped to 150.
	assert.InDelta(t, 230, c.P1.X, 1e-9)
	assert.InDelta(t, 270, c.P2.X, 1e-9)
	assert.Equal(t, "M 80.0 0.0 C 230.0 0.0, 270.0 0.0, 420.0 0.0", c.SVGPath())
}

func TestEdgeCurve_ShortEdgeCurvature(t *testing.T) {
	cfg := DefaultConfig()
	c := EdgeCurve(Point{X: 0, Y: 0}, Point{X: 260, Y: 0}, cfg)
	// dist 100 → bend 45.
	assert.InDelta(t, 80+45, c.P1.X, 1e-9)
}

func TestEdgeCurve_Vertical(t *testing.T) {
	c := EdgeCurve(Point{X: 0, Y: 0}, Point{X: 0, Y: 300}, DefaultConfig())
	assert.InDelta(t, 35, c.P0.Y, 1e-9)
	assert.InDelta(t, 265, c.P3.Y, 1e-9)
	assert.InDelta(t, 0, c.P1.X, 1e-9)
}

func TestEdgeCurve_SelfLoop(t *testing.T) {
	c := EdgeCurve(Point{X: 100, Y: 100}, Point{X: 100, Y: 100}, DefaultConfig())
	assert.Equal(t, CurveQuadratic, c.Kind)
	assert.Less(t, c.P1.Y, c.P0.Y)
	assert.Contains(t, c.SVGPath(), " Q ")
}

func TestSampledPath(t *testing.T) {
	c := EdgeCurve(Point{X: 0, Y: 0}, Point{X: 500, Y: 0}, DefaultConfig())
	sp := Sample(c, 64)

	assert.Len(t, sp.Points, 65)
	assert.InDelta(t, 340, sp.Length(), 1e-6)
	assert.Equal(t, c.P0, sp.PointAt(0))
	assert.Equal(t, c.P3, sp.PointAt(1))
	assert.Equal(t, c.P3, sp.PointAt(2), "fractions clamp")
	assert.InDelta(t, 250, sp.PointAt(0.5).X, 1e-6)

	var nilPath *SampledPath
	assert.Zero(t, nilPath.Length())
	assert.Equal(t, Point{}, nilPath.PointAt(0.5))
}

func TestGroupRect(t *testing.T) {
	cfg := DefaultConfig()
	l := Compute(nodes("A", "B"), []schema.Edge{edge("", "A", "B")}, cfg)

	r, ok := l.GroupRect([]string{"A", "B", "missing"}, 20)
	require.True(t, ok)
	assert.InDelta(t, l.Positions["A"].X-cfg.NodeWidth/2-20, r.X, 1e-9)

	_, ok = l.GroupRect([]string{"missing"}, 20)
	assert.False(t, ok)
}

func TestCache(t *testing.T) {
	c := NewCache(DefaultConfig(), 2)
	ns := nodes("A", "B")
	es := []schema.Edge{edge("e", "A", "B")}

	first := c.Get(ns, es)
	relabelled := []schema.Edge{{ID: "e", From: "A", To: "B", Label: "renamed"}}
	assert.Same(t, first, c.Get(ns, relabelled), "labels do not affect the key")
	assert.Equal(t, 1, c.Len())

	c.Get(nodes("A"), nil)
	c.Get(nodes("B"), nil)
	assert.Equal(t, 2, c.Len(), "oldest entry evicted")
	assert.NotSame(t, first, c.Get(ns, es))
}

func TestStructureKey(t *testing.T) {
	a := StructureKey(nodes("A", "B"), []schema.Edge{edge("", "A", "B")})
	b := StructureKey(nodes("A", "B"), []schema.Edge{edge("", "B", "A")})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, StructureKey(nodes("A", "B"), []schema.Edge{edge("A-B", "A", "B")}))
}
