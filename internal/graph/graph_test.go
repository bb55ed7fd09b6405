package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/archflow/pkg/schema"
)

// --- helpers ---

func node(id string) schema.Node {
	return schema.Node{ID: id, Title: id}
}

func edge(id, from, to string) schema.Edge {
	return schema.Edge{ID: id, From: from, To: to}
}

func chainModel() *schema.ArchitectureModel {
	return &schema.ArchitectureModel{
		Slug:  "chain",
		Title: "Chain",
		Nodes: []schema.Node{node("A"), node("B"), node("C")},
		Edges: []schema.Edge{edge("e1", "A", "B"), edge("e2", "B", "C")},
		Scenarios: []schema.Scenario{{
			ID:    schema.ScenarioBaseline,
			Label: "Baseline",
			Timeline: []schema.TimelineStep{
				{Kind: schema.StepKindEdge, EdgeID: "e1"},
				{Kind: schema.StepKindEdge, EdgeID: "e2"},
			},
		}},
	}
}

func issueCodes(r *schema.ValidationResult) []string {
	codes := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		codes = append(codes, w.Code)
	}
	return codes
}

// --- tests ---

func TestCompileChain(t *testing.T) {
	g, res := Compile(chainModel())
	require.True(t, res.Valid())
	assert.Empty(t, res.Warnings)

	assert.Equal(t, "chain", g.Slug)
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Edges, 2)
	assert.Equal(t, []string{"e1"}, g.Outgoing("A"))
	assert.Equal(t, []string{"e1"}, g.Incoming("B"))

	e, ok := g.Edge("e2")
	require.True(t, ok)
	assert.Equal(t, schema.LaneRequest, e.Lane, "lane defaults to request")

	n, ok := g.Node("A")
	require.True(t, ok)
	assert.Equal(t, schema.ToneNeutral, n.Tone)
}

func TestCompileNilModel(t *testing.T) {
	g, res := Compile(nil)
	require.NotNil(t, g)
	assert.True(t, res.Valid())
	assert.Empty(t, g.Nodes)
}

func TestCompileDefaultEdgeIDs(t *testing.T) {
	m := &schema.ArchitectureModel{
		Nodes: []schema.Node{node("api"), node("db")},
		Edges: []schema.Edge{
			{From: "api", To: "db", Label: "read"},
			{From: "api", To: "db", Label: "write"},
			{From: "api", To: "db", Label: "audit"},
		},
	}
	g, res := Compile(m)

	require.Len(t, g.Edges, 3)
	assert.Equal(t, "api-db", g.Edges[0].ID)
	assert.Equal(t, "api-db-2", g.Edges[1].ID)
	assert.Equal(t, "api-db-3", g.Edges[2].ID)
	assert.Equal(t, []string{IssueDuplicateEdgeID, IssueDuplicateEdgeID}, issueCodes(res))
}

func TestCompileDropsDanglingEdges(t *testing.T) {
	m := chainModel()
	m.Edges = append(m.Edges, edge("ghost", "C", "Z"))

	g, res := Compile(m)
	assert.Len(t, g.Edges, 2)
	_, ok := g.Edge("ghost")
	assert.False(t, ok)
	assert.Contains(t, issueCodes(res), IssueDanglingEdge)
	assert.True(t, res.Valid(), "dangling edges are warnings only")
}

func TestCompileFiltersTimeline(t *testing.T) {
	m := chainModel()
	m.Scenarios[0].Timeline = []schema.TimelineStep{
		{Kind: schema.StepKindEdge, EdgeID: "e1"},
		{Kind: schema.StepKindEdge, EdgeID: "missing"},
		{Kind: schema.StepKindParallel, Edges: []string{"e2", "nope"}},
	}

	g, res := Compile(m)
	sc, ok := g.Scenario(schema.ScenarioBaseline)
	require.True(t, ok)
	require.Len(t, sc.Timeline, 2)
	assert.Equal(t, "e1", sc.Timeline[0].EdgeID)
	assert.Equal(t, []string{"e2"}, sc.Timeline[1].Edges)

	codes := issueCodes(res)
	assert.Contains(t, codes, IssueUnknownTimelineEdge)
	assert.Contains(t, codes, IssueEmptyTimelineStep)
}

func TestCompileDuplicateNodesAndScenarios(t *testing.T) {
	m := chainModel()
	m.Nodes = append(m.Nodes, node("A"), schema.Node{})
	m.Scenarios = append(m.Scenarios, schema.Scenario{ID: schema.ScenarioBaseline})

	g, res := Compile(m)
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Scenarios, 1)
	codes := issueCodes(res)
	assert.Contains(t, codes, IssueDuplicateNode)
	assert.Contains(t, codes, IssueDuplicateScenario)
}

func TestCompileGroupsFiltered(t *testing.T) {
	m := chainModel()
	m.Groups = []schema.Group{{ID: "edge", Label: "Edge tier", NodeIDs: []string{"A", "X"}}}

	g, res := Compile(m)
	require.Len(t, g.Groups, 1)
	assert.Equal(t, []string{"A"}, g.Groups[0].NodeIDs)
	assert.Contains(t, issueCodes(res), IssueUnknownGroupMember)
}

func TestDefaultScenario(t *testing.T) {
	m := chainModel()
	m.Scenarios = []schema.Scenario{{ID: schema.ScenarioSpike}, {ID: schema.ScenarioBaseline}}
	g, _ := Compile(m)

	sc, ok := g.DefaultScenario()
	require.True(t, ok)
	assert.Equal(t, schema.ScenarioBaseline, sc.ID)

	m.Scenarios = []schema.Scenario{{ID: schema.ScenarioCache}}
	g, _ = Compile(m)
	sc, ok = g.DefaultScenario()
	require.True(t, ok)
	assert.Equal(t, schema.ScenarioCache, sc.ID)

	m.Scenarios = nil
	g, _ = Compile(m)
	_, ok = g.DefaultScenario()
	assert.False(t, ok)
}

func TestFocusEdges(t *testing.T) {
	m := &schema.ArchitectureModel{
		Nodes: []schema.Node{node("A"), node("B"), node("C")},
		Edges: []schema.Edge{
			{ID: "req", From: "A", To: "B", Lane: schema.LaneRequest},
			{ID: "q", From: "B", To: "C", Lane: schema.LaneAsync},
			{ID: "ctl", From: "C", To: "A", Lane: schema.LaneControl},
		},
	}
	g, _ := Compile(m)

	all := g.FocusEdges(schema.Scenario{}, nil)
	assert.Len(t, all, 3)

	asyncOnly := g.FocusEdges(schema.Scenario{FocusEdgeLanes: []schema.Lane{schema.LaneAsync}}, nil)
	assert.Equal(t, map[string]bool{"q": true}, asyncOnly)

	withPred := g.FocusEdges(schema.Scenario{FocusEdgeLanes: []schema.Lane{schema.LaneAsync}},
		func(e schema.Edge) bool { return e.From == "C" })
	assert.Equal(t, map[string]bool{"q": true, "ctl": true}, withPred)
}

func TestCycle(t *testing.T) {
	g, res := Compile(chainModel())
	assert.Nil(t, g.Cycle())
	assert.NotContains(t, issueCodes(res), IssueCycle)

	m := chainModel()
	m.Edges = append(m.Edges, edge("back", "C", "B"))
	g, res = Compile(m)
	assert.Equal(t, []string{"B", "C"}, g.Cycle())
	assert.Contains(t, issueCodes(res), IssueCycle)
}
