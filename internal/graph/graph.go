package graph

import (
	"fmt"
	"sort"

	"github.com/rendis/archflow/pkg/schema"
)

// Issue codes reported while compiling a model. All of them are warnings: a
// malformed model degrades to a partial drawing, never to an error.
const (
	IssueDuplicateNode       = "DUPLICATE_NODE"
	IssueDuplicateEdgeID     = "DUPLICATE_EDGE_ID"
	IssueDanglingEdge        = "DANGLING_EDGE"
	IssueUnknownTimelineEdge = "UNKNOWN_TIMELINE_EDGE"
	IssueEmptyTimelineStep   = "EMPTY_TIMELINE_STEP"
	IssueDuplicateScenario   = "DUPLICATE_SCENARIO"
	IssueUnknownGroupMember  = "UNKNOWN_GROUP_MEMBER"
	IssueCycle               = "CYCLE"
)

// Graph is the compiled, index-backed form of an ArchitectureModel.
// It is immutable after Compile and safe for concurrent reads.
type Graph struct {
	Slug      string
	Title     string
	Nodes     []schema.Node     // authored order, duplicates removed
	Edges     []schema.Edge     // authored order, ids resolved, dangling edges removed
	Groups    []schema.Group    // members filtered to known nodes
	Scenarios []schema.Scenario // timelines filtered to known edges

	nodeIndex map[string]int
	edgeIndex map[string]int
	outgoing  map[string][]string // node id → edge ids
	incoming  map[string][]string // node id → edge ids
}

// Compile builds a Graph from an authored model. Problems in the model are
// returned as warnings; the resulting graph keeps everything that can be drawn.
func Compile(model *schema.ArchitectureModel) (*Graph, *schema.ValidationResult) {
	result := &schema.ValidationResult{}
	g := &Graph{
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[string]int),
		outgoing:  make(map[string][]string),
		incoming:  make(map[string][]string),
	}
	if model == nil {
		return g, result
	}
	g.Slug = model.Slug
	g.Title = model.Title

	// First pass: nodes.
	for i, n := range model.Nodes {
		if _, exists := g.nodeIndex[n.ID]; exists || n.ID == "" {
			result.AddWarning(fmt.Sprintf("nodes[%d]", i), IssueDuplicateNode,
				fmt.Sprintf("node %q is empty or already defined; ignored", n.ID))
			continue
		}
		if n.Tone == "" {
			n.Tone = schema.ToneNeutral
		}
		g.nodeIndex[n.ID] = len(g.Nodes)
		g.Nodes = append(g.Nodes, n)
	}

	// Second pass: edges. Ids default to "from-to" and are disambiguated with a
	// numeric suffix so that every id-keyed map stays collision free.
	for i, e := range model.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		if _, ok := g.nodeIndex[e.From]; !ok {
			result.AddWarning(path, IssueDanglingEdge, fmt.Sprintf("edge %s references unknown node %q", e.Key(), e.From))
			continue
		}
		if _, ok := g.nodeIndex[e.To]; !ok {
			result.AddWarning(path, IssueDanglingEdge, fmt.Sprintf("edge %s references unknown node %q", e.Key(), e.To))
			continue
		}
		id := e.Key()
		if _, exists := g.edgeIndex[id]; exists {
			unique := disambiguate(id, g.edgeIndex)
			result.AddWarning(path, IssueDuplicateEdgeID,
				fmt.Sprintf("edge id %q already used; renamed to %q", id, unique))
			id = unique
		}
		if e.Lane == "" {
			e.Lane = schema.LaneRequest
		}
		e.ID = id
		g.edgeIndex[id] = len(g.Edges)
		g.Edges = append(g.Edges, e)
		g.outgoing[e.From] = append(g.outgoing[e.From], id)
		g.incoming[e.To] = append(g.incoming[e.To], id)
	}

	// Third pass: groups.
	for i, grp := range model.Groups {
		members := make([]string, 0, len(grp.NodeIDs))
		for _, id := range grp.NodeIDs {
			if _, ok := g.nodeIndex[id]; !ok {
				result.AddWarning(fmt.Sprintf("groups[%d]", i), IssueUnknownGroupMember,
					fmt.Sprintf("group %q references unknown node %q", grp.ID, id))
				continue
			}
			members = append(members, id)
		}
		grp.NodeIDs = members
		g.Groups = append(g.Groups, grp)
	}

	// Fourth pass: scenarios and their timelines.
	seenScenario := make(map[schema.ScenarioID]bool, len(model.Scenarios))
	for i, sc := range model.Scenarios {
		path := fmt.Sprintf("scenarios[%d]", i)
		if seenScenario[sc.ID] {
			result.AddWarning(path, IssueDuplicateScenario, fmt.Sprintf("scenario %q already defined; ignored", sc.ID))
			continue
		}
		seenScenario[sc.ID] = true
		sc.Timeline = g.filterTimeline(path, sc.Timeline, result)
		g.Scenarios = append(g.Scenarios, sc)
	}

	if cyc := g.Cycle(); len(cyc) > 0 {
		result.AddWarning("edges", IssueCycle,
			fmt.Sprintf("graph contains a cycle through %v; layering is best effort", cyc))
	}

	return g, result
}

// filterTimeline drops references to unknown edges and steps left empty.
func (g *Graph) filterTimeline(path string, steps []schema.TimelineStep, result *schema.ValidationResult) []schema.TimelineStep {
	if len(steps) == 0 {
		return nil
	}
	out := make([]schema.TimelineStep, 0, len(steps))
	for j, step := range steps {
		stepPath := fmt.Sprintf("%s.timeline[%d]", path, j)
		var kept []string
		for _, id := range step.EdgeIDs() {
			if _, ok := g.edgeIndex[id]; !ok {
				result.AddWarning(stepPath, IssueUnknownTimelineEdge, fmt.Sprintf("timeline references unknown edge %q", id))
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			result.AddWarning(stepPath, IssueEmptyTimelineStep, "timeline step has no drawable edges; skipped")
			continue
		}
		if step.Kind == schema.StepKindParallel {
			out = append(out, schema.TimelineStep{Kind: schema.StepKindParallel, Edges: kept})
		} else {
			out = append(out, schema.TimelineStep{Kind: schema.StepKindEdge, EdgeID: kept[0]})
		}
	}
	return out
}

// disambiguate appends the smallest free numeric suffix to id.
func disambiguate(id string, taken map[string]int) string {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if _, exists := taken[candidate]; !exists {
			return candidate
		}
	}
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (schema.Node, bool) {
	i, ok := g.nodeIndex[id]
	if !ok {
		return schema.Node{}, false
	}
	return g.Nodes[i], true
}

// Edge returns the edge with the given resolved id.
func (g *Graph) Edge(id string) (schema.Edge, bool) {
	i, ok := g.edgeIndex[id]
	if !ok {
		return schema.Edge{}, false
	}
	return g.Edges[i], true
}

// Outgoing returns the ids of edges leaving a node.
func (g *Graph) Outgoing(nodeID string) []string { return g.outgoing[nodeID] }

// Incoming returns the ids of edges entering a node.
func (g *Graph) Incoming(nodeID string) []string { return g.incoming[nodeID] }

// Scenario returns the scenario with the given id.
func (g *Graph) Scenario(id schema.ScenarioID) (schema.Scenario, bool) {
	for _, sc := range g.Scenarios {
		if sc.ID == id {
			return sc, true
		}
	}
	return schema.Scenario{}, false
}

// DefaultScenario returns the baseline scenario, or the first one authored.
func (g *Graph) DefaultScenario() (schema.Scenario, bool) {
	if sc, ok := g.Scenario(schema.ScenarioBaseline); ok {
		return sc, true
	}
	if len(g.Scenarios) == 0 {
		return schema.Scenario{}, false
	}
	return g.Scenarios[0], true
}

// FocusEdges returns the set of edges emphasised by a scenario: edges whose lane
// is in the scenario's focus lanes, or for which pred returns true. A scenario
// with neither focus lanes nor a predicate emphasises every edge.
func (g *Graph) FocusEdges(sc schema.Scenario, pred func(schema.Edge) bool) map[string]bool {
	focus := make(map[string]bool, len(g.Edges))
	if len(sc.FocusEdgeLanes) == 0 && pred == nil {
		for _, e := range g.Edges {
			focus[e.ID] = true
		}
		return focus
	}
	lanes := make(map[schema.Lane]bool, len(sc.FocusEdgeLanes))
	for _, l := range sc.FocusEdgeLanes {
		lanes[l] = true
	}
	for _, e := range g.Edges {
		if lanes[e.Lane] || (pred != nil && pred(e)) {
			focus[e.ID] = true
		}
	}
	return focus
}

// Cycle returns the ids of nodes that sit on or behind a cycle, sorted, or nil
// for an acyclic graph. It runs Kahn's algorithm and reports what it could not
// drain.
func (g *Graph) Cycle() []string {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		inDegree[e.To]++
	}

	queue := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	drained := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		drained++
		for _, eid := range g.outgoing[id] {
			to := g.Edges[g.edgeIndex[eid]].To
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	if drained == len(g.Nodes) {
		return nil
	}

	var stuck []string
	for id, deg := range inDegree {
		if deg > 0 {
			stuck = append(stuck, id)
		}
	}
	sort.Strings(stuck)
	return stuck
}
