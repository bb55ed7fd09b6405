package layout

import "github.com/rendis/archflow/pkg/schema"

// MaxRelaxIterations bounds the longest-path relaxation. Cyclic graphs never
// converge; they stop here with whatever depths they reached.
const MaxRelaxIterations = 30

// Layering is the column assignment of every node.
type Layering struct {
	Depth      map[string]int
	Columns    [][]string // depth → node ids, authored order
	MaxDepth   int
	Iterations int
	Converged  bool
}

// Layer assigns each node a depth by longest-path relaxation over the edges.
//
// Nodes with no incoming edge are roots at depth 0; when there are none the
// first node is seeded at depth 0. Each iteration raises depth[to] to
// depth[from]+1 for every edge and the loop stops early once nothing changes.
// Nodes never reached from a seed are placed in column 0.
func Layer(nodes []schema.Node, edges []schema.Edge) Layering {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	inDegree := make(map[string]int, len(nodes))
	usable := make([]schema.Edge, 0, len(edges))
	for _, e := range edges {
		if !known[e.From] || !known[e.To] {
			continue
		}
		usable = append(usable, e)
		inDegree[e.To]++
	}

	depth := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if inDegree[n.ID] == 0 {
			depth[n.ID] = 0
		}
	}
	if len(depth) == 0 && len(nodes) > 0 {
		depth[nodes[0].ID] = 0
	}

	l := Layering{}
	for l.Iterations < MaxRelaxIterations {
		l.Iterations++
		changed := false
		for _, e := range usable {
			d, ok := depth[e.From]
			if !ok {
				continue
			}
			if cur, seen := depth[e.To]; !seen || d+1 > cur {
				depth[e.To] = d + 1
				changed = true
			}
		}
		if !changed {
			l.Converged = true
			break
		}
	}

	for _, n := range nodes {
		if _, ok := depth[n.ID]; !ok {
			depth[n.ID] = 0
		}
		if depth[n.ID] > l.MaxDepth {
			l.MaxDepth = depth[n.ID]
		}
	}

	l.Depth = depth
	if len(nodes) > 0 {
		l.Columns = make([][]string, l.MaxDepth+1)
		for _, n := range nodes {
			d := depth[n.ID]
			l.Columns[d] = append(l.Columns[d], n.ID)
		}
	}
	return l
}
