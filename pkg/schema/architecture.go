package schema

// ArchitectureModel is the authored, read-only description of one case-study diagram.
// Documents are written as JSON or YAML and keyed by slug.
type ArchitectureModel struct {
	Slug      string     `json:"slug,omitempty" yaml:"slug,omitempty"`
	Title     string     `json:"title" yaml:"title"`
	Nodes     []Node     `json:"nodes" yaml:"nodes"`
	Edges     []Edge     `json:"edges" yaml:"edges"`
	Groups    []Group    `json:"groups,omitempty" yaml:"groups,omitempty"`
	Scenarios []Scenario `json:"scenarios" yaml:"scenarios"`
}

// Node is a system component drawn as a box.
type Node struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Subtitle string `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Tone     Tone   `json:"tone,omitempty" yaml:"tone,omitempty"`
	Badge    string `json:"badge,omitempty" yaml:"badge,omitempty"`
}

// Tone selects the colour treatment of a node.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneAccent  Tone = "accent"
	ToneWarn    Tone = "warn"
)

// Edge is a directed interaction between two nodes.
type Edge struct {
	ID    string `json:"id,omitempty" yaml:"id,omitempty"`
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Lane  Lane   `json:"lane,omitempty" yaml:"lane,omitempty"`
}

// Key returns the explicit edge id, or the "from-to" default when none is set.
func (e Edge) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.From + "-" + e.To
}

// Lane is a coarse category tag on an edge used for emphasis grouping.
type Lane string

const (
	LaneRequest Lane = "request"
	LaneAsync   Lane = "async"
	LaneControl Lane = "control"
)

// Group is a labelled set of nodes drawn as a backdrop.
type Group struct {
	ID      string   `json:"id" yaml:"id"`
	Label   string   `json:"label" yaml:"label"`
	NodeIDs []string `json:"node_ids" yaml:"node_ids"`
}

// ScenarioID names one of the fixed lenses over a diagram.
type ScenarioID string

const (
	ScenarioBaseline ScenarioID = "baseline"
	ScenarioSpike    ScenarioID = "spike"
	ScenarioFailover ScenarioID = "failover"
	ScenarioCache    ScenarioID = "cache"
)

// Scenario is a named lens over the graph: emphasised lanes, a note, and an
// optional scripted timeline.
type Scenario struct {
	ID             ScenarioID     `json:"id" yaml:"id"`
	Label          string         `json:"label" yaml:"label"`
	FocusEdgeLanes []Lane         `json:"focus_edge_lanes,omitempty" yaml:"focus_edge_lanes,omitempty"`
	FocusExpr      string         `json:"focus_expr,omitempty" yaml:"focus_expr,omitempty"` // CEL predicate over edge
	Note           string         `json:"note" yaml:"note"`
	Timeline       []TimelineStep `json:"timeline,omitempty" yaml:"timeline,omitempty"`
}

// StepKind tags a timeline step.
type StepKind string

const (
	StepKindEdge     StepKind = "edge"
	StepKindParallel StepKind = "parallel"
)

// TimelineStep is one unit of guided playback: a single edge, or a group of edges
// highlighted together.
type TimelineStep struct {
	Kind   StepKind `json:"kind" yaml:"kind"`
	EdgeID string   `json:"edge_id,omitempty" yaml:"edge_id,omitempty"`
	Edges  []string `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// EdgeIDs returns the edges referenced by the step, in authored order.
func (s TimelineStep) EdgeIDs() []string {
	switch s.Kind {
	case StepKindParallel:
		return s.Edges
	default:
		if s.EdgeID == "" {
			return nil
		}
		return []string{s.EdgeID}
	}
}
