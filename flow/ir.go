package flow

import "sort"

// NodeKind enumerates the operator kinds a compiled IR node can carry. The
// set is closed: tool, filter, conditional, loop, map, reduce, parallel,
// switch (§3 operator kinds).
type NodeKind string

const (
	KindTool       NodeKind = "tool"
	KindFilter     NodeKind = "filter"
	KindConditional NodeKind = "conditional"
	KindLoop       NodeKind = "loop"
	KindMap        NodeKind = "map"
	KindReduce     NodeKind = "reduce"
	KindParallel   NodeKind = "parallel"
	KindSwitch     NodeKind = "switch"
)

// LoopForm distinguishes the four loop shapes a KindLoop node can take.
type LoopForm string

const (
	LoopFor    LoopForm = "for"
	LoopWhile  LoopForm = "while"
	LoopMap    LoopForm = "map"
	LoopReduce LoopForm = "reduce"
)

// IRNode is a single id-addressed vertex in the compiled graph. Only the
// fields relevant to Kind are populated; the rest are left zero.
type IRNode struct {
	ID   string
	Kind NodeKind

	// KindTool
	ToolID string
	Args   map[string]any

	// KindFilter, KindConditional, KindLoop (while form)
	Condition string // "LHS OP RHS" per the expression grammar (§4.4)

	// KindConditional
	ThenID string
	ElseID string // empty means no else branch

	// KindLoop
	LoopForm       LoopForm
	Collection     any // ValueRef-parseable: the $var/$node.out being iterated, for/map/reduce forms
	BodyID         string
	MaxIterations  int
	AccumulatorVar string // reduce form: variable name the accumulator is bound to inside the body

	// KindMap, KindReduce (non-loop standalone forms share the same shape)
	ItemVar string // variable name each element is bound to inside BodyID

	// KindParallel
	BranchIDs []string

	// KindSwitch
	Cases     map[string]string // option id -> node id
	Default   string            // empty means no default branch
	SwitchKey any               // ValueRef-parseable: when set, resolves directly to a Cases key, bypassing Choose
	Prompt    string            // when SwitchKey is unset, the prompt passed to Choose.Select

	// KindTool, KindFilter, KindConditional, KindSwitch, KindLoop, KindParallel
	// sequencing: the single successor a non-branching node flows to.
	NextID string

	Metadata map[string]any
}

// Edge is an explicit id-to-id directed connection in the compiled graph,
// redundant with but validated against the per-node successor fields
// above (ThenID/ElseID/BodyID/BranchIDs/Cases/NextID).
type Edge struct {
	FromID string
	ToID   string
	Label  string // e.g. "then", "else", "body", "branch", case option id, or "" for plain sequencing
}

// IRGraph is the compiled, id-addressed intermediate representation a
// workflow lowers to (§3, §4.3 compile).
type IRGraph struct {
	Nodes      map[string]*IRNode
	Edges      []Edge
	EntryPoint string

	// RegistrySnapshot records which tool/operator ids were known to the
	// catalog at compile time, so that validation and later execution can
	// detect catalog drift between compile and run.
	RegistrySnapshot []string
}

// NewIRGraph creates an empty graph ready to receive nodes via AddNode.
func NewIRGraph() *IRGraph {
	return &IRGraph{Nodes: make(map[string]*IRNode)}
}

// AddNode inserts node into the graph, keyed by its ID. A duplicate ID is a
// compilation error raised by the caller (lowering), not here.
func (g *IRGraph) AddNode(node *IRNode) {
	g.Nodes[node.ID] = node
}

// AddEdge appends an edge to the graph's edge list.
func (g *IRGraph) AddEdge(from, to, label string) {
	g.Edges = append(g.Edges, Edge{FromID: from, ToID: to, Label: label})
}

// successors returns every node ID a given node can transfer control to,
// derived from its kind-specific fields rather than the Edges slice (the
// Edges slice is a redundant, validatable view of the same information).
func (n *IRNode) successors() []string {
	var out []string
	switch n.Kind {
	case KindConditional:
		if n.ThenID != "" {
			out = append(out, n.ThenID)
		}
		if n.ElseID != "" {
			out = append(out, n.ElseID)
		}
	case KindLoop:
		if n.BodyID != "" {
			out = append(out, n.BodyID)
		}
	case KindParallel:
		out = append(out, n.BranchIDs...)
	case KindSwitch:
		for _, id := range n.Cases {
			out = append(out, id)
		}
		if n.Default != "" {
			out = append(out, n.Default)
		}
	}
	if n.NextID != "" {
		out = append(out, n.NextID)
	}
	return out
}

// DetectCycle runs a DFS with a three-color (white/gray/black) mark over
// the graph starting at EntryPoint and reports the first back edge found,
// as (fromID, toID, true), or ("", "", false) if the graph is acyclic
// (§4.3 validator, graph cycle check).
func (g *IRGraph) DetectCycle() (string, string, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))

	var fromID, toID string
	found := false

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		node, ok := g.Nodes[id]
		if ok {
			for _, next := range node.successors() {
				switch color[next] {
				case gray:
					fromID, toID, found = id, next, true
					return true
				case white:
					if visit(next) {
						return true
					}
				}
			}
		}
		color[id] = black
		return false
	}

	if g.EntryPoint != "" {
		visit(g.EntryPoint)
	}
	for id := range g.Nodes {
		if found {
			break
		}
		if color[id] == white {
			visit(id)
		}
	}
	return fromID, toID, found
}

// Reachable runs a BFS from EntryPoint and returns the set of node IDs
// reachable from it (§4.3 validator, reachability check).
func (g *IRGraph) Reachable() map[string]bool {
	seen := make(map[string]bool)
	if g.EntryPoint == "" {
		return seen
	}
	queue := []string{g.EntryPoint}
	seen[g.EntryPoint] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node, ok := g.Nodes[id]
		if !ok {
			continue
		}
		for _, next := range node.successors() {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// Unreachable returns the IDs of nodes present in the graph but not
// reachable from EntryPoint, sorted for deterministic error reporting.
func (g *IRGraph) Unreachable() []string {
	reached := g.Reachable()
	var out []string
	for id := range g.Nodes {
		if !reached[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
