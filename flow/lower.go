package flow

// LowerCtx accumulates state across a single Workflow->IRGraph lowering
// pass: the graph under construction and the registry snapshot taken at
// lowering time.
type LowerCtx struct {
	graph    *IRGraph
	registry []string
}

// Lower compiles a recursive Workflow into an id-addressed IRGraph,
// chaining top-level steps into a single sequence (the first step is the
// EntryPoint; each step's NextID points at the following sibling) (§4.3
// compile).
func Lower(w *Workflow, catalog *Catalog) (*IRGraph, error) {
	ctx := &LowerCtx{graph: NewIRGraph(), registry: catalog.Snapshot()}
	ctx.graph.RegistrySnapshot = ctx.registry

	if len(w.Steps) == 0 {
		return nil, CompilationErr("", "workflow has no steps")
	}

	var prev *IRNode
	for _, step := range w.Steps {
		node, err := ctx.addNode(step, catalog)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			ctx.graph.EntryPoint = node.ID
		} else {
			prev.NextID = node.ID
			ctx.graph.AddEdge(prev.ID, node.ID, "")
		}
		prev = node
	}
	return ctx.graph, nil
}

// addNode lowers a single Step (and, recursively, its children) into one
// or more IRNodes, returning the node representing the step itself.
func (ctx *LowerCtx) addNode(s *Step, catalog *Catalog) (*IRNode, error) {
	if s.ID == "" {
		return nil, CompilationErr("", "step is missing an id")
	}
	if _, exists := ctx.graph.Nodes[s.ID]; exists {
		return nil, CompilationErr(s.ID, "duplicate step id")
	}

	node := &IRNode{
		ID:             s.ID,
		Kind:           s.Kind,
		ToolID:         s.ToolID,
		Args:           s.Args,
		Condition:      s.Condition,
		LoopForm:       s.LoopForm,
		Collection:     s.Collection,
		MaxIterations:  s.MaxIterations,
		AccumulatorVar: s.AccumulatorVar,
		ItemVar:        s.ItemVar,
		Metadata:       s.Metadata,
		SwitchKey:      s.SwitchKey,
		Prompt:         s.Prompt,
	}
	ctx.graph.AddNode(node)

	switch s.Kind {
	case KindTool:
		if !catalog.HasTool(s.ToolID) {
			return nil, CompilationErr(s.ID, "references unregistered tool id "+s.ToolID)
		}
	case KindFilter:
		if s.Condition == "" {
			return nil, CompilationErr(s.ID, "filter step requires a condition")
		}
	case KindConditional:
		if s.Then == nil {
			return nil, CompilationErr(s.ID, "conditional step requires a then branch")
		}
		then, err := ctx.addNode(s.Then, catalog)
		if err != nil {
			return nil, err
		}
		node.ThenID = then.ID
		ctx.graph.AddEdge(s.ID, then.ID, "then")
		if s.Else != nil {
			els, err := ctx.addNode(s.Else, catalog)
			if err != nil {
				return nil, err
			}
			node.ElseID = els.ID
			ctx.graph.AddEdge(s.ID, els.ID, "else")
		}
	case KindLoop:
		if s.Body == nil {
			return nil, CompilationErr(s.ID, "loop step requires a body")
		}
		body, err := ctx.addNode(s.Body, catalog)
		if err != nil {
			return nil, err
		}
		node.BodyID = body.ID
		ctx.graph.AddEdge(s.ID, body.ID, "body")
		if s.LoopForm == LoopWhile && s.Condition == "" {
			return nil, CompilationErr(s.ID, "while loop requires a condition")
		}
		if (s.LoopForm == LoopFor || s.LoopForm == LoopMap || s.LoopForm == LoopReduce) && s.Collection == nil {
			return nil, CompilationErr(s.ID, "for/map/reduce loop requires a collection")
		}
	case KindMap, KindReduce:
		if s.Body == nil {
			return nil, CompilationErr(s.ID, "map/reduce step requires a body")
		}
		body, err := ctx.addNode(s.Body, catalog)
		if err != nil {
			return nil, err
		}
		node.BodyID = body.ID
		ctx.graph.AddEdge(s.ID, body.ID, "body")
		if s.Collection == nil {
			return nil, CompilationErr(s.ID, "map/reduce step requires a collection")
		}
	case KindParallel:
		if len(s.Branches) == 0 {
			return nil, CompilationErr(s.ID, "parallel step requires at least one branch")
		}
		for _, branch := range s.Branches {
			bn, err := ctx.addNode(branch, catalog)
			if err != nil {
				return nil, err
			}
			node.BranchIDs = append(node.BranchIDs, bn.ID)
			ctx.graph.AddEdge(s.ID, bn.ID, "branch")
		}
	case KindSwitch:
		if len(s.Cases) == 0 && s.Default == nil {
			return nil, CompilationErr(s.ID, "switch step requires at least one case or a default")
		}
		if s.SwitchKey == nil && s.Prompt == "" {
			return nil, CompilationErr(s.ID, "switch step requires either switchKey or prompt")
		}
		node.Cases = make(map[string]string, len(s.Cases))
		for option, child := range s.Cases {
			cn, err := ctx.addNode(child, catalog)
			if err != nil {
				return nil, err
			}
			node.Cases[option] = cn.ID
			ctx.graph.AddEdge(s.ID, cn.ID, option)
		}
		if s.Default != nil {
			dn, err := ctx.addNode(s.Default, catalog)
			if err != nil {
				return nil, err
			}
			node.Default = dn.ID
			ctx.graph.AddEdge(s.ID, dn.ID, "default")
		}
	default:
		return nil, CompilationErr(s.ID, "unknown step kind "+string(s.Kind))
	}

	if s.Next != nil {
		next, err := ctx.addNode(s.Next, catalog)
		if err != nil {
			return nil, err
		}
		node.NextID = next.ID
		ctx.graph.AddEdge(s.ID, next.ID, "")
	}

	return node, nil
}
