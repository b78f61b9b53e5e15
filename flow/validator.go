package flow

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationResult is the Flow Validator's output (§4.2): {valid, errors,
// warnings}. A workflow with any Errors is not compiled; Warnings are
// advisory (an unrecognized tool argument, an unreachable node).
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate runs the Flow Validator's fixed check order against a compiled
// graph: schema, tool-usage, connections, operations, graph
// cycle/reachability, then variable-reference checks (§4.2).
func Validate(g *IRGraph, catalog *Catalog) *ValidationResult {
	r := &ValidationResult{Valid: true}

	validateSchema(g, r)
	validateToolUsage(g, catalog, r)
	validateConnections(g, r)
	validateOperations(g, r)
	validateGraph(g, r)
	validateVariableReferences(g, r)

	return r
}

func validateSchema(g *IRGraph, r *ValidationResult) {
	if g.EntryPoint == "" {
		r.fail("graph has no entry point")
		return
	}
	if _, ok := g.Nodes[g.EntryPoint]; !ok {
		r.fail("entry point %q is not a node in the graph", g.EntryPoint)
	}
	ids := make([]string, 0, len(g.Nodes))
	for id, node := range g.Nodes {
		ids = append(ids, id)
		if !IsSupportedKind(node.Kind) {
			r.fail("node %q has unsupported kind %q", id, node.Kind)
		}
	}
	sort.Strings(ids)
}

func validateToolUsage(g *IRGraph, catalog *Catalog, r *ValidationResult) {
	for id, node := range g.Nodes {
		if node.Kind != KindTool {
			continue
		}
		if node.ToolID == "" {
			r.fail("node %q is a tool step with no toolId", id)
			continue
		}
		spec, ok := catalog.Tool(node.ToolID)
		if !ok {
			r.fail("node %q references unknown tool %q", id, node.ToolID)
			continue
		}
		if len(spec.ArgNames) == 0 {
			continue
		}
		allowed := make(map[string]bool, len(spec.ArgNames))
		for _, name := range spec.ArgNames {
			allowed[name] = true
		}
		for argName := range node.Args {
			if !allowed[argName] {
				r.warn("node %q passes unrecognized argument %q to tool %q", id, argName, node.ToolID)
			}
		}
	}
}

func validateConnections(g *IRGraph, r *ValidationResult) {
	for _, edge := range g.Edges {
		if _, ok := g.Nodes[edge.FromID]; !ok {
			r.fail("edge references unknown source node %q", edge.FromID)
		}
		if _, ok := g.Nodes[edge.ToID]; !ok {
			r.fail("edge references unknown target node %q", edge.ToID)
		}
	}
	for id, node := range g.Nodes {
		for _, succ := range node.successors() {
			if _, ok := g.Nodes[succ]; !ok {
				r.fail("node %q references unknown node %q", id, succ)
			}
		}
	}
}

func validateOperations(g *IRGraph, r *ValidationResult) {
	for id, node := range g.Nodes {
		switch node.Kind {
		case KindFilter:
			if node.Condition == "" {
				r.fail("filter node %q has no condition", id)
			}
		case KindConditional:
			if node.ThenID == "" {
				r.fail("conditional node %q has no then branch", id)
			}
		case KindLoop:
			if node.BodyID == "" {
				r.fail("loop node %q has no body", id)
			}
			if node.LoopForm == LoopWhile && node.Condition == "" {
				r.fail("while-loop node %q has no condition", id)
			}
			if (node.LoopForm == LoopFor || node.LoopForm == LoopMap || node.LoopForm == LoopReduce) && node.Collection == nil {
				r.fail("%s-loop node %q has no collection", node.LoopForm, id)
			}
			if node.MaxIterations < 0 {
				r.fail("loop node %q has a negative maxIterations", id)
			}
		case KindMap, KindReduce:
			if node.BodyID == "" {
				r.fail("%s node %q has no body", node.Kind, id)
			}
			if node.Collection == nil {
				r.fail("%s node %q has no collection", node.Kind, id)
			}
		case KindParallel:
			if len(node.BranchIDs) == 0 {
				r.fail("parallel node %q has no branches", id)
			}
		case KindSwitch:
			if len(node.Cases) == 0 && node.Default == "" {
				r.fail("switch node %q has no cases and no default", id)
			}
		}
	}
}

func validateGraph(g *IRGraph, r *ValidationResult) {
	if from, to, cyclic := g.DetectCycle(); cyclic {
		r.fail("graph contains a cycle: %s -> %s", from, to)
		return
	}
	for _, id := range g.Unreachable() {
		r.warn("node %q is unreachable from the entry point", id)
	}
}

// validateVariableReferences statically checks every $name / $node.out
// reference against the set of names that could plausibly be bound by the
// time control reaches the referencing node: the top-level "input", any
// loop/map/reduce item or accumulator variable in scope along some path
// from the entry point, and any preceding node's id as a $node.out target.
func validateVariableReferences(g *IRGraph, r *ValidationResult) {
	if g.EntryPoint == "" {
		return
	}

	type frame struct {
		nodeID string
		bound  map[string]bool
		seen   map[string]bool // node ids executed so far along this path
	}

	initial := map[string]bool{"input": true}
	visited := make(map[string]bool)

	var walk func(f frame)
	walk = func(f frame) {
		key := f.nodeID
		if visited[key] {
			return
		}
		visited[key] = true

		node, ok := g.Nodes[f.nodeID]
		if !ok {
			return
		}

		checkRefs(node, f.bound, f.seen, node.ID, r)

		nextSeen := cloneSet(f.seen)
		nextSeen[node.ID] = true

		switch node.Kind {
		case KindConditional:
			if node.ThenID != "" {
				walk(frame{nodeID: node.ThenID, bound: f.bound, seen: nextSeen})
			}
			if node.ElseID != "" {
				walk(frame{nodeID: node.ElseID, bound: f.bound, seen: nextSeen})
			}
		case KindLoop, KindMap, KindReduce:
			bodyBound := cloneSet(f.bound)
			if node.ItemVar != "" {
				bodyBound[node.ItemVar] = true
			}
			if node.AccumulatorVar != "" {
				bodyBound[node.AccumulatorVar] = true
			}
			if node.BodyID != "" {
				walk(frame{nodeID: node.BodyID, bound: bodyBound, seen: nextSeen})
			}
		case KindParallel:
			for _, branch := range node.BranchIDs {
				walk(frame{nodeID: branch, bound: f.bound, seen: nextSeen})
			}
		case KindSwitch:
			for _, child := range node.Cases {
				walk(frame{nodeID: child, bound: f.bound, seen: nextSeen})
			}
			if node.Default != "" {
				walk(frame{nodeID: node.Default, bound: f.bound, seen: nextSeen})
			}
		}
		if node.NextID != "" {
			walk(frame{nodeID: node.NextID, bound: f.bound, seen: nextSeen})
		}
	}

	walk(frame{nodeID: g.EntryPoint, bound: initial, seen: map[string]bool{}})
}

func cloneSet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func checkRefs(node *IRNode, bound map[string]bool, seen map[string]bool, nodeID string, r *ValidationResult) {
	check := func(raw any) {
		checkRefValue(raw, bound, seen, nodeID, r)
	}
	for _, v := range node.Args {
		check(v)
	}
	if node.Condition != "" {
		for _, operand := range splitCondition(node.Condition) {
			check(operand)
		}
	}
	if node.Collection != nil {
		check(node.Collection)
	}
}

func checkRefValue(raw any, bound map[string]bool, seen map[string]bool, nodeID string, r *ValidationResult) {
	switch v := raw.(type) {
	case map[string]any:
		for _, elem := range v {
			checkRefValue(elem, bound, seen, nodeID, r)
		}
		return
	case []any:
		for _, elem := range v {
			checkRefValue(elem, bound, seen, nodeID, r)
		}
		return
	}

	ref := ParseValueRef(raw)
	switch ref.Kind {
	case RefVariable:
		if !bound[ref.VarName] {
			r.fail("node %q references variable %q which is not bound on every path reaching it", nodeID, ref.VarName)
		}
	case RefNode:
		if !seen[ref.NodeID] {
			r.fail("node %q references output of node %q before it executes", nodeID, ref.NodeID)
		}
	}
}

// splitCondition extracts the two operand strings out of an "LHS OP RHS"
// condition expression, for reference-checking purposes only (full
// evaluation semantics live in expr.go).
func splitCondition(cond string) []string {
	for _, op := range []string{"==", "!=", "<=", ">=", "&&", "||", "<", ">"} {
		if idx := strings.Index(cond, op); idx >= 0 {
			lhs := strings.TrimSpace(cond[:idx])
			rhs := strings.TrimSpace(cond[idx+len(op):])
			return []string{lhs, rhs}
		}
	}
	return []string{strings.TrimSpace(cond)}
}
