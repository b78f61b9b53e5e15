package flow

import "testing"

func buildLinearGraph() *IRGraph {
	g := NewIRGraph()
	g.AddNode(&IRNode{ID: "a", Kind: KindTool, NextID: "b"})
	g.AddNode(&IRNode{ID: "b", Kind: KindTool})
	g.AddEdge("a", "b", "")
	g.EntryPoint = "a"
	return g
}

func TestIRGraph_ReachableLinear(t *testing.T) {
	g := buildLinearGraph()
	reached := g.Reachable()
	if !reached["a"] || !reached["b"] {
		t.Fatalf("expected both nodes reachable, got %v", reached)
	}
}

func TestIRGraph_UnreachableNode(t *testing.T) {
	g := buildLinearGraph()
	g.AddNode(&IRNode{ID: "orphan", Kind: KindTool})
	un := g.Unreachable()
	if len(un) != 1 || un[0] != "orphan" {
		t.Fatalf("expected [orphan], got %v", un)
	}
}

func TestIRGraph_DetectCycle_None(t *testing.T) {
	g := buildLinearGraph()
	_, _, found := g.DetectCycle()
	if found {
		t.Fatal("expected no cycle in a linear graph")
	}
}

func TestIRGraph_DetectCycle_SelfLoop(t *testing.T) {
	g := NewIRGraph()
	g.AddNode(&IRNode{ID: "a", Kind: KindLoop, BodyID: "a"})
	g.EntryPoint = "a"
	from, to, found := g.DetectCycle()
	if !found || from != "a" || to != "a" {
		t.Fatalf("expected self-loop cycle at a, got from=%q to=%q found=%v", from, to, found)
	}
}

func TestIRGraph_DetectCycle_Indirect(t *testing.T) {
	g := NewIRGraph()
	g.AddNode(&IRNode{ID: "a", Kind: KindTool, NextID: "b"})
	g.AddNode(&IRNode{ID: "b", Kind: KindTool, NextID: "c"})
	g.AddNode(&IRNode{ID: "c", Kind: KindTool, NextID: "a"})
	g.EntryPoint = "a"
	_, _, found := g.DetectCycle()
	if !found {
		t.Fatal("expected a cycle across a -> b -> c -> a")
	}
}

func TestIRNode_SuccessorsByKind(t *testing.T) {
	cond := &IRNode{Kind: KindConditional, ThenID: "t", ElseID: "e", NextID: "n"}
	succ := cond.successors()
	want := map[string]bool{"t": true, "e": true, "n": true}
	if len(succ) != len(want) {
		t.Fatalf("got %v, want keys %v", succ, want)
	}
	for _, s := range succ {
		if !want[s] {
			t.Errorf("unexpected successor %q", s)
		}
	}

	par := &IRNode{Kind: KindParallel, BranchIDs: []string{"x", "y"}}
	succ = par.successors()
	if len(succ) != 2 {
		t.Errorf("expected 2 parallel successors, got %v", succ)
	}

	sw := &IRNode{Kind: KindSwitch, Cases: map[string]string{"yes": "y", "no": "n"}, Default: "d"}
	succ = sw.successors()
	if len(succ) != 3 {
		t.Errorf("expected 3 switch successors, got %v", succ)
	}
}

func TestIRGraph_EmptyEntryPointReachableIsEmpty(t *testing.T) {
	g := NewIRGraph()
	g.AddNode(&IRNode{ID: "a", Kind: KindTool})
	if len(g.Reachable()) != 0 {
		t.Error("expected no reachable nodes without an entry point")
	}
}
