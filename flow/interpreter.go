package flow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flowkit/flowengine/flow/emit"
)

// Interpreter walks a compiled IRGraph, dispatching each node to the
// tool/control-flow handler matching its Kind (§4.4).
type Interpreter struct {
	catalog *Catalog
	tools   *ToolRegistry
	opts    Options

	circuitMu sync.Mutex
	circuits  map[string]*circuitState
}

// NewInterpreter builds an Interpreter bound to catalog and tools, applying
// opts over the package defaults.
func NewInterpreter(catalog *Catalog, tools *ToolRegistry, opts ...Option) *Interpreter {
	o := Options{}
	for _, apply := range opts {
		apply(&o)
	}
	return &Interpreter{
		catalog:  catalog,
		tools:    tools,
		opts:     o.withDefaults(),
		circuits: make(map[string]*circuitState),
	}
}

// Result is what Execute/ResumeExecution return: the final output bound to
// the last-executed node (nil when the run suspends or fails), the flow
// status, a suspension record when Status is StatusSuspended, and
// diagnostics collected along the way.
type Result struct {
	Output     map[string]any
	Status     FlowStatus
	Suspension *SuspensionRecord
	Trace      []TraceEntry
	Usage      Usage
}

// suspendSignal is threaded up the call stack as an error to unwind out of
// nested control-flow handlers the moment a tool requests suspension.
type suspendSignal struct {
	nodeID string
	sus    *Suspend
}

func (s *suspendSignal) Error() string { return "flow: suspended at " + s.nodeID }

// Execute compiles nothing further and interprets graph start to finish
// (or until a node suspends or fails), beginning at graph.EntryPoint with
// input bound to the "input" variable.
func (in *Interpreter) Execute(ctx context.Context, graph *IRGraph, flowID, sessionID string, input any) (*Result, error) {
	pool := NewWorkerPool(in.opts.MaxWorkers)
	execCtx := NewExecutionContext(flowID, sessionID, input, pool)
	execCtx.setStatus(StatusRunning)

	var trace *Trace
	if in.opts.Trace {
		trace = &Trace{}
	}
	usage := Usage{}

	in.emit(emit.Event{Type: emit.NodeStart, FlowID: flowID, NodeID: graph.EntryPoint, Timestamp: now()})

	lastOutput, err := in.run(ctx, execCtx, graph, graph.EntryPoint, trace, &usage)

	if err != nil {
		if sig, ok := err.(*suspendSignal); ok {
			record, serr := in.buildSuspension(flowID, sessionID, sig, execCtx, graph)
			if serr != nil {
				return nil, serr
			}
			if in.opts.Backend != nil {
				if serr := in.opts.Backend.Store(ctx, record); serr != nil {
					return nil, serr
				}
			}
			in.opts.Metrics.observeSuspensionIssued()
			execCtx.setStatus(StatusSuspended)
			in.emit(emit.Event{Type: emit.FlowSuspended, FlowID: flowID, NodeID: sig.nodeID, SuspensionKey: record.Key, Timestamp: now()})
			return &Result{Status: StatusSuspended, Suspension: record, Trace: trace.Entries(), Usage: usage}, nil
		}
		execCtx.setStatus(StatusFailed)
		in.emit(emit.Event{Type: emit.FlowError, FlowID: flowID, Err: err, Timestamp: now()})
		return &Result{Status: StatusFailed, Trace: trace.Entries(), Usage: usage}, err
	}

	execCtx.setStatus(StatusCompleted)
	in.emit(emit.Event{Type: emit.FlowComplete, FlowID: flowID, Data: lastOutput, Timestamp: now()})
	return &Result{Output: lastOutput, Status: StatusCompleted, Trace: trace.Entries(), Usage: usage}, nil
}

// ExecuteStream runs Execute in a goroutine, additionally fanning every
// event out to the returned channel (closed once the run settles), for
// callers that want to observe node-by-node progress rather than poll
// Result after the fact.
func (in *Interpreter) ExecuteStream(ctx context.Context, graph *IRGraph, flowID, sessionID string, input any) (<-chan emit.Event, <-chan *Result) {
	events := make(chan emit.Event, 64)
	results := make(chan *Result, 1)

	tap := &tappingEmitter{inner: in.opts.Emitter, out: events}
	in.opts.Emitter = tap

	go func() {
		defer close(events)
		defer close(results)
		res, _ := in.Execute(ctx, graph, flowID, sessionID, input)
		results <- res
	}()

	return events, results
}

type tappingEmitter struct {
	inner emit.Emitter
	out   chan emit.Event
}

func (t *tappingEmitter) Emit(e emit.Event) {
	if t.inner != nil {
		t.inner.Emit(e)
	}
	select {
	case t.out <- e:
	default:
	}
}
func (t *tappingEmitter) EmitBatch(ctx context.Context, es []emit.Event) error {
	for _, e := range es {
		t.Emit(e)
	}
	return nil
}
func (t *tappingEmitter) Flush(ctx context.Context) error {
	if t.inner != nil {
		return t.inner.Flush(ctx)
	}
	return nil
}

// ResumeExecution rehydrates a suspended run from its SuspensionRecord and
// continues interpretation from the node following the one that suspended
// (§4.5).
func (in *Interpreter) ResumeExecution(ctx context.Context, graph *IRGraph, key string, resumeInput map[string]any) (*Result, error) {
	if in.opts.Backend == nil {
		return nil, ConfigErr("backend", "no backend configured; cannot resume")
	}
	record, err := in.opts.Backend.Retrieve(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, PersistenceErr(key, "suspension not found", ErrSuspensionNotFound)
	}

	pool := NewWorkerPool(in.opts.MaxWorkers)
	execCtx := &ExecutionContext{
		FlowID:    record.FlowID,
		SessionID: record.SessionID,
		Scope:     RestoreScope(record.VariableSnapshot),
		Outputs:   map[string]any{record.StepID: resumeInput},
		Metadata:  record.Metadata,
		pool:      pool,
	}
	execCtx.setStatus(StatusRunning)

	in.opts.Metrics.observeSuspensionResumed()
	in.emit(emit.Event{Type: emit.FlowResumed, FlowID: record.FlowID, NodeID: record.StepID, SuspensionKey: key, Timestamp: now()})
	if err := in.opts.Backend.Delete(ctx, key); err != nil {
		return nil, err
	}

	var trace *Trace
	if in.opts.Trace {
		trace = &Trace{}
	}
	usage := Usage{}

	node, ok := graph.Nodes[record.StepID]
	if !ok {
		return nil, ExecutionErr(record.StepID, "suspended node no longer present in graph")
	}

	var lastOutput map[string]any = resumeInput
	if node.NextID != "" {
		out, rerr := in.run(ctx, execCtx, graph, node.NextID, trace, &usage)
		if rerr != nil {
			if sig, ok := rerr.(*suspendSignal); ok {
				rec2, serr := in.buildSuspension(record.FlowID, record.SessionID, sig, execCtx, graph)
				if serr != nil {
					return nil, serr
				}
				if serr := in.opts.Backend.Store(ctx, rec2); serr != nil {
					return nil, serr
				}
				return &Result{Status: StatusSuspended, Suspension: rec2, Trace: trace.Entries(), Usage: usage}, nil
			}
			execCtx.setStatus(StatusFailed)
			return &Result{Status: StatusFailed, Trace: trace.Entries(), Usage: usage}, rerr
		}
		lastOutput = out
	}

	execCtx.setStatus(StatusCompleted)
	return &Result{Output: lastOutput, Status: StatusCompleted, Trace: trace.Entries(), Usage: usage}, nil
}

func (in *Interpreter) buildSuspension(flowID, sessionID string, sig *suspendSignal, execCtx *ExecutionContext, graph *IRGraph) (*SuspensionRecord, error) {
	snapshot := execCtx.Scope.Snapshot()
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, ParseErr("failed to serialize variable snapshot", err)
	}
	sum := sha256.Sum256(raw)

	return &SuspensionRecord{
		Key:                 flowID + ":" + sig.nodeID,
		FlowID:              flowID,
		StepID:              sig.nodeID,
		SessionID:           sessionID,
		ExecutionPosition:   ExecutionPosition{NodeID: sig.nodeID},
		VariableSnapshot:    snapshot,
		Metadata:            sig.sus.Metadata,
		AwaitingInputSchema: sig.sus.AwaitingInputSchema,
		DefaultValue:        sig.sus.DefaultValue,
		CreatedAt:           now(),
		ExpiresAt:           now().Add(in.opts.SuspensionTTL),
		Size:                int64(len(raw)),
		Checksum:            hex.EncodeToString(sum[:]),
	}, nil
}

func (in *Interpreter) emit(e emit.Event) {
	if in.opts.Emitter == nil {
		return
	}
	in.opts.Emitter.Emit(e)
}

// run dispatches node id and, for nodes with a NextID, chains into it,
// returning the output bound to the final node reached along this path.
func (in *Interpreter) run(ctx context.Context, execCtx *ExecutionContext, graph *IRGraph, nodeID string, trace *Trace, usage *Usage) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	node, ok := graph.Nodes[nodeID]
	if !ok {
		return nil, ExecutionErr(nodeID, "node not found in graph")
	}
	in.emit(emit.Event{Type: emit.NodeStart, FlowID: execCtx.FlowID, NodeID: node.ID, NodeType: string(node.Kind), Timestamp: now()})

	start := now()
	out, err := in.dispatch(ctx, execCtx, graph, node, trace, usage)
	duration := now().Sub(start)
	trace.record(TraceEntry{NodeID: node.ID, NodeKind: node.Kind, Duration: duration, Err: err})

	if err != nil {
		if _, ok := err.(*suspendSignal); ok {
			in.opts.Metrics.observeNode(string(node.Kind), "suspended", duration)
			return nil, err
		}
		in.opts.Metrics.observeNode(string(node.Kind), "error", duration)
		in.emit(emit.Event{Type: emit.NodeError, FlowID: execCtx.FlowID, NodeID: node.ID, NodeType: string(node.Kind), Err: err, Timestamp: now()})
		return nil, err
	}
	in.opts.Metrics.observeNode(string(node.Kind), "success", duration)
	if execCtx.pool != nil {
		in.opts.Metrics.observeWorkerAvailable(execCtx.pool.Stats().Available)
	}
	execCtx.Outputs[node.ID] = out
	usage.Add(out)
	in.emit(emit.Event{Type: emit.NodeComplete, FlowID: execCtx.FlowID, NodeID: node.ID, NodeType: string(node.Kind), Data: out, Timestamp: now()})

	if node.NextID != "" {
		return in.run(ctx, execCtx, graph, node.NextID, trace, usage)
	}
	return out, nil
}

func (in *Interpreter) dispatch(ctx context.Context, execCtx *ExecutionContext, graph *IRGraph, node *IRNode, trace *Trace, usage *Usage) (map[string]any, error) {
	switch node.Kind {
	case KindTool:
		return in.dispatchTool(ctx, execCtx, graph, node, trace, usage)
	case KindFilter:
		return in.dispatchFilter(execCtx, node)
	case KindConditional:
		return in.dispatchConditional(ctx, execCtx, graph, node, trace, usage)
	case KindLoop:
		return in.dispatchLoop(ctx, execCtx, graph, node, trace, usage)
	case KindMap:
		return in.dispatchMap(ctx, execCtx, graph, node, trace, usage)
	case KindReduce:
		return in.dispatchReduce(ctx, execCtx, graph, node, trace, usage)
	case KindParallel:
		return in.dispatchParallel(ctx, execCtx, graph, node, trace, usage)
	case KindSwitch:
		return in.dispatchSwitch(ctx, execCtx, graph, node, trace, usage)
	default:
		return nil, ExecutionErr(node.ID, "unknown node kind "+string(node.Kind))
	}
}

func (in *Interpreter) dispatchTool(ctx context.Context, execCtx *ExecutionContext, graph *IRGraph, node *IRNode, trace *Trace, usage *Usage) (map[string]any, error) {
	tool, ok := in.tools.Get(node.ToolID)
	if !ok {
		return nil, ToolErr(node.ToolID, "tool not registered", nil)
	}
	args, err := ResolveArgs(node.Args, execCtx.Scope, execCtx.Outputs)
	if err != nil {
		return nil, err
	}

	policy := in.recoveryPolicyFor(node)
	var breaker *circuitState
	if policy.Kind == RecoveryCircuitBreaker {
		breaker = in.circuitFor(node.ID)
		policy.OnCircuitTrip = func() { in.opts.Metrics.observeCircuitTrip(node.ID) }
	}
	if policy.Kind == RecoveryRetry {
		policy.OnRetryAttempt = func(attempt int) { in.opts.Metrics.observeRetry(node.ID) }
	}
	if policy.Kind == RecoveryCompensate {
		compensateIDs := policy.CompensateNodeIDs
		policy.Compensate = func(ctx context.Context) error {
			for i := len(compensateIDs) - 1; i >= 0; i-- {
				compNode, ok := graph.Nodes[compensateIDs[i]]
				if !ok {
					return ExecutionErr(compensateIDs[i], "compensation node not found in graph")
				}
				if _, err := in.dispatch(ctx, execCtx, graph, compNode, trace, usage); err != nil {
					return err
				}
			}
			return nil
		}
	}

	out, err := Recover(ctx, policy, breaker, func(ctx context.Context) (map[string]any, error) {
		return tool.Call(ctx, args)
	})
	if err != nil {
		if sus, ok := err.(*Suspend); ok {
			return nil, &suspendSignal{nodeID: node.ID, sus: sus}
		}
		if fe, ok := err.(*FlowError); ok {
			// Recover already categorized this failure (e.g. retry
			// exhaustion, an open circuit, or a completed compensation) —
			// surface it as-is instead of burying it under a generic
			// tool-category wrapper.
			return nil, fe
		}
		return nil, ToolErr(node.ToolID, "tool call failed", err)
	}
	return out, nil
}

func (in *Interpreter) dispatchFilter(execCtx *ExecutionContext, node *IRNode) (map[string]any, error) {
	pass, err := EvalCondition(node.Condition, execCtx.Scope, execCtx.Outputs)
	if err != nil {
		return nil, err
	}
	return map[string]any{"passed": pass}, nil
}

func (in *Interpreter) dispatchConditional(ctx context.Context, execCtx *ExecutionContext, graph *IRGraph, node *IRNode, trace *Trace, usage *Usage) (map[string]any, error) {
	take, err := EvalCondition(node.Condition, execCtx.Scope, execCtx.Outputs)
	if err != nil {
		return nil, err
	}

	var branchID string
	if take {
		branchID = node.ThenID
	} else {
		branchID = node.ElseID
	}
	if branchID == "" {
		return map[string]any{}, nil
	}

	execCtx.Scope.PushChild()
	defer execCtx.Scope.Pop()
	return in.run(ctx, execCtx, graph, branchID, trace, usage)
}

func (in *Interpreter) dispatchLoop(ctx context.Context, execCtx *ExecutionContext, graph *IRGraph, node *IRNode, trace *Trace, usage *Usage) (map[string]any, error) {
	maxIter := node.MaxIterations
	if maxIter <= 0 {
		maxIter = in.opts.MaxIterations
	}

	var lastOut map[string]any
	switch node.LoopForm {
	case LoopWhile:
		for i := 0; ; i++ {
			ok, err := EvalCondition(node.Condition, execCtx.Scope, execCtx.Outputs)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			if i >= maxIter {
				return nil, ErrMaxIterationsExceeded
			}
			out, ctrl, err := in.runLoopBody(ctx, execCtx, graph, node, nil, i, lastOut)
			if err != nil {
				return nil, err
			}
			lastOut = out
			if ctrl == signalBreak {
				break
			}
		}
	case LoopFor, LoopMap:
		items, err := in.resolveCollection(execCtx, node)
		if err != nil {
			return nil, err
		}
		results := make([]any, 0, len(items))
		for i, item := range items {
			if i >= maxIter {
				return nil, ErrMaxIterationsExceeded
			}
			out, ctrl, err := in.runLoopBody(ctx, execCtx, graph, node, item, i, lastOut)
			if err != nil {
				return nil, err
			}
			lastOut = out
			if node.LoopForm == LoopMap {
				results = append(results, out)
			}
			if ctrl == signalBreak {
				break
			}
		}
		if node.LoopForm == LoopMap {
			return map[string]any{"results": results}, nil
		}
	case LoopReduce:
		items, err := in.resolveCollection(execCtx, node)
		if err != nil {
			return nil, err
		}
		var accum any
		for i, item := range items {
			if i >= maxIter {
				return nil, ErrMaxIterationsExceeded
			}
			execCtx.Scope.PushChild()
			if node.AccumulatorVar != "" {
				execCtx.Scope.Set(node.AccumulatorVar, accum)
			}
			if node.ItemVar != "" {
				execCtx.Scope.Set(node.ItemVar, item)
			}
			out, err := in.run(ctx, execCtx, graph, node.BodyID, trace, usage)
			execCtx.Scope.Pop()
			if err != nil {
				return nil, err
			}
			if v, ok := out["out"]; ok {
				accum = v
			} else {
				accum = out
			}
			lastOut = out
		}
		return map[string]any{"out": accum}, nil
	default:
		return nil, ExecutionErr(node.ID, "unknown loop form "+string(node.LoopForm))
	}

	if lastOut == nil {
		lastOut = map[string]any{}
	}
	return lastOut, nil
}

func (in *Interpreter) runLoopBody(ctx context.Context, execCtx *ExecutionContext, graph *IRGraph, node *IRNode, item any, index int, prevOut map[string]any) (map[string]any, flowControlSignal, error) {
	execCtx.Scope.PushChild()
	defer execCtx.Scope.Pop()

	if node.ItemVar != "" {
		execCtx.Scope.Set(node.ItemVar, item)
	}
	execCtx.Scope.Set("index", index)

	out, err := in.run(ctx, execCtx, graph, node.BodyID, nil, &Usage{})
	if err != nil {
		return nil, signalNone, err
	}
	ctrl := execCtx.ConsumeFlowControl()
	return out, ctrl, nil
}

func (in *Interpreter) resolveCollection(execCtx *ExecutionContext, node *IRNode) ([]any, error) {
	resolved, err := resolveAny(node.Collection, execCtx.Scope, execCtx.Outputs)
	if err != nil {
		return nil, err
	}
	items, ok := resolved.([]any)
	if !ok {
		return nil, ExecutionErr(node.ID, "collection did not resolve to an array")
	}
	return items, nil
}

func (in *Interpreter) dispatchMap(ctx context.Context, execCtx *ExecutionContext, graph *IRGraph, node *IRNode, trace *Trace, usage *Usage) (map[string]any, error) {
	items, err := in.resolveCollection(execCtx, node)
	if err != nil {
		return nil, err
	}
	maxIter := node.MaxIterations
	if maxIter <= 0 {
		maxIter = in.opts.MaxIterations
	}
	results := make([]any, len(items))
	for i, item := range items {
		if i >= maxIter {
			return nil, ErrMaxIterationsExceeded
		}
		out, _, err := in.runLoopBody(ctx, execCtx, graph, node, item, i, nil)
		if err != nil {
			return nil, err
		}
		results[i] = out
	}
	return map[string]any{"results": results}, nil
}

func (in *Interpreter) dispatchReduce(ctx context.Context, execCtx *ExecutionContext, graph *IRGraph, node *IRNode, trace *Trace, usage *Usage) (map[string]any, error) {
	return in.dispatchLoop(ctx, execCtx, graph, &IRNode{
		ID: node.ID, Kind: KindLoop, LoopForm: LoopReduce,
		Collection: node.Collection, BodyID: node.BodyID,
		ItemVar: node.ItemVar, AccumulatorVar: node.AccumulatorVar,
		MaxIterations: node.MaxIterations,
	}, trace, usage)
}

func (in *Interpreter) dispatchParallel(ctx context.Context, execCtx *ExecutionContext, graph *IRGraph, node *IRNode, trace *Trace, usage *Usage) (map[string]any, error) {
	execCtx.EnterParallel()
	defer execCtx.ExitParallel()

	results := make([]map[string]any, len(node.BranchIDs))

	fns := make([]func(ctx context.Context) error, len(node.BranchIDs))
	for i, branchID := range node.BranchIDs {
		i, branchID := i, branchID
		fns[i] = func(ctx context.Context) error {
			child := execCtx.Fork(branchID)
			out, err := in.run(ctx, child, graph, branchID, nil, &Usage{})
			results[i] = out
			return err
		}
	}

	if err := execCtx.WorkerPool().SubmitMany(ctx, fns); err != nil {
		return nil, err
	}

	// results is already ordered by node.BranchIDs, i.e. declaration order
	// (§4.4, §8 invariant 4).
	return map[string]any{"results": results}, nil
}

func (in *Interpreter) dispatchSwitch(ctx context.Context, execCtx *ExecutionContext, graph *IRGraph, node *IRNode, trace *Trace, usage *Usage) (map[string]any, error) {
	var key string
	if node.SwitchKey != nil {
		resolved, err := resolveAny(node.SwitchKey, execCtx.Scope, execCtx.Outputs)
		if err != nil {
			return nil, err
		}
		key = fmt.Sprintf("%v", resolved)
	} else {
		if in.opts.Choose == nil {
			return nil, ConfigErr("choose", "switch node requires a Choose port but none is configured")
		}
		options := make([]Option, 0, len(node.Cases))
		for id := range node.Cases {
			options = append(options, Option{ID: id})
		}
		selected, err := in.opts.Choose.Select(ctx, node.Prompt, options, execCtx.Scope.Snapshot())
		if err != nil {
			return nil, ExecutionErr(node.ID, "choose selection failed: "+err.Error())
		}
		key = selected
	}

	branchID, ok := node.Cases[key]
	if !ok {
		branchID = node.Default
	}
	if branchID == "" {
		return nil, ExecutionErr(node.ID, "switch selected case "+key+" and no default is configured")
	}

	execCtx.Scope.PushChild()
	defer execCtx.Scope.Pop()
	return in.run(ctx, execCtx, graph, branchID, trace, usage)
}

func (in *Interpreter) recoveryPolicyFor(node *IRNode) RecoveryPolicy {
	if node.Metadata != nil {
		if raw, ok := node.Metadata["recovery"]; ok {
			if policy, ok := raw.(RecoveryPolicy); ok {
				return policy
			}
		}
	}
	return in.opts.RecoveryDefault
}

func (in *Interpreter) circuitFor(nodeID string) *circuitState {
	in.circuitMu.Lock()
	defer in.circuitMu.Unlock()
	c, ok := in.circuits[nodeID]
	if !ok {
		c = &circuitState{}
		in.circuits[nodeID] = c
	}
	return c
}

func now() time.Time { return time.Now() }
