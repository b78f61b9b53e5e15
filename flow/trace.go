package flow

import "time"

// TraceEntry records one node dispatch for post-run inspection when
// Options.Trace is enabled (§9 replay/trace inspection).
type TraceEntry struct {
	NodeID   string
	NodeKind NodeKind
	Attempt  int
	Duration time.Duration
	Err      error
}

// Trace accumulates TraceEntry values across a single Execute call.
// Dispatches inside for/while/map loop bodies, map-node bodies and parallel
// branches are not recorded; the enclosing loop, map or parallel node is.
type Trace struct {
	entries []TraceEntry
}

func (t *Trace) record(e TraceEntry) {
	if t == nil {
		return
	}
	t.entries = append(t.entries, e)
}

// Entries returns the recorded dispatch path, in execution order.
func (t *Trace) Entries() []TraceEntry {
	if t == nil {
		return nil
	}
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
