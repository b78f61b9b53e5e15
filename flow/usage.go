package flow

// Usage aggregates the cost/consumption figures tools report through
// their result metadata, rolled up across a run (§9 cost/usage accounting
// hook). Results of nodes inside for/while/map loop bodies, map-node bodies
// and parallel branches are not added one by one; only the output the
// enclosing loop, map or parallel node itself returns is.
type Usage struct {
	Tokens  int64
	CostUSD float64
}

// Add folds a tool result's "usage" metadata entry (shaped
// {"tokens": int, "costUSD": float64}) into u, ignoring results that carry
// no usage figure.
func (u *Usage) Add(result map[string]any) {
	raw, ok := result["usage"]
	if !ok {
		return
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return
	}
	if tokens, ok := asFloat(m["tokens"]); ok {
		u.Tokens += int64(tokens)
	}
	if cost, ok := asFloat(m["costUSD"]); ok {
		u.CostUSD += cost
	}
}
