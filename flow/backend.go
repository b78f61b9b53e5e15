package flow

import (
	"context"
	"time"
)

// SuspensionRecord is the persisted representation of a paused execution
// (§3, §4.5): everything needed to resume a flow from the point it
// suspended.
type SuspensionRecord struct {
	Key         string
	FlowID      string
	StepID      string
	SessionID   string

	// ExecutionPosition locates where in the IR graph execution paused,
	// including any enclosing loop iteration counters.
	ExecutionPosition ExecutionPosition

	VariableSnapshot map[string]any
	Metadata         map[string]any

	AwaitingInputSchema map[string]any
	DefaultValue        any

	CreatedAt time.Time
	ExpiresAt time.Time

	// Size and Checksum describe the serialized variable snapshot (byte
	// length and hex SHA-256). The interpreter sets them when it builds the
	// record; backends store them as given and do not verify them.
	Size     int64
	Checksum string
}

// ExecutionPosition locates a suspended node within the graph, including
// the loop-iteration trail needed to resume nested loops correctly.
type ExecutionPosition struct {
	NodeID     string
	LoopStack  []LoopFrame
}

// LoopFrame records progress through one active loop enclosing a
// suspended node.
type LoopFrame struct {
	NodeID   string
	Index    int
	Accum    any
}

// Criteria selects suspension records for List/Cleanup operations.
type Criteria struct {
	FlowID      string
	SessionID   string
	ExpiredOnly bool
	Before      time.Time
}

// Health reports a Backend's liveness for use in readiness probes.
type Health struct {
	OK      bool
	Message string
	Latency time.Duration
}

// Backend is the Suspension & Persistence Port (§6): where suspended
// executions are stored, retrieved, and eventually expired. Implementations
// live in flow/backend (MemoryBackend, SQLiteBackend, MySQLBackend).
//
// Every operation may return a *FlowError with Retryable set; callers
// wrap Backend calls with a retry RecoveryStrategy where that matters.
type Backend interface {
	Store(ctx context.Context, record *SuspensionRecord) error
	Retrieve(ctx context.Context, key string) (*SuspensionRecord, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, criteria Criteria) ([]*SuspensionRecord, error)
	Cleanup(ctx context.Context, criteria Criteria) (int, error)
	HealthCheck(ctx context.Context) Health
}
