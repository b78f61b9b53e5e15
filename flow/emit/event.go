package emit

import "time"

// EventType identifies the kind of observability event emitted by the
// interpreter during a flow's execution.
type EventType string

// Event types emitted by the interpreter, in the order the state machine
// (§4.4: created -> running -> completed|failed|suspended) produces them.
// node-start always precedes node-complete|node-error for a given node;
// flow-complete|flow-error|flow-suspended is always terminal.
const (
	NodeStart      EventType = "node-start"
	NodeComplete   EventType = "node-complete"
	NodeError      EventType = "node-error"
	FlowComplete   EventType = "flow-complete"
	FlowError      EventType = "flow-error"
	FlowSuspended  EventType = "flow-suspended"
	FlowResumed    EventType = "flow-resumed"
)

// Event represents an observability event emitted during flow execution.
//
// Events provide detailed insight into interpreter behavior:
//   - Node dispatch start/complete/error
//   - Suspension and resume transitions
//   - Terminal flow outcomes
//
// Events are emitted to an Emitter which can:
//   - Discard them (NullEmitter)
//   - Log to stdout/stderr (LogEmitter)
//   - Buffer them for inspection (BufferedEmitter)
//   - Forward to OpenTelemetry (OTelEmitter)
type Event struct {
	// Type classifies the event per the interpreter's state machine.
	Type EventType

	// FlowID identifies the flow execution that emitted this event.
	FlowID string

	// NodeID identifies which IR node emitted this event.
	// Empty for flow-level events (flow-complete, flow-error, ...).
	NodeID string

	// NodeType is the IR node kind (tool, sequence, parallel, ...), when known.
	NodeType string

	// Data carries event-specific structured payload (e.g. a tool's result).
	Data map[string]any

	// Err holds the error for node-error/flow-error events.
	Err error

	// SuspensionKey is set on flow-suspended and flow-resumed events.
	SuspensionKey string

	// Timestamp records when the event was produced.
	Timestamp time.Time
}
