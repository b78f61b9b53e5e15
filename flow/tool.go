package flow

import (
	"context"
	"sync"
)

// Tool is the External Tool Port (§6): anything a KindTool node can
// invoke. Implementations live in flow/tool (HTTPTool, MockTool) or are
// supplied by the embedding application.
type Tool interface {
	// Name returns the tool's catalog id.
	Name() string

	// Call executes the tool. Returning a *Suspend error signals that the
	// node should suspend rather than fail (§4.5, §6).
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Suspend is a sentinel error a Tool returns from Call to signal that
// execution should pause at this node pending external input, instead of
// failing or succeeding. The interpreter builds a SuspensionRecord from
// its fields and hands control back to the caller (§4.5).
type Suspend struct {
	// AwaitingInputSchema describes the shape of input expected on resume.
	AwaitingInputSchema map[string]any

	// DefaultValue is substituted if the suspension expires before being
	// resumed and the backend is configured to auto-resume with a default.
	DefaultValue any

	// Metadata is opaque data carried through to the SuspensionRecord.
	Metadata map[string]any
}

// Error implements the error interface so a Tool can `return nil, &Suspend{...}`.
func (s *Suspend) Error() string {
	return "flow: tool requested suspension"
}

// ToolRegistry is a thread-safe lookup of Tool implementations by name,
// consulted by the interpreter when dispatching a KindTool node.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool, keyed by its Name().
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name, used to build a Catalog
// snapshot from a live registry.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
