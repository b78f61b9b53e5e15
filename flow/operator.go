package flow

import "sort"

// ToolSpec describes a tool as known to the catalog at compile time: its
// id and the argument names it accepts, used by the validator's
// tool-usage check (§4.2 Flow Validator).
type ToolSpec struct {
	ID          string
	ArgNames    []string
	Description string
}

// Catalog is the Operator Catalog (component A): the set of tool ids and
// operator kinds a workflow may reference, known prior to compilation.
// The eight operator kinds themselves are fixed (NodeKind); the catalog's
// job is to track which concrete tools are available to KindTool steps.
type Catalog struct {
	tools map[string]ToolSpec
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tools: make(map[string]ToolSpec)}
}

// Register adds or replaces a tool specification.
func (c *Catalog) Register(spec ToolSpec) {
	c.tools[spec.ID] = spec
}

// HasTool reports whether id names a registered tool.
func (c *Catalog) HasTool(id string) bool {
	_, ok := c.tools[id]
	return ok
}

// Tool returns the spec registered under id.
func (c *Catalog) Tool(id string) (ToolSpec, bool) {
	spec, ok := c.tools[id]
	return spec, ok
}

// Snapshot returns the sorted list of registered tool ids, recorded on an
// IRGraph at compile time (IRGraph.RegistrySnapshot) so later execution can
// detect catalog drift between compile and run.
func (c *Catalog) Snapshot() []string {
	ids := make([]string, 0, len(c.tools))
	for id := range c.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SupportedKinds is the fixed, closed set of operator kinds a workflow may
// use (§3).
var SupportedKinds = []NodeKind{
	KindTool, KindFilter, KindConditional, KindLoop,
	KindMap, KindReduce, KindParallel, KindSwitch,
}

// IsSupportedKind reports whether kind belongs to the closed operator set.
func IsSupportedKind(kind NodeKind) bool {
	for _, k := range SupportedKinds {
		if k == kind {
			return true
		}
	}
	return false
}
