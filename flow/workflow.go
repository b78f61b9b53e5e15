package flow

// Workflow is the recursive, author-facing wire representation of an
// operator graph: steps nest their children directly rather than
// referencing them by id. This is the shape a generator or a hand-authored
// JSON/YAML document produces.
type Workflow struct {
	Version  string         `json:"version"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Steps    []*Step        `json:"steps"`
}

// Step is one recursive operator node in a Workflow. Only the fields
// relevant to Kind are populated.
type Step struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`

	// tool
	ToolID string         `json:"toolId,omitempty"`
	Args   map[string]any `json:"args,omitempty"`

	// filter, conditional, loop(while)
	Condition string `json:"condition,omitempty"`

	// conditional
	Then *Step `json:"then,omitempty"`
	Else *Step `json:"else,omitempty"`

	// loop
	LoopForm       LoopForm `json:"loopForm,omitempty"`
	Collection     any      `json:"collection,omitempty"`
	Body           *Step    `json:"body,omitempty"`
	MaxIterations  int      `json:"maxIterations,omitempty"`
	AccumulatorVar string   `json:"accumulatorVar,omitempty"`
	ItemVar        string   `json:"itemVar,omitempty"`

	// parallel
	Branches []*Step `json:"branches,omitempty"`

	// switch
	Cases     map[string]*Step `json:"cases,omitempty"`
	Default   *Step            `json:"default,omitempty"`
	SwitchKey any              `json:"switchKey,omitempty"`
	Prompt    string           `json:"prompt,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	// Next is the step that runs after this one within the same subtree:
	// used both to chain a loop/branch/case body into a multi-step
	// sequence and, for top-level steps, equivalently to Workflow.Steps
	// ordering (authors may use either; Lower uses Next when present).
	Next *Step `json:"next,omitempty"`
}

// FlatWorkflow is the id-addressed wire representation of the same
// operator graph: every step is listed once, flat, and references its
// children by id instead of nesting them. Lower compiles the recursive
// Workflow; ToFlat and FromFlat convert between the two shapes (§9
// "two-pass flat<->recursive transform").
type FlatWorkflow struct {
	Version  string         `json:"version"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Steps    []*FlatStep    `json:"steps"`
	RootIDs  []string       `json:"rootIds"`
}

// FlatStep mirrors Step but replaces every nested *Step with an id string.
type FlatStep struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`

	ToolID string         `json:"toolId,omitempty"`
	Args   map[string]any `json:"args,omitempty"`

	Condition string `json:"condition,omitempty"`

	ThenID string `json:"thenId,omitempty"`
	ElseID string `json:"elseId,omitempty"`

	LoopForm       LoopForm `json:"loopForm,omitempty"`
	Collection     any      `json:"collection,omitempty"`
	BodyID         string   `json:"bodyId,omitempty"`
	MaxIterations  int      `json:"maxIterations,omitempty"`
	AccumulatorVar string   `json:"accumulatorVar,omitempty"`
	ItemVar        string   `json:"itemVar,omitempty"`

	BranchIDs []string `json:"branchIds,omitempty"`

	CaseIDs   map[string]string `json:"caseIds,omitempty"`
	DefaultID string            `json:"defaultId,omitempty"`
	SwitchKey any               `json:"switchKey,omitempty"`
	Prompt    string            `json:"prompt,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
	NextID   string         `json:"nextId,omitempty"`
}
