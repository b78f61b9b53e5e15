package flow

// ToFlat performs the first pass of the flat<->recursive transform: a
// depth-first walk of w that emits one FlatStep per Step, replacing every
// nested *Step with its ID, and collects the top-level step IDs as roots
// (§9).
func ToFlat(w *Workflow) *FlatWorkflow {
	flat := &FlatWorkflow{Version: w.Version, Metadata: w.Metadata}
	for _, step := range w.Steps {
		flat.RootIDs = append(flat.RootIDs, step.ID)
		flattenStep(step, flat)
	}
	return flat
}

func flattenStep(s *Step, flat *FlatWorkflow) {
	if s == nil {
		return
	}
	fs := &FlatStep{
		ID:             s.ID,
		Kind:           s.Kind,
		ToolID:         s.ToolID,
		Args:           s.Args,
		Condition:      s.Condition,
		LoopForm:       s.LoopForm,
		Collection:     s.Collection,
		MaxIterations:  s.MaxIterations,
		AccumulatorVar: s.AccumulatorVar,
		ItemVar:        s.ItemVar,
		Metadata:       s.Metadata,
	}

	if s.Then != nil {
		fs.ThenID = s.Then.ID
		flattenStep(s.Then, flat)
	}
	if s.Else != nil {
		fs.ElseID = s.Else.ID
		flattenStep(s.Else, flat)
	}
	if s.Body != nil {
		fs.BodyID = s.Body.ID
		flattenStep(s.Body, flat)
	}
	for _, branch := range s.Branches {
		fs.BranchIDs = append(fs.BranchIDs, branch.ID)
		flattenStep(branch, flat)
	}
	if len(s.Cases) > 0 {
		fs.CaseIDs = make(map[string]string, len(s.Cases))
		for option, child := range s.Cases {
			fs.CaseIDs[option] = child.ID
			flattenStep(child, flat)
		}
	}
	if s.Default != nil {
		fs.DefaultID = s.Default.ID
		flattenStep(s.Default, flat)
	}
	fs.SwitchKey = s.SwitchKey
	fs.Prompt = s.Prompt
	if s.Next != nil {
		fs.NextID = s.Next.ID
		flattenStep(s.Next, flat)
	}

	flat.Steps = append(flat.Steps, fs)
}

// FromFlat performs the second pass: given an id-addressed FlatWorkflow it
// rebuilds the nested Workflow by looking up each referenced id exactly
// once. FromFlat(ToFlat(w)) must be structurally equal to w (§9 round-trip
// law) modulo step ordering within Steps.
func FromFlat(flat *FlatWorkflow) (*Workflow, error) {
	byID := make(map[string]*FlatStep, len(flat.Steps))
	for _, fs := range flat.Steps {
		byID[fs.ID] = fs
	}

	built := make(map[string]*Step, len(flat.Steps))
	var build func(id string) (*Step, error)
	build = func(id string) (*Step, error) {
		if id == "" {
			return nil, nil
		}
		if s, ok := built[id]; ok {
			return s, nil
		}
		fs, ok := byID[id]
		if !ok {
			return nil, CompilationErr(id, "flat workflow references unknown step id")
		}
		s := &Step{
			ID:             fs.ID,
			Kind:           fs.Kind,
			ToolID:         fs.ToolID,
			Args:           fs.Args,
			Condition:      fs.Condition,
			LoopForm:       fs.LoopForm,
			Collection:     fs.Collection,
			MaxIterations:  fs.MaxIterations,
			AccumulatorVar: fs.AccumulatorVar,
			ItemVar:        fs.ItemVar,
			Metadata:       fs.Metadata,
			SwitchKey:      fs.SwitchKey,
			Prompt:         fs.Prompt,
		}
		built[id] = s
		var errNext error
		if s.Next, errNext = build(fs.NextID); errNext != nil {
			return nil, errNext
		}

		var err error
		if s.Then, err = build(fs.ThenID); err != nil {
			return nil, err
		}
		if s.Else, err = build(fs.ElseID); err != nil {
			return nil, err
		}
		if s.Body, err = build(fs.BodyID); err != nil {
			return nil, err
		}
		for _, branchID := range fs.BranchIDs {
			branch, err := build(branchID)
			if err != nil {
				return nil, err
			}
			s.Branches = append(s.Branches, branch)
		}
		if len(fs.CaseIDs) > 0 {
			s.Cases = make(map[string]*Step, len(fs.CaseIDs))
			for option, childID := range fs.CaseIDs {
				child, err := build(childID)
				if err != nil {
					return nil, err
				}
				s.Cases[option] = child
			}
		}
		if s.Default, err = build(fs.DefaultID); err != nil {
			return nil, err
		}
		return s, nil
	}

	w := &Workflow{Version: flat.Version, Metadata: flat.Metadata}
	for _, rootID := range flat.RootIDs {
		root, err := build(rootID)
		if err != nil {
			return nil, err
		}
		w.Steps = append(w.Steps, root)
	}
	return w, nil
}
