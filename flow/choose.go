package flow

import "context"

// Option is one branch of a KindSwitch node offered to a Choose
// implementation for selection (§6).
type Option struct {
	ID          string
	Description string
	Metadata    map[string]any
}

// Choose is the decision port a KindSwitch node dispatches through when
// its case selection is delegated to an external decision-maker (an LLM,
// a rules engine, a human) rather than evaluated from a condition.
// flow/choice.Adapter implements it over a choice.ChatModel (the
// anthropic, openai and google packages, or MockChatModel in tests).
type Choose interface {
	// Select picks one of options given prompt and the variables visible
	// at the switch node, returning its Option.ID. An id not present in
	// options sends the switch to its Default branch; with no default the
	// switch fails with a CategoryExecution error.
	Select(ctx context.Context, prompt string, options []Option, variables map[string]any) (string, error)
}
