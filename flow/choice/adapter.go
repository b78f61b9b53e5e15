package choice

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowkit/flowengine/flow"
)

// Adapter implements flow.Choose by asking a ChatModel to pick one of the
// offered options: it renders the options as a "- id: description" list, instructs
// the model to answer with the chosen option's id only, and matches the
// model's text against the option ids (longest id first, so "approve" is
// not mistakenly matched inside "approve_with_changes").
type Adapter struct {
	Model ChatModel
}

// NewAdapter wraps model as a flow.Choose.
func NewAdapter(model ChatModel) *Adapter {
	return &Adapter{Model: model}
}

// Select implements flow.Choose.
func (a *Adapter) Select(ctx context.Context, prompt string, options []flow.Option, variables map[string]any) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("choice: no options offered")
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nChoose exactly one of the following options by replying with its id only:\n")
	for _, opt := range options {
		fmt.Fprintf(&b, "- %s", opt.ID)
		if opt.Description != "" {
			fmt.Fprintf(&b, ": %s", opt.Description)
		}
		b.WriteString("\n")
	}

	out, err := a.Model.Chat(ctx, []Message{
		{Role: RoleSystem, Content: "You select exactly one option id and reply with nothing else."},
		{Role: RoleUser, Content: b.String()},
	}, nil)
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(out.Text)
	byLengthDesc := append([]flow.Option{}, options...)
	for i := range byLengthDesc {
		for j := i + 1; j < len(byLengthDesc); j++ {
			if len(byLengthDesc[j].ID) > len(byLengthDesc[i].ID) {
				byLengthDesc[i], byLengthDesc[j] = byLengthDesc[j], byLengthDesc[i]
			}
		}
	}
	for _, opt := range byLengthDesc {
		if strings.Contains(answer, opt.ID) {
			return opt.ID, nil
		}
	}
	return "", fmt.Errorf("choice: model response %q did not match any option", answer)
}
