package choice

import (
	"context"
	"testing"

	"github.com/flowkit/flowengine/flow"
)

func TestAdapter_SelectMatchesOption(t *testing.T) {
	model := &MockChatModel{Responses: []ChatOut{{Text: "approve"}}}
	adapter := NewAdapter(model)

	options := []flow.Option{
		{ID: "approve", Description: "accept the change"},
		{ID: "approve_with_changes", Description: "accept with edits"},
		{ID: "reject", Description: "reject the change"},
	}

	got, err := adapter.Select(context.Background(), "Review this PR.", options, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "approve" {
		t.Errorf("expected %q, got %q", "approve", got)
	}
}

func TestAdapter_SelectPrefersLongestMatch(t *testing.T) {
	model := &MockChatModel{Responses: []ChatOut{{Text: "I'll go with approve_with_changes here."}}}
	adapter := NewAdapter(model)

	options := []flow.Option{
		{ID: "approve", Description: "accept the change"},
		{ID: "approve_with_changes", Description: "accept with edits"},
	}

	got, err := adapter.Select(context.Background(), "Review this PR.", options, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "approve_with_changes" {
		t.Errorf("expected %q, got %q", "approve_with_changes", got)
	}
}

func TestAdapter_SelectNoMatchErrors(t *testing.T) {
	model := &MockChatModel{Responses: []ChatOut{{Text: "unrelated text"}}}
	adapter := NewAdapter(model)

	options := []flow.Option{{ID: "approve"}, {ID: "reject"}}

	if _, err := adapter.Select(context.Background(), "Review this PR.", options, nil); err == nil {
		t.Fatal("expected an error when no option matches")
	}
}

func TestAdapter_SelectNoOptionsErrors(t *testing.T) {
	adapter := NewAdapter(&MockChatModel{})
	if _, err := adapter.Select(context.Background(), "prompt", nil, nil); err == nil {
		t.Fatal("expected an error when no options are offered")
	}
}

func TestAdapter_SelectPropagatesModelError(t *testing.T) {
	wantErr := context.Canceled
	model := &MockChatModel{Err: wantErr}
	adapter := NewAdapter(model)

	_, err := adapter.Select(context.Background(), "prompt", []flow.Option{{ID: "a"}}, nil)
	if err != wantErr {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
}
