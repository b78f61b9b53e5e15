package emit

import "testing"

func TestEventZeroValue(t *testing.T) {
	var e Event
	if e.Type != "" {
		t.Errorf("zero Event.Type = %q, want empty", e.Type)
	}
	if e.Data != nil {
		t.Errorf("zero Event.Data = %v, want nil", e.Data)
	}
}

func TestEventTypesAreDistinct(t *testing.T) {
	types := []EventType{
		NodeStart, NodeComplete, NodeError,
		FlowComplete, FlowError, FlowSuspended, FlowResumed,
	}
	seen := make(map[EventType]bool)
	for _, typ := range types {
		if seen[typ] {
			t.Errorf("duplicate event type %q", typ)
		}
		seen[typ] = true
		if typ == "" {
			t.Error("event type must not be empty")
		}
	}
}

func TestEventCarriesSuspensionKey(t *testing.T) {
	e := Event{Type: FlowSuspended, FlowID: "f1", SuspensionKey: "susp-1"}
	if e.SuspensionKey != "susp-1" {
		t.Errorf("SuspensionKey = %q, want susp-1", e.SuspensionKey)
	}
}
