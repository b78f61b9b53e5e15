package emit

import (
	"context"
	"testing"
)

func TestNullEmitterDiscardsEvents(t *testing.T) {
	e := NewNullEmitter()
	e.Emit(Event{Type: NodeStart, FlowID: "f1"})
	if err := e.EmitBatch(context.Background(), []Event{{Type: NodeComplete}}); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
