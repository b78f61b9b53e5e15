package backend

import (
	"context"
	"testing"
	"time"

	"github.com/flowkit/flowengine/flow"
)

func TestMemoryBackend_StoreRetrieve(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	rec := &flow.SuspensionRecord{
		Key:    "flow-1:node-a",
		FlowID: "flow-1",
		StepID: "node-a",
		VariableSnapshot: map[string]any{"x": 1.0},
	}
	if err := b.Store(ctx, rec); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, err := b.Retrieve(ctx, rec.Key)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got.FlowID != rec.FlowID || got.StepID != rec.StepID {
		t.Errorf("Retrieve() = %+v, want matching %+v", got, rec)
	}
}

func TestMemoryBackend_RetrieveMissing(t *testing.T) {
	b := NewMemoryBackend()
	if _, err := b.Retrieve(context.Background(), "absent"); err != flow.ErrSuspensionNotFound {
		t.Errorf("Retrieve() error = %v, want ErrSuspensionNotFound", err)
	}
}

func TestMemoryBackend_RetrieveExpired(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	rec := &flow.SuspensionRecord{Key: "k", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := b.Store(ctx, rec); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if _, err := b.Retrieve(ctx, "k"); err != flow.ErrSuspensionNotFound {
		t.Errorf("Retrieve() on expired record error = %v, want ErrSuspensionNotFound", err)
	}
}

func TestMemoryBackend_Delete(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	_ = b.Store(ctx, &flow.SuspensionRecord{Key: "k"})

	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := b.Retrieve(ctx, "k"); err != flow.ErrSuspensionNotFound {
		t.Errorf("Retrieve() after Delete() error = %v, want ErrSuspensionNotFound", err)
	}
	if err := b.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() on absent key should be a no-op, got error = %v", err)
	}
}

func TestMemoryBackend_ListAndCleanup(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	_ = b.Store(ctx, &flow.SuspensionRecord{Key: "a", FlowID: "f1", ExpiresAt: time.Now().Add(-time.Minute)})
	_ = b.Store(ctx, &flow.SuspensionRecord{Key: "b", FlowID: "f1"})
	_ = b.Store(ctx, &flow.SuspensionRecord{Key: "c", FlowID: "f2"})

	all, err := b.List(ctx, flow.Criteria{FlowID: "f1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List(f1) returned %d records, want 2", len(all))
	}

	n, err := b.Cleanup(ctx, flow.Criteria{ExpiredOnly: true})
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Cleanup(expired) removed %d, want 1", n)
	}
	if _, err := b.Retrieve(ctx, "a"); err != flow.ErrSuspensionNotFound {
		t.Errorf("expired record %q should have been cleaned up", "a")
	}
}

func TestMemoryBackend_HealthCheck(t *testing.T) {
	b := NewMemoryBackend()
	h := b.HealthCheck(context.Background())
	if !h.OK {
		t.Errorf("HealthCheck().OK = false, want true")
	}
}
