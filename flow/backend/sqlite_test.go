package backend

import (
	"context"
	"testing"
	"time"

	"github.com/flowkit/flowengine/flow"
)

func newTestSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory sqlite backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func sampleRecord(key string) *flow.SuspensionRecord {
	return &flow.SuspensionRecord{
		Key:                key,
		FlowID:              "flow1",
		StepID:              "step1",
		SessionID:           "sess1",
		ExecutionPosition:   flow.ExecutionPosition{NodeID: "step1"},
		VariableSnapshot:    map[string]any{"x": 1},
		AwaitingInputSchema: map[string]any{"type": "object"},
		CreatedAt:           time.Now(),
		Checksum:            "abc",
	}
}

func TestSQLiteBackend_StoreRetrieve(t *testing.T) {
	b := newTestSQLiteBackend(t)
	ctx := context.Background()
	rec := sampleRecord("k1")

	if err := b.Store(ctx, rec); err != nil {
		t.Fatalf("unexpected error storing: %v", err)
	}
	got, err := b.Retrieve(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error retrieving: %v", err)
	}
	if got.FlowID != "flow1" || got.VariableSnapshot["x"].(float64) != 1 {
		t.Errorf("unexpected retrieved record: %+v", got)
	}
}

func TestSQLiteBackend_StoreUpserts(t *testing.T) {
	b := newTestSQLiteBackend(t)
	ctx := context.Background()
	rec := sampleRecord("k1")
	if err := b.Store(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec.StepID = "step2"
	if err := b.Store(ctx, rec); err != nil {
		t.Fatalf("unexpected error on upsert: %v", err)
	}
	got, err := b.Retrieve(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StepID != "step2" {
		t.Errorf("expected upsert to overwrite step id, got %q", got.StepID)
	}
}

func TestSQLiteBackend_RetrieveMissing(t *testing.T) {
	b := newTestSQLiteBackend(t)
	_, err := b.Retrieve(context.Background(), "missing")
	if err != flow.ErrSuspensionNotFound {
		t.Errorf("expected ErrSuspensionNotFound, got %v", err)
	}
}

func TestSQLiteBackend_RetrieveExpired(t *testing.T) {
	b := newTestSQLiteBackend(t)
	ctx := context.Background()
	rec := sampleRecord("k1")
	rec.ExpiresAt = time.Now().Add(-time.Hour)
	if err := b.Store(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := b.Retrieve(ctx, "k1")
	if err != flow.ErrSuspensionNotFound {
		t.Errorf("expected ErrSuspensionNotFound for an expired record, got %v", err)
	}
}

func TestSQLiteBackend_Delete(t *testing.T) {
	b := newTestSQLiteBackend(t)
	ctx := context.Background()
	rec := sampleRecord("k1")
	b.Store(ctx, rec)
	if err := b.Delete(ctx, "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.Retrieve(ctx, "k1"); err != flow.ErrSuspensionNotFound {
		t.Errorf("expected the record to be gone after Delete, got %v", err)
	}
}

func TestSQLiteBackend_ListByFlowID(t *testing.T) {
	b := newTestSQLiteBackend(t)
	ctx := context.Background()
	r1 := sampleRecord("k1")
	r2 := sampleRecord("k2")
	r2.FlowID = "flow2"
	b.Store(ctx, r1)
	b.Store(ctx, r2)

	list, err := b.List(ctx, flow.Criteria{FlowID: "flow1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].Key != "k1" {
		t.Errorf("unexpected list result: %+v", list)
	}
}

func TestSQLiteBackend_Cleanup(t *testing.T) {
	b := newTestSQLiteBackend(t)
	ctx := context.Background()
	expired := sampleRecord("expired")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	fresh := sampleRecord("fresh")
	b.Store(ctx, expired)
	b.Store(ctx, fresh)

	n, err := b.Cleanup(ctx, flow.Criteria{ExpiredOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row cleaned up, got %d", n)
	}
}

func TestSQLiteBackend_HealthCheck(t *testing.T) {
	b := newTestSQLiteBackend(t)
	h := b.HealthCheck(context.Background())
	if !h.OK {
		t.Errorf("expected healthy backend, got %+v", h)
	}
}
