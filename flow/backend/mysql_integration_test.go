//go:build integration

package backend

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/flowkit/flowengine/flow"
)

// These tests exercise MySQLBackend against a real server and only run
// with `go test -tags integration`, with FLOWENGINE_MYSQL_DSN pointing at
// a disposable database.
func mustDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("FLOWENGINE_MYSQL_DSN")
	if dsn == "" {
		t.Skip("FLOWENGINE_MYSQL_DSN not set")
	}
	return dsn
}

func TestMySQLBackend_StoreRetrieveDelete(t *testing.T) {
	b, err := NewMySQLBackend(mustDSN(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	rec := &flow.SuspensionRecord{
		Key:               "integration-k1",
		FlowID:            "flow1",
		StepID:            "step1",
		SessionID:         "sess1",
		ExecutionPosition: flow.ExecutionPosition{NodeID: "step1"},
		VariableSnapshot:  map[string]any{"x": 1},
		CreatedAt:         time.Now(),
		Checksum:          "abc",
	}
	defer b.Delete(ctx, rec.Key)

	if err := b.Store(ctx, rec); err != nil {
		t.Fatalf("unexpected error storing: %v", err)
	}
	got, err := b.Retrieve(ctx, rec.Key)
	if err != nil {
		t.Fatalf("unexpected error retrieving: %v", err)
	}
	if got.FlowID != "flow1" {
		t.Errorf("unexpected record: %+v", got)
	}
	if err := b.Delete(ctx, rec.Key); err != nil {
		t.Fatalf("unexpected error deleting: %v", err)
	}
	if _, err := b.Retrieve(ctx, rec.Key); err != flow.ErrSuspensionNotFound {
		t.Errorf("expected ErrSuspensionNotFound after delete, got %v", err)
	}
}

func TestMySQLBackend_HealthCheck(t *testing.T) {
	b, err := NewMySQLBackend(mustDSN(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()
	if h := b.HealthCheck(context.Background()); !h.OK {
		t.Errorf("expected healthy backend, got %+v", h)
	}
}
