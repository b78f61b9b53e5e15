package backend

import (
	"context"
	"sync"
	"time"

	"github.com/flowkit/flowengine/flow"
)

// MemoryBackend is an in-memory Backend implementation: suspension
// records are stored in a map guarded by a mutex. Designed for tests,
// single-process deployments, and short-lived workflows where durability
// across restarts isn't required.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]*flow.SuspensionRecord
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]*flow.SuspensionRecord)}
}

// Store persists record, keyed by record.Key, overwriting any prior entry.
func (b *MemoryBackend) Store(ctx context.Context, record *flow.SuspensionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *record
	b.records[record.Key] = &cp
	return nil
}

// Retrieve returns the record stored under key, or ErrSuspensionNotFound.
func (b *MemoryBackend) Retrieve(ctx context.Context, key string) (*flow.SuspensionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.records[key]
	if !ok {
		return nil, flow.ErrSuspensionNotFound
	}
	if !r.ExpiresAt.IsZero() && time.Now().After(r.ExpiresAt) {
		return nil, flow.ErrSuspensionNotFound
	}
	cp := *r
	return &cp, nil
}

// Delete removes the record stored under key. Deleting an absent key is a
// no-op, matching idempotent delete semantics expected of a suspension
// store consumed by ResumeExecution.
func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, key)
	return nil
}

// List returns every record matching criteria.
func (b *MemoryBackend) List(ctx context.Context, criteria flow.Criteria) ([]*flow.SuspensionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*flow.SuspensionRecord
	for _, r := range b.records {
		if matches(r, criteria) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Cleanup deletes every record matching criteria and returns the count
// removed.
func (b *MemoryBackend) Cleanup(ctx context.Context, criteria flow.Criteria) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, r := range b.records {
		if matches(r, criteria) {
			delete(b.records, key)
			removed++
		}
	}
	return removed, nil
}

// HealthCheck always reports healthy: there is no external dependency to
// fail against.
func (b *MemoryBackend) HealthCheck(ctx context.Context) flow.Health {
	return flow.Health{OK: true, Message: "memory backend"}
}

func matches(r *flow.SuspensionRecord, c flow.Criteria) bool {
	if c.FlowID != "" && r.FlowID != c.FlowID {
		return false
	}
	if c.SessionID != "" && r.SessionID != c.SessionID {
		return false
	}
	if c.ExpiredOnly && (r.ExpiresAt.IsZero() || !time.Now().After(r.ExpiresAt)) {
		return false
	}
	if !c.Before.IsZero() && !r.CreatedAt.Before(c.Before) {
		return false
	}
	return true
}
