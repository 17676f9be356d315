package history

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only repository. Default when no
// database is configured; also used by tests.

type MemoryRepo struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *MemoryRepo) Recent(_ context.Context, limit int) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.records)
	if limit > n {
		limit = n
	}
	out := make([]Record, limit)
	// Newest first.
	for i := 0; i < limit; i++ {
		out[i] = r.records[n-1-i]
	}
	return out, nil
}

// Records returns everything in insertion order (tests only).
func (r *MemoryRepo) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
