package database

import (
	"context"
	"sort"
	"sync"

	"github.com/conclave-ai/conclave/internal/debate"
)

// MemoryRepository is an in-process Repository for tests and ephemeral
// runs. Safe for concurrent use.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*debate.Record
	// FailWith, when set, makes every write fail. Tests use it to exercise
	// the unpersisted-but-successful path.
	FailWith error
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*debate.Record)}
}

// SaveDeliberation stores a copy of the record.
func (r *MemoryRepository) SaveDeliberation(_ context.Context, rec *debate.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

// GetDeliberation loads one record by id.
func (r *MemoryRepository) GetDeliberation(_ context.Context, id string) (*debate.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListDeliberations returns records newest first.
func (r *MemoryRepository) ListDeliberations(_ context.Context, ownerID string, limit int) ([]*debate.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}

	var out []*debate.Record
	for _, rec := range r.records {
		if ownerID != "" && rec.OwnerID != ownerID {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count reports how many records are stored.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Close is a no-op.
func (r *MemoryRepository) Close() error { return nil }
