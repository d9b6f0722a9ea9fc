package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/finqa/finqa-agent-go/pkg/relevance"
)

// InMemoryStore keeps records in an append-only slice guarded by a RWMutex.
//
// It is the default store: nothing survives the process, which is fine for
// memory used as best-effort planning telemetry.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []*Record
}

// NewInMemoryStore creates an empty in-process store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Store appends a copy of rec.
func (s *InMemoryStore) Store(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c := rec.Clone()
	c.Relevance = 0

	s.mu.Lock()
	s.records = append(s.records, c)
	s.mu.Unlock()
	return nil
}

// Retrieve ranks stored records against query.
func (s *InMemoryStore) Retrieve(ctx context.Context, query string, topK int, kind Kind) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Rank(query, s.snapshot(kind), topK), nil
}

// Recent returns the newest records.
func (s *InMemoryStore) Recent(ctx context.Context, limit int, kind Kind) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return SortRecent(s.snapshot(kind), limit), nil
}

// Clear drops every record.
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// snapshot returns the records of the given kind in insertion order. The
// slice is fresh but the records are shared and must not be modified.
func (s *InMemoryStore) snapshot(kind Kind) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		if kind == "" || r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Rank scores records (given in insertion order) against query and returns
// copies of the topK best with Relevance set. Zero scores are excluded.
func Rank(query string, records []*Record, topK int) []*Record {
	ranked := relevance.Rank(query, records, topK, func(r *Record) string { return r.Content })
	if len(ranked) == 0 {
		return []*Record{}
	}

	out := make([]*Record, len(ranked))
	for i, s := range ranked {
		c := s.Item.Clone()
		c.Relevance = s.Score
		out[i] = c
	}
	return out
}

// SortRecent orders copies of records (given in insertion order) by creation
// time, newest first, and truncates to limit.
func SortRecent(records []*Record, limit int) []*Record {
	if limit <= 0 || len(records) == 0 {
		return []*Record{}
	}

	sorted := make([]*Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]*Record, len(sorted))
	for i, r := range sorted {
		out[i] = r.Clone()
	}
	return out
}

var _ Store = (*InMemoryStore)(nil)
