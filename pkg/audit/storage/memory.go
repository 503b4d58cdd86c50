package storage

import (
	"context"
	"sort"
	"sync"

	"flowgate-hq/flowgate/pkg/audit"
)

// MemoryStorage implements the Storage interface using an in-memory
// slice. The slice is append-only; there is no API to modify or remove
// records. Intended for testing only.
type MemoryStorage struct {
	records []*audit.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Append persists an audit record to memory.
func (s *MemoryStorage) Append(ctx context.Context, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to insulate stored records from caller mutation.
	recordCopy := *record
	s.records = append(s.records, &recordCopy)
	return nil
}

// Query retrieves audit records matching the query filters, newest first.
func (s *MemoryStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []*audit.Record{}
	for _, record := range s.records {
		if matchesQuery(record, query) {
			recordCopy := *record
			results = append(results, &recordCopy)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RecordedTime.After(results[j].RecordedTime)
	})

	start := query.Offset
	if start > len(results) {
		return []*audit.Record{}, nil
	}
	results = results[start:]
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}

	return results, nil
}

// Count returns the number of records matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if matchesQuery(record, query) {
			count++
		}
	}
	return count, nil
}

// LastHash returns the hash of the most recently appended record.
func (s *MemoryStorage) LastHash(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return "", nil
	}
	return s.records[len(s.records)-1].RecordHash, nil
}

// Close releases resources (no-op for memory storage).
func (s *MemoryStorage) Close() error {
	return nil
}

// All returns every stored record in append order. Test helper.
func (s *MemoryStorage) All() []*audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*audit.Record, 0, len(s.records))
	for _, record := range s.records {
		recordCopy := *record
		out = append(out, &recordCopy)
	}
	return out
}

// matchesQuery checks whether a record matches all query filters.
func matchesQuery(record *audit.Record, query *audit.Query) bool {
	if query == nil {
		return true
	}
	if query.StartTime != nil && record.RecordedTime.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && record.RecordedTime.After(*query.EndTime) {
		return false
	}
	if query.RequestID != "" && record.RequestID != query.RequestID {
		return false
	}
	if query.ActionKind != "" && record.ActionKind != query.ActionKind {
		return false
	}
	if query.Environment != "" && record.Environment != query.Environment {
		return false
	}
	if query.Tier != "" && record.Tier != query.Tier {
		return false
	}
	if query.Decision != "" && record.Decision != query.Decision {
		return false
	}
	if query.Outcome != "" && record.Outcome != query.Outcome {
		return false
	}
	if query.Actor != "" && record.Actor != query.Actor {
		return false
	}
	return true
}
