// Package memory provides persistence backends for conversational and
// derived records.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

// InMemoryStore keeps records in process. It implements the full store
// contract, including brute-force similarity search, and is the default
// backend when no persistence is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories map[core.ID]core.Memory
	order    []core.ID
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{memories: make(map[core.ID]core.Memory)}
}

// SaveMemory persists a copy of m, assigning an id when none is set.
func (s *InMemoryStore) SaveMemory(ctx context.Context, m core.Memory) (core.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == core.ZeroID {
		m.ID = core.NewID()
	} else if _, exists := s.memories[m.ID]; exists {
		return core.ZeroID, errors.Newf(errors.CodeConflict, "memory %s already exists", m.ID)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.memories[m.ID] = cloneMemory(m)
	s.order = append(s.order, m.ID)
	return m.ID, nil
}

// GetMemory returns a copy of the record with the given id.
func (s *InMemoryStore) GetMemory(ctx context.Context, id core.ID) (*core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "memory %s not found", id)
	}
	out := cloneMemory(m)
	return &out, nil
}

// GetMemories returns matching records newest first.
func (s *InMemoryStore) GetMemories(ctx context.Context, q core.MemoryQuery) ([]core.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Memory
	for i := len(s.order) - 1; i >= 0; i-- {
		m, ok := s.memories[s.order[i]]
		if !ok {
			continue
		}
		if !matchesQuery(m, q) {
			continue
		}
		out = append(out, cloneMemory(m))
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}

	// Insertion order approximates recency; an explicit sort makes it exact
	// when callers backdate CreatedAt.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// SearchMemories ranks stored embeddings against the query vector by cosine
// similarity.
func (s *InMemoryStore) SearchMemories(ctx context.Context, embedding []float32, f core.SearchFilter) ([]core.MemoryMatch, error) {
	if len(embedding) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "search embedding must not be empty", nil)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []core.MemoryMatch
	for _, id := range s.order {
		m, ok := s.memories[id]
		if !ok || len(m.Embedding) == 0 {
			continue
		}
		if f.RoomID != core.ZeroID && m.RoomID != f.RoomID {
			continue
		}
		score := Cosine(embedding, m.Embedding)
		if score < f.MinScore {
			continue
		}
		matches = append(matches, core.MemoryMatch{Memory: cloneMemory(m), Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if f.Limit > 0 && len(matches) > f.Limit {
		matches = matches[:f.Limit]
	}
	return matches, nil
}

// CountMemories counts records, scoped to a room when one is given.
func (s *InMemoryStore) CountMemories(ctx context.Context, roomID core.ID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if roomID == core.ZeroID {
		return len(s.memories), nil
	}
	n := 0
	for _, m := range s.memories {
		if m.RoomID == roomID {
			n++
		}
	}
	return n, nil
}

// DeleteMemory removes one record.
func (s *InMemoryStore) DeleteMemory(ctx context.Context, id core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memories[id]; !ok {
		return errors.Newf(errors.CodeNotFound, "memory %s not found", id)
	}
	delete(s.memories, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteMemoriesBefore prunes records older than the cutoff.
func (s *InMemoryStore) DeleteMemoriesBefore(ctx context.Context, roomID core.ID, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keep []core.ID
	removed := 0
	for _, id := range s.order {
		m := s.memories[id]
		if m.CreatedAt.Before(before) && (roomID == core.ZeroID || m.RoomID == roomID) {
			delete(s.memories, id)
			removed++
			continue
		}
		keep = append(keep, id)
	}
	s.order = keep
	return removed, nil
}

func matchesQuery(m core.Memory, q core.MemoryQuery) bool {
	if q.RoomID != core.ZeroID && m.RoomID != q.RoomID {
		return false
	}
	if q.EntityID != core.ZeroID && m.EntityID != q.EntityID {
		return false
	}
	if !q.Before.IsZero() && !m.CreatedAt.Before(q.Before) {
		return false
	}
	return true
}

func cloneMemory(m core.Memory) core.Memory {
	out := m
	if m.Content.Actions != nil {
		out.Content.Actions = append([]string(nil), m.Content.Actions...)
	}
	if m.Content.Data != nil {
		out.Content.Data = make(map[string]any, len(m.Content.Data))
		for k, v := range m.Content.Data {
			out.Content.Data[k] = v
		}
	}
	if m.Embedding != nil {
		out.Embedding = append([]float32(nil), m.Embedding...)
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
