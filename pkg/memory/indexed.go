package memory

import (
	"context"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/resilience"
)

// roomFilterOversample widens index queries when hits are filtered by room
// afterwards, since the index itself is not room-aware.
const roomFilterOversample = 4

// IndexedStore pairs a base store with a vector index. Saves mirror any
// embedding into the index; similarity search is answered by the index and
// hydrated from the base store.
type IndexedStore struct {
	base       core.Store
	index      VectorIndex
	collection string
}

// NewIndexedStore ensures the collection exists and returns the decorator.
func NewIndexedStore(ctx context.Context, base core.Store, index VectorIndex, collection string, vectorSize uint64) (*IndexedStore, error) {
	if base == nil || index == nil {
		return nil, errors.New(errors.CodeInvalidInput, "indexed store needs a base store and an index", nil)
	}
	if collection == "" {
		collection = "memories"
	}
	if err := index.CreateCollection(ctx, collection, vectorSize); err != nil {
		return nil, errors.New(errors.CodeStorage, "create vector collection", err).
			WithContext("collection", collection)
	}
	return &IndexedStore{base: base, index: index, collection: collection}, nil
}

// SaveMemory saves to the base store first, then mirrors the embedding. An
// index failure comes back as an error even though the row is persisted, so
// callers know search may lag behind.
func (s *IndexedStore) SaveMemory(ctx context.Context, m core.Memory) (core.ID, error) {
	id, err := s.base.SaveMemory(ctx, m)
	if err != nil {
		return core.ZeroID, err
	}
	if len(m.Embedding) == 0 {
		return id, nil
	}

	point := Point{
		ID:     id.String(),
		Vector: m.Embedding,
		Payload: map[string]any{
			"room_id":    m.RoomID.String(),
			"created_at": m.CreatedAt.UTC().Unix(),
		},
	}
	if err := s.index.Upsert(ctx, s.collection, []Point{point}); err != nil {
		return id, errors.New(errors.CodeStorage, "index memory embedding", err).
			WithContext("memory", id.String()).
			WithRecoverable(true)
	}
	return id, nil
}

// GetMemory delegates to the base store.
func (s *IndexedStore) GetMemory(ctx context.Context, id core.ID) (*core.Memory, error) {
	return s.base.GetMemory(ctx, id)
}

// GetMemories delegates to the base store.
func (s *IndexedStore) GetMemories(ctx context.Context, q core.MemoryQuery) ([]core.Memory, error) {
	return s.base.GetMemories(ctx, q)
}

// SearchMemories asks the index for nearest points and hydrates each hit
// from the base store. Hits whose row vanished are skipped. When the index
// cannot answer, the base store's own search takes over.
func (s *IndexedStore) SearchMemories(ctx context.Context, embedding []float32, f core.SearchFilter) ([]core.MemoryMatch, error) {
	return resilience.FirstOf(ctx,
		func(ctx context.Context) ([]core.MemoryMatch, error) {
			return s.searchIndex(ctx, embedding, f)
		},
		func(ctx context.Context) ([]core.MemoryMatch, error) {
			return s.base.SearchMemories(ctx, embedding, f)
		},
	)
}

func (s *IndexedStore) searchIndex(ctx context.Context, embedding []float32, f core.SearchFilter) ([]core.MemoryMatch, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	fetch := limit
	if f.RoomID != core.ZeroID {
		fetch = limit * roomFilterOversample
	}

	hits, err := s.index.Search(ctx, s.collection, embedding, fetch, f.MinScore)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "vector search", err)
	}

	matches := make([]core.MemoryMatch, 0, len(hits))
	for _, hit := range hits {
		if f.RoomID != core.ZeroID {
			if room, _ := hit.Payload["room_id"].(string); room != f.RoomID.String() {
				continue
			}
		}
		id, err := core.ParseID(hit.ID)
		if err != nil {
			continue
		}
		m, err := s.base.GetMemory(ctx, id)
		if err != nil {
			if errors.IsCode(err, errors.CodeNotFound) {
				continue
			}
			return nil, err
		}
		matches = append(matches, core.MemoryMatch{Memory: *m, Score: hit.Score})
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

// CountMemories delegates to the base store.
func (s *IndexedStore) CountMemories(ctx context.Context, roomID core.ID) (int, error) {
	return s.base.CountMemories(ctx, roomID)
}

// DeleteMemory removes the row and its index point.
func (s *IndexedStore) DeleteMemory(ctx context.Context, id core.ID) error {
	if err := s.base.DeleteMemory(ctx, id); err != nil {
		return err
	}
	return s.index.Delete(ctx, s.collection, []string{id.String()})
}

// DeleteMemoriesBefore prunes rows and their index points.
func (s *IndexedStore) DeleteMemoriesBefore(ctx context.Context, roomID core.ID, before time.Time) (int, error) {
	doomed, err := s.base.GetMemories(ctx, core.MemoryQuery{RoomID: roomID, Before: before})
	if err != nil {
		return 0, err
	}
	removed, err := s.base.DeleteMemoriesBefore(ctx, roomID, before)
	if err != nil {
		return removed, err
	}
	if len(doomed) > 0 {
		ids := make([]string, len(doomed))
		for i, m := range doomed {
			ids[i] = m.ID.String()
		}
		if err := s.index.Delete(ctx, s.collection, ids); err != nil {
			return removed, errors.New(errors.CodeStorage, "prune index points", err).
				WithRecoverable(true)
		}
	}
	return removed, nil
}
