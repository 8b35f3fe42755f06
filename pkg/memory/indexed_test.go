package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
)

func newIndexedStore(t *testing.T) *IndexedStore {
	t.Helper()
	s, err := NewIndexedStore(context.Background(), NewInMemoryStore(), NewBruteIndex(), "test", 2)
	if err != nil {
		t.Fatalf("new indexed store: %v", err)
	}
	return s
}

func TestIndexedSaveMirrorsEmbedding(t *testing.T) {
	s := newIndexedStore(t)
	room := core.NewID()

	m := core.NewMemory(core.NewID(), room, core.Content{Text: "east"})
	m.Embedding = []float32{1, 0}
	id, err := s.SaveMemory(context.Background(), m)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	matches, err := s.SearchMemories(context.Background(), []float32{1, 0}, core.SearchFilter{Limit: 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].Memory.ID != id {
		t.Errorf("search = %+v, want the saved memory", matches)
	}
	if matches[0].Memory.Content.Text != "east" {
		t.Error("hit was not hydrated from the base store")
	}
}

func TestIndexedSearchRoomFilter(t *testing.T) {
	s := newIndexedStore(t)
	roomA := core.NewID()
	roomB := core.NewID()

	for _, tc := range []struct {
		room core.ID
		text string
	}{
		{roomA, "in-a"},
		{roomB, "in-b"},
	} {
		m := core.NewMemory(core.NewID(), tc.room, core.Content{Text: tc.text})
		m.Embedding = []float32{1, 0}
		if _, err := s.SaveMemory(context.Background(), m); err != nil {
			t.Fatalf("save %s: %v", tc.text, err)
		}
	}

	matches, err := s.SearchMemories(context.Background(), []float32{1, 0}, core.SearchFilter{RoomID: roomA, Limit: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].Memory.Content.Text != "in-a" {
		t.Errorf("room filter = %+v", matches)
	}
}

func TestIndexedSaveWithoutEmbedding(t *testing.T) {
	s := newIndexedStore(t)
	m := core.NewMemory(core.NewID(), core.NewID(), core.Content{Text: "plain"})

	id, err := s.SaveMemory(context.Background(), m)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetMemory(context.Background(), id)
	if err != nil || got.Content.Text != "plain" {
		t.Errorf("get = (%+v, %v)", got, err)
	}
}

func TestIndexedDeletePropagates(t *testing.T) {
	s := newIndexedStore(t)
	m := core.NewMemory(core.NewID(), core.NewID(), core.Content{Text: "doomed"})
	m.Embedding = []float32{1, 0}
	id, _ := s.SaveMemory(context.Background(), m)

	if err := s.DeleteMemory(context.Background(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	matches, err := s.SearchMemories(context.Background(), []float32{1, 0}, core.SearchFilter{Limit: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("deleted memory still searchable: %+v", matches)
	}
}

func TestIndexedPrunePropagates(t *testing.T) {
	s := newIndexedStore(t)
	room := core.NewID()
	now := time.Now().UTC()

	old := core.NewMemory(core.NewID(), room, core.Content{Text: "old"})
	old.CreatedAt = now.Add(-48 * time.Hour)
	old.Embedding = []float32{1, 0}
	fresh := core.NewMemory(core.NewID(), room, core.Content{Text: "fresh"})
	fresh.CreatedAt = now
	fresh.Embedding = []float32{0, 1}
	_, _ = s.SaveMemory(context.Background(), old)
	_, _ = s.SaveMemory(context.Background(), fresh)

	removed, err := s.DeleteMemoriesBefore(context.Background(), room, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	matches, _ := s.SearchMemories(context.Background(), []float32{1, 0}, core.SearchFilter{Limit: 5})
	for _, match := range matches {
		if match.Memory.Content.Text == "old" {
			t.Error("pruned memory still searchable")
		}
	}
}

// brokenIndex accepts writes but cannot answer queries.
type brokenIndex struct{}

func (brokenIndex) CreateCollection(context.Context, string, uint64) error { return nil }
func (brokenIndex) Upsert(context.Context, string, []Point) error          { return nil }
func (brokenIndex) Delete(context.Context, string, []string) error         { return nil }
func (brokenIndex) Search(context.Context, string, []float32, int, float32) ([]Hit, error) {
	return nil, errors.New("index offline")
}

func TestIndexedSearchFallsBackToBase(t *testing.T) {
	s, err := NewIndexedStore(context.Background(), NewInMemoryStore(), brokenIndex{}, "test", 2)
	if err != nil {
		t.Fatalf("new indexed store: %v", err)
	}

	m := core.NewMemory(core.NewID(), core.NewID(), core.Content{Text: "reachable"})
	m.Embedding = []float32{1, 0}
	id, err := s.SaveMemory(context.Background(), m)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	matches, err := s.SearchMemories(context.Background(), []float32{1, 0}, core.SearchFilter{Limit: 1})
	if err != nil {
		t.Fatalf("search with broken index: %v", err)
	}
	if len(matches) != 1 || matches[0].Memory.ID != id {
		t.Errorf("fallback search = %+v, want the saved memory", matches)
	}
}
