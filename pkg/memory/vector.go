package memory

import (
	"context"
	"math"
	"sort"
	"sync"
)

// VectorIndex is the similarity-search collaborator. Implementations hold
// embeddings keyed by string id; the payload travels with each point so
// hits can be filtered without a second lookup.
type VectorIndex interface {
	// CreateCollection creates a collection if it doesn't exist.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	// Upsert adds or replaces points.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns up to limit hits scoring at or above minScore,
	// best first.
	Search(ctx context.Context, collection string, vector []float32, limit int, minScore float32) ([]Hit, error)
	// Delete removes points by id. Unknown ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error
}

// Point is one entry in a vector collection.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Hit is a search result.
type Hit struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or they differ in length.
func Cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// BruteIndex is an in-process VectorIndex scanning every point per query.
// It keeps tests and small deployments off an external vector database.
type BruteIndex struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
}

// NewBruteIndex creates an empty index.
func NewBruteIndex() *BruteIndex {
	return &BruteIndex{collections: make(map[string]map[string]Point)}
}

// CreateCollection makes the named collection. Calling it again is a no-op.
func (b *BruteIndex) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collections[name]; !ok {
		b.collections[name] = make(map[string]Point)
	}
	return nil
}

// Upsert adds or replaces points, creating the collection on demand.
func (b *BruteIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	coll, ok := b.collections[collection]
	if !ok {
		coll = make(map[string]Point)
		b.collections[collection] = coll
	}
	for _, p := range points {
		coll[p.ID] = p
	}
	return nil
}

// Search scans the collection and ranks by cosine similarity.
func (b *BruteIndex) Search(ctx context.Context, collection string, vector []float32, limit int, minScore float32) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var hits []Hit
	for _, p := range b.collections[collection] {
		score := Cosine(vector, p.Vector)
		if score < minScore {
			continue
		}
		hits = append(hits, Hit{ID: p.ID, Score: score, Payload: p.Payload})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Delete removes points by id.
func (b *BruteIndex) Delete(ctx context.Context, collection string, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	coll, ok := b.collections[collection]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(coll, id)
	}
	return nil
}
