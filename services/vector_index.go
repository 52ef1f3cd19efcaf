package services

import (
	"context"
	"math"
	"sort"
	"sync"
)

// VectorMetadata is stored next to every vector entry.
type VectorMetadata struct {
	OwnerID string
	// Model is the embedding model the vector was produced with.
	Model string
}

// VectorMatch is one hit of a similarity query. Higher Score is closer.
type VectorMatch struct {
	ID    string
	Score float64
}

// VectorIndex stores one embedding per note ID. Upsert and Delete are
// idempotent; Query only returns entries whose owner matches.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, meta VectorMetadata) error
	Query(ctx context.Context, vector []float32, topK int, ownerID string) ([]VectorMatch, error)
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	vector []float32
	meta   VectorMetadata
}

// MemoryIndex is a process-local VectorIndex using brute-force cosine
// similarity. It serves development setups and tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	model   string
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]memoryEntry)}
}

// WithModel restricts queries to entries written by the given embedding model.
func (m *MemoryIndex) WithModel(model string) *MemoryIndex {
	m.model = model
	return m
}

func (m *MemoryIndex) Upsert(_ context.Context, id string, vector []float32, meta VectorMetadata) error {
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.mu.Lock()
	m.entries[id] = memoryEntry{vector: cp, meta: meta}
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int, ownerID string) ([]VectorMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matches := make([]VectorMatch, 0, len(m.entries))
	for id, e := range m.entries {
		if e.meta.OwnerID != ownerID {
			continue
		}
		if m.model != "" && e.meta.Model != m.model {
			continue
		}
		if len(e.vector) != len(vector) {
			continue
		}
		matches = append(matches, VectorMatch{ID: id, Score: cosineSimilarity(vector, e.vector)})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryIndex) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[id]
	return ok
}

func (m *MemoryIndex) entry(id string) ([]float32, VectorMetadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e.vector, e.meta, ok
}

func (m *MemoryIndex) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
