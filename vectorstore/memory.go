package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force cosine-similarity index, namespaced per
// document. It is the default store and the one used in tests.
type MemoryStore struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]map[string]IndexedVector
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension:  dimension,
		namespaces: make(map[string]map[string]IndexedVector),
	}
}

func (s *MemoryStore) Upsert(_ context.Context, namespace string, vectors []IndexedVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, vec := range vectors {
		if s.dimension > 0 && len(vec.Values) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(vec.Values))
		}
	}

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]IndexedVector, len(vectors))
		s.namespaces[namespace] = ns
	}
	for _, vec := range vectors {
		vec.Metadata.Text = truncateMetadataText(vec.Metadata.Text)
		ns[vec.ID] = vec
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, namespace string, vector []float32, topK int) ([]RetrievedResult, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		// Not an error: the document may not have committed vectors yet.
		return nil, nil
	}

	results := make([]RetrievedResult, 0, len(ns))
	for id, vec := range ns {
		results = append(results, RetrievedResult{
			ChunkID:  id,
			Score:    cosineSimilarity(vector, vec.Values),
			Metadata: vec.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (s *MemoryStore) Delete(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

func (s *MemoryStore) DeleteIDs(_ context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(ns, id)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Store = (*MemoryStore)(nil)
