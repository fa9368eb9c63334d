package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"raggate/types"
)

// MemoryStore implements the vector index, blob store and counter store in
// process memory. Suited to single-instance deployments and tests; the
// Postgres store is the durable option.
type MemoryStore struct {
	mu      sync.Mutex
	vectors map[string]types.VectorRecord
	blobs   map[string]string
	buckets map[string]*bucketEntry
}

type bucketEntry struct {
	count   int
	touched time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vectors: make(map[string]types.VectorRecord),
		blobs:   make(map[string]string),
		buckets: make(map[string]*bucketEntry),
	}
}

func (m *MemoryStore) UpsertVectors(_ context.Context, records []types.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.vectors[r.ID] = r
	}
	return nil
}

func (m *MemoryStore) QueryVectors(_ context.Context, vec []float32, k int) ([]types.VectorMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := make([]types.VectorMatch, 0, len(m.vectors))
	for _, r := range m.vectors {
		matches = append(matches, types.VectorMatch{
			ID:       r.ID,
			Score:    cosine(vec, r.Values),
			Metadata: r.Metadata,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// VectorCount reports how many records the index holds.
func (m *MemoryStore) VectorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vectors)
}

func (m *MemoryStore) PutBlob(_ context.Context, key, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = content
	return nil
}

func (m *MemoryStore) GetBlob(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.blobs[key]
	if !ok {
		return "", ErrBlobNotFound
	}
	return content, nil
}

// IncrementIfBelow is serialized by the store mutex, which trivially covers
// the per-key requirement.
func (m *MemoryStore) IncrementIfBelow(_ context.Context, key string, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &bucketEntry{}
		m.buckets[key] = b
	}
	b.touched = time.Now()
	if b.count >= limit {
		return b.count, false, nil
	}
	count := b.count
	b.count++
	return count, true, nil
}

func (m *MemoryStore) PurgeBuckets(_ context.Context, olderThan time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	for key, b := range m.buckets {
		if b.touched.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
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
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
