package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/kaiwa/internal/models"
)

// MemoryStore keeps every namespace in process memory and answers queries by brute-force scan.
// Each namespace is an immutable slice swapped whole on Upsert, so readers never see a partial set.
type MemoryStore struct {
	dimensions int
	mu         sync.RWMutex
	namespaces map[string][]models.VectorRecord
}

// NewMemoryStore creates an in-memory store for vectors of the given dimension.
func NewMemoryStore(dimensions int) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryStore{
		dimensions: dimensions,
		namespaces: make(map[string][]models.VectorRecord),
	}, nil
}

// Upsert replaces the namespace with records.
func (m *MemoryStore) Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error {
	snapshot, err := prepare(m.dimensions, records)
	if err != nil {
		return err
	}
	m.swap(namespace, snapshot)
	return nil
}

// swap installs an already validated snapshot.
func (m *MemoryStore) swap(namespace string, snapshot []models.VectorRecord) {
	m.mu.Lock()
	m.namespaces[namespace] = snapshot
	m.mu.Unlock()
}

func (m *MemoryStore) snapshot(namespace string) []models.VectorRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.namespaces[namespace]
}

// Query returns the top-k records of namespace matching filter, ranked by cosine similarity.
func (m *MemoryStore) Query(ctx context.Context, namespace string, vector []float32, k int, filter map[string]string) ([]models.ScoredRecord, error) {
	if len(vector) != m.dimensions {
		return nil, &models.DimensionError{Expected: m.dimensions, Got: len(vector)}
	}
	return rank(m.snapshot(namespace), vector, k, filter), nil
}

// Get returns every record of namespace matching filter.
func (m *MemoryStore) Get(ctx context.Context, namespace string, filter map[string]string) ([]models.VectorRecord, error) {
	return filterRecords(m.snapshot(namespace), filter), nil
}

// Delete removes namespace. Deleting an absent namespace is not an error.
func (m *MemoryStore) Delete(ctx context.Context, namespace string) error {
	m.mu.Lock()
	delete(m.namespaces, namespace)
	m.mu.Unlock()
	return nil
}

// Exists reports whether namespace has been written and not deleted.
func (m *MemoryStore) Exists(ctx context.Context, namespace string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.namespaces[namespace]
	return ok, nil
}

// Namespaces lists every namespace, sorted.
func (m *MemoryStore) Namespaces(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	names := make([]string, 0, len(m.namespaces))
	for ns := range m.namespaces {
		names = append(names, ns)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}

// Size returns the number of records in namespace.
func (m *MemoryStore) Size(namespace string) int {
	return len(m.snapshot(namespace))
}

// Dimensions returns the fixed vector length.
func (m *MemoryStore) Dimensions() int { return m.dimensions }

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error { return nil }
