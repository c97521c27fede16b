// Package vector provides namespaced vector stores with metadata-filtered cosine similarity search.
package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

// Store is a set of independent namespaces of VectorRecords.
//
// Upsert replaces a namespace's full contents; concurrent readers observe either the old or the
// new set. Query and Get on an absent namespace return an empty result, not an error.
type Store interface {
	Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error
	Query(ctx context.Context, namespace string, vector []float32, k int, filter map[string]string) ([]models.ScoredRecord, error)
	Get(ctx context.Context, namespace string, filter map[string]string) ([]models.VectorRecord, error)
	Delete(ctx context.Context, namespace string) error
	Exists(ctx context.Context, namespace string) (bool, error)
	Namespaces(ctx context.Context) ([]string, error)
	Dimensions() int
	Close() error
}

// prepare validates dimensions and returns a defensive copy of records. A repeated id keeps its
// first position and its last value.
func prepare(dimensions int, records []models.VectorRecord) ([]models.VectorRecord, error) {
	out := make([]models.VectorRecord, 0, len(records))
	pos := make(map[string]int, len(records))
	for _, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: record without id", models.ErrInvalidArgument)
		}
		if len(r.Vector) != dimensions {
			return nil, &models.DimensionError{Expected: dimensions, Got: len(r.Vector)}
		}
		c := models.VectorRecord{
			ID:       r.ID,
			Vector:   append([]float32(nil), r.Vector...),
			Document: r.Document,
			Metadata: r.Metadata.Clone(),
		}
		if i, ok := pos[r.ID]; ok {
			out[i] = c
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, c)
	}
	return out, nil
}

// rank scores every record passing filter against query and returns the top k by descending
// similarity. Equal scores keep insertion order.
func rank(records []models.VectorRecord, query []float32, k int, filter map[string]string) []models.ScoredRecord {
	if k <= 0 {
		return nil
	}
	hits := make([]models.ScoredRecord, 0, len(records))
	for _, r := range records {
		if !r.Metadata.Matches(filter) {
			continue
		}
		sim := utils.Cosine(query, r.Vector)
		hits = append(hits, models.ScoredRecord{Record: r, Similarity: sim, Distance: 1 - sim})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

func filterRecords(records []models.VectorRecord, filter map[string]string) []models.VectorRecord {
	out := make([]models.VectorRecord, 0, len(records))
	for _, r := range records {
		if r.Metadata.Matches(filter) {
			out = append(out, r)
		}
	}
	return out
}
