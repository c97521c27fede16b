package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hyperjump/kaiwa/internal/models"
)

func rec(id string, vec []float32, meta models.Metadata) models.VectorRecord {
	return models.VectorRecord{ID: id, Vector: vec, Document: "doc " + id, Metadata: meta}
}

func TestMemoryStore_UpsertQuery(t *testing.T) {
	s, err := NewMemoryStore(3)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Upsert(ctx, "ns", []models.VectorRecord{
		rec("a", []float32{1, 0, 0}, nil),
		rec("b", []float32{0.9, 0.1, 0}, nil),
		rec("c", []float32{0, 1, 0}, nil),
	}); err != nil {
		t.Fatal(err)
	}
	if s.Size("ns") != 3 {
		t.Errorf("Size=%d", s.Size("ns"))
	}

	results, err := s.Query(ctx, "ns", []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Record.ID != "a" || results[1].Record.ID != "b" {
		t.Errorf("order = %s,%s", results[0].Record.ID, results[1].Record.ID)
	}
}

func TestMemoryStore_IdenticalAboveOrthogonal(t *testing.T) {
	s, _ := NewMemoryStore(2)
	ctx := context.Background()
	_ = s.Upsert(ctx, "ns", []models.VectorRecord{
		rec("orth", []float32{0, 1}, nil),
		rec("same", []float32{2, 0}, nil),
	})
	res, _ := s.Query(ctx, "ns", []float32{1, 0}, 10, nil)
	if len(res) != 2 || res[0].Record.ID != "same" {
		t.Fatalf("unexpected ranking: %+v", res)
	}
	if res[0].Similarity < 0.999999 || res[0].Distance > 1e-6 {
		t.Errorf("identical direction: sim=%f dist=%f", res[0].Similarity, res[0].Distance)
	}
	if res[1].Similarity != 0 || res[1].Distance != 1 {
		t.Errorf("orthogonal: sim=%f dist=%f", res[1].Similarity, res[1].Distance)
	}
}

func TestMemoryStore_ZeroNormAndTies(t *testing.T) {
	s, _ := NewMemoryStore(2)
	ctx := context.Background()
	_ = s.Upsert(ctx, "ns", []models.VectorRecord{
		rec("zero", []float32{0, 0}, nil),
		rec("t1", []float32{1, 0}, nil),
		rec("t2", []float32{3, 0}, nil),
	})
	res, _ := s.Query(ctx, "ns", []float32{1, 0}, 3, nil)
	if res[0].Record.ID != "t1" || res[1].Record.ID != "t2" {
		t.Errorf("ties should keep insertion order: %s,%s", res[0].Record.ID, res[1].Record.ID)
	}
	if res[2].Record.ID != "zero" || res[2].Similarity != 0 {
		t.Errorf("zero-norm record should score 0, got %+v", res[2])
	}
}

func TestMemoryStore_Filter(t *testing.T) {
	s, _ := NewMemoryStore(2)
	ctx := context.Background()
	_ = s.Upsert(ctx, "ns", []models.VectorRecord{
		rec("r1", []float32{1, 0}, models.Metadata{"source": "resume", "chunk_index": "0"}),
		rec("j1", []float32{1, 0}, models.Metadata{"source": "job_posting", "chunk_index": "0"}),
		rec("r2", []float32{0, 1}, models.Metadata{"source": "resume", "chunk_index": "1"}),
	})
	res, _ := s.Query(ctx, "ns", []float32{1, 0}, 5, map[string]string{"source": "resume"})
	if len(res) != 2 || res[0].Record.ID != "r1" || res[1].Record.ID != "r2" {
		t.Errorf("filtered query: %+v", res)
	}
	got, _ := s.Get(ctx, "ns", map[string]string{"source": "resume", "chunk_index": "1"})
	if len(got) != 1 || got[0].ID != "r2" {
		t.Errorf("conjunctive filter: %+v", got)
	}
}

func TestMemoryStore_ReplaceNotMerge(t *testing.T) {
	s, _ := NewMemoryStore(2)
	ctx := context.Background()
	_ = s.Upsert(ctx, "ns", []models.VectorRecord{rec("a1", []float32{1, 0}, nil), rec("a2", []float32{0, 1}, nil)})
	_ = s.Upsert(ctx, "ns", []models.VectorRecord{rec("b1", []float32{1, 1}, nil)})
	got, _ := s.Get(ctx, "ns", nil)
	if len(got) != 1 || got[0].ID != "b1" {
		t.Errorf("second upsert should replace: %+v", got)
	}
}

func TestMemoryStore_DuplicateIDLastWins(t *testing.T) {
	s, _ := NewMemoryStore(2)
	ctx := context.Background()
	_ = s.Upsert(ctx, "ns", []models.VectorRecord{
		{ID: "x", Vector: []float32{1, 0}, Document: "old"},
		{ID: "y", Vector: []float32{0, 1}},
		{ID: "x", Vector: []float32{1, 0}, Document: "new"},
	})
	got, _ := s.Get(ctx, "ns", nil)
	if len(got) != 2 || got[0].ID != "x" || got[0].Document != "new" {
		t.Errorf("duplicate handling: %+v", got)
	}
}

func TestMemoryStore_AbsentNamespace(t *testing.T) {
	s, _ := NewMemoryStore(2)
	ctx := context.Background()
	res, err := s.Query(ctx, "missing", []float32{1, 0}, 3, nil)
	if err != nil || len(res) != 0 {
		t.Errorf("query on absent namespace: %v %v", res, err)
	}
	got, err := s.Get(ctx, "missing", nil)
	if err != nil || len(got) != 0 {
		t.Errorf("get on absent namespace: %v %v", got, err)
	}
	if ok, _ := s.Exists(ctx, "missing"); ok {
		t.Error("absent namespace should not exist")
	}
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("delete should be idempotent: %v", err)
	}
}

func TestMemoryStore_Dimension(t *testing.T) {
	s, _ := NewMemoryStore(3)
	ctx := context.Background()
	err := s.Upsert(ctx, "ns", []models.VectorRecord{rec("a", []float32{1, 0}, nil)})
	var de *models.DimensionError
	if !errors.As(err, &de) || de.Expected != 3 || de.Got != 2 {
		t.Errorf("upsert: expected DimensionError, got %v", err)
	}
	if _, err := s.Query(ctx, "ns", []float32{1}, 1, nil); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("query: expected ErrDimensionMismatch, got %v", err)
	}
	if ok, _ := s.Exists(ctx, "ns"); ok {
		t.Error("failed upsert must not create the namespace")
	}
}

func TestMemoryStore_CallerCannotMutate(t *testing.T) {
	s, _ := NewMemoryStore(2)
	ctx := context.Background()
	in := []models.VectorRecord{rec("a", []float32{1, 0}, models.Metadata{"k": "v"})}
	_ = s.Upsert(ctx, "ns", in)
	in[0].Vector[0] = 0
	in[0].Metadata["k"] = "changed"
	got, _ := s.Get(ctx, "ns", nil)
	if got[0].Vector[0] != 1 || got[0].Metadata["k"] != "v" {
		t.Errorf("store aliased caller data: %+v", got[0])
	}
}

func TestMemoryStore_Namespaces(t *testing.T) {
	s, _ := NewMemoryStore(2)
	ctx := context.Background()
	_ = s.Upsert(ctx, "b", nil)
	_ = s.Upsert(ctx, "a", nil)
	names, _ := s.Namespaces(ctx)
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Namespaces=%v", names)
	}
	_ = s.Delete(ctx, "a")
	names, _ = s.Namespaces(ctx)
	if len(names) != 1 {
		t.Errorf("after delete: %v", names)
	}
}

func TestMemoryStore_ConcurrentReplaceIsAtomic(t *testing.T) {
	s, _ := NewMemoryStore(2)
	ctx := context.Background()
	setA := make([]models.VectorRecord, 50)
	setB := make([]models.VectorRecord, 30)
	for i := range setA {
		setA[i] = rec(fmt.Sprintf("a%d", i), []float32{1, 0}, models.Metadata{"set": "A"})
	}
	for i := range setB {
		setB[i] = rec(fmt.Sprintf("b%d", i), []float32{0, 1}, models.Metadata{"set": "B"})
	}
	_ = s.Upsert(ctx, "ns", setA)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				_ = s.Upsert(ctx, "ns", setB)
			} else {
				_ = s.Upsert(ctx, "ns", setA)
			}
		}
	}()
	errs := make(chan string, 1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			got, _ := s.Get(ctx, "ns", nil)
			if len(got) == 0 {
				continue
			}
			want := got[0].Metadata["set"]
			n := len(setA)
			if want == "B" {
				n = len(setB)
			}
			if len(got) != n {
				select {
				case errs <- fmt.Sprintf("partial set: %d records of %s", len(got), want):
				default:
				}
				return
			}
			for _, r := range got {
				if r.Metadata["set"] != want {
					select {
					case errs <- "mixed sets observed":
					default:
					}
					return
				}
			}
		}
	}()
	wg.Wait()
	select {
	case msg := <-errs:
		t.Fatal(msg)
	default:
	}
}
