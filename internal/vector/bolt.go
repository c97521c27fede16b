package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperjump/kaiwa/internal/models"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// BoltStore persists each namespace as one bbolt bucket and serves reads from an in-memory
// mirror loaded at open. A namespace is rewritten in a single bbolt transaction.
type BoltStore struct {
	db     *bbolt.DB
	mirror *MemoryStore
	// writeMu keeps the mirror in commit order when two upserts race on the same namespace.
	writeMu sync.Mutex
	logger  *zap.Logger
}

// boltRecord is the on-disk form of a VectorRecord. Vector holds little-endian float32s.
type boltRecord struct {
	ID       string          `json:"id"`
	Vector   []byte          `json:"v"`
	Document string          `json:"doc"`
	Metadata models.Metadata `json:"meta,omitempty"`
}

// NewBoltStore opens (or creates) the bbolt file at path and loads every namespace into memory.
func NewBoltStore(path string, dimensions int, logger *zap.Logger) (*BoltStore, error) {
	mirror, err := NewMemoryStore(dimensions)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	s := &BoltStore{db: db, mirror: mirror, logger: logger}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) load() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bbolt.Bucket) error {
			var records []models.VectorRecord
			err := b.ForEach(func(_, v []byte) error {
				var br boltRecord
				if err := json.Unmarshal(v, &br); err != nil {
					return err
				}
				records = append(records, models.VectorRecord{
					ID:       br.ID,
					Vector:   bytesToFloat32Slice(br.Vector),
					Document: br.Document,
					Metadata: br.Metadata,
				})
				return nil
			})
			if err != nil {
				return fmt.Errorf("load namespace %s: %w", name, err)
			}
			snapshot, err := prepare(s.mirror.Dimensions(), records)
			if err != nil {
				return fmt.Errorf("load namespace %s: %w", name, err)
			}
			s.mirror.swap(string(name), snapshot)
			if s.logger != nil {
				s.logger.Debug("loaded vector namespace", zap.String("namespace", string(name)), zap.Int("records", len(snapshot)))
			}
			return nil
		})
	})
}

// Upsert rewrites the namespace bucket and then swaps the mirror.
func (s *BoltStore) Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error {
	snapshot, err := prepare(s.mirror.Dimensions(), records)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err = s.db.Update(func(tx *bbolt.Tx) error {
		name := []byte(namespace)
		if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(name)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		for i, r := range snapshot {
			data, err := json.Marshal(boltRecord{
				ID:       r.ID,
				Vector:   float32SliceToBytes(r.Vector),
				Document: r.Document,
				Metadata: r.Metadata,
			})
			if err != nil {
				return err
			}
			binary.BigEndian.PutUint64(key, uint64(i))
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert namespace %s: %w", namespace, err)
	}
	s.mirror.swap(namespace, snapshot)
	return nil
}

// Query ranks the namespace from the mirror.
func (s *BoltStore) Query(ctx context.Context, namespace string, vector []float32, k int, filter map[string]string) ([]models.ScoredRecord, error) {
	return s.mirror.Query(ctx, namespace, vector, k, filter)
}

// Get scans the namespace from the mirror.
func (s *BoltStore) Get(ctx context.Context, namespace string, filter map[string]string) ([]models.VectorRecord, error) {
	return s.mirror.Get(ctx, namespace, filter)
}

// Delete drops the namespace bucket. Deleting an absent namespace is not an error.
func (s *BoltStore) Delete(ctx context.Context, namespace string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(namespace)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	return s.mirror.Delete(ctx, namespace)
}

// Exists reports whether the namespace bucket exists.
func (s *BoltStore) Exists(ctx context.Context, namespace string) (bool, error) {
	return s.mirror.Exists(ctx, namespace)
}

// Namespaces lists every stored namespace, sorted.
func (s *BoltStore) Namespaces(ctx context.Context) ([]string, error) {
	return s.mirror.Namespaces(ctx)
}

// Dimensions returns the fixed vector length.
func (s *BoltStore) Dimensions() int { return s.mirror.Dimensions() }

// Close closes the bbolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func float32SliceToBytes(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(f))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
