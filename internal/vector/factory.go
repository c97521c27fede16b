package vector

import (
	"fmt"

	"github.com/hyperjump/kaiwa/internal/config"
	"go.uber.org/zap"
)

// Backend names the vector store implementation.
type Backend string

const (
	// BackendMemory keeps namespaces in process memory only.
	BackendMemory Backend = "memory"
	// BackendBolt persists namespaces to a local bbolt file.
	BackendBolt Backend = "bolt"
	// BackendQdrant stores namespaces as Qdrant collections behind aliases.
	BackendQdrant Backend = "qdrant"
)

// NewStore creates the vector store selected by cfg.Backend.
// Supported backends: "memory" (default), "bolt", "qdrant".
func NewStore(cfg config.VectorConfig, dimensions int, logger *zap.Logger) (Store, error) {
	switch Backend(cfg.Backend) {
	case BackendMemory, "":
		return NewMemoryStore(dimensions)
	case BackendBolt:
		return NewBoltStore(cfg.BoltPath, dimensions, logger)
	case BackendQdrant:
		return NewQdrantStore(cfg.QdrantAddr, dimensions, logger)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (supported: memory, bolt, qdrant)", cfg.Backend)
	}
}
