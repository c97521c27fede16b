// Package embedding provides the embedding gateway: a remote OpenAI-compatible client,
// an offline feature-hashing embedder and an LRU cache in front of either.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kaiwa/internal/config"
	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text. EmbedBatch preserves input order and every
// vector has length Dimensions().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New builds the embedder selected by cfg.Provider, wrapped in a cache when cfg.CacheSize > 0.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var base Embedder
	switch cfg.Provider {
	case "hash", "":
		base = NewHashEmbedder(cfg.Dimensions)
	case "openai":
		e, err := NewHTTPEmbedder(HTTPConfig{
			BaseURL:           cfg.BaseURL,
			APIKey:            cfg.APIKey(),
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			BatchSize:         cfg.BatchSize,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			MaxRetries:        cfg.MaxRetries,
		}, logger)
		if err != nil {
			return nil, err
		}
		base = e
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: hash, openai)", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(base, cfg.CacheSize), nil
	}
	return base, nil
}
