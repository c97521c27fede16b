// Package storage persists interview sessions, the personalized bank registry and per-session
// feedback histories.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/feedback"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/questionbank"
	"go.uber.org/zap"
)

// SessionStore keeps sessions for ttl after their last save. GetSession returns an error
// wrapping models.ErrNotFound for unknown or expired sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, s *models.Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Store is everything the server persists.
type Store interface {
	SessionStore
	questionbank.Registry
	feedback.Store
	Close() error
}

// Options configures New.
type Options struct {
	// FeedbackTTL bounds how long feedback histories live on backends with native expiry.
	FeedbackTTL time.Duration
}

// New opens the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, opts Options, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.DatabasePath)
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Addr:        cfg.RedisAddr,
			DB:          cfg.RedisDB,
			Prefix:      cfg.RedisPrefix,
			FeedbackTTL: opts.FeedbackTTL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: memory, sqlite, redis)", cfg.Backend)
	}
}
