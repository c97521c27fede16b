package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
	"go.uber.org/zap"
)

// ragRetention keeps a registry entry this long past its expiry so an expired bank can still be
// deleted along with its vectors.
const ragRetention = 24 * time.Hour

// RedisOptions configures RedisStore.
type RedisOptions struct {
	Addr        string
	DB          int
	Prefix      string
	FeedbackTTL time.Duration
}

// RedisStore implements Store on Redis, using native key expiry for sessions and feedback.
type RedisStore struct {
	rdb    *goredis.Client
	keys   keyspace
	fbTTL  time.Duration
	logger *zap.Logger
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{
		rdb:    rdb,
		keys:   keyspace{prefix: opts.Prefix},
		fbTTL:  opts.FeedbackTTL,
		logger: utils.OrNop(logger),
	}, nil
}

// keyspace lays out every key under one prefix.
type keyspace struct {
	prefix string
}

func (k keyspace) join(parts ...string) string {
	if k.prefix == "" {
		return strings.Join(parts, ":")
	}
	return k.prefix + ":" + strings.Join(parts, ":")
}

func (k keyspace) session(id string) string      { return k.join("session", id) }
func (k keyspace) rag(id string) string          { return k.join("rag", id) }
func (k keyspace) ragIndex() string              { return k.join("rags") }
func (k keyspace) feedback(id string) string     { return k.join("feedback", id) }
func (k keyspace) feedbackUser(id string) string { return k.join("feedback", id, "user") }

// ragExpiry is when the registry key itself disappears.
func ragExpiry(rag *models.PersonalizedRAG) time.Time {
	if rag.ExpiresAt.IsZero() {
		return time.Time{}
	}
	return rag.ExpiresAt.Add(ragRetention)
}

func (r *RedisStore) SaveSession(ctx context.Context, s *models.Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.rdb.Set(ctx, r.keys.session(s.ID), data, ttl).Err()
}

func (r *RedisStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	data, err := r.rdb.Get(ctx, r.keys.session(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, models.NewNotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, r.keys.session(id), r.keys.feedback(id), r.keys.feedbackUser(id)).Err()
}

func (r *RedisStore) SaveRAG(ctx context.Context, rag *models.PersonalizedRAG) error {
	data, err := json.Marshal(rag)
	if err != nil {
		return fmt.Errorf("failed to marshal personalized rag: %w", err)
	}
	key := r.keys.rag(rag.RAGID)
	_, err = r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, key, data, 0)
		if exp := ragExpiry(rag); !exp.IsZero() {
			p.ExpireAt(ctx, key, exp)
		}
		p.SAdd(ctx, r.keys.ragIndex(), rag.RAGID)
		return nil
	})
	return err
}

func (r *RedisStore) GetRAG(ctx context.Context, ragID string) (*models.PersonalizedRAG, error) {
	data, err := r.rdb.Get(ctx, r.keys.rag(ragID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, models.NewNotFound("personalized rag", ragID)
	}
	if err != nil {
		return nil, err
	}
	var rag models.PersonalizedRAG
	if err := json.Unmarshal(data, &rag); err != nil {
		return nil, fmt.Errorf("failed to unmarshal personalized rag: %w", err)
	}
	return &rag, nil
}

func (r *RedisStore) DeleteRAG(ctx context.Context, ragID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, r.keys.rag(ragID))
		p.SRem(ctx, r.keys.ragIndex(), ragID)
		return nil
	})
	return err
}

// CountRAGs counts index members whose key still exists, pruning the rest.
func (r *RedisStore) CountRAGs(ctx context.Context) (int, error) {
	ids, err := r.rdb.SMembers(ctx, r.keys.ragIndex()).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	cmds, err := r.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for _, id := range ids {
			p.Exists(ctx, r.keys.rag(id))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	count := 0
	var stale []any
	for i, c := range cmds {
		if c.(*goredis.IntCmd).Val() > 0 {
			count++
		} else {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) > 0 {
		if err := r.rdb.SRem(ctx, r.keys.ragIndex(), stale...).Err(); err != nil {
			r.logger.Debug("prune rag index failed", zap.Error(err))
		}
	}
	return count, nil
}

func (r *RedisStore) AppendFeedback(ctx context.Context, sessionID, userID string, fb *models.QuestionFeedback) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}
	listKey, userKey := r.keys.feedback(sessionID), r.keys.feedbackUser(sessionID)
	_, err = r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, listKey, data)
		p.SetNX(ctx, userKey, userID, 0)
		if r.fbTTL > 0 {
			p.Expire(ctx, listKey, r.fbTTL)
			p.Expire(ctx, userKey, r.fbTTL)
		}
		return nil
	})
	return err
}

func (r *RedisStore) LoadFeedback(ctx context.Context, sessionID string) (string, []models.QuestionFeedback, error) {
	var lrange *goredis.StringSliceCmd
	var user *goredis.StringCmd
	_, err := r.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		lrange = p.LRange(ctx, r.keys.feedback(sessionID), 0, -1)
		user = p.Get(ctx, r.keys.feedbackUser(sessionID))
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return "", nil, err
	}
	items := lrange.Val()
	if len(items) == 0 {
		return "", nil, models.NewNotFound("feedback", sessionID)
	}
	history := make([]models.QuestionFeedback, 0, len(items))
	for _, item := range items {
		var fb models.QuestionFeedback
		if err := json.Unmarshal([]byte(item), &fb); err != nil {
			return "", nil, fmt.Errorf("failed to unmarshal feedback: %w", err)
		}
		history = append(history, fb)
	}
	return user.Val(), history, nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
