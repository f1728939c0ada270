package study

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/p-n-ai/pai-study/internal/platform/cache"
)

const redisKeyPrefix = "study:session:"

// RedisStore keeps session snapshots in Redis as JSON with a sliding TTL.
type RedisStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed session store. Each save refreshes
// the key's ttl; zero keeps sessions until deleted.
func NewRedisStore(c *cache.Cache, ttl time.Duration) (*RedisStore, error) {
	if c == nil {
		return nil, fmt.Errorf("cache is nil")
	}
	return &RedisStore{cache: c, ttl: ttl}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.cache.GetJSON(ctx, redisKeyPrefix+id, &sess)
	if errors.Is(err, cache.ErrMiss) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Quiz != nil && sess.Quiz.Answers == nil {
		sess.Quiz.Answers = make(map[int]string)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := s.cache.SetJSON(ctx, redisKeyPrefix+sess.ID, sess, s.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, redisKeyPrefix+id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
