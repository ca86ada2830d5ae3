package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"intake-relay/models"
)

// RedisStore keeps the session as two plain string keys. Keys carry no expiry.
// prefix namespaces the keys, e.g. per user or per terminal.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// NewRedisStoreFromURL parses a redis:// URL and checks the server answers.
func NewRedisStoreFromURL(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(rdb, prefix), nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Load(ctx context.Context) (models.Session, error) {
	vals, err := s.rdb.MGet(ctx, s.key(KeySessionID), s.key(KeyRole)).Result()
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	sessionID, _ := vals[0].(string)
	if sessionID == "" {
		return models.Session{}, ErrNoSession
	}
	role, _ := vals[1].(string)
	return models.Session{SessionID: sessionID, Role: models.Role(role)}, nil
}

func (s *RedisStore) Save(ctx context.Context, sess models.Session) error {
	err := s.rdb.MSet(ctx,
		s.key(KeySessionID), sess.SessionID,
		s.key(KeyRole), string(sess.Role),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key(KeySessionID), s.key(KeyRole)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
