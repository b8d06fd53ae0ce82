package session

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps sessions in Redis, one JSON value per user, expiry
// handled by the server. Multiple bot instances share it safely.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore creates a RedisStore with the given TTL; non-positive TTL
// falls back to DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: "session:",
	}
}

func (s *RedisStore) key(telegramID int64) string {
	return s.prefix + strconv.FormatInt(telegramID, 10)
}

func (s *RedisStore) Get(ctx context.Context, telegramID int64) (*State, error) {
	raw, err := s.client.Get(ctx, s.key(telegramID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "redis get")
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	return &state, nil
}

func (s *RedisStore) Set(ctx context.Context, telegramID int64, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	if err := s.client.Set(ctx, s.key(telegramID), raw, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, telegramID int64) error {
	if err := s.client.Del(ctx, s.key(telegramID)).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}
