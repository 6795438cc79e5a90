package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
)

const defaultKeyPrefix = "synthesis:session:"

// RedisStore keeps sessions as JSON documents in Redis. Keys expire after
// the configured TTL and the TTL is refreshed on every read and write.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration, prefix string) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, ttl: ttl, prefix: prefix}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*chat.Session, error) {
	key := s.key(id)
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var sess chat.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}

	// A failed refresh only shortens the session's life.
	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return &sess, nil
}

// Save implements Store with WATCH/MULTI/EXEC so writers in other
// processes cannot overwrite each other.
func (s *RedisStore) Save(ctx context.Context, sess *chat.Session) error {
	key := s.key(sess.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get %s: %w", key, err)
		default:
			var current struct {
				Version int64 `json:"version"`
			}
			if err := json.Unmarshal(stored, &current); err != nil {
				return fmt.Errorf("decode session %s: %w", sess.ID, err)
			}
			if current.Version != sess.Version {
				return ErrVersionConflict
			}
		}

		next := *sess
		next.Version++
		val, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", sess.ID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, val, s.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	case err != nil:
		return err
	}
	sess.Version++
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}
