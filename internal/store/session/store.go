// Package session persists chat sessions behind a driver-agnostic Store.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
)

var (
	ErrInvalidConfig    = errors.New("invalid session store configuration")
	ErrInvalidStoreType = errors.New("invalid session store type")
	ErrVersionConflict  = errors.New("session version conflict")
)

// Store defines the persistence operations for sessions. Callers serialize
// mutations of one key themselves; stores only guarantee that Get never
// hands out memory shared with a later Save.
type Store interface {
	// Get returns the session or nil when it does not exist (not an error).
	Get(ctx context.Context, id string) (*chat.Session, error)

	// Save creates or replaces the session and refreshes its TTL. It fails
	// with ErrVersionConflict when the stored copy has a different Version
	// than s; on success s.Version is incremented. A missing (or expired)
	// session is always written.
	Save(ctx context.Context, s *chat.Session) error

	Delete(ctx context.Context, id string) error

	Close() error
}

// StoreType selects a driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

const (
	defaultTTL             = 24 * time.Hour
	defaultCleanupInterval = 10 * time.Minute
)

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	ttl             time.Duration
	cleanupInterval time.Duration
	redisClient     *redis.Client
	keyPrefix       string
}

// WithTTL sets how long an untouched session survives.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// WithCleanupInterval sets how often the memory driver purges expired sessions.
func WithCleanupInterval(interval time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.cleanupInterval = interval
	}
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithKeyPrefix overrides the redis key prefix.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.keyPrefix = prefix
	}
}

// NewStore builds the driver named by storeType.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{
		ttl:             defaultTTL,
		cleanupInterval: defaultCleanupInterval,
		keyPrefix:       defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = defaultTTL
	}

	switch storeType {
	case StoreTypeMemory, "":
		return NewMemoryStore(cfg.ttl, cfg.cleanupInterval), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(cfg.redisClient, cfg.ttl, cfg.keyPrefix), nil
	default:
		return nil, ErrInvalidStoreType
	}
}
