package session

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
)

// MemoryStore keeps sessions in process memory with a sliding TTL.
type MemoryStore struct {
	cache *cache.Cache
	ttl   time.Duration
	// mu makes the version check and the write in Save one step.
	mu sync.Mutex
}

// NewMemoryStore creates a store whose sessions expire after ttl without a
// write; expired items are purged every cleanupInterval.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*chat.Session, error) {
	if x, found := s.cache.Get(id); found {
		return x.(*chat.Session).Clone(), nil
	}
	return nil, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, sess *chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if x, found := s.cache.Get(sess.ID); found && x.(*chat.Session).Version != sess.Version {
		return ErrVersionConflict
	}
	next := sess.Clone()
	next.Version++
	s.cache.Set(sess.ID, next, s.ttl)
	sess.Version++
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}
