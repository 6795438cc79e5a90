package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := NewStore(StoreTypeRedis, WithRedisClient(client), WithTTL(ttl))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return mr, store
}

func newMemoryStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(StoreTypeMemory, WithTTL(time.Hour), WithCleanupInterval(time.Minute))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	got, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	sess := chat.NewSession("s1", "prompt")
	sess.Append(chat.UserMessage("hello"))
	sess.Notes = append(sess.Notes, "buy milk")
	sess.SetPendingDocument("doc text")
	require.NoError(t, store.Save(ctx, sess))

	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.History, got.History)
	assert.Equal(t, []string{"buy milk"}, got.Notes)
	require.NotNil(t, got.PendingDocument)
	assert.Equal(t, "doc text", *got.PendingDocument)

	// Mutating a loaded copy must not leak into the store until saved.
	got.Notes = append(got.Notes, "unsaved")
	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"buy milk"}, again.Notes)

	require.NoError(t, store.Delete(ctx, "s1"))
	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func exerciseVersioning(t *testing.T, store Store) {
	ctx := context.Background()

	sess := chat.NewSession("v1", "prompt")
	require.NoError(t, store.Save(ctx, sess))
	assert.Equal(t, int64(1), sess.Version)

	first, err := store.Get(ctx, "v1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "v1")
	require.NoError(t, err)

	first.Notes = append(first.Notes, "from first")
	require.NoError(t, store.Save(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Notes = append(second.Notes, "from second")
	assert.ErrorIs(t, store.Save(ctx, second), ErrVersionConflict)

	got, err := store.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"from first"}, got.Notes)
	assert.Equal(t, int64(2), got.Version)
}

func TestMemoryStoreRejectsStaleSave(t *testing.T) {
	exerciseVersioning(t, newMemoryStore(t))
}

func TestRedisStoreRejectsStaleSave(t *testing.T) {
	_, store := newRedisStore(t, time.Hour)
	exerciseVersioning(t, store)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	exerciseStore(t, newMemoryStore(t))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	_, store := newRedisStore(t, time.Hour)
	exerciseStore(t, store)
}

func TestRedisStoreExpiresSessions(t *testing.T) {
	mr, store := newRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, chat.NewSession("s1", "prompt")))
	assert.True(t, mr.Exists(defaultKeyPrefix+"s1"))

	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreExpiresSessions(t *testing.T) {
	store := NewMemoryStore(20*time.Millisecond, time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, chat.NewSession("s1", "prompt")))
	time.Sleep(50 * time.Millisecond)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewStoreRejectsBadConfig(t *testing.T) {
	_, err := NewStore(StoreTypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStore("etcd")
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}
