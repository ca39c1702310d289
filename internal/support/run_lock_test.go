package support

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLockValueIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		v := generateLockValue()
		_, dup := seen[v]
		require.False(t, dup, "duplicate lock value %s", v)
		seen[v] = struct{}{}
	}
}

func TestAcquireRunLockRequiresClient(t *testing.T) {
	_, err := AcquireRunLock(context.Background(), nil, "ipwarden:test", 0)
	assert.Error(t, err)
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRunLockExcludesConcurrentRun(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	first, err := AcquireRunLock(ctx, client, "ipwarden:lock:stores", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("ipwarden:lock:stores"))

	_, err = AcquireRunLock(ctx, client, "ipwarden:lock:stores", time.Minute)
	assert.ErrorIs(t, err, ErrRunInProgress)

	first.Release()
	assert.Error(t, first.Context().Err())
	assert.False(t, mr.Exists("ipwarden:lock:stores"))

	second, err := AcquireRunLock(ctx, client, "ipwarden:lock:stores", time.Minute)
	require.NoError(t, err)
	second.Release()
	second.Release()
}

func TestRunLockReleaseLeavesForeignOwner(t *testing.T) {
	mr, client := newTestRedis(t)

	lock, err := AcquireRunLock(context.Background(), client, "ipwarden:lock:stores", time.Minute)
	require.NoError(t, err)

	require.NoError(t, mr.Set("ipwarden:lock:stores", "someone-else"))
	lock.Release()

	got, err := mr.Get("ipwarden:lock:stores")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRunLockLossCancelsContext(t *testing.T) {
	mr, client := newTestRedis(t)

	lock, err := AcquireRunLock(context.Background(), client, "ipwarden:lock:stores", time.Second)
	require.NoError(t, err)
	defer lock.Release()

	mr.Del("ipwarden:lock:stores")

	require.Eventually(t, func() bool {
		return lock.Context().Err() != nil
	}, 5*time.Second, 50*time.Millisecond)
}
