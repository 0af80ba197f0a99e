package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient connects to TEST_REDIS_ADDR when set and to an in-process
// miniredis otherwise.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		return dial(t, addr)
	}
	client, _ := testMiniredis(t)
	return client
}

// testMiniredis is for tests that move the server clock.
func testMiniredis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return dial(t, mr.Addr()), mr
}

func dial(t *testing.T, addr string) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestCache_RoundTripAndMiss(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"
	c := NewCache(client, prefix)

	var vec []float32
	assert.ErrorIs(t, c.Get(ctx, "q", &vec), ErrMiss)

	require.NoError(t, c.Set(ctx, "q", []float32{0.5, 0.25}, time.Minute))
	require.NoError(t, c.Get(ctx, "q", &vec))
	assert.Equal(t, []float32{0.5, 0.25}, vec)

	n, err := client.Exists(ctx, prefix+"q").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "keys are stored under the prefix")
	client.Del(ctx, prefix+"q")
}

func TestLocker_ExclusiveUntilReleased(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	l := NewLocker(client, "test:lock:")
	name := uuid.NewString()

	release, err := l.Acquire(ctx, name, time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, name, time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	release2, err := l.Acquire(ctx, name, time.Minute)
	require.NoError(t, err)

	// A stale release must not drop the new owner's lock.
	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, name, time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
	require.NoError(t, release2(ctx))
}

func TestLocker_ExpiresAfterTTL(t *testing.T) {
	client, mr := testMiniredis(t)
	ctx := context.Background()
	l := NewLocker(client, "test:lock:")

	_, err := l.Acquire(ctx, "doc", 10*time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "doc", 10*time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	mr.FastForward(10 * time.Minute)
	release, err := l.Acquire(ctx, "doc", 10*time.Minute)
	require.NoError(t, err, "a crashed holder's lock lapses")
	require.NoError(t, release(ctx))
}
