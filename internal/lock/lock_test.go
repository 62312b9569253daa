package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-activity/internal/logger"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestID_IsDeterministic(t *testing.T) {
	assert.Equal(t, ID("jobs", "archive-periods"), ID("jobs", "archive-periods"))
	assert.NotEqual(t, ID("jobs", "archive-periods"), ID("jobs", "delete-period"))
	assert.NotEqual(t, ID("ab", "c"), ID("a", "bc"))
}

func TestRegistry_StrictReportsCollision(t *testing.T) {
	r := NewRegistry(true)
	r.hash = func(string, string) int64 { return 42 }

	id, err := r.ID("jobs", "one")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = r.ID("jobs", "one")
	assert.NoError(t, err, "same name twice is fine")

	_, err = r.ID("jobs", "two")
	assert.ErrorIs(t, err, ErrCollision)
}

func TestRegistry_LenientIgnoresCollision(t *testing.T) {
	r := NewRegistry(false)
	r.hash = func(string, string) int64 { return 42 }

	_, err := r.ID("jobs", "one")
	require.NoError(t, err)
	_, err = r.ID("jobs", "two")
	assert.NoError(t, err)
}

func TestRedisLocker_Contention(t *testing.T) {
	client, _ := setupTestRedis(t)
	locker := NewRedisLocker(client, NewRegistry(true), time.Minute, logger.Discard())
	ctx := context.Background()

	lease, err := locker.TryLock(ctx, "jobs", "archive")
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "jobs", "archive")
	assert.ErrorIs(t, err, ErrAlreadyLocked)

	other, err := locker.TryLock(ctx, "jobs", "delete")
	require.NoError(t, err)
	require.NoError(t, other.Unlock(ctx))

	require.NoError(t, lease.Unlock(ctx))

	again, err := locker.TryLock(ctx, "jobs", "archive")
	require.NoError(t, err)
	require.NoError(t, again.Unlock(ctx))
}

func TestRedisLocker_ExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	client, mr := setupTestRedis(t)
	locker := NewRedisLocker(client, NewRegistry(false), time.Second, logger.Discard())
	ctx := context.Background()

	stale, err := locker.TryLock(ctx, "jobs", "archive")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.TryLock(ctx, "jobs", "archive")
	require.NoError(t, err)

	require.NoError(t, stale.Unlock(ctx))

	_, err = locker.TryLock(ctx, "jobs", "archive")
	assert.ErrorIs(t, err, ErrAlreadyLocked, "stale unlock must not free the new lease")

	require.NoError(t, fresh.Unlock(ctx))
}

func TestWithLock(t *testing.T) {
	client, _ := setupTestRedis(t)
	locker := NewRedisLocker(client, NewRegistry(false), time.Minute, logger.Discard())
	ctx := context.Background()

	ran := false
	err := WithLock(ctx, locker, "jobs", "archive", func(ctx context.Context) error {
		ran = true
		_, err := locker.TryLock(ctx, "jobs", "archive")
		assert.ErrorIs(t, err, ErrAlreadyLocked)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	boom := errors.New("boom")
	err = WithLock(ctx, locker, "jobs", "archive", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	lease, err := locker.TryLock(ctx, "jobs", "archive")
	require.NoError(t, err, "lock is released after fn returns")
	require.NoError(t, lease.Unlock(ctx))
}
