package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/acme/ai-call-dispatch/pkg/errors"
)

func newRedisLock(t *testing.T, ttl time.Duration) (*RedisRunLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRunLock(client, "test", ttl, nil), mr
}

func TestRedisRunLockExclusive(t *testing.T) {
	lock, mr := newRedisLock(t, time.Minute)
	ctx := context.Background()
	campaignID := uuid.New()

	lease, err := lock.Acquire(ctx, campaignID)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, campaignID)
	assert.ErrorIs(t, err, apperrors.ErrDispatchInProgress)

	held, err := lock.IsHeld(ctx, campaignID)
	require.NoError(t, err)
	assert.True(t, held)

	other, err := lock.Acquire(ctx, uuid.New())
	require.NoError(t, err)
	other.Release()

	lease.Release()
	lease.Release()

	assert.False(t, mr.Exists("test:"+campaignID.String()+":dispatch"))

	again, err := lock.Acquire(ctx, campaignID)
	require.NoError(t, err)
	again.Release()
}

func TestRedisRunLockReleaseKeepsForeignToken(t *testing.T) {
	lock, mr := newRedisLock(t, time.Minute)
	ctx := context.Background()
	campaignID := uuid.New()
	key := "test:" + campaignID.String() + ":dispatch"

	lease, err := lock.Acquire(ctx, campaignID)
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the key.
	require.NoError(t, mr.Set(key, "someone-else"))
	lease.Release()

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisRunLockKeeperExtends(t *testing.T) {
	lock, mr := newRedisLock(t, 300*time.Millisecond)
	campaignID := uuid.New()
	key := "test:" + campaignID.String() + ":dispatch"

	lease, err := lock.Acquire(context.Background(), campaignID)
	require.NoError(t, err)
	defer lease.Release()

	mr.SetTTL(key, 150*time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL(key) > 200*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond)

	select {
	case <-lease.Lost():
		t.Fatal("lease reported lost while extensions succeed")
	default:
	}
}

func TestRedisRunLockLostAfterExpiry(t *testing.T) {
	lock, mr := newRedisLock(t, 300*time.Millisecond)
	ctx := context.Background()
	campaignID := uuid.New()

	lease, err := lock.Acquire(ctx, campaignID)
	require.NoError(t, err)
	defer lease.Release()

	mr.FastForward(time.Second)

	select {
	case <-lease.Lost():
	case <-time.After(2 * time.Second):
		t.Fatal("lease not reported lost after the key expired")
	}

	next, err := lock.Acquire(ctx, campaignID)
	require.NoError(t, err)
	lease.Release()
	held, err := lock.IsHeld(ctx, campaignID)
	require.NoError(t, err)
	assert.True(t, held, "releasing a lost lease must not free the new holder")
	next.Release()
}

func TestRedisRunLockLostWhenExtendKeepsFailing(t *testing.T) {
	lock, mr := newRedisLock(t, 300*time.Millisecond)

	lease, err := lock.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer lease.Release()

	mr.Close()

	select {
	case <-lease.Lost():
	case <-time.After(3 * time.Second):
		t.Fatal("lease not reported lost while redis is unreachable")
	}
}

func TestLocalRunLock(t *testing.T) {
	lock := NewLocalRunLock()
	ctx := context.Background()
	campaignID := uuid.New()

	lease, err := lock.Acquire(ctx, campaignID)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, campaignID)
	assert.ErrorIs(t, err, apperrors.ErrDispatchInProgress)

	held, _ := lock.IsHeld(ctx, campaignID)
	assert.True(t, held)

	lease.Release()
	held, _ = lock.IsHeld(ctx, campaignID)
	assert.False(t, held)

	lease2, err := lock.Acquire(ctx, campaignID)
	require.NoError(t, err)
	lease.Release()
	held, _ = lock.IsHeld(ctx, campaignID)
	assert.True(t, held, "stale release must not free a newer holder")
	lease2.Release()
}
