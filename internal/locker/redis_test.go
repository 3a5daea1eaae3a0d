package locker

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLockerAcquire(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, 10*time.Second)

	mock.Regexp().ExpectSetNX("lock:event:ev1", `.+`, 10*time.Second).SetVal(true)
	// Release finds the key already expired; nothing to delete.
	mock.ExpectGet("lock:event:ev1").RedisNil()

	release, err := locker.Acquire(context.Background(), EventKey("ev1"))
	require.NoError(t, err)
	release()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockerRetriesUntilFree(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, 10*time.Second)
	locker.retry = time.Millisecond

	mock.Regexp().ExpectSetNX("lock:event:ev1", `.+`, 10*time.Second).SetVal(false)
	mock.Regexp().ExpectSetNX("lock:event:ev1", `.+`, 10*time.Second).SetVal(true)
	mock.ExpectGet("lock:event:ev1").RedisNil()

	release, err := locker.Acquire(context.Background(), EventKey("ev1"))
	require.NoError(t, err)
	release()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockerAcquireError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, 10*time.Second)

	mock.Regexp().ExpectSetNX("lock:event:ev1", `.+`, 10*time.Second).SetErr(assert.AnError)

	_, err := locker.Acquire(context.Background(), EventKey("ev1"))
	assert.Error(t, err)
}

func TestRedisLockerReleaseSkipsForeignToken(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, 10*time.Second)

	mock.Regexp().ExpectSetNX("lock:account:a1", `.+`, 10*time.Second).SetVal(true)
	// Another process re-acquired after a TTL expiry; its token must not
	// be deleted, so no Del expectation is registered.
	mock.ExpectGet("lock:account:a1").SetVal("someone-else")

	release, err := locker.Acquire(context.Background(), AccountKey("a1"))
	require.NoError(t, err)
	release()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockerContextCancelledWhileWaiting(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, 10*time.Second)
	locker.retry = time.Second

	mock.Regexp().ExpectSetNX("lock:event:ev1", `.+`, 10*time.Second).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := locker.Acquire(ctx, EventKey("ev1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
