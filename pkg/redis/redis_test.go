package redis

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/logging"
)

// testClient connects to the Redis named by REDIS_TEST_HOST/REDIS_TEST_PORT,
// skipping when none is configured.
func testClient(t *testing.T) *Client {
	t.Helper()

	host := os.Getenv("REDIS_TEST_HOST")
	if host == "" {
		t.Skip("REDIS_TEST_HOST not set")
	}
	port, err := strconv.Atoi(os.Getenv("REDIS_TEST_PORT"))
	if err != nil {
		port = 6379
	}

	client, err := NewClient(context.Background(), Config{Host: host, Port: port}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, "localhost:6379", Config{Host: "localhost", Port: 6379}.Addr())
}

func TestLockerKey(t *testing.T) {
	assert.Equal(t, "clover:lock:generate:acs:2019", NewLocker(nil, "").Key("generate:acs:2019"))
	assert.Equal(t, "x:acs", NewLocker(nil, "x:").Key("acs"))
}

func TestNewClientUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewClient(ctx, Config{Host: "127.0.0.1", Port: 1}, logging.Discard())
	assert.Error(t, err)
}

func TestLocker(t *testing.T) {
	client := testClient(t)
	locker := NewLocker(client, "clover:test:lock:")
	ctx := context.Background()
	name := "generate:" + strconv.FormatInt(time.Now().UnixNano(), 10)

	lock, err := locker.Acquire(ctx, name, 5*time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, name, 5*time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	_, err = locker.TryAcquire(ctx, name, 5*time.Second, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Extend(ctx, 10*time.Second))
	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
	assert.ErrorIs(t, lock.Extend(ctx, time.Second), ErrLockNotHeld)
}
