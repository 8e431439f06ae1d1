package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemorySessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 19, 12, 0, 0, 0, time.UTC)
	sessions := NewMemorySessions()
	sessions.now = func() time.Time { return now }

	require.NoError(t, sessions.Register(ctx, "a", "user-1", now.Add(time.Minute)))
	require.NoError(t, sessions.Register(ctx, "b", "user-1", now.Add(time.Hour)))

	active, err := sessions.Active(ctx, "a")
	require.NoError(t, err)
	require.True(t, active)

	now = now.Add(2 * time.Minute)
	active, err = sessions.Active(ctx, "a")
	require.NoError(t, err)
	require.False(t, active, "expired session")

	require.NoError(t, sessions.Register(ctx, "c", "user-2", now.Add(time.Hour)))
	require.NotContains(t, sessions.sessions, "a", "expired sessions are swept on register")

	require.NoError(t, sessions.Revoke(ctx, "b"))
	active, err = sessions.Active(ctx, "b")
	require.NoError(t, err)
	require.False(t, active)
}

func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("ORDERDESK_REDIS_TEST_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis is not reachable at %s: %v", addr, err)
	}
	return client
}

func TestRedisSessions(t *testing.T) {
	ctx := context.Background()
	sessions := NewRedisSessions(redisTestClient(t))
	require.NoError(t, sessions.Ping(ctx))

	id := uuid.NewString()
	t.Cleanup(func() { _ = sessions.Revoke(context.Background(), id) })

	require.NoError(t, sessions.Register(ctx, id, "user-1", time.Now().Add(time.Minute)))
	active, err := sessions.Active(ctx, id)
	require.NoError(t, err)
	require.True(t, active)

	require.NoError(t, sessions.Revoke(ctx, id))
	active, err = sessions.Active(ctx, id)
	require.NoError(t, err)
	require.False(t, active)

	require.NoError(t, sessions.Register(ctx, "expired-"+id, "user-1", time.Now().Add(-time.Second)))
	active, err = sessions.Active(ctx, "expired-"+id)
	require.NoError(t, err)
	require.False(t, active)
}
