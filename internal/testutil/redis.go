package testutil

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// SetupMiniRedis starts an in-process Redis server for the test and returns it
// with a connected client. Both are closed when the test ends.
func SetupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: failed to close miniredis client: %v", err)
		}
	})
	return mr, client
}

// SetupTestRedis connects to a real Redis at TEST_REDIS_ADDR (default
// localhost:56379) using database TEST_REDIS_DB (default 15), which is flushed
// first. The test is skipped when Redis is unreachable.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	addr := getEnvOrDefault("TEST_REDIS_ADDR", "localhost:56379")
	dbIndex, err := strconv.Atoi(getEnvOrDefault("TEST_REDIS_DB", "15"))
	if err != nil || dbIndex < 0 {
		t.Fatalf("invalid TEST_REDIS_DB: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: dbIndex})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		closeQuietly(t, "redis client", client)
		skipOrFail(t, "TEST_REQUIRE_REDIS", "redis not available at "+addr+":", pingErr)
	}
	if flushErr := client.FlushDB(ctx).Err(); flushErr != nil {
		closeQuietly(t, "redis client", client)
		t.Fatalf("flush test redis db %d: %v", dbIndex, flushErr)
	}
	t.Cleanup(func() { closeQuietly(t, "redis client", client) })
	return client
}
