// Package testutil provides Postgres and Redis fixtures for tests. Tests that
// need real infrastructure skip when it is unreachable unless TEST_REQUIRE_INFRA
// (or TEST_REQUIRE_DB / TEST_REQUIRE_REDIS) is set.
package testutil

import (
	"os"
	"strings"
	"testing"
	"time"
)

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

// skipOrFail skips the test when infrastructure is optional and fails it when
// requireKey (or TEST_REQUIRE_INFRA) demands it.
func skipOrFail(t testing.TB, requireKey string, args ...any) {
	t.Helper()
	if envBool(requireKey) || envBool("TEST_REQUIRE_INFRA") {
		t.Fatal(args...)
	}
	t.Skip(args...)
}
