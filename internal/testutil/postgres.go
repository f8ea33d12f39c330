package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/alungalsinan/groot-scribe-studio/internal/migrate"
)

// DBConfig locates the test Postgres server. Defaults match the local
// docker-compose test profile; CI overrides them through TEST_DB_*.
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// TestDBConfig reads the test database location from the environment.
func TestDBConfig() DBConfig {
	return DBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "scribe"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "scribe"),
		Name:     getEnvOrDefault("TEST_DB_NAME", "scribe"),
		SSLMode:  getEnvOrDefault("TEST_DB_SSL_MODE", "disable"),
	}
}

// DSN returns the connection string, optionally scoped to schema.
func (c DBConfig) DSN(schema string) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	if schema != "" {
		q.Set("search_path", schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SetupTestDB returns a connection scoped to a fresh schema with migrations
// applied. The schema is dropped when the test ends. The test is skipped when
// Postgres is unreachable.
func SetupTestDB(t testing.TB) *sql.DB {
	t.Helper()
	cfg := TestDBConfig()

	admin := openAndPing(t, cfg.DSN(""))
	schema := schemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		closeQuietly(t, "admin db", admin)
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := sql.Open("pgx", cfg.DSN(schema))
	if err != nil {
		closeQuietly(t, "admin db", admin)
		t.Fatalf("open schema db: %v", err)
	}
	db.SetMaxOpenConns(10)

	t.Cleanup(func() {
		closeQuietly(t, "schema db", db)
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, dropErr := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); dropErr != nil {
			t.Logf("warning: drop schema %s: %v", schema, dropErr)
		}
		closeQuietly(t, "admin db", admin)
	})

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer migrateCancel()
	if migrateErr := migrate.Run(migrateCtx, db); migrateErr != nil {
		t.Fatalf("run migrations in schema %s: %v", schema, migrateErr)
	}
	return db
}

// WithTestDB runs fn against a migrated per-test schema.
func WithTestDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	fn(SetupTestDB(t))
}

func openAndPing(t testing.TB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		skipOrFail(t, "TEST_REQUIRE_DB", "test database not available:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		closeQuietly(t, "admin db", db)
		skipOrFail(t, "TEST_REQUIRE_DB", "test database not available:", pingErr)
	}
	return db
}

// schemaName returns a unique lowercase schema name.
func schemaName() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

func closeQuietly(t testing.TB, name string, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		t.Logf("warning: close %s: %v", name, err)
	}
}
