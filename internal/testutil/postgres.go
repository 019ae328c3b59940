// Package testutil connects integration tests to the services they need.
// Tests that call into it are skipped unless the *_TEST environment
// variables are set.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/estore/internal/config"
	"github.com/vasiliy-maslov/estore/internal/db"
)

func PostgresConfig() (config.PostgresConfig, bool) {
	host := os.Getenv("DB_HOST_TEST")
	if host == "" {
		return config.PostgresConfig{}, false
	}

	cfg := config.PostgresConfig{
		Host:            host,
		Port:            getenv("DB_PORT_TEST", "5432"),
		User:            getenv("DB_USER_TEST", "postgres"),
		Password:        getenv("DB_PASSWORD_TEST", "postgres"),
		DBName:          getenv("DB_NAME_TEST", "estore_test"),
		SSLMode:         getenv("DB_SSLMODE_TEST", "disable"),
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MigrationsPath:  migrationsPath(),
	}
	return cfg, true
}

// Postgres returns a pool on a migrated test database with every table
// truncated, and truncates again when the test ends.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	cfg, ok := PostgresConfig()
	if !ok {
		t.Skip("DB_HOST_TEST not set, skipping PostgreSQL integration test")
	}

	if err := db.MigrateUp(cfg); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	pg, err := db.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	truncate(t, pg.Pool)
	t.Cleanup(func() {
		truncate(t, pg.Pool)
		pg.Close()
	})

	return pg.Pool
}

func Redis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR_TEST")
	if addr == "" {
		t.Skip("REDIS_ADDR_TEST not set, skipping Redis integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to connect to test redis: %v", err)
	}

	client.FlushDB(context.Background())
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		_ = client.Close()
	})

	return client
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		"TRUNCATE TABLE order_status_history, payments, orders, products, categories, users RESTART IDENTITY CASCADE")
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
}

func migrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
