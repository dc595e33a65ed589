// Package pgtest opens a migrated postgres pool for integration tests.
package pgtest

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
)

// lockAddr serializes integration tests across `go test ./...` package binaries.
const lockAddr = "127.0.0.1:45432"

// Acquire blocks until this process holds the cross-package database lock.
func Acquire() func() {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Pool skips the test when DATABASE_URL is unset. Otherwise it takes the lock, connects,
// applies migrations and releases everything on cleanup.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	release := Acquire()
	t.Cleanup(release)

	ctx := context.Background()
	pool, err := db.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}
