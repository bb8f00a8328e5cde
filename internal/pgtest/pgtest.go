// Package pgtest starts a disposable PostgreSQL container for store tests.
// Tests using it are skipped unless REMEDIATOR_PG_TESTS=1 because they need
// a running Docker daemon.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// EnvFlag enables container backed tests.
const EnvFlag = "REMEDIATOR_PG_TESTS"

// Pool returns a pool connected to a fresh database. The container is
// terminated when the test finishes.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv(EnvFlag) != "1" {
		t.Skipf("set %s=1 to run PostgreSQL tests", EnvFlag)
	}
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("remediator"),
		postgres.WithUsername("remediator"),
		postgres.WithPassword("remediator"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)
	return pool
}
