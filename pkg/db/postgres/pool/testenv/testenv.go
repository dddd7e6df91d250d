// Package testenv provides a postgres database for tests.
//
// Tests using it are skipped unless RELMON_TEST_POSTGRES is set
// to the DSN of a database which can be wiped freely.
package testenv

import (
	"context"
	"os"
	"testing"

	kpool "github.com/opst/relmon/pkg/db/postgres/pool"
)

const EnvDSN = "RELMON_TEST_POSTGRES"

// GetPool returns a pool to the test database.
//
// All tables are dropped before returning and after t.
func GetPool(ctx context.Context, t *testing.T) kpool.Pool {
	t.Helper()

	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s is not set", EnvDSN)
	}

	pool, err := kpool.Connect(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	DropTables(ctx, t, pool)
	t.Cleanup(func() {
		DropTables(context.WithoutCancel(ctx), t, pool)
		pool.Close()
	})
	return pool
}

func DropTables(ctx context.Context, t *testing.T, pool kpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(
		ctx, `DROP TABLE IF EXISTS "relmon", "schema_version" CASCADE`,
	); err != nil {
		t.Fatal(err)
	}
}
