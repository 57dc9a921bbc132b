package migratortest

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screwyprof/ticle/migrator"
	"github.com/screwyprof/ticle/pkg/pgxdb/pgxdbtest"
)

// CreateLedgerTestDatabase creates a test database with the ledger schema applied.
// Returns the connection pool ready for use.
func CreateLedgerTestDatabase(t *testing.T, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	return pgxdbtest.CreateTestDatabase(t, migrator.NewSchemaMigrator(migrationsDir))
}

// CreateSeededTestDatabase creates a test database with the schema and a demo pool seeded.
// Returns the connection pool ready for use.
func CreateSeededTestDatabase(t *testing.T, migrationsDir string, demo migrator.DemoPool, seedTimeout time.Duration) *pgxpool.Pool {
	t.Helper()

	return pgxdbtest.CreateTestDatabase(t, migrator.NewSeededMigrator(migrationsDir, demo, seedTimeout))
}
