package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/peterldowns/pgtestdb"
	"github.com/peterldowns/pgtestdb/migrators/sqlmigrator"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/ledger/store/pgxstore"
	"github.com/screwyprof/ticle/pkg/pgxdb"
)

// Migration constants
const (
	migrationsTableName = "schema_migrations"
	schemaHashPrefix    = "schema_only_"
	seededHashPrefix    = "seeded_demo_"
)

// Migration-related errors
var (
	ErrMigrationExecution = errors.New("migration execution failed")
	ErrSeedFailed         = errors.New("demo seeding failed")
)

// SchemaMigrator applies only database schema migrations
// Used for production and tests that need schema-only setup
type SchemaMigrator struct {
	migrationsDir string
}

// NewSchemaMigrator creates a migrator that applies schema migrations only
func NewSchemaMigrator(migrationsDir string) *SchemaMigrator {
	return &SchemaMigrator{
		migrationsDir: migrationsDir,
	}
}

func (m *SchemaMigrator) Hash() (string, error) {
	baseHash, err := migrationsHash(m.migrationsDir)
	if err != nil {
		return "", err
	}
	return schemaHashPrefix + baseHash, nil
}

func (m *SchemaMigrator) Migrate(ctx context.Context, db *sql.DB, conf pgtestdb.Config) error {
	return applyMigrations(db, m.migrationsDir)
}

// DemoPool describes a pool seeded with deposits
type DemoPool struct {
	ID       ledger.PoolID
	Coder    ledger.AccountID
	Deposits map[ledger.AccountID]uint256.Int
}

// SeededMigrator applies schema migrations + seeds a demo pool with deposits
// Used for tests and local environments that need realistic data to start from
type SeededMigrator struct {
	migrationsDir string
	demo          DemoPool
	seedTimeout   time.Duration
}

// NewSeededMigrator creates a migrator that applies schema + seeds demo data
func NewSeededMigrator(migrationsDir string, demo DemoPool, seedTimeout time.Duration) *SeededMigrator {
	return &SeededMigrator{
		migrationsDir: migrationsDir,
		demo:          demo,
		seedTimeout:   seedTimeout,
	}
}

func (m *SeededMigrator) Hash() (string, error) {
	baseHash, err := migrationsHash(m.migrationsDir)
	if err != nil {
		return "", err
	}

	parts := []string{seededHashPrefix + baseHash, string(m.demo.ID), string(m.demo.Coder)}
	for delegator, amount := range m.demo.Deposits {
		parts = append(parts, string(delegator)+"="+amount.Dec())
	}
	slices.Sort(parts[3:])
	return strings.Join(parts, "_"), nil
}

func (m *SeededMigrator) Migrate(ctx context.Context, db *sql.DB, conf pgtestdb.Config) error {
	if err := applyMigrations(db, m.migrationsDir); err != nil {
		return err
	}
	return m.seedDemoData(ctx, conf.URL())
}

// seedDemoData creates the demo pool through the ledger so the stored state
// is exactly what the service would have written.
func (m *SeededMigrator) seedDemoData(ctx context.Context, dbURL string) error {
	slog.InfoContext(ctx, "🌱 Seeding demo database with a delegation pool",
		"pool", m.demo.ID,
		"delegators", len(m.demo.Deposits),
		"timeout", m.seedTimeout)

	seedCtx, cancel := context.WithTimeout(ctx, m.seedTimeout)
	defer cancel()

	pool, err := pgxdb.NewConnection(seedCtx, dbURL)
	if err != nil {
		return err
	}
	store, storeCloser := pgxstore.New(pool)
	defer storeCloser()

	return SeedDemoPool(seedCtx, store, m.demo)
}

// SeedDemoPool creates the pool and applies its deposits. Deposits into a
// fresh pool carry no reward, so no external transfer is ever requested.
func SeedDemoPool(ctx context.Context, store ledger.Store, demo DemoPool) error {
	l := ledger.New(store, refuseTransfers{}, refuseSignatures{}, "", "")
	defer l.Close()

	if _, err := l.CreatePool(ctx, demo.Coder, demo.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrSeedFailed, err)
	}
	for delegator, amount := range demo.Deposits {
		if _, err := l.Deposit(ctx, delegator, demo.ID, amount); err != nil {
			return fmt.Errorf("%w: deposit for %s: %w", ErrSeedFailed, delegator, err)
		}
	}
	slog.InfoContext(ctx, "✅ Demo database seeding completed successfully")
	return nil
}

// ApplyMigrations applies database migrations using sql-migrate with the provided pgx pool
func ApplyMigrations(pool *pgxpool.Pool, migrationsDir string) error {
	// Create sql.DB from the pgx pool for sql-migrate
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	return applyMigrations(db, migrationsDir)
}

// applyMigrations applies database migrations using sql-migrate
func applyMigrations(db *sql.DB, migrationsDir string) error {
	source := &migrate.FileMigrationSource{Dir: migrationsDir}
	migrationSet := &migrate.MigrationSet{TableName: migrationsTableName}

	_, err := migrationSet.Exec(db, "postgres", source, migrate.Up)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationExecution, err)
	}
	return nil
}

func migrationsHash(migrationsDir string) (string, error) {
	source := &migrate.FileMigrationSource{Dir: migrationsDir}
	migrationSet := &migrate.MigrationSet{TableName: migrationsTableName}

	hash, err := sqlmigrator.New(source, migrationSet).Hash()
	if err != nil {
		return "", fmt.Errorf("failed to calculate migration hash for %s: %w", migrationsDir, err)
	}
	return hash, nil
}

// refuseTransfers fails any transfer; seeding never needs one.
type refuseTransfers struct{}

func (refuseTransfers) Transfer(context.Context, ledger.TransferRequest) error {
	return errors.New("seeding does not transfer tokens")
}

func (refuseTransfers) Burn(context.Context, ledger.BurnRequest) error {
	return errors.New("seeding does not burn tokens")
}

type refuseSignatures struct{}

func (refuseSignatures) Verify([]byte, string) bool { return false }
