package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/holiman/uint256"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/ledger/store/pgxstore"
	"github.com/screwyprof/ticle/migrator"
	"github.com/screwyprof/ticle/migrator/config"
	"github.com/screwyprof/ticle/pkg/logger"
	"github.com/screwyprof/ticle/pkg/pgxdb"
)

// These values are overridden at build time using -ldflags
var (
	version = "dev"
	date    = "unknown"
)

func main() {
	// Load configuration from environment
	cfg := config.New()

	// Initialize logger and set as default
	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
	})
	slog.SetDefault(log)

	log.Info("Starting database migrator service",
		slog.String("migrationsDir", cfg.MigrationsDir),
		slog.String("demoPool", cfg.DemoPoolID),
		slog.String("version", version),
		slog.String("date", date),
	)

	// Create a context that cancels on SIGINT/SIGTERM _or_ when the timeout elapses
	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(baseCtx, cfg.OperationTimeout)
	defer cancel()

	db, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	log.Info("Applying database migrations")
	if err := migrator.ApplyMigrations(db, cfg.MigrationsDir); err != nil {
		log.Error("Failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("Database migrations applied successfully")

	if cfg.DemoPoolID != "" {
		demo, err := demoPool(cfg)
		if err != nil {
			log.Error("Invalid demo pool configuration", slog.Any("error", err))
			os.Exit(1)
		}

		store, _ := pgxstore.New(db)
		seedCtx, seedCancel := context.WithTimeout(ctx, cfg.SeedTimeout)
		defer seedCancel()

		if err := migrator.SeedDemoPool(seedCtx, store, demo); err != nil {
			log.Error("Failed to seed demo pool", slog.Any("error", err))
			os.Exit(1)
		}
	}

	log.Info("Database migrator completed successfully")
}

func demoPool(cfg config.Config) (migrator.DemoPool, error) {
	demo := migrator.DemoPool{
		ID:       ledger.PoolID(cfg.DemoPoolID),
		Coder:    ledger.AccountID(cfg.DemoCoder),
		Deposits: make(map[ledger.AccountID]uint256.Int, len(cfg.DemoDeposits)),
	}
	for delegator, raw := range cfg.DemoDeposits {
		amount, err := ledger.ParseAmount(raw)
		if err != nil {
			return migrator.DemoPool{}, err
		}
		demo.Deposits[ledger.AccountID(delegator)] = amount
	}
	return demo, nil
}
