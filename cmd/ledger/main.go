package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/ledger/config"
	"github.com/screwyprof/ticle/ledger/ftgateway"
	"github.com/screwyprof/ticle/ledger/store/pgxstore"
	"github.com/screwyprof/ticle/migrator"
	"github.com/screwyprof/ticle/pkg/ed25519sig"
	"github.com/screwyprof/ticle/pkg/ftclient"
	"github.com/screwyprof/ticle/pkg/logger"
	"github.com/screwyprof/ticle/pkg/metrics"
	"github.com/screwyprof/ticle/pkg/pgxdb"
	"github.com/screwyprof/ticle/reconciler"
	"github.com/screwyprof/ticle/web/handler"
)

var (
	version = "dev"
	date    = "unknown"
)

const MetricsRoute = http.MethodGet + " " + "/metrics"

func main() {
	// Load configuration
	cfg := config.New()

	// Initialize logger and set as default
	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
	})
	slog.SetDefault(log)

	// Prepare context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfoContext(ctx, "Ledger service starting",
		slog.String("version", version),
		slog.String("date", date),
	)

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "Ledger service failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.InfoContext(ctx, "Ledger service exited gracefully")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	refundPolicy, err := ledger.ParseRefundPolicy(cfg.CancelRefund)
	if err != nil {
		return err
	}
	zeroPolicy, err := ledger.ParseZeroDelegatorPolicy(cfg.ZeroDelegatorPolicy)
	if err != nil {
		return err
	}
	verifier, err := ed25519sig.NewVerifier(cfg.SignerPublicKey)
	if err != nil {
		return fmt.Errorf("signer public key: %w", err)
	}

	// Initialize database connection
	db, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL, pgxdb.WithMaxConns(cfg.DatabaseMaxConns))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	log.InfoContext(ctx, "Applying database migrations", slog.String("dir", cfg.MigrationsDir))
	if err := migrator.ApplyMigrations(db, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	store, storeCloser := pgxstore.New(db)
	defer storeCloser()

	// Token transfer service
	httpClient := &http.Client{Timeout: cfg.TransferTimeout}
	ftClient := ftclient.NewClient(httpClient, cfg.TransferAPIURL)

	recorder := metrics.New()

	l := ledger.New(store, ftgateway.New(ftClient), verifier,
		ledger.AccountID(cfg.TokenID), ledger.AccountID(cfg.OwnerID),
		ledger.WithLogger(log),
		ledger.WithReviewLock(cfg.ReviewLock),
		ledger.WithRefundPolicy(refundPolicy),
		ledger.WithZeroDelegatorPolicy(zeroPolicy),
		ledger.WithEventBuffer(cfg.EventBuffer),
	)
	defer l.Close()

	pending, err := l.PendingTransfers(ctx)
	if err != nil {
		return fmt.Errorf("loading pending transfers: %w", err)
	}
	log.InfoContext(ctx, "Loaded pending transfers", slog.Int("count", len(pending)))

	ledgerSubCloser := setupLedgerEvents(ctx, l.Events(), log, newInFlight(recorder, pending))
	defer ledgerSubCloser()

	// HTTP surface
	mux := http.NewServeMux()
	handler.NewPools(l).AddRoutes(mux)
	handler.NewTokenCallbacks(l, ledger.AccountID(cfg.TokenID)).AddRoutes(mux)
	mux.Handle(MetricsRoute, recorder.Handler())

	addr := cfg.Addr()
	server := &http.Server{
		Addr:    addr,
		Handler: logger.NewMiddleware(log)(mux),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.InfoContext(gctx, "Server started", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		rec := reconciler.NewService(ftClient, l,
			reconciler.WithPollInterval(cfg.ReconcileInterval),
			reconciler.WithStaleAfter(cfg.ReconcileStaleAfter),
		)
		events, done := rec.Start(gctx)
		subCloser := setupReconcilerEvents(gctx, events, log)
		<-done
		subCloser()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.InfoContext(ctx, "Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// inFlight tracks transfers waiting for an outcome. It is only touched from
// the subscriber goroutine.
type inFlight struct {
	*metrics.Recorder
	ids map[uuid.UUID]struct{}
}

func newInFlight(recorder *metrics.Recorder, pending []ledger.PendingTransfer) *inFlight {
	f := &inFlight{Recorder: recorder, ids: make(map[uuid.UUID]struct{}, len(pending))}
	for _, p := range pending {
		f.ids[p.ID] = struct{}{}
	}
	f.SetInFlight(len(f.ids))
	return f
}

func (f *inFlight) issued(p ledger.PendingTransfer) {
	f.ids[p.ID] = struct{}{}
	f.TransferIssued(string(p.Kind))
	f.SetInFlight(len(f.ids))
}

// resolved reports whether p was in flight.
func (f *inFlight) resolved(p ledger.PendingTransfer, succeeded bool) bool {
	if _, ok := f.ids[p.ID]; !ok {
		return false
	}
	delete(f.ids, p.ID)
	f.TransferResolved(string(p.Kind), succeeded)
	f.SetInFlight(len(f.ids))
	return true
}

// setupLedgerEvents logs ledger events and feeds the metrics recorder
func setupLedgerEvents(ctx context.Context, events <-chan ledger.Event, log *slog.Logger, recorder *inFlight) func() {
	return ledger.NewSubscriber(events,
		ledger.OnPoolCreated(func(e ledger.PoolCreated) {
			recorder.Operation("create_pool")
			log.InfoContext(ctx, "Pool created",
				slog.String("pool", string(e.Pool)),
				slog.String("coder", string(e.Coder)),
			)
		}),
		ledger.OnOwnershipTransferred(func(e ledger.OwnershipTransferred) {
			recorder.Operation("transfer_ownership")
			log.InfoContext(ctx, "Pool ownership transferred",
				slog.String("pool", string(e.Pool)),
				slog.String("from", string(e.From)),
				slog.String("to", string(e.To)),
			)
		}),
		ledger.OnDeposited(func(e ledger.Deposited) {
			recorder.Operation("deposit")
			log.InfoContext(ctx, "Deposit accepted",
				slog.String("pool", string(e.Pool)),
				slog.String("delegator", string(e.Delegator)),
				slog.String("amount", e.Amount.Dec()),
				slog.String("reward", e.Reward.Dec()),
			)
		}),
		ledger.OnRewardClaimed(func(e ledger.RewardClaimed) {
			recorder.Operation("claim_reward")
			log.InfoContext(ctx, "Reward claimed",
				slog.String("pool", string(e.Pool)),
				slog.String("delegator", string(e.Delegator)),
				slog.String("amount", e.Amount.Dec()),
				slog.String("transferID", e.TransferID.String()),
			)
		}),
		ledger.OnWithdrawn(func(e ledger.Withdrawn) {
			recorder.Operation("withdraw")
			log.InfoContext(ctx, "Withdrawal accepted",
				slog.String("pool", string(e.Pool)),
				slog.String("delegator", string(e.Delegator)),
				slog.String("amount", e.Amount.Dec()),
				slog.String("reward", e.Reward.Dec()),
			)
		}),
		ledger.OnOwnerRevenueClaimed(func(e ledger.OwnerRevenueClaimed) {
			recorder.Operation("claim_owner_revenue")
			log.InfoContext(ctx, "Owner revenue claimed",
				slog.String("pool", string(e.Pool)),
				slog.String("coder", string(e.Coder)),
				slog.String("amount", e.Amount.Dec()),
			)
		}),
		ledger.OnSettled(func(e ledger.Settled) {
			recorder.PoolSettled(true)
			log.InfoContext(ctx, "Pool settled",
				slog.String("pool", string(e.Pool)),
				slog.String("amount", e.Amount.Dec()),
				slog.String("delegatorShare", e.DelegatorShare.Dec()),
				slog.String("burnShare", e.BurnShare.Dec()),
				slog.String("ownerShare", e.OwnerShare.Dec()),
				slog.Bool("held", e.Held),
			)
		}),
		ledger.OnSettlementPoolFailed(func(e ledger.SettlementPoolFailed) {
			recorder.PoolSettled(false)
			log.WarnContext(ctx, "Pool settlement failed",
				slog.String("pool", string(e.Pool)),
				slog.String("amount", e.Amount.Dec()),
				slog.Any("error", e.Err),
			)
		}),
		ledger.OnReviewRequested(func(e ledger.ReviewRequested) {
			recorder.Operation("request_review")
			log.InfoContext(ctx, "Review requested",
				slog.String("pool", string(e.Pool)),
				slog.String("version", e.Version),
				slog.Int("reviewers", len(e.Reviewers)),
				slog.String("funding", e.Funding.Dec()),
			)
		}),
		ledger.OnReviewClaimed(func(e ledger.ReviewClaimed) {
			recorder.Operation("claim_review_reward")
			log.InfoContext(ctx, "Review reward claimed",
				slog.String("pool", string(e.Pool)),
				slog.String("reviewer", string(e.Reviewer)),
				slog.String("amount", e.Amount.Dec()),
			)
		}),
		ledger.OnReviewCancelled(func(e ledger.ReviewCancelled) {
			recorder.Operation("cancel_review")
			log.InfoContext(ctx, "Reviews cancelled",
				slog.String("pool", string(e.Pool)),
				slog.Int("reviewers", len(e.Reviewers)),
				slog.String("groupID", e.GroupID.String()),
			)
		}),
		ledger.OnTransferIssued(func(e ledger.TransferIssued) {
			recorder.issued(e.Transfer)
			log.DebugContext(ctx, "Transfer issued",
				slog.String("transferID", e.Transfer.ID.String()),
				slog.String("kind", string(e.Transfer.Kind)),
				slog.String("amount", e.Transfer.Amount.Dec()),
			)
		}),
		ledger.OnTransferConfirmed(func(e ledger.TransferConfirmed) {
			recorder.resolved(e.Transfer, true)
			log.DebugContext(ctx, "Transfer confirmed",
				slog.String("transferID", e.Transfer.ID.String()),
				slog.String("kind", string(e.Transfer.Kind)),
			)
		}),
		ledger.OnTransferFailed(func(e ledger.TransferFailed) {
			recorder.resolved(e.Transfer, false)
			log.WarnContext(ctx, "Transfer failed, ledger restored",
				slog.String("transferID", e.Transfer.ID.String()),
				slog.String("kind", string(e.Transfer.Kind)),
				slog.Any("error", e.Err),
			)
		}),
		ledger.OnLedgerDiverged(func(e ledger.LedgerDiverged) {
			recorder.resolved(e.Transfer, false)
			recorder.Diverged(string(e.Transfer.Kind))
		}),
	)
}

// setupReconcilerEvents configures event handlers using slog directly
func setupReconcilerEvents(ctx context.Context, events <-chan reconciler.Event, log *slog.Logger) func() {
	return reconciler.NewSubscriber(events,
		reconciler.OnRecoveryStarted(func(e reconciler.RecoveryStarted) {
			log.InfoContext(ctx, "Transfer recovery started",
				slog.String("startedAt", e.StartedAt.Format(logger.BritishTimeFormat)),
			)
		}),
		reconciler.OnRecoveryDone(func(e reconciler.RecoveryDone) {
			log.InfoContext(ctx, "Transfer recovery completed",
				slog.Int("checked", e.Checked),
				slog.Int("resolved", e.Resolved),
				slog.Duration("duration", e.Duration),
			)
		}),
		reconciler.OnRecoveryError(func(e reconciler.RecoveryError) {
			log.ErrorContext(ctx, "Transfer recovery failed", slog.Any("error", e.Err))
		}),
		reconciler.OnTransferReconciled(func(e reconciler.TransferReconciled) {
			log.InfoContext(ctx, "Transfer reconciled",
				slog.String("transferID", e.ID.String()),
				slog.String("kind", string(e.Kind)),
				slog.Bool("succeeded", e.Succeeded),
			)
		}),
		reconciler.OnPollingStarted(func(e reconciler.PollingStarted) {
			log.InfoContext(ctx, "Reconciliation polling started",
				slog.Duration("interval", e.Interval),
			)
		}),
		reconciler.OnPollingSyncCompleted(func(e reconciler.PollingSyncCompleted) {
			if e.Checked > 0 {
				log.InfoContext(ctx, "Reconciliation cycle completed",
					slog.Int("checked", e.Checked),
					slog.Int("resolved", e.Resolved),
				)
			}
		}),
		reconciler.OnPollingShutdown(func(e reconciler.PollingShutdown) {
			log.InfoContext(ctx, "Reconciliation polling stopped",
				slog.String("reason", e.Reason.Error()),
			)
		}),
		reconciler.OnPollingError(func(e reconciler.PollingError) {
			log.ErrorContext(ctx, "Reconciliation cycle failed", slog.Any("error", e.Err))
		}),
	)
}
