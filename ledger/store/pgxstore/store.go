package pgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/ledger/store/dbrow"
)

// Sentinel errors for store operations
var (
	ErrTransactionFailed = errors.New("transaction failed")
	ErrQueryFailed       = errors.New("query failed")
	ErrCopyFailed        = errors.New("bulk copy operation failed")
	ErrInsertFailed      = errors.New("insert operation failed")
	ErrUpdateFailed      = errors.New("update operation failed")
)

const (
	selectPoolSQL = `
		SELECT id, coder,
			unclaimed_revenue::text AS unclaimed_revenue,
			undistributed::text AS undistributed,
			total_deposit::text AS total_deposit,
			acc_reward_per_share::text AS acc_reward_per_share,
			created_at
		FROM pools WHERE id = $1`

	selectPositionsSQL = `
		SELECT delegator, deposit::text AS deposit, reward_debt::text AS reward_debt
		FROM positions WHERE pool_id = $1`

	selectEscrowsSQL = `
		SELECT reviewer, version, royalty::text AS royalty, escrowed_at
		FROM review_escrows WHERE pool_id = $1 ORDER BY seq`

	selectTransfersSQL = `
		SELECT id::text AS id, group_id::text AS group_id, kind, pool_id, account, receiver,
			amount::text AS amount, reward::text AS reward, principal::text AS principal,
			escrow, outcome, issued_at
		FROM pending_transfers`

	insertPoolSQL = `
		INSERT INTO pools (id, coder, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`

	updatePoolSQL = `
		UPDATE pools SET
			coder = $2,
			unclaimed_revenue = $3,
			undistributed = $4,
			total_deposit = $5,
			acc_reward_per_share = $6,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	upsertTransferSQL = `
		INSERT INTO pending_transfers
			(id, group_id, kind, pool_id, account, receiver, amount, reward, principal, escrow, outcome, issued_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET outcome = EXCLUDED.outcome`
)

// Store implements ledger.Store interface using pgx
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store with an existing connection pool
// Returns the store and a closer function
func New(pool *pgxpool.Pool) (*Store, func()) {
	store := &Store{pool: pool}
	closer := func() {
		pool.Close()
	}
	return store, closer
}

// CreatePool inserts an empty pool
func (s *Store) CreatePool(ctx context.Context, pool ledger.Pool) error {
	tag, err := s.pool.Exec(ctx, insertPoolSQL, string(pool.ID), string(pool.Coder), pool.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsertFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrPoolExists
	}
	return nil
}

// Pool loads a pool with its positions and escrows from one snapshot
func (s *Store) Pool(ctx context.Context, id ledger.PoolID) (ledger.Pool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return ledger.Pool{}, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, _ := tx.Query(ctx, selectPoolSQL, string(id))
	poolRow, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[dbrow.Pool])
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Pool{}, ledger.ErrPoolNotFound
	}
	if err != nil {
		return ledger.Pool{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	rows, _ = tx.Query(ctx, selectPositionsSQL, string(id))
	positions, err := pgx.CollectRows(rows, pgx.RowToStructByName[dbrow.Position])
	if err != nil {
		return ledger.Pool{}, fmt.Errorf("%w: positions: %w", ErrQueryFailed, err)
	}

	rows, _ = tx.Query(ctx, selectEscrowsSQL, string(id))
	escrows, err := pgx.CollectRows(rows, pgx.RowToStructByName[dbrow.Escrow])
	if err != nil {
		return ledger.Pool{}, fmt.Errorf("%w: escrows: %w", ErrQueryFailed, err)
	}

	return dbrow.LedgerPool(poolRow, positions, escrows)
}

// Commit writes pool snapshots and pending transfer changes in one transaction.
// Positions and escrows of a committed pool are replaced wholesale using CopyFrom.
func (s *Store) Commit(ctx context.Context, c ledger.Commit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // No-op if commit succeeds

	if err := s.savePools(ctx, tx, c.Pools); err != nil {
		return err
	}
	if err := s.saveTransfers(ctx, tx, c.Issued, c.Resolved); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	return nil
}

func (s *Store) savePools(ctx context.Context, tx pgx.Tx, pools []ledger.Pool) error {
	if len(pools) == 0 {
		return nil
	}

	ids := make([]string, len(pools))
	for i, p := range pools {
		ids[i] = string(p.ID)
		tag, err := tx.Exec(ctx, updatePoolSQL,
			string(p.ID),
			string(p.Coder),
			dbrow.Numeric(p.UnclaimedRevenue),
			dbrow.Numeric(p.Undistributed),
			dbrow.Numeric(p.Delegation.TotalDeposit),
			dbrow.Numeric(p.Delegation.AccRewardPerShare),
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
		}
		if tag.RowsAffected() == 0 {
			return ledger.ErrPoolNotFound
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE pool_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM review_escrows WHERE pool_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	if rows := dbrow.PositionsToRows(pools); len(rows) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"positions"},
			[]string{"pool_id", "delegator", "deposit", "reward_debt"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("%w: positions: %w", ErrCopyFailed, err)
		}
	}
	if rows := dbrow.EscrowsToRows(pools); len(rows) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"review_escrows"},
			[]string{"pool_id", "reviewer", "seq", "version", "royalty", "escrowed_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("%w: escrows: %w", ErrCopyFailed, err)
		}
	}
	return nil
}

func (s *Store) saveTransfers(ctx context.Context, tx pgx.Tx, issued []ledger.PendingTransfer, resolved []uuid.UUID) error {
	batch := &pgx.Batch{}
	for _, t := range issued {
		args, err := dbrow.TransferArgs(t)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInsertFailed, err)
		}
		batch.Queue(upsertTransferSQL, args...)
	}
	if len(resolved) > 0 {
		ids := make([]string, len(resolved))
		for i, id := range resolved {
			ids[i] = id.String()
		}
		batch.Queue(`DELETE FROM pending_transfers WHERE id = ANY($1::uuid[])`, ids)
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrInsertFailed, err)
	}
	return nil
}

// PendingTransfer loads one in-flight transfer
func (s *Store) PendingTransfer(ctx context.Context, id uuid.UUID) (ledger.PendingTransfer, error) {
	rows, _ := s.pool.Query(ctx, selectTransfersSQL+` WHERE id = $1::uuid`, id.String())
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[dbrow.Transfer])
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.PendingTransfer{}, ledger.ErrUnknownTransfer
	}
	if err != nil {
		return ledger.PendingTransfer{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return dbrow.LedgerTransfer(row)
}

// PendingTransfers lists in-flight transfers, oldest first
func (s *Store) PendingTransfers(ctx context.Context) ([]ledger.PendingTransfer, error) {
	rows, _ := s.pool.Query(ctx, selectTransfersSQL+` ORDER BY issued_at, id`)
	transferRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[dbrow.Transfer])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	transfers := make([]ledger.PendingTransfer, 0, len(transferRows))
	for _, row := range transferRows {
		t, err := dbrow.LedgerTransfer(row)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, nil
}
