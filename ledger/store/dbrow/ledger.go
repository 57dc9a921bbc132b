package dbrow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/screwyprof/ticle/ledger"
)

// Pool represents a pool record as stored in the database.
// Amounts are selected as text to keep full 256-bit precision.
type Pool struct {
	ID                string    `db:"id"`
	Coder             string    `db:"coder"`
	UnclaimedRevenue  string    `db:"unclaimed_revenue"`
	Undistributed     string    `db:"undistributed"`
	TotalDeposit      string    `db:"total_deposit"`
	AccRewardPerShare string    `db:"acc_reward_per_share"`
	CreatedAt         time.Time `db:"created_at"`
}

// Position represents a delegator position
type Position struct {
	Delegator  string `db:"delegator"`
	Deposit    string `db:"deposit"`
	RewardDebt string `db:"reward_debt"`
}

// Escrow represents a reviewer escrow. Timestamps are kept at the
// microsecond precision of the database in both places an escrow is stored.
type Escrow struct {
	Reviewer   string    `db:"reviewer" json:"reviewer"`
	Version    string    `db:"version" json:"version"`
	Royalty    string    `db:"royalty" json:"royalty"`
	EscrowedAt time.Time `db:"escrowed_at" json:"escrowed_at"`
}

// Transfer represents a pending transfer
type Transfer struct {
	ID        string    `db:"id"`
	GroupID   string    `db:"group_id"`
	Kind      string    `db:"kind"`
	PoolID    string    `db:"pool_id"`
	Account   string    `db:"account"`
	Receiver  string    `db:"receiver"`
	Amount    string    `db:"amount"`
	Reward    string    `db:"reward"`
	Principal string    `db:"principal"`
	Escrow    []byte    `db:"escrow"`
	Outcome   string    `db:"outcome"`
	IssuedAt  time.Time `db:"issued_at"`
}

// Numeric converts an amount into a value pgx can copy into a NUMERIC column
func Numeric(v uint256.Int) pgtype.Numeric {
	return pgtype.Numeric{Int: v.ToBig(), Exp: 0, Valid: true}
}

// LedgerPool assembles a domain pool from its rows
func LedgerPool(p Pool, positions []Position, escrows []Escrow) (ledger.Pool, error) {
	pool := ledger.NewPool(ledger.PoolID(p.ID), ledger.AccountID(p.Coder), p.CreatedAt)

	var err error
	if pool.UnclaimedRevenue, err = amount("unclaimed_revenue", p.UnclaimedRevenue); err != nil {
		return ledger.Pool{}, err
	}
	if pool.Undistributed, err = amount("undistributed", p.Undistributed); err != nil {
		return ledger.Pool{}, err
	}
	if pool.Delegation.TotalDeposit, err = amount("total_deposit", p.TotalDeposit); err != nil {
		return ledger.Pool{}, err
	}
	if pool.Delegation.AccRewardPerShare, err = amount("acc_reward_per_share", p.AccRewardPerShare); err != nil {
		return ledger.Pool{}, err
	}

	for _, row := range positions {
		var pos ledger.Position
		if pos.Deposit, err = amount("deposit", row.Deposit); err != nil {
			return ledger.Pool{}, err
		}
		if pos.RewardDebt, err = amount("reward_debt", row.RewardDebt); err != nil {
			return ledger.Pool{}, err
		}
		pool.Delegation.Positions[ledger.AccountID(row.Delegator)] = pos
	}

	for _, row := range escrows {
		e, err := LedgerEscrow(row)
		if err != nil {
			return ledger.Pool{}, err
		}
		pool.Reviews = append(pool.Reviews, e)
	}
	return pool, nil
}

// LedgerEscrow converts an escrow row to the domain type
func LedgerEscrow(row Escrow) (ledger.ReviewerEscrow, error) {
	royalty, err := amount("royalty", row.Royalty)
	if err != nil {
		return ledger.ReviewerEscrow{}, err
	}
	return ledger.ReviewerEscrow{
		Reviewer:   ledger.AccountID(row.Reviewer),
		Version:    row.Version,
		Royalty:    royalty,
		EscrowedAt: row.EscrowedAt,
	}, nil
}

// PositionsToRows converts pool positions to [][]any for pgx.CopyFromRows
func PositionsToRows(pools []ledger.Pool) [][]any {
	var rows [][]any
	for _, p := range pools {
		for delegator, pos := range p.Delegation.Positions {
			rows = append(rows, []any{
				string(p.ID),
				string(delegator),
				Numeric(pos.Deposit),
				Numeric(pos.RewardDebt),
			})
		}
	}
	return rows
}

// EscrowsToRows converts pool escrows to [][]any for pgx.CopyFromRows,
// keeping insertion order in seq
func EscrowsToRows(pools []ledger.Pool) [][]any {
	var rows [][]any
	for _, p := range pools {
		for i, e := range p.Reviews {
			rows = append(rows, []any{
				string(p.ID),
				string(e.Reviewer),
				int32(i),
				e.Version,
				Numeric(e.Royalty),
				e.EscrowedAt.Truncate(time.Microsecond),
			})
		}
	}
	return rows
}

// TransferArgs converts a pending transfer into insert arguments
func TransferArgs(t ledger.PendingTransfer) ([]any, error) {
	var escrow []byte
	if t.Escrow != nil {
		var err error
		escrow, err = json.Marshal(Escrow{
			Reviewer:   string(t.Escrow.Reviewer),
			Version:    t.Escrow.Version,
			Royalty:    t.Escrow.Royalty.Dec(),
			EscrowedAt: t.Escrow.EscrowedAt.Truncate(time.Microsecond),
		})
		if err != nil {
			return nil, err
		}
	}
	return []any{
		t.ID.String(),
		t.GroupID.String(),
		string(t.Kind),
		string(t.Pool),
		string(t.Account),
		string(t.Receiver),
		Numeric(t.Amount),
		Numeric(t.Reward),
		Numeric(t.Principal),
		escrow,
		string(t.Outcome),
		t.IssuedAt,
	}, nil
}

// LedgerTransfer converts a pending transfer row to the domain type
func LedgerTransfer(row Transfer) (ledger.PendingTransfer, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return ledger.PendingTransfer{}, fmt.Errorf("transfer id %q: %w", row.ID, err)
	}
	group, err := uuid.Parse(row.GroupID)
	if err != nil {
		return ledger.PendingTransfer{}, fmt.Errorf("transfer group %q: %w", row.GroupID, err)
	}

	t := ledger.PendingTransfer{
		ID:       id,
		GroupID:  group,
		Kind:     ledger.TransferKind(row.Kind),
		Pool:     ledger.PoolID(row.PoolID),
		Account:  ledger.AccountID(row.Account),
		Receiver: ledger.AccountID(row.Receiver),
		Outcome:  ledger.Outcome(row.Outcome),
		IssuedAt: row.IssuedAt,
	}
	if t.Amount, err = amount("amount", row.Amount); err != nil {
		return ledger.PendingTransfer{}, err
	}
	if t.Reward, err = amount("reward", row.Reward); err != nil {
		return ledger.PendingTransfer{}, err
	}
	if t.Principal, err = amount("principal", row.Principal); err != nil {
		return ledger.PendingTransfer{}, err
	}
	if len(row.Escrow) > 0 {
		var e Escrow
		if err := json.Unmarshal(row.Escrow, &e); err != nil {
			return ledger.PendingTransfer{}, fmt.Errorf("transfer escrow: %w", err)
		}
		escrow, err := LedgerEscrow(e)
		if err != nil {
			return ledger.PendingTransfer{}, err
		}
		t.Escrow = &escrow
	}
	return t, nil
}

func amount(column, s string) (uint256.Int, error) {
	v, err := ledger.ParseAmount(s)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("column %s: %w", column, err)
	}
	return v, nil
}
