// Package ledger implements proportional reward accounting for delegation pools:
// accrual per share, settlement distribution, reviewer escrow and the two-phase
// protocol that keeps local balances in step with an external transfer service.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Validation errors: the operation was rejected and nothing changed.
var (
	ErrPoolNotFound        = errors.New("pool not found")
	ErrPoolExists          = errors.New("pool already exists")
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrLengthMismatch      = errors.New("list lengths do not match")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient deposited balance")
	ErrNoDelegators        = errors.New("pool has no delegators")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrAmountMismatch      = errors.New("royalty amounts do not match the funding amount")
	ErrNotFound            = errors.New("reviewer escrow not found")
	ErrTooEarly            = errors.New("review reward is still time-locked")
	ErrInvalidCount        = errors.New("invalid number of reviewers")
	ErrDuplicateReviewer   = errors.New("reviewer listed more than once")
	ErrOverflow            = errors.New("arithmetic out of range")
	ErrTransferInFlight    = errors.New("a transfer for this escrow is already in flight")
	ErrInvalidMessage      = errors.New("invalid transfer message")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidPoolID       = errors.New("invalid pool id")
)

// External outcome errors: something was accepted and the external leg failed.
var (
	// ErrTransferFailed means the external transfer failed and the ledger was
	// restored to reflect that no value moved.
	ErrTransferFailed = errors.New("external transfer failed")
	// ErrLedgerDiverged means the ledger moved and the paired external
	// transfer did not happen. It needs operator attention.
	ErrLedgerDiverged = errors.New("ledger diverged from external transfers")
	// ErrUnknownTransfer is returned when an outcome names no pending transfer.
	ErrUnknownTransfer = errors.New("unknown pending transfer")
	// ErrStoreFailed wraps persistence failures.
	ErrStoreFailed = errors.New("ledger store failed")
)

// ErrInvalidPolicy is returned when a policy name is not recognised.
var ErrInvalidPolicy = errors.New("invalid policy")

// ParseRefundPolicy parses a cancellation refund policy name.
func ParseRefundPolicy(s string) (RefundPolicy, error) {
	switch p := RefundPolicy(s); p {
	case RefundReviewer, RefundCoder:
		return p, nil
	}
	return "", fmt.Errorf("%w: refund %q", ErrInvalidPolicy, s)
}

// ParseZeroDelegatorPolicy parses a zero-delegator revenue policy name.
func ParseZeroDelegatorPolicy(s string) (ZeroDelegatorPolicy, error) {
	switch p := ZeroDelegatorPolicy(s); p {
	case HoldUndistributed, RejectUndistributed:
		return p, nil
	}
	return "", fmt.Errorf("%w: zero delegator %q", ErrInvalidPolicy, s)
}

// IsOutcomeRecorded reports whether ResolveTransfer recorded the reported
// outcome. A failure is recorded even though it returns ErrTransferFailed or
// ErrLedgerDiverged.
func IsOutcomeRecorded(err error) bool {
	return err == nil || errors.Is(err, ErrTransferFailed) || errors.Is(err, ErrLedgerDiverged)
}

// IsValidation reports whether err is a rejection that left the ledger untouched.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrPoolNotFound, ErrPoolExists, ErrUnauthorized, ErrLengthMismatch,
		ErrInvalidAmount, ErrInsufficientBalance, ErrNoDelegators, ErrInvalidSignature,
		ErrAmountMismatch, ErrNotFound, ErrTooEarly, ErrInvalidCount, ErrDuplicateReviewer,
		ErrOverflow, ErrTransferInFlight, ErrInvalidMessage, ErrInvalidToken, ErrInvalidPoolID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Default configuration values
const (
	DefaultReviewLock  = 14 * 24 * time.Hour
	DefaultEventBuffer = 256
	MaxCancelReviewers = 3
)

// Settlement split in percent of the settled amount. The owner keeps the rest.
const (
	DelegatorSharePercent = 39
	BurnSharePercent      = 1
)

// RefundPolicy selects who receives escrowed royalties on cancellation.
type RefundPolicy string

const (
	RefundReviewer RefundPolicy = "reviewer"
	RefundCoder    RefundPolicy = "coder"
)

// ZeroDelegatorPolicy selects what happens to delegator revenue injected into
// a pool that has no deposits.
type ZeroDelegatorPolicy string

const (
	// HoldUndistributed keeps the share in the pool's undistributed bucket and
	// releases it with the next injection that finds depositors.
	HoldUndistributed ZeroDelegatorPolicy = "hold"
	// RejectUndistributed fails the pool's settlement with ErrNoDelegators.
	RejectUndistributed ZeroDelegatorPolicy = "reject"
)

// Store persists pools and in-flight transfers
// ---------------------------------------------
type Store interface {
	// CreatePool inserts a new pool, failing with ErrPoolExists on duplicates.
	CreatePool(ctx context.Context, pool Pool) error
	// Pool loads a pool, failing with ErrPoolNotFound.
	Pool(ctx context.Context, id PoolID) (Pool, error)
	// Commit applies pool snapshots and pending transfer changes atomically.
	Commit(ctx context.Context, c Commit) error
	// PendingTransfer loads one in-flight transfer, failing with ErrUnknownTransfer.
	PendingTransfer(ctx context.Context, id uuid.UUID) (PendingTransfer, error)
	// PendingTransfers lists in-flight transfers, oldest first.
	PendingTransfers(ctx context.Context) ([]PendingTransfer, error)
}

// Commit is a single unit of work against the Store
type Commit struct {
	Pools    []Pool
	Issued   []PendingTransfer // inserted or replaced
	Resolved []uuid.UUID       // removed
}

// Transferer issues outbound value movements through the external token service.
// Both calls return once the request is accepted; the outcome is reported later
// through Ledger.ResolveTransfer with the same request id, never from within
// the call itself.
type Transferer interface {
	Transfer(ctx context.Context, req TransferRequest) error
	Burn(ctx context.Context, req BurnRequest) error
}

// TransferRequest asks the token service to move Amount to Receiver.
type TransferRequest struct {
	ID       uuid.UUID
	Receiver AccountID
	Amount   uint256.Int
	Memo     string
}

// BurnRequest asks the token service to retire Amount.
type BurnRequest struct {
	ID     uuid.UUID
	Amount uint256.Int
}

// Verifier checks off-chain signatures against the trusted signer key.
type Verifier interface {
	Verify(message []byte, signature string) bool
}

// Clock abstracts time for production and testing
type Clock interface {
	Now() time.Time
}
