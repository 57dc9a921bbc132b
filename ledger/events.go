package ledger

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Event represents a ledger lifecycle event
// -----------------------------------------
type Event any

type PoolCreated struct {
	Pool  PoolID
	Coder AccountID
}

type OwnershipTransferred struct {
	Pool PoolID
	From AccountID
	To   AccountID
}

type Deposited struct {
	Pool       PoolID
	Delegator  AccountID
	Amount     uint256.Int
	Reward     uint256.Int
	TransferID uuid.UUID // zero when no reward was due
}

type RewardClaimed struct {
	Pool       PoolID
	Delegator  AccountID
	Amount     uint256.Int
	TransferID uuid.UUID
}

type Withdrawn struct {
	Pool       PoolID
	Delegator  AccountID
	Amount     uint256.Int
	Reward     uint256.Int
	TransferID uuid.UUID
}

type OwnerRevenueClaimed struct {
	Pool       PoolID
	Coder      AccountID
	Amount     uint256.Int
	TransferID uuid.UUID
}

type Settled struct {
	Pool           PoolID
	Amount         uint256.Int
	DelegatorShare uint256.Int
	BurnShare      uint256.Int
	OwnerShare     uint256.Int
	Held           bool // delegator share went to the undistributed bucket
}

type SettlementPoolFailed struct {
	Pool   PoolID
	Amount uint256.Int
	Err    error
}

type ReviewRequested struct {
	Pool      PoolID
	Version   string
	Reviewers []AccountID
	Funding   uint256.Int
}

type ReviewClaimed struct {
	Pool       PoolID
	Reviewer   AccountID
	Amount     uint256.Int
	TransferID uuid.UUID
}

type ReviewCancelled struct {
	Pool      PoolID
	Reviewers []AccountID
	GroupID   uuid.UUID
}

type TransferIssued struct {
	Transfer PendingTransfer
}

type TransferConfirmed struct {
	Transfer PendingTransfer
}

// TransferFailed is emitted when an external transfer failed and the ledger
// was restored.
type TransferFailed struct {
	Transfer PendingTransfer
	Err      error
}

// LedgerDiverged is emitted when the ledger moved but the paired external
// transfer did not happen and could not be compensated.
type LedgerDiverged struct {
	Transfer PendingTransfer
	Lost     uint256.Int
	Reason   string
}
