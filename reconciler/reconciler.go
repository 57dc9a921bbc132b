package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/pkg/ftclient"
)

// Sentinel errors for failure cases
var (
	ErrListFailed    = errors.New("listing pending transfers failed")
	ErrStatusFailed  = errors.New("transfer status lookup failed")
	ErrResolveFailed = errors.New("resolving transfer failed")
)

// Default configuration values
const (
	DefaultPollInterval = 30 * time.Second
	DefaultStaleAfter   = 2 * time.Minute
)

// Client looks up transfer requests at the token service
// ------------------------------------------------------
type Client interface {
	Status(ctx context.Context, id string) (ftclient.RequestStatus, error)
}

// Ledger exposes the pending transfers and accepts their outcomes
type Ledger interface {
	PendingTransfers(ctx context.Context) ([]ledger.PendingTransfer, error)
	ResolveTransfer(ctx context.Context, id uuid.UUID, succeeded bool) error
}

// SyncResult contains the results of one reconciliation pass
type SyncResult struct {
	Checked  int
	Resolved int
}

// Clock abstracts time for production and testing
// ------------------------------------------------
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

// Event represents a service lifecycle event
// ------------------------------------------
type Event any

type RecoveryStarted struct {
	StartedAt time.Time
}

type RecoveryDone struct {
	Checked  int
	Resolved int
	Duration time.Duration
}

type RecoveryError struct {
	Err error
}

type TransferReconciled struct {
	ID        uuid.UUID
	Kind      ledger.TransferKind
	Succeeded bool
}

type PollingSyncCompleted struct {
	Checked  int
	Resolved int
}

type PollingStarted struct {
	Interval time.Duration
}

type PollingShutdown struct {
	Reason error // Why shutdown occurred (ctx.Err())
}

type PollingError struct {
	Err error
}
