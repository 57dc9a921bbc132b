package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/screwyprof/ticle/pkg/clock"
)

// Option configures the Ledger
// ------------------------------------------------
type Option func(*Ledger)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithLogger sets the logger used for protocol warnings
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithReviewLock sets how long review royalties stay locked
func WithReviewLock(d time.Duration) Option {
	return func(l *Ledger) { l.reviewLock = d }
}

// WithRefundPolicy selects the receiver of cancelled royalties
func WithRefundPolicy(p RefundPolicy) Option {
	return func(l *Ledger) { l.refundPolicy = p }
}

// WithZeroDelegatorPolicy selects how revenue without depositors is treated
func WithZeroDelegatorPolicy(p ZeroDelegatorPolicy) Option {
	return func(l *Ledger) { l.zeroPolicy = p }
}

// WithEventBuffer sets the capacity of the events channel
func WithEventBuffer(n int) Option {
	return func(l *Ledger) { l.events = make(chan Event, n) }
}

// WithIDGenerator overrides transfer id generation
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(l *Ledger) { l.newID = fn }
}

// Ledger is the single writer over a set of pools
// -----------------------------------------------
// Every mutating operation runs under one lock, so pool state is processed
// strictly sequentially. The lock is never held while waiting for an external
// transfer outcome; outcomes come back through ResolveTransfer.
type Ledger struct {
	mu sync.Mutex

	store     Store
	transfers Transferer
	verifier  Verifier
	clock     Clock
	log       *slog.Logger
	newID     func() uuid.UUID

	tokenID      AccountID
	owner        AccountID
	reviewLock   time.Duration
	refundPolicy RefundPolicy
	zeroPolicy   ZeroDelegatorPolicy

	events chan Event
	closed bool
}

// New constructs a Ledger accepting tokenID and settled by owner.
//
// By default, it uses a real clock, a 14 day review lock, refunds cancelled
// royalties to reviewers and holds revenue that arrives without depositors.
func New(store Store, transfers Transferer, verifier Verifier, tokenID, owner AccountID, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		transfers:    transfers,
		verifier:     verifier,
		clock:        clock.SystemClock{},
		log:          slog.Default(),
		newID:        uuid.New,
		tokenID:      tokenID,
		owner:        owner,
		reviewLock:   DefaultReviewLock,
		refundPolicy: RefundReviewer,
		zeroPolicy:   HoldUndistributed,
		events:       make(chan Event, DefaultEventBuffer),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Events returns the lifecycle events channel. It is closed by Close.
func (l *Ledger) Events() <-chan Event {
	return l.events
}

// Close stops event delivery. Later operations still work but emit nothing.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
}

// emit never blocks the writer; a full buffer drops the event with a warning.
func (l *Ledger) emit(ctx context.Context, ev Event) {
	if l.closed {
		return
	}
	select {
	case l.events <- ev:
	default:
		l.log.WarnContext(ctx, "ledger event dropped", slog.String("event", fmt.Sprintf("%T", ev)))
	}
}

func (l *Ledger) loadPool(ctx context.Context, id PoolID) (Pool, error) {
	pool, err := l.store.Pool(ctx, id)
	if err != nil {
		return Pool{}, err
	}
	return pool.Clone(), nil
}

func (l *Ledger) commit(ctx context.Context, c Commit) error {
	if err := l.store.Commit(ctx, c); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	return nil
}

// CreatePool registers a new pool owned by caller.
func (l *Ledger) CreatePool(ctx context.Context, caller AccountID, id PoolID) (Pool, error) {
	if id == "" {
		return Pool{}, ErrInvalidPoolID
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	pool := NewPool(id, caller, l.clock.Now())
	if err := l.store.CreatePool(ctx, pool); err != nil {
		return Pool{}, err
	}
	l.emit(ctx, PoolCreated{Pool: id, Coder: caller})
	return pool, nil
}

// TransferOwnership hands the pool to a new coder. Only the current coder may call it.
func (l *Ledger) TransferOwnership(ctx context.Context, caller AccountID, id PoolID, newCoder AccountID) error {
	if newCoder == "" {
		return fmt.Errorf("%w: empty coder", ErrUnauthorized)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	pool, err := l.loadPool(ctx, id)
	if err != nil {
		return err
	}
	if pool.Coder != caller {
		return fmt.Errorf("%w: only the coder can transfer ownership", ErrUnauthorized)
	}
	previous := pool.Coder
	pool.Coder = newCoder
	if err := l.commit(ctx, Commit{Pools: []Pool{pool}}); err != nil {
		return err
	}
	l.emit(ctx, OwnershipTransferred{Pool: id, From: previous, To: newCoder})
	return nil
}

// Pool returns a snapshot of the pool.
func (l *Ledger) Pool(ctx context.Context, id PoolID) (Pool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadPool(ctx, id)
}
