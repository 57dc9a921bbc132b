package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// TransferKind names the operation an outbound transfer settles
type TransferKind string

const (
	KindRewardClaim   TransferKind = "reward_claim"
	KindDepositPayout TransferKind = "deposit_payout"
	KindWithdraw      TransferKind = "withdraw"
	KindOwnerRevenue  TransferKind = "owner_revenue"
	KindReviewClaim   TransferKind = "review_claim"
	KindReviewCancel  TransferKind = "review_cancel"
	KindBurn          TransferKind = "burn"
)

// Outcome of an external transfer as reported by the token service
type Outcome string

const (
	OutcomePending   Outcome = ""
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// PendingTransfer is the continuation record carried across the suspension
// point between requesting an external transfer and learning its outcome.
type PendingTransfer struct {
	ID       uuid.UUID
	GroupID  uuid.UUID // transfers confirmed together share a group; equals ID otherwise
	Kind     TransferKind
	Pool     PoolID
	Account  AccountID // whose ledger state the transfer settles
	Receiver AccountID
	Amount   uint256.Int

	// Reward and Principal split Amount for compensation on failure.
	Reward    uint256.Int
	Principal uint256.Int
	// Escrow is the escrow snapshot for review claims and cancellations.
	Escrow *ReviewerEscrow

	Outcome  Outcome
	IssuedAt time.Time
}

// Payout reports a transfer an operation asked the token service to make
type Payout struct {
	TransferID uuid.UUID
	Amount     uint256.Int
}

// Issued reports whether any transfer was requested.
func (p Payout) Issued() bool {
	return p.TransferID != uuid.Nil
}

func (l *Ledger) newTransfer(kind TransferKind, pool PoolID, account, receiver AccountID, amount uint256.Int) PendingTransfer {
	id := l.newID()
	return PendingTransfer{
		ID:       id,
		GroupID:  id,
		Kind:     kind,
		Pool:     pool,
		Account:  account,
		Receiver: receiver,
		Amount:   amount,
		IssuedAt: l.clock.Now(),
	}
}

// dispatch requests already committed transfers from the token service. A
// request the service refuses outright is resolved as failed on the spot.
func (l *Ledger) dispatch(ctx context.Context, pending ...PendingTransfer) error {
	var errs []error
	for _, p := range pending {
		l.emit(ctx, TransferIssued{Transfer: p})

		err := l.request(ctx, p)
		if err == nil {
			continue
		}
		l.log.WarnContext(ctx, "transfer request refused",
			slog.String("transferID", p.ID.String()),
			slog.String("kind", string(p.Kind)),
			slog.Any("error", err),
		)
		if rerr := l.resolve(ctx, p.ID, OutcomeFailed); rerr != nil {
			errs = append(errs, fmt.Errorf("%w: %w", rerr, err))
		}
	}
	return errors.Join(errs...)
}

func (l *Ledger) request(ctx context.Context, p PendingTransfer) error {
	if p.Kind == KindBurn {
		return l.transfers.Burn(ctx, BurnRequest{ID: p.ID, Amount: p.Amount})
	}
	return l.transfers.Transfer(ctx, TransferRequest{
		ID:       p.ID,
		Receiver: p.Receiver,
		Amount:   p.Amount,
		Memo:     string(p.Kind) + ":" + string(p.Pool),
	})
}

// ResolveTransfer delivers the outcome of an external transfer.
//
// A nil error means the transfer succeeded, or that it belongs to a group
// still waiting for other outcomes. ErrTransferFailed means the ledger was
// restored as if the operation never happened; ErrLedgerDiverged means the
// ledger moved and value did not.
func (l *Ledger) ResolveTransfer(ctx context.Context, id uuid.UUID, succeeded bool) error {
	outcome := OutcomeFailed
	if succeeded {
		outcome = OutcomeSucceeded
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolve(ctx, id, outcome)
}

// PendingTransfers lists transfers still waiting for an outcome.
func (l *Ledger) PendingTransfers(ctx context.Context) ([]PendingTransfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.PendingTransfers(ctx)
}

func (l *Ledger) resolve(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	p, err := l.store.PendingTransfer(ctx, id)
	if err != nil {
		return err
	}
	if p.Outcome != OutcomePending {
		return fmt.Errorf("%w: %s already %s", ErrUnknownTransfer, id, p.Outcome)
	}
	p.Outcome = outcome

	group := []PendingTransfer{p}
	if p.GroupID != p.ID {
		if group, err = l.groupOf(ctx, p); err != nil {
			return err
		}
		waiting := slices.ContainsFunc(group, func(m PendingTransfer) bool { return m.Outcome == OutcomePending })
		if waiting {
			return l.commit(ctx, Commit{Issued: []PendingTransfer{p}})
		}
	}
	return l.finish(ctx, group)
}

func (l *Ledger) groupOf(ctx context.Context, p PendingTransfer) ([]PendingTransfer, error) {
	all, err := l.store.PendingTransfers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	var group []PendingTransfer
	for _, m := range all {
		if m.GroupID != p.GroupID {
			continue
		}
		if m.ID == p.ID {
			m = p
		}
		group = append(group, m)
	}
	return group, nil
}

// finish reconciles a fully resolved group in a single commit.
func (l *Ledger) finish(ctx context.Context, group []PendingTransfer) error {
	pools := map[PoolID]*Pool{}
	var order []PoolID
	poolFor := func(id PoolID) (*Pool, error) {
		if p, ok := pools[id]; ok {
			return p, nil
		}
		pool, err := l.loadPool(ctx, id)
		if err != nil {
			return nil, err
		}
		pools[id] = &pool
		order = append(order, id)
		return &pool, nil
	}

	var (
		events []Event
		errs   []error
		ids    []uuid.UUID
	)
	for _, p := range group {
		ids = append(ids, p.ID)
		if p.Outcome == OutcomeSucceeded {
			events = append(events, l.confirm(p, poolFor)...)
			continue
		}
		ev, err := l.compensate(p, poolFor)
		events = append(events, ev)
		errs = append(errs, err)
	}

	c := Commit{Resolved: ids}
	for _, id := range order {
		c.Pools = append(c.Pools, *pools[id])
	}
	if err := l.commit(ctx, c); err != nil {
		return err
	}
	for _, ev := range events {
		if d, ok := ev.(LedgerDiverged); ok {
			l.log.ErrorContext(ctx, "ledger diverged from token transfers",
				slog.String("transferID", d.Transfer.ID.String()),
				slog.String("kind", string(d.Transfer.Kind)),
				slog.String("pool", string(d.Transfer.Pool)),
				slog.String("lost", d.Lost.Dec()),
				slog.String("reason", d.Reason),
			)
		}
		l.emit(ctx, ev)
	}
	return errors.Join(errs...)
}

func (l *Ledger) confirm(p PendingTransfer, poolFor func(PoolID) (*Pool, error)) []Event {
	events := []Event{TransferConfirmed{Transfer: p}}
	if p.Kind != KindReviewClaim || p.Escrow == nil {
		return events
	}
	pool, err := poolFor(p.Pool)
	if err != nil {
		return events
	}
	// the entry may have been replaced by a newer review request meanwhile
	if current, ok := pool.Escrow(p.Account); ok && current.same(*p.Escrow) {
		pool.removeEscrow(p.Account)
	}
	return append(events, ReviewClaimed{Pool: p.Pool, Reviewer: p.Account, Amount: p.Amount, TransferID: p.ID})
}

// compensate undoes the local commit of a failed transfer where possible.
func (l *Ledger) compensate(p PendingTransfer, poolFor func(PoolID) (*Pool, error)) (Event, error) {
	diverged := func(lost uint256.Int, reason string) (Event, error) {
		return LedgerDiverged{Transfer: p, Lost: lost, Reason: reason},
			fmt.Errorf("%w: %s %s for %s in %s: %s", ErrLedgerDiverged, p.Kind, lost.Dec(), p.Account, p.Pool, reason)
	}
	failed := func() (Event, error) {
		err := fmt.Errorf("%w: %s %s to %s", ErrTransferFailed, p.Kind, p.Amount.Dec(), p.Receiver)
		return TransferFailed{Transfer: p, Err: err}, err
	}

	if p.Kind == KindBurn {
		return diverged(p.Amount, "settlement already distributed, burn not retired")
	}

	pool, err := poolFor(p.Pool)
	if err != nil {
		return diverged(p.Amount, err.Error())
	}
	// a newer review request may have taken the escrow slot meanwhile; the
	// royalty is then handed back to the pool owner
	creditOwner := func() (Event, error) {
		revenue, err := addAmounts(pool.UnclaimedRevenue, p.Amount)
		if err != nil {
			return diverged(p.Amount, err.Error())
		}
		pool.UnclaimedRevenue = revenue
		return failed()
	}

	switch p.Kind {
	case KindRewardClaim, KindDepositPayout, KindWithdraw:
		d := &pool.Delegation
		pending, err := d.Pending(p.Account)
		if err != nil {
			return diverged(p.Amount, err.Error())
		}
		if !p.Principal.IsZero() {
			if err := d.addPrincipal(p.Account, p.Principal); err != nil {
				return diverged(p.Amount, err.Error())
			}
		}
		owed, err := addAmounts(pending, p.Reward)
		if err != nil {
			return diverged(p.Reward, err.Error())
		}
		lost, err := d.restorePending(p.Account, owed)
		if err != nil {
			return diverged(p.Reward, err.Error())
		}
		if !lost.IsZero() {
			return diverged(lost, "position can no longer carry the unpaid reward")
		}
	case KindOwnerRevenue:
		return creditOwner()
	case KindReviewClaim:
		if current, ok := pool.Escrow(p.Account); !ok || p.Escrow == nil || !current.same(*p.Escrow) {
			return creditOwner()
		}
	case KindReviewCancel:
		if p.Escrow == nil {
			return creditOwner()
		}
		if _, taken := pool.Escrow(p.Escrow.Reviewer); taken {
			return creditOwner()
		}
		pool.putEscrow(*p.Escrow)
	}
	return failed()
}
