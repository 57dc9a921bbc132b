package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"
)

// SettlementReport describes a best-effort settlement batch.
type SettlementReport struct {
	Applied []PoolID
	Failed  map[PoolID]error
	// Refund is the sum of amounts belonging to pools that were not applied.
	Refund uint256.Int
	Burn   Payout
}

// Settle distributes revenue received from the ledger owner over the named
// pools. Every pool is applied on its own: a failing pool is reported and
// refunded while the others stay applied. The burn shares of the applied
// pools are retired by one trailing burn.
func (l *Ledger) Settle(ctx context.Context, caller AccountID, pools []PoolID, amounts []uint256.Int) (SettlementReport, error) {
	if caller != l.owner {
		return SettlementReport{}, fmt.Errorf("%w: only the ledger owner can settle", ErrUnauthorized)
	}
	if len(pools) != len(amounts) {
		return SettlementReport{}, fmt.Errorf("%w: %d pools, %d amounts", ErrLengthMismatch, len(pools), len(amounts))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	report := SettlementReport{Failed: map[PoolID]error{}}
	var (
		burn uint256.Int
		errs []error
	)
	for i, id := range pools {
		next, err := l.settlePool(ctx, id, amounts[i], burn)
		if err != nil {
			l.log.WarnContext(ctx, "settlement skipped pool",
				slog.String("pool", string(id)),
				slog.String("amount", amounts[i].Dec()),
				slog.Any("error", err),
			)
			report.Failed[id] = err
			if refund, rerr := addAmounts(report.Refund, amounts[i]); rerr == nil {
				report.Refund = refund
			}
			errs = append(errs, fmt.Errorf("pool %s: %w", id, err))
			l.emit(ctx, SettlementPoolFailed{Pool: id, Amount: amounts[i], Err: err})
			continue
		}
		burn = next
		report.Applied = append(report.Applied, id)
	}

	if burn.IsZero() {
		return report, errors.Join(errs...)
	}
	t := l.newTransfer(KindBurn, "", l.owner, "", burn)
	if err := l.commit(ctx, Commit{Issued: []PendingTransfer{t}}); err != nil {
		l.log.ErrorContext(ctx, "ledger diverged from token transfers",
			slog.String("kind", string(KindBurn)),
			slog.String("lost", burn.Dec()),
			slog.Any("error", err),
		)
		l.emit(ctx, LedgerDiverged{Transfer: t, Lost: burn, Reason: err.Error()})
		return report, errors.Join(append(errs, fmt.Errorf("%w: burn %s not recorded: %w", ErrLedgerDiverged, burn.Dec(), err))...)
	}
	report.Burn = Payout{TransferID: t.ID, Amount: burn}
	if err := l.dispatch(ctx, t); err != nil {
		errs = append(errs, err)
	}
	return report, errors.Join(errs...)
}

// settlePool applies one pool's share of a batch and returns the running burn total.
func (l *Ledger) settlePool(ctx context.Context, id PoolID, amount, burn uint256.Int) (uint256.Int, error) {
	pool, err := l.loadPool(ctx, id)
	if err != nil {
		return uint256.Int{}, err
	}

	delegatorShare := percentOf(amount, DelegatorSharePercent)
	burnShare := percentOf(amount, BurnSharePercent)
	var ownerShare uint256.Int
	ownerShare.Sub(&amount, &delegatorShare)
	ownerShare.Sub(&ownerShare, &burnShare)

	nextBurn, err := addAmounts(burn, burnShare)
	if err != nil {
		return uint256.Int{}, err
	}
	held, dust, err := l.inject(&pool, delegatorShare)
	if err != nil {
		return uint256.Int{}, err
	}
	revenue, err := sumAmounts([]uint256.Int{pool.UnclaimedRevenue, ownerShare, dust})
	if err != nil {
		return uint256.Int{}, err
	}
	pool.UnclaimedRevenue = revenue

	if err := l.commit(ctx, Commit{Pools: []Pool{pool}}); err != nil {
		return uint256.Int{}, err
	}
	l.emit(ctx, Settled{
		Pool:           id,
		Amount:         amount,
		DelegatorShare: delegatorShare,
		BurnShare:      burnShare,
		OwnerShare:     ownerShare,
		Held:           held,
	})
	return nextBurn, nil
}

// inject feeds the delegator share into the accumulator, releasing any
// revenue held while the pool had no deposits. Truncation dust is returned so
// it can be credited to the owner.
func (l *Ledger) inject(pool *Pool, share uint256.Int) (held bool, dust uint256.Int, err error) {
	if pool.Delegation.TotalDeposit.IsZero() {
		if l.zeroPolicy == RejectUndistributed {
			return false, uint256.Int{}, ErrNoDelegators
		}
		undistributed, err := addAmounts(pool.Undistributed, share)
		if err != nil {
			return false, uint256.Int{}, err
		}
		pool.Undistributed = undistributed
		return true, uint256.Int{}, nil
	}

	share, err = addAmounts(share, pool.Undistributed)
	if err != nil {
		return false, uint256.Int{}, err
	}
	if dust, err = pool.Delegation.Inject(share); err != nil {
		return false, uint256.Int{}, err
	}
	pool.Undistributed = uint256.Int{}
	return false, dust, nil
}
