package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ReviewRequest funds royalties for a set of reviewers of one pool version.
type ReviewRequest struct {
	Pool      PoolID
	Version   string
	Reviewers []AccountID
	Royalties []uint256.Int
	Signature string
}

// CanonicalReviewMessage renders the message the trusted signer signs for a
// review request, e.g.
//
//	alice-vapi,1.0,["bob.test", "charlie.test"],[U128(10000000), U128(10000000)]
func CanonicalReviewMessage(pool PoolID, version string, reviewers []AccountID, royalties []uint256.Int) []byte {
	ids := make([]string, len(reviewers))
	for i, r := range reviewers {
		ids[i] = strconv.Quote(string(r))
	}
	amounts := make([]string, len(royalties))
	for i, a := range royalties {
		amounts[i] = "U128(" + a.Dec() + ")"
	}

	var b strings.Builder
	b.WriteString(string(pool))
	b.WriteByte(',')
	b.WriteString(version)
	b.WriteString(",[")
	b.WriteString(strings.Join(ids, ", "))
	b.WriteString("],[")
	b.WriteString(strings.Join(amounts, ", "))
	b.WriteByte(']')
	return []byte(b.String())
}

// RequestReview escrows funding, received from sender, as royalties for the
// listed reviewers. The request must be signed by the trusted signer and the
// royalties must add up to the funding exactly.
//
// An existing escrow for a listed reviewer is overwritten and its royalty is
// credited back to the pool's owner revenue. The request is refused when any
// listed reviewer has a claim or cancel transfer in flight.
func (l *Ledger) RequestReview(ctx context.Context, sender AccountID, funding uint256.Int, req ReviewRequest) error {
	if len(req.Reviewers) != len(req.Royalties) {
		return fmt.Errorf("%w: %d reviewers, %d royalties", ErrLengthMismatch, len(req.Reviewers), len(req.Royalties))
	}
	if len(req.Reviewers) == 0 {
		return fmt.Errorf("%w: no reviewers", ErrInvalidCount)
	}
	if err := uniqueReviewers(req.Reviewers); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pool, err := l.loadPool(ctx, req.Pool)
	if err != nil {
		return err
	}
	if pool.Coder != sender {
		return fmt.Errorf("%w: only the coder can request reviews", ErrUnauthorized)
	}
	msg := CanonicalReviewMessage(req.Pool, req.Version, req.Reviewers, req.Royalties)
	if !l.verifier.Verify(msg, req.Signature) {
		return ErrInvalidSignature
	}
	for i, r := range req.Royalties {
		if r.IsZero() {
			return fmt.Errorf("%w: zero royalty for %s", ErrInvalidAmount, req.Reviewers[i])
		}
	}
	total, err := sumAmounts(req.Royalties)
	if err != nil {
		return err
	}
	if !total.Eq(&funding) {
		return fmt.Errorf("%w: royalties %s, funding %s", ErrAmountMismatch, total.Dec(), funding.Dec())
	}

	inFlight, err := l.escrowsInFlight(ctx, req.Pool)
	if err != nil {
		return err
	}
	for _, reviewer := range req.Reviewers {
		if inFlight[reviewer] {
			return fmt.Errorf("%w: %s in %s", ErrTransferInFlight, reviewer, req.Pool)
		}
	}
	now := l.clock.Now()
	for i, reviewer := range req.Reviewers {
		if replaced, ok := pool.Escrow(reviewer); ok {
			if pool.UnclaimedRevenue, err = addAmounts(pool.UnclaimedRevenue, replaced.Royalty); err != nil {
				return err
			}
			l.log.InfoContext(ctx, "review escrow replaced",
				slog.String("pool", string(req.Pool)),
				slog.String("reviewer", string(reviewer)),
				slog.String("royalty", replaced.Royalty.Dec()),
			)
		}
		pool.putEscrow(ReviewerEscrow{
			Reviewer:   reviewer,
			Version:    req.Version,
			Royalty:    req.Royalties[i],
			EscrowedAt: now,
		})
	}

	if err := l.commit(ctx, Commit{Pools: []Pool{pool}}); err != nil {
		return err
	}
	l.emit(ctx, ReviewRequested{Pool: req.Pool, Version: req.Version, Reviewers: req.Reviewers, Funding: funding})
	return nil
}

// ClaimReviewReward pays the reviewer's royalty once the lock has elapsed. The
// escrow is removed when the transfer is confirmed.
func (l *Ledger) ClaimReviewReward(ctx context.Context, reviewer AccountID, id PoolID) (Payout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pool, err := l.loadPool(ctx, id)
	if err != nil {
		return Payout{}, err
	}
	escrow, ok := pool.Escrow(reviewer)
	if !ok {
		return Payout{}, fmt.Errorf("%w: %s in %s", ErrNotFound, reviewer, id)
	}
	if unlock := l.UnlocksAt(escrow); l.clock.Now().Before(unlock) {
		return Payout{}, fmt.Errorf("%w: unlocks at %s", ErrTooEarly, unlock.UTC().Format(time.RFC3339))
	}
	inFlight, err := l.escrowsInFlight(ctx, id)
	if err != nil {
		return Payout{}, err
	}
	if inFlight[reviewer] {
		return Payout{}, fmt.Errorf("%w: %s in %s", ErrTransferInFlight, reviewer, id)
	}

	t := l.newTransfer(KindReviewClaim, id, reviewer, reviewer, escrow.Royalty)
	t.Escrow = &escrow
	if err := l.commit(ctx, Commit{Issued: []PendingTransfer{t}}); err != nil {
		return Payout{}, err
	}
	return Payout{TransferID: t.ID, Amount: escrow.Royalty}, l.dispatch(ctx, t)
}

// UnlocksAt returns when the escrowed royalty becomes claimable.
func (l *Ledger) UnlocksAt(e ReviewerEscrow) time.Time {
	return e.EscrowedAt.Add(l.reviewLock)
}

// CancelReceipt lists the refunds issued by one cancellation. They are
// confirmed as a group.
type CancelReceipt struct {
	GroupID uuid.UUID
	Refunds []Payout
}

// CancelReview removes up to three escrows and refunds their royalties. The
// escrows are removed up front and restored if their refund fails.
func (l *Ledger) CancelReview(ctx context.Context, caller AccountID, id PoolID, reviewers []AccountID) (CancelReceipt, error) {
	if len(reviewers) == 0 || len(reviewers) > MaxCancelReviewers {
		return CancelReceipt{}, fmt.Errorf("%w: %d, want 1 to %d", ErrInvalidCount, len(reviewers), MaxCancelReviewers)
	}
	if err := uniqueReviewers(reviewers); err != nil {
		return CancelReceipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pool, err := l.loadPool(ctx, id)
	if err != nil {
		return CancelReceipt{}, err
	}
	if pool.Coder != caller {
		return CancelReceipt{}, fmt.Errorf("%w: only the coder can cancel reviews", ErrUnauthorized)
	}
	inFlight, err := l.escrowsInFlight(ctx, id)
	if err != nil {
		return CancelReceipt{}, err
	}

	group := l.newID()
	receipt := CancelReceipt{GroupID: group}
	transfers := make([]PendingTransfer, 0, len(reviewers))
	for _, reviewer := range reviewers {
		escrow, ok := pool.Escrow(reviewer)
		if !ok {
			return CancelReceipt{}, fmt.Errorf("%w: %s in %s", ErrNotFound, reviewer, id)
		}
		if inFlight[reviewer] {
			return CancelReceipt{}, fmt.Errorf("%w: %s in %s", ErrTransferInFlight, reviewer, id)
		}

		receiver := reviewer
		if l.refundPolicy == RefundCoder {
			receiver = pool.Coder
		}
		t := l.newTransfer(KindReviewCancel, id, reviewer, receiver, escrow.Royalty)
		t.GroupID = group
		t.Escrow = &escrow
		transfers = append(transfers, t)
		receipt.Refunds = append(receipt.Refunds, Payout{TransferID: t.ID, Amount: escrow.Royalty})
		pool.removeEscrow(reviewer)
	}

	if err := l.commit(ctx, Commit{Pools: []Pool{pool}, Issued: transfers}); err != nil {
		return CancelReceipt{}, err
	}
	l.emit(ctx, ReviewCancelled{Pool: id, Reviewers: reviewers, GroupID: group})
	return receipt, l.dispatch(ctx, transfers...)
}

// escrowsInFlight returns the reviewers of the pool with an unresolved claim
// or cancellation.
func (l *Ledger) escrowsInFlight(ctx context.Context, id PoolID) (map[AccountID]bool, error) {
	pending, err := l.store.PendingTransfers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	inFlight := map[AccountID]bool{}
	for _, p := range pending {
		if p.Pool != id || p.Outcome != OutcomePending {
			continue
		}
		if p.Kind == KindReviewClaim || p.Kind == KindReviewCancel {
			inFlight[p.Account] = true
		}
	}
	return inFlight, nil
}

func uniqueReviewers(reviewers []AccountID) error {
	seen := make(map[AccountID]struct{}, len(reviewers))
	for _, r := range reviewers {
		if _, ok := seen[r]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateReviewer, r)
		}
		seen[r] = struct{}{}
	}
	return nil
}
