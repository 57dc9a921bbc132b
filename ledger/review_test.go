package ledger_test

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/ticle/ledger"
)

func TestCanonicalReviewMessage(t *testing.T) {
	t.Parallel()

	msg := ledger.CanonicalReviewMessage(pool, "1.0",
		[]ledger.AccountID{bob, charlie},
		[]uint256.Int{oneToken, oneToken},
	)

	assert.Equal(t, `alice-vapi,1.0,["bob.test", "charlie.test"],[U128(10000000), U128(10000000)]`, string(msg))
}

func TestLedgerRequestReview(t *testing.T) {
	t.Parallel()

	t.Run("it escrows royalties for every reviewer", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)

		// Act
		l.requestReview(t, []ledger.AccountID{bob, charlie}, []uint256.Int{oneToken, amount("5")})

		// Assert
		got := l.pool(t)
		require.Len(t, got.Reviews, 2)
		assert.Equal(t, bob, got.Reviews[0].Reviewer)
		assert.Equal(t, "1.0", got.Reviews[0].Version)
		assert.Equal(t, epoch, got.Reviews[0].EscrowedAt)
		assert.Equal(t, "5", got.Reviews[1].Royalty.Dec())
		total, err := got.EscrowedTotal()
		require.NoError(t, err)
		assert.Equal(t, "10000005", total.Dec())
	})

	t.Run("it rejects a request with a bad signature", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		req := reviewRequest("1.0", []ledger.AccountID{bob}, []uint256.Int{oneToken})
		req.Version = "2.0"

		// Act
		err := l.RequestReview(t.Context(), coder, oneToken, req)

		// Assert
		require.ErrorIs(t, err, ledger.ErrInvalidSignature)
		assert.Empty(t, l.pool(t).Reviews)
	})

	t.Run("it rejects a request from anyone but the coder", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		req := reviewRequest("1.0", []ledger.AccountID{bob}, []uint256.Int{oneToken})

		// Act
		err := l.RequestReview(t.Context(), bob, oneToken, req)

		// Assert
		require.ErrorIs(t, err, ledger.ErrUnauthorized)
	})

	t.Run("it rejects royalties that do not add up to the funding", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		req := reviewRequest("1.0", []ledger.AccountID{bob}, []uint256.Int{oneToken})

		// Act
		err := l.RequestReview(t.Context(), coder, amount("10000001"), req)

		// Assert
		require.ErrorIs(t, err, ledger.ErrAmountMismatch)
	})

	t.Run("it rejects malformed reviewer lists", func(t *testing.T) {
		t.Parallel()

		tests := map[string]struct {
			reviewers []ledger.AccountID
			royalties []uint256.Int
			want      error
		}{
			"empty":        {want: ledger.ErrInvalidCount},
			"mismatched":   {reviewers: []ledger.AccountID{bob}, want: ledger.ErrLengthMismatch},
			"duplicated":   {reviewers: []ledger.AccountID{bob, bob}, royalties: []uint256.Int{oneToken, oneToken}, want: ledger.ErrDuplicateReviewer},
			"zero royalty": {reviewers: []ledger.AccountID{bob}, royalties: []uint256.Int{{}}, want: ledger.ErrInvalidAmount},
		}
		for name, tc := range tests {
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				// Arrange
				l := newLedger(t).withPool(t)
				req := reviewRequest("1.0", tc.reviewers, tc.royalties)

				// Act
				err := l.RequestReview(t.Context(), coder, uint256.Int{}, req)

				// Assert
				require.ErrorIs(t, err, tc.want)
			})
		}
	})

	t.Run("it credits a replaced escrow to the owner", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob}, []uint256.Int{amount("100")})

		// Act
		l.requestReview(t, []ledger.AccountID{bob}, []uint256.Int{amount("200")})

		// Assert
		got := l.pool(t)
		require.Len(t, got.Reviews, 1)
		assert.Equal(t, "200", got.Reviews[0].Royalty.Dec())
		assert.Equal(t, "100", got.UnclaimedRevenue.Dec())
	})

	t.Run("it refuses to replace an escrow whose transfer is in flight", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob}, []uint256.Int{amount("100")})
		l.clock.Advance(ledger.DefaultReviewLock + 24*time.Hour)
		_, err := l.ClaimReviewReward(t.Context(), bob, pool)
		require.NoError(t, err)
		royalties := []uint256.Int{amount("200")}

		// Act
		err = l.RequestReview(t.Context(), coder, amount("200"), reviewRequest("2.0", []ledger.AccountID{bob}, royalties))

		// Assert
		require.ErrorIs(t, err, ledger.ErrTransferInFlight)
		escrow, ok := l.escrow(t, bob)
		require.True(t, ok)
		assert.Equal(t, "100", escrow.Royalty.Dec())
		assert.Equal(t, "1.0", escrow.Version)
		assert.Equal(t, "0", dec(l.pool(t).UnclaimedRevenue))
	})
}

func TestLedgerClaimReviewReward(t *testing.T) {
	t.Parallel()

	t.Run("it keeps the royalty locked for the review period", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob}, []uint256.Int{oneToken})
		l.clock.Advance(ledger.DefaultReviewLock - time.Second)

		// Act
		_, err := l.ClaimReviewReward(t.Context(), bob, pool)

		// Assert
		require.ErrorIs(t, err, ledger.ErrTooEarly)
		assert.Empty(t, l.inFlight(t))
	})

	t.Run("it honours a custom review lock", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t, ledger.WithReviewLock(time.Hour)).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob}, []uint256.Int{oneToken})
		l.clock.Advance(time.Hour)

		// Act
		payout, err := l.ClaimReviewReward(t.Context(), bob, pool)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, oneToken, payout.Amount)
	})

	t.Run("it removes the escrow once the payout is confirmed", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob}, []uint256.Int{oneToken})
		l.clock.Advance(ledger.DefaultReviewLock)
		events := collectEvents(l)

		// Act
		payout, err := l.ClaimReviewReward(t.Context(), bob, pool)
		require.NoError(t, err)
		_, stillEscrowed := l.escrow(t, bob)
		require.NoError(t, resolve(t, l, payout.TransferID, true))

		// Assert
		assert.True(t, stillEscrowed)
		assert.Empty(t, l.pool(t).Reviews)
		claimed := eventsOf[ledger.ReviewClaimed](events())
		require.Len(t, claimed, 1)
		assert.Equal(t, payout.TransferID, claimed[0].TransferID)
	})

	t.Run("it refuses a second claim while the first is in flight", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob}, []uint256.Int{oneToken})
		l.clock.Advance(ledger.DefaultReviewLock)
		_, err := l.ClaimReviewReward(t.Context(), bob, pool)
		require.NoError(t, err)

		// Act
		_, err = l.ClaimReviewReward(t.Context(), bob, pool)

		// Assert
		require.ErrorIs(t, err, ledger.ErrTransferInFlight)
		assert.Len(t, l.transfers.transfers, 1)
	})

	t.Run("it keeps the escrow when the payout fails", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob}, []uint256.Int{oneToken})
		l.clock.Advance(ledger.DefaultReviewLock)
		payout, err := l.ClaimReviewReward(t.Context(), bob, pool)
		require.NoError(t, err)

		// Act
		err = resolve(t, l, payout.TransferID, false)

		// Assert
		require.ErrorIs(t, err, ledger.ErrTransferFailed)
		escrow, ok := l.escrow(t, bob)
		require.True(t, ok)
		assert.Equal(t, oneToken, escrow.Royalty)
		assert.Equal(t, "0", dec(l.pool(t).UnclaimedRevenue))
	})

	t.Run("it returns not found without an escrow", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)

		// Act
		_, err := l.ClaimReviewReward(t.Context(), bob, pool)

		// Assert
		require.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

func TestLedgerCancelReview(t *testing.T) {
	t.Parallel()

	t.Run("it refunds royalties to the reviewers by default", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob, charlie}, []uint256.Int{oneToken, amount("5")})

		// Act
		receipt, err := l.CancelReview(t.Context(), coder, pool, []ledger.AccountID{bob, charlie})

		// Assert
		require.NoError(t, err)
		require.Len(t, receipt.Refunds, 2)
		assert.Empty(t, l.pool(t).Reviews)
		require.Len(t, l.transfers.transfers, 2)
		assert.Equal(t, bob, l.transfers.transfers[0].Receiver)
		assert.Equal(t, charlie, l.transfers.transfers[1].Receiver)
		for _, p := range l.inFlight(t) {
			assert.Equal(t, receipt.GroupID, p.GroupID)
		}
	})

	t.Run("it refunds royalties to the coder under the coder policy", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t, ledger.WithRefundPolicy(ledger.RefundCoder)).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob}, []uint256.Int{oneToken})

		// Act
		_, err := l.CancelReview(t.Context(), coder, pool, []ledger.AccountID{bob})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, coder, l.transfers.lastTransfer(t).Receiver)
	})

	t.Run("it waits for the whole group before reconciling", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob, charlie}, []uint256.Int{oneToken, amount("5")})
		receipt, err := l.CancelReview(t.Context(), coder, pool, []ledger.AccountID{bob, charlie})
		require.NoError(t, err)

		// Act
		first := resolve(t, l, receipt.Refunds[0].TransferID, true)
		waiting := len(l.inFlight(t))
		second := resolve(t, l, receipt.Refunds[1].TransferID, false)

		// Assert
		require.NoError(t, first)
		assert.Equal(t, 2, waiting)
		require.ErrorIs(t, second, ledger.ErrTransferFailed)
		assert.Empty(t, l.inFlight(t))

		got := l.pool(t)
		require.Len(t, got.Reviews, 1)
		assert.Equal(t, charlie, got.Reviews[0].Reviewer)
	})

	t.Run("it rejects more than three reviewers", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)

		// Act
		_, err := l.CancelReview(t.Context(), coder, pool, []ledger.AccountID{"a", "b", "c", "d"})

		// Assert
		require.ErrorIs(t, err, ledger.ErrInvalidCount)
	})

	t.Run("it leaves every escrow in place when one reviewer is unknown", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob}, []uint256.Int{oneToken})

		// Act
		_, err := l.CancelReview(t.Context(), coder, pool, []ledger.AccountID{bob, charlie})

		// Assert
		require.ErrorIs(t, err, ledger.ErrNotFound)
		assert.Len(t, l.pool(t).Reviews, 1)
		assert.Empty(t, l.transfers.transfers)
	})

	t.Run("it accepts cancellations only from the coder", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.requestReview(t, []ledger.AccountID{bob}, []uint256.Int{oneToken})

		// Act
		_, err := l.CancelReview(t.Context(), bob, pool, []ledger.AccountID{bob})

		// Assert
		require.ErrorIs(t, err, ledger.ErrUnauthorized)
	})
}
