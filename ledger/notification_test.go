package ledger_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/ticle/ledger"
)

func TestParseMessage(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		msg  string
		want any
	}{
		"deposit": {
			msg:  `{"pool_id":"alice-vapi"}`,
			want: ledger.DepositMessage{PoolID: pool},
		},
		"settlement": {
			msg:  `{"pool_ids":["alice-vapi"],"amounts":["1000"]}`,
			want: ledger.SettlementMessage{PoolIDs: []ledger.PoolID{pool}, Amounts: []string{"1000"}},
		},
		"review request": {
			msg: `{"pool_id":"alice-vapi","version":"1.0","reviewer_ids":["bob.test"],"royalty_amounts":["5"],"signature":"sig"}`,
			want: ledger.RequestReviewMessage{
				PoolID:         pool,
				Version:        "1.0",
				ReviewerIDs:    []ledger.AccountID{bob},
				RoyaltyAmounts: []string{"5"},
				Signature:      "sig",
			},
		},
		"deposit with a null review field": {
			msg:  `{"pool_id":"alice-vapi","version":null}`,
			want: ledger.DepositMessage{PoolID: pool},
		},
	}
	for name, tc := range tests {
		t.Run("it parses a "+name+" message", func(t *testing.T) {
			t.Parallel()

			// Act
			got, err := ledger.ParseMessage(tc.msg)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("it rejects messages of no known shape", func(t *testing.T) {
		t.Parallel()

		for _, msg := range []string{`not json`, `[]`, `{"hello":"world"}`, `{"pool_ids":["a"]}`} {
			_, err := ledger.ParseMessage(msg)
			require.ErrorIs(t, err, ledger.ErrInvalidMessage, msg)
		}
	})
}

func TestLedgerOnTransfer(t *testing.T) {
	t.Parallel()

	notify := func(sender ledger.AccountID, v uint256.Int, msg string) ledger.TransferNotification {
		return ledger.TransferNotification{Token: tokenID, Sender: sender, Amount: v, Msg: msg}
	}

	t.Run("it deposits the transferred amount", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)

		// Act
		refund, err := l.OnTransfer(t.Context(), notify(bob, oneToken, `{"pool_id":"alice-vapi"}`))

		// Assert
		require.NoError(t, err)
		assert.True(t, refund.IsZero())
		assert.Equal(t, oneToken, l.position(t, bob).Deposit)
	})

	t.Run("it refunds a transfer beyond the U128 range", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		var huge uint256.Int
		huge.Lsh(uint256.NewInt(1), 128)

		// Act
		refund, err := l.OnTransfer(t.Context(), notify(bob, huge, `{"pool_id":"alice-vapi"}`))

		// Assert
		require.ErrorIs(t, err, ledger.ErrInvalidAmount)
		assert.Equal(t, huge, refund)
		assert.Empty(t, l.pool(t).Delegation.Positions)
	})

	t.Run("it refunds everything when the deposit is rejected", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t)

		// Act
		refund, err := l.OnTransfer(t.Context(), notify(bob, oneToken, `{"pool_id":"missing"}`))

		// Assert
		require.ErrorIs(t, err, ledger.ErrPoolNotFound)
		assert.Equal(t, oneToken, refund)
	})

	t.Run("it keeps the deposit when only its reward payout fails", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.deposit(t, bob, oneToken)
		l.settle(t, amount("1000"))
		l.transfers.refuseWith(errBusy)

		// Act
		refund, err := l.OnTransfer(t.Context(), notify(bob, oneToken, `{"pool_id":"alice-vapi"}`))

		// Assert
		require.ErrorIs(t, err, ledger.ErrTransferFailed)
		assert.True(t, refund.IsZero())
		assert.Equal(t, "20000000", dec(l.pool(t).Delegation.TotalDeposit))
	})

	t.Run("it refunds the remainder of a transfer larger than the batch", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		l.deposit(t, bob, oneToken)

		// Act
		refund, err := l.OnTransfer(t.Context(),
			notify(owner, amount("1500"), `{"pool_ids":["alice-vapi"],"amounts":["1000"]}`))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "500", refund.Dec())
		assert.Equal(t, "390", l.pending(t, bob))
	})

	t.Run("it refunds everything when the batch exceeds the transfer", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)

		// Act
		refund, err := l.OnTransfer(t.Context(),
			notify(owner, amount("999"), `{"pool_ids":["alice-vapi"],"amounts":["1000"]}`))

		// Assert
		require.ErrorIs(t, err, ledger.ErrAmountMismatch)
		assert.Equal(t, "999", refund.Dec())
	})

	t.Run("it refunds everything for a settlement from anyone but the owner", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)

		// Act
		refund, err := l.OnTransfer(t.Context(),
			notify(bob, amount("1000"), `{"pool_ids":["alice-vapi"],"amounts":["1000"]}`))

		// Assert
		require.ErrorIs(t, err, ledger.ErrUnauthorized)
		assert.Equal(t, "1000", refund.Dec())
	})

	t.Run("it escrows a signed review request", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		req := reviewRequest("1.0", []ledger.AccountID{bob}, []uint256.Int{oneToken})
		msg := `{"pool_id":"alice-vapi","version":"1.0","reviewer_ids":["bob.test"],` +
			`"royalty_amounts":["10000000"],"signature":"` + req.Signature + `"}`

		// Act
		refund, err := l.OnTransfer(t.Context(), notify(coder, oneToken, msg))

		// Assert
		require.NoError(t, err)
		assert.True(t, refund.IsZero())
		assert.Len(t, l.pool(t).Reviews, 1)
	})

	t.Run("it refunds a review request with a malformed royalty", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		msg := `{"pool_id":"alice-vapi","version":"1.0","reviewer_ids":["bob.test"],` +
			`"royalty_amounts":["ten"],"signature":"sig"}`

		// Act
		refund, err := l.OnTransfer(t.Context(), notify(coder, oneToken, msg))

		// Assert
		require.ErrorIs(t, err, ledger.ErrInvalidAmount)
		assert.Equal(t, oneToken, refund)
	})

	t.Run("it keeps a transfer without instruction", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t)

		// Act
		refund, err := l.OnTransfer(t.Context(), notify(bob, oneToken, "  "))

		// Assert
		require.NoError(t, err)
		assert.True(t, refund.IsZero())
	})

	t.Run("it rejects value moved by another token", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := newLedger(t).withPool(t)
		n := notify(bob, oneToken, `{"pool_id":"alice-vapi"}`)
		n.Token = "other-ft.test"

		// Act
		refund, err := l.OnTransfer(t.Context(), n)

		// Assert
		require.ErrorIs(t, err, ledger.ErrInvalidToken)
		assert.Equal(t, oneToken, refund)
		assert.Empty(t, l.pool(t).Delegation.Positions)
	})
}
