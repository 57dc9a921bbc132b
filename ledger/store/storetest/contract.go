// Package storetest holds the behaviour every ledger.Store implementation must share.
package storetest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/ticle/ledger"
)

// Postgres keeps microseconds, so fixtures stay on that precision.
var createdAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Run exercises a store produced by newStore; every subtest gets a fresh one.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Helper()

	t.Run("it creates and loads an empty pool", func(t *testing.T) {
		// Arrange
		store := newStore(t)

		// Act
		err := store.CreatePool(t.Context(), ledger.NewPool("alice-vapi", "alice.test", createdAt))

		// Assert
		require.NoError(t, err)
		got, err := store.Pool(t.Context(), "alice-vapi")
		require.NoError(t, err)
		assert.Equal(t, ledger.AccountID("alice.test"), got.Coder)
		assert.True(t, createdAt.Equal(got.CreatedAt))
		assert.Empty(t, got.Delegation.Positions)
		assert.NotNil(t, got.Delegation.Positions)
		assert.Empty(t, got.Reviews)
	})

	t.Run("it rejects a duplicate pool", func(t *testing.T) {
		// Arrange
		store := newStore(t)
		require.NoError(t, store.CreatePool(t.Context(), ledger.NewPool("alice-vapi", "alice.test", createdAt)))

		// Act
		err := store.CreatePool(t.Context(), ledger.NewPool("alice-vapi", "bob.test", createdAt))

		// Assert
		require.ErrorIs(t, err, ledger.ErrPoolExists)
	})

	t.Run("it reports a missing pool", func(t *testing.T) {
		// Arrange
		store := newStore(t)

		// Act
		_, err := store.Pool(t.Context(), "missing")

		// Assert
		require.ErrorIs(t, err, ledger.ErrPoolNotFound)
	})

	t.Run("it round-trips a committed pool snapshot", func(t *testing.T) {
		// Arrange
		store := newStore(t)
		require.NoError(t, store.CreatePool(t.Context(), ledger.NewPool("alice-vapi", "alice.test", createdAt)))
		pool := populatedPool()

		// Act
		err := store.Commit(t.Context(), ledger.Commit{Pools: []ledger.Pool{pool}})

		// Assert
		require.NoError(t, err)
		got, err := store.Pool(t.Context(), "alice-vapi")
		require.NoError(t, err)
		assert.Equal(t, ledger.AccountID("bob.test"), got.Coder)
		assert.Equal(t, "600", got.UnclaimedRevenue.Dec())
		assert.Equal(t, "390", got.Undistributed.Dec())
		assert.Equal(t, pool.Delegation.TotalDeposit, got.Delegation.TotalDeposit)
		assert.Equal(t, pool.Delegation.AccRewardPerShare, got.Delegation.AccRewardPerShare)
		assert.Equal(t, pool.Delegation.Positions, got.Delegation.Positions)
		require.Len(t, got.Reviews, 2)
		assert.Equal(t, ledger.AccountID("dave.test"), got.Reviews[0].Reviewer)
		assert.Equal(t, ledger.AccountID("carol.test"), got.Reviews[1].Reviewer)
		assert.Equal(t, "2.1", got.Reviews[1].Version)
		assert.Equal(t, "5", got.Reviews[1].Royalty.Dec())
		assert.True(t, createdAt.Add(time.Hour).Equal(got.Reviews[1].EscrowedAt))
	})

	t.Run("it replaces positions and escrows wholesale", func(t *testing.T) {
		// Arrange
		store := newStore(t)
		require.NoError(t, store.CreatePool(t.Context(), ledger.NewPool("alice-vapi", "alice.test", createdAt)))
		pool := populatedPool()
		require.NoError(t, store.Commit(t.Context(), ledger.Commit{Pools: []ledger.Pool{pool}}))

		// Act
		delete(pool.Delegation.Positions, "bob.test")
		pool.Reviews = pool.Reviews[1:]
		err := store.Commit(t.Context(), ledger.Commit{Pools: []ledger.Pool{pool}})

		// Assert
		require.NoError(t, err)
		got, err := store.Pool(t.Context(), "alice-vapi")
		require.NoError(t, err)
		assert.Len(t, got.Delegation.Positions, 1)
		require.Len(t, got.Reviews, 1)
		assert.Equal(t, ledger.AccountID("carol.test"), got.Reviews[0].Reviewer)
	})

	t.Run("it applies nothing from a commit naming an unknown pool", func(t *testing.T) {
		// Arrange
		store := newStore(t)
		transfer := pendingTransfer(createdAt)

		// Act
		err := store.Commit(t.Context(), ledger.Commit{
			Pools:  []ledger.Pool{ledger.NewPool("missing", "alice.test", createdAt)},
			Issued: []ledger.PendingTransfer{transfer},
		})

		// Assert
		require.ErrorIs(t, err, ledger.ErrPoolNotFound)
		_, err = store.PendingTransfer(t.Context(), transfer.ID)
		require.ErrorIs(t, err, ledger.ErrUnknownTransfer)
	})

	t.Run("it round-trips a pending transfer", func(t *testing.T) {
		// Arrange
		store := newStore(t)
		transfer := pendingTransfer(createdAt)

		// Act
		err := store.Commit(t.Context(), ledger.Commit{Issued: []ledger.PendingTransfer{transfer}})

		// Assert
		require.NoError(t, err)
		got, err := store.PendingTransfer(t.Context(), transfer.ID)
		require.NoError(t, err)
		assertSameTransfer(t, transfer, got)
	})

	t.Run("it records an outcome on a reissued transfer", func(t *testing.T) {
		// Arrange
		store := newStore(t)
		transfer := pendingTransfer(createdAt)
		require.NoError(t, store.Commit(t.Context(), ledger.Commit{Issued: []ledger.PendingTransfer{transfer}}))

		// Act
		transfer.Outcome = ledger.OutcomeSucceeded
		err := store.Commit(t.Context(), ledger.Commit{Issued: []ledger.PendingTransfer{transfer}})

		// Assert
		require.NoError(t, err)
		got, err := store.PendingTransfer(t.Context(), transfer.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.OutcomeSucceeded, got.Outcome)
	})

	t.Run("it lists pending transfers oldest first and forgets resolved ones", func(t *testing.T) {
		// Arrange
		store := newStore(t)
		late := pendingTransfer(createdAt.Add(time.Minute))
		early := pendingTransfer(createdAt)
		resolved := pendingTransfer(createdAt.Add(time.Second))
		require.NoError(t, store.Commit(t.Context(), ledger.Commit{Issued: []ledger.PendingTransfer{late, early, resolved}}))

		// Act
		err := store.Commit(t.Context(), ledger.Commit{Resolved: []uuid.UUID{resolved.ID}})

		// Assert
		require.NoError(t, err)
		got, err := store.PendingTransfers(t.Context())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, early.ID, got[0].ID)
		assert.Equal(t, late.ID, got[1].ID)
	})

	t.Run("it reports an unknown transfer", func(t *testing.T) {
		// Arrange
		store := newStore(t)

		// Act
		_, err := store.PendingTransfer(t.Context(), uuid.New())

		// Assert
		require.ErrorIs(t, err, ledger.ErrUnknownTransfer)
	})
}

func populatedPool() ledger.Pool {
	pool := ledger.NewPool("alice-vapi", "bob.test", createdAt)
	pool.UnclaimedRevenue = *uint256.NewInt(600)
	pool.Undistributed = *uint256.NewInt(390)
	pool.Delegation.TotalDeposit = *uint256.NewInt(40_000_000)
	pool.Delegation.AccRewardPerShare = *uint256.NewInt(9_750_000)
	pool.Delegation.Positions["bob.test"] = ledger.Position{
		Deposit:    *uint256.NewInt(10_000_000),
		RewardDebt: *uint256.NewInt(97),
	}
	pool.Delegation.Positions["charlie.test"] = ledger.Position{
		Deposit:    *uint256.NewInt(30_000_000),
		RewardDebt: *uint256.NewInt(292),
	}
	pool.Reviews = []ledger.ReviewerEscrow{
		{Reviewer: "dave.test", Version: "2.0", Royalty: *uint256.NewInt(10_000_000), EscrowedAt: createdAt},
		{Reviewer: "carol.test", Version: "2.1", Royalty: *uint256.NewInt(5), EscrowedAt: createdAt.Add(time.Hour)},
	}
	return pool
}

func pendingTransfer(issuedAt time.Time) ledger.PendingTransfer {
	id := uuid.New()
	return ledger.PendingTransfer{
		ID:        id,
		GroupID:   id,
		Kind:      ledger.KindReviewCancel,
		Pool:      "alice-vapi",
		Account:   "carol.test",
		Receiver:  "alice.test",
		Amount:    *uint256.NewInt(5),
		Reward:    *uint256.NewInt(0),
		Principal: *uint256.NewInt(0),
		Escrow: &ledger.ReviewerEscrow{
			Reviewer:   "carol.test",
			Version:    "2.1",
			Royalty:    *uint256.NewInt(5),
			EscrowedAt: createdAt,
		},
		IssuedAt: issuedAt,
	}
}

func assertSameTransfer(t *testing.T, want, got ledger.PendingTransfer) {
	t.Helper()

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.GroupID, got.GroupID)
	assert.Equal(t, want.Kind, got.Kind)
	assert.Equal(t, want.Pool, got.Pool)
	assert.Equal(t, want.Account, got.Account)
	assert.Equal(t, want.Receiver, got.Receiver)
	assert.Equal(t, want.Amount, got.Amount)
	assert.Equal(t, want.Reward, got.Reward)
	assert.Equal(t, want.Principal, got.Principal)
	assert.Equal(t, want.Outcome, got.Outcome)
	assert.True(t, want.IssuedAt.Equal(got.IssuedAt))
	require.NotNil(t, got.Escrow)
	assert.Equal(t, want.Escrow.Reviewer, got.Escrow.Reviewer)
	assert.Equal(t, want.Escrow.Version, got.Escrow.Version)
	assert.Equal(t, want.Escrow.Royalty, got.Escrow.Royalty)
	assert.True(t, want.Escrow.EscrowedAt.Equal(got.Escrow.EscrowedAt))
}
