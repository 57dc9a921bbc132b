package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/ticle/ledger/config"
)

func TestLoad(t *testing.T) {
	t.Run("it applies defaults around the required accounts", func(t *testing.T) {
		// Arrange
		t.Setenv("LEDGER_TOKEN_ID", "token.test")
		t.Setenv("LEDGER_OWNER_ID", "owner.test")
		t.Setenv("LEDGER_SIGNER_PUBLIC_KEY", "ed25519:11111111111111111111111111111111")

		// Act
		cfg, err := config.Load()

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "token.test", cfg.TokenID)
		assert.Equal(t, "owner.test", cfg.OwnerID)
		assert.Equal(t, 14*24*time.Hour, cfg.ReviewLock)
		assert.Equal(t, "reviewer", cfg.CancelRefund)
		assert.Equal(t, "hold", cfg.ZeroDelegatorPolicy)
		assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
		assert.Equal(t, 2*time.Minute, cfg.ReconcileStaleAfter)
		assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	})

	t.Run("it overrides business rules from the environment", func(t *testing.T) {
		// Arrange
		t.Setenv("LEDGER_TOKEN_ID", "token.test")
		t.Setenv("LEDGER_OWNER_ID", "owner.test")
		t.Setenv("LEDGER_SIGNER_PUBLIC_KEY", "ed25519:11111111111111111111111111111111")
		t.Setenv("LEDGER_REVIEW_LOCK", "1h")
		t.Setenv("LEDGER_CANCEL_REFUND", "coder")
		t.Setenv("LEDGER_ZERO_DELEGATOR_POLICY", "reject")

		// Act
		cfg, err := config.Load()

		// Assert
		require.NoError(t, err)
		assert.Equal(t, time.Hour, cfg.ReviewLock)
		assert.Equal(t, "coder", cfg.CancelRefund)
		assert.Equal(t, "reject", cfg.ZeroDelegatorPolicy)
	})

	t.Run("it fails without the token account", func(t *testing.T) {
		// Arrange
		t.Setenv("LEDGER_TOKEN_ID", "")
		t.Setenv("LEDGER_OWNER_ID", "owner.test")
		t.Setenv("LEDGER_SIGNER_PUBLIC_KEY", "ed25519:11111111111111111111111111111111")

		// Act
		_, err := config.Load()

		// Assert
		assert.Error(t, err)
	})
}
