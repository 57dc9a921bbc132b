package ftgateway_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/ledger/ftgateway"
	"github.com/screwyprof/ticle/pkg/ftclient"
)

type recordingClient struct {
	transfers []ftclient.TransferRequest
	burns     []ftclient.BurnRequest
}

func (c *recordingClient) Transfer(_ context.Context, req ftclient.TransferRequest) error {
	c.transfers = append(c.transfers, req)
	return nil
}

func (c *recordingClient) Burn(_ context.Context, req ftclient.BurnRequest) error {
	c.burns = append(c.burns, req)
	return nil
}

func TestGateway(t *testing.T) {
	t.Parallel()

	t.Run("it renders transfers with decimal amounts", func(t *testing.T) {
		t.Parallel()

		// Arrange
		client := &recordingClient{}
		gw := ftgateway.New(client)
		id := uuid.MustParse("6f1c2d9e-0a4b-4f7e-8c11-3b5e2a9d4c70")
		amount, err := uint256.FromDecimal("340282366920938463463374607431768211455")
		require.NoError(t, err)

		// Act
		err = gw.Transfer(t.Context(), ledger.TransferRequest{ID: id, Receiver: "bob.test", Amount: *amount, Memo: "withdraw:alice-vapi"})

		// Assert
		require.NoError(t, err)
		require.Len(t, client.transfers, 1)
		assert.Equal(t, ftclient.TransferRequest{
			ID:         "6f1c2d9e-0a4b-4f7e-8c11-3b5e2a9d4c70",
			ReceiverID: "bob.test",
			Amount:     "340282366920938463463374607431768211455",
			Memo:       "withdraw:alice-vapi",
		}, client.transfers[0])
	})

	t.Run("it renders burns", func(t *testing.T) {
		t.Parallel()

		// Arrange
		client := &recordingClient{}
		gw := ftgateway.New(client)
		id := uuid.MustParse("00000000-0000-0000-0000-000000000001")

		// Act
		err := gw.Burn(t.Context(), ledger.BurnRequest{ID: id, Amount: *uint256.NewInt(100)})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []ftclient.BurnRequest{{ID: id.String(), Amount: "100"}}, client.burns)
	})
}
