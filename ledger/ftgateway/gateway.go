// Package ftgateway connects the ledger to the token transfer service.
package ftgateway

import (
	"context"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/pkg/ftclient"
)

// Client is the subset of the transfer service client the gateway needs
type Client interface {
	Transfer(ctx context.Context, req ftclient.TransferRequest) error
	Burn(ctx context.Context, req ftclient.BurnRequest) error
}

// Gateway implements ledger.Transferer on top of the transfer service client
type Gateway struct {
	client Client
}

// New creates a Gateway
func New(client Client) *Gateway {
	return &Gateway{client: client}
}

func (g *Gateway) Transfer(ctx context.Context, req ledger.TransferRequest) error {
	return g.client.Transfer(ctx, ftclient.TransferRequest{
		ID:         req.ID.String(),
		ReceiverID: string(req.Receiver),
		Amount:     req.Amount.Dec(),
		Memo:       req.Memo,
	})
}

func (g *Gateway) Burn(ctx context.Context, req ledger.BurnRequest) error {
	return g.client.Burn(ctx, ftclient.BurnRequest{
		ID:     req.ID.String(),
		Amount: req.Amount.Dec(),
	})
}
