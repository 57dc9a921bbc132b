package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/pkg/httpkit"
	"github.com/screwyprof/ticle/web/api"
	"github.com/screwyprof/ticle/web/handler/bind"
)

const (
	OnTransferRoute       = http.MethodPost + " " + "/ft/on-transfer"
	TransferOutcomeRoute  = http.MethodPost + " " + "/transfers/{id}/outcome"
	PendingTransfersRoute = http.MethodGet + " " + "/transfers"
)

// Sentinel errors
var (
	ErrNotTokenService = errors.New("caller is not the token service")
)

// TokenService is the part of the ledger the token service talks to
type TokenService interface {
	OnTransfer(ctx context.Context, n ledger.TransferNotification) (uint256.Int, error)
	ResolveTransfer(ctx context.Context, id uuid.UUID, succeeded bool) error
	PendingTransfers(ctx context.Context) ([]ledger.PendingTransfer, error)
}

// TokenCallbacks serves the endpoints only the token service may call: inbound
// transfer notifications and outcomes of the transfers the ledger requested.
type TokenCallbacks struct {
	svc   TokenService
	token ledger.AccountID
}

func NewTokenCallbacks(svc TokenService, token ledger.AccountID) *TokenCallbacks {
	return &TokenCallbacks{
		svc:   svc,
		token: token,
	}
}

func (h *TokenCallbacks) AddRoutes(m *http.ServeMux) {
	m.Handle(OnTransferRoute, httpkit.HandlerFunc(h.OnTransfer))
	m.Handle(TransferOutcomeRoute, httpkit.HandlerFunc(h.TransferOutcome))
	m.Handle(PendingTransfersRoute, httpkit.HandlerFunc(h.PendingTransfers))
}

// OnTransfer always answers with the amount to refund once the notification
// is bound, including when the instruction is rejected.
func (h *TokenCallbacks) OnTransfer(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	caller, err := bind.Caller(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	n, err := bind.TransferNotificationRequest(w, r, caller)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	refund, err := h.svc.OnTransfer(r.Context(), n)
	if errors.Is(err, ledger.ErrInvalidToken) {
		return httpkit.JsonError(api.Forbidden(err))
	}
	if err != nil {
		// keep the cause for the logging middleware
		apiErr := ledgerError(err)
		httpkit.SetError(r.Context(), apiErr)
		return httpkit.JSON(bind.TransferNotificationResponse(refund, apiErr))
	}
	return httpkit.JSON(bind.TransferNotificationResponse(refund, nil))
}

func (h *TokenCallbacks) TransferOutcome(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	if err := h.authorize(r); err != nil {
		return httpkit.JsonError(err)
	}
	id, err := bind.TransferID(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	succeeded, err := bind.TransferOutcomeRequest(w, r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	err = h.svc.ResolveTransfer(r.Context(), id, succeeded)
	if !ledger.IsOutcomeRecorded(err) {
		return httpkit.JsonError(ledgerError(err))
	}
	return httpkit.JSON(bind.TransferOutcomeResponse(id, succeeded))
}

func (h *TokenCallbacks) PendingTransfers(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	if err := h.authorize(r); err != nil {
		return httpkit.JsonError(err)
	}

	transfers, err := h.svc.PendingTransfers(r.Context())
	if err != nil {
		return httpkit.JsonError(ledgerError(err))
	}
	return httpkit.JSON(bind.PendingTransfersResponse(transfers))
}

func (h *TokenCallbacks) authorize(r *http.Request) *api.Error {
	caller, err := bind.Caller(r)
	if err != nil {
		return api.BadRequest(err)
	}
	if caller != h.token {
		return api.Forbidden(fmt.Errorf("%w: %s", ErrNotTokenService, caller))
	}
	return nil
}
