package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/holiman/uint256"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/pkg/httpkit"
	"github.com/screwyprof/ticle/web/api"
	"github.com/screwyprof/ticle/web/handler/bind"
)

const (
	CreatePoolRoute        = http.MethodPost + " " + "/pools"
	GetPoolRoute           = http.MethodGet + " " + "/pools/{id}"
	TransferOwnershipRoute = http.MethodPut + " " + "/pools/{id}/owner"
	GetPositionRoute       = http.MethodGet + " " + "/pools/{id}/delegators/{account}"
	ClaimRewardRoute       = http.MethodPost + " " + "/pools/{id}/claim"
	WithdrawRoute          = http.MethodPost + " " + "/pools/{id}/withdraw"
	ClaimOwnerRevenueRoute = http.MethodPost + " " + "/pools/{id}/owner-revenue/claim"
	ClaimReviewRoute       = http.MethodPost + " " + "/pools/{id}/reviews/claim"
	CancelReviewRoute      = http.MethodPost + " " + "/pools/{id}/reviews/cancel"
)

// PoolService is the part of the ledger the pool endpoints drive
type PoolService interface {
	CreatePool(ctx context.Context, caller ledger.AccountID, id ledger.PoolID) (ledger.Pool, error)
	TransferOwnership(ctx context.Context, caller ledger.AccountID, id ledger.PoolID, newCoder ledger.AccountID) error
	Pool(ctx context.Context, id ledger.PoolID) (ledger.Pool, error)
	ClaimReward(ctx context.Context, delegator ledger.AccountID, id ledger.PoolID) (ledger.Payout, error)
	Withdraw(ctx context.Context, delegator ledger.AccountID, id ledger.PoolID, amount uint256.Int) (ledger.Payout, error)
	ClaimOwnerRevenue(ctx context.Context, caller ledger.AccountID, id ledger.PoolID) (ledger.Payout, error)
	ClaimReviewReward(ctx context.Context, reviewer ledger.AccountID, id ledger.PoolID) (ledger.Payout, error)
	CancelReview(ctx context.Context, caller ledger.AccountID, id ledger.PoolID, reviewers []ledger.AccountID) (ledger.CancelReceipt, error)
	UnlocksAt(e ledger.ReviewerEscrow) time.Time
}

type Pools struct {
	svc PoolService
}

func NewPools(svc PoolService) *Pools {
	return &Pools{
		svc: svc,
	}
}

func (h *Pools) AddRoutes(m *http.ServeMux) {
	m.Handle(CreatePoolRoute, httpkit.HandlerFunc(h.CreatePool))
	m.Handle(GetPoolRoute, httpkit.HandlerFunc(h.GetPool))
	m.Handle(TransferOwnershipRoute, httpkit.HandlerFunc(h.TransferOwnership))
	m.Handle(GetPositionRoute, httpkit.HandlerFunc(h.GetPosition))
	m.Handle(ClaimRewardRoute, httpkit.HandlerFunc(h.ClaimReward))
	m.Handle(WithdrawRoute, httpkit.HandlerFunc(h.Withdraw))
	m.Handle(ClaimOwnerRevenueRoute, httpkit.HandlerFunc(h.ClaimOwnerRevenue))
	m.Handle(ClaimReviewRoute, httpkit.HandlerFunc(h.ClaimReview))
	m.Handle(CancelReviewRoute, httpkit.HandlerFunc(h.CancelReview))
}

func (h *Pools) CreatePool(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	caller, err := bind.Caller(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	id, err := bind.CreatePoolRequest(w, r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	pool, err := h.svc.CreatePool(r.Context(), caller, id)
	if err != nil {
		return httpkit.JsonError(ledgerError(err))
	}
	return httpkit.JSONStatus(http.StatusCreated, bind.PoolResponse(pool, h.svc.UnlocksAt))
}

func (h *Pools) GetPool(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	id, err := bind.PoolID(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	pool, err := h.svc.Pool(r.Context(), id)
	if err != nil {
		return httpkit.JsonError(ledgerError(err))
	}
	return httpkit.JSON(bind.PoolResponse(pool, h.svc.UnlocksAt))
}

func (h *Pools) TransferOwnership(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	caller, err := bind.Caller(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	id, err := bind.PoolID(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	newCoder, err := bind.TransferOwnershipRequest(w, r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	if err := h.svc.TransferOwnership(r.Context(), caller, id, newCoder); err != nil {
		return httpkit.JsonError(ledgerError(err))
	}
	pool, err := h.svc.Pool(r.Context(), id)
	if err != nil {
		return httpkit.JsonError(ledgerError(err))
	}
	return httpkit.JSON(bind.PoolResponse(pool, h.svc.UnlocksAt))
}

// GetPosition reports a delegator's position and pending reward from one
// pool snapshot.
func (h *Pools) GetPosition(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	id, err := bind.PoolID(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	delegator, err := bind.Account(r, "account")
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	pool, err := h.svc.Pool(r.Context(), id)
	if err != nil {
		return httpkit.JsonError(ledgerError(err))
	}
	pending, err := pool.Delegation.Pending(delegator)
	if err != nil {
		return httpkit.JsonError(api.InternalServerError(err))
	}
	return httpkit.JSON(bind.PositionResponse(id, delegator, pool.Delegation.Position(delegator), pending))
}

func (h *Pools) ClaimReward(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return h.payout(r, h.svc.ClaimReward)
}

func (h *Pools) ClaimOwnerRevenue(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return h.payout(r, h.svc.ClaimOwnerRevenue)
}

func (h *Pools) ClaimReview(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	return h.payout(r, h.svc.ClaimReviewReward)
}

func (h *Pools) Withdraw(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	amount, err := bind.WithdrawRequest(w, r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	return h.payout(r, func(ctx context.Context, caller ledger.AccountID, id ledger.PoolID) (ledger.Payout, error) {
		return h.svc.Withdraw(ctx, caller, id, amount)
	})
}

func (h *Pools) CancelReview(w http.ResponseWriter, r *http.Request) http.HandlerFunc {
	caller, err := bind.Caller(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	id, err := bind.PoolID(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	reviewers, err := bind.CancelReviewRequest(w, r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	receipt, err := h.svc.CancelReview(r.Context(), caller, id, reviewers)
	if err != nil {
		return httpkit.JsonError(ledgerError(err))
	}
	return httpkit.JSONStatus(http.StatusAccepted, bind.CancelReviewResponse(receipt))
}

// payout runs a caller-initiated operation that may request a transfer. A
// requested transfer is reported as accepted; its outcome arrives later.
func (h *Pools) payout(r *http.Request, op func(context.Context, ledger.AccountID, ledger.PoolID) (ledger.Payout, error)) http.HandlerFunc {
	caller, err := bind.Caller(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}
	id, err := bind.PoolID(r)
	if err != nil {
		return httpkit.JsonError(api.BadRequest(err))
	}

	payout, err := op(r.Context(), caller, id)
	if err != nil {
		return httpkit.JsonError(ledgerError(err))
	}
	if !payout.Issued() {
		return httpkit.JSON(bind.PayoutResponse(payout))
	}
	return httpkit.JSONStatus(http.StatusAccepted, bind.PayoutResponse(payout))
}
