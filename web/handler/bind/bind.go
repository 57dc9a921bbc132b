package bind

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/pkg/httpkit"
	"github.com/screwyprof/ticle/web/api"
)

// Sentinel errors for request binding
var (
	ErrMissingCaller     = errors.New("missing caller account")
	ErrInvalidAccount    = errors.New("invalid account parameter")
	ErrInvalidTransferID = errors.New("invalid transfer id")
	ErrMissingOutcome    = errors.New("succeeded must be set")
	ErrMissingReviewers  = errors.New("reviewer_ids must not be empty")
)

// Caller returns the account the gateway authenticated for the request
func Caller(r *http.Request) (ledger.AccountID, error) {
	caller := strings.TrimSpace(r.Header.Get(httpkit.CallerHeader))
	if caller == "" {
		return "", fmt.Errorf("%w: %s header is required", ErrMissingCaller, httpkit.CallerHeader)
	}
	return ledger.AccountID(caller), nil
}

// PoolID binds the {id} path parameter
func PoolID(r *http.Request) (ledger.PoolID, error) {
	return ledger.ParsePoolID(r.PathValue("id"))
}

// Account binds a path parameter naming an account
func Account(r *http.Request, name string) (ledger.AccountID, error) {
	account, err := parseAccount(r.PathValue(name))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidAccount, name, err)
	}
	return account, nil
}

// TransferID binds the {id} path parameter of a pending transfer
func TransferID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidTransferID, err)
	}
	return id, nil
}

func CreatePoolRequest(w http.ResponseWriter, r *http.Request) (ledger.PoolID, error) {
	var req api.CreatePoolRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return "", err
	}
	return ledger.ParsePoolID(req.PoolID)
}

func TransferOwnershipRequest(w http.ResponseWriter, r *http.Request) (ledger.AccountID, error) {
	var req api.TransferOwnershipRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return "", err
	}
	coder, err := parseAccount(req.NewCoder)
	if err != nil {
		return "", fmt.Errorf("%w: new_coder: %w", ErrInvalidAccount, err)
	}
	return coder, nil
}

func WithdrawRequest(w http.ResponseWriter, r *http.Request) (uint256.Int, error) {
	var req api.WithdrawRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return uint256.Int{}, err
	}
	return ledger.ParseAmount(req.Amount)
}

func CancelReviewRequest(w http.ResponseWriter, r *http.Request) ([]ledger.AccountID, error) {
	var req api.CancelReviewRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	if len(req.ReviewerIDs) == 0 {
		return nil, ErrMissingReviewers
	}
	reviewers := make([]ledger.AccountID, len(req.ReviewerIDs))
	for i, id := range req.ReviewerIDs {
		reviewer, err := parseAccount(id)
		if err != nil {
			return nil, fmt.Errorf("%w: reviewer_ids[%d]: %w", ErrInvalidAccount, i, err)
		}
		reviewers[i] = reviewer
	}
	return reviewers, nil
}

// TransferNotificationRequest binds a token service callback. The caller is
// the token that moved the value.
func TransferNotificationRequest(w http.ResponseWriter, r *http.Request, token ledger.AccountID) (ledger.TransferNotification, error) {
	var req api.TransferNotificationRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return ledger.TransferNotification{}, err
	}
	sender, err := parseAccount(req.SenderID)
	if err != nil {
		return ledger.TransferNotification{}, fmt.Errorf("%w: sender_id: %w", ErrInvalidAccount, err)
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return ledger.TransferNotification{}, err
	}
	return ledger.TransferNotification{
		Token:  token,
		Sender: sender,
		Amount: amount,
		Msg:    req.Msg,
	}, nil
}

func TransferOutcomeRequest(w http.ResponseWriter, r *http.Request) (bool, error) {
	var req api.TransferOutcomeRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return false, err
	}
	if req.Succeeded == nil {
		return false, ErrMissingOutcome
	}
	return *req.Succeeded, nil
}

func parseAccount(s string) (ledger.AccountID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("account must not be empty")
	}
	return ledger.AccountID(s), nil
}

// PoolResponse binds a pool snapshot to its API representation. unlocksAt
// computes when each escrow becomes claimable.
func PoolResponse(pool ledger.Pool, unlocksAt func(ledger.ReviewerEscrow) time.Time) api.Pool {
	reviews := make([]api.Escrow, len(pool.Reviews))
	for i, e := range pool.Reviews {
		reviews[i] = api.Escrow{
			Reviewer:   string(e.Reviewer),
			Version:    e.Version,
			Royalty:    e.Royalty.Dec(),
			EscrowedAt: e.EscrowedAt.UTC().Format(time.RFC3339),
			UnlocksAt:  unlocksAt(e).UTC().Format(time.RFC3339),
		}
	}

	return api.Pool{
		ID:                string(pool.ID),
		Coder:             string(pool.Coder),
		UnclaimedRevenue:  pool.UnclaimedRevenue.Dec(),
		Undistributed:     pool.Undistributed.Dec(),
		TotalDeposit:      pool.Delegation.TotalDeposit.Dec(),
		AccRewardPerShare: pool.Delegation.AccRewardPerShare.Dec(),
		Delegators:        len(pool.Delegation.Positions),
		Reviews:           reviews,
		CreatedAt:         pool.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func PositionResponse(id ledger.PoolID, delegator ledger.AccountID, pos ledger.Position, pending uint256.Int) api.Position {
	return api.Position{
		PoolID:        string(id),
		Delegator:     string(delegator),
		Deposit:       pos.Deposit.Dec(),
		RewardDebt:    pos.RewardDebt.Dec(),
		PendingReward: pending.Dec(),
	}
}

func PayoutResponse(p ledger.Payout) api.Payout {
	resp := api.Payout{Amount: p.Amount.Dec()}
	if p.Issued() {
		resp.TransferID = p.TransferID.String()
	}
	return resp
}

func CancelReviewResponse(receipt ledger.CancelReceipt) api.CancelReviewResponse {
	refunds := make([]api.Payout, len(receipt.Refunds))
	for i, p := range receipt.Refunds {
		refunds[i] = PayoutResponse(p)
	}
	return api.CancelReviewResponse{
		GroupID: receipt.GroupID.String(),
		Refunds: refunds,
	}
}

func TransferNotificationResponse(refund uint256.Int, err error) api.TransferNotificationResponse {
	resp := api.TransferNotificationResponse{Refund: refund.Dec()}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func TransferOutcomeResponse(id uuid.UUID, succeeded bool) api.TransferOutcomeResponse {
	outcome := ledger.OutcomeFailed
	if succeeded {
		outcome = ledger.OutcomeSucceeded
	}
	return api.TransferOutcomeResponse{ID: id.String(), Outcome: string(outcome)}
}

func PendingTransfersResponse(transfers []ledger.PendingTransfer) api.PendingTransfersResponse {
	data := make([]api.PendingTransfer, len(transfers))
	for i, t := range transfers {
		data[i] = api.PendingTransfer{
			ID:       t.ID.String(),
			GroupID:  t.GroupID.String(),
			Kind:     string(t.Kind),
			PoolID:   string(t.Pool),
			Account:  string(t.Account),
			Receiver: string(t.Receiver),
			Amount:   t.Amount.Dec(),
			Outcome:  string(t.Outcome),
			IssuedAt: t.IssuedAt.UTC().Format(time.RFC3339),
		}
	}
	return api.PendingTransfersResponse{Data: data}
}
