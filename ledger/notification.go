package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/holiman/uint256"
)

// TransferNotification reports value received from the token service on
// behalf of Sender, together with the sender's instruction.
type TransferNotification struct {
	Token  AccountID // the token that moved the value
	Sender AccountID
	Amount uint256.Int
	Msg    string
}

// DepositMessage deposits the transferred amount into a pool.
type DepositMessage struct {
	PoolID PoolID `json:"pool_id"`
}

// SettlementMessage settles a batch of pools.
type SettlementMessage struct {
	PoolIDs []PoolID `json:"pool_ids"`
	Amounts []string `json:"amounts"`
}

// RequestReviewMessage escrows royalties for reviewers.
type RequestReviewMessage struct {
	PoolID         PoolID      `json:"pool_id"`
	Version        string      `json:"version"`
	ReviewerIDs    []AccountID `json:"reviewer_ids"`
	RoyaltyAmounts []string    `json:"royalty_amounts"`
	Signature      string      `json:"signature"`
}

type messageShape struct {
	fields []string
	decode func([]byte) (any, error)
}

// shapes in match order
var messageShapes = []messageShape{
	{
		fields: []string{"pool_id", "version", "reviewer_ids", "royalty_amounts", "signature"},
		decode: decodeAs[RequestReviewMessage],
	},
	{
		fields: []string{"pool_ids", "amounts"},
		decode: decodeAs[SettlementMessage],
	},
	{
		fields: []string{"pool_id"},
		decode: decodeAs[DepositMessage],
	},
}

func decodeAs[M any](data []byte) (any, error) {
	var m M
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseMessage decodes a transfer instruction into the first message whose
// shape it fits: RequestReviewMessage, SettlementMessage or DepositMessage.
func ParseMessage(msg string) (any, error) {
	data := []byte(strings.TrimSpace(msg))
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	for _, shape := range messageShapes {
		if !hasFields(fields, shape.fields) {
			continue
		}
		if m, err := shape.decode(data); err == nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: unrecognised shape", ErrInvalidMessage)
}

func hasFields(fields map[string]json.RawMessage, want []string) bool {
	for _, f := range want {
		raw, ok := fields[f]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return false
		}
	}
	return true
}

// OnTransfer dispatches an inbound transfer to the operation its message
// names and returns the part of the amount to hand back to the sender.
//
// Rejected instructions refund everything. A settlement refunds the amounts
// of the pools it could not apply. An empty message keeps the value and does
// nothing.
func (l *Ledger) OnTransfer(ctx context.Context, n TransferNotification) (uint256.Int, error) {
	if n.Token != l.tokenID {
		return n.Amount, fmt.Errorf("%w: %s", ErrInvalidToken, n.Token)
	}
	if n.Amount.BitLen() > maxAmountBits {
		return n.Amount, fmt.Errorf("%w: %s exceeds U128", ErrInvalidAmount, n.Amount.Dec())
	}
	if strings.TrimSpace(n.Msg) == "" {
		l.log.WarnContext(ctx, "transfer received without instruction",
			slog.String("sender", string(n.Sender)),
			slog.String("amount", n.Amount.Dec()),
		)
		return uint256.Int{}, nil
	}

	msg, err := ParseMessage(n.Msg)
	if err != nil {
		return n.Amount, err
	}

	switch m := msg.(type) {
	case RequestReviewMessage:
		royalties, err := parseAmounts(m.RoyaltyAmounts)
		if err != nil {
			return n.Amount, err
		}
		err = l.RequestReview(ctx, n.Sender, n.Amount, ReviewRequest{
			Pool:      m.PoolID,
			Version:   m.Version,
			Reviewers: m.ReviewerIDs,
			Royalties: royalties,
			Signature: m.Signature,
		})
		return refundOnReject(n.Amount, err), err

	case SettlementMessage:
		amounts, err := parseAmounts(m.Amounts)
		if err != nil {
			return n.Amount, err
		}
		total, err := sumAmounts(amounts)
		if err != nil {
			return n.Amount, err
		}
		if total.Gt(&n.Amount) {
			err := fmt.Errorf("%w: batch %s, transferred %s", ErrAmountMismatch, total.Dec(), n.Amount.Dec())
			return n.Amount, err
		}
		report, err := l.Settle(ctx, n.Sender, m.PoolIDs, amounts)
		if report.Failed == nil {
			return n.Amount, err
		}
		// the transfer may carry more than the batch distributes
		var refund uint256.Int
		refund.Sub(&n.Amount, &total)
		refund.Add(&refund, &report.Refund)
		return refund, err

	case DepositMessage:
		_, err := l.Deposit(ctx, n.Sender, m.PoolID, n.Amount)
		return refundOnReject(n.Amount, err), err
	}
	return n.Amount, fmt.Errorf("%w: unhandled %T", ErrInvalidMessage, msg)
}

// refundOnReject refunds the full amount unless the operation was accepted.
func refundOnReject(amount uint256.Int, err error) uint256.Int {
	if err == nil || errors.Is(err, ErrTransferFailed) || errors.Is(err, ErrLedgerDiverged) {
		return uint256.Int{}
	}
	return amount
}

func parseAmounts(ss []string) ([]uint256.Int, error) {
	amounts := make([]uint256.Int, len(ss))
	for i, s := range ss {
		a, err := ParseAmount(s)
		if err != nil {
			return nil, err
		}
		amounts[i] = a
	}
	return amounts, nil
}
