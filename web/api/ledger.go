package api

// Amounts travel as decimal strings; they do not fit a JSON number.

type CreatePoolRequest struct {
	PoolID string `json:"pool_id"`
}

type TransferOwnershipRequest struct {
	NewCoder string `json:"new_coder"`
}

type WithdrawRequest struct {
	Amount string `json:"amount"`
}

type CancelReviewRequest struct {
	ReviewerIDs []string `json:"reviewer_ids"`
}

// TransferNotificationRequest is posted by the token service when tokens are
// transferred to the ledger with an instruction message.
type TransferNotificationRequest struct {
	SenderID string `json:"sender_id"`
	Amount   string `json:"amount"`
	Msg      string `json:"msg"`
}

type TransferNotificationResponse struct {
	Refund string `json:"refund"`
	Error  string `json:"error,omitempty"`
}

// TransferOutcomeRequest reports the result of a transfer the ledger requested.
type TransferOutcomeRequest struct {
	Succeeded *bool `json:"succeeded"`
}

type TransferOutcomeResponse struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

type Escrow struct {
	Reviewer   string `json:"reviewer_id"`
	Version    string `json:"version"`
	Royalty    string `json:"royalty"`
	EscrowedAt string `json:"escrowed_at"`
	UnlocksAt  string `json:"unlocks_at"`
}

type Pool struct {
	ID                string   `json:"pool_id"`
	Coder             string   `json:"coder"`
	UnclaimedRevenue  string   `json:"unclaimed_revenue"`
	Undistributed     string   `json:"undistributed"`
	TotalDeposit      string   `json:"total_deposit"`
	AccRewardPerShare string   `json:"acc_reward_per_share"`
	Delegators        int      `json:"delegators"`
	Reviews           []Escrow `json:"reviews"`
	CreatedAt         string   `json:"created_at"`
}

type Position struct {
	PoolID        string `json:"pool_id"`
	Delegator     string `json:"delegator_id"`
	Deposit       string `json:"deposit"`
	RewardDebt    string `json:"reward_debt"`
	PendingReward string `json:"pending_reward"`
}

type Payout struct {
	TransferID string `json:"transfer_id,omitempty"`
	Amount     string `json:"amount"`
}

type CancelReviewResponse struct {
	GroupID string   `json:"group_id"`
	Refunds []Payout `json:"refunds"`
}

type PendingTransfer struct {
	ID       string `json:"id"`
	GroupID  string `json:"group_id"`
	Kind     string `json:"kind"`
	PoolID   string `json:"pool_id,omitempty"`
	Account  string `json:"account_id,omitempty"`
	Receiver string `json:"receiver_id,omitempty"`
	Amount   string `json:"amount"`
	Outcome  string `json:"outcome,omitempty"`
	IssuedAt string `json:"issued_at"`
}

type PendingTransfersResponse struct {
	Data []PendingTransfer `json:"data"`
}
