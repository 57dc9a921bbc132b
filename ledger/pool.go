package ledger

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/holiman/uint256"
)

// AccountID identifies an account on the host chain
type AccountID string

// PoolID names a pool (a vertical API in product terms)
type PoolID string

// ParsePoolID validates a pool id from an external request.
func ParsePoolID(s string) (PoolID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidPoolID
	}
	return PoolID(s), nil
}

// Pool is the unit of delegation and revenue accounting.
type Pool struct {
	ID    PoolID
	Coder AccountID // pool owner; funds reviews and collects owner revenue

	// UnclaimedRevenue is the owner share of settlements not yet paid out.
	UnclaimedRevenue uint256.Int
	// Undistributed holds delegator revenue that arrived while nobody had deposited.
	Undistributed uint256.Int

	Delegation Delegation
	Reviews    []ReviewerEscrow // insertion order
	CreatedAt  time.Time
}

// NewPool returns an empty pool owned by coder.
func NewPool(id PoolID, coder AccountID, createdAt time.Time) Pool {
	return Pool{
		ID:         id,
		Coder:      coder,
		Delegation: Delegation{Positions: map[AccountID]Position{}},
		CreatedAt:  createdAt,
	}
}

// Clone returns a deep copy safe to mutate.
func (p Pool) Clone() Pool {
	c := p
	c.Delegation.Positions = maps.Clone(p.Delegation.Positions)
	if c.Delegation.Positions == nil {
		c.Delegation.Positions = map[AccountID]Position{}
	}
	c.Reviews = slices.Clone(p.Reviews)
	return c
}

// Delegation is the per-pool accumulator state.
type Delegation struct {
	Positions         map[AccountID]Position
	TotalDeposit      uint256.Int
	AccRewardPerShare uint256.Int // scaled by AccScale
}

// Position is a delegator's stake in one pool.
type Position struct {
	Deposit    uint256.Int
	RewardDebt uint256.Int
}

// ReviewerEscrow is a royalty held for a reviewer until claimed or cancelled.
type ReviewerEscrow struct {
	Reviewer   AccountID
	Version    string
	Royalty    uint256.Int
	EscrowedAt time.Time
}

func (e ReviewerEscrow) same(o ReviewerEscrow) bool {
	return e.Reviewer == o.Reviewer &&
		e.Version == o.Version &&
		e.Royalty.Eq(&o.Royalty) &&
		e.EscrowedAt.Equal(o.EscrowedAt)
}

// Escrow looks up the escrow held for reviewer.
func (p *Pool) Escrow(reviewer AccountID) (ReviewerEscrow, bool) {
	i := p.escrowIndex(reviewer)
	if i < 0 {
		return ReviewerEscrow{}, false
	}
	return p.Reviews[i], true
}

func (p *Pool) escrowIndex(reviewer AccountID) int {
	return slices.IndexFunc(p.Reviews, func(e ReviewerEscrow) bool { return e.Reviewer == reviewer })
}

// putEscrow overwrites an existing entry in place or appends a new one.
func (p *Pool) putEscrow(e ReviewerEscrow) {
	if i := p.escrowIndex(e.Reviewer); i >= 0 {
		p.Reviews[i] = e
		return
	}
	p.Reviews = append(p.Reviews, e)
}

func (p *Pool) removeEscrow(reviewer AccountID) {
	if i := p.escrowIndex(reviewer); i >= 0 {
		p.Reviews = slices.Delete(p.Reviews, i, i+1)
	}
}

// EscrowedTotal sums all royalties held by the pool.
func (p *Pool) EscrowedTotal() (uint256.Int, error) {
	royalties := make([]uint256.Int, len(p.Reviews))
	for i, e := range p.Reviews {
		royalties[i] = e.Royalty
	}
	return sumAmounts(royalties)
}
