package ledger

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
)

// PendingReward returns the reward the delegator could claim right now.
func (l *Ledger) PendingReward(ctx context.Context, delegator AccountID, id PoolID) (uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pool, err := l.loadPool(ctx, id)
	if err != nil {
		return uint256.Int{}, err
	}
	return pool.Delegation.Pending(delegator)
}

// Deposit credits amount, already received from delegator, to the pool and
// pays out the reward that was pending before the deposit.
func (l *Ledger) Deposit(ctx context.Context, delegator AccountID, id PoolID, amount uint256.Int) (Payout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pool, err := l.loadPool(ctx, id)
	if err != nil {
		return Payout{}, err
	}
	reward, err := pool.Delegation.Deposit(delegator, amount)
	if err != nil {
		return Payout{}, err
	}

	c := Commit{Pools: []Pool{pool}}
	var payout []PendingTransfer
	if !reward.IsZero() {
		t := l.newTransfer(KindDepositPayout, id, delegator, delegator, reward)
		t.Reward = reward
		payout = append(payout, t)
		c.Issued = payout
	}
	if err := l.commit(ctx, c); err != nil {
		return Payout{}, err
	}

	ev := Deposited{Pool: id, Delegator: delegator, Amount: amount, Reward: reward}
	if len(payout) == 0 {
		l.emit(ctx, ev)
		return Payout{}, nil
	}
	ev.TransferID = payout[0].ID
	l.emit(ctx, ev)
	return Payout{TransferID: payout[0].ID, Amount: reward}, l.dispatch(ctx, payout...)
}

// ClaimReward pays out the delegator's pending reward. Nothing is issued when
// no reward is pending.
func (l *Ledger) ClaimReward(ctx context.Context, delegator AccountID, id PoolID) (Payout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pool, err := l.loadPool(ctx, id)
	if err != nil {
		return Payout{}, err
	}
	reward, err := pool.Delegation.Claim(delegator)
	if err != nil || reward.IsZero() {
		return Payout{}, err
	}

	t := l.newTransfer(KindRewardClaim, id, delegator, delegator, reward)
	t.Reward = reward
	if err := l.commit(ctx, Commit{Pools: []Pool{pool}, Issued: []PendingTransfer{t}}); err != nil {
		return Payout{}, err
	}
	l.emit(ctx, RewardClaimed{Pool: id, Delegator: delegator, Amount: reward, TransferID: t.ID})
	return Payout{TransferID: t.ID, Amount: reward}, l.dispatch(ctx, t)
}

// Withdraw returns amount of the delegator's principal together with the
// reward pending before the withdrawal, as a single transfer.
func (l *Ledger) Withdraw(ctx context.Context, delegator AccountID, id PoolID, amount uint256.Int) (Payout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pool, err := l.loadPool(ctx, id)
	if err != nil {
		return Payout{}, err
	}
	reward, err := pool.Delegation.Withdraw(delegator, amount)
	if err != nil {
		return Payout{}, err
	}
	total, err := addAmounts(amount, reward)
	if err != nil {
		return Payout{}, err
	}

	t := l.newTransfer(KindWithdraw, id, delegator, delegator, total)
	t.Reward = reward
	t.Principal = amount
	if err := l.commit(ctx, Commit{Pools: []Pool{pool}, Issued: []PendingTransfer{t}}); err != nil {
		return Payout{}, err
	}
	l.emit(ctx, Withdrawn{Pool: id, Delegator: delegator, Amount: amount, Reward: reward, TransferID: t.ID})
	return Payout{TransferID: t.ID, Amount: total}, l.dispatch(ctx, t)
}

// ClaimOwnerRevenue pays the pool's accumulated owner share to its coder.
func (l *Ledger) ClaimOwnerRevenue(ctx context.Context, caller AccountID, id PoolID) (Payout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pool, err := l.loadPool(ctx, id)
	if err != nil {
		return Payout{}, err
	}
	if pool.Coder != caller {
		return Payout{}, fmt.Errorf("%w: only the coder can claim owner revenue", ErrUnauthorized)
	}
	revenue := pool.UnclaimedRevenue
	if revenue.IsZero() {
		return Payout{}, nil
	}
	pool.UnclaimedRevenue = uint256.Int{}

	t := l.newTransfer(KindOwnerRevenue, id, caller, caller, revenue)
	if err := l.commit(ctx, Commit{Pools: []Pool{pool}, Issued: []PendingTransfer{t}}); err != nil {
		return Payout{}, err
	}
	l.emit(ctx, OwnerRevenueClaimed{Pool: id, Coder: caller, Amount: revenue, TransferID: t.ID})
	return Payout{TransferID: t.ID, Amount: revenue}, l.dispatch(ctx, t)
}
