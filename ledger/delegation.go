package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Position returns the delegator's position, or a zero position when absent.
func (d *Delegation) Position(delegator AccountID) Position {
	return d.Positions[delegator]
}

// accrued is floor(deposit * acc / S).
func (d *Delegation) accrued(deposit uint256.Int) (uint256.Int, error) {
	return mulDiv(deposit, d.AccRewardPerShare, AccScale)
}

// settledDebt is ceil(deposit * acc / S): the debt of a fully settled position.
// Rounding up keeps every payout within the exact share of the position.
func (d *Delegation) settledDebt(deposit uint256.Int) (uint256.Int, error) {
	return mulDivCeil(deposit, d.AccRewardPerShare, AccScale)
}

// Pending computes deposit * acc / S - reward_debt for the delegator, floored
// at zero.
func (d *Delegation) Pending(delegator AccountID) (uint256.Int, error) {
	pos := d.Position(delegator)
	accrued, err := d.accrued(pos.Deposit)
	if err != nil {
		return uint256.Int{}, err
	}
	return subFloor(accrued, pos.RewardDebt), nil
}

// Claim settles the delegator's pending reward and returns the amount owed.
// A zero reward leaves the delegation untouched.
func (d *Delegation) Claim(delegator AccountID) (uint256.Int, error) {
	pending, err := d.Pending(delegator)
	if err != nil || pending.IsZero() {
		return uint256.Int{}, err
	}
	pos := d.Positions[delegator]
	if pos.RewardDebt, err = d.settledDebt(pos.Deposit); err != nil {
		return uint256.Int{}, err
	}
	d.Positions[delegator] = pos
	return pending, nil
}

// Deposit settles the pending reward, adds amount to the position and returns
// the reward owed to the delegator.
func (d *Delegation) Deposit(delegator AccountID, amount uint256.Int) (uint256.Int, error) {
	if amount.IsZero() {
		return uint256.Int{}, fmt.Errorf("%w: deposit must be positive", ErrInvalidAmount)
	}
	reward, err := d.Pending(delegator)
	if err != nil {
		return uint256.Int{}, err
	}

	pos := d.Position(delegator)
	deposit, err := addAmounts(pos.Deposit, amount)
	if err != nil {
		return uint256.Int{}, err
	}
	total, err := addAmounts(d.TotalDeposit, amount)
	if err != nil {
		return uint256.Int{}, err
	}
	debt, err := d.settledDebt(deposit)
	if err != nil {
		return uint256.Int{}, err
	}

	d.TotalDeposit = total
	d.Positions[delegator] = Position{Deposit: deposit, RewardDebt: debt}
	return reward, nil
}

// Withdraw settles the pending reward, removes amount from the position and
// returns the reward owed. The position is dropped once empty.
func (d *Delegation) Withdraw(delegator AccountID, amount uint256.Int) (uint256.Int, error) {
	if amount.IsZero() {
		return uint256.Int{}, fmt.Errorf("%w: withdrawal must be positive", ErrInvalidAmount)
	}
	pos := d.Position(delegator)
	if amount.Gt(&pos.Deposit) {
		return uint256.Int{}, fmt.Errorf("%w: requested %s, deposited %s", ErrInsufficientBalance, amount.Dec(), pos.Deposit.Dec())
	}
	reward, err := d.Pending(delegator)
	if err != nil {
		return uint256.Int{}, err
	}

	deposit, err := subAmounts(pos.Deposit, amount)
	if err != nil {
		return uint256.Int{}, err
	}
	total, err := subAmounts(d.TotalDeposit, amount)
	if err != nil {
		return uint256.Int{}, err
	}
	debt, err := d.settledDebt(deposit)
	if err != nil {
		return uint256.Int{}, err
	}

	d.TotalDeposit = total
	if deposit.IsZero() {
		delete(d.Positions, delegator)
	} else {
		d.Positions[delegator] = Position{Deposit: deposit, RewardDebt: debt}
	}
	return reward, nil
}

// Inject distributes share over the current deposits and returns the
// truncation dust: share minus ceil(delta * total / S), the most the
// accumulator increment can ever pay out.
func (d *Delegation) Inject(share uint256.Int) (uint256.Int, error) {
	if d.TotalDeposit.IsZero() {
		return uint256.Int{}, ErrNoDelegators
	}
	delta, err := mulDiv(share, AccScale, d.TotalDeposit)
	if err != nil {
		return uint256.Int{}, err
	}
	acc, err := addAmounts(d.AccRewardPerShare, delta)
	if err != nil {
		return uint256.Int{}, err
	}
	distributed, err := mulDivCeil(delta, d.TotalDeposit, AccScale)
	if err != nil {
		return uint256.Int{}, err
	}

	d.AccRewardPerShare = acc
	return subFloor(share, distributed), nil
}

// restorePending rewrites the delegator's debt so that pending equals owed,
// flooring at a zero debt. It hands back reward whose payout failed and
// returns the part that the position can no longer carry.
func (d *Delegation) restorePending(delegator AccountID, owed uint256.Int) (uint256.Int, error) {
	pos, ok := d.Positions[delegator]
	if !ok {
		return owed, nil
	}
	accrued, err := d.accrued(pos.Deposit)
	if err != nil {
		return uint256.Int{}, err
	}
	pos.RewardDebt = subFloor(accrued, owed)
	d.Positions[delegator] = pos
	return subFloor(owed, accrued), nil
}

// addPrincipal returns a failed withdrawal to the position without settling it.
func (d *Delegation) addPrincipal(delegator AccountID, amount uint256.Int) error {
	pos := d.Position(delegator)
	deposit, err := addAmounts(pos.Deposit, amount)
	if err != nil {
		return err
	}
	total, err := addAmounts(d.TotalDeposit, amount)
	if err != nil {
		return err
	}
	pos.Deposit = deposit
	d.TotalDeposit = total
	d.Positions[delegator] = pos
	return nil
}
