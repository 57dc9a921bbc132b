package ledger

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// AccScale is the fixed-point scale of the accumulator per share (10^12).
var AccScale = *uint256.NewInt(1_000_000_000_000)

// maxAmountBits bounds amounts to the U128 range of the token service.
const maxAmountBits = 128

// ParseAmount parses a base-10 amount of base units within the U128 range.
func ParseAmount(s string) (uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uint256.Int{}, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
	}
	if v.BitLen() > maxAmountBits {
		return uint256.Int{}, fmt.Errorf("%w: %s exceeds U128", ErrInvalidAmount, s)
	}
	return *v, nil
}

func addAmounts(a, b uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, overflow := z.AddOverflow(&a, &b); overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s + %s", ErrOverflow, a.Dec(), b.Dec())
	}
	return z, nil
}

func subAmounts(a, b uint256.Int) (uint256.Int, error) {
	var z uint256.Int
	if _, underflow := z.SubOverflow(&a, &b); underflow {
		return uint256.Int{}, fmt.Errorf("%w: %s - %s", ErrOverflow, a.Dec(), b.Dec())
	}
	return z, nil
}

// subFloor returns a-b, or zero when b exceeds a.
func subFloor(a, b uint256.Int) uint256.Int {
	if a.Lt(&b) {
		return uint256.Int{}
	}
	var z uint256.Int
	z.Sub(&a, &b)
	return z
}

// mulDiv returns floor(x*y/d) with a full-width intermediate product.
func mulDiv(x, y, d uint256.Int) (uint256.Int, error) {
	if d.IsZero() {
		return uint256.Int{}, fmt.Errorf("%w: division by zero", ErrOverflow)
	}
	var z uint256.Int
	if _, overflow := z.MulDivOverflow(&x, &y, &d); overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s * %s / %s", ErrOverflow, x.Dec(), y.Dec(), d.Dec())
	}
	return z, nil
}

// mulDivCeil returns ceil(x*y/d).
func mulDivCeil(x, y, d uint256.Int) (uint256.Int, error) {
	z, err := mulDiv(x, y, d)
	if err != nil {
		return uint256.Int{}, err
	}
	var rem uint256.Int
	if rem.MulMod(&x, &y, &d).IsZero() {
		return z, nil
	}
	return addAmounts(z, *uint256.NewInt(1))
}

func percentOf(x uint256.Int, pct uint64) uint256.Int {
	// pct <= 100 so the quotient always fits
	z, _ := mulDiv(x, *uint256.NewInt(pct), *uint256.NewInt(100))
	return z
}

func sumAmounts(amounts []uint256.Int) (uint256.Int, error) {
	var total uint256.Int
	for _, a := range amounts {
		var err error
		if total, err = addAmounts(total, a); err != nil {
			return uint256.Int{}, err
		}
	}
	return total, nil
}
