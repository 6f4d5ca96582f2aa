package common

import (
	"fmt"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
)

// Zero returns a freshly allocated zero amount.
func Zero() *uint256.Int { return new(uint256.Int) }

// Amount normalises a possibly nil amount to a non-nil value without copying.
func Amount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// Clone returns a copy of v, treating nil as zero.
func Clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// Add returns a+b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(Amount(a), Amount(b))
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", lockerrors.ErrOverflow, Amount(a).Dec(), Amount(b).Dec())
	}
	return sum, nil
}

// Sub returns a-b or ErrOverflow when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(Amount(a), Amount(b))
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s", lockerrors.ErrOverflow, Amount(a).Dec(), Amount(b).Dec())
	}
	return diff, nil
}

// SaturatingSub returns max(a-b, 0).
func SaturatingSub(a, b *uint256.Int) *uint256.Int {
	if Amount(a).Lt(Amount(b)) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(Amount(a), Amount(b))
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(Amount(a), Amount(b))
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", lockerrors.ErrOverflow, Amount(a).Dec(), Amount(b).Dec())
	}
	return product, nil
}

// MulDiv returns floor(a*b/d). The product must fit in 256 bits.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if Amount(d).IsZero() {
		return nil, fmt.Errorf("%w: division by zero", lockerrors.ErrValidation)
	}
	product, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	return product.Div(product, d), nil
}

// MulDivUp returns ceil(a*b/d). The product must fit in 256 bits.
func MulDivUp(a, b, d *uint256.Int) (*uint256.Int, error) {
	if Amount(d).IsZero() {
		return nil, fmt.Errorf("%w: division by zero", lockerrors.ErrValidation)
	}
	product, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	quo, rem := new(uint256.Int).DivMod(product, d, new(uint256.Int))
	if !rem.IsZero() {
		quo.AddUint64(quo, 1)
	}
	return quo, nil
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if Amount(b).Lt(Amount(a)) {
		return Clone(b)
	}
	return Clone(a)
}

// ParseAmount decodes a base-10 amount string.
func ParseAmount(value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	parsed, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q: %v", lockerrors.ErrValidation, value, err)
	}
	return parsed, nil
}

// FormatAmount renders an amount in base 10, treating nil as zero.
func FormatAmount(v *uint256.Int) string {
	return Amount(v).Dec()
}
