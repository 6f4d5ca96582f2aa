package curve

import (
	"fmt"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
	nativecommon "tokenlock/native/common"
)

// RatioScale is the fixed-point denominator for Scalable ratios (1e18 == 100%).
var RatioScale = uint256.NewInt(1_000_000_000_000_000_000)

// Percent converts a whole percentage into a Scalable ratio.
func Percent(p uint64) *uint256.Int {
	return new(uint256.Int).Div(new(uint256.Int).Mul(uint256.NewInt(p), RatioScale), uint256.NewInt(100))
}

// Bps converts basis points into a Scalable ratio.
func Bps(bps uint64) *uint256.Int {
	return new(uint256.Int).Div(new(uint256.Int).Mul(uint256.NewInt(bps), RatioScale), uint256.NewInt(10_000))
}

// Scalable is a curve shape whose Y values are ratios of RatioScale. Scaling it
// by an amount yields a concrete Curve, which lets one schedule serve many
// allocations of different sizes.
type Scalable struct {
	Shape Curve
}

// Validate checks the shape and that no ratio exceeds 100%.
func (s Scalable) Validate() error {
	if s.Shape.Kind == KindMin {
		return fmt.Errorf("%w: scalable curves cannot be combined", lockerrors.ErrValidation)
	}
	if err := s.Shape.Validate(); err != nil {
		return err
	}
	_, high := s.Shape.Range()
	if high.Gt(RatioScale) {
		return fmt.Errorf("%w: ratio %s exceeds 100%%", lockerrors.ErrValidation, high.Dec())
	}
	return nil
}

// Scale multiplies every ratio by amount, rounding down.
func (s Scalable) Scale(amount *uint256.Int) (Curve, error) {
	if err := s.Validate(); err != nil {
		return Curve{}, err
	}
	scale := func(ratio *uint256.Int) (*uint256.Int, error) {
		return nativecommon.MulDiv(amount, nativecommon.Amount(ratio), RatioScale)
	}
	out := s.Shape.Clone()
	switch out.Kind {
	case KindConstant:
		y, err := scale(out.Y)
		if err != nil {
			return Curve{}, err
		}
		out.Y = y
	case KindSaturatingLinear:
		from, err := scale(out.From.Y)
		if err != nil {
			return Curve{}, err
		}
		to, err := scale(out.To.Y)
		if err != nil {
			return Curve{}, err
		}
		out.From.Y, out.To.Y = from, to
	case KindPiecewiseLinear:
		for i := range out.Steps {
			y, err := scale(out.Steps[i].Y)
			if err != nil {
				return Curve{}, err
			}
			out.Steps[i].Y = y
		}
	}
	return out, nil
}

// Shift returns a copy of the shape with every time coordinate moved by offset.
// It is used to anchor relative schedules (seconds since an event) to an
// absolute start time.
func (s Scalable) Shift(offset uint64) (Scalable, error) {
	shape := s.Shape.Clone()
	shift := func(t uint64) (uint64, error) {
		next := t + offset
		if next < t {
			return 0, fmt.Errorf("%w: time %d + %d", lockerrors.ErrOverflow, t, offset)
		}
		return next, nil
	}
	var err error
	switch shape.Kind {
	case KindSaturatingLinear:
		if shape.From.T, err = shift(shape.From.T); err != nil {
			return Scalable{}, err
		}
		if shape.To.T, err = shift(shape.To.T); err != nil {
			return Scalable{}, err
		}
	case KindPiecewiseLinear:
		for i := range shape.Steps {
			if shape.Steps[i].T, err = shift(shape.Steps[i].T); err != nil {
				return Scalable{}, err
			}
		}
	}
	return Scalable{Shape: shape}, nil
}
