package curve

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
	nativecommon "tokenlock/native/common"
)

// DeclPoint is a point of a Decl. Y is a base-10 string.
type DeclPoint struct {
	T uint64 `json:"t" yaml:"t" toml:"t"`
	Y string `json:"y" yaml:"y" toml:"y"`
}

// Decl is the flat form used to write curves in configuration and genesis
// files. Kind is "constant" (Y only), "saturating_linear" (exactly two
// steps) or "piecewise_linear".
type Decl struct {
	Kind  string      `json:"kind" yaml:"kind" toml:"kind"`
	Y     string      `json:"y,omitempty" yaml:"y,omitempty" toml:"y,omitempty"`
	Steps []DeclPoint `json:"steps,omitempty" yaml:"steps,omitempty" toml:"steps,omitempty"`
}

// Curve builds the declared curve with Y values read as token amounts.
func (d Decl) Curve() (Curve, error) {
	return d.build(nativecommon.ParseAmount)
}

// Scalable builds the declared curve with Y values read as basis points of
// the scaled amount, so "10000" is 100%.
func (d Decl) Scalable() (Scalable, error) {
	c, err := d.build(parseBps)
	if err != nil {
		return Scalable{}, err
	}
	s := Scalable{Shape: c}
	if err := s.Validate(); err != nil {
		return Scalable{}, err
	}
	return s, nil
}

func (d Decl) build(parse func(string) (*uint256.Int, error)) (Curve, error) {
	points := make([]Point, len(d.Steps))
	for i, step := range d.Steps {
		y, err := parse(step.Y)
		if err != nil {
			return Curve{}, fmt.Errorf("step %d: %w", i, err)
		}
		points[i] = Point{T: step.T, Y: y}
	}
	switch strings.ToLower(strings.TrimSpace(d.Kind)) {
	case KindConstant.String():
		y, err := parse(d.Y)
		if err != nil {
			return Curve{}, err
		}
		return Constant(y), nil
	case KindSaturatingLinear.String(), "linear":
		if len(points) != 2 {
			return Curve{}, fmt.Errorf("%w: saturating_linear takes two steps, got %d", lockerrors.ErrValidation, len(points))
		}
		return SaturatingLinear(points[0].T, points[0].Y, points[1].T, points[1].Y)
	case KindPiecewiseLinear.String(), "piecewise":
		return PiecewiseLinear(points...)
	default:
		return Curve{}, fmt.Errorf("%w: unknown curve kind %q", lockerrors.ErrValidation, d.Kind)
	}
}

func parseBps(value string) (*uint256.Int, error) {
	bps, err := nativecommon.ParseAmount(value)
	if err != nil {
		return nil, err
	}
	if !bps.IsUint64() || bps.Uint64() > 10_000 {
		return nil, fmt.Errorf("%w: ratio %s bps exceeds 10000", lockerrors.ErrValidation, bps.Dec())
	}
	return Bps(bps.Uint64()), nil
}
