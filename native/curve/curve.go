package curve

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
)

// Kind tags the variant held by a Curve.
type Kind uint8

const (
	KindConstant Kind = iota + 1
	KindSaturatingLinear
	KindPiecewiseLinear
	KindMin
)

func (k Kind) String() string {
	switch k {
	case KindConstant:
		return "constant"
	case KindSaturatingLinear:
		return "saturating_linear"
	case KindPiecewiseLinear:
		return "piecewise_linear"
	case KindMin:
		return "min"
	default:
		return "unknown"
	}
}

// Direction describes the monotonic shape of a curve over its whole domain.
type Direction uint8

const (
	DirectionFlat Direction = iota
	DirectionIncreasing
	DirectionDecreasing
	DirectionNotMonotonic
)

func (d Direction) String() string {
	switch d {
	case DirectionFlat:
		return "flat"
	case DirectionIncreasing:
		return "increasing"
	case DirectionDecreasing:
		return "decreasing"
	default:
		return "not_monotonic"
	}
}

// compatible reports whether two directions can be combined without breaking
// monotonicity. Flat curves combine with anything monotonic.
func (d Direction) compatible(other Direction) bool {
	if d == DirectionNotMonotonic || other == DirectionNotMonotonic {
		return false
	}
	return d == DirectionFlat || other == DirectionFlat || d == other
}

// Point is a single (t, y) coordinate. T is expressed in unix seconds.
type Point struct {
	T uint64
	Y *uint256.Int
}

// Curve is a pure function of time returning a token amount. The variant is
// selected by Kind; only the fields belonging to that variant are populated.
type Curve struct {
	Kind     Kind
	Y        *uint256.Int
	From     Point
	To       Point
	Steps    []Point
	Operands []Curve
}

// Constant returns a curve evaluating to y for every t.
func Constant(y *uint256.Int) Curve {
	return Curve{Kind: KindConstant, Y: clone(y)}
}

// SaturatingLinear returns a curve that is startY up to startT, endY from endT
// onwards and linear in between.
func SaturatingLinear(startT uint64, startY *uint256.Int, endT uint64, endY *uint256.Int) (Curve, error) {
	c := Curve{
		Kind: KindSaturatingLinear,
		From: Point{T: startT, Y: clone(startY)},
		To:   Point{T: endT, Y: clone(endY)},
	}
	if err := c.Validate(); err != nil {
		return Curve{}, err
	}
	return c, nil
}

// PiecewiseLinear returns a curve interpolating linearly between the provided
// steps. Steps must be strictly increasing in T and monotonic in Y.
func PiecewiseLinear(steps ...Point) (Curve, error) {
	c := Curve{Kind: KindPiecewiseLinear, Steps: clonePoints(steps)}
	if err := c.Validate(); err != nil {
		return Curve{}, err
	}
	return c, nil
}

// CombineMin returns a curve evaluating to the pointwise minimum of a and b.
// Both inputs must share a monotonic direction; this is checked here and never
// at evaluation time.
func CombineMin(a, b Curve) (Curve, error) {
	da, err := a.Direction()
	if err != nil {
		return Curve{}, err
	}
	db, err := b.Direction()
	if err != nil {
		return Curve{}, err
	}
	if !da.compatible(db) {
		return Curve{}, fmt.Errorf("%w: cannot combine %s curve with %s curve", lockerrors.ErrValidation, da, db)
	}
	return Curve{Kind: KindMin, Operands: []Curve{a.Clone(), b.Clone()}}, nil
}

// Clone returns a deep copy of the curve.
func (c Curve) Clone() Curve {
	out := Curve{
		Kind: c.Kind,
		Y:    cloneOrNil(c.Y),
		From: Point{T: c.From.T, Y: cloneOrNil(c.From.Y)},
		To:   Point{T: c.To.T, Y: cloneOrNil(c.To.Y)},
	}
	if len(c.Steps) > 0 {
		out.Steps = clonePoints(c.Steps)
	}
	if len(c.Operands) > 0 {
		out.Operands = make([]Curve, len(c.Operands))
		for i := range c.Operands {
			out.Operands[i] = c.Operands[i].Clone()
		}
	}
	return out
}

// Validate performs structural checks and verifies the curve is monotonic.
func (c Curve) Validate() error {
	_, err := c.Direction()
	return err
}

// Direction validates the curve and classifies its monotonic shape.
func (c Curve) Direction() (Direction, error) {
	switch c.Kind {
	case KindConstant:
		return DirectionFlat, nil
	case KindSaturatingLinear:
		if c.To.T <= c.From.T {
			return 0, fmt.Errorf("%w: end time %d must be after start time %d", lockerrors.ErrValidation, c.To.T, c.From.T)
		}
		return classify(amount(c.From.Y), amount(c.To.Y)), nil
	case KindPiecewiseLinear:
		if len(c.Steps) == 0 {
			return 0, fmt.Errorf("%w: piecewise curve has no steps", lockerrors.ErrValidation)
		}
		shape := DirectionFlat
		for i := 1; i < len(c.Steps); i++ {
			prev, next := c.Steps[i-1], c.Steps[i]
			if next.T <= prev.T {
				return 0, fmt.Errorf("%w: step %d time %d not after %d", lockerrors.ErrValidation, i, next.T, prev.T)
			}
			segment := classify(amount(prev.Y), amount(next.Y))
			switch {
			case segment == DirectionFlat:
			case shape == DirectionFlat:
				shape = segment
			case shape != segment:
				return 0, fmt.Errorf("%w: piecewise curve is not monotonic", lockerrors.ErrValidation)
			}
		}
		return shape, nil
	case KindMin:
		if len(c.Operands) != 2 {
			return 0, fmt.Errorf("%w: min curve needs two operands, got %d", lockerrors.ErrValidation, len(c.Operands))
		}
		da, err := c.Operands[0].Direction()
		if err != nil {
			return 0, err
		}
		db, err := c.Operands[1].Direction()
		if err != nil {
			return 0, err
		}
		if !da.compatible(db) {
			return 0, fmt.Errorf("%w: min operands have directions %s and %s", lockerrors.ErrValidation, da, db)
		}
		if da == DirectionFlat {
			return db, nil
		}
		return da, nil
	default:
		return 0, fmt.Errorf("%w: unknown curve kind %d", lockerrors.ErrValidation, c.Kind)
	}
}

// ValidateMonotonicIncreasing fails if there exist t2 > t1 with value(t2) < value(t1).
func (c Curve) ValidateMonotonicIncreasing() error {
	dir, err := c.Direction()
	if err != nil {
		return err
	}
	if dir == DirectionDecreasing {
		return fmt.Errorf("%w: curve is monotonic decreasing", lockerrors.ErrValidation)
	}
	return nil
}

// ValidateMonotonicDecreasing fails if there exist t2 > t1 with value(t2) > value(t1).
func (c Curve) ValidateMonotonicDecreasing() error {
	dir, err := c.Direction()
	if err != nil {
		return err
	}
	if dir == DirectionIncreasing {
		return fmt.Errorf("%w: curve is monotonic increasing", lockerrors.ErrValidation)
	}
	return nil
}

// Complexity returns the number of points defining the curve.
func (c Curve) Complexity() int {
	switch c.Kind {
	case KindConstant:
		return 1
	case KindSaturatingLinear:
		return 2
	case KindPiecewiseLinear:
		return len(c.Steps)
	case KindMin:
		total := 0
		for _, op := range c.Operands {
			total += op.Complexity()
		}
		return total
	default:
		return 0
	}
}

// Evaluate returns y = f(t). Arithmetic that would exceed 256 bits fails with
// ErrOverflow instead of wrapping.
func (c Curve) Evaluate(t uint64) (*uint256.Int, error) {
	switch c.Kind {
	case KindConstant:
		return clone(c.Y), nil
	case KindSaturatingLinear:
		switch {
		case t <= c.From.T:
			return clone(c.From.Y), nil
		case t >= c.To.T:
			return clone(c.To.Y), nil
		default:
			return interpolate(c.From, c.To, t)
		}
	case KindPiecewiseLinear:
		return evaluateSteps(c.Steps, t)
	case KindMin:
		if len(c.Operands) != 2 {
			return nil, fmt.Errorf("%w: min curve needs two operands", lockerrors.ErrValidation)
		}
		a, err := c.Operands[0].Evaluate(t)
		if err != nil {
			return nil, err
		}
		b, err := c.Operands[1].Evaluate(t)
		if err != nil {
			return nil, err
		}
		if b.Lt(a) {
			return b, nil
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: unknown curve kind %d", lockerrors.ErrValidation, c.Kind)
	}
}

// Range returns the smallest and largest values the curve can ever produce.
func (c Curve) Range() (low, high *uint256.Int) {
	switch c.Kind {
	case KindConstant:
		return clone(c.Y), clone(c.Y)
	case KindSaturatingLinear:
		return minMax(c.From.Y, c.To.Y)
	case KindPiecewiseLinear:
		if len(c.Steps) == 0 {
			return new(uint256.Int), new(uint256.Int)
		}
		low, high = clone(c.Steps[0].Y), clone(c.Steps[0].Y)
		for _, step := range c.Steps[1:] {
			y := amount(step.Y)
			if y.Lt(low) {
				low.Set(y)
			}
			if y.Gt(high) {
				high.Set(y)
			}
		}
		return low, high
	case KindMin:
		if len(c.Operands) != 2 {
			return new(uint256.Int), new(uint256.Int)
		}
		lowA, highA := c.Operands[0].Range()
		lowB, highB := c.Operands[1].Range()
		low, _ = minMax(lowA, lowB)
		high, _ = minMax(highA, highB)
		return low, high
	default:
		return new(uint256.Int), new(uint256.Int)
	}
}

// Horizon returns the time from which the curve no longer changes.
func (c Curve) Horizon() uint64 {
	switch c.Kind {
	case KindSaturatingLinear:
		return c.To.T
	case KindPiecewiseLinear:
		if len(c.Steps) == 0 {
			return 0
		}
		return c.Steps[len(c.Steps)-1].T
	case KindMin:
		var horizon uint64
		for _, op := range c.Operands {
			if h := op.Horizon(); h > horizon {
				horizon = h
			}
		}
		return horizon
	default:
		return 0
	}
}

func evaluateSteps(steps []Point, t uint64) (*uint256.Int, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: piecewise curve has no steps", lockerrors.ErrValidation)
	}
	// idx is the first step strictly after t.
	idx := sort.Search(len(steps), func(i int) bool { return steps[i].T > t })
	switch {
	case idx == 0:
		return clone(steps[0].Y), nil
	case idx == len(steps):
		return clone(steps[len(steps)-1].Y), nil
	}
	prev := steps[idx-1]
	if prev.T == t {
		return clone(prev.Y), nil
	}
	return interpolate(prev, steps[idx], t)
}

func classify(from, to *uint256.Int) Direction {
	switch from.Cmp(to) {
	case -1:
		return DirectionIncreasing
	case 1:
		return DirectionDecreasing
	default:
		return DirectionFlat
	}
}
