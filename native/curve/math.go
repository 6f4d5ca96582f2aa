package curve

import (
	"github.com/holiman/uint256"

	nativecommon "tokenlock/native/common"
)

// interpolate returns the value at t between a and b (a.T < t < b.T), rounded
// down so the result never exceeds the exact value.
func interpolate(a, b Point, t uint64) (*uint256.Int, error) {
	elapsed := uint256.NewInt(t - a.T)
	span := uint256.NewInt(b.T - a.T)
	from, to := amount(a.Y), amount(b.Y)
	if !to.Lt(from) {
		delta := new(uint256.Int).Sub(to, from)
		step, err := nativecommon.MulDiv(delta, elapsed, span)
		if err != nil {
			return nil, err
		}
		return nativecommon.Add(from, step)
	}
	delta := new(uint256.Int).Sub(from, to)
	step, err := nativecommon.MulDivUp(delta, elapsed, span)
	if err != nil {
		return nil, err
	}
	return nativecommon.Sub(from, step)
}

func amount(v *uint256.Int) *uint256.Int { return nativecommon.Amount(v) }

func clone(v *uint256.Int) *uint256.Int { return nativecommon.Clone(v) }

func cloneOrNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

func clonePoints(points []Point) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{T: p.T, Y: clone(p.Y)}
	}
	return out
}

func minMax(a, b *uint256.Int) (low, high *uint256.Int) {
	if amount(b).Lt(amount(a)) {
		return clone(b), clone(a)
	}
	return clone(a), clone(b)
}
