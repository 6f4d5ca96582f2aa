package curve

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func mustEval(t *testing.T, c Curve, at uint64) uint64 {
	t.Helper()
	got, err := c.Evaluate(at)
	if err != nil {
		t.Fatalf("evaluate(%d): %v", at, err)
	}
	return got.Uint64()
}

func TestConstant(t *testing.T) {
	c := Constant(u(524))
	if err := c.ValidateMonotonicIncreasing(); err != nil {
		t.Fatalf("constant should validate increasing: %v", err)
	}
	if err := c.ValidateMonotonicDecreasing(); err != nil {
		t.Fatalf("constant should validate decreasing: %v", err)
	}
	for _, at := range []uint64{0, 1, 1_000_000, math.MaxUint64} {
		if got := mustEval(t, c, at); got != 524 {
			t.Fatalf("evaluate(%d) = %d, want 524", at, got)
		}
	}
	low, high := c.Range()
	if low.Uint64() != 524 || high.Uint64() != 524 {
		t.Fatalf("unexpected range %s..%s", low, high)
	}
}

func TestSaturatingLinearIncreasing(t *testing.T) {
	c, err := SaturatingLinear(100, u(0), 200, u(50))
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if err := c.ValidateMonotonicDecreasing(); !errors.Is(err, lockerrors.ErrValidation) {
		t.Fatalf("expected validation error for decreasing check, got %v", err)
	}
	cases := map[uint64]uint64{
		0:       0,
		100:     0,
		103:     1,
		150:     25,
		199:     49,
		200:     50,
		1000000: 50,
	}
	for at, want := range cases {
		if got := mustEval(t, c, at); got != want {
			t.Fatalf("evaluate(%d) = %d, want %d", at, got, want)
		}
	}
}

func TestSaturatingLinearDecreasingRoundsDown(t *testing.T) {
	c, err := SaturatingLinear(1700, u(500), 2000, u(200))
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	dir, err := c.Direction()
	if err != nil || dir != DirectionDecreasing {
		t.Fatalf("expected decreasing, got %v (%v)", dir, err)
	}
	if got := mustEval(t, c, 1695); got != 500 {
		t.Fatalf("before start = %d", got)
	}
	if got := mustEval(t, c, 1800); got != 400 {
		t.Fatalf("evaluate(1800) = %d, want 400", got)
	}
	if got := mustEval(t, c, 1997); got != 203 {
		t.Fatalf("evaluate(1997) = %d, want 203", got)
	}
	third, err := SaturatingLinear(0, u(100), 3, u(0))
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if got := mustEval(t, third, 1); got != 66 {
		t.Fatalf("evaluate(1) = %d, want 66 (floor of 66.67)", got)
	}
}

func TestSaturatingLinearRejectsReversedTimes(t *testing.T) {
	if _, err := SaturatingLinear(15000, u(100), 12000, u(200)); !errors.Is(err, lockerrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := SaturatingLinear(10, u(100), 10, u(200)); !errors.Is(err, lockerrors.ErrValidation) {
		t.Fatalf("expected validation error for equal times, got %v", err)
	}
}

func TestSaturatingLinearMonotonicAcrossDomain(t *testing.T) {
	c, err := SaturatingLinear(10, u(7), 1_010, u(123_457))
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if got := mustEval(t, c, 10); got != 7 {
		t.Fatalf("evaluate(start) = %d", got)
	}
	if got := mustEval(t, c, 1_010); got != 123_457 {
		t.Fatalf("evaluate(end) = %d", got)
	}
	prev := uint64(0)
	for at := uint64(0); at < 1_100; at++ {
		got := mustEval(t, c, at)
		if got < prev {
			t.Fatalf("curve decreased at %d: %d < %d", at, got, prev)
		}
		prev = got
	}
}

func TestPiecewiseLinear(t *testing.T) {
	c, err := PiecewiseLinear(
		Point{T: 100, Y: u(0)},
		Point{T: 200, Y: u(100)},
		Point{T: 300, Y: u(100)},
		Point{T: 400, Y: u(400)},
	)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	cases := map[uint64]uint64{
		0:    0,
		100:  0,
		150:  50,
		200:  100,
		250:  100,
		300:  100,
		301:  103,
		350:  250,
		400:  400,
		9999: 400,
	}
	for at, want := range cases {
		if got := mustEval(t, c, at); got != want {
			t.Fatalf("evaluate(%d) = %d, want %d", at, got, want)
		}
	}
	if c.Horizon() != 400 {
		t.Fatalf("unexpected horizon %d", c.Horizon())
	}
	if c.Complexity() != 4 {
		t.Fatalf("unexpected complexity %d", c.Complexity())
	}
}

func TestPiecewiseSingleStepIsConstant(t *testing.T) {
	c, err := PiecewiseLinear(Point{T: 12345, Y: u(524)})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if got := mustEval(t, c, 1); got != 524 {
		t.Fatalf("evaluate(1) = %d", got)
	}
	if got := mustEval(t, c, 1_000_000); got != 524 {
		t.Fatalf("evaluate(1e6) = %d", got)
	}
}

func TestPiecewiseValidation(t *testing.T) {
	cases := []struct {
		name  string
		steps []Point
	}{
		{"empty", nil},
		{"unsorted", []Point{{T: 200, Y: u(1)}, {T: 100, Y: u(2)}}},
		{"duplicate", []Point{{T: 100, Y: u(1)}, {T: 100, Y: u(2)}}},
		{"not monotonic", []Point{{T: 1, Y: u(1)}, {T: 2, Y: u(5)}, {T: 3, Y: u(2)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := PiecewiseLinear(tc.steps...); !errors.Is(err, lockerrors.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestEvaluateOverflowFailsLoudly(t *testing.T) {
	ceiling := new(uint256.Int).SetAllOne()
	c, err := SaturatingLinear(0, u(0), math.MaxUint64, ceiling)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if _, err := c.Evaluate(math.MaxUint64 / 2); !errors.Is(err, lockerrors.ErrOverflow) {
		t.Fatalf("expected overflow error, got %v", err)
	}
	if got, err := c.Evaluate(math.MaxUint64); err != nil || !got.Eq(ceiling) {
		t.Fatalf("saturated value should not need arithmetic: %v %v", got, err)
	}
}

func TestCombineMin(t *testing.T) {
	schedule, err := SaturatingLinear(0, u(0), 100, u(1000))
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	capCurve, err := PiecewiseLinear(Point{T: 0, Y: u(200)}, Point{T: 200, Y: u(600)})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	combined, err := CombineMin(schedule, capCurve)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	cases := map[uint64]uint64{0: 0, 10: 100, 30: 260, 50: 300, 100: 400, 500: 600}
	for at, want := range cases {
		if got := mustEval(t, combined, at); got != want {
			t.Fatalf("evaluate(%d) = %d, want %d", at, got, want)
		}
	}
	if combined.Horizon() != 200 {
		t.Fatalf("unexpected horizon %d", combined.Horizon())
	}
	if _, err := CombineMin(schedule, Constant(u(10))); err != nil {
		t.Fatalf("flat operand should combine: %v", err)
	}
}

func TestCombineMinRejectsMixedDirections(t *testing.T) {
	up, _ := SaturatingLinear(0, u(0), 100, u(1000))
	down, _ := SaturatingLinear(0, u(1000), 100, u(0))
	if _, err := CombineMin(up, down); !errors.Is(err, lockerrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCurveJSONRoundTrip(t *testing.T) {
	up, _ := SaturatingLinear(10, u(0), 110, u(1000))
	steps, _ := PiecewiseLinear(Point{T: 0, Y: u(50)}, Point{T: 500, Y: u(900)})
	combined, err := CombineMin(up, steps)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	raw, err := json.Marshal(combined)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Curve
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, at := range []uint64{0, 10, 60, 110, 300, 600} {
		if mustEval(t, decoded, at) != mustEval(t, combined, at) {
			t.Fatalf("decoded curve differs at %d", at)
		}
	}
	bad := []byte(`{"kind":"piecewise_linear","steps":[{"t":5,"y":"1"},{"t":4,"y":"2"}]}`)
	if err := json.Unmarshal(bad, &decoded); !errors.Is(err, lockerrors.ErrValidation) {
		t.Fatalf("expected validation error decoding unsorted steps, got %v", err)
	}
}
