package curve

import (
	"encoding/json"
	"fmt"

	lockerrors "tokenlock/core/errors"
	nativecommon "tokenlock/native/common"
)

type pointJSON struct {
	T uint64 `json:"t"`
	Y string `json:"y"`
}

type curveJSON struct {
	Kind     string      `json:"kind"`
	Y        string      `json:"y,omitempty"`
	From     *pointJSON  `json:"from,omitempty"`
	To       *pointJSON  `json:"to,omitempty"`
	Steps    []pointJSON `json:"steps,omitempty"`
	Operands []Curve     `json:"operands,omitempty"`
}

func encodePoint(p Point) pointJSON {
	return pointJSON{T: p.T, Y: nativecommon.FormatAmount(p.Y)}
}

func decodePoint(p pointJSON) (Point, error) {
	y, err := nativecommon.ParseAmount(p.Y)
	if err != nil {
		return Point{}, err
	}
	return Point{T: p.T, Y: y}, nil
}

// MarshalJSON renders amounts as base-10 strings.
func (c Curve) MarshalJSON() ([]byte, error) {
	out := curveJSON{Kind: c.Kind.String()}
	switch c.Kind {
	case KindConstant:
		out.Y = nativecommon.FormatAmount(c.Y)
	case KindSaturatingLinear:
		from, to := encodePoint(c.From), encodePoint(c.To)
		out.From, out.To = &from, &to
	case KindPiecewiseLinear:
		out.Steps = make([]pointJSON, len(c.Steps))
		for i, step := range c.Steps {
			out.Steps[i] = encodePoint(step)
		}
	case KindMin:
		out.Operands = c.Operands
	default:
		return nil, fmt.Errorf("%w: unknown curve kind %d", lockerrors.ErrValidation, c.Kind)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates a curve.
func (c *Curve) UnmarshalJSON(data []byte) error {
	var in curveJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var decoded Curve
	switch in.Kind {
	case KindConstant.String():
		y, err := nativecommon.ParseAmount(in.Y)
		if err != nil {
			return err
		}
		decoded = Constant(y)
	case KindSaturatingLinear.String():
		if in.From == nil || in.To == nil {
			return fmt.Errorf("%w: saturating_linear requires from and to", lockerrors.ErrValidation)
		}
		from, err := decodePoint(*in.From)
		if err != nil {
			return err
		}
		to, err := decodePoint(*in.To)
		if err != nil {
			return err
		}
		if decoded, err = SaturatingLinear(from.T, from.Y, to.T, to.Y); err != nil {
			return err
		}
	case KindPiecewiseLinear.String():
		steps := make([]Point, len(in.Steps))
		for i, raw := range in.Steps {
			step, err := decodePoint(raw)
			if err != nil {
				return err
			}
			steps[i] = step
		}
		var err error
		if decoded, err = PiecewiseLinear(steps...); err != nil {
			return err
		}
	case KindMin.String():
		if len(in.Operands) != 2 {
			return fmt.Errorf("%w: min requires two operands", lockerrors.ErrValidation)
		}
		var err error
		if decoded, err = CombineMin(in.Operands[0], in.Operands[1]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown curve kind %q", lockerrors.ErrValidation, in.Kind)
	}
	*c = decoded
	return nil
}
