package rewards

import (
	"fmt"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
	"tokenlock/native/common"
)

// PointsScale is the fixed-point multiplier applied to the accumulator.
var PointsScale = uint256.NewInt(1_000_000_000_000_000_000)

// Ledger is the global reward record. Accumulator holds rewards per weight
// unit scaled by PointsScale; Leftover carries the scaled remainder of the
// last division so no reward is lost to truncation.
type Ledger struct {
	Accumulator *uint256.Int
	TotalWeight *uint256.Int
	Leftover    *uint256.Int
	Distributed *uint256.Int
	Withdrawn   *uint256.Int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		Accumulator: common.Zero(),
		TotalWeight: common.Zero(),
		Leftover:    common.Zero(),
		Distributed: common.Zero(),
		Withdrawn:   common.Zero(),
	}
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return NewLedger()
	}
	return &Ledger{
		Accumulator: common.Clone(l.Accumulator),
		TotalWeight: common.Clone(l.TotalWeight),
		Leftover:    common.Clone(l.Leftover),
		Distributed: common.Clone(l.Distributed),
		Withdrawn:   common.Clone(l.Withdrawn),
	}
}

// Undistributed returns rewards notified but not yet withdrawn.
func (l *Ledger) Undistributed() *uint256.Int {
	return common.SaturatingSub(l.Distributed, l.Withdrawn)
}

// Position is the reward state of one bonded entry: its weight and the
// standard reward-debt pair (accumulator last seen, reward accrued since).
type Position struct {
	Weight  *uint256.Int
	Last    *uint256.Int
	Accrued *uint256.Int
}

// Clone returns a deep copy of the position.
func (p Position) Clone() Position {
	return Position{Weight: common.Clone(p.Weight), Last: common.Clone(p.Last), Accrued: common.Clone(p.Accrued)}
}

// Empty reports whether the position holds neither weight nor accrued reward.
func (p Position) Empty() bool {
	return common.Amount(p.Weight).IsZero() && common.Amount(p.Accrued).IsZero()
}

// Notify spreads amount over the total weight. It fails with ErrNoStakers,
// leaving the ledger untouched, when nothing is bonded.
func (l *Ledger) Notify(amount *uint256.Int) error {
	amount = common.Amount(amount)
	if amount.IsZero() {
		return nil
	}
	weight := common.Amount(l.TotalWeight)
	if weight.IsZero() {
		return lockerrors.ErrNoStakers
	}
	scaled, err := common.Mul(amount, PointsScale)
	if err != nil {
		return err
	}
	points, err := common.Add(scaled, l.Leftover)
	if err != nil {
		return err
	}
	perWeight, leftover := new(uint256.Int).DivMod(points, weight, new(uint256.Int))
	accumulator, err := common.Add(l.Accumulator, perWeight)
	if err != nil {
		return err
	}
	distributed, err := common.Add(l.Distributed, amount)
	if err != nil {
		return err
	}
	l.Accumulator = accumulator
	l.Leftover = leftover
	l.Distributed = distributed
	return nil
}

// Pending returns the reward owed to p without mutating it.
func (l *Ledger) Pending(p Position) (*uint256.Int, error) {
	delta := common.SaturatingSub(l.Accumulator, p.Last)
	earned, err := common.MulDiv(p.Weight, delta, PointsScale)
	if err != nil {
		return nil, err
	}
	return common.Add(p.Accrued, earned)
}

// Settle folds earned rewards into p.Accrued and advances p.Last.
func (l *Ledger) Settle(p *Position) error {
	pending, err := l.Pending(*p)
	if err != nil {
		return err
	}
	p.Accrued = pending
	p.Last = common.Clone(l.Accumulator)
	return nil
}

// Reweight settles p and moves it to weight, keeping TotalWeight in sync.
func (l *Ledger) Reweight(p *Position, weight *uint256.Int) error {
	if err := l.Settle(p); err != nil {
		return err
	}
	total, err := common.Sub(l.TotalWeight, p.Weight)
	if err != nil {
		return fmt.Errorf("rewards: total weight below position weight: %w", err)
	}
	total, err = common.Add(total, weight)
	if err != nil {
		return err
	}
	l.TotalWeight = total
	p.Weight = common.Clone(weight)
	return nil
}

// Take settles p and withdraws everything it accrued.
func (l *Ledger) Take(p *Position) (*uint256.Int, error) {
	if err := l.Settle(p); err != nil {
		return nil, err
	}
	amount := common.Clone(p.Accrued)
	withdrawn, err := common.Add(l.Withdrawn, amount)
	if err != nil {
		return nil, err
	}
	l.Withdrawn = withdrawn
	p.Accrued = common.Zero()
	return amount, nil
}
