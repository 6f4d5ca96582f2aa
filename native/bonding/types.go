package bonding

import (
	"fmt"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
	"tokenlock/native/common"
	"tokenlock/native/curve"
	"tokenlock/native/rewards"
)

// BpsDenominator is the denominator for tier multipliers.
const BpsDenominator = 10_000

// Tier is a static bonding tier. Exactly one of UnbondingPeriod and Release
// is set: a fixed wait in seconds, or a ratio curve over seconds since the
// unbond request describing progressive release.
type Tier struct {
	ID              uint64
	Name            string
	UnbondingPeriod uint64
	Release         *curve.Scalable
	RewardBps       uint64
	VotingBps       uint64
}

// Validate checks the tier definition.
func (t Tier) Validate() error {
	if t.ID == 0 {
		return fmt.Errorf("%w: tier id must be positive", lockerrors.ErrValidation)
	}
	if (t.UnbondingPeriod == 0) == (t.Release == nil) {
		return fmt.Errorf("%w: tier %d needs exactly one of unbonding period or release curve", lockerrors.ErrValidation, t.ID)
	}
	if t.RewardBps == 0 && t.VotingBps == 0 {
		return fmt.Errorf("%w: tier %d has no reward or voting multiplier", lockerrors.ErrValidation, t.ID)
	}
	if t.Release != nil {
		if err := t.Release.Validate(); err != nil {
			return err
		}
		if err := t.Release.Shape.ValidateMonotonicIncreasing(); err != nil {
			return err
		}
		final, err := t.Release.Shape.Evaluate(t.Release.Shape.Horizon())
		if err != nil {
			return err
		}
		if !final.Eq(curve.RatioScale) {
			return fmt.Errorf("%w: tier %d release curve must end at 100%%", lockerrors.ErrValidation, t.ID)
		}
	}
	return nil
}

// Duration returns the time from request until an unbond is fully released.
func (t Tier) Duration() uint64 {
	if t.Release != nil {
		return t.Release.Shape.Horizon()
	}
	return t.UnbondingPeriod
}

func (t Tier) releaseAt(now uint64) (uint64, error) {
	at := now + t.Duration()
	if at < now {
		return 0, fmt.Errorf("%w: release time %d + %d", lockerrors.ErrOverflow, now, t.Duration())
	}
	return at, nil
}

func applyBps(amount *uint256.Int, bps uint64, minBond *uint256.Int) (*uint256.Int, error) {
	if amount.IsZero() || amount.Lt(common.Amount(minBond)) {
		return common.Zero(), nil
	}
	return common.MulDiv(amount, uint256.NewInt(bps), uint256.NewInt(BpsDenominator))
}

// released returns how much of req is released at now, cumulatively.
func (t Tier) released(req UnbondRequest, now uint64) (*uint256.Int, error) {
	if t.Release == nil {
		if now >= req.ReleaseAt {
			return common.Clone(req.Amount), nil
		}
		return common.Zero(), nil
	}
	if now <= req.RequestedAt {
		return common.Zero(), nil
	}
	schedule, err := t.Release.Scale(req.Amount)
	if err != nil {
		return nil, err
	}
	value, err := schedule.Evaluate(now - req.RequestedAt)
	if err != nil {
		return nil, err
	}
	return common.Min(value, req.Amount), nil
}

// UnbondRequest is a pending release. Delegated is the part that returns to
// vesting custody; liquid tokens are released before delegated ones.
type UnbondRequest struct {
	ID          uint64
	Amount      *uint256.Int
	Delegated   *uint256.Int
	Released    *uint256.Int
	RequestedAt uint64
	ReleaseAt   uint64
}

func (r UnbondRequest) clone() UnbondRequest {
	r.Amount = common.Clone(r.Amount)
	r.Delegated = common.Clone(r.Delegated)
	r.Released = common.Clone(r.Released)
	return r
}

// Outstanding returns the amount still waiting for release.
func (r UnbondRequest) Outstanding() *uint256.Int {
	return common.SaturatingSub(r.Amount, r.Released)
}

func (r UnbondRequest) liquid() *uint256.Int {
	return common.SaturatingSub(r.Amount, r.Delegated)
}

// outstandingDelegated is the delegated part not yet returned to custody.
func (r UnbondRequest) outstandingDelegated() *uint256.Int {
	releasedDelegated := common.SaturatingSub(r.Released, r.liquid())
	return common.SaturatingSub(r.Delegated, releasedDelegated)
}

// split divides a newly released amount into liquid and delegated parts.
func (r UnbondRequest) split(amount *uint256.Int) (liquid, delegated *uint256.Int) {
	liquidLeft := common.SaturatingSub(r.liquid(), r.Released)
	liquid = common.Min(amount, liquidLeft)
	delegated = common.SaturatingSub(amount, liquid)
	return liquid, delegated
}

// Entry is the bond of one account in one tier.
type Entry struct {
	Account   [20]byte
	Tier      uint64
	Liquid    *uint256.Int
	Delegated *uint256.Int
	// Source is the vesting account backing Delegated, zero when none.
	Source        [20]byte
	Unbonding     []UnbondRequest
	NextRequestID uint64
	Reward        rewards.Position
}

func newEntry(account [20]byte, tier uint64) *Entry {
	return &Entry{
		Account:       account,
		Tier:          tier,
		Liquid:        common.Zero(),
		Delegated:     common.Zero(),
		NextRequestID: 1,
		Reward:        rewards.Position{Weight: common.Zero(), Last: common.Zero(), Accrued: common.Zero()},
	}
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Liquid = common.Clone(e.Liquid)
	out.Delegated = common.Clone(e.Delegated)
	out.Reward = e.Reward.Clone()
	if len(e.Unbonding) > 0 {
		out.Unbonding = make([]UnbondRequest, len(e.Unbonding))
		for i, req := range e.Unbonding {
			out.Unbonding[i] = req.clone()
		}
	}
	return &out
}

// Bonded returns the total bonded amount, liquid and delegated.
func (e *Entry) Bonded() *uint256.Int {
	return new(uint256.Int).Add(common.Amount(e.Liquid), common.Amount(e.Delegated))
}

// DelegatedOutstanding returns delegated tokens not yet back in custody,
// bonded or unbonding.
func (e *Entry) DelegatedOutstanding() *uint256.Int {
	total := common.Clone(e.Delegated)
	for _, req := range e.Unbonding {
		total.Add(total, req.outstandingDelegated())
	}
	return total
}

// UnbondingTotal returns the total amount waiting for release.
func (e *Entry) UnbondingTotal() *uint256.Int {
	total := common.Zero()
	for _, req := range e.Unbonding {
		total.Add(total, req.Outstanding())
	}
	return total
}

// Empty reports whether the entry can be removed.
func (e *Entry) Empty() bool {
	return e.Bonded().IsZero() && len(e.Unbonding) == 0 && common.Amount(e.Reward.Accrued).IsZero()
}

// TierAmount is an amount held in one tier.
type TierAmount struct {
	Tier   uint64
	Amount *uint256.Int
}

// TierTotals aggregates one tier over all accounts.
type TierTotals struct {
	Tier      uint64
	Bonded    *uint256.Int
	Unbonding *uint256.Int
}

// Clone returns a deep copy of the totals.
func (t *TierTotals) Clone() *TierTotals {
	if t == nil {
		return nil
	}
	return &TierTotals{Tier: t.Tier, Bonded: common.Clone(t.Bonded), Unbonding: common.Clone(t.Unbonding)}
}
