package vesting

import (
	"fmt"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
	"tokenlock/native/common"
	"tokenlock/native/curve"
)

// Cancellation records a claw-back. Frozen is the unlocked amount that stays
// claimable by the owner; ClawedBack went to the issuer.
type Cancellation struct {
	At         uint64
	Caller     [20]byte
	Frozen     *uint256.Int
	ClawedBack *uint256.Int
}

// Account is a single vesting allocation. Total is fixed at creation and the
// record is never deleted.
type Account struct {
	Owner     [20]byte
	Issuer    [20]byte
	Total     *uint256.Int
	Schedule  curve.Curve
	Claimed   *uint256.Int
	CreatedAt uint64
	// Stage is the airdrop stage the allocation came from, zero otherwise.
	Stage uint64
	// Watermark is the latest time observed by a mutation. Evaluation never
	// goes below it so replayed timestamps cannot push unlocked under claimed.
	Watermark    uint64
	Cancellation *Cancellation
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Total = common.Clone(a.Total)
	out.Claimed = common.Clone(a.Claimed)
	out.Schedule = a.Schedule.Clone()
	if a.Cancellation != nil {
		c := *a.Cancellation
		c.Frozen = common.Clone(a.Cancellation.Frozen)
		c.ClawedBack = common.Clone(a.Cancellation.ClawedBack)
		out.Cancellation = &c
	}
	return &out
}

// Cancelled reports whether the allocation has been clawed back.
func (a *Account) Cancelled() bool { return a != nil && a.Cancellation != nil }

// effectiveTime clamps now to the watermark, the latest time a claim was
// accepted at.
func (a *Account) effectiveTime(now uint64) uint64 {
	if now < a.Watermark {
		return a.Watermark
	}
	return now
}

// Unlocked returns the cumulative unlocked amount at now, frozen after
// cancellation and never above Total.
func (a *Account) Unlocked(now uint64) (*uint256.Int, error) {
	if a.Cancellation != nil {
		return common.Clone(a.Cancellation.Frozen), nil
	}
	value, err := a.Schedule.Evaluate(a.effectiveTime(now))
	if err != nil {
		return nil, err
	}
	return common.Min(value, a.Total), nil
}

// Claimable returns Unlocked(now) - Claimed, clamped at zero. A now earlier
// than the watermark is evaluated at the watermark, so after a claim at t a
// query or claim at any earlier time sees the amount unlocked at t rather
// than the smaller amount the schedule gives for that earlier time.
func (a *Account) Claimable(now uint64) (*uint256.Int, error) {
	unlocked, err := a.Unlocked(now)
	if err != nil {
		return nil, err
	}
	return common.SaturatingSub(unlocked, a.Claimed), nil
}

// Locked returns the part of Total that is still held in custody for the
// owner, claimed tokens excluded.
func (a *Account) Locked() *uint256.Int {
	if a.Cancellation != nil {
		return common.SaturatingSub(a.Cancellation.Frozen, a.Claimed)
	}
	return common.SaturatingSub(a.Total, a.Claimed)
}

func (a *Account) claim(amount *uint256.Int, now uint64) error {
	claimable, err := a.Claimable(now)
	if err != nil {
		return err
	}
	if amount.Gt(claimable) {
		return fmt.Errorf("%w: requested %s, claimable %s", lockerrors.ErrInsufficientUnlocked, amount.Dec(), claimable.Dec())
	}
	claimed, err := common.Add(a.Claimed, amount)
	if err != nil {
		return err
	}
	a.Claimed = claimed
	a.observe(now)
	return nil
}

func (a *Account) cancel(caller [20]byte, now uint64) (*uint256.Int, error) {
	if a.Cancellation != nil {
		return nil, lockerrors.ErrAlreadyCancelled
	}
	frozen, err := a.Unlocked(now)
	if err != nil {
		return nil, err
	}
	if frozen.Lt(common.Amount(a.Claimed)) {
		frozen = common.Clone(a.Claimed)
	}
	clawback, err := common.Sub(a.Total, frozen)
	if err != nil {
		return nil, err
	}
	a.observe(now)
	a.Cancellation = &Cancellation{At: a.effectiveTime(now), Caller: caller, Frozen: frozen, ClawedBack: clawback}
	return common.Clone(clawback), nil
}

func (a *Account) observe(now uint64) {
	if now > a.Watermark {
		a.Watermark = now
	}
}

// Backing splits a delegated amount into the parts covered by unlocked and by
// still-locked tokens.
type Backing struct {
	Delegated      *uint256.Int
	VestedBacked   *uint256.Int
	UnvestedBacked *uint256.Int
}

// Stage is an airdrop allocation pool. Schedule is relative to the claim time
// and scaled by each claimed amount; Cap, when set, is an absolute-time ratio
// curve that bounds every allocation drawn from the stage.
type Stage struct {
	ID         uint64
	Issuer     [20]byte
	Schedule   curve.Scalable
	Cap        *curve.Scalable
	Total      *uint256.Int
	Claimed    *uint256.Int
	Start      uint64
	Expiry     uint64
	MerkleRoot [32]byte
}

// Clone returns a deep copy of the stage.
func (s *Stage) Clone() *Stage {
	if s == nil {
		return nil
	}
	out := *s
	out.Schedule = curve.Scalable{Shape: s.Schedule.Shape.Clone()}
	if s.Cap != nil {
		capCurve := curve.Scalable{Shape: s.Cap.Shape.Clone()}
		out.Cap = &capCurve
	}
	out.Total = common.Clone(s.Total)
	out.Claimed = common.Clone(s.Claimed)
	return &out
}

// Remaining returns the unclaimed part of the stage.
func (s *Stage) Remaining() *uint256.Int {
	return common.SaturatingSub(s.Total, s.Claimed)
}

// ProofVerifier gates airdrop claims on an inclusion proof against the
// stage's merkle root.
type ProofVerifier interface {
	VerifyAllocation(stage *Stage, owner [20]byte, amount *uint256.Int, proof [][]byte) error
}

// ProofVerifierFunc adapts a function to ProofVerifier.
type ProofVerifierFunc func(stage *Stage, owner [20]byte, amount *uint256.Int, proof [][]byte) error

func (f ProofVerifierFunc) VerifyAllocation(stage *Stage, owner [20]byte, amount *uint256.Int, proof [][]byte) error {
	return f(stage, owner, amount, proof)
}
