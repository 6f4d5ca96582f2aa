package vesting

import (
	"fmt"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
	"tokenlock/core/events"
	"tokenlock/core/types"
	"tokenlock/native/common"
	"tokenlock/native/curve"
)

type engineState interface {
	VestingAccount(owner [20]byte) (*Account, bool, error)
	PutVestingAccount(*Account) error
	AirdropStage(id uint64) (*Stage, bool, error)
	PutAirdropStage(*Stage) error
}

// DelegationView reports how much of an owner's vesting balance currently
// backs bonded entries, pending unbonds included.
type DelegationView interface {
	Delegated(owner [20]byte) (*uint256.Int, error)
}

// Config holds the static engine parameters.
type Config struct {
	// Admin may cancel any allocation and register airdrop stages.
	Admin [20]byte
	// Custody is the account holding locked tokens on behalf of owners.
	Custody [20]byte
	// MaxSteps bounds the number of points in a schedule. Zero disables the check.
	MaxSteps int
}

// Engine implements vesting allocations: creation, claims and claw-back.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	delegations DelegationView
	verifier    ProofVerifier
	pauses      common.PauseView
	cfg         Config
}

// NewEngine constructs a vesting engine. State must be supplied via SetState.
func NewEngine(cfg Config) *Engine {
	return &Engine{emitter: events.NoopEmitter{}, cfg: cfg}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetDelegations wires the bonding view used by the claim gate.
func (e *Engine) SetDelegations(view DelegationView) { e.delegations = view }

// SetProofVerifier configures the airdrop proof gate.
func (e *Engine) SetProofVerifier(v ProofVerifier) { e.verifier = v }

// SetPauses wires the pause view consulted before mutations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// Custody returns the account holding locked tokens.
func (e *Engine) Custody() [20]byte { return e.cfg.Custody }

// Admin returns the configured admin account.
func (e *Engine) Admin() [20]byte { return e.cfg.Admin }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) load(owner [20]byte) (*Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, ok, err := e.state.VestingAccount(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lockerrors.ErrAccountNotFound
	}
	return acc, nil
}

func (e *Engine) delegated(owner [20]byte) (*uint256.Int, error) {
	if e.delegations == nil {
		return common.Zero(), nil
	}
	delegated, err := e.delegations.Delegated(owner)
	if err != nil {
		return nil, err
	}
	return common.Clone(delegated), nil
}

// ValidateSchedule checks that schedule can back an allocation of total:
// increasing, within the step limit, never above total and ending at total.
func (e *Engine) ValidateSchedule(schedule curve.Curve, total *uint256.Int) error {
	if total == nil || total.IsZero() {
		return fmt.Errorf("%w: allocation must be positive", lockerrors.ErrInvalidAmount)
	}
	if err := schedule.ValidateMonotonicIncreasing(); err != nil {
		return err
	}
	if e.cfg.MaxSteps > 0 && schedule.Complexity() > e.cfg.MaxSteps {
		return fmt.Errorf("%w: schedule has %d points, limit %d", lockerrors.ErrValidation, schedule.Complexity(), e.cfg.MaxSteps)
	}
	_, high := schedule.Range()
	if high.Gt(total) {
		return fmt.Errorf("%w: schedule unlocks %s, more than allocated %s", lockerrors.ErrValidation, high.Dec(), total.Dec())
	}
	final, err := schedule.Evaluate(schedule.Horizon())
	if err != nil {
		return err
	}
	if !final.Eq(total) {
		return fmt.Errorf("%w: schedule never fully vests (%s of %s)", lockerrors.ErrValidation, final.Dec(), total.Dec())
	}
	return nil
}

// Create registers a new allocation for owner funded by issuer. The returned
// transfer moves total from the issuer into custody.
func (e *Engine) Create(owner, issuer [20]byte, total *uint256.Int, schedule curve.Curve, now uint64) (*types.Transfer, error) {
	if err := common.Guard(e.pauses, common.ModuleVesting); err != nil {
		return nil, err
	}
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.ValidateSchedule(schedule, total); err != nil {
		return nil, err
	}
	if err := e.create(owner, issuer, total, schedule, 0, now); err != nil {
		return nil, err
	}
	return types.NewTransfer(issuer, e.cfg.Custody, total, types.TransferVestingFund), nil
}

func (e *Engine) create(owner, issuer [20]byte, total *uint256.Int, schedule curve.Curve, stage uint64, now uint64) error {
	_, exists, err := e.state.VestingAccount(owner)
	if err != nil {
		return err
	}
	if exists {
		return lockerrors.ErrAccountExists
	}
	acc := &Account{
		Owner:     owner,
		Issuer:    issuer,
		Total:     common.Clone(total),
		Schedule:  schedule.Clone(),
		Claimed:   common.Zero(),
		CreatedAt: now,
		Stage:     stage,
		Watermark: now,
	}
	if err := e.state.PutVestingAccount(acc); err != nil {
		return err
	}
	e.emit(events.VestingCreated{Owner: owner, Issuer: issuer, Total: common.Clone(total), Stage: stage, At: now})
	return nil
}

// Claim releases amount of unlocked tokens to the owner. A zero amount is a
// no-op. The claim fails with ErrTokensBonded when the remaining custody
// balance would no longer cover the owner's delegated amount.
func (e *Engine) Claim(owner [20]byte, amount *uint256.Int, now uint64) (*types.Transfer, error) {
	if err := common.Guard(e.pauses, common.ModuleVesting); err != nil {
		return nil, err
	}
	acc, err := e.load(owner)
	if err != nil {
		return nil, err
	}
	amount = common.Amount(amount)
	if amount.IsZero() {
		return nil, nil
	}
	delegated, err := e.delegated(owner)
	if err != nil {
		return nil, err
	}
	if locked := acc.Locked(); !delegated.IsZero() && (amount.Gt(locked) || common.SaturatingSub(locked, amount).Lt(delegated)) {
		return nil, fmt.Errorf("%w: %s delegated, %s held", lockerrors.ErrTokensBonded, delegated.Dec(), locked.Dec())
	}
	if err := acc.claim(amount, now); err != nil {
		return nil, err
	}
	if err := e.state.PutVestingAccount(acc); err != nil {
		return nil, err
	}
	e.emit(events.VestingClaimed{Owner: owner, Amount: common.Clone(amount), Claimed: common.Clone(acc.Claimed), At: now})
	return types.NewTransfer(e.cfg.Custody, owner, amount, types.TransferVestingClaim), nil
}

// Cancel claws back the unvested part of owner's allocation. Only the issuer
// or the admin may cancel.
func (e *Engine) Cancel(owner, caller [20]byte, now uint64) (*types.Transfer, error) {
	if err := common.Guard(e.pauses, common.ModuleVesting); err != nil {
		return nil, err
	}
	acc, err := e.load(owner)
	if err != nil {
		return nil, err
	}
	if caller != acc.Issuer && (e.cfg.Admin == ([20]byte{}) || caller != e.cfg.Admin) {
		return nil, lockerrors.ErrUnauthorized
	}
	delegated, err := e.delegated(owner)
	if err != nil {
		return nil, err
	}
	clawback, err := acc.cancel(caller, now)
	if err != nil {
		return nil, err
	}
	if acc.Locked().Lt(delegated) {
		return nil, fmt.Errorf("%w: %s delegated, %s would remain", lockerrors.ErrTokensBonded, delegated.Dec(), acc.Locked().Dec())
	}
	if err := e.state.PutVestingAccount(acc); err != nil {
		return nil, err
	}
	e.emit(events.VestingCancelled{
		Owner:      owner,
		Issuer:     acc.Issuer,
		Caller:     caller,
		Frozen:     common.Clone(acc.Cancellation.Frozen),
		ClawedBack: common.Clone(clawback),
		At:         now,
	})
	return types.NewTransfer(e.cfg.Custody, acc.Issuer, clawback, types.TransferVestingClawback), nil
}

// Account returns a copy of the owner's allocation.
func (e *Engine) Account(owner [20]byte) (*Account, error) {
	acc, err := e.load(owner)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

// Claimable returns the amount unlocked but not yet claimed at now. Times
// before the account's watermark are evaluated at the watermark.
func (e *Engine) Claimable(owner [20]byte, now uint64) (*uint256.Int, error) {
	acc, err := e.load(owner)
	if err != nil {
		return nil, err
	}
	return acc.Claimable(now)
}

// Spendable returns the part of Claimable that can be claimed without
// breaking the delegation backing.
func (e *Engine) Spendable(owner [20]byte, now uint64) (*uint256.Int, error) {
	acc, err := e.load(owner)
	if err != nil {
		return nil, err
	}
	claimable, err := acc.Claimable(now)
	if err != nil {
		return nil, err
	}
	delegated, err := e.delegated(owner)
	if err != nil {
		return nil, err
	}
	free := common.SaturatingSub(acc.Locked(), delegated)
	return common.Min(claimable, free), nil
}

// Backing reports how much of the owner's delegation is covered by already
// unlocked tokens and how much by tokens that are still vesting.
func (e *Engine) Backing(owner [20]byte, now uint64) (Backing, error) {
	acc, err := e.load(owner)
	if err != nil {
		return Backing{}, err
	}
	delegated, err := e.delegated(owner)
	if err != nil {
		return Backing{}, err
	}
	unlocked, err := acc.Unlocked(now)
	if err != nil {
		return Backing{}, err
	}
	stillLocked := common.SaturatingSub(acc.Total, unlocked)
	if acc.Cancelled() {
		stillLocked = common.Zero()
	}
	unvested := common.Min(delegated, stillLocked)
	return Backing{
		Delegated:      delegated,
		VestedBacked:   common.SaturatingSub(delegated, unvested),
		UnvestedBacked: unvested,
	}, nil
}

// Available returns the custody balance of owner not yet delegated; bonding
// uses it to bound new delegations.
func (e *Engine) Available(owner [20]byte) (*uint256.Int, error) {
	acc, err := e.load(owner)
	if err != nil {
		return nil, err
	}
	delegated, err := e.delegated(owner)
	if err != nil {
		return nil, err
	}
	return common.SaturatingSub(acc.Locked(), delegated), nil
}
