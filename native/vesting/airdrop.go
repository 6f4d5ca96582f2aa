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

func validateRatioSchedule(s curve.Scalable, label string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := s.Shape.ValidateMonotonicIncreasing(); err != nil {
		return err
	}
	final, err := s.Shape.Evaluate(s.Shape.Horizon())
	if err != nil {
		return err
	}
	if !final.Eq(curve.RatioScale) {
		return fmt.Errorf("%w: %s must end at 100%%", lockerrors.ErrValidation, label)
	}
	return nil
}

// CreateStage registers an airdrop stage. Only the admin may register stages;
// the returned transfer funds custody with the stage total from the issuer.
func (e *Engine) CreateStage(stage *Stage, caller [20]byte, now uint64) (*types.Transfer, error) {
	if err := common.Guard(e.pauses, common.ModuleVesting); err != nil {
		return nil, err
	}
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if stage == nil || stage.ID == 0 {
		return nil, fmt.Errorf("%w: stage id must be positive", lockerrors.ErrValidation)
	}
	if e.cfg.Admin == ([20]byte{}) || caller != e.cfg.Admin {
		return nil, lockerrors.ErrUnauthorized
	}
	if stage.Total == nil || stage.Total.IsZero() {
		return nil, fmt.Errorf("%w: stage total must be positive", lockerrors.ErrInvalidAmount)
	}
	if stage.Expiry != 0 && stage.Expiry <= stage.Start {
		return nil, fmt.Errorf("%w: stage expiry %d not after start %d", lockerrors.ErrValidation, stage.Expiry, stage.Start)
	}
	if err := validateRatioSchedule(stage.Schedule, "stage schedule"); err != nil {
		return nil, err
	}
	if stage.Cap != nil {
		if err := validateRatioSchedule(*stage.Cap, "stage cap"); err != nil {
			return nil, err
		}
	}
	if _, exists, err := e.state.AirdropStage(stage.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrStageExists
	}
	stored := stage.Clone()
	stored.Claimed = common.Zero()
	if err := e.state.PutAirdropStage(stored); err != nil {
		return nil, err
	}
	e.emit(events.AirdropStageCreated{
		Stage:  stored.ID,
		Issuer: stored.Issuer,
		Total:  common.Clone(stored.Total),
		Start:  stored.Start,
		Expiry: stored.Expiry,
	})
	return types.NewTransfer(stored.Issuer, e.cfg.Custody, stored.Total, types.TransferVestingFund), nil
}

// Stage returns a copy of an airdrop stage.
func (e *Engine) Stage(id uint64) (*Stage, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	stage, ok, err := e.state.AirdropStage(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStageNotFound
	}
	return stage.Clone(), nil
}

// AllocationSchedule builds the vesting curve an allocation of amount claimed
// at now receives: the stage schedule anchored at now, capped by the stage cap.
func AllocationSchedule(stage *Stage, amount *uint256.Int, now uint64) (curve.Curve, error) {
	anchored, err := stage.Schedule.Shift(now)
	if err != nil {
		return curve.Curve{}, err
	}
	schedule, err := anchored.Scale(amount)
	if err != nil {
		return curve.Curve{}, err
	}
	if stage.Cap == nil {
		return schedule, nil
	}
	capCurve, err := stage.Cap.Scale(amount)
	if err != nil {
		return curve.Curve{}, err
	}
	return curve.CombineMin(schedule, capCurve)
}

// ClaimAirdrop turns an allocation from a stage into a vesting account for
// owner. The tokens are already in custody so no transfer is produced.
func (e *Engine) ClaimAirdrop(stageID uint64, owner [20]byte, amount *uint256.Int, proof [][]byte, now uint64) error {
	if err := common.Guard(e.pauses, common.ModuleVesting); err != nil {
		return err
	}
	if e == nil || e.state == nil {
		return errNilState
	}
	stage, ok, err := e.state.AirdropStage(stageID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStageNotFound
	}
	if now < stage.Start {
		return ErrStageNotStarted
	}
	if stage.Expiry != 0 && now >= stage.Expiry {
		return ErrStageExpired
	}
	amount = common.Amount(amount)
	if amount.IsZero() {
		return fmt.Errorf("%w: allocation must be positive", lockerrors.ErrInvalidAmount)
	}
	if amount.Gt(stage.Remaining()) {
		return fmt.Errorf("%w: requested %s, remaining %s", ErrStageExhausted, amount.Dec(), stage.Remaining().Dec())
	}
	if err := e.verifyProof(stage, owner, amount, proof); err != nil {
		return err
	}
	schedule, err := AllocationSchedule(stage, amount, now)
	if err != nil {
		return err
	}
	if err := e.ValidateSchedule(schedule, amount); err != nil {
		return err
	}
	if err := e.create(owner, stage.Issuer, amount, schedule, stage.ID, now); err != nil {
		return err
	}
	claimed, err := common.Add(stage.Claimed, amount)
	if err != nil {
		return err
	}
	stage.Claimed = claimed
	if err := e.state.PutAirdropStage(stage); err != nil {
		return err
	}
	e.emit(events.AirdropClaimed{Stage: stage.ID, Owner: owner, Amount: common.Clone(amount), Remaining: stage.Remaining()})
	return nil
}

func (e *Engine) verifyProof(stage *Stage, owner [20]byte, amount *uint256.Int, proof [][]byte) error {
	if e.verifier == nil {
		if stage.MerkleRoot != ([32]byte{}) {
			return ErrInvalidProof
		}
		return nil
	}
	if err := e.verifier.VerifyAllocation(stage, owner, amount, proof); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return nil
}
