package vesting

import (
	"errors"
	"fmt"

	lockerrors "tokenlock/core/errors"
)

var (
	errNilState = errors.New("vesting engine: state not configured")

	ErrStageNotFound   = fmt.Errorf("%w: airdrop stage not found", lockerrors.ErrAccountNotFound)
	ErrStageExists     = fmt.Errorf("%w: airdrop stage already exists", lockerrors.ErrValidation)
	ErrStageNotStarted = fmt.Errorf("%w: airdrop stage not started", lockerrors.ErrValidation)
	ErrStageExpired    = fmt.Errorf("%w: airdrop stage expired", lockerrors.ErrValidation)
	ErrStageExhausted  = fmt.Errorf("%w: airdrop stage exhausted", lockerrors.ErrInsufficientUnlocked)
	ErrInvalidProof    = fmt.Errorf("%w: invalid allocation proof", lockerrors.ErrUnauthorized)
)
