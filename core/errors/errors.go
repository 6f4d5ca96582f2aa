package errors

import stderrors "errors"

var (
	ErrValidation           = stderrors.New("validation failed")
	ErrOverflow             = stderrors.New("arithmetic overflow")
	ErrInsufficientUnlocked = stderrors.New("vesting: insufficient unlocked balance")
	ErrTokensBonded         = stderrors.New("vesting: tokens are bonded")
	ErrAlreadyCancelled     = stderrors.New("vesting: already cancelled")
	ErrAccountNotFound      = stderrors.New("vesting: account not found")
	ErrAccountExists        = stderrors.New("vesting: account already exists")
	ErrInsufficientBonded   = stderrors.New("bonding: insufficient bonded amount")
	ErrInsufficientBacking  = stderrors.New("bonding: insufficient vesting backing")
	ErrSourceInOtherTier    = stderrors.New("bonding: delegation source bonded in another tier")
	ErrUnknownTier          = stderrors.New("bonding: unknown tier")
	ErrBelowMinBond         = stderrors.New("bonding: amount below minimum bond")
	ErrNoStakers            = stderrors.New("rewards: no stakers")
	ErrInvalidAmount        = stderrors.New("amount must be positive")
	ErrUnauthorized         = stderrors.New("unauthorized")
	ErrModulePaused         = stderrors.New("module paused")
)

// Code values are stable identifiers surfaced to callers and used as metric labels.
const (
	CodeOK                   = "ok"
	CodeValidation           = "validation"
	CodeOverflow             = "overflow"
	CodeInsufficientUnlocked = "insufficient_unlocked"
	CodeTokensBonded         = "tokens_bonded"
	CodeAlreadyCancelled     = "already_cancelled"
	CodeAccountNotFound      = "account_not_found"
	CodeAccountExists        = "account_exists"
	CodeInsufficientBonded   = "insufficient_bonded"
	CodeInsufficientBacking  = "insufficient_backing"
	CodeSourceInOtherTier    = "source_in_other_tier"
	CodeUnknownTier          = "unknown_tier"
	CodeBelowMinBond         = "below_min_bond"
	CodeNoStakers            = "no_stakers"
	CodeInvalidAmount        = "invalid_amount"
	CodeUnauthorized         = "unauthorized"
	CodeModulePaused         = "module_paused"
	CodeInternal             = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrValidation, CodeValidation},
	{ErrOverflow, CodeOverflow},
	{ErrInsufficientUnlocked, CodeInsufficientUnlocked},
	{ErrTokensBonded, CodeTokensBonded},
	{ErrAlreadyCancelled, CodeAlreadyCancelled},
	{ErrAccountNotFound, CodeAccountNotFound},
	{ErrAccountExists, CodeAccountExists},
	{ErrInsufficientBonded, CodeInsufficientBonded},
	{ErrInsufficientBacking, CodeInsufficientBacking},
	{ErrSourceInOtherTier, CodeSourceInOtherTier},
	{ErrUnknownTier, CodeUnknownTier},
	{ErrBelowMinBond, CodeBelowMinBond},
	{ErrNoStakers, CodeNoStakers},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrModulePaused, CodeModulePaused},
}

// Code maps an error onto its stable reason code. Unknown errors map to
// CodeInternal and a nil error maps to CodeOK.
func Code(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, entry := range codes {
		if stderrors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}
