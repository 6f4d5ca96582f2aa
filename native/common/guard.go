package common

import (
	"strings"

	lockerrors "tokenlock/core/errors"
)

// Module names recognised by Guard.
const (
	ModuleVesting = "vesting"
	ModuleBonding = "bonding"
	ModuleRewards = "rewards"
)

var ErrModulePaused = lockerrors.ErrModulePaused

type PauseView interface {
	IsPaused(module string) bool
}

// Pauses is a static PauseView keyed by module name.
type Pauses map[string]bool

func (p Pauses) IsPaused(module string) bool {
	return p[strings.ToLower(strings.TrimSpace(module))]
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
