package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"tokenlock/core/types"
)

const (
	// TypeBondBonded is emitted when tokens are bonded into a tier.
	TypeBondBonded = "bond.bonded"
	// TypeBondUnbonding is emitted when an unbond request is queued.
	TypeBondUnbonding = "bond.unbonding"
	// TypeBondWithdrawn is emitted when matured unbond requests are released.
	TypeBondWithdrawn = "bond.withdrawn"
)

// BondBonded captures a bond into a tier.
type BondBonded struct {
	Account   [20]byte
	Tier      uint64
	Amount    *uint256.Int
	Source    [20]byte
	Bonded    *uint256.Int
	Delegated *uint256.Int
	At        uint64
}

// EventType satisfies the Event interface.
func (BondBonded) EventType() string { return TypeBondBonded }

// Event converts the structured payload into a broadcastable event.
func (e BondBonded) Event() *types.Event {
	attrs := map[string]string{
		"account":   account(e.Account),
		"tier":      strconv.FormatUint(e.Tier, 10),
		"amount":    formatAmount(e.Amount),
		"bonded":    formatAmount(e.Bonded),
		"delegated": formatAmount(e.Delegated),
		"at":        formatTime(e.At),
	}
	if !zeroAddress(e.Source) {
		attrs["source"] = account(e.Source)
	}
	return &types.Event{Type: TypeBondBonded, Attributes: attrs}
}

// BondUnbonding captures a queued unbond request.
type BondUnbonding struct {
	Account   [20]byte
	Tier      uint64
	RequestID uint64
	Amount    *uint256.Int
	Delegated *uint256.Int
	ReleaseAt uint64
	At        uint64
}

// EventType satisfies the Event interface.
func (BondUnbonding) EventType() string { return TypeBondUnbonding }

// Event converts the structured payload into a broadcastable event.
func (e BondUnbonding) Event() *types.Event {
	return &types.Event{Type: TypeBondUnbonding, Attributes: map[string]string{
		"account":   account(e.Account),
		"tier":      strconv.FormatUint(e.Tier, 10),
		"request":   strconv.FormatUint(e.RequestID, 10),
		"amount":    formatAmount(e.Amount),
		"delegated": formatAmount(e.Delegated),
		"releaseAt": formatTime(e.ReleaseAt),
		"at":        formatTime(e.At),
	}}
}

// BondWithdrawn captures released unbond requests.
type BondWithdrawn struct {
	Account   [20]byte
	Tier      uint64
	Liquid    *uint256.Int
	Delegated *uint256.Int
	At        uint64
}

// EventType satisfies the Event interface.
func (BondWithdrawn) EventType() string { return TypeBondWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e BondWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeBondWithdrawn, Attributes: map[string]string{
		"account":   account(e.Account),
		"tier":      strconv.FormatUint(e.Tier, 10),
		"liquid":    formatAmount(e.Liquid),
		"delegated": formatAmount(e.Delegated),
		"at":        formatTime(e.At),
	}}
}
