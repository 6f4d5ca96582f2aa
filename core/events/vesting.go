package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"tokenlock/core/types"
)

const (
	// TypeVestingCreated is emitted when a vesting allocation is funded.
	TypeVestingCreated = "vesting.created"
	// TypeVestingClaimed is emitted when unlocked tokens leave custody.
	TypeVestingClaimed = "vesting.claimed"
	// TypeVestingCancelled is emitted when an issuer claws back the unvested portion.
	TypeVestingCancelled = "vesting.cancelled"
	// TypeAirdropStageCreated is emitted when an airdrop stage is registered.
	TypeAirdropStageCreated = "airdrop.stageCreated"
	// TypeAirdropClaimed is emitted when an allocation is claimed from a stage.
	TypeAirdropClaimed = "airdrop.claimed"
)

// VestingCreated captures a new vesting allocation.
type VestingCreated struct {
	Owner  [20]byte
	Issuer [20]byte
	Total  *uint256.Int
	Stage  uint64
	At     uint64
}

// EventType satisfies the Event interface.
func (VestingCreated) EventType() string { return TypeVestingCreated }

// Event converts the structured payload into a broadcastable event.
func (e VestingCreated) Event() *types.Event {
	attrs := map[string]string{
		"owner":  account(e.Owner),
		"issuer": account(e.Issuer),
		"total":  formatAmount(e.Total),
		"at":     formatTime(e.At),
	}
	if e.Stage != 0 {
		attrs["stage"] = strconv.FormatUint(e.Stage, 10)
	}
	return &types.Event{Type: TypeVestingCreated, Attributes: attrs}
}

// VestingClaimed captures a claim of unlocked tokens.
type VestingClaimed struct {
	Owner   [20]byte
	Amount  *uint256.Int
	Claimed *uint256.Int
	At      uint64
}

// EventType satisfies the Event interface.
func (VestingClaimed) EventType() string { return TypeVestingClaimed }

// Event converts the structured payload into a broadcastable event.
func (e VestingClaimed) Event() *types.Event {
	return &types.Event{Type: TypeVestingClaimed, Attributes: map[string]string{
		"owner":   account(e.Owner),
		"amount":  formatAmount(e.Amount),
		"claimed": formatAmount(e.Claimed),
		"at":      formatTime(e.At),
	}}
}

// VestingCancelled captures a claw-back.
type VestingCancelled struct {
	Owner      [20]byte
	Issuer     [20]byte
	Caller     [20]byte
	Frozen     *uint256.Int
	ClawedBack *uint256.Int
	At         uint64
}

// EventType satisfies the Event interface.
func (VestingCancelled) EventType() string { return TypeVestingCancelled }

// Event converts the structured payload into a broadcastable event.
func (e VestingCancelled) Event() *types.Event {
	attrs := map[string]string{
		"owner":      account(e.Owner),
		"issuer":     account(e.Issuer),
		"frozen":     formatAmount(e.Frozen),
		"clawedBack": formatAmount(e.ClawedBack),
		"at":         formatTime(e.At),
	}
	if !zeroAddress(e.Caller) {
		attrs["caller"] = account(e.Caller)
	}
	return &types.Event{Type: TypeVestingCancelled, Attributes: attrs}
}

// AirdropStageCreated captures the registration of an airdrop stage.
type AirdropStageCreated struct {
	Stage  uint64
	Issuer [20]byte
	Total  *uint256.Int
	Start  uint64
	Expiry uint64
}

// EventType satisfies the Event interface.
func (AirdropStageCreated) EventType() string { return TypeAirdropStageCreated }

// Event converts the structured payload into a broadcastable event.
func (e AirdropStageCreated) Event() *types.Event {
	attrs := map[string]string{
		"stage":  strconv.FormatUint(e.Stage, 10),
		"issuer": account(e.Issuer),
		"total":  formatAmount(e.Total),
		"start":  formatTime(e.Start),
	}
	if e.Expiry != 0 {
		attrs["expiry"] = formatTime(e.Expiry)
	}
	return &types.Event{Type: TypeAirdropStageCreated, Attributes: attrs}
}

// AirdropClaimed captures an allocation claimed from a stage.
type AirdropClaimed struct {
	Stage     uint64
	Owner     [20]byte
	Amount    *uint256.Int
	Remaining *uint256.Int
}

// EventType satisfies the Event interface.
func (AirdropClaimed) EventType() string { return TypeAirdropClaimed }

// Event converts the structured payload into a broadcastable event.
func (e AirdropClaimed) Event() *types.Event {
	return &types.Event{Type: TypeAirdropClaimed, Attributes: map[string]string{
		"stage":     strconv.FormatUint(e.Stage, 10),
		"owner":     account(e.Owner),
		"amount":    formatAmount(e.Amount),
		"remaining": formatAmount(e.Remaining),
	}}
}
