package events

import (
	"github.com/holiman/uint256"

	"tokenlock/core/types"
)

const (
	// TypeRewardsNotified is emitted when a reward amount is distributed over bonded weight.
	TypeRewardsNotified = "rewards.notified"
	// TypeRewardsClaimed is emitted when an account withdraws its accrued rewards.
	TypeRewardsClaimed = "rewards.claimed"
	// TypeRewardsDelegated is emitted when an owner changes its withdrawal delegate.
	TypeRewardsDelegated = "rewards.delegated"
)

// RewardsNotified captures an accumulator update.
type RewardsNotified struct {
	Amount      *uint256.Int
	Accumulator *uint256.Int
	TotalWeight *uint256.Int
	Leftover    *uint256.Int
}

// EventType satisfies the Event interface.
func (RewardsNotified) EventType() string { return TypeRewardsNotified }

// Event converts the structured payload into a broadcastable event.
func (e RewardsNotified) Event() *types.Event {
	return &types.Event{Type: TypeRewardsNotified, Attributes: map[string]string{
		"amount":      formatAmount(e.Amount),
		"accumulator": formatAmount(e.Accumulator),
		"totalWeight": formatAmount(e.TotalWeight),
		"leftover":    formatAmount(e.Leftover),
	}}
}

// RewardsClaimed captures a reward withdrawal.
type RewardsClaimed struct {
	Account  [20]byte
	Receiver [20]byte
	Amount   *uint256.Int
	At       uint64
}

// EventType satisfies the Event interface.
func (RewardsClaimed) EventType() string { return TypeRewardsClaimed }

// Event converts the structured payload into a broadcastable event.
func (e RewardsClaimed) Event() *types.Event {
	attrs := map[string]string{
		"account": account(e.Account),
		"amount":  formatAmount(e.Amount),
		"at":      formatTime(e.At),
	}
	if !zeroAddress(e.Receiver) && e.Receiver != e.Account {
		attrs["receiver"] = account(e.Receiver)
	}
	return &types.Event{Type: TypeRewardsClaimed, Attributes: attrs}
}

// RewardsDelegated captures a withdrawal delegate change. Delegate equals
// Owner when the delegation was cleared.
type RewardsDelegated struct {
	Owner    [20]byte
	Delegate [20]byte
	At       uint64
}

// EventType satisfies the Event interface.
func (RewardsDelegated) EventType() string { return TypeRewardsDelegated }

// Event converts the structured payload into a broadcastable event.
func (e RewardsDelegated) Event() *types.Event {
	return &types.Event{Type: TypeRewardsDelegated, Attributes: map[string]string{
		"owner":    account(e.Owner),
		"delegate": account(e.Delegate),
		"at":       formatTime(e.At),
	}}
}
