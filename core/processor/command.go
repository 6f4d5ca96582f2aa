package processor

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"tokenlock/core/types"
	"tokenlock/native/bonding"
	"tokenlock/native/curve"
	"tokenlock/native/vesting"
)

// Kind names a state-changing command.
type Kind string

const (
	KindCreateVesting      Kind = "create_vesting"
	KindCreateStage        Kind = "create_stage"
	KindClaimAirdrop       Kind = "claim_airdrop"
	KindClaim              Kind = "claim"
	KindCancel             Kind = "cancel"
	KindBond               Kind = "bond"
	KindBeginUnbond        Kind = "begin_unbond"
	KindWithdrawUnbonded   Kind = "withdraw_unbonded"
	KindNotifyReward       Kind = "notify_reward"
	KindClaimReward        Kind = "claim_reward"
	// KindDelegateWithdrawal names the account allowed to claim rewards for
	// the caller. Receiver carries the delegate.
	KindDelegateWithdrawal Kind = "delegate_withdrawal"
)

// Kinds lists every command kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindCreateVesting, KindCreateStage, KindClaimAirdrop, KindClaim, KindCancel,
		KindBond, KindBeginUnbond, KindWithdrawUnbonded, KindNotifyReward, KindClaimReward,
		KindDelegateWithdrawal,
	}
}

// Command is a single request against the lock state. Caller is the
// authenticated sender. Account names the allocation or bonding account the
// command acts on; commands an owner issues for themselves may leave it zero.
// Fields a kind does not use are ignored. Reward claims may name another
// owner's Account when the caller is its withdrawal delegate, and a Receiver
// other than the caller.
type Command struct {
	Kind     Kind
	Caller   [20]byte
	Account  [20]byte
	Tier     uint64
	Amount   *uint256.Int
	Source   [20]byte
	Receiver [20]byte
	Schedule curve.Curve
	Stage    *vesting.Stage
	StageID  uint64
	Proof    [][]byte
	Now      uint64
}

// Receipt is the outcome of a committed command.
type Receipt struct {
	ID      uuid.UUID
	Command Kind
	Account [20]byte
	// Amount is the command's headline figure: the amount claimed, bonded,
	// withdrawn or paid out.
	Amount    *uint256.Int
	Transfers []types.Transfer
	Events    []types.Event
	Unbond    *bonding.UnbondRequest
	Now       uint64
}

// Moved sums the amounts of every transfer in the receipt.
func (r *Receipt) Moved() *uint256.Int {
	total := new(uint256.Int)
	if r == nil {
		return total
	}
	for _, t := range r.Transfers {
		if t.Amount != nil {
			total.Add(total, t.Amount)
		}
	}
	return total
}

func (r *Receipt) addTransfer(t *types.Transfer) {
	if t == nil {
		return
	}
	r.Transfers = append(r.Transfers, *t)
}
