package types

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Transfer reasons attached to every instruction returned by the engines.
const (
	TransferVestingFund     = "vesting.fund"
	TransferVestingClaim    = "vesting.claim"
	TransferVestingClawback = "vesting.clawback"
	TransferBondLiquid      = "bond.liquid"
	TransferBondDelegated   = "bond.delegated"
	TransferUnbondLiquid    = "unbond.liquid"
	TransferUnbondDelegated = "unbond.delegated"
	TransferRewardFund      = "reward.fund"
	TransferRewardClaim     = "reward.claim"
)

// Transfer is an instruction for the external ledger to move Amount from From
// to To. The engines never execute transfers themselves.
type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *uint256.Int
	Reason string
}

// NewTransfer returns a transfer instruction or nil when amount is zero.
func NewTransfer(from, to [20]byte, amount *uint256.Int, reason string) *Transfer {
	if amount == nil || amount.IsZero() {
		return nil
	}
	return &Transfer{From: from, To: to, Amount: new(uint256.Int).Set(amount), Reason: reason}
}

// Delta returns the signed balance change the transfer applies to account.
func (t Transfer) Delta(account [20]byte) *big.Int {
	delta := new(big.Int)
	if t.Amount == nil || t.From == t.To {
		return delta
	}
	amount := t.Amount.ToBig()
	if t.To == account {
		delta.Add(delta, amount)
	}
	if t.From == account {
		delta.Sub(delta, amount)
	}
	return delta
}
