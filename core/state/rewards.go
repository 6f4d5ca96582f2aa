package state

import (
	"github.com/holiman/uint256"

	"tokenlock/native/common"
	"tokenlock/native/rewards"
)

type storedLedger struct {
	Accumulator *uint256.Int
	TotalWeight *uint256.Int
	Leftover    *uint256.Int
	Distributed *uint256.Int
	Withdrawn   *uint256.Int
}

// RewardLedger loads the global ledger, returning an empty one before the
// first write.
func (m *Manager) RewardLedger() (*rewards.Ledger, error) {
	var stored storedLedger
	ok, err := m.KVGet(rewardsLedgerKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return rewards.NewLedger(), nil
	}
	return &rewards.Ledger{
		Accumulator: common.Clone(stored.Accumulator),
		TotalWeight: common.Clone(stored.TotalWeight),
		Leftover:    common.Clone(stored.Leftover),
		Distributed: common.Clone(stored.Distributed),
		Withdrawn:   common.Clone(stored.Withdrawn),
	}, nil
}

// PutRewardLedger persists the global ledger.
func (m *Manager) PutRewardLedger(l *rewards.Ledger) error {
	l = l.Clone()
	return m.KVPut(rewardsLedgerKey, &storedLedger{
		Accumulator: l.Accumulator,
		TotalWeight: l.TotalWeight,
		Leftover:    l.Leftover,
		Distributed: l.Distributed,
		Withdrawn:   l.Withdrawn,
	})
}

// GenesisApplied reports whether the genesis allocations were written and
// returns the recorded genesis hash.
func (m *Manager) GenesisApplied() (bool, [32]byte, error) {
	var hash [32]byte
	ok, err := m.KVGet(genesisKey, &hash)
	return ok, hash, err
}

// MarkGenesisApplied records the hash of the applied genesis document.
func (m *Manager) MarkGenesisApplied(hash [32]byte) error {
	return m.KVPut(genesisKey, hash)
}

// WithdrawDelegate returns the account owner allowed to withdraw its rewards.
func (m *Manager) WithdrawDelegate(owner [20]byte) ([20]byte, bool, error) {
	var delegate [20]byte
	ok, err := m.KVGet(delegateKey(owner), &delegate)
	return delegate, ok, err
}

// PutWithdrawDelegate records delegate as owner's withdrawal delegate.
func (m *Manager) PutWithdrawDelegate(owner, delegate [20]byte) error {
	return m.KVPut(delegateKey(owner), delegate)
}

// DeleteWithdrawDelegate clears owner's withdrawal delegate.
func (m *Manager) DeleteWithdrawDelegate(owner [20]byte) error {
	return m.KVDelete(delegateKey(owner))
}
