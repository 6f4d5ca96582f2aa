package state

import (
	"fmt"

	"github.com/holiman/uint256"

	"tokenlock/native/bonding"
	"tokenlock/native/common"
	"tokenlock/native/rewards"
)

type storedUnbond struct {
	ID          uint64
	Amount      *uint256.Int
	Delegated   *uint256.Int
	Released    *uint256.Int
	RequestedAt uint64
	ReleaseAt   uint64
}

type storedBondEntry struct {
	Account       [20]byte
	Tier          uint64
	Liquid        *uint256.Int
	Delegated     *uint256.Int
	Source        [20]byte
	Unbonding     []storedUnbond
	NextRequestID uint64
	Weight        *uint256.Int
	RewardLast    *uint256.Int
	RewardAccrued *uint256.Int
}

func newStoredBondEntry(e *bonding.Entry) *storedBondEntry {
	out := &storedBondEntry{
		Account:       e.Account,
		Tier:          e.Tier,
		Liquid:        common.Clone(e.Liquid),
		Delegated:     common.Clone(e.Delegated),
		Source:        e.Source,
		Unbonding:     make([]storedUnbond, len(e.Unbonding)),
		NextRequestID: e.NextRequestID,
		Weight:        common.Clone(e.Reward.Weight),
		RewardLast:    common.Clone(e.Reward.Last),
		RewardAccrued: common.Clone(e.Reward.Accrued),
	}
	for i, req := range e.Unbonding {
		out.Unbonding[i] = storedUnbond{
			ID:          req.ID,
			Amount:      common.Clone(req.Amount),
			Delegated:   common.Clone(req.Delegated),
			Released:    common.Clone(req.Released),
			RequestedAt: req.RequestedAt,
			ReleaseAt:   req.ReleaseAt,
		}
	}
	return out
}

func (s *storedBondEntry) toEntry() *bonding.Entry {
	entry := &bonding.Entry{
		Account:       s.Account,
		Tier:          s.Tier,
		Liquid:        common.Clone(s.Liquid),
		Delegated:     common.Clone(s.Delegated),
		Source:        s.Source,
		NextRequestID: s.NextRequestID,
		Reward: rewards.Position{
			Weight:  common.Clone(s.Weight),
			Last:    common.Clone(s.RewardLast),
			Accrued: common.Clone(s.RewardAccrued),
		},
	}
	for _, req := range s.Unbonding {
		entry.Unbonding = append(entry.Unbonding, bonding.UnbondRequest{
			ID:          req.ID,
			Amount:      common.Clone(req.Amount),
			Delegated:   common.Clone(req.Delegated),
			Released:    common.Clone(req.Released),
			RequestedAt: req.RequestedAt,
			ReleaseAt:   req.ReleaseAt,
		})
	}
	return entry
}

// BondEntry loads the entry of account in tier.
func (m *Manager) BondEntry(account [20]byte, tier uint64) (*bonding.Entry, bool, error) {
	var stored storedBondEntry
	ok, err := m.KVGet(bondKey(tier, account), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toEntry(), true, nil
}

// PutBondEntry persists an entry.
func (m *Manager) PutBondEntry(entry *bonding.Entry) error {
	if entry == nil {
		return fmt.Errorf("bonding: nil entry")
	}
	return m.KVPut(bondKey(entry.Tier, entry.Account), newStoredBondEntry(entry))
}

// DeleteBondEntry removes an entry.
func (m *Manager) DeleteBondEntry(account [20]byte, tier uint64) error {
	return m.KVDelete(bondKey(tier, account))
}

type storedTierTotals struct {
	Tier      uint64
	Bonded    *uint256.Int
	Unbonding *uint256.Int
}

// TierTotals loads the aggregate figures of tier, zero before the first bond.
func (m *Manager) TierTotals(tier uint64) (*bonding.TierTotals, error) {
	var stored storedTierTotals
	ok, err := m.KVGet(bondTotalsKey(tier), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &bonding.TierTotals{Tier: tier, Bonded: common.Zero(), Unbonding: common.Zero()}, nil
	}
	return &bonding.TierTotals{
		Tier:      stored.Tier,
		Bonded:    common.Clone(stored.Bonded),
		Unbonding: common.Clone(stored.Unbonding),
	}, nil
}

// PutTierTotals persists the aggregate figures of a tier and records the tier
// in the index of tiers that ever held bonds.
func (m *Manager) PutTierTotals(totals *bonding.TierTotals) error {
	if totals == nil {
		return fmt.Errorf("bonding: nil totals")
	}
	tiers, err := m.BondTiers()
	if err != nil {
		return err
	}
	known := false
	for _, id := range tiers {
		if id == totals.Tier {
			known = true
			break
		}
	}
	if !known {
		if err := m.KVPut(bondTiersKey, append(tiers, totals.Tier)); err != nil {
			return err
		}
	}
	return m.KVPut(bondTotalsKey(totals.Tier), &storedTierTotals{
		Tier:      totals.Tier,
		Bonded:    common.Clone(totals.Bonded),
		Unbonding: common.Clone(totals.Unbonding),
	})
}

// BondTiers lists every tier that has held bonds, in first-use order.
func (m *Manager) BondTiers() ([]uint64, error) {
	var tiers []uint64
	if _, err := m.KVGet(bondTiersKey, &tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}
