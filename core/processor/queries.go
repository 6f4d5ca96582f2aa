package processor

import (
	"github.com/holiman/uint256"

	"tokenlock/native/bonding"
	"tokenlock/native/rewards"
	"tokenlock/native/vesting"
)

// Queries read committed state under the processor lock so they never observe
// a half-applied command.

// Vesting returns the allocation held by owner.
func (p *Processor) Vesting(owner [20]byte) (*vesting.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vesting.Account(owner)
}

// Claimable returns the vested amount owner may claim at now.
func (p *Processor) Claimable(owner [20]byte, now uint64) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vesting.Claimable(owner, now)
}

// Spendable returns the claimable amount not held back by bonded delegation.
func (p *Processor) Spendable(owner [20]byte, now uint64) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vesting.Spendable(owner, now)
}

// Backing splits owner's delegated amount into vested and unvested parts.
func (p *Processor) Backing(owner [20]byte, now uint64) (vesting.Backing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vesting.Backing(owner, now)
}

// Stage returns an airdrop stage.
func (p *Processor) Stage(id uint64) (*vesting.Stage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vesting.Stage(id)
}

// Bonded returns the amount account has bonded in tier.
func (p *Processor) Bonded(account [20]byte, tier uint64) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bonding.Bonded(account, tier)
}

// PendingUnbonds lists the unbond requests account has open in tier.
func (p *Processor) PendingUnbonds(account [20]byte, tier uint64) ([]bonding.UnbondRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bonding.PendingUnbonds(account, tier)
}

// AllBonded returns account's bonded amount in every tier.
func (p *Processor) AllBonded(account [20]byte) ([]bonding.TierAmount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bonding.AllBonded(account)
}

// AllPendingUnbonds lists the unbond requests account has open, keyed by tier.
func (p *Processor) AllPendingUnbonds(account [20]byte) (map[uint64][]bonding.UnbondRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bonding.AllPendingUnbonds(account)
}

// TierTotals returns the bonded and unbonding aggregates of tier, or of every
// tier when tier is zero.
func (p *Processor) TierTotals(tier uint64) ([]*bonding.TierTotals, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tier == 0 {
		return p.bonding.AllTotals()
	}
	totals, err := p.bonding.Totals(tier)
	if err != nil {
		return nil, err
	}
	return []*bonding.TierTotals{totals}, nil
}

// VotingPower sums account's voting weight across tiers.
func (p *Processor) VotingPower(account [20]byte) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bonding.VotingPower(account)
}

// Tiers returns the configured bonding tiers ordered by id.
func (p *Processor) Tiers() []bonding.Tier {
	return p.bonding.Tiers()
}

// PendingReward returns the rewards account may claim.
func (p *Processor) PendingReward(account [20]byte) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rewards.PendingReward(account)
}

// WithdrawDelegate returns the account allowed to claim owner's rewards.
func (p *Processor) WithdrawDelegate(owner [20]byte) ([20]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rewards.WithdrawDelegate(owner)
}

// Ledger returns the global reward ledger.
func (p *Processor) Ledger() (*rewards.Ledger, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rewards.Ledger()
}
