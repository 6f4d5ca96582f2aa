package bonding

import (
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
	"tokenlock/core/events"
	"tokenlock/core/types"
	"tokenlock/native/common"
	"tokenlock/native/rewards"
	"tokenlock/native/vesting"
)

var errNilState = errors.New("bonding engine: state not configured")

type engineState interface {
	BondEntry(account [20]byte, tier uint64) (*Entry, bool, error)
	PutBondEntry(*Entry) error
	DeleteBondEntry(account [20]byte, tier uint64) error
	TierTotals(tier uint64) (*TierTotals, error)
	PutTierTotals(*TierTotals) error
	BondTiers() ([]uint64, error)
}

// VestingView resolves delegation sources.
type VestingView interface {
	Account(owner [20]byte) (*vesting.Account, error)
	Custody() [20]byte
}

// RewardHook keeps reward weight in sync with bonded amounts.
type RewardHook interface {
	Reweight(p *rewards.Position, weight *uint256.Int) error
}

// Config holds the static engine parameters.
type Config struct {
	Tiers []Tier
	// MinBond is the smallest bonded amount per entry; entries below it
	// carry no reward or voting weight.
	MinBond *uint256.Int
	// Pool is the account holding bonded tokens.
	Pool [20]byte
}

// Engine implements multi-tier bonding with vesting-backed delegation.
type Engine struct {
	state   engineState
	emitter events.Emitter
	vesting VestingView
	rewards RewardHook
	pauses  common.PauseView
	tiers   map[uint64]Tier
	order   []uint64
	minBond *uint256.Int
	pool    [20]byte
}

// NewEngine validates the tiers and constructs an engine.
func NewEngine(cfg Config) (*Engine, error) {
	e := &Engine{
		emitter: events.NoopEmitter{},
		tiers:   make(map[uint64]Tier, len(cfg.Tiers)),
		minBond: common.Clone(cfg.MinBond),
		pool:    cfg.Pool,
	}
	for _, tier := range cfg.Tiers {
		if err := tier.Validate(); err != nil {
			return nil, err
		}
		if _, dup := e.tiers[tier.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate tier %d", lockerrors.ErrValidation, tier.ID)
		}
		e.tiers[tier.ID] = tier
		e.order = append(e.order, tier.ID)
	}
	sort.Slice(e.order, func(i, j int) bool { return e.order[i] < e.order[j] })
	return e, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetVesting wires the vesting view used for delegated bonds.
func (e *Engine) SetVesting(v VestingView) { e.vesting = v }

// SetRewards wires the reward weight hook.
func (e *Engine) SetRewards(r RewardHook) { e.rewards = r }

// SetPauses wires the pause view consulted before mutations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// Pool returns the account holding bonded tokens.
func (e *Engine) Pool() [20]byte { return e.pool }

// Tiers returns the configured tiers ordered by id.
func (e *Engine) Tiers() []Tier {
	out := make([]Tier, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.tiers[id])
	}
	return out
}

// Tier returns a configured tier.
func (e *Engine) Tier(id uint64) (Tier, error) {
	tier, ok := e.tiers[id]
	if !ok {
		return Tier{}, fmt.Errorf("%w: %d", lockerrors.ErrUnknownTier, id)
	}
	return tier, nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) entry(account [20]byte, tier uint64) (*Entry, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.BondEntry(account, tier)
}

func (e *Engine) store(entry *Entry) error {
	if entry.Empty() {
		return e.state.DeleteBondEntry(entry.Account, entry.Tier)
	}
	return e.state.PutBondEntry(entry)
}

func (e *Engine) reweight(tier Tier, entry *Entry) error {
	weight, err := applyBps(entry.Bonded(), tier.RewardBps, e.minBond)
	if err != nil {
		return err
	}
	if e.rewards == nil {
		entry.Reward.Weight = weight
		return nil
	}
	return e.rewards.Reweight(&entry.Reward, weight)
}

// adjustTotals applies increments and decrements to the tier aggregates. Nil
// amounts are zero.
func (e *Engine) adjustTotals(tierID uint64, bondedIn, bondedOut, unbondingIn, unbondingOut *uint256.Int) error {
	totals, err := e.state.TierTotals(tierID)
	if err != nil {
		return err
	}
	bonded, err := common.Add(totals.Bonded, bondedIn)
	if err != nil {
		return err
	}
	if totals.Bonded, err = common.Sub(bonded, bondedOut); err != nil {
		return err
	}
	unbonding, err := common.Add(totals.Unbonding, unbondingIn)
	if err != nil {
		return err
	}
	if totals.Unbonding, err = common.Sub(unbonding, unbondingOut); err != nil {
		return err
	}
	totals.Tier = tierID
	return e.state.PutTierTotals(totals)
}

// Bond bonds amount into tier. A zero source bonds liquid tokens from the
// account; otherwise source must be the account's own vesting allocation and
// the bond is drawn from its custody balance.
func (e *Engine) Bond(account [20]byte, tierID uint64, amount *uint256.Int, source [20]byte, now uint64) (*types.Transfer, error) {
	if err := common.Guard(e.pauses, common.ModuleBonding); err != nil {
		return nil, err
	}
	tier, err := e.Tier(tierID)
	if err != nil {
		return nil, err
	}
	amount = common.Amount(amount)
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: bond amount must be positive", lockerrors.ErrInvalidAmount)
	}
	entry, ok, err := e.entry(account, tierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		entry = newEntry(account, tierID)
	}

	delegated := source != ([20]byte{})
	if delegated {
		if err := e.checkDelegation(account, tierID, source, amount); err != nil {
			return nil, err
		}
		if entry.Delegated, err = common.Add(entry.Delegated, amount); err != nil {
			return nil, err
		}
		entry.Source = source
	} else {
		if entry.Liquid, err = common.Add(entry.Liquid, amount); err != nil {
			return nil, err
		}
	}
	bonded, err := common.Add(entry.Liquid, entry.Delegated)
	if err != nil {
		return nil, err
	}
	if bonded.Lt(common.Amount(e.minBond)) {
		return nil, fmt.Errorf("%w: bonded %s, minimum %s", lockerrors.ErrBelowMinBond, bonded.Dec(), e.minBond.Dec())
	}
	if err := e.reweight(tier, entry); err != nil {
		return nil, err
	}
	if err := e.store(entry); err != nil {
		return nil, err
	}
	if err := e.adjustTotals(tierID, amount, nil, nil, nil); err != nil {
		return nil, err
	}
	e.emit(events.BondBonded{
		Account:   account,
		Tier:      tierID,
		Amount:    common.Clone(amount),
		Source:    entry.Source,
		Bonded:    bonded,
		Delegated: common.Clone(entry.Delegated),
		At:        now,
	})
	if delegated {
		return types.NewTransfer(e.vesting.Custody(), e.pool, amount, types.TransferBondDelegated), nil
	}
	return types.NewTransfer(account, e.pool, amount, types.TransferBondLiquid), nil
}

func (e *Engine) checkDelegation(account [20]byte, tierID uint64, source [20]byte, amount *uint256.Int) error {
	if source != account {
		return fmt.Errorf("%w: delegation source must be the bonding account", lockerrors.ErrUnauthorized)
	}
	if e.vesting == nil {
		return fmt.Errorf("%w: vesting not configured", lockerrors.ErrAccountNotFound)
	}
	acc, err := e.vesting.Account(source)
	if err != nil {
		return err
	}
	for _, other := range e.order {
		if other == tierID {
			continue
		}
		entry, ok, err := e.entry(account, other)
		if err != nil {
			return err
		}
		if ok && !entry.DelegatedOutstanding().IsZero() {
			return fmt.Errorf("%w: source already backs tier %d", lockerrors.ErrSourceInOtherTier, other)
		}
	}
	delegated, err := e.Delegated(source)
	if err != nil {
		return err
	}
	available := common.SaturatingSub(acc.Locked(), delegated)
	if amount.Gt(available) {
		return fmt.Errorf("%w: requested %s, available %s", lockerrors.ErrInsufficientBacking, amount.Dec(), available.Dec())
	}
	return nil
}

// BeginUnbond moves amount from bonded to a new pending request released per
// the tier. Liquid tokens are unbonded before delegated ones.
func (e *Engine) BeginUnbond(account [20]byte, tierID uint64, amount *uint256.Int, now uint64) (*UnbondRequest, error) {
	if err := common.Guard(e.pauses, common.ModuleBonding); err != nil {
		return nil, err
	}
	tier, err := e.Tier(tierID)
	if err != nil {
		return nil, err
	}
	amount = common.Amount(amount)
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: unbond amount must be positive", lockerrors.ErrInvalidAmount)
	}
	entry, ok, err := e.entry(account, tierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: nothing bonded in tier %d", lockerrors.ErrInsufficientBonded, tierID)
	}
	if bonded := entry.Bonded(); amount.Gt(bonded) {
		return nil, fmt.Errorf("%w: requested %s, bonded %s", lockerrors.ErrInsufficientBonded, amount.Dec(), bonded.Dec())
	}
	releaseAt, err := tier.releaseAt(now)
	if err != nil {
		return nil, err
	}
	liquid := common.Min(amount, entry.Liquid)
	delegated := new(uint256.Int).Sub(amount, liquid)
	entry.Liquid = new(uint256.Int).Sub(entry.Liquid, liquid)
	entry.Delegated = new(uint256.Int).Sub(entry.Delegated, delegated)

	req := UnbondRequest{
		ID:          entry.NextRequestID,
		Amount:      common.Clone(amount),
		Delegated:   delegated,
		Released:    common.Zero(),
		RequestedAt: now,
		ReleaseAt:   releaseAt,
	}
	entry.NextRequestID++
	entry.Unbonding = append(entry.Unbonding, req)

	if err := e.reweight(tier, entry); err != nil {
		return nil, err
	}
	if err := e.store(entry); err != nil {
		return nil, err
	}
	if err := e.adjustTotals(tierID, nil, amount, amount, nil); err != nil {
		return nil, err
	}
	e.emit(events.BondUnbonding{
		Account:   account,
		Tier:      tierID,
		RequestID: req.ID,
		Amount:    common.Clone(amount),
		Delegated: common.Clone(delegated),
		ReleaseAt: releaseAt,
		At:        now,
	})
	out := req.clone()
	return &out, nil
}

// WithdrawUnbonded releases everything due at now. Liquid tokens go to the
// account and delegated tokens back to vesting custody. Nothing due is a
// normal result: zero and no transfers.
func (e *Engine) WithdrawUnbonded(account [20]byte, tierID uint64, now uint64) (*uint256.Int, []*types.Transfer, error) {
	if err := common.Guard(e.pauses, common.ModuleBonding); err != nil {
		return nil, nil, err
	}
	tier, err := e.Tier(tierID)
	if err != nil {
		return nil, nil, err
	}
	entry, ok, err := e.entry(account, tierID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return common.Zero(), nil, nil
	}
	liquidTotal, delegatedTotal := common.Zero(), common.Zero()
	remaining := entry.Unbonding[:0]
	for _, req := range entry.Unbonding {
		releasedNow, err := tier.released(req, now)
		if err != nil {
			return nil, nil, err
		}
		due := common.SaturatingSub(releasedNow, req.Released)
		if !due.IsZero() {
			liquid, delegated := req.split(due)
			liquidTotal.Add(liquidTotal, liquid)
			delegatedTotal.Add(delegatedTotal, delegated)
			req.Released = new(uint256.Int).Add(req.Released, due)
		}
		if req.Outstanding().IsZero() {
			continue
		}
		remaining = append(remaining, req)
	}
	total, err := common.Add(liquidTotal, delegatedTotal)
	if err != nil {
		return nil, nil, err
	}
	if total.IsZero() {
		return total, nil, nil
	}
	entry.Unbonding = remaining
	if len(entry.Unbonding) == 0 {
		entry.Unbonding = nil
	}
	if entry.DelegatedOutstanding().IsZero() {
		entry.Source = [20]byte{}
	}
	if err := e.store(entry); err != nil {
		return nil, nil, err
	}
	if err := e.adjustTotals(tierID, nil, nil, nil, total); err != nil {
		return nil, nil, err
	}
	e.emit(events.BondWithdrawn{
		Account:   account,
		Tier:      tierID,
		Liquid:    common.Clone(liquidTotal),
		Delegated: common.Clone(delegatedTotal),
		At:        now,
	})
	transfers := make([]*types.Transfer, 0, 2)
	if t := types.NewTransfer(e.pool, account, liquidTotal, types.TransferUnbondLiquid); t != nil {
		transfers = append(transfers, t)
	}
	if !delegatedTotal.IsZero() {
		transfers = append(transfers, types.NewTransfer(e.pool, e.vesting.Custody(), delegatedTotal, types.TransferUnbondDelegated))
	}
	return total, transfers, nil
}

// Entry returns a copy of the (account, tier) entry.
func (e *Engine) Entry(account [20]byte, tierID uint64) (*Entry, error) {
	if _, err := e.Tier(tierID); err != nil {
		return nil, err
	}
	entry, ok, err := e.entry(account, tierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newEntry(account, tierID), nil
	}
	return entry.Clone(), nil
}

// Bonded returns the amount bonded by account in tier.
func (e *Engine) Bonded(account [20]byte, tierID uint64) (*uint256.Int, error) {
	entry, err := e.Entry(account, tierID)
	if err != nil {
		return nil, err
	}
	return entry.Bonded(), nil
}

// PendingUnbonds returns the pending requests of account in tier.
func (e *Engine) PendingUnbonds(account [20]byte, tierID uint64) ([]UnbondRequest, error) {
	entry, err := e.Entry(account, tierID)
	if err != nil {
		return nil, err
	}
	if entry.Unbonding == nil {
		return []UnbondRequest{}, nil
	}
	return entry.Unbonding, nil
}

// AllBonded returns the amount account has bonded in each configured tier,
// ordered by tier id. Tiers without a bond report zero.
func (e *Engine) AllBonded(account [20]byte) ([]TierAmount, error) {
	out := make([]TierAmount, 0, len(e.order))
	for _, id := range e.order {
		entry, ok, err := e.entry(account, id)
		if err != nil {
			return nil, err
		}
		amount := common.Zero()
		if ok {
			amount = entry.Bonded()
		}
		out = append(out, TierAmount{Tier: id, Amount: amount})
	}
	return out, nil
}

// AllPendingUnbonds returns the open unbond requests of account keyed by
// tier. Tiers without requests are omitted.
func (e *Engine) AllPendingUnbonds(account [20]byte) (map[uint64][]UnbondRequest, error) {
	out := make(map[uint64][]UnbondRequest)
	for _, id := range e.order {
		entry, ok, err := e.entry(account, id)
		if err != nil {
			return nil, err
		}
		if !ok || len(entry.Unbonding) == 0 {
			continue
		}
		out[id] = entry.Clone().Unbonding
	}
	return out, nil
}

// Totals returns the aggregate figures of tier.
func (e *Engine) Totals(tierID uint64) (*TierTotals, error) {
	if _, err := e.Tier(tierID); err != nil {
		return nil, err
	}
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.TierTotals(tierID)
}

// AllTotals returns the aggregates of every configured tier ordered by id.
func (e *Engine) AllTotals() ([]*TierTotals, error) {
	out := make([]*TierTotals, 0, len(e.order))
	for _, id := range e.order {
		totals, err := e.Totals(id)
		if err != nil {
			return nil, err
		}
		out = append(out, totals)
	}
	return out, nil
}

// CheckStoredTiers fails when a tier that still holds bonded or unbonding
// tokens is missing from the configuration. Entries of such a tier would drop
// out of delegation and reward scans.
func (e *Engine) CheckStoredTiers() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	stored, err := e.state.BondTiers()
	if err != nil {
		return err
	}
	for _, id := range stored {
		if _, ok := e.tiers[id]; ok {
			continue
		}
		totals, err := e.state.TierTotals(id)
		if err != nil {
			return err
		}
		if !common.Amount(totals.Bonded).IsZero() || !common.Amount(totals.Unbonding).IsZero() {
			return fmt.Errorf("%w: tier %d removed while holding %s bonded and %s unbonding",
				lockerrors.ErrUnknownTier, id, common.Amount(totals.Bonded).Dec(), common.Amount(totals.Unbonding).Dec())
		}
	}
	return nil
}

// Delegated returns the vesting-backed amount of owner that has not returned
// to custody, across all tiers.
func (e *Engine) Delegated(owner [20]byte) (*uint256.Int, error) {
	total := common.Zero()
	for _, id := range e.order {
		entry, ok, err := e.entry(owner, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if total, err = common.Add(total, entry.DelegatedOutstanding()); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// VotingPower sums bonded amounts weighted by each tier's voting multiplier.
func (e *Engine) VotingPower(account [20]byte) (*uint256.Int, error) {
	total := common.Zero()
	for _, id := range e.order {
		entry, ok, err := e.entry(account, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		power, err := applyBps(entry.Bonded(), e.tiers[id].VotingBps, e.minBond)
		if err != nil {
			return nil, err
		}
		if total, err = common.Add(total, power); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// ViewPositions implements rewards.Positions.
func (e *Engine) ViewPositions(account [20]byte, fn func(rewards.Position) error) error {
	for _, id := range e.order {
		entry, ok, err := e.entry(account, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(entry.Reward.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePositions implements rewards.Positions. Entries left empty are removed.
func (e *Engine) UpdatePositions(account [20]byte, fn func(*rewards.Position) error) error {
	for _, id := range e.order {
		entry, ok, err := e.entry(account, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(&entry.Reward); err != nil {
			return err
		}
		if err := e.store(entry); err != nil {
			return err
		}
	}
	return nil
}
