package rewards

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
	"tokenlock/core/events"
	"tokenlock/core/types"
	"tokenlock/native/common"
)

var errNilState = errors.New("rewards engine: state not configured")

type engineState interface {
	RewardLedger() (*Ledger, error)
	PutRewardLedger(*Ledger) error
	WithdrawDelegate(owner [20]byte) ([20]byte, bool, error)
	PutWithdrawDelegate(owner, delegate [20]byte) error
	DeleteWithdrawDelegate(owner [20]byte) error
}

// Positions exposes the reward positions held by an account. Bonding
// implements it; each position is one (account, tier) entry.
type Positions interface {
	// ViewPositions calls fn with a copy of every position held by account.
	ViewPositions(account [20]byte, fn func(Position) error) error
	// UpdatePositions calls fn for every position held by account and
	// persists the positions afterwards.
	UpdatePositions(account [20]byte, fn func(*Position) error) error
}

// Engine distributes rewards over bonded weight.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	positions Positions
	pauses    common.PauseView
	pool      [20]byte
}

// NewEngine constructs a reward engine paying out of pool.
func NewEngine(pool [20]byte) *Engine {
	return &Engine{emitter: events.NoopEmitter{}, pool: pool}
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

// SetPositions wires the position source.
func (e *Engine) SetPositions(p Positions) { e.positions = p }

// SetPauses wires the pause view consulted before mutations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// Pool returns the account rewards are paid from.
func (e *Engine) Pool() [20]byte { return e.pool }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Ledger returns a copy of the global ledger.
func (e *Engine) Ledger() (*Ledger, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ledger, err := e.state.RewardLedger()
	if err != nil {
		return nil, err
	}
	return ledger.Clone(), nil
}

// Reweight moves a position to a new weight against the stored ledger.
func (e *Engine) Reweight(p *Position, weight *uint256.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	ledger, err := e.state.RewardLedger()
	if err != nil {
		return err
	}
	if err := ledger.Reweight(p, weight); err != nil {
		return err
	}
	return e.state.PutRewardLedger(ledger)
}

// NotifyReward distributes amount from funder over the current bonded
// weight. The returned transfer moves the reward into the pool.
func (e *Engine) NotifyReward(funder [20]byte, amount *uint256.Int) (*types.Transfer, error) {
	if err := common.Guard(e.pauses, common.ModuleRewards); err != nil {
		return nil, err
	}
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	amount = common.Amount(amount)
	if amount.IsZero() {
		return nil, nil
	}
	ledger, err := e.state.RewardLedger()
	if err != nil {
		return nil, err
	}
	if err := ledger.Notify(amount); err != nil {
		return nil, err
	}
	if err := e.state.PutRewardLedger(ledger); err != nil {
		return nil, err
	}
	e.emit(events.RewardsNotified{
		Amount:      common.Clone(amount),
		Accumulator: common.Clone(ledger.Accumulator),
		TotalWeight: common.Clone(ledger.TotalWeight),
		Leftover:    common.Clone(ledger.Leftover),
	})
	return types.NewTransfer(funder, e.pool, amount, types.TransferRewardFund), nil
}

// PendingReward sums the rewards owed to account across all its positions.
func (e *Engine) PendingReward(account [20]byte) (*uint256.Int, error) {
	ledger, err := e.Ledger()
	if err != nil {
		return nil, err
	}
	total := common.Zero()
	if e.positions == nil {
		return total, nil
	}
	err = e.positions.ViewPositions(account, func(p Position) error {
		pending, err := ledger.Pending(p)
		if err != nil {
			return err
		}
		total, err = common.Add(total, pending)
		return err
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// DelegateWithdrawal lets delegate withdraw owner's rewards in place of the
// owner. A zero delegate, or the owner itself, restores the default.
func (e *Engine) DelegateWithdrawal(owner, delegate [20]byte, now uint64) error {
	if err := common.Guard(e.pauses, common.ModuleRewards); err != nil {
		return err
	}
	if e == nil || e.state == nil {
		return errNilState
	}
	if owner == ([20]byte{}) {
		return fmt.Errorf("%w: owner required", lockerrors.ErrValidation)
	}
	if delegate == ([20]byte{}) || delegate == owner {
		if err := e.state.DeleteWithdrawDelegate(owner); err != nil {
			return err
		}
		delegate = owner
	} else if err := e.state.PutWithdrawDelegate(owner, delegate); err != nil {
		return err
	}
	e.emit(events.RewardsDelegated{Owner: owner, Delegate: delegate, At: now})
	return nil
}

// WithdrawDelegate returns the account allowed to withdraw owner's rewards,
// the owner itself unless a delegate was set.
func (e *Engine) WithdrawDelegate(owner [20]byte) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	delegate, ok, err := e.state.WithdrawDelegate(owner)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return owner, nil
	}
	return delegate, nil
}

// ClaimReward withdraws all rewards owed to account into account.
func (e *Engine) ClaimReward(account [20]byte, now uint64) (*uint256.Int, *types.Transfer, error) {
	return e.WithdrawRewards(account, account, [20]byte{}, now)
}

// WithdrawRewards withdraws all rewards owed to owner and pays them to
// receiver, or to caller when receiver is zero. Caller must be the owner or
// its withdrawal delegate. A repeated call without a new notification returns
// zero and no transfer.
func (e *Engine) WithdrawRewards(owner, caller, receiver [20]byte, now uint64) (*uint256.Int, *types.Transfer, error) {
	if err := common.Guard(e.pauses, common.ModuleRewards); err != nil {
		return nil, nil, err
	}
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if caller != owner {
		delegate, err := e.WithdrawDelegate(owner)
		if err != nil {
			return nil, nil, err
		}
		if caller != delegate {
			return nil, nil, fmt.Errorf("%w: not the withdrawal delegate of the owner", lockerrors.ErrUnauthorized)
		}
	}
	if receiver == ([20]byte{}) {
		receiver = caller
	}
	total := common.Zero()
	if e.positions == nil {
		return total, nil, nil
	}
	ledger, err := e.state.RewardLedger()
	if err != nil {
		return nil, nil, err
	}
	err = e.positions.UpdatePositions(owner, func(p *Position) error {
		taken, err := ledger.Take(p)
		if err != nil {
			return err
		}
		total, err = common.Add(total, taken)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if err := e.state.PutRewardLedger(ledger); err != nil {
		return nil, nil, err
	}
	if total.IsZero() {
		return total, nil, nil
	}
	e.emit(events.RewardsClaimed{Account: owner, Receiver: receiver, Amount: common.Clone(total), At: now})
	return total, types.NewTransfer(e.pool, receiver, total, types.TransferRewardClaim), nil
}
