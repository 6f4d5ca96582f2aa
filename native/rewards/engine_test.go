package rewards

import (
	"errors"
	"testing"

	lockerrors "tokenlock/core/errors"
	"tokenlock/core/events"
)

type mockState struct {
	ledger    *Ledger
	delegates map[[20]byte][20]byte
}

func (m *mockState) WithdrawDelegate(owner [20]byte) ([20]byte, bool, error) {
	delegate, ok := m.delegates[owner]
	return delegate, ok, nil
}

func (m *mockState) PutWithdrawDelegate(owner, delegate [20]byte) error {
	if m.delegates == nil {
		m.delegates = make(map[[20]byte][20]byte)
	}
	m.delegates[owner] = delegate
	return nil
}

func (m *mockState) DeleteWithdrawDelegate(owner [20]byte) error {
	delete(m.delegates, owner)
	return nil
}

func (m *mockState) RewardLedger() (*Ledger, error) {
	if m.ledger == nil {
		return NewLedger(), nil
	}
	return m.ledger.Clone(), nil
}

func (m *mockState) PutRewardLedger(l *Ledger) error {
	m.ledger = l.Clone()
	return nil
}

type mockPositions map[[20]byte][]*Position

func (m mockPositions) ViewPositions(account [20]byte, fn func(Position) error) error {
	for _, p := range m[account] {
		if err := fn(p.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m mockPositions) UpdatePositions(account [20]byte, fn func(*Position) error) error {
	for _, p := range m[account] {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

var (
	alice  = [20]byte{0xA1}
	bob    = [20]byte{0xB0}
	pool   = [20]byte{0xEE}
	funder = [20]byte{0xF0}
)

func TestEngineNotifyAndClaim(t *testing.T) {
	state := &mockState{}
	positions := mockPositions{}
	rec := &events.Recorder{}
	engine := NewEngine(pool)
	engine.SetState(state)
	engine.SetPositions(positions)
	engine.SetEmitter(rec)

	if _, err := engine.NotifyReward(funder, u(1000)); !errors.Is(err, lockerrors.ErrNoStakers) {
		t.Fatalf("expected no stakers, got %v", err)
	}
	if state.ledger != nil {
		t.Fatalf("ledger should not be persisted on failure")
	}

	// alice bonds in two tiers, bob in one.
	for account, weights := range map[[20]byte][]uint64{alice: {100, 200}, bob: {700}} {
		for _, w := range weights {
			p := position()
			if err := engine.Reweight(p, u(w)); err != nil {
				t.Fatalf("reweight: %v", err)
			}
			positions[account] = append(positions[account], p)
		}
	}

	transfer, err := engine.NotifyReward(funder, u(1000))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if transfer == nil || transfer.From != funder || transfer.To != pool || transfer.Amount.Uint64() != 1000 {
		t.Fatalf("unexpected funding transfer %+v", transfer)
	}

	pending, err := engine.PendingReward(alice)
	if err != nil || pending.Uint64() != 300 {
		t.Fatalf("pending(alice) = %v (%v), want 300", pending, err)
	}
	amount, transfer, err := engine.ClaimReward(alice, 10)
	if err != nil || amount.Uint64() != 300 {
		t.Fatalf("claim = %v (%v)", amount, err)
	}
	if transfer == nil || transfer.From != pool || transfer.To != alice {
		t.Fatalf("unexpected claim transfer %+v", transfer)
	}
	amount, transfer, err = engine.ClaimReward(alice, 11)
	if err != nil || !amount.IsZero() || transfer != nil {
		t.Fatalf("repeated claim should return zero: %v %v %v", amount, transfer, err)
	}
	pending, _ = engine.PendingReward(bob)
	if pending.Uint64() != 700 {
		t.Fatalf("pending(bob) = %s", pending)
	}

	kinds := make([]string, 0)
	for _, evt := range rec.Drain() {
		kinds = append(kinds, evt.EventType())
	}
	if len(kinds) != 2 || kinds[0] != events.TypeRewardsNotified || kinds[1] != events.TypeRewardsClaimed {
		t.Fatalf("unexpected events %v", kinds)
	}
}

func TestWithdrawRewardsToReceiverAndDelegate(t *testing.T) {
	state := &mockState{}
	positions := mockPositions{}
	rec := &events.Recorder{}
	engine := NewEngine(pool)
	engine.SetState(state)
	engine.SetPositions(positions)
	engine.SetEmitter(rec)

	p := position()
	if err := engine.Reweight(p, u(100)); err != nil {
		t.Fatalf("reweight: %v", err)
	}
	positions[alice] = []*Position{p}
	if _, err := engine.NotifyReward(funder, u(500)); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if _, _, err := engine.WithdrawRewards(alice, bob, [20]byte{}, 1); !errors.Is(err, lockerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.DelegateWithdrawal(alice, bob, 2); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	delegate, err := engine.WithdrawDelegate(alice)
	if err != nil || delegate != bob {
		t.Fatalf("delegate = %x, %v", delegate, err)
	}

	// The delegate is paid unless another receiver is named.
	amount, transfer, err := engine.WithdrawRewards(alice, bob, [20]byte{}, 3)
	if err != nil || amount.Uint64() != 500 {
		t.Fatalf("withdraw = %v, %v", amount, err)
	}
	if transfer == nil || transfer.From != pool || transfer.To != bob {
		t.Fatalf("unexpected transfer %+v", transfer)
	}

	if _, err := engine.NotifyReward(funder, u(200)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	amount, transfer, err = engine.WithdrawRewards(alice, alice, funder, 4)
	if err != nil || amount.Uint64() != 200 || transfer.To != funder {
		t.Fatalf("owner withdraw to receiver = %v %+v %v", amount, transfer, err)
	}

	if err := engine.DelegateWithdrawal(alice, [20]byte{}, 5); err != nil {
		t.Fatalf("clear delegate: %v", err)
	}
	if delegate, _ := engine.WithdrawDelegate(alice); delegate != alice {
		t.Fatalf("cleared delegate should fall back to owner, got %x", delegate)
	}
	if _, _, err := engine.WithdrawRewards(alice, bob, [20]byte{}, 6); !errors.Is(err, lockerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized after clearing, got %v", err)
	}

	var delegated int
	for _, evt := range rec.Drain() {
		if evt.EventType() == events.TypeRewardsDelegated {
			delegated++
		}
	}
	if delegated != 2 {
		t.Fatalf("expected two delegation events, got %d", delegated)
	}
}
