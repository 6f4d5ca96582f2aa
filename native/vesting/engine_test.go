package vesting

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
	"tokenlock/core/events"
	"tokenlock/core/types"
	"tokenlock/native/common"
	"tokenlock/native/curve"
)

type mockState struct {
	accounts map[[20]byte]*Account
	stages   map[uint64]*Stage
}

func newMockState() *mockState {
	return &mockState{
		accounts: make(map[[20]byte]*Account),
		stages:   make(map[uint64]*Stage),
	}
}

func (m *mockState) VestingAccount(owner [20]byte) (*Account, bool, error) {
	acc, ok := m.accounts[owner]
	if !ok {
		return nil, false, nil
	}
	return acc.Clone(), true, nil
}

func (m *mockState) PutVestingAccount(acc *Account) error {
	m.accounts[acc.Owner] = acc.Clone()
	return nil
}

func (m *mockState) AirdropStage(id uint64) (*Stage, bool, error) {
	stage, ok := m.stages[id]
	if !ok {
		return nil, false, nil
	}
	return stage.Clone(), true, nil
}

func (m *mockState) PutAirdropStage(stage *Stage) error {
	m.stages[stage.ID] = stage.Clone()
	return nil
}

type staticDelegations map[[20]byte]*uint256.Int

func (s staticDelegations) Delegated(owner [20]byte) (*uint256.Int, error) {
	if v, ok := s[owner]; ok {
		return v, nil
	}
	return uint256.NewInt(0), nil
}

var (
	owner   = [20]byte{0x01}
	issuer  = [20]byte{0x02}
	admin   = [20]byte{0x03}
	custody = [20]byte{0xCC}
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func linear(t *testing.T, start, end, total uint64) curve.Curve {
	t.Helper()
	c, err := curve.SaturatingLinear(start, u(0), end, u(total))
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	return c
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *events.Recorder) {
	t.Helper()
	state := newMockState()
	rec := &events.Recorder{}
	engine := NewEngine(Config{Admin: admin, Custody: custody, MaxSteps: 16})
	engine.SetState(state)
	engine.SetEmitter(rec)
	return engine, state, rec
}

func requireTransfer(t *testing.T, got *types.Transfer, from, to [20]byte, amount uint64) {
	t.Helper()
	if got == nil {
		t.Fatalf("expected transfer of %d", amount)
	}
	if got.From != from || got.To != to || got.Amount.Uint64() != amount {
		t.Fatalf("unexpected transfer %+v", got)
	}
}

func TestClaimScenario(t *testing.T) {
	engine, _, rec := newTestEngine(t)
	transfer, err := engine.Create(owner, issuer, u(1000), linear(t, 0, 100, 1000), 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	requireTransfer(t, transfer, issuer, custody, 1000)

	claimable, err := engine.Claimable(owner, 50)
	if err != nil || claimable.Uint64() != 500 {
		t.Fatalf("claimable(50) = %v (%v)", claimable, err)
	}
	transfer, err = engine.Claim(owner, u(500), 50)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	requireTransfer(t, transfer, custody, owner, 500)

	if _, err := engine.Claim(owner, u(1), 50); !errors.Is(err, lockerrors.ErrInsufficientUnlocked) {
		t.Fatalf("expected insufficient unlocked, got %v", err)
	}
	claimable, err = engine.Claimable(owner, 50)
	if err != nil || !claimable.IsZero() {
		t.Fatalf("second claimable at same time = %v (%v)", claimable, err)
	}

	evts := rec.Drain()
	if len(evts) != 2 || evts[0].EventType() != events.TypeVestingCreated || evts[1].EventType() != events.TypeVestingClaimed {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestClaimEdgePolicy(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.Create(owner, issuer, u(1000), linear(t, 100, 200, 1000), 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	claimable, err := engine.Claimable(owner, 10)
	if err != nil || !claimable.IsZero() {
		t.Fatalf("claimable before start = %v (%v)", claimable, err)
	}
	transfer, err := engine.Claim(owner, u(0), 10)
	if err != nil || transfer != nil {
		t.Fatalf("zero claim should be a no-op: %v %v", transfer, err)
	}
	if _, err := engine.Claim(owner, u(300), 130); err != nil {
		t.Fatalf("partial claim: %v", err)
	}
	claimable, err = engine.Claimable(owner, 10_000)
	if err != nil || claimable.Uint64() != 700 {
		t.Fatalf("claimable after vesting = %v (%v)", claimable, err)
	}
	if _, err := engine.Claim(owner, u(700), 10_000); err != nil {
		t.Fatalf("final claim: %v", err)
	}
	claimable, _ = engine.Claimable(owner, 20_000)
	if !claimable.IsZero() {
		t.Fatalf("nothing should remain, got %s", claimable)
	}
}

func TestClaimInvariantWithReplayedTimes(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	if _, err := engine.Create(owner, issuer, u(1000), linear(t, 0, 100, 1000), 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, step := range []struct{ now, amount uint64 }{{60, 600}, {20, 0}, {70, 100}, {10, 0}, {90, 200}} {
		if step.amount > 0 {
			if _, err := engine.Claim(owner, u(step.amount), step.now); err != nil {
				t.Fatalf("claim at %d: %v", step.now, err)
			}
		}
		acc := state.accounts[owner]
		for _, at := range []uint64{0, 5, step.now, 95, 200} {
			unlocked, err := acc.Unlocked(at)
			if err != nil {
				t.Fatalf("unlocked: %v", err)
			}
			if acc.Claimed.Gt(unlocked) || unlocked.Gt(acc.Total) {
				t.Fatalf("invariant broken at %d: claimed %s unlocked %s total %s", at, acc.Claimed, unlocked, acc.Total)
			}
		}
	}
}

func TestEarlierTimesEvaluateAtWatermark(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.Create(owner, issuer, u(1000), linear(t, 0, 1000, 1000), 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Claim(owner, u(100), 400); err != nil {
		t.Fatalf("claim at 400: %v", err)
	}
	claimable, err := engine.Claimable(owner, 1)
	if err != nil || claimable.Uint64() != 300 {
		t.Fatalf("claimable(1) = %v (%v), want the amount unlocked at 400 less claimed", claimable, err)
	}
	if _, err := engine.Claim(owner, u(300), 1); err != nil {
		t.Fatalf("claim at an earlier time: %v", err)
	}
	if _, err := engine.Claim(owner, u(1), 1); !errors.Is(err, lockerrors.ErrInsufficientUnlocked) {
		t.Fatalf("expected insufficient unlocked, got %v", err)
	}
}

func TestCancelFreezesUnlocked(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.Create(owner, issuer, u(1000), linear(t, 0, 100, 1000), 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Claim(owner, u(100), 20); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := engine.Cancel(owner, [20]byte{0x77}, 40); !errors.Is(err, lockerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	atCancel, _ := engine.Claimable(owner, 40)
	transfer, err := engine.Cancel(owner, issuer, 40)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireTransfer(t, transfer, custody, issuer, 600)

	for _, later := range []uint64{40, 41, 100, 1_000_000} {
		got, err := engine.Claimable(owner, later)
		if err != nil || !got.Eq(atCancel) {
			t.Fatalf("claimable(%d) = %v, want %s (%v)", later, got, atCancel, err)
		}
	}
	if _, err := engine.Cancel(owner, admin, 50); !errors.Is(err, lockerrors.ErrAlreadyCancelled) {
		t.Fatalf("expected already cancelled, got %v", err)
	}
	transfer, err = engine.Claim(owner, u(300), 500)
	if err != nil {
		t.Fatalf("claim after cancel: %v", err)
	}
	requireTransfer(t, transfer, custody, owner, 300)
}

func TestClaimBlockedByDelegation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.Create(owner, issuer, u(100), linear(t, 1_000, 2_000, 100), 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	delegations := staticDelegations{owner: u(100)}
	engine.SetDelegations(delegations)

	if _, err := engine.Claim(owner, u(100), 5_000); !errors.Is(err, lockerrors.ErrTokensBonded) {
		t.Fatalf("expected tokens bonded, got %v", err)
	}
	spendable, err := engine.Spendable(owner, 5_000)
	if err != nil || !spendable.IsZero() {
		t.Fatalf("spendable = %v (%v)", spendable, err)
	}
	backing, err := engine.Backing(owner, 1_500)
	if err != nil {
		t.Fatalf("backing: %v", err)
	}
	if backing.UnvestedBacked.Uint64() != 50 || backing.VestedBacked.Uint64() != 50 {
		t.Fatalf("unexpected backing %+v", backing)
	}
	if _, err := engine.Cancel(owner, issuer, 1_500); !errors.Is(err, lockerrors.ErrTokensBonded) {
		t.Fatalf("cancel should not strand delegated tokens, got %v", err)
	}

	delegations[owner] = u(40)
	if _, err := engine.Claim(owner, u(61), 5_000); !errors.Is(err, lockerrors.ErrTokensBonded) {
		t.Fatalf("expected tokens bonded for 61, got %v", err)
	}
	if _, err := engine.Claim(owner, u(60), 5_000); err != nil {
		t.Fatalf("claim within backing: %v", err)
	}
	delete(delegations, owner)
	if _, err := engine.Claim(owner, u(40), 5_000); err != nil {
		t.Fatalf("claim after undelegation: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	decreasing, _ := curve.SaturatingLinear(0, u(100), 10, u(0))
	short, _ := curve.SaturatingLinear(0, u(0), 10, u(90))
	tooMuch, _ := curve.PiecewiseLinear(curve.Point{T: 0, Y: u(0)}, curve.Point{T: 10, Y: u(100)})
	cases := []struct {
		name     string
		total    *uint256.Int
		schedule curve.Curve
		want     error
	}{
		{"zero total", u(0), curve.Constant(u(0)), lockerrors.ErrInvalidAmount},
		{"decreasing", u(100), decreasing, lockerrors.ErrValidation},
		{"never fully vests", u(100), short, lockerrors.ErrValidation},
		{"vests more than sent", u(50), tooMuch, lockerrors.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Create(owner, issuer, tc.total, tc.schedule, 0); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	steps := make([]curve.Point, 20)
	for i := range steps {
		steps[i] = curve.Point{T: uint64(i), Y: u(uint64(i))}
	}
	detailed, _ := curve.PiecewiseLinear(steps...)
	if _, err := engine.Create(owner, issuer, u(19), detailed, 0); !errors.Is(err, lockerrors.ErrValidation) {
		t.Fatalf("expected complexity error, got %v", err)
	}

	if _, err := engine.Create(owner, issuer, u(10), curve.Constant(u(10)), 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Create(owner, issuer, u(10), curve.Constant(u(10)), 0); !errors.Is(err, lockerrors.ErrAccountExists) {
		t.Fatalf("expected account exists, got %v", err)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.SetPauses(common.Pauses{common.ModuleVesting: true})
	if _, err := engine.Create(owner, issuer, u(10), curve.Constant(u(10)), 0); !errors.Is(err, lockerrors.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}
