package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	lockerrors "tokenlock/core/errors"
	"tokenlock/core/types"
	"tokenlock/native/bonding"
	"tokenlock/native/common"
	"tokenlock/native/curve"
	"tokenlock/storage"
)

var (
	admin      = [20]byte{0xAD}
	issuer     = [20]byte{0x15}
	alice      = [20]byte{0xA1}
	bob        = [20]byte{0xB0}
	custody    = [20]byte{0xCC}
	bondPool   = [20]byte{0xB1}
	rewardPool = [20]byte{0xEE}
)

const (
	tierShort = 1
	tierLong  = 2
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func testConfig() Config {
	return Config{
		Admin:      admin,
		Custody:    custody,
		BondPool:   bondPool,
		RewardPool: rewardPool,
		MinBond:    u(1),
		Tiers: []bonding.Tier{
			{ID: tierShort, Name: "short", UnbondingPeriod: 100, RewardBps: 10_000, VotingBps: 10_000},
			{ID: tierLong, Name: "long", UnbondingPeriod: 1_000, RewardBps: 20_000, VotingBps: 20_000},
		},
		MaxCurveSteps: 16,
	}
}

func newTestProcessor(t *testing.T, db storage.Database, opts ...Option) *Processor {
	t.Helper()
	if db == nil {
		db = storage.NewMemDB()
	}
	p, err := New(db, testConfig(), opts...)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return p
}

func linear(t *testing.T, total uint64) curve.Curve {
	t.Helper()
	c, err := curve.SaturatingLinear(0, u(0), 1_000, u(total))
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	return c
}

func mustApply(t *testing.T, p *Processor, cmd Command) *Receipt {
	t.Helper()
	receipt, err := p.Apply(context.Background(), cmd)
	if err != nil {
		t.Fatalf("%s: %v", cmd.Kind, err)
	}
	return receipt
}

func createAlice(t *testing.T, p *Processor) {
	t.Helper()
	receipt := mustApply(t, p, Command{
		Kind: KindCreateVesting, Caller: issuer, Account: alice,
		Amount: u(1_000), Schedule: linear(t, 1_000), Now: 0,
	})
	if len(receipt.Transfers) != 1 {
		t.Fatalf("expected funding transfer, got %+v", receipt.Transfers)
	}
	fund := receipt.Transfers[0]
	if fund.From != issuer || fund.To != custody || !fund.Amount.Eq(u(1_000)) {
		t.Fatalf("unexpected funding transfer %+v", fund)
	}
}

func TestClaimLifecycle(t *testing.T) {
	p := newTestProcessor(t, nil)
	createAlice(t, p)

	receipt := mustApply(t, p, Command{Kind: KindClaim, Caller: alice, Amount: u(300), Now: 500})
	if len(receipt.Transfers) != 1 || receipt.Transfers[0].To != alice || receipt.Transfers[0].From != custody {
		t.Fatalf("unexpected claim transfers %+v", receipt.Transfers)
	}
	if delta := receipt.Transfers[0].Delta(alice); delta.Int64() != 300 {
		t.Fatalf("alice delta = %s", delta)
	}
	if len(receipt.Events) != 1 || receipt.Events[0].Type != "vesting.claimed" {
		t.Fatalf("unexpected events %+v", receipt.Events)
	}

	_, err := p.Apply(context.Background(), Command{Kind: KindClaim, Caller: alice, Amount: u(300), Now: 500})
	if !errors.Is(err, lockerrors.ErrInsufficientUnlocked) {
		t.Fatalf("expected ErrInsufficientUnlocked, got %v", err)
	}
	acc, err := p.Vesting(alice)
	if err != nil {
		t.Fatalf("vesting: %v", err)
	}
	if !acc.Claimed.Eq(u(300)) {
		t.Fatalf("failed claim mutated state: claimed %s", acc.Claimed)
	}
	claimable, err := p.Claimable(alice, 500)
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	if !claimable.Eq(u(200)) {
		t.Fatalf("claimable = %s, want 200", claimable)
	}
}

func TestCommandsActOnCallerOnly(t *testing.T) {
	p := newTestProcessor(t, nil)
	createAlice(t, p)

	_, err := p.Apply(context.Background(), Command{Kind: KindClaim, Caller: bob, Account: alice, Amount: u(1), Now: 500})
	if !errors.Is(err, lockerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	_, err = p.Apply(context.Background(), Command{Kind: KindCancel, Caller: bob, Account: alice, Now: 500})
	if !errors.Is(err, lockerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on cancel, got %v", err)
	}
	_, err = p.Apply(context.Background(), Command{Kind: KindNotifyReward, Caller: bob, Amount: u(10)})
	if !errors.Is(err, lockerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on notify, got %v", err)
	}
	_, err = p.Apply(context.Background(), Command{Kind: "rebond", Caller: alice})
	if !errors.Is(err, ErrUnknownCommand) || !errors.Is(err, lockerrors.ErrValidation) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestCancelClawsBackUnvested(t *testing.T) {
	p := newTestProcessor(t, nil)
	createAlice(t, p)

	receipt := mustApply(t, p, Command{Kind: KindCancel, Caller: admin, Account: alice, Now: 250})
	if !receipt.Amount.Eq(u(750)) {
		t.Fatalf("clawback = %s, want 750", receipt.Amount)
	}
	if len(receipt.Transfers) != 1 || receipt.Transfers[0].To != issuer {
		t.Fatalf("unexpected clawback transfers %+v", receipt.Transfers)
	}
	_, err := p.Apply(context.Background(), Command{Kind: KindCancel, Caller: admin, Account: alice, Now: 260})
	if !errors.Is(err, lockerrors.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
	claimable, err := p.Claimable(alice, 900)
	if err != nil {
		t.Fatalf("claimable: %v", err)
	}
	if !claimable.Eq(u(250)) {
		t.Fatalf("frozen claimable = %s, want 250", claimable)
	}
}

func TestDelegatedBondBlocksClaimUntilWithdrawn(t *testing.T) {
	p := newTestProcessor(t, nil)
	createAlice(t, p)
	mustApply(t, p, Command{Kind: KindClaim, Caller: alice, Amount: u(300), Now: 500})

	bond := mustApply(t, p, Command{Kind: KindBond, Caller: alice, Tier: tierShort, Amount: u(400), Source: alice, Now: 500})
	if len(bond.Transfers) != 1 || bond.Transfers[0].From != custody || bond.Transfers[0].To != bondPool {
		t.Fatalf("unexpected bond transfers %+v", bond.Transfers)
	}

	_, err := p.Apply(context.Background(), Command{Kind: KindClaim, Caller: alice, Amount: u(700), Now: 1_000})
	if !errors.Is(err, lockerrors.ErrTokensBonded) {
		t.Fatalf("expected ErrTokensBonded, got %v", err)
	}
	mustApply(t, p, Command{Kind: KindClaim, Caller: alice, Amount: u(300), Now: 1_000})

	unbond := mustApply(t, p, Command{Kind: KindBeginUnbond, Caller: alice, Tier: tierShort, Amount: u(400), Now: 1_000})
	if unbond.Unbond == nil || unbond.Unbond.ReleaseAt != 1_100 {
		t.Fatalf("unexpected unbond request %+v", unbond.Unbond)
	}
	if _, err := p.Apply(context.Background(), Command{Kind: KindClaim, Caller: alice, Amount: u(100), Now: 1_050}); !errors.Is(err, lockerrors.ErrTokensBonded) {
		t.Fatalf("pending unbond should still block claims, got %v", err)
	}

	early := mustApply(t, p, Command{Kind: KindWithdrawUnbonded, Caller: alice, Tier: tierShort, Now: 1_050})
	if !early.Amount.IsZero() || len(early.Transfers) != 0 {
		t.Fatalf("early withdraw should be a zero success, got %+v", early)
	}
	withdraw := mustApply(t, p, Command{Kind: KindWithdrawUnbonded, Caller: alice, Tier: tierShort, Now: 1_100})
	if !withdraw.Amount.Eq(u(400)) {
		t.Fatalf("withdrawn = %s, want 400", withdraw.Amount)
	}
	if len(withdraw.Transfers) != 1 || withdraw.Transfers[0].To != custody {
		t.Fatalf("delegated withdraw must return to custody: %+v", withdraw.Transfers)
	}
	mustApply(t, p, Command{Kind: KindClaim, Caller: alice, Amount: u(400), Now: 1_100})

	pending, err := p.PendingUnbonds(alice, tierShort)
	if err != nil {
		t.Fatalf("pending unbonds: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending unbonds, got %d", len(pending))
	}
}

func TestRewardDistribution(t *testing.T) {
	p := newTestProcessor(t, nil)

	_, err := p.Apply(context.Background(), Command{Kind: KindNotifyReward, Caller: admin, Amount: u(1_000)})
	if !errors.Is(err, lockerrors.ErrNoStakers) {
		t.Fatalf("expected ErrNoStakers, got %v", err)
	}
	ledger, err := p.Ledger()
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if !ledger.Distributed.IsZero() || !ledger.Accumulator.IsZero() {
		t.Fatalf("notify without stakers changed the ledger: %+v", ledger)
	}

	mustApply(t, p, Command{Kind: KindBond, Caller: bob, Tier: tierShort, Amount: u(100)})
	mustApply(t, p, Command{Kind: KindBond, Caller: alice, Tier: tierShort, Amount: u(300)})
	notify := mustApply(t, p, Command{Kind: KindNotifyReward, Caller: admin, Amount: u(1_000)})
	if len(notify.Transfers) != 1 || notify.Transfers[0].To != rewardPool {
		t.Fatalf("unexpected notify transfers %+v", notify.Transfers)
	}

	for account, want := range map[[20]byte]uint64{bob: 250, alice: 750} {
		pending, err := p.PendingReward(account)
		if err != nil {
			t.Fatalf("pending: %v", err)
		}
		if !pending.Eq(u(want)) {
			t.Fatalf("pending %x = %s, want %d", account[:1], pending, want)
		}
	}

	claim := mustApply(t, p, Command{Kind: KindClaimReward, Caller: bob, Now: 10})
	if !claim.Amount.Eq(u(250)) || len(claim.Transfers) != 1 || claim.Transfers[0].From != rewardPool {
		t.Fatalf("unexpected reward claim %+v", claim)
	}
	again := mustApply(t, p, Command{Kind: KindClaimReward, Caller: bob, Now: 11})
	if !again.Amount.IsZero() || len(again.Transfers) != 0 {
		t.Fatalf("second claim should pay nothing, got %+v", again)
	}
}

func TestLongTierDoublesWeightAndVotes(t *testing.T) {
	p := newTestProcessor(t, nil)
	mustApply(t, p, Command{Kind: KindBond, Caller: alice, Tier: tierLong, Amount: u(100)})
	mustApply(t, p, Command{Kind: KindBond, Caller: bob, Tier: tierShort, Amount: u(200)})
	mustApply(t, p, Command{Kind: KindNotifyReward, Caller: admin, Amount: u(800)})

	aliceReward, _ := p.PendingReward(alice)
	bobReward, _ := p.PendingReward(bob)
	if !aliceReward.Eq(u(400)) || !bobReward.Eq(u(400)) {
		t.Fatalf("rewards alice=%s bob=%s, want 400 each", aliceReward, bobReward)
	}
	power, err := p.VotingPower(alice)
	if err != nil {
		t.Fatalf("voting power: %v", err)
	}
	if !power.Eq(u(200)) {
		t.Fatalf("voting power = %s, want 200", power)
	}
}

func TestPausedModuleRejectsCommands(t *testing.T) {
	cfg := testConfig()
	cfg.Pauses = common.Pauses{common.ModuleBonding: true}
	p, err := New(storage.NewMemDB(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = p.Apply(context.Background(), Command{Kind: KindBond, Caller: alice, Tier: tierShort, Amount: u(10)})
	if !errors.Is(err, lockerrors.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if lockerrors.Code(err) != lockerrors.CodeModulePaused {
		t.Fatalf("unexpected code %q", lockerrors.Code(err))
	}
}

type recordingOutbox struct {
	enqueued  []*Receipt
	cancelled []uuid.UUID
	fail      error
}

func (o *recordingOutbox) Enqueue(_ context.Context, r *Receipt) error {
	if o.fail != nil {
		return o.fail
	}
	o.enqueued = append(o.enqueued, r)
	return nil
}

func (o *recordingOutbox) Cancel(_ context.Context, id uuid.UUID) error {
	o.cancelled = append(o.cancelled, id)
	return nil
}

type failingWriteDB struct {
	*storage.MemDB
	fail bool
}

func (db *failingWriteDB) Write(b *storage.Batch) error {
	if db.fail {
		return errors.New("disk full")
	}
	return db.MemDB.Write(b)
}

func TestOutboxReceivesTransfers(t *testing.T) {
	outbox := &recordingOutbox{}
	p := newTestProcessor(t, nil, WithOutbox(outbox))
	createAlice(t, p)
	if len(outbox.enqueued) != 1 || outbox.enqueued[0].Transfers[0].Reason != types.TransferVestingFund {
		t.Fatalf("unexpected outbox contents %+v", outbox.enqueued)
	}

	// Claims of zero move nothing and skip the outbox.
	mustApply(t, p, Command{Kind: KindClaim, Caller: alice, Amount: u(0), Now: 10})
	if len(outbox.enqueued) != 1 {
		t.Fatalf("empty receipt reached the outbox")
	}
}

func TestOutboxFailureAbortsCommand(t *testing.T) {
	outbox := &recordingOutbox{fail: errors.New("outbox down")}
	p := newTestProcessor(t, nil, WithOutbox(outbox))
	_, err := p.Apply(context.Background(), Command{
		Kind: KindCreateVesting, Caller: issuer, Account: alice,
		Amount: u(1_000), Schedule: linear(t, 1_000),
	})
	if err == nil {
		t.Fatalf("expected outbox failure")
	}
	if _, err := p.Vesting(alice); !errors.Is(err, lockerrors.ErrAccountNotFound) {
		t.Fatalf("allocation persisted despite outbox failure: %v", err)
	}
}

func TestCommitFailureCancelsOutboxEntry(t *testing.T) {
	db := &failingWriteDB{MemDB: storage.NewMemDB(), fail: true}
	outbox := &recordingOutbox{}
	p := newTestProcessor(t, db, WithOutbox(outbox))
	_, err := p.Apply(context.Background(), Command{
		Kind: KindCreateVesting, Caller: issuer, Account: alice,
		Amount: u(1_000), Schedule: linear(t, 1_000),
	})
	if err == nil {
		t.Fatalf("expected commit failure")
	}
	if len(outbox.enqueued) != 1 || len(outbox.cancelled) != 1 || outbox.cancelled[0] != outbox.enqueued[0].ID {
		t.Fatalf("outbox entry not cancelled: enqueued=%d cancelled=%d", len(outbox.enqueued), len(outbox.cancelled))
	}

	db.fail = false
	createAlice(t, p)
}

func TestApplyGenesisOnce(t *testing.T) {
	p := newTestProcessor(t, nil)
	cmds := []Command{
		{Kind: KindCreateVesting, Caller: issuer, Account: alice, Amount: u(1_000), Schedule: linear(t, 1_000)},
		{Kind: KindCreateVesting, Caller: issuer, Account: bob, Amount: u(500), Schedule: linear(t, 500)},
	}
	hash := [32]byte{1}

	applied, err := p.ApplyGenesis(context.Background(), hash, cmds)
	if err != nil || !applied {
		t.Fatalf("first genesis: applied=%v err=%v", applied, err)
	}
	applied, err = p.ApplyGenesis(context.Background(), hash, cmds)
	if err != nil || applied {
		t.Fatalf("repeat genesis: applied=%v err=%v", applied, err)
	}
	if _, err := p.ApplyGenesis(context.Background(), [32]byte{2}, cmds); !errors.Is(err, ErrGenesisApplied) {
		t.Fatalf("expected ErrGenesisApplied, got %v", err)
	}
	if _, err := p.Vesting(bob); err != nil {
		t.Fatalf("genesis allocation missing: %v", err)
	}
}

func TestApplyGenesisIsAtomic(t *testing.T) {
	p := newTestProcessor(t, nil)
	cmds := []Command{
		{Kind: KindCreateVesting, Caller: issuer, Account: alice, Amount: u(1_000), Schedule: linear(t, 1_000)},
		{Kind: KindCreateVesting, Caller: issuer, Account: alice, Amount: u(1_000), Schedule: linear(t, 1_000)},
	}
	if _, err := p.ApplyGenesis(context.Background(), [32]byte{1}, cmds); !errors.Is(err, lockerrors.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if _, err := p.Vesting(alice); !errors.Is(err, lockerrors.ErrAccountNotFound) {
		t.Fatalf("partial genesis persisted: %v", err)
	}
}

func TestApplyGenesisForwardsFunding(t *testing.T) {
	outbox := &recordingOutbox{}
	p := newTestProcessor(t, nil, WithOutbox(outbox))
	cmds := []Command{
		{Kind: KindCreateVesting, Caller: issuer, Account: alice, Amount: u(1_000), Schedule: linear(t, 1_000)},
	}
	if _, err := p.ApplyGenesis(context.Background(), [32]byte{1}, cmds); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if len(outbox.enqueued) != 1 || len(outbox.enqueued[0].Transfers) != 1 {
		t.Fatalf("genesis funding not forwarded: %+v", outbox.enqueued)
	}
	fund := outbox.enqueued[0].Transfers[0]
	if fund.From != issuer || fund.To != custody || !fund.Amount.Eq(u(1_000)) || fund.Reason != types.TransferVestingFund {
		t.Fatalf("unexpected funding transfer %+v", fund)
	}

	// Replaying the same genesis forwards nothing new.
	if _, err := p.ApplyGenesis(context.Background(), [32]byte{1}, cmds); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(outbox.enqueued) != 1 {
		t.Fatalf("replayed genesis reached the outbox again")
	}
}

func TestApplyGenesisCommitFailureCancelsFunding(t *testing.T) {
	db := &failingWriteDB{MemDB: storage.NewMemDB(), fail: true}
	outbox := &recordingOutbox{}
	p := newTestProcessor(t, db, WithOutbox(outbox))
	cmds := []Command{
		{Kind: KindCreateVesting, Caller: issuer, Account: alice, Amount: u(1_000), Schedule: linear(t, 1_000)},
		{Kind: KindCreateVesting, Caller: issuer, Account: bob, Amount: u(500), Schedule: linear(t, 500)},
	}
	if _, err := p.ApplyGenesis(context.Background(), [32]byte{1}, cmds); err == nil {
		t.Fatalf("expected commit failure")
	}
	if len(outbox.enqueued) != 2 || len(outbox.cancelled) != 2 {
		t.Fatalf("genesis entries not cancelled: enqueued=%d cancelled=%d", len(outbox.enqueued), len(outbox.cancelled))
	}
	for i, r := range outbox.enqueued {
		if outbox.cancelled[i] != r.ID {
			t.Fatalf("cancelled %s, want %s", outbox.cancelled[i], r.ID)
		}
	}
}

func TestApplyGenesisOutboxFailureLeavesStoreEmpty(t *testing.T) {
	outbox := &recordingOutbox{fail: errors.New("outbox down")}
	p := newTestProcessor(t, nil, WithOutbox(outbox))
	cmds := []Command{
		{Kind: KindCreateVesting, Caller: issuer, Account: alice, Amount: u(1_000), Schedule: linear(t, 1_000)},
	}
	if _, err := p.ApplyGenesis(context.Background(), [32]byte{1}, cmds); err == nil {
		t.Fatalf("expected outbox failure")
	}
	if _, err := p.Vesting(alice); !errors.Is(err, lockerrors.ErrAccountNotFound) {
		t.Fatalf("genesis persisted despite outbox failure: %v", err)
	}
	outbox.fail = nil
	applied, err := p.ApplyGenesis(context.Background(), [32]byte{1}, cmds)
	if err != nil || !applied {
		t.Fatalf("retry after outbox recovery: applied=%v err=%v", applied, err)
	}
}

func TestDelegatedRewardWithdrawal(t *testing.T) {
	p := newTestProcessor(t, nil)
	mustApply(t, p, Command{Kind: KindBond, Caller: bob, Tier: tierShort, Amount: u(100)})
	mustApply(t, p, Command{Kind: KindNotifyReward, Caller: admin, Amount: u(300)})

	_, err := p.Apply(context.Background(), Command{Kind: KindClaimReward, Caller: alice, Account: bob, Now: 5})
	if !errors.Is(err, lockerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	mustApply(t, p, Command{Kind: KindDelegateWithdrawal, Caller: bob, Receiver: alice, Now: 6})
	if delegate, err := p.WithdrawDelegate(bob); err != nil || delegate != alice {
		t.Fatalf("delegate = %x, %v", delegate, err)
	}
	claim := mustApply(t, p, Command{Kind: KindClaimReward, Caller: alice, Account: bob, Receiver: issuer, Now: 7})
	if claim.Account != bob || !claim.Amount.Eq(u(300)) {
		t.Fatalf("unexpected claim %+v", claim)
	}
	if len(claim.Transfers) != 1 || claim.Transfers[0].From != rewardPool || claim.Transfers[0].To != issuer {
		t.Fatalf("unexpected claim transfers %+v", claim.Transfers)
	}
}

func TestTierTotalsQuery(t *testing.T) {
	p := newTestProcessor(t, nil)
	mustApply(t, p, Command{Kind: KindBond, Caller: alice, Tier: tierShort, Amount: u(100)})
	mustApply(t, p, Command{Kind: KindBond, Caller: bob, Tier: tierLong, Amount: u(50)})
	mustApply(t, p, Command{Kind: KindBeginUnbond, Caller: bob, Tier: tierLong, Amount: u(20), Now: 1})

	all, err := p.TierTotals(0)
	if err != nil || len(all) != 2 {
		t.Fatalf("totals = %v, %v", all, err)
	}
	if !all[0].Bonded.Eq(u(100)) || !all[1].Bonded.Eq(u(30)) || !all[1].Unbonding.Eq(u(20)) {
		t.Fatalf("unexpected totals %+v %+v", all[0], all[1])
	}
	unbonds, err := p.AllPendingUnbonds(bob)
	if err != nil || len(unbonds[tierLong]) != 1 {
		t.Fatalf("unbonds = %v, %v", unbonds, err)
	}
}

func TestNewRejectsRetiredTierHoldingBonds(t *testing.T) {
	db := storage.NewMemDB()
	p := newTestProcessor(t, db)
	mustApply(t, p, Command{Kind: KindBond, Caller: alice, Tier: tierLong, Amount: u(100)})

	cfg := testConfig()
	cfg.Tiers = cfg.Tiers[:1]
	if _, err := New(db, cfg); !errors.Is(err, lockerrors.ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}
