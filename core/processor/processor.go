package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	lockerrors "tokenlock/core/errors"
	"tokenlock/core/events"
	"tokenlock/core/state"
	"tokenlock/crypto"
	"tokenlock/native/bonding"
	"tokenlock/native/common"
	"tokenlock/native/rewards"
	"tokenlock/native/vesting"
	"tokenlock/observability/logging"
	"tokenlock/observability/metrics"
	"tokenlock/storage"
)

var (
	// ErrUnknownCommand is returned for command kinds the processor does not handle.
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", lockerrors.ErrValidation)
	// ErrGenesisApplied is returned when a genesis different from the stored one is applied.
	ErrGenesisApplied = errors.New("processor: a different genesis was already applied")
)

// Outbox receives the transfers of every command before its state changes are
// committed. Cancel is invoked when the commit fails afterwards.
type Outbox interface {
	Enqueue(ctx context.Context, receipt *Receipt) error
	Cancel(ctx context.Context, receiptID uuid.UUID) error
}

// Config holds the static parameters of the lock state.
type Config struct {
	// Admin may cancel allocations, register airdrop stages and notify rewards.
	Admin      [20]byte
	Custody    [20]byte
	BondPool   [20]byte
	RewardPool [20]byte
	MinBond    *uint256.Int
	Tiers      []bonding.Tier
	// MaxCurveSteps bounds vesting schedule complexity. Zero disables the check.
	MaxCurveSteps int
	Pauses        common.PauseView
}

// Processor executes commands one at a time, each inside its own state
// transaction. A failing command leaves no trace in the store.
type Processor struct {
	mu       sync.Mutex
	state    *state.Manager
	recorder *events.Recorder
	vesting  *vesting.Engine
	bonding  *bonding.Engine
	rewards  *rewards.Engine
	admin    [20]byte

	logger  *slog.Logger
	metrics *metrics.LockMetrics
	tracer  trace.Tracer
	outbox  Outbox
}

// Option customises the processor instance.
type Option func(*Processor)

// WithLogger overrides the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithMetrics overrides the metrics registry. A nil registry disables metrics.
func WithMetrics(m *metrics.LockMetrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithOutbox routes committed transfers into the supplied outbox.
func WithOutbox(o Outbox) Option {
	return func(p *Processor) { p.outbox = o }
}

// WithProofVerifier installs the airdrop allocation verifier.
func WithProofVerifier(v vesting.ProofVerifier) Option {
	return func(p *Processor) { p.vesting.SetProofVerifier(v) }
}

// New wires the vesting, bonding and rewards engines over db.
func New(db storage.Database, cfg Config, opts ...Option) (*Processor, error) {
	if db == nil {
		return nil, fmt.Errorf("processor: database required")
	}
	manager := state.NewManager(db)
	recorder := &events.Recorder{}

	vestingEngine := vesting.NewEngine(vesting.Config{
		Admin:    cfg.Admin,
		Custody:  cfg.Custody,
		MaxSteps: cfg.MaxCurveSteps,
	})
	bondingEngine, err := bonding.NewEngine(bonding.Config{
		Tiers:   cfg.Tiers,
		MinBond: cfg.MinBond,
		Pool:    cfg.BondPool,
	})
	if err != nil {
		return nil, err
	}
	rewardsEngine := rewards.NewEngine(cfg.RewardPool)

	vestingEngine.SetState(manager)
	vestingEngine.SetEmitter(recorder)
	vestingEngine.SetDelegations(bondingEngine)
	vestingEngine.SetPauses(cfg.Pauses)

	bondingEngine.SetState(manager)
	bondingEngine.SetEmitter(recorder)
	bondingEngine.SetVesting(vestingEngine)
	bondingEngine.SetRewards(rewardsEngine)
	bondingEngine.SetPauses(cfg.Pauses)

	rewardsEngine.SetState(manager)
	rewardsEngine.SetEmitter(recorder)
	rewardsEngine.SetPositions(bondingEngine)
	rewardsEngine.SetPauses(cfg.Pauses)

	if err := bondingEngine.CheckStoredTiers(); err != nil {
		return nil, err
	}

	p := &Processor{
		state:    manager,
		recorder: recorder,
		vesting:  vestingEngine,
		bonding:  bondingEngine,
		rewards:  rewardsEngine,
		admin:    cfg.Admin,
		logger:   logging.Discard(),
		metrics:  metrics.Lock(),
		tracer:   otel.Tracer("tokenlock/processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	return p, nil
}

// Apply executes cmd atomically and returns its receipt.
func (p *Processor) Apply(ctx context.Context, cmd Command) (*Receipt, error) {
	ctx, span := p.tracer.Start(ctx, "processor."+string(cmd.Kind),
		trace.WithAttributes(
			attribute.String("command", string(cmd.Kind)),
			attribute.Int64("now", int64(cmd.Now)),
		))
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	receipt, err := p.apply(ctx, cmd)
	code := lockerrors.Code(err)
	p.metrics.RecordCommand(string(cmd.Kind), code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		p.logger.Warn("command rejected",
			slog.String("command", string(cmd.Kind)),
			slog.String("caller", crypto.AccountString(cmd.Caller)),
			slog.String("code", code),
			slog.Any("error", err))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("receipt", receipt.ID.String()),
		attribute.Int("transfers", len(receipt.Transfers)),
	)
	span.SetStatus(codes.Ok, "committed")
	p.metrics.AddTransferred(string(cmd.Kind), receipt.Moved())
	p.publishLedger()
	p.logger.Info("command committed",
		slog.String("command", string(cmd.Kind)),
		slog.String("account", crypto.AccountString(receipt.Account)),
		slog.String("receipt", receipt.ID.String()),
		slog.Int("transfers", len(receipt.Transfers)),
		slog.Int("events", len(receipt.Events)))
	return receipt, nil
}

func (p *Processor) apply(ctx context.Context, cmd Command) (*Receipt, error) {
	if err := p.state.Begin(); err != nil {
		return nil, err
	}
	p.recorder.Reset()
	receipt, err := p.execute(cmd)
	if err != nil {
		p.state.Discard()
		p.recorder.Reset()
		return nil, err
	}
	receipt.Events = events.Render(p.recorder.Drain())
	if err := p.commit(ctx, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// commit hands the receipt to the outbox and then persists the overlay. The
// outbox entry is withdrawn if the state commit fails.
func (p *Processor) commit(ctx context.Context, receipt *Receipt) error {
	if p.outbox != nil && len(receipt.Transfers) > 0 {
		if err := p.outbox.Enqueue(ctx, receipt); err != nil {
			p.state.Discard()
			return fmt.Errorf("enqueue transfers: %w", err)
		}
	}
	if err := p.state.Commit(); err != nil {
		p.state.Discard()
		if p.outbox != nil && len(receipt.Transfers) > 0 {
			if cancelErr := p.outbox.Cancel(ctx, receipt.ID); cancelErr != nil {
				p.logger.Error("outbox cancel failed",
					slog.String("receipt", receipt.ID.String()),
					slog.Any("error", cancelErr))
			}
		}
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

func (p *Processor) execute(cmd Command) (*Receipt, error) {
	receipt := &Receipt{ID: uuid.New(), Command: cmd.Kind, Now: cmd.Now}
	switch cmd.Kind {
	case KindCreateVesting:
		if cmd.Caller == ([20]byte{}) {
			return nil, fmt.Errorf("%w: issuer required", lockerrors.ErrUnauthorized)
		}
		if cmd.Account == ([20]byte{}) {
			return nil, fmt.Errorf("%w: owner required", lockerrors.ErrValidation)
		}
		receipt.Account = cmd.Account
		receipt.Amount = common.Clone(cmd.Amount)
		transfer, err := p.vesting.Create(cmd.Account, cmd.Caller, cmd.Amount, cmd.Schedule, cmd.Now)
		if err != nil {
			return nil, err
		}
		receipt.addTransfer(transfer)

	case KindCreateStage:
		if cmd.Stage == nil {
			return nil, fmt.Errorf("%w: stage required", lockerrors.ErrValidation)
		}
		receipt.Account = cmd.Stage.Issuer
		receipt.Amount = common.Clone(cmd.Stage.Total)
		transfer, err := p.vesting.CreateStage(cmd.Stage, cmd.Caller, cmd.Now)
		if err != nil {
			return nil, err
		}
		receipt.addTransfer(transfer)

	case KindClaimAirdrop:
		owner, err := subject(cmd)
		if err != nil {
			return nil, err
		}
		receipt.Account = owner
		receipt.Amount = common.Clone(cmd.Amount)
		if err := p.vesting.ClaimAirdrop(cmd.StageID, owner, cmd.Amount, cmd.Proof, cmd.Now); err != nil {
			return nil, err
		}

	case KindClaim:
		owner, err := subject(cmd)
		if err != nil {
			return nil, err
		}
		receipt.Account = owner
		receipt.Amount = common.Amount(cmd.Amount)
		transfer, err := p.vesting.Claim(owner, cmd.Amount, cmd.Now)
		if err != nil {
			return nil, err
		}
		receipt.addTransfer(transfer)

	case KindCancel:
		receipt.Account = cmd.Account
		transfer, err := p.vesting.Cancel(cmd.Account, cmd.Caller, cmd.Now)
		if err != nil {
			return nil, err
		}
		receipt.addTransfer(transfer)
		if transfer != nil {
			receipt.Amount = common.Clone(transfer.Amount)
		} else {
			receipt.Amount = common.Zero()
		}

	case KindBond:
		account, err := subject(cmd)
		if err != nil {
			return nil, err
		}
		receipt.Account = account
		receipt.Amount = common.Clone(cmd.Amount)
		transfer, err := p.bonding.Bond(account, cmd.Tier, cmd.Amount, cmd.Source, cmd.Now)
		if err != nil {
			return nil, err
		}
		receipt.addTransfer(transfer)

	case KindBeginUnbond:
		account, err := subject(cmd)
		if err != nil {
			return nil, err
		}
		receipt.Account = account
		receipt.Amount = common.Clone(cmd.Amount)
		req, err := p.bonding.BeginUnbond(account, cmd.Tier, cmd.Amount, cmd.Now)
		if err != nil {
			return nil, err
		}
		receipt.Unbond = req

	case KindWithdrawUnbonded:
		account, err := subject(cmd)
		if err != nil {
			return nil, err
		}
		receipt.Account = account
		amount, transfers, err := p.bonding.WithdrawUnbonded(account, cmd.Tier, cmd.Now)
		if err != nil {
			return nil, err
		}
		receipt.Amount = amount
		for _, t := range transfers {
			receipt.addTransfer(t)
		}

	case KindNotifyReward:
		if p.admin == ([20]byte{}) || cmd.Caller != p.admin {
			return nil, lockerrors.ErrUnauthorized
		}
		receipt.Account = cmd.Caller
		receipt.Amount = common.Amount(cmd.Amount)
		transfer, err := p.rewards.NotifyReward(cmd.Caller, cmd.Amount)
		if err != nil {
			return nil, err
		}
		receipt.addTransfer(transfer)

	case KindClaimReward:
		if cmd.Caller == ([20]byte{}) {
			return nil, fmt.Errorf("%w: caller required", lockerrors.ErrUnauthorized)
		}
		owner := cmd.Account
		if owner == ([20]byte{}) {
			owner = cmd.Caller
		}
		receipt.Account = owner
		amount, transfer, err := p.rewards.WithdrawRewards(owner, cmd.Caller, cmd.Receiver, cmd.Now)
		if err != nil {
			return nil, err
		}
		receipt.Amount = amount
		receipt.addTransfer(transfer)

	case KindDelegateWithdrawal:
		owner, err := subject(cmd)
		if err != nil {
			return nil, err
		}
		receipt.Account = owner
		receipt.Amount = common.Zero()
		if err := p.rewards.DelegateWithdrawal(owner, cmd.Receiver, cmd.Now); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Kind)
	}
	return receipt, nil
}

// subject resolves the account an owner-issued command acts on. Callers may
// only act on their own account.
func subject(cmd Command) ([20]byte, error) {
	if cmd.Caller == ([20]byte{}) {
		return [20]byte{}, fmt.Errorf("%w: caller required", lockerrors.ErrUnauthorized)
	}
	if cmd.Account == ([20]byte{}) || cmd.Account == cmd.Caller {
		return cmd.Caller, nil
	}
	return [20]byte{}, fmt.Errorf("%w: %s may not act for %s", lockerrors.ErrUnauthorized,
		crypto.AccountString(cmd.Caller), crypto.AccountString(cmd.Account))
}

func (p *Processor) publishLedger() {
	if p.metrics == nil {
		return
	}
	ledger, err := p.rewards.Ledger()
	if err != nil {
		p.logger.Warn("read reward ledger", slog.Any("error", err))
		return
	}
	p.metrics.SetLedger(ledger.Accumulator, ledger.TotalWeight, ledger.Undistributed())
}

// ApplyGenesis runs cmds in a single transaction and records hash as the
// applied genesis. It reports false without touching state when the same
// genesis was already applied.
func (p *Processor) ApplyGenesis(ctx context.Context, hash [32]byte, cmds []Command) (bool, error) {
	ctx, span := p.tracer.Start(ctx, "processor.genesis",
		trace.WithAttributes(attribute.Int("commands", len(cmds))))
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	applied, stored, err := p.state.GenesisApplied()
	if err != nil {
		return false, err
	}
	if applied {
		if stored != hash {
			return false, ErrGenesisApplied
		}
		return false, nil
	}
	if err := p.state.Begin(); err != nil {
		return false, err
	}
	receipts := make([]*Receipt, 0, len(cmds))
	for i, cmd := range cmds {
		p.recorder.Reset()
		receipt, err := p.execute(cmd)
		if err != nil {
			p.state.Discard()
			span.RecordError(err)
			span.SetStatus(codes.Error, lockerrors.Code(err))
			return false, fmt.Errorf("genesis command %d (%s): %w", i, cmd.Kind, err)
		}
		receipt.Events = events.Render(p.recorder.Drain())
		receipts = append(receipts, receipt)
	}
	if err := p.state.MarkGenesisApplied(hash); err != nil {
		p.state.Discard()
		return false, err
	}
	enqueued, err := p.enqueueAll(ctx, receipts)
	if err != nil {
		p.state.Discard()
		p.cancelAll(ctx, enqueued)
		return false, fmt.Errorf("enqueue genesis transfers: %w", err)
	}
	if err := p.state.Commit(); err != nil {
		p.state.Discard()
		p.cancelAll(ctx, enqueued)
		return false, fmt.Errorf("commit genesis: %w", err)
	}
	for _, r := range receipts {
		p.metrics.RecordCommand(string(r.Command), lockerrors.CodeOK)
		p.metrics.AddTransferred(string(r.Command), r.Moved())
	}
	p.logger.Info("genesis applied",
		slog.String("hash", fmt.Sprintf("%x", hash)),
		slog.Int("commands", len(cmds)))
	span.SetStatus(codes.Ok, "applied")
	return true, nil
}

// enqueueAll hands every receipt carrying transfers to the outbox and returns
// the ones accepted so far, also on error.
func (p *Processor) enqueueAll(ctx context.Context, receipts []*Receipt) ([]*Receipt, error) {
	if p.outbox == nil {
		return nil, nil
	}
	enqueued := make([]*Receipt, 0, len(receipts))
	for _, r := range receipts {
		if len(r.Transfers) == 0 {
			continue
		}
		if err := p.outbox.Enqueue(ctx, r); err != nil {
			return enqueued, err
		}
		enqueued = append(enqueued, r)
	}
	return enqueued, nil
}

func (p *Processor) cancelAll(ctx context.Context, receipts []*Receipt) {
	for _, r := range receipts {
		if err := p.outbox.Cancel(ctx, r.ID); err != nil {
			p.logger.Error("outbox cancel failed",
				slog.String("receipt", r.ID.String()),
				slog.Any("error", err))
		}
	}
}
