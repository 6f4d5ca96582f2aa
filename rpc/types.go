package rpc

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"tokenlock/core/processor"
	"tokenlock/core/types"
	"tokenlock/crypto"
	"tokenlock/native/bonding"
	"tokenlock/native/common"
	"tokenlock/native/curve"
	"tokenlock/native/rewards"
	"tokenlock/native/vesting"
)

// ReceiptResult summarises a committed command for RPC consumers.
type ReceiptResult struct {
	ID        string           `json:"id"`
	Command   string           `json:"command"`
	Account   string           `json:"account"`
	Amount    string           `json:"amount"`
	Transfers []TransferResult `json:"transfers"`
	Events    []types.Event    `json:"events"`
	Unbond    *UnbondResult    `json:"unbond,omitempty"`
	Now       uint64           `json:"now"`
}

// TransferResult is a ledger instruction carried by a receipt.
type TransferResult struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

type UnbondResult struct {
	ID          uint64 `json:"id"`
	Amount      string `json:"amount"`
	Delegated   string `json:"delegated"`
	Released    string `json:"released"`
	Outstanding string `json:"outstanding"`
	RequestedAt uint64 `json:"requestedAt"`
	ReleaseAt   uint64 `json:"releaseAt"`
}

type CancellationResult struct {
	At         uint64 `json:"at"`
	Caller     string `json:"caller"`
	Frozen     string `json:"frozen"`
	ClawedBack string `json:"clawedBack"`
}

type VestingResult struct {
	Owner        string              `json:"owner"`
	Issuer       string              `json:"issuer"`
	Total        string              `json:"total"`
	Claimed      string              `json:"claimed"`
	Locked       string              `json:"locked"`
	Claimable    string              `json:"claimable"`
	Schedule     curve.Curve         `json:"schedule"`
	CreatedAt    uint64              `json:"createdAt"`
	Stage        uint64              `json:"stage,omitempty"`
	Watermark    uint64              `json:"watermark"`
	Cancellation *CancellationResult `json:"cancellation,omitempty"`
}

type BackingResult struct {
	Account        string `json:"account"`
	Delegated      string `json:"delegated"`
	VestedBacked   string `json:"vestedBacked"`
	UnvestedBacked string `json:"unvestedBacked"`
}

type StageResult struct {
	ID         uint64       `json:"id"`
	Issuer     string       `json:"issuer"`
	Total      string       `json:"total"`
	Claimed    string       `json:"claimed"`
	Remaining  string       `json:"remaining"`
	Start      uint64       `json:"start"`
	Expiry     uint64       `json:"expiry"`
	Schedule   curve.Curve  `json:"schedule"`
	Cap        *curve.Curve `json:"cap,omitempty"`
	MerkleRoot string       `json:"merkleRoot,omitempty"`
}

type TierResult struct {
	ID              uint64       `json:"id"`
	Name            string       `json:"name"`
	UnbondingPeriod uint64       `json:"unbondingPeriod,omitempty"`
	Release         *curve.Curve `json:"release,omitempty"`
	RewardBps       uint64       `json:"rewardBps"`
	VotingBps       uint64       `json:"votingBps"`
}

type LedgerResult struct {
	Accumulator   string `json:"accumulator"`
	TotalWeight   string `json:"totalWeight"`
	Leftover      string `json:"leftover"`
	Distributed   string `json:"distributed"`
	Withdrawn     string `json:"withdrawn"`
	Undistributed string `json:"undistributed"`
}

// AmountResult answers single-figure queries.
type AmountResult struct {
	Account string `json:"account"`
	Tier    uint64 `json:"tier,omitempty"`
	Amount  string `json:"amount"`
}

// TierUnbondsResult groups an account's open requests in one tier.
type TierUnbondsResult struct {
	Tier     uint64         `json:"tier"`
	Requests []UnbondResult `json:"requests"`
}

type TierTotalsResult struct {
	Tier      uint64 `json:"tier"`
	Bonded    string `json:"bonded"`
	Unbonding string `json:"unbonding"`
}

// TotalsResult reports per-tier aggregates and their sums.
type TotalsResult struct {
	Bonded    string             `json:"bonded"`
	Unbonding string             `json:"unbonding"`
	Tiers     []TierTotalsResult `json:"tiers"`
}

type DelegateResult struct {
	Owner    string `json:"owner"`
	Delegate string `json:"delegate"`
}

type OutboxTransferResult struct {
	ID          string `json:"id"`
	ReceiptID   string `json:"receiptId"`
	Seq         int    `json:"seq"`
	Command     string `json:"command"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
	CommandTime uint64 `json:"commandTime"`
}

type OutboxPendingResult struct {
	Total     int                    `json:"total"`
	Transfers []OutboxTransferResult `json:"transfers"`
}

func receiptResult(r *processor.Receipt) ReceiptResult {
	out := ReceiptResult{
		ID:        r.ID.String(),
		Command:   string(r.Command),
		Account:   crypto.AccountString(r.Account),
		Amount:    common.FormatAmount(r.Amount),
		Transfers: make([]TransferResult, 0, len(r.Transfers)),
		Events:    r.Events,
		Now:       r.Now,
	}
	if out.Events == nil {
		out.Events = []types.Event{}
	}
	for _, t := range r.Transfers {
		out.Transfers = append(out.Transfers, TransferResult{
			From:   crypto.AccountString(t.From),
			To:     crypto.AccountString(t.To),
			Amount: common.FormatAmount(t.Amount),
			Reason: t.Reason,
		})
	}
	if r.Unbond != nil {
		unbond := unbondResult(*r.Unbond)
		out.Unbond = &unbond
	}
	return out
}

func unbondResult(r bonding.UnbondRequest) UnbondResult {
	return UnbondResult{
		ID:          r.ID,
		Amount:      common.FormatAmount(r.Amount),
		Delegated:   common.FormatAmount(r.Delegated),
		Released:    common.FormatAmount(r.Released),
		Outstanding: common.FormatAmount(r.Outstanding()),
		RequestedAt: r.RequestedAt,
		ReleaseAt:   r.ReleaseAt,
	}
}

func vestingResult(acc *vesting.Account, claimable *uint256.Int) VestingResult {
	out := VestingResult{
		Owner:     crypto.AccountString(acc.Owner),
		Issuer:    crypto.AccountString(acc.Issuer),
		Total:     common.FormatAmount(acc.Total),
		Claimed:   common.FormatAmount(acc.Claimed),
		Locked:    common.FormatAmount(acc.Locked()),
		Claimable: common.FormatAmount(claimable),
		Schedule:  acc.Schedule,
		CreatedAt: acc.CreatedAt,
		Stage:     acc.Stage,
		Watermark: acc.Watermark,
	}
	if c := acc.Cancellation; c != nil {
		out.Cancellation = &CancellationResult{
			At:         c.At,
			Caller:     crypto.AccountString(c.Caller),
			Frozen:     common.FormatAmount(c.Frozen),
			ClawedBack: common.FormatAmount(c.ClawedBack),
		}
	}
	return out
}

func stageResult(s *vesting.Stage) StageResult {
	out := StageResult{
		ID:        s.ID,
		Issuer:    crypto.AccountString(s.Issuer),
		Total:     common.FormatAmount(s.Total),
		Claimed:   common.FormatAmount(s.Claimed),
		Remaining: common.FormatAmount(s.Remaining()),
		Start:     s.Start,
		Expiry:    s.Expiry,
		Schedule:  s.Schedule.Shape,
	}
	if s.Cap != nil {
		shape := s.Cap.Shape
		out.Cap = &shape
	}
	if s.MerkleRoot != ([32]byte{}) {
		out.MerkleRoot = "0x" + hex.EncodeToString(s.MerkleRoot[:])
	}
	return out
}

func tierResult(t bonding.Tier) TierResult {
	out := TierResult{
		ID:              t.ID,
		Name:            t.Name,
		UnbondingPeriod: t.UnbondingPeriod,
		RewardBps:       t.RewardBps,
		VotingBps:       t.VotingBps,
	}
	if t.Release != nil {
		shape := t.Release.Shape
		out.Release = &shape
	}
	return out
}

func totalsResult(totals []*bonding.TierTotals) (TotalsResult, error) {
	bonded, unbonding := common.Zero(), common.Zero()
	out := TotalsResult{Tiers: make([]TierTotalsResult, 0, len(totals))}
	for _, t := range totals {
		var err error
		if bonded, err = common.Add(bonded, t.Bonded); err != nil {
			return out, err
		}
		if unbonding, err = common.Add(unbonding, t.Unbonding); err != nil {
			return out, err
		}
		out.Tiers = append(out.Tiers, TierTotalsResult{
			Tier:      t.Tier,
			Bonded:    common.FormatAmount(t.Bonded),
			Unbonding: common.FormatAmount(t.Unbonding),
		})
	}
	out.Bonded = common.FormatAmount(bonded)
	out.Unbonding = common.FormatAmount(unbonding)
	return out, nil
}

func ledgerResult(l *rewards.Ledger) LedgerResult {
	return LedgerResult{
		Accumulator:   common.FormatAmount(l.Accumulator),
		TotalWeight:   common.FormatAmount(l.TotalWeight),
		Leftover:      common.FormatAmount(l.Leftover),
		Distributed:   common.FormatAmount(l.Distributed),
		Withdrawn:     common.FormatAmount(l.Withdrawn),
		Undistributed: common.FormatAmount(l.Undistributed()),
	}
}

func parseAccount(field, value string) ([20]byte, error) {
	account, err := crypto.ParseAccount(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, invalidParams(fmt.Sprintf("invalid %s", field), err)
	}
	return account, nil
}

func parseOptionalAccount(field, value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, nil
	}
	return parseAccount(field, value)
}

func parseAmount(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, invalidParams("amount is required", nil)
	}
	amount, err := common.ParseAmount(trimmed)
	if err != nil {
		return nil, invalidParams("invalid amount", err)
	}
	if amount.IsZero() {
		return nil, invalidParams("amount must be positive", nil)
	}
	return amount, nil
}

func parseRoot(value string) ([32]byte, error) {
	var root [32]byte
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(value), "0x"), "0X")
	if trimmed == "" {
		return root, nil
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != len(root) {
		return root, invalidParams("merkleRoot must be 32 bytes of hex", err)
	}
	copy(root[:], raw)
	return root, nil
}

func parseProof(values []string) ([][]byte, error) {
	proof := make([][]byte, 0, len(values))
	for _, value := range values {
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
		if err != nil {
			return nil, invalidParams("proof entries must be hex", err)
		}
		proof = append(proof, raw)
	}
	return proof, nil
}
